package main

import (
	"dappled/cmd" // Import the cmd package which contains the CLI commands and execution logic
)

// main is the program entry point.
// It delegates to cmd.Execute() which handles command line argument parsing and execution.
//
// dappled manages reproducible notebook projects. A project is a directory holding:
//   - dappled.yml, a hand-edited manifest naming the notebook, its packages and channels,
//     and optionally a docker image, a GitHub snapshot and extra downloads
//   - the notebook itself
//   - envs/, the private conda environment the notebook runs in
//
// Commands prepare that environment, open the notebook in a Jupyter server, run it,
// and publish it to or fetch it from the dappled service. Published projects are
// cached under ~/.dappled/nb, one directory per published version.
//
// Error handling strategy:
//   - User mistakes and service refusals print a plain message and exit 1
//   - Package manager failures carry the failing command line and the tail of its output
//   - Long-running servers and launchers replace the dappled process entirely
func main() {
	cmd.Execute()
}
