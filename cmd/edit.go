package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"dappled/internal/conda"
	"dappled/internal/config"
	"dappled/internal/container"
	"dappled/internal/netutil"
)

const (
	portRetries = 50

	passwordScript  = `import getpass,IPython.lib;print(IPython.lib.passwd(getpass.getpass("Create a password for editing notebook: ")))`
	serverExtension = `--NotebookApp.nbserver_extensions={'dappled_core.nbserver_extension':True}`
)

var (
	editNoDocker bool
	editRemote   bool
	editLocal    bool
	editPort     int
)

// editCmd prepares the project's environment and hands the terminal over to
// a notebook server editing the project's notebook.
var editCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open the project's notebook in a Jupyter notebook server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		dir, err := os.Getwd()
		if err != nil {
			return err
		}

		if err := a.delegate(ctx, container.Request{Dir: dir, NoDocker: editNoDocker}); err != nil {
			return err
		}

		m, err := config.LoadProjectManifest(dir)
		if err != nil {
			return err
		}
		filename := m.Filename()
		if filename == "" {
			return config.Fail("%w", config.ErrNoFilename)
		}
		if _, err := os.Stat(filepath.Join(dir, filename)); errors.Is(err, os.ErrNotExist) {
			return config.Fail("%q not found; please fix \"filename\" in %s", filename, config.ManifestFile)
		}

		remote := editRemote
		if sshSession() && !editLocal {
			fmt.Fprintln(a.out, "SSH connection detected; using --remote (--local to override)")
			remote = true
		}
		if editLocal {
			remote = false
		}

		e, err := a.engine.Prepare(ctx, dir)
		if err != nil {
			return err
		}

		port, err := netutil.FreePort(editPort, portRetries)
		if err != nil {
			return config.Fail("Failed to get free port: %w", err)
		}
		options := []string{serverExtension, fmt.Sprintf("--port=%d", port)}

		hosts := []string{"localhost"}
		if remote {
			res, err := e.Run(ctx, []string{"python", "-c", passwordScript})
			if err != nil {
				return err
			}
			hashed := lastLine(res.Output)
			if res.ExitCode != 0 || hashed == "" {
				return config.Fail("failed to set a notebook password:\n%s", res.Output)
			}
			options = append(options, "--NotebookApp.password="+hashed, "--ip=0.0.0.0", "--browser=echo")
			hosts = netutil.IPv4Addresses()
			fmt.Fprintln(a.out, "Notebook URLs:")
		} else {
			fmt.Fprintln(a.out, "Opening this URL:")
		}
		for _, host := range hosts {
			fmt.Fprintf(a.out, "  http://%s:%d/notebooks/%s\n", host, port, filename)
		}

		argv := slices.Concat(e.Project.Commands[conda.NotebookCommand], options)
		return e.Exec(argv)
	},
}

func init() {
	editCmd.Flags().BoolVar(&editNoDocker, "no-docker", false, "Do not run inside the project's docker image")
	editCmd.Flags().BoolVar(&editRemote, "remote", false, "Serve on all interfaces, protected by a password")
	editCmd.Flags().BoolVar(&editLocal, "local", false, "Serve on localhost even over SSH")
	editCmd.Flags().IntVar(&editPort, "port", 8888, "Port to try first")
	rootCmd.AddCommand(editCmd)
}

// sshSession reports whether the tool runs in an SSH login, where a browser
// on this machine is of no use.
func sshSession() bool {
	_, conn := os.LookupEnv("SSH_CONNECTION")
	_, client := os.LookupEnv("SSH_CLIENT")
	return conn || client
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
