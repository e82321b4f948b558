package cmd

import (
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"dappled/internal/conda"
	"dappled/internal/container"
	"dappled/internal/logger"
)

// runCmd runs a project's notebook through its launcher. Flags it does not
// know are the launcher's, so cobra's flag parsing is off and the few flags
// of its own are picked out by splitRunArgs.
var runCmd = &cobra.Command{
	Use:   "run [id] [--no-docker] [args...]",
	Short: "Run a notebook, fetching the published project if needed",
	Long: `Run the notebook of the project in the current directory, or of the
published project id. Published projects are fetched into the cache once.
All other arguments are passed to the notebook's launcher.`,
	DisableFlagParsing: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ra := splitRunArgs(args)
		if ra.help {
			return cmd.Help()
		}
		if ra.debug {
			logger.Init(true)
		}

		ctx := cmd.Context()
		a, err := newApp(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		dir, canonical, err := a.projectDir(ctx, ra.id)
		if err != nil {
			return err
		}
		logger.Debug("[DEBUG] Running project in %s\n", dir)

		req := container.Request{Dir: dir, NoDocker: ra.noDocker, ID: ra.id, CanonicalID: canonical}
		if err := a.delegate(ctx, req); err != nil {
			return err
		}

		e, err := a.engine.Prepare(ctx, dir)
		if err != nil {
			return err
		}
		return e.Exec(slices.Concat(e.Project.Commands[conda.RunCommand], ra.rest))
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

type runArgs struct {
	id       string
	noDocker bool
	debug    bool
	help     bool
	rest     []string
}

// splitRunArgs takes the first argument that is not an option as the id and
// keeps everything else, in order, for the launcher.
func splitRunArgs(args []string) runArgs {
	var ra runArgs
	for i, arg := range args {
		switch {
		case arg == "--":
			ra.rest = append(ra.rest, args[i+1:]...)
			return ra
		case arg == "--no-docker":
			ra.noDocker = true
		case arg == "--debug":
			ra.debug = true
		case arg == "-h" || arg == "--help":
			ra.help = true
		case ra.id == "" && !strings.HasPrefix(arg, "-"):
			ra.id = arg
		default:
			ra.rest = append(ra.rest, arg)
		}
	}
	return ra
}
