package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"dappled/internal/config"
	"dappled/internal/env"
	"dappled/internal/logger"
)

// debug flag indicates whether debug logging should be enabled.
// It can be toggled via the `--debug` command-line flag.
var debug bool

// rootCmd is the base command for the CLI tool `dappled`.
var rootCmd = &cobra.Command{
	Use:   "dappled",
	Short: "Reproducible notebook projects",
	Long: `dappled manages notebook projects: a dappled.yml manifest, a notebook and
the package environment the notebook runs in.`,

	// Errors are printed by Execute; usage is only shown for flag errors.
	SilenceErrors: true,
	SilenceUsage:  true,

	// PersistentPreRun is a hook that runs before any subcommand.
	// Here, we initialize the logger based on the debug flag.
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.Init(debug)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
}

// exitStatus is returned by a command whose work ran in a child process;
// the tool exits with the child's status.
type exitStatus int

func (s exitStatus) Error() string { return fmt.Sprintf("exit status %d", int(s)) }

// Execute runs the command line and exits non-zero on failure.
//
// Tool errors (bad input, missing project files, refusals from the service)
// print their message alone. Anything else is unexpected and printed with
// its full wrap chain.
func Execute() {
	err := rootCmd.ExecuteContext(context.Background())
	if err == nil {
		return
	}

	var status exitStatus
	switch {
	case errors.As(err, &status):
		os.Exit(int(status))
	case errors.Is(err, env.ErrPrepareFailed):
		// The reasons were already reported while preparing.
	case config.IsToolError(err):
		fmt.Fprintln(os.Stderr, err)
	default:
		logger.Error("error: %v\n", err)
	}
	os.Exit(1)
}
