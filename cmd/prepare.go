package cmd

import (
	"github.com/spf13/cobra"

	"dappled/internal/container"
)

var prepareNoDocker bool

// prepareCmd makes a project ready to run without running it.
var prepareCmd = &cobra.Command{
	Use:   "prepare [id]",
	Short: "Create or update a project's environment",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var id string
		if len(args) == 1 {
			id = args[0]
		}

		ctx := cmd.Context()
		a, err := newApp(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		dir, canonical, err := a.projectDir(ctx, id)
		if err != nil {
			return err
		}

		req := container.Request{Dir: dir, NoDocker: prepareNoDocker, ID: id, CanonicalID: canonical}
		if err := a.delegate(ctx, req); err != nil {
			return err
		}

		_, err = a.engine.Prepare(ctx, dir)
		return err
	},
}

func init() {
	prepareCmd.Flags().BoolVar(&prepareNoDocker, "no-docker", false, "Do not run inside the project's docker image")
	rootCmd.AddCommand(prepareCmd)
}
