package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"dappled/internal/config"
	"dappled/internal/logger"
)

// cloneCmd copies a published project into the current directory for editing.
var cloneCmd = &cobra.Command{
	Use:   "clone <id>",
	Short: "Copy a published project into the current directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := os.Getwd()
		if err != nil {
			return err
		}
		if config.ManifestExists(dir) {
			return config.Fail("%s already found in current directory... aborting", config.ManifestFile)
		}

		a, err := newApp(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		data, err := a.remote.Clone(cmd.Context(), args[0], false)
		if err != nil {
			return err
		}
		if err := writeProject(dir, data, false); err != nil {
			return err
		}
		logger.Info("[INFO] Cloned %s version %s\n", data.PublishID, data.Version)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cloneCmd)
}
