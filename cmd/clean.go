package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"dappled/internal/config"
	"dappled/internal/logger"
)

// cleanCmd deletes the project's environments. The next prepare rebuilds them.
var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove the project's environment",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := os.Getwd()
		if err != nil {
			return err
		}
		return cleanProject(dir)
	},
}

func init() {
	rootCmd.AddCommand(cleanCmd)
}

func cleanProject(dir string) error {
	if !config.ManifestExists(dir) {
		return &config.ToolError{Err: config.ErrManifestNotFound}
	}
	envs := filepath.Join(dir, "envs")
	if _, err := os.Stat(envs); os.IsNotExist(err) {
		logger.Info("[INFO] Nothing to clean\n")
		return nil
	}
	if err := os.RemoveAll(envs); err != nil {
		return fmt.Errorf("failed to remove %s: %w", envs, err)
	}
	logger.Info("[INFO] Removed %s\n", envs)
	return nil
}
