package cmd

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"dappled/internal/config"
	"dappled/internal/logger"
)

// installCmd declares packages in the manifest and installs them.
var installCmd = &cobra.Command{
	Use:   "install <package>...",
	Short: "Add packages to dappled.yml and install them",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := os.Getwd()
		if err != nil {
			return err
		}
		if err := declarePackages(dir, args); err != nil {
			return err
		}

		a, err := newApp(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		_, err = a.engine.Prepare(cmd.Context(), dir)
		return err
	},
}

func init() {
	rootCmd.AddCommand(installCmd)
}

// declarePackages appends the packages dir's manifest does not list yet.
func declarePackages(dir string, packages []string) error {
	m, err := config.LoadProjectManifest(dir)
	if err != nil {
		return err
	}
	if !m.IsList(config.KeyPackages) {
		return config.Fail("%q in %s must be a list", config.KeyPackages, config.ManifestFile)
	}
	added := m.Append(config.KeyPackages, packages...)
	if len(added) == 0 {
		logger.Info("[INFO] Already declared: %s\n", strings.Join(packages, " "))
		return nil
	}
	if err := m.Save(); err != nil {
		return err
	}
	logger.Info("[INFO] Added to %s: %s\n", config.ManifestFile, strings.Join(added, " "))
	return nil
}
