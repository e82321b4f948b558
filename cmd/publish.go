package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"dappled/internal/conda"
	"dappled/internal/config"
	"dappled/internal/logger"
	"dappled/internal/remote"
)

// publishCmd uploads the project as a new version and records the publish id
// the service assigned in the manifest.
var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish the project in the current directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		dir, err := os.Getwd()
		if err != nil {
			return err
		}
		p, err := conda.LoadProject(dir)
		if err != nil {
			return err
		}
		filename := p.Manifest.Filename()
		if filename == "" {
			return config.Fail("%w", config.ErrNoFilename)
		}
		notebook, err := os.ReadFile(filepath.Join(dir, filename))
		if err != nil {
			return config.Fail("failed to read notebook: %w", err)
		}

		a, err := newApp(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		creds, err := promptCredentials(os.Stdin, a.out)
		if err != nil {
			return err
		}

		environment, err := a.conda.ExportEnvironment(ctx, p)
		if err != nil {
			return err
		}
		manifest, err := p.Manifest.Bytes()
		if err != nil {
			return err
		}

		res, err := a.remote.Publish(ctx, creds, remote.PublishFiles{
			Manifest:         manifest,
			NotebookFilename: filepath.Base(filename),
			Notebook:         notebook,
			Environment:      environment,
		})
		if err != nil {
			return err
		}

		if res.PublishID != "" && res.PublishID != p.Manifest.PublishID() {
			p.Manifest.Set(config.KeyPublishID, res.PublishID)
			if err := p.Manifest.Save(); err != nil {
				return err
			}
		}
		logger.Info("[INFO] Published %s version %s\n", res.PublishID, res.Version)
		fmt.Fprintf(a.out, "Run it anywhere with: dappled run %s\n", res.PublishID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(publishCmd)
}
