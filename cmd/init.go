package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"dappled/internal/config"
	"dappled/internal/logger"
)

var initLanguage string

// initCmd scaffolds a project in the current directory. An existing
// dappled.yml is kept and only completed.
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create dappled.yml and an empty notebook in the current directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := os.Getwd()
		if err != nil {
			return err
		}
		return initProject(dir, initLanguage)
	},
}

func init() {
	initCmd.Flags().StringVar(&initLanguage, "language", "python2", "Notebook language: python2, python3 or r")
	rootCmd.AddCommand(initCmd)
}

// initProject writes dir's manifest and notebook, filling in what is missing.
func initProject(dir, language string) error {
	path := filepath.Join(dir, config.ManifestFile)

	var (
		m   *config.Manifest
		err error
	)
	spec := config.Kernelspec{}
	if config.ManifestExists(dir) {
		m, err = config.LoadManifest(path)
		if err != nil {
			return err
		}
		logger.Debug("[DEBUG] Completing existing %s\n", path)
	} else {
		m, err = config.ParseManifest([]byte(config.ManifestTemplate))
		if err != nil {
			return err
		}
		if spec, err = config.ApplyLanguage(m, language); err != nil {
			return err
		}
	}

	if m.Get(config.KeyNotebookID) == "" {
		m.Set(config.KeyNotebookID, uuid.NewString())
	}
	if m.Filename() == "" {
		m.Set(config.KeyFilename, "notebook.ipynb")
	}

	notebook := filepath.Join(dir, m.Filename())
	if _, err := os.Stat(notebook); errors.Is(err, os.ErrNotExist) {
		data, err := config.NotebookDocument(spec)
		if err != nil {
			return err
		}
		if err := os.WriteFile(notebook, data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", notebook, err)
		}
		logger.Info("[INFO] Created %s\n", m.Filename())
	}

	if err := m.SaveAs(path); err != nil {
		return err
	}
	logger.Info("[INFO] Wrote %s\n", config.ManifestFile)
	return nil
}
