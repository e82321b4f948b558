// Package conda is the adapter between dappled projects and the conda/pip
// command line tools. It reads the environment a project declares in
// dappled.yml, works out what the project's private environment is missing,
// and drives the package manager to fill the gap.
package conda

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"dappled/internal/config"
)

const (
	// DefaultEnvSpec is the only environment spec a project has.
	DefaultEnvSpec = "default"
	// RunCommand is the launcher for a project's notebook, always available in a prepared environment.
	RunCommand = "dappled-run"
	// NotebookCommand serves the project's notebook for editing.
	NotebookCommand = "notebook"

	envSpecsKey = "env_specs"
)

// EnvSpec is a named set of packages and channels materialized into one environment.
type EnvSpec struct {
	Name     string
	Channels []string
	Packages []string
	Pip      []string
}

// envSpecSection is the legacy per-spec section some older manifests carry.
type envSpecSection struct {
	Channels []string `yaml:"channels"`
	Packages []string `yaml:"packages"`
}

// Project is a project directory as the package manager sees it.
type Project struct {
	Dir      string
	Manifest *config.Manifest
	EnvSpec  EnvSpec
	// SynthesizedEnvSpec is set when the manifest has no env_specs section and
	// the default spec was derived from the top-level packages and channels.
	// Derived data is never written back to the manifest.
	SynthesizedEnvSpec bool
	// Commands maps command names to argument vectors.
	Commands map[string][]string
}

// LoadProject loads the project in dir.
func LoadProject(dir string) (*Project, error) {
	m, err := config.LoadProjectManifest(dir)
	if err != nil {
		return nil, err
	}

	p := &Project{
		Dir:      dir,
		Manifest: m,
		EnvSpec: EnvSpec{
			Name:     DefaultEnvSpec,
			Channels: m.Channels(),
			Packages: m.Packages(),
			Pip:      m.PipPackages(),
		},
		Commands: map[string][]string{
			RunCommand: {RunCommand},
		},
	}

	specs := map[string]envSpecSection{}
	if err := m.Decode(envSpecsKey, &specs); err != nil {
		return nil, config.Fail("%s: %w", m.Path(), err)
	}
	if spec, ok := specs[DefaultEnvSpec]; ok {
		p.EnvSpec.Channels = appendNew(p.EnvSpec.Channels, spec.Channels...)
		p.EnvSpec.Packages = appendNew(p.EnvSpec.Packages, spec.Packages...)
	} else {
		p.SynthesizedEnvSpec = true
	}

	if filename := m.Filename(); filename != "" {
		p.Commands[NotebookCommand] = []string{"jupyter", "notebook", filename}
	}
	return p, nil
}

// Prefix is where the project's default environment lives.
func (p *Project) Prefix() string {
	return filepath.Join(p.Dir, "envs", p.EnvSpec.Name)
}

// Problems lists reasons the project cannot be prepared.
func (p *Project) Problems() []string {
	var problems []string
	for _, key := range []string{config.KeyPackages, config.KeyChannels, config.KeyDownloads} {
		if !p.Manifest.IsList(key) {
			problems = append(problems, fmt.Sprintf("%s: %q field must be a list", config.ManifestFile, key))
		}
	}
	if filename := p.Manifest.Filename(); filename != "" {
		if _, err := os.Stat(filepath.Join(p.Dir, filename)); err != nil {
			problems = append(problems, fmt.Sprintf("%s: notebook %q does not exist", config.ManifestFile, filename))
		}
	}
	return problems
}

func appendNew(list []string, values ...string) []string {
	for _, v := range values {
		if !slices.Contains(list, v) {
			list = append(list, v)
		}
	}
	return list
}
