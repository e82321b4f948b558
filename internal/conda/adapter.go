package conda

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"dappled/internal/logger"
)

// Adapter drives conda and pip on behalf of projects. Construct it once per
// invocation; tests inject a fake Invoker.
type Adapter struct {
	Invoker Invoker
}

// New returns an Adapter that runs conda through python and renders progress onto out.
func New(python string, out io.Writer) *Adapter {
	return &Adapter{Invoker: &Subprocess{Python: python, Out: out}}
}

// Deviation is what an environment lacks compared to its spec.
type Deviation struct {
	// EnvMissing means there is no environment yet and it must be created from scratch.
	EnvMissing bool
	// Missing holds the declared conda specifiers whose package is not installed.
	Missing []string
	// MissingPip holds the declared pip requirements whose distribution is not installed.
	MissingPip []string
}

// OK reports whether the environment satisfies its spec.
func (d Deviation) OK() bool {
	return !d.EnvMissing && len(d.Missing) == 0 && len(d.MissingPip) == 0
}

// Deviation compares the project's default environment with its spec.
func (a *Adapter) Deviation(ctx context.Context, p *Project) (Deviation, error) {
	prefix := p.Prefix()
	if !EnvironmentExists(prefix) {
		return Deviation{
			EnvMissing: true,
			Missing:    slices.Clone(p.EnvSpec.Packages),
			MissingPip: slices.Clone(p.EnvSpec.Pip),
		}, nil
	}

	var d Deviation
	installed, err := InstalledPackages(prefix)
	if err != nil {
		return d, err
	}
	for _, spec := range p.EnvSpec.Packages {
		if !installed[SpecName(spec)] {
			d.Missing = append(d.Missing, spec)
		}
	}

	if len(p.EnvSpec.Pip) > 0 {
		pipInstalled := a.pipPackages(ctx, prefix)
		for _, spec := range p.EnvSpec.Pip {
			if _, ok := pipInstalled[pipSpecName(spec)]; !ok {
				d.MissingPip = append(d.MissingPip, spec)
			}
		}
	}
	return d, nil
}

// pipPackages lists what pip sees in prefix. A failed listing counts as nothing installed.
func (a *Adapter) pipPackages(ctx context.Context, prefix string) map[string]string {
	out, err := a.Invoker.Output(ctx, nil, PrefixPython(prefix), "-m", "pip", "list", "--format=legacy")
	if err != nil {
		logger.Debug("[DEBUG] pip list failed in %s: %v\n", prefix, err)
		return map[string]string{}
	}
	return ParsePipList(string(out))
}

// Fix installs what d reports missing: a fresh create when there is no
// environment, otherwise an install of exactly the missing packages. Pip
// requirements are installed afterwards with the environment's own interpreter.
func (a *Adapter) Fix(ctx context.Context, p *Project, d Deviation) error {
	prefix := p.Prefix()
	switch {
	case d.EnvMissing:
		specs := createSpecs(p.EnvSpec.Packages)
		logger.Info("[INFO] Creating environment in %s\n", prefix)
		args := append([]string{"create", "--yes", "--quiet", "--prefix", prefix}, channelArgs(p.EnvSpec.Channels)...)
		if _, err := a.Invoker.Conda(ctx, nil, append(args, specs...)...); err != nil {
			return fmt.Errorf("%w %s: %w", ErrCreateEnvironment, strings.Join(specs, " "), err)
		}
	case len(d.Missing) > 0:
		logger.Info("[INFO] Installing missing packages: %s\n", strings.Join(d.Missing, " "))
		args := append([]string{"install", "--yes", "--quiet", "--prefix", prefix}, channelArgs(p.EnvSpec.Channels)...)
		if _, err := a.Invoker.Conda(ctx, nil, append(args, d.Missing...)...); err != nil {
			return fmt.Errorf("%w %s: %w", ErrInstallMissing, strings.Join(d.Missing, " "), err)
		}
	}

	if len(d.MissingPip) > 0 {
		logger.Info("[INFO] Installing missing pip packages: %s\n", strings.Join(d.MissingPip, " "))
		args := append([]string{"-m", "pip", "install"}, d.MissingPip...)
		if _, err := a.Invoker.Output(ctx, nil, PrefixPython(prefix), args...); err != nil {
			return fmt.Errorf("%w %s: %w", ErrInstallPip, strings.Join(d.MissingPip, " "), err)
		}
	}
	return nil
}

// Prepare brings the project's default environment in line with its spec.
// It returns false, after logging why, when the project itself is unusable.
func (a *Adapter) Prepare(ctx context.Context, p *Project) (bool, error) {
	if problems := p.Problems(); len(problems) > 0 {
		for _, problem := range problems {
			logger.Error("[ERROR] %s\n", problem)
		}
		return false, nil
	}

	d, err := a.Deviation(ctx, p)
	if err != nil {
		return false, err
	}
	if d.OK() {
		logger.Debug("[DEBUG] Environment %s is up to date\n", p.Prefix())
		return true, nil
	}
	if err := a.Fix(ctx, p, d); err != nil {
		return false, err
	}
	return true, nil
}

// ExportEnvironment renders the project's environment as an environment.yml
// document. The machine-specific prefix is dropped and the name normalized.
func (a *Adapter) ExportEnvironment(ctx context.Context, p *Project) ([]byte, error) {
	prefix := p.Prefix()
	env := append(os.Environ(), "CONDA_PREFIX="+prefix, "CONDA_DEFAULT_ENV="+p.EnvSpec.Name)
	out, err := a.Invoker.CondaOutput(ctx, env, "env", "export", "--prefix", prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to export environment: %w", err)
	}
	return cleanExport(out, p.EnvSpec.Name)
}

func cleanExport(data []byte, name string) ([]byte, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unexpected environment export: %w", err)
	}
	if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("unexpected environment export:\n%s", data)
	}
	root := doc.Content[0]
	var kept []*yaml.Node
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, val := root.Content[i], root.Content[i+1]
		switch key.Value {
		case "prefix":
			continue
		case "name":
			val.Value = name
		}
		kept = append(kept, key, val)
	}
	root.Content = kept

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// createSpecs keeps a version-qualified python entry as declared; only when
// there is no python entry at all is an unpinned "python" requested.
func createSpecs(packages []string) []string {
	if slices.ContainsFunc(packages, func(s string) bool { return SpecName(s) == "python" }) {
		return slices.Clone(packages)
	}
	return append([]string{"python"}, packages...)
}

func channelArgs(channels []string) []string {
	var args []string
	for _, c := range channels {
		args = append(args, "--channel", c)
	}
	return args
}
