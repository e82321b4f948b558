package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"dappled/internal/conda"
	"dappled/internal/config"
	"dappled/internal/container"
	"dappled/internal/env"
	"dappled/internal/fetch"
	"dappled/internal/remote"
	"dappled/internal/resolver"
	"dappled/internal/state"
)

// app holds the collaborators one invocation works with. It is built inside
// each command's RunE so that --debug already applies while settings load.
type app struct {
	settings *config.Settings
	aliases  *state.AliasMap
	resolver *resolver.Resolver
	remote   *remote.Client
	conda    *conda.Adapter
	engine   *env.Engine
	shim     *container.Shim
	out      io.Writer
}

func newApp(out io.Writer) (*app, error) {
	settings, err := config.LoadSettings()
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	aliases := state.NewAliasMap(settings.MapFile())
	adapter := conda.New(settings.Python, out)
	return &app{
		settings: settings,
		aliases:  aliases,
		resolver: resolver.New(settings.NotebookDir(), aliases),
		remote:   remote.NewClient(settings),
		conda:    adapter,
		engine: &env.Engine{
			Conda: adapter,
			Files: fetch.New(nil),
			Out:   out,
		},
		shim: &container.Shim{
			Runtime: container.NewUdocker(settings.Udocker),
			Out:     out,
		},
		out: out,
	}, nil
}

// publishedProject finds the cached instance of a published project, fetching
// it into the cache when there is none. It returns the instance directory and
// its canonical id.
func (a *app) publishedProject(ctx context.Context, id string) (string, string, error) {
	// A canonical id names its cache directory directly.
	if strings.Contains(id, ".") {
		dir := filepath.Join(a.settings.NotebookDir(), id)
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir, id, nil
		}
	}

	dir, err := a.resolver.Resolve(id)
	if err != nil {
		return "", "", userError(err)
	}
	if dir != "" {
		return dir, filepath.Base(dir), nil
	}

	data, err := a.remote.Clone(ctx, id, true)
	if err != nil {
		return "", "", err
	}
	canonical := resolver.CanonicalID(data.PublishID, string(data.Version))
	// The cache only recognizes whole-number versions; anything else would be
	// fetched again on every run.
	if _, ok := resolver.Version(canonical); !ok {
		return "", "", config.Fail("unsupported version %q for %s from the service", string(data.Version), data.PublishID)
	}
	dir = filepath.Join(a.settings.NotebookDir(), canonical)

	if err := a.aliases.Save(id, data.PublishID); err != nil {
		return "", "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	if err := writeProject(dir, data, true); err != nil {
		return "", "", err
	}
	fmt.Fprintln(a.out, dir)
	return dir, canonical, nil
}

// writeProject writes a cloned project's manifest and notebook into dir, and
// its environment.yml when withEnv is set and the service sent one. The
// notebook is written under the base name of the manifest's filename.
func writeProject(dir string, data *remote.CloneData, withEnv bool) error {
	m, err := config.ParseManifest([]byte(data.DappledYML))
	if err != nil {
		return fmt.Errorf("invalid %s from service: %w", config.ManifestFile, err)
	}
	filename := m.Filename()
	if filename == "" {
		return config.Fail("%w", config.ErrNoFilename)
	}

	files := map[string]string{
		config.ManifestFile:     data.DappledYML,
		filepath.Base(filename): data.Notebook,
	}
	if withEnv && data.Env != "" {
		files["environment.yml"] = data.Env
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	return nil
}

// userError marks a malformed identifier as the user's mistake.
func userError(err error) error {
	if errors.Is(err, resolver.ErrInvalidID) {
		return config.Fail("%w", err)
	}
	return err
}

// delegate hands the invocation to the project's container when it asks for
// one. A delegated run ends the invocation with the container's exit status.
func (a *app) delegate(ctx context.Context, req container.Request) error {
	req.Argv = os.Args
	delegated, code, err := a.shim.Delegate(ctx, req)
	if err != nil {
		return err
	}
	if delegated {
		return exitStatus(code)
	}
	return nil
}

// projectDir returns the project to work on: the cached instance of id, or
// the current directory when no id is given. canonical is "" for the latter.
func (a *app) projectDir(ctx context.Context, id string) (dir, canonical string, err error) {
	if id == "" {
		dir, err := os.Getwd()
		return dir, "", err
	}
	return a.publishedProject(ctx, id)
}
