// Package container re-runs a dappled command inside the container image a
// project asks for, using the udocker runtime.
package container

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"slices"
	"strings"

	"dappled/internal/config"
	"dappled/internal/logger"
)

// MarkerEnv is set in the delegated command's environment. Its presence means
// the process already runs inside the container.
const MarkerEnv = "DOCKER_IMAGE"

// udocker limits container names to 30 characters.
const (
	namePrefix    = "dpl:"
	maxNameSuffix = 26
)

// Runtime runs the container runtime binary.
type Runtime interface {
	// Output runs the runtime and returns its standard output.
	Output(ctx context.Context, args ...string) (string, error)
	// Run runs the runtime attached to the terminal.
	Run(ctx context.Context, args ...string) error
	// Delegate runs the runtime attached to the terminal with env added,
	// handling interrupts interactively, and returns its exit status.
	Delegate(ctx context.Context, env []string, args ...string) (int, error)
}

// Shim decides whether an invocation belongs in a container and hands it over.
type Shim struct {
	Runtime Runtime
	Out     io.Writer
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
	// GOOS defaults to runtime.GOOS.
	GOOS string
}

// Request describes the invocation that may be delegated.
type Request struct {
	// Dir is the project directory: where the manifest is read and where the
	// command runs inside the container.
	Dir string
	// NoDocker is the user's opt-out.
	NoDocker bool
	// Argv is the complete command line to re-run.
	Argv []string
	// ID is the identifier argument as typed, and CanonicalID what it resolved
	// to. Inside the container the canonical form is used.
	ID, CanonicalID string
}

// Delegate runs req inside the project's container when all of these hold:
// not already in a container, no opt-out, and the manifest names an image.
// It reports whether it delegated and, if so, the delegated exit status.
func (s *Shim) Delegate(ctx context.Context, req Request) (bool, int, error) {
	getenv := s.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	if getenv(MarkerEnv) != "" || req.NoDocker {
		return false, 0, nil
	}

	m, err := config.LoadProjectManifest(req.Dir)
	if err != nil {
		return false, 0, err
	}
	image := m.DockerImage()
	if image == "" {
		return false, 0, nil
	}
	fmt.Fprintf(s.Out, "%s specifies docker image %q\n", config.ManifestFile, image)

	goos := s.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	if goos != "linux" {
		return false, 0, config.Fail("Docker/udocker support requires linux\nYou can try rerunning with the --no-docker flag")
	}

	name, err := s.ensureContainer(ctx, image)
	if err != nil {
		return false, 0, err
	}

	dir, err := filepath.Abs(req.Dir)
	if err != nil {
		return false, 0, err
	}
	argv := slices.Clone(req.Argv)
	if req.ID != "" && req.CanonicalID != "" {
		for i, a := range argv {
			if a == req.ID {
				argv[i] = req.CanonicalID
			}
		}
	}
	args := []string{
		"run", "--hostauth", "--hostenv", "--bindhome", "--volume=/run",
		"--user=" + getenv("USER"), "--workdir=" + dir,
		name,
		"bash", "-c", ShellCommand(getenv("PATH"), argv),
	}

	fmt.Fprintln(s.Out, "Launching udocker...")
	code, err := s.Runtime.Delegate(ctx, []string{MarkerEnv + "=" + image}, args...)
	return true, code, err
}

// ensureContainer pulls image if it is not present and creates its container
// if there is none. Containers are never modified once created.
func (s *Shim) ensureContainer(ctx context.Context, image string) (string, error) {
	out, err := s.Runtime.Output(ctx, "images")
	if err != nil {
		return "", fmt.Errorf("failed to list images: %w", err)
	}
	if !slices.Contains(imageNames(out), image) {
		fmt.Fprintln(s.Out, "Pulling docker image...")
		if err := s.Runtime.Run(ctx, "pull", image); err != nil {
			return "", fmt.Errorf("failed to pull %s: %w", image, err)
		}
	}

	name := ContainerName(image)
	out, err = s.Runtime.Output(ctx, "ps")
	if err != nil {
		return "", fmt.Errorf("failed to list containers: %w", err)
	}
	if !slices.Contains(containerNames(out), name) {
		fmt.Fprintln(s.Out, "Creating container...")
		if err := s.Runtime.Run(ctx, "create", "--name="+name, image); err != nil {
			return "", fmt.Errorf("failed to create container %s: %w", name, err)
		}
	}
	logger.Debug("[DEBUG] Using container %s for %s\n", name, image)
	return name, nil
}

// imageNames takes the first column of `udocker images` output, skipping the header.
func imageNames(out string) []string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	var names []string
	for _, line := range lines[1:] {
		if fields := strings.Fields(line); len(fields) > 0 {
			names = append(names, fields[0])
		}
	}
	return names
}

// namesColumn matches the list of names udocker prints for a container, e.g. ['dpl:ubuntu'].
var namesColumn = regexp.MustCompile(`\[([^\]]*)\]`)

// containerNames collects the container names listed by `udocker ps`, skipping the header.
func containerNames(out string) []string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	var names []string
	for _, line := range lines[1:] {
		m := namesColumn.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		for _, n := range strings.Split(m[1], ",") {
			if n = strings.Trim(strings.TrimSpace(n), `'"`); n != "" {
				names = append(names, n)
			}
		}
	}
	return names
}

// ContainerName is the deterministic container name for image.
func ContainerName(image string) string {
	if len(image) > maxNameSuffix {
		image = image[len(image)-maxNameSuffix:]
	}
	return namePrefix + image
}

// ShellCommand renders argv as a bash command line that first sets PATH,
// which udocker does not forward. Arguments containing whitespace are quoted.
func ShellCommand(path string, argv []string) string {
	words := make([]string, 0, len(argv)+1)
	words = append(words, "PATH="+doubleQuote(path))
	for _, a := range argv {
		if strings.ContainsAny(a, " \t\n") {
			a = doubleQuote(a)
		}
		words = append(words, a)
	}
	return strings.Join(words, " ")
}

func doubleQuote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "$", `\$`, "`", "\\`")
	return `"` + r.Replace(s) + `"`
}
