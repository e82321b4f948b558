package conda

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
)

// pipListLine matches one "name (version)" row of `pip list --format=legacy`.
var pipListLine = regexp.MustCompile(`(?m)^ *([^ ]+) *\(([^)]+)\)$`)

// InstalledPackages returns the names of the conda packages installed in
// prefix, read from its conda-meta records. A missing prefix has none.
func InstalledPackages(prefix string) (map[string]bool, error) {
	paths, err := filepath.Glob(filepath.Join(prefix, "conda-meta", "*.json"))
	if err != nil {
		return nil, err
	}
	installed := make(map[string]bool, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", p, err)
		}
		var meta struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(data, &meta); err != nil || meta.Name == "" {
			// Fall back to the record's file name: <name>-<version>-<build>.json
			meta.Name = nameFromRecord(filepath.Base(p))
		}
		if meta.Name != "" {
			installed[meta.Name] = true
		}
	}
	return installed, nil
}

func nameFromRecord(file string) string {
	parts := strings.Split(strings.TrimSuffix(file, ".json"), "-")
	if len(parts) < 3 {
		return ""
	}
	return strings.Join(parts[:len(parts)-2], "-")
}

// EnvironmentExists reports whether prefix holds a conda environment.
func EnvironmentExists(prefix string) bool {
	_, err := os.Stat(filepath.Join(prefix, "conda-meta"))
	return err == nil
}

// ParsePipList parses `pip list --format=legacy` output into name -> version.
// Windows line endings are normalized first.
func ParsePipList(out string) map[string]string {
	out = strings.ReplaceAll(out, "\r\n", "\n")
	pkgs := map[string]string{}
	for _, m := range pipListLine.FindAllStringSubmatch(out, -1) {
		pkgs[normalizePip(m[1])] = m[2]
	}
	return pkgs
}

// SpecName returns the package name of a conda specifier such as
// "python=3", "numpy>=1.10", "r-base=3.3.1=1" or "conda-forge::numpy".
func SpecName(spec string) string {
	if i := strings.LastIndex(spec, "::"); i >= 0 {
		spec = spec[i+2:]
	}
	if i := strings.IndexAny(spec, "=<>!~ "); i >= 0 {
		spec = spec[:i]
	}
	return strings.TrimSpace(spec)
}

// pipSpecName returns the normalized distribution name of a pip requirement.
func pipSpecName(spec string) string {
	if i := strings.IndexAny(spec, "=<>!~[; "); i >= 0 {
		spec = spec[:i]
	}
	return normalizePip(strings.TrimSpace(spec))
}

func normalizePip(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), "_", "-")
}

// PrefixPython is the interpreter inside the environment at prefix.
func PrefixPython(prefix string) string {
	if runtime.GOOS == "windows" {
		return filepath.Join(prefix, "python.exe")
	}
	return filepath.Join(prefix, "bin", "python")
}
