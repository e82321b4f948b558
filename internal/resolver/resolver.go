// Package resolver maps user-supplied notebook identifiers to cached project
// directories under <cache-root>/nb. It only reads: fetching a missing
// notebook is the caller's job.
//
// Accepted identifiers:
//
//	pub123              a publish id
//	alice/Pub123        owner-qualified publish id (rest starts with a non-lowercase char)
//	alice/my-notebook   owner-qualified short alias, looked up in the alias map
package resolver

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Masterminds/semver/v3"

	"dappled/internal/logger"
)

// ErrInvalidID is returned for an owner-qualified identifier with nothing after the slash.
var ErrInvalidID = errors.New("invalid ID")

// versionToken separates the publish id from the version in a cache directory name.
const versionToken = ".v"

// Aliases looks up either half of an alias pair.
type Aliases interface {
	Lookup(key string) (string, bool, error)
}

// Resolver finds cached project instances.
type Resolver struct {
	// NotebookDir holds one <publish_id>.v<version> directory per cached instance.
	NotebookDir string
	Aliases     Aliases
}

// New returns a Resolver over notebookDir using aliases for short names.
func New(notebookDir string, aliases Aliases) *Resolver {
	return &Resolver{NotebookDir: notebookDir, Aliases: aliases}
}

// PublishID determines the publish id an identifier refers to.
// It returns "" when a short alias is not in the alias map.
func (r *Resolver) PublishID(id string) (string, error) {
	owner, rest, qualified := strings.Cut(id, "/")
	if !qualified {
		return id, nil
	}
	if rest == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	if rest[0] < 'a' || rest[0] > 'z' {
		return rest, nil
	}

	// Short alias. The map records what users typed (owner/alias) as well as
	// bare aliases, so try both spellings.
	for _, key := range []string{id, rest} {
		publishID, found, err := r.Aliases.Lookup(key)
		if err != nil {
			return "", err
		}
		if found {
			logger.Debug("[DEBUG] Alias %s (owner %s) -> %s\n", key, owner, publishID)
			return publishID, nil
		}
	}
	return "", nil
}

// Resolve returns the directory of the highest cached version of id, or "" if
// nothing is cached for it.
func (r *Resolver) Resolve(id string) (string, error) {
	publishID, err := r.PublishID(id)
	if err != nil {
		return "", err
	}
	if publishID == "" {
		return "", nil
	}

	pattern := filepath.Join(r.NotebookDir, globEscape(publishID)+versionToken+"*")
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return "", fmt.Errorf("failed to glob %s: %w", pattern, err)
	}
	logger.Debug("[DEBUG] Cache matches for %s: %v\n", publishID, paths)

	type candidate struct {
		path    string
		version *semver.Version
	}
	var candidates []candidate
	for _, p := range paths {
		v, ok := Version(p)
		if !ok {
			logger.Debug("[DEBUG] Ignoring %s: no numeric version suffix\n", p)
			continue
		}
		candidates = append(candidates, candidate{p, v})
	}
	if len(candidates) == 0 {
		return "", nil
	}

	// Stable so that equal versions keep glob (lexical) order.
	slices.SortStableFunc(candidates, func(a, b candidate) int {
		return b.version.Compare(a.version)
	})
	return candidates[0].path, nil
}

// Version parses the numeric suffix after the last ".v" of a cache directory name.
func Version(path string) (*semver.Version, bool) {
	base := filepath.Base(path)
	i := strings.LastIndex(base, versionToken)
	if i < 0 {
		return nil, false
	}
	suffix := base[i+len(versionToken):]
	if suffix == "" || strings.Trim(suffix, "0123456789") != "" {
		return nil, false
	}
	v, err := semver.NewVersion(suffix)
	if err != nil {
		return nil, false
	}
	return v, true
}

// CanonicalID is the cache directory name for a published version:
// <publish_id>.v<version>. The service may send the version with or without
// its "v".
func CanonicalID(publishID, version string) string {
	return publishID + versionToken + strings.TrimPrefix(version, "v")
}

// globEscape quotes glob metacharacters that could appear in user input.
func globEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
