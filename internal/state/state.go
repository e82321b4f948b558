// Package state persists the alias map: short names and user-typed ids paired
// with the publish ids the service resolved them to. The map is an append-only
// text file under the cache root, one whitespace-separated pair per line.
package state

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dappled/internal/logger"
)

// AliasMap is the alias table stored at Path.
type AliasMap struct {
	Path string
}

// NewAliasMap returns the alias map stored in file path. The file is created lazily by Save.
func NewAliasMap(path string) *AliasMap {
	return &AliasMap{Path: path}
}

// pairs reads every well-formed line of the map. A missing file is an empty map.
func (a *AliasMap) pairs() ([][2]string, error) {
	f, err := os.Open(a.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open alias map %s: %w", a.Path, err)
	}
	defer f.Close()

	var out [][2]string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 {
			// Skip blank or hand-damaged lines rather than failing every lookup
			if len(fields) != 0 {
				logger.Debug("[DEBUG] Skipping malformed alias map line: %q\n", scanner.Text())
			}
			continue
		}
		out = append(out, [2]string{fields[0], fields[1]})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read alias map %s: %w", a.Path, err)
	}
	return out, nil
}

// Save appends the pair (alias, id) unless that exact pair is already recorded.
func (a *AliasMap) Save(alias, id string) error {
	pairs, err := a.pairs()
	if err != nil {
		return err
	}
	for _, p := range pairs {
		if p[0] == alias && p[1] == id {
			logger.Debug("[DEBUG] Alias %s -> %s already recorded\n", alias, id)
			return nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(a.Path), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(a.Path), err)
	}
	f, err := os.OpenFile(a.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open alias map %s for appending: %w", a.Path, err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "%s %s\n", alias, id); err != nil {
		return fmt.Errorf("failed to write alias map %s: %w", a.Path, err)
	}
	logger.Debug("[DEBUG] Recorded alias %s -> %s\n", alias, id)
	return nil
}

// Lookup returns the other half of the first pair containing key in either position.
func (a *AliasMap) Lookup(key string) (string, bool, error) {
	pairs, err := a.pairs()
	if err != nil {
		return "", false, err
	}
	for _, p := range pairs {
		switch key {
		case p[0]:
			return p[1], true, nil
		case p[1]:
			return p[0], true, nil
		}
	}
	return "", false, nil
}
