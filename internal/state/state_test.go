package state

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAliasMap_SaveIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache", "map.txt")
	m := NewAliasMap(path)

	for i := 0; i < 2; i++ {
		if err := m.Save("alice/my-notebook", "pub123"); err != nil {
			t.Fatalf("Save #%d: %v", i+1, err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(string(data), "\n"); got != 1 {
		t.Fatalf("want exactly one line, got %d:\n%s", got, data)
	}
	if string(data) != "alice/my-notebook pub123\n" {
		t.Fatalf("unexpected content %q", data)
	}
}

func TestAliasMap_LookupBothPositions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "map.txt")
	if err := os.WriteFile(path, []byte("my-notebook pub123\n\ngarbage line here\nother pub999\n"), 0644); err != nil {
		t.Fatal(err)
	}
	m := NewAliasMap(path)

	tests := []struct {
		key, want string
		found     bool
	}{
		{"my-notebook", "pub123", true},
		{"pub123", "my-notebook", true},
		{"pub999", "other", true},
		{"nothing", "", false},
	}
	for _, tt := range tests {
		got, found, err := m.Lookup(tt.key)
		if err != nil {
			t.Fatalf("Lookup(%q): %v", tt.key, err)
		}
		if got != tt.want || found != tt.found {
			t.Errorf("Lookup(%q) = %q, %v; want %q, %v", tt.key, got, found, tt.want, tt.found)
		}
	}
}

func TestAliasMap_MissingFile(t *testing.T) {
	m := NewAliasMap(filepath.Join(t.TempDir(), "absent.txt"))
	if _, found, err := m.Lookup("x"); err != nil || found {
		t.Fatalf("missing map should be empty, got found=%v err=%v", found, err)
	}
}
