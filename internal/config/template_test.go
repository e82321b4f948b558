package config

import (
	"encoding/json"
	"path/filepath"
	"reflect"
	"testing"
)

func TestApplyLanguage_Python(t *testing.T) {
	m, err := ParseManifest([]byte(ManifestTemplate))
	if err != nil {
		t.Fatal(err)
	}
	spec, err := ApplyLanguage(m, "python3")
	if err != nil {
		t.Fatalf("ApplyLanguage: %v", err)
	}
	if spec.Name != "python3" || spec.DisplayName != "Python 3" {
		t.Errorf("kernelspec: got %+v", spec)
	}
	if want := []string{"python=3", "dappled-core"}; !reflect.DeepEqual(m.Packages(), want) {
		t.Errorf("Packages: want %v, got %v", want, m.Packages())
	}
}

func TestApplyLanguage_R(t *testing.T) {
	m, err := ParseManifest([]byte(ManifestTemplate))
	if err != nil {
		t.Fatal(err)
	}
	spec, err := ApplyLanguage(m, "R")
	if err != nil {
		t.Fatalf("ApplyLanguage: %v", err)
	}
	if spec.Name != "ir" {
		t.Errorf("kernelspec name: got %q", spec.Name)
	}
	if got := m.Packages()[0]; got != "r-irkernel" {
		t.Errorf("first package: want r-irkernel, got %q", got)
	}
	if got := m.Channels()[0]; got != "r" {
		t.Errorf("first channel: want r, got %q", got)
	}
}

func TestApplyLanguage_Unknown(t *testing.T) {
	m, _ := ParseManifest([]byte(ManifestTemplate))
	if _, err := ApplyLanguage(m, "cobol"); !IsToolError(err) {
		t.Fatalf("want ToolError, got %v", err)
	}
}

func TestNotebookDocument(t *testing.T) {
	data, err := NotebookDocument(Kernelspec{DisplayName: "Python 2", Language: "python", Name: "python2"})
	if err != nil {
		t.Fatal(err)
	}
	var nb struct {
		Cells    []any `json:"cells"`
		Metadata struct {
			Kernelspec Kernelspec `json:"kernelspec"`
		} `json:"metadata"`
		NBFormat int `json:"nbformat"`
	}
	if err := json.Unmarshal(data, &nb); err != nil {
		t.Fatalf("notebook is not JSON: %v", err)
	}
	if len(nb.Cells) != 1 || nb.NBFormat != 4 || nb.Metadata.Kernelspec.Name != "python2" {
		t.Fatalf("unexpected notebook: %s", data)
	}
}

func TestLoadSettings_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DAPPLED_PATH", dir)
	t.Setenv("DAPPLED_HOST", "http://localhost:5000/")
	t.Setenv("DAPPLED_PYTHON", "/opt/conda/bin/python")

	s, err := LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if s.Host != "http://localhost:5000" || !s.Insecure {
		t.Errorf("host override: got %q insecure=%v", s.Host, s.Insecure)
	}
	if s.CacheDir != dir {
		t.Errorf("CacheDir: want %q, got %q", dir, s.CacheDir)
	}
	if s.Python != "/opt/conda/bin/python" || s.Udocker != "udocker.py" {
		t.Errorf("python/udocker: got %q %q", s.Python, s.Udocker)
	}
	if s.NotebookDir() != filepath.Join(dir, "nb") || s.MapFile() != filepath.Join(dir, "map.txt") {
		t.Errorf("paths: got %q %q", s.NotebookDir(), s.MapFile())
	}
}
