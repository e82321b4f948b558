package conda

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestSpecName(t *testing.T) {
	tests := map[string]string{
		"python=3":           "python",
		"numpy>=1.10":        "numpy",
		"r-base=3.3.1=1":     "r-base",
		"conda-forge::numpy": "numpy",
		"dappled-core":       "dappled-core",
		"scipy 0.18":         "scipy",
	}
	for in, want := range tests {
		if got := SpecName(in); got != want {
			t.Errorf("SpecName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParsePipList(t *testing.T) {
	out := "appdirs (1.4.0)\r\nFlask_Cors (3.0.2)\r\n  six (1.10.0)\r\nnot a package line\n"
	want := map[string]string{"appdirs": "1.4.0", "flask-cors": "3.0.2", "six": "1.10.0"}
	if got := ParsePipList(out); !reflect.DeepEqual(got, want) {
		t.Fatalf("want %v, got %v", want, got)
	}
}

func TestInstalledPackages(t *testing.T) {
	prefix := t.TempDir()
	meta := filepath.Join(prefix, "conda-meta")
	if err := os.MkdirAll(meta, 0755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		"numpy-1.11.1-py35_0.json": `{"name": "numpy"}`,
		"r-base-3.3.1-1.json":      `not json`,
		"history":                  "",
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(meta, name), []byte(data), 0644); err != nil {
			t.Fatal(err)
		}
	}
	got, err := InstalledPackages(prefix)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]bool{"numpy": true, "r-base": true}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("want %v, got %v", want, got)
	}
	if !EnvironmentExists(prefix) || EnvironmentExists(filepath.Join(prefix, "nope")) {
		t.Fatal("EnvironmentExists mismatch")
	}
}

func TestLoadProject(t *testing.T) {
	dir := t.TempDir()
	manifest := "filename: nb.ipynb\npackages:\n  - numpy\nenv_specs:\n  default:\n    packages: [scipy, numpy]\n"
	if err := os.WriteFile(filepath.Join(dir, "dappled.yml"), []byte(manifest), 0644); err != nil {
		t.Fatal(err)
	}
	p, err := LoadProject(dir)
	if err != nil {
		t.Fatal(err)
	}
	if p.SynthesizedEnvSpec {
		t.Error("env spec was declared, not synthesized")
	}
	if want := []string{"numpy", "scipy"}; !reflect.DeepEqual(p.EnvSpec.Packages, want) {
		t.Errorf("packages: want %v, got %v", want, p.EnvSpec.Packages)
	}
	if want := []string{"jupyter", "notebook", "nb.ipynb"}; !reflect.DeepEqual(p.Commands[NotebookCommand], want) {
		t.Errorf("notebook command: got %v", p.Commands[NotebookCommand])
	}
	if _, ok := p.Commands[RunCommand]; !ok {
		t.Error("run command not injected")
	}
	if p.Prefix() != filepath.Join(dir, "envs", "default") {
		t.Errorf("prefix: got %s", p.Prefix())
	}
}
