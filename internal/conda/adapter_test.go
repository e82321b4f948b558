package conda

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"
)

type call struct {
	name string
	args []string
}

type fakeInvoker struct {
	calls     []call
	condaErr  error
	outputs   map[string]string
	outputErr error
}

func (f *fakeInvoker) Conda(_ context.Context, _ []string, args ...string) ([]string, error) {
	f.calls = append(f.calls, call{"conda", args})
	return nil, f.condaErr
}

func (f *fakeInvoker) CondaOutput(_ context.Context, _ []string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, call{"conda", args})
	return []byte(f.outputs[args[0]+" "+args[1]]), f.condaErr
}

func (f *fakeInvoker) Output(_ context.Context, _ []string, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, call{name, args})
	if f.outputErr != nil {
		return nil, f.outputErr
	}
	return []byte(f.outputs[strings.Join(args, " ")]), nil
}

func writeProject(t *testing.T, manifest string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "dappled.yml"), []byte(manifest), 0644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func installPackages(t *testing.T, prefix string, names ...string) {
	t.Helper()
	meta := filepath.Join(prefix, "conda-meta")
	if err := os.MkdirAll(meta, 0755); err != nil {
		t.Fatal(err)
	}
	for _, n := range names {
		record := filepath.Join(meta, n+"-1.0-0.json")
		if err := os.WriteFile(record, []byte(`{"name": "`+n+`"}`), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestPrepare_InstallsOnlyMissing(t *testing.T) {
	dir := writeProject(t, "packages:\n  - python=3\n  - numpy\n")
	p, err := LoadProject(dir)
	if err != nil {
		t.Fatalf("LoadProject: %v", err)
	}
	installPackages(t, p.Prefix(), "python")

	fake := &fakeInvoker{}
	ok, err := (&Adapter{Invoker: fake}).Prepare(context.Background(), p)
	if err != nil || !ok {
		t.Fatalf("Prepare: ok=%v err=%v", ok, err)
	}
	if len(fake.calls) != 1 {
		t.Fatalf("want one package-manager call, got %+v", fake.calls)
	}
	args := fake.calls[0].args
	if args[0] != "install" {
		t.Fatalf("want incremental install, got %v", args)
	}
	if got := args[len(args)-1]; got != "numpy" || strings.Contains(strings.Join(args, " "), "python=3") {
		t.Fatalf("want exactly numpy requested, got %v", args)
	}
}

func TestPrepare_CreatesMissingEnvironment(t *testing.T) {
	dir := writeProject(t, "packages:\n  - python=2\n  - numpy\nchannels:\n  - r\n")
	p, err := LoadProject(dir)
	if err != nil {
		t.Fatal(err)
	}
	fake := &fakeInvoker{}
	if ok, err := (&Adapter{Invoker: fake}).Prepare(context.Background(), p); err != nil || !ok {
		t.Fatalf("Prepare: ok=%v err=%v", ok, err)
	}
	want := []string{"create", "--yes", "--quiet", "--prefix", p.Prefix(), "--channel", "r", "python=2", "numpy"}
	if !reflect.DeepEqual(fake.calls[0].args, want) {
		t.Fatalf("want %v, got %v", want, fake.calls[0].args)
	}
}

func TestPrepare_UpToDate(t *testing.T) {
	dir := writeProject(t, "packages:\n  - numpy>=1.10\n")
	p, _ := LoadProject(dir)
	installPackages(t, p.Prefix(), "numpy")

	fake := &fakeInvoker{}
	if ok, err := (&Adapter{Invoker: fake}).Prepare(context.Background(), p); err != nil || !ok {
		t.Fatalf("Prepare: ok=%v err=%v", ok, err)
	}
	if len(fake.calls) != 0 {
		t.Fatalf("want no calls, got %+v", fake.calls)
	}
}

func TestPrepare_InstallFailure(t *testing.T) {
	dir := writeProject(t, "packages:\n  - scipy\n")
	p, _ := LoadProject(dir)
	installPackages(t, p.Prefix(), "python")

	fake := &fakeInvoker{condaErr: &CondaError{Args: []string{"python", "-u", "-m", "conda"}, ExitCode: 1, Output: "PackageNotFoundError"}}
	_, err := (&Adapter{Invoker: fake}).Prepare(context.Background(), p)
	if !errors.Is(err, ErrInstallMissing) {
		t.Fatalf("want ErrInstallMissing, got %v", err)
	}
	var ce *CondaError
	if !errors.As(err, &ce) || !strings.Contains(err.Error(), "PackageNotFoundError") {
		t.Fatalf("want CondaError with output, got %v", err)
	}
}

func TestPrepare_Problems(t *testing.T) {
	dir := writeProject(t, "filename: missing.ipynb\npackages: numpy\n")
	p, _ := LoadProject(dir)
	fake := &fakeInvoker{}
	ok, err := (&Adapter{Invoker: fake}).Prepare(context.Background(), p)
	if err != nil || ok {
		t.Fatalf("want soft failure, got ok=%v err=%v", ok, err)
	}
	if len(p.Problems()) != 2 || len(fake.calls) != 0 {
		t.Fatalf("problems %v, calls %+v", p.Problems(), fake.calls)
	}
}

func TestPrepare_PipPackages(t *testing.T) {
	dir := writeProject(t, "packages:\n  - python\n  - pip:\n    - requests==2.0\n    - Flask_Cors\n")
	p, _ := LoadProject(dir)
	installPackages(t, p.Prefix(), "python")

	fake := &fakeInvoker{outputs: map[string]string{
		"-m pip list --format=legacy": "flask-cors (3.0.2)\r\npip (9.0.1)\r\n",
	}}
	if ok, err := (&Adapter{Invoker: fake}).Prepare(context.Background(), p); err != nil || !ok {
		t.Fatalf("Prepare: ok=%v err=%v", ok, err)
	}
	last := fake.calls[len(fake.calls)-1]
	want := []string{"-m", "pip", "install", "requests==2.0"}
	if last.name != PrefixPython(p.Prefix()) || !reflect.DeepEqual(last.args, want) {
		t.Fatalf("want pip install of requests only, got %+v", last)
	}
}

func TestCreateSpecs(t *testing.T) {
	if got := createSpecs([]string{"python=3", "numpy"}); !reflect.DeepEqual(got, []string{"python=3", "numpy"}) {
		t.Errorf("pinned python: got %v", got)
	}
	if got := createSpecs([]string{"numpy"}); !reflect.DeepEqual(got, []string{"python", "numpy"}) {
		t.Errorf("unpinned python: got %v", got)
	}
}

func TestExportEnvironment(t *testing.T) {
	dir := writeProject(t, "packages: []\n")
	p, _ := LoadProject(dir)
	fake := &fakeInvoker{outputs: map[string]string{
		"env export": "name: /tmp/x/envs/default\nchannels:\n- defaults\ndependencies:\n- numpy=1.11.1=py35_0\nprefix: /tmp/x/envs/default\n",
	}}
	out, err := (&Adapter{Invoker: fake}).ExportEnvironment(context.Background(), p)
	if err != nil {
		t.Fatalf("ExportEnvironment: %v", err)
	}
	s := string(out)
	if strings.Contains(s, "prefix:") || !strings.HasPrefix(s, "name: default\n") || !strings.Contains(s, "numpy=1.11.1=py35_0") {
		t.Fatalf("unexpected export:\n%s", s)
	}
}

func TestExportEnvironment_IgnoresWarnings(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script interpreter")
	}
	python := filepath.Join(t.TempDir(), "python")
	script := "#!/bin/sh\n" +
		"echo '==> WARNING: A newer version of conda exists. <==' >&2\n" +
		"printf 'name: /tmp/x/envs/default\\ndependencies:\\n- numpy=1.11.1=py35_0\\nprefix: /tmp/x/envs/default\\n'\n"
	if err := os.WriteFile(python, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}

	p, _ := LoadProject(writeProject(t, "packages: []\n"))
	out, err := New(python, io.Discard).ExportEnvironment(context.Background(), p)
	if err != nil {
		t.Fatalf("ExportEnvironment: %v", err)
	}
	s := string(out)
	if strings.Contains(s, "WARNING") {
		t.Fatalf("want warnings kept out of the export, got:\n%s", s)
	}
	if !strings.HasPrefix(s, "name: default\n") || !strings.Contains(s, "numpy=1.11.1=py35_0") {
		t.Fatalf("want the exported environment, got:\n%s", s)
	}
}
