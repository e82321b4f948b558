package fetch

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
	"testing"

	"dappled/internal/conda"
)

func zipBytes(t *testing.T, files map[string]string, order []string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range order {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(files[name])); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func tarGzBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	for name, body := range files {
		hdr := &tar.Header{Name: name, Mode: 0644, Size: int64(len(body)), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestExtract_GitHubSnapshotLayout(t *testing.T) {
	files := map[string]string{
		"repo-abc123/":            "",
		"repo-abc123/dappled.yml": "name: from-github\n",
		"repo-abc123/nb.ipynb":    "{}",
		"repo-abc123/data/a.csv":  "1,2\n",
		"repo-abc123/README.md":   "hello",
	}
	order := []string{"repo-abc123/", "repo-abc123/dappled.yml", "repo-abc123/nb.ipynb", "repo-abc123/data/a.csv", "repo-abc123/README.md"}
	src := filepath.Join(t.TempDir(), "snapshot.zip")
	if err := os.WriteFile(src, zipBytes(t, files, order), 0644); err != nil {
		t.Fatal(err)
	}

	dest := t.TempDir()
	skip := []string{"dappled.yml", "nb.ipynb", "environment.yml"}
	err := Extract(src, dest, ExtractOptions{
		StripTopLevel: true,
		Skip:          func(rel string) bool { return slices.Contains(skip, rel) },
	})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if got := readFile(t, filepath.Join(dest, "data", "a.csv")); got != "1,2\n" {
		t.Errorf("data/a.csv: got %q", got)
	}
	if got := readFile(t, filepath.Join(dest, "README.md")); got != "hello" {
		t.Errorf("README.md: got %q", got)
	}
	for _, name := range []string{"dappled.yml", "nb.ipynb", "repo-abc123"} {
		if _, err := os.Stat(filepath.Join(dest, name)); !os.IsNotExist(err) {
			t.Errorf("%s should not have been extracted", name)
		}
	}
}

func TestExtract_RejectsEscapingEntries(t *testing.T) {
	src := filepath.Join(t.TempDir(), "evil.zip")
	data := zipBytes(t, map[string]string{"../evil.txt": "x"}, []string{"../evil.txt"})
	if err := os.WriteFile(src, data, 0644); err != nil {
		t.Fatal(err)
	}
	if err := Extract(src, t.TempDir(), ExtractOptions{}); err == nil {
		t.Fatal("want error for entry outside destination")
	}
}

func TestExtract_TarGz(t *testing.T) {
	src := filepath.Join(t.TempDir(), "data.tgz")
	if err := os.WriteFile(src, tarGzBytes(t, map[string]string{"sub/x.txt": "tar"}), 0644); err != nil {
		t.Fatal(err)
	}
	dest := t.TempDir()
	if err := Extract(src, dest, ExtractOptions{}); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got := readFile(t, filepath.Join(dest, "sub", "x.txt")); got != "tar" {
		t.Fatalf("got %q", got)
	}
}

func TestExtract_Unsupported(t *testing.T) {
	if err := Extract("file.rar", t.TempDir(), ExtractOptions{}); err == nil {
		t.Fatal("want unsupported format error")
	}
}

func TestProvision_DownloadsOnce(t *testing.T) {
	var hits atomic.Int32
	archive := tarGzBytes(t, map[string]string{"model/weights.bin": "w"})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/files/data.txt":
			w.Write([]byte("plain"))
		case "/files/model.tar.gz":
			w.Write(archive)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	manifest := "packages: []\ndownloads:\n  - " + srv.URL + "/files/data.txt\n  - " + srv.URL + "/files/model.tar.gz\n"
	if err := os.WriteFile(filepath.Join(dir, "dappled.yml"), []byte(manifest), 0644); err != nil {
		t.Fatal(err)
	}
	p, err := conda.LoadProject(dir)
	if err != nil {
		t.Fatal(err)
	}

	f := New(srv.Client())
	for i := 0; i < 2; i++ {
		if err := f.Provision(context.Background(), p); err != nil {
			t.Fatalf("Provision #%d: %v", i+1, err)
		}
	}
	if n := hits.Load(); n != 2 {
		t.Fatalf("want each URL fetched once, got %d requests", n)
	}
	if got := readFile(t, filepath.Join(dir, "data.txt")); got != "plain" {
		t.Errorf("data.txt: got %q", got)
	}
	if got := readFile(t, filepath.Join(dir, "model", "weights.bin")); got != "w" {
		t.Errorf("weights.bin: got %q", got)
	}
	if stamp := readFile(t, filepath.Join(dir, "envs", stampFile)); strings.Count(stamp, "\n") != 2 {
		t.Errorf("stamp: got %q", stamp)
	}
}

func TestDownload_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	err := New(srv.Client()).Download(context.Background(), srv.URL+"/missing.csv", t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("want HTTP 404 error, got %v", err)
	}
}
