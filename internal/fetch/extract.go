package fetch

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bodgit/sevenzip"
	"github.com/xi2/xz"

	"dappled/internal/logger"
)

// archiveSuffixes are the extensions Extract understands, longest first.
var archiveSuffixes = []string{".tar.gz", ".tar.bz2", ".tar.xz", ".tgz", ".tar", ".zip", ".7z"}

// archiveSuffix returns the archive extension of name, or "" if it is not an archive.
func archiveSuffix(name string) string {
	lower := strings.ToLower(name)
	for _, ext := range archiveSuffixes {
		if strings.HasSuffix(lower, ext) {
			return ext
		}
	}
	return ""
}

// ExtractOptions controls how entries land in the destination.
type ExtractOptions struct {
	// StripTopLevel drops the first path component of every entry, as in
	// GitHub snapshots where everything sits under <repo>-<sha>/.
	StripTopLevel bool
	// Skip is consulted with each entry's destination-relative slash path.
	Skip func(rel string) bool
}

// Extract unpacks the archive at src into dest. The format is taken from the
// suffix of src. Entries that would land outside dest are rejected.
func Extract(src, dest string, opts ExtractOptions) error {
	switch archiveSuffix(src) {
	case ".zip":
		logger.Debug("[DEBUG] compression type is zip\n")
		return extractZip(src, dest, opts)
	case ".7z":
		logger.Debug("[DEBUG] compression type is .7z\n")
		return extract7z(src, dest, opts)
	case ".tar", ".tar.gz", ".tgz", ".tar.bz2", ".tar.xz":
		logger.Debug("[DEBUG] compression type is .tar.*\n")
		return extractTarArchive(src, dest, opts)
	default:
		return fmt.Errorf("unsupported archive format: %s", src)
	}
}

// target maps an archive entry name to its destination path. ok is false for
// entries that are skipped.
func target(dest, name string, opts ExtractOptions) (string, bool, error) {
	rel := path.Clean(strings.ReplaceAll(name, "\\", "/"))
	if opts.StripTopLevel {
		_, rest, found := strings.Cut(rel, "/")
		if !found {
			return "", false, nil
		}
		rel = rest
	}
	if rel == "." || rel == "" {
		return "", false, nil
	}
	if rel == ".." || strings.HasPrefix(rel, "../") || path.IsAbs(rel) {
		return "", false, fmt.Errorf("archive entry %q escapes the destination", name)
	}
	if opts.Skip != nil && opts.Skip(rel) {
		logger.Debug("[DEBUG] Skipping archive entry %s\n", rel)
		return "", false, nil
	}
	return filepath.Join(dest, filepath.FromSlash(rel)), true, nil
}

// writeFile copies r to path, creating parent directories.
func writeFile(path string, r io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if mode.Perm() == 0 {
		mode = 0644
	}
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// extractTarArchive handles tar and compressed tar variants
func extractTarArchive(src, dest string, opts ExtractOptions) error {
	logger.Debug("[DEBUG] uncompressing %s to %s\n", src, dest)
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	var reader io.Reader = f
	switch archiveSuffix(src) {
	case ".tar.gz", ".tgz":
		gr, err := gzip.NewReader(f)
		if err != nil {
			return err
		}
		defer gr.Close()
		reader = gr
	case ".tar.bz2":
		reader = bzip2.NewReader(f)
	case ".tar.xz":
		xzr, err := xz.NewReader(f, 0)
		if err != nil {
			return err
		}
		reader = xzr
	}

	tr := tar.NewReader(reader)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		dst, ok, err := target(dest, hdr.Name, opts)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(dst, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeFile(dst, tr, hdr.FileInfo().Mode()); err != nil {
				return err
			}
		}
	}
}

// extractZip extracts a .zip archive
func extractZip(src, dest string, opts ExtractOptions) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		dst, ok, err := target(dest, f.Name, opts)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(dst, 0755); err != nil {
				return err
			}
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		err = writeFile(dst, rc, f.Mode())
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// extract7z handles .7z extraction using the sevenzip library
func extract7z(src, dest string, opts ExtractOptions) error {
	r, err := sevenzip.OpenReader(src)
	if err != nil {
		return fmt.Errorf("failed to open 7z archive: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		dst, ok, err := target(dest, f.Name, opts)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(dst, 0755); err != nil {
				return err
			}
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		err = writeFile(dst, rc, f.Mode())
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}
