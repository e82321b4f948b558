// Package fetch downloads the extra files a project declares (a pinned GitHub
// snapshot, plain download URLs) and unpacks archives into the project directory.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"dappled/internal/logger"
)

// downloadFile downloads url into destPath.
func downloadFile(ctx context.Context, client *http.Client, url, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("invalid download URL %s: %w", url, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to GET %s: %w", url, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			logger.Warn("[WARN] Failed to close response body: %v\n", cerr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to GET %s: HTTP status %d", url, resp.StatusCode)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", destPath, err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		return fmt.Errorf("failed to write response to file: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", destPath, err)
	}

	logger.Debug("[DEBUG] Downloaded %s to %s\n", url, destPath)
	return nil
}

// downloadTemp downloads url into a temporary file whose name keeps suffix, so
// the archive format can still be told from it. The caller removes the file.
func downloadTemp(ctx context.Context, client *http.Client, url, suffix string) (string, error) {
	f, err := os.CreateTemp("", "dappled-*"+suffix)
	if err != nil {
		return "", err
	}
	path := f.Name()
	f.Close()

	if err := downloadFile(ctx, client, url, path); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}
