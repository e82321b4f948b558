package fetch

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"slices"

	"dappled/internal/conda"
	"dappled/internal/config"
	"dappled/internal/logger"
)

// stampFile records, under the project's envs/ directory, the URLs already
// fetched into the project. Cleaning the project forgets them.
const stampFile = "fetched.txt"

// Fetcher provisions project files over HTTP.
type Fetcher struct {
	Client *http.Client
}

// New returns a Fetcher using client, or http.DefaultClient when client is nil.
func New(client *http.Client) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{Client: client}
}

// Provision fetches the project's GitHub snapshot and downloads. Each URL is
// fetched once per environment.
func (f *Fetcher) Provision(ctx context.Context, p *conda.Project) error {
	m := p.Manifest
	stamp := filepath.Join(p.Dir, "envs", stampFile)
	done, err := readStamp(stamp)
	if err != nil {
		return err
	}

	if ref, ok := m.GitHub(); ok {
		u := ref.ArchiveURL()
		if !slices.Contains(done, u) {
			skip := []string{config.ManifestFile, m.Filename(), "environment.yml"}
			if err := f.GitHubSnapshot(ctx, ref, p.Dir, skip); err != nil {
				return err
			}
			if err := appendStamp(stamp, u); err != nil {
				return err
			}
		}
	}

	for _, u := range m.Downloads() {
		if slices.Contains(done, u) {
			continue
		}
		if err := f.Download(ctx, u, p.Dir); err != nil {
			return err
		}
		if err := appendStamp(stamp, u); err != nil {
			return err
		}
	}
	return nil
}

// GitHubSnapshot unpacks the pinned repository snapshot into dir. Files named
// in skip (project files the snapshot must not overwrite) are left alone.
func (f *Fetcher) GitHubSnapshot(ctx context.Context, ref config.GitHubRef, dir string, skip []string) error {
	logger.Info("[INFO] Fetching %s/%s@%s\n", ref.Owner, ref.Repo, ref.SHA)
	archive, err := downloadTemp(ctx, f.Client, ref.ArchiveURL(), ".zip")
	if err != nil {
		return err
	}
	defer os.Remove(archive)

	err = Extract(archive, dir, ExtractOptions{
		StripTopLevel: true,
		Skip:          func(rel string) bool { return slices.Contains(skip, rel) },
	})
	if err != nil {
		return fmt.Errorf("failed to unpack %s: %w", ref.ArchiveURL(), err)
	}
	return nil
}

// Download fetches rawURL into dir. Archives are unpacked; anything else is
// saved under the URL's base name.
func (f *Fetcher) Download(ctx context.Context, rawURL, dir string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return config.Fail("invalid download URL %q: %w", rawURL, err)
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		return config.Fail("download URL %q does not name a file", rawURL)
	}

	logger.Info("[INFO] Downloading %s\n", rawURL)
	if ext := archiveSuffix(name); ext != "" {
		archive, err := downloadTemp(ctx, f.Client, rawURL, ext)
		if err != nil {
			return err
		}
		defer os.Remove(archive)
		if err := Extract(archive, dir, ExtractOptions{}); err != nil {
			return fmt.Errorf("failed to unpack %s: %w", rawURL, err)
		}
		return nil
	}
	return downloadFile(ctx, f.Client, rawURL, filepath.Join(dir, name))
}

func readStamp(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var urls []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			urls = append(urls, line)
		}
	}
	return urls, scanner.Err()
}

func appendStamp(path, u string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(file, u); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
