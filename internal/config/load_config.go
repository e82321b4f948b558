package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"

	"dappled/internal/logger"
)

// DefaultHost is the publish/clone service used when no override is configured.
const DefaultHost = "https://dappled.io"

// Settings holds the tool-wide configuration, independent of any project.
type Settings struct {
	// Host is the base URL of the publish/clone service.
	Host string
	// Insecure disables TLS verification; set whenever Host is overridden (development servers).
	Insecure bool
	// CacheDir is the cache root holding cloned notebooks (nb/) and the alias map (map.txt).
	CacheDir string
	// Python is the interpreter that runs the package manager as `<python> -u -m conda`.
	Python string
	// Udocker is the container runtime wrapper binary.
	Udocker string
}

// LoadSettings reads settings from DAPPLED_* environment variables and the optional
// <cache-root>/config.yaml. Environment variables win over the file.
func LoadSettings() (*Settings, error) {
	v := viper.New()
	v.SetEnvPrefix("DAPPLED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cacheDir, err := DefaultCacheDir()
	if err != nil {
		return nil, err
	}
	v.SetDefault("host", DefaultHost)
	v.SetDefault("path", cacheDir)
	v.SetDefault("python", "python")
	v.SetDefault("udocker", "udocker.py")

	v.SetConfigFile(filepath.Join(v.GetString("path"), "config.yaml"))
	if err := v.ReadInConfig(); err != nil {
		// A missing config file is the normal case.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		logger.Debug("[DEBUG] No settings file at %s\n", v.ConfigFileUsed())
	}

	s := &Settings{
		Host:     strings.TrimRight(v.GetString("host"), "/"),
		CacheDir: v.GetString("path"),
		Python:   v.GetString("python"),
		Udocker:  v.GetString("udocker"),
	}
	s.Insecure = s.Host != DefaultHost
	logger.Debug("[DEBUG] Settings: host=%s cache=%s python=%s udocker=%s\n", s.Host, s.CacheDir, s.Python, s.Udocker)
	return s, nil
}

// DefaultCacheDir returns ~/.dappled, or %LOCALAPPDATA%\dappled on Windows.
func DefaultCacheDir() (string, error) {
	if runtime.GOOS == "windows" {
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			return filepath.Join(local, "dappled"), nil
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".dappled"), nil
}

// NotebookDir is where cached project instances live, one <publish_id>.v<version> dir each.
func (s *Settings) NotebookDir() string {
	return filepath.Join(s.CacheDir, "nb")
}

// MapFile is the alias map path.
func (s *Settings) MapFile() string {
	return filepath.Join(s.CacheDir, "map.txt")
}
