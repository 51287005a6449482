package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultAPIBase is where the CLI looks for the server when nothing is
// configured.
const DefaultAPIBase = "http://localhost:8080/api"

// Client is the questlog CLI's configuration.
type Client struct {
	APIBase      string        `yaml:"api_base"`
	StatePath    string        `yaml:"state_path"`
	LoginTimeout time.Duration `yaml:"login_timeout"`
	OpenBrowser  *bool         `yaml:"open_browser"`
}

// ShouldOpenBrowser reports whether login should launch a browser.
func (c *Client) ShouldOpenBrowser() bool {
	return c.OpenBrowser == nil || *c.OpenBrowser
}

// DefaultClientDir is the questlog directory under the user config dir,
// e.g. ~/.config/questlog on Linux.
func DefaultClientDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: locating user config dir: %w", err)
	}
	return filepath.Join(dir, "questlog"), nil
}

// LoadClient reads the YAML file at path. A missing file is not an error:
// the defaults apply. Environment variables override the file:
//
//	QUESTLOG_API_BASE    → api_base
//	QUESTLOG_STATE_PATH  → state_path
func LoadClient(path string) (*Client, error) {
	var cfg Client

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if v := os.Getenv("QUESTLOG_API_BASE"); v != "" {
		cfg.APIBase = v
	}
	if v := os.Getenv("QUESTLOG_STATE_PATH"); v != "" {
		cfg.StatePath = v
	}

	if cfg.APIBase == "" {
		cfg.APIBase = DefaultAPIBase
	}
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")
	if cfg.StatePath == "" {
		cfg.StatePath = filepath.Join(filepath.Dir(path), "state.json")
	}
	if cfg.LoginTimeout <= 0 {
		cfg.LoginTimeout = 5 * time.Minute
	}
	return &cfg, nil
}
