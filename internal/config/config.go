// Package config loads the optional .codegraph.yaml of a repository.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileName is looked up in the repository root when no explicit path is
// given.
const FileName = ".codegraph.yaml"

const (
	EnvDBPath   = "CODEGRAPH_DB_PATH"
	EnvWorkers  = "CODEGRAPH_WORKERS"
	EnvLogLevel = "CODEGRAPH_LOG_LEVEL"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Include       []string `yaml:"include"`
	Exclude       []string `yaml:"exclude"`
	Languages     []string `yaml:"languages"`
	Workers       int      `yaml:"workers"`
	MaxFileSize   int64    `yaml:"max_file_size"`
	StrictParse   bool     `yaml:"strict_parse"`
	StrictMembers bool     `yaml:"strict_members"`
	Gitignore     *bool    `yaml:"gitignore"`
	DBPath        string   `yaml:"db_path"`
	LogLevel      string   `yaml:"log_level"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Workers:     runtime.NumCPU(),
		MaxFileSize: 1 << 20,
		DBPath:      filepath.Join(".codegraph", "graph.db"),
		LogLevel:    "info",
	}
}

// Load reads path, or root/.codegraph.yaml when path is empty, on top of the
// defaults and applies environment overrides. A missing default file is not
// an error; a missing explicit file is.
func Load(path, root string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = filepath.Join(root, FileName)
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if cfg.DBPath != "" && !filepath.IsAbs(cfg.DBPath) && root != "" {
		cfg.DBPath = filepath.Join(root, cfg.DBPath)
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvDBPath); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv(EnvWorkers); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalidConfig, EnvWorkers, v)
		}
		c.Workers = n
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	return nil
}

// Validate checks value ranges. known lists the language names the binary
// supports; when empty, language names are not checked.
func (c Config) Validate(known ...string) error {
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must not be negative, got %d", ErrInvalidConfig, c.Workers)
	}
	if c.MaxFileSize < 0 {
		return fmt.Errorf("%w: max_file_size must not be negative, got %d", ErrInvalidConfig, c.MaxFileSize)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if len(known) > 0 {
		set := make(map[string]bool, len(known))
		for _, k := range known {
			set[k] = true
		}
		for _, l := range c.Languages {
			if !set[l] {
				return fmt.Errorf("%w: unknown language %q", ErrInvalidConfig, l)
			}
		}
	}
	return nil
}

// UseGitignore reports whether .gitignore rules apply. Defaults to true.
func (c Config) UseGitignore() bool {
	return c.Gitignore == nil || *c.Gitignore
}

// ParseLevel maps a level name to a slog level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, s)
}
