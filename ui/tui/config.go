package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"supportdesk/ui/api"
	"supportdesk/ui/desk"
)

const defaultAPIURL = "http://localhost:5000"

type Config struct {
	API      APIConfig   `toml:"api" yaml:"api"`
	Poll     PollConfig  `toml:"poll" yaml:"poll"`
	Toast    ToastConfig `toml:"toast" yaml:"toast"`
	StateDir string      `toml:"state_dir" yaml:"state_dir"`
	Log      LogConfig   `toml:"log" yaml:"log"`
}

type APIConfig struct {
	BaseURL string        `toml:"base_url" yaml:"base_url"`
	Timeout time.Duration `toml:"timeout" yaml:"timeout"`
}

type PollConfig struct {
	Interval time.Duration `toml:"interval" yaml:"interval"`
}

type ToastConfig struct {
	Visible time.Duration `toml:"visible" yaml:"visible"`
	Fade    time.Duration `toml:"fade" yaml:"fade"`
}

type LogConfig struct {
	Level string `toml:"level" yaml:"level"`
}

func defaultConfig() Config {
	return Config{
		API: APIConfig{
			BaseURL: defaultAPIURL,
			Timeout: api.DefaultTimeout,
		},
		Poll:     PollConfig{Interval: desk.DefaultPollInterval},
		Toast:    ToastConfig{Visible: desk.DefaultToastVisible, Fade: desk.DefaultToastFade},
		StateDir: ".supportdesk",
		Log:      LogConfig{Level: "info"},
	}
}

// loadConfig resolves the effective configuration: defaults, then the first
// config file found, then the environment (including .env). It returns the
// file actually read, or "" when none was.
func loadConfig(path string) (Config, string, error) {
	cfg := defaultConfig()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, "", fmt.Errorf("load .env: %w", err)
	}

	if path == "" {
		candidates := []string{
			expandHome("~/.config/supportdesk/config.toml"),
			"./supportdesk.toml",
			"./supportdesk.yaml",
		}
		for _, c := range candidates {
			if _, err := os.Stat(c); err == nil {
				path = c
				break
			}
		}
	}

	used := ""
	if path != "" {
		path = expandHome(path)
		if err := decodeConfigFile(path, &cfg); err != nil {
			return cfg, "", err
		}
		used = path
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, used, err
	}
	cfg.StateDir = expandHome(cfg.StateDir)
	return cfg, used, cfg.validate()
}

func decodeConfigFile(path string, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
	default:
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := strings.TrimSpace(os.Getenv("SUPPORTDESK_API_URL")); v != "" {
		c.API.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("SUPPORTDESK_STATE_DIR")); v != "" {
		c.StateDir = v
	}
	if v := strings.TrimSpace(os.Getenv("SUPPORTDESK_LOG_LEVEL")); v != "" {
		c.Log.Level = v
	}
	for name, dst := range map[string]*time.Duration{
		"SUPPORTDESK_POLL_INTERVAL": &c.Poll.Interval,
		"SUPPORTDESK_TIMEOUT":       &c.API.Timeout,
	} {
		v := strings.TrimSpace(os.Getenv(name))
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*dst = d
	}
	return nil
}

func (c Config) validate() error {
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return errors.New("api.base_url must not be empty")
	}
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("poll.interval must be positive, got %s", c.Poll.Interval)
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive, got %s", c.API.Timeout)
	}
	if _, err := parseLogLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

func parseLogLevel(s string) (slog.Level, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return slog.LevelInfo, nil
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: %w", err)
	}
	return lvl, nil
}

func expandHome(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}

func envBool(name string) bool {
	v := strings.TrimSpace(os.Getenv(name))
	return v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes") || strings.EqualFold(v, "on")
}
