package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the tool's settings. Every field has a working default; a
// config file only needs the values it wants to change.
type Config struct {
	// Topology cache file and its freshness window.
	CachePath       string `yaml:"cache_path,omitempty"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds,omitempty"`

	// Directory for blink job marker files.
	RunDir string `yaml:"run_dir,omitempty"`

	// Inventory history database. Empty string keeps the default; "off"
	// disables history entirely.
	DBPath string `yaml:"db_path,omitempty"`

	// Per-call bounds for the external tools.
	ToolTimeoutSeconds   int `yaml:"tool_timeout_seconds,omitempty"`
	LocateTimeoutSeconds int `yaml:"locate_timeout_seconds,omitempty"`

	// Read/idle phase length of the AHCI blink loop.
	BlinkCycleSeconds int `yaml:"blink_cycle_seconds,omitempty"`

	// Explicit adapter tool list, overriding PATH detection.
	AdapterTools []string `yaml:"adapter_tools,omitempty"`
}

var defaultConfig = Config{
	CachePath:            "/var/cache/ledloc/topology.json",
	CacheTTLSeconds:      300,
	RunDir:               "/run/ledloc",
	DBPath:               "/var/lib/ledloc/inventory.db",
	ToolTimeoutSeconds:   5,
	LocateTimeoutSeconds: 5,
	BlinkCycleSeconds:    2,
}

// Load reads the config from path, or from the first default location that
// exists. A missing file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	if path == "" {
		candidates := []string{
			"/etc/ledloc/config.yaml",
			filepath.Join(os.Getenv("HOME"), ".config/ledloc/config.yaml"),
			"config.yaml",
		}
		for _, c := range candidates {
			if _, err := os.Stat(c); err == nil {
				path = c
				break
			}
		}
	}

	cfg := defaultConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, err
			}
		}
	}

	// Backfill anything the file zeroed out or omitted.
	if cfg.CachePath == "" {
		cfg.CachePath = defaultConfig.CachePath
	}
	if cfg.CacheTTLSeconds <= 0 {
		cfg.CacheTTLSeconds = defaultConfig.CacheTTLSeconds
	}
	if cfg.RunDir == "" {
		cfg.RunDir = defaultConfig.RunDir
	}
	if cfg.DBPath == "" {
		cfg.DBPath = defaultConfig.DBPath
	}
	if cfg.ToolTimeoutSeconds <= 0 {
		cfg.ToolTimeoutSeconds = defaultConfig.ToolTimeoutSeconds
	}
	if cfg.LocateTimeoutSeconds <= 0 {
		cfg.LocateTimeoutSeconds = defaultConfig.LocateTimeoutSeconds
	}
	if cfg.BlinkCycleSeconds <= 0 {
		cfg.BlinkCycleSeconds = defaultConfig.BlinkCycleSeconds
	}

	return &cfg, nil
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

func (c *Config) ToolTimeout() time.Duration {
	return time.Duration(c.ToolTimeoutSeconds) * time.Second
}

func (c *Config) LocateTimeout() time.Duration {
	return time.Duration(c.LocateTimeoutSeconds) * time.Second
}

func (c *Config) BlinkCycle() time.Duration {
	return time.Duration(c.BlinkCycleSeconds) * time.Second
}

// HistoryEnabled reports whether the inventory history db should be opened.
func (c *Config) HistoryEnabled() bool {
	return c.DBPath != "off"
}
