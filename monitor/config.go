package monitor

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/laywatch/notify"
)

// defaultSourcePath points at the external application's settings file.
// Environment variables are expanded at load time.
const defaultSourcePath = "${APPDATA}/Designer/settings.xml"

// Config is the top-level laywatch configuration.
type Config struct {
	Source   SourceConfig       `yaml:"source"`
	Snapshot SnapshotConfig     `yaml:"snapshot"`
	Trigger  TriggerConfig      `yaml:"trigger"`
	SMTP     notify.SMTPConfig  `yaml:"smtp"`
	Webhook  WebhookConfig      `yaml:"webhook"`
	History  HistoryConfig      `yaml:"history"`
	API      APIConfig          `yaml:"api"`
}

// SourceConfig identifies the file and collection to watch.
type SourceConfig struct {
	// Path to the settings file. ${VAR} references are expanded.
	Path string `yaml:"path"`
	// Collection is the name of the layout collection inside the file.
	Collection string `yaml:"collection"`
}

// SnapshotConfig controls where snapshots are written.
type SnapshotConfig struct {
	Dir string `yaml:"dir"`
}

// TriggerConfig controls when cycles run.
type TriggerConfig struct {
	// Interval between scheduled cycles. Default: 5 minutes.
	Interval time.Duration `yaml:"interval"`
	// WatchFile also triggers a cycle when the source file changes on disk.
	WatchFile bool `yaml:"watch_file"`
	// Debounce is the quiet period after a file event before the cycle
	// fires. Default: 2 seconds.
	Debounce time.Duration `yaml:"debounce"`
}

// WebhookConfig enables the webhook sink when URL is set.
type WebhookConfig struct {
	URL string `yaml:"url"`
}

// HistoryConfig enables the SQLite cycle log when Path is set.
type HistoryConfig struct {
	Path string `yaml:"path"`
}

// APIConfig enables the status HTTP surface when Addr is set.
type APIConfig struct {
	Addr string `yaml:"addr"`
}

// LoadFile reads a YAML configuration file, expands environment variables
// in paths, and applies defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("monitor: read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("monitor: parse config: %w", err)
	}

	cfg.defaults()
	return &cfg, nil
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.defaults()
	return cfg
}

func (c *Config) defaults() {
	if c.Source.Path == "" {
		c.Source.Path = defaultSourcePath
	}
	if c.Source.Collection == "" {
		c.Source.Collection = "Layouts"
	}
	if c.Snapshot.Dir == "" {
		c.Snapshot.Dir = "snapshots"
	}
	if c.Trigger.Interval <= 0 {
		c.Trigger.Interval = 5 * time.Minute
	}
	if c.Trigger.Debounce <= 0 {
		c.Trigger.Debounce = 2 * time.Second
	}

	c.Source.Path = os.ExpandEnv(c.Source.Path)
	c.Snapshot.Dir = os.ExpandEnv(c.Snapshot.Dir)
	c.History.Path = os.ExpandEnv(c.History.Path)
}
