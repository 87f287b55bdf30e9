package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed config.toml.sample
var configTemplate string

const (
	DefaultDatabase          = "repository.db"
	DefaultListen            = "localhost:8080"
	DefaultAggregateType     = "Form"
	DefaultResourceSuperType = "Resource"
	DefaultFormsRoot         = "/Forms"
	DefaultContextWindow     = 8
)

type Config struct {
	StorageDir string       `toml:"storage_dir"`
	Database   string       `toml:"database"`
	Server     ServerConfig `toml:"server"`
	Search     SearchConfig `toml:"search"`
	Log        LogConfig    `toml:"log"`
}

type ServerConfig struct {
	Listen string `toml:"listen"`
	// Gzip and Metrics are pointers so an absent key keeps the default (on).
	Gzip    *bool `toml:"gzip,omitempty"`
	Metrics *bool `toml:"metrics,omitempty"`
}

type SearchConfig struct {
	// AggregateType is the node type quick-search matches roll up to.
	AggregateType string `toml:"aggregate_type"`
	// ResourceSuperType restricts relevance (lucene) queries.
	ResourceSuperType string `toml:"resource_super_type"`
	// FormsRoot is the subtree quick search looks into.
	FormsRoot     string `toml:"forms_root"`
	ContextWindow int    `toml:"context_window"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Pretty bool   `toml:"pretty"`
}

func GetDefaultConfig() (*Config, error) {
	storageDir, err := GetDefaultStorageDir()
	if err != nil {
		return nil, fmt.Errorf("getting default storage directory: %w", err)
	}
	cfg := &Config{StorageDir: storageDir}
	cfg.applyDefaults()
	return cfg, nil
}

func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return GetDefaultConfig()
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes TOML and fills every missing key with its default.
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if config.StorageDir == "" {
		storageDir, err := GetDefaultStorageDir()
		if err != nil {
			return nil, fmt.Errorf("getting default storage directory: %w", err)
		}
		config.StorageDir = storageDir
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Database == "" {
		c.Database = DefaultDatabase
	}
	if c.Server.Listen == "" {
		c.Server.Listen = DefaultListen
	}
	if c.Server.Gzip == nil {
		on := true
		c.Server.Gzip = &on
	}
	if c.Server.Metrics == nil {
		on := true
		c.Server.Metrics = &on
	}
	if c.Search.AggregateType == "" {
		c.Search.AggregateType = DefaultAggregateType
	}
	if c.Search.ResourceSuperType == "" {
		c.Search.ResourceSuperType = DefaultResourceSuperType
	}
	if c.Search.FormsRoot == "" {
		c.Search.FormsRoot = DefaultFormsRoot
	}
	if c.Search.ContextWindow == 0 {
		c.Search.ContextWindow = DefaultContextWindow
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate rejects settings the engine cannot work with.
func (c *Config) Validate() error {
	if c.Search.ContextWindow < 0 {
		return fmt.Errorf("search.context_window must not be negative, got %d", c.Search.ContextWindow)
	}
	if !strings.HasPrefix(c.Search.FormsRoot, "/") {
		return fmt.Errorf("search.forms_root must be an absolute path, got %q", c.Search.FormsRoot)
	}
	return nil
}

// DatabasePath returns the absolute path of the repository database.
func (c *Config) DatabasePath() string {
	if filepath.IsAbs(c.Database) {
		return c.Database
	}
	return filepath.Join(c.StorageDir, c.Database)
}

// GzipEnabled reports whether HTTP responses are compressed.
func (c *Config) GzipEnabled() bool {
	return c.Server.Gzip == nil || *c.Server.Gzip
}

// MetricsEnabled reports whether /metrics is served.
func (c *Config) MetricsEnabled() bool {
	return c.Server.Metrics == nil || *c.Server.Metrics
}

func (c *Config) SaveConfig(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	return os.WriteFile(configPath, data, 0644)
}

func (c *Config) SaveTemplateConfig(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	template, err := c.generateConfigTemplate()
	if err != nil {
		return fmt.Errorf("generating config template: %w", err)
	}
	return os.WriteFile(configPath, []byte(template), 0644)
}

func (c *Config) generateConfigTemplate() (string, error) {
	storageDir := c.StorageDir
	if storageDir == "" {
		var err error
		storageDir, err = GetDefaultStorageDir()
		if err != nil {
			return "", fmt.Errorf("getting default storage directory: %w", err)
		}
	}

	// Replace the placeholder storage_dir with the actual path
	template := strings.Replace(configTemplate, "/home/user/.local/share/formquery", storageDir, 1)
	return template, nil
}

// GetDefaultStorageDir returns the default storage directory for the repository
func GetDefaultStorageDir() (string, error) {
	// Use XDG_DATA_HOME if set, otherwise use ~/.local/share
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting user home directory: %w", err)
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	storageDir := filepath.Join(dataDir, "formquery")

	if err := os.MkdirAll(storageDir, 0755); err != nil {
		return "", fmt.Errorf("creating storage directory %s: %w", storageDir, err)
	}

	return storageDir, nil
}

// GetConfigDir returns the configuration directory for formquery
func GetConfigDir() (string, error) {
	// Use XDG_CONFIG_HOME if set, otherwise use ~/.config
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting user home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	dir := filepath.Join(configDir, "formquery")

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	return dir, nil
}

// GetDefaultConfigPath returns the default configuration file path
func GetDefaultConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.toml"), nil
}
