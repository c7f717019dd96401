// Package config loads and validates the YAML configuration file.
// Values of the form ${ENV_VAR} are expanded from the environment before
// decoding, matching the shell-driven deployments this tool runs under.
package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Watsonx   WatsonxConfig   `yaml:"watsonx"`
	Storage   StorageConfig   `yaml:"storage"`
	Migration MigrationConfig `yaml:"migration"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// WatsonxConfig identifies the target lakehouse SQL engine.
type WatsonxConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	EngineID string `yaml:"engine_id"`
	APIKey   string `yaml:"api_key"`
	Catalog  string `yaml:"catalog"`
	Schema   string `yaml:"schema"`
}

// StorageConfig identifies the object-storage bucket backing the tables.
type StorageConfig struct {
	Bucket          string `yaml:"bucket"`
	PathPrefix      string `yaml:"path_prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// MigrationConfig controls run behavior.
type MigrationConfig struct {
	Workers         int    `yaml:"workers"`
	OutputDir       string `yaml:"output_dir"`
	StateDB         string `yaml:"state_db"`
	RejectTruncated bool   `yaml:"reject_truncated"`
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${VAR} references with environment values. Unset
// variables are left as-is so validation can name them.
func expandEnv(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(m []byte) []byte {
		name := envVarPattern.FindSubmatch(m)[1]
		if v, ok := os.LookupEnv(string(name)); ok {
			return []byte(v)
		}
		return m
	})
}

// Load reads, expands, decodes, defaults, and validates the config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(expandEnv(data), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Watsonx.Port == 0 {
		c.Watsonx.Port = 443
	}
	if c.Watsonx.EngineID == "" {
		c.Watsonx.EngineID = "presto-01"
	}
	if c.Watsonx.Catalog == "" {
		c.Watsonx.Catalog = "iceberg_data"
	}
	if c.Watsonx.Schema == "" {
		c.Watsonx.Schema = "archive_data"
	}
	if c.Storage.PathPrefix == "" {
		c.Storage.PathPrefix = "archive_data"
	}
	if c.Migration.Workers <= 0 {
		c.Migration.Workers = 4
	}
	if c.Migration.OutputDir == "" {
		c.Migration.OutputDir = "output"
	}
	if c.Migration.StateDB == "" {
		c.Migration.StateDB = "lakemigrate.db"
	}
}

// validate checks values needed by every command. Remote-only requirements
// are checked by ValidateRemote so parse/ddl work offline.
func (c *Config) validate() error {
	if _, err := parseLevelName(c.Log.Level); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be \"text\" or \"json\", got %q", c.Log.Format)
	}
	if unexpanded := envVarPattern.FindString(c.Watsonx.APIKey); unexpanded != "" {
		return fmt.Errorf("watsonx.api_key references unset environment variable %s", unexpanded)
	}
	if unexpanded := envVarPattern.FindString(c.Storage.SecretAccessKey); unexpanded != "" {
		return fmt.Errorf("storage.secret_access_key references unset environment variable %s", unexpanded)
	}
	return nil
}

// ValidateRemote checks the values required to reach the lakehouse and the
// object store. Called before a non-dry run.
func (c *Config) ValidateRemote() error {
	if c.Watsonx.Host == "" {
		return fmt.Errorf("watsonx.host is required")
	}
	if c.Watsonx.APIKey == "" {
		return fmt.Errorf("watsonx.api_key is required (set WXD_API_KEY)")
	}
	if c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket is required")
	}
	if c.Storage.AccessKeyID == "" || c.Storage.SecretAccessKey == "" {
		return fmt.Errorf("storage credentials are required")
	}
	return nil
}

// parseLevelName mirrors logging.ParseLevel without importing it, keeping
// config free of logging side effects.
func parseLevelName(s string) (string, error) {
	switch s {
	case "debug", "info", "warn", "warning", "error":
		return s, nil
	}
	return "", fmt.Errorf("unknown log.level: %q", s)
}
