package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const fileName = "tasklink.yml"

// DefaultBaseURL points at the hosted backend; overridable per workspace.
const DefaultBaseURL = "https://backeendtasklink.onrender.com"

// Config models tasklink.yml.
type Config struct {
	API struct {
		BaseURL        string `yaml:"base_url"`
		TimeoutSeconds int    `yaml:"timeout_seconds,omitempty"`
	} `yaml:"api"`
	Project struct {
		ID int64 `yaml:"id,omitempty"`
	} `yaml:"project"`
}

// Default returns a config pointing at the hosted backend.
func Default() *Config {
	cfg := &Config{}
	cfg.API.BaseURL = DefaultBaseURL
	cfg.API.TimeoutSeconds = 10
	return cfg
}

// APITimeout returns the request timeout as a duration.
func (c *Config) APITimeout() time.Duration {
	if c.API.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, fileName)
}

// Load reads config from the workspace, falling back to defaults when the
// file does not exist.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate ensures the config meets the required structure.
func (c *Config) Validate() error {
	base := strings.TrimSpace(c.API.BaseURL)
	if base == "" {
		return fmt.Errorf("config.api.base_url is required")
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		return fmt.Errorf("config.api.base_url must be an http(s) URL")
	}
	if c.API.TimeoutSeconds < 0 {
		return fmt.Errorf("config.api.timeout_seconds must not be negative")
	}
	if c.Project.ID < 0 {
		return fmt.Errorf("config.project.id must not be negative")
	}
	return nil
}

// Save writes the config back to the workspace.
func (c *Config) Save(workspace string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(Path(workspace), data, 0o644)
}
