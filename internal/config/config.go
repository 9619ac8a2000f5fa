package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ClockLayout is the layout for the default notification time value.
const ClockLayout = "15:04"

// Config models duewatch.yml.
type Config struct {
	Vault struct {
		Path        string   `yaml:"path"`
		ExcludeDirs []string `yaml:"exclude_dirs"`
	} `yaml:"vault"`
	Gotify struct {
		ServerURL string `yaml:"server_url"`
		Token     string `yaml:"token"`
	} `yaml:"gotify"`
	Notify struct {
		DefaultTime string `yaml:"default_time"`
		Timezone    string `yaml:"timezone"`
	} `yaml:"notify"`
}

// Load reads and validates config from the workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with dw config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Vault.Path == "" {
		return fmt.Errorf("config.vault.path is required")
	}
	if c.Gotify.ServerURL == "" {
		return fmt.Errorf("config.gotify.server_url is required")
	}
	if c.Gotify.Token == "" {
		return fmt.Errorf("config.gotify.token is required")
	}
	if c.Notify.DefaultTime == "" {
		return fmt.Errorf("config.notify.default_time is required")
	}
	if _, err := time.Parse(ClockLayout, c.Notify.DefaultTime); err != nil {
		return fmt.Errorf("config.notify.default_time %q is not HH:MM: %w", c.Notify.DefaultTime, err)
	}
	if c.Notify.Timezone != "" {
		if _, err := time.LoadLocation(c.Notify.Timezone); err != nil {
			return fmt.Errorf("config.notify.timezone %q: %w", c.Notify.Timezone, err)
		}
	}
	for _, d := range c.Vault.ExcludeDirs {
		if d == "" {
			return fmt.Errorf("config.vault.exclude_dirs contains an empty entry")
		}
	}
	return nil
}

// Location resolves the configured timezone; an unset timezone means UTC.
func (c *Config) Location() (*time.Location, error) {
	if c.Notify.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Notify.Timezone)
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "duewatch.yml")
}

// Default returns the default Config struct for a vault path.
func Default(vaultPath string) *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(GenerateDefault(vaultPath)), &cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault(vaultPath string) string {
	return fmt.Sprintf(defaultTemplate, vaultPath)
}

const defaultTemplate = `vault:
  path: %s
  exclude_dirs: [archive, templates]

gotify:
  server_url: https://gotify.example.com
  token: replace-me

notify:
  default_time: "08:00"
  # timezone: Europe/Paris   # defaults to UTC when unset
`
