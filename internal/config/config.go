// Package config loads and saves cveta2 settings: the CVAT connection
// (config.yaml, cvat section), per-project image cache directories
// (image_cache section) and per-project ignored task lists (ignore.yaml).
//
// Connection settings resolve with priority CLI flags > environment >
// config file.
package config

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/viper"
	yaml "gopkg.in/yaml.v3"

	"github.com/BuckanovNikita/cveta2/internal/paths"
	"github.com/BuckanovNikita/cveta2/pkg/types"
)

// Viper keys inside config.yaml.
const (
	keyHost         = "cvat.host"
	keyToken        = "cvat.token"
	keyUsername     = "cvat.username"
	keyPassword     = "cvat.password"
	keyOrganization = "cvat.organization"
	keyImageCache   = "image_cache"
)

// Environment variable bindings.
const (
	EnvHost         = "CVAT_HOST"
	EnvToken        = "CVAT_TOKEN"
	EnvUsername     = "CVAT_USERNAME"
	EnvPassword     = "CVAT_PASSWORD"
	EnvOrganization = "CVAT_ORG"
)

// CvatConfig holds the CVAT connection settings. Token authentication
// takes precedence over username/password when both are present.
type CvatConfig struct {
	Host         string `yaml:"host"`
	Token        string `yaml:"token,omitempty"`
	Username     string `yaml:"username,omitempty"`
	Password     string `yaml:"password,omitempty"`
	Organization string `yaml:"organization,omitempty"`
}

// Config is the full file content: connection settings plus the
// image-cache mapping (project name -> local directory).
type Config struct {
	Cvat       CvatConfig        `yaml:"cvat"`
	ImageCache map[string]string `yaml:"image_cache,omitempty"`
}

// Overrides are the CLI-provided connection values; non-empty fields win
// over environment and file values.
type Overrides struct {
	Host     string
	Token    string
	Username string
	Password string
}

// Load reads config.yaml from configDir, applies environment bindings
// and CLI overrides. A missing config file is not an error.
func Load(configDir string, ov Overrides) (Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)

	for key, env := range map[string]string{
		keyHost:         EnvHost,
		keyToken:        EnvToken,
		keyUsername:     EnvUsername,
		keyPassword:     EnvPassword,
		keyOrganization: EnvOrganization,
	} {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, fmt.Errorf("binding %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		// A missing config.yaml is not an error; connection settings may
		// come from the environment or flags.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg := Config{
		Cvat: CvatConfig{
			Host:         v.GetString(keyHost),
			Token:        v.GetString(keyToken),
			Username:     v.GetString(keyUsername),
			Password:     v.GetString(keyPassword),
			Organization: v.GetString(keyOrganization),
		},
		ImageCache: v.GetStringMapString(keyImageCache),
	}

	if ov.Host != "" {
		cfg.Cvat.Host = ov.Host
	}
	if ov.Token != "" {
		cfg.Cvat.Token = ov.Token
	}
	if ov.Username != "" {
		cfg.Cvat.Username = ov.Username
	}
	if ov.Password != "" {
		cfg.Cvat.Password = ov.Password
	}
	return cfg, nil
}

// RequireHost returns ErrHostNotConfigured when no host is set.
func (c Config) RequireHost() error {
	if c.Cvat.Host == "" {
		return types.ErrHostNotConfigured
	}
	return nil
}

// CacheDir returns the configured image cache directory for a project
// name, or false when the project is not configured.
func (c Config) CacheDir(project string) (string, bool) {
	dir, ok := c.ImageCache[project]
	return dir, ok
}

// CacheProjects returns the configured image-cache project names, sorted.
func (c Config) CacheProjects() []string {
	names := make([]string, 0, len(c.ImageCache))
	for name := range c.ImageCache {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Save writes config.yaml to configDir, creating the directory if
// needed. Empty optional fields are omitted.
func Save(configDir string, cfg Config) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	// The file may hold credentials; keep it private.
	if err := os.WriteFile(paths.ConfigFile(configDir), data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
