package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application's configuration.
type Config struct {
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`
	Blob struct {
		OpTimeoutSeconds int64 `yaml:"op_timeout_seconds"`
	} `yaml:"blob"`
	Listing struct {
		DefaultPageSize int `yaml:"default_page_size"`
		MaxPageSize     int `yaml:"max_page_size"`
	} `yaml:"listing"`
	Predictor struct {
		URL     string `yaml:"url"`
		Enabled bool   `yaml:"enabled"`
	} `yaml:"predictor"`
}

// LoadConfig reads configuration from the specified YAML file.
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{}

	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	if config.Listing.DefaultPageSize <= 0 {
		config.Listing.DefaultPageSize = 6
	}
	if config.Listing.MaxPageSize <= 0 {
		config.Listing.MaxPageSize = 100
	}

	return config, nil
}

// BlobTimeout returns the configured blob operation bound.
func (c *Config) BlobTimeout() time.Duration {
	return time.Duration(c.Blob.OpTimeoutSeconds) * time.Second
}
