// internal/config/config.go
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Listen string `yaml:"listen"`

	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`

	RabbitMQ struct {
		Enabled bool   `yaml:"enabled"`
		URL     string `yaml:"url"`
	} `yaml:"rabbitmq"`

	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`

	Tenancy struct {
		// "warn" logs writes that lack tenant context; "strict" rejects them.
		EnforcementMode string `yaml:"enforcement_mode"`
		// When false, warnings live in a bounded in-memory buffer and are
		// lost on restart.
		PersistWarnings   bool   `yaml:"persist_warnings"`
		WarningBufferSize int    `yaml:"warning_buffer_size"`
		ScanSampleSize    int    `yaml:"scan_sample_size"`
		ScanWorkers       int    `yaml:"scan_workers"`
		DefaultTenantSlug string `yaml:"default_tenant_slug"`
	} `yaml:"tenancy"`
}

func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.Tenancy.EnforcementMode == "" {
		c.Tenancy.EnforcementMode = "warn"
	}
	if c.Tenancy.WarningBufferSize <= 0 {
		c.Tenancy.WarningBufferSize = 500
	}
	if c.Tenancy.ScanSampleSize <= 0 {
		c.Tenancy.ScanSampleSize = 5
	}
	if c.Tenancy.ScanWorkers <= 0 {
		c.Tenancy.ScanWorkers = 4
	}
	if c.Tenancy.DefaultTenantSlug == "" {
		c.Tenancy.DefaultTenantSlug = "default"
	}
}
