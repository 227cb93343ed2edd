package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	DefaultPort            = 8080
	DefaultMaxAgeMs        = 10000
	DefaultReportTimeoutMs = 2000
	DefaultPoolingURL      = "http://example.com"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML content, expanding environment variables first.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *AppConfig {
	var cfg AppConfig
	cfg.applyDefaults()
	return &cfg
}

func (c *AppConfig) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Handling.MaxAgeMs <= 0 {
		c.Handling.MaxAgeMs = DefaultMaxAgeMs
	}
	if c.Handling.ReportTimeoutMs <= 0 {
		c.Handling.ReportTimeoutMs = DefaultReportTimeoutMs
	}
	if c.Functions.PoolingURL == "" {
		c.Functions.PoolingURL = DefaultPoolingURL
	}
	if c.Functions.HTTPTimeout == 0 {
		c.Functions.HTTPTimeout = 10 * time.Second
	}
	if c.Reporting.Breaker.ConsecutiveFailures == 0 {
		c.Reporting.Breaker.ConsecutiveFailures = 5
	}
	if c.Reporting.Breaker.OpenTimeout == 0 {
		c.Reporting.Breaker.OpenTimeout = 30 * time.Second
	}

	for i := range c.Consumers {
		cc := &c.Consumers[i]
		if cc.Group == "" {
			cc.Group = "redeliver"
		}
		if cc.Consumer == "" {
			cc.Consumer = "redeliver-1"
		}
		if cc.BatchSize == 0 {
			cc.BatchSize = 10
		}
		if cc.Block == 0 {
			cc.Block = 2 * time.Second
		}
		if cc.MinIdle == 0 {
			cc.MinIdle = 5 * time.Second
		}
		if cc.ReclaimInterval == 0 {
			cc.ReclaimInterval = 5 * time.Second
		}
	}
}

func (c *AppConfig) validate() error {
	for i, cc := range c.Consumers {
		if cc.Stream == "" {
			return fmt.Errorf("consumers[%d]: stream is required", i)
		}
		if cc.Function == "" {
			return fmt.Errorf("consumers[%d]: function is required", i)
		}
	}
	if len(c.Consumers) > 0 && c.Redis.URL == "" {
		return fmt.Errorf("consumers require redis.url")
	}
	return nil
}
