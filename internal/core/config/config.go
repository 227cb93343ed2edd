package config

import (
	"time"

	redisclient "github.com/vietddude/redeliver/internal/infra/redis"
	"github.com/vietddude/redeliver/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig       `yaml:"server"`
	Logging   LoggingConfig      `yaml:"logging"`
	Handling  HandlingConfig     `yaml:"handling"`
	Database  postgres.Config    `yaml:"database"`
	Redis     redisclient.Config `yaml:"redis"`
	Consumers []ConsumerConfig   `yaml:"consumers"`
	Functions FunctionsConfig    `yaml:"functions"`
	Reporting ReportingConfig    `yaml:"reporting"`
}

// ServerConfig holds HTTP and gRPC listener settings.
type ServerConfig struct {
	Port     int `yaml:"port"`
	GRPCPort int `yaml:"grpc_port"` // 0 = disabled
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// HandlingConfig holds the retry decision thresholds.
type HandlingConfig struct {
	MaxAgeMs        int64 `yaml:"max_age_ms"`
	ReportTimeoutMs int64 `yaml:"report_timeout_ms"`
}

// MaxAge is the admission drop threshold.
func (h HandlingConfig) MaxAge() time.Duration {
	return time.Duration(h.MaxAgeMs) * time.Millisecond
}

// ReportTimeout bounds a single failure sink call.
func (h HandlingConfig) ReportTimeout() time.Duration {
	return time.Duration(h.ReportTimeoutMs) * time.Millisecond
}

// ConsumerConfig binds a Redis stream to a registered event function.
type ConsumerConfig struct {
	Stream          string        `yaml:"stream"`
	Group           string        `yaml:"group"`
	Consumer        string        `yaml:"consumer"`
	Function        string        `yaml:"function"`
	BatchSize       int64         `yaml:"batch_size"`
	Block           time.Duration `yaml:"block"`
	MinIdle         time.Duration `yaml:"min_idle"`
	ReclaimInterval time.Duration `yaml:"reclaim_interval"`
}

// FunctionsConfig holds settings for the bundled HTTP functions.
type FunctionsConfig struct {
	PoolingURL  string        `yaml:"pooling_url"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`
}

// ReportingConfig holds failure sink settings.
type ReportingConfig struct {
	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig configures the circuit breaker in front of the failure store.
type BreakerConfig struct {
	ConsecutiveFailures uint32        `yaml:"consecutive_failures"`
	OpenTimeout         time.Duration `yaml:"open_timeout"`
}
