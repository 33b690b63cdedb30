// ============================================================================
// Adaptive Queue Config - YAML Configuration
// ============================================================================
//
// Package: internal/config
// File: config.go
// Purpose: 載入並驗證 YAML 設定檔（預設 configs/default.yaml）
//
// 設定區塊：
//   - client:  worker 數量、resource service 位址、逾時與限流
//   - limits:  resource service 每次呼叫的上限（決定 split / 分頁大小）
//   - server:  gRPC 埠號與 snapshot 持久化
//   - metrics: Prometheus /metrics
//
// 檔案中沒有出現的欄位沿用 Default() 的值。
// ============================================================================

package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ChuLiYu/adaptive-queue/internal/resource"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config represents the complete system configuration structure
type Config struct {
	Client  ClientConfig  `yaml:"client"`
	Limits  LimitsConfig  `yaml:"limits"`
	Server  ServerConfig  `yaml:"server"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type ClientConfig struct {
	MaxWorkers     int           `yaml:"max_workers"`
	Server         string        `yaml:"server"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	RateLimit      float64       `yaml:"rate_limit"` // requests per second, 0 = unlimited
	RateBurst      int           `yaml:"rate_burst"`
}

type LimitsConfig struct {
	CreateLimit              int `yaml:"create_limit"`
	DatapointsLimit          int `yaml:"datapoints_limit"`
	DatapointsAggregateLimit int `yaml:"datapoints_aggregate_limit"`
}

type ServerConfig struct {
	Port             int           `yaml:"port"`
	SnapshotPath     string        `yaml:"snapshot_path"` // 空字串 = 不持久化
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
	SnapshotKeep     int           `yaml:"snapshot_keep"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Default returns the built-in configuration.
func Default() *Config {
	limits := resource.DefaultLimits()
	return &Config{
		Client: ClientConfig{
			MaxWorkers:     25,
			Server:         "localhost:50051",
			RequestTimeout: 30 * time.Second,
			RateBurst:      1,
		},
		Limits: LimitsConfig{
			CreateLimit:              limits.Create,
			DatapointsLimit:          limits.Datapoints,
			DatapointsAggregateLimit: limits.DatapointsAggregate,
		},
		Server: ServerConfig{
			Port:             50051,
			SnapshotInterval: 30 * time.Second,
			SnapshotKeep:     3,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// Load reads path on top of Default() and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of Default() and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch {
	case c.Client.MaxWorkers < 1:
		return fmt.Errorf("%w: client.max_workers must be at least 1, got %d", ErrInvalidConfig, c.Client.MaxWorkers)
	case c.Client.RequestTimeout < 0:
		return fmt.Errorf("%w: client.request_timeout is negative", ErrInvalidConfig)
	case c.Client.RateLimit < 0:
		return fmt.Errorf("%w: client.rate_limit is negative", ErrInvalidConfig)
	case c.Client.RateLimit > 0 && c.Client.RateBurst < 1:
		return fmt.Errorf("%w: client.rate_burst must be at least 1 when rate limiting", ErrInvalidConfig)
	case c.Limits.CreateLimit < 1, c.Limits.DatapointsLimit < 1, c.Limits.DatapointsAggregateLimit < 1:
		return fmt.Errorf("%w: limits must be positive: %+v", ErrInvalidConfig, c.Limits)
	case c.Server.Port < 0 || c.Server.Port > 65535:
		return fmt.Errorf("%w: server.port %d out of range", ErrInvalidConfig, c.Server.Port)
	case c.Server.SnapshotPath != "" && c.Server.SnapshotInterval <= 0:
		return fmt.Errorf("%w: server.snapshot_interval must be positive", ErrInvalidConfig)
	case c.Metrics.Enabled && (c.Metrics.Port < 1 || c.Metrics.Port > 65535):
		return fmt.Errorf("%w: metrics.port %d out of range", ErrInvalidConfig, c.Metrics.Port)
	}
	return nil
}

// ResourceLimits converts the limits block for the resource layer.
func (c *Config) ResourceLimits() resource.Limits {
	return resource.Limits{
		Create:              c.Limits.CreateLimit,
		Datapoints:          c.Limits.DatapointsLimit,
		DatapointsAggregate: c.Limits.DatapointsAggregateLimit,
	}
}
