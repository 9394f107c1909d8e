package config

import (
	"time"

	"github.com/hugo-lorenzo-mato/bsqa/internal/core"
)

// Config holds all application configuration.
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	API     APIConfig     `mapstructure:"api"`
	Storage StorageConfig `mapstructure:"storage"`
	Server  ServerConfig  `mapstructure:"server"`
	Catalog CatalogConfig `mapstructure:"catalog"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// APIConfig points at the QA backend.
type APIConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Timeout string `mapstructure:"timeout"`
}

// TimeoutDuration parses Timeout, falling back to 15s.
func (c APIConfig) TimeoutDuration() time.Duration {
	return parseDuration(c.Timeout, 15*time.Second)
}

// Storage backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// StorageConfig selects where each scope lives.
type StorageConfig struct {
	Persistent   ScopeConfig `mapstructure:"persistent"`
	Session      ScopeConfig `mapstructure:"session"`
	RedisURL     string      `mapstructure:"redis_url"`
	PollInterval string      `mapstructure:"poll_interval"`
}

// PollIntervalDuration parses PollInterval, falling back to 2s.
func (c StorageConfig) PollIntervalDuration() time.Duration {
	return parseDuration(c.PollInterval, 2*time.Second)
}

// ScopeConfig configures one storage scope.
type ScopeConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
	TTL     string `mapstructure:"ttl"`
}

// TTLDuration parses TTL; zero means entries never expire.
func (c ScopeConfig) TTLDuration() time.Duration {
	return parseDuration(c.TTL, 0)
}

// ServerConfig configures `bsqa serve`.
type ServerConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	CORS           bool     `mapstructure:"cors"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	RequestTimeout string   `mapstructure:"request_timeout"`
}

// RequestTimeoutDuration parses RequestTimeout, defaulting to one minute.
func (c ServerConfig) RequestTimeoutDuration() time.Duration {
	return parseDuration(c.RequestTimeout, time.Minute)
}

// CatalogConfig overrides the fallback analysis-type catalog.
type CatalogConfig struct {
	AnalysisTypes []AnalysisType `mapstructure:"analysis_types"`
}

// AnalysisType is a catalog entry. Keys are case-sensitive, so they are
// listed rather than used as YAML map keys.
type AnalysisType struct {
	Key   string `mapstructure:"key"`
	Label string `mapstructure:"label"`
}

// Catalog returns the configured fallback catalog or the built-in one.
func (c CatalogConfig) Catalog() core.AnalysisCatalog {
	if len(c.AnalysisTypes) == 0 {
		return core.DefaultAnalysisCatalog()
	}
	out := make(core.AnalysisCatalog, len(c.AnalysisTypes))
	for _, t := range c.AnalysisTypes {
		label := t.Label
		if label == "" {
			label = t.Key
		}
		out[t.Key] = label
	}
	return out
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
