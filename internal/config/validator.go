package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation: %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// Validate validates the entire configuration.
func (v *Validator) Validate(cfg *Config) error {
	v.validateLog(&cfg.Log)
	v.validateAPI(&cfg.API)
	v.validateStorage(&cfg.Storage)
	v.validateServer(&cfg.Server)
	v.validateCatalog(&cfg.Catalog)

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

// Errors returns the collected validation errors.
func (v *Validator) Errors() ValidationErrors {
	return v.errors
}

func (v *Validator) addError(field string, value interface{}, msg string) {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Value:   value,
		Message: msg,
	})
}

func (v *Validator) validateLog(cfg *LogConfig) {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[cfg.Level] {
		v.addError("log.level", cfg.Level, "must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"auto": true, "text": true, "json": true,
	}
	if !validFormats[cfg.Format] {
		v.addError("log.format", cfg.Format, "must be one of: auto, text, json")
	}

	if cfg.File != "" && !isValidPath(cfg.File) {
		v.addError("log.file", cfg.File, "invalid file path")
	}
}

func (v *Validator) validateAPI(cfg *APIConfig) {
	u, err := url.Parse(cfg.BaseURL)
	if cfg.BaseURL == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		v.addError("api.base_url", cfg.BaseURL, "must be an absolute http(s) URL")
	}
	v.validateDuration("api.timeout", cfg.Timeout, false)
}

func (v *Validator) validateStorage(cfg *StorageConfig) {
	switch cfg.Persistent.Backend {
	case BackendFile, BackendSQLite:
		if cfg.Persistent.Path == "" {
			v.addError("storage.persistent.path", cfg.Persistent.Path, "path required")
		} else if !isValidPath(cfg.Persistent.Path) {
			v.addError("storage.persistent.path", cfg.Persistent.Path, "invalid file path")
		}
	default:
		v.addError("storage.persistent.backend", cfg.Persistent.Backend, "must be one of: file, sqlite")
	}

	switch cfg.Session.Backend {
	case BackendFile:
		if cfg.Session.Path == "" {
			v.addError("storage.session.path", cfg.Session.Path, "path required")
		}
	case BackendMemory:
	case BackendRedis:
		if cfg.RedisURL == "" {
			v.addError("storage.redis_url", cfg.RedisURL, "required when storage.session.backend is redis")
		} else if _, err := redis.ParseURL(cfg.RedisURL); err != nil {
			v.addError("storage.redis_url", cfg.RedisURL, err.Error())
		}
	default:
		v.addError("storage.session.backend", cfg.Session.Backend, "must be one of: file, memory, redis")
	}

	v.validateDuration("storage.session.ttl", cfg.Session.TTL, true)
	v.validateDuration("storage.poll_interval", cfg.PollInterval, false)
}

func (v *Validator) validateServer(cfg *ServerConfig) {
	if cfg.Port < 1 || cfg.Port > 65535 {
		v.addError("server.port", cfg.Port, "must be between 1 and 65535")
	}
	if cfg.Host == "" {
		v.addError("server.host", cfg.Host, "host required")
	}
	v.validateDuration("server.request_timeout", cfg.RequestTimeout, false)
}

func (v *Validator) validateCatalog(cfg *CatalogConfig) {
	seen := make(map[string]bool, len(cfg.AnalysisTypes))
	for i, t := range cfg.AnalysisTypes {
		field := fmt.Sprintf("catalog.analysis_types[%d].key", i)
		if strings.TrimSpace(t.Key) == "" {
			v.addError(field, t.Key, "key required")
			continue
		}
		if seen[t.Key] {
			v.addError(field, t.Key, "duplicate key")
		}
		seen[t.Key] = true
	}
}

func (v *Validator) validateDuration(field, value string, allowZero bool) {
	if value == "" {
		return
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		v.addError(field, value, "invalid duration format")
		return
	}
	if d < 0 || (!allowZero && d == 0) {
		v.addError(field, value, "must be positive")
	}
}

func isValidPath(path string) bool {
	dir := filepath.Dir(path)
	_, err := os.Stat(dir)
	return err == nil || os.IsNotExist(err)
}

// ValidateConfig is a convenience function that creates a validator and validates config.
func ValidateConfig(cfg *Config) error {
	v := NewValidator()
	return v.Validate(cfg)
}
