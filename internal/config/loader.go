package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override (BSQA_API_BASE_URL, ...).
const EnvPrefix = "BSQA"

// ProjectConfigFile is looked up in the working directory.
const ProjectConfigFile = ".bsqa.yaml"

// Loader handles configuration loading from multiple sources.
type Loader struct {
	v          *viper.Viper
	configFile string
	dotEnv     string
	envPrefix  string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return NewLoaderWithViper(viper.New())
}

// NewLoaderWithViper creates a loader using an existing viper instance.
// This allows integration with CLI flag bindings.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{
		v:         v,
		dotEnv:    ".env",
		envPrefix: EnvPrefix,
	}
}

// WithConfigFile sets an explicit config file path.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

// WithDotEnv sets the dotenv file read before the environment; empty
// disables it.
func (l *Loader) WithDotEnv(path string) *Loader {
	l.dotEnv = path
	return l
}

// Viper returns the underlying viper instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load loads configuration from all sources.
// Precedence (highest to lowest):
// 1. CLI flags (set via viper.BindPFlag)
// 2. Environment variables (BSQA_*), including those from .env
// 3. Project config (.bsqa.yaml in current directory)
// 4. User config (~/.config/bsqa/config.yaml)
// 5. Defaults
func (l *Loader) Load() (*Config, error) {
	if l.dotEnv != "" {
		// godotenv never overrides variables already set.
		if err := godotenv.Load(l.dotEnv); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading %s: %w", l.dotEnv, err)
		}
	}

	l.setDefaults()

	l.v.SetEnvPrefix(l.envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if path := l.resolveConfigFile(); path != "" {
		l.v.SetConfigFile(path)
		if err := l.v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := ResolveStoragePaths(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults configures default values.
func (l *Loader) setDefaults() {
	l.v.SetDefault("log.level", "info")
	l.v.SetDefault("log.format", "auto")

	l.v.SetDefault("api.base_url", "http://localhost:8000")
	l.v.SetDefault("api.timeout", "15s")

	l.v.SetDefault("storage.persistent.backend", BackendFile)
	l.v.SetDefault("storage.persistent.path", "")
	l.v.SetDefault("storage.session.backend", BackendFile)
	l.v.SetDefault("storage.session.path", "")
	l.v.SetDefault("storage.session.ttl", "12h")
	l.v.SetDefault("storage.redis_url", "")
	l.v.SetDefault("storage.poll_interval", "2s")

	l.v.SetDefault("server.host", "localhost")
	l.v.SetDefault("server.port", 8090)
	l.v.SetDefault("server.cors", true)
	l.v.SetDefault("server.allowed_origins", []string{"http://localhost:*", "http://127.0.0.1:*"})
	l.v.SetDefault("server.request_timeout", "60s")
}

// resolveConfigFile picks the explicit file, then .bsqa.yaml in the working
// directory, then config.yaml in the user config directory.
func (l *Loader) resolveConfigFile() string {
	if l.configFile != "" {
		return l.configFile
	}
	candidates := []string{ProjectConfigFile}
	if dir, err := UserConfigDir(); err == nil {
		candidates = append(candidates, filepath.Join(dir, "config.yaml"))
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c
		}
	}
	return ""
}

// ConfigFile returns the config file path if one was used.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

// UserConfigDir is ~/.config/bsqa (or the platform equivalent).
func UserConfigDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine config directory: %w", err)
	}
	return filepath.Join(dir, "bsqa"), nil
}
