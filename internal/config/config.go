package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"github.com/vinitshetty/phototagger/internal/providers"
)

// EnvPrefix prefixes environment overrides, e.g. PHOTOTAGGER_BATCH_LIMIT.
const EnvPrefix = "PHOTOTAGGER"

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	mu        sync.RWMutex
	v         *viper.Viper
	config    *Config
	callbacks []func(*Config)
}

// NewManager creates a new config manager and loads initial config.
// homeDir is searched for config.yaml when cfgFile is empty.
func NewManager(cfgFile, homeDir string) (*Manager, error) {
	cm := &Manager{
		v:         viper.New(),
		callbacks: make([]func(*Config), 0),
	}

	if err := cm.initViper(cfgFile, homeDir); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

// initViper sets up viper with defaults and config file.
func (cm *Manager) initViper(cfgFile, homeDir string) error {
	v := cm.v
	defaults := DefaultConfig()
	v.SetDefault("root", defaults.Root)
	v.SetDefault("anchor", defaults.Anchor)
	v.SetDefault("state_dir", defaults.StateDir)
	v.SetDefault("state_backend", defaults.StateBackend)
	v.SetDefault("scan_mode", defaults.ScanMode)
	v.SetDefault("batch_limit", defaults.BatchLimit)
	v.SetDefault("rate_limit", defaults.RateLimit)
	v.SetDefault("pacing_window", defaults.PacingWindow)
	v.SetDefault("exclude", defaults.Exclude)
	v.SetDefault("provider", defaults.Provider)
	v.SetDefault("providers", defaults.Providers)
	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.file", defaults.Log.File)

	// Environment variables with PHOTOTAGGER_ prefix; log.level -> PHOTOTAGGER_LOG_LEVEL
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if homeDir != "" {
			v.AddConfigPath(homeDir)
		} else {
			v.AddConfigPath("$HOME/.phototagger")
		}
	}

	// Try to read config file (not required)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// load parses the current viper state into a Config struct.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := cm.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// ConfigFile returns the file the config was read from, or "" when running
// on defaults and environment only.
func (cm *Manager) ConfigFile() string {
	return cm.v.ConfigFileUsed()
}

// Set overrides a key for this process, as a command-line flag would.
func (cm *Manager) Set(key string, value any) error {
	cm.v.Set(key, value)
	cfg, err := cm.load()
	if err != nil {
		return err
	}
	cm.mu.Lock()
	cm.config = cfg
	cm.mu.Unlock()
	return nil
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of configuration.
func (cm *Manager) WatchConfig() {
	cm.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := cm.load()
		if err != nil {
			return
		}

		cm.mu.Lock()
		cm.config = cfg
		callbacks := make([]func(*Config), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		cm.mu.Unlock()

		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	cm.v.WatchConfig()
}

var envRef = regexp.MustCompile(`\$\{([^}]+)\}`)

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	return envRef.ReplaceAllStringFunc(value, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// ProviderConfigs converts the providers section for providers.Registry,
// resolving ${ENV_VAR} references in API keys.
func (c *Config) ProviderConfigs() map[string]providers.ProviderConfig {
	out := make(map[string]providers.ProviderConfig, len(c.Providers))
	for name, p := range c.Providers {
		out[name] = providers.ProviderConfig{
			Type:       p.Type,
			Model:      p.Model,
			APIKey:     ResolveEnvVars(p.APIKey),
			BaseURL:    p.BaseURL,
			Timeout:    p.Timeout,
			MaxRetries: p.MaxRetries,
		}
	}
	return out
}

// WriteDefault writes the default configuration to the specified path.
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# phototagger configuration
# API keys use ${ENV_VAR} syntax to reference environment variables
# Set these in your shell: export GEMINI_API_KEY=xxx MISTRAL_API_KEY=xxx
# Any key can be overridden with PHOTOTAGGER_<KEY>, e.g. PHOTOTAGGER_BATCH_LIMIT=50

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}
