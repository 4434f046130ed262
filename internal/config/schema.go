package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/vinitshetty/phototagger/internal/blobstore"
	"github.com/vinitshetty/phototagger/internal/providers"
	"github.com/vinitshetty/phototagger/internal/state"
)

// Config holds phototagger configuration.
// Stored at: ~/.phototagger/config.yaml or ./config.yaml
type Config struct {
	Root         string                 `mapstructure:"root" yaml:"root"`                     // Photo tree to tag
	Anchor       string                 `mapstructure:"anchor" yaml:"anchor"`                 // Identity anchor segment (default: base name of root)
	StateDir     string                 `mapstructure:"state_dir" yaml:"state_dir"`           // Empty means ~/.phototagger/state
	StateBackend string                 `mapstructure:"state_backend" yaml:"state_backend"`   // "file" or "sqlite"
	ScanMode     string                 `mapstructure:"scan_mode" yaml:"scan_mode"`           // "backlog" or "incremental"
	BatchLimit   int                    `mapstructure:"batch_limit" yaml:"batch_limit"`       // Items per run
	RateLimit    int                    `mapstructure:"rate_limit" yaml:"rate_limit"`         // Classify calls per pacing window
	PacingWindow time.Duration          `mapstructure:"pacing_window" yaml:"pacing_window"`   // Pause after every rate_limit calls
	Exclude      []string               `mapstructure:"exclude" yaml:"exclude"`               // Doublestar globs relative to root
	Provider     string                 `mapstructure:"provider" yaml:"provider"`             // Selected entry of providers
	Providers    map[string]ProviderCfg `mapstructure:"providers" yaml:"providers"`
	Log          LogCfg                 `mapstructure:"log" yaml:"log"`
}

// ProviderCfg configures a classification provider.
type ProviderCfg struct {
	Type       string        `mapstructure:"type" yaml:"type"`         // "gemini", "mistral", "openai", "mock"
	Model      string        `mapstructure:"model" yaml:"model"`       // Model name
	APIKey     string        `mapstructure:"api_key" yaml:"api_key"`   // API key (supports ${ENV_VAR} syntax)
	BaseURL    string        `mapstructure:"base_url" yaml:"base_url"` // Optional endpoint override
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries int           `mapstructure:"max_retries" yaml:"max_retries"`
}

// LogCfg configures logging.
type LogCfg struct {
	Level string `mapstructure:"level" yaml:"level"` // debug, info, warn, error
	File  string `mapstructure:"file" yaml:"file"`   // Error log; empty means ~/.phototagger/logs/application.log
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Root:         "./photos",
		StateBackend: blobstore.BackendFile,
		ScanMode:     string(state.ModeBacklog),
		BatchLimit:   500,
		RateLimit:    15,
		PacingWindow: 60 * time.Second,
		Exclude:      []string{"**/.*", "**/@eaDir"},
		Provider:     providers.GeminiName,
		Providers: map[string]ProviderCfg{
			providers.GeminiName: {
				Type:   providers.GeminiName,
				Model:  providers.GeminiModel,
				APIKey: "${GEMINI_API_KEY}",
			},
			providers.MistralName: {
				Type:   providers.MistralName,
				Model:  providers.MistralModel,
				APIKey: "${MISTRAL_API_KEY}",
			},
			providers.OpenAIName: {
				Type:   providers.OpenAIName,
				Model:  providers.OpenAIModel,
				APIKey: "${OPENAI_API_KEY}",
			},
		},
		Log: LogCfg{
			Level: "info",
		},
	}
}

// RunParams are the explicit parameters of one run.
type RunParams struct {
	Root         string
	Anchor       string
	Mode         state.ScanMode
	BatchLimit   int
	RateLimit    int
	PacingWindow time.Duration
	Exclude      []string
}

// Validate reports configuration errors that make a run impossible.
func (c *Config) Validate() error {
	var errs []error
	if c.Root == "" {
		errs = append(errs, errors.New("root is required"))
	}
	if _, err := state.ParseScanMode(c.ScanMode); err != nil {
		errs = append(errs, err)
	}
	switch c.StateBackend {
	case blobstore.BackendFile, blobstore.BackendSQLite:
	default:
		errs = append(errs, fmt.Errorf("unknown state_backend %q", c.StateBackend))
	}
	if c.BatchLimit <= 0 {
		errs = append(errs, fmt.Errorf("batch_limit must be positive, got %d", c.BatchLimit))
	}
	if c.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("rate_limit must not be negative, got %d", c.RateLimit))
	}
	if c.PacingWindow < 0 {
		errs = append(errs, fmt.Errorf("pacing_window must not be negative, got %s", c.PacingWindow))
	}
	if c.Provider == "" {
		errs = append(errs, fmt.Errorf("%w: provider is empty", providers.ErrNotConfigured))
	} else if _, ok := c.Providers[c.Provider]; !ok {
		errs = append(errs, fmt.Errorf("%w: provider %q has no entry under providers", providers.ErrNotConfigured, c.Provider))
	}
	return errors.Join(errs...)
}

// RunParams converts the config into run parameters.
func (c *Config) RunParams() (RunParams, error) {
	mode, err := state.ParseScanMode(c.ScanMode)
	if err != nil {
		return RunParams{}, err
	}
	return RunParams{
		Root:         c.Root,
		Anchor:       c.Anchor,
		Mode:         mode,
		BatchLimit:   c.BatchLimit,
		RateLimit:    c.RateLimit,
		PacingWindow: c.PacingWindow,
		Exclude:      append([]string(nil), c.Exclude...),
	}, nil
}
