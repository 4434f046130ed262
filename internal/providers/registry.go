package providers

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Registry holds the configured classifiers by name.
// It supports config-driven instantiation and hot reload.
type Registry struct {
	mu          sync.RWMutex
	classifiers map[string]NamedClassifier
	configs     map[string]ProviderConfig
	logger      *slog.Logger
}

// NewRegistry creates a new empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		classifiers: make(map[string]NamedClassifier),
		configs:     make(map[string]ProviderConfig),
		logger:      slog.Default(),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// Register adds a classifier under name, replacing any previous one.
func (r *Registry) Register(name string, c NamedClassifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.classifiers[name] = c
	r.logger.Debug("registered classifier", "name", name, "type", c.Name())
}

// Get returns the classifier registered under name.
func (r *Registry) Get(name string) (NamedClassifier, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.classifiers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrNotConfigured, name, r.namesLocked())
	}
	return c, nil
}

// List returns registered names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.classifiers))
	for name := range r.classifiers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewRegistryFromConfig creates a registry from provider configs.
// Providers without an API key (other than mock) are skipped.
func NewRegistryFromConfig(cfgs map[string]ProviderConfig, logger *slog.Logger) *Registry {
	r := NewRegistry()
	if logger != nil {
		r.logger = logger
	}
	r.Reload(cfgs)
	return r
}

// Reload applies new provider configs. Unchanged providers keep their client;
// removed ones are unregistered.
func (r *Registry) Reload(cfgs map[string]ProviderConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, cfg := range cfgs {
		if cfg.Type != MockName && cfg.APIKey == "" {
			r.logger.Debug("skipping provider without API key", "name", name, "type", cfg.Type)
			delete(r.classifiers, name)
			delete(r.configs, name)
			continue
		}
		if prev, ok := r.configs[name]; ok && prev == cfg {
			continue
		}
		c, err := New(cfg)
		if err != nil {
			r.logger.Warn("skipping provider", "name", name, "error", err)
			continue
		}
		_, existed := r.classifiers[name]
		r.classifiers[name] = c
		r.configs[name] = cfg
		if existed {
			r.logger.Info("updated classifier", "name", name, "type", cfg.Type)
		}
	}

	for name := range r.classifiers {
		if _, ok := cfgs[name]; !ok {
			delete(r.classifiers, name)
			delete(r.configs, name)
			r.logger.Info("unregistered classifier", "name", name)
		}
	}
}

// New creates a classifier for cfg.Type.
func New(cfg ProviderConfig) (NamedClassifier, error) {
	switch cfg.Type {
	case GeminiName:
		return NewGeminiClient(OpenAIVisionConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Timeout:    cfg.Timeout,
			MaxRetries: cfg.MaxRetries,
		}), nil
	case OpenAIName:
		return NewOpenAIVisionClient(OpenAIVisionConfig{
			Name:       OpenAIName,
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Timeout:    cfg.Timeout,
			MaxRetries: cfg.MaxRetries,
		}), nil
	case MistralName:
		return NewMistralClient(MistralConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Timeout:    cfg.Timeout,
			MaxRetries: cfg.MaxRetries,
		}), nil
	case MockName:
		return NewMockClassifier("mock"), nil
	default:
		return nil, fmt.Errorf("unknown provider type %q", cfg.Type)
	}
}

// Lookup returns a classifier that resolves name on every call, so a Reload
// takes effect between items of a running batch.
func (r *Registry) Lookup(name string) NamedClassifier {
	return &registryClassifier{registry: r, name: name}
}

type registryClassifier struct {
	registry *Registry
	name     string
}

func (c *registryClassifier) Name() string {
	if inner, err := c.registry.Get(c.name); err == nil {
		return inner.Name()
	}
	return c.name
}

func (c *registryClassifier) Model() string {
	if inner, err := c.registry.Get(c.name); err == nil {
		return ModelName(inner)
	}
	return ""
}

func (c *registryClassifier) Classify(ctx context.Context, image []byte, mimeType string) (string, error) {
	inner, err := c.registry.Get(c.name)
	if err != nil {
		return "", &ClassificationError{Provider: c.name, Err: err}
	}
	return inner.Classify(ctx, image, mimeType)
}
