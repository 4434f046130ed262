package providers

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Classifier turns image bytes into a comma-separated tag string.
type Classifier interface {
	Classify(ctx context.Context, image []byte, mimeType string) (string, error)
}

// NamedClassifier is implemented by concrete providers for logging.
type NamedClassifier interface {
	Classifier
	Name() string
}

// ModelName returns the model c sends requests to, or "" when c does not
// report one.
func ModelName(c Classifier) string {
	if m, ok := c.(interface{ Model() string }); ok {
		return m.Model()
	}
	return ""
}

// ErrUnsupportedFormat is returned when a provider cannot accept the MIME type.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// ErrNotConfigured is returned when no usable provider is configured.
var ErrNotConfigured = errors.New("no classification provider configured")

// TagPrompt is the instruction sent alongside every image.
const TagPrompt = "Analyze this image and identify up to 15 distinct objects, people, animals, food items, " +
	"scenes, activities, or things present in the photo. " +
	"Return ONLY a comma-separated list of these items. " +
	"Examples: dog, beach, baby, cake, sunrise, beer, car, tree, person, building. " +
	"Be specific and concise. Do not include any other text, just the comma-separated list."

// ClassificationError wraps any failure of a classify call.
type ClassificationError struct {
	Provider   string
	StatusCode int // HTTP status when the provider answered, else 0
	Err        error
}

func (e *ClassificationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s classification failed (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s classification failed: %v", e.Provider, e.Err)
}

func (e *ClassificationError) Unwrap() error {
	return e.Err
}

// ProviderConfig configures one classification provider.
type ProviderConfig struct {
	Type       string // "gemini", "mistral", "openai", "mock"
	Model      string
	APIKey     string // resolved, no ${ENV} references
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}
