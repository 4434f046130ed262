package providers

import (
	"context"
	"errors"
	"sync"
)

const MockName = "mock"

// MockClassifier is a Classifier for tests and dry runs.
type MockClassifier struct {
	// Tags is returned for every successful call.
	Tags string

	// FailFor makes calls fail when the image bytes equal a key.
	FailFor map[string]error

	mu    sync.Mutex
	calls []MockCall
}

// MockCall records one Classify invocation.
type MockCall struct {
	Image    []byte
	MimeType string
}

// NewMockClassifier creates a mock that returns tags.
func NewMockClassifier(tags string) *MockClassifier {
	return &MockClassifier{Tags: tags, FailFor: make(map[string]error)}
}

// Name returns the provider identifier.
func (m *MockClassifier) Name() string {
	return MockName
}

// Classify records the call and returns Tags or the configured failure.
func (m *MockClassifier) Classify(ctx context.Context, image []byte, mimeType string) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Image: append([]byte(nil), image...), MimeType: mimeType})
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", &ClassificationError{Provider: MockName, Err: err}
	}
	if err, ok := m.FailFor[string(image)]; ok {
		if err == nil {
			err = errors.New("mock failure")
		}
		return "", &ClassificationError{Provider: MockName, Err: err}
	}
	return m.Tags, nil
}

// Calls returns a copy of the recorded calls.
func (m *MockClassifier) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

var _ NamedClassifier = (*MockClassifier)(nil)
