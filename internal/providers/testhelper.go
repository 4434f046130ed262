package providers

import (
	"os"
)

// TestConfig holds provider credentials loaded from environment variables.
// Integration tests skip themselves when a key is absent.
type TestConfig struct {
	GeminiAPIKey  string
	MistralAPIKey string
	OpenAIAPIKey  string
}

// LoadTestConfig loads provider API keys from environment variables.
func LoadTestConfig() TestConfig {
	return TestConfig{
		GeminiAPIKey:  os.Getenv("GEMINI_API_KEY"),
		MistralAPIKey: os.Getenv("MISTRAL_API_KEY"),
		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
	}
}

// HasGemini returns true if a Gemini API key is configured.
func (c TestConfig) HasGemini() bool {
	return c.GeminiAPIKey != ""
}

// HasMistral returns true if a Mistral API key is configured.
func (c TestConfig) HasMistral() bool {
	return c.MistralAPIKey != ""
}

// HasAny returns true if any live provider is configured.
func (c TestConfig) HasAny() bool {
	return c.HasGemini() || c.HasMistral() || c.OpenAIAPIKey != ""
}
