package providers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	GeminiName    = "gemini"
	GeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
	GeminiModel   = "gemini-2.5-flash"

	OpenAIName  = "openai"
	OpenAIModel = "gpt-4o-mini"
)

var (
	geminiMimeTypes = map[string]bool{
		"image/jpeg": true,
		"image/png":  true,
		"image/heic": true,
		"image/webp": true,
	}
	openAIMimeTypes = map[string]bool{
		"image/jpeg": true,
		"image/png":  true,
		"image/webp": true,
	}
)

// OpenAIVisionConfig holds configuration for an OpenAI-compatible vision client.
type OpenAIVisionConfig struct {
	Name       string // provider name used in errors and logs
	APIKey     string
	BaseURL    string // Optional; empty means the OpenAI default
	Model      string
	Timeout    time.Duration
	MaxRetries int             // SDK transport retries (default: 3)
	MimeTypes  map[string]bool // accepted input types
	HTTPClient *http.Client    // Optional (tests)
}

// OpenAIVisionClient implements Classifier with the chat completions API of
// any OpenAI-compatible endpoint. Gemini is served through its
// OpenAI-compatible surface.
type OpenAIVisionClient struct {
	name      string
	model     string
	mimeTypes map[string]bool
	client    openai.Client
}

// NewOpenAIVisionClient creates a new client.
func NewOpenAIVisionClient(cfg OpenAIVisionConfig) *OpenAIVisionClient {
	if cfg.Name == "" {
		cfg.Name = OpenAIName
	}
	if cfg.Model == "" {
		cfg.Model = OpenAIModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.MimeTypes == nil {
		cfg.MimeTypes = openAIMimeTypes
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIVisionClient{
		name:      cfg.Name,
		model:     cfg.Model,
		mimeTypes: cfg.MimeTypes,
		client:    openai.NewClient(opts...),
	}
}

// NewGeminiClient returns an OpenAIVisionClient pointed at Gemini.
func NewGeminiClient(cfg OpenAIVisionConfig) *OpenAIVisionClient {
	cfg.Name = GeminiName
	if cfg.BaseURL == "" {
		cfg.BaseURL = GeminiBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = GeminiModel
	}
	if cfg.MimeTypes == nil {
		cfg.MimeTypes = geminiMimeTypes
	}
	return NewOpenAIVisionClient(cfg)
}

// Name returns the provider identifier.
func (c *OpenAIVisionClient) Name() string {
	return c.name
}

// Model returns the configured model.
func (c *OpenAIVisionClient) Model() string {
	return c.model
}

// Classify sends the image inline as a data URL with the tag prompt.
func (c *OpenAIVisionClient) Classify(ctx context.Context, image []byte, mimeType string) (string, error) {
	if !c.mimeTypes[mimeType] {
		return "", &ClassificationError{
			Provider: c.name,
			Err:      fmt.Errorf("%w: %s", ErrUnsupportedFormat, mimeType),
		}
	}

	dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image)
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(TagPrompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: dataURL,
				}),
			}),
		},
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", c.mapError(err)
	}
	if len(resp.Choices) == 0 {
		return "", &ClassificationError{Provider: c.name, Err: errors.New("no choices in response")}
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (c *OpenAIVisionClient) mapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = http.StatusText(apiErr.StatusCode)
		}
		return &ClassificationError{Provider: c.name, StatusCode: apiErr.StatusCode, Err: errors.New(msg)}
	}
	return &ClassificationError{Provider: c.name, Err: err}
}

var _ NamedClassifier = (*OpenAIVisionClient)(nil)
