package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
)

const (
	MistralName    = "mistral"
	MistralBaseURL = "https://api.mistral.ai/v1"
	MistralModel   = "pixtral-12b-2409"
)

// mistralMimeTypes lists what Pixtral accepts; anything else is sent as JPEG.
var mistralMimeTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

// MistralConfig holds configuration for the Mistral client.
type MistralConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int           // attempts per classify call (default: 3)
	RetryDelay time.Duration // base backoff (default: 2s)
}

// MistralClient implements Classifier with the Mistral chat completions API.
type MistralClient struct {
	apiKey     string
	baseURL    string
	model      string
	maxRetries int
	retryDelay time.Duration
	client     *http.Client
}

// NewMistralClient creates a new Mistral client.
func NewMistralClient(cfg MistralConfig) *MistralClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = MistralBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = MistralModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 2 * time.Second
	}

	return &MistralClient{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Name returns the provider identifier.
func (c *MistralClient) Name() string {
	return MistralName
}

// Model returns the configured model.
func (c *MistralClient) Model() string {
	return c.model
}

// Classify sends the image as a base64 data URL with the tag prompt.
func (c *MistralClient) Classify(ctx context.Context, image []byte, mimeType string) (string, error) {
	if !mistralMimeTypes[mimeType] {
		mimeType = "image/jpeg"
	}

	reqBody := mistralChatRequest{
		Model: c.model,
		Messages: []mistralMessage{
			{
				Role: "user",
				Content: []mistralContent{
					{Type: "text", Text: TagPrompt},
					{Type: "image_url", ImageURL: "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image)},
				},
			},
		},
	}

	resp, err := c.doRequest(ctx, "/chat/completions", reqBody)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", &ClassificationError{Provider: MistralName, Err: errors.New("no choices in response")}
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// doRequest posts body, retrying network errors, 429 and 5xx responses.
func (c *MistralClient) doRequest(ctx context.Context, path string, body any) (*mistralChatResponse, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	requestID := uuid.New().String()
	jitter := c.retryDelay / 2
	if jitter < time.Millisecond {
		jitter = time.Millisecond
	}

	var out mistralChatResponse
	err = retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(bodyBytes))
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
			req.Header.Set("X-Request-ID", requestID)

			resp, err := c.client.Do(req)
			if err != nil {
				return &ClassificationError{Provider: MistralName, Err: fmt.Errorf("request failed: %w", err)}
			}
			defer resp.Body.Close()

			respBody, err := io.ReadAll(resp.Body)
			if err != nil {
				return &ClassificationError{Provider: MistralName, Err: fmt.Errorf("failed to read response: %w", err)}
			}

			if resp.StatusCode != http.StatusOK {
				msg := string(respBody)
				var errResp mistralErrorResponse
				if json.Unmarshal(respBody, &errResp) == nil && errResp.Message != "" {
					msg = errResp.Message
				}
				cerr := &ClassificationError{Provider: MistralName, StatusCode: resp.StatusCode, Err: errors.New(msg)}
				if shouldRetryStatus(resp.StatusCode) {
					return cerr
				}
				return retry.Unrecoverable(cerr)
			}

			if err := json.Unmarshal(respBody, &out); err != nil {
				return retry.Unrecoverable(&ClassificationError{Provider: MistralName, Err: fmt.Errorf("failed to unmarshal response: %w", err)})
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.maxRetries)),
		retry.Delay(c.retryDelay),
		retry.MaxDelay(30*time.Second),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.MaxJitter(jitter),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		var cerr *ClassificationError
		if errors.As(err, &cerr) {
			return nil, cerr
		}
		return nil, &ClassificationError{Provider: MistralName, Err: err}
	}
	return &out, nil
}

// shouldRetryStatus reports whether an HTTP status is worth another attempt.
func shouldRetryStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || statusCode >= 500
}

// Mistral API types

type mistralChatRequest struct {
	Model    string           `json:"model"`
	Messages []mistralMessage `json:"messages"`
}

type mistralMessage struct {
	Role    string           `json:"role"`
	Content []mistralContent `json:"content"`
}

type mistralContent struct {
	Type     string `json:"type"` // "text" or "image_url"
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

type mistralChatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

type mistralErrorResponse struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

var _ NamedClassifier = (*MistralClient)(nil)
