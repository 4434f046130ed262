package providers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func mistralReply(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"id":    "cmpl-1",
		"model": MistralModel,
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}, "finish_reason": "stop"},
		},
	})
}

func TestMistralClient_Classify(t *testing.T) {
	t.Run("successful classification", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/chat/completions" {
				t.Errorf("unexpected path: %s", r.URL.Path)
			}
			if r.Method != http.MethodPost {
				t.Errorf("unexpected method: %s", r.Method)
			}
			if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
				t.Errorf("unexpected authorization: %s", auth)
			}
			if r.Header.Get("X-Request-ID") == "" {
				t.Error("expected X-Request-ID header")
			}

			var req mistralChatRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Fatalf("decode request: %v", err)
			}
			if req.Model != MistralModel {
				t.Errorf("model = %q, want %q", req.Model, MistralModel)
			}
			if len(req.Messages) != 1 || len(req.Messages[0].Content) != 2 {
				t.Fatalf("unexpected message shape: %+v", req.Messages)
			}
			if req.Messages[0].Content[0].Text != TagPrompt {
				t.Error("expected tag prompt as first content part")
			}
			if !strings.HasPrefix(req.Messages[0].Content[1].ImageURL, "data:image/png;base64,") {
				t.Errorf("unexpected image url: %.40s", req.Messages[0].Content[1].ImageURL)
			}

			mistralReply(w, "  dog, beach, sunset \n")
		}))
		defer server.Close()

		client := NewMistralClient(MistralConfig{APIKey: "test-key", BaseURL: server.URL})
		tags, err := client.Classify(context.Background(), []byte("png bytes"), "image/png")
		if err != nil {
			t.Fatalf("Classify() error = %v", err)
		}
		if tags != "dog, beach, sunset" {
			t.Errorf("tags = %q", tags)
		}
	})

	t.Run("unsupported mime falls back to jpeg", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			if !strings.Contains(string(body), "data:image/jpeg;base64,") {
				t.Errorf("expected jpeg data url, got %.200s", body)
			}
			mistralReply(w, "cat")
		}))
		defer server.Close()

		client := NewMistralClient(MistralConfig{APIKey: "k", BaseURL: server.URL})
		if _, err := client.Classify(context.Background(), []byte("heic"), "image/heic"); err != nil {
			t.Fatalf("Classify() error = %v", err)
		}
	})

	t.Run("retries on 429 then succeeds", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"message":"slow down"}`))
				return
			}
			mistralReply(w, "tree")
		}))
		defer server.Close()

		client := NewMistralClient(MistralConfig{
			APIKey:     "k",
			BaseURL:    server.URL,
			MaxRetries: 3,
			RetryDelay: time.Millisecond,
		})
		tags, err := client.Classify(context.Background(), []byte("x"), "image/jpeg")
		if err != nil {
			t.Fatalf("Classify() error = %v", err)
		}
		if tags != "tree" {
			t.Errorf("tags = %q", tags)
		}
		if got := calls.Load(); got != 2 {
			t.Errorf("calls = %d, want 2", got)
		}
	})

	t.Run("does not retry client errors", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"message":"bad image"}`))
		}))
		defer server.Close()

		client := NewMistralClient(MistralConfig{
			APIKey:     "k",
			BaseURL:    server.URL,
			MaxRetries: 3,
			RetryDelay: time.Millisecond,
		})
		_, err := client.Classify(context.Background(), []byte("x"), "image/jpeg")
		var cerr *ClassificationError
		if !errors.As(err, &cerr) {
			t.Fatalf("expected ClassificationError, got %v", err)
		}
		if cerr.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d", cerr.StatusCode)
		}
		if !strings.Contains(cerr.Error(), "bad image") {
			t.Errorf("error = %q", cerr.Error())
		}
		if got := calls.Load(); got != 1 {
			t.Errorf("calls = %d, want 1", got)
		}
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		client := NewMistralClient(MistralConfig{
			APIKey:     "k",
			BaseURL:    server.URL,
			MaxRetries: 2,
			RetryDelay: time.Millisecond,
		})
		if _, err := client.Classify(context.Background(), []byte("x"), "image/jpeg"); err == nil {
			t.Fatal("expected error")
		}
		if got := calls.Load(); got != 2 {
			t.Errorf("calls = %d, want 2", got)
		}
	})
}

func openAIReply(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 0,
		"model":   "test-model",
		"choices": []map[string]any{
			{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": "stop",
			},
		},
	})
}

func TestOpenAIVisionClient_Classify(t *testing.T) {
	t.Run("successful classification", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
				t.Errorf("unexpected path: %s", r.URL.Path)
			}
			body, _ := io.ReadAll(r.Body)
			if !strings.Contains(string(body), "data:image/jpeg;base64,") {
				t.Errorf("expected data url in body")
			}
			if !strings.Contains(string(body), `"model":"gemini-2.5-flash"`) {
				t.Errorf("expected gemini model in body: %.200s", body)
			}
			openAIReply(w, "cake, candles")
		}))
		defer server.Close()

		client := NewGeminiClient(OpenAIVisionConfig{APIKey: "k", BaseURL: server.URL + "/"})
		if client.Name() != GeminiName {
			t.Errorf("Name() = %q", client.Name())
		}
		tags, err := client.Classify(context.Background(), []byte("jpg"), "image/jpeg")
		if err != nil {
			t.Fatalf("Classify() error = %v", err)
		}
		if tags != "cake, candles" {
			t.Errorf("tags = %q", tags)
		}
	})

	t.Run("unsupported mime rejected without a request", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
		}))
		defer server.Close()

		client := NewOpenAIVisionClient(OpenAIVisionConfig{APIKey: "k", BaseURL: server.URL + "/"})
		_, err := client.Classify(context.Background(), []byte("heic"), "image/heic")
		if !errors.Is(err, ErrUnsupportedFormat) {
			t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
		}
		if calls.Load() != 0 {
			t.Error("expected no request")
		}
	})

	t.Run("api error carries status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":{"message":"invalid key","type":"auth"}}`))
		}))
		defer server.Close()

		client := NewOpenAIVisionClient(OpenAIVisionConfig{APIKey: "bad", BaseURL: server.URL + "/"})
		_, err := client.Classify(context.Background(), []byte("x"), "image/png")
		var cerr *ClassificationError
		if !errors.As(err, &cerr) {
			t.Fatalf("expected ClassificationError, got %v", err)
		}
		if cerr.StatusCode != http.StatusUnauthorized {
			t.Errorf("status = %d", cerr.StatusCode)
		}
		if cerr.Provider != OpenAIName {
			t.Errorf("provider = %q", cerr.Provider)
		}
	})
}

func TestMockClassifier(t *testing.T) {
	m := NewMockClassifier("a, b")
	m.FailFor["bad"] = errors.New("boom")

	tags, err := m.Classify(context.Background(), []byte("good"), "image/jpeg")
	if err != nil || tags != "a, b" {
		t.Fatalf("Classify() = %q, %v", tags, err)
	}
	if _, err := m.Classify(context.Background(), []byte("bad"), "image/png"); err == nil {
		t.Fatal("expected failure")
	}
	calls := m.Calls()
	if len(calls) != 2 || calls[1].MimeType != "image/png" {
		t.Errorf("calls = %+v", calls)
	}
}

func TestRegistry(t *testing.T) {
	t.Run("from config skips providers without keys", func(t *testing.T) {
		r := NewRegistryFromConfig(map[string]ProviderConfig{
			"gemini":  {Type: GeminiName, APIKey: "g"},
			"mistral": {Type: MistralName},
			"mock":    {Type: MockName},
			"weird":   {Type: "nope", APIKey: "x"},
		}, nil)

		got := r.List()
		want := []string{"gemini", "mock"}
		if len(got) != len(want) {
			t.Fatalf("List() = %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("List()[%d] = %q, want %q", i, got[i], want[i])
			}
		}

		c, err := r.Get("gemini")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if c.Name() != GeminiName {
			t.Errorf("Name() = %q", c.Name())
		}
	})

	t.Run("get unknown returns ErrNotConfigured", func(t *testing.T) {
		r := NewRegistry()
		if _, err := r.Get("missing"); !errors.Is(err, ErrNotConfigured) {
			t.Errorf("expected ErrNotConfigured, got %v", err)
		}
	})

	t.Run("reload keeps unchanged and drops removed", func(t *testing.T) {
		cfgs := map[string]ProviderConfig{
			"a": {Type: MockName},
			"b": {Type: MistralName, APIKey: "k"},
		}
		r := NewRegistryFromConfig(cfgs, nil)
		before, _ := r.Get("a")

		r.Reload(map[string]ProviderConfig{"a": {Type: MockName}})
		after, err := r.Get("a")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if before != after {
			t.Error("expected unchanged provider to keep its client")
		}
		if _, err := r.Get("b"); err == nil {
			t.Error("expected removed provider to be unregistered")
		}
	})
}

func TestRegistry_Lookup(t *testing.T) {
	r := NewRegistryFromConfig(map[string]ProviderConfig{"main": {Type: MockName}}, nil)
	c := r.Lookup("main")
	if c.Name() != MockName {
		t.Errorf("Name() = %q", c.Name())
	}
	if tags, err := c.Classify(context.Background(), []byte("x"), "image/png"); err != nil || tags != "mock" {
		t.Errorf("Classify() = %q, %v", tags, err)
	}

	r.Reload(map[string]ProviderConfig{})
	_, err := c.Classify(context.Background(), []byte("x"), "image/png")
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured after removal, got %v", err)
	}
}

func TestModelName(t *testing.T) {
	r := NewRegistryFromConfig(map[string]ProviderConfig{
		"vision": {Type: GeminiName, APIKey: "k"},
		"local":  {Type: MistralName, APIKey: "k", Model: "pixtral-large-latest"},
		"fake":   {Type: MockName},
	}, nil)

	tests := []struct {
		name string
		want string
	}{
		{"vision", GeminiModel},
		{"local", "pixtral-large-latest"},
		{"fake", ""},
		{"missing", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ModelName(r.Lookup(tt.name)); got != tt.want {
				t.Errorf("ModelName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLiveClassify(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping live provider test in short mode")
	}
	cfg := LoadTestConfig()
	if !cfg.HasGemini() {
		t.Skip("GEMINI_API_KEY not set")
	}
	// 1x1 transparent PNG
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00\x1f\x15\xc4\x89\x00\x00\x00\rIDATx\x9cc\xf8\x0f\x00\x00\x01\x01\x00\x05\x18\xd8N\x00\x00\x00\x00IEND\xaeB`\x82")
	client := NewGeminiClient(OpenAIVisionConfig{APIKey: cfg.GeminiAPIKey})
	if _, err := client.Classify(context.Background(), png, "image/png"); err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
}
