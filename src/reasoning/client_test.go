package reasoning

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testConfig(baseURL string) Config {
	return Config{
		BaseURL:   baseURL,
		APIKey:    "test-key",
		Model:     "test-model",
		MaxTokens: 512,
		Timeout:   2 * time.Second,
	}
}

func TestGenerateReturnsText(t *testing.T) {
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Fatalf("missing api key header")
		}
		if r.Header.Get("anthropic-version") == "" {
			t.Fatalf("missing version header")
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content": [{"type": "text", "text": "The trend is up."}]}`))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))

	text, err := client.Generate(context.Background(), "be brief", "what is the trend?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "The trend is up." {
		t.Fatalf("text = %q", text)
	}

	if gotBody["model"] != "test-model" {
		t.Fatalf("model = %v", gotBody["model"])
	}
	if gotBody["system"] != "be brief" {
		t.Fatalf("system prompt = %v", gotBody["system"])
	}
}

func TestGenerateSurfacesAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"type": "invalid_request_error", "message": "max_tokens too large"}}`))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))

	_, err := client.Generate(context.Background(), "", "prompt")
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "invalid_request_error") {
		t.Fatalf("error does not carry the API error type: %v", err)
	}
}

func TestGenerateWithoutAPIKey(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://localhost:1", Timeout: time.Second})

	_, err := client.Generate(context.Background(), "", "prompt")
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if client.IsConfigured() {
		t.Fatal("client without key reports configured")
	}
}

func TestGenerateRetriesServerErrors(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content": [{"type": "text", "text": "recovered"}]}`))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))

	text, err := client.Generate(context.Background(), "", "prompt")
	if err != nil {
		t.Fatalf("unexpected error after retry: %v", err)
	}
	if text != "recovered" {
		t.Fatalf("text = %q", text)
	}
	if attempts < 2 {
		t.Fatalf("expected a retry, got %d attempts", attempts)
	}
}
