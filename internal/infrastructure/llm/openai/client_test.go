package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/lessons-learned/internal/core/domain"
)

func chatServer(t *testing.T, status int, content string, captured *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if captured != nil {
			_ = json.NewDecoder(r.Body).Decode(captured)
		}
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"upstream overloaded","type":"server_error"}}`))
			return
		}
		body, _ := json.Marshal(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"choices": []map[string]any{{"index": 0, "message": map[string]any{"role": "assistant", "content": content}}},
		})
		_, _ = w.Write(body)
	}))
}

func TestWebProviderParsesResults(t *testing.T) {
	var payload map[string]any
	content := "Here you go: {\"results\":[{\"title\":\"Seal leak root cause\",\"url\":\"https://example.org/seal\",\"snippet\":\"Solution: replace O-ring\"},{\"title\":\"\",\"url\":\"https://x\"}]}"
	server := chatServer(t, http.StatusOK, content, &payload)
	defer server.Close()

	provider := NewWebProvider(New(Config{APIKey: "k", BaseURL: server.URL + "/v1", Model: "gpt-test"}, nil))
	hits, err := provider.SearchWeb(context.Background(), "quality seal leak", 5)
	if err != nil {
		t.Fatalf("SearchWeb() error = %v", err)
	}
	if len(hits) != 1 || hits[0].URL != "https://example.org/seal" {
		t.Fatalf("unexpected hits: %+v", hits)
	}
	if payload["model"] != "gpt-test" {
		t.Fatalf("unexpected model: %v", payload["model"])
	}
	format, _ := payload["response_format"].(map[string]any)
	if format["type"] != "json_object" {
		t.Fatalf("expected json response format, got %v", payload["response_format"])
	}
}

func TestSummaryWriterReturnsContent(t *testing.T) {
	server := chatServer(t, http.StatusOK, "  Focus on supplier batch 42.  ", nil)
	defer server.Close()

	writer := NewSummaryWriter(New(Config{APIKey: "k", BaseURL: server.URL + "/v1"}, nil))
	out, err := writer.WriteSummary(context.Background(), "summarize")
	if err != nil {
		t.Fatalf("WriteSummary() error = %v", err)
	}
	if out != "Focus on supplier batch 42." {
		t.Fatalf("unexpected summary %q", out)
	}
}

func TestServerErrorIsTemporary(t *testing.T) {
	server := chatServer(t, http.StatusServiceUnavailable, "", nil)
	defer server.Close()

	writer := NewSummaryWriter(New(Config{APIKey: "k", BaseURL: server.URL + "/v1"}, nil))
	_, err := writer.WriteSummary(context.Background(), "summarize")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
	if !strings.Contains(err.Error(), "upstream overloaded") {
		t.Fatalf("expected upstream message, got %v", err)
	}
}
