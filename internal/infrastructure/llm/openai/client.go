package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kirillkom/lessons-learned/internal/core/domain"
	"github.com/kirillkom/lessons-learned/internal/infrastructure/resilience"
)

// Config holds the chat completion settings. An empty BaseURL keeps the library default.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

type Client struct {
	client   *openai.Client
	model    string
	executor *resilience.Executor
}

func New(cfg Config, executor *resilience.Executor) *Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &Client{
		client:   openai.NewClientWithConfig(clientCfg),
		model:    model,
		executor: executor,
	}
}

func (c *Client) complete(ctx context.Context, operation string, messages []openai.ChatCompletionMessage, jsonMode bool) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: 0.2,
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	var content string
	call := func(ctx context.Context) error {
		resp, err := c.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return normalizeAPIError(operation, err)
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("openai %s: empty choices", operation)
		}
		content = strings.TrimSpace(resp.Choices[0].Message.Content)
		return nil
	}

	var err error
	if c.executor == nil {
		err = call(ctx)
	} else {
		err = c.executor.Execute(ctx, "openai_"+operation, call, resilience.ClassifyHTTPError)
	}
	if err != nil {
		return "", resilience.WrapTemporaryIfNeeded("openai "+operation, err, resilience.ClassifyHTTPError)
	}
	return content, nil
}

// normalizeAPIError turns library errors into HTTPStatusError so the shared classifier applies.
func normalizeAPIError(operation string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &resilience.HTTPStatusError{
			Service:    "openai",
			Operation:  operation,
			StatusCode: apiErr.HTTPStatusCode,
			Status:     http.StatusText(apiErr.HTTPStatusCode),
			Body:       apiErr.Message,
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &resilience.HTTPStatusError{
			Service:    "openai",
			Operation:  operation,
			StatusCode: reqErr.HTTPStatusCode,
			Status:     http.StatusText(reqErr.HTTPStatusCode),
			Body:       string(reqErr.Body),
		}
	}
	return fmt.Errorf("openai %s request: %w", operation, err)
}

// WebProvider asks the chat model for web references on an industry problem.
type WebProvider struct {
	client *Client
}

func NewWebProvider(client *Client) *WebProvider {
	return &WebProvider{client: client}
}

const webSystemPrompt = `You are a manufacturing quality research assistant. For the given search query, list public web resources (industry articles, standards bodies, supplier notes) that describe how the problem was solved.
Respond with JSON only: {"results":[{"title":"...","url":"https://...","snippet":"... Solution: ..."}]}.`

func (p *WebProvider) SearchWeb(ctx context.Context, query string, limit int) ([]domain.WebHit, error) {
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return []domain.WebHit{}, nil
	}
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: webSystemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("Query: %s\nReturn at most %d results.", query, limit)},
	}
	raw, err := p.client.complete(ctx, "web_search", messages, true)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Results []domain.WebHit `json:"results"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &parsed); err != nil {
		return nil, fmt.Errorf("parse web search json: %w", err)
	}
	out := make([]domain.WebHit, 0, min(len(parsed.Results), limit))
	for _, hit := range parsed.Results {
		if strings.TrimSpace(hit.Title) == "" || strings.TrimSpace(hit.URL) == "" {
			continue
		}
		out = append(out, hit)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// SummaryWriter produces free-text insights with the chat model.
type SummaryWriter struct {
	client *Client
}

func NewSummaryWriter(client *Client) *SummaryWriter {
	return &SummaryWriter{client: client}
}

func (w *SummaryWriter) WriteSummary(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", nil
	}
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: "You summarize solution search results for quality engineers. Answer in at most five sentences."},
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	}
	return w.client.complete(ctx, "summary", messages, false)
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
