package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/lessons-learned/internal/core/domain"
	"github.com/kirillkom/lessons-learned/internal/infrastructure/resilience"
)

// pointNamespace derives stable point ids so re-indexing an entry overwrites it.
var pointNamespace = uuid.MustParse("5b0c6f0e-2d0a-4f8e-9a57-6c1f3e3d9a10")

type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	executor   *resilience.Executor

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

func New(baseURL, collection string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func NewWithResilience(baseURL, collection string, executor *resilience.Executor) *Client {
	c := New(baseURL, collection)
	c.executor = executor
	return c
}

type point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

func (c *Client) IndexEntries(ctx context.Context, entries []domain.KnowledgeEntry, vectors [][]float32) error {
	if len(entries) == 0 || len(vectors) == 0 {
		return nil
	}
	if len(entries) != len(vectors) {
		return fmt.Errorf("entries/vectors mismatch: %d != %d", len(entries), len(vectors))
	}

	if err := c.ensureCollection(ctx, len(vectors[0])); err != nil {
		return err
	}

	points := make([]point, 0, len(entries))
	for i, entry := range entries {
		points = append(points, point{
			ID:      uuid.NewSHA1(pointNamespace, []byte(entry.ID)).String(),
			Vector:  vectors[i],
			Payload: entryPayload(entry),
		})
	}

	url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.baseURL, c.collection)
	return c.call(ctx, "upsert", func(ctx context.Context) error {
		return c.send(ctx, http.MethodPut, url, map[string]any{"points": points}, nil, "upsert")
	})
}

func (c *Client) SearchEntries(ctx context.Context, queryVector []float32, limit int) ([]domain.KnowledgeHit, error) {
	if len(queryVector) == 0 || limit <= 0 {
		return nil, nil
	}
	reqBody := map[string]any{
		"vector":       queryVector,
		"limit":        limit,
		"with_payload": true,
	}

	var searchResp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)
	err := c.call(ctx, "search", func(ctx context.Context) error {
		return c.send(ctx, http.MethodPost, url, reqBody, &searchResp, "search")
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.KnowledgeHit, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		out = append(out, domain.KnowledgeHit{
			Entry: payloadEntry(r.Payload),
			Score: r.Score,
		})
	}
	return out, nil
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}

	url := fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)
	err := c.call(ctx, "ensure_collection", func(ctx context.Context) error {
		return c.send(ctx, http.MethodPut, url, reqBody, nil, "ensure collection")
	})
	if err != nil {
		return err
	}
	c.markCollectionEnsured(vectorSize)
	return nil
}

func (c *Client) markCollectionEnsured(vectorSize int) {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
}

func (c *Client) call(ctx context.Context, operation string, fn func(context.Context) error) error {
	var err error
	if c.executor == nil {
		err = fn(ctx)
	} else {
		err = c.executor.Execute(ctx, "qdrant_"+operation, fn, resilience.ClassifyHTTPError)
	}
	return resilience.WrapTemporaryIfNeeded("qdrant "+operation, err, resilience.ClassifyHTTPError)
}

func (c *Client) send(ctx context.Context, method, url string, payload, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", operation, err)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	// 409 on collection create means it already exists.
	if resp.StatusCode == http.StatusConflict && operation == "ensure collection" {
		return nil
	}
	if resp.StatusCode >= 300 {
		return resilience.NewHTTPStatusError("qdrant", operation, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func entryPayload(e domain.KnowledgeEntry) map[string]any {
	return map[string]any{
		"entry_id":       e.ID,
		"doc_id":         e.DocumentID,
		"filename":       e.Filename,
		"row":            e.Row,
		"title":          e.Title,
		"description":    e.Description,
		"solution":       e.Solution,
		"department":     e.Department,
		"commodity":      e.Commodity,
		"part_number":    e.PartNumber,
		"supplier":       e.Supplier,
		"error_location": e.ErrorLocation,
		"error_type":     e.ErrorType,
		"text":           e.Text,
	}
}

func payloadEntry(payload map[string]any) domain.KnowledgeEntry {
	return domain.KnowledgeEntry{
		ID:            getStringPayload(payload, "entry_id"),
		DocumentID:    getStringPayload(payload, "doc_id"),
		Filename:      getStringPayload(payload, "filename"),
		Row:           getIntPayload(payload, "row"),
		Title:         getStringPayload(payload, "title"),
		Description:   getStringPayload(payload, "description"),
		Solution:      getStringPayload(payload, "solution"),
		Department:    getStringPayload(payload, "department"),
		Commodity:     getStringPayload(payload, "commodity"),
		PartNumber:    getStringPayload(payload, "part_number"),
		Supplier:      getStringPayload(payload, "supplier"),
		ErrorLocation: getStringPayload(payload, "error_location"),
		ErrorType:     getStringPayload(payload, "error_type"),
		Text:          getStringPayload(payload, "text"),
	}
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func getIntPayload(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
