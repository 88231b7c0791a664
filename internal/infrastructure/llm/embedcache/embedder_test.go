package embedcache

import (
	"context"
	"errors"
	"testing"
)

type countingEmbedder struct {
	batches [][]string
	fail    bool
}

func (c *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if c.fail {
		return nil, errors.New("embed down")
	}
	c.batches = append(c.batches, append([]string(nil), texts...))
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text))}
	}
	return out, nil
}

func (c *countingEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func TestEmbedOnlySendsMisses(t *testing.T) {
	inner := &countingEmbedder{}
	cache := New(inner, "nomic", 10)

	if _, err := cache.Embed(context.Background(), []string{"seal", "gasket"}); err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	out, err := cache.Embed(context.Background(), []string{"gasket", "weld seam"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(inner.batches) != 2 || len(inner.batches[1]) != 1 || inner.batches[1][0] != "weld seam" {
		t.Fatalf("unexpected inner batches: %v", inner.batches)
	}
	if out[0][0] != 6 || out[1][0] != 9 {
		t.Fatalf("vectors out of order: %v", out)
	}
}

func TestEmbedQueryHitsCache(t *testing.T) {
	inner := &countingEmbedder{}
	cache := New(inner, "nomic", 10)
	for i := 0; i < 3; i++ {
		if _, err := cache.EmbedQuery(context.Background(), "leaking seal"); err != nil {
			t.Fatalf("EmbedQuery() error = %v", err)
		}
	}
	if len(inner.batches) != 1 || cache.Len() != 1 {
		t.Fatalf("expected one inner call, got %d (len %d)", len(inner.batches), cache.Len())
	}
}

func TestEmbedDoesNotCacheFailures(t *testing.T) {
	inner := &countingEmbedder{fail: true}
	cache := New(inner, "nomic", 10)
	if _, err := cache.EmbedQuery(context.Background(), "x"); err == nil {
		t.Fatalf("expected error")
	}
	if cache.Len() != 0 {
		t.Fatalf("expected empty cache")
	}
}
