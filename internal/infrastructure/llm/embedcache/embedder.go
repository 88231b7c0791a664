package embedcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kirillkom/lessons-learned/internal/core/ports"
)

const DefaultSize = 1000

// Embedder memoizes vectors per model and text in front of another embedder.
type Embedder struct {
	inner ports.Embedder
	model string
	cache *lru.Cache[string, []float32]
}

func New(inner ports.Embedder, model string, size int) *Embedder {
	if size <= 0 {
		size = DefaultSize
	}
	cache, _ := lru.New[string, []float32](size)
	return &Embedder{
		inner: inner,
		model: model,
		cache: cache,
	}
}

func (e *Embedder) key(text string) string {
	sum := sha256.Sum256([]byte(text + "\x00" + e.model))
	return hex.EncodeToString(sum[:])
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := e.key(text)
	if vec, ok := e.cache.Get(key); ok {
		return vec, nil
	}
	vec, err := e.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Add(key, vec)
	return vec, nil
}

// Embed only sends the cache misses to the inner embedder.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	missIdx := make([]int, 0, len(texts))
	missTexts := make([]string, 0, len(texts))
	for i, text := range texts {
		if vec, ok := e.cache.Get(e.key(text)); ok {
			out[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vectors, err := e.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missTexts) {
		return nil, fmt.Errorf("embed cache: expected %d vectors, got %d", len(missTexts), len(vectors))
	}
	for j, idx := range missIdx {
		out[idx] = vectors[j]
		e.cache.Add(e.key(texts[idx]), vectors[j])
	}
	return out, nil
}

func (e *Embedder) Len() int {
	return e.cache.Len()
}
