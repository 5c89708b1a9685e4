package embedding

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"
)

// Engine wraps a Provider with the query-embedding cache and ensures
// concurrent first-callers (e.g. a cold-start warmup racing a user's first
// message) share a single underlying call instead of each paying the
// provider round trip.
type Engine struct {
	provider Provider
	cache    *QueryCache
	group    singleflight.Group
}

// NewEngine creates an embedding engine over the given provider.
func NewEngine(provider Provider) *Engine {
	return &Engine{
		provider: provider,
		cache:    NewQueryCache(queryCacheSize),
	}
}

// Dimensions returns the underlying provider's vector size.
func (e *Engine) Dimensions() int {
	return e.provider.Dimensions()
}

// EmbedQuery embeds a short query string, serving from the LRU cache when
// the exact same string was embedded recently.
func (e *Engine) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := e.cache.Get(text); ok {
		return vec, nil
	}

	v, err, _ := e.group.Do(text, func() (any, error) {
		return e.provider.Embed(ctx, text)
	})
	if err != nil {
		return nil, fmt.Errorf("embedding: engine query: %w", err)
	}
	vec := v.([]float32)
	e.cache.Put(text, vec)
	return vec, nil
}

// EmbedChunks embeds document chunks for ingestion; these are not cached
// since each chunk's text is normally embedded exactly once.
func (e *Engine) EmbedChunks(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := e.provider.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding: engine batch: %w", err)
	}
	return vecs, nil
}

// Preload warms the provider with a trivial call so the first real request
// doesn't pay model cold-start latency (meaningful for Ollama's on-demand
// model loading; a no-op round trip for hosted APIs).
func (e *Engine) Preload(ctx context.Context) error {
	_, err, _ := e.group.Do("__preload__", func() (any, error) {
		return e.provider.Embed(ctx, "warmup")
	})
	if err != nil {
		return fmt.Errorf("embedding: preload: %w", err)
	}
	return nil
}
