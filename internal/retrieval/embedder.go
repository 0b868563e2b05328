package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/claimcheck/internal/llm"
)

// CachedEmbedder memoizes embeddings by text. Static batch queries repeat
// across requests, so their vectors are served from memory.
type CachedEmbedder struct {
	inner llm.Embedder
	cache *gocache.Cache
}

// NewCachedEmbedder wraps inner with a TTL cache. A non-positive ttl
// disables expiry.
func NewCachedEmbedder(inner llm.Embedder, ttl time.Duration) *CachedEmbedder {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	return &CachedEmbedder{inner: inner, cache: gocache.New(ttl, 10*time.Minute)}
}

// Embed returns the embedding vector for a single text.
func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(text)
	if v, ok := e.cache.Get(key); ok {
		return v.([]float32), nil
	}
	vec, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.SetDefault(key, vec)
	return vec, nil
}

// EmbedBatch returns embedding vectors for multiple texts concurrently.
// Returns nil (not error) for empty input.
func (e *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	results := make([][]float32, len(texts))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for i, text := range texts {
		g.Go(func() error {
			vec, err := e.Embed(gCtx, text)
			if err != nil {
				return fmt.Errorf("embedding text %d: %w", i, err)
			}
			results[i] = vec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
