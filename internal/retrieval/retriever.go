package retrieval

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/claimcheck/internal/apperr"
	"github.com/kalambet/claimcheck/internal/llm"
)

const (
	// MaxBatchQueries bounds a single RetrieveBatch call.
	MaxBatchQueries = 4

	DefaultTopK = 4
)

// Retriever runs queries against one namespace of the policy index.
type Retriever struct {
	index     Index
	model     llm.Model
	namespace string
	topK      int
}

// NewRetriever creates a Retriever. model drives RetrieveViaAgent and may
// be nil when only batch retrieval is used.
func NewRetriever(index Index, model llm.Model, namespace string, topK int) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Retriever{index: index, model: model, namespace: namespace, topK: topK}
}

// Namespace returns the index namespace this retriever searches.
func (r *Retriever) Namespace() string { return r.namespace }

// Search runs a single query.
func (r *Retriever) Search(ctx context.Context, query string, topK int) ([]PolicyPassage, error) {
	if topK <= 0 {
		topK = r.topK
	}
	passages, err := r.index.Search(ctx, query, topK, r.namespace)
	if err != nil {
		return nil, apperr.Upstream(apperr.ServiceIndex, "search", err)
	}
	return passages, nil
}

// RetrieveBatch issues queries concurrently and returns one result per
// query in input order. If any query fails the whole batch fails: an
// evaluation must not be grounded on a partial policy picture.
func (r *Retriever) RetrieveBatch(ctx context.Context, queries []string, topK int) ([]RetrievalResult, error) {
	if len(queries) == 0 {
		return nil, nil
	}
	if len(queries) > MaxBatchQueries {
		return nil, fmt.Errorf("batch of %d queries exceeds the limit of %d", len(queries), MaxBatchQueries)
	}
	if topK <= 0 {
		topK = r.topK
	}

	results := make([]RetrievalResult, len(queries))
	g, gCtx := errgroup.WithContext(ctx)
	for i, q := range queries {
		g.Go(func() error {
			passages, err := r.index.Search(gCtx, q, topK, r.namespace)
			if err != nil {
				return apperr.Upstream(apperr.ServiceIndex, "search", fmt.Errorf("batch query %d: %w", i, err))
			}
			results[i] = RetrievalResult{Query: q, Passages: passages, Mode: ModeBatch}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
