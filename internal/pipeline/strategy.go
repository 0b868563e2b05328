package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/kalambet/claimcheck/internal/apperr"
	"github.com/kalambet/claimcheck/internal/claim"
	"github.com/kalambet/claimcheck/internal/criteria"
	"github.com/kalambet/claimcheck/internal/metrics"
	"github.com/kalambet/claimcheck/internal/prompts"
	"github.com/kalambet/claimcheck/internal/retrieval"
)

// Depth is the caller's choice of evaluation strategy.
type Depth string

const (
	Fast Depth = "fast"
	Deep Depth = "deep"
)

// ParseDepth accepts "fast" or "deep", case-insensitively.
func ParseDepth(s string) (Depth, error) {
	switch d := Depth(strings.ToLower(strings.TrimSpace(s))); d {
	case Fast, Deep:
		return d, nil
	default:
		return "", apperr.Invalid("depth", fmt.Sprintf("unknown value %q; must be fast or deep", s))
	}
}

// StrategyResult is what a strategy hands to the synthesizer.
type StrategyResult struct {
	Outcome criteria.Outcome

	// RawSources are the labels of every passage retrieved.
	RawSources []string
	Bounds     []*apperr.AgentBoundExceeded
}

// Strategy evaluates a validated claim. Implementations never fall back to
// one another.
type Strategy interface {
	Name() Depth
	Evaluate(ctx context.Context, rec claim.Record, tl claim.Timeline) (StrategyResult, error)
}

// FastBatch runs two static queries concurrently and judges criteria 2 to 5
// in a single model call.
type FastBatch struct {
	retriever *retrieval.Retriever
	evaluator *criteria.Evaluator
	topK      int
}

func (f *FastBatch) Name() Depth { return Fast }

func (f *FastBatch) Evaluate(ctx context.Context, rec claim.Record, tl claim.Timeline) (StrategyResult, error) {
	results, err := f.retriever.RetrieveBatch(ctx, criteria.BatchQueries(rec), f.topK)
	if err != nil {
		return StrategyResult{}, err
	}

	out, err := f.evaluator.EvaluateBatch(ctx, rec, tl, results)
	if err != nil {
		return StrategyResult{}, err
	}

	return StrategyResult{
		Outcome:    out,
		RawSources: retrieval.Labels(retrieval.Passages(results)),
	}, nil
}

// DeepAgent researches criteria 2 to 4 one at a time with a bounded agent
// loop each, then judges every criterion over what it gathered.
type DeepAgent struct {
	retriever    *retrieval.Retriever
	evaluator    *criteria.Evaluator
	prompts      prompts.Renderer
	metrics      *metrics.Collector
	maxToolCalls int
	topK         int
}

func (d *DeepAgent) Name() Depth { return Deep }

func (d *DeepAgent) Evaluate(ctx context.Context, rec claim.Record, tl claim.Timeline) (StrategyResult, error) {
	claimCtx := criteria.ClaimContext(rec, tl)
	gathered := make(map[criteria.Name][]retrieval.PolicyPassage)
	var all []retrieval.RetrievalResult
	var bounds []*apperr.AgentBoundExceeded

	for _, plan := range criteria.Plans(rec) {
		system, err := d.prompts.Render(prompts.AgentRetrieval, map[string]any{"Focus": plan.Focus})
		if err != nil {
			return StrategyResult{}, err
		}

		res, err := d.retriever.RetrieveViaAgent(ctx, retrieval.AgentRequest{
			SystemPrompt: system,
			Context:      claimCtx,
			SeedQuery:    plan.SeedQuery,
			MaxToolCalls: d.maxToolCalls,
			TopK:         d.topK,
		})
		if err != nil {
			return StrategyResult{}, fmt.Errorf("researching %s: %w", plan.Name, err)
		}

		d.metrics.RecordAgentSteps(string(Deep), res.Steps)
		gathered[plan.Name] = res.Passages()
		all = append(all, res.Results...)
		if res.BoundExceeded {
			bounds = append(bounds, &apperr.AgentBoundExceeded{Steps: res.Steps, Cap: res.Cap})
		}
	}

	out, err := d.evaluator.EvaluateGathered(ctx, rec, tl, gathered)
	if err != nil {
		return StrategyResult{}, err
	}

	return StrategyResult{
		Outcome:    out,
		RawSources: retrieval.Labels(retrieval.Passages(all)),
		Bounds:     bounds,
	}, nil
}
