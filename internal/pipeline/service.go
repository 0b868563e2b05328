// Package pipeline wires the engine together: it validates input, computes
// the claim timeline, runs the selected strategy and synthesizes the report.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/kalambet/claimcheck/internal/apperr"
	"github.com/kalambet/claimcheck/internal/claim"
	"github.com/kalambet/claimcheck/internal/criteria"
	"github.com/kalambet/claimcheck/internal/llm"
	"github.com/kalambet/claimcheck/internal/metrics"
	"github.com/kalambet/claimcheck/internal/prompts"
	"github.com/kalambet/claimcheck/internal/retrieval"
	"github.com/kalambet/claimcheck/internal/synth"
	"github.com/kalambet/claimcheck/internal/tone"
)

type Options struct {
	Namespace    string
	TopK         int
	MaxToolCalls int

	// Now is the clock used when a claim has no claim date.
	Now func() time.Time

	Metrics *metrics.Collector
}

// Service is immutable after construction and safe for concurrent use.
type Service struct {
	model     llm.Model
	prompts   prompts.Renderer
	retriever *retrieval.Retriever
	evaluator *criteria.Evaluator
	tone      *tone.Analyzer
	fast      *FastBatch
	deep      *DeepAgent
	metrics   *metrics.Collector
	now       func() time.Time

	maxToolCalls int
	topK         int
}

// NewService creates a Service. Calls to model and index are counted when
// opts.Metrics is set.
func NewService(model llm.Model, index retrieval.Index, p prompts.Renderer, opts Options) *Service {
	if opts.TopK <= 0 {
		opts.TopK = retrieval.DefaultTopK
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Namespace == "" {
		opts.Namespace = "default"
	}
	maxToolCalls := retrieval.ClampToolCalls(opts.MaxToolCalls)

	model = opts.Metrics.InstrumentModel(model)
	index = opts.Metrics.InstrumentIndex(index)

	retriever := retrieval.NewRetriever(index, model, opts.Namespace, opts.TopK)
	evaluator := criteria.NewEvaluator(model, p)

	return &Service{
		model:     model,
		prompts:   p,
		retriever: retriever,
		evaluator: evaluator,
		tone:      tone.NewAnalyzer(model, p),
		fast:      &FastBatch{retriever: retriever, evaluator: evaluator, topK: opts.TopK},
		deep: &DeepAgent{
			retriever:    retriever,
			evaluator:    evaluator,
			prompts:      p,
			metrics:      opts.Metrics,
			maxToolCalls: maxToolCalls,
			topK:         opts.TopK,
		},
		metrics:      opts.Metrics,
		now:          opts.Now,
		maxToolCalls: maxToolCalls,
		topK:         opts.TopK,
	}
}

// Retriever exposes the policy retriever for direct searches.
func (s *Service) Retriever() *retrieval.Retriever { return s.retriever }

// SelectStrategy maps a depth to its strategy.
func (s *Service) SelectStrategy(depth string) (Strategy, error) {
	d, err := ParseDepth(depth)
	if err != nil {
		return nil, err
	}
	if d == Deep {
		return s.deep, nil
	}
	return s.fast, nil
}

// Evaluate scores how the agent handled rec. Input is validated before any
// external call. On an upstream failure no partial report is returned.
func (s *Service) Evaluate(ctx context.Context, rec claim.Record, depth string) (synth.Report, error) {
	start := time.Now()

	strategy, err := s.SelectStrategy(depth)
	if err != nil {
		s.metrics.RecordEvaluation("unknown", "invalid", time.Since(start))
		return synth.Report{}, err
	}
	name := string(strategy.Name())

	if err := rec.ValidateForEvaluation(); err != nil {
		s.metrics.RecordEvaluation(name, "invalid", time.Since(start))
		return synth.Report{}, err
	}
	tl, err := claim.ComputeTimeline(rec.DeliveryDate, rec.ClaimDate, s.now())
	if err != nil {
		s.metrics.RecordEvaluation(name, "invalid", time.Since(start))
		return synth.Report{}, err
	}

	res, err := strategy.Evaluate(ctx, rec, tl)
	if err != nil {
		s.metrics.RecordEvaluation(name, statusOf(err), time.Since(start))
		slog.Warn("claim evaluation failed", "strategy", name, "error", err)
		return synth.Report{}, err
	}

	report := synth.Synthesize(synth.Input{
		Record:     rec,
		Timeline:   tl,
		Outcome:    res.Outcome,
		Strategy:   name,
		RawSources: res.RawSources,
		Bounds:     res.Bounds,
	})

	s.metrics.RecordEvaluation(name, "ok", time.Since(start))
	slog.Info("claim evaluated",
		"strategy", name,
		"eligible", report.FinalEligibility.IsEligible,
		"reduced_confidence", report.ReducedConfidence,
		"sources", len(report.Sources),
		"duration", time.Since(start),
	)
	return report, nil
}

func statusOf(err error) string {
	var ue *apperr.UpstreamServiceError
	switch {
	case errors.As(err, &ue):
		return "upstream_error"
	case apperr.IsValidation(err):
		return "invalid"
	default:
		return "error"
	}
}
