package pipeline

import (
	"context"
	"log/slog"
	"strings"

	"github.com/kalambet/claimcheck/internal/apperr"
	"github.com/kalambet/claimcheck/internal/claim"
	"github.com/kalambet/claimcheck/internal/criteria"
	"github.com/kalambet/claimcheck/internal/llm"
	"github.com/kalambet/claimcheck/internal/prompts"
	"github.com/kalambet/claimcheck/internal/retrieval"
	"github.com/kalambet/claimcheck/internal/synth"
	"github.com/kalambet/claimcheck/internal/tone"
)

// Communication approaches.
const (
	ApproachStandard     = "standard"
	ApproachEmpathetic   = "empathetic"
	ApproachDeEscalation = "de-escalation"
	ApproachFormal       = "formal"
)

const analysisFocus = "policies, deadlines and procedures that apply to handling this claim"

type PolicyRecommendation struct {
	PolicyReference string `json:"policy_reference"`
	Recommendation  string `json:"recommendation"`
	Priority        string `json:"priority"`
}

type Communication struct {
	Approach         string   `json:"approach"`
	Tips             []string `json:"tips"`
	SuggestedOpening string   `json:"suggested_opening"`
}

// ClaimSummary restates the claim facts the analysis was built on.
type ClaimSummary struct {
	ClaimType   claim.ClaimType   `json:"claim_type"`
	ProductType claim.ProductType `json:"product_type"`
	DamageType  claim.DamageType  `json:"damage_type"`
	claim.Timeline
}

// ClaimAnalysis is guidance for an agent about to handle a claim.
type ClaimAnalysis struct {
	Summary                      ClaimSummary           `json:"claim_summary"`
	Tone                         tone.Analysis          `json:"tone_analysis"`
	PolicyRecommendations        []PolicyRecommendation `json:"policy_recommendations"`
	CommunicationRecommendations Communication          `json:"communication_recommendations"`
	NextSteps                    []string               `json:"next_steps"`
	Sources                      []string               `json:"sources"`
	ReducedConfidence            bool                   `json:"reduced_confidence,omitempty"`
}

// AnalyzeClaim classifies the customer's tone, researches the applicable
// policies and asks the model for structured recommendations.
func (s *Service) AnalyzeClaim(ctx context.Context, rec claim.Record) (ClaimAnalysis, error) {
	if err := rec.Validate(); err != nil {
		return ClaimAnalysis{}, err
	}
	tl, err := claim.ComputeTimeline(rec.DeliveryDate, rec.ClaimDate, s.now())
	if err != nil {
		return ClaimAnalysis{}, err
	}

	ta, err := s.tone.Analyze(ctx, rec.Description)
	if err != nil {
		return ClaimAnalysis{}, apperr.Upstream(apperr.ServiceModel, "tone", err)
	}

	claimCtx := criteria.ClaimContext(rec, tl)
	system, err := s.prompts.Render(prompts.AgentRetrieval, map[string]any{"Focus": analysisFocus})
	if err != nil {
		return ClaimAnalysis{}, err
	}
	res, err := s.retriever.RetrieveViaAgent(ctx, retrieval.AgentRequest{
		SystemPrompt: system,
		Context:      claimCtx,
		SeedQuery:    criteria.BatchQueries(rec)[0],
		MaxToolCalls: s.maxToolCalls,
		TopK:         s.topK,
	})
	if err != nil {
		return ClaimAnalysis{}, err
	}
	s.metrics.RecordAgentSteps("analyze", res.Steps)
	passages := res.Passages()

	prompt, err := s.prompts.Render(prompts.ClaimAnalysis, map[string]any{
		"ClaimContext": claimCtx,
		"Tone":         ta,
		"Policies":     retrieval.FormatPassages(passages),
	})
	if err != nil {
		return ClaimAnalysis{}, err
	}

	resp, err := s.model.Complete(ctx, llm.Request{Messages: []llm.Message{llm.User(prompt)}, JSON: true})
	if err != nil {
		return ClaimAnalysis{}, apperr.Upstream(apperr.ServiceModel, "complete", err)
	}

	out := ClaimAnalysis{}
	if err := llm.DecodeJSON(resp.Text, &out); err != nil {
		slog.Warn("failed to parse claim analysis from model response", "error", err, "response", resp.Text)
		out = ClaimAnalysis{
			NextSteps: []string{"Review the claim manually against the cited policy sections."},
		}
	}

	out.Summary = ClaimSummary{
		ClaimType:   rec.ClaimType,
		ProductType: rec.ProductType,
		DamageType:  rec.DamageType,
		Timeline:    tl,
	}
	out.Tone = ta
	out.CommunicationRecommendations.Approach = normalizeApproach(out.CommunicationRecommendations.Approach, ta.Tone)
	if out.PolicyRecommendations == nil {
		out.PolicyRecommendations = []PolicyRecommendation{}
	}
	for i := range out.PolicyRecommendations {
		out.PolicyRecommendations[i].Priority = normalizePriority(out.PolicyRecommendations[i].Priority)
	}
	if out.CommunicationRecommendations.Tips == nil {
		out.CommunicationRecommendations.Tips = []string{}
	}
	if out.NextSteps == nil {
		out.NextSteps = []string{}
	}
	out.Sources = synth.DedupSources(retrieval.Labels(passages))
	out.ReducedConfidence = res.BoundExceeded
	return out, nil
}

// ApproachForTone picks a communication approach when the model gives none.
func ApproachForTone(t tone.Tone) string {
	switch t {
	case tone.Frustrated:
		return ApproachDeEscalation
	case tone.Negative:
		return ApproachEmpathetic
	default:
		return ApproachStandard
	}
}

func normalizeApproach(a string, t tone.Tone) string {
	switch s := strings.ToLower(strings.TrimSpace(a)); s {
	case ApproachStandard, ApproachEmpathetic, ApproachDeEscalation, ApproachFormal:
		return s
	case "deescalation", "de escalation":
		return ApproachDeEscalation
	default:
		return ApproachForTone(t)
	}
}

func normalizePriority(p string) string {
	switch s := strings.ToLower(strings.TrimSpace(p)); s {
	case "high", "medium", "low":
		return s
	default:
		return "medium"
	}
}
