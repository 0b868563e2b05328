package criteria

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kalambet/claimcheck/internal/apperr"
	"github.com/kalambet/claimcheck/internal/claim"
	"github.com/kalambet/claimcheck/internal/llm"
	"github.com/kalambet/claimcheck/internal/prompts"
	"github.com/kalambet/claimcheck/internal/retrieval"
)

// Evaluator runs the model-assisted criteria.
type Evaluator struct {
	model   llm.Model
	prompts prompts.Renderer
}

func NewEvaluator(model llm.Model, p prompts.Renderer) *Evaluator {
	return &Evaluator{model: model, prompts: p}
}

// EvaluateBatch judges criteria 2 to 5 and the final verdict in one model
// call. batch holds the results of BatchQueries in order: warranty terms,
// then evidence requirements.
func (e *Evaluator) EvaluateBatch(ctx context.Context, rec claim.Record, tl claim.Timeline, batch []retrieval.RetrievalResult) (Outcome, error) {
	var warrantyLabels, evidenceLabels []string
	if len(batch) > 0 {
		warrantyLabels = retrieval.Labels(batch[0].Passages)
	}
	if len(batch) > 1 {
		evidenceLabels = retrieval.Labels(batch[1].Passages)
	}
	passages := retrieval.Passages(batch)
	allLabels := retrieval.Labels(passages)

	prompt, err := e.prompts.Render(prompts.BatchEvaluation, map[string]any{
		"HasContract":  rec.HasContract(),
		"ClaimContext": ClaimContext(rec, tl),
		"Policies":     retrieval.FormatPassages(passages),
	})
	if err != nil {
		return Outcome{}, err
	}

	var notes []string
	var ans batchAnswer
	if err := e.completeJSON(ctx, prompt, &ans); err != nil {
		if !isParseError(err) {
			return Outcome{}, err
		}
		notes = append(notes, "The evaluation model returned an unreadable answer; criteria 2 to 5 need manual review.")
		ans = batchAnswer{}
	}

	set := Set{
		Contract:    VerifyContract(rec),
		Delivery:    EvaluateDelivery(tl, passages, ans.Delivery.warranty(warrantyLabels)),
		Damage:      ans.Damage.check(allLabels),
		Attachments: CheckAttachments(rec, passages, ans.Attachments.check(evidenceLabels)),
		Decision:    ans.Decision.decision(allLabels),
	}
	decision, note := Reconcile(set, eligibleInput(rec))
	set.Decision = decision
	if note != "" {
		notes = append(notes, note)
	}

	return Outcome{Set: set, Final: ans.final(), Notes: notes}, nil
}

// EvaluateGathered judges criteria 2 to 4 one at a time, each over the
// passages gathered for it, then asks for the eligibility decision and
// final verdict over everything gathered.
func (e *Evaluator) EvaluateGathered(ctx context.Context, rec claim.Record, tl claim.Timeline, gathered map[Name][]retrieval.PolicyPassage) (Outcome, error) {
	set := Set{Contract: VerifyContract(rec)}
	claimCtx := ClaimContext(rec, tl)
	var notes []string
	var all []retrieval.RetrievalResult

	for _, plan := range Plans(rec) {
		passages := gathered[plan.Name]
		all = append(all, retrieval.RetrievalResult{Passages: passages})
		labels := retrieval.Labels(passages)

		prompt, err := e.prompts.Render(prompts.Criterion, map[string]any{
			"ClaimContext": claimCtx,
			"Policies":     retrieval.FormatPassages(passages),
			"Criterion":    plan.Title,
			"Question":     plan.Question,
			"ResultFormat": plan.ResultFormat,
		})
		if err != nil {
			return Outcome{}, err
		}

		switch plan.Name {
		case DeliveryDate:
			var ans *warrantyAnswer
			if err := e.completeJSON(ctx, prompt, &ans); err != nil {
				if !isParseError(err) {
					return Outcome{}, err
				}
				notes = append(notes, unparsedNote(plan.Name))
				ans = nil
			}
			set.Delivery = EvaluateDelivery(tl, passages, ans.warranty(labels))
		case DamageClassification:
			var ans *checkAnswer
			if err := e.completeJSON(ctx, prompt, &ans); err != nil {
				if !isParseError(err) {
					return Outcome{}, err
				}
				notes = append(notes, unparsedNote(plan.Name))
				ans = nil
			}
			set.Damage = ans.check(labels)
		case AttachmentsVerification:
			var ans *checkAnswer
			if err := e.completeJSON(ctx, prompt, &ans); err != nil {
				if !isParseError(err) {
					return Outcome{}, err
				}
				notes = append(notes, unparsedNote(plan.Name))
				ans = nil
			}
			set.Attachments = CheckAttachments(rec, passages, ans.check(labels))
		}
	}

	passages := retrieval.Passages(all)
	prompt, err := e.prompts.Render(prompts.FinalVerdict, map[string]any{
		"PriorResults": PriorResults(set),
		"ClaimContext": claimCtx,
		"Policies":     retrieval.FormatPassages(passages),
	})
	if err != nil {
		return Outcome{}, err
	}

	var verdict verdictAnswer
	if err := e.completeJSON(ctx, prompt, &verdict); err != nil {
		if !isParseError(err) {
			return Outcome{}, err
		}
		notes = append(notes, unparsedNote(EligibilityDecision))
		verdict = verdictAnswer{}
	}

	set.Decision = verdict.Decision.decision(retrieval.Labels(passages))
	decision, note := Reconcile(set, eligibleInput(rec))
	set.Decision = decision
	if note != "" {
		notes = append(notes, note)
	}

	return Outcome{Set: set, Final: verdict.final(), Notes: notes}, nil
}

// PriorResults summarizes criteria 1 to 4 for the final verdict prompt.
func PriorResults(s Set) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "1. Contract Verification: %s. %s\n", s.Contract.Result, s.Contract.Explanation)
	fmt.Fprintf(&sb, "2. Delivery Date: %s. %s\n", s.Delivery.Result, s.Delivery.Recommendation)
	fmt.Fprintf(&sb, "3. Damage Classification: %s. %s\n", passFail(s.Damage.Result), s.Damage.Recommendation)
	fmt.Fprintf(&sb, "4. Attachments: %s. %s\n", passFail(s.Attachments.Result), s.Attachments.Recommendation)
	return sb.String()
}

type parseError struct{ err error }

func (e *parseError) Error() string { return "parsing model response: " + e.err.Error() }
func (e *parseError) Unwrap() error { return e.err }

func isParseError(err error) bool {
	_, ok := err.(*parseError)
	return ok
}

// completeJSON sends a single-turn JSON request and decodes the answer.
// Transport failures are returned as UpstreamServiceError, undecodable
// answers as *parseError.
func (e *Evaluator) completeJSON(ctx context.Context, prompt string, v any) error {
	resp, err := e.model.Complete(ctx, llm.Request{
		Messages: []llm.Message{llm.User(prompt)},
		JSON:     true,
	})
	if err != nil {
		return apperr.Upstream(apperr.ServiceModel, "complete", err)
	}
	if err := llm.DecodeJSON(resp.Text, v); err != nil {
		slog.Warn("failed to parse evaluation from model response", "error", err, "response", resp.Text)
		return &parseError{err: err}
	}
	return nil
}

func unparsedNote(n Name) string {
	return fmt.Sprintf("The model answer for %s was unreadable and needs manual review.", n)
}

func eligibleInput(rec claim.Record) bool {
	return rec.Eligible != nil && *rec.Eligible
}

func passFail(b bool) string {
	if b {
		return "PASS"
	}
	return "FAIL"
}
