// Package synth assembles the evaluation report from the criteria results.
package synth

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kalambet/claimcheck/internal/apperr"
	"github.com/kalambet/claimcheck/internal/claim"
	"github.com/kalambet/claimcheck/internal/criteria"
)

const (
	MaxSources     = 20
	MaxSourceRunes = 80
)

type ClaimSummary struct {
	ClaimType           claim.ClaimType   `json:"claim_type"`
	ProductType         claim.ProductType `json:"product_type"`
	DamageType          claim.DamageType  `json:"damage_type"`
	Manufacturer        string            `json:"manufacturer"`
	ClaimDate           string            `json:"claim_date"`
	DaysSinceDelivery   int               `json:"days_since_delivery"`
	DaysDeliveryToClaim *int              `json:"days_delivery_to_claim"`
	EligibleInput       bool              `json:"eligible_input"`
}

// Report is the structured verdict returned for an evaluation.
type Report struct {
	ClaimSummary        ClaimSummary         `json:"claim_summary"`
	Criteria            criteria.Set         `json:"criteria"`
	FinalRecommendation string               `json:"final_recommendation"`
	FinalEligibility    criteria.Eligibility `json:"final_eligibility"`
	Sources             []string             `json:"sources"`
	Strategy            string               `json:"strategy"`
	ReducedConfidence   bool                 `json:"reduced_confidence"`
	Notes               []string             `json:"notes,omitempty"`
}

type Input struct {
	Record   claim.Record
	Timeline claim.Timeline
	Outcome  criteria.Outcome
	Strategy string

	// RawSources are section labels of every passage retrieved, cited or not.
	RawSources []string

	// Bounds lists agent loops that stopped at their tool-call cap.
	Bounds []*apperr.AgentBoundExceeded
}

// Synthesize merges the criteria results into a Report. It makes no calls.
func Synthesize(in Input) Report {
	eligible := in.Record.Eligible != nil && *in.Record.Eligible

	var cited []string
	for _, e := range in.Outcome.Set.Entries() {
		cited = append(cited, e.Evaluation.SourceLabels()...)
	}

	r := Report{
		ClaimSummary: ClaimSummary{
			ClaimType:           in.Record.ClaimType,
			ProductType:         in.Record.ProductType,
			DamageType:          in.Record.DamageType,
			Manufacturer:        in.Record.Manufacturer,
			ClaimDate:           in.Record.ClaimDate,
			DaysSinceDelivery:   in.Timeline.DaysSinceDelivery,
			DaysDeliveryToClaim: in.Timeline.DaysDeliveryToClaim,
			EligibleInput:       eligible,
		},
		Criteria:            normalizeSources(in.Outcome.Set),
		FinalRecommendation: in.Outcome.Final.Recommendation,
		FinalEligibility:    in.Outcome.Final.Eligibility,
		Sources:             DedupSources(cited, in.RawSources),
		Strategy:            in.Strategy,
		Notes:               append([]string(nil), in.Outcome.Notes...),
	}

	// Agent input and decision correctness together imply an outcome.
	implied := eligible == in.Outcome.Set.Decision.IsCorrect
	if r.FinalEligibility.IsEligible != implied {
		note := fmt.Sprintf("Discrepancy: the eligibility decision review implies the claim is %s, but the final verdict says %s.",
			eligibleWord(implied), eligibleWord(r.FinalEligibility.IsEligible))
		r.FinalEligibility.Justification = strings.TrimSpace(r.FinalEligibility.Justification + " " + note)
		r.Notes = append(r.Notes, note)
	}

	for _, b := range in.Bounds {
		if b == nil {
			continue
		}
		r.ReducedConfidence = true
		r.Notes = append(r.Notes, "Reduced confidence: "+b.Error()+".")
	}

	return r
}

// DedupSources merges label lists in first-seen order, dropping blanks and
// repeats, truncating long labels and keeping at most MaxSources.
func DedupSources(lists ...[]string) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, list := range lists {
		for _, s := range list {
			s = truncate(strings.TrimSpace(s))
			if s == "" || seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
			if len(out) == MaxSources {
				return out
			}
		}
	}
	return out
}

func normalizeSources(s criteria.Set) criteria.Set {
	s.Contract.Sources = DedupSources(s.Contract.Sources)
	s.Delivery.Sources = DedupSources(s.Delivery.Sources)
	s.Damage.Sources = DedupSources(s.Damage.Sources)
	s.Attachments.Sources = DedupSources(s.Attachments.Sources)
	s.Decision.Sources = DedupSources(s.Decision.Sources)
	return s
}

func truncate(s string) string {
	if utf8.RuneCountInString(s) <= MaxSourceRunes {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:MaxSourceRunes]))
}

func eligibleWord(b bool) string {
	if b {
		return "eligible"
	}
	return "not eligible"
}
