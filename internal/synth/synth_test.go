package synth

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/kalambet/claimcheck/internal/apperr"
	"github.com/kalambet/claimcheck/internal/claim"
	"github.com/kalambet/claimcheck/internal/criteria"
)

func boolPtr(b bool) *bool { return &b }

func baseInput() Input {
	days := 15
	return Input{
		Record: claim.Record{
			ClaimType:    claim.DefectiveProduct,
			ProductType:  claim.Sofa,
			DamageType:   claim.Mechanical,
			Manufacturer: "Acme",
			ClaimDate:    "2024-03-16",
			Eligible:     boolPtr(true),
		},
		Timeline: claim.Timeline{DaysSinceDelivery: 15, DaysDeliveryToClaim: &days},
		Outcome: criteria.Outcome{
			Set: criteria.Set{
				Contract:    criteria.Deterministic{Result: criteria.Correct},
				Delivery:    criteria.Warranty{Result: criteria.InWarranty, Sources: []string{"A", "B"}},
				Damage:      criteria.BooleanCheck{Result: true, Sources: []string{"B"}},
				Attachments: criteria.BooleanCheck{Result: true, Sources: []string{"C"}},
				Decision:    criteria.Decision{IsCorrect: true, Sources: []string{"A", "C"}},
			},
			Final: criteria.Final{
				Recommendation: "Approve.",
				Eligibility:    criteria.Eligibility{IsEligible: true, Justification: "Within policy."},
			},
		},
		Strategy:   "fast",
		RawSources: []string{"D", "A"},
	}
}

func TestSynthesize(t *testing.T) {
	r := Synthesize(baseInput())

	want := []string{"A", "B", "C", "D"}
	if strings.Join(r.Sources, ",") != strings.Join(want, ",") {
		t.Errorf("Sources = %v, want %v", r.Sources, want)
	}
	if !r.ClaimSummary.EligibleInput {
		t.Error("EligibleInput = false, want true")
	}
	if r.ClaimSummary.DaysDeliveryToClaim == nil || *r.ClaimSummary.DaysDeliveryToClaim != 15 {
		t.Errorf("DaysDeliveryToClaim = %v", r.ClaimSummary.DaysDeliveryToClaim)
	}
	if r.FinalEligibility.Justification != "Within policy." {
		t.Errorf("Justification = %q, want unchanged", r.FinalEligibility.Justification)
	}
	if r.ReducedConfidence || len(r.Notes) != 0 {
		t.Errorf("ReducedConfidence = %v, Notes = %v", r.ReducedConfidence, r.Notes)
	}
	if r.Criteria.Contract.Sources == nil {
		t.Error("criterion sources encode as null")
	}
}

func TestSynthesizeDiscrepancy(t *testing.T) {
	in := baseInput()
	// Agent said eligible and the decision review says that was wrong,
	// so the implied outcome is not eligible.
	in.Outcome.Set.Decision.IsCorrect = false

	r := Synthesize(in)
	if !strings.Contains(r.FinalEligibility.Justification, "Discrepancy") {
		t.Errorf("Justification = %q, want discrepancy note", r.FinalEligibility.Justification)
	}
	if !strings.HasPrefix(r.FinalEligibility.Justification, "Within policy.") {
		t.Errorf("Justification = %q, want original text kept", r.FinalEligibility.Justification)
	}
}

func TestSynthesizeNotEligibleAgentCorrect(t *testing.T) {
	in := baseInput()
	in.Record.Eligible = boolPtr(false)
	in.Outcome.Final.Eligibility.IsEligible = false

	r := Synthesize(in)
	if strings.Contains(r.FinalEligibility.Justification, "Discrepancy") {
		t.Errorf("unexpected discrepancy note: %q", r.FinalEligibility.Justification)
	}
}

func TestSynthesizeBoundExceeded(t *testing.T) {
	in := baseInput()
	in.Bounds = []*apperr.AgentBoundExceeded{{Steps: 5, Cap: 5}}

	r := Synthesize(in)
	if !r.ReducedConfidence {
		t.Error("ReducedConfidence = false, want true")
	}
	if len(r.Notes) != 1 || !strings.Contains(r.Notes[0], "5 of 5") {
		t.Errorf("Notes = %v", r.Notes)
	}
}

func TestDedupSourcesBounds(t *testing.T) {
	var many []string
	for i := range 30 {
		many = append(many, fmt.Sprintf("Section %d", i))
	}
	long := strings.Repeat("x", 100)

	got := DedupSources([]string{long, " ", "Section 0"}, many)
	if len(got) != MaxSources {
		t.Fatalf("len = %d, want %d", len(got), MaxSources)
	}
	if len(got[0]) != MaxSourceRunes {
		t.Errorf("first label has %d runes, want %d", len(got[0]), MaxSourceRunes)
	}
	if got[1] != "Section 0" || got[2] != "Section 1" {
		t.Errorf("order = %v", got[:3])
	}
}

func TestReportJSONKeepsCriteriaOrder(t *testing.T) {
	b, err := json.Marshal(Synthesize(baseInput()))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	s := string(b)
	last := -1
	for _, name := range criteria.Order {
		i := strings.Index(s, `"`+string(name)+`"`)
		if i < 0 {
			t.Fatalf("key %q missing from %s", name, s)
		}
		if i < last {
			t.Errorf("key %q out of order", name)
		}
		last = i
	}
	if !strings.Contains(s, `"isDecisionCorrect":true`) {
		t.Errorf("decision field missing: %s", s)
	}
}
