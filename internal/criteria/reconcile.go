package criteria

import (
	"fmt"
	"strings"
)

// Blockers lists criteria 1 to 4 that speak against eligibility. Boundary
// warranty results are not blockers.
func Blockers(s Set) []Name {
	var out []Name
	if s.Contract.Result == Incorrect {
		out = append(out, ContractVerification)
	}
	if s.Delivery.Result == OutOfWarranty {
		out = append(out, DeliveryDate)
	}
	if !s.Damage.Result {
		out = append(out, DamageClassification)
	}
	if !s.Attachments.Result {
		out = append(out, AttachmentsVerification)
	}
	return out
}

// Reconcile compares the agent's decision with criteria 1 to 4 and appends
// a note naming each contradicting criterion. The model's IsCorrect is kept.
func Reconcile(s Set, eligibleInput bool) (Decision, string) {
	d := s.Decision
	blockers := Blockers(s)

	var note string
	switch {
	case eligibleInput && len(blockers) > 0:
		names := make([]string, len(blockers))
		for i, b := range blockers {
			names[i] = string(b)
		}
		note = fmt.Sprintf("The agent marked the claim eligible but these criteria do not support it: %s.", strings.Join(names, ", "))
	case !eligibleInput && len(blockers) == 0:
		note = "The agent marked the claim not eligible although criteria 1 to 4 all pass."
	}

	if note != "" {
		d.Explanation = strings.TrimSpace(d.Explanation + " " + note)
	}
	return d, note
}
