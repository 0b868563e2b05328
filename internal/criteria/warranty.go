package criteria

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/kalambet/claimcheck/internal/claim"
	"github.com/kalambet/claimcheck/internal/retrieval"
)

// BoundaryMarginDays is how close to the window edge a claim must be to be
// left for a human to decide.
const BoundaryMarginDays = 3

const deliveryReminder = "Confirm the delivery date in the order system before closing the claim."

var (
	sentenceSplit = regexp.MustCompile(`[.;!?\n]+`)

	// A period only counts as a warranty window when the same sentence is
	// about a warranty or about the deadline for raising a claim.
	warrantyTopic = regexp.MustCompile(`(?i)\b(warrant(y|ies|ed)|guarantee[sd]?)\b`)
	claimDeadline = regexp.MustCompile(`(?i)\bdeadlines?\b|\b(file|filed|submit|submitted|report|reported|lodge|lodged|raise|raised)\b.*\bclaims?\b|\bclaims?\b.*\b(filed|submitted|reported|lodged|raised)\b`)

	windowPatterns = []struct {
		re   *regexp.Regexp
		days int
	}{
		{regexp.MustCompile(`(?i)\bwithin\s+(\d{1,4})\s+(?:calendar\s+|business\s+)?days?\b`), 1},
		{regexp.MustCompile(`(?i)\b(\d{1,4})[- ]days?\b`), 1},
		{regexp.MustCompile(`(?i)\b(\d{1,3})[- ]months?\b`), 30},
		{regexp.MustCompile(`(?i)\b(\d{1,2})[- ]years?\b`), 365},
	}
)

// Window is a warranty period found in policy text.
type Window struct {
	Days  int
	Label string
}

// ExtractWindow finds the first sentence that states a period for a
// warranty or for filing a claim. Passages whose section label is in cited
// are searched first, then the rest in order. Months count as 30 days and
// years as 365.
func ExtractWindow(passages []retrieval.PolicyPassage, cited ...string) (Window, bool) {
	if len(cited) > 0 {
		for _, p := range passages {
			if p.SectionLabel == "" || !contains(cited, p.SectionLabel) {
				continue
			}
			if w, ok := passageWindow(p); ok {
				return w, true
			}
		}
	}
	for _, p := range passages {
		if w, ok := passageWindow(p); ok {
			return w, true
		}
	}
	return Window{}, false
}

func passageWindow(p retrieval.PolicyPassage) (Window, bool) {
	for _, sentence := range sentenceSplit.Split(p.Text, -1) {
		if !warrantyTopic.MatchString(sentence) && !claimDeadline.MatchString(sentence) {
			continue
		}
		for _, wp := range windowPatterns {
			m := wp.re.FindStringSubmatch(sentence)
			if m == nil {
				continue
			}
			n, err := strconv.Atoi(m[1])
			if err != nil || n == 0 {
				continue
			}
			return Window{Days: n * wp.days, Label: p.SectionLabel}, true
		}
	}
	return Window{}, false
}

// ClassifyWarranty places daysSinceDelivery relative to a window. Negative
// day counts are anomalies and always land on Boundary.
func ClassifyWarranty(daysSinceDelivery, windowDays int) WarrantyStatus {
	switch {
	case daysSinceDelivery < 0:
		return Boundary
	case daysSinceDelivery > windowDays+BoundaryMarginDays:
		return OutOfWarranty
	case daysSinceDelivery < windowDays-BoundaryMarginDays:
		return InWarranty
	default:
		return Boundary
	}
}

// ParseWarrantyStatus reads a model-supplied status. Unknown values map to
// Boundary so they reach a human.
func ParseWarrantyStatus(s string) WarrantyStatus {
	norm := strings.ToLower(strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '_' || r == '-'
	}), " "))
	switch norm {
	case "in warranty", "within warranty", "in":
		return InWarranty
	case "out of warranty", "out warranty", "out":
		return OutOfWarranty
	default:
		return Boundary
	}
}

// EvaluateDelivery settles criterion 2. A window found in the passages,
// preferring the sections the model cited, overrides the model's
// classification; otherwise the model's answer stands. A negative timeline is always reported as Boundary.
func EvaluateDelivery(tl claim.Timeline, passages []retrieval.PolicyPassage, fromModel Warranty) Warranty {
	out := fromModel
	days := tl.DaysSinceDelivery

	if days < 0 {
		out.Result = Boundary
		out.Recommendation = fmt.Sprintf("The claim date is %d days before the delivery date. Check both dates for a data entry error. %s", -days, deliveryReminder)
		return out
	}

	w, ok := ExtractWindow(passages, fromModel.Sources...)
	if !ok {
		out.Recommendation = withReminder(out.Recommendation)
		return out
	}

	out.Result = ClassifyWarranty(days, w.Days)
	where := "the retrieved policy"
	if w.Label != "" {
		where = fmt.Sprintf("policy section %q", w.Label)
		out.Sources = appendUnique(out.Sources, w.Label)
	}

	var verdict string
	switch out.Result {
	case InWarranty:
		verdict = "The claim is within the warranty period."
	case OutOfWarranty:
		verdict = "The claim is outside the warranty period."
	default:
		verdict = fmt.Sprintf("The claim is within %d days of the window edge and needs manual review.", BoundaryMarginDays)
	}
	out.Recommendation = fmt.Sprintf("%d days since delivery against a %d-day window per %s. %s %s",
		days, w.Days, where, verdict, deliveryReminder)
	return out
}

func withReminder(s string) string {
	s = strings.TrimSpace(s)
	if strings.Contains(strings.ToLower(s), "order system") {
		return s
	}
	if s == "" {
		return deliveryReminder
	}
	return s + " " + deliveryReminder
}

func appendUnique(list []string, v string) []string {
	if contains(list, v) {
		return list
	}
	return append(list, v)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
