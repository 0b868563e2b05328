package criteria

import (
	"fmt"
	"regexp"

	"github.com/kalambet/claimcheck/internal/claim"
	"github.com/kalambet/claimcheck/internal/retrieval"
)

var (
	photoWords       = regexp.MustCompile(`(?i)\b(photos?|photographs?|photographic|pictures?|images?|videos?)\b`)
	requirementWords = regexp.MustCompile(`(?i)\b(must|required|requires|require|mandatory|necessary|needs?|shall)\b`)
	// Sentences that waive or soften the requirement.
	waiverWords      = regexp.MustCompile(`(?i)\b(not|no|never|optional|optionally|unless|may|except)\b|n't\b`)
)

// RequiresPhotos reports whether any passage demands photographic evidence,
// and the label of the first one that does. Negated or optional wording
// does not count as a demand.
func RequiresPhotos(passages []retrieval.PolicyPassage) (string, bool) {
	for _, p := range passages {
		for _, sentence := range sentenceSplit.Split(p.Text, -1) {
			if waiverWords.MatchString(sentence) {
				continue
			}
			if photoWords.MatchString(sentence) && requirementWords.MatchString(sentence) {
				return p.SectionLabel, true
			}
		}
	}
	return "", false
}

// CheckAttachments settles criterion 4. When policy requires photos and the
// claim has none the result is false regardless of the model.
func CheckAttachments(rec claim.Record, passages []retrieval.PolicyPassage, fromModel BooleanCheck) BooleanCheck {
	label, required := RequiresPhotos(passages)
	if !required || rec.HasAttachments {
		return fromModel
	}

	where := "The retrieved policy"
	out := fromModel
	if label != "" {
		where = fmt.Sprintf("Policy section %q", label)
		out.Sources = appendUnique(out.Sources, label)
	}
	out.Result = false
	out.Recommendation = where + " requires photographic evidence but the claim has no attachments. Ask the customer for photos of the damage before proceeding."
	return out
}
