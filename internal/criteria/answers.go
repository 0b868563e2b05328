package criteria

import (
	"encoding/json"
	"strings"
)

// UnparsedText replaces any part of a model answer that could not be read.
const UnparsedText = "Unable to parse model response; review manually."

// flexBool accepts JSON booleans and the common string spellings models
// produce for them.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case bool:
		*b = flexBool(t)
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "correct", "pass", "passed":
			*b = true
		default:
			*b = false
		}
	default:
		*b = false
	}
	return nil
}

type warrantyAnswer struct {
	Result         string   `json:"result"`
	Recommendation string   `json:"recommendation"`
	Sources        []string `json:"sources"`
}

type checkAnswer struct {
	Result         flexBool `json:"result"`
	Recommendation string   `json:"recommendation"`
	Sources        []string `json:"sources"`
}

type decisionAnswer struct {
	IsDecisionCorrect flexBool `json:"isDecisionCorrect"`
	Explanation       string   `json:"explanation"`
	Sources           []string `json:"sources"`
}

type eligibilityAnswer struct {
	IsEligible    flexBool `json:"isEligible"`
	Justification string   `json:"justification"`
}

// verdictAnswer is the closing part shared by the batch and final verdict
// prompts.
type verdictAnswer struct {
	Decision            *decisionAnswer    `json:"eligibility_decision"`
	FinalRecommendation string             `json:"final_recommendation"`
	FinalEligibility    *eligibilityAnswer `json:"final_eligibility"`
}

type batchAnswer struct {
	Delivery    *warrantyAnswer `json:"delivery_date"`
	Damage      *checkAnswer    `json:"damage_classification_validation"`
	Attachments *checkAnswer    `json:"attachments_verification"`
	verdictAnswer
}

func (a *warrantyAnswer) warranty(allowed []string) Warranty {
	if a == nil {
		return Warranty{Result: Boundary, Recommendation: UnparsedText, Sources: []string{}}
	}
	return Warranty{
		Result:         ParseWarrantyStatus(a.Result),
		Recommendation: strings.TrimSpace(a.Recommendation),
		Sources:        groundSources(a.Sources, allowed),
	}
}

func (a *checkAnswer) check(allowed []string) BooleanCheck {
	if a == nil {
		return BooleanCheck{Result: false, Recommendation: UnparsedText, Sources: []string{}}
	}
	return BooleanCheck{
		Result:         bool(a.Result),
		Recommendation: strings.TrimSpace(a.Recommendation),
		Sources:        groundSources(a.Sources, allowed),
	}
}

func (a *decisionAnswer) decision(allowed []string) Decision {
	if a == nil {
		return Decision{IsCorrect: false, Explanation: UnparsedText, Sources: []string{}}
	}
	return Decision{
		IsCorrect:   bool(a.IsDecisionCorrect),
		Explanation: strings.TrimSpace(a.Explanation),
		Sources:     groundSources(a.Sources, allowed),
	}
}

func (v verdictAnswer) final() Final {
	f := Final{Recommendation: strings.TrimSpace(v.FinalRecommendation)}
	if f.Recommendation == "" {
		f.Recommendation = UnparsedText
	}
	if v.FinalEligibility == nil {
		f.Eligibility = Eligibility{IsEligible: false, Justification: UnparsedText}
		return f
	}
	f.Eligibility = Eligibility{
		IsEligible:    bool(v.FinalEligibility.IsEligible),
		Justification: strings.TrimSpace(v.FinalEligibility.Justification),
	}
	return f
}

// groundSources keeps the model's citations that name a retrieved section.
// When none survive, the labels of the passages the model was shown are
// used instead.
func groundSources(fromModel, allowed []string) []string {
	known := make(map[string]bool, len(allowed))
	for _, l := range allowed {
		known[l] = true
	}

	out := []string{}
	for _, s := range fromModel {
		s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "Source:"))
		if known[s] {
			out = appendUnique(out, s)
		}
	}
	if len(out) > 0 {
		return out
	}
	for _, l := range allowed {
		out = appendUnique(out, l)
	}
	return out
}
