// Package criteria evaluates how a store agent handled a claim against five
// fixed criteria. Criterion 1 is deterministic; criteria 2 to 5 combine a
// model judgement with deterministic guards over the retrieved policy text.
package criteria

// Name identifies a criterion. The JSON report uses these as keys.
type Name string

const (
	ContractVerification    Name = "contract_verification"
	DeliveryDate            Name = "delivery_date"
	DamageClassification    Name = "damage_classification_validation"
	AttachmentsVerification Name = "attachments_verification"
	EligibilityDecision     Name = "eligibility_decision"
)

// Order is the fixed evaluation and reporting order.
var Order = []Name{
	ContractVerification,
	DeliveryDate,
	DamageClassification,
	AttachmentsVerification,
	EligibilityDecision,
}

// Evaluation is the result of one criterion. The set of implementations is
// closed: Deterministic, Warranty, BooleanCheck and Decision.
type Evaluation interface {
	SourceLabels() []string
	evaluation()
}

const (
	Correct   = "Correct"
	Incorrect = "Incorrect"
)

// Deterministic is a rule-based result that involves no model call.
type Deterministic struct {
	Result      string   `json:"result"`
	Explanation string   `json:"explanation"`
	Sources     []string `json:"sources"`
}

type WarrantyStatus string

const (
	InWarranty    WarrantyStatus = "In Warranty"
	OutOfWarranty WarrantyStatus = "Out of Warranty"

	// Boundary marks a claim too close to the window edge, or with an
	// anomalous timeline, to decide without a human.
	Boundary WarrantyStatus = "Boundary"
)

type Warranty struct {
	Result         WarrantyStatus `json:"result"`
	Recommendation string         `json:"recommendation"`
	Sources        []string       `json:"sources"`
}

type BooleanCheck struct {
	Result         bool     `json:"result"`
	Recommendation string   `json:"recommendation"`
	Sources        []string `json:"sources"`
}

// Decision judges whether the agent's eligibility call was right.
type Decision struct {
	IsCorrect   bool     `json:"isDecisionCorrect"`
	Explanation string   `json:"explanation"`
	Sources     []string `json:"sources"`
}

func (d Deterministic) SourceLabels() []string { return d.Sources }
func (w Warranty) SourceLabels() []string      { return w.Sources }
func (b BooleanCheck) SourceLabels() []string  { return b.Sources }
func (d Decision) SourceLabels() []string      { return d.Sources }

func (Deterministic) evaluation() {}
func (Warranty) evaluation()      {}
func (BooleanCheck) evaluation()  {}
func (Decision) evaluation()      {}

// Set holds all five results. Field order is the reporting order, so the
// encoded JSON object keeps it.
type Set struct {
	Contract    Deterministic `json:"contract_verification"`
	Delivery    Warranty      `json:"delivery_date"`
	Damage      BooleanCheck  `json:"damage_classification_validation"`
	Attachments BooleanCheck  `json:"attachments_verification"`
	Decision    Decision      `json:"eligibility_decision"`
}

// Entry pairs a criterion with its result.
type Entry struct {
	Name       Name
	Evaluation Evaluation
}

// Entries returns the results in Order.
func (s Set) Entries() []Entry {
	return []Entry{
		{ContractVerification, s.Contract},
		{DeliveryDate, s.Delivery},
		{DamageClassification, s.Damage},
		{AttachmentsVerification, s.Attachments},
		{EligibilityDecision, s.Decision},
	}
}

// Eligibility is the final verdict on the claim itself.
type Eligibility struct {
	IsEligible    bool   `json:"isEligible"`
	Justification string `json:"justification"`
}

type Final struct {
	Recommendation string
	Eligibility    Eligibility
}

// Outcome is everything an evaluation strategy produced.
type Outcome struct {
	Set   Set
	Final Final

	// Notes are deterministic observations worth surfacing in the report.
	Notes []string
}
