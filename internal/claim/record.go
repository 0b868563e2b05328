// Package claim holds the claim record submitted for evaluation and the
// date arithmetic derived from it.
package claim

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kalambet/claimcheck/internal/apperr"
)

// DateLayout is the calendar date format accepted for delivery and claim dates.
const DateLayout = "2006-01-02"

// MaxDescriptionRunes bounds the free-text claim description.
const MaxDescriptionRunes = 2000

const maxShortFieldRunes = 200

type ClaimType string

const (
	DefectiveProduct  ClaimType = "defective_product"
	DamagedOnDelivery ClaimType = "damaged_on_delivery"
	MissingParts      ClaimType = "missing_parts"
	WarrantyRepair    ClaimType = "warranty_repair"
	ExchangeRequest   ClaimType = "exchange_request"
	RefundRequest     ClaimType = "refund_request"
)

var claimTypes = []ClaimType{
	DefectiveProduct, DamagedOnDelivery, MissingParts,
	WarrantyRepair, ExchangeRequest, RefundRequest,
}

type DamageType string

const (
	Aesthetic  DamageType = "aesthetic"
	Mechanical DamageType = "mechanical"
	Structural DamageType = "structural"
	Fabric     DamageType = "fabric"
	NoDamage   DamageType = "none"
)

var damageTypes = []DamageType{Aesthetic, Mechanical, Structural, Fabric, NoDamage}

type ProductType string

const (
	Sofa        ProductType = "sofa"
	Mattress    ProductType = "mattress"
	Bed         ProductType = "bed"
	Table       ProductType = "table"
	Chair       ProductType = "chair"
	Cabinet     ProductType = "cabinet"
	Appliance   ProductType = "appliance"
	Electronics ProductType = "electronics"
	Outdoor     ProductType = "outdoor"
	OtherItem   ProductType = "other"
)

var productTypes = []ProductType{
	Sofa, Mattress, Bed, Table, Chair, Cabinet,
	Appliance, Electronics, Outdoor, OtherItem,
}

// Record is a claim as submitted by a store agent. It is treated as an
// immutable value once it enters the engine.
type Record struct {
	ClaimType       ClaimType   `json:"claim_type"`
	DamageType      DamageType  `json:"damage_type"`
	ProductType     ProductType `json:"product_type"`
	DeliveryDate    string      `json:"delivery_date"`
	Manufacturer    string      `json:"manufacturer"`
	StoreOfPurchase string      `json:"store_of_purchase"`
	ProductCode     string      `json:"product_code"`
	Description     string      `json:"description"`
	HasAttachments  bool        `json:"has_attachments"`
	ContractNumber  string      `json:"contract_number,omitempty"`
	ClaimDate       string      `json:"claim_date,omitempty"`

	// Eligible is the agent's own decision, not ground truth.
	Eligible *bool `json:"eligible,omitempty"`
}

// Validate checks enums, dates and field bounds. It never performs I/O.
func (r Record) Validate() error {
	var verr apperr.ValidationError

	if !oneOf(r.ClaimType, claimTypes) {
		verr.Add("claim_type", fmt.Sprintf("unknown value %q; must be one of %s", r.ClaimType, joinValues(claimTypes)))
	}
	if !oneOf(r.DamageType, damageTypes) {
		verr.Add("damage_type", fmt.Sprintf("unknown value %q; must be one of %s", r.DamageType, joinValues(damageTypes)))
	}
	if !oneOf(r.ProductType, productTypes) {
		verr.Add("product_type", fmt.Sprintf("unknown value %q; must be one of %s", r.ProductType, joinValues(productTypes)))
	}

	if strings.TrimSpace(r.DeliveryDate) == "" {
		verr.Add("delivery_date", "required")
	} else if _, err := ParseDate(r.DeliveryDate); err != nil {
		verr.Add("delivery_date", "must be a calendar date in YYYY-MM-DD format")
	}
	if r.ClaimDate != "" {
		if _, err := ParseDate(r.ClaimDate); err != nil {
			verr.Add("claim_date", "must be a calendar date in YYYY-MM-DD format")
		}
	}

	switch n := utf8.RuneCountInString(r.Description); {
	case strings.TrimSpace(r.Description) == "":
		verr.Add("description", "required")
	case n > MaxDescriptionRunes:
		verr.Add("description", fmt.Sprintf("must be at most %d characters, got %d", MaxDescriptionRunes, n))
	}

	for field, v := range map[string]string{
		"manufacturer":      r.Manufacturer,
		"store_of_purchase": r.StoreOfPurchase,
		"product_code":      r.ProductCode,
		"contract_number":   r.ContractNumber,
	} {
		if utf8.RuneCountInString(v) > maxShortFieldRunes {
			verr.Add(field, fmt.Sprintf("must be at most %d characters", maxShortFieldRunes))
		}
	}

	return verr.OrNil()
}

// ValidateForEvaluation extends Validate with the fields an eligibility
// review needs: the agent's decision must be present.
func (r Record) ValidateForEvaluation() error {
	err := r.Validate()
	if r.Eligible != nil {
		return err
	}
	var verr *apperr.ValidationError
	if !errors.As(err, &verr) {
		verr = &apperr.ValidationError{}
	}
	verr.Add("eligible", "required for evaluation")
	return verr
}

// HasContract reports whether a non-blank contract number was supplied.
func (r Record) HasContract() bool {
	return strings.TrimSpace(r.ContractNumber) != ""
}

// ParseDate parses a YYYY-MM-DD calendar date in UTC.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, strings.TrimSpace(s))
}

func oneOf[T ~string](v T, set []T) bool {
	for _, s := range set {
		if v == s {
			return true
		}
	}
	return false
}

func joinValues[T ~string](set []T) string {
	parts := make([]string, len(set))
	for i, s := range set {
		parts[i] = string(s)
	}
	return strings.Join(parts, ", ")
}
