package criteria

import (
	"fmt"
	"strings"

	"github.com/kalambet/claimcheck/internal/claim"
)

// ClaimContext renders the claim for a model prompt.
func ClaimContext(rec claim.Record, tl claim.Timeline) string {
	var sb strings.Builder
	sb.WriteString("=== CLAIM DETAILS ===\n")
	line := func(k, v string) { fmt.Fprintf(&sb, "%s: %s\n", k, v) }

	line("Claim type", string(rec.ClaimType))
	line("Damage type", string(rec.DamageType))
	line("Product type", string(rec.ProductType))
	line("Manufacturer", orNotProvided(rec.Manufacturer))
	line("Store of purchase", orNotProvided(rec.StoreOfPurchase))
	line("Product code", orNotProvided(rec.ProductCode))
	line("Contract number", orNotProvided(rec.ContractNumber))
	line("Delivery date", rec.DeliveryDate)
	if rec.ClaimDate != "" {
		line("Claim date", rec.ClaimDate)
	} else {
		line("Claim date", "not provided (today used as reference)")
	}
	line("Days since delivery", fmt.Sprint(tl.DaysSinceDelivery))
	line("Has attachments", yesNo(rec.HasAttachments))
	switch {
	case rec.Eligible == nil:
		line("Agent eligibility decision", "not recorded")
	case *rec.Eligible:
		line("Agent eligibility decision", "eligible")
	default:
		line("Agent eligibility decision", "not eligible")
	}
	line("Customer description", strings.TrimSpace(rec.Description))
	return sb.String()
}

// BatchQueries returns the two static retrieval queries of the fast
// strategy: warranty terms first, evidence requirements second.
func BatchQueries(rec claim.Record) []string {
	return []string{
		strings.Join(strings.Fields(fmt.Sprintf("%s %s %s deadlines warranty eligibility",
			humanize(string(rec.ClaimType)), humanize(string(rec.DamageType)), rec.ProductType)), " "),
		strings.Join(strings.Fields(fmt.Sprintf("attachments requirements claim evidence %s %s",
			humanize(string(rec.DamageType)), rec.ProductType)), " "),
	}
}

// Plan describes how the deep strategy researches and judges one of
// criteria 2 to 4.
type Plan struct {
	Name         Name
	Title        string
	Focus        string
	SeedQuery    string
	Question     string
	ResultFormat string
}

// Plans returns the research plans for criteria 2 to 4 in order.
func Plans(rec claim.Record) []Plan {
	product := string(rec.ProductType)
	damage := humanize(string(rec.DamageType))
	return []Plan{
		{
			Name:         DeliveryDate,
			Title:        "Delivery Date",
			Focus:        "warranty periods and claim deadlines that apply to this product, damage and claim type",
			SeedQuery:    fmt.Sprintf("warranty period claim deadline %s %s %s", humanize(string(rec.ClaimType)), damage, product),
			Question:     "Is the claim within the allowed warranty timeframe given the delivery date, the claim date, the manufacturer and the policies?",
			ResultFormat: `"In Warranty" or "Out of Warranty"`,
		},
		{
			Name:         DamageClassification,
			Title:        "Damage Classification",
			Focus:        "how damage types are defined and classified for this product type",
			SeedQuery:    fmt.Sprintf("damage classification %s damage definition %s", damage, product),
			Question:     "Does the declared damage type match the customer description according to policy? If not, quote the contradicting part of the description.",
			ResultFormat: "true or false",
		},
		{
			Name:         AttachmentsVerification,
			Title:        "Attachments",
			Focus:        "evidence, photo and document requirements for this kind of claim",
			SeedQuery:    fmt.Sprintf("required attachments photos evidence %s %s claim", damage, product),
			Question:     fmt.Sprintf("The claim %s attachments. Are the attachments required by policy provided?", hasWord(rec.HasAttachments)),
			ResultFormat: "true or false",
		},
	}
}

func humanize(s string) string {
	if s == string(claim.NoDamage) {
		return ""
	}
	return strings.ReplaceAll(s, "_", " ")
}

func orNotProvided(s string) string {
	if strings.TrimSpace(s) == "" {
		return "not provided"
	}
	return strings.TrimSpace(s)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func hasWord(b bool) string {
	if b {
		return "has"
	}
	return "has no"
}
