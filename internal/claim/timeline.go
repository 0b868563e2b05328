package claim

import (
	"time"

	"github.com/kalambet/claimcheck/internal/apperr"
)

// Timeline holds the signed day counts derived from a claim. Values are
// never clamped: a claim filed before delivery yields a negative count.
type Timeline struct {
	DaysSinceDelivery   int  `json:"days_since_delivery"`
	DaysDeliveryToClaim *int `json:"days_delivery_to_claim"`
}

// ComputeTimeline derives day counts from the delivery date. The reference
// date is claimDate when supplied, otherwise the calendar date of now.
func ComputeTimeline(deliveryDate, claimDate string, now time.Time) (Timeline, error) {
	delivered, err := ParseDate(deliveryDate)
	if err != nil {
		return Timeline{}, apperr.Invalid("delivery_date", "must be a calendar date in YYYY-MM-DD format")
	}

	if claimDate == "" {
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		return Timeline{DaysSinceDelivery: daysBetween(delivered, today)}, nil
	}

	claimed, err := ParseDate(claimDate)
	if err != nil {
		return Timeline{}, apperr.Invalid("claim_date", "must be a calendar date in YYYY-MM-DD format")
	}
	days := daysBetween(delivered, claimed)
	return Timeline{DaysSinceDelivery: days, DaysDeliveryToClaim: &days}, nil
}

// daysBetween counts whole days from a to b. Both must be UTC midnights.
// Unix seconds are used because time.Duration saturates past ~292 years.
func daysBetween(a, b time.Time) int {
	return int((b.Unix() - a.Unix()) / 86400)
}
