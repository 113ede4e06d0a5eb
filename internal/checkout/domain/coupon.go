package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Coupon grants a percentage off the order total within a date window. A user
// may redeem a given coupon at most once, enforced by the store.
type Coupon struct {
	ID         uuid.UUID
	Code       string
	Percentage decimal.Decimal
	ValidFrom  time.Time
	ValidUntil time.Time
}

func (c Coupon) ActiveOn(day time.Time) bool {
	d := day.UTC().Truncate(24 * time.Hour)
	return !d.Before(c.ValidFrom.UTC().Truncate(24*time.Hour)) &&
		!d.After(c.ValidUntil.UTC().Truncate(24*time.Hour))
}

// DiscountOn returns the amount taken off the given total, half-up to 2
// decimal places.
func (c Coupon) DiscountOn(total decimal.Decimal) decimal.Decimal {
	return total.Mul(c.Percentage).Div(decimal.NewFromInt(100)).Round(2)
}
