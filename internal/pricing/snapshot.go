// Package pricing resolves the unit price a buyer pays at checkout. The
// resolved value is frozen into the order item; later catalog or discount
// changes never touch it.
package pricing

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Quote is the catalog price plus the currently active piece discount, if any.
type Quote struct {
	Price       decimal.Decimal
	DiscountPct decimal.Decimal
	Discounted  bool
}

type Tx interface {
	Quote(ctx context.Context, pieceID uuid.UUID) (Quote, error)
}

type Snapshot struct{}

// Resolve returns the effective unit price: list price minus the active
// discount, half-up to 2 decimal places.
func (Snapshot) Resolve(ctx context.Context, tx Tx, pieceID uuid.UUID) (decimal.Decimal, error) {
	q, err := tx.Quote(ctx, pieceID)
	if err != nil {
		return decimal.Zero, err
	}
	price := q.Price
	if q.Discounted {
		price = price.Mul(hundred.Sub(q.DiscountPct)).Div(hundred)
	}
	return price.Round(2), nil
}

// MinorUnits converts an amount to the currency's minor unit for the provider
// wire (e.g. 25.00 -> 2500).
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Round(2).Mul(hundred).IntPart()
}
