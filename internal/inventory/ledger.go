// Package inventory owns the contended stock counter: the speculative
// decrement at checkout and the compensating restore when a payment fails.
package inventory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// Stock is a locked read of a sellable piece's availability.
type Stock struct {
	PieceID   uuid.UUID
	Title     string
	Available int
}

// Tx is the slice of the store transaction the ledger needs. StockForUpdate
// must hold an exclusive row lock until the transaction ends.
type Tx interface {
	StockForUpdate(ctx context.Context, pieceID uuid.UUID) (Stock, error)
	AdjustStock(ctx context.Context, pieceID uuid.UUID, delta int) error
}

type InsufficientStockError struct {
	PieceID   uuid.UUID
	Title     string
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q: available %d", e.Title, e.Available)
}

type Ledger struct {
	log *slog.Logger
}

func NewLedger(log *slog.Logger) *Ledger {
	return &Ledger{log: log}
}

// Reserve checks and decrements under the row lock taken by StockForUpdate,
// so two checkouts racing for the last unit resolve deterministically. Stock
// never goes negative.
func (l *Ledger) Reserve(ctx context.Context, tx Tx, pieceID uuid.UUID, qty int) error {
	st, err := tx.StockForUpdate(ctx, pieceID)
	if err != nil {
		return err
	}
	if st.Available < qty {
		return &InsufficientStockError{PieceID: pieceID, Title: st.Title, Available: st.Available}
	}
	return tx.AdjustStock(ctx, pieceID, -qty)
}

// Release restores reserved stock. Unconditional addition: the reconciler's
// idempotency guard ensures it runs at most once per order.
func (l *Ledger) Release(ctx context.Context, tx Tx, pieceID uuid.UUID, qty int) error {
	if err := tx.AdjustStock(ctx, pieceID, qty); err != nil {
		return err
	}
	l.log.Info("stock released", "piece_id", pieceID, "quantity", qty)
	return nil
}
