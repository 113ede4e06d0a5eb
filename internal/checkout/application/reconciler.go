package application

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/galeria-obsidiana/checkout/internal/checkout/domain"
	"github.com/galeria-obsidiana/checkout/internal/inventory"
)

// Provider event types the reconciler acts on. Anything else is acknowledged
// and ignored: the provider retries failed deliveries indefinitely, so an
// unknown type must never error.
const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
)

// Event is a verified provider notification. IntentID is the external
// reference stored on the Payment at checkout.
type Event struct {
	ID       string
	Type     string
	IntentID string
}

type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeNoop    Outcome = "noop"
)

// Reconciler maps provider events onto payment/order state transitions,
// idempotently: at-least-once delivery, exactly-once effect. The payment row
// lock is taken before the terminal-status check so racing deliveries cannot
// double-apply.
type Reconciler struct {
	log    *slog.Logger
	store  Store
	ledger *inventory.Ledger
	dedup  Dedup
}

// NewReconciler builds a reconciler. dedup may be nil; it only sheds
// duplicate deliveries before they reach the store.
func NewReconciler(log *slog.Logger, store Store, dedup Dedup) *Reconciler {
	return &Reconciler{
		log:    log,
		store:  store,
		ledger: inventory.NewLedger(log),
		dedup:  dedup,
	}
}

func (r *Reconciler) Apply(ctx context.Context, ev Event) (Outcome, error) {
	switch ev.Type {
	case EventPaymentSucceeded, EventPaymentFailed:
	default:
		r.log.Info("ignoring provider event", "event_id", ev.ID, "type", ev.Type)
		return OutcomeNoop, nil
	}

	if r.dedup != nil && ev.ID != "" {
		seen, err := r.dedup.Seen(ctx, ev.ID)
		if err != nil {
			r.log.Warn("dedup lookup failed, falling through to store", "event_id", ev.ID, "err", err)
		} else if seen {
			r.log.Info("duplicate provider event skipped", "event_id", ev.ID)
			return OutcomeNoop, nil
		}
	}

	outcome := OutcomeNoop
	err := r.store.WithinTx(ctx, func(tx Tx) error {
		payment, err := tx.PaymentForUpdate(ctx, ev.IntentID)
		if errors.Is(err, domain.ErrNotFound) {
			// Stale or foreign intent; not ours to act on.
			return nil
		}
		if err != nil {
			return err
		}
		if payment.Terminal() {
			return nil
		}

		switch ev.Type {
		case EventPaymentSucceeded:
			err = r.applySucceeded(ctx, tx, payment)
		case EventPaymentFailed:
			err = r.applyFailed(ctx, tx, payment)
		}
		if err != nil {
			return err
		}
		outcome = OutcomeApplied
		return nil
	})
	if err != nil {
		return OutcomeNoop, err
	}

	if r.dedup != nil && ev.ID != "" {
		// Marked only after commit, so a crash mid-apply cannot lose the
		// transition to a skipped retry.
		if err := r.dedup.Mark(ctx, ev.ID); err != nil {
			r.log.Warn("dedup mark failed", "event_id", ev.ID, "err", err)
		}
	}
	if outcome == OutcomeApplied {
		r.log.Info("provider event applied", "event_id", ev.ID, "type", ev.Type, "external_ref", ev.IntentID)
	}
	return outcome, nil
}

func (r *Reconciler) applySucceeded(ctx context.Context, tx Tx, payment domain.Payment) error {
	if err := tx.SetPaymentStatus(ctx, payment.ID, domain.PaymentCompleted); err != nil {
		return err
	}
	if err := tx.SetOrderStatus(ctx, payment.OrderID, domain.OrderStatusPaid); err != nil {
		return err
	}
	if err := tx.InsertTracking(ctx, domain.NewShippingTracking(payment.OrderID)); err != nil {
		return err
	}
	payload, err := json.Marshal(domain.OrderPaid{OrderID: payment.OrderID, ExternalRef: payment.ExternalRef})
	if err != nil {
		return err
	}
	return tx.AppendOutbox(ctx, "order", payment.OrderID.String(), domain.EventOrderPaid, payload)
}

func (r *Reconciler) applyFailed(ctx context.Context, tx Tx, payment domain.Payment) error {
	if err := tx.SetPaymentStatus(ctx, payment.ID, domain.PaymentFailed); err != nil {
		return err
	}
	if err := tx.SetOrderStatus(ctx, payment.OrderID, domain.OrderStatusCancelled); err != nil {
		return err
	}
	items, err := tx.OrderItems(ctx, payment.OrderID)
	if err != nil {
		return err
	}
	for _, item := range items {
		if err := r.ledger.Release(ctx, tx, item.PieceID, item.Quantity); err != nil {
			return err
		}
	}
	payload, err := json.Marshal(domain.OrderCancelled{
		OrderID:     payment.OrderID,
		ExternalRef: payment.ExternalRef,
		Reason:      "payment failed",
	})
	if err != nil {
		return err
	}
	return tx.AppendOutbox(ctx, "order", payment.OrderID.String(), domain.EventOrderCancelled, payload)
}
