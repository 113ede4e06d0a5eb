package application

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/galeria-obsidiana/checkout/internal/checkout/domain"
)

// checkoutFixture runs a real checkout so the reconciler acts on state shaped
// exactly like production writes it.
func checkoutFixture(t *testing.T, store *fakeStore, lines []CartLine) CheckoutResult {
	t.Helper()
	svc := NewService(testLogger(), store, &fakeGateway{}, "mxn")
	user := uuid.New()
	address := seedAddress(store, user)
	res, err := svc.Checkout(context.Background(), CheckoutRequest{
		UserID:        user,
		AddressID:     address,
		PaymentMethod: "card",
		Items:         lines,
	})
	require.NoError(t, err)
	return res
}

func TestReconcilerPaymentSucceeded(t *testing.T) {
	store := newFakeStore()
	piece := seedPiece(store, "A", 5, "10.00")
	res := checkoutFixture(t, store, []CartLine{{PieceID: piece, Quantity: 2}})

	rec := NewReconciler(testLogger(), store, nil)
	outcome, err := rec.Apply(context.Background(), Event{
		ID:       "evt_1",
		Type:     EventPaymentSucceeded,
		IntentID: res.ExternalRef,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	order := store.state.orders[res.OrderID]
	assert.Equal(t, domain.OrderStatusPaid, order.Status)
	for _, p := range store.state.payments {
		assert.Equal(t, domain.PaymentCompleted, p.Status)
	}
	require.Len(t, store.state.tracking, 1)
	assert.Equal(t, res.OrderID, store.state.tracking[0].OrderID)
	assert.Equal(t, domain.TrackingPending, store.state.tracking[0].Status)
	// Stock stays reserved on success.
	assert.Equal(t, 3, store.state.pieces[piece].qty)

	var paidEvents int
	for _, row := range store.state.outbox {
		if row.eventType == domain.EventOrderPaid {
			paidEvents++
		}
	}
	assert.Equal(t, 1, paidEvents)
}

func TestReconcilerDuplicateSucceededIsNoop(t *testing.T) {
	store := newFakeStore()
	piece := seedPiece(store, "A", 5, "10.00")
	res := checkoutFixture(t, store, []CartLine{{PieceID: piece, Quantity: 1}})

	rec := NewReconciler(testLogger(), store, nil)
	ev := Event{ID: "evt_1", Type: EventPaymentSucceeded, IntentID: res.ExternalRef}

	outcome, err := rec.Apply(context.Background(), ev)
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, outcome)

	// Provider redelivers with a different event id.
	outcome, err = rec.Apply(context.Background(), Event{ID: "evt_2", Type: ev.Type, IntentID: ev.IntentID})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoop, outcome)

	assert.Len(t, store.state.tracking, 1)
	assert.Equal(t, domain.OrderStatusPaid, store.state.orders[res.OrderID].Status)
}

func TestReconcilerPaymentFailedRestoresStock(t *testing.T) {
	store := newFakeStore()
	piece := seedPiece(store, "C", 10, "10.00")
	res := checkoutFixture(t, store, []CartLine{{PieceID: piece, Quantity: 3}})
	require.Equal(t, 7, store.state.pieces[piece].qty)

	rec := NewReconciler(testLogger(), store, nil)
	outcome, err := rec.Apply(context.Background(), Event{
		ID:       "evt_1",
		Type:     EventPaymentFailed,
		IntentID: res.ExternalRef,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	assert.Equal(t, 10, store.state.pieces[piece].qty)
	assert.Equal(t, domain.OrderStatusCancelled, store.state.orders[res.OrderID].Status)
	for _, p := range store.state.payments {
		assert.Equal(t, domain.PaymentFailed, p.Status)
	}
	assert.Empty(t, store.state.tracking)
}

func TestReconcilerFailedAfterSucceededIsNoop(t *testing.T) {
	store := newFakeStore()
	piece := seedPiece(store, "A", 5, "10.00")
	res := checkoutFixture(t, store, []CartLine{{PieceID: piece, Quantity: 2}})

	rec := NewReconciler(testLogger(), store, nil)
	_, err := rec.Apply(context.Background(), Event{ID: "evt_1", Type: EventPaymentSucceeded, IntentID: res.ExternalRef})
	require.NoError(t, err)

	outcome, err := rec.Apply(context.Background(), Event{ID: "evt_2", Type: EventPaymentFailed, IntentID: res.ExternalRef})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoop, outcome)

	// Not double-restored, order stays paid.
	assert.Equal(t, 3, store.state.pieces[piece].qty)
	assert.Equal(t, domain.OrderStatusPaid, store.state.orders[res.OrderID].Status)
}

func TestReconcilerDuplicateFailedReleasesOnce(t *testing.T) {
	store := newFakeStore()
	piece := seedPiece(store, "A", 5, "10.00")
	res := checkoutFixture(t, store, []CartLine{{PieceID: piece, Quantity: 2}})

	rec := NewReconciler(testLogger(), store, nil)
	for _, id := range []string{"evt_1", "evt_2"} {
		_, err := rec.Apply(context.Background(), Event{ID: id, Type: EventPaymentFailed, IntentID: res.ExternalRef})
		require.NoError(t, err)
	}
	assert.Equal(t, 5, store.state.pieces[piece].qty)
}

func TestReconcilerUnknownIntentIsNoop(t *testing.T) {
	store := newFakeStore()
	rec := NewReconciler(testLogger(), store, nil)

	outcome, err := rec.Apply(context.Background(), Event{
		ID:       "evt_1",
		Type:     EventPaymentSucceeded,
		IntentID: "pi_someone_elses",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoop, outcome)
	assert.Empty(t, store.state.tracking)
}

func TestReconcilerUnknownEventTypeIsNoop(t *testing.T) {
	store := newFakeStore()
	piece := seedPiece(store, "A", 5, "10.00")
	res := checkoutFixture(t, store, []CartLine{{PieceID: piece, Quantity: 1}})

	rec := NewReconciler(testLogger(), store, nil)
	outcome, err := rec.Apply(context.Background(), Event{
		ID:       "evt_1",
		Type:     "charge.refund.updated",
		IntentID: res.ExternalRef,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoop, outcome)
	assert.Equal(t, domain.OrderStatusPending, store.state.orders[res.OrderID].Status)
}

func TestReconcilerDedupShortCircuits(t *testing.T) {
	store := newFakeStore()
	piece := seedPiece(store, "A", 5, "10.00")
	res := checkoutFixture(t, store, []CartLine{{PieceID: piece, Quantity: 1}})

	dedup := newFakeDedup()
	rec := NewReconciler(testLogger(), store, dedup)
	ev := Event{ID: "evt_1", Type: EventPaymentSucceeded, IntentID: res.ExternalRef}

	outcome, err := rec.Apply(context.Background(), ev)
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, outcome)
	seen, _ := dedup.Seen(context.Background(), ev.ID)
	require.True(t, seen)

	// Exact redelivery: same event id, shed before the store.
	outcome, err = rec.Apply(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoop, outcome)
	assert.Len(t, store.state.tracking, 1)
}
