package application

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/galeria-obsidiana/checkout/internal/checkout/domain"
	"github.com/galeria-obsidiana/checkout/internal/inventory"
	"github.com/galeria-obsidiana/checkout/internal/pricing"
)

type fakePiece struct {
	title       string
	qty         int
	price       decimal.Decimal
	discountPct decimal.Decimal
	discounted  bool
}

type fakeOutboxRow struct {
	aggregateID string
	eventType   string
	payload     []byte
}

type fakeState struct {
	pieces      map[uuid.UUID]*fakePiece
	addresses   map[uuid.UUID]uuid.UUID
	orders      map[uuid.UUID]domain.Order
	payments    map[uuid.UUID]domain.Payment
	paymentRefs map[string]uuid.UUID
	items       map[uuid.UUID][]domain.OrderItem
	tracking    []domain.ShippingTracking
	coupons     map[string]domain.Coupon
	couponUsage map[string]decimal.Decimal
	outbox      []fakeOutboxRow
}

func newFakeState() *fakeState {
	return &fakeState{
		pieces:      map[uuid.UUID]*fakePiece{},
		addresses:   map[uuid.UUID]uuid.UUID{},
		orders:      map[uuid.UUID]domain.Order{},
		payments:    map[uuid.UUID]domain.Payment{},
		paymentRefs: map[string]uuid.UUID{},
		items:       map[uuid.UUID][]domain.OrderItem{},
		coupons:     map[string]domain.Coupon{},
		couponUsage: map[string]decimal.Decimal{},
	}
}

func (s *fakeState) clone() *fakeState {
	c := newFakeState()
	for id, p := range s.pieces {
		cp := *p
		c.pieces[id] = &cp
	}
	for id, owner := range s.addresses {
		c.addresses[id] = owner
	}
	for id, o := range s.orders {
		c.orders[id] = o
	}
	for id, p := range s.payments {
		c.payments[id] = p
	}
	for ref, id := range s.paymentRefs {
		c.paymentRefs[ref] = id
	}
	for id, items := range s.items {
		c.items[id] = append([]domain.OrderItem(nil), items...)
	}
	c.tracking = append([]domain.ShippingTracking(nil), s.tracking...)
	for code, cp := range s.coupons {
		c.coupons[code] = cp
	}
	for k, v := range s.couponUsage {
		c.couponUsage[k] = v
	}
	c.outbox = append([]fakeOutboxRow(nil), s.outbox...)
	return c
}

// fakeStore emulates a transactional store: the callback works on a clone
// that replaces the live state only on success, and a single mutex stands in
// for row locks, serializing concurrent units of work.
type fakeStore struct {
	mu    sync.Mutex
	state *fakeState
}

func newFakeStore() *fakeStore {
	return &fakeStore{state: newFakeState()}
}

func (s *fakeStore) WithinTx(_ context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.state.clone()
	if err := fn(&fakeTx{state: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *fakeStore) OrderByID(_ context.Context, id uuid.UUID) (OrderView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.state.orders[id]
	if !ok {
		return OrderView{}, domain.ErrNotFound
	}
	o.Items = append([]domain.OrderItem(nil), s.state.items[id]...)
	view := OrderView{Order: o}
	for _, p := range s.state.payments {
		if p.OrderID == id {
			cp := p
			view.Payment = &cp
		}
	}
	for _, t := range s.state.tracking {
		if t.OrderID == id {
			view.Tracking = append(view.Tracking, t)
		}
	}
	return view, nil
}

type fakeTx struct {
	state *fakeState
}

func (t *fakeTx) StockForUpdate(_ context.Context, pieceID uuid.UUID) (inventory.Stock, error) {
	p, ok := t.state.pieces[pieceID]
	if !ok {
		return inventory.Stock{}, domain.ErrNotFound
	}
	return inventory.Stock{PieceID: pieceID, Title: p.title, Available: p.qty}, nil
}

func (t *fakeTx) AdjustStock(_ context.Context, pieceID uuid.UUID, delta int) error {
	p, ok := t.state.pieces[pieceID]
	if !ok {
		return domain.ErrNotFound
	}
	p.qty += delta
	return nil
}

func (t *fakeTx) Quote(_ context.Context, pieceID uuid.UUID) (pricing.Quote, error) {
	p, ok := t.state.pieces[pieceID]
	if !ok {
		return pricing.Quote{}, domain.ErrNotFound
	}
	return pricing.Quote{Price: p.price, DiscountPct: p.discountPct, Discounted: p.discounted}, nil
}

func (t *fakeTx) AddressOwner(_ context.Context, addressID uuid.UUID) (uuid.UUID, error) {
	owner, ok := t.state.addresses[addressID]
	if !ok {
		return uuid.Nil, domain.ErrNotFound
	}
	return owner, nil
}

func (t *fakeTx) InsertOrder(_ context.Context, o domain.Order) error {
	t.state.items[o.ID] = append([]domain.OrderItem(nil), o.Items...)
	o.Items = nil
	t.state.orders[o.ID] = o
	return nil
}

func (t *fakeTx) InsertPayment(_ context.Context, p domain.Payment) error {
	t.state.payments[p.ID] = p
	return nil
}

func (t *fakeTx) SetPaymentExternalRef(_ context.Context, paymentID uuid.UUID, ref string) error {
	p, ok := t.state.payments[paymentID]
	if !ok {
		return domain.ErrNotFound
	}
	p.ExternalRef = ref
	t.state.payments[paymentID] = p
	t.state.paymentRefs[ref] = paymentID
	return nil
}

func (t *fakeTx) CouponByCode(_ context.Context, code string) (domain.Coupon, error) {
	c, ok := t.state.coupons[code]
	if !ok {
		return domain.Coupon{}, domain.ErrNotFound
	}
	return c, nil
}

func (t *fakeTx) InsertCouponUsage(_ context.Context, _, couponID, userID uuid.UUID, discount decimal.Decimal) error {
	k := userID.String() + "|" + couponID.String()
	if _, ok := t.state.couponUsage[k]; ok {
		return domain.ErrCouponAlreadyUsed
	}
	t.state.couponUsage[k] = discount
	return nil
}

func (t *fakeTx) PaymentForUpdate(_ context.Context, externalRef string) (domain.Payment, error) {
	id, ok := t.state.paymentRefs[externalRef]
	if !ok {
		return domain.Payment{}, domain.ErrNotFound
	}
	return t.state.payments[id], nil
}

func (t *fakeTx) SetPaymentStatus(_ context.Context, paymentID uuid.UUID, status domain.PaymentStatus) error {
	p, ok := t.state.payments[paymentID]
	if !ok {
		return domain.ErrNotFound
	}
	p.Status = status
	t.state.payments[paymentID] = p
	return nil
}

func (t *fakeTx) SetOrderStatus(_ context.Context, orderID uuid.UUID, status domain.OrderStatus) error {
	o, ok := t.state.orders[orderID]
	if !ok {
		return domain.ErrNotFound
	}
	o.Status = status
	t.state.orders[orderID] = o
	return nil
}

func (t *fakeTx) OrderItems(_ context.Context, orderID uuid.UUID) ([]domain.OrderItem, error) {
	return append([]domain.OrderItem(nil), t.state.items[orderID]...), nil
}

func (t *fakeTx) InsertTracking(_ context.Context, tr domain.ShippingTracking) error {
	t.state.tracking = append(t.state.tracking, tr)
	return nil
}

func (t *fakeTx) AppendOutbox(_ context.Context, _, aggregateID, eventType string, payload []byte) error {
	t.state.outbox = append(t.state.outbox, fakeOutboxRow{
		aggregateID: aggregateID,
		eventType:   eventType,
		payload:     payload,
	})
	return nil
}

type fakeGateway struct {
	mu    sync.Mutex
	fail  error
	calls int
}

func (g *fakeGateway) CreateIntent(_ context.Context, _ IntentRequest) (Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail != nil {
		return Intent{}, g.fail
	}
	g.calls++
	return Intent{
		ID:           fmt.Sprintf("pi_%d", g.calls),
		ClientSecret: fmt.Sprintf("pi_%d_secret", g.calls),
	}, nil
}

type fakeDedup struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newFakeDedup() *fakeDedup {
	return &fakeDedup{seen: map[string]bool{}}
}

func (d *fakeDedup) Seen(_ context.Context, eventID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seen[eventID], nil
}

func (d *fakeDedup) Mark(_ context.Context, eventID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[eventID] = true
	return nil
}

func seedPiece(s *fakeStore, title string, qty int, price string) uuid.UUID {
	id := uuid.New()
	s.state.pieces[id] = &fakePiece{
		title: title,
		qty:   qty,
		price: decimal.RequireFromString(price),
	}
	return id
}

func seedAddress(s *fakeStore, owner uuid.UUID) uuid.UUID {
	id := uuid.New()
	s.state.addresses[id] = owner
	return id
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, got.Equal(decimal.RequireFromString(want)), "want %s, got %s", want, got)
}
