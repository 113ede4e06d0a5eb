package application

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/galeria-obsidiana/checkout/internal/checkout/domain"
	"github.com/galeria-obsidiana/checkout/internal/inventory"
	"github.com/galeria-obsidiana/checkout/internal/pricing"
)

// Tx is one unit of work against the store. Every method runs inside the same
// transaction; WithinTx commits when the callback returns nil and rolls back
// otherwise.
type Tx interface {
	inventory.Tx
	pricing.Tx

	// AddressOwner returns the owning user of a live address, or
	// domain.ErrNotFound.
	AddressOwner(ctx context.Context, addressID uuid.UUID) (uuid.UUID, error)

	InsertOrder(ctx context.Context, o domain.Order) error
	InsertPayment(ctx context.Context, p domain.Payment) error
	SetPaymentExternalRef(ctx context.Context, paymentID uuid.UUID, ref string) error

	CouponByCode(ctx context.Context, code string) (domain.Coupon, error)
	// InsertCouponUsage fails with domain.ErrCouponAlreadyUsed when the user
	// has redeemed the coupon before.
	InsertCouponUsage(ctx context.Context, orderID, couponID, userID uuid.UUID, discount decimal.Decimal) error

	// PaymentForUpdate locks the payment row by provider reference for the
	// rest of the transaction, or returns domain.ErrNotFound.
	PaymentForUpdate(ctx context.Context, externalRef string) (domain.Payment, error)
	SetPaymentStatus(ctx context.Context, paymentID uuid.UUID, status domain.PaymentStatus) error
	SetOrderStatus(ctx context.Context, orderID uuid.UUID, status domain.OrderStatus) error
	OrderItems(ctx context.Context, orderID uuid.UUID) ([]domain.OrderItem, error)
	InsertTracking(ctx context.Context, t domain.ShippingTracking) error

	AppendOutbox(ctx context.Context, aggregateType, aggregateID, eventType string, payload []byte) error
}

// OrderView is the read model for a single order.
type OrderView struct {
	Order    domain.Order
	Payment  *domain.Payment
	Tracking []domain.ShippingTracking
}

type Store interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
	OrderByID(ctx context.Context, id uuid.UUID) (OrderView, error)
}

// Intent is the client-usable payment handle returned by the provider.
type Intent struct {
	ID           string
	ClientSecret string
}

type IntentRequest struct {
	AmountMinor int64
	Currency    string
	OrderID     uuid.UUID
	UserID      uuid.UUID
}

// Gateway opens a payment intent with the external provider. Errors are
// transport/provider failures; the orchestrator wraps them in
// domain.GatewayError.
type Gateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
}

// Dedup sheds duplicate provider event deliveries before they reach the
// store. It is advisory: the row lock plus terminal-status check remains the
// authoritative guard.
type Dedup interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}
