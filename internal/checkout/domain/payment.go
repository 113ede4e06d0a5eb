package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// ExternalRefPending is the sentinel stored until the provider hands back a
// payment-intent id.
const ExternalRefPending = "pending"

type Payment struct {
	ID          uuid.UUID
	OrderID     uuid.UUID
	Amount      decimal.Decimal
	Method      string
	ExternalRef string
	Status      PaymentStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func NewPayment(orderID uuid.UUID, amount decimal.Decimal, method string) Payment {
	now := time.Now().UTC()
	return Payment{
		ID:          uuid.New(),
		OrderID:     orderID,
		Amount:      amount,
		Method:      method,
		ExternalRef: ExternalRefPending,
		Status:      PaymentPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Terminal reports whether the payment has reached a final state. Completed
// and failed absorb every later provider event.
func (p Payment) Terminal() bool {
	return p.Status == PaymentCompleted || p.Status == PaymentFailed
}

func ValidPaymentMethod(m string) bool {
	return m == "card" || m == "paypal"
}

type TrackingStatus string

const (
	TrackingPending   TrackingStatus = "pending"
	TrackingInTransit TrackingStatus = "in_transit"
	TrackingDelivered TrackingStatus = "delivered"
)

// ShippingTracking exists only for orders that reached "paid" at least once.
// Carrier and tracking number stay empty until logistics assigns them.
type ShippingTracking struct {
	ID             uuid.UUID
	OrderID        uuid.UUID
	Carrier        string
	TrackingNumber string
	Status         TrackingStatus
	ShippedAt      *time.Time
	DeliveredAt    *time.Time
	CreatedAt      time.Time
}

func NewShippingTracking(orderID uuid.UUID) ShippingTracking {
	return ShippingTracking{
		ID:        uuid.New(),
		OrderID:   orderID,
		Status:    TrackingPending,
		CreatedAt: time.Now().UTC(),
	}
}

var trackingURLs = map[string]string{
	"fedex": "https://www.fedex.com/fedextrack/?trknbr=%s",
	"dhl":   "https://www.dhl.com/us-en/home/tracking/tracking-express.html?submit=1&tracking-id=%s",
	"ups":   "https://www.ups.com/track?tracknum=%s",
}

// TrackingURL returns the carrier's public tracking page, or "" while the
// carrier or number is unassigned.
func (t ShippingTracking) TrackingURL() string {
	tmpl, ok := trackingURLs[t.Carrier]
	if !ok || t.TrackingNumber == "" {
		return ""
	}
	return fmt.Sprintf(tmpl, t.TrackingNumber)
}
