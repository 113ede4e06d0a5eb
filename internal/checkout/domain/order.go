package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order is the financial record of a checkout. Total is frozen at creation
// time and never recomputed; catalog price changes do not touch it.
type Order struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	AddressID uuid.UUID
	Items     []OrderItem
	Total     decimal.Decimal
	Status    OrderStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrderItem is immutable once written. PriceSnapshot is the unit price the
// buyer saw at checkout.
type OrderItem struct {
	PieceID       uuid.UUID
	Quantity      int
	PriceSnapshot decimal.Decimal
}

func NewOrder(userID, addressID uuid.UUID, items []OrderItem) Order {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.PriceSnapshot.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	now := time.Now().UTC()
	return Order{
		ID:        uuid.New(),
		UserID:    userID,
		AddressID: addressID,
		Items:     items,
		Total:     total.Round(2),
		Status:    OrderStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ItemsTotal is the undiscounted sum of the frozen line prices.
func (o Order) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.PriceSnapshot.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total.Round(2)
}
