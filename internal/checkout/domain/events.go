package domain

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventOrderPlaced    = "OrderPlaced"
	EventOrderPaid      = "OrderPaid"
	EventOrderCancelled = "OrderCancelled"
)

type OrderPlaced struct {
	OrderID uuid.UUID       `json:"order_id"`
	UserID  uuid.UUID       `json:"user_id"`
	Total   decimal.Decimal `json:"total"`
}

type OrderPaid struct {
	OrderID     uuid.UUID `json:"order_id"`
	ExternalRef string    `json:"external_ref"`
}

type OrderCancelled struct {
	OrderID     uuid.UUID `json:"order_id"`
	ExternalRef string    `json:"external_ref"`
	Reason      string    `json:"reason"`
}
