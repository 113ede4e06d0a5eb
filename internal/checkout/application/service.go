package application

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/galeria-obsidiana/checkout/internal/checkout/domain"
	"github.com/galeria-obsidiana/checkout/internal/inventory"
	"github.com/galeria-obsidiana/checkout/internal/pricing"
)

type CartLine struct {
	PieceID  uuid.UUID
	Quantity int
}

type CheckoutRequest struct {
	UserID        uuid.UUID
	AddressID     uuid.UUID
	PaymentMethod string
	CouponCode    string
	Items         []CartLine
}

func (r CheckoutRequest) validate() error {
	if len(r.Items) == 0 {
		return domain.ErrEmptyCart
	}
	for _, line := range r.Items {
		if line.Quantity < 1 {
			return domain.ErrInvalidQuantity
		}
	}
	if !domain.ValidPaymentMethod(r.PaymentMethod) {
		return domain.ErrUnknownPaymentMethod
	}
	return nil
}

type CheckoutResult struct {
	OrderID      uuid.UUID
	ExternalRef  string
	ClientSecret string
}

// Service is the checkout orchestrator: it reserves stock, freezes prices,
// persists the order/payment aggregate and opens the payment intent, all as
// one commit-or-rollback unit.
type Service struct {
	log      *slog.Logger
	store    Store
	gateway  Gateway
	ledger   *inventory.Ledger
	prices   pricing.Snapshot
	currency string
	now      func() time.Time
}

func NewService(log *slog.Logger, store Store, gateway Gateway, currency string) *Service {
	return &Service{
		log:      log,
		store:    store,
		gateway:  gateway,
		ledger:   inventory.NewLedger(log),
		currency: currency,
		now:      time.Now,
	}
}

func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (CheckoutResult, error) {
	if err := req.validate(); err != nil {
		return CheckoutResult{}, err
	}

	var res CheckoutResult
	err := s.store.WithinTx(ctx, func(tx Tx) error {
		owner, err := tx.AddressOwner(ctx, req.AddressID)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrAddressNotOwned
		}
		if err != nil {
			return err
		}
		if owner != req.UserID {
			return domain.ErrAddressNotOwned
		}

		items := make([]domain.OrderItem, 0, len(req.Items))
		for _, line := range req.Items {
			if err := s.ledger.Reserve(ctx, tx, line.PieceID, line.Quantity); err != nil {
				return err
			}
			unit, err := s.prices.Resolve(ctx, tx, line.PieceID)
			if err != nil {
				return err
			}
			items = append(items, domain.OrderItem{
				PieceID:       line.PieceID,
				Quantity:      line.Quantity,
				PriceSnapshot: unit,
			})
		}

		order := domain.NewOrder(req.UserID, req.AddressID, items)

		var coupon *domain.Coupon
		if req.CouponCode != "" {
			c, err := tx.CouponByCode(ctx, req.CouponCode)
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrUnknownCoupon
			}
			if err != nil {
				return err
			}
			if !c.ActiveOn(s.now()) {
				return domain.ErrCouponNotActive
			}
			order.Total = order.Total.Sub(c.DiscountOn(order.Total))
			coupon = &c
		}

		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}
		if coupon != nil {
			discount := order.ItemsTotal().Sub(order.Total)
			if err := tx.InsertCouponUsage(ctx, order.ID, coupon.ID, req.UserID, discount); err != nil {
				return err
			}
		}

		payment := domain.NewPayment(order.ID, order.Total, req.PaymentMethod)
		if err := tx.InsertPayment(ctx, payment); err != nil {
			return err
		}

		// The only external call; any failure here rolls the whole
		// transaction back so the attempt leaves no trace.
		intent, err := s.gateway.CreateIntent(ctx, IntentRequest{
			AmountMinor: pricing.MinorUnits(order.Total),
			Currency:    s.currency,
			OrderID:     order.ID,
			UserID:      req.UserID,
		})
		if err != nil {
			return &domain.GatewayError{Err: err}
		}
		if err := tx.SetPaymentExternalRef(ctx, payment.ID, intent.ID); err != nil {
			return err
		}

		payload, err := json.Marshal(domain.OrderPlaced{
			OrderID: order.ID,
			UserID:  req.UserID,
			Total:   order.Total,
		})
		if err != nil {
			return err
		}
		if err := tx.AppendOutbox(ctx, "order", order.ID.String(), domain.EventOrderPlaced, payload); err != nil {
			return err
		}

		res = CheckoutResult{
			OrderID:      order.ID,
			ExternalRef:  intent.ID,
			ClientSecret: intent.ClientSecret,
		}
		return nil
	})
	if err != nil {
		return CheckoutResult{}, err
	}

	s.log.Info("checkout completed", "order_id", res.OrderID, "external_ref", res.ExternalRef)
	return res, nil
}

// Order returns the read model for one order, soft-delete filtered.
func (s *Service) Order(ctx context.Context, id uuid.UUID) (OrderView, error) {
	return s.store.OrderByID(ctx, id)
}
