package postgres

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/galeria-obsidiana/checkout/internal/checkout/application"
	"github.com/galeria-obsidiana/checkout/internal/checkout/domain"
	"github.com/galeria-obsidiana/checkout/internal/inventory"
	"github.com/galeria-obsidiana/checkout/internal/pricing"
	"github.com/galeria-obsidiana/checkout/pkg/tracing"
)

const uniqueViolation = "23505"

type Store struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewStore(log *slog.Logger, pool *pgxpool.Pool) *Store {
	return &Store{log: log, pool: pool}
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx application.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(&Tx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) OrderByID(ctx context.Context, id uuid.UUID) (application.OrderView, error) {
	var view application.OrderView
	o := &view.Order
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, address_id, total, status, created_at, updated_at
		FROM orders
		WHERE id=$1 AND deleted_at IS NULL
	`, id).Scan(&o.ID, &o.UserID, &o.AddressID, &o.Total, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return application.OrderView{}, domain.ErrNotFound
	}
	if err != nil {
		return application.OrderView{}, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT piece_id, quantity, price_snapshot
		FROM order_items
		WHERE order_id=$1
	`, id)
	if err != nil {
		return application.OrderView{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.PieceID, &item.Quantity, &item.PriceSnapshot); err != nil {
			return application.OrderView{}, err
		}
		o.Items = append(o.Items, item)
	}
	if err := rows.Err(); err != nil {
		return application.OrderView{}, err
	}

	var p domain.Payment
	err = s.pool.QueryRow(ctx, `
		SELECT id, order_id, amount, payment_method, external_ref, status, created_at, updated_at
		FROM payments
		WHERE order_id=$1 AND deleted_at IS NULL
	`, id).Scan(&p.ID, &p.OrderID, &p.Amount, &p.Method, &p.ExternalRef, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return application.OrderView{}, err
	}
	if err == nil {
		view.Payment = &p
	}

	trows, err := s.pool.Query(ctx, `
		SELECT id, order_id, carrier, tracking_number, status, shipped_at, delivered_at, created_at
		FROM shipping_tracking
		WHERE order_id=$1 AND deleted_at IS NULL
		ORDER BY created_at
	`, id)
	if err != nil {
		return application.OrderView{}, err
	}
	defer trows.Close()
	for trows.Next() {
		var t domain.ShippingTracking
		if err := trows.Scan(&t.ID, &t.OrderID, &t.Carrier, &t.TrackingNumber, &t.Status, &t.ShippedAt, &t.DeliveredAt, &t.CreatedAt); err != nil {
			return application.OrderView{}, err
		}
		view.Tracking = append(view.Tracking, t)
	}
	if err := trows.Err(); err != nil {
		return application.OrderView{}, err
	}
	return view, nil
}

// Tx implements the application, inventory and pricing transaction ports on
// a single pgx transaction.
type Tx struct {
	tx pgx.Tx
}

func (t *Tx) StockForUpdate(ctx context.Context, pieceID uuid.UUID) (inventory.Stock, error) {
	var st inventory.Stock
	err := t.tx.QueryRow(ctx, `
		SELECT id, title, quantity
		FROM pieces
		WHERE id=$1 AND deleted_at IS NULL
		FOR UPDATE
	`, pieceID).Scan(&st.PieceID, &st.Title, &st.Available)
	if errors.Is(err, pgx.ErrNoRows) {
		return inventory.Stock{}, domain.ErrNotFound
	}
	if err != nil {
		return inventory.Stock{}, err
	}
	return st, nil
}

func (t *Tx) AdjustStock(ctx context.Context, pieceID uuid.UUID, delta int) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE pieces SET quantity = quantity + $2, updated_at = now()
		WHERE id=$1 AND deleted_at IS NULL
	`, pieceID, delta)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (t *Tx) Quote(ctx context.Context, pieceID uuid.UUID) (pricing.Quote, error) {
	var q pricing.Quote
	var pct decimal.NullDecimal
	err := t.tx.QueryRow(ctx, `
		SELECT p.price, d.percentage
		FROM pieces p
		LEFT JOIN piece_discounts d
			ON d.piece_id = p.id
			AND d.deleted_at IS NULL
			AND current_date BETWEEN d.start_date AND d.end_date
		WHERE p.id=$1 AND p.deleted_at IS NULL
	`, pieceID).Scan(&q.Price, &pct)
	if errors.Is(err, pgx.ErrNoRows) {
		return pricing.Quote{}, domain.ErrNotFound
	}
	if err != nil {
		return pricing.Quote{}, err
	}
	if pct.Valid {
		q.DiscountPct = pct.Decimal
		q.Discounted = true
	}
	return q, nil
}

func (t *Tx) AddressOwner(ctx context.Context, addressID uuid.UUID) (uuid.UUID, error) {
	var owner uuid.UUID
	err := t.tx.QueryRow(ctx, `
		SELECT user_id FROM addresses WHERE id=$1 AND deleted_at IS NULL
	`, addressID).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, domain.ErrNotFound
	}
	if err != nil {
		return uuid.Nil, err
	}
	return owner, nil
}

func (t *Tx) InsertOrder(ctx context.Context, o domain.Order) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO orders (id, user_id, address_id, total, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, o.ID, o.UserID, o.AddressID, o.Total, o.Status, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, item := range o.Items {
		batch.Queue(`
			INSERT INTO order_items (order_id, piece_id, quantity, price_snapshot)
			VALUES ($1,$2,$3,$4)
		`, o.ID, item.PieceID, item.Quantity, item.PriceSnapshot)
	}
	return t.tx.SendBatch(ctx, batch).Close()
}

func (t *Tx) InsertPayment(ctx context.Context, p domain.Payment) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO payments (id, order_id, amount, payment_method, external_ref, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, p.ID, p.OrderID, p.Amount, p.Method, p.ExternalRef, p.Status, p.CreatedAt, p.UpdatedAt)
	return err
}

func (t *Tx) SetPaymentExternalRef(ctx context.Context, paymentID uuid.UUID, ref string) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE payments SET external_ref=$2, updated_at=now() WHERE id=$1
	`, paymentID, ref)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (t *Tx) CouponByCode(ctx context.Context, code string) (domain.Coupon, error) {
	var c domain.Coupon
	err := t.tx.QueryRow(ctx, `
		SELECT id, code, percentage, valid_from, valid_until
		FROM coupons
		WHERE code=$1 AND deleted_at IS NULL
	`, code).Scan(&c.ID, &c.Code, &c.Percentage, &c.ValidFrom, &c.ValidUntil)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Coupon{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Coupon{}, err
	}
	return c, nil
}

func (t *Tx) InsertCouponUsage(ctx context.Context, orderID, couponID, userID uuid.UUID, discount decimal.Decimal) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO coupon_usages (order_id, coupon_id, user_id, discount_applied)
		VALUES ($1,$2,$3,$4)
	`, orderID, couponID, userID, discount)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domain.ErrCouponAlreadyUsed
	}
	return err
}

func (t *Tx) PaymentForUpdate(ctx context.Context, externalRef string) (domain.Payment, error) {
	var p domain.Payment
	err := t.tx.QueryRow(ctx, `
		SELECT id, order_id, amount, payment_method, external_ref, status, created_at, updated_at
		FROM payments
		WHERE external_ref=$1 AND deleted_at IS NULL
		FOR UPDATE
	`, externalRef).Scan(&p.ID, &p.OrderID, &p.Amount, &p.Method, &p.ExternalRef, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Payment{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Payment{}, err
	}
	return p, nil
}

func (t *Tx) SetPaymentStatus(ctx context.Context, paymentID uuid.UUID, status domain.PaymentStatus) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE payments SET status=$2, updated_at=now() WHERE id=$1
	`, paymentID, status)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (t *Tx) SetOrderStatus(ctx context.Context, orderID uuid.UUID, status domain.OrderStatus) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE orders SET status=$2, updated_at=now() WHERE id=$1
	`, orderID, status)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (t *Tx) OrderItems(ctx context.Context, orderID uuid.UUID) ([]domain.OrderItem, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT piece_id, quantity, price_snapshot
		FROM order_items
		WHERE order_id=$1
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.PieceID, &item.Quantity, &item.PriceSnapshot); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (t *Tx) InsertTracking(ctx context.Context, tr domain.ShippingTracking) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO shipping_tracking (id, order_id, carrier, tracking_number, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, tr.ID, tr.OrderID, tr.Carrier, tr.TrackingNumber, tr.Status, tr.CreatedAt)
	return err
}

func (t *Tx) AppendOutbox(ctx context.Context, aggregateType, aggregateID, eventType string, payload []byte) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, traceparent, status)
		VALUES ($1,$2,$3,$4,$5,'pending')
	`, aggregateType, aggregateID, eventType, payload, tracing.Traceparent(ctx))
	return err
}
