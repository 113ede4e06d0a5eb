package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Financial records are never hard-deleted; every table carries deleted_at
// and read paths filter on it.
const schema = `
CREATE TABLE IF NOT EXISTS pieces (
	id UUID PRIMARY KEY,
	title TEXT NOT NULL UNIQUE,
	quantity INT NOT NULL CHECK (quantity >= 0),
	price NUMERIC(10,2) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	deleted_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS piece_discounts (
	id UUID PRIMARY KEY,
	piece_id UUID NOT NULL REFERENCES pieces(id),
	percentage NUMERIC(3,1) NOT NULL,
	start_date DATE NOT NULL,
	end_date DATE NOT NULL,
	deleted_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS addresses (
	id UUID PRIMARY KEY,
	user_id UUID NOT NULL,
	recipient TEXT NOT NULL DEFAULT '',
	deleted_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS orders (
	id UUID PRIMARY KEY,
	user_id UUID NOT NULL,
	address_id UUID NOT NULL REFERENCES addresses(id),
	total NUMERIC(10,2) NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	deleted_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS order_items (
	id BIGSERIAL PRIMARY KEY,
	order_id UUID NOT NULL REFERENCES orders(id),
	piece_id UUID NOT NULL REFERENCES pieces(id),
	quantity INT NOT NULL CHECK (quantity > 0),
	price_snapshot NUMERIC(10,2) NOT NULL
);

CREATE TABLE IF NOT EXISTS payments (
	id UUID PRIMARY KEY,
	order_id UUID NOT NULL UNIQUE REFERENCES orders(id),
	amount NUMERIC(10,2) NOT NULL,
	payment_method TEXT NOT NULL,
	external_ref TEXT NOT NULL DEFAULT 'pending',
	status TEXT NOT NULL DEFAULT 'pending',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	deleted_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS payments_external_ref_idx ON payments (external_ref);

CREATE TABLE IF NOT EXISTS shipping_tracking (
	id UUID PRIMARY KEY,
	order_id UUID NOT NULL REFERENCES orders(id),
	carrier TEXT NOT NULL DEFAULT '',
	tracking_number TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'pending',
	shipped_at TIMESTAMPTZ,
	delivered_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	deleted_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS coupons (
	id UUID PRIMARY KEY,
	code TEXT NOT NULL UNIQUE,
	percentage NUMERIC(3,1) NOT NULL,
	valid_from DATE NOT NULL,
	valid_until DATE NOT NULL,
	deleted_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS coupon_usages (
	id BIGSERIAL PRIMARY KEY,
	order_id UUID NOT NULL REFERENCES orders(id),
	coupon_id UUID NOT NULL REFERENCES coupons(id),
	user_id UUID NOT NULL,
	discount_applied NUMERIC(10,2) NOT NULL,
	UNIQUE (user_id, coupon_id)
);

CREATE TABLE IF NOT EXISTS outbox (
	id BIGSERIAL PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	aggregate_id TEXT NOT NULL,
	type TEXT NOT NULL,
	payload BYTEA NOT NULL,
	traceparent TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'pending',
	relay_id TEXT,
	lease_until TIMESTAMPTZ,
	retry_count INT NOT NULL DEFAULT 0,
	last_error TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS outbox_pending_idx ON outbox (id) WHERE status = 'pending';
`

func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schema)
	return err
}
