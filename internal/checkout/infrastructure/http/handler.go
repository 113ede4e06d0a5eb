package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/galeria-obsidiana/checkout/internal/checkout/application"
	"github.com/galeria-obsidiana/checkout/internal/checkout/domain"
	"github.com/galeria-obsidiana/checkout/internal/checkout/infrastructure/stripe"
	"github.com/galeria-obsidiana/checkout/internal/inventory"
	"github.com/galeria-obsidiana/checkout/pkg/metrics"
)

const maxWebhookBody = 1 << 16

type Handler struct {
	log            *slog.Logger
	svc            *application.Service
	reconciler     *application.Reconciler
	verifier       *stripe.WebhookVerifier
	publishableKey string
	metrics        *metrics.Metrics
	tracer         trace.Tracer
}

func NewHandler(log *slog.Logger, svc *application.Service, reconciler *application.Reconciler, verifier *stripe.WebhookVerifier, publishableKey string, m *metrics.Metrics) *Handler {
	return &Handler{
		log:            log,
		svc:            svc,
		reconciler:     reconciler,
		verifier:       verifier,
		publishableKey: publishableKey,
		metrics:        m,
		tracer:         otel.Tracer("checkout-http"),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/checkout", h.checkout)
	r.Post("/webhooks/stripe", h.webhook)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	return r
}

type checkoutItem struct {
	PieceID  uuid.UUID `json:"piece"`
	Quantity int       `json:"quantity"`
}

type checkoutReq struct {
	UserID        uuid.UUID      `json:"user_id"`
	AddressID     uuid.UUID      `json:"address"`
	PaymentMethod string         `json:"payment_method"`
	CouponCode    string         `json:"coupon_code,omitempty"`
	Items         []checkoutItem `json:"items"`
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "Checkout")
	defer span.End()
	start := time.Now()

	var req checkoutReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.metrics.Checkouts.WithLabelValues("invalid").Inc()
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	lines := make([]application.CartLine, 0, len(req.Items))
	for _, item := range req.Items {
		lines = append(lines, application.CartLine{PieceID: item.PieceID, Quantity: item.Quantity})
	}

	res, err := h.svc.Checkout(ctx, application.CheckoutRequest{
		UserID:        req.UserID,
		AddressID:     req.AddressID,
		PaymentMethod: req.PaymentMethod,
		CouponCode:    req.CouponCode,
		Items:         lines,
	})
	h.metrics.CheckoutDuration.Observe(float64(time.Since(start).Milliseconds()))

	if err != nil {
		h.writeCheckoutError(w, err)
		return
	}

	h.metrics.Checkouts.WithLabelValues("created").Inc()
	writeJSON(w, http.StatusCreated, map[string]any{
		"order_id":        res.OrderID,
		"client_secret":   res.ClientSecret,
		"publishable_key": h.publishableKey,
	})
}

func (h *Handler) writeCheckoutError(w http.ResponseWriter, err error) {
	var insufficient *inventory.InsufficientStockError
	var gateway *domain.GatewayError
	switch {
	case errors.As(err, &insufficient):
		h.metrics.Checkouts.WithLabelValues("insufficient_stock").Inc()
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":     insufficient.Error(),
			"piece":     insufficient.PieceID,
			"available": insufficient.Available,
		})
	case errors.As(err, &gateway):
		h.metrics.Checkouts.WithLabelValues("gateway_error").Inc()
		h.log.Error("payment provider failure", "err", err)
		writeError(w, http.StatusBadGateway, "payment provider unavailable")
	case domain.IsValidation(err) || errors.Is(err, domain.ErrNotFound):
		h.metrics.Checkouts.WithLabelValues("invalid").Inc()
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.metrics.Checkouts.WithLabelValues("error").Inc()
		h.log.Error("checkout failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) webhook(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "PaymentWebhook")
	defer span.End()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	ev, err := h.verifier.ConstructEvent(body, r.Header.Get(stripe.SignatureHeader))
	if err != nil {
		h.metrics.WebhookEvents.WithLabelValues("unknown", "rejected").Inc()
		h.log.Warn("webhook rejected", "err", err)
		writeError(w, http.StatusBadRequest, "invalid payload or signature")
		return
	}

	outcome, err := h.reconciler.Apply(ctx, application.Event{
		ID:       ev.ID,
		Type:     ev.Type,
		IntentID: ev.Data.Object.ID,
	})
	if err != nil {
		// Transient store failure: a 5xx makes the provider redeliver, which
		// is safe because handling is idempotent.
		h.metrics.WebhookEvents.WithLabelValues(ev.Type, "error").Inc()
		h.log.Error("webhook reconciliation failed", "event_id", ev.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "reconciliation failed")
		return
	}

	h.metrics.WebhookEvents.WithLabelValues(ev.Type, string(outcome)).Inc()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type orderItemResp struct {
	PieceID       uuid.UUID       `json:"piece"`
	Quantity      int             `json:"quantity"`
	PriceSnapshot decimal.Decimal `json:"price_snapshot"`
}

type trackingResp struct {
	Carrier        string                `json:"carrier"`
	TrackingNumber string                `json:"tracking_number"`
	Status         domain.TrackingStatus `json:"status"`
	TrackingURL    string                `json:"tracking_url,omitempty"`
}

type orderResp struct {
	ID        uuid.UUID          `json:"id"`
	UserID    uuid.UUID          `json:"user_id"`
	Total     decimal.Decimal    `json:"total"`
	Status    domain.OrderStatus `json:"status"`
	CreatedAt time.Time          `json:"created_at"`
	Items     []orderItemResp    `json:"items"`
	Payment   *paymentResp       `json:"payment,omitempty"`
	Tracking  []trackingResp     `json:"tracking,omitempty"`
}

type paymentResp struct {
	Amount      decimal.Decimal      `json:"amount"`
	Method      string               `json:"payment_method"`
	ExternalRef string               `json:"external_ref"`
	Status      domain.PaymentStatus `json:"status"`
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetOrder")
	defer span.End()

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	view, err := h.svc.Order(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	if err != nil {
		h.log.Error("order lookup failed", "order_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := orderResp{
		ID:        view.Order.ID,
		UserID:    view.Order.UserID,
		Total:     view.Order.Total,
		Status:    view.Order.Status,
		CreatedAt: view.Order.CreatedAt,
	}
	for _, item := range view.Order.Items {
		resp.Items = append(resp.Items, orderItemResp{
			PieceID:       item.PieceID,
			Quantity:      item.Quantity,
			PriceSnapshot: item.PriceSnapshot,
		})
	}
	if view.Payment != nil {
		resp.Payment = &paymentResp{
			Amount:      view.Payment.Amount,
			Method:      view.Payment.Method,
			ExternalRef: view.Payment.ExternalRef,
			Status:      view.Payment.Status,
		}
	}
	for _, t := range view.Tracking {
		resp.Tracking = append(resp.Tracking, trackingResp{
			Carrier:        t.Carrier,
			TrackingNumber: t.TrackingNumber,
			Status:         t.Status,
			TrackingURL:    t.TrackingURL(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
