package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/galeria-obsidiana/checkout/internal/checkout/application"
	checkouthttp "github.com/galeria-obsidiana/checkout/internal/checkout/infrastructure/http"
	checkoutkafka "github.com/galeria-obsidiana/checkout/internal/checkout/infrastructure/kafka"
	checkoutpg "github.com/galeria-obsidiana/checkout/internal/checkout/infrastructure/postgres"
	"github.com/galeria-obsidiana/checkout/internal/checkout/infrastructure/stripe"
	"github.com/galeria-obsidiana/checkout/internal/config"
	"github.com/galeria-obsidiana/checkout/pkg/idempotency"
	"github.com/galeria-obsidiana/checkout/pkg/logging"
	"github.com/galeria-obsidiana/checkout/pkg/metrics"
	"github.com/galeria-obsidiana/checkout/pkg/outbox"
	"github.com/galeria-obsidiana/checkout/pkg/shutdown"
	"github.com/galeria-obsidiana/checkout/pkg/tracing"
)

func main() {
	log := logging.New()

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", "err", err)
		os.Exit(1)
	}

	tp, err := tracing.Init(ctx, "checkout-service", cfg.OTLPURL, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Error("pg connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := checkoutpg.Migrate(ctx, pool); err != nil {
		log.Error("migration failed", "err", err)
		os.Exit(1)
	}

	redisDB := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisDB.Close()
	dedup := idempotency.NewStore(redisDB, cfg.WebhookDedupTTL)

	writer := checkoutkafka.NewWriter([]string{cfg.KafkaAddr})
	defer writer.Close()

	store := checkoutpg.NewStore(log, pool)
	outboxStore := checkoutpg.NewOutboxStore(log, pool)
	dispatch := outbox.NewDispatcher(log, writer, cfg.OutboxTopic)
	relay := outbox.NewRelay(log, outboxStore, dispatch, "checkout-service-relay")

	gateway := stripe.NewClient(log, cfg.StripeBaseURL, cfg.StripeSecretKey)
	verifier := stripe.NewWebhookVerifier(cfg.StripeWebhookSecret)

	svc := application.NewService(log, store, gateway, cfg.Currency)
	reconciler := application.NewReconciler(log, store, dedup)

	m := metrics.New(prometheus.DefaultRegisterer)
	handler := checkouthttp.NewHandler(log, svc, reconciler, verifier, cfg.StripePublishableKey, m)

	r := chi.NewRouter()
	r.Mount("/", handler.Routes())
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		if err := relay.Run(ctx); err != nil {
			log.Error("relay stopped with error", "err", err)
		}
	}()

	go func() {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	log.Info("checkout-service shutdown complete")
}
