package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/slotbook/libs/auth"
	"github.com/md-rashed-zaman/slotbook/libs/db"
	"github.com/md-rashed-zaman/slotbook/libs/httpx"
	"github.com/md-rashed-zaman/slotbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/slotbook/libs/otel"
	"github.com/md-rashed-zaman/slotbook/libs/runtime"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	logger := runtime.NewLogger(cfg.Service, runtime.LogOptions{Level: cfg.LogLevel, File: cfg.LogFile})

	if err := run(cfg, logger); err != nil {
		logger.Error("booking service failed", "err", err)
		os.Exit(1)
	}
}

func run(cfg appConfig, logger *slog.Logger) error {
	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.Service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	var store *storage.Store
	var checks []runtime.ReadyCheck
	switch cfg.Driver {
	case "sqlite":
		conn, err := db.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return fmt.Errorf("open sqlite: %w", err)
		}
		defer conn.Close()
		store = storage.NewSQLite(conn)
		checks = append(checks, runtime.ReadyCheck{Name: "db", Check: db.SQLiteReadyCheck(conn)})
	default:
		pool, err := db.Open(ctx, cfg.DatabaseURL, db.PoolOptions{
			MaxConns:        int32(cfg.DBMaxConns),
			ApplicationName: cfg.Service,
		})
		if err != nil {
			return fmt.Errorf("db connection failed: %w", err)
		}
		defer pool.Close()
		store = storage.NewPostgres(pool)
		checks = append(checks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})
	}
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	logger.Info("schema ready", "driver", store.Driver())

	m := metrics.New()
	svc := booking.NewService(store, booking.Options{
		Location:     cfg.Location,
		SlotStep:     cfg.SlotStep,
		RecordEvents: len(cfg.KafkaBrokers) > 0,
		Logger:       logger,
		Recorder:     m,
	})

	if len(cfg.KafkaBrokers) > 0 {
		writer := outbox.NewKafkaWriter(cfg.KafkaBrokers)
		defer writer.Close()
		publisher := outbox.NewPublisher(store, writer, logger, outbox.PublisherConfig{Topic: cfg.KafkaTopic})
		go publisher.Run(ctx)
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)})
	} else {
		logger.Warn("outbox publisher disabled (no kafka brokers configured)")
	}

	var limiter httpx.Limiter = httpx.NewRateLimiter()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		limiter = httpx.NewRedisRateLimiter(rdb, "slotbook:rl:")
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: httpx.RedisReadyCheck(rdb)})
	}
	onLimited := func(name string) func(*http.Request) {
		return func(*http.Request) { m.RateLimited(name) }
	}

	var sender notify.Notifier = notify.Noop{}
	if cfg.DiscordWebhook != "" {
		sender = notify.NewWebhook(cfg.DiscordWebhook, cfg.NotifyPerSec)
	}
	dispatcher := notify.NewDispatcher(sender, notify.Composer{
		BaseURL:   cfg.BaseURL,
		Location:  cfg.Location,
		PaidPrice: cfg.PaidSlotPrice,
	}, logger, m)

	sessions, err := auth.NewSessions(cfg.SessionSecret, cfg.SessionTTL)
	if err != nil {
		return err
	}

	mux := runtime.NewBaseMux(checks...)
	mux.Handle("GET /metrics", m.Handler())
	handlers.Routes{
		Public: handlers.NewPublicHandler(svc, dispatcher, logger, handlers.PublicConfig{
			PaidSlotPrice:   cfg.PaidSlotPrice,
			PublicRangeDays: cfg.PublicRangeDays,
			BaseURL:         cfg.BaseURL,
		}),
		Admin:   handlers.NewAdminHandler(svc, dispatcher, logger),
		Session: handlers.NewSessionHandler(sessions, cfg.Admin, logger, httpsURL(cfg.BaseURL)),
		BookingLimit: httpx.RateLimit(limiter, httpx.RateLimitPolicy{
			Name:      "bookings",
			Limit:     cfg.BookingLimit,
			Window:    cfg.BookingWindow,
			FailOpen:  cfg.FailOpen,
			OnLimited: onLimited("bookings"),
		}, logger),
		LoginLimit: httpx.RateLimit(limiter, httpx.RateLimitPolicy{
			Name:      "admin-login",
			Limit:     10,
			Window:    5 * time.Minute,
			FailOpen:  cfg.FailOpen,
			OnLimited: onLimited("admin-login"),
		}, logger),
	}.Register(mux)

	httpHandler := httpx.Chain(mux,
		httpx.WithRecover(logger),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{AllowedOrigins: cfg.CORSOrigins, AllowCredentials: true}),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(15*time.Second),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return runtime.Serve(ctx, srv, logger, 10*time.Second)
}

func httpsURL(u string) bool {
	return strings.HasPrefix(u, "https://")
}
