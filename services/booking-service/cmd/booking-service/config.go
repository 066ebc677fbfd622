package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/auth"
	"github.com/md-rashed-zaman/slotbook/libs/config"
	"github.com/md-rashed-zaman/slotbook/libs/kafkax"
)

type appConfig struct {
	Service string
	Port    string

	Driver      string
	DatabaseURL string
	DBMaxConns  int
	SQLitePath  string

	Location        *time.Location
	SlotStep        time.Duration
	PublicRangeDays int
	PaidSlotPrice   int
	BaseURL         string

	BookingLimit  int
	BookingWindow time.Duration
	RedisAddr     string
	FailOpen      bool

	DiscordWebhook string
	NotifyPerSec   float64

	Admin         auth.Credentials
	SessionSecret string
	SessionTTL    time.Duration

	KafkaBrokers []string
	KafkaTopic   string

	LogLevel    string
	LogFile     string
	CORSOrigins []string
}

func loadConfig() (appConfig, error) {
	var errs []error
	keep := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg := appConfig{
		Service:        config.String("SERVICE_NAME", "booking-service"),
		Driver:         strings.ToLower(config.String("DATABASE_DRIVER", "postgres")),
		SQLitePath:     config.String("SQLITE_PATH", "slotbook.db"),
		BaseURL:        strings.TrimRight(config.String("APP_BASE_URL", "http://localhost:8080"), "/"),
		RedisAddr:      config.String("REDIS_ADDR", ""),
		FailOpen:       config.Bool("RATE_LIMIT_FAIL_OPEN", true),
		DiscordWebhook: config.String("DISCORD_WEBHOOK_URL", ""),
		KafkaBrokers:   kafkax.SplitBrokers(config.String("KAFKA_BROKERS", "")),
		KafkaTopic:     config.String("KAFKA_TOPIC", "slotbook.booking-events"),
		LogLevel:       config.String("LOG_LEVEL", "info"),
		LogFile:        config.String("LOG_FILE", ""),
		CORSOrigins:    config.List("CORS_ALLOWED_ORIGINS"),
	}

	var err error
	cfg.Port, err = config.Port("BOOKING_HTTP_PORT", "8080")
	keep(err)
	cfg.Location, err = config.Location("BOOKING_TIMEZONE", "Asia/Tokyo")
	keep(err)
	stepMinutes, err := config.Int("SLOT_STEP_MINUTES", 10)
	keep(err)
	cfg.SlotStep = time.Duration(stepMinutes) * time.Minute
	cfg.DBMaxConns, err = config.Int("DB_MAX_CONNS", 10)
	keep(err)
	cfg.PublicRangeDays, err = config.Int("PUBLIC_RANGE_DAYS", 60)
	keep(err)
	cfg.BookingLimit, err = config.Int("BOOKING_RATE_LIMIT", 20)
	keep(err)
	cfg.BookingWindow, err = config.Duration("BOOKING_RATE_WINDOW", time.Minute)
	keep(err)
	cfg.NotifyPerSec, err = config.Float("NOTIFY_RATE_PER_SEC", 1)
	keep(err)
	cfg.SessionTTL, err = config.Duration("ADMIN_SESSION_TTL", 12*time.Hour)
	keep(err)
	price, err := config.Float("PAID_SLOT_PRICE_JPY", 0)
	keep(err)
	cfg.PaidSlotPrice = int(price)

	switch cfg.Driver {
	case "postgres":
		cfg.DatabaseURL, err = config.RequiredString("DATABASE_URL")
		keep(err)
	case "sqlite":
	default:
		keep(fmt.Errorf("DATABASE_DRIVER must be postgres or sqlite, got %q", cfg.Driver))
	}

	cfg.Admin.Username, err = config.RequiredString("ADMIN_USERNAME")
	keep(err)
	cfg.Admin.PasswordHash = config.String("ADMIN_PASSWORD_HASH", "")
	cfg.Admin.Password = config.String("ADMIN_PASSWORD", "")
	if cfg.Admin.PasswordHash == "" && cfg.Admin.Password == "" {
		keep(errors.New("ADMIN_PASSWORD_HASH or ADMIN_PASSWORD is required"))
	}
	cfg.SessionSecret, err = config.RequiredString("ADMIN_SESSION_SECRET")
	keep(err)
	if cfg.SessionSecret != "" && len(cfg.SessionSecret) < auth.MinSecretLen {
		keep(fmt.Errorf("ADMIN_SESSION_SECRET must be at least %d characters", auth.MinSecretLen))
	}

	return cfg, errors.Join(errs...)
}
