package main

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configKeys = []string{
	"SERVICE_NAME", "BOOKING_HTTP_PORT", "DATABASE_DRIVER", "DATABASE_URL", "DB_MAX_CONNS", "SQLITE_PATH",
	"BOOKING_TIMEZONE", "SLOT_STEP_MINUTES", "PUBLIC_RANGE_DAYS", "BOOKING_RATE_LIMIT",
	"BOOKING_RATE_WINDOW", "REDIS_ADDR", "RATE_LIMIT_FAIL_OPEN", "DISCORD_WEBHOOK_URL",
	"NOTIFY_RATE_PER_SEC", "APP_BASE_URL", "PAID_SLOT_PRICE_JPY", "ADMIN_USERNAME",
	"ADMIN_PASSWORD_HASH", "ADMIN_PASSWORD", "ADMIN_SESSION_SECRET", "ADMIN_SESSION_TTL",
	"KAFKA_BROKERS", "KAFKA_TOPIC", "LOG_LEVEL", "LOG_FILE", "CORS_ALLOWED_ORIGINS",
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, k := range configKeys {
		t.Setenv(k, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("ADMIN_USERNAME", "admin")
	t.Setenv("ADMIN_PASSWORD", "pw")
	t.Setenv("ADMIN_SESSION_SECRET", strings.Repeat("s", 32))
	t.Setenv("APP_BASE_URL", "https://book.example.com/")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "sqlite", cfg.Driver)
	assert.Equal(t, "slotbook.db", cfg.SQLitePath)
	assert.Equal(t, 10, cfg.DBMaxConns)
	assert.Equal(t, "Asia/Tokyo", cfg.Location.String())
	assert.Equal(t, 10*time.Minute, cfg.SlotStep)
	assert.Equal(t, 60, cfg.PublicRangeDays)
	assert.Equal(t, 20, cfg.BookingLimit)
	assert.Equal(t, time.Minute, cfg.BookingWindow)
	assert.True(t, cfg.FailOpen)
	assert.Equal(t, "https://book.example.com", cfg.BaseURL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "slotbook.booking-events", cfg.KafkaTopic)
	assert.Equal(t, 12*time.Hour, cfg.SessionTTL)
	assert.True(t, httpsURL(cfg.BaseURL))
}

func TestLoadConfigCollectsErrors(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("DATABASE_DRIVER", "mysql")
	t.Setenv("ADMIN_SESSION_SECRET", "short")
	t.Setenv("BOOKING_HTTP_PORT", "0")

	_, err := loadConfig()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "DATABASE_DRIVER must be postgres or sqlite")
	assert.Contains(t, msg, "ADMIN_USERNAME is required")
	assert.Contains(t, msg, "ADMIN_PASSWORD_HASH or ADMIN_PASSWORD is required")
	assert.Contains(t, msg, "ADMIN_SESSION_SECRET must be at least 32 characters")
	assert.Contains(t, msg, "BOOKING_HTTP_PORT must be a valid TCP port")
}

func TestLoadConfigPostgresNeedsURL(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("ADMIN_USERNAME", "admin")
	t.Setenv("ADMIN_PASSWORD_HASH", "$2a$12$abcdefghijklmnopqrstuv")
	t.Setenv("ADMIN_SESSION_SECRET", strings.Repeat("s", 40))

	_, err := loadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL is required")
}
