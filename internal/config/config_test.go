package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"HTTP_ADDR", "REQUEST_TIMEOUT", "DATABASE_DSN", "RUN_MIGRATIONS", "RABBITMQ_URL",
		"PUBLISH_EVENTS", "CHECKOUT_TIMEOUT", "MAX_CONFLICT_RETRIES", "CORS_ALLOW_ORIGINS"} {
		t.Setenv(k, "")
	}

	cfg := Load()
	require.Equal(t, ":8080", cfg.HTTPAddr)
	require.Equal(t, 3*time.Second, cfg.RequestTimeout)
	require.True(t, cfg.RunMigrations)
	require.True(t, cfg.PublishEvents)
	require.Equal(t, 5*time.Second, cfg.CheckoutTimeout)
	require.Equal(t, 5, cfg.MaxConflictRetries)
	require.Equal(t, []string{"*"}, cfg.CORSAllowOrigins)
	require.NotEmpty(t, cfg.DatabaseDSN)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("DATABASE_DSN", "postgres://u:p@localhost:5432/db")
	t.Setenv("RUN_MIGRATIONS", "false")
	t.Setenv("PUBLISH_EVENTS", "0")
	t.Setenv("CHECKOUT_TIMEOUT", "750ms")
	t.Setenv("MAX_CONFLICT_RETRIES", "9")
	t.Setenv("CORS_ALLOW_ORIGINS", "http://a.test, http://b.test ,")

	cfg := Load()
	require.Equal(t, ":9090", cfg.HTTPAddr)
	require.Equal(t, "postgres://u:p@localhost:5432/db", cfg.DatabaseDSN)
	require.False(t, cfg.RunMigrations)
	require.False(t, cfg.PublishEvents)
	require.Equal(t, 750*time.Millisecond, cfg.CheckoutTimeout)
	require.Equal(t, 9, cfg.MaxConflictRetries)
	require.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSAllowOrigins)
}

func TestLoadFallsBackOnGarbage(t *testing.T) {
	t.Setenv("RUN_MIGRATIONS", "maybe")
	t.Setenv("CHECKOUT_TIMEOUT", "soon")
	t.Setenv("MAX_CONFLICT_RETRIES", "-3")
	t.Setenv("REQUEST_TIMEOUT", "x")

	cfg := Load()
	require.True(t, cfg.RunMigrations)
	require.Equal(t, 5*time.Second, cfg.CheckoutTimeout)
	require.Equal(t, 5, cfg.MaxConflictRetries)
	require.Equal(t, 3*time.Second, cfg.RequestTimeout)
}
