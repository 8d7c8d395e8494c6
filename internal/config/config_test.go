package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "DB_DSN", "API_BASE_URL", "HTTP_TIMEOUT", "CART_BACKEND", "CART_SLOT", "CART_MAX_AGE"} {
		t.Setenv(k, "")
	}
	cfg := Load()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, BackendSQLite, cfg.CartBackend)
	assert.Equal(t, "so-cart", cfg.CartSlot)
	assert.Equal(t, 8*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, "https://wdd330-backend.onrender.com/", cfg.APIBaseURL)
	assert.Zero(t, cfg.CartMaxAge)
}

func TestLoadOverridesAndNormalizes(t *testing.T) {
	t.Setenv("API_BASE_URL", "http://localhost:3000")
	t.Setenv("HTTP_TIMEOUT", "250ms")
	t.Setenv("CART_BACKEND", "REDIS")
	t.Setenv("CART_MAX_AGE", "720h")
	cfg := Load()
	assert.Equal(t, "http://localhost:3000/", cfg.APIBaseURL)
	assert.Equal(t, 250*time.Millisecond, cfg.HTTPTimeout)
	assert.Equal(t, BackendRedis, cfg.CartBackend)
	assert.Equal(t, 30*24*time.Hour, cfg.CartMaxAge)
}

func TestZeroTimeoutFallsBackToDefault(t *testing.T) {
	t.Setenv("HTTP_TIMEOUT", "0s")
	assert.Equal(t, 8*time.Second, Load().HTTPTimeout)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("HTTP_TIMEOUT", "soon")
	t.Setenv("CART_BACKEND", "postgres")
	t.Setenv("CART_MAX_AGE", "-1h")
	cfg := Load()
	assert.Equal(t, 8*time.Second, cfg.HTTPTimeout)
	assert.Zero(t, cfg.CartMaxAge)
	assert.Equal(t, BackendSQLite, cfg.CartBackend)
}
