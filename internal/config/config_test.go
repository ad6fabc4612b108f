package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.True(t, cfg.DonationMin.Equal(decimal.NewFromInt(10)))
	assert.True(t, cfg.DonationMax.Equal(decimal.NewFromInt(10000)))
	assert.True(t, cfg.InternalZeroPlaceholder)
	assert.False(t, cfg.Production())
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
environment: production
server:
  port: "9090"
payments:
  donation_min: "5"
  internal_zero_placeholder: false
promo_codes:
  - code: SPRING
    discount_percent: 20
    description: Spring discount
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv("PORT", "7070")
	t.Setenv("ADMIN_USERNAME", "pastor")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.HTTPPort)
	assert.Equal(t, "pastor", cfg.AdminUsername)
	assert.True(t, cfg.Production())
	assert.True(t, cfg.DonationMin.Equal(decimal.NewFromInt(5)))
	assert.False(t, cfg.InternalZeroPlaceholder)
	require.Len(t, cfg.PromoCodes, 1)
	assert.Equal(t, 20, cfg.PromoCodes[0].DiscountPercent)
}

func TestLoadRejectsOutOfRangePromo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
promo_codes:
  - code: TOOMUCH
    discount_percent: 150
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsChaosInProduction(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("CHAOS_FAILURE_RATE", "0.2")

	_, err := Load("")
	assert.Error(t, err)
}

func TestLoadChaosSettings(t *testing.T) {
	t.Setenv("CHAOS_FAILURE_RATE", "0.25")
	t.Setenv("CHAOS_LATENCY_MS", "150")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 0.25, cfg.ChaosFailureRate)
	assert.Equal(t, 150*time.Millisecond, cfg.ChaosLatency)
}

func TestLoadTrustProxyHeaders(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.False(t, cfg.TrustProxyHeaders)

	t.Setenv("TRUST_PROXY_HEADERS", "true")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.True(t, cfg.TrustProxyHeaders)
}
