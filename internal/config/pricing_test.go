package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPricingConfig_DefaultsWhenFileMissing(t *testing.T) {
	holder, err := NewPricingConfigHolder(Config{PricingConfigPath: ""})
	require.NoError(t, err)

	cfg := holder.Get()
	assert.Equal(t, "annual", cfg.DefaultBillingFrequency)
	assert.Equal(t, 30*24*time.Hour, cfg.QuoteTTL)
	assert.Zero(t, cfg.TaxRate)
}

func TestPricingConfig_ReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pricing.yml")
	content := []byte("pricing:\n  taxRate: 0.05\n  defaultBillingFrequency: monthly\n  quoteTTL: 72h\n")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	holder, err := NewPricingConfigHolder(Config{PricingConfigPath: path})
	require.NoError(t, err)

	cfg := holder.Get()
	assert.InDelta(t, 0.05, cfg.TaxRate, 1e-9)
	assert.Equal(t, "monthly", cfg.DefaultBillingFrequency)
	assert.Equal(t, 72*time.Hour, cfg.QuoteTTL)
	assert.Equal(t, time.Minute, cfg.ReferenceCacheTTL)
}

func TestPricingConfig_RejectsInvalidTaxRate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pricing.yml")
	require.NoError(t, os.WriteFile(path, []byte("pricing:\n  taxRate: 1.5\n"), 0o600))

	_, err := NewPricingConfigHolder(Config{PricingConfigPath: path})
	assert.Error(t, err)
}
