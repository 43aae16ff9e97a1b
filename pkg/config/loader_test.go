package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwellcare/billing/pkg/config"
)

type testBillingConfig struct {
	GraceDays int    `env:"TEST_GRACE_DAYS" envDefault:"7"`
	Currency  string `env:"TEST_CURRENCY" envDefault:"USD"`
}

type testRequiredConfig struct {
	Secret string `env:"TEST_SECRET_THAT_IS_NEVER_SET,required"`
}

func TestLoadDefaults(t *testing.T) {
	var cfg testBillingConfig
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, 7, cfg.GraceDays)
	assert.Equal(t, "USD", cfg.Currency)
}

func TestLoadCachesPerType(t *testing.T) {
	var first testBillingConfig
	require.NoError(t, config.Load(&first))

	// Mutating the environment after the first parse must not change what
	// later loads observe.
	t.Setenv("TEST_GRACE_DAYS", "14")

	var second testBillingConfig
	require.NoError(t, config.Load(&second))
	assert.Equal(t, first, second)
}

func TestLoadMissingRequired(t *testing.T) {
	var cfg testRequiredConfig
	err := config.Load(&cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrParsingConfig)
}

func TestLoadNilPointer(t *testing.T) {
	var cfg *testBillingConfig
	err := config.Load(cfg)
	assert.ErrorIs(t, err, config.ErrNilPointer)
}
