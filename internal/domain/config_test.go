package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Validates(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestApplyDefaults_FillsZeroFields(t *testing.T) {
	cfg := &Config{}
	cfg.Decibel.Retry.MaxAttempts = 7

	require.NoError(t, ApplyDefaults(cfg))

	assert.Equal(t, 7, cfg.Decibel.Retry.MaxAttempts)
	assert.Equal(t, 2.0, cfg.Decibel.Retry.Multiplier)
	assert.Equal(t, StoreDriverMemory, cfg.Store.Driver)
	assert.Equal(t, AptosTestnet, cfg.Aptos.Network)
	assert.Equal(t, DefaultPhotonAPIURL, cfg.Photon.APIURL)
	assert.Equal(t, 8080, cfg.HTTP.Port)
}

func TestApplyDefaults_Nil(t *testing.T) {
	assert.Error(t, ApplyDefaults(nil))
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"unknown driver", func(c *Config) { c.Store.Driver = "mongo" }, "store.driver"},
		{"postgres without url", func(c *Config) { c.Store.Driver = StoreDriverPostgres }, "store.database_url"},
		{"badger without dir", func(c *Config) { c.Store.Driver = StoreDriverBadger; c.Store.DataDir = "" }, "store.data_dir"},
		{"bad network", func(c *Config) { c.Aptos.Network = "moon" }, "aptos.network"},
		{"zero attempts", func(c *Config) { c.Decibel.Retry.MaxAttempts = 0 }, "decibel.retry.max_attempts"},
		{"shrinking backoff", func(c *Config) { c.Decibel.Retry.Multiplier = 0.5 }, "decibel.retry.multiplier"},
		{"max below initial", func(c *Config) { c.Decibel.Retry.MaxBackoff = time.Millisecond }, "decibel.retry.max_backoff"},
		{"api quotes without url", func(c *Config) { c.Decibel.QuoteSource = QuoteSourceAPI; c.Decibel.APIURL = "ftp://x" }, "decibel.api_url"},
		{"photon bad url", func(c *Config) { c.Photon.APIKey = "k"; c.Photon.APIURL = "nope" }, "photon.api_url"},
		{"bad port", func(c *Config) { c.HTTP.Port = 70000 }, "http.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)

			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestConfig_Builders(t *testing.T) {
	cfg := NewConfigFromSimple(StoreDriverBadger, "/tmp/x", nil).
		WithAptos(AptosDevnet, "0xkey").
		WithPhoton("", "photon-key").
		WithDecibelAPI("https://decibel.example", "dk").
		WithHTTPPort(9999).
		WithSwapRetry(6, time.Millisecond, time.Second)

	assert.Equal(t, StoreDriverBadger, cfg.Store.Driver)
	assert.Equal(t, AptosDevnet, cfg.Aptos.Network)
	assert.Equal(t, "0xkey", cfg.Aptos.PrivateKey)
	assert.True(t, cfg.Photon.Configured())
	assert.Equal(t, DefaultPhotonAPIURL, cfg.Photon.APIURL)
	assert.Equal(t, QuoteSourceAPI, cfg.Decibel.QuoteSource)
	assert.Equal(t, 9999, cfg.HTTP.Port)
	assert.Equal(t, 6, cfg.Decibel.Retry.MaxAttempts)
	assert.NoError(t, cfg.Validate())
}
