package domain

import (
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"dario.cat/mergo"
)

const (
	DefaultDecibelAPIURL = "https://api.decibel.fi/v1"
	DefaultPhotonAPIURL  = "https://stage-api.getstan.app/identity-service/api/v1"
	PlaceholderSwapDest  = "0x1"
)

func DefaultConfig() *Config {
	return &Config{
		Log:       DefaultLogConfig(),
		Engine:    DefaultEngineConfig(),
		Store:     DefaultStoreConfig(),
		Aptos:     DefaultAptosConfig(),
		Decibel:   DefaultDecibelConfig(),
		Photon:    DefaultPhotonConfig(),
		HTTP:      DefaultHTTPConfig(),
		Scheduler: DefaultSchedulerConfig(),
	}
}

func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:  "info",
		Format: "text",
	}
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		RunTimeout:    0,
		RecordTimeout: 10 * time.Second,
	}
}

func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Driver:          StoreDriverMemory,
		DataDir:         "./data",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ApplySchema:     true,
	}
}

func DefaultAptosConfig() AptosConfig {
	return AptosConfig{
		Network:        AptosTestnet,
		ConfirmTimeout: 60 * time.Second,
	}
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    4,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     8 * time.Second,
		Multiplier:     2.0,
		Jitter:         true,
	}
}

func DefaultDecibelConfig() DecibelConfig {
	return DecibelConfig{
		APIURL:             DefaultDecibelAPIURL,
		QuoteSource:        QuoteSourceSimulated,
		QuoteTTL:           30 * time.Second,
		RequestTimeout:     10 * time.Second,
		RequestsPerSecond:  5,
		Burst:              1,
		DefaultPrice:       10.5,
		EstimatedGas:       0.001,
		DestinationAddress: PlaceholderSwapDest,
		SettlementOctas:    100,
		Retry:              DefaultRetryConfig(),
	}
}

func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          15 * time.Second,
		MaxRequests:      1,
		Interval:         30 * time.Second,
	}
}

func DefaultPhotonConfig() PhotonConfig {
	return PhotonConfig{
		APIURL:         DefaultPhotonAPIURL,
		RequestTimeout: 10 * time.Second,
		DefaultEvent:   "workflow_completed",
		CircuitBreaker: DefaultCircuitBreakerConfig(),
	}
}

func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Enabled:       true,
		Port:          8080,
		ReadTimeout:   10 * time.Second,
		WriteTimeout:  5 * time.Minute,
		IdleTimeout:   60 * time.Second,
		EnableMetrics: true,

		WebhookRequestsPerSecond: 5,
		WebhookBurst:             10,
		ShutdownTimeout:          30 * time.Second,
	}
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Enabled:      true,
		SyncInterval: time.Minute,
	}
}

// ApplyDefaults fills every zero-valued field of c from DefaultConfig.
func ApplyDefaults(c *Config) error {
	if c == nil {
		return NewConfigError("config", ErrInvalidInput)
	}
	if err := mergo.Merge(c, DefaultConfig()); err != nil {
		return NewConfigError("config", err)
	}
	return nil
}

func NewConfigFromSimple(driver StoreDriver, dataDir string, logger *slog.Logger) *Config {
	config := DefaultConfig()
	config.Store.Driver = driver
	config.Store.DataDir = dataDir
	config.Logger = logger
	return config
}

func (c *Config) WithPostgres(databaseURL string) *Config {
	c.Store.Driver = StoreDriverPostgres
	c.Store.DatabaseURL = databaseURL
	return c
}

func (c *Config) WithAptos(network AptosNetwork, privateKey string) *Config {
	c.Aptos.Network = network
	c.Aptos.PrivateKey = privateKey
	return c
}

func (c *Config) WithDecibelAPI(apiURL, apiKey string) *Config {
	c.Decibel.APIURL = apiURL
	c.Decibel.APIKey = apiKey
	c.Decibel.QuoteSource = QuoteSourceAPI
	return c
}

func (c *Config) WithPhoton(apiURL, apiKey string) *Config {
	if apiURL != "" {
		c.Photon.APIURL = apiURL
	}
	c.Photon.APIKey = apiKey
	return c
}

func (c *Config) WithHTTPPort(port int) *Config {
	c.HTTP.Port = port
	return c
}

func (c *Config) WithSwapRetry(maxAttempts int, initial, max time.Duration) *Config {
	c.Decibel.Retry.MaxAttempts = maxAttempts
	c.Decibel.Retry.InitialBackoff = initial
	c.Decibel.Retry.MaxBackoff = max
	return c
}

func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreDriverMemory:
	case StoreDriverBadger:
		if c.Store.DataDir == "" {
			return NewConfigError("store.data_dir", ErrInvalidInput)
		}
	case StoreDriverPostgres:
		if c.Store.DatabaseURL == "" {
			return NewConfigError("store.database_url", ErrInvalidInput)
		}
	default:
		return NewConfigError("store.driver", fmt.Errorf("unsupported driver %q", c.Store.Driver))
	}

	switch c.Aptos.Network {
	case AptosMainnet, AptosTestnet, AptosDevnet, AptosLocalnet:
	default:
		return NewConfigError("aptos.network", fmt.Errorf("unsupported network %q", c.Aptos.Network))
	}

	if c.Decibel.Retry.MaxAttempts <= 0 {
		return NewConfigError("decibel.retry.max_attempts", ErrInvalidInput)
	}
	if c.Decibel.Retry.Multiplier < 1 {
		return NewConfigError("decibel.retry.multiplier", ErrInvalidInput)
	}
	if c.Decibel.Retry.MaxBackoff < c.Decibel.Retry.InitialBackoff {
		return NewConfigError("decibel.retry.max_backoff", fmt.Errorf("must be >= initial_backoff"))
	}
	switch c.Decibel.QuoteSource {
	case QuoteSourceSimulated:
	case QuoteSourceAPI:
		if err := validateURL(c.Decibel.APIURL); err != nil {
			return NewConfigError("decibel.api_url", err)
		}
	default:
		return NewConfigError("decibel.quote_source", fmt.Errorf("unsupported quote source %q", c.Decibel.QuoteSource))
	}
	if c.Decibel.DestinationAddress == "" {
		return NewConfigError("decibel.destination_address", ErrInvalidInput)
	}

	if c.Photon.Configured() {
		if err := validateURL(c.Photon.APIURL); err != nil {
			return NewConfigError("photon.api_url", err)
		}
	}

	if c.HTTP.Enabled && (c.HTTP.Port <= 0 || c.HTTP.Port > 65535) {
		return NewConfigError("http.port", ErrInvalidInput)
	}

	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return ErrInvalidInput
	}
	return nil
}
