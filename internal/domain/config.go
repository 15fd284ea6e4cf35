package domain

import (
	"log/slog"
	"time"
)

type Config struct {
	Logger *slog.Logger `json:"-" yaml:"-"`

	Log       LogConfig       `json:"log" yaml:"log"`
	Engine    EngineConfig    `json:"engine" yaml:"engine"`
	Store     StoreConfig     `json:"store" yaml:"store"`
	Aptos     AptosConfig     `json:"aptos" yaml:"aptos"`
	Decibel   DecibelConfig   `json:"decibel" yaml:"decibel"`
	Photon    PhotonConfig    `json:"photon" yaml:"photon"`
	HTTP      HTTPConfig      `json:"http" yaml:"http"`
	Scheduler SchedulerConfig `json:"scheduler" yaml:"scheduler"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

type EngineConfig struct {
	// RunTimeout bounds a whole run when positive. Zero leaves runs unbounded.
	RunTimeout    time.Duration `json:"run_timeout" yaml:"run_timeout"`
	RecordTimeout time.Duration `json:"record_timeout" yaml:"record_timeout"`
}

type StoreDriver string

const (
	StoreDriverMemory   StoreDriver = "memory"
	StoreDriverBadger   StoreDriver = "badger"
	StoreDriverPostgres StoreDriver = "postgres"
)

type StoreConfig struct {
	Driver          StoreDriver   `json:"driver" yaml:"driver"`
	DataDir         string        `json:"data_dir" yaml:"data_dir"`
	DatabaseURL     string        `json:"-" yaml:"database_url"`
	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	ApplySchema     bool          `json:"apply_schema" yaml:"apply_schema"`
}

type AptosNetwork string

const (
	AptosMainnet  AptosNetwork = "mainnet"
	AptosTestnet  AptosNetwork = "testnet"
	AptosDevnet   AptosNetwork = "devnet"
	AptosLocalnet AptosNetwork = "localnet"
)

type AptosConfig struct {
	Network        AptosNetwork  `json:"network" yaml:"network"`
	NodeURL        string        `json:"node_url,omitempty" yaml:"node_url,omitempty"`
	PrivateKey     string        `json:"-" yaml:"private_key"`
	ConfirmTimeout time.Duration `json:"confirm_timeout" yaml:"confirm_timeout"`
	FundOnStartup  bool          `json:"fund_on_startup" yaml:"fund_on_startup"`
}

type QuoteSource string

const (
	QuoteSourceSimulated QuoteSource = "simulated"
	QuoteSourceAPI       QuoteSource = "api"
)

type RetryConfig struct {
	MaxAttempts    int           `json:"max_attempts" yaml:"max_attempts"`
	InitialBackoff time.Duration `json:"initial_backoff" yaml:"initial_backoff"`
	MaxBackoff     time.Duration `json:"max_backoff" yaml:"max_backoff"`
	Multiplier     float64       `json:"multiplier" yaml:"multiplier"`
	Jitter         bool          `json:"jitter" yaml:"jitter"`
}

type DecibelConfig struct {
	APIURL             string             `json:"api_url" yaml:"api_url"`
	APIKey             string             `json:"-" yaml:"api_key"`
	QuoteSource        QuoteSource        `json:"quote_source" yaml:"quote_source"`
	QuoteTTL           time.Duration      `json:"quote_ttl" yaml:"quote_ttl"`
	RequestTimeout     time.Duration      `json:"request_timeout" yaml:"request_timeout"`
	RequestsPerSecond  float64            `json:"requests_per_second" yaml:"requests_per_second"`
	Burst              int                `json:"burst" yaml:"burst"`
	Prices             map[string]float64 `json:"prices" yaml:"prices"`
	DefaultPrice       float64            `json:"default_price" yaml:"default_price"`
	EstimatedGas       float64            `json:"estimated_gas" yaml:"estimated_gas"`
	DestinationAddress string             `json:"destination_address" yaml:"destination_address"`
	SettlementOctas    uint64             `json:"settlement_octas" yaml:"settlement_octas"`
	Retry              RetryConfig        `json:"retry" yaml:"retry"`
}

type CircuitBreakerConfig struct {
	FailureThreshold int           `json:"failure_threshold" yaml:"failure_threshold"`
	SuccessThreshold int           `json:"success_threshold" yaml:"success_threshold"`
	Timeout          time.Duration `json:"timeout" yaml:"timeout"`
	MaxRequests      int           `json:"max_requests" yaml:"max_requests"`
	Interval         time.Duration `json:"interval" yaml:"interval"`
}

type PhotonConfig struct {
	APIURL         string               `json:"api_url" yaml:"api_url"`
	APIKey         string               `json:"-" yaml:"api_key"`
	RequestTimeout time.Duration        `json:"request_timeout" yaml:"request_timeout"`
	DefaultEvent   string               `json:"default_event" yaml:"default_event"`
	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker" yaml:"circuit_breaker"`
}

// Configured reports whether the reward adapter has a credential to use.
func (p PhotonConfig) Configured() bool {
	return p.APIKey != ""
}

type HTTPConfig struct {
	Enabled       bool          `json:"enabled" yaml:"enabled"`
	Port          int           `json:"port" yaml:"port"`
	ReadTimeout   time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout  time.Duration `json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout   time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
	EnableMetrics bool          `json:"enable_metrics" yaml:"enable_metrics"`

	// Webhook triggers are throttled per workflow id.
	WebhookRequestsPerSecond float64       `json:"webhook_requests_per_second" yaml:"webhook_requests_per_second"`
	WebhookBurst             int           `json:"webhook_burst" yaml:"webhook_burst"`
	ShutdownTimeout          time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

type SchedulerConfig struct {
	Enabled      bool          `json:"enabled" yaml:"enabled"`
	SyncInterval time.Duration `json:"sync_interval" yaml:"sync_interval"`
}
