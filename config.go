package chainflow

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"dario.cat/mergo"
	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/eleven-am/chainflow/internal/domain"
)

// envOverrides lists the environment variables that take precedence over
// the config file. Unset variables leave the file value alone.
type envOverrides struct {
	AptosPrivateKey string `env:"APTOS_EXECUTION_PRIVATE_KEY"`
	AptosNetwork    string `env:"APTOS_NETWORK"`
	AptosNodeURL    string `env:"APTOS_NODE_URL"`
	DecibelAPIURL   string `env:"DECIBEL_API_URL"`
	DecibelAPIKey   string `env:"DECIBEL_API_KEY"`
	PhotonAPIURL    string `env:"PHOTON_API_URL"`
	PhotonAPIKey    string `env:"PHOTON_API_KEY"`
	DatabaseURL     string `env:"DATABASE_URL"`
	StoreDriver     string `env:"CHAINFLOW_STORE"`
	DataDir         string `env:"CHAINFLOW_DATA_DIR"`
	HTTPPort        int    `env:"CHAINFLOW_HTTP_PORT"`
	LogLevel        string `env:"CHAINFLOW_LOG_LEVEL"`
	LogFormat       string `env:"CHAINFLOW_LOG_FORMAT"`
}

func (e envOverrides) config() *domain.Config {
	cfg := &domain.Config{}
	cfg.Aptos.PrivateKey = e.AptosPrivateKey
	cfg.Aptos.Network = domain.AptosNetwork(strings.ToLower(e.AptosNetwork))
	cfg.Aptos.NodeURL = e.AptosNodeURL
	cfg.Decibel.APIURL = e.DecibelAPIURL
	cfg.Decibel.APIKey = e.DecibelAPIKey
	if e.DecibelAPIURL != "" {
		cfg.Decibel.QuoteSource = domain.QuoteSourceAPI
	}
	cfg.Photon.APIURL = e.PhotonAPIURL
	cfg.Photon.APIKey = e.PhotonAPIKey
	cfg.Store.DatabaseURL = e.DatabaseURL
	cfg.Store.Driver = domain.StoreDriver(strings.ToLower(e.StoreDriver))
	cfg.Store.DataDir = e.DataDir
	cfg.HTTP.Port = e.HTTPPort
	cfg.Log.Level = e.LogLevel
	cfg.Log.Format = e.LogFormat
	return cfg
}

// LoadConfig builds a Config from defaults, then the YAML file at path when
// path is non-empty, then the environment. The result is validated.
func LoadConfig(path string) (*Config, error) {
	cfg := domain.DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, domain.NewConfigError("file", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnvFile loads variables from a dotenv file without overriding ones
// already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *domain.Config) error {
	var env envOverrides
	if err := envdecode.Decode(&env); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return domain.NewConfigError("env", err)
	}

	if env.DatabaseURL != "" && env.StoreDriver == "" && cfg.Store.Driver == domain.StoreDriverMemory {
		env.StoreDriver = string(domain.StoreDriverPostgres)
	}

	if err := mergo.Merge(cfg, env.config(), mergo.WithOverride); err != nil {
		return domain.NewConfigError("env", err)
	}
	return nil
}
