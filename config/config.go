package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full engine configuration.
type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Feed    FeedConfig    `yaml:"feed"`
	Venue   VenueConfig   `yaml:"venue"`
	Chain   ChainConfig   `yaml:"chain"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
}

// EngineConfig controls the cadence of the engine loops.
type EngineConfig struct {
	ExpirySweepSeconds int `yaml:"expiry_sweep_seconds"`
	SettlementSeconds  int `yaml:"settlement_seconds"`
	ReconcileSeconds   int `yaml:"reconcile_seconds"`
	ReportSeconds      int `yaml:"report_seconds"`
}

// FeedConfig points at the websocket trade stream.
type FeedConfig struct {
	URL string `yaml:"url"`
}

// VenueConfig holds credentials for the external leverage venue.
type VenueConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"` // prefer VENUE_API_KEY in .env
}

// ChainConfig holds the RPC endpoint and treasury details for deposit
// verification and withdrawal payouts.
type ChainConfig struct {
	RPCURL       string `yaml:"rpc_url"`
	TokenAddress string `yaml:"token_address"`
	Treasury     string `yaml:"treasury"`
	// PrivateKey is only ever read from TREASURY_PRIVATE_KEY.
	PrivateKey string `yaml:"-"`
}

// StorageConfig controls where the ledger is persisted.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // path to the SQLite file, or ":memory:"
}

// LogConfig controls logging format and level.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load reads the YAML config and the .env file if present. Values from the
// environment override the YAML for the keys that map to one.
func Load(path string) (*Config, error) {
	// Load .env if present (missing file is not an error)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// ExpirySweepInterval returns the expiry sweep cadence as a time.Duration.
func (c *Config) ExpirySweepInterval() time.Duration {
	return time.Duration(c.Engine.ExpirySweepSeconds) * time.Second
}

// SettlementInterval returns the settlement sweep cadence.
func (c *Config) SettlementInterval() time.Duration {
	return time.Duration(c.Engine.SettlementSeconds) * time.Second
}

// ReconcileInterval returns the reconciliation cadence.
func (c *Config) ReconcileInterval() time.Duration {
	return time.Duration(c.Engine.ReconcileSeconds) * time.Second
}

// ReportInterval returns the operator report cadence.
func (c *Config) ReportInterval() time.Duration {
	return time.Duration(c.Engine.ReportSeconds) * time.Second
}

// applyEnvOverrides replaces values with environment variables when set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VENUE_API_KEY"); v != "" {
		cfg.Venue.APIKey = v
	}
	if v := os.Getenv("CHAIN_RPC_URL"); v != "" {
		cfg.Chain.RPCURL = v
	}
	cfg.Chain.PrivateKey = os.Getenv("TREASURY_PRIVATE_KEY")
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// setDefaults fills in required values that were left unset.
func setDefaults(cfg *Config) {
	if cfg.Engine.ExpirySweepSeconds <= 0 {
		cfg.Engine.ExpirySweepSeconds = 2
	}
	if cfg.Engine.SettlementSeconds <= 0 {
		cfg.Engine.SettlementSeconds = 10
	}
	if cfg.Engine.ReconcileSeconds <= 0 {
		cfg.Engine.ReconcileSeconds = 30
	}
	if cfg.Engine.ReportSeconds <= 0 {
		cfg.Engine.ReportSeconds = 30
	}
	if cfg.Feed.URL == "" {
		cfg.Feed.URL = "wss://stream.binance.com:9443/ws/ethusdc@trade"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "zonebet.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
