// Package config defines all configuration for the trading core.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via PMBOT_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	Mode      string          `mapstructure:"mode"` // "paper" or "live"
	Cycle     CycleConfig     `mapstructure:"cycle"`
	Wallet    WalletConfig    `mapstructure:"wallet"`
	Exchange  ExchangeConfig  `mapstructure:"exchange"`
	Reasoning ReasoningConfig `mapstructure:"reasoning"`
	Scanner   ScannerConfig   `mapstructure:"scanner"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Risk      RiskConfig      `mapstructure:"risk"`
	Executor  ExecutorConfig  `mapstructure:"executor"`
	Store     StoreConfig     `mapstructure:"store"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
}

// CycleConfig controls the Scheduler's main loop timing.
type CycleConfig struct {
	IntervalSeconds int `mapstructure:"interval_seconds"`
}

// WalletConfig holds the Ethereum wallet used for live-mode order signing.
// PrivateKey signs L1 (EIP-712) auth and derives L2 API keys. FunderAddress
// is the on-chain address that funds orders (may differ from signer if
// using a proxy).
type WalletConfig struct {
	PrivateKey    string `mapstructure:"private_key"`
	SignatureType int    `mapstructure:"signature_type"`
	FunderAddress string `mapstructure:"funder_address"`
	ChainID       int    `mapstructure:"chain_id"`
}

// ExchangeConfig holds exchange API endpoints and optional pre-derived L2
// credentials. If ApiKey/Secret/Passphrase are empty, the live adapter
// derives them via L1 auth on startup.
type ExchangeConfig struct {
	RESTBaseURL string `mapstructure:"rest_base_url"`
	WSMarketURL string `mapstructure:"ws_market_url"`
	WSUserURL   string `mapstructure:"ws_user_url"`
	ApiKey      string `mapstructure:"api_key"`
	Secret      string `mapstructure:"secret"`
	Passphrase  string `mapstructure:"passphrase"`
}

// ReasoningConfig points the Reasoning Port's HTTP adapter at an external
// reasoner and bounds how long the Scheduler will wait for it.
type ReasoningConfig struct {
	URL        string `mapstructure:"url"` // empty = use the static Hold adapter
	DeadlineMs int    `mapstructure:"deadline_ms"`
}

// ScannerConfig controls how the Scanner discovers and filters markets.
type ScannerConfig struct {
	Concurrency int `mapstructure:"concurrency"`
	MarketLimit int `mapstructure:"market_limit"`
}

// CacheConfig tunes the Market Cache (C1) and the per-ticker book cache.
type CacheConfig struct {
	MarketsTTLSeconds     int `mapstructure:"markets_ttl_seconds"`
	BookTTLSeconds        int `mapstructure:"book_ttl_seconds"`
	OpportunityTTLSeconds int `mapstructure:"opportunity_ttl_seconds"`
	MaxSize               int `mapstructure:"max_size"`
}

// RiskConfig seeds the initial RiskParams the adaptive loop then tunes.
type RiskConfig struct {
	MaxPositionPct            float64 `mapstructure:"max_position_pct"`
	MinEdgePct                float64 `mapstructure:"min_edge_pct"`
	KellyFraction             float64 `mapstructure:"kelly_fraction"`
	MaxDailyLossPct           float64 `mapstructure:"max_daily_loss_pct"`
	MaxConcentrationPct       float64 `mapstructure:"max_concentration_pct"`
	MaxCorrelationGroupCount  int     `mapstructure:"max_correlation_group_count"`
	CorrelationEdgeMultiplier float64 `mapstructure:"correlation_edge_multiplier"`
}

// ExecutorConfig tunes order submission and the top-K admission cutoff.
type ExecutorConfig struct {
	OrderDeadlineMs int `mapstructure:"order_deadline_ms"`
	TopKAdmitted    int `mapstructure:"top_k_admitted"`
}

// StoreConfig sets where the audit log is persisted.
type StoreConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DashboardConfig controls the outbound event stream's HTTP/WS server.
type DashboardConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: PMBOT_PRIVATE_KEY, PMBOT_API_KEY,
// PMBOT_API_SECRET, PMBOT_PASSPHRASE.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("PMBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if key := os.Getenv("PMBOT_PRIVATE_KEY"); key != "" {
		cfg.Wallet.PrivateKey = key
	}
	if key := os.Getenv("PMBOT_API_KEY"); key != "" {
		cfg.Exchange.ApiKey = key
	}
	if secret := os.Getenv("PMBOT_API_SECRET"); secret != "" {
		cfg.Exchange.Secret = secret
	}
	if pass := os.Getenv("PMBOT_PASSPHRASE"); pass != "" {
		cfg.Exchange.Passphrase = pass
	}
	if mode := os.Getenv("PMBOT_MODE"); mode != "" {
		cfg.Mode = mode
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// applyDefaults fills in the enumerated defaults of §6 for any zero-valued
// field, so a minimal YAML file is usable. Load still needs the file itself
// to exist and parse.
func applyDefaults(c *Config) {
	if c.Mode == "" {
		c.Mode = "paper"
	}
	if c.Cycle.IntervalSeconds == 0 {
		c.Cycle.IntervalSeconds = 10
	}
	if c.Scanner.Concurrency == 0 {
		c.Scanner.Concurrency = 20
	}
	if c.Scanner.MarketLimit == 0 {
		c.Scanner.MarketLimit = 50
	}
	if c.Cache.MarketsTTLSeconds == 0 {
		c.Cache.MarketsTTLSeconds = 20
	}
	if c.Cache.BookTTLSeconds == 0 {
		c.Cache.BookTTLSeconds = 30
	}
	if c.Cache.OpportunityTTLSeconds == 0 {
		c.Cache.OpportunityTTLSeconds = 30
	}
	if c.Cache.MaxSize == 0 {
		c.Cache.MaxSize = 200
	}
	if c.Risk.MaxPositionPct == 0 {
		c.Risk.MaxPositionPct = 15
	}
	if c.Risk.MinEdgePct == 0 {
		c.Risk.MinEdgePct = 2.0
	}
	if c.Risk.KellyFraction == 0 {
		c.Risk.KellyFraction = 0.25
	}
	if c.Risk.MaxDailyLossPct == 0 {
		c.Risk.MaxDailyLossPct = 10
	}
	if c.Risk.MaxConcentrationPct == 0 {
		c.Risk.MaxConcentrationPct = 20
	}
	if c.Risk.MaxCorrelationGroupCount == 0 {
		c.Risk.MaxCorrelationGroupCount = 2
	}
	if c.Risk.CorrelationEdgeMultiplier == 0 {
		c.Risk.CorrelationEdgeMultiplier = 1.5
	}
	if c.Executor.OrderDeadlineMs == 0 {
		c.Executor.OrderDeadlineMs = 2000
	}
	if c.Executor.TopKAdmitted == 0 {
		c.Executor.TopKAdmitted = 3
	}
	if c.Reasoning.DeadlineMs == 0 {
		c.Reasoning.DeadlineMs = 3000
	}
	if c.Store.DataDir == "" {
		c.Store.DataDir = "data"
	}
}

// ReasoningDeadline returns min(reasoning.deadline_ms, cycle_interval/2) as
// a time.Duration, per §4.9 step 7.
func (c Config) ReasoningDeadline() time.Duration {
	configured := time.Duration(c.Reasoning.DeadlineMs) * time.Millisecond
	half := time.Duration(c.Cycle.IntervalSeconds) * time.Second / 2
	if half < configured {
		return half
	}
	return configured
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	switch c.Mode {
	case "paper", "live":
	default:
		return fmt.Errorf("mode must be one of: paper, live")
	}
	if c.Mode == "live" {
		if c.Wallet.PrivateKey == "" {
			return fmt.Errorf("wallet.private_key is required in live mode (set PMBOT_PRIVATE_KEY)")
		}
		if c.Wallet.ChainID == 0 {
			return fmt.Errorf("wallet.chain_id is required in live mode")
		}
		switch c.Wallet.SignatureType {
		case 0, 1, 2:
		default:
			return fmt.Errorf("wallet.signature_type must be one of: 0 (EOA), 1 (PROXY), 2 (GNOSIS_SAFE)")
		}
		if c.Wallet.SignatureType != 0 && c.Wallet.FunderAddress == "" {
			return fmt.Errorf("wallet.funder_address is required when wallet.signature_type is 1 or 2")
		}
		if c.Exchange.RESTBaseURL == "" {
			return fmt.Errorf("exchange.rest_base_url is required in live mode")
		}
	}
	if c.Cycle.IntervalSeconds < 1 {
		return fmt.Errorf("cycle.interval_seconds must be >= 1")
	}
	if c.Scanner.Concurrency < 1 || c.Scanner.Concurrency > 64 {
		return fmt.Errorf("scanner.concurrency must be in [1,64]")
	}
	if c.Scanner.MarketLimit < 1 || c.Scanner.MarketLimit > 500 {
		return fmt.Errorf("scanner.market_limit must be in [1,500]")
	}
	if c.Risk.MaxPositionPct <= 0 {
		return fmt.Errorf("risk.max_position_pct must be > 0")
	}
	if c.Risk.KellyFraction < 0.05 || c.Risk.KellyFraction > 0.50 {
		return fmt.Errorf("risk.kelly_fraction must be in [0.05, 0.50]")
	}
	if c.Executor.TopKAdmitted < 1 {
		return fmt.Errorf("executor.top_k_admitted must be >= 1")
	}
	return nil
}
