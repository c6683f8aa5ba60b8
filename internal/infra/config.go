package infra

import (
	"fmt"
	"os"
	"strconv"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config holds all application settings. Sensitive or deployment-specific
// values can be overridden through environment variables after loading.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
		Mode    string `yaml:"mode"` // backtest | walkforward | paper
	} `yaml:"app"`

	Backtest struct {
		DataFile           string          `yaml:"data_file"`
		InitialCapital     decimal.Decimal `yaml:"initial_capital"`
		CommissionPct      decimal.Decimal `yaml:"commission_pct"`
		SlippagePct        decimal.Decimal `yaml:"slippage_pct"`
		SpreadPct          decimal.Decimal `yaml:"spread_pct"`
		ImpactPct          decimal.Decimal `yaml:"impact_pct"`
		DefaultRiskPct     decimal.Decimal `yaml:"default_risk_pct"`
		LimitFillSteepness decimal.Decimal `yaml:"limit_fill_steepness"`
	} `yaml:"backtest"`

	WalkForward struct {
		TrainSize int `yaml:"train_size"`
		TestSize  int `yaml:"test_size"`
		Workers   int `yaml:"workers"`
	} `yaml:"walk_forward"`

	Sizing struct {
		Method           string          `yaml:"method"`
		RiskPerTrade     decimal.Decimal `yaml:"risk_per_trade"`
		KellySafety      decimal.Decimal `yaml:"kelly_safety"`
		KellyMaxRisk     decimal.Decimal `yaml:"kelly_max_risk"`
		TargetVolatility decimal.Decimal `yaml:"target_volatility"`
	} `yaml:"sizing"`

	Risk struct {
		MaxPositionPct      decimal.Decimal `yaml:"max_position_pct"`
		MaxSymbolPct        decimal.Decimal `yaml:"max_symbol_pct"`
		MaxSectorPct        decimal.Decimal `yaml:"max_sector_pct"`
		MaxClusterPct       decimal.Decimal `yaml:"max_cluster_pct"`
		MaxPortfolioHeat    decimal.Decimal `yaml:"max_portfolio_heat"`
		MaxCorrelatedPct    decimal.Decimal `yaml:"max_correlated_pct"`
		CorrelationCutoff   decimal.Decimal `yaml:"correlation_cutoff"`
		MaxDrawdownPct      decimal.Decimal `yaml:"max_drawdown_pct"`
		MaxDailyLossPct     decimal.Decimal `yaml:"max_daily_loss_pct"`
		MaxDailyLossAbsUSD  decimal.Decimal `yaml:"max_daily_loss_abs_usd"`
		ReconcileTolerance  decimal.Decimal `yaml:"reconcile_tolerance"`
	} `yaml:"risk"`

	Paper struct {
		InboxSize    int   `yaml:"inbox_size"`
		ExchangeSeed int64 `yaml:"exchange_seed"`
	} `yaml:"paper"`

	Telemetry struct {
		ListenAddr string `yaml:"listen_addr"`
		Enabled    bool   `yaml:"enabled"`
	} `yaml:"telemetry"`

	Storage struct {
		DBPath string `yaml:"db_path"`
	} `yaml:"storage"`

	Logging struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the config file, applies environment
// overrides, then validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	switch c.App.Mode {
	case "backtest", "walkforward", "paper":
	default:
		return fmt.Errorf("unknown mode: %q", c.App.Mode)
	}

	if !c.Backtest.InitialCapital.IsPositive() {
		return fmt.Errorf("initial capital must be positive")
	}
	if c.Backtest.CommissionPct.IsNegative() || c.Backtest.SlippagePct.IsNegative() ||
		c.Backtest.SpreadPct.IsNegative() || c.Backtest.ImpactPct.IsNegative() {
		return fmt.Errorf("cost rates must be non-negative")
	}

	if c.App.Mode == "walkforward" {
		if c.WalkForward.TrainSize <= 0 || c.WalkForward.TestSize <= 0 {
			return fmt.Errorf("walk-forward window sizes must be positive")
		}
	}

	if c.App.Mode == "paper" && c.Paper.InboxSize <= 0 {
		return fmt.Errorf("paper inbox size must be positive")
	}

	if c.Telemetry.Enabled && c.Telemetry.ListenAddr == "" {
		return fmt.Errorf("telemetry listen address is required when enabled")
	}

	return nil
}

// overrideWithEnv replaces config values with environment variables when set.
func overrideWithEnv(cfg *Config) {
	if mode := os.Getenv("BT_MODE"); mode != "" {
		cfg.App.Mode = mode
	}
	if file := os.Getenv("BT_DATA_FILE"); file != "" {
		cfg.Backtest.DataFile = file
	}
	if db := os.Getenv("BT_DB_PATH"); db != "" {
		cfg.Storage.DBPath = db
	}
	if addr := os.Getenv("BT_TELEMETRY_ADDR"); addr != "" {
		cfg.Telemetry.ListenAddr = addr
	}
	if seed := os.Getenv("BT_EXCHANGE_SEED"); seed != "" {
		if v, err := strconv.ParseInt(seed, 10, 64); err == nil {
			cfg.Paper.ExchangeSeed = v
		}
	}
}
