// Package config loads a pawnshop deployment from TOML or YAML. Ratios are written as decimals
// ("0.5") and amounts in whole asset units; both are converted to 1e8 fixed point.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	core "github.com/DomeLiquid/pawnshop"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	defaultBlockTime    = 6 * time.Second
	defaultOracleMaxAge = 5 * time.Minute
	defaultLogLevel     = "info"
	defaultLogFormat    = "console"
)

type (
	Config struct {
		Log      Log      `toml:"log" yaml:"log"`
		Database Database `toml:"database" yaml:"database"`
		Metrics  Metrics  `toml:"metrics" yaml:"metrics"`
		Chain    Chain    `toml:"chain" yaml:"chain"`
		Oracle   Oracle   `toml:"oracle" yaml:"oracle"`

		// Prices seed the simulated oracle, keyed by asset symbol.
		Prices map[string]decimal.Decimal `toml:"prices" yaml:"prices"`

		Pawnshops []Pawnshop `toml:"pawnshop" yaml:"pawnshops"`
		Markets   []Market   `toml:"market" yaml:"markets"`
	}

	Log struct {
		Level  string `toml:"level" yaml:"level"`
		Format string `toml:"format" yaml:"format"`
		// File enables rotation through lumberjack; empty logs to stderr.
		File       string `toml:"file" yaml:"file"`
		MaxSizeMB  int    `toml:"max_size_mb" yaml:"max_size_mb"`
		MaxBackups int    `toml:"max_backups" yaml:"max_backups"`
		MaxAgeDays int    `toml:"max_age_days" yaml:"max_age_days"`
	}

	// Database selects sqlstore; an empty driver keeps everything in memory.
	Database struct {
		Driver string `toml:"driver" yaml:"driver"`
		DSN    string `toml:"dsn" yaml:"dsn"`
	}

	Metrics struct {
		Listen string `toml:"listen" yaml:"listen"`
	}

	Chain struct {
		BlockTime   time.Duration `toml:"block_time" yaml:"block_time"`
		StartHeight uint64        `toml:"start_height" yaml:"start_height"`
	}

	// Oracle switches from the static Prices to Mixin network quotes when Mixin is set.
	Oracle struct {
		Mixin  bool          `toml:"mixin" yaml:"mixin"`
		MaxAge time.Duration `toml:"max_age" yaml:"max_age"`
	}

	Pawnshop struct {
		Name       string     `toml:"name" yaml:"name"`
		Collection core.Asset `toml:"collection" yaml:"collection"`
		Collateral core.Asset `toml:"collateral" yaml:"collateral"`

		LTVLimit             decimal.Decimal `toml:"ltv_limit" yaml:"ltv_limit"`
		LiquidationThreshold decimal.Decimal `toml:"liquidation_threshold" yaml:"liquidation_threshold"`
		WarningThreshold     decimal.Decimal `toml:"warning_threshold" yaml:"warning_threshold"`
		PenaltyRate          decimal.Decimal `toml:"penalty_rate" yaml:"penalty_rate"`
		MinimumCollateral    decimal.Decimal `toml:"minimum_collateral" yaml:"minimum_collateral"`
		LoanCap              decimal.Decimal `toml:"loan_cap" yaml:"loan_cap"`
		State                string          `toml:"state" yaml:"state"`
	}

	Market struct {
		Name    string             `toml:"name" yaml:"name"`
		Variant string             `toml:"variant" yaml:"variant"`
		Pairs   []core.TradingPair `toml:"pairs" yaml:"pairs"`

		SafeLTV         decimal.Decimal `toml:"safe_ltv" yaml:"safe_ltv"`
		LiquidationLTV  decimal.Decimal `toml:"liquidation_ltv" yaml:"liquidation_ltv"`
		MinInterestRate decimal.Decimal `toml:"min_interest_rate" yaml:"min_interest_rate"`
		LiquidatorBonus decimal.Decimal `toml:"liquidator_bonus" yaml:"liquidator_bonus"`
		MinTerms        uint64          `toml:"min_terms" yaml:"min_terms"`
		BlocksPerDay    uint64          `toml:"blocks_per_day" yaml:"blocks_per_day"`
		LiquidationType string          `toml:"liquidation_type" yaml:"liquidation_type"`
		State           string          `toml:"state" yaml:"state"`
	}
)

// Load picks the decoder from the file extension.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, errors.Wrapf(err, "decode %s", path)
		}
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "decode %s", path)
		}
	default:
		return nil, errors.Wrapf(core.ErrInvalidConfig, "unsupported config file %s", path)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) normalize() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = defaultLogFormat
	}
	if cfg.Chain.BlockTime <= 0 {
		cfg.Chain.BlockTime = defaultBlockTime
	}
	if cfg.Chain.StartHeight == 0 {
		cfg.Chain.StartHeight = 1
	}
	if cfg.Oracle.MaxAge <= 0 {
		cfg.Oracle.MaxAge = defaultOracleMaxAge
	}
}

// Assets lists every asset a configured market trades, once each.
func (cfg *Config) Assets() []core.Asset {
	var assets []core.Asset
	seen := make(map[string]bool)
	add := func(a core.Asset) {
		if !seen[a.AssetId] {
			seen[a.AssetId] = true
			assets = append(assets, a)
		}
	}
	for _, p := range cfg.Pawnshops {
		add(p.Collection)
		add(p.Collateral)
	}
	for _, m := range cfg.Markets {
		for _, pair := range m.Pairs {
			add(pair.Collateral)
			add(pair.Borrow)
		}
	}
	return assets
}

// Validate builds every market's params once so a bad file fails at load time.
func (cfg *Config) Validate() error {
	if len(cfg.Pawnshops) == 0 && len(cfg.Markets) == 0 {
		return errors.Wrap(core.ErrInvalidConfig, "no market configured")
	}
	names := make(map[string]bool)
	for _, p := range cfg.Pawnshops {
		if _, err := p.Params(); err != nil {
			return errors.Wrapf(err, "pawnshop %q", p.Name)
		}
		if names[p.Name] {
			return errors.Wrapf(core.ErrInvalidConfig, "duplicate market name %q", p.Name)
		}
		names[p.Name] = true
	}
	for _, m := range cfg.Markets {
		if _, err := m.Params(); err != nil {
			return errors.Wrapf(err, "market %q", m.Name)
		}
		if names[m.Name] {
			return errors.Wrapf(core.ErrInvalidConfig, "duplicate market name %q", m.Name)
		}
		names[m.Name] = true
	}
	for symbol, price := range cfg.Prices {
		if _, err := PriceOf(price); err != nil {
			return errors.Wrapf(err, "price of %s", symbol)
		}
	}
	return nil
}

// PriceOf converts a quoted price into the oracle's fixed point.
func PriceOf(price decimal.Decimal) (uint64, error) {
	if !price.IsPositive() {
		return 0, errors.Wrapf(core.ErrInvalidConfig, "price %s", price)
	}
	return core.RatioFromDecimal(price)
}

// Params starts from the defaults and overrides every field the file sets.
func (p Pawnshop) Params() (core.Params, error) {
	if p.Name == "" {
		return core.Params{}, errors.Wrap(core.ErrInvalidConfig, "name is required")
	}
	params := core.DefaultParams(p.Name, p.Collection, p.Collateral)

	for _, r := range []struct {
		value decimal.Decimal
		dst   *uint64
	}{
		{p.LTVLimit, &params.LTVLimit},
		{p.LiquidationThreshold, &params.LiquidationThreshold},
		{p.WarningThreshold, &params.WarningThreshold},
		{p.PenaltyRate, &params.PenaltyRate},
	} {
		if err := setRatio(r.value, r.dst); err != nil {
			return core.Params{}, err
		}
	}

	var err error
	if params.MinimumCollateral, err = core.AmountFromDecimal(p.MinimumCollateral); err != nil {
		return core.Params{}, err
	}
	if params.LoanCap, err = core.AmountFromDecimal(p.LoanCap); err != nil {
		return core.Params{}, err
	}
	if params.OperationalState, err = parseState(p.State); err != nil {
		return core.Params{}, err
	}
	return params, params.Validate()
}

func (m Market) Params() (core.MarketParams, error) {
	if m.Name == "" {
		return core.MarketParams{}, errors.Wrap(core.ErrInvalidConfig, "name is required")
	}
	variant, err := core.ParseVariant(m.Variant)
	if err != nil {
		return core.MarketParams{}, err
	}
	params := core.DefaultMarketParams(m.Name, variant, m.Pairs...)

	for _, r := range []struct {
		value decimal.Decimal
		dst   *uint64
	}{
		{m.SafeLTV, &params.SafeLTV},
		{m.LiquidationLTV, &params.LiquidationLTV},
		{m.MinInterestRate, &params.MinInterestRate},
		{m.LiquidatorBonus, &params.LiquidatorBonus},
	} {
		if err := setRatio(r.value, r.dst); err != nil {
			return core.MarketParams{}, err
		}
	}
	if m.MinTerms > 0 {
		params.MinTerms = m.MinTerms
	}
	if m.BlocksPerDay > 0 {
		params.BlocksPerDay = m.BlocksPerDay
	}
	if params.DefaultLiquidationType, err = core.ParseLiquidationType(m.LiquidationType); err != nil {
		return core.MarketParams{}, err
	}
	if params.OperationalState, err = parseState(m.State); err != nil {
		return core.MarketParams{}, err
	}
	return params, params.Validate()
}

// setRatio leaves dst at its default when value is zero.
func setRatio(value decimal.Decimal, dst *uint64) error {
	if value.IsZero() {
		return nil
	}
	ratio, err := core.RatioFromDecimal(value)
	if err != nil {
		return err
	}
	*dst = ratio
	return nil
}

func parseState(s string) (core.OperationalState, error) {
	if s == "" {
		return core.OperationalStateOperational, nil
	}
	return core.ParseOperationalState(s)
}
