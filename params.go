package core

import (
	"github.com/DomeLiquid/pawnshop/utils"
	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
)

type OperationalState uint8

const (
	OperationalStateNone OperationalState = iota
	OperationalStateOperational
	OperationalStatePaused
	// reduce only: calls that grow deposits or debt are refused, exits are allowed
	OperationalStateReduceOnly
)

func (s OperationalState) String() string {
	switch s {
	case OperationalStateOperational:
		return "operational"
	case OperationalStatePaused:
		return "paused"
	case OperationalStateReduceOnly:
		return "reduce_only"
	default:
		return "none"
	}
}

func ParseOperationalState(s string) (OperationalState, error) {
	switch s {
	case "", "none":
		return OperationalStateNone, nil
	case "operational":
		return OperationalStateOperational, nil
	case "paused":
		return OperationalStatePaused, nil
	case "reduce_only":
		return OperationalStateReduceOnly, nil
	}
	return OperationalStateNone, errors.Wrapf(ErrInvalidConfig, "operational state %q", s)
}

// AssertOperationalMode guards every user call. Admin calls never go through it.
func (s OperationalState) AssertOperationalMode(isExposureIncreasing bool) error {
	switch s {
	case OperationalStatePaused:
		return ErrPaused
	case OperationalStateReduceOnly:
		if isExposureIncreasing {
			return ErrReduceOnly
		}
	}
	return nil
}

// SystemAccount derives a stable account id for a named market role.
func SystemAccount(market, role string) uuid.UUID {
	return utils.DeriveAccount(market, role)
}

type (
	// Params configures the pooled deposit-loan market.
	Params struct {
		CollectionAsset Asset `json:"collectionAsset"`
		CollateralAsset Asset `json:"collateralAsset"`

		PoolAccount        uuid.UUID `json:"poolAccount"`
		PawnshopAccount    uuid.UUID `json:"pawnshopAccount"`
		ProfitPoolAccount  uuid.UUID `json:"profitPoolAccount"`
		LiquidationAccount uuid.UUID `json:"liquidationAccount"`

		LTVLimit             uint64 `json:"ltvLimit"`
		LiquidationThreshold uint64 `json:"liquidationThreshold"`
		WarningThreshold     uint64 `json:"warningThreshold"`
		PenaltyRate          uint64 `json:"penaltyRate"`

		MinimumCollateral Amount `json:"minimumCollateral"`
		// LoanCap bounds the total outstanding loan; zero means uncapped.
		LoanCap Amount `json:"loanCap"`

		OperationalState OperationalState `json:"operationalState"`
	}

	// MarketParams configures a maker-taker market.
	MarketParams struct {
		Variant      Variant       `json:"variant"`
		TradingPairs []TradingPair `json:"tradingPairs"`

		PoolAccount     uuid.UUID `json:"poolAccount"`
		PlatformAccount uuid.UUID `json:"platformAccount"`

		SafeLTV         uint64 `json:"safeLtv"`
		LiquidationLTV  uint64 `json:"liquidationLtv"`
		MinTerms        uint64 `json:"minTerms"`
		MinInterestRate uint64 `json:"minInterestRate"`
		BlocksPerDay    uint64 `json:"blocksPerDay"`
		LiquidatorBonus uint64 `json:"liquidatorBonus"`

		DefaultLiquidationType LiquidationType `json:"defaultLiquidationType"`

		OperationalState OperationalState `json:"operationalState"`
	}
)

// DefaultParams returns a pooled market with system accounts derived from name.
func DefaultParams(name string, collection, collateral Asset) Params {
	return Params{
		CollectionAsset:      collection,
		CollateralAsset:      collateral,
		PoolAccount:          SystemAccount(name, "pool"),
		PawnshopAccount:      SystemAccount(name, "pawnshop"),
		ProfitPoolAccount:    SystemAccount(name, "profit"),
		LiquidationAccount:   SystemAccount(name, "liquidation"),
		LTVLimit:             50_000_000,
		LiquidationThreshold: 90_000_000,
		WarningThreshold:     75_000_000,
		PenaltyRate:          DEFAULT_LIQUIDATION_PENALTY,
		OperationalState:     OperationalStateOperational,
	}
}

func (p *Params) Validate() error {
	if !p.CollectionAsset.Valid() || !p.CollateralAsset.Valid() {
		return errors.Wrap(ErrInvalidConfig, "collection and collateral assets are required")
	}
	if p.CollectionAsset.AssetId == p.CollateralAsset.AssetId {
		return errors.Wrap(ErrInvalidConfig, "collection and collateral assets must differ")
	}
	if p.PoolAccount == uuid.Nil || p.PawnshopAccount == uuid.Nil || p.ProfitPoolAccount == uuid.Nil || p.LiquidationAccount == uuid.Nil {
		return errors.Wrap(ErrInvalidConfig, "system accounts are required")
	}
	if p.PoolAccount == p.PawnshopAccount || p.PawnshopAccount == p.LiquidationAccount {
		return errors.Wrap(ErrInvalidConfig, "pawnshop account must differ from pool and liquidation accounts")
	}
	if p.LTVLimit == 0 || p.LTVLimit >= PRECISION {
		return errors.Wrapf(ErrInvalidConfig, "ltv limit %d", p.LTVLimit)
	}
	if p.WarningThreshold < p.LTVLimit || p.LiquidationThreshold <= p.WarningThreshold {
		return errors.Wrapf(ErrInvalidConfig, "thresholds must satisfy ltv limit %d <= warning %d < liquidation %d",
			p.LTVLimit, p.WarningThreshold, p.LiquidationThreshold)
	}
	if p.PenaltyRate > PRECISION {
		return errors.Wrapf(ErrInvalidConfig, "penalty rate %d", p.PenaltyRate)
	}
	return nil
}

// DefaultMarketParams returns a maker-taker market with system accounts derived from name.
func DefaultMarketParams(name string, variant Variant, pairs ...TradingPair) MarketParams {
	return MarketParams{
		Variant:                variant,
		TradingPairs:           pairs,
		PoolAccount:            SystemAccount(name, "pool"),
		PlatformAccount:        SystemAccount(name, "platform"),
		SafeLTV:                50_000_000,
		LiquidationLTV:         80_000_000,
		MinTerms:               1,
		MinInterestRate:        1,
		BlocksPerDay:           BLOCKS_PER_DAY,
		LiquidatorBonus:        DEFAULT_LIQUIDATOR_BONUS,
		DefaultLiquidationType: JustCollateral,
		OperationalState:       OperationalStateOperational,
	}
}

func (p *MarketParams) Validate() error {
	if p.Variant != LsBiding && p.Variant != P2P {
		return errors.Wrapf(ErrInvalidConfig, "variant %d", p.Variant)
	}
	if len(p.TradingPairs) == 0 {
		return errors.Wrap(ErrInvalidConfig, "at least one trading pair is required")
	}
	for _, pair := range p.TradingPairs {
		if !pair.Collateral.Valid() || !pair.Borrow.Valid() {
			return errors.Wrapf(ErrInvalidConfig, "trading pair %s", pair)
		}
	}
	if p.PoolAccount == uuid.Nil || p.PlatformAccount == uuid.Nil {
		return errors.Wrap(ErrInvalidConfig, "system accounts are required")
	}
	if p.SafeLTV == 0 || p.SafeLTV >= p.LiquidationLTV {
		return errors.Wrapf(ErrInvalidConfig, "safe ltv %d must be below liquidation ltv %d", p.SafeLTV, p.LiquidationLTV)
	}
	if p.BlocksPerDay == 0 {
		return errors.Wrap(ErrInvalidConfig, "blocks per day is zero")
	}
	if p.LiquidatorBonus > PRECISION {
		return errors.Wrapf(ErrInvalidConfig, "liquidator bonus %d", p.LiquidatorBonus)
	}
	if p.DefaultLiquidationType != SellCollateral && p.DefaultLiquidationType != JustCollateral {
		return errors.Wrap(ErrUnknownLiquidationType, p.DefaultLiquidationType.String())
	}
	return nil
}

// FindTradingPair looks up an allowed pair by asset ids.
func (p *MarketParams) FindTradingPair(collateralAssetId, borrowAssetId string) (TradingPair, error) {
	for _, pair := range p.TradingPairs {
		if pair.Collateral.AssetId == collateralAssetId && pair.Borrow.AssetId == borrowAssetId {
			return pair, nil
		}
	}
	return TradingPair{}, errors.Wrapf(ErrTradingPairNotAllowed, "%s/%s", collateralAssetId, borrowAssetId)
}
