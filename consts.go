package core

import (
	"github.com/shopspring/decimal"
)

const (
	// PRECISION is the fixed-point scale of prices, ratios, rates and the share price.
	PRECISION = 100_000_000
	// AMOUNT_DECIMALS is the number of decimals every ledger asset carries.
	AMOUNT_DECIMALS = 8
)

const (
	SECONDS_PER_YEAR = 31_536_000

	HOURS_PER_YEAR = 365.25 * 24

	// BLOCKS_PER_DAY assumes six second blocks.
	BLOCKS_PER_DAY = 14_400
)

// sweep cadence of the maker-taker markets, in blocks
const (
	EXPIRY_SWEEP_INTERVAL = 2
	HEALTH_SWEEP_INTERVAL = 5
)

// liquidation splits, scaled by PRECISION
const (
	LENDER_SHARE_SUFFICIENT     = 95_000_000
	LENDER_SHARE_INSUFFICIENT   = 90_000_000
	LIQUIDATOR_SHARE            = 5_000_000
	DEFAULT_LIQUIDATOR_BONUS    = 5_000_000
	DEFAULT_LIQUIDATION_PENALTY = 10_000_000
)

var (
	ONE = decimal.NewFromInt(1)

	// DECIMAL_PRECISION converts 1e8 fixed-point values to decimal.
	DECIMAL_PRECISION = decimal.NewFromInt(PRECISION)
)
