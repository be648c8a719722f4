package core

import (
	"github.com/pkg/errors"
)

// validation
var (
	ErrPaused                  = errors.New("market paused")
	ErrReduceOnly              = errors.New("market is reduce only")
	ErrInvalidAmount           = errors.New("invalid amount")
	ErrInvalidConfig           = errors.New("invalid config")
	ErrInsufficientBalance     = errors.New("insufficient balance")
	ErrInsufficientLiquidity   = errors.New("insufficient pool liquidity")
	ErrBelowMinimumCollateral  = errors.New("collateral below minimum")
	ErrLoanCapReached          = errors.New("loan cap reached")
	ErrOverLTVLimit            = errors.New("ltv limit exceeded")
	ErrTradingPairPriceMissing = errors.New("trading pair price missing")
	ErrTradingPairNotAllowed   = errors.New("trading pair not allowed")
	ErrNotOwner                = errors.New("not the owner")
	ErrLoanNotFound            = errors.New("loan not found")
	ErrLoanInLiquidation       = errors.New("loan in liquidation")
	ErrLoanNotInLiquidation    = errors.New("loan not in liquidation")
	ErrAuctionBelowLoan        = errors.New("auction balance below loan balance")
	ErrExceedsAvailableCredit  = errors.New("amount exceeds available credit")
	ErrBorrowNotFound          = errors.New("borrow not found")
	ErrBorrowAlreadyAlive      = errors.New("account already has an alive borrow")
	ErrBorrowNotAlive          = errors.New("borrow not alive")
	ErrBorrowExpired           = errors.New("borrow expired")
	ErrBorrowNotTaken          = errors.New("borrow not taken")
	ErrTermsTooShort           = errors.New("terms below minimum")
	ErrInterestRateTooLow      = errors.New("interest rate below minimum")
	ErrLockNotFound            = errors.New("lock not found")
	ErrMatchedLoanNotFound     = errors.New("matched loan not found")
	ErrLoanStatusMismatch      = errors.New("loan not in expected status")
	ErrShouldBeLiquidated      = errors.New("loan should be liquidated")
	ErrCannotLiquidate         = errors.New("loan cannot be liquidated")
	ErrUnknownLiquidationType  = errors.New("unknown liquidation type")
)

// fatal
var (
	ErrArithmeticOverflow  = errors.New("arithmetic overflow")
	ErrArithmeticUnderflow = errors.New("arithmetic underflow")
	ErrDivisionByZero      = errors.New("division by zero")
	ErrCompensationFailed  = errors.New("compensation failed, ledger inconsistent")
)

// IsFatal reports whether err aborts processing rather than rejecting a call.
func IsFatal(err error) bool {
	return errors.Is(err, ErrArithmeticOverflow) ||
		errors.Is(err, ErrArithmeticUnderflow) ||
		errors.Is(err, ErrDivisionByZero) ||
		errors.Is(err, ErrCompensationFailed)
}
