package core

import (
	"context"

	"github.com/gofrs/uuid"
)

type LoanStatus uint8

const (
	LoanStatusWell LoanStatus = iota + 1
	LoanStatusWarning
	LoanStatusLiquidating
)

func (s LoanStatus) String() string {
	switch s {
	case LoanStatusWell:
		return "well"
	case LoanStatusWarning:
		return "warning"
	case LoanStatusLiquidating:
		return "liquidating"
	default:
		return "unknown"
	}
}

type (
	// LoanStore persists pooled loans. Every mutation writes the loan, its owner index,
	// the liquidating set (loans with LoanStatusLiquidating) and the totals together.
	LoanStore interface {
		NextLoanId(ctx context.Context) (uint64, error)
		GetLoan(ctx context.Context, id uint64) (*Loan, error)
		// ListLoans returns every active loan ordered by id.
		ListLoans(ctx context.Context) ([]*Loan, error)
		ListLoansByOwner(ctx context.Context, owner uuid.UUID) ([]*Loan, error)
		GetLoanTotals(ctx context.Context) (*LoanTotals, error)
		SaveLoanTotals(ctx context.Context, totals *LoanTotals) error

		CreateLoan(ctx context.Context, loan *Loan, totals *LoanTotals) error
		// UpdateLoan leaves the totals untouched when totals is nil.
		UpdateLoan(ctx context.Context, loan *Loan, totals *LoanTotals) error
		RemoveLoan(ctx context.Context, id uint64, totals *LoanTotals) error
		// UpdateLoans writes every loan and the totals, or nothing.
		UpdateLoans(ctx context.Context, loans []*Loan, totals *LoanTotals) error
	}

	// Loan is a pooled market position. CollateralBalanceOriginal is everything posted and held by
	// the pawnshop account; CollateralBalanceAvailable is the part not yet backing drawn credit.
	Loan struct {
		Id                         uint64     `json:"id"`
		Owner                      uuid.UUID  `json:"owner"`
		CollateralBalanceOriginal  Amount     `json:"collateralBalanceOriginal"`
		CollateralBalanceAvailable Amount     `json:"collateralBalanceAvailable"`
		LoanBalanceTotal           Amount     `json:"loanBalanceTotal"`
		Status                     LoanStatus `json:"status"`

		CreatedAt int64 `json:"createdAt"`
		UpdatedAt int64 `json:"updatedAt"`
	}

	LoanTotals struct {
		TotalLoan       Amount `json:"totalLoan"`
		TotalCollateral Amount `json:"totalCollateral"`
		// unix seconds of the last interest accrual
		LastBonusTime int64 `json:"lastBonusTime"`
	}
)

func (l *Loan) IsLiquidating() bool {
	return l.Status == LoanStatusLiquidating
}

func (l *Loan) Clone() *Loan {
	c := *l
	return &c
}

func (t *LoanTotals) Clone() *LoanTotals {
	c := *t
	return &c
}
