package core

import (
	"context"

	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
)

type (
	BorrowStatus      uint8
	MatchedLoanStatus uint8
	LiquidationType   uint8
	Variant           uint8
)

const (
	BorrowStatusAlive BorrowStatus = iota + 1
	BorrowStatusTaken
	BorrowStatusCompleted
	BorrowStatusDead
	BorrowStatusLiquidated
	BorrowStatusCanceled
)

const (
	MatchedLoanStatusWell MatchedLoanStatus = iota + 1
	MatchedLoanStatusToBeLiquidated
	MatchedLoanStatusOverdue
	MatchedLoanStatusLiquidated
	MatchedLoanStatusDead
	MatchedLoanStatusCompleted
)

const (
	SellCollateral LiquidationType = iota + 1
	JustCollateral
)

const (
	LsBiding Variant = iota + 1
	P2P
)

func (s BorrowStatus) String() string {
	switch s {
	case BorrowStatusAlive:
		return "alive"
	case BorrowStatusTaken:
		return "taken"
	case BorrowStatusCompleted:
		return "completed"
	case BorrowStatusDead:
		return "dead"
	case BorrowStatusLiquidated:
		return "liquidated"
	case BorrowStatusCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

func (s MatchedLoanStatus) String() string {
	switch s {
	case MatchedLoanStatusWell:
		return "well"
	case MatchedLoanStatusToBeLiquidated:
		return "to_be_liquidated"
	case MatchedLoanStatusOverdue:
		return "overdue"
	case MatchedLoanStatusLiquidated:
		return "liquidated"
	case MatchedLoanStatusDead:
		return "dead"
	case MatchedLoanStatusCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

func (t LiquidationType) String() string {
	switch t {
	case SellCollateral:
		return "sell_collateral"
	case JustCollateral:
		return "just_collateral"
	default:
		return "unknown"
	}
}

func ParseLiquidationType(s string) (LiquidationType, error) {
	switch s {
	case "sell_collateral":
		return SellCollateral, nil
	case "just_collateral", "":
		return JustCollateral, nil
	}
	return 0, errors.Wrap(ErrUnknownLiquidationType, s)
}

func (v Variant) String() string {
	switch v {
	case LsBiding:
		return "ls_biding"
	case P2P:
		return "p2p"
	default:
		return "unknown"
	}
}

func ParseVariant(s string) (Variant, error) {
	switch s {
	case "ls_biding":
		return LsBiding, nil
	case "p2p":
		return P2P, nil
	}
	return 0, errors.Wrapf(ErrInvalidConfig, "variant %q", s)
}

type (
	BorrowStore interface {
		NextBorrowId(ctx context.Context) (uint64, error)
		NextMatchedLoanId(ctx context.Context) (uint64, error)

		GetBorrow(ctx context.Context, id uint64) (*Borrow, error)
		// AliveBorrowOf returns ErrBorrowNotFound when the account has no alive borrow.
		AliveBorrowOf(ctx context.Context, owner uuid.UUID) (*Borrow, error)
		ListBorrowsByStatus(ctx context.Context, status BorrowStatus) ([]*Borrow, error)
		SaveBorrow(ctx context.Context, borrow *Borrow) error

		GetMatchedLoan(ctx context.Context, id uint64) (*MatchedLoan, error)
		ListMatchedLoansByStatus(ctx context.Context, status MatchedLoanStatus) ([]*MatchedLoan, error)
		// SaveMatch writes a borrow and its matched loan in one step.
		SaveMatch(ctx context.Context, borrow *Borrow, loan *MatchedLoan) error
	}

	BorrowOptions struct {
		Amount       Amount `json:"amount"`
		Terms        uint64 `json:"terms"`
		InterestRate uint64 `json:"interestRate"`
		// Warranty is the number of blocks the borrow stays listed; zero means no expiry.
		Warranty        uint64          `json:"warranty,omitempty"`
		LiquidationType LiquidationType `json:"liquidationType,omitempty"`
	}

	// Borrow is a maker's listed request. Collateral stays reserved on the owner's account until taken.
	Borrow struct {
		Id                uint64          `json:"id"`
		Owner             uuid.UUID       `json:"owner"`
		CollateralAsset   string          `json:"collateralAsset"`
		BorrowAsset       string          `json:"borrowAsset"`
		CollateralBalance Amount          `json:"collateralBalance"`
		BorrowBalance     Amount          `json:"borrowBalance"`
		Terms             uint64          `json:"terms"`
		InterestRate      uint64          `json:"interestRate"`
		DeadAfter         *uint64         `json:"deadAfter,omitempty"`
		LockId            LockId          `json:"lockId"`
		LiquidationType   LiquidationType `json:"liquidationType"`
		Status            BorrowStatus    `json:"status"`
		LoanId            uint64          `json:"loanId,omitempty"`
		CreatedBlock      uint64          `json:"createdBlock"`
	}

	MatchedLoan struct {
		Id                uint64            `json:"id"`
		BorrowId          uint64            `json:"borrowId"`
		Borrower          uuid.UUID         `json:"borrower"`
		Lender            uuid.UUID         `json:"lender"`
		Due               uint64            `json:"due"`
		CollateralAsset   string            `json:"collateralAsset"`
		LoanAsset         string            `json:"loanAsset"`
		CollateralBalance Amount            `json:"collateralBalance"`
		LoanBalance       Amount            `json:"loanBalance"`
		Terms             uint64            `json:"terms"`
		InterestRate      uint64            `json:"interestRate"`
		LiquidationType   LiquidationType   `json:"liquidationType"`
		Status            MatchedLoanStatus `json:"status"`
		CreatedBlock      uint64            `json:"createdBlock"`
	}
)

// IsExpired reports whether an alive borrow outlived its warranty at block.
func (b *Borrow) IsExpired(block uint64) bool {
	return b.DeadAfter != nil && block > *b.DeadAfter
}

func (b *Borrow) Clone() *Borrow {
	c := *b
	if b.DeadAfter != nil {
		d := *b.DeadAfter
		c.DeadAfter = &d
	}
	return &c
}

// CalcTermInterest returns principal * dailyRate * terms / PRECISION.
func CalcTermInterest(principal Amount, dailyRate, terms uint64) (Amount, error) {
	scaled, err := principal.Mul(NewAmount(dailyRate))
	if err != nil {
		return ZeroAmount, err
	}
	if scaled, err = scaled.Mul(NewAmount(terms)); err != nil {
		return ZeroAmount, err
	}
	return scaled.Div(PrecisionAmount)
}

func (l *MatchedLoan) Interest() (Amount, error) {
	return CalcTermInterest(l.LoanBalance, l.InterestRate, l.Terms)
}

// NeedToPay is principal plus the full term interest.
func (l *MatchedLoan) NeedToPay() (Amount, error) {
	interest, err := l.Interest()
	if err != nil {
		return ZeroAmount, err
	}
	return l.LoanBalance.Add(interest)
}

func (l *MatchedLoan) Clone() *MatchedLoan {
	c := *l
	return &c
}
