package core

import (
	"context"

	"github.com/gofrs/uuid"
)

type EventType uint8

const (
	EventLoanCreated EventType = iota + 1
	EventLoanDrawn
	EventLoanRepaid
	EventLoanWarning
	EventLoanLiquidating
	EventLoanLiquidated
	EventCollateralAdded
	EventStaked
	EventRedeemed
	EventInterestAccrued
	EventBorrowListed
	EventBorrowUnlisted
	EventBorrowDied
	EventLoanMatched
	EventLoanOverdue
	EventLoanToBeLiquidated
	EventMatchedLoanRepaid
	EventMatchedLoanLiquidated
)

func (t EventType) String() string {
	switch t {
	case EventLoanCreated:
		return "LoanCreated"
	case EventLoanDrawn:
		return "LoanDrawn"
	case EventLoanRepaid:
		return "LoanRepaid"
	case EventLoanWarning:
		return "LoanWarning"
	case EventLoanLiquidating:
		return "LoanLiquidating"
	case EventLoanLiquidated:
		return "LoanLiquidated"
	case EventCollateralAdded:
		return "CollateralAdded"
	case EventStaked:
		return "Staked"
	case EventRedeemed:
		return "Redeemed"
	case EventInterestAccrued:
		return "InterestAccrued"
	case EventBorrowListed:
		return "BorrowListed"
	case EventBorrowUnlisted:
		return "BorrowUnlisted"
	case EventBorrowDied:
		return "BorrowDied"
	case EventLoanMatched:
		return "LoanMatched"
	case EventLoanOverdue:
		return "LoanOverdue"
	case EventLoanToBeLiquidated:
		return "LoanToBeLiquidated"
	case EventMatchedLoanRepaid:
		return "MatchedLoanRepaid"
	case EventMatchedLoanLiquidated:
		return "MatchedLoanLiquidated"
	default:
		return "Unknown"
	}
}

type (
	// Event is emitted on every state change. Only the fields relevant to Type are set.
	Event struct {
		Type         EventType `json:"type"`
		Block        uint64    `json:"block"`
		LoanId       uint64    `json:"loanId,omitempty"`
		BorrowId     uint64    `json:"borrowId,omitempty"`
		Account      uuid.UUID `json:"account"`
		Counterparty uuid.UUID `json:"counterparty,omitempty"`

		Amount              Amount `json:"amount"`
		LoanBalance         Amount `json:"loanBalance"`
		CollateralOriginal  Amount `json:"collateralOriginal"`
		CollateralAvailable Amount `json:"collateralAvailable"`
		AuctionBalance      Amount `json:"auctionBalance"`
		Ltv                 uint64 `json:"ltv,omitempty"`
	}

	EventSink interface {
		Emit(ctx context.Context, event Event)
	}

	MultiSink []EventSink

	nopSink struct{}
)

func (m MultiSink) Emit(ctx context.Context, event Event) {
	for _, s := range m {
		s.Emit(ctx, event)
	}
}

func (nopSink) Emit(context.Context, Event) {}

func NopSink() EventSink {
	return nopSink{}
}
