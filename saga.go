package core

import (
	"context"

	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
)

type (
	// TransferLeg is one asset movement of a multi-step settlement.
	TransferLeg struct {
		Asset  string
		From   uuid.UUID
		To     uuid.UUID
		Amount Amount
	}

	// Saga applies transfer legs one at a time and remembers how to reverse them.
	// The ledger has no multi-transfer atomicity, so a failed settlement is undone by
	// replaying compensations newest first.
	Saga struct {
		ledger  Ledger
		log     Log
		applied []TransferLeg
	}
)

func (l TransferLeg) Reverse() TransferLeg {
	return TransferLeg{Asset: l.Asset, From: l.To, To: l.From, Amount: l.Amount}
}

func NewSaga(ledger Ledger, log Log) *Saga {
	if log == nil {
		log = NopLog()
	}
	return &Saga{ledger: ledger, log: log}
}

// Transfer applies a leg. Zero amounts are skipped.
func (s *Saga) Transfer(ctx context.Context, leg TransferLeg) error {
	if leg.Amount.IsZero() {
		return nil
	}
	if err := s.ledger.Transfer(ctx, leg.Asset, leg.From, leg.To, leg.Amount); err != nil {
		return errors.Wrapf(err, "transfer %s %s from %s to %s", leg.Amount, leg.Asset, leg.From, leg.To)
	}
	s.applied = append(s.applied, leg)
	return nil
}

// Applied returns the legs applied so far.
func (s *Saga) Applied() []TransferLeg {
	return s.applied
}

// Abort reverses every applied leg and returns cause. If a compensation fails the
// ledger is left inconsistent and the returned error wraps ErrCompensationFailed.
func (s *Saga) Abort(ctx context.Context, cause error) error {
	for i := len(s.applied) - 1; i >= 0; i-- {
		reverse := s.applied[i].Reverse()
		if err := s.ledger.Transfer(ctx, reverse.Asset, reverse.From, reverse.To, reverse.Amount); err != nil {
			s.log.Error().Err(err).Msgf("compensate %s %s from %s to %s failed, settlement cause: %v",
				reverse.Amount, reverse.Asset, reverse.From, reverse.To, cause)
			s.applied = s.applied[:i+1]
			return errors.Wrapf(ErrCompensationFailed, "reverse leg %d: %v (cause: %v)", i, err, cause)
		}
	}
	s.applied = nil
	return cause
}

// Run applies legs in order and aborts on the first failure.
func (s *Saga) Run(ctx context.Context, legs ...TransferLeg) error {
	for _, leg := range legs {
		if err := s.Transfer(ctx, leg); err != nil {
			return s.Abort(ctx, err)
		}
	}
	return nil
}
