package core

import (
	"context"

	"github.com/gofrs/uuid"
)

type (
	// LockId identifies a reservation placed on an account's balance.
	LockId uint64

	// Ledger owns every asset balance. Transfers between the same account are no-ops.
	Ledger interface {
		FreeBalance(ctx context.Context, asset string, account uuid.UUID) (Amount, error)
		Transfer(ctx context.Context, asset string, from, to uuid.UUID, amount Amount) error
		Reserve(ctx context.Context, asset string, account uuid.UUID, amount Amount) (LockId, error)
		Unreserve(ctx context.Context, asset string, account uuid.UUID, amount Amount, lockId LockId) error
		LockedBalance(ctx context.Context, asset string, account uuid.UUID, lockId LockId) (Amount, bool, error)
		IncreaseReservedBalance(ctx context.Context, asset string, lockId LockId, account uuid.UUID, amount Amount) error
	}
)

// RequireFreeBalance fails with ErrInsufficientBalance when account holds less than amount of asset.
func RequireFreeBalance(ctx context.Context, ledger Ledger, asset string, account uuid.UUID, amount Amount) error {
	balance, err := ledger.FreeBalance(ctx, asset, account)
	if err != nil {
		return err
	}
	if balance.LessThan(amount) {
		return ErrInsufficientBalance
	}
	return nil
}
