package pawnshop

import (
	"context"

	core "github.com/DomeLiquid/pawnshop"
	"github.com/gofrs/uuid"
)

// Stake deposits amount of the collection asset into the pool and returns the minted shares.
func (m *Market) Stake(ctx context.Context, account uuid.UUID, amount core.Amount) (core.Amount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.params.OperationalState.AssertOperationalMode(true); err != nil {
		return core.ZeroAmount, err
	}
	minted, err := m.shares.Stake(ctx, account, amount)
	if err != nil {
		return core.ZeroAmount, err
	}
	m.emit(ctx, core.Event{Type: core.EventStaked, Account: account, Amount: amount})
	return minted, nil
}

// Redeem withdraws amount of the collection asset and returns the burned shares.
func (m *Market) Redeem(ctx context.Context, account uuid.UUID, amount core.Amount) (core.Amount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.params.OperationalState.AssertOperationalMode(false); err != nil {
		return core.ZeroAmount, err
	}
	burned, err := m.shares.Redeem(ctx, account, amount)
	if err != nil {
		return core.ZeroAmount, err
	}
	m.emit(ctx, core.Event{Type: core.EventRedeemed, Account: account, Amount: amount})
	return burned, nil
}
