package memory

import (
	"context"
	"testing"

	core "github.com/DomeLiquid/pawnshop"
	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const usdt = "usdt"

func TestLedgerTransferMaintainsBalance(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	a, b := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())
	require.NoError(t, l.Mint(usdt, a, core.NewAmount(10_000)))

	require.NoError(t, l.Transfer(ctx, usdt, a, b, core.NewAmount(1_500)))

	fromBalance, _ := l.FreeBalance(ctx, usdt, a)
	toBalance, _ := l.FreeBalance(ctx, usdt, b)
	assert.Equal(t, core.NewAmount(8_500), fromBalance)
	assert.Equal(t, core.NewAmount(1_500), toBalance)

	err := l.Transfer(ctx, usdt, b, a, core.NewAmount(1_501))
	assert.ErrorIs(t, err, core.ErrInsufficientBalance)
}

func TestLedgerTransferToSelfIsNoop(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	a := uuid.Must(uuid.NewV4())

	require.NoError(t, l.Transfer(ctx, usdt, a, a, core.NewAmount(1)))
	balance, _ := l.FreeBalance(ctx, usdt, a)
	assert.True(t, balance.IsZero())
}

func TestLedgerReservations(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	a := uuid.Must(uuid.NewV4())
	require.NoError(t, l.Mint(usdt, a, core.NewAmount(100)))

	lockId, err := l.Reserve(ctx, usdt, a, core.NewAmount(60))
	require.NoError(t, err)
	free, _ := l.FreeBalance(ctx, usdt, a)
	assert.Equal(t, core.NewAmount(40), free)

	_, err = l.Reserve(ctx, usdt, a, core.NewAmount(41))
	assert.ErrorIs(t, err, core.ErrInsufficientBalance)

	require.NoError(t, l.IncreaseReservedBalance(ctx, usdt, lockId, a, core.NewAmount(30)))
	locked, ok, err := l.LockedBalance(ctx, usdt, a, lockId)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, core.NewAmount(90), locked)

	require.NoError(t, l.Unreserve(ctx, usdt, a, core.NewAmount(90), lockId))
	_, ok, _ = l.LockedBalance(ctx, usdt, a, lockId)
	assert.False(t, ok)
	free, _ = l.FreeBalance(ctx, usdt, a)
	assert.Equal(t, core.NewAmount(100), free)

	err = l.Unreserve(ctx, usdt, a, core.NewAmount(1), lockId)
	assert.ErrorIs(t, err, core.ErrLockNotFound)
}

func TestLedgerLockBelongsToAccount(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	a, b := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())
	require.NoError(t, l.Mint(usdt, a, core.NewAmount(10)))
	lockId, err := l.Reserve(ctx, usdt, a, core.NewAmount(10))
	require.NoError(t, err)

	err = l.Unreserve(ctx, usdt, b, core.NewAmount(10), lockId)
	assert.ErrorIs(t, err, core.ErrLockNotFound)
	assert.Equal(t, core.NewAmount(10), l.TotalLocked(usdt, a))
}
