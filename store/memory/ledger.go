package memory

import (
	"context"
	"sync"

	core "github.com/DomeLiquid/pawnshop"
	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
)

type (
	balanceKey struct {
		asset   string
		account uuid.UUID
	}

	lock struct {
		asset   string
		account uuid.UUID
		amount  core.Amount
	}

	// Ledger is a concurrency-safe in-memory core.Ledger.
	Ledger struct {
		mu       sync.RWMutex
		balances map[balanceKey]core.Amount
		locks    map[core.LockId]*lock
		nextLock core.LockId
	}
)

var _ core.Ledger = (*Ledger)(nil)

func NewLedger() *Ledger {
	return &Ledger{
		balances: make(map[balanceKey]core.Amount),
		locks:    make(map[core.LockId]*lock),
	}
}

// Mint credits amount out of thin air. Used to seed accounts.
func (l *Ledger) Mint(asset string, account uuid.UUID, amount core.Amount) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := balanceKey{asset, account}
	next, err := l.balances[key].Add(amount)
	if err != nil {
		return err
	}
	l.balances[key] = next
	return nil
}

func (l *Ledger) FreeBalance(_ context.Context, asset string, account uuid.UUID) (core.Amount, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[balanceKey{asset, account}], nil
}

// TotalLocked sums every reservation of asset held by account.
func (l *Ledger) TotalLocked(asset string, account uuid.UUID) core.Amount {
	l.mu.RLock()
	defer l.mu.RUnlock()

	total := core.ZeroAmount
	for _, lk := range l.locks {
		if lk.asset == asset && lk.account == account {
			total, _ = total.Add(lk.amount)
		}
	}
	return total
}

func (l *Ledger) Transfer(_ context.Context, asset string, from, to uuid.UUID, amount core.Amount) error {
	if from == to || amount.IsZero() {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	fromKey, toKey := balanceKey{asset, from}, balanceKey{asset, to}
	fromBalance := l.balances[fromKey]
	if fromBalance.LessThan(amount) {
		return errors.Wrapf(core.ErrInsufficientBalance, "%s holds %s %s, needs %s", from, fromBalance, asset, amount)
	}
	toBalance, err := l.balances[toKey].Add(amount)
	if err != nil {
		return err
	}
	l.balances[fromKey], _ = fromBalance.Sub(amount)
	l.balances[toKey] = toBalance
	return nil
}

func (l *Ledger) Reserve(_ context.Context, asset string, account uuid.UUID, amount core.Amount) (core.LockId, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.debit(asset, account, amount); err != nil {
		return 0, err
	}
	l.nextLock++
	l.locks[l.nextLock] = &lock{asset: asset, account: account, amount: amount}
	return l.nextLock, nil
}

func (l *Ledger) Unreserve(_ context.Context, asset string, account uuid.UUID, amount core.Amount, lockId core.LockId) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	lk, err := l.findLock(asset, account, lockId)
	if err != nil {
		return err
	}
	rest, err := lk.amount.Sub(amount)
	if err != nil {
		return errors.Wrapf(core.ErrInsufficientBalance, "lock %d holds %s, unreserve %s", lockId, lk.amount, amount)
	}
	key := balanceKey{asset, account}
	free, err := l.balances[key].Add(amount)
	if err != nil {
		return err
	}
	l.balances[key] = free
	if rest.IsZero() {
		delete(l.locks, lockId)
	} else {
		lk.amount = rest
	}
	return nil
}

func (l *Ledger) LockedBalance(_ context.Context, asset string, account uuid.UUID, lockId core.LockId) (core.Amount, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	lk, err := l.findLock(asset, account, lockId)
	if err != nil {
		return core.ZeroAmount, false, nil
	}
	return lk.amount, true, nil
}

func (l *Ledger) IncreaseReservedBalance(_ context.Context, asset string, lockId core.LockId, account uuid.UUID, amount core.Amount) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	lk, err := l.findLock(asset, account, lockId)
	if err != nil {
		return err
	}
	locked, err := lk.amount.Add(amount)
	if err != nil {
		return err
	}
	if err := l.debit(asset, account, amount); err != nil {
		return err
	}
	lk.amount = locked
	return nil
}

func (l *Ledger) findLock(asset string, account uuid.UUID, lockId core.LockId) (*lock, error) {
	lk, ok := l.locks[lockId]
	if !ok || lk.asset != asset || lk.account != account {
		return nil, errors.Wrapf(core.ErrLockNotFound, "lock %d of %s %s", lockId, account, asset)
	}
	return lk, nil
}

func (l *Ledger) debit(asset string, account uuid.UUID, amount core.Amount) error {
	key := balanceKey{asset, account}
	free := l.balances[key]
	if free.LessThan(amount) {
		return errors.Wrapf(core.ErrInsufficientBalance, "%s holds %s %s, needs %s", account, free, asset, amount)
	}
	l.balances[key], _ = free.Sub(amount)
	return nil
}
