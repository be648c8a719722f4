package core

import (
	"context"

	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
)

type (
	ShareStore interface {
		GetSharePool(ctx context.Context) (*SharePool, error)
		// GetShares returns zero for an unknown account.
		GetShares(ctx context.Context, account uuid.UUID) (Amount, error)
		SaveSharePool(ctx context.Context, pool *SharePool) error
		// SaveShares writes the pool and one account balance in one step.
		SaveShares(ctx context.Context, pool *SharePool, account uuid.UUID, shares Amount) error
	}

	// SharePool is the global state of the deposit side of the pooled market.
	SharePool struct {
		// ValueOfTokens is the price of one share in the collection asset, scaled by PRECISION.
		ValueOfTokens Amount `json:"valueOfTokens"`
		TotalShares   Amount `json:"totalShares"`
		// TotalDeposit is owed to stakers: stakes plus accrued interest minus redemptions.
		TotalDeposit Amount `json:"totalDeposit"`
	}

	// ShareAccrualEngine converts deposits to shares and compounds interest by repricing the share.
	ShareAccrualEngine struct {
		store  ShareStore
		ledger Ledger
		log    Log

		asset string
		pool  uuid.UUID
	}
)

func NewSharePool() *SharePool {
	return &SharePool{ValueOfTokens: PrecisionAmount}
}

func (p *SharePool) Clone() *SharePool {
	c := *p
	return &c
}

// SharesFor converts amount into shares at the current price, rounding down.
func (p *SharePool) SharesFor(amount Amount) (Amount, error) {
	return amount.MulDiv(PrecisionAmount, p.ValueOfTokens)
}

// SharesToBurn converts amount into shares at the current price, rounding up so a partial
// redeem never leaves the account holding value it withdrew.
func (p *SharePool) SharesToBurn(amount Amount) (Amount, error) {
	return amount.MulDivCeil(PrecisionAmount, p.ValueOfTokens)
}

// ValueOf converts shares into the collection asset, rounding down.
func (p *SharePool) ValueOf(shares Amount) (Amount, error) {
	return shares.MulDiv(p.ValueOfTokens, PrecisionAmount)
}

func NewShareAccrualEngine(store ShareStore, ledger Ledger, asset string, pool uuid.UUID, log Log) *ShareAccrualEngine {
	if log == nil {
		log = NopLog()
	}
	return &ShareAccrualEngine{store: store, ledger: ledger, asset: asset, pool: pool, log: log}
}

func (e *ShareAccrualEngine) Pool(ctx context.Context) (*SharePool, error) {
	return e.store.GetSharePool(ctx)
}

func (e *ShareAccrualEngine) SharesOf(ctx context.Context, account uuid.UUID) (Amount, error) {
	return e.store.GetShares(ctx, account)
}

// RedeemableOf is shares * value_of_tokens / PRECISION.
func (e *ShareAccrualEngine) RedeemableOf(ctx context.Context, account uuid.UUID) (Amount, error) {
	pool, err := e.store.GetSharePool(ctx)
	if err != nil {
		return ZeroAmount, err
	}
	shares, err := e.store.GetShares(ctx, account)
	if err != nil {
		return ZeroAmount, err
	}
	return pool.ValueOf(shares)
}

// Stake moves amount into the pool and mints shares at the current price.
func (e *ShareAccrualEngine) Stake(ctx context.Context, account uuid.UUID, amount Amount) (Amount, error) {
	if amount.IsZero() {
		return ZeroAmount, errors.Wrap(ErrInvalidAmount, "stake amount is zero")
	}
	pool, err := e.store.GetSharePool(ctx)
	if err != nil {
		return ZeroAmount, err
	}
	shares, err := e.store.GetShares(ctx, account)
	if err != nil {
		return ZeroAmount, err
	}

	minted, err := pool.SharesFor(amount)
	if err != nil {
		return ZeroAmount, err
	}
	if minted.IsZero() {
		return ZeroAmount, errors.Wrapf(ErrInvalidAmount, "stake %s mints no shares", amount)
	}
	next := pool.Clone()
	if next.TotalShares, err = next.TotalShares.Add(minted); err != nil {
		return ZeroAmount, err
	}
	if next.TotalDeposit, err = next.TotalDeposit.Add(amount); err != nil {
		return ZeroAmount, err
	}
	if shares, err = shares.Add(minted); err != nil {
		return ZeroAmount, err
	}
	if err := RequireFreeBalance(ctx, e.ledger, e.asset, account, amount); err != nil {
		return ZeroAmount, err
	}

	saga := NewSaga(e.ledger, e.log)
	if err := saga.Transfer(ctx, TransferLeg{Asset: e.asset, From: account, To: e.pool, Amount: amount}); err != nil {
		return ZeroAmount, err
	}
	if err := e.store.SaveShares(ctx, next, account, shares); err != nil {
		return ZeroAmount, saga.Abort(ctx, err)
	}

	e.log.Debug().Msgf("stake %s from %s minted %s shares at %s", amount, account, minted, pool.ValueOfTokens)
	return minted, nil
}

// Redeem burns the shares worth amount and pays amount out of the pool.
// Redeeming the full balance burns every share the account holds.
func (e *ShareAccrualEngine) Redeem(ctx context.Context, account uuid.UUID, amount Amount) (Amount, error) {
	if amount.IsZero() {
		return ZeroAmount, errors.Wrap(ErrInvalidAmount, "redeem amount is zero")
	}
	pool, err := e.store.GetSharePool(ctx)
	if err != nil {
		return ZeroAmount, err
	}
	shares, err := e.store.GetShares(ctx, account)
	if err != nil {
		return ZeroAmount, err
	}
	redeemable, err := pool.ValueOf(shares)
	if err != nil {
		return ZeroAmount, err
	}
	if amount.GreaterThan(redeemable) {
		return ZeroAmount, errors.Wrapf(ErrInsufficientBalance, "redeem %s, redeemable %s", amount, redeemable)
	}

	burned := shares
	if amount.LessThan(redeemable) {
		if burned, err = pool.SharesToBurn(amount); err != nil {
			return ZeroAmount, err
		}
	}
	if burned.IsZero() {
		return ZeroAmount, errors.Wrapf(ErrInvalidAmount, "redeem %s burns no shares", amount)
	}
	next := pool.Clone()
	if next.TotalShares, err = next.TotalShares.Sub(burned); err != nil {
		return ZeroAmount, err
	}
	next.TotalDeposit = next.TotalDeposit.SaturatingSub(amount)
	if shares, err = shares.Sub(burned); err != nil {
		return ZeroAmount, err
	}

	liquidity, err := e.ledger.FreeBalance(ctx, e.asset, e.pool)
	if err != nil {
		return ZeroAmount, err
	}
	if liquidity.LessThan(amount) {
		return ZeroAmount, errors.Wrapf(ErrInsufficientLiquidity, "redeem %s, pool holds %s", amount, liquidity)
	}

	saga := NewSaga(e.ledger, e.log)
	if err := saga.Transfer(ctx, TransferLeg{Asset: e.asset, From: e.pool, To: account, Amount: amount}); err != nil {
		return ZeroAmount, err
	}
	if err := e.store.SaveShares(ctx, next, account, shares); err != nil {
		return ZeroAmount, saga.Abort(ctx, err)
	}

	e.log.Debug().Msgf("redeem %s to %s burned %s shares at %s", amount, account, burned, pool.ValueOfTokens)
	return burned, nil
}

// Accrue reprices the share: value *= (totalDepositBefore + interest) / totalDepositBefore.
// It is a no-op when either amount is zero.
func (e *ShareAccrualEngine) Accrue(ctx context.Context, interest, totalDepositBefore Amount) (*SharePool, error) {
	pool, err := e.store.GetSharePool(ctx)
	if err != nil {
		return nil, err
	}
	if interest.IsZero() || totalDepositBefore.IsZero() {
		return pool, nil
	}

	next := pool.Clone()
	if err := AccrueSharePool(e.log, next, interest, totalDepositBefore); err != nil {
		return nil, err
	}
	if err := e.store.SaveSharePool(ctx, next); err != nil {
		return nil, err
	}
	return next, nil
}

// AccrueSharePool applies one compounding step in place.
func AccrueSharePool(log Log, pool *SharePool, interest, totalDepositBefore Amount) error {
	grown, err := totalDepositBefore.Add(interest)
	if err != nil {
		return err
	}
	value, err := pool.ValueOfTokens.MulDiv(grown, totalDepositBefore)
	if err != nil {
		return err
	}
	deposit, err := pool.TotalDeposit.Add(interest)
	if err != nil {
		return err
	}

	log.Debug().Msgf("accrue %s on %s: share value %s -> %s", interest, totalDepositBefore, pool.ValueOfTokens, value)
	pool.ValueOfTokens = value
	pool.TotalDeposit = deposit
	return nil
}
