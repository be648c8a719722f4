package sqlstore

import (
	"context"

	core "github.com/DomeLiquid/pawnshop"
	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type (
	sharePoolRow struct {
		Market        string      `gorm:"primaryKey;size:64"`
		ValueOfTokens core.Amount `gorm:"type:varchar(80)"`
		TotalShares   core.Amount `gorm:"type:varchar(80)"`
		TotalDeposit  core.Amount `gorm:"type:varchar(80)"`
	}

	shareRow struct {
		Market  string      `gorm:"primaryKey;size:64"`
		Account uuid.UUID   `gorm:"primaryKey;type:varchar(36)"`
		Shares  core.Amount `gorm:"type:varchar(80)"`
	}

	ShareStore struct {
		db     *gorm.DB
		market string
	}
)

func (sharePoolRow) TableName() string { return "pawnshop_share_pools" }
func (shareRow) TableName() string     { return "pawnshop_shares" }

var _ core.ShareStore = (*ShareStore)(nil)

func NewShareStore(db *gorm.DB, market string) *ShareStore {
	return &ShareStore{db: db, market: market}
}

// GetSharePool returns a fresh pool priced at one for a market that has no stakes yet.
func (s *ShareStore) GetSharePool(ctx context.Context) (*core.SharePool, error) {
	var row sharePoolRow
	err := s.db.WithContext(ctx).First(&row, "market = ?", s.market).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return core.NewSharePool(), nil
	}
	if err != nil {
		return nil, err
	}
	return &core.SharePool{
		ValueOfTokens: row.ValueOfTokens,
		TotalShares:   row.TotalShares,
		TotalDeposit:  row.TotalDeposit,
	}, nil
}

func (s *ShareStore) GetShares(ctx context.Context, account uuid.UUID) (core.Amount, error) {
	var row shareRow
	err := s.db.WithContext(ctx).First(&row, "market = ? AND account = ?", s.market, account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return core.ZeroAmount, nil
	}
	if err != nil {
		return core.ZeroAmount, err
	}
	return row.Shares, nil
}

func (s *ShareStore) SaveSharePool(ctx context.Context, pool *core.SharePool) error {
	return s.savePool(s.db.WithContext(ctx), pool)
}

func (s *ShareStore) savePool(tx *gorm.DB, pool *core.SharePool) error {
	return tx.Save(&sharePoolRow{
		Market:        s.market,
		ValueOfTokens: pool.ValueOfTokens,
		TotalShares:   pool.TotalShares,
		TotalDeposit:  pool.TotalDeposit,
	}).Error
}

// SaveShares drops the account row once its shares reach zero.
func (s *ShareStore) SaveShares(ctx context.Context, pool *core.SharePool, account uuid.UUID, shares core.Amount) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.savePool(tx, pool); err != nil {
			return err
		}
		if shares.IsZero() {
			return tx.Where("market = ? AND account = ?", s.market, account).Delete(&shareRow{}).Error
		}
		return tx.Save(&shareRow{Market: s.market, Account: account, Shares: shares}).Error
	})
}
