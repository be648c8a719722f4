package sqlstore

import (
	"context"

	core "github.com/DomeLiquid/pawnshop"
	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type (
	borrowRow struct {
		Market            string      `gorm:"primaryKey;size:64"`
		Id                uint64      `gorm:"primaryKey;autoIncrement:false"`
		Owner             uuid.UUID   `gorm:"type:varchar(36);index"`
		CollateralAsset   string      `gorm:"size:64"`
		BorrowAsset       string      `gorm:"size:64"`
		CollateralBalance core.Amount `gorm:"type:varchar(80)"`
		BorrowBalance     core.Amount `gorm:"type:varchar(80)"`
		Terms             uint64
		InterestRate      uint64
		DeadAfter         *uint64
		LockId            core.LockId
		LiquidationType   core.LiquidationType
		Status            core.BorrowStatus `gorm:"index"`
		LoanId            uint64
		CreatedBlock      uint64
	}

	matchedLoanRow struct {
		Market            string    `gorm:"primaryKey;size:64"`
		Id                uint64    `gorm:"primaryKey;autoIncrement:false"`
		BorrowId          uint64    `gorm:"index"`
		Borrower          uuid.UUID `gorm:"type:varchar(36);index"`
		Lender            uuid.UUID `gorm:"type:varchar(36);index"`
		Due               uint64
		CollateralAsset   string      `gorm:"size:64"`
		LoanAsset         string      `gorm:"size:64"`
		CollateralBalance core.Amount `gorm:"type:varchar(80)"`
		LoanBalance       core.Amount `gorm:"type:varchar(80)"`
		Terms             uint64
		InterestRate      uint64
		LiquidationType   core.LiquidationType
		Status            core.MatchedLoanStatus `gorm:"index"`
		CreatedBlock      uint64
	}

	BorrowStore struct {
		db     *gorm.DB
		market string
	}
)

func (borrowRow) TableName() string      { return "p2p_borrows" }
func (matchedLoanRow) TableName() string { return "p2p_matched_loans" }

var _ core.BorrowStore = (*BorrowStore)(nil)

func NewBorrowStore(db *gorm.DB, market string) *BorrowStore {
	return &BorrowStore{db: db, market: market}
}

func newBorrowRow(market string, b *core.Borrow) *borrowRow {
	row := &borrowRow{
		Market:            market,
		Id:                b.Id,
		Owner:             b.Owner,
		CollateralAsset:   b.CollateralAsset,
		BorrowAsset:       b.BorrowAsset,
		CollateralBalance: b.CollateralBalance,
		BorrowBalance:     b.BorrowBalance,
		Terms:             b.Terms,
		InterestRate:      b.InterestRate,
		LockId:            b.LockId,
		LiquidationType:   b.LiquidationType,
		Status:            b.Status,
		LoanId:            b.LoanId,
		CreatedBlock:      b.CreatedBlock,
	}
	if b.DeadAfter != nil {
		deadAfter := *b.DeadAfter
		row.DeadAfter = &deadAfter
	}
	return row
}

func (r *borrowRow) borrow() *core.Borrow {
	return &core.Borrow{
		Id:                r.Id,
		Owner:             r.Owner,
		CollateralAsset:   r.CollateralAsset,
		BorrowAsset:       r.BorrowAsset,
		CollateralBalance: r.CollateralBalance,
		BorrowBalance:     r.BorrowBalance,
		Terms:             r.Terms,
		InterestRate:      r.InterestRate,
		DeadAfter:         r.DeadAfter,
		LockId:            r.LockId,
		LiquidationType:   r.LiquidationType,
		Status:            r.Status,
		LoanId:            r.LoanId,
		CreatedBlock:      r.CreatedBlock,
	}
}

func newMatchedLoanRow(market string, l *core.MatchedLoan) *matchedLoanRow {
	return &matchedLoanRow{
		Market:            market,
		Id:                l.Id,
		BorrowId:          l.BorrowId,
		Borrower:          l.Borrower,
		Lender:            l.Lender,
		Due:               l.Due,
		CollateralAsset:   l.CollateralAsset,
		LoanAsset:         l.LoanAsset,
		CollateralBalance: l.CollateralBalance,
		LoanBalance:       l.LoanBalance,
		Terms:             l.Terms,
		InterestRate:      l.InterestRate,
		LiquidationType:   l.LiquidationType,
		Status:            l.Status,
		CreatedBlock:      l.CreatedBlock,
	}
}

func (r *matchedLoanRow) matchedLoan() *core.MatchedLoan {
	return &core.MatchedLoan{
		Id:                r.Id,
		BorrowId:          r.BorrowId,
		Borrower:          r.Borrower,
		Lender:            r.Lender,
		Due:               r.Due,
		CollateralAsset:   r.CollateralAsset,
		LoanAsset:         r.LoanAsset,
		CollateralBalance: r.CollateralBalance,
		LoanBalance:       r.LoanBalance,
		Terms:             r.Terms,
		InterestRate:      r.InterestRate,
		LiquidationType:   r.LiquidationType,
		Status:            r.Status,
		CreatedBlock:      r.CreatedBlock,
	}
}

func (s *BorrowStore) NextBorrowId(ctx context.Context) (uint64, error) {
	return nextId(ctx, s.db, s.market, "borrow")
}

func (s *BorrowStore) NextMatchedLoanId(ctx context.Context) (uint64, error) {
	return nextId(ctx, s.db, s.market, "matched_loan")
}

func (s *BorrowStore) GetBorrow(ctx context.Context, id uint64) (*core.Borrow, error) {
	var row borrowRow
	if err := s.db.WithContext(ctx).First(&row, "market = ? AND id = ?", s.market, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(core.ErrBorrowNotFound, "borrow %d", id)
		}
		return nil, err
	}
	return row.borrow(), nil
}

func (s *BorrowStore) AliveBorrowOf(ctx context.Context, owner uuid.UUID) (*core.Borrow, error) {
	var row borrowRow
	err := s.db.WithContext(ctx).
		First(&row, "market = ? AND owner = ? AND status = ?", s.market, owner, core.BorrowStatusAlive).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(core.ErrBorrowNotFound, "no alive borrow of %s", owner)
		}
		return nil, err
	}
	return row.borrow(), nil
}

func (s *BorrowStore) ListBorrowsByStatus(ctx context.Context, status core.BorrowStatus) ([]*core.Borrow, error) {
	var rows []borrowRow
	err := s.db.WithContext(ctx).Where("market = ? AND status = ?", s.market, status).Order("id").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	borrows := make([]*core.Borrow, len(rows))
	for i := range rows {
		borrows[i] = rows[i].borrow()
	}
	return borrows, nil
}

func (s *BorrowStore) SaveBorrow(ctx context.Context, borrow *core.Borrow) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.saveBorrow(tx, borrow)
	})
}

// saveBorrow keeps at most one alive borrow per owner.
func (s *BorrowStore) saveBorrow(tx *gorm.DB, borrow *core.Borrow) error {
	if borrow.Status == core.BorrowStatusAlive {
		var other borrowRow
		err := tx.Where("market = ? AND owner = ? AND status = ? AND id <> ?",
			s.market, borrow.Owner, core.BorrowStatusAlive, borrow.Id).First(&other).Error
		if err == nil {
			return errors.Wrapf(core.ErrBorrowAlreadyAlive, "%s has borrow %d", borrow.Owner, other.Id)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
	}
	return tx.Save(newBorrowRow(s.market, borrow)).Error
}

func (s *BorrowStore) GetMatchedLoan(ctx context.Context, id uint64) (*core.MatchedLoan, error) {
	var row matchedLoanRow
	if err := s.db.WithContext(ctx).First(&row, "market = ? AND id = ?", s.market, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(core.ErrMatchedLoanNotFound, "loan %d", id)
		}
		return nil, err
	}
	return row.matchedLoan(), nil
}

func (s *BorrowStore) ListMatchedLoansByStatus(ctx context.Context, status core.MatchedLoanStatus) ([]*core.MatchedLoan, error) {
	var rows []matchedLoanRow
	err := s.db.WithContext(ctx).Where("market = ? AND status = ?", s.market, status).Order("id").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	loans := make([]*core.MatchedLoan, len(rows))
	for i := range rows {
		loans[i] = rows[i].matchedLoan()
	}
	return loans, nil
}

func (s *BorrowStore) SaveMatch(ctx context.Context, borrow *core.Borrow, loan *core.MatchedLoan) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.saveBorrow(tx, borrow); err != nil {
			return err
		}
		return tx.Save(newMatchedLoanRow(s.market, loan)).Error
	})
}
