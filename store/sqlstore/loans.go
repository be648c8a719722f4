package sqlstore

import (
	"context"

	core "github.com/DomeLiquid/pawnshop"
	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type (
	loanRow struct {
		Market              string          `gorm:"primaryKey;size:64"`
		Id                  uint64          `gorm:"primaryKey;autoIncrement:false"`
		Owner               uuid.UUID       `gorm:"type:varchar(36);index"`
		CollateralOriginal  core.Amount     `gorm:"type:varchar(80)"`
		CollateralAvailable core.Amount     `gorm:"type:varchar(80)"`
		LoanBalance         core.Amount     `gorm:"type:varchar(80)"`
		Status              core.LoanStatus `gorm:"index"`
		CreatedAt           int64           `gorm:"autoCreateTime:false"`
		UpdatedAt           int64           `gorm:"autoUpdateTime:false"`
	}

	loanTotalsRow struct {
		Market          string      `gorm:"primaryKey;size:64"`
		TotalLoan       core.Amount `gorm:"type:varchar(80)"`
		TotalCollateral core.Amount `gorm:"type:varchar(80)"`
		LastBonusTime   int64
	}

	LoanStore struct {
		db     *gorm.DB
		market string
	}
)

func (loanRow) TableName() string       { return "pawnshop_loans" }
func (loanTotalsRow) TableName() string { return "pawnshop_loan_totals" }

var _ core.LoanStore = (*LoanStore)(nil)

func NewLoanStore(db *gorm.DB, market string) *LoanStore {
	return &LoanStore{db: db, market: market}
}

func newLoanRow(market string, loan *core.Loan) *loanRow {
	return &loanRow{
		Market:              market,
		Id:                  loan.Id,
		Owner:               loan.Owner,
		CollateralOriginal:  loan.CollateralBalanceOriginal,
		CollateralAvailable: loan.CollateralBalanceAvailable,
		LoanBalance:         loan.LoanBalanceTotal,
		Status:              loan.Status,
		CreatedAt:           loan.CreatedAt,
		UpdatedAt:           loan.UpdatedAt,
	}
}

func (r *loanRow) loan() *core.Loan {
	return &core.Loan{
		Id:                         r.Id,
		Owner:                      r.Owner,
		CollateralBalanceOriginal:  r.CollateralOriginal,
		CollateralBalanceAvailable: r.CollateralAvailable,
		LoanBalanceTotal:           r.LoanBalance,
		Status:                     r.Status,
		CreatedAt:                  r.CreatedAt,
		UpdatedAt:                  r.UpdatedAt,
	}
}

func (s *LoanStore) NextLoanId(ctx context.Context) (uint64, error) {
	return nextId(ctx, s.db, s.market, "loan")
}

func (s *LoanStore) GetLoan(ctx context.Context, id uint64) (*core.Loan, error) {
	var row loanRow
	if err := s.db.WithContext(ctx).First(&row, "market = ? AND id = ?", s.market, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(core.ErrLoanNotFound, "loan %d", id)
		}
		return nil, err
	}
	return row.loan(), nil
}

func (s *LoanStore) ListLoans(ctx context.Context) ([]*core.Loan, error) {
	return s.listLoans(s.db.WithContext(ctx).Where("market = ?", s.market))
}

func (s *LoanStore) ListLoansByOwner(ctx context.Context, owner uuid.UUID) ([]*core.Loan, error) {
	return s.listLoans(s.db.WithContext(ctx).Where("market = ? AND owner = ?", s.market, owner))
}

func (s *LoanStore) listLoans(query *gorm.DB) ([]*core.Loan, error) {
	var rows []loanRow
	if err := query.Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	loans := make([]*core.Loan, len(rows))
	for i := range rows {
		loans[i] = rows[i].loan()
	}
	return loans, nil
}

// GetLoanTotals returns zero totals for a market that never saved any.
func (s *LoanStore) GetLoanTotals(ctx context.Context) (*core.LoanTotals, error) {
	var row loanTotalsRow
	err := s.db.WithContext(ctx).First(&row, "market = ?", s.market).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &core.LoanTotals{}, nil
	}
	if err != nil {
		return nil, err
	}
	return &core.LoanTotals{
		TotalLoan:       row.TotalLoan,
		TotalCollateral: row.TotalCollateral,
		LastBonusTime:   row.LastBonusTime,
	}, nil
}

func (s *LoanStore) SaveLoanTotals(ctx context.Context, totals *core.LoanTotals) error {
	return s.saveTotals(s.db.WithContext(ctx), totals)
}

func (s *LoanStore) saveTotals(tx *gorm.DB, totals *core.LoanTotals) error {
	return tx.Save(&loanTotalsRow{
		Market:          s.market,
		TotalLoan:       totals.TotalLoan,
		TotalCollateral: totals.TotalCollateral,
		LastBonusTime:   totals.LastBonusTime,
	}).Error
}

func (s *LoanStore) CreateLoan(ctx context.Context, loan *core.Loan, totals *core.LoanTotals) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(newLoanRow(s.market, loan)).Error; err != nil {
			return errors.Wrapf(err, "create loan %d", loan.Id)
		}
		return s.saveTotals(tx, totals)
	})
}

func (s *LoanStore) UpdateLoan(ctx context.Context, loan *core.Loan, totals *core.LoanTotals) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.updateLoan(tx, loan); err != nil {
			return err
		}
		if totals == nil {
			return nil
		}
		return s.saveTotals(tx, totals)
	})
}

func (s *LoanStore) UpdateLoans(ctx context.Context, loans []*core.Loan, totals *core.LoanTotals) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, loan := range loans {
			if err := s.updateLoan(tx, loan); err != nil {
				return err
			}
		}
		return s.saveTotals(tx, totals)
	})
}

func (s *LoanStore) updateLoan(tx *gorm.DB, loan *core.Loan) error {
	var n int64
	if err := tx.Model(&loanRow{}).Where("market = ? AND id = ?", s.market, loan.Id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return errors.Wrapf(core.ErrLoanNotFound, "loan %d", loan.Id)
	}
	return tx.Save(newLoanRow(s.market, loan)).Error
}

func (s *LoanStore) RemoveLoan(ctx context.Context, id uint64, totals *core.LoanTotals) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("market = ? AND id = ?", s.market, id).Delete(&loanRow{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return errors.Wrapf(core.ErrLoanNotFound, "loan %d", id)
		}
		return s.saveTotals(tx, totals)
	})
}
