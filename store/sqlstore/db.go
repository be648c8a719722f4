// Package sqlstore persists market state with gorm. Every table carries a market column so several
// markets can share one database.
package sqlstore

import (
	"context"

	core "github.com/DomeLiquid/pawnshop"
	"github.com/glebarez/sqlite"
	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const (
	DriverSqlite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open connects to sqlite or postgres. Gorm's own logging is silenced.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverSqlite:
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, errors.Wrapf(core.ErrInvalidConfig, "database driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, errors.Wrapf(err, "open %s database", driver)
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&sequenceRow{},
		&loanRow{},
		&loanTotalsRow{},
		&borrowRow{},
		&matchedLoanRow{},
		&sharePoolRow{},
		&shareRow{},
		&eventRow{},
	)
}

type sequenceRow struct {
	Market string `gorm:"primaryKey;size:64"`
	Name   string `gorm:"primaryKey;size:32"`
	Value  uint64
}

func (sequenceRow) TableName() string { return "sequences" }

// nextId increments the named counter of market inside its own transaction.
func nextId(ctx context.Context, db *gorm.DB, market, name string) (uint64, error) {
	var next uint64
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := sequenceRow{Market: market, Name: name}
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&row, "market = ? AND name = ?", market, name).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		row.Value++
		next = row.Value
		return tx.Save(&row).Error
	})
	return next, err
}
