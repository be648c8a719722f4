package sqlstore

import (
	"context"
	"time"

	core "github.com/DomeLiquid/pawnshop"
	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

type (
	eventRow struct {
		Id           uint64         `gorm:"primaryKey;autoIncrement"`
		Market       string         `gorm:"size:64;index:idx_events_market_block"`
		Type         core.EventType `gorm:"index"`
		Block        uint64         `gorm:"index:idx_events_market_block"`
		LoanId       uint64
		BorrowId     uint64
		Account      uuid.UUID `gorm:"type:varchar(36);index"`
		Counterparty uuid.UUID `gorm:"type:varchar(36)"`

		Amount              core.Amount `gorm:"type:varchar(80)"`
		LoanBalance         core.Amount `gorm:"type:varchar(80)"`
		CollateralOriginal  core.Amount `gorm:"type:varchar(80)"`
		CollateralAvailable core.Amount `gorm:"type:varchar(80)"`
		AuctionBalance      core.Amount `gorm:"type:varchar(80)"`
		Ltv                 uint64
		CreatedAt           time.Time
	}

	// EventLog is an append-only core.EventSink. A failed write is logged and dropped, the
	// state change it describes has already been committed.
	EventLog struct {
		db     *gorm.DB
		market string
		log    core.Log
	}
)

func (eventRow) TableName() string { return "events" }

var _ core.EventSink = (*EventLog)(nil)

func NewEventLog(db *gorm.DB, market string, log core.Log) *EventLog {
	if log == nil {
		log = core.NopLog()
	}
	return &EventLog{db: db, market: market, log: log}
}

func (l *EventLog) Emit(ctx context.Context, event core.Event) {
	row := &eventRow{
		Market:              l.market,
		Type:                event.Type,
		Block:               event.Block,
		LoanId:              event.LoanId,
		BorrowId:            event.BorrowId,
		Account:             event.Account,
		Counterparty:        event.Counterparty,
		Amount:              event.Amount,
		LoanBalance:         event.LoanBalance,
		CollateralOriginal:  event.CollateralOriginal,
		CollateralAvailable: event.CollateralAvailable,
		AuctionBalance:      event.AuctionBalance,
		Ltv:                 event.Ltv,
	}
	if err := l.db.WithContext(ctx).Create(row).Error; err != nil {
		l.log.Error().Err(err).Msgf("%s event %s at block %d not recorded", l.market, event.Type, event.Block)
	}
}

// List returns up to limit events recorded after the row id afterId, oldest first, and the id to
// continue from.
func (l *EventLog) List(ctx context.Context, afterId uint64, limit int) ([]core.Event, uint64, error) {
	var rows []eventRow
	err := l.db.WithContext(ctx).
		Where("market = ? AND id > ?", l.market, afterId).
		Order("id").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, afterId, err
	}
	events := make([]core.Event, len(rows))
	next := afterId
	for i, row := range rows {
		events[i] = core.Event{
			Type:                row.Type,
			Block:               row.Block,
			LoanId:              row.LoanId,
			BorrowId:            row.BorrowId,
			Account:             row.Account,
			Counterparty:        row.Counterparty,
			Amount:              row.Amount,
			LoanBalance:         row.LoanBalance,
			CollateralOriginal:  row.CollateralOriginal,
			CollateralAvailable: row.CollateralAvailable,
			AuctionBalance:      row.AuctionBalance,
			Ltv:                 row.Ltv,
		}
		next = row.Id
	}
	return events, next, nil
}
