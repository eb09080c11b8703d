package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Snapshot sources.
const (
	SnapshotSourceSync     = "sync"
	SnapshotSourceManual   = "manual"
	SnapshotSourceBackfill = "backfill"
	SnapshotSourceImport   = "import"
)

// BalanceSnapshot is a point-in-time balance observation for an
// account. SnapshotTime is a naive local-style timestamp. Multiple
// snapshots may exist for the same account and day only when the
// balance differs.
type BalanceSnapshot struct {
	ID           uuid.UUID
	AccountID    uuid.UUID
	Balance      decimal.Decimal
	SnapshotTime time.Time
	Source       string
	CreatedAt    time.Time
}

// NewBalanceSnapshot creates a snapshot with defaults applied.
func NewBalanceSnapshot(accountID uuid.UUID, balance decimal.Decimal, at time.Time, source string) BalanceSnapshot {
	return BalanceSnapshot{
		ID:           uuid.New(),
		AccountID:    accountID,
		Balance:      balance,
		SnapshotTime: at,
		Source:       source,
		CreatedAt:    time.Now().UTC(),
	}
}

// EndOfDay returns the canonical snapshot time used when only a date is
// known: the last representable instant of that local day.
func EndOfDay(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), 23, 59, 59, 999999000, date.Location())
}
