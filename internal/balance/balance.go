// Package balance manages balance snapshots: manual entries and the
// anchor-based backfill that reconstructs daily history from the
// transaction stream.
package balance

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/treeline-app/treeline/internal/domain"
)

// Store is the persistence surface the service needs.
type Store interface {
	GetAccount(id uuid.UUID) (domain.Account, error)
	ListSnapshots(accountID *uuid.UUID) ([]domain.BalanceSnapshot, error)
	DailyNetAmounts(accountID uuid.UUID, through time.Time) (map[string]decimal.Decimal, error)
	ListTransactionsOn(accountID uuid.UUID, date time.Time) ([]domain.Transaction, error)
	DeleteSnapshotsInWindow(accountID uuid.UUID, start, end time.Time) (int64, error)
	InsertSnapshot(snap *domain.BalanceSnapshot) (bool, error)
}

// Service records and reconstructs balance history.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a balance service.
func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// AddManual records a user-entered end-of-day balance. A same-day
// snapshot within a cent of the new value is rejected as a duplicate.
func (s *Service) AddManual(accountID uuid.UUID, balance decimal.Decimal, date time.Time) (*domain.BalanceSnapshot, error) {
	if _, err := s.store.GetAccount(accountID); err != nil {
		return nil, err
	}

	snap := domain.NewBalanceSnapshot(accountID, balance, domain.EndOfDay(date), domain.SnapshotSourceManual)
	inserted, err := s.store.InsertSnapshot(&snap)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return nil, domain.Errorf(domain.KindValidation,
			"a snapshot for %s with this balance already exists", date.Format("2006-01-02"))
	}
	return &snap, nil
}

// BackfillOptions configure one backfill run.
type BackfillOptions struct {
	AccountID uuid.UUID
	// Balance is the known end-of-day balance on Date, the anchor the
	// walk starts from.
	Balance decimal.Decimal
	Date    time.Time
	// WindowStart / WindowEnd bound the emitted snapshots. Zero values
	// mean unbounded (up to the anchor date).
	WindowStart time.Time
	WindowEnd   time.Time
}

// TransactionLine is one transaction shown in a backfill preview day.
type TransactionLine struct {
	Description string `json:"description"`
	Amount      string `json:"amount"`
}

// Day is one computed day of backfill output.
type Day struct {
	Date            time.Time         `json:"date"`
	Balance         decimal.Decimal   `json:"balance"`
	Net             decimal.Decimal   `json:"net"`
	Transactions    []TransactionLine `json:"transactions,omitempty"`
	Replaces        bool              `json:"replaces"`
	ExistingBalance *decimal.Decimal  `json:"existing_balance,omitempty"`
	ExistingSource  string            `json:"existing_source,omitempty"`
}

// ExecuteResult summarizes an executed backfill.
type ExecuteResult struct {
	Deleted  int64 `json:"deleted"`
	Inserted int   `json:"inserted"`
}

// Preview computes the backfill without writing, including per-day
// transaction detail and replacement info.
func (s *Service) Preview(opts BackfillOptions) ([]Day, error) {
	days, err := s.compute(opts)
	if err != nil {
		return nil, err
	}
	for i := range days {
		txs, err := s.store.ListTransactionsOn(opts.AccountID, days[i].Date)
		if err != nil {
			return nil, err
		}
		for _, tx := range txs {
			desc := ""
			if tx.Description != nil {
				desc = *tx.Description
			}
			days[i].Transactions = append(days[i].Transactions, TransactionLine{
				Description: desc,
				Amount:      tx.Amount.StringFixed(2),
			})
		}
	}
	return days, nil
}

// Execute replaces the account's snapshots in the effective window
// with the computed backfill, stamped source=backfill at end of day.
func (s *Service) Execute(opts BackfillOptions) (*ExecuteResult, error) {
	days, err := s.compute(opts)
	if err != nil {
		return nil, err
	}
	if len(days) == 0 {
		return &ExecuteResult{}, nil
	}

	// days is sorted descending; the effective window spans the output.
	windowStart := days[len(days)-1].Date
	windowEnd := domain.EndOfDay(days[0].Date)
	deleted, err := s.store.DeleteSnapshotsInWindow(opts.AccountID, windowStart, windowEnd)
	if err != nil {
		return nil, err
	}

	result := &ExecuteResult{Deleted: deleted}
	for _, day := range days {
		snap := domain.NewBalanceSnapshot(opts.AccountID, day.Balance,
			domain.EndOfDay(day.Date), domain.SnapshotSourceBackfill)
		inserted, err := s.store.InsertSnapshot(&snap)
		if err != nil {
			return nil, err
		}
		if inserted {
			result.Inserted++
		}
	}

	s.logger.Info("backfill executed",
		"account", opts.AccountID,
		"window_start", windowStart.Format("2006-01-02"),
		"window_end", windowEnd.Format("2006-01-02"),
		"deleted", result.Deleted,
		"inserted", result.Inserted)
	return result, nil
}

// compute walks the transaction stream backwards from the anchor.
// The anchor day records the known balance unchanged; each earlier
// candidate day first subtracts its net activity from the running
// balance, then records it, so a day's snapshot is the balance before
// that day's transactions. Days outside the requested window are
// still walked so the running balance stays correct, but not emitted.
func (s *Service) compute(opts BackfillOptions) ([]Day, error) {
	if _, err := s.store.GetAccount(opts.AccountID); err != nil {
		return nil, err
	}
	anchor := dateOnly(opts.Date)

	daily, err := s.store.DailyNetAmounts(opts.AccountID, anchor)
	if err != nil {
		return nil, fmt.Errorf("summing daily activity: %w", err)
	}
	// Snapshots are derived from transactions; with no activity on or
	// before the anchor there is nothing to reconstruct.
	if len(daily) == 0 {
		return nil, nil
	}

	existing, err := s.existingByDay(opts.AccountID, anchor)
	if err != nil {
		return nil, err
	}

	anchorStr := anchor.Format("2006-01-02")
	candidates := map[string]struct{}{anchorStr: {}}
	for dateStr := range daily {
		candidates[dateStr] = struct{}{}
	}
	for dateStr := range existing {
		candidates[dateStr] = struct{}{}
	}

	dates := make([]string, 0, len(candidates))
	for dateStr := range candidates {
		dates = append(dates, dateStr)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))

	var days []Day
	balance := opts.Balance
	for _, dateStr := range dates {
		date, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			return nil, fmt.Errorf("parsing activity date %q: %w", dateStr, err)
		}
		net := daily[dateStr]
		if dateStr != anchorStr {
			balance = balance.Sub(net)
		}

		if s.inWindow(date, opts) {
			day := Day{Date: date, Balance: balance, Net: net}
			if prior, ok := existing[dateStr]; ok {
				day.Replaces = true
				b := prior.Balance
				day.ExistingBalance = &b
				day.ExistingSource = prior.Source
			}
			days = append(days, day)
		}
	}
	return days, nil
}

func (s *Service) inWindow(date time.Time, opts BackfillOptions) bool {
	if !opts.WindowStart.IsZero() && date.Before(dateOnly(opts.WindowStart)) {
		return false
	}
	if !opts.WindowEnd.IsZero() && date.After(dateOnly(opts.WindowEnd)) {
		return false
	}
	return true
}

// existingByDay indexes the account's snapshots up to the anchor by
// day, keeping the latest per day.
func (s *Service) existingByDay(accountID uuid.UUID, anchor time.Time) (map[string]domain.BalanceSnapshot, error) {
	snapshots, err := s.store.ListSnapshots(&accountID)
	if err != nil {
		return nil, err
	}
	byDay := map[string]domain.BalanceSnapshot{}
	for _, snap := range snapshots {
		day := dateOnly(snap.SnapshotTime)
		if day.After(anchor) {
			continue
		}
		dateStr := day.Format("2006-01-02")
		if prior, ok := byDay[dateStr]; !ok || snap.SnapshotTime.After(prior.SnapshotTime) {
			byDay[dateStr] = snap
		}
	}
	return byDay, nil
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
