// Package maintenance covers the database's operational lifecycle:
// compaction, consistency checks and the status summary.
package maintenance

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/treeline-app/treeline/internal/domain"
	"github.com/treeline-app/treeline/internal/repository"
)

// Store is the persistence surface the service needs.
type Store interface {
	Path() string
	Size() (int64, error)
	Compact() error
	ExecuteQuery(query string) (*repository.QueryResult, error)
	CountAccounts() (int64, error)
	CountTransactions() (int64, error)
	CountSnapshots() (int64, error)
	TransactionDateRange() (earliest, latest *time.Time, err error)
	ListIntegrations() ([]domain.Integration, error)
}

// Service runs maintenance operations.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a maintenance service.
func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// CompactResult reports file sizes around a compaction.
type CompactResult struct {
	SizeBefore int64 `json:"size_before"`
	SizeAfter  int64 `json:"size_after"`
	Reclaimed  int64 `json:"reclaimed"`
}

// Compact copies the database into a fresh file and swaps it in,
// reclaiming space freed by deletes and rewrites.
func (s *Service) Compact() (*CompactResult, error) {
	before, err := s.store.Size()
	if err != nil {
		return nil, err
	}
	if err := s.store.Compact(); err != nil {
		return nil, err
	}
	after, err := s.store.Size()
	if err != nil {
		return nil, err
	}

	result := &CompactResult{SizeBefore: before, SizeAfter: after, Reclaimed: before - after}
	s.logger.Info("database compacted",
		"size_before", before, "size_after", after, "reclaimed", result.Reclaimed)
	return result, nil
}

// Check is one doctor finding. A zero count means the check passed;
// informational checks (untagged counts) never fail.
type Check struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	Count         int64  `json:"count"`
	Informational bool   `json:"informational"`
}

// OK reports whether the check passed.
func (c Check) OK() bool {
	return c.Informational || c.Count == 0
}

var doctorChecks = []struct {
	name          string
	description   string
	query         string
	informational bool
}{
	{
		name:        "orphaned_transactions",
		description: "transactions whose account no longer exists",
		query: `SELECT COUNT(*) FROM sys_transactions t
			LEFT JOIN sys_accounts a ON a.account_id = t.account_id
			WHERE a.account_id IS NULL`,
	},
	{
		name:        "orphaned_snapshots",
		description: "balance snapshots whose account no longer exists",
		query: `SELECT COUNT(*) FROM sys_balance_snapshots s
			LEFT JOIN sys_accounts a ON a.account_id = s.account_id
			WHERE a.account_id IS NULL`,
	},
	{
		name:        "duplicate_fingerprints",
		description: "live transactions sharing a fingerprint outside one import batch",
		query: `SELECT COUNT(*) FROM (
			SELECT account_id, csv_fingerprint FROM sys_transactions
			WHERE deleted_at IS NULL AND csv_fingerprint IS NOT NULL
			GROUP BY account_id, csv_fingerprint
			HAVING COUNT(DISTINCT COALESCE(csv_batch_id, '')) > 1
				OR (COUNT(*) > 1 AND COUNT(csv_batch_id) = 0)
		)`,
	},
	{
		name:        "future_dated_transactions",
		description: "transactions dated more than a day ahead",
		query: `SELECT COUNT(*) FROM sys_transactions
			WHERE deleted_at IS NULL AND transaction_date > CURRENT_DATE + INTERVAL 1 DAY`,
	},
	{
		name:        "ancient_transactions",
		description: "transactions dated before 1970",
		query: `SELECT COUNT(*) FROM sys_transactions
			WHERE deleted_at IS NULL AND transaction_date < DATE '1970-01-01'`,
	},
	{
		name:          "untagged_transactions",
		description:   "live transactions with no tags",
		informational: true,
		query: `SELECT COUNT(*) FROM sys_transactions
			WHERE deleted_at IS NULL AND (tags IS NULL OR len(tags) = 0)`,
	},
	{
		name:          "uncategorized_expenses",
		description:   "untagged expenses",
		informational: true,
		query: `SELECT COUNT(*) FROM sys_transactions
			WHERE deleted_at IS NULL AND amount < 0 AND (tags IS NULL OR len(tags) = 0)`,
	},
}

// Doctor runs the consistency checks and returns the findings.
func (s *Service) Doctor() ([]Check, error) {
	var checks []Check
	for _, dc := range doctorChecks {
		count, err := s.scalarCount(dc.query)
		if err != nil {
			return nil, fmt.Errorf("doctor check %s: %w", dc.name, err)
		}
		checks = append(checks, Check{
			Name:          dc.name,
			Description:   dc.description,
			Count:         count,
			Informational: dc.informational,
		})
	}
	return checks, nil
}

func (s *Service) scalarCount(query string) (int64, error) {
	result, err := s.store.ExecuteQuery(query)
	if err != nil {
		return 0, err
	}
	if len(result.Rows) == 0 || len(result.Rows[0]) == 0 {
		return 0, fmt.Errorf("no result row")
	}
	switch v := result.Rows[0][0].(type) {
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("unexpected count type %T", v)
	}
}

// Status is the database status summary.
type Status struct {
	Path         string     `json:"path"`
	SizeBytes    int64      `json:"size_bytes"`
	Encrypted    bool       `json:"encrypted"`
	Accounts     int64      `json:"accounts"`
	Transactions int64      `json:"transactions"`
	Snapshots    int64      `json:"snapshots"`
	EarliestDate *time.Time `json:"earliest_date,omitempty"`
	LatestDate   *time.Time `json:"latest_date,omitempty"`

	Integrations []string `json:"integrations"`
}

// Status reports row counts, the transaction date range and file
// facts.
func (s *Service) Status(encrypted bool) (*Status, error) {
	status := &Status{Path: s.store.Path(), Encrypted: encrypted}

	var err error
	if status.SizeBytes, err = s.store.Size(); err != nil {
		return nil, err
	}
	if status.Accounts, err = s.store.CountAccounts(); err != nil {
		return nil, err
	}
	if status.Transactions, err = s.store.CountTransactions(); err != nil {
		return nil, err
	}
	if status.Snapshots, err = s.store.CountSnapshots(); err != nil {
		return nil, err
	}
	if status.EarliestDate, status.LatestDate, err = s.store.TransactionDateRange(); err != nil {
		return nil, err
	}
	integrations, err := s.store.ListIntegrations()
	if err != nil {
		return nil, err
	}
	status.Integrations = make([]string, len(integrations))
	for i, in := range integrations {
		status.Integrations[i] = in.Name
	}
	return status, nil
}
