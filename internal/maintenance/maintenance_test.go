package maintenance

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treeline-app/treeline/internal/domain"
	"github.com/treeline-app/treeline/internal/repository"
)

type fakeStore struct {
	sizes     []int64
	sizeCalls int
	compacted bool

	// query substring -> count
	counts map[string]int64

	accounts, transactions, snapshots int64
	earliest, latest                  *time.Time
	integrations                      []string
}

func (s *fakeStore) Path() string { return "/data/treeline.duckdb" }

func (s *fakeStore) Size() (int64, error) {
	size := s.sizes[s.sizeCalls]
	if s.sizeCalls < len(s.sizes)-1 {
		s.sizeCalls++
	}
	return size, nil
}

func (s *fakeStore) Compact() error {
	s.compacted = true
	return nil
}

func (s *fakeStore) ExecuteQuery(query string) (*repository.QueryResult, error) {
	for substr, count := range s.counts {
		if strings.Contains(query, substr) {
			return &repository.QueryResult{
				Columns:  []string{"count"},
				Rows:     [][]any{{count}},
				RowCount: 1,
			}, nil
		}
	}
	return nil, errors.New("unexpected query")
}

func (s *fakeStore) CountAccounts() (int64, error)     { return s.accounts, nil }
func (s *fakeStore) CountTransactions() (int64, error) { return s.transactions, nil }
func (s *fakeStore) CountSnapshots() (int64, error)    { return s.snapshots, nil }

func (s *fakeStore) ListIntegrations() ([]domain.Integration, error) {
	out := make([]domain.Integration, len(s.integrations))
	for i, name := range s.integrations {
		out[i] = domain.Integration{Name: name}
	}
	return out, nil
}

func (s *fakeStore) TransactionDateRange() (*time.Time, *time.Time, error) {
	return s.earliest, s.latest, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func allCountsZero() map[string]int64 {
	return map[string]int64{
		"LEFT JOIN sys_accounts a ON a.account_id = t.account_id": 0,
		"LEFT JOIN sys_accounts a ON a.account_id = s.account_id": 0,
		"GROUP BY account_id, csv_fingerprint":                    0,
		"CURRENT_DATE + INTERVAL 1 DAY":                           0,
		"DATE '1970-01-01'":                                       0,
		"tags IS NULL OR len(tags) = 0":                           0,
	}
}

func TestCompact(t *testing.T) {
	store := &fakeStore{sizes: []int64{1000, 400}}
	svc := NewService(store, testLogger())

	result, err := svc.Compact()
	require.NoError(t, err)
	assert.True(t, store.compacted)
	assert.Equal(t, int64(1000), result.SizeBefore)
	assert.Equal(t, int64(400), result.SizeAfter)
	assert.Equal(t, int64(600), result.Reclaimed)
}

func TestDoctorAllClean(t *testing.T) {
	store := &fakeStore{sizes: []int64{0}, counts: allCountsZero()}
	svc := NewService(store, testLogger())

	checks, err := svc.Doctor()
	require.NoError(t, err)
	require.Len(t, checks, len(doctorChecks))
	for _, check := range checks {
		assert.True(t, check.OK(), check.Name)
	}
}

func TestDoctorFlagsOrphans(t *testing.T) {
	counts := allCountsZero()
	counts["LEFT JOIN sys_accounts a ON a.account_id = t.account_id"] = 3
	store := &fakeStore{sizes: []int64{0}, counts: counts}
	svc := NewService(store, testLogger())

	checks, err := svc.Doctor()
	require.NoError(t, err)

	byName := map[string]Check{}
	for _, c := range checks {
		byName[c.Name] = c
	}
	orphans := byName["orphaned_transactions"]
	assert.Equal(t, int64(3), orphans.Count)
	assert.False(t, orphans.OK())
}

func TestDoctorInformationalNeverFails(t *testing.T) {
	counts := allCountsZero()
	counts["tags IS NULL OR len(tags) = 0"] = 42
	store := &fakeStore{sizes: []int64{0}, counts: counts}
	svc := NewService(store, testLogger())

	checks, err := svc.Doctor()
	require.NoError(t, err)

	for _, c := range checks {
		if c.Name == "untagged_transactions" || c.Name == "uncategorized_expenses" {
			assert.Equal(t, int64(42), c.Count)
			assert.True(t, c.OK(), c.Name)
		}
	}
}

func TestStatus(t *testing.T) {
	earliest := time.Date(2025, time.January, 5, 0, 0, 0, 0, time.UTC)
	latest := time.Date(2026, time.August, 30, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{
		sizes:        []int64{2048},
		accounts:     6,
		transactions: 1200,
		snapshots:    900,
		earliest:     &earliest,
		latest:       &latest,
		integrations: []string{"simplefin"},
	}
	svc := NewService(store, testLogger())

	status, err := svc.Status(true)
	require.NoError(t, err)
	assert.Equal(t, "/data/treeline.duckdb", status.Path)
	assert.Equal(t, int64(2048), status.SizeBytes)
	assert.True(t, status.Encrypted)
	assert.Equal(t, int64(6), status.Accounts)
	assert.Equal(t, int64(1200), status.Transactions)
	assert.Equal(t, int64(900), status.Snapshots)
	require.NotNil(t, status.EarliestDate)
	assert.Equal(t, earliest, *status.EarliestDate)
	assert.Equal(t, []string{"simplefin"}, status.Integrations)
}
