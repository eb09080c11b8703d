package balance

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treeline-app/treeline/internal/domain"
)

type fakeStore struct {
	accountID    uuid.UUID
	snapshots    []domain.BalanceSnapshot
	transactions []domain.Transaction
	deleted      int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{accountID: uuid.New()}
}

func (s *fakeStore) GetAccount(id uuid.UUID) (domain.Account, error) {
	if id != s.accountID {
		return domain.Account{}, domain.ErrNotFound
	}
	return domain.NewAccount(id, "Checking"), nil
}

func (s *fakeStore) ListSnapshots(accountID *uuid.UUID) ([]domain.BalanceSnapshot, error) {
	return s.snapshots, nil
}

func (s *fakeStore) DailyNetAmounts(accountID uuid.UUID, through time.Time) (map[string]decimal.Decimal, error) {
	daily := map[string]decimal.Decimal{}
	for _, tx := range s.transactions {
		if tx.TransactionDate.After(through) {
			continue
		}
		dateStr := tx.TransactionDate.Format("2006-01-02")
		daily[dateStr] = daily[dateStr].Add(tx.Amount)
	}
	return daily, nil
}

func (s *fakeStore) ListTransactionsOn(accountID uuid.UUID, date time.Time) ([]domain.Transaction, error) {
	var out []domain.Transaction
	for _, tx := range s.transactions {
		if tx.TransactionDate.Equal(date) {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (s *fakeStore) DeleteSnapshotsInWindow(accountID uuid.UUID, start, end time.Time) (int64, error) {
	var kept []domain.BalanceSnapshot
	for _, snap := range s.snapshots {
		if snap.SnapshotTime.Before(start) || snap.SnapshotTime.After(end) {
			kept = append(kept, snap)
		} else {
			s.deleted++
		}
	}
	s.snapshots = kept
	return s.deleted, nil
}

func (s *fakeStore) InsertSnapshot(snap *domain.BalanceSnapshot) (bool, error) {
	for _, prior := range s.snapshots {
		sameDay := prior.SnapshotTime.Format("2006-01-02") == snap.SnapshotTime.Format("2006-01-02")
		if prior.AccountID == snap.AccountID && sameDay && prior.Balance.Round(2).Equal(snap.Balance.Round(2)) {
			return false, nil
		}
	}
	s.snapshots = append(s.snapshots, *snap)
	return true, nil
}

func (s *fakeStore) addTransaction(date string, amount string) {
	d, _ := time.Parse("2006-01-02", date)
	tx := domain.NewTransaction(uuid.New(), s.accountID, decimal.RequireFromString(amount), d)
	desc := "TXN " + date
	tx.Description = &desc
	s.transactions = append(s.transactions, tx)
}

func (s *fakeStore) addSnapshot(date string, balance string, source string) {
	d, _ := time.Parse("2006-01-02", date)
	s.snapshots = append(s.snapshots, domain.NewBalanceSnapshot(
		s.accountID, decimal.RequireFromString(balance), domain.EndOfDay(d), source))
}

func newTestService(store Store) *Service {
	return NewService(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func date(s string) time.Time {
	d, _ := time.Parse("2006-01-02", s)
	return d
}

func TestAddManual(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	snap, err := svc.AddManual(store.accountID, decimal.RequireFromString("500.00"), date("2026-08-20"))
	require.NoError(t, err)
	assert.Equal(t, domain.SnapshotSourceManual, snap.Source)
	assert.Equal(t, "2026-08-20 23:59:59", snap.SnapshotTime.Format("2006-01-02 15:04:05"))
}

func TestAddManualRejectsSameDayDuplicate(t *testing.T) {
	store := newFakeStore()
	store.addSnapshot("2026-08-20", "500.00", domain.SnapshotSourceSync)
	svc := newTestService(store)

	_, err := svc.AddManual(store.accountID, decimal.RequireFromString("500.004"), date("2026-08-20"))
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestAddManualUnknownAccount(t *testing.T) {
	svc := newTestService(newFakeStore())
	_, err := svc.AddManual(uuid.New(), decimal.Zero, date("2026-08-20"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBackfillWalksBackwards(t *testing.T) {
	store := newFakeStore()
	store.addTransaction("2026-08-19", "-20.00")
	store.addTransaction("2026-08-18", "100.00")
	svc := newTestService(store)

	days, err := svc.Preview(BackfillOptions{
		AccountID: store.accountID,
		Balance:   decimal.RequireFromString("500.00"),
		Date:      date("2026-08-20"),
	})
	require.NoError(t, err)

	// Anchor day, then each transaction day, descending.
	require.Len(t, days, 3)
	assert.Equal(t, date("2026-08-20"), days[0].Date)
	assert.True(t, days[0].Balance.Equal(decimal.RequireFromString("500.00")))

	// 500 - (-20) = 520, the balance before the 19th's spending.
	assert.Equal(t, date("2026-08-19"), days[1].Date)
	assert.True(t, days[1].Balance.Equal(decimal.RequireFromString("520.00")))
	assert.True(t, days[1].Net.Equal(decimal.RequireFromString("-20.00")))

	// 520 - 100 = 420.
	assert.Equal(t, date("2026-08-18"), days[2].Date)
	assert.True(t, days[2].Balance.Equal(decimal.RequireFromString("420.00")))
}

func TestBackfillAggregatesSameDayActivity(t *testing.T) {
	store := newFakeStore()
	store.addTransaction("2026-08-20", "-50.00")
	store.addTransaction("2026-08-18", "100.00")
	store.addTransaction("2026-08-18", "-25.00")
	store.addTransaction("2026-08-15", "-10.00")
	svc := newTestService(store)

	days, err := svc.Preview(BackfillOptions{
		AccountID: store.accountID,
		Balance:   decimal.RequireFromString("1000.00"),
		Date:      date("2026-08-20"),
	})
	require.NoError(t, err)
	require.Len(t, days, 3)

	// The anchor day records the known balance as-is; its own activity
	// is already reflected in it.
	assert.Equal(t, date("2026-08-20"), days[0].Date)
	assert.True(t, days[0].Balance.Equal(decimal.RequireFromString("1000.00")))
	assert.True(t, days[0].Net.Equal(decimal.RequireFromString("-50.00")))

	// Both transactions on the 18th net to 75: 1000 - 75 = 925.
	assert.Equal(t, date("2026-08-18"), days[1].Date)
	assert.True(t, days[1].Balance.Equal(decimal.RequireFromString("925.00")))
	assert.True(t, days[1].Net.Equal(decimal.RequireFromString("75.00")))
	assert.Len(t, days[1].Transactions, 2)

	// 925 - (-10) = 935.
	assert.Equal(t, date("2026-08-15"), days[2].Date)
	assert.True(t, days[2].Balance.Equal(decimal.RequireFromString("935.00")))
}

func TestBackfillNoTransactions(t *testing.T) {
	store := newFakeStore()
	store.addSnapshot("2026-08-18", "900.00", domain.SnapshotSourceSync)
	svc := newTestService(store)

	opts := BackfillOptions{
		AccountID: store.accountID,
		Balance:   decimal.RequireFromString("500.00"),
		Date:      date("2026-08-20"),
	}
	days, err := svc.Preview(opts)
	require.NoError(t, err)
	assert.Empty(t, days)

	result, err := svc.Execute(opts)
	require.NoError(t, err)
	assert.Zero(t, result.Deleted)
	assert.Zero(t, result.Inserted)
	assert.Len(t, store.snapshots, 1)
}

func TestBackfillIgnoresTransactionsAfterAnchor(t *testing.T) {
	store := newFakeStore()
	store.addTransaction("2026-08-25", "-999.00")
	store.addTransaction("2026-08-15", "-10.00")
	svc := newTestService(store)

	days, err := svc.Preview(BackfillOptions{
		AccountID: store.accountID,
		Balance:   decimal.RequireFromString("100.00"),
		Date:      date("2026-08-20"),
	})
	require.NoError(t, err)
	require.Len(t, days, 2)
	assert.Equal(t, date("2026-08-20"), days[0].Date)
	assert.Equal(t, date("2026-08-15"), days[1].Date)
}

func TestBackfillMarksReplacements(t *testing.T) {
	store := newFakeStore()
	store.addTransaction("2026-08-18", "-25.00")
	store.addSnapshot("2026-08-18", "900.00", domain.SnapshotSourceSync)
	svc := newTestService(store)

	days, err := svc.Preview(BackfillOptions{
		AccountID: store.accountID,
		Balance:   decimal.RequireFromString("1000.00"),
		Date:      date("2026-08-20"),
	})
	require.NoError(t, err)
	require.Len(t, days, 2)

	replaced := days[1]
	assert.Equal(t, date("2026-08-18"), replaced.Date)
	assert.True(t, replaced.Replaces)
	require.NotNil(t, replaced.ExistingBalance)
	assert.True(t, replaced.ExistingBalance.Equal(decimal.RequireFromString("900.00")))
	assert.Equal(t, domain.SnapshotSourceSync, replaced.ExistingSource)
}

func TestBackfillWindowFiltersOutputOnly(t *testing.T) {
	store := newFakeStore()
	store.addTransaction("2026-08-20", "-50.00")
	store.addTransaction("2026-08-18", "100.00")
	store.addTransaction("2026-08-15", "-10.00")
	svc := newTestService(store)

	days, err := svc.Preview(BackfillOptions{
		AccountID:   store.accountID,
		Balance:     decimal.RequireFromString("1000.00"),
		Date:        date("2026-08-22"),
		WindowStart: date("2026-08-16"),
		WindowEnd:   date("2026-08-19"),
	})
	require.NoError(t, err)

	// Only the 18th falls inside the window, but its balance still
	// reflects the out-of-window walk through the 20th:
	// 1000 - (-50) = 1050, then 1050 - 100 = 950.
	require.Len(t, days, 1)
	assert.Equal(t, date("2026-08-18"), days[0].Date)
	assert.True(t, days[0].Balance.Equal(decimal.RequireFromString("950.00")))
}

func TestBackfillExecute(t *testing.T) {
	store := newFakeStore()
	store.addTransaction("2026-08-20", "-50.00")
	store.addTransaction("2026-08-18", "100.00")
	store.addSnapshot("2026-08-18", "900.00", domain.SnapshotSourceSync)
	svc := newTestService(store)

	result, err := svc.Execute(BackfillOptions{
		AccountID: store.accountID,
		Balance:   decimal.RequireFromString("1000.00"),
		Date:      date("2026-08-20"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Deleted)
	assert.Equal(t, 2, result.Inserted)

	for _, snap := range store.snapshots {
		assert.Equal(t, domain.SnapshotSourceBackfill, snap.Source)
		assert.Equal(t, "23:59:59", snap.SnapshotTime.Format("15:04:05"))
	}
}
