package importer

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treeline-app/treeline/internal/config"
	"github.com/treeline-app/treeline/internal/domain"
)

type fakeStore struct {
	accountID    uuid.UUID
	transactions []domain.Transaction
	snapshots    []domain.BalanceSnapshot

	// fingerprint -> batch id of prior import
	known map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{accountID: uuid.New(), known: map[string]string{}}
}

func (s *fakeStore) GetAccount(id uuid.UUID) (domain.Account, error) {
	if id != s.accountID {
		return domain.Account{}, domain.ErrNotFound
	}
	return domain.NewAccount(id, "Checking"), nil
}

func (s *fakeStore) InsertTransactionIfAbsent(tx *domain.Transaction) (bool, error) {
	s.transactions = append(s.transactions, *tx)
	return true, nil
}

func (s *fakeStore) FingerprintExistsOutsideBatch(fingerprint, batchID string) (bool, error) {
	batch, ok := s.known[fingerprint]
	return ok && batch != batchID, nil
}

func (s *fakeStore) InsertSnapshot(snap *domain.BalanceSnapshot) (bool, error) {
	s.snapshots = append(s.snapshots, *snap)
	return true, nil
}

func newTestService(store Store) *Service {
	s := NewService(store, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.now = func() time.Time {
		return time.Date(2026, time.August, 31, 9, 30, 0, 0, time.UTC)
	}
	return s
}

func TestImportBasic(t *testing.T) {
	csvData := `Date,Description,Amount
2026-08-01,WHOLE FOODS MARKET,-85.23
2026-08-02,ACME CORP PAYROLL,"4,250.00"
2026-08-03,REFUND,(12.50)
not-a-date,JUNK,1.00
`
	store := newFakeStore()
	svc := newTestService(store)

	result, err := svc.Import(context.Background(), strings.NewReader(csvData), Options{AccountID: store.accountID})
	require.NoError(t, err)

	assert.Equal(t, "import_20260831_093000", result.BatchID)
	assert.Equal(t, 3, result.Parsed)
	assert.Equal(t, 3, result.Imported)
	assert.Equal(t, 0, result.Duplicates)
	assert.Equal(t, 1, result.RowErrors)

	require.Len(t, store.transactions, 3)
	assert.True(t, store.transactions[0].Amount.Equal(decimal.RequireFromString("-85.23")))
	assert.True(t, store.transactions[1].Amount.Equal(decimal.RequireFromString("4250.00")))
	assert.True(t, store.transactions[2].Amount.Equal(decimal.RequireFromString("-12.50")))
	for _, tx := range store.transactions {
		require.NotNil(t, tx.CSVBatchID)
		assert.Equal(t, result.BatchID, *tx.CSVBatchID)
		assert.NotNil(t, tx.CSVFingerprint)
	}
}

func TestImportUnknownAccount(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	_, err := svc.Import(context.Background(), strings.NewReader("Date,Amount\n"), Options{AccountID: uuid.New()})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestImportCrossBatchDuplicateSkipped(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	// Fingerprint the row exactly as the importer will.
	desc := "WHOLE FOODS MARKET"
	prior := domain.NewTransaction(uuid.New(), store.accountID,
		decimal.RequireFromString("-85.23"), time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC))
	prior.Description = &desc
	store.known[prior.Fingerprint()] = "import_20250101_000000"

	csvData := "Date,Description,Amount\n2026-08-01,WHOLE FOODS MARKET,-85.23\n"
	result, err := svc.Import(context.Background(), strings.NewReader(csvData), Options{AccountID: store.accountID})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Parsed)
	assert.Equal(t, 0, result.Imported)
	assert.Equal(t, 1, result.Duplicates)
	assert.Empty(t, store.transactions)
	require.Len(t, result.Preview, 1)
	assert.True(t, result.Preview[0].Duplicate)
}

func TestImportSameBatchDuplicateKept(t *testing.T) {
	csvData := `Date,Description,Amount
2026-08-01,COFFEE,-5.65
2026-08-01,COFFEE,-5.65
`
	store := newFakeStore()
	svc := newTestService(store)

	result, err := svc.Import(context.Background(), strings.NewReader(csvData), Options{AccountID: store.accountID})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Imported)
	assert.Len(t, store.transactions, 2)
}

func TestImportDebitCreditColumns(t *testing.T) {
	csvData := `Date,Memo,Debit,Credit
2026-08-01,GROCERIES,50,
2026-08-02,PAYROLL,,4250.00
2026-08-03,CORRECTION,10.00,25.00
`
	store := newFakeStore()
	svc := newTestService(store)

	profile := &config.ImportProfile{Options: config.ProfileOptions{DebitNegative: true}}
	result, err := svc.Import(context.Background(), strings.NewReader(csvData), Options{AccountID: store.accountID, Profile: profile})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Imported)

	require.Len(t, store.transactions, 3)
	assert.True(t, store.transactions[0].Amount.Equal(decimal.RequireFromString("-50")))
	assert.True(t, store.transactions[1].Amount.Equal(decimal.RequireFromString("4250.00")))
	// Both populated: larger magnitude wins.
	assert.True(t, store.transactions[2].Amount.Equal(decimal.RequireFromString("25.00")))
}

func TestImportDebitPositiveWithoutOption(t *testing.T) {
	csvData := "Date,Debit\n2026-08-01,50\n"
	store := newFakeStore()
	svc := newTestService(store)

	_, err := svc.Import(context.Background(), strings.NewReader(csvData), Options{AccountID: store.accountID})
	require.NoError(t, err)
	require.Len(t, store.transactions, 1)
	assert.True(t, store.transactions[0].Amount.Equal(decimal.RequireFromString("50")))
}

func TestImportFlipSigns(t *testing.T) {
	csvData := "Date,Amount\n2026-08-01,85.23\n"
	store := newFakeStore()
	svc := newTestService(store)

	profile := &config.ImportProfile{Options: config.ProfileOptions{FlipSigns: true}}
	_, err := svc.Import(context.Background(), strings.NewReader(csvData), Options{AccountID: store.accountID, Profile: profile})
	require.NoError(t, err)
	require.Len(t, store.transactions, 1)
	assert.True(t, store.transactions[0].Amount.Equal(decimal.RequireFromString("-85.23")))
}

func TestImportPreviewWritesNothing(t *testing.T) {
	csvData := "Date,Amount\n2026-08-01,-10.00\n2026-08-02,-20.00\n"
	store := newFakeStore()
	svc := newTestService(store)

	result, err := svc.Import(context.Background(), strings.NewReader(csvData), Options{AccountID: store.accountID, Preview: true})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Imported)
	assert.Len(t, result.Preview, 2)
	assert.Empty(t, store.transactions)
	assert.Empty(t, store.snapshots)
}

func TestImportPreviewCapped(t *testing.T) {
	var b strings.Builder
	b.WriteString("Date,Amount\n")
	for i := 1; i <= 15; i++ {
		b.WriteString(time.Date(2026, time.August, i, 0, 0, 0, 0, time.UTC).Format("2006-01-02"))
		b.WriteString(",-1.00\n")
	}
	store := newFakeStore()
	svc := newTestService(store)

	result, err := svc.Import(context.Background(), strings.NewReader(b.String()), Options{AccountID: store.accountID, Preview: true})
	require.NoError(t, err)
	assert.Equal(t, 15, result.Parsed)
	assert.Len(t, result.Preview, previewLimit)
}

func TestImportBalanceColumnSnapshots(t *testing.T) {
	csvData := `Date,Amount,Balance
2026-08-01,-10.00,990.00
2026-08-01,-5.00,985.00
2026-08-02,-20.00,965.00
`
	store := newFakeStore()
	svc := newTestService(store)

	result, err := svc.Import(context.Background(), strings.NewReader(csvData), Options{AccountID: store.accountID})
	require.NoError(t, err)
	assert.Equal(t, 2, result.SnapshotsRecorded)

	byDate := map[string]domain.BalanceSnapshot{}
	for _, snap := range store.snapshots {
		byDate[snap.SnapshotTime.Format("2006-01-02")] = snap
		assert.Equal(t, domain.SnapshotSourceImport, snap.Source)
		assert.Equal(t, "23:59:59", snap.SnapshotTime.Format("15:04:05"))
	}
	assert.True(t, byDate["2026-08-01"].Balance.Equal(decimal.RequireFromString("985.00")))
	assert.True(t, byDate["2026-08-02"].Balance.Equal(decimal.RequireFromString("965.00")))
}

func TestImportSkipRowsAndHashHeader(t *testing.T) {
	csvData := `Statement export
Generated 2026-08-31
# Date;Description;Amount
2026-08-01;COFFEE;-5.65
`
	store := newFakeStore()
	svc := newTestService(store)

	profile := &config.ImportProfile{SkipRows: 2}
	result, err := svc.Import(context.Background(), strings.NewReader(csvData), Options{AccountID: store.accountID, Profile: profile})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)
	require.Len(t, store.transactions, 1)
	require.NotNil(t, store.transactions[0].Description)
	assert.Equal(t, "COFFEE", *store.transactions[0].Description)
}

func TestImportMissingColumns(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	_, err := svc.Import(context.Background(), strings.NewReader("Foo,Bar\n1,2\n"), Options{AccountID: store.accountID})
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestImportTagsStamped(t *testing.T) {
	csvData := "Date,Amount\n2026-08-01,-10.00\n"
	store := newFakeStore()
	svc := newTestService(store)

	_, err := svc.Import(context.Background(), strings.NewReader(csvData), Options{
		AccountID: store.accountID,
		Tags:      []string{"imported", " imported ", ""},
	})
	require.NoError(t, err)
	require.Len(t, store.transactions, 1)
	assert.Equal(t, []string{"imported"}, store.transactions[0].Tags)
}

type fakeTagger struct {
	applied [][]uuid.UUID
}

func (f *fakeTagger) ApplyRules(_ context.Context, ids []uuid.UUID) error {
	f.applied = append(f.applied, ids)
	return nil
}

func TestImportAppliesAutoTagRules(t *testing.T) {
	csvData := "Date,Amount,Description\n2026-08-01,-10.00,COFFEE\n2026-08-02,-20.00,LUNCH\n"
	store := newFakeStore()
	tagger := &fakeTagger{}
	svc := NewService(store, tagger, slog.New(slog.NewTextHandler(io.Discard, nil)))

	result, err := svc.Import(context.Background(), strings.NewReader(csvData), Options{AccountID: store.accountID})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Imported)
	require.Len(t, tagger.applied, 1)
	assert.Len(t, tagger.applied[0], 2)
}

func TestImportPreviewSkipsAutoTagRules(t *testing.T) {
	csvData := "Date,Amount\n2026-08-01,-10.00\n"
	store := newFakeStore()
	tagger := &fakeTagger{}
	svc := NewService(store, tagger, slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := svc.Import(context.Background(), strings.NewReader(csvData), Options{AccountID: store.accountID, Preview: true})
	require.NoError(t, err)
	assert.Empty(t, tagger.applied)
}
