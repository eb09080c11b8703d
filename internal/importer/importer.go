// Package importer ingests transactions from CSV files. Columns are
// auto-detected from headers, amounts normalized, and rows
// deduplicated against earlier imports by fingerprint while
// legitimate same-file duplicates are preserved.
package importer

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/treeline-app/treeline/internal/config"
	"github.com/treeline-app/treeline/internal/domain"
	"github.com/treeline-app/treeline/internal/encoding"
)

const previewLimit = 10

// Store is the persistence surface the importer needs.
type Store interface {
	GetAccount(id uuid.UUID) (domain.Account, error)
	InsertTransactionIfAbsent(tx *domain.Transaction) (bool, error)
	FingerprintExistsOutsideBatch(fingerprint, batchID string) (bool, error)
	InsertSnapshot(snap *domain.BalanceSnapshot) (bool, error)
}

// Tagger applies auto-tag rules to freshly inserted transactions.
type Tagger interface {
	ApplyRules(ctx context.Context, ids []uuid.UUID) error
}

// Options control one import invocation.
type Options struct {
	AccountID uuid.UUID
	// Profile supplies explicit column mappings, date format, skip
	// rows and amount options. Nil means full auto-detection.
	Profile *config.ImportProfile
	// Preview parses and classifies but writes nothing.
	Preview bool
	// Tags are stamped on every inserted transaction.
	Tags []string
}

// PreviewRow is one classified row shown before committing an import.
type PreviewRow struct {
	Date        string `json:"date"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
	Duplicate   bool   `json:"duplicate"`
}

// Result summarizes one import invocation.
type Result struct {
	BatchID           string       `json:"batch_id"`
	Parsed            int          `json:"parsed"`
	Imported          int          `json:"imported"`
	Duplicates        int          `json:"duplicates"`
	RowErrors         int          `json:"row_errors"`
	SnapshotsRecorded int          `json:"snapshots_recorded"`
	Preview           []PreviewRow `json:"preview,omitempty"`
}

// Service imports CSV files.
type Service struct {
	store  Store
	tagger Tagger
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates an importer. tagger may be nil.
func NewService(store Store, tagger Tagger, logger *slog.Logger) *Service {
	return &Service{store: store, tagger: tagger, logger: logger, now: time.Now}
}

// Import reads a CSV stream and ingests its rows into the account.
func (s *Service) Import(ctx context.Context, r io.Reader, opts Options) (*Result, error) {
	if _, err := s.store.GetAccount(opts.AccountID); err != nil {
		return nil, err
	}

	profile := opts.Profile
	if profile == nil {
		profile = &config.ImportProfile{}
	}

	rows, err := readRows(r, profile.SkipRows)
	if err != nil {
		return nil, err
	}
	if len(rows) < 1 {
		return nil, domain.Errorf(domain.KindValidation, "file has no header row")
	}

	headers := cleanHeader(rows[0])
	mapping := s.resolveMapping(headers, profile)
	if !mapping.Valid() {
		return nil, domain.Errorf(domain.KindValidation,
			"could not identify date and amount columns; map them explicitly")
	}

	batchID := "import_" + s.now().Format("20060102_150405")
	result := &Result{BatchID: batchID}
	tags := domain.NormalizeTags(opts.Tags)

	// Latest balance cell seen per date; statements list rows in
	// order, so the last one stands for end of day.
	balances := map[string]decimal.Decimal{}
	var insertedIDs []uuid.UUID

	for _, row := range rows[1:] {
		tx, balance, err := s.parseRow(row, mapping, profile, opts.AccountID)
		if err != nil {
			result.RowErrors++
			continue
		}
		result.Parsed++
		tx.Tags = tags
		tx.CSVBatchID = &batchID
		tx.EnsureFingerprint()

		duplicate, err := s.store.FingerprintExistsOutsideBatch(*tx.CSVFingerprint, batchID)
		if err != nil {
			return nil, err
		}

		if len(result.Preview) < previewLimit {
			result.Preview = append(result.Preview, PreviewRow{
				Date:        tx.TransactionDate.Format("2006-01-02"),
				Description: deref(tx.Description),
				Amount:      tx.Amount.StringFixed(2),
				Duplicate:   duplicate,
			})
		}
		if duplicate {
			result.Duplicates++
			continue
		}
		if balance != nil {
			balances[tx.TransactionDate.Format("2006-01-02")] = *balance
		}
		if opts.Preview {
			result.Imported++
			continue
		}
		inserted, err := s.store.InsertTransactionIfAbsent(tx)
		if err != nil {
			return nil, err
		}
		if inserted {
			result.Imported++
			insertedIDs = append(insertedIDs, tx.ID)
		} else {
			result.Duplicates++
		}
	}

	if !opts.Preview {
		for dateStr, balance := range balances {
			date, err := time.Parse("2006-01-02", dateStr)
			if err != nil {
				continue
			}
			snap := domain.NewBalanceSnapshot(opts.AccountID, balance,
				domain.EndOfDay(date), domain.SnapshotSourceImport)
			inserted, err := s.store.InsertSnapshot(&snap)
			if err != nil {
				return nil, err
			}
			if inserted {
				result.SnapshotsRecorded++
			}
		}
	}

	if s.tagger != nil && len(insertedIDs) > 0 {
		if err := s.tagger.ApplyRules(ctx, insertedIDs); err != nil {
			s.logger.Warn("auto-tag rules failed after import", "batch", batchID, "error", err)
		}
	}

	s.logger.Info("csv import finished",
		"batch", batchID,
		"preview", opts.Preview,
		"parsed", result.Parsed,
		"imported", result.Imported,
		"duplicates", result.Duplicates,
		"row_errors", result.RowErrors)
	return result, nil
}

// readRows decodes the stream to UTF-8, drops any preamble lines,
// sniffs the delimiter from the header line and parses all rows.
func readRows(r io.Reader, skipRows int) ([][]string, error) {
	utf8r, err := encoding.NewUTF8Reader(r)
	if err != nil {
		return nil, fmt.Errorf("detecting encoding: %w", err)
	}
	data, err := io.ReadAll(utf8r)
	if err != nil {
		return nil, fmt.Errorf("reading csv: %w", err)
	}

	lines := strings.Split(string(data), "\n")
	if skipRows >= len(lines) {
		return nil, domain.Errorf(domain.KindValidation, "skip_rows leaves no rows to import")
	}
	lines = lines[skipRows:]

	headerLine := ""
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			headerLine = line
			break
		}
	}

	reader := csv.NewReader(strings.NewReader(strings.Join(lines, "\n")))
	reader.Comma = sniffDelimiter(headerLine)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing csv: %w", err)
	}
	return rows, nil
}

// cleanHeader strips a leading comment marker some banks put on the
// header line.
func cleanHeader(header []string) []string {
	cleaned := make([]string, len(header))
	copy(cleaned, header)
	if len(cleaned) > 0 {
		cleaned[0] = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(cleaned[0]), "#"))
	}
	return cleaned
}

// resolveMapping starts from auto-detection and lets the profile's
// explicit column names override individual roles.
func (s *Service) resolveMapping(headers []string, profile *config.ImportProfile) Mapping {
	m := DetectColumns(headers)
	cm := profile.ColumnMappings
	if i := resolveColumn(headers, cm.Date); i >= 0 {
		m.Date = i
	}
	if i := resolveColumn(headers, cm.Amount); i >= 0 {
		m.Amount = i
	}
	if i := resolveColumn(headers, cm.Description); i >= 0 {
		m.Description = i
	}
	if i := resolveColumn(headers, cm.Debit); i >= 0 {
		m.Debit = i
	}
	if i := resolveColumn(headers, cm.Credit); i >= 0 {
		m.Credit = i
	}
	if i := resolveColumn(headers, cm.Balance); i >= 0 {
		m.Balance = i
	}
	return m
}

func (s *Service) parseRow(row []string, m Mapping, profile *config.ImportProfile, accountID uuid.UUID) (*domain.Transaction, *decimal.Decimal, error) {
	cell := func(i int) string {
		if i >= 0 && i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	date, err := parseDate(cell(m.Date), profile.DateFormat)
	if err != nil {
		return nil, nil, err
	}

	amount, err := rowAmount(cell(m.Amount), cell(m.Debit), cell(m.Credit), profile.Options)
	if err != nil {
		return nil, nil, err
	}
	if profile.Options.FlipSigns {
		amount = amount.Neg()
	}

	tx := domain.NewTransaction(uuid.New(), accountID, amount, date)
	if desc := cell(m.Description); desc != "" {
		tx.Description = &desc
	}

	var balance *decimal.Decimal
	if b := cell(m.Balance); b != "" {
		if parsed, err := parseAmount(b, profile.Options.NumberFormat); err == nil {
			balance = &parsed
		}
	}
	return &tx, balance, nil
}

// rowAmount resolves a single signed amount from either a dedicated
// amount cell or the debit/credit pair. When both debit and credit are
// populated the larger magnitude wins.
func rowAmount(amountCell, debitCell, creditCell string, opts config.ProfileOptions) (decimal.Decimal, error) {
	if amountCell != "" {
		return parseAmount(amountCell, opts.NumberFormat)
	}

	var (
		debit, credit       decimal.Decimal
		hasDebit, hasCredit bool
	)
	if debitCell != "" {
		parsed, err := parseAmount(debitCell, opts.NumberFormat)
		if err == nil {
			debit, hasDebit = parsed, true
			if opts.DebitNegative && debit.IsPositive() {
				debit = debit.Neg()
			}
		}
	}
	if creditCell != "" {
		parsed, err := parseAmount(creditCell, opts.NumberFormat)
		if err == nil {
			credit, hasCredit = parsed, true
		}
	}

	switch {
	case hasDebit && hasCredit:
		if debit.Abs().GreaterThan(credit.Abs()) {
			return debit, nil
		}
		return credit, nil
	case hasDebit:
		return debit, nil
	case hasCredit:
		return credit, nil
	default:
		return decimal.Decimal{}, fmt.Errorf("no amount in row")
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
