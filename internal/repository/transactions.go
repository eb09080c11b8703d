package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/treeline-app/treeline/internal/domain"
)

const selectTransactionColumns = `transaction_id, account_id, amount::VARCHAR, description,
	transaction_date::VARCHAR, posted_date::VARCHAR, CAST(tags AS VARCHAR), tags_auto_applied,
	parent_transaction_id, is_manual, deleted_at::VARCHAR, created_at::VARCHAR, updated_at::VARCHAR,
	csv_fingerprint, csv_batch_id,
	sf_id, sf_posted, sf_amount, sf_description, sf_transacted_at, sf_pending, CAST(sf_extra AS VARCHAR),
	lf_id, lf_account_id, lf_amount::VARCHAR, lf_currency, lf_date::VARCHAR, lf_merchant,
	lf_description, lf_is_pending`

// ListTransactions returns live transactions, newest first, optionally
// scoped to one account.
func (r *Repository) ListTransactions(accountID *uuid.UUID) ([]domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	query := "SELECT " + selectTransactionColumns + " FROM sys_transactions WHERE deleted_at IS NULL"
	args := []any{}
	if accountID != nil {
		query += " AND account_id = ?"
		args = append(args, accountID.String())
	}
	query += " ORDER BY transaction_date DESC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// GetTransaction returns one transaction by id, deleted or not.
func (r *Repository) GetTransaction(id uuid.UUID) (domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row := r.db.QueryRow(
		"SELECT "+selectTransactionColumns+" FROM sys_transactions WHERE transaction_id = ?",
		id.String(),
	)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Transaction{}, fmt.Errorf("transaction %s: %w", id, domain.ErrNotFound)
	}
	return tx, err
}

// InsertTransactionIfAbsent inserts a transaction unless its id already
// exists, preserving any user edits to the stored row. Reports whether
// a row was inserted.
func (r *Repository) InsertTransactionIfAbsent(tx *domain.Transaction) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result, err := r.db.Exec(insertTransactionSQL(tx, "ON CONFLICT (transaction_id) DO NOTHING"), transactionArgs(tx)...)
	if err != nil {
		return false, fmt.Errorf("inserting transaction %s: %w", tx.ID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking insert of transaction %s: %w", tx.ID, err)
	}
	return n > 0, nil
}

// UpsertTransaction inserts or fully replaces a transaction row.
func (r *Repository) UpsertTransaction(tx *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	onConflict := `ON CONFLICT (transaction_id) DO UPDATE SET
		account_id = EXCLUDED.account_id,
		amount = EXCLUDED.amount,
		description = EXCLUDED.description,
		transaction_date = EXCLUDED.transaction_date,
		posted_date = EXCLUDED.posted_date,
		tags = EXCLUDED.tags,
		tags_auto_applied = EXCLUDED.tags_auto_applied,
		parent_transaction_id = EXCLUDED.parent_transaction_id,
		csv_fingerprint = EXCLUDED.csv_fingerprint,
		csv_batch_id = EXCLUDED.csv_batch_id,
		updated_at = EXCLUDED.updated_at`
	if _, err := r.db.Exec(insertTransactionSQL(tx, onConflict), transactionArgs(tx)...); err != nil {
		return fmt.Errorf("upserting transaction %s: %w", tx.ID, err)
	}
	return nil
}

// UpdateTransactionTags rewrites a transaction's tag list. autoApplied
// marks tags written by rules rather than the user.
func (r *Repository) UpdateTransactionTags(id uuid.UUID, tags []string, autoApplied bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	query := fmt.Sprintf(
		"UPDATE sys_transactions SET tags = %s, tags_auto_applied = ?, updated_at = CURRENT_TIMESTAMP WHERE transaction_id = ?",
		formatArrayLiteral(domain.NormalizeTags(tags)),
	)
	result, err := r.db.Exec(query, autoApplied, id.String())
	if err != nil {
		return fmt.Errorf("updating tags for %s: %w", id, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("transaction %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// SoftDeleteTransaction marks a transaction deleted without removing
// the row.
func (r *Repository) SoftDeleteTransaction(id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	result, err := r.db.Exec(
		"UPDATE sys_transactions SET deleted_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP WHERE transaction_id = ? AND deleted_at IS NULL",
		id.String(),
	)
	if err != nil {
		return fmt.Errorf("deleting transaction %s: %w", id, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("transaction %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// TransactionExistsBySFID reports whether any transaction carries the
// given SimpleFIN id.
func (r *Repository) TransactionExistsBySFID(sfID string) (bool, error) {
	return r.exists("SELECT COUNT(*) FROM sys_transactions WHERE sf_id = ?", sfID)
}

// TransactionExistsByLFID reports whether any transaction carries the
// given Lunchflow id.
func (r *Repository) TransactionExistsByLFID(lfID string) (bool, error) {
	return r.exists("SELECT COUNT(*) FROM sys_transactions WHERE lf_id = ?", lfID)
}

// FingerprintExists reports whether any live transaction carries the
// fingerprint.
func (r *Repository) FingerprintExists(fingerprint string) (bool, error) {
	return r.exists(
		"SELECT COUNT(*) FROM sys_transactions WHERE csv_fingerprint = ? AND deleted_at IS NULL",
		fingerprint,
	)
}

// FingerprintExistsOutsideBatch reports whether the fingerprint exists
// on a transaction from any batch other than the given one. Same-batch
// rows do not count: a statement with a legitimate same-day repeat
// must keep both rows.
func (r *Repository) FingerprintExistsOutsideBatch(fingerprint, batchID string) (bool, error) {
	return r.exists(
		`SELECT COUNT(*) FROM sys_transactions
		 WHERE csv_fingerprint = ? AND deleted_at IS NULL
		   AND (csv_batch_id IS NULL OR csv_batch_id <> ?)`,
		fingerprint, batchID,
	)
}

// MaxTransactionDate returns the latest live transaction date, or nil
// for an empty database.
func (r *Repository) MaxTransactionDate() (*time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var dateStr *string
	err := r.db.QueryRow(
		"SELECT MAX(transaction_date)::VARCHAR FROM sys_transactions WHERE deleted_at IS NULL",
	).Scan(&dateStr)
	if err != nil {
		return nil, fmt.Errorf("reading max transaction date: %w", err)
	}
	return optDate(dateStr)
}

// TransactionDateRange returns the earliest and latest live transaction
// dates; both nil for an empty database.
func (r *Repository) TransactionDateRange() (earliest, latest *time.Time, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var minStr, maxStr *string
	err = r.db.QueryRow(
		"SELECT MIN(transaction_date)::VARCHAR, MAX(transaction_date)::VARCHAR FROM sys_transactions WHERE deleted_at IS NULL",
	).Scan(&minStr, &maxStr)
	if err != nil {
		return nil, nil, fmt.Errorf("reading transaction date range: %w", err)
	}
	if earliest, err = optDate(minStr); err != nil {
		return nil, nil, err
	}
	if latest, err = optDate(maxStr); err != nil {
		return nil, nil, err
	}
	return earliest, latest, nil
}

// CountTransactions returns the number of live transactions.
func (r *Repository) CountTransactions() (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64
	if err := r.db.QueryRow("SELECT COUNT(*) FROM sys_transactions WHERE deleted_at IS NULL").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting transactions: %w", err)
	}
	return count, nil
}

// DailyNetAmounts returns the signed per-day sum of live transaction
// amounts for one account, for dates on or before through.
func (r *Repository) DailyNetAmounts(accountID uuid.UUID, through time.Time) (map[string]decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(
		`SELECT transaction_date::VARCHAR, SUM(amount)::VARCHAR
		 FROM sys_transactions
		 WHERE account_id = ? AND deleted_at IS NULL AND transaction_date <= ?
		 GROUP BY transaction_date`,
		accountID.String(), fmtDate(through),
	)
	if err != nil {
		return nil, fmt.Errorf("summing daily amounts: %w", err)
	}
	defer rows.Close()

	sums := make(map[string]decimal.Decimal)
	for rows.Next() {
		var dateStr, sumStr string
		if err := rows.Scan(&dateStr, &sumStr); err != nil {
			return nil, fmt.Errorf("scanning daily sum: %w", err)
		}
		sum, err := parseDecimal(sumStr)
		if err != nil {
			return nil, err
		}
		sums[dateStr] = sum
	}
	return sums, rows.Err()
}

// ListTransactionsOn returns an account's live transactions for one
// date.
func (r *Repository) ListTransactionsOn(accountID uuid.UUID, date time.Time) ([]domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(
		"SELECT "+selectTransactionColumns+" FROM sys_transactions WHERE account_id = ? AND transaction_date = ? AND deleted_at IS NULL",
		accountID.String(), fmtDate(date),
	)
	if err != nil {
		return nil, fmt.Errorf("listing transactions on %s: %w", fmtDate(date), err)
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func (r *Repository) exists(query string, args ...any) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64
	if err := r.db.QueryRow(query, args...).Scan(&count); err != nil {
		return false, fmt.Errorf("existence check: %w", err)
	}
	return count > 0, nil
}

func insertTransactionSQL(tx *domain.Transaction, onConflict string) string {
	// Tag arrays are spliced as literals; the binding has no array
	// parameter support.
	return fmt.Sprintf(
		`INSERT INTO sys_transactions (transaction_id, account_id, amount, description,
			transaction_date, posted_date, tags, tags_auto_applied, parent_transaction_id,
			is_manual, created_at, updated_at, csv_fingerprint, csv_batch_id,
			sf_id, sf_posted, sf_amount, sf_description, sf_transacted_at, sf_pending, sf_extra,
			lf_id, lf_account_id, lf_amount, lf_currency, lf_date, lf_merchant, lf_description, lf_is_pending)
		 VALUES (?, ?, ?, ?, ?, ?, %s, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 %s`,
		formatArrayLiteral(domain.NormalizeTags(tx.Tags)), onConflict,
	)
}

func transactionArgs(tx *domain.Transaction) []any {
	return []any{
		tx.ID.String(), tx.AccountID.String(), tx.Amount.String(), tx.Description,
		fmtDate(tx.TransactionDate), fmtDate(tx.PostedDate), tx.TagsAutoApplied,
		optUUIDString(tx.ParentTransactionID), tx.IsManual,
		fmtTimestamp(tx.CreatedAt), fmtTimestamp(tx.UpdatedAt),
		tx.CSVFingerprint, tx.CSVBatchID,
		tx.SFID, tx.SFPosted, tx.SFAmount, tx.SFDescription, tx.SFTransactedAt, tx.SFPending, tx.SFExtra,
		tx.LFID, tx.LFAccountID, optDecimalString(tx.LFAmount), tx.LFCurrency, optFmtDate(tx.LFDate),
		tx.LFMerchant, tx.LFDescription, tx.LFIsPending,
	}
}

func scanTransaction(s scanner) (domain.Transaction, error) {
	var (
		tx                                    domain.Transaction
		idStr, accountIDStr, amountStr        string
		txDateStr, postedDateStr              string
		tagsStr, deletedStr                   *string
		parentIDStr                           *string
		createdStr, updatedStr                string
		lfAmountStr, lfDateStr                *string
	)
	err := s.Scan(
		&idStr, &accountIDStr, &amountStr, &tx.Description,
		&txDateStr, &postedDateStr, &tagsStr, &tx.TagsAutoApplied,
		&parentIDStr, &tx.IsManual, &deletedStr, &createdStr, &updatedStr,
		&tx.CSVFingerprint, &tx.CSVBatchID,
		&tx.SFID, &tx.SFPosted, &tx.SFAmount, &tx.SFDescription, &tx.SFTransactedAt, &tx.SFPending, &tx.SFExtra,
		&tx.LFID, &tx.LFAccountID, &lfAmountStr, &tx.LFCurrency, &lfDateStr,
		&tx.LFMerchant, &tx.LFDescription, &tx.LFIsPending,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Transaction{}, err
		}
		return domain.Transaction{}, fmt.Errorf("scanning transaction: %w", err)
	}
	if tx.ID, err = parseUUID(idStr); err != nil {
		return domain.Transaction{}, err
	}
	if tx.AccountID, err = parseUUID(accountIDStr); err != nil {
		return domain.Transaction{}, err
	}
	if tx.Amount, err = parseDecimal(amountStr); err != nil {
		return domain.Transaction{}, err
	}
	if tx.TransactionDate, err = parseDate(txDateStr); err != nil {
		return domain.Transaction{}, err
	}
	if tx.PostedDate, err = parseDate(postedDateStr); err != nil {
		return domain.Transaction{}, err
	}
	if tagsStr != nil {
		tx.Tags = parseArray(*tagsStr)
	}
	if tx.ParentTransactionID, err = optUUID(parentIDStr); err != nil {
		return domain.Transaction{}, err
	}
	if tx.DeletedAt, err = optTimestamp(deletedStr); err != nil {
		return domain.Transaction{}, err
	}
	if tx.CreatedAt, err = parseTimestamp(createdStr); err != nil {
		return domain.Transaction{}, err
	}
	if tx.UpdatedAt, err = parseTimestamp(updatedStr); err != nil {
		return domain.Transaction{}, err
	}
	if tx.LFAmount, err = optDecimal(lfAmountStr); err != nil {
		return domain.Transaction{}, err
	}
	if tx.LFDate, err = optDate(lfDateStr); err != nil {
		return domain.Transaction{}, err
	}
	return tx, nil
}
