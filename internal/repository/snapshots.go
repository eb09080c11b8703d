package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/treeline-app/treeline/internal/domain"
)

const selectSnapshotColumns = `snapshot_id, account_id, balance::VARCHAR,
	snapshot_time::VARCHAR, source, created_at::VARCHAR`

// InsertSnapshot stores a balance snapshot unless an equal one already
// exists for that account and day. Reports whether a row was inserted.
func (r *Repository) InsertSnapshot(snap *domain.BalanceSnapshot) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Same day plus same balance at two decimals is the same
	// observation; a different balance on the same day is kept.
	var count int64
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM sys_balance_snapshots
		 WHERE account_id = ? AND snapshot_time::DATE = ?::DATE AND ROUND(balance, 2) = ROUND(?::DECIMAL(15,2), 2)`,
		snap.AccountID.String(), fmtDate(snap.SnapshotTime), snap.Balance.String(),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking snapshot duplicate: %w", err)
	}
	if count > 0 {
		return false, nil
	}

	_, err = r.db.Exec(
		`INSERT INTO sys_balance_snapshots (snapshot_id, account_id, balance, snapshot_time, source, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		snap.ID.String(), snap.AccountID.String(), snap.Balance.String(),
		fmtNaiveTimestamp(snap.SnapshotTime), snap.Source,
		fmtTimestamp(snap.CreatedAt), fmtTimestamp(snap.CreatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("inserting snapshot for %s: %w", snap.AccountID, err)
	}
	return true, nil
}

// ListSnapshots returns snapshots newest first, optionally scoped to
// one account.
func (r *Repository) ListSnapshots(accountID *uuid.UUID) ([]domain.BalanceSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	query := "SELECT " + selectSnapshotColumns + " FROM sys_balance_snapshots"
	args := []any{}
	if accountID != nil {
		query += " WHERE account_id = ?"
		args = append(args, accountID.String())
	}
	query += " ORDER BY snapshot_time DESC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []domain.BalanceSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// LatestSnapshot returns the most recent snapshot for an account.
func (r *Repository) LatestSnapshot(accountID uuid.UUID) (domain.BalanceSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row := r.db.QueryRow(
		"SELECT "+selectSnapshotColumns+" FROM sys_balance_snapshots WHERE account_id = ? ORDER BY snapshot_time DESC LIMIT 1",
		accountID.String(),
	)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.BalanceSnapshot{}, fmt.Errorf("snapshot for account %s: %w", accountID, domain.ErrNotFound)
	}
	return snap, err
}

// SnapshotsInWindow returns an account's snapshots whose date falls in
// [start, end], oldest first.
func (r *Repository) SnapshotsInWindow(accountID uuid.UUID, start, end time.Time) ([]domain.BalanceSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(
		"SELECT "+selectSnapshotColumns+` FROM sys_balance_snapshots
		 WHERE account_id = ? AND snapshot_time::DATE >= ?::DATE AND snapshot_time::DATE <= ?::DATE
		 ORDER BY snapshot_time`,
		accountID.String(), fmtDate(start), fmtDate(end),
	)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots in window: %w", err)
	}
	defer rows.Close()

	var snaps []domain.BalanceSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// DeleteSnapshotsInWindow removes all of an account's snapshots whose
// date falls in [start, end], regardless of source. Returns the number
// deleted.
func (r *Repository) DeleteSnapshotsInWindow(accountID uuid.UUID, start, end time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result, err := r.db.Exec(
		`DELETE FROM sys_balance_snapshots
		 WHERE account_id = ? AND snapshot_time::DATE >= ?::DATE AND snapshot_time::DATE <= ?::DATE`,
		accountID.String(), fmtDate(start), fmtDate(end),
	)
	if err != nil {
		return 0, fmt.Errorf("deleting snapshots in window: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting deleted snapshots: %w", err)
	}
	return n, nil
}

// CountSnapshots returns the number of balance snapshots.
func (r *Repository) CountSnapshots() (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64
	if err := r.db.QueryRow("SELECT COUNT(*) FROM sys_balance_snapshots").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting snapshots: %w", err)
	}
	return count, nil
}

func scanSnapshot(s scanner) (domain.BalanceSnapshot, error) {
	var (
		snap                           domain.BalanceSnapshot
		idStr, accountIDStr            string
		balanceStr, timeStr, createdAt string
		source                         *string
	)
	err := s.Scan(&idStr, &accountIDStr, &balanceStr, &timeStr, &source, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.BalanceSnapshot{}, err
		}
		return domain.BalanceSnapshot{}, fmt.Errorf("scanning snapshot: %w", err)
	}
	if snap.ID, err = parseUUID(idStr); err != nil {
		return domain.BalanceSnapshot{}, err
	}
	if snap.AccountID, err = parseUUID(accountIDStr); err != nil {
		return domain.BalanceSnapshot{}, err
	}
	if snap.Balance, err = parseDecimal(balanceStr); err != nil {
		return domain.BalanceSnapshot{}, err
	}
	if snap.SnapshotTime, err = parseTimestamp(timeStr); err != nil {
		return domain.BalanceSnapshot{}, err
	}
	if source != nil {
		snap.Source = *source
	}
	if snap.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return domain.BalanceSnapshot{}, err
	}
	return snap, nil
}
