package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/treeline-app/treeline/internal/domain"
)

const selectAccountColumns = `a.account_id, a.name, a.nickname, a.account_type, a.classification,
	a.currency, a.institution_name, a.institution_url, a.institution_domain, a.is_manual,
	a.created_at::VARCHAR, a.updated_at::VARCHAR,
	a.sf_id, a.sf_name, a.sf_currency, a.sf_balance, a.sf_available_balance, a.sf_balance_date,
	a.sf_org_name, a.sf_org_url, a.sf_org_domain, CAST(a.sf_extra AS VARCHAR),
	a.lf_id, a.lf_name, a.lf_institution_name, a.lf_institution_logo, a.lf_provider,
	a.lf_currency, a.lf_status,
	(SELECT bs.balance::VARCHAR FROM sys_balance_snapshots bs
	 WHERE bs.account_id = a.account_id
	 ORDER BY bs.snapshot_time DESC LIMIT 1) AS latest_balance`

// ListAccounts returns every account with its derived current balance.
func (r *Repository) ListAccounts() ([]domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(
		"SELECT " + selectAccountColumns + " FROM sys_accounts a ORDER BY a.name",
	)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// GetAccount returns one account by id.
func (r *Repository) GetAccount(id uuid.UUID) (domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row := r.db.QueryRow(
		"SELECT "+selectAccountColumns+" FROM sys_accounts a WHERE a.account_id = ?",
		id.String(),
	)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Account{}, fmt.Errorf("account %s: %w", id, domain.ErrNotFound)
	}
	return account, err
}

// UpsertAccount inserts or merges an account. On conflict, user-owned
// columns (nickname, account_type, classification) keep their existing
// values; provider-owned columns take the incoming value when present.
func (r *Repository) UpsertAccount(a *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(
		`INSERT INTO sys_accounts (account_id, name, nickname, account_type, classification,
			currency, institution_name, institution_url, institution_domain, is_manual,
			created_at, updated_at,
			sf_id, sf_name, sf_currency, sf_balance, sf_available_balance, sf_balance_date,
			sf_org_name, sf_org_url, sf_org_domain, sf_extra,
			lf_id, lf_name, lf_institution_name, lf_institution_logo, lf_provider,
			lf_currency, lf_status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (account_id) DO UPDATE SET
			name = EXCLUDED.name,
			nickname = COALESCE(sys_accounts.nickname, EXCLUDED.nickname),
			account_type = COALESCE(sys_accounts.account_type, EXCLUDED.account_type),
			classification = COALESCE(sys_accounts.classification, EXCLUDED.classification),
			currency = EXCLUDED.currency,
			institution_name = COALESCE(EXCLUDED.institution_name, sys_accounts.institution_name),
			institution_url = COALESCE(EXCLUDED.institution_url, sys_accounts.institution_url),
			institution_domain = COALESCE(EXCLUDED.institution_domain, sys_accounts.institution_domain),
			is_manual = sys_accounts.is_manual,
			updated_at = EXCLUDED.updated_at,
			sf_id = COALESCE(EXCLUDED.sf_id, sys_accounts.sf_id),
			sf_name = COALESCE(EXCLUDED.sf_name, sys_accounts.sf_name),
			sf_currency = COALESCE(EXCLUDED.sf_currency, sys_accounts.sf_currency),
			sf_balance = COALESCE(EXCLUDED.sf_balance, sys_accounts.sf_balance),
			sf_available_balance = COALESCE(EXCLUDED.sf_available_balance, sys_accounts.sf_available_balance),
			sf_balance_date = COALESCE(EXCLUDED.sf_balance_date, sys_accounts.sf_balance_date),
			sf_org_name = COALESCE(EXCLUDED.sf_org_name, sys_accounts.sf_org_name),
			sf_org_url = COALESCE(EXCLUDED.sf_org_url, sys_accounts.sf_org_url),
			sf_org_domain = COALESCE(EXCLUDED.sf_org_domain, sys_accounts.sf_org_domain),
			sf_extra = COALESCE(EXCLUDED.sf_extra, sys_accounts.sf_extra),
			lf_id = COALESCE(EXCLUDED.lf_id, sys_accounts.lf_id),
			lf_name = COALESCE(EXCLUDED.lf_name, sys_accounts.lf_name),
			lf_institution_name = COALESCE(EXCLUDED.lf_institution_name, sys_accounts.lf_institution_name),
			lf_institution_logo = COALESCE(EXCLUDED.lf_institution_logo, sys_accounts.lf_institution_logo),
			lf_provider = COALESCE(EXCLUDED.lf_provider, sys_accounts.lf_provider),
			lf_currency = COALESCE(EXCLUDED.lf_currency, sys_accounts.lf_currency),
			lf_status = COALESCE(EXCLUDED.lf_status, sys_accounts.lf_status)`,
		a.ID.String(), a.Name, a.Nickname, a.AccountType, a.Classification,
		a.Currency, a.InstitutionName, a.InstitutionURL, a.InstitutionDomain, a.IsManual,
		fmtTimestamp(a.CreatedAt), fmtTimestamp(a.UpdatedAt),
		a.SFID, a.SFName, a.SFCurrency, a.SFBalance, a.SFAvailableBalance, a.SFBalanceDate,
		a.SFOrgName, a.SFOrgURL, a.SFOrgDomain, a.SFExtra,
		a.LFID, a.LFName, a.LFInstitutionName, a.LFInstitutionLogo, a.LFProvider,
		a.LFCurrency, a.LFStatus,
	)
	if err != nil {
		return fmt.Errorf("upserting account %s: %w", a.ID, err)
	}
	return nil
}

// DeleteAccountCascade removes an account with its transactions and
// snapshots. Three ordered statements rather than one transaction: the
// engine's FK checks misbehave inside explicit multi-statement
// transactions, and child-first ordering satisfies the constraints.
func (r *Repository) DeleteAccountCascade(id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.db.Exec("DELETE FROM sys_transactions WHERE account_id = ?", id.String()); err != nil {
		return fmt.Errorf("deleting transactions for account %s: %w", id, err)
	}
	if _, err := r.db.Exec("DELETE FROM sys_balance_snapshots WHERE account_id = ?", id.String()); err != nil {
		return fmt.Errorf("deleting snapshots for account %s: %w", id, err)
	}
	result, err := r.db.Exec("DELETE FROM sys_accounts WHERE account_id = ?", id.String())
	if err != nil {
		return fmt.Errorf("deleting account %s: %w", id, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("account %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// CountAccounts returns the number of accounts.
func (r *Repository) CountAccounts() (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64
	if err := r.db.QueryRow("SELECT COUNT(*) FROM sys_accounts").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting accounts: %w", err)
	}
	return count, nil
}

func scanAccount(s scanner) (domain.Account, error) {
	var (
		a                              domain.Account
		idStr, createdStr, updatedStr  string
		latestBalance                  *string
	)
	err := s.Scan(
		&idStr, &a.Name, &a.Nickname, &a.AccountType, &a.Classification,
		&a.Currency, &a.InstitutionName, &a.InstitutionURL, &a.InstitutionDomain, &a.IsManual,
		&createdStr, &updatedStr,
		&a.SFID, &a.SFName, &a.SFCurrency, &a.SFBalance, &a.SFAvailableBalance, &a.SFBalanceDate,
		&a.SFOrgName, &a.SFOrgURL, &a.SFOrgDomain, &a.SFExtra,
		&a.LFID, &a.LFName, &a.LFInstitutionName, &a.LFInstitutionLogo, &a.LFProvider,
		&a.LFCurrency, &a.LFStatus,
		&latestBalance,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Account{}, err
		}
		return domain.Account{}, fmt.Errorf("scanning account: %w", err)
	}
	if a.ID, err = parseUUID(idStr); err != nil {
		return domain.Account{}, err
	}
	if a.CreatedAt, err = parseTimestamp(createdStr); err != nil {
		return domain.Account{}, err
	}
	if a.UpdatedAt, err = parseTimestamp(updatedStr); err != nil {
		return domain.Account{}, err
	}
	if a.Balance, err = optDecimal(latestBalance); err != nil {
		return domain.Account{}, err
	}
	return a, nil
}
