package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/treeline-app/treeline/internal/domain"
)

// ListIntegrations returns all configured integrations.
func (r *Repository) ListIntegrations() ([]domain.Integration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(
		"SELECT integration_name, CAST(integration_settings AS VARCHAR), created_at::VARCHAR, updated_at::VARCHAR FROM sys_integrations ORDER BY integration_name",
	)
	if err != nil {
		return nil, fmt.Errorf("listing integrations: %w", err)
	}
	defer rows.Close()

	var integrations []domain.Integration
	for rows.Next() {
		integration, err := scanIntegration(rows)
		if err != nil {
			return nil, err
		}
		integrations = append(integrations, integration)
	}
	return integrations, rows.Err()
}

// GetIntegration returns one integration by name.
func (r *Repository) GetIntegration(name string) (domain.Integration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row := r.db.QueryRow(
		"SELECT integration_name, CAST(integration_settings AS VARCHAR), created_at::VARCHAR, updated_at::VARCHAR FROM sys_integrations WHERE integration_name = ?",
		name,
	)
	integration, err := scanIntegration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Integration{}, fmt.Errorf("integration %q: %w", name, domain.ErrNotFound)
	}
	return integration, err
}

// UpsertIntegration stores integration settings under a name.
func (r *Repository) UpsertIntegration(name, settings string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(
		`INSERT INTO sys_integrations (integration_name, integration_settings)
		 VALUES (?, ?)
		 ON CONFLICT (integration_name) DO UPDATE SET
			integration_settings = EXCLUDED.integration_settings,
			updated_at = CURRENT_TIMESTAMP`,
		name, settings,
	)
	if err != nil {
		return fmt.Errorf("upserting integration %q: %w", name, err)
	}
	return nil
}

// DeleteIntegration removes an integration. Reports whether it
// existed.
func (r *Repository) DeleteIntegration(name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result, err := r.db.Exec("DELETE FROM sys_integrations WHERE integration_name = ?", name)
	if err != nil {
		return false, fmt.Errorf("deleting integration %q: %w", name, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking integration delete: %w", err)
	}
	return n > 0, nil
}

func scanIntegration(s scanner) (domain.Integration, error) {
	var (
		integration            domain.Integration
		createdStr, updatedStr string
	)
	err := s.Scan(&integration.Name, &integration.Settings, &createdStr, &updatedStr)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Integration{}, err
		}
		return domain.Integration{}, fmt.Errorf("scanning integration: %w", err)
	}
	if integration.CreatedAt, err = parseTimestamp(createdStr); err != nil {
		return domain.Integration{}, err
	}
	if integration.UpdatedAt, err = parseTimestamp(updatedStr); err != nil {
		return domain.Integration{}, err
	}
	return integration, nil
}
