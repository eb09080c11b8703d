package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/treeline-app/treeline/internal/domain"
)

const selectRuleColumns = `rule_id, name, sql_condition, CAST(tags AS VARCHAR), enabled, sort_order,
	created_at::VARCHAR, updated_at::VARCHAR`

// ListAutoTagRules returns all rules ordered by sort order then
// creation time. enabledOnly restricts the list to enabled rules.
func (r *Repository) ListAutoTagRules(enabledOnly bool) ([]domain.AutoTagRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	query := "SELECT " + selectRuleColumns + " FROM sys_auto_tag_rules"
	if enabledOnly {
		query += " WHERE enabled"
	}
	query += " ORDER BY sort_order, created_at"

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("listing auto-tag rules: %w", err)
	}
	defer rows.Close()

	var rules []domain.AutoTagRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// GetAutoTagRule returns one rule by id.
func (r *Repository) GetAutoTagRule(ruleID string) (domain.AutoTagRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row := r.db.QueryRow("SELECT "+selectRuleColumns+" FROM sys_auto_tag_rules WHERE rule_id = ?", ruleID)
	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.AutoTagRule{}, fmt.Errorf("auto-tag rule %q: %w", ruleID, domain.ErrNotFound)
	}
	return rule, err
}

// UpsertAutoTagRule inserts or replaces a rule.
func (r *Repository) UpsertAutoTagRule(rule *domain.AutoTagRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	query := fmt.Sprintf(
		`INSERT INTO sys_auto_tag_rules (rule_id, name, sql_condition, tags, enabled, sort_order)
		 VALUES (?, ?, ?, %s, ?, ?)
		 ON CONFLICT (rule_id) DO UPDATE SET
			name = EXCLUDED.name,
			sql_condition = EXCLUDED.sql_condition,
			tags = EXCLUDED.tags,
			enabled = EXCLUDED.enabled,
			sort_order = EXCLUDED.sort_order,
			updated_at = CURRENT_TIMESTAMP`,
		formatArrayLiteral(domain.NormalizeTags(rule.Tags)),
	)
	if _, err := r.db.Exec(query, rule.RuleID, rule.Name, rule.SQLCondition, rule.Enabled, rule.SortOrder); err != nil {
		return fmt.Errorf("upserting auto-tag rule %q: %w", rule.RuleID, err)
	}
	return nil
}

// DeleteAutoTagRule removes a rule. Reports whether it existed.
func (r *Repository) DeleteAutoTagRule(ruleID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result, err := r.db.Exec("DELETE FROM sys_auto_tag_rules WHERE rule_id = ?", ruleID)
	if err != nil {
		return false, fmt.Errorf("deleting auto-tag rule %q: %w", ruleID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rule delete: %w", err)
	}
	return n > 0, nil
}

// MatchTransactionIDs evaluates a rule predicate over the transactions
// view, restricted to the given candidate ids, and returns the subset
// that match.
func (r *Repository) MatchTransactionIDs(condition string, ids []uuid.UUID) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	query := fmt.Sprintf(
		"SELECT transaction_id FROM transactions WHERE (%s) AND transaction_id IN (%s)",
		condition, placeholders,
	)
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id.String()
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("evaluating rule condition: %w", err)
	}
	defer rows.Close()

	var matched []uuid.UUID
	for rows.Next() {
		var idStr string
		if err := rows.Scan(&idStr); err != nil {
			return nil, fmt.Errorf("scanning matched id: %w", err)
		}
		id, err := parseUUID(idStr)
		if err != nil {
			return nil, err
		}
		matched = append(matched, id)
	}
	return matched, rows.Err()
}

func scanRule(s scanner) (domain.AutoTagRule, error) {
	var (
		rule                   domain.AutoTagRule
		tagsStr                *string
		createdStr, updatedStr string
	)
	err := s.Scan(&rule.RuleID, &rule.Name, &rule.SQLCondition, &tagsStr, &rule.Enabled, &rule.SortOrder, &createdStr, &updatedStr)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.AutoTagRule{}, err
		}
		return domain.AutoTagRule{}, fmt.Errorf("scanning auto-tag rule: %w", err)
	}
	if tagsStr != nil {
		rule.Tags = parseArray(*tagsStr)
	}
	if rule.CreatedAt, err = parseTimestamp(createdStr); err != nil {
		return domain.AutoTagRule{}, err
	}
	if rule.UpdatedAt, err = parseTimestamp(updatedStr); err != nil {
		return domain.AutoTagRule{}, err
	}
	return rule, nil
}
