// Package tag applies tags to transactions, both manually and through
// stored auto-tag rules.
package tag

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/treeline-app/treeline/internal/domain"
	"github.com/treeline-app/treeline/internal/repository"
)

// Store is the persistence surface the service needs.
type Store interface {
	GetTransaction(id uuid.UUID) (domain.Transaction, error)
	UpdateTransactionTags(id uuid.UUID, tags []string, autoApplied bool) error
	ListAutoTagRules(enabledOnly bool) ([]domain.AutoTagRule, error)
	UpsertAutoTagRule(rule *domain.AutoTagRule) error
	DeleteAutoTagRule(ruleID string) (bool, error)
	MatchTransactionIDs(condition string, ids []uuid.UUID) ([]uuid.UUID, error)
}

// BatchEntry is the per-transaction outcome of a batch tag operation.
type BatchEntry struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	Tags          []string  `json:"tags,omitempty"`
	Error         string    `json:"error,omitempty"`
}

// BatchResult summarizes a batch tag operation.
type BatchResult struct {
	Updated int          `json:"updated"`
	Failed  int          `json:"failed"`
	Entries []BatchEntry `json:"entries"`
}

// Service tags transactions.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a tag service.
func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Apply merges tags into each transaction's existing set.
func (s *Service) Apply(ids []uuid.UUID, tags []string) (*BatchResult, error) {
	tags = domain.NormalizeTags(tags)
	if len(tags) == 0 {
		return nil, domain.Errorf(domain.KindValidation, "no tags given")
	}
	return s.batch(ids, func(tx *domain.Transaction) []string {
		return domain.NormalizeTags(append(tx.Tags, tags...))
	}), nil
}

// Replace overwrites each transaction's tag set.
func (s *Service) Replace(ids []uuid.UUID, tags []string) (*BatchResult, error) {
	tags = domain.NormalizeTags(tags)
	return s.batch(ids, func(*domain.Transaction) []string {
		return tags
	}), nil
}

// Remove deletes tags from each transaction's set.
func (s *Service) Remove(ids []uuid.UUID, tags []string) (*BatchResult, error) {
	drop := make(map[string]struct{}, len(tags))
	for _, tag := range domain.NormalizeTags(tags) {
		drop[tag] = struct{}{}
	}
	if len(drop) == 0 {
		return nil, domain.Errorf(domain.KindValidation, "no tags given")
	}
	return s.batch(ids, func(tx *domain.Transaction) []string {
		kept := make([]string, 0, len(tx.Tags))
		for _, tag := range tx.Tags {
			if _, ok := drop[tag]; !ok {
				kept = append(kept, tag)
			}
		}
		return kept
	}), nil
}

// batch applies a tag transform to each transaction independently; one
// failure never aborts the rest.
func (s *Service) batch(ids []uuid.UUID, transform func(*domain.Transaction) []string) *BatchResult {
	result := &BatchResult{}
	for _, id := range ids {
		entry := BatchEntry{TransactionID: id}
		tx, err := s.store.GetTransaction(id)
		if err == nil {
			entry.Tags = transform(&tx)
			err = s.store.UpdateTransactionTags(id, entry.Tags, false)
		}
		if err != nil {
			entry.Error = err.Error()
			entry.Tags = nil
			result.Failed++
		} else {
			result.Updated++
		}
		result.Entries = append(result.Entries, entry)
	}
	return result
}

// ApplyRules runs every enabled auto-tag rule against the given
// transactions, in sort order. A rule whose condition fails to execute
// is skipped, not fatal. Rule tags are unioned into any existing tags
// and the transaction is marked auto-tagged.
func (s *Service) ApplyRules(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	rules, err := s.store.ListAutoTagRules(true)
	if err != nil {
		return fmt.Errorf("listing auto-tag rules: %w", err)
	}

	// Collect matches first so overlapping rules stack per transaction.
	pending := make(map[uuid.UUID][]string)
	for _, rule := range rules {
		if err := ctx.Err(); err != nil {
			return err
		}
		matched, err := s.store.MatchTransactionIDs(rule.SQLCondition, ids)
		if err != nil {
			s.logger.Warn("auto-tag rule failed; skipping",
				"rule", rule.RuleID, "error", err)
			continue
		}
		for _, id := range matched {
			pending[id] = append(pending[id], rule.Tags...)
		}
	}

	for id, ruleTags := range pending {
		tx, err := s.store.GetTransaction(id)
		if err != nil {
			return err
		}
		merged := domain.NormalizeTags(append(tx.Tags, ruleTags...))
		if err := s.store.UpdateTransactionTags(id, merged, true); err != nil {
			return err
		}
	}
	return nil
}

// SaveRule validates and stores an auto-tag rule.
func (s *Service) SaveRule(rule *domain.AutoTagRule) error {
	if err := ValidateRule(rule); err != nil {
		return err
	}
	rule.Tags = domain.NormalizeTags(rule.Tags)
	return s.store.UpsertAutoTagRule(rule)
}

// DeleteRule removes a rule by id.
func (s *Service) DeleteRule(ruleID string) error {
	existed, err := s.store.DeleteAutoTagRule(ruleID)
	if err != nil {
		return err
	}
	if !existed {
		return fmt.Errorf("rule %s: %w", ruleID, domain.ErrNotFound)
	}
	return nil
}

// ValidateRule checks a rule before it is stored. The condition is
// screened through the read-only query guard, wrapped as a predicate,
// so a rule can never smuggle a write into rule evaluation.
func ValidateRule(rule *domain.AutoTagRule) error {
	if rule.RuleID == "" {
		return domain.Errorf(domain.KindValidation, "rule id cannot be empty")
	}
	if rule.SQLCondition == "" {
		return domain.Errorf(domain.KindValidation, "rule condition cannot be empty")
	}
	if len(domain.NormalizeTags(rule.Tags)) == 0 {
		return domain.Errorf(domain.KindValidation, "rule must carry at least one tag")
	}
	probe := "SELECT 1 FROM transactions WHERE (" + rule.SQLCondition + " )"
	if err := repository.ValidateReadOnly(probe); err != nil {
		return domain.Errorf(domain.KindValidation, "rule condition rejected: %v", err)
	}
	return nil
}
