package tag

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treeline-app/treeline/internal/domain"
)

type fakeStore struct {
	transactions map[uuid.UUID]*domain.Transaction
	rules        []domain.AutoTagRule

	// condition substring -> matching transaction ids
	matches map[string][]uuid.UUID
	// condition substring -> forced error
	matchErrs map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		transactions: map[uuid.UUID]*domain.Transaction{},
		matches:      map[string][]uuid.UUID{},
		matchErrs:    map[string]error{},
	}
}

func (s *fakeStore) addTransaction(tags ...string) uuid.UUID {
	id := uuid.New()
	tx := domain.NewTransaction(id, uuid.New(), decimal.RequireFromString("-10.00"),
		time.Date(2026, time.August, 20, 0, 0, 0, 0, time.UTC))
	tx.Tags = tags
	s.transactions[id] = &tx
	return id
}

func (s *fakeStore) GetTransaction(id uuid.UUID) (domain.Transaction, error) {
	tx, ok := s.transactions[id]
	if !ok {
		return domain.Transaction{}, domain.ErrNotFound
	}
	return *tx, nil
}

func (s *fakeStore) UpdateTransactionTags(id uuid.UUID, tags []string, autoApplied bool) error {
	tx, ok := s.transactions[id]
	if !ok {
		return domain.ErrNotFound
	}
	tx.Tags = tags
	tx.TagsAutoApplied = autoApplied
	return nil
}

func (s *fakeStore) ListAutoTagRules(enabledOnly bool) ([]domain.AutoTagRule, error) {
	if !enabledOnly {
		return s.rules, nil
	}
	var enabled []domain.AutoTagRule
	for _, r := range s.rules {
		if r.Enabled {
			enabled = append(enabled, r)
		}
	}
	return enabled, nil
}

func (s *fakeStore) UpsertAutoTagRule(rule *domain.AutoTagRule) error {
	s.rules = append(s.rules, *rule)
	return nil
}

func (s *fakeStore) DeleteAutoTagRule(ruleID string) (bool, error) {
	for i, r := range s.rules {
		if r.RuleID == ruleID {
			s.rules = append(s.rules[:i], s.rules[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) MatchTransactionIDs(condition string, ids []uuid.UUID) ([]uuid.UUID, error) {
	for substr, err := range s.matchErrs {
		if strings.Contains(condition, substr) {
			return nil, err
		}
	}
	requested := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		requested[id] = true
	}
	var matched []uuid.UUID
	for substr, candidates := range s.matches {
		if !strings.Contains(condition, substr) {
			continue
		}
		for _, id := range candidates {
			if requested[id] {
				matched = append(matched, id)
			}
		}
	}
	return matched, nil
}

func newTestService(store Store) *Service {
	return NewService(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestApplyMergesTags(t *testing.T) {
	store := newFakeStore()
	id := store.addTransaction("dining")
	svc := newTestService(store)

	result, err := svc.Apply([]uuid.UUID{id}, []string{"coffee", "dining"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, []string{"dining", "coffee"}, store.transactions[id].Tags)
	assert.False(t, store.transactions[id].TagsAutoApplied)
}

func TestApplyRejectsEmptyTags(t *testing.T) {
	svc := newTestService(newFakeStore())
	_, err := svc.Apply([]uuid.UUID{uuid.New()}, []string{"  ", ""})
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestReplaceOverwritesTags(t *testing.T) {
	store := newFakeStore()
	id := store.addTransaction("old", "stale")
	svc := newTestService(store)

	result, err := svc.Replace([]uuid.UUID{id}, []string{"fresh"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, []string{"fresh"}, store.transactions[id].Tags)
}

func TestRemoveDropsTags(t *testing.T) {
	store := newFakeStore()
	id := store.addTransaction("keep", "drop")
	svc := newTestService(store)

	result, err := svc.Remove([]uuid.UUID{id}, []string{"drop"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, []string{"keep"}, store.transactions[id].Tags)
}

func TestBatchIsolatesFailures(t *testing.T) {
	store := newFakeStore()
	good := store.addTransaction()
	missing := uuid.New()
	svc := newTestService(store)

	result, err := svc.Apply([]uuid.UUID{good, missing}, []string{"tagged"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Entries, 2)
	assert.Empty(t, result.Entries[0].Error)
	assert.NotEmpty(t, result.Entries[1].Error)
}

func TestApplyRules(t *testing.T) {
	store := newFakeStore()
	coffee := store.addTransaction("manual")
	payroll := store.addTransaction()
	untouched := store.addTransaction()

	store.rules = []domain.AutoTagRule{
		{RuleID: "r1", SQLCondition: "description ILIKE '%starbucks%'", Tags: []string{"coffee", "dining"}, Enabled: true},
		{RuleID: "r2", SQLCondition: "amount > 1000", Tags: []string{"income"}, Enabled: true},
		{RuleID: "r3", SQLCondition: "description ILIKE '%never%'", Tags: []string{"nope"}, Enabled: false},
	}
	store.matches["starbucks"] = []uuid.UUID{coffee}
	store.matches["amount > 1000"] = []uuid.UUID{payroll}
	store.matches["never"] = []uuid.UUID{untouched}

	svc := newTestService(store)
	require.NoError(t, svc.ApplyRules(context.Background(), []uuid.UUID{coffee, payroll, untouched}))

	assert.Equal(t, []string{"manual", "coffee", "dining"}, store.transactions[coffee].Tags)
	assert.True(t, store.transactions[coffee].TagsAutoApplied)
	assert.Equal(t, []string{"income"}, store.transactions[payroll].Tags)
	assert.Empty(t, store.transactions[untouched].Tags)
	assert.False(t, store.transactions[untouched].TagsAutoApplied)
}

func TestApplyRulesSkipsFailingRule(t *testing.T) {
	store := newFakeStore()
	id := store.addTransaction()

	store.rules = []domain.AutoTagRule{
		{RuleID: "bad", SQLCondition: "no_such_column = 1", Tags: []string{"x"}, Enabled: true},
		{RuleID: "good", SQLCondition: "amount < 0", Tags: []string{"expense"}, Enabled: true},
	}
	store.matchErrs["no_such_column"] = errors.New("binder error")
	store.matches["amount < 0"] = []uuid.UUID{id}

	svc := newTestService(store)
	require.NoError(t, svc.ApplyRules(context.Background(), []uuid.UUID{id}))
	assert.Equal(t, []string{"expense"}, store.transactions[id].Tags)
}

func TestValidateRule(t *testing.T) {
	tests := []struct {
		name    string
		rule    domain.AutoTagRule
		wantErr bool
	}{
		{
			"Valid",
			domain.AutoTagRule{RuleID: "r1", SQLCondition: "description ILIKE '%uber%'", Tags: []string{"transport"}},
			false,
		},
		{
			"EmptyCondition",
			domain.AutoTagRule{RuleID: "r1", Tags: []string{"transport"}},
			true,
		},
		{
			"NoTags",
			domain.AutoTagRule{RuleID: "r1", SQLCondition: "amount < 0"},
			true,
		},
		{
			"WriteInCondition",
			domain.AutoTagRule{RuleID: "r1", SQLCondition: "1=1); DELETE FROM transactions; --", Tags: []string{"x"}},
			true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRule(&tt.rule)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
