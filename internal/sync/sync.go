// Package sync pulls accounts, balances and transactions from
// configured data providers into the local store.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/treeline-app/treeline/internal/domain"
	"github.com/treeline-app/treeline/internal/provider"
)

// How far back each sync mode reaches. Incremental syncs overlap the
// known history so late-posting transactions are not missed; dedup
// absorbs the overlap.
const (
	incrementalOverlapDays = 7
	initialLookbackDays    = 90
)

// Sync modes.
const (
	ModeInitial     = "initial"
	ModeIncremental = "incremental"
)

// Store is the persistence surface the engine needs.
type Store interface {
	ListAccounts() ([]domain.Account, error)
	UpsertAccount(a *domain.Account) error
	InsertSnapshot(snap *domain.BalanceSnapshot) (bool, error)
	InsertTransactionIfAbsent(tx *domain.Transaction) (bool, error)
	TransactionExistsBySFID(sfID string) (bool, error)
	TransactionExistsByLFID(lfID string) (bool, error)
	FingerprintExists(fingerprint string) (bool, error)
	MaxTransactionDate() (*time.Time, error)
	ListIntegrations() ([]domain.Integration, error)
}

// Tagger applies auto-tag rules to freshly inserted transactions.
type Tagger interface {
	ApplyRules(ctx context.Context, ids []uuid.UUID) error
}

// Options control one sync run.
type Options struct {
	// DryRun fetches and classifies but writes nothing.
	DryRun bool
	// Integration restricts the run to one configured integration.
	Integration string
}

// IntegrationResult summarizes one integration's part of a run.
type IntegrationResult struct {
	Integration       string    `json:"integration"`
	Mode              string    `json:"mode"`
	WindowStart       time.Time `json:"window_start"`
	WindowEnd         time.Time `json:"window_end"`
	AccountsSynced    int       `json:"accounts_synced"`
	SnapshotsRecorded int       `json:"snapshots_recorded"`
	Discovered        int       `json:"discovered"`
	New               int       `json:"new"`
	Skipped           int       `json:"skipped"`
	Warnings          []string  `json:"warnings,omitempty"`
	Error             string    `json:"error,omitempty"`
}

// Result summarizes a whole run.
type Result struct {
	DryRun       bool                `json:"dry_run"`
	StartedAt    time.Time           `json:"started_at"`
	FinishedAt   time.Time           `json:"finished_at"`
	Integrations []IntegrationResult `json:"integrations"`
}

// Engine runs syncs against every configured integration. A failing
// integration never aborts the run; its error lands in the result.
type Engine struct {
	store     Store
	providers map[string]provider.DataProvider
	tagger    Tagger
	logger    *slog.Logger
	now       func() time.Time
}

// NewEngine creates a sync engine. tagger may be nil.
func NewEngine(store Store, providers []provider.DataProvider, tagger Tagger, logger *slog.Logger) *Engine {
	byName := make(map[string]provider.DataProvider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &Engine{
		store:     store,
		providers: byName,
		tagger:    tagger,
		logger:    logger,
		now:       time.Now,
	}
}

// Run syncs every configured integration (or just opts.Integration).
func (e *Engine) Run(ctx context.Context, opts Options) (*Result, error) {
	integrations, err := e.store.ListIntegrations()
	if err != nil {
		return nil, fmt.Errorf("listing integrations: %w", err)
	}

	result := &Result{DryRun: opts.DryRun, StartedAt: e.now().UTC()}
	for _, integration := range integrations {
		if opts.Integration != "" && integration.Name != opts.Integration {
			continue
		}
		ir := e.runOne(ctx, integration, opts.DryRun)
		result.Integrations = append(result.Integrations, ir)
	}
	result.FinishedAt = e.now().UTC()

	if opts.Integration != "" && len(result.Integrations) == 0 {
		return nil, domain.Errorf(domain.KindNotFound, "integration %q is not configured", opts.Integration)
	}
	return result, nil
}

func (e *Engine) runOne(ctx context.Context, integration domain.Integration, dryRun bool) IntegrationResult {
	ir := IntegrationResult{Integration: integration.Name}

	p, ok := e.providers[integration.Name]
	if !ok {
		ir.Error = fmt.Sprintf("no provider registered for integration %q", integration.Name)
		return ir
	}

	log := e.logger.With("integration", integration.Name, "dry_run", dryRun)
	log.Info("sync started")

	idMap, err := e.syncAccounts(ctx, p, integration.Settings, dryRun, &ir)
	if err != nil {
		ir.Error = err.Error()
		log.Error("sync failed", "error", err)
		return ir
	}
	if err := e.syncTransactions(ctx, p, integration.Settings, dryRun, idMap, &ir); err != nil {
		ir.Error = err.Error()
		log.Error("sync failed", "error", err)
		return ir
	}

	log.Info("sync finished",
		"mode", ir.Mode,
		"accounts", ir.AccountsSynced,
		"discovered", ir.Discovered,
		"new", ir.New,
		"skipped", ir.Skipped)
	return ir
}

// syncAccounts upserts the provider's accounts and balance snapshots
// and returns the provider-id to internal-id map, including accounts
// first seen on this run.
func (e *Engine) syncAccounts(ctx context.Context, p provider.DataProvider, settings string, dryRun bool, ir *IntegrationResult) (map[string]uuid.UUID, error) {
	fetched, err := p.FetchAccounts(ctx, settings)
	if err != nil {
		return nil, fmt.Errorf("fetching accounts: %w", err)
	}
	ir.Warnings = append(ir.Warnings, fetched.Warnings...)

	idMap, err := e.existingAccountIDs(p.Name())
	if err != nil {
		return nil, err
	}

	// Accounts arrive with fresh ids; accounts already known to this
	// provider keep their stored id, and their snapshots follow.
	remap := make(map[uuid.UUID]uuid.UUID, len(fetched.Accounts))
	for i := range fetched.Accounts {
		account := &fetched.Accounts[i]
		externalID := provider.AccountID(p.Name(), account)
		if externalID == "" {
			ir.Warnings = append(ir.Warnings, fmt.Sprintf("account %q has no provider id; skipped", account.Name))
			continue
		}
		if existingID, ok := idMap[externalID]; ok {
			remap[account.ID] = existingID
			account.ID = existingID
		} else {
			idMap[externalID] = account.ID
		}
		if !dryRun {
			if err := e.store.UpsertAccount(account); err != nil {
				return nil, err
			}
		}
		ir.AccountsSynced++
	}

	for i := range fetched.Snapshots {
		snap := fetched.Snapshots[i]
		if mapped, ok := remap[snap.AccountID]; ok {
			snap.AccountID = mapped
		}
		if dryRun {
			continue
		}
		inserted, err := e.store.InsertSnapshot(&snap)
		if err != nil {
			return nil, err
		}
		if inserted {
			ir.SnapshotsRecorded++
		}
	}
	return idMap, nil
}

func (e *Engine) syncTransactions(ctx context.Context, p provider.DataProvider, settings string, dryRun bool, idMap map[string]uuid.UUID, ir *IntegrationResult) error {
	start, end, mode, err := e.window()
	if err != nil {
		return err
	}
	ir.Mode = mode
	ir.WindowStart = start
	ir.WindowEnd = end

	providerIDs := make([]string, 0, len(idMap))
	for externalID := range idMap {
		providerIDs = append(providerIDs, externalID)
	}
	if len(providerIDs) == 0 {
		return nil
	}

	fetched, err := p.FetchTransactions(ctx, start, end, providerIDs, settings)
	if err != nil {
		return fmt.Errorf("fetching transactions: %w", err)
	}
	ir.Warnings = append(ir.Warnings, fetched.Warnings...)

	var newIDs []uuid.UUID
	for _, at := range fetched.Transactions {
		ir.Discovered++

		accountID, ok := idMap[at.ProviderAccountID]
		if !ok {
			ir.Warnings = append(ir.Warnings,
				fmt.Sprintf("transaction for unknown account %q; skipped", at.ProviderAccountID))
			ir.Skipped++
			continue
		}

		tx := at.Transaction
		tx.AccountID = accountID
		tx.EnsureFingerprint()

		duplicate, err := e.isDuplicate(p.Name(), &tx)
		if err != nil {
			return err
		}
		if duplicate {
			ir.Skipped++
			continue
		}

		if dryRun {
			ir.New++
			continue
		}
		inserted, err := e.store.InsertTransactionIfAbsent(&tx)
		if err != nil {
			return err
		}
		if !inserted {
			ir.Skipped++
			continue
		}
		ir.New++
		newIDs = append(newIDs, tx.ID)
	}

	if !dryRun && e.tagger != nil && len(newIDs) > 0 {
		if err := e.tagger.ApplyRules(ctx, newIDs); err != nil {
			ir.Warnings = append(ir.Warnings, fmt.Sprintf("auto-tagging: %v", err))
		}
	}
	return nil
}

// isDuplicate applies the two dedup paths: the provider's own id, then
// the content fingerprint (catching rows already present from CSV
// imports or another provider).
func (e *Engine) isDuplicate(providerName string, tx *domain.Transaction) (bool, error) {
	if externalID := provider.TransactionID(providerName, tx); externalID != "" {
		var (
			exists bool
			err    error
		)
		if providerName == "lunchflow" {
			exists, err = e.store.TransactionExistsByLFID(externalID)
		} else {
			exists, err = e.store.TransactionExistsBySFID(externalID)
		}
		if err != nil {
			return false, err
		}
		if exists {
			return true, nil
		}
	}
	return e.store.FingerprintExists(*tx.CSVFingerprint)
}

// window picks the sync date range. With existing history the window
// starts a week before the newest live transaction; an empty store
// does a 90-day initial pull.
func (e *Engine) window() (start, end time.Time, mode string, err error) {
	today := e.now().UTC().Truncate(24 * time.Hour)
	maxDate, err := e.store.MaxTransactionDate()
	if err != nil {
		return time.Time{}, time.Time{}, "", err
	}
	if maxDate == nil {
		return today.AddDate(0, 0, -initialLookbackDays), today, ModeInitial, nil
	}
	return maxDate.AddDate(0, 0, -incrementalOverlapDays), today, ModeIncremental, nil
}

func (e *Engine) existingAccountIDs(providerName string) (map[string]uuid.UUID, error) {
	accounts, err := e.store.ListAccounts()
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	idMap := make(map[string]uuid.UUID)
	for i := range accounts {
		if externalID := provider.AccountID(providerName, &accounts[i]); externalID != "" {
			idMap[externalID] = accounts[i].ID
		}
	}
	return idMap, nil
}
