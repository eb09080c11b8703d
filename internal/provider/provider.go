// Package provider defines the normalized contract between the sync
// engine and external financial-data sources.
package provider

import (
	"context"
	"time"

	"github.com/treeline-app/treeline/internal/domain"
)

// AccountTransaction pairs a fetched transaction with the provider's
// own account id; the sync engine maps that id to an internal account.
type AccountTransaction struct {
	ProviderAccountID string
	Transaction       domain.Transaction
}

// FetchAccountsResult is the normalized output of an account fetch.
// Warnings carry provider-reported, non-fatal problems.
type FetchAccountsResult struct {
	Accounts  []domain.Account
	Snapshots []domain.BalanceSnapshot
	Warnings  []string
}

// FetchTransactionsResult is the normalized output of a transaction
// fetch.
type FetchTransactionsResult struct {
	Transactions []AccountTransaction
	Warnings     []string
}

// DataProvider fetches accounts and transactions from one external
// source. Implementations fill their own projection columns on the
// returned entities; the sync engine never sees the wire format.
type DataProvider interface {
	Name() string
	FetchAccounts(ctx context.Context, settings string) (*FetchAccountsResult, error)
	FetchTransactions(ctx context.Context, start, end time.Time, providerAccountIDs []string, settings string) (*FetchTransactionsResult, error)
}

// SetupProvider is implemented by providers that turn one-time setup
// options into persistent integration settings.
type SetupProvider interface {
	Setup(ctx context.Context, options string) (settings string, err error)
}

// AccountID returns the provider-assigned id recorded on an account
// for the named provider, or empty.
func AccountID(name string, a *domain.Account) string {
	switch name {
	case "lunchflow":
		if a.LFID != nil {
			return *a.LFID
		}
	default:
		// simplefin and demo share the SimpleFIN projection.
		if a.SFID != nil {
			return *a.SFID
		}
	}
	return ""
}

// TransactionID returns the provider-assigned id recorded on a
// transaction for the named provider, or empty.
func TransactionID(name string, t *domain.Transaction) string {
	switch name {
	case "lunchflow":
		if t.LFID != nil {
			return *t.LFID
		}
	default:
		if t.SFID != nil {
			return *t.SFID
		}
	}
	return ""
}
