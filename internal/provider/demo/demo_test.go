package demo

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedProvider() *Provider {
	p := New()
	p.now = func() time.Time {
		return time.Date(2026, time.August, 31, 14, 30, 0, 0, time.UTC)
	}
	return p
}

func TestFetchAccounts(t *testing.T) {
	p := fixedProvider()
	result, err := p.FetchAccounts(context.Background(), "")
	require.NoError(t, err)

	require.Len(t, result.Accounts, 6)
	assert.Len(t, result.Snapshots, 6*historyDays)

	byName := map[string]bool{}
	for _, a := range result.Accounts {
		byName[a.Name] = true
		require.NotNil(t, a.SFID)
		assert.False(t, a.IsManual)
	}
	assert.True(t, byName["Primary Checking"])
	assert.True(t, byName["Sapphire Reserve"])
	assert.True(t, byName["401(k)"])

	checking := result.Accounts[0]
	require.NotNil(t, checking.SFBalance)
	assert.Equal(t, "4823.47", *checking.SFBalance)
}

func TestFetchAccountsIsDeterministic(t *testing.T) {
	p := fixedProvider()
	first, err := p.FetchAccounts(context.Background(), "")
	require.NoError(t, err)
	second, err := p.FetchAccounts(context.Background(), "")
	require.NoError(t, err)

	require.Equal(t, len(first.Snapshots), len(second.Snapshots))
	for i := range first.Snapshots {
		assert.True(t, first.Snapshots[i].Balance.Equal(second.Snapshots[i].Balance))
		assert.Equal(t, first.Snapshots[i].SnapshotTime, second.Snapshots[i].SnapshotTime)
	}
}

func TestFetchTransactionsWindow(t *testing.T) {
	p := fixedProvider()
	start := time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, time.August, 31, 0, 0, 0, 0, time.UTC)

	result, err := p.FetchTransactions(context.Background(), start, end, nil, "")
	require.NoError(t, err)
	require.NotEmpty(t, result.Transactions)

	sawPayroll := false
	for _, at := range result.Transactions {
		tx := at.Transaction
		assert.False(t, tx.TransactionDate.Before(start))
		assert.False(t, tx.TransactionDate.After(end))
		require.NotNil(t, tx.SFID)
		if tx.Description != nil && *tx.Description == "ACME CORP PAYROLL DIRECT DEPOSIT" {
			sawPayroll = true
			assert.True(t, tx.Amount.Equal(decimal.RequireFromString("4250.00")))
			assert.Equal(t, []string{"income", "salary"}, tx.Tags)
		}
	}
	assert.True(t, sawPayroll, "expected payroll on the 1st and 15th")
}

func TestFetchTransactionsAccountFilter(t *testing.T) {
	p := fixedProvider()
	start := time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, time.August, 31, 0, 0, 0, 0, time.UTC)

	result, err := p.FetchTransactions(context.Background(), start, end, []string{savings}, "")
	require.NoError(t, err)
	require.NotEmpty(t, result.Transactions)
	for _, at := range result.Transactions {
		assert.Equal(t, savings, at.ProviderAccountID)
	}
}

func TestExternalIDsStableAcrossRuns(t *testing.T) {
	p := fixedProvider()
	start := time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, time.August, 31, 0, 0, 0, 0, time.UTC)

	first, err := p.FetchTransactions(context.Background(), start, end, nil, "")
	require.NoError(t, err)
	second, err := p.FetchTransactions(context.Background(), start, end, nil, "")
	require.NoError(t, err)

	require.Equal(t, len(first.Transactions), len(second.Transactions))
	for i := range first.Transactions {
		assert.Equal(t, *first.Transactions[i].Transaction.SFID, *second.Transactions[i].Transaction.SFID)
	}
}

func TestExternalIDShape(t *testing.T) {
	id := externalID(checking, time.Date(2026, time.August, 15, 0, 0, 0, 0, time.UTC),
		decimal.RequireFromString("-2250.00"), "OAKWOOD PROPERTY MGMT RENT")
	assert.Equal(t, "demo-checking-001-2026-08-15-n225000-oakwoodpropertymgmtr", id)
}
