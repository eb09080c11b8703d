// Package demo is an offline data provider that generates a
// deterministic, realistic-looking dataset. It exists so the full sync
// pipeline can be exercised without linking a real aggregator.
package demo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/treeline-app/treeline/internal/domain"
	"github.com/treeline-app/treeline/internal/provider"
)

const historyDays = 180

type demoAccount struct {
	id          uuid.UUID
	externalID  string
	name        string
	nickname    string
	accountType string
	balance     string
	institution string
	currency    string
}

var demoAccounts = []demoAccount{
	{
		id:          uuid.MustParse("11111111-1111-1111-1111-111111111111"),
		externalID:  "demo-checking-001",
		name:        "Primary Checking",
		nickname:    "Checking",
		accountType: "depository",
		balance:     "4823.47",
		institution: "Chase",
		currency:    "USD",
	},
	{
		id:          uuid.MustParse("22222222-2222-2222-2222-222222222222"),
		externalID:  "demo-savings-001",
		name:        "High-Yield Savings",
		nickname:    "Savings",
		accountType: "depository",
		balance:     "18750.00",
		institution: "Marcus",
		currency:    "USD",
	},
	{
		id:          uuid.MustParse("33333333-3333-3333-3333-333333333333"),
		externalID:  "demo-credit-001",
		name:        "Sapphire Reserve",
		nickname:    "Sapphire",
		accountType: "credit",
		balance:     "-2847.63",
		institution: "Chase",
		currency:    "USD",
	},
	{
		id:          uuid.MustParse("44444444-4444-4444-4444-444444444444"),
		externalID:  "demo-credit-002",
		name:        "Citi Double Cash",
		nickname:    "Double Cash",
		accountType: "credit",
		balance:     "-1245.89",
		institution: "Citi",
		currency:    "USD",
	},
	{
		id:          uuid.MustParse("55555555-5555-5555-5555-555555555555"),
		externalID:  "demo-brokerage-001",
		name:        "Individual Brokerage",
		nickname:    "Brokerage",
		accountType: "investment",
		balance:     "47823.15",
		institution: "Fidelity",
		currency:    "USD",
	},
	{
		id:          uuid.MustParse("66666666-6666-6666-6666-666666666666"),
		externalID:  "demo-401k-001",
		name:        "401(k)",
		nickname:    "401k",
		accountType: "investment",
		balance:     "89432.67",
		institution: "Fidelity",
		currency:    "USD",
	},
}

// Provider generates the demo dataset. The zero value is not usable;
// call New.
type Provider struct {
	now func() time.Time
}

// New creates a demo provider.
func New() *Provider {
	return &Provider{now: time.Now}
}

func (p *Provider) Name() string { return "demo" }

// FetchAccounts returns the six fixed demo accounts together with a
// generated daily balance history for each.
func (p *Provider) FetchAccounts(_ context.Context, _ string) (*provider.FetchAccountsResult, error) {
	result := &provider.FetchAccountsResult{}
	today := dateOnly(p.now())

	for _, da := range demoAccounts {
		account := domain.NewAccount(da.id, da.name)
		account.Nickname = strPtr(da.nickname)
		account.AccountType = strPtr(da.accountType)
		classification := domain.ComputeClassification(account.AccountType)
		account.Classification = &classification
		account.Currency = da.currency
		account.InstitutionName = strPtr(da.institution)
		account.SFID = strPtr(da.externalID)
		account.SFName = strPtr(da.name)
		account.SFCurrency = strPtr(da.currency)
		account.SFBalance = strPtr(da.balance)
		result.Accounts = append(result.Accounts, account)

		balance := decimal.RequireFromString(da.balance)
		result.Snapshots = append(result.Snapshots, balanceHistory(da.id, balance, today)...)
	}
	return result, nil
}

// FetchTransactions generates the deterministic transaction patterns
// for the requested accounts within [start, end].
func (p *Provider) FetchTransactions(_ context.Context, start, end time.Time, providerAccountIDs []string, _ string) (*provider.FetchTransactionsResult, error) {
	wanted := make(map[string]bool, len(providerAccountIDs))
	for _, id := range providerAccountIDs {
		wanted[id] = true
	}

	result := &provider.FetchTransactionsResult{}
	today := dateOnly(p.now())
	startDay := dateOnly(start)
	endDay := dateOnly(end)

	for daysAgo := 0; daysAgo < historyDays; daysAgo++ {
		date := today.AddDate(0, 0, -daysAgo)
		if date.Before(startDay) || date.After(endDay) {
			continue
		}
		for _, entry := range dailyEntries(date, daysAgo) {
			if len(wanted) > 0 && !wanted[entry.accountExternalID] {
				continue
			}
			result.Transactions = append(result.Transactions, provider.AccountTransaction{
				ProviderAccountID: entry.accountExternalID,
				Transaction:       buildTransaction(entry, date),
			})
		}
	}
	return result, nil
}

type entry struct {
	accountExternalID string
	amount            string
	description       string
	tags              []string
}

const (
	checking  = "demo-checking-001"
	savings   = "demo-savings-001"
	chaseCard = "demo-credit-001"
	citiCard  = "demo-credit-002"
)

var groceryAmounts = []string{"-85.23", "-67.45", "-92.34", "-71.00", "-58.99", "-105.23"}

var restaurants = []entry{
	{chaseCard, "-12.85", "CHIPOTLE MEXICAN GRILL", []string{"dining"}},
	{chaseCard, "-45.67", "OLIVE GARDEN", []string{"dining"}},
	{chaseCard, "-38.20", "LOCAL THAI KITCHEN", []string{"dining"}},
	{chaseCard, "-18.45", "FIVE GUYS BURGERS", []string{"dining"}},
	{chaseCard, "-62.30", "SAKURA SUSHI", []string{"dining"}},
}

var shops = []entry{
	{citiCard, "-34.99", "AMAZON.COM PURCHASE", []string{"shopping"}},
	{citiCard, "-67.23", "TARGET STORE", []string{"shopping"}},
	{citiCard, "-89.45", "HOME DEPOT", []string{"shopping", "home"}},
	{citiCard, "-129.99", "BEST BUY", []string{"shopping", "electronics"}},
	{citiCard, "-156.78", "COSTCO WHOLESALE", []string{"shopping"}},
}

// dailyEntries returns the transactions that occur on a calendar date.
// Day-of-month drives the recurring bills; daysAgo drives the variable
// spending cadence so regenerating the dataset is stable.
func dailyEntries(date time.Time, daysAgo int) []entry {
	var entries []entry
	day := date.Day()

	if day == 1 || day == 15 {
		entries = append(entries, entry{checking, "4250.00", "ACME CORP PAYROLL DIRECT DEPOSIT", []string{"income", "salary"}})
	}
	if day == 5 {
		entries = append(entries, entry{checking, "-2250.00", "OAKWOOD PROPERTY MGMT RENT", []string{"housing", "rent"}})
	}
	if day == 10 {
		entries = append(entries,
			entry{checking, "-150.00", "CITY POWER AND LIGHT", []string{"utilities"}},
			entry{checking, "-75.00", "COMCAST INTERNET", []string{"utilities"}})
	}
	if day == 16 {
		entries = append(entries,
			entry{checking, "-750.00", "TRANSFER TO SAVINGS", []string{"transfer"}},
			entry{savings, "750.00", "TRANSFER FROM CHECKING", []string{"transfer"}})
	}
	if day == 20 {
		entries = append(entries,
			entry{checking, "-185.00", "STATE FARM INSURANCE", []string{"insurance"}},
			entry{checking, "-1000.00", "CITI CARD PAYMENT", []string{"payment"}},
			entry{citiCard, "1000.00", "PAYMENT THANK YOU", []string{"payment"}})
	}
	if day == 25 {
		entries = append(entries,
			entry{checking, "-2500.00", "CHASE CARD PAYMENT", []string{"payment"}},
			entry{chaseCard, "2500.00", "PAYMENT THANK YOU", []string{"payment"}})
	}
	if day == 3 {
		entries = append(entries, entry{chaseCard, "-15.99", "NETFLIX.COM", []string{"subscriptions"}})
	}
	if day == 7 {
		entries = append(entries, entry{chaseCard, "-10.99", "SPOTIFY USA", []string{"subscriptions"}})
	}
	if day == 12 {
		entries = append(entries, entry{chaseCard, "-9.99", "AMAZON PRIME MEMBERSHIP", []string{"subscriptions"}})
	}
	if day == 15 {
		entries = append(entries, entry{checking, "-49.99", "IRON WORKS GYM", []string{"fitness"}})
	}

	if daysAgo%3 == 0 {
		entries = append(entries, entry{chaseCard, groceryAmounts[daysAgo/3%len(groceryAmounts)], "WHOLE FOODS MARKET", []string{"groceries"}})
	}
	if daysAgo%2 == 0 {
		entries = append(entries, entry{citiCard, "-5.65", "STARBUCKS COFFEE", []string{"dining", "coffee"}})
	}
	if daysAgo%3 == 1 || daysAgo%7 == 0 {
		entries = append(entries, restaurants[daysAgo%len(restaurants)])
	}
	if daysAgo%7 == 0 {
		entries = append(entries, entry{citiCard, "-55.00", "SHELL OIL", []string{"transport", "gas"}})
	}
	if daysAgo%5 == 0 {
		entries = append(entries, shops[daysAgo/5%len(shops)])
	}
	return entries
}

func buildTransaction(e entry, date time.Time) domain.Transaction {
	amount := decimal.RequireFromString(e.amount)
	tx := domain.NewTransaction(uuid.New(), uuid.Nil, amount, date)
	tx.Description = strPtr(e.description)
	tx.Tags = append([]string(nil), e.tags...)

	externalID := externalID(e.accountExternalID, date, amount, e.description)
	tx.SFID = &externalID
	posted := time.Date(date.Year(), date.Month(), date.Day(), 12, 0, 0, 0, time.UTC).Unix()
	tx.SFPosted = &posted
	tx.SFAmount = strPtr(amount.StringFixed(2))
	tx.SFDescription = strPtr(e.description)
	return tx
}

// externalID builds a stable synthetic provider id so repeated syncs
// of the generated dataset deduplicate across runs.
func externalID(accountExternalID string, date time.Time, amount decimal.Decimal, desc string) string {
	amt := strings.NewReplacer("-", "n", ".", "").Replace(amount.StringFixed(2))

	var b strings.Builder
	for _, r := range strings.ToLower(desc) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
		if b.Len() >= 20 {
			break
		}
	}
	return fmt.Sprintf("demo-%s-%s-%s-%s",
		strings.TrimPrefix(accountExternalID, "demo-"),
		date.Format("2006-01-02"), amt, b.String())
}

// lcg is a small linear congruential generator used for the balance
// history wiggle. Seeded with a constant so every run produces the
// same curves.
type lcg struct{ state uint64 }

func (r *lcg) next() uint64 {
	r.state = r.state*6364136223846793005 + 1442695040888963407
	return r.state
}

// jitterCents returns a value in [-1000, 1000].
func (r *lcg) jitterCents() int64 {
	return int64(r.next()%2001) - 1000
}

// balanceHistory walks backwards from today's balance, applying a
// seeded daily wiggle, and emits end-of-day snapshots for the last
// historyDays days.
func balanceHistory(accountID uuid.UUID, current decimal.Decimal, today time.Time) []domain.BalanceSnapshot {
	rng := &lcg{state: 42}
	snapshots := make([]domain.BalanceSnapshot, 0, historyDays)
	balance := current

	for daysAgo := 0; daysAgo < historyDays; daysAgo++ {
		date := today.AddDate(0, 0, -daysAgo)
		at := time.Date(date.Year(), date.Month(), date.Day(), 23, 59, 59, 0, date.Location())
		snapshots = append(snapshots,
			domain.NewBalanceSnapshot(accountID, balance.Round(2), at, domain.SnapshotSourceSync))
		balance = balance.Sub(decimal.New(rng.jitterCents(), -2))
	}
	return snapshots
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func strPtr(s string) *string { return &s }
