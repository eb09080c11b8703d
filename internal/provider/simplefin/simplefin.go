// Package simplefin implements the SimpleFIN bridge protocol
// (https://www.simplefin.org/protocol.html) as a data provider.
package simplefin

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/treeline-app/treeline/internal/domain"
	"github.com/treeline-app/treeline/internal/provider"
)

const requestTimeout = 30 * time.Second

// Settings is the persisted integration configuration.
type Settings struct {
	AccessURL string `json:"accessUrl"`
}

// SetupOptions is the one-time setup input: either a claim token from
// the bridge or a ready access URL.
type SetupOptions struct {
	SetupToken string `json:"setupToken,omitempty"`
	AccessURL  string `json:"accessUrl,omitempty"`
}

// Provider talks to a SimpleFIN bridge over HTTPS.
type Provider struct {
	client *http.Client
}

// New creates a SimpleFIN provider.
func New() *Provider {
	return &Provider{client: &http.Client{Timeout: requestTimeout}}
}

func (p *Provider) Name() string { return "simplefin" }

// ValidateAccessURL checks that an access URL is usable: HTTPS, a
// simplefin.org host and embedded basic-auth credentials.
func ValidateAccessURL(accessURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(accessURL))
	if err != nil {
		return nil, domain.Errorf(domain.KindValidation, "invalid access url: %v", err)
	}
	if u.Scheme != "https" {
		return nil, domain.Errorf(domain.KindValidation, "access url must use https")
	}
	host := u.Hostname()
	if host != "simplefin.org" && !strings.HasSuffix(host, ".simplefin.org") {
		return nil, domain.Errorf(domain.KindValidation, "access url host must be a simplefin.org domain")
	}
	if u.User == nil || u.User.Username() == "" {
		return nil, domain.Errorf(domain.KindValidation, "access url must embed credentials")
	}
	if _, ok := u.User.Password(); !ok {
		return nil, domain.Errorf(domain.KindValidation, "access url must embed credentials")
	}
	return u, nil
}

// Setup resolves setup options into persistent settings. A claim token
// is base64-decoded into a claim URL and exchanged, once, for the
// access URL; the token is burned by the bridge afterwards.
func (p *Provider) Setup(ctx context.Context, options string) (string, error) {
	var opts SetupOptions
	if err := json.Unmarshal([]byte(options), &opts); err != nil {
		return "", domain.Errorf(domain.KindValidation, "invalid setup options: %v", err)
	}

	accessURL := strings.TrimSpace(opts.AccessURL)
	if accessURL == "" {
		token := strings.TrimSpace(opts.SetupToken)
		if token == "" {
			return "", domain.Errorf(domain.KindValidation, "either setupToken or accessUrl is required")
		}
		claimed, err := p.claimToken(ctx, token)
		if err != nil {
			return "", err
		}
		accessURL = claimed
	}

	if _, err := ValidateAccessURL(accessURL); err != nil {
		return "", err
	}

	settings, err := json.Marshal(Settings{AccessURL: accessURL})
	if err != nil {
		return "", domain.NewError(domain.KindSerialization, err)
	}
	return string(settings), nil
}

func (p *Provider) claimToken(ctx context.Context, token string) (string, error) {
	decoded, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", domain.Errorf(domain.KindValidation, "setup token is not valid base64: %v", err)
	}
	claimURL := strings.TrimSpace(string(decoded))
	if !strings.HasPrefix(claimURL, "https://") {
		return "", domain.Errorf(domain.KindValidation, "setup token must decode to an https claim url")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, claimURL, nil)
	if err != nil {
		return "", domain.NewError(domain.KindSync, err)
	}
	req.Header.Set("Content-Length", "0")
	resp, err := p.client.Do(req)
	if err != nil {
		return "", domain.Errorf(domain.KindSync, "claiming setup token: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", domain.NewError(domain.KindSync, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", domain.Errorf(domain.KindSync, "claim failed with status %d", resp.StatusCode)
	}
	return strings.TrimSpace(string(body)), nil
}

// wire types

type accountSet struct {
	Errors   []string      `json:"errors"`
	Accounts []wireAccount `json:"accounts"`
}

type wireAccount struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Currency         string            `json:"currency"`
	Balance          string            `json:"balance"`
	AvailableBalance string            `json:"available-balance"`
	BalanceDate      int64             `json:"balance-date"`
	Org              wireOrg           `json:"org"`
	Transactions     []wireTransaction `json:"transactions"`
	Extra            json.RawMessage   `json:"extra"`
}

type wireOrg struct {
	Name   string `json:"name"`
	Domain string `json:"domain"`
	URL    string `json:"url"`
}

type wireTransaction struct {
	ID           string          `json:"id"`
	Posted       int64           `json:"posted"`
	Amount       string          `json:"amount"`
	Description  string          `json:"description"`
	TransactedAt *int64          `json:"transacted_at"`
	Pending      *bool           `json:"pending"`
	Extra        json.RawMessage `json:"extra"`
}

// FetchAccounts retrieves the full account list and a balance
// snapshot for each account.
func (p *Provider) FetchAccounts(ctx context.Context, settings string) (*provider.FetchAccountsResult, error) {
	set, err := p.fetchAccountSet(ctx, settings, nil)
	if err != nil {
		return nil, err
	}

	result := &provider.FetchAccountsResult{Warnings: set.Errors}
	for _, wa := range set.Accounts {
		account := mapAccount(wa)
		result.Accounts = append(result.Accounts, account)

		balance, err := decimal.NewFromString(wa.Balance)
		if err != nil {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("account %q reported unparseable balance %q", wa.Name, wa.Balance))
			continue
		}
		at := time.Now().UTC()
		if wa.BalanceDate > 0 {
			at = time.Unix(wa.BalanceDate, 0).UTC()
		}
		result.Snapshots = append(result.Snapshots,
			domain.NewBalanceSnapshot(account.ID, balance, at, domain.SnapshotSourceSync))
	}
	return result, nil
}

// FetchTransactions retrieves transactions for the given provider
// account ids within [start, end].
func (p *Provider) FetchTransactions(ctx context.Context, start, end time.Time, providerAccountIDs []string, settings string) (*provider.FetchTransactionsResult, error) {
	params := url.Values{}
	params.Set("start-date", strconv.FormatInt(start.Unix(), 10))
	params.Set("end-date", strconv.FormatInt(end.Unix(), 10))
	for _, id := range providerAccountIDs {
		params.Add("account", id)
	}

	set, err := p.fetchAccountSet(ctx, settings, params)
	if err != nil {
		return nil, err
	}

	result := &provider.FetchTransactionsResult{Warnings: set.Errors}
	for _, wa := range set.Accounts {
		for _, wt := range wa.Transactions {
			tx, err := mapTransaction(wt)
			if err != nil {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("account %q: skipping transaction %s: %v", wa.Name, wt.ID, err))
				continue
			}
			result.Transactions = append(result.Transactions, provider.AccountTransaction{
				ProviderAccountID: wa.ID,
				Transaction:       tx,
			})
		}
	}
	return result, nil
}

func (p *Provider) fetchAccountSet(ctx context.Context, settings string, params url.Values) (*accountSet, error) {
	var cfg Settings
	if err := json.Unmarshal([]byte(settings), &cfg); err != nil {
		return nil, domain.Errorf(domain.KindConfig, "invalid simplefin settings: %v", err)
	}
	base, err := ValidateAccessURL(cfg.AccessURL)
	if err != nil {
		return nil, err
	}

	username := base.User.Username()
	password, _ := base.User.Password()

	endpoint := *base
	endpoint.User = nil
	endpoint.Path = strings.TrimRight(endpoint.Path, "/") + "/accounts"
	if params != nil {
		endpoint.RawQuery = params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, domain.NewError(domain.KindSync, err)
	}
	req.SetBasicAuth(username, password)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, domain.Errorf(domain.KindSync, "fetching from simplefin: %v", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusForbidden:
		return nil, domain.Errorf(domain.KindSync, "simplefin authentication failed; the access url may be revoked")
	case http.StatusPaymentRequired:
		return nil, domain.Errorf(domain.KindSync, "simplefin bridge subscription has expired")
	default:
		return nil, domain.Errorf(domain.KindSync, "simplefin returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewError(domain.KindSync, err)
	}
	var set accountSet
	if err := json.Unmarshal(body, &set); err != nil {
		return nil, domain.Errorf(domain.KindSerialization, "decoding simplefin response: %v", err)
	}
	return &set, nil
}

func mapAccount(wa wireAccount) domain.Account {
	account := domain.NewAccount(uuid.New(), wa.Name)
	account.IsManual = false

	if c := domain.NormalizeCurrency(wa.Currency); len(c) == 3 {
		account.Currency = c
	}
	if wa.Org.Name != "" {
		account.InstitutionName = strPtr(wa.Org.Name)
	}
	if wa.Org.URL != "" {
		account.InstitutionURL = strPtr(wa.Org.URL)
	}
	if wa.Org.Domain != "" {
		account.InstitutionDomain = strPtr(wa.Org.Domain)
	}

	account.SFID = strPtr(wa.ID)
	account.SFName = strPtr(wa.Name)
	if wa.Currency != "" {
		account.SFCurrency = strPtr(wa.Currency)
	}
	if wa.Balance != "" {
		account.SFBalance = strPtr(wa.Balance)
	}
	if wa.AvailableBalance != "" {
		account.SFAvailableBalance = strPtr(wa.AvailableBalance)
	}
	if wa.BalanceDate > 0 {
		d := wa.BalanceDate
		account.SFBalanceDate = &d
	}
	if wa.Org.Name != "" {
		account.SFOrgName = strPtr(wa.Org.Name)
	}
	if wa.Org.URL != "" {
		account.SFOrgURL = strPtr(wa.Org.URL)
	}
	if wa.Org.Domain != "" {
		account.SFOrgDomain = strPtr(wa.Org.Domain)
	}
	if len(wa.Extra) > 0 && string(wa.Extra) != "null" {
		account.SFExtra = strPtr(string(wa.Extra))
	}
	return account
}

func mapTransaction(wt wireTransaction) (domain.Transaction, error) {
	amount, err := decimal.NewFromString(wt.Amount)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("parsing amount %q: %w", wt.Amount, err)
	}

	date := time.Unix(wt.Posted, 0).UTC().Truncate(24 * time.Hour)
	tx := domain.NewTransaction(uuid.New(), uuid.Nil, amount, date)
	if wt.Description != "" {
		tx.Description = strPtr(wt.Description)
	}

	tx.SFID = strPtr(wt.ID)
	posted := wt.Posted
	tx.SFPosted = &posted
	tx.SFAmount = strPtr(wt.Amount)
	if wt.Description != "" {
		tx.SFDescription = strPtr(wt.Description)
	}
	tx.SFTransactedAt = wt.TransactedAt
	tx.SFPending = wt.Pending
	if len(wt.Extra) > 0 && string(wt.Extra) != "null" {
		tx.SFExtra = strPtr(string(wt.Extra))
		var extra struct {
			Category string `json:"category"`
		}
		if json.Unmarshal(wt.Extra, &extra) == nil && extra.Category != "" {
			tx.Tags = []string{extra.Category}
		}
	}
	return tx, nil
}

func strPtr(s string) *string { return &s }
