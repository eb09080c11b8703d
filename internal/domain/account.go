package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Classification of an account balance for net-worth purposes.
const (
	ClassificationAsset     = "asset"
	ClassificationLiability = "liability"
)

// Account is a financial account owned by the user.
//
// AccountType is a freeform string using aggregator nomenclature;
// common values are "depository", "credit", "investment", "loan" and
// "other", but any string is accepted. The sf_/lf_ field groups hold
// each provider's raw view of the account; SFID / LFID being non-nil is
// what marks the account as known to that provider.
type Account struct {
	ID                uuid.UUID
	Name              string
	Nickname          *string
	AccountType       *string
	Classification    *string
	Currency          string
	Balance           *decimal.Decimal // derived from the latest snapshot
	InstitutionName   *string
	InstitutionURL    *string
	InstitutionDomain *string
	IsManual          bool
	CreatedAt         time.Time
	UpdatedAt         time.Time

	// SimpleFIN projection
	SFID               *string
	SFName             *string
	SFCurrency         *string
	SFBalance          *string
	SFAvailableBalance *string
	SFBalanceDate      *int64
	SFOrgName          *string
	SFOrgURL           *string
	SFOrgDomain        *string
	SFExtra            *string // raw JSON pass-through

	// Lunchflow projection
	LFID              *string
	LFName            *string
	LFInstitutionName *string
	LFInstitutionLogo *string
	LFProvider        *string
	LFCurrency        *string
	LFStatus          *string
}

// NewAccount creates an account with defaults applied.
func NewAccount(id uuid.UUID, name string) Account {
	now := time.Now().UTC()
	classification := ClassificationAsset
	return Account{
		ID:             id,
		Name:           name,
		Classification: &classification,
		Currency:       "USD",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// ComputeClassification derives the balance classification from an
// account type. Credit and loan accounts are liabilities; everything
// else counts as an asset.
func ComputeClassification(accountType *string) string {
	if accountType == nil {
		return ClassificationAsset
	}
	switch strings.ToLower(*accountType) {
	case "credit", "loan":
		return ClassificationLiability
	default:
		return ClassificationAsset
	}
}

// NormalizeCurrency uppercases and trims an ISO 4217 code.
func NormalizeCurrency(currency string) string {
	return strings.ToUpper(strings.TrimSpace(currency))
}

// Validate checks required account fields.
func (a *Account) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return Errorf(KindValidation, "account name cannot be empty")
	}
	if strings.TrimSpace(a.Currency) == "" {
		return Errorf(KindValidation, "currency cannot be empty")
	}
	return nil
}
