package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	nullWordRe = regexp.MustCompile(`\bnull\b`)
	cardMaskRe = regexp.MustCompile(`x{10,}\d{4}`)
	acctLikeRe = regexp.MustCompile(`[x0-9]{7,12}`)
	spaceRe    = regexp.MustCompile(`\s+`)
	nonAlnumRe = regexp.MustCompile(`[^a-z0-9]`)
	digitRe    = regexp.MustCompile(`[0-9]`)
)

// Transaction is a single financial transaction belonging to an account.
//
// TransactionDate and PostedDate are calendar dates; only the date part
// is significant. Deletion is soft: DeletedAt marks a transaction
// removed while the row stays behind for audit and dedup.
type Transaction struct {
	ID                  uuid.UUID
	AccountID           uuid.UUID
	Amount              decimal.Decimal
	Description         *string
	TransactionDate     time.Time
	PostedDate          time.Time
	Tags                []string
	ParentTransactionID *uuid.UUID
	IsManual            bool
	TagsAutoApplied     bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
	DeletedAt           *time.Time

	// CSV import tracking
	CSVFingerprint *string
	CSVBatchID     *string

	// SimpleFIN projection
	SFID           *string
	SFPosted       *int64
	SFAmount       *string
	SFDescription  *string
	SFTransactedAt *int64
	SFPending      *bool
	SFExtra        *string // raw JSON pass-through

	// Lunchflow projection
	LFID          *string
	LFAccountID   *string
	LFAmount      *decimal.Decimal
	LFCurrency    *string
	LFDate        *time.Time
	LFMerchant    *string
	LFDescription *string
	LFIsPending   *bool
}

// NewTransaction creates a transaction with defaults applied. The
// posted date starts equal to the transaction date.
func NewTransaction(id, accountID uuid.UUID, amount decimal.Decimal, date time.Time) Transaction {
	now := time.Now().UTC()
	return Transaction{
		ID:              id,
		AccountID:       accountID,
		Amount:          amount,
		TransactionDate: date,
		PostedDate:      date,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// EnsureFingerprint fills CSVFingerprint if it is not already set.
func (t *Transaction) EnsureFingerprint() {
	if t.CSVFingerprint == nil {
		fp := t.Fingerprint()
		t.CSVFingerprint = &fp
	}
}

// Fingerprint computes the content hash used for cross-source dedup:
// the first 8 bytes of SHA-256 over
// "account_id|YYYY-MM-DD|amount|normalized description", hex encoded
// (16 chars). The amount is rendered with two fractional digits and a
// negative zero collapses to zero so the same row hashes identically
// regardless of source formatting.
func (t *Transaction) Fingerprint() string {
	amount := t.Amount
	if amount.IsZero() {
		amount = decimal.Zero
	}
	desc := ""
	if t.Description != nil {
		desc = *t.Description
	}
	payload := fmt.Sprintf("%s|%s|%s|%s",
		t.AccountID,
		t.TransactionDate.Format("2006-01-02"),
		amount.StringFixed(2),
		NormalizeDescription(desc),
	)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:8])
}

// NormalizeDescription canonicalizes a description for fingerprinting.
// It is never used for display. The steps smooth over the differences
// between CSV exports and aggregator feeds for the same transaction:
// literal "null" strings, card number masks (10+ X's plus 4 digits) and
// account/phone-like tokens (7-12 chars of X's and digits, reduced to
// their last 4 digits), then all whitespace and non-alphanumerics.
func NormalizeDescription(desc string) string {
	s := strings.ToLower(desc)
	s = nullWordRe.ReplaceAllString(s, "")
	s = cardMaskRe.ReplaceAllString(s, "")
	s = acctLikeRe.ReplaceAllStringFunc(s, func(tok string) string {
		digits := strings.Join(digitRe.FindAllString(tok, -1), "")
		if len(digits) >= 4 {
			return digits[len(digits)-4:]
		}
		return tok
	})
	s = spaceRe.ReplaceAllString(s, "")
	return nonAlnumRe.ReplaceAllString(s, "")
}

// NormalizeTags trims tags, drops empties and deduplicates
// case-sensitively while preserving first-insertion order.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	result := make([]string, 0, len(tags))
	for _, tag := range tags {
		trimmed := strings.TrimSpace(tag)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	return result
}
