package domain_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treeline-app/treeline/internal/domain"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func strPtr(s string) *string { return &s }

func TestTransaction_Fingerprint(t *testing.T) {
	accountID := uuid.MustParse("12345678-1234-1234-1234-123456789abc")

	newTx := func(amount string, desc string) domain.Transaction {
		tx := domain.NewTransaction(uuid.New(), accountID, decimal.RequireFromString(amount), date(2025, 1, 15))
		if desc != "" {
			tx.Description = strPtr(desc)
		}
		return tx
	}

	t.Run("Length", func(t *testing.T) {
		tx := newTx("-50.00", "ACME STORE")
		assert.Len(t, tx.Fingerprint(), 16)
	})

	t.Run("Deterministic", func(t *testing.T) {
		a := newTx("-50.00", "ACME STORE")
		b := newTx("-50.00", "ACME STORE")
		assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	})

	t.Run("NegativeZeroEqualsZero", func(t *testing.T) {
		a := newTx("0.00", "REFUND")
		b := newTx("-0.00", "REFUND")
		assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	})

	t.Run("AmountScaleIrrelevant", func(t *testing.T) {
		a := newTx("-50", "ACME STORE")
		b := newTx("-50.00", "ACME STORE")
		assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	})

	t.Run("DifferentAccountsDiffer", func(t *testing.T) {
		a := newTx("-50.00", "ACME STORE")
		b := a
		b.AccountID = uuid.New()
		assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
	})

	t.Run("MaskedAndPlainDescriptionsMatch", func(t *testing.T) {
		a := newTx("-50.00", "PURCHASE XXXXXXXXXXXX1234 STORE")
		b := newTx("-50.00", "PURCHASE STORE")
		assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	})

	t.Run("EnsureFingerprintIsSticky", func(t *testing.T) {
		tx := newTx("-50.00", "ACME STORE")
		tx.EnsureFingerprint()
		require.NotNil(t, tx.CSVFingerprint)
		first := *tx.CSVFingerprint
		tx.Description = strPtr("SOMETHING ELSE")
		tx.EnsureFingerprint()
		assert.Equal(t, first, *tx.CSVFingerprint)
	})
}

func TestNormalizeDescription(t *testing.T) {
	type testCase struct {
		name  string
		input string
		want  string
	}

	tests := []testCase{
		{
			name:  "Lowercased",
			input: "ACME Store",
			want:  "acmestore",
		},
		{
			name:  "NullWordRemoved",
			input: "null PAYMENT null",
			want:  "payment",
		},
		{
			name:  "CardMaskRemoved",
			input: "PURCHASE XXXXXXXXXXXX1234 STORE",
			want:  "purchasestore",
		},
		{
			name:  "AccountNumberKeepsLastFour",
			input: "PAYMENT 7208987070",
			want:  "payment7070",
		},
		{
			name:  "MixedMaskKeepsLastFour",
			input: "ACH xxx4421",
			want:  "ach4421",
		},
		{
			name:  "WhitespaceAndPunctuationStripped",
			input: "  COFFEE - SHOP #12  ",
			want:  "coffeeshop12",
		},
		{
			name:  "Empty",
			input: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, domain.NormalizeDescription(tt.input))
		})
	}
}

func TestNormalizeTags(t *testing.T) {
	t.Run("TrimDedupeAndDropEmpty", func(t *testing.T) {
		got := domain.NormalizeTags([]string{"food", "  groceries ", "food", ""})
		assert.Equal(t, []string{"food", "groceries"}, got)
	})

	t.Run("CaseSensitive", func(t *testing.T) {
		got := domain.NormalizeTags([]string{"Food", "food"})
		assert.Equal(t, []string{"Food", "food"}, got)
	})

	t.Run("Idempotent", func(t *testing.T) {
		once := domain.NormalizeTags([]string{" a ", "b", "a", " b"})
		twice := domain.NormalizeTags(once)
		assert.Equal(t, once, twice)
	})
}
