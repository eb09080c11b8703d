package domain_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/treeline-app/treeline/internal/domain"
)

func TestComputeClassification(t *testing.T) {
	type testCase struct {
		name        string
		accountType *string
		want        string
	}

	tests := []testCase{
		{name: "Nil", accountType: nil, want: domain.ClassificationAsset},
		{name: "Depository", accountType: strPtr("depository"), want: domain.ClassificationAsset},
		{name: "Credit", accountType: strPtr("credit"), want: domain.ClassificationLiability},
		{name: "LoanUppercase", accountType: strPtr("LOAN"), want: domain.ClassificationLiability},
		{name: "Unknown", accountType: strPtr("crypto"), want: domain.ClassificationAsset},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, domain.ComputeClassification(tt.accountType))
		})
	}
}

func TestNormalizeCurrency(t *testing.T) {
	assert.Equal(t, "USD", domain.NormalizeCurrency("usd"))
	assert.Equal(t, "EUR", domain.NormalizeCurrency(" eur "))
}

func TestAccount_Validate(t *testing.T) {
	account := domain.NewAccount(uuid.New(), "Checking")
	assert.NoError(t, account.Validate())

	account.Name = "  "
	assert.Error(t, account.Validate())

	account.Name = "Checking"
	account.Currency = ""
	err := account.Validate()
	assert.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}
