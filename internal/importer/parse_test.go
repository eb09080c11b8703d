package importer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmountFormats(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		format  string
		want    string
		wantErr bool
	}{
		{name: "Plain", in: "100.50", want: "100.5"},
		{name: "USThousands", in: "1,234.56", want: "1234.56"},
		{name: "Parentheses", in: "(42.00)", want: "-42"},
		{name: "DollarSign", in: "$15.99", want: "15.99"},
		{name: "CurrencySuffix", in: "100.50 PLN", want: "100.5"},
		{name: "EUThousands", in: "1.234,56", format: "eu", want: "1234.56"},
		{name: "EUSpaceThousands", in: "1 234,56", format: "eu_space", want: "1234.56"},
		{name: "EUNegative", in: "-1.234,56", format: "eu", want: "-1234.56"},
		{name: "Empty", in: "", wantErr: true},
		{name: "Garbage", in: "n/a", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseAmount(tt.in, tt.format)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestParseDateLayouts(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		layout string
		want   string
	}{
		{name: "ISO", in: "2026-08-15", want: "2026-08-15"},
		{name: "USSlash", in: "08/15/2026", want: "2026-08-15"},
		{name: "YearFirstSlash", in: "2026/08/15", want: "2026-08-15"},
		{name: "ExplicitEULayout", in: "15/08/2026", layout: "02/01/2006", want: "2026-08-15"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDate(tt.in, tt.layout)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Format("2006-01-02"))
		})
	}
}

func TestSniffDelimiter(t *testing.T) {
	assert.Equal(t, ',', sniffDelimiter("date,amount,description"))
	assert.Equal(t, ';', sniffDelimiter("date;amount;description"))
	assert.Equal(t, '\t', sniffDelimiter("date\tamount\tdescription"))
	assert.Equal(t, ',', sniffDelimiter("no delimiters here"))
}
