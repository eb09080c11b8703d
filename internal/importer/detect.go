package importer

import "strings"

// Header candidates, in priority order. Matching is a case-insensitive
// substring test against the CSV header cells.
var (
	dateHeaders    = []string{"transaction date", "trans date", "txn date", "txndate", "post date", "posted", "date", "dt"}
	amountHeaders  = []string{"transaction amount", "amount", "amt", "total"}
	debitHeaders   = []string{"withdrawal", "debit", "dr"}
	creditHeaders  = []string{"deposit", "credit", "cr"}
	descHeaders    = []string{"description", "desc", "memo", "payee", "merchant", "details", "narration"}
	descFallbacks  = []string{"name", "type", "reference", "ref", "category"}
	balanceHeaders = []string{"running balance", "balance", "bal"}
)

// Mapping holds resolved column indices; -1 means absent. Either
// Amount or at least one of Debit/Credit must be present.
type Mapping struct {
	Date        int
	Amount      int
	Debit       int
	Credit      int
	Description int
	Balance     int
}

func emptyMapping() Mapping {
	return Mapping{Date: -1, Amount: -1, Debit: -1, Credit: -1, Description: -1, Balance: -1}
}

// DetectColumns resolves a column mapping from header names alone.
func DetectColumns(headers []string) Mapping {
	lowered := make([]string, len(headers))
	for i, h := range headers {
		lowered[i] = strings.ToLower(strings.TrimSpace(h))
	}

	m := emptyMapping()
	m.Date = findColumn(lowered, dateHeaders, -1)
	m.Amount = findColumn(lowered, amountHeaders, -1)
	if m.Amount < 0 {
		m.Debit = findColumn(lowered, debitHeaders, -1)
		m.Credit = findColumn(lowered, creditHeaders, -1)
	}
	m.Description = findColumn(lowered, descHeaders, -1)
	if m.Description < 0 {
		// Fallback names are vaguer; never steal the date column.
		m.Description = findColumn(lowered, descFallbacks, m.Date)
	}
	m.Balance = findColumn(lowered, balanceHeaders, -1)
	return m
}

// findColumn returns the first header index containing any candidate,
// scanning candidates in priority order. exclude skips one index.
func findColumn(lowered []string, candidates []string, exclude int) int {
	for _, candidate := range candidates {
		for i, header := range lowered {
			if i == exclude {
				continue
			}
			if strings.Contains(header, candidate) {
				return i
			}
		}
	}
	return -1
}

// resolveColumn maps a user-supplied column name to its header index,
// case-insensitively. Returns -1 when absent.
func resolveColumn(headers []string, name string) int {
	if name == "" {
		return -1
	}
	for i, h := range headers {
		if strings.EqualFold(strings.TrimSpace(h), strings.TrimSpace(name)) {
			return i
		}
	}
	return -1
}

// Valid reports whether the mapping can drive an import.
func (m Mapping) Valid() bool {
	return m.Date >= 0 && (m.Amount >= 0 || m.Debit >= 0 || m.Credit >= 0)
}
