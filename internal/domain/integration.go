package domain

import "time"

// Integration is a configured connection to an external data provider,
// keyed by name. Settings is an opaque JSON object owned by the
// provider adapter (credentials, endpoints).
type Integration struct {
	Name      string
	Settings  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AutoTagRule tags matching transactions after ingestion. SQLCondition
// is a predicate fragment evaluated against the transactions view.
type AutoTagRule struct {
	RuleID       string
	Name         string
	SQLCondition string
	Tags         []string
	Enabled      bool
	SortOrder    int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
