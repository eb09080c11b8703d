package repository

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	duckdb "github.com/marcboeker/go-duckdb/v2"
	"github.com/xwb1989/sqlparser"

	"github.com/treeline-app/treeline/internal/domain"
)

// QueryResult is the tabular result of a SQL execution. Values are
// JSON-friendly: null, bool, number, string, array or object.
type QueryResult struct {
	Columns  []string `json:"columns"`
	Rows     [][]any  `json:"rows"`
	RowCount int      `json:"row_count"`
}

// Keywords that must not appear word-bounded anywhere in a read-only
// statement, including inside subqueries and CTE bodies.
var blockedKeywords = []string{"INSERT", "UPDATE", "DELETE", "DROP", "CREATE", "ALTER", "TRUNCATE"}

// ValidateReadOnly rejects any statement that is not a plain read. The
// first token must be SELECT or WITH, and no blocked keyword may appear
// preceded by whitespace, a newline or an open paren. The boundary
// check avoids false positives on column names like deleted_at.
func ValidateReadOnly(query string) error {
	first := strings.ToUpper(firstToken(query))
	if first != "SELECT" && first != "WITH" {
		return domain.Errorf(domain.KindValidation, "only SELECT queries are allowed")
	}
	upper := strings.ToUpper(query)
	for _, keyword := range blockedKeywords {
		for _, prefix := range []string{" ", "\n", "\t", "("} {
			if strings.Contains(upper, prefix+keyword+" ") {
				return domain.Errorf(domain.KindValidation, "only SELECT queries are allowed")
			}
		}
	}
	return nil
}

// ExecuteQuery runs a read-only statement and returns its rows.
func (r *Repository) ExecuteQuery(query string) (*QueryResult, error) {
	if err := ValidateReadOnly(query); err != nil {
		return nil, err
	}
	return r.runQuery(query)
}

// ExecuteSQL validates and runs an arbitrary statement. The statement
// is parsed before execution; handing the engine malformed SQL can
// bring the whole process down on some platforms. The first token
// routes between read and write execution.
func (r *Repository) ExecuteSQL(query string, params ...any) (*QueryResult, error) {
	if err := validateSyntax(query); err != nil {
		return nil, err
	}

	args, err := translateParams(params)
	if err != nil {
		return nil, err
	}

	switch strings.ToUpper(firstToken(query)) {
	case "SELECT", "WITH":
		return r.runQuery(query, args...)
	default:
		r.mu.Lock()
		defer r.mu.Unlock()
		result, err := r.db.Exec(query, args...)
		if err != nil {
			return nil, domain.NewError(domain.KindDatabase, fmt.Errorf("executing statement: %w", err))
		}
		n, _ := result.RowsAffected()
		return &QueryResult{RowCount: int(n)}, nil
	}
}

func validateSyntax(query string) error {
	if _, err := sqlparser.Parse(query); err != nil {
		msg := domain.CleanMessage(err.Error())
		// The parser speaks a close dialect, not the engine's own.
		// Unsupported-syntax noise is let through; the engine decides.
		if strings.Contains(msg, "syntax error") {
			return domain.Errorf(domain.KindValidation, "invalid SQL: %s", msg)
		}
	}
	return nil
}

// translateParams maps the JSON value domain onto engine parameters.
// Objects become their JSON text; arrays become a comma-joined string.
func translateParams(params []any) ([]any, error) {
	args := make([]any, len(params))
	for i, p := range params {
		switch v := p.(type) {
		case nil, bool, int, int32, int64, float64, string:
			args[i] = v
		case map[string]any:
			encoded, err := json.Marshal(v)
			if err != nil {
				return nil, domain.NewError(domain.KindSerialization, fmt.Errorf("encoding object parameter: %w", err))
			}
			args[i] = string(encoded)
		case []any:
			parts := make([]string, len(v))
			for j, item := range v {
				parts[j] = fmt.Sprintf("%v", item)
			}
			args[i] = strings.Join(parts, ",")
		default:
			args[i] = fmt.Sprintf("%v", v)
		}
	}
	return args, nil
}

func (r *Repository) runQuery(query string, args ...any) (*QueryResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, domain.NewError(domain.KindDatabase, fmt.Errorf("executing query: %w", err))
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, domain.NewError(domain.KindDatabase, fmt.Errorf("reading columns: %w", err))
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, domain.NewError(domain.KindDatabase, fmt.Errorf("reading column types: %w", err))
	}

	result := &QueryResult{Columns: columns, Rows: [][]any{}}
	for rows.Next() {
		raw := make([]any, len(columns))
		dests := make([]any, len(columns))
		for i := range raw {
			dests[i] = &raw[i]
		}
		if err := rows.Scan(dests...); err != nil {
			return nil, domain.NewError(domain.KindDatabase, fmt.Errorf("scanning row: %w", err))
		}
		values := make([]any, len(columns))
		for i, v := range raw {
			values[i] = toJSONValue(v, types[i].DatabaseTypeName())
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewError(domain.KindDatabase, fmt.Errorf("iterating rows: %w", err))
	}
	result.RowCount = len(result.Rows)
	return result, nil
}

// toJSONValue converts an engine value to its JSON rendering: dates as
// ISO dates, timestamps as RFC 3339, decimals as float64, lists as
// arrays, structs and maps as objects.
func toJSONValue(v any, dbType string) any {
	switch val := v.(type) {
	case nil:
		return nil
	case bool, int8, int16, int32, int64, uint8, uint16, uint32, uint64, float32, float64, string:
		return val
	case []byte:
		return string(val)
	case time.Time:
		if dbType == "DATE" {
			return val.Format("2006-01-02")
		}
		return val.Format(time.RFC3339)
	case duckdb.Decimal:
		return val.Float64()
	case *big.Int:
		return val.String()
	case big.Int:
		return val.String()
	case []any:
		items := make([]any, len(val))
		for i, item := range val {
			items[i] = toJSONValue(item, "")
		}
		return items
	case map[string]any:
		obj := make(map[string]any, len(val))
		for k, item := range val {
			obj[k] = toJSONValue(item, "")
		}
		return obj
	default:
		return fmt.Sprintf("%v", val)
	}
}

func firstToken(query string) string {
	fields := strings.Fields(strings.TrimSpace(query))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
