package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateReadOnly(t *testing.T) {
	type testCase struct {
		name    string
		query   string
		wantErr bool
	}

	tests := []testCase{
		{
			name:  "PlainSelect",
			query: "SELECT * FROM transactions",
		},
		{
			name:  "CTE",
			query: "WITH recent AS (SELECT * FROM transactions) SELECT COUNT(*) FROM recent",
		},
		{
			name:  "ColumnNamedLikeKeyword",
			query: "SELECT deleted_at, created_at FROM sys_transactions WHERE deleted_at IS NULL",
		},
		{
			name:    "TopLevelDelete",
			query:   "DELETE FROM accounts",
			wantErr: true,
		},
		{
			name:    "StackedStatement",
			query:   "SELECT * FROM transactions; DELETE FROM accounts",
			wantErr: true,
		},
		{
			name:    "DeleteInsideCTE",
			query:   "WITH x AS (DELETE FROM t RETURNING *) SELECT * FROM x",
			wantErr: true,
		},
		{
			name:    "InsertInSubquery",
			query:   "SELECT * FROM (INSERT INTO t VALUES (1) RETURNING *)",
			wantErr: true,
		},
		{
			name:    "UpdateAfterNewline",
			query:   "SELECT 1;\nUPDATE accounts SET name = 'x'",
			wantErr: true,
		},
		{
			name:    "DropTable",
			query:   "SELECT 1 FROM t WHERE EXISTS (SELECT 1); DROP TABLE t",
			wantErr: true,
		},
		{
			name:    "Empty",
			query:   "   ",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateReadOnly(tt.query)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTranslateParams(t *testing.T) {
	args, err := translateParams([]any{
		nil,
		true,
		int64(42),
		3.14,
		"text",
		map[string]any{"a": 1},
		[]any{"x", "y", 3},
	})
	assert.NoError(t, err)
	assert.Nil(t, args[0])
	assert.Equal(t, true, args[1])
	assert.Equal(t, int64(42), args[2])
	assert.Equal(t, 3.14, args[3])
	assert.Equal(t, "text", args[4])
	assert.JSONEq(t, `{"a":1}`, args[5].(string))
	assert.Equal(t, "x,y,3", args[6])
}

func TestFirstToken(t *testing.T) {
	assert.Equal(t, "SELECT", firstToken("  SELECT 1"))
	assert.Equal(t, "with", firstToken("with x as (select 1) select * from x"))
	assert.Equal(t, "", firstToken(""))
}
