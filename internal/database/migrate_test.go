package database

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrateFreshDatabase(t *testing.T) {
	db := openTestDB(t)
	migrations := CoreMigrations()

	result, err := Migrate(db, migrations)
	require.NoError(t, err)
	require.Len(t, result.Applied, len(migrations))
	assert.Empty(t, result.AlreadyApplied)

	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM sys_migrations").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), count)
}

func TestMigrateSecondRunAppliesNothing(t *testing.T) {
	db := openTestDB(t)
	migrations := CoreMigrations()

	_, err := Migrate(db, migrations)
	require.NoError(t, err)

	second, err := Migrate(db, migrations)
	require.NoError(t, err)
	assert.Empty(t, second.Applied)
	assert.Len(t, second.AlreadyApplied, len(migrations))
}

func TestMigrateAppliesOnlyNewScripts(t *testing.T) {
	db := openTestDB(t)
	base := []Migration{
		{Name: "000_migrations.sql", SQL: "CREATE TABLE IF NOT EXISTS sys_migrations (migration_name VARCHAR PRIMARY KEY, applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP)"},
		{Name: "001_widgets.sql", SQL: "CREATE TABLE widgets (id INTEGER)"},
	}
	_, err := Migrate(db, base)
	require.NoError(t, err)

	extended := append(base, Migration{Name: "002_gadgets.sql", SQL: "CREATE TABLE gadgets (id INTEGER)"})
	result, err := Migrate(db, extended)
	require.NoError(t, err)
	assert.Equal(t, []string{"002_gadgets.sql"}, result.Applied)
	assert.Equal(t, []string{"000_migrations.sql", "001_widgets.sql"}, result.AlreadyApplied)
}
