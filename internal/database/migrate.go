package database

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migration is one embedded schema script. Names are immutable once
// released; later changes ship as new entries.
type Migration struct {
	Name string
	SQL  string
}

// MigrateResult reports what a migration run did.
type MigrateResult struct {
	Applied        []string
	AlreadyApplied []string
}

// CoreMigrations returns the embedded schema scripts for the main
// database, sorted by name.
func CoreMigrations() []Migration {
	migrations, err := loadMigrations(migrationFS, "migrations")
	if err != nil {
		// Embedded files are fixed at build time.
		panic(err)
	}
	return migrations
}

func loadMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("reading migration dir: %w", err)
	}
	migrations := make([]Migration, 0, len(entries))
	for _, entry := range entries {
		data, err := fs.ReadFile(fsys, dir+"/"+entry.Name())
		if err != nil {
			return nil, fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}
		migrations = append(migrations, Migration{Name: entry.Name(), SQL: string(data)})
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Name < migrations[j].Name })
	return migrations, nil
}

// Migrate applies every not-yet-applied script in order. The first
// entry must be the bootstrap script that creates sys_migrations
// itself; it runs whenever the table is absent.
func Migrate(db *sql.DB, migrations []Migration) (MigrateResult, error) {
	var result MigrateResult
	if len(migrations) == 0 {
		return result, nil
	}

	hasTable, err := migrationsTableExists(db)
	if err != nil {
		return result, err
	}
	if !hasTable {
		bootstrap := migrations[0]
		if err := apply(db, bootstrap); err != nil {
			return result, err
		}
		result.Applied = append(result.Applied, bootstrap.Name)
	}

	applied, err := appliedNames(db)
	if err != nil {
		return result, err
	}

	for i, m := range migrations {
		if !hasTable && i == 0 {
			continue // bootstrap already handled
		}
		if _, ok := applied[m.Name]; ok {
			result.AlreadyApplied = append(result.AlreadyApplied, m.Name)
			continue
		}
		if err := apply(db, m); err != nil {
			return result, err
		}
		result.Applied = append(result.Applied, m.Name)
	}
	return result, nil
}

func apply(db *sql.DB, m Migration) error {
	if _, err := db.Exec(m.SQL); err != nil {
		return fmt.Errorf("applying migration %s: %w", m.Name, err)
	}
	if _, err := db.Exec(
		"INSERT INTO sys_migrations (migration_name) VALUES (?) ON CONFLICT DO NOTHING", m.Name,
	); err != nil {
		return fmt.Errorf("recording migration %s: %w", m.Name, err)
	}
	return nil
}

func migrationsTableExists(db *sql.DB) (bool, error) {
	var count int
	err := db.QueryRow(
		"SELECT COUNT(*) FROM information_schema.tables WHERE table_name = 'sys_migrations'",
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking migrations table: %w", err)
	}
	return count > 0, nil
}

func appliedNames(db *sql.DB) (map[string]struct{}, error) {
	rows, err := db.Query("SELECT migration_name FROM sys_migrations")
	if err != nil {
		return nil, fmt.Errorf("reading applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning migration name: %w", err)
		}
		applied[name] = struct{}{}
	}
	return applied, rows.Err()
}
