// Package repository owns the single connection to the database file
// and exposes typed operations plus a guarded SQL surface. All access
// is serialized through one mutex; the engine itself holds an
// exclusive file lock for the life of the connection.
package repository

import (
	"database/sql"
	"fmt"
	"os"
	"sync"

	"github.com/treeline-app/treeline/internal/database"
)

// Repository wraps the database connection. Safe for concurrent use.
type Repository struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	hexKey string
}

// Open opens the database file and applies pending migrations. hexKey
// is empty for a plaintext database.
func Open(path, hexKey string) (*Repository, error) {
	db, err := database.Open(path, hexKey)
	if err != nil {
		return nil, err
	}
	if _, err := database.Migrate(db, database.CoreMigrations()); err != nil {
		db.Close()
		return nil, err
	}
	return &Repository{db: db, path: path, hexKey: hexKey}, nil
}

// Close releases the connection and its file lock.
func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

// Path returns the database file path.
func (r *Repository) Path() string {
	return r.path
}

// Size returns the database file size in bytes.
func (r *Repository) Size() (int64, error) {
	info, err := os.Stat(r.path)
	if err != nil {
		return 0, fmt.Errorf("stat database file: %w", err)
	}
	return info.Size(), nil
}

// Compact copies the database into a fresh file and swaps it in. The
// engine reclaims no space in place, so compaction is a full logical
// copy through a detached session.
func (r *Repository) Compact() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tmpPath := r.path + ".compact"
	os.Remove(tmpPath)

	session, err := database.Open("", "")
	if err != nil {
		return fmt.Errorf("opening compaction session: %w", err)
	}

	copyErr := func() error {
		keyClause := ""
		if r.hexKey != "" {
			keyClause = fmt.Sprintf(" (ENCRYPTION_KEY '%s')", r.hexKey)
		}
		if _, err := session.Exec(fmt.Sprintf("ATTACH '%s' AS src%s", sqlQuote(r.path), keyClause)); err != nil {
			return fmt.Errorf("attaching source: %w", err)
		}
		if _, err := session.Exec(fmt.Sprintf("ATTACH '%s' AS dst%s", sqlQuote(tmpPath), keyClause)); err != nil {
			return fmt.Errorf("attaching target: %w", err)
		}
		// Parallel copy reorders inserts in a way the FK checks reject.
		if _, err := session.Exec("SET threads = 1"); err != nil {
			return fmt.Errorf("limiting copy threads: %w", err)
		}
		if _, err := session.Exec("COPY FROM DATABASE src TO dst"); err != nil {
			return fmt.Errorf("copying database: %w", err)
		}
		if _, err := session.Exec("DETACH src"); err != nil {
			return fmt.Errorf("detaching source: %w", err)
		}
		if _, err := session.Exec("DETACH dst"); err != nil {
			return fmt.Errorf("detaching target: %w", err)
		}
		return nil
	}()
	session.Close()
	if copyErr != nil {
		os.Remove(tmpPath)
		return copyErr
	}

	// Swap files under the lock with the live connection dropped.
	if err := r.db.Close(); err != nil {
		return fmt.Errorf("closing connection for compaction: %w", err)
	}
	r.db = nil

	oldPath := r.path + ".old"
	if err := os.Rename(r.path, oldPath); err != nil {
		return fmt.Errorf("moving original aside: %w", err)
	}
	if err := os.Rename(tmpPath, r.path); err != nil {
		os.Rename(oldPath, r.path)
		return fmt.Errorf("moving compacted file in place: %w", err)
	}

	db, err := database.Open(r.path, r.hexKey)
	if err != nil {
		return fmt.Errorf("reopening after compaction: %w", err)
	}
	r.db = db
	os.Remove(oldPath)
	return nil
}

func sqlQuote(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			out = append(out, '\'')
		}
		out = append(out, s[i])
	}
	return string(out)
}

// scanner abstracts sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}
