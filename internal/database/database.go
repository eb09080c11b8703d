package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"
)

// Messages the engine emits when another process holds the file lock.
// Windows locking is the strict case; the Unix entries cover NFS and
// stale-handle variants.
var busySignatures = []string{
	"being used by another process",
	"Cannot access the file",
	"Resource temporarily unavailable",
	"database is locked",
	"File is already open in another process",
	"Conflicting lock is held",
	"Could not set lock on file",
}

const (
	openAttempts  = 5
	openBaseDelay = 50 * time.Millisecond
)

// Open opens the database file, retrying with exponential backoff while
// another process holds the file lock. A non-empty hex key opens the
// file through an in-memory session with the file attached encrypted,
// so every statement runs against the attached database.
//
// Extension auto-loading is disabled on every open; cached native
// extensions drift out of sync with the host's code signature.
func Open(path, hexKey string) (*sql.DB, error) {
	var lastErr error
	delay := openBaseDelay
	for attempt := 0; attempt < openAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(delay)
			delay *= 2
		}
		db, err := open(path, hexKey)
		if err == nil {
			return db, nil
		}
		if !isBusyError(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("opening database after %d attempts: %w", openAttempts, lastErr)
}

func open(path, hexKey string) (*sql.DB, error) {
	dsn := path
	if hexKey != "" {
		// The session is in-memory; the real file is attached below.
		dsn = ""
	}
	dsn += "?autoinstall_known_extensions=false&autoload_known_extensions=false"

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection only: the engine holds an exclusive lock and the
	// attached-database session state is per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if hexKey != "" {
		attach := fmt.Sprintf("ATTACH '%s' AS enc (ENCRYPTION_KEY '%s')", quotePath(path), hexKey)
		if _, err := db.Exec(attach); err != nil {
			db.Close()
			return nil, fmt.Errorf("attaching encrypted database: %w", err)
		}
		if _, err := db.Exec("USE enc"); err != nil {
			db.Close()
			return nil, fmt.Errorf("switching to encrypted database: %w", err)
		}
	}

	return db, nil
}

// VerifyEncrypted checks that hexKey opens the encrypted file, without
// taking a write lock or mutating anything. A wrong key surfaces as an
// attach error.
func VerifyEncrypted(path, hexKey string) error {
	db, err := sql.Open("duckdb", "?autoinstall_known_extensions=false&autoload_known_extensions=false")
	if err != nil {
		return fmt.Errorf("opening session: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	attach := fmt.Sprintf("ATTACH '%s' AS probe (READ_ONLY, ENCRYPTION_KEY '%s')", quotePath(path), hexKey)
	if _, err := db.Exec(attach); err != nil {
		return fmt.Errorf("attaching encrypted database: %w", err)
	}
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM probe.information_schema.tables").Scan(&n); err != nil {
		return fmt.Errorf("probing encrypted database: %w", err)
	}
	return nil
}

func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, sig := range busySignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}

func quotePath(path string) string {
	return strings.ReplaceAll(path, "'", "''")
}
