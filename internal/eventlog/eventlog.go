// Package eventlog records append-only operational events in a
// dedicated database file, separate from user data. Amounts, account
// names and descriptions are never written here.
package eventlog

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/treeline-app/treeline/internal/database"
)

var migrations = []database.Migration{
	{
		Name: "000_migrations.sql",
		SQL: `CREATE TABLE IF NOT EXISTS sys_migrations (
			migration_name VARCHAR PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
	},
	{
		Name: "001_events.sql",
		SQL: `CREATE TABLE IF NOT EXISTS sys_events (
			event_id BIGINT PRIMARY KEY,
			event_time TIMESTAMP NOT NULL,
			entry_point VARCHAR NOT NULL,
			app_version VARCHAR NOT NULL,
			platform VARCHAR NOT NULL,
			event_name VARCHAR NOT NULL,
			integration VARCHAR,
			page VARCHAR,
			command VARCHAR,
			error_message VARCHAR,
			error_details VARCHAR
		);
		CREATE INDEX IF NOT EXISTS idx_events_time ON sys_events (event_time);
		CREATE INDEX IF NOT EXISTS idx_events_name ON sys_events (event_name);`,
	},
}

// Event is one recorded log entry.
type Event struct {
	ID           int64
	Time         time.Time
	EntryPoint   string
	AppVersion   string
	Platform     string
	Name         string
	Integration  *string
	Page         *string
	Command      *string
	ErrorMessage *string
	ErrorDetails *string
}

// Context carries the optional fields of an event.
type Context struct {
	Integration  string
	Page         string
	Command      string
	ErrorMessage string
	ErrorDetails string
}

// Log writes events to the log database. Safe for concurrent use.
type Log struct {
	mu         sync.Mutex
	db         *sql.DB
	path       string
	entryPoint string
	appVersion string
	platform   string

	lastMs  int64
	counter uint16
	now     func() time.Time
}

// Open opens (creating and migrating if needed) the event log.
func Open(path, entryPoint, appVersion, platform string) (*Log, error) {
	db, err := database.Open(path, "")
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}
	if _, err := database.Migrate(db, migrations); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating event log: %w", err)
	}
	return &Log{
		db:         db,
		path:       path,
		entryPoint: entryPoint,
		appVersion: appVersion,
		platform:   platform,
		now:        time.Now,
	}, nil
}

// Close closes the underlying database.
func (l *Log) Close() error {
	return l.db.Close()
}

// Record appends one event. ctx may be nil.
func (l *Log) Record(name string, ctx *Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now().UTC()
	id := l.nextID(now)

	var integration, page, command, errMsg, errDetails *string
	if ctx != nil {
		integration = optStr(ctx.Integration)
		page = optStr(ctx.Page)
		command = optStr(ctx.Command)
		errMsg = optStr(ctx.ErrorMessage)
		errDetails = optStr(ctx.ErrorDetails)
	}

	_, err := l.db.Exec(
		`INSERT INTO sys_events (event_id, event_time, entry_point, app_version, platform,
			event_name, integration, page, command, error_message, error_details)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, now.Format("2006-01-02 15:04:05.999999"), l.entryPoint, l.appVersion, l.platform,
		name, integration, page, command, errMsg, errDetails,
	)
	if err != nil {
		return fmt.Errorf("recording event: %w", err)
	}
	return nil
}

// RecordError appends an error event, stripping engine prefixes from
// the message.
func (l *Log) RecordError(name string, err error, ctx *Context) error {
	c := Context{}
	if ctx != nil {
		c = *ctx
	}
	if err != nil {
		c.ErrorMessage = err.Error()
	}
	return l.Record(name, &c)
}

// nextID packs milliseconds since epoch into the top 48 bits and a
// per-millisecond counter into the bottom 16, so ids are unique and
// sort by time. Callers hold the mutex.
func (l *Log) nextID(now time.Time) int64 {
	ms := now.UnixMilli()
	if ms == l.lastMs {
		l.counter++
	} else {
		l.lastMs = ms
		l.counter = 0
	}
	return ms<<16 | int64(l.counter)
}

const selectEventColumns = `event_id, event_time::VARCHAR, entry_point, app_version, platform,
	event_name, integration, page, command, error_message, error_details`

// Recent returns the newest events, newest first.
func (l *Log) Recent(limit int) ([]Event, error) {
	return l.query(
		"SELECT "+selectEventColumns+" FROM sys_events ORDER BY event_id DESC LIMIT ?", limit)
}

// Errors returns the newest events that carry an error message.
func (l *Log) Errors(limit int) ([]Event, error) {
	return l.query(
		"SELECT "+selectEventColumns+
			" FROM sys_events WHERE error_message IS NOT NULL ORDER BY event_id DESC LIMIT ?", limit)
}

func (l *Log) query(q string, args ...any) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rows, err := l.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e       Event
			timeStr string
		)
		if err := rows.Scan(&e.ID, &timeStr, &e.EntryPoint, &e.AppVersion, &e.Platform,
			&e.Name, &e.Integration, &e.Page, &e.Command, &e.ErrorMessage, &e.ErrorDetails); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		if e.Time, err = parseEventTime(timeStr); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func parseEventTime(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02 15:04:05.999999", "2006-01-02 15:04:05", time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable event time %q", s)
}

// Prune deletes events older than the cutoff and returns the count.
func (l *Log) Prune(olderThan time.Duration) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().UTC().Add(-olderThan)
	result, err := l.db.Exec(
		"DELETE FROM sys_events WHERE event_time < ?", cutoff.Format("2006-01-02 15:04:05.999999"))
	if err != nil {
		return 0, fmt.Errorf("pruning events: %w", err)
	}
	return result.RowsAffected()
}

// Export checkpoints the log and copies the file to dst.
func (l *Log) Export(dst string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.db.Exec("CHECKPOINT"); err != nil {
		return fmt.Errorf("checkpointing event log: %w", err)
	}
	in, err := os.Open(l.path)
	if err != nil {
		return fmt.Errorf("exporting event log: %w", err)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("exporting event log: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("exporting event log: %w", err)
	}
	return out.Close()
}

func optStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
