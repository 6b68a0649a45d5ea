// Package sqlite implements persistence.Store on top of modernc.org/sqlite.
// Timestamps are stored as RFC3339 text in UTC, matching the rest of the
// schema's text-first layout.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/example/calendar-scheduler/internal/persistence"
)

// querier is satisfied by both *sql.DB and *sql.Tx so repository methods can
// run inside or outside a transaction unchanged.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Storage implements persistence.Store.
type Storage struct {
	db    *sql.DB
	q     querier
	locks *persistence.LockTable
	inTx  bool
}

var _ persistence.Store = (*Storage)(nil)

// Open connects to the SQLite database at the given DSN.
func Open(dsn string) (*Storage, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", dsn, err)
	}
	// SQLite tolerates a single writer; serialize access at the pool level
	// so busy errors do not surface under concurrent commits.
	db.SetMaxOpenConns(1)
	return &Storage{db: db, q: db, locks: persistence.NewLockTable()}, nil
}

// Close releases the underlying database handle.
func (s *Storage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping verifies the connection.
func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InTransaction runs fn against a transaction-scoped store. A nested call
// joins the enclosing transaction.
func (s *Storage) InTransaction(ctx context.Context, fn func(persistence.Store) error) error {
	if s.inTx {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin transaction: %w", err)
	}

	scoped := &Storage{db: s.db, q: tx, locks: s.locks, inTx: true}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(scoped); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("sqlite: transaction failed (rollback error: %v): %w", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit transaction: %w", err)
	}
	return nil
}

// LockUsers acquires the per-user advisory locks in sorted order.
func (s *Storage) LockUsers(userIDs []string) (release func()) {
	return s.locks.Acquire(userIDs)
}

// Migrate applies the schema. Statements are idempotent so repeated startup
// runs are safe.
func (s *Storage) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: migrate: %w", err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		role TEXT NOT NULL,
		timezone TEXT NOT NULL DEFAULT 'UTC',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS calendar_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		title TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		duration_minutes INTEGER NOT NULL,
		organizer_id TEXT NOT NULL,
		status TEXT NOT NULL,
		reference_type TEXT,
		reference_id TEXT,
		is_auto_scheduled INTEGER NOT NULL DEFAULT 0,
		rule_id TEXT,
		previous_event_id TEXT,
		reschedule_count INTEGER NOT NULL DEFAULT 0,
		last_rescheduled_at TEXT,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		CHECK (start_time < end_time)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_time ON calendar_events(start_time, end_time)`,
	`CREATE TABLE IF NOT EXISTS event_participants (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL REFERENCES calendar_events(id),
		user_id TEXT NOT NULL,
		role TEXT NOT NULL,
		status TEXT NOT NULL,
		response_deadline TEXT,
		responded_at TEXT,
		response_note TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE (event_id, user_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_participants_user ON event_participants(user_id)`,
	`CREATE TABLE IF NOT EXISTS user_availability (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		type TEXT NOT NULL,
		start_time TEXT,
		end_time TEXT,
		is_recurring INTEGER NOT NULL DEFAULT 0,
		day_of_week INTEGER,
		local_start_minute INTEGER,
		local_end_minute INTEGER,
		recurrence_starts_on TEXT,
		recurrence_ends_on TEXT,
		is_auto_generated INTEGER NOT NULL DEFAULT 0,
		linked_event_id TEXT,
		linked_leave_request_id TEXT,
		note TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_availability_user ON user_availability(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_availability_event ON user_availability(linked_event_id)`,
	`CREATE TABLE IF NOT EXISTS auto_schedule_rules (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		default_duration_minutes INTEGER NOT NULL,
		work_start_minute INTEGER NOT NULL,
		work_end_minute INTEGER NOT NULL,
		working_days TEXT NOT NULL,
		buffer_minutes INTEGER NOT NULL,
		lunch_start_minute INTEGER NOT NULL,
		lunch_end_minute INTEGER NOT NULL,
		avoid_lunch_hours INTEGER NOT NULL DEFAULT 1,
		max_events_per_day INTEGER NOT NULL,
		max_reschedule_count INTEGER NOT NULL,
		min_notice_hours INTEGER NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		is_default INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS reschedule_requests (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL REFERENCES calendar_events(id),
		requester_id TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		proposed_slots TEXT NOT NULL DEFAULT '[]',
		use_auto_schedule INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		processed_by TEXT,
		processed_at TEXT,
		processing_note TEXT,
		new_event_id TEXT,
		selected_new_start_time TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS staff_workloads (
		staff_id TEXT NOT NULL,
		date TEXT NOT NULL,
		scheduled_minutes INTEGER NOT NULL DEFAULT 0,
		daily_capacity_minutes INTEGER NOT NULL,
		event_count INTEGER NOT NULL DEFAULT 0,
		utilization_rate REAL NOT NULL DEFAULT 0,
		is_overloaded INTEGER NOT NULL DEFAULT 0,
		can_accept_new_event INTEGER NOT NULL DEFAULT 1,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (staff_id, date)
	)`,
}

// --- shared scan/encode helpers ---

func timeText(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite: parse timestamp %q: %w", value, err)
	}
	return t, nil
}

func nullTimeText(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: timeText(*t), Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	value := ns.String
	return &value
}

func timePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// mapError translates driver errors into persistence sentinels. modernc's
// driver only exposes message text, so matching follows the constraint names.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.ErrNotFound
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return persistence.ErrDuplicate
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return persistence.ErrForeignKeyViolation
	case strings.Contains(msg, "CHECK constraint failed"):
		return persistence.ErrConstraintViolation
	}
	return err
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

func toAnySlice(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
