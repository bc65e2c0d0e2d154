package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Record is one session run.
type Record struct {
	ID        string        `json:"id"`
	Device    string        `json:"device"`
	Module    string        `json:"module"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   time.Time     `json:"ended_at,omitzero"`
	Elapsed   time.Duration `json:"elapsed"`
	Taps      int           `json:"taps"`
	Runs      int           `json:"runs"`
	EndReason string        `json:"end_reason,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// Event is one entry of a session's event log.
type Event struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Type      string    `json:"type"`
	Control   string    `json:"control,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Filter controls which sessions to return.
type Filter struct {
	Device string // optional: only sessions of this device
	Limit  int    // default 50, max 200
}

// Repository defines the interface for run history operations.
type Repository interface {
	SaveSession(ctx context.Context, rec *Record) error
	GetSession(ctx context.Context, id string) (*Record, error)
	ListSessions(ctx context.Context, filter Filter) ([]Record, error)
	AppendEvent(ctx context.Context, ev *Event) error
	ListEvents(ctx context.Context, sessionID string, limit int) ([]Event, error)
}

const (
	defaultLimit = 50
	maxLimit     = 200
)

// SQLiteRepository stores run history in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new run history repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// NewID returns a new session ID.
func NewID() string {
	return uuid.NewString()
}

// SaveSession inserts or updates a session record. The ID is generated if empty.
func (r *SQLiteRepository) SaveSession(ctx context.Context, rec *Record) error {
	if rec.Device == "" || rec.Module == "" {
		return fmt.Errorf("%w: device and module are required", ErrInvalidRecord)
	}
	if rec.ID == "" {
		rec.ID = NewID()
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, device, module, started_at, ended_at, elapsed_ms, taps, runs, end_reason, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		     device = excluded.device,
		     ended_at = excluded.ended_at,
		     elapsed_ms = excluded.elapsed_ms,
		     taps = excluded.taps,
		     runs = excluded.runs,
		     end_reason = excluded.end_reason,
		     error = excluded.error`,
		rec.ID, rec.Device, rec.Module,
		formatTime(rec.StartedAt), nullableTime(rec.EndedAt),
		rec.Elapsed.Milliseconds(), rec.Taps, rec.Runs,
		rec.EndReason, rec.Error,
	)
	if err != nil {
		return fmt.Errorf("saving session %s: %w", rec.ID, err)
	}
	return nil
}

// GetSession returns one session record.
func (r *SQLiteRepository) GetSession(ctx context.Context, id string) (*Record, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, device, module, started_at, ended_at, elapsed_ms, taps, runs, end_reason, error
		 FROM sessions WHERE id = ?`, id)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListSessions returns sessions matching the filter, most recent first.
func (r *SQLiteRepository) ListSessions(ctx context.Context, filter Filter) ([]Record, error) {
	limit := clampLimit(filter.Limit)

	query := `SELECT id, device, module, started_at, ended_at, elapsed_ms, taps, runs, end_reason, error
	          FROM sessions`
	args := []any{}
	if filter.Device != "" {
		query += ` WHERE device = ?`
		args = append(args, filter.Device)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return records, nil
}

// AppendEvent adds an entry to a session's event log. The ID and CreatedAt
// are generated if empty.
func (r *SQLiteRepository) AppendEvent(ctx context.Context, ev *Event) error {
	if ev.SessionID == "" || ev.Type == "" {
		return fmt.Errorf("%w: session_id and type are required", ErrInvalidRecord)
	}
	if ev.ID == "" {
		ev.ID = "evt-" + uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO session_events (id, session_id, type, control, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.SessionID, ev.Type, ev.Control, ev.Detail, formatTime(ev.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting session event: %w", err)
	}
	return nil
}

// ListEvents returns the most recent events of a session, newest first.
func (r *SQLiteRepository) ListEvents(ctx context.Context, sessionID string, limit int) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, session_id, type, control, detail, created_at
		 FROM session_events WHERE session_id = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		sessionID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying session events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var ev Event
		var createdAt string
		if err := rows.Scan(&ev.ID, &ev.SessionID, &ev.Type, &ev.Control, &ev.Detail, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning session event: %w", err)
		}
		if ev.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session events: %w", err)
	}
	return events, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*Record, error) {
	var rec Record
	var startedAt string
	var endedAt sql.NullString
	var elapsedMS int64

	if err := s.Scan(&rec.ID, &rec.Device, &rec.Module, &startedAt, &endedAt,
		&elapsedMS, &rec.Taps, &rec.Runs, &rec.EndReason, &rec.Error); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning session: %w", err)
	}

	var err error
	if rec.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if endedAt.Valid && endedAt.String != "" {
		if rec.EndedAt, err = parseTime(endedAt.String); err != nil {
			return nil, err
		}
	}
	rec.Elapsed = time.Duration(elapsedMS) * time.Millisecond
	return &rec, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	return min(limit, maxLimit)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// nullableTime returns nil for the zero time. Used for nullable TEXT columns.
func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return formatTime(t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}
