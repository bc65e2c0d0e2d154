package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Inventory persists discovered emulators.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Inventory interface {
	// Get retrieves an emulator by serial.
	// Returns ErrEmulatorNotFound if the serial is unknown.
	Get(ctx context.Context, serial string) (*Emulator, error)

	// List retrieves all emulators ordered by serial.
	List(ctx context.Context) ([]Emulator, error)

	// Upsert inserts or replaces an emulator record.
	Upsert(ctx context.Context, e *Emulator) error

	// Delete removes an emulator by serial.
	// Returns ErrEmulatorNotFound if the serial is unknown.
	Delete(ctx context.Context, serial string) error
}

// SQLiteInventory implements Inventory using SQLite.
type SQLiteInventory struct {
	db *sql.DB
}

// NewSQLiteInventory creates a new SQLite-backed inventory.
// The db parameter should be an open, migrated SQLite connection.
func NewSQLiteInventory(db *sql.DB) *SQLiteInventory {
	return &SQLiteInventory{db: db}
}

// Get retrieves an emulator by serial.
func (r *SQLiteInventory) Get(ctx context.Context, serial string) (*Emulator, error) {
	query := `
		SELECT serial, model, brand, name, android, kind, last_seen
		FROM emulators
		WHERE serial = ?`

	e, err := scanEmulator(r.db.QueryRowContext(ctx, query, serial))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEmulatorNotFound
		}
		return nil, fmt.Errorf("querying emulator: %w", err)
	}
	return e, nil
}

// List retrieves all emulators.
func (r *SQLiteInventory) List(ctx context.Context) ([]Emulator, error) {
	query := `
		SELECT serial, model, brand, name, android, kind, last_seen
		FROM emulators
		ORDER BY serial`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying emulators: %w", err)
	}
	defer rows.Close()

	var out []Emulator
	for rows.Next() {
		e, err := scanEmulator(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning emulator: %w", err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating emulators: %w", err)
	}
	return out, nil
}

// Upsert inserts or replaces an emulator record. Empty probe fields do not
// overwrite values recorded earlier, so an offline sighting keeps the model.
func (r *SQLiteInventory) Upsert(ctx context.Context, e *Emulator) error {
	if e.Serial == "" {
		return ErrInvalidSerial
	}
	if e.Kind == "" {
		e.Kind = KindUnknown
	}
	if e.LastSeen.IsZero() {
		e.LastSeen = time.Now().UTC()
	}

	query := `
		INSERT INTO emulators (serial, model, brand, name, android, kind, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(serial) DO UPDATE SET
			model = CASE WHEN excluded.model != '' THEN excluded.model ELSE emulators.model END,
			brand = CASE WHEN excluded.brand != '' THEN excluded.brand ELSE emulators.brand END,
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE emulators.name END,
			android = CASE WHEN excluded.android != '' THEN excluded.android ELSE emulators.android END,
			kind = CASE WHEN excluded.kind != 'Unknown' THEN excluded.kind ELSE emulators.kind END,
			last_seen = excluded.last_seen`

	_, err := r.db.ExecContext(ctx, query,
		e.Serial, e.Model, e.Brand, e.Name, e.Android, string(e.Kind),
		e.LastSeen.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upserting emulator: %w", err)
	}
	return nil
}

// Delete removes an emulator by serial.
func (r *SQLiteInventory) Delete(ctx context.Context, serial string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM emulators WHERE serial = ?`, serial)
	if err != nil {
		return fmt.Errorf("deleting emulator: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrEmulatorNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEmulator(row rowScanner) (*Emulator, error) {
	var (
		e        Emulator
		kind     string
		lastSeen string
	)
	if err := row.Scan(&e.Serial, &e.Model, &e.Brand, &e.Name, &e.Android, &kind, &lastSeen); err != nil {
		return nil, err
	}
	e.Kind = Kind(kind)
	t, err := time.Parse(time.RFC3339Nano, lastSeen)
	if err != nil {
		return nil, fmt.Errorf("parsing last_seen: %w", err)
	}
	e.LastSeen = t
	return &e, nil
}
