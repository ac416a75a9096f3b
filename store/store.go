// Package store provides SQLite database operations for ferment-cli.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robertmeta/ferment-cli/model"
	"github.com/robertmeta/ferment-cli/stress"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a starter does not exist.
var ErrNotFound = errors.New("starter not found")

// Store manages the SQLite database.
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path.
// Use ":memory:" for an in-memory database (useful for testing).
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writes.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &Store{db: db}

	if err := store.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// createSchema creates the database tables and indexes.
func (s *Store) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS starters (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uid TEXT UNIQUE NOT NULL,
		name TEXT NOT NULL,
		kind TEXT,
		interval_hours REAL NOT NULL,
		last_fed_at TEXT NOT NULL,
		location TEXT NOT NULL,
		fed_location TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		starter_id INTEGER NOT NULL,
		kind TEXT NOT NULL,
		occurred_at TEXT NOT NULL,
		new_location TEXT NULL,
		note TEXT NULL,
		FOREIGN KEY (starter_id) REFERENCES starters(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_events_starter_id ON events(starter_id);
	CREATE INDEX IF NOT EXISTS idx_starters_location ON starters(location);
	`

	_, err := s.db.Exec(schema)
	return err
}

const starterColumns = "id, uid, name, kind, interval_hours, last_fed_at, location, fed_location, created_at"

// SaveStarter saves a starter to the database.
// If the starter has an ID of 0, it will be inserted. Otherwise, it will be updated.
func (s *Store) SaveStarter(st *model.Starter) error {
	if st.ID == 0 {
		return insertStarter(s.db, st)
	}

	result, err := s.db.Exec(
		"UPDATE starters SET name = ?, kind = ?, interval_hours = ?, last_fed_at = ?, location = ?, fed_location = ? WHERE id = ?",
		st.Name, st.Kind, st.IntervalHours, st.LastFedAt, string(st.Location), string(st.FedLocation), st.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update starter: %w", err)
	}
	return requireRow(result)
}

// GetStarter retrieves a starter by ID.
func (s *Store) GetStarter(id int64) (*model.Starter, error) {
	row := s.db.QueryRow("SELECT "+starterColumns+" FROM starters WHERE id = ?", id)
	return scanStarterRow(row)
}

// GetStarterByUID retrieves a starter by its public UID.
func (s *Store) GetStarterByUID(uid string) (*model.Starter, error) {
	row := s.db.QueryRow("SELECT "+starterColumns+" FROM starters WHERE uid = ?", uid)
	return scanStarterRow(row)
}

// GetAllStarters retrieves all starters matching opts, ordered by ID.
func (s *Store) GetAllStarters(opts ListOptions) ([]*model.Starter, error) {
	query := "SELECT " + starterColumns + " FROM starters WHERE 1=1"
	args := []interface{}{}

	if opts.Location != "" {
		query += " AND location = ?"
		args = append(args, string(opts.Location))
	}
	query += " ORDER BY id"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query starters: %w", err)
	}
	defer rows.Close()

	var starters []*model.Starter
	for rows.Next() {
		st, err := scanStarter(rows)
		if err != nil {
			return nil, err
		}
		starters = append(starters, st)
	}

	return starters, rows.Err()
}

// DeleteStarter deletes a starter and its history.
func (s *Store) DeleteStarter(id int64) error {
	result, err := s.db.Exec("DELETE FROM starters WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete starter: %w", err)
	}
	return requireRow(result)
}

// RecordFeed marks the starter as fed at the given time. The location the
// starter was in at that time becomes the starting location for the next
// stress computation. A feed older than the current last feed is kept in the
// history but does not rewind the starter.
func (s *Store) RecordFeed(id int64, at time.Time) (*model.Event, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	lastFedAt, fedLocation, err := feedState(tx, id)
	if err != nil {
		return nil, err
	}

	if prev, ok := stress.ParseFedAt(lastFedAt); !ok || !at.Before(prev) {
		loc, err := locationAt(tx, id, at, fedLocation)
		if err != nil {
			return nil, err
		}
		if _, err := tx.Exec(
			"UPDATE starters SET last_fed_at = ?, fed_location = ? WHERE id = ?",
			formatTime(at), string(loc), id,
		); err != nil {
			return nil, fmt.Errorf("failed to update starter: %w", err)
		}
	}

	event := &model.Event{StarterID: id, Kind: model.EventFeed, OccurredAt: at.UTC()}
	if err := insertEvent(tx, event); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit feed: %w", err)
	}
	return event, nil
}

// RecordMove appends a move event. A nil location records a timeline marker
// and leaves the starter where it is. A backdated move only changes the
// current location when no later move exists, and it corrects the fed
// location when it precedes the last feed.
func (s *Store) RecordMove(id int64, location *model.Location, at time.Time, note string) (*model.Event, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	lastFedAt, fedLocation, err := feedState(tx, id)
	if err != nil {
		return nil, err
	}

	event := &model.Event{
		StarterID:   id,
		Kind:        model.EventMove,
		OccurredAt:  at.UTC(),
		NewLocation: location,
		Note:        note,
	}
	if err := insertEvent(tx, event); err != nil {
		return nil, err
	}

	if location != nil {
		if _, err := tx.Exec(
			`UPDATE starters SET location = ? WHERE id = ? AND NOT EXISTS (
				SELECT 1 FROM events
				WHERE starter_id = ? AND kind = ? AND new_location IS NOT NULL AND occurred_at > ?
			)`,
			string(*location), id, id, string(model.EventMove), formatTime(at),
		); err != nil {
			return nil, fmt.Errorf("failed to update starter: %w", err)
		}

		if prev, ok := stress.ParseFedAt(lastFedAt); ok && !at.After(prev) {
			loc, err := locationAt(tx, id, prev, fedLocation)
			if err != nil {
				return nil, err
			}
			if _, err := tx.Exec("UPDATE starters SET fed_location = ? WHERE id = ?", string(loc), id); err != nil {
				return nil, fmt.Errorf("failed to update starter: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit move: %w", err)
	}
	return event, nil
}

// feedState reads the last feed time and fed location of a starter.
func feedState(tx *sql.Tx, id int64) (string, model.Location, error) {
	var lastFedAt, fedLocation string
	err := tx.QueryRow("SELECT last_fed_at, fed_location FROM starters WHERE id = ?", id).Scan(&lastFedAt, &fedLocation)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", ErrNotFound
	}
	if err != nil {
		return "", "", fmt.Errorf("failed to get starter: %w", err)
	}
	return lastFedAt, model.Location(fedLocation), nil
}

// locationAt replays the move history up to at and returns the location set
// by the latest move, or fallback when no move precedes at. Markers are
// skipped.
func locationAt(tx *sql.Tx, id int64, at time.Time, fallback model.Location) (model.Location, error) {
	var loc string
	err := tx.QueryRow(
		`SELECT new_location FROM events
		WHERE starter_id = ? AND kind = ? AND new_location IS NOT NULL AND occurred_at <= ?
		ORDER BY occurred_at DESC, id DESC LIMIT 1`,
		id, string(model.EventMove), formatTime(at),
	).Scan(&loc)
	if errors.Is(err, sql.ErrNoRows) {
		return fallback, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to replay moves: %w", err)
	}
	return model.Location(loc), nil
}

// RestoreStarter inserts a starter together with its history in one
// transaction. The starter row is taken as-is; events do not move it. If any
// event fails, nothing is written.
func (s *Store) RestoreStarter(st *model.Starter, events []*model.Event) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := insertStarter(tx, st); err != nil {
		return err
	}
	for _, e := range events {
		if e.Kind != model.EventFeed && e.Kind != model.EventMove {
			st.ID = 0
			return fmt.Errorf("failed to insert event: unknown kind %q", e.Kind)
		}
		e.StarterID = st.ID
		if err := insertEvent(tx, e); err != nil {
			st.ID = 0
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		st.ID = 0
		return fmt.Errorf("failed to commit restore: %w", err)
	}
	return nil
}

// GetMoveEvents returns the move events of a starter in insertion order.
func (s *Store) GetMoveEvents(starterID int64) ([]*model.Event, error) {
	return s.queryEvents("WHERE starter_id = ? AND kind = ? ORDER BY id", starterID, string(model.EventMove))
}

// GetHistory returns every event of a starter, oldest first.
func (s *Store) GetHistory(starterID int64) ([]*model.Event, error) {
	if _, err := s.GetStarter(starterID); err != nil {
		return nil, err
	}
	return s.queryEvents("WHERE starter_id = ? ORDER BY occurred_at, id", starterID)
}

// GetMoveEventsByStarter returns the move events of all starters keyed by
// starter ID.
func (s *Store) GetMoveEventsByStarter() (map[int64][]*model.Event, error) {
	events, err := s.queryEvents("WHERE kind = ? ORDER BY starter_id, id", string(model.EventMove))
	if err != nil {
		return nil, err
	}

	grouped := make(map[int64][]*model.Event)
	for _, e := range events {
		grouped[e.StarterID] = append(grouped[e.StarterID], e)
	}
	return grouped, nil
}

func (s *Store) queryEvents(where string, args ...interface{}) ([]*model.Event, error) {
	rows, err := s.db.Query("SELECT id, starter_id, kind, occurred_at, new_location, note FROM events "+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []*model.Event
	for rows.Next() {
		e := &model.Event{}
		var kind, occurredAt string
		var newLocation, note sql.NullString

		if err := rows.Scan(&e.ID, &e.StarterID, &kind, &occurredAt, &newLocation, &note); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		e.Kind = model.EventKind(kind)
		e.OccurredAt, err = parseTime(occurredAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse event %d time: %w", e.ID, err)
		}
		if newLocation.Valid {
			loc := model.Location(newLocation.String)
			e.NewLocation = &loc
		}
		e.Note = note.String
		events = append(events, e)
	}

	return events, rows.Err()
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

func insertStarter(x execer, st *model.Starter) error {
	if st.UID == "" {
		st.UID = uuid.NewString()
	}
	if st.FedLocation == "" {
		st.FedLocation = st.Location
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now().UTC()
	}

	result, err := x.Exec(
		"INSERT INTO starters (uid, name, kind, interval_hours, last_fed_at, location, fed_location, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		st.UID, st.Name, st.Kind, st.IntervalHours, st.LastFedAt, string(st.Location), string(st.FedLocation), formatTime(st.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert starter: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	st.ID = id
	return nil
}

func insertEvent(x execer, e *model.Event) error {
	var newLocation, note interface{}
	if e.NewLocation != nil {
		newLocation = string(*e.NewLocation)
	}
	if e.Note != "" {
		note = e.Note
	}

	result, err := x.Exec(
		"INSERT INTO events (starter_id, kind, occurred_at, new_location, note) VALUES (?, ?, ?, ?, ?)",
		e.StarterID, string(e.Kind), formatTime(e.OccurredAt), newLocation, note,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	e.ID = id
	return nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanStarter(sc scanner) (*model.Starter, error) {
	st := &model.Starter{}
	var kind sql.NullString
	var location, fedLocation, createdAt string

	err := sc.Scan(&st.ID, &st.UID, &st.Name, &kind, &st.IntervalHours, &st.LastFedAt, &location, &fedLocation, &createdAt)
	if err != nil {
		return nil, err
	}

	st.Kind = kind.String
	st.Location = model.Location(location)
	st.FedLocation = model.Location(fedLocation)
	st.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse starter %d created_at: %w", st.ID, err)
	}
	return st, nil
}

func scanStarterRow(row *sql.Row) (*model.Starter, error) {
	st, err := scanStarter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get starter: %w", err)
	}
	return st, nil
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// timeLayout is RFC 3339 with a fixed-width fraction so stored UTC
// timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
