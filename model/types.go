// Package model defines the core data structures for ferment-cli.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robertmeta/ferment-cli/stress"
)

// ErrInvalidStarter is wrapped by every validation failure.
var ErrInvalidStarter = errors.New("invalid starter")

// Location is a storage-location tag.
type Location string

const (
	LocationCounter Location = "counter"
	LocationFridge  Location = "fridge"
)

// ParseLocation normalizes a user-supplied location tag. Unknown tags are
// kept as-is; they ferment at baseline speed.
func ParseLocation(s string) Location {
	return Location(strings.ToLower(strings.TrimSpace(s)))
}

// EventKind distinguishes feed actions from location changes.
type EventKind string

const (
	EventFeed EventKind = "feed"
	EventMove EventKind = "move"
)

// Starter is a fermentation project that needs periodic feeding.
type Starter struct {
	ID            int64     `json:"id"`
	UID           string    `json:"uid"`
	Name          string    `json:"name"`
	Kind          string    `json:"kind,omitempty"`
	IntervalHours float64   `json:"interval_hours"`
	LastFedAt     string    `json:"last_fed_at"`
	Location      Location  `json:"location"`
	FedLocation   Location  `json:"fed_location"`
	CreatedAt     time.Time `json:"created_at"`
}

// Validate checks if the starter has required fields.
func (s *Starter) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidStarter)
	}
	if !(s.IntervalHours > 0) {
		return fmt.Errorf("%w: feed interval must be positive, got %v", ErrInvalidStarter, s.IntervalHours)
	}
	if s.Location == "" {
		return fmt.Errorf("%w: location is required", ErrInvalidStarter)
	}
	return nil
}

// Record returns the snapshot the stress calculator works on. The location
// in effect for the first segment is where the starter was when last fed.
func (s *Starter) Record() stress.Record {
	loc := s.FedLocation
	if loc == "" {
		loc = s.Location
	}
	return stress.Record{
		IntervalHours: s.IntervalHours,
		LastFedAt:     s.LastFedAt,
		Location:      string(loc),
	}
}

// Event is an append-only history row for a starter.
type Event struct {
	ID          int64     `json:"id"`
	StarterID   int64     `json:"starter_id"`
	Kind        EventKind `json:"kind"`
	OccurredAt  time.Time `json:"occurred_at"`
	NewLocation *Location `json:"new_location"`
	Note        string    `json:"note,omitempty"`
}

// IsMove returns true for location-change events, including markers
// without a location.
func (e *Event) IsMove() bool {
	return e.Kind == EventMove
}

// Moves converts the move events in events to calculator input. Feed events
// are dropped.
func Moves(events []*Event) []stress.Move {
	moves := make([]stress.Move, 0, len(events))
	for _, e := range events {
		if !e.IsMove() {
			continue
		}
		m := stress.Move{At: e.OccurredAt}
		if e.NewLocation != nil {
			loc := string(*e.NewLocation)
			m.Location = &loc
		}
		moves = append(moves, m)
	}
	return moves
}

// StarterStatus pairs a starter with its computed status for display.
type StarterStatus struct {
	Starter *Starter      `json:"starter"`
	Status  stress.Status `json:"status"`
}

// Evaluate computes the status of s at now using the given speed model.
func Evaluate(m *stress.Model, s *Starter, events []*Event, now time.Time) StarterStatus {
	return StarterStatus{
		Starter: s,
		Status:  m.ComputeStatus(s.Record(), Moves(events), now),
	}
}
