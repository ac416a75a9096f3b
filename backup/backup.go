// Package backup provides YAML export and import of starters and their
// event history for ferment-cli.
package backup

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/robertmeta/ferment-cli/model"
	"github.com/robertmeta/ferment-cli/store"
	"gopkg.in/yaml.v3"
)

// Version is the backup format version written by Generate.
const Version = 1

// Backup represents the root backup document.
type Backup struct {
	Version    int       `yaml:"version"`
	ExportedAt time.Time `yaml:"exported_at"`
	Starters   []Starter `yaml:"starters"`
}

// Starter is a starter with its full history.
type Starter struct {
	UID           string    `yaml:"uid"`
	Name          string    `yaml:"name"`
	Kind          string    `yaml:"kind,omitempty"`
	IntervalHours float64   `yaml:"interval_hours"`
	LastFedAt     string    `yaml:"last_fed_at"`
	Location      string    `yaml:"location"`
	FedLocation   string    `yaml:"fed_location,omitempty"`
	CreatedAt     time.Time `yaml:"created_at"`
	Events        []Event   `yaml:"events,omitempty"`
}

// Event is one history entry. NewLocation is null for markers and feeds.
type Event struct {
	Kind        string    `yaml:"kind"`
	OccurredAt  time.Time `yaml:"occurred_at"`
	NewLocation *string   `yaml:"new_location"`
	Note        string    `yaml:"note,omitempty"`
}

// Generate writes a backup of starters and their history. history is keyed
// by starter ID.
func Generate(w io.Writer, starters []*model.Starter, history map[int64][]*model.Event, now time.Time) error {
	b := Backup{
		Version:    Version,
		ExportedAt: now.UTC(),
		Starters:   make([]Starter, 0, len(starters)),
	}

	for _, st := range starters {
		out := Starter{
			UID:           st.UID,
			Name:          st.Name,
			Kind:          st.Kind,
			IntervalHours: st.IntervalHours,
			LastFedAt:     st.LastFedAt,
			Location:      string(st.Location),
			FedLocation:   string(st.FedLocation),
			CreatedAt:     st.CreatedAt.UTC(),
		}
		for _, e := range history[st.ID] {
			ev := Event{
				Kind:       string(e.Kind),
				OccurredAt: e.OccurredAt.UTC(),
				Note:       e.Note,
			}
			if e.NewLocation != nil {
				loc := string(*e.NewLocation)
				ev.NewLocation = &loc
			}
			out.Events = append(out.Events, ev)
		}
		b.Starters = append(b.Starters, out)
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(&b); err != nil {
		return fmt.Errorf("failed to encode backup: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("failed to flush backup: %w", err)
	}
	return nil
}

// Parse reads a backup document and validates it.
func Parse(r io.Reader) (*Backup, error) {
	var b Backup
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&b); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse backup: document is empty")
		}
		return nil, fmt.Errorf("failed to parse backup: %w", err)
	}

	if b.Version != Version {
		return nil, fmt.Errorf("unsupported backup version %d (want %d)", b.Version, Version)
	}

	for i, st := range b.Starters {
		if st.UID == "" {
			return nil, fmt.Errorf("starter %d (%q): uid is required", i, st.Name)
		}
		if err := st.model().Validate(); err != nil {
			return nil, fmt.Errorf("starter %d (%q): %w", i, st.Name, err)
		}
		for j, ev := range st.Events {
			switch model.EventKind(ev.Kind) {
			case model.EventFeed, model.EventMove:
			default:
				return nil, fmt.Errorf("starter %d (%q) event %d: unknown kind %q", i, st.Name, j, ev.Kind)
			}
		}
	}

	return &b, nil
}

// model converts the backup starter to a new, unsaved model.Starter.
func (s Starter) model() *model.Starter {
	return &model.Starter{
		UID:           s.UID,
		Name:          s.Name,
		Kind:          s.Kind,
		IntervalHours: s.IntervalHours,
		LastFedAt:     s.LastFedAt,
		Location:      model.ParseLocation(s.Location),
		FedLocation:   model.ParseLocation(s.FedLocation),
		CreatedAt:     s.CreatedAt,
	}
}

// Store is the subset of the store used by Restore.
type Store interface {
	GetStarterByUID(uid string) (*model.Starter, error)
	RestoreStarter(st *model.Starter, events []*model.Event) error
}

// Result summarizes a Restore.
type Result struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Events   int      `json:"events"`
	Errors   []string `json:"errors,omitempty"`
}

// Restore inserts every starter in b whose UID is not already present,
// together with its history. Each starter is written with its history or not
// at all. Existing starters are skipped.
func Restore(s Store, b *Backup) Result {
	var res Result

	for _, bs := range b.Starters {
		_, err := s.GetStarterByUID(bs.UID)
		if err == nil {
			res.Skipped++
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			res.Skipped++
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", bs.UID, err))
			continue
		}

		st := bs.model()
		events := make([]*model.Event, 0, len(bs.Events))
		for _, be := range bs.Events {
			ev := &model.Event{
				Kind:       model.EventKind(be.Kind),
				OccurredAt: be.OccurredAt,
				Note:       be.Note,
			}
			if be.NewLocation != nil {
				loc := model.ParseLocation(*be.NewLocation)
				ev.NewLocation = &loc
			}
			events = append(events, ev)
		}

		if err := s.RestoreStarter(st, events); err != nil {
			res.Skipped++
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", bs.UID, err))
			continue
		}
		res.Imported++
		res.Events += len(events)
	}

	return res
}
