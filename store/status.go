package store

import (
	"fmt"
	"time"

	"github.com/robertmeta/ferment-cli/model"
	"github.com/robertmeta/ferment-cli/stress"
)

// Statuses loads every starter matching opts with its move events and
// evaluates it at now. Starters whose label does not match opts.Label are
// dropped.
func (s *Store) Statuses(m *stress.Model, opts ListOptions, now time.Time) ([]model.StarterStatus, error) {
	starters, err := s.GetAllStarters(opts)
	if err != nil {
		return nil, err
	}

	moves, err := s.GetMoveEventsByStarter()
	if err != nil {
		return nil, fmt.Errorf("failed to load move events: %w", err)
	}

	out := make([]model.StarterStatus, 0, len(starters))
	for _, st := range starters {
		ss := model.Evaluate(m, st, moves[st.ID], now)
		if !opts.Matches(ss.Status) {
			continue
		}
		out = append(out, ss)
	}
	return out, nil
}

// Status evaluates a single starter at now.
func (s *Store) Status(m *stress.Model, id int64, now time.Time) (model.StarterStatus, error) {
	st, err := s.GetStarter(id)
	if err != nil {
		return model.StarterStatus{}, err
	}

	moves, err := s.GetMoveEvents(id)
	if err != nil {
		return model.StarterStatus{}, err
	}

	return model.Evaluate(m, st, moves, now), nil
}
