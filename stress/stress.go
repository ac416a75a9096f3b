// Package stress computes how urgently a fermentation project needs feeding.
//
// Stress is measured in baseline hours: one hour on the counter adds one
// unit, one hour in the fridge adds a third of a unit. The time since the
// last feed is split into segments at every location change and each segment
// is weighted by the speed of the location in effect during it.
//
// Everything here is a pure function of its arguments. Nothing reads the
// clock, logs, or returns an error; malformed input yields LabelUnknown.
package stress

import (
	"math"
	"sort"
	"strings"
	"time"
)

// Record is the feeding snapshot the calculator reads.
type Record struct {
	// IntervalHours is the nominal time between feeds at baseline speed.
	IntervalHours float64

	// LastFedAt is the raw last-feed timestamp. It may be malformed.
	LastFedAt string

	// Location is the location in effect at the last feed.
	Location string
}

// Move is a location-change event. A nil Location marks a point on the
// timeline without changing location.
type Move struct {
	At       time.Time
	Location *string
}

// fedAtLayouts are tried in order by ParseFedAt.
var fedAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseFedAt parses a last-fed timestamp. Layouts without a zone are read as
// UTC.
func ParseFedAt(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range fedAtLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Accumulate integrates elapsed time since fedAt against location speeds and
// returns the stress in baseline hours. Moves at or before the running cursor
// are skipped, so callers need not filter out moves that predate the feed.
func (m *Model) Accumulate(fedAt time.Time, location string, moves []Move, now time.Time) float64 {
	sorted := make([]Move, len(moves))
	copy(sorted, moves)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].At.Before(sorted[j].At)
	})

	total := 0.0
	cursor := fedAt
	current := location
	for _, mv := range sorted {
		if !mv.At.After(cursor) {
			continue
		}
		total += m.segment(cursor, mv.At, current)
		if mv.Location != nil {
			current = *mv.Location
		}
		cursor = mv.At
	}
	total += m.segment(cursor, now, current)
	return total
}

// segment returns the stress of one constant-location span. Spans that are
// empty or run backwards contribute nothing.
func (m *Model) segment(from, to time.Time, location string) float64 {
	hours := to.Sub(from).Hours()
	if !(hours > 0) {
		return 0
	}
	return hours * m.Speed(location)
}

// ComputeStatus evaluates rec at now.
func (m *Model) ComputeStatus(rec Record, moves []Move, now time.Time) Status {
	fedAt, ok := ParseFedAt(rec.LastFedAt)
	if !ok {
		return Status{Label: LabelUnknown}
	}

	st := m.Accumulate(fedAt, rec.Location, moves, now)
	hours := now.Sub(fedAt).Hours()
	if hours < 0 {
		hours = 0
	}

	ratio, label := Classify(st, rec.IntervalHours)
	return Status{
		Stress: st,
		Ratio:  ratio,
		Hours:  hours,
		Label:  label,
	}
}

// ComputeStatus evaluates rec at now with the built-in location speeds.
func ComputeStatus(rec Record, moves []Move, now time.Time) Status {
	return DefaultModel.ComputeStatus(rec, moves, now)
}

// isFinite reports whether v is neither NaN nor infinite.
func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
