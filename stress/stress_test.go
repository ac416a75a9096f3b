package stress

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func loc(s string) *string { return &s }

func fedAt(t time.Time) string { return t.Format(time.RFC3339) }

func TestParseFedAt(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   time.Time
		wantOK bool
	}{
		{"rfc3339", "2024-03-01T08:00:00Z", t0, true},
		{"rfc3339 with offset", "2024-03-01T10:00:00+02:00", t0, true},
		{"fractional seconds", "2024-03-01T08:00:00.000Z", t0, true},
		{"no zone", "2024-03-01T08:00:00", t0, true},
		{"sql style", "2024-03-01 08:00:00", t0, true},
		{"surrounding space", "  2024-03-01T08:00:00Z ", t0, true},
		{"not a date", "not-a-date", time.Time{}, false},
		{"empty", "", time.Time{}, false},
		{"date only", "2024-03-01", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseFedAt(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.True(t, tt.want.Equal(got), "got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestComputeStatus_Scenarios(t *testing.T) {
	tests := []struct {
		name       string
		rec        Record
		moves      []Move
		now        time.Time
		wantStress float64
		wantRatio  float64
		wantLabel  Label
	}{
		{
			name:       "fridge slows accumulation",
			rec:        Record{IntervalHours: 16, LastFedAt: fedAt(t0), Location: LocationFridge},
			now:        t0.Add(48 * time.Hour),
			wantStress: 16,
			wantRatio:  1,
			wantLabel:  LabelNeedsFeed,
		},
		{
			name: "move mid-interval",
			rec:  Record{IntervalHours: 16, LastFedAt: fedAt(t0), Location: LocationCounter},
			moves: []Move{
				{At: t0.Add(8 * time.Hour), Location: loc(LocationFridge)},
			},
			now:        t0.Add(32 * time.Hour),
			wantStress: 16,
			wantRatio:  1,
			wantLabel:  LabelNeedsFeed,
		},
		{
			name: "marker without location keeps current speed",
			rec:  Record{IntervalHours: 24, LastFedAt: fedAt(t0), Location: LocationFridge},
			moves: []Move{
				{At: t0.Add(12 * time.Hour)},
			},
			now:        t0.Add(36 * time.Hour),
			wantStress: 12,
			wantRatio:  0.5,
			wantLabel:  LabelHappy,
		},
		{
			name: "marker between moves measures from itself",
			rec:  Record{IntervalHours: 20, LastFedAt: fedAt(t0), Location: LocationCounter},
			moves: []Move{
				{At: t0.Add(6 * time.Hour), Location: loc(LocationFridge)},
				{At: t0.Add(9 * time.Hour)},
				{At: t0.Add(12 * time.Hour), Location: loc(LocationCounter)},
			},
			// 6*1 + 3/3 + 3/3 + 2*1
			now:        t0.Add(14 * time.Hour),
			wantStress: 10,
			wantRatio:  0.5,
			wantLabel:  LabelHappy,
		},
		{
			name: "unsorted moves",
			rec:  Record{IntervalHours: 16, LastFedAt: fedAt(t0), Location: LocationCounter},
			moves: []Move{
				{At: t0.Add(10 * time.Hour), Location: loc(LocationCounter)},
				{At: t0.Add(4 * time.Hour), Location: loc(LocationFridge)},
			},
			// 4*1 + 6/3 + 6*1
			now:        t0.Add(16 * time.Hour),
			wantStress: 12,
			wantRatio:  0.75,
			wantLabel:  LabelDueSoon,
		},
		{
			name:       "unknown location runs at baseline",
			rec:        Record{IntervalHours: 10, LastFedAt: fedAt(t0), Location: "garage"},
			now:        t0.Add(5 * time.Hour),
			wantStress: 5,
			wantRatio:  0.5,
			wantLabel:  LabelHappy,
		},
		{
			name:       "now before last feed",
			rec:        Record{IntervalHours: 10, LastFedAt: fedAt(t0), Location: LocationCounter},
			now:        t0.Add(-3 * time.Hour),
			wantStress: 0,
			wantRatio:  0,
			wantLabel:  LabelHappy,
		},
		{
			name:       "zero interval",
			rec:        Record{IntervalHours: 0, LastFedAt: fedAt(t0), Location: LocationCounter},
			now:        t0.Add(5 * time.Hour),
			wantStress: 5,
			wantRatio:  0,
			wantLabel:  LabelUnknown,
		},
		{
			name:       "negative interval",
			rec:        Record{IntervalHours: -8, LastFedAt: fedAt(t0), Location: LocationCounter},
			now:        t0.Add(5 * time.Hour),
			wantStress: 5,
			wantRatio:  0,
			wantLabel:  LabelUnknown,
		},
		{
			name:       "zero interval with zero stress",
			rec:        Record{IntervalHours: 0, LastFedAt: fedAt(t0), Location: LocationCounter},
			now:        t0,
			wantStress: 0,
			wantRatio:  0,
			wantLabel:  LabelUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeStatus(tt.rec, tt.moves, tt.now)
			assert.InDelta(t, tt.wantStress, got.Stress, 1e-9)
			assert.InDelta(t, tt.wantRatio, got.Ratio, 1e-9)
			assert.Equal(t, tt.wantLabel, got.Label)
		})
	}
}

func TestComputeStatus_BadLastFedAt(t *testing.T) {
	want := Status{Stress: 0, Ratio: 0, Label: LabelUnknown}

	inputs := []Record{
		{IntervalHours: 16, LastFedAt: "not-a-date", Location: LocationCounter},
		{IntervalHours: 0, LastFedAt: "not-a-date", Location: LocationFridge},
		{IntervalHours: -1, LastFedAt: "", Location: "garage"},
	}
	moves := []Move{{At: t0.Add(time.Hour), Location: loc(LocationFridge)}}

	for _, rec := range inputs {
		assert.Equal(t, want, ComputeStatus(rec, moves, t0.Add(100*time.Hour)))
		assert.Equal(t, want, ComputeStatus(rec, nil, t0))
	}
}

func TestComputeStatus_Deterministic(t *testing.T) {
	rec := Record{IntervalHours: 13, LastFedAt: fedAt(t0), Location: LocationCounter}
	moves := []Move{
		{At: t0.Add(90 * time.Minute), Location: loc(LocationFridge)},
		{At: t0.Add(90 * time.Minute), Location: loc(LocationCounter)},
		{At: t0.Add(7*time.Hour + 13*time.Minute)},
		{At: t0.Add(9 * time.Hour), Location: loc(LocationFridge)},
	}
	now := t0.Add(17*time.Hour + 41*time.Minute)

	first := ComputeStatus(rec, moves, now)
	for i := 0; i < 10; i++ {
		got := ComputeStatus(rec, moves, now)
		assert.Equal(t, math.Float64bits(first.Stress), math.Float64bits(got.Stress))
		assert.Equal(t, math.Float64bits(first.Ratio), math.Float64bits(got.Ratio))
		assert.Equal(t, first.Label, got.Label)
	}
}

func TestComputeStatus_DoesNotMutateMoves(t *testing.T) {
	moves := []Move{
		{At: t0.Add(5 * time.Hour), Location: loc(LocationCounter)},
		{At: t0.Add(2 * time.Hour), Location: loc(LocationFridge)},
	}
	rec := Record{IntervalHours: 12, LastFedAt: fedAt(t0), Location: LocationCounter}

	ComputeStatus(rec, moves, t0.Add(8*time.Hour))
	assert.True(t, moves[0].At.Equal(t0.Add(5*time.Hour)))
	assert.True(t, moves[1].At.Equal(t0.Add(2*time.Hour)))
}

func TestComputeStatus_Monotonic(t *testing.T) {
	rec := Record{IntervalHours: 12, LastFedAt: fedAt(t0), Location: LocationCounter}
	moves := []Move{
		{At: t0.Add(3 * time.Hour), Location: loc(LocationFridge)},
		{At: t0.Add(20 * time.Hour)},
		{At: t0.Add(30 * time.Hour), Location: loc("cellar")},
	}

	prev := -1.0
	for step := -5; step <= 60; step++ {
		now := t0.Add(time.Duration(step) * 30 * time.Minute)
		got := ComputeStatus(rec, moves, now)
		require.GreaterOrEqual(t, got.Stress, prev, "stress decreased at step %d", step)
		prev = got.Stress
	}
}

func TestComputeStatus_StaleMovesAreNoOps(t *testing.T) {
	rec := Record{IntervalHours: 16, LastFedAt: fedAt(t0), Location: LocationCounter}
	moves := []Move{{At: t0.Add(8 * time.Hour), Location: loc(LocationFridge)}}
	now := t0.Add(32 * time.Hour)
	want := ComputeStatus(rec, moves, now)

	stale := []Move{
		{At: t0, Location: loc(LocationFridge)},
		{At: t0.Add(-time.Hour), Location: loc(LocationFridge)},
		{At: t0.Add(-72 * time.Hour)},
		{At: t0.Add(-time.Minute), Location: loc("garage")},
	}
	for n := 1; n <= len(stale); n++ {
		withStale := append(append([]Move{}, stale[:n]...), moves...)
		assert.Equal(t, want, ComputeStatus(rec, withStale, now), "with %d stale moves", n)
	}
}

func TestComputeStatus_SingleLocationEquivalence(t *testing.T) {
	markers := []Move{
		{At: t0.Add(2 * time.Hour)},
		{At: t0.Add(11 * time.Hour)},
	}
	for _, location := range []string{LocationCounter, LocationFridge, "garage"} {
		t.Run(location, func(t *testing.T) {
			rec := Record{IntervalHours: 24, LastFedAt: fedAt(t0), Location: location}
			now := t0.Add(30 * time.Hour)
			want := now.Sub(t0).Hours() * SpeedMultiplier(location)

			assert.Equal(t, want, ComputeStatus(rec, nil, now).Stress)
			assert.InDelta(t, want, ComputeStatus(rec, markers, now).Stress, 1e-9)
		})
	}
}

func TestComputeStatus_MovesAfterNow(t *testing.T) {
	rec := Record{IntervalHours: 10, LastFedAt: fedAt(t0), Location: LocationCounter}
	moves := []Move{{At: t0.Add(10 * time.Hour), Location: loc(LocationFridge)}}

	got := ComputeStatus(rec, moves, t0.Add(4*time.Hour))
	// The segment after the move runs backwards and adds nothing.
	assert.InDelta(t, 10.0, got.Stress, 1e-9)
	assert.Equal(t, LabelNeedsFeed, got.Label)
}

func TestComputeStatus_Hours(t *testing.T) {
	rec := Record{IntervalHours: 10, LastFedAt: fedAt(t0), Location: LocationFridge}
	got := ComputeStatus(rec, nil, t0.Add(6*time.Hour))
	assert.InDelta(t, 6.0, got.Hours, 1e-9)
	assert.InDelta(t, 2.0, got.Stress, 1e-9)
}

func TestModel_ConfiguredLocation(t *testing.T) {
	m := NewModel(map[string]float64{"cellar": 0.5})
	rec := Record{IntervalHours: 8, LastFedAt: fedAt(t0), Location: "cellar"}

	got := m.ComputeStatus(rec, nil, t0.Add(8*time.Hour))
	assert.InDelta(t, 4.0, got.Stress, 1e-9)
	assert.Equal(t, LabelHappy, got.Label)

	// The default model does not know about the cellar.
	assert.Equal(t, LabelNeedsFeed, ComputeStatus(rec, nil, t0.Add(8*time.Hour)).Label)
}
