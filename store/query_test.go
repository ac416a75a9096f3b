package store

import (
	"testing"
	"time"

	"github.com/robertmeta/ferment-cli/model"
	"github.com/robertmeta/ferment-cli/stress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{
			name:     "90 minutes",
			input:    "90m",
			expected: 90 * time.Minute,
		},
		{
			name:     "12 hours",
			input:    "12h",
			expected: 12 * time.Hour,
		},
		{
			name:     "1 day",
			input:    "1d",
			expected: 24 * time.Hour,
		},
		{
			name:     "fractional days",
			input:    "1.5d",
			expected: 36 * time.Hour,
		},
		{
			name:     "2 weeks",
			input:    "2w",
			expected: 14 * 24 * time.Hour,
		},
		{
			name:    "invalid format - no number",
			input:   "d",
			wantErr: true,
		},
		{
			name:    "invalid format - no unit",
			input:   "7",
			wantErr: true,
		},
		{
			name:    "invalid unit",
			input:   "7y",
			wantErr: true,
		},
		{
			name:    "empty string",
			input:   "",
			wantErr: true,
		},
		{
			name:    "negative number",
			input:   "-7d",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDuration(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expected, got)
			}
		})
	}
}

func TestParseInterval(t *testing.T) {
	hours, err := ParseInterval("16h")
	require.NoError(t, err)
	assert.Equal(t, 16.0, hours)

	hours, err = ParseInterval("1w")
	require.NoError(t, err)
	assert.Equal(t, 168.0, hours)

	_, err = ParseInterval("0h")
	assert.Error(t, err, "zero interval")

	_, err = ParseInterval("soon")
	assert.Error(t, err)
}

func TestParseAt(t *testing.T) {
	now := time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		{name: "empty means now", input: "", want: now},
		{name: "duration ago", input: "3h", want: now.Add(-3 * time.Hour)},
		{name: "days ago", input: "1d", want: now.Add(-24 * time.Hour)},
		{name: "timestamp", input: "2024-03-01T08:00:00Z", want: t0},
		{name: "garbage", input: "yesterday", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAt(tt.input, now)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %v, want %v", got, tt.want)
		})
	}
}

func TestBuildListOptions(t *testing.T) {
	tests := []struct {
		name        string
		location    string
		label       string
		expectError bool
		checkOpts   func(t *testing.T, opts ListOptions)
	}{
		{
			name: "no filters",
			checkOpts: func(t *testing.T, opts ListOptions) {
				assert.Empty(t, opts.Location)
				assert.Empty(t, opts.Label)
			},
		},
		{
			name:     "location filter is normalized",
			location: " Fridge ",
			checkOpts: func(t *testing.T, opts ListOptions) {
				assert.Equal(t, model.LocationFridge, opts.Location)
			},
		},
		{
			name:  "label filter",
			label: "needs_feed",
			checkOpts: func(t *testing.T, opts ListOptions) {
				assert.Equal(t, stress.LabelNeedsFeed, opts.Label)
				assert.True(t, opts.Matches(stress.Status{Label: stress.LabelNeedsFeed}))
				assert.False(t, opts.Matches(stress.Status{Label: stress.LabelHappy}))
			},
		},
		{
			name:        "invalid label",
			label:       "hungry",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := BuildListOptions(tt.location, tt.label)
			if tt.expectError {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				if tt.checkOpts != nil {
					tt.checkOpts(t, opts)
				}
			}
		})
	}
}
