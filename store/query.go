package store

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robertmeta/ferment-cli/model"
	"github.com/robertmeta/ferment-cli/stress"
)

// durationPattern matches duration strings like "12h", "1d", "1.5d", "2w"
var durationPattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)([mhdw])$`)

// ListOptions specifies which starters to list.
type ListOptions struct {
	Location model.Location
	Label    stress.Label
}

// Matches reports whether a computed status passes the label filter.
func (o ListOptions) Matches(st stress.Status) bool {
	return o.Label == "" || st.Label == o.Label
}

// ParseDuration parses a duration string like "90m", "12h", "1d", "2w".
// Returns the duration or an error if the format is invalid.
//
// Supported units:
//   - m: minutes
//   - h: hours
//   - d: days
//   - w: weeks (7 days)
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("duration string is empty")
	}

	matches := durationPattern.FindStringSubmatch(strings.TrimSpace(s))
	if matches == nil {
		return 0, fmt.Errorf("invalid duration format: %s (expected format: <number><unit>, e.g., 90m, 12h, 1d, 2w)", s)
	}

	num, err := strconv.ParseFloat(matches[1], 64)
	if err != nil || num < 0 {
		return 0, fmt.Errorf("invalid number in duration: %s", matches[1])
	}

	var unit time.Duration
	switch matches[2] {
	case "m":
		unit = time.Minute
	case "h":
		unit = time.Hour
	case "d":
		unit = 24 * time.Hour
	case "w":
		unit = 7 * 24 * time.Hour
	default:
		return 0, fmt.Errorf("invalid duration unit: %s (expected m, h, d, or w)", matches[2])
	}

	return time.Duration(num * float64(unit)), nil
}

// ParseInterval parses a feed interval like "12h" into hours.
// The interval must be positive.
func ParseInterval(s string) (float64, error) {
	d, err := ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("feed interval must be positive: %s", s)
	}
	return d.Hours(), nil
}

// ParseAt resolves an --at flag against now. An empty string means now, a
// duration like "3h" means that long before now, anything else must be an
// RFC 3339 timestamp.
func ParseAt(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return now, nil
	}
	if durationPattern.MatchString(s) {
		d, err := ParseDuration(s)
		if err != nil {
			return time.Time{}, err
		}
		return now.Add(-d), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q (expected RFC 3339 or a duration ago, e.g., 3h)", s)
	}
	return t, nil
}

// BuildListOptions constructs ListOptions from CLI flags.
func BuildListOptions(location, label string) (ListOptions, error) {
	opts := ListOptions{}

	if location != "" {
		opts.Location = model.ParseLocation(location)
	}

	if label != "" {
		l, ok := stress.ParseLabel(label)
		if !ok {
			return opts, fmt.Errorf("invalid label %q (expected one of unknown, happy, due_soon, needs_feed)", label)
		}
		opts.Label = l
	}

	return opts, nil
}
