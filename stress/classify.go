package stress

// Label is the urgency classification of a Status.
type Label string

const (
	LabelUnknown   Label = "unknown"
	LabelHappy     Label = "happy"
	LabelDueSoon   Label = "due_soon"
	LabelNeedsFeed Label = "needs_feed"
)

// Ratio thresholds. Both are lower bounds of the next label.
const (
	ThresholdDueSoon   = 0.7
	ThresholdNeedsFeed = 1.0
)

// Labels lists every label in order of increasing urgency.
var Labels = []Label{LabelUnknown, LabelHappy, LabelDueSoon, LabelNeedsFeed}

// Status is the result of ComputeStatus.
type Status struct {
	// Stress is the accumulated baseline hours since the last feed.
	Stress float64 `json:"stress"`

	// Ratio is Stress divided by the feed interval. It is 0 when the
	// interval is not usable.
	Ratio float64 `json:"ratio"`

	// Hours is the wall-clock time since the last feed.
	Hours float64 `json:"hours"`

	Label Label `json:"label"`
}

// Classify normalizes stress by the feed interval and labels the result.
// A zero, negative or non-finite interval yields (0, LabelUnknown).
func Classify(stress, intervalHours float64) (float64, Label) {
	if !(intervalHours > 0) || !isFinite(intervalHours) {
		return 0, LabelUnknown
	}
	ratio := stress / intervalHours
	if !isFinite(ratio) {
		return 0, LabelUnknown
	}
	return ratio, LabelFor(ratio)
}

// LabelFor maps a ratio to a label.
func LabelFor(ratio float64) Label {
	switch {
	case !isFinite(ratio):
		return LabelUnknown
	case ratio < ThresholdDueSoon:
		return LabelHappy
	case ratio < ThresholdNeedsFeed:
		return LabelDueSoon
	default:
		return LabelNeedsFeed
	}
}

// ParseLabel returns the label named s.
func ParseLabel(s string) (Label, bool) {
	for _, l := range Labels {
		if string(l) == s {
			return l, true
		}
	}
	return "", false
}
