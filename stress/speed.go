package stress

// Speed multipliers relative to room temperature.
const (
	SpeedBaseline = 1.0
	SpeedFridge   = 1.0 / 3.0
)

// Built-in location tags.
const (
	LocationCounter = "counter"
	LocationFridge  = "fridge"
)

// Model maps storage-location tags to fermentation speed multipliers.
// A nil *Model behaves like DefaultModel.
type Model struct {
	speeds map[string]float64
}

// DefaultModel knows only the built-in locations.
var DefaultModel = NewModel(nil)

// NewModel returns a Model with the built-in locations plus extra. Entries in
// extra that name a built-in location, or carry a non-positive speed, are
// ignored.
func NewModel(extra map[string]float64) *Model {
	speeds := map[string]float64{
		LocationCounter: SpeedBaseline,
		LocationFridge:  SpeedFridge,
	}
	for loc, speed := range extra {
		if _, builtin := speeds[loc]; builtin {
			continue
		}
		if !(speed > 0) {
			continue
		}
		speeds[loc] = speed
	}
	return &Model{speeds: speeds}
}

// Speed returns the multiplier for location. Unknown tags run at baseline.
func (m *Model) Speed(location string) float64 {
	if m == nil {
		m = DefaultModel
	}
	if speed, ok := m.speeds[location]; ok {
		return speed
	}
	return SpeedBaseline
}

// Locations returns a copy of the location table.
func (m *Model) Locations() map[string]float64 {
	if m == nil {
		m = DefaultModel
	}
	out := make(map[string]float64, len(m.speeds))
	for k, v := range m.speeds {
		out[k] = v
	}
	return out
}

// SpeedMultiplier returns the built-in multiplier for location.
func SpeedMultiplier(location string) float64 {
	return DefaultModel.Speed(location)
}
