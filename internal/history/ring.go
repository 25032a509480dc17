// Package history rotates period snapshots through a fixed ring and averages them.
package history

// DefaultPeriods covers one day at a 10 minute cadence (24*60/10).
const DefaultPeriods = 144

// Ring is the fixed-capacity rotation of period slots.
type Ring struct {
	Periods int
}

func NewRing(periods int) Ring {
	if periods <= 0 {
		periods = DefaultPeriods
	}
	return Ring{Periods: periods}
}

// Contains reports whether i is a valid slot.
func (r Ring) Contains(i int) bool {
	return i >= 0 && i < r.Periods
}

// Normalize resets an out-of-range index to slot 0.
func (r Ring) Normalize(i int) int {
	if !r.Contains(i) {
		return 0
	}
	return i
}

// Advance returns the slot after i, wrapping to 0 past the last one.
func (r Ring) Advance(i int) int {
	return (r.Normalize(i) + 1) % r.Periods
}
