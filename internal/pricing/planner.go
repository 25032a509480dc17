package pricing

// Planner decides how many offers to request for an item.
type Planner struct {
	Baseline int64
}

// NewPlanner returns a planner for cfg. A non-positive baseline falls back to DefaultBaseline.
func NewPlanner(cfg Config) Planner {
	b := cfg.Baseline
	if b <= 0 {
		b = DefaultBaseline
	}
	return Planner{Baseline: b}
}

// SampleSize returns the number of offers to request given the item's outstanding offer
// count. High-volume items are sampled proportionally instead of fetching the full book.
// A zero result means the item is skipped this run.
func (p Planner) SampleSize(totalAvailable int64) int64 {
	b := p.Baseline
	switch {
	case totalAvailable > b*8:
		return int64(float64(totalAvailable) * 0.075)
	case totalAvailable > b*4:
		return int64(float64(totalAvailable) * 0.15)
	case totalAvailable > b*2:
		return int64(float64(totalAvailable) * 0.30)
	default:
		return b
	}
}
