package pricing

import "github.com/rewired-gh/fleaprice/internal/models"

// Weigher assigns each offer its influence on the item average.
type Weigher struct {
	cfg Config
}

// NewWeigher fills unset caps and baseline with their defaults.
func NewWeigher(cfg Config) Weigher {
	if cfg.Baseline <= 0 {
		cfg.Baseline = DefaultBaseline
	}
	if cfg.StackCap <= 0 {
		cfg.StackCap = DefaultStackCap
	}
	if cfg.RelaxedStackCap <= 0 {
		cfg.RelaxedStackCap = DefaultRelaxedStackCap
	}
	return Weigher{cfg: cfg}
}

// CapStack bounds the quantity a single bulk listing can contribute.
func (w Weigher) CapStack(o models.Offer) int64 {
	n := o.StackCount
	if n <= w.cfg.StackCap {
		return n
	}
	if o.SellerTier == w.cfg.RelaxedTier {
		if n > w.cfg.RelaxedStackCap {
			return w.cfg.RelaxedStackCap
		}
		return n
	}
	return w.cfg.StackCap
}

// Position is the offer's rank as a truncated percentage of the requested sample size.
// It exceeds 100 when the market returned fewer offers than requested.
func Position(rank, requested int64) int64 {
	if requested <= 0 {
		return 0
	}
	return int64(float64(rank) / float64(requested) * 100.0)
}

// Multiplier picks the rank multiplier. Large result sets discount the expensive tail
// harder; small ones only the top 40%.
func (w Weigher) Multiplier(position, fetched int64) float64 {
	if fetched > w.cfg.Baseline {
		switch {
		case position >= 80:
			return 0.1
		case position >= 60:
			return 0.5
		case position >= 20:
			return 1.0
		default:
			return 0.75
		}
	}
	switch {
	case position >= 60:
		return 0.15
	case position >= 30:
		return 1.0
	default:
		return 0.75
	}
}

// Weight returns capped stack count times the rank multiplier.
func (w Weigher) Weight(o models.Offer, rank, requested, fetched int64) float64 {
	if requested <= 0 {
		return 0
	}
	return float64(w.CapStack(o)) * w.Multiplier(Position(rank, requested), fetched)
}
