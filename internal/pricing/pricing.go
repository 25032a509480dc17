// Package pricing turns a batch of market offers into one representative price per item.
package pricing

const (
	// DefaultBaseline is the minimum sample size and the regime threshold for fetched offers.
	DefaultBaseline = 20

	// RelaxedTier is the seller tier whose bulk offers get the higher stack cap.
	RelaxedTier = 4

	DefaultStackCap        = 100
	DefaultRelaxedStackCap = 300

	// UndercountedItemID is the one item whose 100%-condition search filter is known to
	// return too few offers; its average is scaled by UndercountCorrection.
	UndercountedItemID   = "5d1b36a186f7742523398433"
	UndercountCorrection = 5.75
)

// Config controls sampling and weighting.
type Config struct {
	Baseline        int64
	RelaxedTier     int
	StackCap        int64
	RelaxedStackCap int64

	// Corrections scales the final average of specific items.
	Corrections map[string]float64

	// CollapseDuplicates reproduces the historical behavior where offers that produce
	// the same stack price share a single sample and the later weight wins.
	CollapseDuplicates bool
}

// DefaultConfig returns the production sampling and weighting parameters.
func DefaultConfig() Config {
	return Config{
		Baseline:        DefaultBaseline,
		RelaxedTier:     RelaxedTier,
		StackCap:        DefaultStackCap,
		RelaxedStackCap: DefaultRelaxedStackCap,
		Corrections: map[string]float64{
			UndercountedItemID: UndercountCorrection,
		},
	}
}
