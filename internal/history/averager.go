package history

import (
	"fmt"

	"github.com/rewired-gh/fleaprice/internal/models"
)

// Mode selects the denominator of the history average.
type Mode string

const (
	// ModePresentOnly divides by the number of periods in which the item was priced.
	ModePresentOnly Mode = "present_only"
	// ModeAllSlots divides by every stored period, counting absence as zero.
	ModeAllSlots Mode = "all_slots"
)

// ParseMode maps a config value to a Mode. Empty means ModePresentOnly.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModePresentOnly:
		return ModePresentOnly, nil
	case ModeAllSlots:
		return ModeAllSlots, nil
	default:
		return "", fmt.Errorf("unknown history mode %q (supported: present_only, all_slots)", s)
	}
}

// Averager folds stored period snapshots into one price per item.
type Averager struct {
	Mode Mode
}

// Compute returns the per-item mean across snapshots. Items never priced in any stored
// period are left out.
func (a Averager) Compute(snapshots []models.PeriodSnapshot, items []models.Item) models.HistoryAverage {
	out := make(models.HistoryAverage, len(items))
	for _, item := range items {
		var total, present int64
		for _, snap := range snapshots {
			price, ok := snap.Prices[item.ID]
			if !ok {
				continue
			}
			total += price
			present++
		}
		if present == 0 {
			continue
		}

		divisor := present
		if a.Mode == ModeAllSlots {
			divisor = int64(len(snapshots))
		}
		out[item.ID] = total / divisor
	}
	return out
}
