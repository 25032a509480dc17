package models

import (
	"errors"
	"fmt"
	"time"
)

// PeriodSnapshot holds the aggregated price of every priced item for one run.
// An item missing from Prices had no tradable offers that run.
type PeriodSnapshot struct {
	Slot    int              `json:"slot"`
	RunID   string           `json:"run_id,omitempty"`
	TakenAt time.Time        `json:"taken_at"`
	Prices  map[string]int64 `json:"prices"`
}

// Validate checks snapshot field constraints.
func (s *PeriodSnapshot) Validate() error {
	if s.Slot < 0 {
		return errors.New("snapshot slot must not be negative")
	}
	for id, p := range s.Prices {
		if id == "" {
			return errors.New("snapshot item ID must not be empty")
		}
		if p < 0 {
			return fmt.Errorf("snapshot price for %s must not be negative", id)
		}
	}
	return nil
}

// HistoryAverage maps item ID to its mean price across stored periods.
type HistoryAverage map[string]int64

// ItemError records why one item could not be priced.
type ItemError struct {
	ItemID string `json:"item_id"`
	Err    string `json:"error"`
}

// RunReport summarizes one aggregation run.
type RunReport struct {
	RunID      string           `json:"run_id"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Slot       int              `json:"slot"`
	NextSlot   int              `json:"next_slot"`
	Items      int              `json:"items"`
	Priced     int              `json:"priced"`
	Skipped    int              `json:"skipped"`
	Failed     []ItemError      `json:"failed,omitempty"`
	Snapshot   PeriodSnapshot   `json:"snapshot"`
	Averages   HistoryAverage   `json:"averages"`
	BasePrices map[string]int64 `json:"base_prices,omitempty"`
	Periods    int              `json:"periods"`
}

// Duration returns how long the run took.
func (r *RunReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
