package pricing

import (
	"math"

	"github.com/rewired-gh/fleaprice/internal/models"
)

// Calculator computes the weighted average price of an offer batch.
type Calculator struct {
	cfg     Config
	weigher Weigher
}

// NewCalculator builds a calculator with the weigher for cfg.
func NewCalculator(cfg Config) *Calculator {
	return &Calculator{cfg: cfg, weigher: NewWeigher(cfg)}
}

// Samples weighs every offer in batch order. Rank is the 1-based position in the batch.
func (c *Calculator) Samples(batch *models.OfferBatch, requested int64) []models.WeightedSample {
	samples := make([]models.WeightedSample, 0, len(batch.Offers))
	for i, offer := range batch.Offers {
		weight := c.weigher.Weight(offer, int64(i+1), requested, batch.TotalFetched)
		samples = append(samples, models.WeightedSample{
			StackPrice: int64(float64(offer.Price) * weight),
			Weight:     weight,
		})
	}
	if c.cfg.CollapseDuplicates {
		samples = collapseByStackPrice(samples)
	}
	return samples
}

// WeightedAverage returns the item's corrected weighted average. ok is false when the
// batch carries no weight at all, in which case the item gets no snapshot entry.
func (c *Calculator) WeightedAverage(batch *models.OfferBatch, requested int64) (avg int64, ok bool) {
	avg, ok = Average(c.Samples(batch, requested))
	if !ok {
		return 0, false
	}
	return c.Correct(batch.ItemID, avg), true
}

// Correct applies the item-specific correction factor, if any.
func (c *Calculator) Correct(itemID string, avg int64) int64 {
	factor, ok := c.cfg.Corrections[itemID]
	if !ok {
		return avg
	}
	return int64(float64(avg) * factor)
}

// Average is Σ stackPrice / Σ weight, truncated.
func Average(samples []models.WeightedSample) (int64, bool) {
	var priceSum, weightSum float64
	for _, s := range samples {
		priceSum += float64(s.StackPrice)
		weightSum += s.Weight
	}
	if weightSum == 0 || math.IsNaN(weightSum) {
		return 0, false
	}
	return int64(priceSum / weightSum), true
}

// collapseByStackPrice keeps one sample per distinct stack price; a later weight
// overwrites an earlier one.
func collapseByStackPrice(samples []models.WeightedSample) []models.WeightedSample {
	pos := make(map[int64]int, len(samples))
	out := make([]models.WeightedSample, 0, len(samples))
	for _, s := range samples {
		if i, seen := pos[s.StackPrice]; seen {
			out[i].Weight = s.Weight
			continue
		}
		pos[s.StackPrice] = len(out)
		out = append(out, s)
	}
	return out
}
