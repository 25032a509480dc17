// Package models defines the core domain entities: items, offers, period snapshots and run reports.
package models

import (
	"errors"
	"fmt"
)

// Item is one catalog entry. ID is the marketplace handbook id and is opaque to the service.
type Item struct {
	ID string `json:"id"`
}

// Validate checks item field constraints.
func (i Item) Validate() error {
	if i.ID == "" {
		return errors.New("item ID must not be empty")
	}
	return nil
}

// Offer is one sell listing for an item.
type Offer struct {
	ID         string `json:"id,omitempty"`
	Price      int64  `json:"price"`
	StackCount int64  `json:"stack_count"`
	SellerTier int    `json:"seller_tier"`
}

// Validate checks offer field constraints.
func (o Offer) Validate() error {
	if o.Price < 0 {
		return errors.New("offer price must not be negative")
	}
	if o.StackCount < 0 {
		return errors.New("offer stack count must not be negative")
	}
	return nil
}

// OfferBatch is the ordered result of one market search for a single item.
// The position of an offer in Offers is its rank; order must be preserved as returned.
type OfferBatch struct {
	ItemID         string  `json:"item_id"`
	Offers         []Offer `json:"offers"`
	TotalAvailable int64   `json:"total_available"`
	TotalFetched   int64   `json:"total_fetched"`
}

// Validate checks batch field constraints.
func (b *OfferBatch) Validate() error {
	if b.ItemID == "" {
		return errors.New("batch item ID must not be empty")
	}
	if b.TotalAvailable < 0 {
		return errors.New("batch total available must not be negative")
	}
	if b.TotalFetched < 0 {
		return errors.New("batch total fetched must not be negative")
	}
	for i, o := range b.Offers {
		if err := o.Validate(); err != nil {
			return fmt.Errorf("offer %d: %w", i+1, err)
		}
	}
	return nil
}

// WeightedSample pairs the weighted stack price of one offer with its weight.
type WeightedSample struct {
	StackPrice int64
	Weight     float64
}
