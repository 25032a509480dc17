// Package market talks to the marketplace gateway: offer counts, offer searches and
// base prices.
package market

import (
	"errors"
	"strings"
)

// Owner restricts offers by seller kind.
type Owner string

const (
	OwnerAny    Owner = "any"
	OwnerPlayer Owner = "player"
	OwnerTrader Owner = "trader"
)

// SortDirection orders offers by price.
type SortDirection string

const (
	SortAscending  SortDirection = "asc"
	SortDescending SortDirection = "desc"
)

// Filter is the search filter sent with every market request.
type Filter struct {
	MinQuantity    int           `json:"min_quantity,omitempty"`
	MinCondition   int           `json:"min_condition,omitempty"`
	MaxCondition   int           `json:"max_condition,omitempty"`
	SortDirection  SortDirection `json:"sort_direction"`
	Owner          Owner         `json:"owner_type"`
	HideBarter     bool          `json:"hide_bartering_offers"`
	HideInoperable bool          `json:"hide_inoperable_weapons"`
	HandbookID     string        `json:"handbook_id,omitempty"`
}

// CountFilter is used once per run to count outstanding player offers per item.
func CountFilter() Filter {
	return Filter{
		MinQuantity:    1,
		MinCondition:   80,
		MaxCondition:   100,
		SortDirection:  SortAscending,
		Owner:          OwnerPlayer,
		HideBarter:     true,
		HideInoperable: true,
	}
}

// SampleFilter fetches the cheapest good-condition offers of a single item.
func SampleFilter(itemID string) Filter {
	return Filter{
		MinQuantity:    1,
		MinCondition:   90,
		MaxCondition:   100,
		SortDirection:  SortAscending,
		Owner:          OwnerAny,
		HideBarter:     true,
		HideInoperable: true,
		HandbookID:     itemID,
	}
}

// Session is an authenticated marketplace session. It is passed explicitly to every call.
type Session struct {
	Token string
}

func NewSession(token string) (Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Session{}, errors.New("session token must not be empty")
	}
	return Session{Token: token}, nil
}
