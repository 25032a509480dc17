package market

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/rewired-gh/fleaprice/internal/logger"
	"github.com/rewired-gh/fleaprice/internal/models"
)

// Client provides access to the marketplace gateway
type Client struct {
	http *resty.Client
}

// Options configures the gateway client.
type Options struct {
	BaseURL        string
	Timeout        time.Duration
	MaxRetries     int
	RetryDelayBase time.Duration
}

type countsRequest struct {
	Filter Filter `json:"filter"`
}

type countsResponse struct {
	Counts map[string]int64 `json:"counts"`
}

type searchRequest struct {
	Page   int    `json:"page"`
	Limit  int64  `json:"limit"`
	Filter Filter `json:"filter"`
}

type gatewayOffer struct {
	ID         string `json:"id"`
	Price      int64  `json:"price"`
	StackCount *int64 `json:"stack_count"`
	SellerTier int    `json:"seller_tier"`
}

type searchResponse struct {
	Offers         []gatewayOffer `json:"offers"`
	OffersCount    *int64         `json:"offers_count"`
	TotalAvailable int64          `json:"total_available"`
}

type pricesResponse struct {
	Prices map[string]int64 `json:"prices"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewClient creates a gateway client. Transport errors and 5xx responses are retried
// up to MaxRetries times with backoff starting at RetryDelayBase.
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RetryDelayBase <= 0 {
		opts.RetryDelayBase = time.Second
	}

	c := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(opts.MaxRetries).
		SetRetryWaitTime(opts.RetryDelayBase).
		SetRetryMaxWaitTime(opts.RetryDelayBase * time.Duration(opts.MaxRetries+1)).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r != nil && r.StatusCode() >= http.StatusInternalServerError
		}).
		SetError(&errorResponse{})

	return &Client{http: c}
}

func (c *Client) request(ctx context.Context, s Session) *resty.Request {
	return c.http.R().SetContext(ctx).SetAuthToken(s.Token)
}

func checkResponse(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if resp.IsError() {
		if e, ok := resp.Error().(*errorResponse); ok && e.Error != "" {
			return fmt.Errorf("gateway returned %d: %s", resp.StatusCode(), e.Error)
		}
		return fmt.Errorf("gateway returned %d", resp.StatusCode())
	}
	return nil
}

// OfferCounts returns the outstanding offer count per item for filter.
func (c *Client) OfferCounts(ctx context.Context, s Session, filter Filter) (map[string]int64, error) {
	var out countsResponse
	resp, err := c.request(ctx, s).
		SetBody(countsRequest{Filter: filter}).
		SetResult(&out).
		Post("/market/counts")
	if err := checkResponse(resp, err); err != nil {
		return nil, fmt.Errorf("failed to fetch offer counts: %w", err)
	}
	if out.Counts == nil {
		out.Counts = map[string]int64{}
	}
	logger.Debug("Fetched offer counts for %d items", len(out.Counts))
	return out.Counts, nil
}

// Search fetches up to limit offers matching filter, in gateway order.
func (c *Client) Search(ctx context.Context, s Session, limit int64, filter Filter) (*models.OfferBatch, error) {
	var out searchResponse
	resp, err := c.request(ctx, s).
		SetBody(searchRequest{Page: 0, Limit: limit, Filter: filter}).
		SetResult(&out).
		Post("/market/search")
	if err := checkResponse(resp, err); err != nil {
		return nil, fmt.Errorf("failed to search offers for %s: %w", filter.HandbookID, err)
	}

	batch := &models.OfferBatch{
		ItemID:         filter.HandbookID,
		Offers:         make([]models.Offer, 0, len(out.Offers)),
		TotalAvailable: out.TotalAvailable,
		TotalFetched:   int64(len(out.Offers)),
	}
	// offers_count is the gateway's match count, not the size of this page
	if batch.TotalAvailable == 0 && out.OffersCount != nil {
		batch.TotalAvailable = *out.OffersCount
	}
	for _, o := range out.Offers {
		offer := models.Offer{ID: o.ID, Price: o.Price, SellerTier: o.SellerTier}
		if o.StackCount != nil {
			offer.StackCount = *o.StackCount
		}
		batch.Offers = append(batch.Offers, offer)
	}

	if err := batch.Validate(); err != nil {
		return nil, fmt.Errorf("invalid search result for %s: %w", filter.HandbookID, err)
	}
	return batch, nil
}

// BasePrices returns the reference price of every item.
func (c *Client) BasePrices(ctx context.Context, s Session) (map[string]int64, error) {
	var out pricesResponse
	resp, err := c.request(ctx, s).
		SetResult(&out).
		Get("/items/prices")
	if err := checkResponse(resp, err); err != nil {
		return nil, fmt.Errorf("failed to fetch base prices: %w", err)
	}
	if out.Prices == nil {
		out.Prices = map[string]int64{}
	}
	return out.Prices, nil
}
