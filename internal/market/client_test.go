package market

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/fleaprice/internal/pricing"
)

func newTestClient(t *testing.T, h http.Handler, retries int) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Options{
		BaseURL:        srv.URL,
		Timeout:        5 * time.Second,
		MaxRetries:     retries,
		RetryDelayBase: time.Millisecond,
	})
}

func testSession(t *testing.T) Session {
	t.Helper()
	s, err := NewSession("secret")
	require.NoError(t, err)
	return s
}

func TestNewSession(t *testing.T) {
	_, err := NewSession("  ")
	assert.Error(t, err)

	s, err := NewSession(" tok ")
	require.NoError(t, err)
	assert.Equal(t, "tok", s.Token)
}

func TestFilters(t *testing.T) {
	count := CountFilter()
	assert.Equal(t, 80, count.MinCondition)
	assert.Equal(t, OwnerPlayer, count.Owner)
	assert.Empty(t, count.HandbookID)

	sample := SampleFilter("abc")
	assert.Equal(t, 90, sample.MinCondition)
	assert.Equal(t, 100, sample.MaxCondition)
	assert.Equal(t, OwnerAny, sample.Owner)
	assert.Equal(t, "abc", sample.HandbookID)
	assert.True(t, sample.HideBarter)
	assert.True(t, sample.HideInoperable)
}

func TestClient_OfferCounts(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/market/counts", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req countsRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, CountFilter(), req.Filter)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"counts": {"a": 41, "b": 0}}`))
	}), 0)

	counts, err := c.OfferCounts(context.Background(), testSession(t), CountFilter())
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"a": 41, "b": 0}, counts)
}

func TestClient_Search(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/market/search", r.URL.Path)

		var req searchRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, int64(12), req.Limit)
		assert.Equal(t, "item-1", req.Filter.HandbookID)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"total_available": 41,
			"offers": [
				{"id": "o1", "price": 100, "stack_count": 5, "seller_tier": 0},
				{"id": "o2", "price": 150, "seller_tier": 4}
			]
		}`))
	}), 0)

	batch, err := c.Search(context.Background(), testSession(t), 12, SampleFilter("item-1"))
	require.NoError(t, err)
	assert.Equal(t, "item-1", batch.ItemID)
	assert.Equal(t, int64(41), batch.TotalAvailable)
	assert.Equal(t, int64(2), batch.TotalFetched, "fetched defaults to the number of offers returned")
	require.Len(t, batch.Offers, 2)
	assert.Equal(t, int64(5), batch.Offers[0].StackCount)
	assert.Equal(t, int64(0), batch.Offers[1].StackCount, "absent stack count reads as zero")
	assert.Equal(t, 4, batch.Offers[1].SellerTier)
}

func TestClient_Search_ReportedCount(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offers := make([]map[string]int64, 15)
		for i := range offers {
			offers[i] = map[string]int64{"price": int64(i+1) * 100, "stack_count": 10}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"offers_count": 500, "offers": offers})
	}), 0)

	batch, err := c.Search(context.Background(), testSession(t), 20, SampleFilter("x"))
	require.NoError(t, err)
	assert.Equal(t, int64(15), batch.TotalFetched, "fetched is the size of the returned page")
	assert.Equal(t, int64(500), batch.TotalAvailable, "offers_count fills a missing total_available")

	// fewer than the baseline came back, so the small-batch multipliers apply
	avg, ok := pricing.NewCalculator(pricing.DefaultConfig()).WeightedAverage(batch, 20)
	require.True(t, ok)
	assert.Equal(t, int64(679), avg)
}

func TestClient_Search_OffersCountKeepsTotalAvailable(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"offers_count": 7, "total_available": 90, "offers": [{"price": 10, "stack_count": 1}]}`))
	}), 0)

	batch, err := c.Search(context.Background(), testSession(t), 20, SampleFilter("x"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), batch.TotalFetched)
	assert.Equal(t, int64(90), batch.TotalAvailable)
}

func TestClient_Search_InvalidOffer(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"offers": [{"price": -1, "stack_count": 1}]}`))
	}), 0)

	_, err := c.Search(context.Background(), testSession(t), 20, SampleFilter("x"))
	assert.Error(t, err)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"prices": {"a": 1200}}`))
	}), 3)

	prices, err := c.BasePrices(context.Background(), testSession(t))
	require.NoError(t, err)
	assert.Equal(t, int64(1200), prices["a"])
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_GivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}), 2)

	_, err := c.OfferCounts(context.Background(), testSession(t), CountFilter())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": "session expired"}`))
	}), 3)

	_, err := c.BasePrices(context.Background(), testSession(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session expired")
	assert.Equal(t, int32(1), calls.Load())
}
