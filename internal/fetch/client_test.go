package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyflip/keyflip/internal/cache"
	"github.com/keyflip/keyflip/internal/config"
	"github.com/keyflip/keyflip/internal/net/budget"
	"github.com/keyflip/keyflip/internal/net/ratelimit"
)

const resultPage = `<html><body>
<li class="s-item s-item--large">
  <a href="https://www.ebay.co.uk/itm/123456789012">link</a>
  <span class="s-item__title">Apple iPhone 13 128GB</span>
  <span class="s-item__price">£120.00</span>
  <span class="s-item__shipping">+ £4.50 postage</span>
</li>
<li class="s-item s-item--large">
  <a href="https://www.ebay.co.uk/itm/223456789012">link</a>
  <span class="s-item__title">Apple iPhone 13 64GB</span>
  <span class="s-item__price">£99.99</span>
</li>
</body></html>`

const soldPage = `<html><body>
<li class="s-item">
  <a href="https://www.ebay.co.uk/itm/323456789012">link</a>
  <span class="s-item__title">Apple iPhone 13 sold</span>
  <span class="s-item__price">£110.00</span>
  <span class="s-item__caption">Sold 12 Mar 2026</span>
</li>
</body></html>`

func testClient(t *testing.T, serverURL string, budgetLimit int64, maxAttempts int) *Client {
	t.Helper()
	c := NewClient(Options{
		Config: config.FetchConfig{
			Timeout:        5 * time.Second,
			MaxAttempts:    maxAttempts,
			ResultsPerPage: 50,
		},
		Cache:    cache.NewTTLStore(),
		CacheTTL: time.Minute,
		Budget:   budget.NewTracker(budgetLimit),
		Limiter:  ratelimit.NewLimiter(1000, 10),
		PageBase: serverURL,
		APIBase:  serverURL,
	})
	c.sleep = func(time.Duration) {}
	return c
}

func TestSearchParsesResultsPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(resultPage))
	}))
	defer server.Close()

	client := testClient(t, server.URL, 10, 3)
	res, err := client.Search(context.Background(), Criteria{Query: "iphone 13"})
	require.NoError(t, err)

	require.Len(t, res.Listings, 2)
	first := res.Listings[0]
	assert.Equal(t, "ebay", first.Source)
	assert.Equal(t, "123456789012", first.ExternalID)
	assert.Equal(t, "Apple iPhone 13 128GB", first.Title)
	assert.InDelta(t, 120.0, first.PriceRaw, 1e-9)
	assert.InDelta(t, 4.50, first.Shipping, 1e-9)
	assert.InDelta(t, 124.50, first.TotalBuy, 1e-9)
	assert.Equal(t, "GBP", first.Currency)
	assert.False(t, first.FetchedAt.IsZero())
	assert.Equal(t, 2, res.RawCount)
}

func TestSearchRetriesTransientStatus(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(resultPage))
	}))
	defer server.Close()

	client := testClient(t, server.URL, 10, 3)
	res, err := client.Search(context.Background(), Criteria{Query: "iphone"})
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Len(t, res.Listings, 2)
}

func TestSearchGivesUpAfterMaxAttempts(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := testClient(t, server.URL, 10, 2)
	_, err := client.Search(context.Background(), Criteria{Query: "iphone"})
	require.Error(t, err)

	var terr *TransientError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, http.StatusServiceUnavailable, terr.StatusCode)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestSearchStopsAtBudget(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(resultPage))
	}))
	defer server.Close()

	client := testClient(t, server.URL, 0, 3)
	_, err := client.Search(context.Background(), Criteria{Query: "iphone"})

	require.Error(t, err)
	assert.ErrorIs(t, err, budget.ErrExhausted)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls), "no network call without budget")
}

func TestSearchCacheReadThrough(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(resultPage))
	}))
	defer server.Close()

	client := testClient(t, server.URL, 10, 3)

	first, err := client.Search(context.Background(), Criteria{Query: "iphone"})
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := client.Search(context.Background(), Criteria{Query: "iphone"})
	require.NoError(t, err)
	assert.True(t, second.Cached)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, len(first.Listings), len(second.Listings))
}

type recordingSink struct {
	captured []ChallengeMeta
}

func (s *recordingSink) CaptureChallenge(_ context.Context, _ []byte, meta ChallengeMeta) []string {
	s.captured = append(s.captured, meta)
	return []string{"artifact.html"}
}

func TestSearchDetectsChallenge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("<html><body>Pardon Our Interruption</body></html>"))
	}))
	defer server.Close()

	sink := &recordingSink{}
	client := testClient(t, server.URL, 10, 3)
	client.diag = sink

	_, err := client.Search(context.Background(), Criteria{Query: "iphone"})
	require.Error(t, err)

	var cerr *ChallengeError
	require.ErrorAs(t, err, &cerr)
	assert.ErrorIs(t, err, ErrChallenge)
	assert.Equal(t, []string{"artifact.html"}, cerr.Artifacts)
	require.Len(t, sink.captured, 1)
	assert.Contains(t, sink.captured[0].Detail, "pardon")
}

func TestSearchFallsBackFromAPI(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/buy/browse/v1/item_summary/search" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(resultPage))
	}))
	defer server.Close()

	client := testClient(t, server.URL, 10, 1)
	client.cfg.APIEnabled = true
	client.cfg.AppID = "test-app-id"

	res, err := client.Search(context.Background(), Criteria{Query: "iphone"})
	require.NoError(t, err)
	assert.Len(t, res.Listings, 2)
}

func TestSearchSoldParsesSamples(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("LH_Sold"))
		assert.Equal(t, "1", r.URL.Query().Get("LH_Complete"))
		w.Write([]byte(soldPage))
	}))
	defer server.Close()

	client := testClient(t, server.URL, 10, 3)
	samples, err := client.SearchSold(context.Background(), "iphone 13", "ebay", 10)
	require.NoError(t, err)

	require.Len(t, samples, 1)
	assert.Equal(t, "ebay", samples[0].Marketplace)
	assert.InDelta(t, 110.0, samples[0].Price, 1e-9)
	assert.Equal(t, "GBP", samples[0].Currency)
	require.NotNil(t, samples[0].SoldAt)
	assert.Equal(t, time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC), *samples[0].SoldAt)
}
