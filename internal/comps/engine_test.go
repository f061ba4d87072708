package comps

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/keyflip/keyflip/internal/fx"
	"github.com/keyflip/keyflip/internal/models"
)

type fakeSoldSource struct {
	calls   int
	samples map[string][]models.CompSample
	failing map[string]bool
}

func (f *fakeSoldSource) SearchSold(_ context.Context, _ string, marketplace string, _ int) ([]models.CompSample, error) {
	f.calls++
	if f.failing[marketplace] {
		return nil, errors.New("upstream down")
	}
	return f.samples[marketplace], nil
}

func newTestEngine(source *fakeSoldSource) *Engine {
	converter := fx.NewConverter(false, 0.8, time.Hour)
	return NewEngine(source, converter, "GBP", 25, time.Hour)
}

func TestLookupMergesMarketplaces(t *testing.T) {
	source := &fakeSoldSource{samples: map[string][]models.CompSample{
		"ebay": {
			{Marketplace: "ebay", Price: 100, Currency: "GBP"},
			{Marketplace: "ebay", Price: 110, Currency: "GBP"},
		},
		"vinted": {
			{Marketplace: "vinted", Price: 90, Currency: "GBP"},
		},
	}}
	engine := newTestEngine(source)

	stats, samples := engine.Lookup(context.Background(), "iphone 13", []string{"ebay", "vinted"})

	assert.Equal(t, 3, stats.Count)
	assert.Len(t, samples, 3)
	assert.Equal(t, "GBP", stats.Currency)
}

func TestLookupConvertsCurrency(t *testing.T) {
	source := &fakeSoldSource{samples: map[string][]models.CompSample{
		"ebay": {{Marketplace: "ebay", Price: 100, Currency: "USD"}},
	}}
	engine := newTestEngine(source)

	stats, samples := engine.Lookup(context.Background(), "camera", []string{"ebay"})

	assert.InDelta(t, 80.0, stats.Median, 1e-9)
	assert.Equal(t, "GBP", samples[0].Currency)
}

func TestLookupCachesByFingerprint(t *testing.T) {
	source := &fakeSoldSource{samples: map[string][]models.CompSample{
		"ebay": {{Marketplace: "ebay", Price: 50, Currency: "GBP"}},
	}}
	engine := newTestEngine(source)

	first, _ := engine.Lookup(context.Background(), "Sony WH-1000XM4", []string{"ebay"})
	// Equivalent query and reordered marketplace list hit the same entry.
	second, _ := engine.Lookup(context.Background(), "sony wh 1000xm4", []string{"EBAY"})

	assert.Equal(t, first, second)
	assert.Equal(t, 1, source.calls)
}

func TestLookupCacheExpires(t *testing.T) {
	source := &fakeSoldSource{samples: map[string][]models.CompSample{
		"ebay": {{Marketplace: "ebay", Price: 50, Currency: "GBP"}},
	}}
	engine := newTestEngine(source)

	current := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return current }

	engine.Lookup(context.Background(), "switch", []string{"ebay"})
	current = current.Add(2 * time.Hour)
	engine.Lookup(context.Background(), "switch", []string{"ebay"})

	assert.Equal(t, 2, source.calls)
}

func TestLookupDegradesOnMarketplaceFailure(t *testing.T) {
	source := &fakeSoldSource{
		samples: map[string][]models.CompSample{
			"ebay": {{Marketplace: "ebay", Price: 75, Currency: "GBP"}},
		},
		failing: map[string]bool{"vinted": true},
	}
	engine := newTestEngine(source)

	stats, _ := engine.Lookup(context.Background(), "kindle", []string{"ebay", "vinted"})

	assert.Equal(t, 1, stats.Count)
	assert.Equal(t, 75.0, stats.Median)
}

func TestLookupAllSourcesFailYieldsInvalid(t *testing.T) {
	source := &fakeSoldSource{failing: map[string]bool{"ebay": true}}
	engine := newTestEngine(source)

	stats, samples := engine.Lookup(context.Background(), "kindle", []string{"ebay"})

	assert.False(t, stats.Valid())
	assert.Empty(t, samples)
}

// flakySoldSource fails its first N calls, then recovers.
type flakySoldSource struct {
	calls    int
	failures int
	samples  []models.CompSample
}

func (f *flakySoldSource) SearchSold(context.Context, string, string, int) ([]models.CompSample, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("upstream down")
	}
	return f.samples, nil
}

func TestLookupDoesNotCacheAllFailedFetches(t *testing.T) {
	source := &flakySoldSource{
		failures: 1,
		samples:  []models.CompSample{{Marketplace: "ebay", Price: 60, Currency: "GBP"}},
	}
	converter := fx.NewConverter(false, 0.8, time.Hour)
	engine := NewEngine(source, converter, "GBP", 25, time.Hour)

	first, _ := engine.Lookup(context.Background(), "kindle", []string{"ebay"})
	assert.False(t, first.Valid())

	// The outage must not be negative-cached: the retry reaches upstream.
	second, _ := engine.Lookup(context.Background(), "kindle", []string{"ebay"})
	assert.True(t, second.Valid())
	assert.Equal(t, 60.0, second.Median)
	assert.Equal(t, 2, source.calls)
}

func TestLookupCachesEmptyFromSuccessfulFetch(t *testing.T) {
	source := &fakeSoldSource{samples: map[string][]models.CompSample{}}
	engine := newTestEngine(source)

	engine.Lookup(context.Background(), "kindle", []string{"ebay"})
	stats, _ := engine.Lookup(context.Background(), "kindle", []string{"ebay"})

	assert.False(t, stats.Valid())
	assert.Equal(t, 1, source.calls, "genuinely empty sold history is a cacheable fact")
}
