// Package comps estimates resale value from historical sold items across the
// configured sell-side marketplaces.
package comps

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/keyflip/keyflip/internal/fetch"
	"github.com/keyflip/keyflip/internal/fx"
	"github.com/keyflip/keyflip/internal/models"
)

// Engine merges sold samples from every configured marketplace into one
// currency-normalized pool and caches the computed statistics per
// (normalized query, marketplace set).
type Engine struct {
	source    fetch.SoldSearcher
	converter *fx.Converter
	reference string
	limit     int
	ttl       time.Duration
	now       func() time.Time

	mu    sync.Mutex
	cache map[string]cachedStats
}

type cachedStats struct {
	stats     models.CompStats
	samples   []models.CompSample
	expiresAt time.Time
}

// NewEngine builds a comps engine over the given sold-item source.
func NewEngine(source fetch.SoldSearcher, converter *fx.Converter, reference string, limit int, ttl time.Duration) *Engine {
	if limit <= 0 {
		limit = 25
	}
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &Engine{
		source:    source,
		converter: converter,
		reference: reference,
		limit:     limit,
		ttl:       ttl,
		now:       time.Now,
		cache:     make(map[string]cachedStats),
	}
}

// fingerprintFor keys the stats cache: normalized query plus the sorted
// marketplace set, so the same question asked with reordered marketplaces
// hits the same entry.
func fingerprintFor(query string, marketplaces []string) string {
	set := make([]string, 0, len(marketplaces))
	for _, m := range marketplaces {
		m = strings.ToLower(strings.TrimSpace(m))
		if m != "" {
			set = append(set, m)
		}
	}
	sort.Strings(set)
	return NormalizeQuery(query) + "|" + strings.Join(set, ",")
}

// Lookup returns comp statistics for the query across the marketplace set.
// Individual marketplace failures degrade the pool rather than failing the
// lookup; zero usable samples yield invalid (count=0) stats.
func (e *Engine) Lookup(ctx context.Context, query string, marketplaces []string) (models.CompStats, []models.CompSample) {
	fingerprint := fingerprintFor(query, marketplaces)
	now := e.now()

	e.mu.Lock()
	if cached, ok := e.cache[fingerprint]; ok && cached.expiresAt.After(now) {
		e.mu.Unlock()
		return cached.stats, cached.samples
	}
	e.mu.Unlock()

	normalized := NormalizeQuery(query)
	var pool []models.CompSample
	attempted, failed := 0, 0
	for _, marketplace := range marketplaces {
		attempted++
		samples, err := e.source.SearchSold(ctx, normalized, marketplace, e.limit)
		if err != nil {
			failed++
			log.Warn().Err(err).Str("marketplace", marketplace).Str("query", normalized).
				Msg("sold comps fetch failed, continuing with remaining marketplaces")
			continue
		}
		for i := range samples {
			samples[i].Fingerprint = fingerprint
		}
		pool = append(pool, samples...)
	}

	prices := make([]float64, 0, len(pool))
	for i := range pool {
		converted := e.converter.Convert(ctx, pool[i].Price, pool[i].Currency, e.reference)
		pool[i].Price = converted
		pool[i].Currency = e.reference
		prices = append(prices, converted)
	}

	stats := ComputeStats(fingerprint, prices, e.reference, now.UTC())

	// An empty pool is only a cacheable fact when at least one marketplace
	// answered. Empty-because-every-fetch-failed must not be negative-cached,
	// or a transient outage suppresses comps for the whole TTL.
	if len(pool) == 0 && attempted > 0 && failed == attempted {
		log.Warn().Str("fingerprint", fingerprint).Int("marketplaces", attempted).
			Msg("all sold comps fetches failed, skipping stats cache")
		return stats, pool
	}

	e.mu.Lock()
	e.cache[fingerprint] = cachedStats{stats: stats, samples: pool, expiresAt: now.Add(e.ttl)}
	e.mu.Unlock()

	log.Debug().Str("fingerprint", fingerprint).Int("count", stats.Count).
		Float64("median", stats.Median).Msg("computed comp stats")
	return stats, pool
}
