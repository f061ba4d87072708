// Package fx converts sample prices to the reference currency. Lookups never
// fail the pipeline: on any live-rate problem the converter falls back to a
// static anchor rate silently (logged at warn level only).
package fx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const liveRateURL = "https://open.er-api.com/v6/latest/%s"

// Converter caches live rates with a deterministic static fallback ladder.
type Converter struct {
	enabled     bool
	fallbackUSD float64 // static USD -> GBP anchor
	cacheFor    time.Duration
	client      *http.Client
	now         func() time.Time

	mu    sync.Mutex
	cache map[string]cachedRate
}

type cachedRate struct {
	rate      float64
	expiresAt time.Time
}

// NewConverter builds a converter. fallbackUSD is the static USD->GBP anchor
// used when live rates are disabled or unreachable.
func NewConverter(enabled bool, fallbackUSD float64, cacheFor time.Duration) *Converter {
	if cacheFor < 10*time.Minute {
		cacheFor = 10 * time.Minute
	}
	return &Converter{
		enabled:     enabled,
		fallbackUSD: fallbackUSD,
		cacheFor:    cacheFor,
		client:      &http.Client{Timeout: 6 * time.Second},
		now:         time.Now,
		cache:       make(map[string]cachedRate),
	}
}

// Convert returns amount expressed in the target currency.
func (c *Converter) Convert(ctx context.Context, amount float64, from, to string) float64 {
	src := normalize(from, to)
	dst := normalize(to, to)
	if src == dst {
		return amount
	}
	return amount * c.rate(ctx, src, dst)
}

func normalize(currency, fallback string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return strings.ToUpper(strings.TrimSpace(fallback))
	}
	return currency
}

func (c *Converter) rate(ctx context.Context, src, dst string) float64 {
	key := src + "/" + dst
	now := c.now()

	c.mu.Lock()
	if cached, ok := c.cache[key]; ok && cached.expiresAt.After(now) {
		c.mu.Unlock()
		return cached.rate
	}
	c.mu.Unlock()

	var rate float64
	var ok bool
	if c.enabled {
		rate, ok = c.fetchLive(ctx, src, dst)
	}
	if !ok {
		rate = c.staticRate(src, dst)
		log.Warn().Str("pair", key).Float64("rate", rate).
			Msg("live fx rate unavailable, using static fallback")
	}

	c.mu.Lock()
	c.cache[key] = cachedRate{rate: rate, expiresAt: now.Add(c.cacheFor)}
	c.mu.Unlock()
	return rate
}

func (c *Converter) fetchLive(ctx context.Context, src, dst string) (float64, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(liveRateURL, src), nil)
	if err != nil {
		return 0, false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, false
	}

	var payload struct {
		Rates map[string]float64 `json:"rates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, false
	}
	rate, ok := payload.Rates[dst]
	if !ok || rate <= 0 {
		return 0, false
	}
	return rate, true
}

// staticRate anchors everything on the configured USD->GBP rate with simple
// proxies for other majors. Unknown pairs pass through at 1.0.
func (c *Converter) staticRate(src, dst string) float64 {
	if dst != "GBP" {
		inv := c.staticRate(dst, "GBP")
		if inv > 0 {
			return 1.0 / inv
		}
		return 1.0
	}
	switch src {
	case "USD":
		return c.fallbackUSD
	case "EUR":
		return clamp(c.fallbackUSD*1.10, 0.5, 1.2)
	case "JPY":
		return clamp(c.fallbackUSD/110.0, 0.003, 0.02)
	}
	return 1.0
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
