// Package fetch provides rate-limited, budget-capped access to the
// marketplace data source, in structured (API) or fallback (page-parse) mode,
// with a read/write-through response cache and challenge detection.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/keyflip/keyflip/internal/cache"
	"github.com/keyflip/keyflip/internal/config"
	"github.com/keyflip/keyflip/internal/models"
	"github.com/keyflip/keyflip/internal/net/budget"
	"github.com/keyflip/keyflip/internal/net/ratelimit"
	"github.com/keyflip/keyflip/internal/telemetry"
)

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
}

// Criteria is one concrete search request. The ladder relaxes these fields
// stage by stage.
type Criteria struct {
	Query       string
	CategoryID  string
	Condition   string
	ListingType string
	MaxBuy      *float64
	ShippingMax *float64
}

// Result is the outcome of a single search call, post-filter.
type Result struct {
	Listings      []models.Listing
	RawCount      int
	FilteredCount int
	StatusCode    int
	RequestURL    string
	Rejections    map[string]int
	Cached        bool
}

// Searcher is the active-listing search contract the ladder depends on.
type Searcher interface {
	Search(ctx context.Context, c Criteria) (*Result, error)
}

// SoldSearcher fetches historical sold items for the comps engine.
type SoldSearcher interface {
	SearchSold(ctx context.Context, query, marketplace string, limit int) ([]models.CompSample, error)
}

// ChallengeMeta describes a detected challenge for artifact capture.
type ChallengeMeta struct {
	Detail     string
	RequestURL string
	StatusCode int
}

// DiagnosticsSink receives challenge artifacts. Write-only from here.
type DiagnosticsSink interface {
	CaptureChallenge(ctx context.Context, body []byte, meta ChallengeMeta) []string
}

// Options wires a Client's collaborators.
type Options struct {
	Config   config.FetchConfig
	Filter   FilterSettings
	Cache    cache.Store
	CacheTTL time.Duration
	Budget   *budget.Tracker
	Limiter  *ratelimit.Limiter
	Diag     DiagnosticsSink
	Source   string // marketplace identifier stamped on listings
	APIBase  string
	PageBase string
}

// Client implements Searcher and SoldSearcher over HTTP.
type Client struct {
	cfg      config.FetchConfig
	filter   FilterSettings
	cache    cache.Store
	cacheTTL time.Duration
	budget   *budget.Tracker
	limiter  *ratelimit.Limiter
	diag     DiagnosticsSink
	source   string
	apiBase  string
	pageBase string

	httpc   *http.Client
	breaker *gobreaker.CircuitBreaker
	sleep   func(time.Duration)
	now     func() time.Time

	mu        sync.Mutex
	rng       *rand.Rand
	userAgent string
}

// NewClient builds a fetch client. Source defaults to "ebay" and base URLs to
// the public endpoints; tests override them.
func NewClient(opts Options) *Client {
	if opts.Source == "" {
		opts.Source = "ebay"
	}
	if opts.APIBase == "" {
		opts.APIBase = "https://api.ebay.com"
	}
	if opts.PageBase == "" {
		opts.PageBase = "https://www.ebay.co.uk"
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}

	settings := gobreaker.Settings{Name: "upstream-" + opts.Source}
	settings.Interval = 60 * time.Second
	settings.Timeout = 60 * time.Second
	settings.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= 5
	}

	c := &Client{
		cfg:      opts.Config,
		filter:   opts.Filter,
		cache:    opts.Cache,
		cacheTTL: opts.CacheTTL,
		budget:   opts.Budget,
		limiter:  opts.Limiter,
		diag:     opts.Diag,
		source:   opts.Source,
		apiBase:  opts.APIBase,
		pageBase: opts.PageBase,
		httpc:    &http.Client{Timeout: opts.Config.Timeout},
		breaker:  gobreaker.NewCircuitBreaker(settings),
		sleep:    time.Sleep,
		now:      time.Now,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	c.refreshSession("startup")
	return c
}

// Source returns the marketplace identifier this client fetches from.
func (c *Client) Source() string { return c.source }

// refreshSession rotates the user agent. Called at startup and after a
// challenge so subsequent requests do not reuse a flagged fingerprint.
func (c *Client) refreshSession(reason string) {
	c.mu.Lock()
	c.userAgent = userAgents[c.rng.Intn(len(userAgents))]
	c.mu.Unlock()
	log.Debug().Str("reason", reason).Msg("refreshed fetch session")
}

func (c *Client) currentUserAgent() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userAgent
}

func (c *Client) randomDelay() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Duration(600+c.rng.Intn(800)) * time.Millisecond
}

func (c *Client) backoff(attempt int) time.Duration {
	c.mu.Lock()
	jitter := time.Duration(100+c.rng.Intn(500)) * time.Millisecond
	c.mu.Unlock()
	return time.Duration(1<<attempt)*time.Second + jitter
}

func (c *Client) apiEnabled() bool {
	return c.cfg.APIEnabled && c.cfg.AppID != ""
}

// Search runs an active-listing search in structured mode when credentials
// allow, falling back to page-parse mode otherwise. The post-fetch filter is
// applied before returning, so FilteredCount is what the ladder sees.
func (c *Client) Search(ctx context.Context, crit Criteria) (*Result, error) {
	if c.apiEnabled() {
		res, err := c.searchAPI(ctx, crit)
		if err == nil {
			return res, nil
		}
		if errors.Is(err, budget.ErrExhausted) || errors.Is(err, ErrChallenge) {
			return nil, err
		}
		log.Warn().Err(err).Msg("structured search failed, falling back to page mode")
	}
	return c.searchPage(ctx, crit)
}

func (c *Client) searchAPI(ctx context.Context, crit Criteria) (*Result, error) {
	endpoint := c.apiBase + "/buy/browse/v1/item_summary/search"
	params := url.Values{}
	params.Set("q", crit.Query)
	params.Set("limit", fmt.Sprintf("%d", c.cfg.ResultsPerPage))
	if crit.CategoryID != "" {
		params.Set("category_ids", crit.CategoryID)
	}
	if crit.Condition != "" {
		params.Set("filter", "conditionIds:{"+crit.Condition+"}")
	}
	if crit.MaxBuy != nil {
		params.Add("filter", fmt.Sprintf("price:[..%.2f]", *crit.MaxBuy))
	}

	body, status, reqURL, cached, err := c.request(ctx, endpoint, params, requestOpts{
		authorized: true,
	})
	if err != nil {
		return nil, err
	}

	raw, err := parseAPIListings(body, c.source)
	if err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	return c.finish(raw, crit, status, reqURL, cached), nil
}

func (c *Client) searchPage(ctx context.Context, crit Criteria) (*Result, error) {
	endpoint := c.pageBase + "/sch/i.html"
	params := url.Values{}
	params.Set("_nkw", crit.Query)
	params.Set("_ipg", fmt.Sprintf("%d", c.cfg.ResultsPerPage))
	if crit.CategoryID != "" {
		params.Set("_sacat", crit.CategoryID)
	}
	if crit.Condition != "" {
		params.Set("LH_ItemCondition", crit.Condition)
	}
	if crit.MaxBuy != nil {
		params.Set("_udhi", fmt.Sprintf("%.2f", *crit.MaxBuy))
	}
	switch crit.ListingType {
	case "auction":
		params.Set("LH_Auction", "1")
	case "fixed":
		params.Set("LH_BIN", "1")
	}

	body, status, reqURL, cached, err := c.request(ctx, endpoint, params, requestOpts{
		delay: c.cfg.FallbackDelay,
	})
	if err != nil {
		return nil, err
	}

	raw := parsePageListings(body, c.source)
	return c.finish(raw, crit, status, reqURL, cached), nil
}

// SearchSold fetches completed/sold items for the comps engine.
func (c *Client) SearchSold(ctx context.Context, query, marketplace string, limit int) ([]models.CompSample, error) {
	if limit <= 0 {
		limit = 25
	}
	endpoint := c.pageBase + "/sch/i.html"
	params := url.Values{}
	params.Set("_nkw", query)
	params.Set("LH_Sold", "1")
	params.Set("LH_Complete", "1")
	params.Set("_ipg", fmt.Sprintf("%d", limit))

	body, _, _, _, err := c.request(ctx, endpoint, params, requestOpts{
		delay: c.cfg.FallbackDelay,
	})
	if err != nil {
		return nil, err
	}
	return parseSoldSamples(body, marketplace, limit), nil
}

type requestOpts struct {
	delay      bool
	authorized bool
}

// request performs one cached, budgeted, rate-limited GET with bounded
// backoff. Cached hits consume no budget and make no network call.
func (c *Client) request(ctx context.Context, rawURL string, params url.Values, opts requestOpts) (body []byte, status int, requestURL string, cached bool, err error) {
	requestURL = rawURL
	if len(params) > 0 {
		requestURL = rawURL + "?" + params.Encode()
	}
	fp := cache.Fingerprint(http.MethodGet, rawURL, params)

	if c.cache != nil {
		if hit, ok := c.cache.Get(ctx, fp); ok {
			telemetry.CacheHits.Inc()
			return hit, http.StatusOK, requestURL, true, nil
		}
		telemetry.CacheMisses.Inc()
	}

	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		if err := c.budget.Consume(); err != nil {
			telemetry.FetchRequests.WithLabelValues(c.source, "budget").Inc()
			return nil, 0, requestURL, false, err
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, 0, requestURL, false, err
		}
		if opts.delay {
			c.sleep(c.randomDelay())
		}

		body, status, err = c.do(ctx, requestURL, opts.authorized)
		if err != nil {
			if ctx.Err() != nil {
				return nil, 0, requestURL, false, ctx.Err()
			}
			if attempt < c.cfg.MaxAttempts-1 {
				c.sleep(c.backoff(attempt))
				continue
			}
			telemetry.FetchRequests.WithLabelValues(c.source, "transient").Inc()
			return nil, 0, requestURL, false, &TransientError{Err: err}
		}

		if status == http.StatusTooManyRequests || (status >= 500 && status <= 599) {
			if attempt < c.cfg.MaxAttempts-1 {
				c.sleep(c.backoff(attempt))
				continue
			}
			telemetry.FetchRequests.WithLabelValues(c.source, "transient").Inc()
			return nil, status, requestURL, false, &TransientError{StatusCode: status}
		}

		if detail := detectChallenge(body); detail != "" {
			telemetry.Challenges.Inc()
			telemetry.FetchRequests.WithLabelValues(c.source, "challenge").Inc()
			var artifacts []string
			if c.diag != nil {
				artifacts = c.diag.CaptureChallenge(ctx, body, ChallengeMeta{
					Detail:     detail,
					RequestURL: requestURL,
					StatusCode: status,
				})
			}
			c.refreshSession("challenge")
			c.purgeBlockedCache()
			return nil, status, requestURL, false, &ChallengeError{
				Detail:     detail,
				RequestURL: requestURL,
				Artifacts:  artifacts,
			}
		}

		if status >= 400 {
			telemetry.FetchRequests.WithLabelValues(c.source, "transient").Inc()
			return nil, status, requestURL, false, &TransientError{StatusCode: status}
		}

		if c.cache != nil {
			c.cache.Put(ctx, fp, body, c.cacheTTL)
		}
		telemetry.FetchRequests.WithLabelValues(c.source, "ok").Inc()
		return body, status, requestURL, false, nil
	}

	return nil, status, requestURL, false, &TransientError{StatusCode: status}
}

// purgeBlockedCache drops any cached entries carrying challenge signatures so
// a blocked page never satisfies a later request.
func (c *Client) purgeBlockedCache() {
	type purger interface {
		PurgeMatching(tokens []string) int
	}
	if p, ok := c.cache.(purger); ok {
		if removed := p.PurgeMatching(BlockedTokens()); removed > 0 {
			log.Info().Int("removed", removed).Msg("purged cached challenge pages")
		}
	}
}

func (c *Client) do(ctx context.Context, requestURL string, authorized bool) ([]byte, int, error) {
	out, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", c.currentUserAgent())
		req.Header.Set("Accept-Language", "en-GB,en;q=0.9")
		if authorized {
			req.Header.Set("Authorization", "Bearer "+c.cfg.AppID)
		}

		resp, err := c.httpc.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		if err != nil {
			return nil, err
		}
		return &rawResponse{body: body, status: resp.StatusCode}, nil
	})
	if err != nil {
		return nil, 0, err
	}
	resp := out.(*rawResponse)
	return resp.body, resp.status, nil
}

type rawResponse struct {
	body   []byte
	status int
}

func (c *Client) finish(raw []models.Listing, crit Criteria, status int, reqURL string, cached bool) *Result {
	outcome := FilterListings(raw, crit, c.filter)
	for i := range outcome.Listings {
		outcome.Listings[i].FetchedAt = c.now().UTC()
	}
	return &Result{
		Listings:      outcome.Listings,
		RawCount:      len(raw),
		FilteredCount: len(outcome.Listings),
		StatusCode:    status,
		RequestURL:    reqURL,
		Rejections:    outcome.Rejections,
		Cached:        cached,
	}
}
