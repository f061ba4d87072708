package scan

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/keyflip/keyflip/internal/comps"
	"github.com/keyflip/keyflip/internal/fetch"
	"github.com/keyflip/keyflip/internal/models"
	"github.com/keyflip/keyflip/internal/store"
)

// seed is one curated high-liquidity target candidate.
type seed struct {
	name     string
	query    string
	category string
	maxBuy   float64
}

// popularSeeds is the curated catalog of flip-friendly categories. Picked for
// liquid resale markets with stable comp pools.
var popularSeeds = map[string][]seed{
	"phones": {
		{name: "iPhone 13", query: "iphone 13 unlocked", category: "9355", maxBuy: 250},
		{name: "iPhone 12", query: "iphone 12 unlocked", category: "9355", maxBuy: 180},
		{name: "Galaxy S22", query: "samsung galaxy s22 unlocked", category: "9355", maxBuy: 180},
		{name: "Pixel 7", query: "google pixel 7 unlocked", category: "9355", maxBuy: 160},
	},
	"consoles": {
		{name: "Nintendo Switch", query: "nintendo switch console", category: "139971", maxBuy: 140},
		{name: "PS4 Pro", query: "ps4 pro console", category: "139971", maxBuy: 120},
		{name: "Xbox Series S", query: "xbox series s console", category: "139971", maxBuy: 130},
	},
	"audio": {
		{name: "AirPods Pro", query: "airpods pro", category: "112529", maxBuy: 90},
		{name: "Bose QC35", query: "bose quietcomfort 35", category: "112529", maxBuy: 80},
		{name: "Sony WH-1000XM4", query: "sony wh-1000xm4", category: "112529", maxBuy: 110},
	},
	"wearables": {
		{name: "Apple Watch 7", query: "apple watch series 7", category: "178893", maxBuy: 140},
		{name: "Garmin Fenix 6", query: "garmin fenix 6", category: "178893", maxBuy: 160},
	},
}

// Discovery adds new scan targets automatically: curated seeds per category
// plus generalizations of recently confirmed deals. Every discovered target
// is marked auto-managed and capped per sweep.
type Discovery struct {
	targets       store.TargetRepo
	evals         store.EvaluationRepo
	cap           int
	perCategory   int
	minConfidence float64
	lookback      time.Duration
	currency      string
	now           func() time.Time
}

func NewDiscovery(targets store.TargetRepo, evals store.EvaluationRepo, sweepCap, perCategory int, minConfidence float64, currency string) *Discovery {
	if sweepCap <= 0 {
		sweepCap = 5
	}
	if perCategory <= 0 {
		perCategory = 3
	}
	if minConfidence <= 0 {
		minConfidence = 0.6
	}
	if currency == "" {
		currency = "GBP"
	}
	return &Discovery{
		targets:       targets,
		evals:         evals,
		cap:           sweepCap,
		perCategory:   perCategory,
		minConfidence: minConfidence,
		lookback:      7 * 24 * time.Hour,
		currency:      currency,
		now:           time.Now,
	}
}

// Run adds up to the configured cap of new targets: smart candidates from
// recent deals first, then curated seeds to fill the remainder.
func (d *Discovery) Run(ctx context.Context) (int, error) {
	added := 0

	smart, err := d.smartCandidates(ctx)
	if err != nil {
		return 0, err
	}
	for _, t := range smart {
		if added >= d.cap {
			return added, nil
		}
		ok, err := d.insertIfNew(ctx, t)
		if err != nil {
			return added, err
		}
		if ok {
			added++
		}
	}

	seeded, err := d.seedCurated(ctx, d.cap-added)
	if err != nil {
		return added + seeded, err
	}
	return added + seeded, nil
}

// SeedPopular inserts the whole curated catalog, honoring only the
// per-category cap. Backs the targets seed command; sweeps go through Run,
// which also applies the per-sweep cap.
func (d *Discovery) SeedPopular(ctx context.Context) (int, error) {
	total := 0
	for _, seeds := range popularSeeds {
		total += len(seeds)
	}
	return d.seedCurated(ctx, total)
}

func (d *Discovery) seedCurated(ctx context.Context, limit int) (int, error) {
	added := 0
	for category, seeds := range popularSeeds {
		perCat := 0
		for _, s := range seeds {
			if added >= limit || perCat >= d.perCategory {
				break
			}
			maxBuy := s.maxBuy
			t := models.Target{
				Name:         s.name,
				Query:        s.query,
				CategoryPath: []models.CategoryNode{{ID: s.category, Name: category}},
				ListingType:  "any",
				MaxBuy:       &maxBuy,
				Currency:     d.currency,
				Enabled:      true,
				AutoManaged:  true,
			}
			ok, err := d.insertIfNew(ctx, t)
			if err != nil {
				return added, err
			}
			if ok {
				added++
				perCat++
			}
		}
	}
	return added, nil
}

// smartCandidates generalizes recent high-confidence deals into fresh
// queries: normalized title with unit-specific tokens stripped, buy cap set
// slightly above the observed price.
func (d *Discovery) smartCandidates(ctx context.Context) ([]models.Target, error) {
	since := d.now().UTC().Add(-d.lookback)
	seeds, err := d.evals.RecentDeals(ctx, d.minConfidence, since, d.cap*4)
	if err != nil {
		return nil, err
	}

	var out []models.Target
	seen := make(map[string]struct{})
	for _, s := range seeds {
		query := generalizeTitle(s.Title)
		if query == "" || len(strings.Fields(query)) < 2 {
			continue
		}
		if _, dup := seen[query]; dup {
			continue
		}
		seen[query] = struct{}{}

		maxBuy := s.TotalBuy * 1.1
		out = append(out, models.Target{
			Name:        "auto: " + query,
			Query:       query,
			ListingType: "any",
			MaxBuy:      &maxBuy,
			Currency:    d.currency,
			Enabled:     true,
			AutoManaged: true,
		})
	}
	return out, nil
}

func (d *Discovery) insertIfNew(ctx context.Context, t models.Target) (bool, error) {
	exists, err := d.targets.ExistsByQuery(ctx, t.Query)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	if err := d.targets.Insert(ctx, &t); err != nil {
		return false, err
	}
	log.Info().Str("query", t.Query).Str("name", t.Name).Msg("discovered new target")
	return true, nil
}

// generalizeTitle turns one listing title into a reusable search query by
// removing marketing noise, then capacity and color tokens.
func generalizeTitle(title string) string {
	normalized := comps.NormalizeQuery(title)
	broadened := fetch.BroadenQuery(normalized)

	words := strings.Fields(broadened)
	if len(words) > 5 {
		words = words[:5]
	}
	return strings.Join(words, " ")
}
