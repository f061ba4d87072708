package main

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"

	"github.com/keyflip/keyflip/internal/alerts"
	"github.com/keyflip/keyflip/internal/cache"
	"github.com/keyflip/keyflip/internal/comps"
	"github.com/keyflip/keyflip/internal/config"
	"github.com/keyflip/keyflip/internal/diag"
	"github.com/keyflip/keyflip/internal/fetch"
	"github.com/keyflip/keyflip/internal/fx"
	"github.com/keyflip/keyflip/internal/net/budget"
	"github.com/keyflip/keyflip/internal/net/ratelimit"
	"github.com/keyflip/keyflip/internal/scan"
	"github.com/keyflip/keyflip/internal/store"
	"github.com/keyflip/keyflip/internal/store/postgres"
)

// app bundles the wired pipeline for the CLI commands.
type app struct {
	cfg          *config.Config
	store        *store.Store
	db           *sqlx.DB
	orchestrator *scan.Orchestrator
}

func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
}

// buildApp loads config and wires the full pipeline in dependency order:
// persistence, cache, fetch client, comps, scoring inputs, alerts, scan.
func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	setupLogging(cfg.LogLevel)

	st, db, err := postgres.Open(ctx, cfg.Database.DSN, cfg.Database.QueryTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	var responseCache cache.Store
	if cfg.Cache.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
		responseCache = cache.NewRedisStore(client)
	} else {
		responseCache = cache.NewTTLStore()
	}

	tracker := budget.NewTracker(cfg.Fetch.RequestBudget)
	limiter := ratelimit.NewLimiter(cfg.Fetch.RPS, cfg.Fetch.Burst)
	recorder := diag.NewRecorder(cfg.Artifacts.Dir, cfg.Artifacts.Screenshot)

	client := fetch.NewClient(fetch.Options{
		Config: cfg.Fetch,
		Filter: fetch.FilterSettings{
			BlockedKeywords:        cfg.Fetch.BlockedKeywords,
			MinSellerFeedbackPct:   cfg.Fetch.MinSellerFeedbackPct,
			MinSellerFeedbackScore: cfg.Fetch.MinSellerFeedbackScore,
		},
		Cache:    responseCache,
		CacheTTL: cfg.Cache.TTL,
		Budget:   tracker,
		Limiter:  limiter,
		Diag:     recorder,
	})

	converter := fx.NewConverter(cfg.FX.Enabled, cfg.FX.FallbackUSDRate, cfg.FX.CacheFor)
	compEngine := comps.NewEngine(client, converter, cfg.FX.Reference, cfg.Comps.Limit, cfg.Comps.TTL)

	var sender alerts.Sender
	if cfg.Alerts.WebhookURL != "" {
		sender = alerts.NewWebhookSender(cfg.Alerts.WebhookURL, cfg.Alerts.Timeout)
	}
	dispatcher := alerts.NewDispatcher(st.Alerts, sender)

	var discovery *scan.Discovery
	if cfg.Scan.DiscoveryEnabled {
		discovery = scan.NewDiscovery(st.Targets, st.Evaluations,
			cfg.Scan.DiscoveryCap, cfg.Scan.PerCategorySeeds,
			cfg.Scoring.MinConfidence, cfg.FX.Reference)
	}

	orchestrator := scan.NewOrchestrator(scan.Options{
		Config:     cfg,
		Store:      st,
		Searcher:   client,
		Comps:      compEngine,
		Converter:  converter,
		Budget:     tracker,
		Dispatcher: dispatcher,
		Discovery:  discovery,
	})

	return &app{cfg: cfg, store: st, db: db, orchestrator: orchestrator}, nil
}
