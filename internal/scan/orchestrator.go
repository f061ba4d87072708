// Package scan runs full sweeps: every enabled target is fetched through the
// retry ladder, scored against sold comps, persisted, and alerted on.
package scan

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/keyflip/keyflip/internal/alerts"
	"github.com/keyflip/keyflip/internal/comps"
	"github.com/keyflip/keyflip/internal/config"
	"github.com/keyflip/keyflip/internal/fetch"
	"github.com/keyflip/keyflip/internal/fx"
	"github.com/keyflip/keyflip/internal/models"
	"github.com/keyflip/keyflip/internal/net/budget"
	"github.com/keyflip/keyflip/internal/scoring"
	"github.com/keyflip/keyflip/internal/store"
	"github.com/keyflip/keyflip/internal/telemetry"
)

// Orchestrator coordinates one sweep across a bounded worker pool. All
// workers share the same budget tracker and rate limiter through the fetch
// client, so concurrency never multiplies the request spend.
type Orchestrator struct {
	cfg        *config.Config
	store      *store.Store
	ladder     *fetch.Ladder
	comps      *comps.Engine
	converter  *fx.Converter
	budget     *budget.Tracker
	dispatcher *alerts.Dispatcher
	discovery  *Discovery
	now        func() time.Time
}

// Options wires an Orchestrator's collaborators.
type Options struct {
	Config     *config.Config
	Store      *store.Store
	Searcher   fetch.Searcher
	Comps      *comps.Engine
	Converter  *fx.Converter
	Budget     *budget.Tracker
	Dispatcher *alerts.Dispatcher
	Discovery  *Discovery
}

func NewOrchestrator(opts Options) *Orchestrator {
	return &Orchestrator{
		cfg:        opts.Config,
		store:      opts.Store,
		ladder:     fetch.NewLadder(opts.Searcher),
		comps:      opts.Comps,
		converter:  opts.Converter,
		budget:     opts.Budget,
		dispatcher: opts.Dispatcher,
		discovery:  opts.Discovery,
		now:        time.Now,
	}
}

// SweepResult summarizes one completed sweep.
type SweepResult struct {
	SweepID     string        `json:"sweep_id"`
	Targets     int           `json:"targets"`
	Listings    int           `json:"listings"`
	Evaluations int           `json:"evaluations"`
	Deals       int           `json:"deals"`
	Alerts      int           `json:"alerts"`
	Errors      int           `json:"errors"`
	Pruned      int64         `json:"pruned"`
	Discovered  int           `json:"discovered"`
	Duration    time.Duration `json:"duration"`
}

// Run executes one full sweep. The per-sweep request budget is reset at the
// start; a cancelled context stops scheduling new targets but lets in-flight
// ones finish.
func (o *Orchestrator) Run(ctx context.Context) (*SweepResult, error) {
	started := o.now()
	result := &SweepResult{SweepID: uuid.NewString()}
	o.budget.Reset()

	targets, err := o.store.Targets.List(ctx, true)
	if err != nil {
		return nil, err
	}
	result.Targets = len(targets)

	log.Info().Str("sweep_id", result.SweepID).Int("targets", len(targets)).
		Msg("sweep started")

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, o.cfg.Scan.Workers)
	)
	for i := range targets {
		if ctx.Err() != nil {
			break
		}
		target := targets[i]
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			stats := o.scanTarget(ctx, result.SweepID, target)
			mu.Lock()
			result.Listings += stats.listings
			result.Evaluations += stats.evaluations
			result.Deals += stats.deals
			result.Alerts += stats.alerts
			if stats.failed {
				result.Errors++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if o.cfg.Scan.ListingMaxAge > 0 {
		cutoff := o.now().UTC().Add(-o.cfg.Scan.ListingMaxAge)
		pruned, err := o.store.Listings.PruneOlderThan(ctx, cutoff)
		if err != nil {
			log.Warn().Err(err).Msg("listing prune failed")
		} else {
			result.Pruned = pruned
		}
	}

	if o.discovery != nil && o.cfg.Scan.DiscoveryEnabled && ctx.Err() == nil {
		added, err := o.discovery.Run(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("target discovery failed")
		}
		result.Discovered = added
	}

	result.Duration = o.now().Sub(started)
	telemetry.SweepDuration.Observe(result.Duration.Seconds())

	log.Info().Str("sweep_id", result.SweepID).
		Int("listings", result.Listings).
		Int("deals", result.Deals).
		Int("alerts", result.Alerts).
		Int("errors", result.Errors).
		Int64("budget_used", o.budget.Used()).
		Dur("duration", result.Duration).
		Msg("sweep finished")
	return result, nil
}

type targetStats struct {
	listings    int
	evaluations int
	deals       int
	alerts      int
	failed      bool
}

// scanTarget is the per-target error boundary: failures are recorded on the
// trace and counted, never propagated into the sweep.
func (o *Orchestrator) scanTarget(ctx context.Context, sweepID string, target models.Target) targetStats {
	var stats targetStats

	// sweepCtx outlives the per-target ceiling so the trace of a timed-out
	// target can still be persisted.
	sweepCtx := ctx
	if o.cfg.Scan.TargetCeiling > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.Scan.TargetCeiling)
		defer cancel()
	}

	outcome, err := o.ladder.Run(ctx, &target)
	if outcome != nil {
		outcome.Trace.SweepID = sweepID
		telemetry.LadderStages.Observe(float64(len(outcome.Trace.Stages)))
		if saveErr := o.store.Traces.Save(sweepCtx, &outcome.Trace); saveErr != nil {
			log.Warn().Err(saveErr).Int64("target_id", target.ID).Msg("failed to save retry trace")
		}
	}
	if err != nil {
		log.Warn().Err(err).Int64("target_id", target.ID).Str("query", target.Query).
			Msg("target scan aborted")
		stats.failed = true
		return stats
	}
	if len(outcome.Listings) == 0 {
		log.Debug().Int64("target_id", target.ID).Str("query", target.Query).
			Msg("no listings after full ladder")
		return stats
	}

	listings := outcome.Listings
	if max := o.cfg.Scan.ListingsPerTarget; max > 0 && len(listings) > max {
		listings = listings[:max]
	}

	reference := o.cfg.FX.Reference
	for i := range listings {
		listing := listings[i]
		listing.TargetID = target.ID
		listing.Price = o.converter.Convert(ctx, listing.PriceRaw, listing.Currency, reference)
		listing.Shipping = o.converter.Convert(ctx, listing.Shipping, listing.Currency, reference)
		listing.TotalBuy = listing.Price + listing.Shipping

		if _, err := o.store.Listings.Upsert(ctx, &listing); err != nil {
			log.Warn().Err(err).Str("external_id", listing.ExternalID).Msg("listing upsert failed")
			continue
		}
		stats.listings++

		compQuery := listing.Title
		if compQuery == "" {
			compQuery = target.Query
		}
		compStats, _ := o.comps.Lookup(ctx, compQuery, o.cfg.Comps.Marketplaces)

		eval := scoring.Evaluate(listing, compStats, o.cfg.Scoring)
		eval.SweepID = sweepID
		eval.EvaluatedAt = o.now().UTC()
		if err := o.store.Evaluations.Insert(ctx, &eval); err != nil {
			log.Warn().Err(err).Int64("listing_id", listing.ID).Msg("evaluation insert failed")
			continue
		}
		stats.evaluations++
		telemetry.Evaluations.WithLabelValues(string(eval.Decision)).Inc()

		if eval.Decision == models.DecisionDeal {
			stats.deals++
			sent, err := o.dispatcher.Dispatch(ctx, listing, eval)
			if err != nil {
				log.Warn().Err(err).Int64("listing_id", listing.ID).Msg("alert dispatch failed")
				continue
			}
			if sent {
				stats.alerts++
				telemetry.AlertsSent.Inc()
			} else {
				telemetry.AlertsDeduped.Inc()
			}
		}
	}
	return stats
}
