// Package telemetry exposes the pipeline's Prometheus metrics.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FetchRequests counts upstream requests by marketplace and outcome
	// (ok, transient, challenge, budget).
	FetchRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keyflip_fetch_requests_total",
		Help: "Upstream fetch requests by marketplace and outcome",
	}, []string{"source", "outcome"})

	// CacheHits and CacheMisses track the response cache.
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "keyflip_cache_hits_total",
		Help: "Response cache hits",
	})
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "keyflip_cache_misses_total",
		Help: "Response cache misses",
	})

	// Challenges counts detected anti-bot challenge pages.
	Challenges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "keyflip_challenges_total",
		Help: "Detected challenge pages",
	})

	// Evaluations counts scoring outcomes by decision.
	Evaluations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keyflip_evaluations_total",
		Help: "Evaluations by decision",
	}, []string{"decision"})

	// AlertsSent counts delivered alerts; AlertsDeduped counts suppressed ones.
	AlertsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "keyflip_alerts_sent_total",
		Help: "Alerts claimed and sent",
	})
	AlertsDeduped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "keyflip_alerts_deduped_total",
		Help: "Alerts suppressed by the dedup claim",
	})

	// SweepDuration observes wall-clock time per full sweep.
	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "keyflip_sweep_duration_seconds",
		Help:    "Full sweep duration",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	// LadderStages observes how many ladder stages each target scan executed.
	LadderStages = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "keyflip_ladder_stages_per_scan",
		Help:    "Retry ladder stages executed per target scan",
		Buckets: []float64{1, 2, 3, 4, 5},
	})
)
