// Package scheduler drives periodic sweeps.
package scheduler

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/keyflip/keyflip/internal/scan"
)

// Sweeper runs one full sweep.
type Sweeper interface {
	Run(ctx context.Context) (*scan.SweepResult, error)
}

// Scheduler runs the orchestrator on a fixed interval. One sweep at a time;
// an overrunning sweep delays the next tick rather than overlapping it.
type Scheduler struct {
	orchestrator Sweeper
	interval     time.Duration
	jitter       time.Duration
}

func New(orchestrator Sweeper, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Scheduler{orchestrator: orchestrator, interval: interval, jitter: interval / 10}
}

// Run sweeps immediately, then on every interval tick until the context is
// cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Info().Dur("interval", s.interval).Msg("scheduler started")

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.pause(ctx)
			s.sweep(ctx)
		}
	}
}

// pause waits a random slice of the jitter window so ticked sweeps never hit
// the upstream on an exact cadence.
func (s *Scheduler) pause(ctx context.Context) {
	if s.jitter <= 0 {
		return
	}
	timer := time.NewTimer(time.Duration(rand.Int63n(int64(s.jitter))))
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.orchestrator.Run(ctx); err != nil {
		log.Error().Err(err).Msg("sweep failed")
	}
}
