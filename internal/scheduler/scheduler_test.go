package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/keyflip/keyflip/internal/scan"
)

type countingSweeper struct {
	runs int32
}

func (s *countingSweeper) Run(context.Context) (*scan.SweepResult, error) {
	atomic.AddInt32(&s.runs, 1)
	return &scan.SweepResult{}, nil
}

func TestRunSweepsImmediatelyThenOnTicks(t *testing.T) {
	sweeper := &countingSweeper{}
	sched := New(sweeper, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Millisecond)
	defer cancel()

	err := sched.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	runs := atomic.LoadInt32(&sweeper.runs)
	assert.GreaterOrEqual(t, runs, int32(2), "initial sweep plus at least one tick")
}

func TestRunStopsOnCancel(t *testing.T) {
	sweeper := &countingSweeper{}
	sched := New(sweeper, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := sched.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), atomic.LoadInt32(&sweeper.runs))
}
