package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/keyflip/keyflip/internal/models"
	"github.com/keyflip/keyflip/internal/store"
)

type traceRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

func (r *traceRepo) Save(ctx context.Context, trace *models.RetryTrace) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	stages, err := json.Marshal(trace.Stages)
	if err != nil {
		return fmt.Errorf("failed to encode trace stages: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO retry_traces (target_id, sweep_id, stages, status, error, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (target_id) DO UPDATE SET
			sweep_id = EXCLUDED.sweep_id,
			stages = EXCLUDED.stages,
			status = EXCLUDED.status,
			error = EXCLUDED.error,
			recorded_at = EXCLUDED.recorded_at`,
		trace.TargetID, trace.SweepID, stages, trace.Status, trace.Error,
		trace.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save trace for target %d: %w", trace.TargetID, err)
	}
	return nil
}

type traceRow struct {
	models.RetryTrace
	Stages []byte `db:"stages"`
}

func (r *traceRepo) Get(ctx context.Context, targetID int64) (*models.RetryTrace, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var row traceRow
	err := r.db.GetContext(ctx, &row,
		`SELECT * FROM retry_traces WHERE target_id = $1`, targetID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trace for target %d: %w", targetID, err)
	}

	trace := row.RetryTrace
	if len(row.Stages) > 0 {
		if err := json.Unmarshal(row.Stages, &trace.Stages); err != nil {
			return nil, fmt.Errorf("failed to decode trace stages for target %d: %w", targetID, err)
		}
	}
	return &trace, nil
}
