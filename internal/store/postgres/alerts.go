package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/keyflip/keyflip/internal/models"
	"github.com/keyflip/keyflip/internal/store"
)

type alertRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// Claim races concurrent workers on the dedup key. The conditional insert
// returns no row when the key already exists, which is the losing outcome,
// not an error.
func (r *alertRepo) Claim(ctx context.Context, alert *models.Alert) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO alerts (dedup_key, listing_id, delivered, sent_at)
		VALUES ($1, $2, FALSE, $3)
		ON CONFLICT (dedup_key) DO NOTHING
		RETURNING id`,
		alert.DedupKey, alert.ListingID, alert.SentAt,
	).Scan(&alert.ID)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return false, nil
	}
	return false, fmt.Errorf("failed to claim alert: %w", err)
}

func (r *alertRepo) MarkDelivered(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx,
		`UPDATE alerts SET delivered = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to mark alert %d delivered: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}
