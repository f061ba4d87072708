package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/keyflip/keyflip/internal/models"
)

type listingRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// Upsert is a single round trip. xmax = 0 distinguishes a fresh insert from a
// conflict-path update without a second query.
func (r *listingRepo) Upsert(ctx context.Context, l *models.Listing) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var (
		id    int64
		isNew bool
	)
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO listings
			(target_id, source, external_id, title, price_raw, currency,
			 price, shipping, total_buy, listing_type, condition, url,
			 image_url, location, seller_feedback_pct, seller_feedback_score,
			 returns_accepted, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			 $13, $14, $15, $16, $17, $18)
		ON CONFLICT (source, external_id) DO UPDATE SET
			target_id = EXCLUDED.target_id,
			title = EXCLUDED.title,
			price_raw = EXCLUDED.price_raw,
			currency = EXCLUDED.currency,
			price = EXCLUDED.price,
			shipping = EXCLUDED.shipping,
			total_buy = EXCLUDED.total_buy,
			listing_type = EXCLUDED.listing_type,
			condition = EXCLUDED.condition,
			url = EXCLUDED.url,
			image_url = EXCLUDED.image_url,
			location = EXCLUDED.location,
			seller_feedback_pct = EXCLUDED.seller_feedback_pct,
			seller_feedback_score = EXCLUDED.seller_feedback_score,
			returns_accepted = EXCLUDED.returns_accepted,
			fetched_at = EXCLUDED.fetched_at
		RETURNING id, (xmax = 0) AS is_new`,
		l.TargetID, l.Source, l.ExternalID, l.Title, l.PriceRaw, l.Currency,
		l.Price, l.Shipping, l.TotalBuy, l.ListingType, l.Condition, l.URL,
		l.ImageURL, l.Location, l.SellerFeedbackPct, l.SellerFeedbackScore,
		l.ReturnsAccepted, l.FetchedAt,
	).Scan(&id, &isNew)
	if err != nil {
		return false, fmt.Errorf("failed to upsert listing %s/%s: %w", l.Source, l.ExternalID, err)
	}
	l.ID = id
	return isNew, nil
}

func (r *listingRepo) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx,
		`DELETE FROM listings WHERE fetched_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune listings: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned listings: %w", err)
	}
	return n, nil
}
