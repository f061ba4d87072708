package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/keyflip/keyflip/internal/models"
	"github.com/keyflip/keyflip/internal/store"
)

type evaluationRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

func (r *evaluationRepo) Insert(ctx context.Context, eval *models.Evaluation) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	reasons, err := json.Marshal(eval.Reasons)
	if err != nil {
		return fmt.Errorf("failed to encode evaluation reasons: %w", err)
	}
	insights, err := json.Marshal(eval.Insights)
	if err != nil {
		return fmt.Errorf("failed to encode evaluation insights: %w", err)
	}

	err = r.db.QueryRowxContext(ctx, `
		INSERT INTO evaluations
			(listing_id, sweep_id, expected_resale, estimated_costs, profit,
			 roi, confidence, score, decision, reasons, insights, evaluated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`,
		eval.ListingID, eval.SweepID, eval.ExpectedResale, eval.EstimatedCosts,
		eval.Profit, eval.ROI, eval.Confidence, eval.Score, eval.Decision,
		reasons, insights, eval.EvaluatedAt,
	).Scan(&eval.ID)
	if err != nil {
		return fmt.Errorf("failed to insert evaluation for listing %d: %w", eval.ListingID, err)
	}
	return nil
}

// evalRow carries the JSON columns alongside the joined listing fields.
type evalRow struct {
	models.Evaluation
	Reasons  []byte  `db:"reasons"`
	Insights []byte  `db:"insights"`
	Title    string  `db:"title"`
	URL      string  `db:"url"`
	TotalBuy float64 `db:"total_buy"`
}

func (r *evaluationRepo) Top(ctx context.Context, filter store.EvaluationFilter) ([]store.EvaluationRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT e.id, e.listing_id, e.sweep_id, e.expected_resale,
		       e.estimated_costs, e.profit, e.roi, e.confidence, e.score,
		       e.decision, e.reasons, e.insights, e.evaluated_at,
		       l.title, l.url, l.total_buy
		FROM evaluations e
		JOIN listings l ON l.id = e.listing_id
		WHERE e.score >= $1 AND e.profit >= $2`
	args := []interface{}{filter.MinScore, filter.MinProfit}

	if filter.Decision != "" {
		args = append(args, filter.Decision)
		query += fmt.Sprintf(" AND e.decision = $%d", len(args))
	}
	if filter.TitleQuery != "" {
		args = append(args, "%"+filter.TitleQuery+"%")
		query += fmt.Sprintf(" AND l.title ILIKE $%d", len(args))
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY e.score DESC, e.id DESC LIMIT $%d", len(args))

	var rows []evalRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query evaluations: %w", err)
	}

	out := make([]store.EvaluationRow, 0, len(rows))
	for i := range rows {
		eval := rows[i].Evaluation
		if len(rows[i].Reasons) > 0 {
			if err := json.Unmarshal(rows[i].Reasons, &eval.Reasons); err != nil {
				return nil, fmt.Errorf("failed to decode reasons for evaluation %d: %w", eval.ID, err)
			}
		}
		if len(rows[i].Insights) > 0 {
			if err := json.Unmarshal(rows[i].Insights, &eval.Insights); err != nil {
				return nil, fmt.Errorf("failed to decode insights for evaluation %d: %w", eval.ID, err)
			}
		}
		out = append(out, store.EvaluationRow{
			Evaluation: eval,
			Title:      rows[i].Title,
			URL:        rows[i].URL,
			TotalBuy:   rows[i].TotalBuy,
		})
	}
	return out, nil
}

func (r *evaluationRepo) RecentDeals(ctx context.Context, minConfidence float64, since time.Time, limit int) ([]store.DealSeed, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if limit <= 0 {
		limit = 20
	}
	var seeds []store.DealSeed
	err := r.db.SelectContext(ctx, &seeds, `
		SELECT l.title, l.total_buy, e.confidence
		FROM evaluations e
		JOIN listings l ON l.id = e.listing_id
		WHERE e.decision = 'deal'
		  AND e.confidence >= $1
		  AND e.evaluated_at >= $2
		ORDER BY e.evaluated_at DESC
		LIMIT $3`,
		minConfidence, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent deals: %w", err)
	}
	return seeds, nil
}
