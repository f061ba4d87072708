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

type targetRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// targetRow mirrors the targets table; the category path travels as JSON.
type targetRow struct {
	models.Target
	CategoryPath []byte `db:"category_path"`
}

func (r *targetRow) decode() (models.Target, error) {
	t := r.Target
	if len(r.CategoryPath) > 0 {
		if err := json.Unmarshal(r.CategoryPath, &t.CategoryPath); err != nil {
			return t, fmt.Errorf("failed to decode category path for target %d: %w", t.ID, err)
		}
	}
	return t, nil
}

func encodeCategoryPath(path []models.CategoryNode) ([]byte, error) {
	if path == nil {
		path = []models.CategoryNode{}
	}
	return json.Marshal(path)
}

func (r *targetRepo) List(ctx context.Context, onlyEnabled bool) ([]models.Target, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT * FROM targets`
	if onlyEnabled {
		query += ` WHERE enabled = TRUE`
	}
	query += ` ORDER BY id`

	var rows []targetRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}

	targets := make([]models.Target, 0, len(rows))
	for i := range rows {
		t, err := rows[i].decode()
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return targets, nil
}

func (r *targetRepo) Get(ctx context.Context, id int64) (*models.Target, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var row targetRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM targets WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get target %d: %w", id, err)
	}
	t, err := row.decode()
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *targetRepo) Insert(ctx context.Context, target *models.Target) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	path, err := encodeCategoryPath(target.CategoryPath)
	if err != nil {
		return fmt.Errorf("failed to encode category path: %w", err)
	}

	err = r.db.QueryRowxContext(ctx, `
		INSERT INTO targets
			(name, query, category_path, condition, listing_type,
			 max_buy, shipping_max, currency, enabled, auto_managed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`,
		target.Name, target.Query, path, target.Condition, target.ListingType,
		target.MaxBuy, target.ShippingMax, target.Currency, target.Enabled,
		target.AutoManaged,
	).Scan(&target.ID, &target.CreatedAt, &target.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert target: %w", err)
	}
	return nil
}

func (r *targetRepo) Update(ctx context.Context, target *models.Target) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	path, err := encodeCategoryPath(target.CategoryPath)
	if err != nil {
		return fmt.Errorf("failed to encode category path: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE targets SET
			name = $2, query = $3, category_path = $4, condition = $5,
			listing_type = $6, max_buy = $7, shipping_max = $8, currency = $9,
			enabled = $10, auto_managed = $11, updated_at = now()
		WHERE id = $1`,
		target.ID, target.Name, target.Query, path, target.Condition,
		target.ListingType, target.MaxBuy, target.ShippingMax, target.Currency,
		target.Enabled, target.AutoManaged,
	)
	if err != nil {
		return fmt.Errorf("failed to update target %d: %w", target.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *targetRepo) Disable(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx,
		`UPDATE targets SET enabled = FALSE, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to disable target %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *targetRepo) ExistsByQuery(ctx context.Context, query string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM targets WHERE lower(query) = lower($1))`, query)
	if err != nil {
		return false, fmt.Errorf("failed to check target query: %w", err)
	}
	return exists, nil
}
