// Package postgres implements the store contracts over PostgreSQL via sqlx.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/keyflip/keyflip/internal/store"
)

// Open connects to Postgres, ensures the schema, and returns the wired store.
func Open(ctx context.Context, dsn string, timeout time.Duration) (*store.Store, *sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := ensureSchema(ctx, db); err != nil {
		db.Close()
		return nil, nil, err
	}
	return New(db, timeout), db, nil
}

// New wires the repositories over an existing connection.
func New(db *sqlx.DB, timeout time.Duration) *store.Store {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &store.Store{
		Targets:     &targetRepo{db: db, timeout: timeout},
		Listings:    &listingRepo{db: db, timeout: timeout},
		Evaluations: &evaluationRepo{db: db, timeout: timeout},
		Alerts:      &alertRepo{db: db, timeout: timeout},
		Traces:      &traceRepo{db: db, timeout: timeout},
	}
}

func ensureSchema(ctx context.Context, db *sqlx.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS targets (
			id            BIGSERIAL PRIMARY KEY,
			name          TEXT NOT NULL,
			query         TEXT NOT NULL,
			category_path JSONB NOT NULL DEFAULT '[]',
			condition     TEXT NOT NULL DEFAULT '',
			listing_type  TEXT NOT NULL DEFAULT 'any',
			max_buy       DOUBLE PRECISION,
			shipping_max  DOUBLE PRECISION,
			currency      TEXT NOT NULL DEFAULT 'GBP',
			enabled       BOOLEAN NOT NULL DEFAULT TRUE,
			auto_managed  BOOLEAN NOT NULL DEFAULT FALSE,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS listings (
			id                    BIGSERIAL PRIMARY KEY,
			target_id             BIGINT NOT NULL REFERENCES targets(id),
			source                TEXT NOT NULL,
			external_id           TEXT NOT NULL,
			title                 TEXT NOT NULL DEFAULT '',
			price_raw             DOUBLE PRECISION NOT NULL,
			currency              TEXT NOT NULL DEFAULT '',
			price                 DOUBLE PRECISION NOT NULL,
			shipping              DOUBLE PRECISION NOT NULL DEFAULT 0,
			total_buy             DOUBLE PRECISION NOT NULL,
			listing_type          TEXT NOT NULL DEFAULT '',
			condition             TEXT NOT NULL DEFAULT '',
			url                   TEXT NOT NULL DEFAULT '',
			image_url             TEXT NOT NULL DEFAULT '',
			location              TEXT NOT NULL DEFAULT '',
			seller_feedback_pct   DOUBLE PRECISION,
			seller_feedback_score BIGINT,
			returns_accepted      BOOLEAN,
			fetched_at            TIMESTAMPTZ NOT NULL,
			UNIQUE (source, external_id)
		)`,
		`CREATE TABLE IF NOT EXISTS evaluations (
			id              BIGSERIAL PRIMARY KEY,
			listing_id      BIGINT NOT NULL REFERENCES listings(id) ON DELETE CASCADE,
			sweep_id        TEXT NOT NULL DEFAULT '',
			expected_resale DOUBLE PRECISION NOT NULL,
			estimated_costs DOUBLE PRECISION NOT NULL,
			profit          DOUBLE PRECISION NOT NULL,
			roi             DOUBLE PRECISION NOT NULL,
			confidence      DOUBLE PRECISION NOT NULL,
			score           DOUBLE PRECISION NOT NULL,
			decision        TEXT NOT NULL,
			reasons         JSONB NOT NULL DEFAULT '[]',
			insights        JSONB NOT NULL DEFAULT '{}',
			evaluated_at    TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_evaluations_score
			ON evaluations (decision, score DESC)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id         BIGSERIAL PRIMARY KEY,
			dedup_key  TEXT NOT NULL UNIQUE,
			listing_id BIGINT NOT NULL,
			delivered  BOOLEAN NOT NULL DEFAULT FALSE,
			sent_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS retry_traces (
			target_id   BIGINT PRIMARY KEY,
			sweep_id    TEXT NOT NULL DEFAULT '',
			stages      JSONB NOT NULL DEFAULT '[]',
			status      TEXT NOT NULL DEFAULT 'ok',
			error       TEXT NOT NULL DEFAULT '',
			recorded_at TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}
