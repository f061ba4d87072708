// Package store defines the persistence contracts the pipeline depends on.
// The core only needs CRUD plus two atomic primitives: the listing upsert
// keyed by (source, external_id) and the conditional alert insert keyed by
// dedup_key.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/keyflip/keyflip/internal/models"
)

// ErrNotFound is returned when a lookup matches nothing.
var ErrNotFound = errors.New("not found")

// TargetRepo manages saved search definitions. Targets are disabled, never
// deleted.
type TargetRepo interface {
	List(ctx context.Context, onlyEnabled bool) ([]models.Target, error)
	Get(ctx context.Context, id int64) (*models.Target, error)
	Insert(ctx context.Context, target *models.Target) error
	Update(ctx context.Context, target *models.Target) error
	Disable(ctx context.Context, id int64) error
	// ExistsByQuery reports whether a target with this normalized query
	// already exists, enabled or not. Guards auto-discovery duplicates.
	ExistsByQuery(ctx context.Context, query string) (bool, error)
}

// ListingRepo manages observed listings.
type ListingRepo interface {
	// Upsert inserts or refreshes a listing by (source, external_id) and
	// reports whether it was new. The listing's ID is populated either way.
	Upsert(ctx context.Context, listing *models.Listing) (bool, error)
	// PruneOlderThan removes listings not seen since the cutoff.
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// EvaluationFilter narrows evaluation queries for the read API.
type EvaluationFilter struct {
	Decision   models.Decision
	MinScore   float64
	MinProfit  float64
	TitleQuery string
	Limit      int
}

// EvaluationRow joins an evaluation with its listing for display.
type EvaluationRow struct {
	Evaluation models.Evaluation `json:"evaluation"`
	Title      string            `json:"title"`
	URL        string            `json:"url"`
	TotalBuy   float64           `json:"total_buy"`
}

// DealSeed is the slice of a past deal that smart discovery needs.
type DealSeed struct {
	Title      string  `db:"title"`
	TotalBuy   float64 `db:"total_buy"`
	Confidence float64 `db:"confidence"`
}

// EvaluationRepo stores immutable evaluation rows.
type EvaluationRepo interface {
	Insert(ctx context.Context, eval *models.Evaluation) error
	Top(ctx context.Context, filter EvaluationFilter) ([]EvaluationRow, error)
	// RecentDeals returns high-confidence deal evaluations since the cutoff,
	// newest first, for smart target discovery.
	RecentDeals(ctx context.Context, minConfidence float64, since time.Time, limit int) ([]DealSeed, error)
}

// AlertRepo claims alert sends. Claim must be atomic against concurrent
// workers: a single conditional insert, not read-then-write.
type AlertRepo interface {
	// Claim inserts the alert iff its dedup key is unused. Returns true when
	// this caller won the claim; false when the key already exists.
	Claim(ctx context.Context, alert *models.Alert) (bool, error)
	MarkDelivered(ctx context.Context, id int64) error
}

// TraceRepo keeps the latest retry trace per target, overwritten each scan.
type TraceRepo interface {
	Save(ctx context.Context, trace *models.RetryTrace) error
	Get(ctx context.Context, targetID int64) (*models.RetryTrace, error)
}

// Store bundles the repositories the pipeline wires together.
type Store struct {
	Targets     TargetRepo
	Listings    ListingRepo
	Evaluations EvaluationRepo
	Alerts      AlertRepo
	Traces      TraceRepo
}
