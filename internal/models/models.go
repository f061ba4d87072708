package models

import (
	"time"
)

// Decision is the terminal classification for an evaluated listing.
type Decision string

const (
	DecisionDeal   Decision = "deal"
	DecisionMaybe  Decision = "maybe"
	DecisionIgnore Decision = "ignore"
)

// Valid reports whether d is one of the closed set of decisions.
func (d Decision) Valid() bool {
	switch d {
	case DecisionDeal, DecisionMaybe, DecisionIgnore:
		return true
	}
	return false
}

// CategoryNode is one level of a target's category path (at most 3 levels deep).
type CategoryNode struct {
	ID   string `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// Target is a saved search definition the pipeline repeatedly scans.
// Targets are never physically deleted, only disabled.
type Target struct {
	ID           int64          `json:"id" db:"id"`
	Name         string         `json:"name" db:"name"`
	Query        string         `json:"query" db:"query"`
	CategoryPath []CategoryNode `json:"category_path,omitempty" db:"-"`
	Condition    string         `json:"condition,omitempty" db:"condition"`
	ListingType  string         `json:"listing_type" db:"listing_type"`
	MaxBuy       *float64       `json:"max_buy,omitempty" db:"max_buy"`
	ShippingMax  *float64       `json:"shipping_max,omitempty" db:"shipping_max"`
	Currency     string         `json:"currency" db:"currency"`
	Enabled      bool           `json:"enabled" db:"enabled"`
	AutoManaged  bool           `json:"auto_managed" db:"auto_managed"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at" db:"updated_at"`
}

// CategoryID returns the leaf category id of the target's path, or "".
func (t *Target) CategoryID() string {
	if len(t.CategoryPath) == 0 {
		return ""
	}
	return t.CategoryPath[len(t.CategoryPath)-1].ID
}

// Listing is a single observed item instance from a scan.
// ExternalID is unique per source marketplace.
type Listing struct {
	ID                  int64     `json:"id" db:"id"`
	TargetID            int64     `json:"target_id" db:"target_id"`
	Source              string    `json:"source" db:"source"`
	ExternalID          string    `json:"external_id" db:"external_id"`
	Title               string    `json:"title" db:"title"`
	PriceRaw            float64   `json:"price_raw" db:"price_raw"`
	Currency            string    `json:"currency" db:"currency"`
	Price               float64   `json:"price" db:"price"` // converted to the reference currency
	Shipping            float64   `json:"shipping" db:"shipping"`
	TotalBuy            float64   `json:"total_buy" db:"total_buy"`
	ListingType         string    `json:"listing_type,omitempty" db:"listing_type"`
	Condition           string    `json:"condition,omitempty" db:"condition"`
	URL                 string    `json:"url" db:"url"`
	ImageURL            string    `json:"image_url,omitempty" db:"image_url"`
	Location            string    `json:"location,omitempty" db:"location"`
	SellerFeedbackPct   *float64  `json:"seller_feedback_pct,omitempty" db:"seller_feedback_pct"`
	SellerFeedbackScore *int64    `json:"seller_feedback_score,omitempty" db:"seller_feedback_score"`
	ReturnsAccepted     *bool     `json:"returns_accepted,omitempty" db:"returns_accepted"`
	FetchedAt           time.Time `json:"fetched_at" db:"fetched_at"`
}

// CompSample is one historical sold item observation. Ephemeral: samples feed
// CompStats and are only persisted for auditability.
type CompSample struct {
	Marketplace string     `json:"marketplace"`
	Price       float64    `json:"price"`
	Currency    string     `json:"currency"`
	SoldAt      *time.Time `json:"sold_at,omitempty"`
	Title       string     `json:"title,omitempty"`
	URL         string     `json:"url,omitempty"`
	Fingerprint string     `json:"fingerprint"`
}

// CompStats summarizes currency-normalized sold prices for one comp query.
// Count == 0 marks the stats invalid; downstream treats that as no confidence.
type CompStats struct {
	Fingerprint string    `json:"fingerprint" db:"fingerprint"`
	Count       int       `json:"count" db:"count"`
	Median      float64   `json:"median" db:"median"`
	P25         float64   `json:"p25" db:"p25"`
	P75         float64   `json:"p75" db:"p75"`
	Currency    string    `json:"currency" db:"currency"`
	ComputedAt  time.Time `json:"computed_at" db:"computed_at"`
}

// Valid reports whether the stats were computed from at least one sample.
func (s CompStats) Valid() bool { return s.Count > 0 }

// Spread is the interquartile range of the comp price pool.
func (s CompStats) Spread() float64 { return s.P75 - s.P25 }

// Evaluation is the immutable scoring result for one listing version.
// A re-scan writes a new row rather than mutating an old one.
type Evaluation struct {
	ID             int64     `json:"id" db:"id"`
	ListingID      int64     `json:"listing_id" db:"listing_id"`
	SweepID        string    `json:"sweep_id" db:"sweep_id"`
	ExpectedResale float64   `json:"expected_resale" db:"expected_resale"`
	EstimatedCosts float64   `json:"estimated_costs" db:"estimated_costs"`
	Profit         float64   `json:"profit" db:"profit"`
	ROI            float64   `json:"roi" db:"roi"`
	Confidence     float64   `json:"confidence" db:"confidence"`
	Score          float64   `json:"score" db:"score"`
	Decision       Decision  `json:"decision" db:"decision"`
	Reasons        []Reason  `json:"reasons" db:"-"`
	Insights       Insights  `json:"insights" db:"-"`
	EvaluatedAt    time.Time `json:"evaluated_at" db:"evaluated_at"`
}

// Insights carries the derived buy guidance figures for deal intelligence.
type Insights struct {
	MaxBuyAtTargetProfit float64 `json:"max_buy_at_target_profit"`
	BreakEvenBuy         float64 `json:"break_even_buy"`
	SuggestedOffer       float64 `json:"suggested_offer"`
	BuyEdge              float64 `json:"buy_edge"`
	RiskBand             string  `json:"risk_band"`
	FlipGrade            string  `json:"flip_grade"`
	Actionable           bool    `json:"actionable"`
}

// Alert records a claimed notification. DedupKey is unique; the persistence
// layer's conditional insert is the sole send-once mechanism.
type Alert struct {
	ID        int64     `json:"id" db:"id"`
	DedupKey  string    `json:"dedup_key" db:"dedup_key"`
	ListingID int64     `json:"listing_id" db:"listing_id"`
	Delivered bool      `json:"delivered" db:"delivered"`
	SentAt    time.Time `json:"sent_at" db:"sent_at"`
}

// TraceStage is one recorded ladder stage attempt.
type TraceStage struct {
	Stage         string         `json:"stage"`
	FilterDropped string         `json:"filter_dropped,omitempty"`
	RawCount      int            `json:"raw_count"`
	FilteredCount int            `json:"filtered_count"`
	StatusCode    int            `json:"status_code"`
	RequestURL    string         `json:"request_url,omitempty"`
	Rejections    map[string]int `json:"rejections,omitempty"`
}

// RetryTrace is the per-target-scan diagnostic record. One trace per scan
// attempt, overwritten each sweep.
type RetryTrace struct {
	TargetID   int64        `json:"target_id" db:"target_id"`
	SweepID    string       `json:"sweep_id" db:"sweep_id"`
	Stages     []TraceStage `json:"stages" db:"-"`
	Status     string       `json:"status" db:"status"` // ok|exhausted|blocked|error
	Error      string       `json:"error,omitempty" db:"error"`
	RecordedAt time.Time    `json:"recorded_at" db:"recorded_at"`
}
