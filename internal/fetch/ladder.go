package fetch

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/keyflip/keyflip/internal/models"
	"github.com/keyflip/keyflip/internal/net/budget"
)

// Stage names the ladder's states, in relaxation order.
type Stage string

const (
	StageFullFilters     Stage = "full-filters"
	StageDropCategory    Stage = "drop-category"
	StageDropCondition   Stage = "drop-condition"
	StageDropPrice       Stage = "drop-price"
	StageBroadenKeywords Stage = "broaden-keywords"
	StageExhausted       Stage = "exhausted"
)

// transition relaxes the criteria for its stage. applicable is false when the
// relaxation would not change the request (nothing to drop), in which case the
// stage is skipped without a fetch.
type transition struct {
	stage         Stage
	filterDropped string
	apply         func(Criteria) (Criteria, bool)
}

// transitions is the explicit ladder table. Each stage relaxes the previous
// stage's criteria further; the ladder halts at the first non-zero result.
var transitions = []transition{
	{
		stage: StageFullFilters,
		apply: func(c Criteria) (Criteria, bool) { return c, true },
	},
	{
		stage:         StageDropCategory,
		filterDropped: "category",
		apply: func(c Criteria) (Criteria, bool) {
			if c.CategoryID == "" {
				return c, false
			}
			c.CategoryID = ""
			return c, true
		},
	},
	{
		stage:         StageDropCondition,
		filterDropped: "condition",
		apply: func(c Criteria) (Criteria, bool) {
			if c.Condition == "" {
				return c, false
			}
			c.Condition = ""
			return c, true
		},
	},
	{
		stage:         StageDropPrice,
		filterDropped: "price caps",
		apply: func(c Criteria) (Criteria, bool) {
			if c.MaxBuy == nil && c.ShippingMax == nil {
				return c, false
			}
			c.MaxBuy = nil
			c.ShippingMax = nil
			return c, true
		},
	},
	{
		stage:         StageBroadenKeywords,
		filterDropped: "narrow keywords",
		apply: func(c Criteria) (Criteria, bool) {
			broadened := BroadenQuery(c.Query)
			if broadened == "" || broadened == c.Query {
				return c, false
			}
			c.Query = broadened
			return c, true
		},
	},
}

// LadderOutcome is the result of a full ladder run for one target.
type LadderOutcome struct {
	Listings []models.Listing
	Trace    models.RetryTrace
	Halted   Stage // stage that produced listings, or StageExhausted
}

// Ladder orchestrates repeated searches with progressively relaxed filters
// when a query yields zero results. It is fail-open for narrow filters only:
// a transient error, challenge or spent budget aborts immediately.
type Ladder struct {
	searcher Searcher
	now      func() time.Time
}

// NewLadder builds a ladder over the given searcher.
func NewLadder(searcher Searcher) *Ladder {
	return &Ladder{searcher: searcher, now: time.Now}
}

// Run walks the ladder for one target. The returned trace is populated even on
// failure paths; err is non-nil only when a stage failed outright.
func (l *Ladder) Run(ctx context.Context, target *models.Target) (*LadderOutcome, error) {
	criteria := Criteria{
		Query:       target.Query,
		CategoryID:  target.CategoryID(),
		Condition:   target.Condition,
		ListingType: target.ListingType,
		MaxBuy:      target.MaxBuy,
		ShippingMax: target.ShippingMax,
	}

	outcome := &LadderOutcome{
		Trace: models.RetryTrace{
			TargetID:   target.ID,
			RecordedAt: l.now().UTC(),
			Status:     "ok",
		},
		Halted: StageExhausted,
	}

	for _, tr := range transitions {
		next, applicable := tr.apply(criteria)
		if !applicable {
			continue
		}
		criteria = next

		res, err := l.searcher.Search(ctx, criteria)
		if err != nil {
			stage := models.TraceStage{Stage: string(tr.stage), FilterDropped: tr.filterDropped}
			var terr *TransientError
			if errors.As(err, &terr) {
				stage.StatusCode = terr.StatusCode
			}
			var cerr *ChallengeError
			switch {
			case errors.As(err, &cerr):
				stage.RequestURL = cerr.RequestURL
				outcome.Trace.Status = "blocked"
			case errors.Is(err, budget.ErrExhausted):
				outcome.Trace.Status = "exhausted"
			default:
				outcome.Trace.Status = "error"
			}
			outcome.Trace.Error = err.Error()
			outcome.Trace.Stages = append(outcome.Trace.Stages, stage)
			return outcome, err
		}

		outcome.Trace.Stages = append(outcome.Trace.Stages, models.TraceStage{
			Stage:         string(tr.stage),
			FilterDropped: tr.filterDropped,
			RawCount:      res.RawCount,
			FilteredCount: res.FilteredCount,
			StatusCode:    res.StatusCode,
			RequestURL:    res.RequestURL,
			Rejections:    res.Rejections,
		})

		if len(res.Listings) > 0 {
			outcome.Listings = res.Listings
			outcome.Halted = tr.stage
			return outcome, nil
		}

		log.Debug().Str("stage", string(tr.stage)).Str("query", criteria.Query).
			Int64("target_id", target.ID).Msg("zero results, relaxing filters")
	}

	outcome.Trace.Status = "exhausted"
	return outcome, nil
}

var (
	doubleQuotedRe = regexp.MustCompile(`"([^"]*)"`)
	singleQuotedRe = regexp.MustCompile(`'([^']*)'`)
	capacityUnitRe = regexp.MustCompile(`(?i)\b\d+\s?(gb|tb)\b`)
	capacityWordRe = regexp.MustCompile(`(?i)\b\d+\s?(gig|gigabyte|terabyte)s?\b`)
	colorWordRe    = regexp.MustCompile(`(?i)\b(black|white|silver|gray|grey|blue|red|green|graphite|gold|pink|purple|midnight|starlight)\b`)
	multiSpaceRe   = regexp.MustCompile(`\s+`)
)

// BroadenQuery strips quoted phrases, capacity/size tokens and color tokens
// from a keyword string for the final ladder stage.
func BroadenQuery(query string) string {
	if query == "" {
		return query
	}
	cleaned := doubleQuotedRe.ReplaceAllString(query, "$1")
	cleaned = singleQuotedRe.ReplaceAllString(cleaned, "$1")
	cleaned = splitDigitBoundaries(cleaned)
	cleaned = capacityUnitRe.ReplaceAllString(cleaned, "")
	cleaned = capacityWordRe.ReplaceAllString(cleaned, "")
	cleaned = colorWordRe.ReplaceAllString(cleaned, "")
	return strings.TrimSpace(multiSpaceRe.ReplaceAllString(cleaned, " "))
}

// splitDigitBoundaries inserts a space at every letter/digit boundary so
// tokens like "128gb" become separable.
func splitDigitBoundaries(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 8)
	runes := []rune(s)
	for i, r := range runes {
		if i > 0 {
			prev := runes[i-1]
			if (isDigit(prev) && !isDigit(r) && r != ' ') || (!isDigit(prev) && prev != ' ' && isDigit(r)) {
				b.WriteByte(' ')
			}
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }
