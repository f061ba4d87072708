// Package scoring turns a listing plus comp statistics into a deal decision.
// Evaluate is a pure function with no I/O, clocks or randomness; identical
// inputs always yield identical output, which the alert dedup key relies on.
package scoring

import (
	"github.com/keyflip/keyflip/internal/config"
	"github.com/keyflip/keyflip/internal/models"
)

// Evaluate scores one listing against its comp statistics under the given
// cost assumptions. EvaluatedAt is left zero for the caller to stamp.
func Evaluate(listing models.Listing, stats models.CompStats, a config.ScoringConfig) models.Evaluation {
	eval := models.Evaluation{
		ListingID: listing.ID,
		Decision:  models.DecisionIgnore,
	}

	if !stats.Valid() {
		eval.Reasons = append(eval.Reasons, models.RenderReason(models.ReasonNoCompData))
		return eval
	}

	if listing.TotalBuy <= 0 {
		eval.Reasons = append(eval.Reasons, models.RenderReason(models.ReasonZeroBuyPrice))
		return eval
	}

	buy := listing.TotalBuy
	resale := stats.Median*(1-a.ConservatismBlend) + stats.P25*a.ConservatismBlend
	costs := estimatedCosts(resale, buy, a)
	profit := resale - buy - costs
	roi := profit / buy

	eval.Reasons = append(eval.Reasons, models.RenderReason(models.ReasonCompSummary,
		stats.Median, stats.Count, stats.P25, stats.P75))

	confidence, confReasons := confidenceScore(listing, stats)
	eval.Reasons = append(eval.Reasons, confReasons...)

	eval.ExpectedResale = resale
	eval.EstimatedCosts = costs
	eval.Profit = profit
	eval.ROI = roi
	eval.Confidence = confidence
	eval.Score = dealScore(profit, roi, confidence)
	eval.Decision = decide(profit, roi, confidence, a)
	eval.Reasons = append(eval.Reasons, decisionReasons(eval.Decision, profit, roi, confidence, a)...)
	eval.Insights = insights(resale, buy, profit, roi, confidence, eval.Score, a)
	return eval
}

// confidenceScore maps sample size and comp spread to [0,1]. Monotonic
// non-decreasing in sample count and non-increasing in the IQR/median spread
// ratio; seller signals add small fixed bonuses.
func confidenceScore(listing models.Listing, stats models.CompStats) (float64, []models.Reason) {
	var reasons []models.Reason
	score := 0.4

	switch {
	case stats.Count >= 10:
		score += 0.25
	case stats.Count >= 5:
		score += 0.15
	default:
		score += 0.05
	}

	if stats.Median > 0 {
		denom := stats.Median
		if denom < 1 {
			denom = 1
		}
		spreadRatio := stats.Spread() / denom
		switch {
		case spreadRatio <= 0.2:
			score += 0.2
			reasons = append(reasons, models.RenderReason(models.ReasonTightComps))
		case spreadRatio <= 0.35:
			score += 0.1
			reasons = append(reasons, models.RenderReason(models.ReasonTightComps))
		default:
			score -= 0.1
			reasons = append(reasons, models.RenderReason(models.ReasonWideCompSpread))
		}
	}

	if listing.SellerFeedbackPct != nil {
		if *listing.SellerFeedbackPct >= 98 {
			score += 0.1
		}
		reasons = append(reasons, models.RenderReason(models.ReasonSellerFeedback, *listing.SellerFeedbackPct))
	}
	if listing.ReturnsAccepted != nil && *listing.ReturnsAccepted {
		score += 0.05
		reasons = append(reasons, models.RenderReason(models.ReasonReturnsAccepted))
	}

	score = clamp(score, 0, 1)
	reasons = append(reasons, models.RenderReason(models.ReasonConfidenceScore, score))
	return score, reasons
}

// dealScore is the single ranking number: monotonic in profit, roi and
// confidence holding the others fixed.
func dealScore(profit, roi, confidence float64) float64 {
	cappedROI := clamp(roi, 0, 1)
	positiveProfit := profit
	if positiveProfit < 0 {
		positiveProfit = 0
	}
	return positiveProfit*0.6 + cappedROI*40 + confidence*20
}

func decide(profit, roi, confidence float64, a config.ScoringConfig) models.Decision {
	if profit >= a.TargetProfit && roi >= a.MinROI && confidence >= a.MinConfidence {
		return models.DecisionDeal
	}
	if profit <= 0 || confidence < a.ConfidenceFloor {
		return models.DecisionIgnore
	}
	return models.DecisionMaybe
}

// decisionReasons records exactly one reason per binding threshold check.
func decisionReasons(decision models.Decision, profit, roi, confidence float64, a config.ScoringConfig) []models.Reason {
	var reasons []models.Reason
	switch decision {
	case models.DecisionDeal:
		reasons = append(reasons, models.RenderReason(models.ReasonThresholdsMet))
	case models.DecisionIgnore:
		if profit <= 0 {
			reasons = append(reasons, models.RenderReason(models.ReasonNegativeProfit, profit))
		}
		if confidence < a.ConfidenceFloor {
			reasons = append(reasons, models.RenderReason(models.ReasonLowConfidence, confidence, a.ConfidenceFloor))
		}
	case models.DecisionMaybe:
		if profit < a.TargetProfit {
			reasons = append(reasons, models.RenderReason(models.ReasonProfitBelowTarget, profit, a.TargetProfit))
		}
		if roi < a.MinROI {
			reasons = append(reasons, models.RenderReason(models.ReasonROIBelowMin, roi, a.MinROI))
		}
		if confidence < a.MinConfidence {
			reasons = append(reasons, models.RenderReason(models.ReasonLowConfidence, confidence, a.MinConfidence))
		}
	}
	return reasons
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
