package scoring

import (
	"github.com/keyflip/keyflip/internal/config"
	"github.com/keyflip/keyflip/internal/models"
)

// maxBuyForProfit inverts the cost model: the highest total buy price that
// still clears the given profit after all overheads. The buffer percentage
// scales with the buy price, hence the denominator.
func maxBuyForProfit(resale, targetProfit float64, a config.ScoringConfig) float64 {
	numerator := resale*(1-a.MarketplaceFeePct) - otherFees(resale, a) -
		a.ShippingOut - a.BufferFixed - targetProfit
	denominator := 1 + a.BufferPctOfBuy
	if denominator <= 0 {
		return 0
	}
	max := numerator / denominator
	if max < 0 {
		return 0
	}
	return max
}

// suggestedOffer discounts the max buy by the negotiation policy, clamped so
// the discount stays within [0, 0.5].
func suggestedOffer(maxBuy float64, discount float64) float64 {
	if discount < 0 {
		discount = 0
	}
	if discount > 0.5 {
		discount = 0.5
	}
	offer := maxBuy * (1 - discount)
	if offer < 0 {
		return 0
	}
	return offer
}

func riskBand(confidence, roi float64) string {
	if confidence >= 0.7 && roi >= 0.25 {
		return "low"
	}
	if confidence >= 0.5 && roi >= 0.15 {
		return "medium"
	}
	return "high"
}

func flipGrade(score, confidence, roi float64) string {
	switch {
	case score >= 60 && confidence >= 0.65 && roi >= 0.25:
		return "A"
	case score >= 40 && confidence >= 0.50 && roi >= 0.15:
		return "B"
	case score >= 20 && confidence >= 0.35 && roi >= 0.10:
		return "C"
	}
	return "D"
}

func insights(resale, buy, profit, roi, confidence, score float64, a config.ScoringConfig) models.Insights {
	maxBuy := maxBuyForProfit(resale, a.TargetProfit, a)
	breakEven := maxBuyForProfit(resale, 0, a)
	edge := maxBuy - buy

	return models.Insights{
		MaxBuyAtTargetProfit: maxBuy,
		BreakEvenBuy:         breakEven,
		SuggestedOffer:       suggestedOffer(maxBuy, a.NegotiationDiscount),
		BuyEdge:              edge,
		RiskBand:             riskBand(confidence, roi),
		FlipGrade:            flipGrade(score, confidence, roi),
		Actionable:           edge > 0 && profit > 0 && confidence >= a.MinConfidence,
	}
}
