package models

import "fmt"

// ReasonCode is a machine-checkable tag for why a decision came out the way it
// did. Every threshold check that binds a decision contributes exactly one code.
type ReasonCode string

const (
	ReasonNoCompData        ReasonCode = "no_comp_data"
	ReasonCompSummary       ReasonCode = "comp_summary"
	ReasonTightComps        ReasonCode = "tight_comps"
	ReasonWideCompSpread    ReasonCode = "wide_comp_spread"
	ReasonSellerFeedback    ReasonCode = "seller_feedback"
	ReasonReturnsAccepted   ReasonCode = "returns_accepted"
	ReasonConfidenceScore   ReasonCode = "confidence_score"
	ReasonZeroBuyPrice      ReasonCode = "zero_buy_price"
	ReasonProfitBelowTarget ReasonCode = "profit_below_target"
	ReasonNegativeProfit    ReasonCode = "negative_profit"
	ReasonROIBelowMin       ReasonCode = "roi_below_min"
	ReasonLowConfidence     ReasonCode = "low_confidence"
	ReasonThresholdsMet     ReasonCode = "thresholds_met"
)

// Reason pairs a code with its rendered human-readable text. Text is produced
// once at evaluation time so stored evaluations stay self-describing.
type Reason struct {
	Code ReasonCode `json:"code"`
	Text string     `json:"text"`
}

// RenderReason builds the human text for a code. args are code-specific and
// must be formatted deterministically by the caller.
func RenderReason(code ReasonCode, args ...any) Reason {
	var text string
	switch code {
	case ReasonNoCompData:
		text = "insufficient comp data - cannot estimate resale"
	case ReasonCompSummary:
		text = fmt.Sprintf("median sold %.2f from %d comps (p25 %.2f, p75 %.2f)", args...)
	case ReasonTightComps:
		text = "comp prices are tightly clustered"
	case ReasonWideCompSpread:
		text = "wide comp spread reduced confidence"
	case ReasonSellerFeedback:
		text = fmt.Sprintf("seller feedback %.1f%%", args...)
	case ReasonReturnsAccepted:
		text = "returns accepted by seller"
	case ReasonConfidenceScore:
		text = fmt.Sprintf("confidence score %.2f", args...)
	case ReasonZeroBuyPrice:
		text = "zero or missing buy price"
	case ReasonProfitBelowTarget:
		text = fmt.Sprintf("profit %.2f below target %.2f", args...)
	case ReasonNegativeProfit:
		text = fmt.Sprintf("expected profit %.2f is not positive", args...)
	case ReasonROIBelowMin:
		text = fmt.Sprintf("roi %.2f below minimum %.2f", args...)
	case ReasonLowConfidence:
		text = fmt.Sprintf("confidence %.2f below minimum %.2f", args...)
	case ReasonThresholdsMet:
		text = "profit, roi and confidence thresholds all met"
	default:
		text = string(code)
	}
	return Reason{Code: code, Text: text}
}

// ReasonTexts flattens reasons to their rendered strings, in order.
func ReasonTexts(reasons []Reason) []string {
	out := make([]string, len(reasons))
	for i, r := range reasons {
		out[i] = r.Text
	}
	return out
}
