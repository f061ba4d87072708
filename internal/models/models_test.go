package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecisionValid(t *testing.T) {
	assert.True(t, DecisionDeal.Valid())
	assert.True(t, DecisionMaybe.Valid())
	assert.True(t, DecisionIgnore.Valid())
	assert.False(t, Decision("").Valid())
	assert.False(t, Decision("buy").Valid())
}

func TestTargetCategoryID(t *testing.T) {
	target := Target{}
	assert.Empty(t, target.CategoryID())

	target.CategoryPath = []CategoryNode{
		{ID: "1", Name: "Electronics"},
		{ID: "9355", Name: "Mobile Phones"},
	}
	assert.Equal(t, "9355", target.CategoryID())
}

func TestCompStatsValidAndSpread(t *testing.T) {
	assert.False(t, CompStats{}.Valid())
	stats := CompStats{Count: 3, P25: 90, P75: 110}
	assert.True(t, stats.Valid())
	assert.Equal(t, 20.0, stats.Spread())
}

func TestRenderReasonFormats(t *testing.T) {
	r := RenderReason(ReasonCompSummary, 100.0, 12, 90.0, 110.0)
	assert.Equal(t, ReasonCompSummary, r.Code)
	assert.Equal(t, "median sold 100.00 from 12 comps (p25 90.00, p75 110.00)", r.Text)

	r = RenderReason(ReasonLowConfidence, 0.42, 0.55)
	assert.Equal(t, "confidence 0.42 below minimum 0.55", r.Text)
}

func TestRenderReasonDeterministic(t *testing.T) {
	a := RenderReason(ReasonROIBelowMin, 0.1, 0.25)
	b := RenderReason(ReasonROIBelowMin, 0.1, 0.25)
	assert.Equal(t, a, b)
}

func TestReasonTexts(t *testing.T) {
	reasons := []Reason{
		RenderReason(ReasonThresholdsMet),
		RenderReason(ReasonReturnsAccepted),
	}
	texts := ReasonTexts(reasons)
	assert.Equal(t, []string{
		"profit, roi and confidence thresholds all met",
		"returns accepted by seller",
	}, texts)
}
