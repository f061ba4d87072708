package fx

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConvertSameCurrencyIsIdentity(t *testing.T) {
	c := NewConverter(false, 0.78, time.Hour)
	assert.Equal(t, 42.0, c.Convert(context.Background(), 42, "GBP", "GBP"))
	assert.Equal(t, 42.0, c.Convert(context.Background(), 42, "gbp ", "GBP"))
}

func TestConvertEmptyCurrencyAssumesReference(t *testing.T) {
	c := NewConverter(false, 0.78, time.Hour)
	assert.Equal(t, 10.0, c.Convert(context.Background(), 10, "", "GBP"))
}

func TestConvertStaticFallbackUSD(t *testing.T) {
	c := NewConverter(false, 0.78, time.Hour)
	assert.InDelta(t, 78.0, c.Convert(context.Background(), 100, "USD", "GBP"), 1e-9)
}

func TestConvertStaticEURProxy(t *testing.T) {
	c := NewConverter(false, 0.78, time.Hour)
	// EUR anchor is the USD rate scaled by 1.10, inside the clamp band.
	assert.InDelta(t, 85.8, c.Convert(context.Background(), 100, "EUR", "GBP"), 1e-9)
}

func TestConvertInverseForNonReferenceTarget(t *testing.T) {
	c := NewConverter(false, 0.80, time.Hour)
	// GBP -> USD is the inverse of the anchor.
	assert.InDelta(t, 125.0, c.Convert(context.Background(), 100, "GBP", "USD"), 1e-6)
}

func TestConvertUnknownPairPassesThrough(t *testing.T) {
	c := NewConverter(false, 0.78, time.Hour)
	assert.Equal(t, 100.0, c.Convert(context.Background(), 100, "AUD", "GBP"))
}

func TestRateIsCached(t *testing.T) {
	c := NewConverter(false, 0.78, time.Hour)

	first := c.Convert(context.Background(), 100, "USD", "GBP")

	// A changed anchor must not affect the cached pair until expiry.
	c.fallbackUSD = 0.5
	second := c.Convert(context.Background(), 100, "USD", "GBP")
	assert.Equal(t, first, second)
}
