package scoring

import "github.com/keyflip/keyflip/internal/config"

// otherFees sums the non-marketplace-fee overheads for a given resale
// estimate: payment processing, return and VAT reserves, and the fixed
// packaging/labour/extra costs. Shared by scoring and the max-buy guidance so
// the two always agree.
func otherFees(resale float64, a config.ScoringConfig) float64 {
	if resale < 0 {
		resale = 0
	}
	paymentFee := resale*a.PaymentFeePct + a.PaymentFeeFixed
	returnReserve := resale * a.ReturnReservePct
	vatReserve := resale * a.VATReservePct
	fixed := a.Packaging + a.Labour + a.ExtraFixedCosts
	total := paymentFee + returnReserve + vatReserve + fixed
	if total < 0 {
		return 0
	}
	return total
}

// estimatedCosts is the full overhead applied against expected resale:
// marketplace fee, other fees, outbound shipping and the safety buffer
// (fixed plus a percentage of the buy price).
func estimatedCosts(resale, buy float64, a config.ScoringConfig) float64 {
	return resale*a.MarketplaceFeePct + otherFees(resale, a) +
		a.ShippingOut + a.BufferFixed + a.BufferPctOfBuy*buy
}
