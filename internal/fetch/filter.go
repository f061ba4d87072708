package fetch

import (
	"net/url"
	"strings"
	"time"

	"github.com/keyflip/keyflip/internal/models"
)

// Condition codes as the upstream source reports them.
var conditionCodeMap = map[string]string{
	"1000": "new",
	"1500": "open box",
	"2000": "manufacturer refurbished",
	"2500": "seller refurbished",
	"3000": "used",
	"7000": "for parts or not working",
}

// Rejection reason keys, reported per stage on the retry trace.
const (
	RejectOverMaxBuy   = "over_max_buy"
	RejectInvalidPrice = "missing_invalid_price"
	RejectCondition    = "wrong_condition"
	RejectBlockedWords = "blocked_keywords"
	RejectSellerRisk   = "seller_risk_thresholds"
)

// FilterSettings tunes the post-fetch listing filter.
type FilterSettings struct {
	BlockedKeywords        []string
	MinSellerFeedbackPct   float64 // 0 disables
	MinSellerFeedbackScore int64   // 0 disables
}

// FilterOutcome is the kept set plus per-reason rejection counts.
type FilterOutcome struct {
	Listings   []models.Listing
	Rejections map[string]int
}

// FilterListings applies the target's price/condition caps and the configured
// quality thresholds. A listing failing several checks counts once per reason.
func FilterListings(listings []models.Listing, crit Criteria, settings FilterSettings) FilterOutcome {
	blocked := make([]string, 0, len(settings.BlockedKeywords))
	for _, kw := range settings.BlockedKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			blocked = append(blocked, kw)
		}
	}

	kept := make([]models.Listing, 0, len(listings))
	rejections := make(map[string]int)

	for _, listing := range listings {
		var reasons []string
		if listing.PriceRaw <= 0 || listing.TotalBuy <= 0 {
			reasons = append(reasons, RejectInvalidPrice)
		}
		if crit.MaxBuy != nil && listing.TotalBuy > *crit.MaxBuy {
			reasons = append(reasons, RejectOverMaxBuy)
		}
		if crit.ShippingMax != nil && listing.Shipping > *crit.ShippingMax {
			reasons = append(reasons, RejectOverMaxBuy)
		}
		if crit.Condition != "" && !conditionMatches(listing.Condition, crit.Condition) {
			reasons = append(reasons, RejectCondition)
		}
		if len(blocked) > 0 && listing.Title != "" {
			title := strings.ToLower(listing.Title)
			for _, kw := range blocked {
				if strings.Contains(title, kw) {
					reasons = append(reasons, RejectBlockedWords)
					break
				}
			}
		}
		if sellerFailsThresholds(listing, settings) {
			reasons = append(reasons, RejectSellerRisk)
		}

		if len(reasons) > 0 {
			for _, reason := range reasons {
				rejections[reason]++
			}
			continue
		}
		kept = append(kept, listing)
	}

	return FilterOutcome{Listings: kept, Rejections: rejections}
}

func conditionMatches(listingCondition, targetCondition string) bool {
	if listingCondition == "" {
		return false
	}
	expected := targetCondition
	if mapped, ok := conditionCodeMap[targetCondition]; ok {
		expected = mapped
	}
	return strings.Contains(strings.ToLower(listingCondition), strings.ToLower(expected))
}

func sellerFailsThresholds(listing models.Listing, settings FilterSettings) bool {
	if settings.MinSellerFeedbackPct > 0 && listing.SellerFeedbackPct != nil {
		if *listing.SellerFeedbackPct < settings.MinSellerFeedbackPct {
			return true
		}
	}
	if settings.MinSellerFeedbackScore > 0 && listing.SellerFeedbackScore != nil {
		if *listing.SellerFeedbackScore < settings.MinSellerFeedbackScore {
			return true
		}
	}
	return false
}

// SafeExternalURL keeps only plain http(s) URLs with a host and no userinfo;
// anything else renders as "".
func SafeExternalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ""
	}
	if parsed.Host == "" || parsed.User != nil {
		return ""
	}
	return raw
}

func parseSoldDate(raw string) (time.Time, error) {
	return time.Parse("2 Jan 2006", raw)
}
