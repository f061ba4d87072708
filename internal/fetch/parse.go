package fetch

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/keyflip/keyflip/internal/models"
)

type apiAmount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type apiItemSummary struct {
	ItemID        string `json:"itemId"`
	Title         string `json:"title"`
	Price         apiAmount
	Condition     string   `json:"condition"`
	BuyingOptions []string `json:"buyingOptions"`
	ItemWebURL    string   `json:"itemWebUrl"`
	Image         struct {
		ImageURL string `json:"imageUrl"`
	} `json:"image"`
	ItemLocation struct {
		Country string `json:"country"`
	} `json:"itemLocation"`
	Seller struct {
		FeedbackPercentage string `json:"feedbackPercentage"`
		FeedbackScore      int64  `json:"feedbackScore"`
	} `json:"seller"`
	ShippingOptions []struct {
		ShippingCost apiAmount `json:"shippingCost"`
	} `json:"shippingOptions"`
}

type apiSearchResponse struct {
	Total         int              `json:"total"`
	ItemSummaries []apiItemSummary `json:"itemSummaries"`
}

// parseAPIListings decodes a structured-mode search response.
func parseAPIListings(body []byte, source string) ([]models.Listing, error) {
	var resp apiSearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	listings := make([]models.Listing, 0, len(resp.ItemSummaries))
	for _, item := range resp.ItemSummaries {
		price, _ := strconv.ParseFloat(item.Price.Value, 64)
		var shipping float64
		if len(item.ShippingOptions) > 0 {
			shipping, _ = strconv.ParseFloat(item.ShippingOptions[0].ShippingCost.Value, 64)
		}
		listing := models.Listing{
			Source:      source,
			ExternalID:  item.ItemID,
			Title:       item.Title,
			PriceRaw:    price,
			Currency:    item.Price.Currency,
			Price:       price,
			Shipping:    shipping,
			TotalBuy:    price + shipping,
			Condition:   item.Condition,
			ListingType: buyingOption(item.BuyingOptions),
			URL:         SafeExternalURL(item.ItemWebURL),
			ImageURL:    SafeExternalURL(item.Image.ImageURL),
			Location:    item.ItemLocation.Country,
		}
		if item.Seller.FeedbackPercentage != "" {
			if pct, err := strconv.ParseFloat(item.Seller.FeedbackPercentage, 64); err == nil {
				listing.SellerFeedbackPct = &pct
			}
		}
		if item.Seller.FeedbackScore > 0 {
			score := item.Seller.FeedbackScore
			listing.SellerFeedbackScore = &score
		}
		listings = append(listings, listing)
	}
	return listings, nil
}

func buyingOption(options []string) string {
	for _, opt := range options {
		switch opt {
		case "AUCTION":
			return "auction"
		case "FIXED_PRICE":
			return "fixed"
		}
	}
	return ""
}

// Fallback-mode extraction. No HTML parser dependency exists in this stack;
// the result-page structure is stable enough for anchored expressions, and a
// page that matches nothing is handled upstream as zero results.
var (
	itemBlockRe = regexp.MustCompile(`(?s)<(?:li|div)[^>]*class="[^"]*s-item[\s"][^>]*>.*?</(?:li|div)>`)
	itemLinkRe  = regexp.MustCompile(`href="(https?://[^"]*/itm/[^"]+)"`)
	itemIDRe    = regexp.MustCompile(`/itm/(?:[^/?"]*/)?(\d{9,})`)
	titleRe     = regexp.MustCompile(`(?s)s-item__title[^>]*>(?:\s*<[^>]+>)*([^<]+)`)
	priceRe     = regexp.MustCompile(`s-item__price[^>]*>(?:\s*<[^>]+>)*\s*([£$€])\s?([\d,]+\.?\d*)`)
	shippingRe  = regexp.MustCompile(`s-item__(?:shipping|logisticsCost)[^>]*>(?:\s*<[^>]+>)*[^<£$€]*([£$€])\s?([\d,]+\.?\d*)`)
	soldDateRe  = regexp.MustCompile(`(?i)sold\s+(\d{1,2}\s+\w{3}\s+\d{4})`)
)

var currencyBySymbol = map[string]string{
	"£": "GBP",
	"$": "USD",
	"€": "EUR",
}

func parseMoney(symbol, digits string) (float64, string) {
	value, _ := strconv.ParseFloat(strings.ReplaceAll(digits, ",", ""), 64)
	return value, currencyBySymbol[symbol]
}

// parsePageListings extracts listing fields from a rendered results page.
func parsePageListings(body []byte, source string) []models.Listing {
	blocks := itemBlockRe.FindAllString(string(body), -1)
	listings := make([]models.Listing, 0, len(blocks))

	for _, block := range blocks {
		link := itemLinkRe.FindStringSubmatch(block)
		id := itemIDRe.FindStringSubmatch(block)
		title := titleRe.FindStringSubmatch(block)
		price := priceRe.FindStringSubmatch(block)
		if link == nil || id == nil || price == nil {
			continue
		}

		value, currency := parseMoney(price[1], price[2])
		var shipping float64
		if m := shippingRe.FindStringSubmatch(block); m != nil {
			shipping, _ = parseMoney(m[1], m[2])
		}

		listing := models.Listing{
			Source:     source,
			ExternalID: id[1],
			PriceRaw:   value,
			Currency:   currency,
			Price:      value,
			Shipping:   shipping,
			TotalBuy:   value + shipping,
			URL:        SafeExternalURL(link[1]),
		}
		if title != nil {
			listing.Title = strings.TrimSpace(title[1])
		}
		listings = append(listings, listing)
	}
	return listings
}

// parseSoldSamples extracts sold-comp observations from a completed-items page.
func parseSoldSamples(body []byte, marketplace string, limit int) []models.CompSample {
	blocks := itemBlockRe.FindAllString(string(body), -1)
	samples := make([]models.CompSample, 0, len(blocks))

	for _, block := range blocks {
		if len(samples) >= limit {
			break
		}
		price := priceRe.FindStringSubmatch(block)
		if price == nil {
			continue
		}
		value, currency := parseMoney(price[1], price[2])
		if value <= 0 {
			continue
		}

		sample := models.CompSample{
			Marketplace: marketplace,
			Price:       value,
			Currency:    currency,
		}
		if title := titleRe.FindStringSubmatch(block); title != nil {
			sample.Title = strings.TrimSpace(title[1])
		}
		if link := itemLinkRe.FindStringSubmatch(block); link != nil {
			sample.URL = SafeExternalURL(link[1])
		}
		if m := soldDateRe.FindStringSubmatch(block); m != nil {
			if ts, err := parseSoldDate(m[1]); err == nil {
				sample.SoldAt = &ts
			}
		}
		samples = append(samples, sample)
	}
	return samples
}
