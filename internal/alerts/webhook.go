package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/keyflip/keyflip/internal/models"
)

// Sender delivers one rendered alert to an external channel.
type Sender interface {
	Send(ctx context.Context, listing models.Listing, eval models.Evaluation) error
}

// WebhookSender posts Discord-compatible JSON messages.
type WebhookSender struct {
	url    string
	client *http.Client
}

func NewWebhookSender(url string, timeout time.Duration) *WebhookSender {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &WebhookSender{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type webhookPayload struct {
	Content string `json:"content"`
}

func (s *WebhookSender) Send(ctx context.Context, listing models.Listing, eval models.Evaluation) error {
	body, err := json.Marshal(webhookPayload{Content: renderMessage(listing, eval)})
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func renderMessage(listing models.Listing, eval models.Evaluation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Deal found: %s**\n", listing.Title)
	fmt.Fprintf(&b, "Buy %.2f %s, expected resale %.2f, profit %.2f (ROI %.0f%%)\n",
		listing.TotalBuy, listing.Currency, eval.ExpectedResale, eval.Profit, eval.ROI*100)
	fmt.Fprintf(&b, "Confidence %.2f, score %.1f, grade %s, risk %s\n",
		eval.Confidence, eval.Score, eval.Insights.FlipGrade, eval.Insights.RiskBand)
	fmt.Fprintf(&b, "Max buy %.2f, suggested offer %.2f\n",
		eval.Insights.MaxBuyAtTargetProfit, eval.Insights.SuggestedOffer)
	if listing.URL != "" {
		fmt.Fprintf(&b, "%s", listing.URL)
	}
	return b.String()
}
