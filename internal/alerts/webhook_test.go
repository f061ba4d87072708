package alerts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookSenderPostsMessage(t *testing.T) {
	var got webhookPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	listing, eval := dealEvaluation()
	listing.Title = "Apple iPhone 13"
	listing.URL = "https://www.ebay.co.uk/itm/123456789012"

	sender := NewWebhookSender(server.URL, 5*time.Second)
	require.NoError(t, sender.Send(context.Background(), listing, eval))

	assert.Contains(t, got.Content, "Apple iPhone 13")
	assert.Contains(t, got.Content, "33.00")
	assert.Contains(t, got.Content, listing.URL)
}

func TestWebhookSenderRejectsBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	listing, eval := dealEvaluation()
	sender := NewWebhookSender(server.URL, 5*time.Second)

	err := sender.Send(context.Background(), listing, eval)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
