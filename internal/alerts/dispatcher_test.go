package alerts

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyflip/keyflip/internal/models"
)

type memoryAlertRepo struct {
	mu        sync.Mutex
	claims    map[string]*models.Alert
	delivered map[int64]bool
	nextID    int64
	claimErr  error
}

func newMemoryAlertRepo() *memoryAlertRepo {
	return &memoryAlertRepo{
		claims:    make(map[string]*models.Alert),
		delivered: make(map[int64]bool),
	}
}

func (r *memoryAlertRepo) Claim(_ context.Context, alert *models.Alert) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.claimErr != nil {
		return false, r.claimErr
	}
	if _, exists := r.claims[alert.DedupKey]; exists {
		return false, nil
	}
	r.nextID++
	alert.ID = r.nextID
	r.claims[alert.DedupKey] = alert
	return true, nil
}

func (r *memoryAlertRepo) MarkDelivered(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delivered[id] = true
	return nil
}

type countingSender struct {
	mu    sync.Mutex
	sends int
	err   error
}

func (s *countingSender) Send(context.Context, models.Listing, models.Evaluation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sends++
	return s.err
}

func dealEvaluation() (models.Listing, models.Evaluation) {
	listing := models.Listing{ID: 9, Source: "ebay", ExternalID: "123456789012", TotalBuy: 50}
	eval := models.Evaluation{
		ListingID:      9,
		Decision:       models.DecisionDeal,
		Profit:         33,
		Confidence:     0.85,
		ExpectedResale: 100,
	}
	return listing, eval
}

func TestDispatchSendsOncePerOutcome(t *testing.T) {
	repo := newMemoryAlertRepo()
	sender := &countingSender{}
	dispatcher := NewDispatcher(repo, sender)
	listing, eval := dealEvaluation()

	sent, err := dispatcher.Dispatch(context.Background(), listing, eval)
	require.NoError(t, err)
	assert.True(t, sent)

	sent, err = dispatcher.Dispatch(context.Background(), listing, eval)
	require.NoError(t, err)
	assert.False(t, sent)

	assert.Equal(t, 1, sender.sends)
	assert.True(t, repo.delivered[1])
}

func TestDispatchConcurrentClaimsSendOnce(t *testing.T) {
	repo := newMemoryAlertRepo()
	sender := &countingSender{}
	dispatcher := NewDispatcher(repo, sender)
	listing, eval := dealEvaluation()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dispatcher.Dispatch(context.Background(), listing, eval)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, sender.sends)
}

func TestDispatchSkipsNonDeals(t *testing.T) {
	repo := newMemoryAlertRepo()
	sender := &countingSender{}
	dispatcher := NewDispatcher(repo, sender)
	listing, eval := dealEvaluation()
	eval.Decision = models.DecisionMaybe

	sent, err := dispatcher.Dispatch(context.Background(), listing, eval)
	require.NoError(t, err)
	assert.False(t, sent)
	assert.Zero(t, sender.sends)
	assert.Empty(t, repo.claims)
}

func TestDispatchDeliveryFailureKeepsClaim(t *testing.T) {
	repo := newMemoryAlertRepo()
	sender := &countingSender{err: errors.New("webhook down")}
	dispatcher := NewDispatcher(repo, sender)
	listing, eval := dealEvaluation()

	sent, err := dispatcher.Dispatch(context.Background(), listing, eval)
	require.NoError(t, err)
	assert.True(t, sent)
	assert.False(t, repo.delivered[1], "failed delivery stays unmarked")

	// The failed send does not free the key for a retry.
	sent, err = dispatcher.Dispatch(context.Background(), listing, eval)
	require.NoError(t, err)
	assert.False(t, sent)
	assert.Equal(t, 1, sender.sends)
}

func TestDispatchClaimErrorPropagates(t *testing.T) {
	repo := newMemoryAlertRepo()
	repo.claimErr = errors.New("db down")
	dispatcher := NewDispatcher(repo, &countingSender{})
	listing, eval := dealEvaluation()

	_, err := dispatcher.Dispatch(context.Background(), listing, eval)
	assert.Error(t, err)
}

func TestDispatchNilSenderStillClaims(t *testing.T) {
	repo := newMemoryAlertRepo()
	dispatcher := NewDispatcher(repo, nil)
	listing, eval := dealEvaluation()

	sent, err := dispatcher.Dispatch(context.Background(), listing, eval)
	require.NoError(t, err)
	assert.True(t, sent)
	assert.Len(t, repo.claims, 1)
}

func TestDedupKeyStability(t *testing.T) {
	listing, eval := dealEvaluation()

	assert.Equal(t, DedupKey(listing, eval), DedupKey(listing, eval))
	assert.Len(t, DedupKey(listing, eval), 64)
}

func TestDedupKeyChangesWithOutcome(t *testing.T) {
	listing, eval := dealEvaluation()
	base := DedupKey(listing, eval)

	changed := eval
	changed.Profit = 25
	assert.NotEqual(t, base, DedupKey(listing, changed))

	otherListing := listing
	otherListing.ExternalID = "999999999999"
	assert.NotEqual(t, base, DedupKey(otherListing, eval))
}

func TestDedupKeyIgnoresSubPrecisionNoise(t *testing.T) {
	listing, eval := dealEvaluation()
	base := DedupKey(listing, eval)

	noisy := eval
	noisy.Profit += 0.0001
	noisy.Confidence += 0.000001
	assert.Equal(t, base, DedupKey(listing, noisy))
}
