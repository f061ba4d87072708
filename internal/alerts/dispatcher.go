package alerts

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/keyflip/keyflip/internal/models"
	"github.com/keyflip/keyflip/internal/store"
)

// Dispatcher gates alert delivery behind the persistent claim. The claim is
// the only dedup mechanism: whoever wins the conditional insert sends, and a
// failed delivery does not release the claim.
type Dispatcher struct {
	repo   store.AlertRepo
	sender Sender
	now    func() time.Time
}

func NewDispatcher(repo store.AlertRepo, sender Sender) *Dispatcher {
	return &Dispatcher{repo: repo, sender: sender, now: time.Now}
}

// Dispatch alerts on deal decisions only. Returns true when this call won the
// claim and attempted delivery.
func (d *Dispatcher) Dispatch(ctx context.Context, listing models.Listing, eval models.Evaluation) (bool, error) {
	if eval.Decision != models.DecisionDeal {
		return false, nil
	}

	alert := &models.Alert{
		DedupKey:  DedupKey(listing, eval),
		ListingID: listing.ID,
		SentAt:    d.now().UTC(),
	}
	won, err := d.repo.Claim(ctx, alert)
	if err != nil {
		return false, err
	}
	if !won {
		log.Debug().
			Str("dedup_key", alert.DedupKey).
			Int64("listing_id", listing.ID).
			Msg("alert already claimed, skipping")
		return false, nil
	}

	if d.sender == nil {
		return true, nil
	}
	if err := d.sender.Send(ctx, listing, eval); err != nil {
		// The claim stands even when delivery fails; never retried.
		log.Warn().Err(err).
			Str("dedup_key", alert.DedupKey).
			Int64("listing_id", listing.ID).
			Msg("alert delivery failed")
		return true, nil
	}

	if err := d.repo.MarkDelivered(ctx, alert.ID); err != nil {
		log.Warn().Err(err).Int64("alert_id", alert.ID).Msg("failed to mark alert delivered")
	}
	return true, nil
}
