// Package alerts delivers deal notifications exactly once per distinct
// evaluation outcome. The dedup key is derived from the evaluation content,
// so a re-scan producing the identical verdict never re-alerts, while a
// price or confidence change does.
package alerts

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/keyflip/keyflip/internal/models"
)

// DedupKey fingerprints an evaluation outcome for a listing. Floats are
// rounded before hashing so representation noise below the stated precision
// cannot mint a fresh key.
func DedupKey(listing models.Listing, eval models.Evaluation) string {
	payload := fmt.Sprintf("%s|%s|%s|%.2f|%.4f|%.2f",
		listing.Source,
		listing.ExternalID,
		eval.Decision,
		eval.Profit,
		eval.Confidence,
		eval.ExpectedResale,
	)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
