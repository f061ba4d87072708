// Package cache provides the fingerprinted TTL response cache shared by all
// fetches. Two backends implement the same contract: an in-process TTL map and
// an optional Redis store for multi-process deployments.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
	"time"
)

// Store is the cache contract. Reads after expiry behave as a miss. Concurrent
// writers on the same fingerprint resolve last-write-wins; bodies are
// idempotent snapshots of the same query so that is safe.
type Store interface {
	Get(ctx context.Context, fingerprint string) ([]byte, bool)
	Put(ctx context.Context, fingerprint string, body []byte, ttl time.Duration)
}

// Fingerprint derives a deterministic key from a request. Query keys are
// sorted and values canonicalized so equivalent requests collide regardless of
// parameter order.
func Fingerprint(method, rawURL string, params url.Values) string {
	var b strings.Builder
	b.WriteString(strings.ToUpper(method))
	b.WriteByte('|')
	b.WriteString(rawURL)
	b.WriteByte('|')

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		vals := append([]string(nil), params[k]...)
		sort.Strings(vals)
		for _, v := range vals {
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(v)
			b.WriteByte('&')
		}
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
