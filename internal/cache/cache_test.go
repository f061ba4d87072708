package cache

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFingerprintIgnoresParamOrder(t *testing.T) {
	a := url.Values{}
	a.Set("q", "iphone")
	a.Set("limit", "50")

	b := url.Values{}
	b.Set("limit", "50")
	b.Set("q", "iphone")

	assert.Equal(t,
		Fingerprint("GET", "https://example.com/search", a),
		Fingerprint("GET", "https://example.com/search", b))
}

func TestFingerprintDistinguishesRequests(t *testing.T) {
	params := url.Values{"q": {"iphone"}}

	base := Fingerprint("GET", "https://example.com/search", params)

	assert.NotEqual(t, base, Fingerprint("POST", "https://example.com/search", params))
	assert.NotEqual(t, base, Fingerprint("GET", "https://example.com/other", params))
	assert.NotEqual(t, base, Fingerprint("GET", "https://example.com/search", url.Values{"q": {"ipad"}}))
}

func TestTTLStoreRoundTrip(t *testing.T) {
	store := NewTTLStore()
	ctx := context.Background()

	_, ok := store.Get(ctx, "missing")
	assert.False(t, ok)

	store.Put(ctx, "key", []byte("body"), time.Minute)
	body, ok := store.Get(ctx, "key")
	assert.True(t, ok)
	assert.Equal(t, []byte("body"), body)
}

func TestTTLStoreExpiry(t *testing.T) {
	store := NewTTLStore()
	ctx := context.Background()

	current := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return current }

	store.Put(ctx, "key", []byte("body"), 5*time.Minute)

	current = current.Add(4 * time.Minute)
	_, ok := store.Get(ctx, "key")
	assert.True(t, ok)

	current = current.Add(2 * time.Minute)
	_, ok = store.Get(ctx, "key")
	assert.False(t, ok)
}

func TestTTLStoreLazyReap(t *testing.T) {
	store := NewTTLStore()
	ctx := context.Background()

	current := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return current }

	store.Put(ctx, "old", []byte("stale"), time.Minute)
	current = current.Add(2 * time.Minute)
	store.Put(ctx, "new", []byte("fresh"), time.Minute)

	_, _, entries := store.Stats()
	assert.Equal(t, 1, entries)
}

func TestTTLStorePurgeMatching(t *testing.T) {
	store := NewTTLStore()
	ctx := context.Background()

	store.Put(ctx, "blocked", []byte("<html>Pardon Our Interruption</html>"), time.Minute)
	store.Put(ctx, "clean", []byte("<html>results</html>"), time.Minute)

	removed := store.PurgeMatching([]string{"pardon our interruption"})
	assert.Equal(t, 1, removed)

	_, ok := store.Get(ctx, "blocked")
	assert.False(t, ok)
	_, ok = store.Get(ctx, "clean")
	assert.True(t, ok)
}

func TestTTLStoreStatsCounters(t *testing.T) {
	store := NewTTLStore()
	ctx := context.Background()

	store.Put(ctx, "key", []byte("body"), time.Minute)
	store.Get(ctx, "key")
	store.Get(ctx, "absent")

	hits, misses, _ := store.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}
