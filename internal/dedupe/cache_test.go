// ABOUTME: Tests for the delivery deduplication cache
// ABOUTME: TTL expiry, capacity eviction and concurrent check-and-mark

package dedupe

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestCache(ttl time.Duration, maxEntries int) (*Cache, *time.Time) {
	c := New(ttl, maxEntries)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestCache_Seen_FirstDeliveryIsNew(t *testing.T) {
	c, _ := newTestCache(5*time.Minute, 100)
	defer c.Close()

	assert.False(t, c.Seen("tg-1-1"))
	assert.True(t, c.Seen("tg-1-1"))
}

func TestCache_Seen_ExpiredKeyIsNewAgain(t *testing.T) {
	c, now := newTestCache(time.Minute, 100)
	defer c.Close()

	assert.False(t, c.Seen("tg-1-1"))

	*now = now.Add(2 * time.Minute)
	assert.False(t, c.Seen("tg-1-1"))
	assert.True(t, c.Seen("tg-1-1"))
}

func TestCache_Contains_DoesNotMark(t *testing.T) {
	c, _ := newTestCache(time.Minute, 100)
	defer c.Close()

	assert.False(t, c.Contains("key"))
	assert.False(t, c.Seen("key"))
	assert.True(t, c.Contains("key"))
}

func TestCache_CapacityEvictsOldest(t *testing.T) {
	c, now := newTestCache(time.Hour, 3)
	defer c.Close()

	for i := 0; i < 3; i++ {
		c.Seen(fmt.Sprintf("key-%d", i))
		*now = now.Add(time.Second)
	}
	c.Seen("key-3")

	// The oldest key made room for the newest.
	assert.False(t, c.Contains("key-0"))
	assert.True(t, c.Contains("key-1"))
	assert.True(t, c.Contains("key-3"))
	assert.Equal(t, 3, c.Len())
}

func TestCache_RedeliveryRefreshesPosition(t *testing.T) {
	c, now := newTestCache(time.Hour, 2)
	defer c.Close()

	c.Seen("a")
	*now = now.Add(time.Second)
	c.Seen("b")
	*now = now.Add(time.Second)

	// Re-seeing "a" moves it to the back; "b" is now the eviction candidate.
	c.Seen("a")
	c.Seen("c")

	assert.True(t, c.Contains("a"))
	assert.False(t, c.Contains("b"))
	assert.True(t, c.Contains("c"))
}

func TestCache_Prune(t *testing.T) {
	c, now := newTestCache(time.Minute, 100)
	defer c.Close()

	c.Seen("old")
	*now = now.Add(2 * time.Minute)
	c.Seen("fresh")

	c.prune()
	assert.Equal(t, 1, c.Len())
	assert.True(t, c.Contains("fresh"))
}

func TestCache_ConcurrentSeen(t *testing.T) {
	c := New(time.Minute, 1000)
	defer c.Close()

	// Exactly one of many concurrent deliveries of the same key wins.
	var wg sync.WaitGroup
	var mu sync.Mutex
	newCount := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !c.Seen("same-key") {
				mu.Lock()
				newCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, newCount)
}

func TestCache_CloseTwice(t *testing.T) {
	c := New(time.Minute, 10)
	c.Close()
	c.Close()
}
