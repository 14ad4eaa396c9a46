// ABOUTME: Tests for the dedupe cache
// ABOUTME: Covers lookup/mark semantics, TTL expiry and size-based eviction

package dedupe

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_LookupAndMark(t *testing.T) {
	c := New(time.Minute, 100)
	defer c.Close()

	_, ok := c.Lookup("ref-1")
	assert.False(t, ok)

	c.Mark("ref-1", "msg-1")

	id, ok := c.Lookup("ref-1")
	assert.True(t, ok)
	assert.Equal(t, "msg-1", id)
}

func TestCache_TTLExpiry(t *testing.T) {
	c := New(10*time.Millisecond, 100)
	defer c.Close()

	c.Mark("ref-1", "msg-1")
	time.Sleep(20 * time.Millisecond)

	_, ok := c.Lookup("ref-1")
	assert.False(t, ok, "expired entries must not be returned")
}

func TestCache_EvictsOldestAtCapacity(t *testing.T) {
	c := New(time.Minute, 3)
	defer c.Close()

	for i := 1; i <= 4; i++ {
		c.Mark(fmt.Sprintf("ref-%d", i), fmt.Sprintf("msg-%d", i))
	}

	_, ok := c.Lookup("ref-1")
	assert.False(t, ok, "oldest entry should have been evicted")

	for i := 2; i <= 4; i++ {
		id, ok := c.Lookup(fmt.Sprintf("ref-%d", i))
		assert.True(t, ok)
		assert.Equal(t, fmt.Sprintf("msg-%d", i), id)
	}
}

func TestCache_ReMarkRefreshesOrder(t *testing.T) {
	c := New(time.Minute, 2)
	defer c.Close()

	c.Mark("ref-1", "msg-1")
	c.Mark("ref-2", "msg-2")
	c.Mark("ref-1", "msg-1b") // refresh moves ref-1 to the back
	c.Mark("ref-3", "msg-3")  // should evict ref-2, not ref-1

	id, ok := c.Lookup("ref-1")
	assert.True(t, ok)
	assert.Equal(t, "msg-1b", id)

	_, ok = c.Lookup("ref-2")
	assert.False(t, ok)
}

func TestCache_CloseIdempotent(t *testing.T) {
	c := New(time.Minute, 10)
	c.Close()
	c.Close()
}
