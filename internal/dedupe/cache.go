// ABOUTME: Thread-safe TTL cache mapping client send refs to durable message ids
// ABOUTME: Lets the gateway answer a retried send with the original message instead of double-inserting

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// cacheEntry stores the resolved message id, timestamp and list element for a ref.
type cacheEntry struct {
	messageID string
	timestamp time.Time
	element   *list.Element
}

// Cache tracks client send refs (the sender's temporary message ids) that
// have already produced a durable message. A retried send carrying a seen
// ref resolves to the original message id instead of inserting again.
// Size-limited with O(1) oldest-first eviction via a doubly-linked list.
type Cache struct {
	mu      sync.RWMutex
	seen    map[string]*cacheEntry
	order   *list.List // refs in insertion order (oldest at front)
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// New creates a dedupe cache with the specified TTL and maximum size.
// A background goroutine periodically cleans up expired entries.
func New(ttl time.Duration, maxSize int) *Cache {
	c := &Cache{
		seen:    make(map[string]*cacheEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// Lookup returns the durable message id previously recorded for the ref,
// if the ref has been seen and is not expired.
func (c *Cache) Lookup(ref string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.seen[ref]
	if !ok || time.Since(entry.timestamp) >= c.ttl {
		return "", false
	}
	return entry.messageID, true
}

// Mark records that a ref resolved to the given durable message id. If the
// cache is at capacity, the oldest entry is evicted to make room.
func (c *Cache) Mark(ref, messageID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()

	// If the ref already exists, refresh it and move to back
	if entry, exists := c.seen[ref]; exists {
		entry.messageID = messageID
		entry.timestamp = now
		c.order.MoveToBack(entry.element)
		return
	}

	if len(c.seen) >= c.maxSize {
		c.evictOldest()
	}

	elem := c.order.PushBack(ref)
	c.seen[ref] = &cacheEntry{
		messageID: messageID,
		timestamp: now,
		element:   elem,
	}
}

// evictOldest removes the oldest entry. Must be called with mu held.
func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}

	ref, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.seen, ref)
}

// cleanup runs in a background goroutine, periodically removing expired entries.
func (c *Cache) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runCleanup()
		case <-c.done:
			return
		}
	}
}

// runCleanup removes all expired entries from the cache.
func (c *Cache) runCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for ref, entry := range c.seen {
		if now.Sub(entry.timestamp) > c.ttl {
			c.order.Remove(entry.element)
			delete(c.seen, ref)
		}
	}
}

// Close stops the background cleanup goroutine. Safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
