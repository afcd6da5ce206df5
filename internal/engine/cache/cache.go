// Package cache implements the bounded frame cache with pin-aware LRU
// eviction.
package cache

import (
	"sync"

	"go.trai.ch/reel/internal/core/domain"
	"go.trai.ch/zerr"
)

// entry wraps a resident frame with eviction bookkeeping. The access sequence
// is a monotonic counter rather than wall-clock time so that eviction order is
// deterministic under test.
type entry struct {
	frame *domain.Frame
	seq   uint64
	pins  int
}

// Cache is a capacity-limited store of decoded frames keyed by FrameKey.
//
// Eviction is strict least-recently-used by access sequence, ties broken by
// lower FrameKey. Pinned entries are never evicted; when only pinned entries
// remain the cache exceeds its capacity rather than fail an insertion.
type Cache struct {
	mu       sync.Mutex
	capacity int64
	used     int64
	seq      uint64
	entries  map[domain.FrameKey]*entry
}

// New creates a cache bounded to capacity bytes.
func New(capacity int64) (*Cache, error) {
	if capacity <= 0 {
		return nil, zerr.With(domain.ErrCapacityConfig, "capacity", capacity)
	}
	return &Cache{
		capacity: capacity,
		entries:  make(map[domain.FrameKey]*entry),
	}, nil
}

// Get returns the cached frame for key, if resident. A hit counts as an
// access and bumps the key's sequence number; a miss has no side effect.
func (c *Cache) Get(key domain.FrameKey) (*domain.Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.seq++
	e.seq = c.seq
	return e.frame, true
}

// Insert stores a frame under key, evicting least-recently-used unpinned
// entries as needed to get back under capacity.
func (c *Cache) Insert(key domain.FrameKey, frame *domain.Frame) {
	c.InsertPinned(key, frame, 0)
}

// InsertPinned stores a frame under key with an initial pin count. The
// coordinator uses it to pin a freshly arrived frame once per delivered
// consumer before anyone else can race an eviction in.
//
// Inserting over an existing key replaces its frame and adds to its pin
// count. Usage may exceed capacity transiently during the call and settles
// back under it before returning, unless every other entry is pinned.
func (c *Cache) InsertPinned(key domain.FrameKey, frame *domain.Frame, pins int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	if e, ok := c.entries[key]; ok {
		c.used -= e.frame.SizeBytes()
		e.frame = frame
		e.seq = c.seq
		e.pins += pins
	} else {
		c.entries[key] = &entry{frame: frame, seq: c.seq, pins: pins}
	}
	c.used += frame.SizeBytes()

	c.evictLocked()
}

// evictLocked removes unpinned entries in LRU order until usage fits the
// capacity or nothing evictable remains. Linear scans are fine here: a
// preview cache holds at most a few hundred frames.
func (c *Cache) evictLocked() {
	for c.used > c.capacity {
		victim, ok := c.victimLocked()
		if !ok {
			return
		}
		e := c.entries[victim]
		c.used -= e.frame.SizeBytes()
		delete(c.entries, victim)
	}
}

// victimLocked selects the unpinned entry with the smallest access sequence,
// ties broken by lower key.
func (c *Cache) victimLocked() (domain.FrameKey, bool) {
	var victim domain.FrameKey
	var victimSeq uint64
	found := false
	for key, e := range c.entries {
		if e.pins > 0 {
			continue
		}
		if !found || e.seq < victimSeq || (e.seq == victimSeq && key.Less(victim)) {
			victim = key
			victimSeq = e.seq
			found = true
		}
	}
	return victim, found
}

// Pin raises the pin count of a resident entry, exempting it from eviction.
// It reports whether the key was resident.
func (c *Cache) Pin(key domain.FrameKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false
	}
	e.pins++
	return true
}

// Unpin releases one pin. Unpinning below zero or unpinning an absent key is
// a no-op; entries already force-cleared by InvalidateAll make both cases
// reachable in normal operation.
func (c *Cache) Unpin(key domain.FrameKey) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return
	}
	if e.pins > 0 {
		e.pins--
	}
}

// InvalidateAll clears every entry regardless of pin state. Used on graph
// reload, when resident frames no longer correspond to anything the backend
// would produce.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[domain.FrameKey]*entry)
	c.used = 0
}

// Stats returns a snapshot of cache occupancy.
func (c *Cache) Stats() domain.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	pinned := 0
	for _, e := range c.entries {
		if e.pins > 0 {
			pinned++
		}
	}
	return domain.CacheStats{
		EntryCount:  len(c.entries),
		BytesUsed:   c.used,
		Capacity:    c.capacity,
		PinnedCount: pinned,
	}
}
