// Package coordinator routes frame requests between consumers, the frame
// cache, and the asynchronous rendering backend.
//
// The coordinator enforces single-flight per frame key: however many
// consumers ask for a frame while it is being computed, at most one backend
// submission exists for it, and every currently-interested consumer receives
// the one terminal result exactly once. Backend completions may arrive on any
// goroutine and in any order; all shared state (the pending table and the
// cache's pending/cached trichotomy) is serialized under the coordinator's
// lock before completions take effect.
package coordinator

import (
	"context"
	"sync"
	"time"

	"go.trai.ch/reel/internal/core/domain"
	"go.trai.ch/reel/internal/core/ports"
	"go.trai.ch/reel/internal/engine/cache"
	"go.trai.ch/zerr"
)

// pendingRequest tracks one outstanding backend submission and the consumers
// waiting on it.
type pendingRequest struct {
	key         domain.FrameKey
	consumers   []*Handle
	foreground  bool
	generation  uint64
	submittedAt time.Time
}

// Coordinator deduplicates in-flight requests and delivers backend results to
// cache and consumers.
type Coordinator struct {
	backend ports.Backend
	cache   *cache.Cache
	logger  ports.Logger

	// watchdogThreshold bounds how long a submission may stay pending before
	// it is logged as overdue. Overdue submissions are never abandoned.
	watchdogThreshold time.Duration

	mu         sync.Mutex
	pending    map[domain.FrameKey]*pendingRequest
	lengths    []int
	generation uint64
	closed     bool

	submissions uint64
	hits        uint64
	coalesced   uint64

	watchdogStop chan struct{}
	watchdogDone chan struct{}
}

// New creates a coordinator over the given backend and cache. It queries the
// backend's output layout immediately; construction fails if the graph
// exposes no outputs.
func New(backend ports.Backend, frameCache *cache.Cache, logger ports.Logger, watchdogThreshold time.Duration) (*Coordinator, error) {
	c := &Coordinator{
		backend:           backend,
		cache:             frameCache,
		logger:            logger,
		watchdogThreshold: watchdogThreshold,
		pending:           make(map[domain.FrameKey]*pendingRequest),
	}
	if err := c.loadLayout(); err != nil {
		return nil, err
	}
	if watchdogThreshold > 0 {
		c.watchdogStop = make(chan struct{})
		c.watchdogDone = make(chan struct{})
		go c.watchdog()
	}
	return c, nil
}

// loadLayout snapshots output count and lengths from the backend.
func (c *Coordinator) loadLayout() error {
	count := c.backend.OutputCount()
	if count <= 0 {
		return domain.ErrNoOutputs
	}
	lengths := make([]int, count)
	for i := range count {
		length, err := c.backend.OutputLength(i)
		if err != nil {
			return zerr.With(zerr.Wrap(err, "failed to query output length"), "output", i)
		}
		lengths[i] = length
	}

	c.mu.Lock()
	c.lengths = lengths
	c.mu.Unlock()
	return nil
}

// OutputCount returns the number of outputs in the loaded graph.
func (c *Coordinator) OutputCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lengths)
}

// OutputLength returns the frame count of one output, or zero for an unknown
// output index.
func (c *Coordinator) OutputLength(output int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if output < 0 || output >= len(c.lengths) {
		return 0
	}
	return c.lengths[output]
}

// validateLocked rejects keys outside the loaded graph.
func (c *Coordinator) validateLocked(key domain.FrameKey) error {
	if !key.Valid() || key.Output >= len(c.lengths) || key.Frame >= c.lengths[key.Output] {
		return zerr.With(domain.ErrInvalidKey, "key", key.String())
	}
	return nil
}

// Request asks for one frame. Invalid keys are rejected synchronously and
// never reach the backend. On a cache hit the returned handle is already
// resolved and the entry is pinned on the caller's behalf. Otherwise the
// caller is attached to the existing in-flight submission for the key, or a
// new one is issued.
//
// Hints at or above PriorityForeground mark the caller as foreground: if the
// key is already pending as background prefetch, the pending request is
// promoted rather than duplicated.
func (c *Coordinator) Request(ctx context.Context, key domain.FrameKey, hint ports.Priority) (*Handle, error) {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()
		return nil, domain.ErrSessionClosed
	}
	if err := c.validateLocked(key); err != nil {
		c.mu.Unlock()
		return nil, err
	}

	// Fast path: resident frame, pinned for the caller, resolved handle.
	if frame, ok := c.cache.Get(key); ok {
		c.cache.Pin(key)
		c.hits++
		c.mu.Unlock()
		h := resolvedHandle(key, c, ports.RenderResult{Frame: frame})
		h.markPinned()
		return h, nil
	}

	foreground := hint >= ports.PriorityForeground

	// Single flight: attach to an existing submission if one is in flight.
	if p, ok := c.pending[key]; ok {
		h := newHandle(key, c)
		p.consumers = append(p.consumers, h)
		if foreground {
			p.foreground = true
		}
		c.coalesced++
		c.mu.Unlock()
		return h, nil
	}

	h := newHandle(key, c)
	p := &pendingRequest{
		key:         key,
		consumers:   []*Handle{h},
		foreground:  foreground,
		generation:  c.generation,
		submittedAt: time.Now(),
	}
	c.pending[key] = p
	c.submissions++
	generation := c.generation
	c.mu.Unlock()

	resultCh := c.backend.Submit(ctx, key, hint)
	go func() {
		res, ok := <-resultCh
		if !ok {
			res = ports.RenderResult{Err: zerr.With(domain.ErrBackendFailure, "key", key.String())}
		}
		c.complete(key, generation, res)
	}()
	return h, nil
}

// complete applies one backend resolution under the coordinator's lock.
func (c *Coordinator) complete(key domain.FrameKey, generation uint64, res ports.RenderResult) {
	c.mu.Lock()

	// A reload has invalidated the graph since this submission was issued.
	// The frame (or failure) belongs to a graph that no longer exists; it is
	// neither cached nor surfaced.
	if generation != c.generation {
		c.mu.Unlock()
		return
	}

	p, ok := c.pending[key]
	if !ok || p.generation != generation {
		c.mu.Unlock()
		return
	}
	delete(c.pending, key)

	consumers := p.consumers

	if res.Err != nil {
		c.mu.Unlock()
		// Failures are never cached; a later request for the same key
		// retries against the backend.
		err := zerr.With(zerr.With(domain.ErrBackendFailure, "key", key.String()), "cause", res.Err.Error())
		for _, h := range consumers {
			h.deliver(ports.RenderResult{Err: err})
		}
		return
	}

	// Pin once per currently-interested consumer before anyone can race an
	// eviction in. With zero consumers left (all detached) the frame is still
	// inserted: recomputation was wasted, caching it must not be.
	// Ownership is recorded on each handle inside this critical section so a
	// consumer releasing before its delivery below still returns its pin.
	c.cache.InsertPinned(key, res.Frame, len(consumers))
	for _, h := range consumers {
		h.markPinned()
	}
	c.mu.Unlock()

	for _, h := range consumers {
		h.deliver(ports.RenderResult{Frame: res.Frame})
	}
}

// detach removes one consumer from its pending request, if still pending.
func (c *Coordinator) detach(h *Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.pending[h.key]
	if !ok {
		return
	}
	for i, consumer := range p.consumers {
		if consumer == h {
			p.consumers = append(p.consumers[:i:i], p.consumers[i+1:]...)
			break
		}
	}
	// The submission itself stays outstanding even with no consumers left;
	// its result is cached on arrival.
}

// Cached reports whether a key is resident without pinning it. A hit still
// counts as an access for eviction ranking, which keeps windowed frames warm.
func (c *Coordinator) Cached(key domain.FrameKey) bool {
	_, ok := c.cache.Get(key)
	return ok
}

// Reload discards all cached and pending state and re-reads the output
// layout. Consumers still waiting on a pending request are resolved with
// ErrGraphReloaded. In-flight submissions from before the reload resolve
// against a stale generation and are dropped silently, whether they succeed
// or fail.
func (c *Coordinator) Reload() error {
	c.mu.Lock()
	c.generation++
	orphaned := c.pending
	c.pending = make(map[domain.FrameKey]*pendingRequest)
	c.mu.Unlock()

	for _, p := range orphaned {
		for _, h := range p.consumers {
			h.deliver(ports.RenderResult{Err: zerr.With(domain.ErrGraphReloaded, "key", p.key.String())})
		}
	}

	c.cache.InvalidateAll()
	return c.loadLayout()
}

// Stats returns a snapshot of request routing counters.
func (c *Coordinator) Stats() domain.CoordinatorStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.CoordinatorStats{
		PendingCount: len(c.pending),
		Submissions:  c.submissions,
		Hits:         c.hits,
		Coalesced:    c.coalesced,
	}
}

// CacheStats returns a snapshot of the underlying cache.
func (c *Coordinator) CacheStats() domain.CacheStats {
	return c.cache.Stats()
}

// Close stops the watchdog and rejects further requests. Outstanding
// submissions still resolve into the cache.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	if c.watchdogStop != nil {
		close(c.watchdogStop)
		<-c.watchdogDone
	}
}

// watchdog periodically logs submissions pending longer than the threshold.
// It observes and escalates; it never abandons a request.
func (c *Coordinator) watchdog() {
	defer close(c.watchdogDone)

	ticker := time.NewTicker(c.watchdogThreshold)
	defer ticker.Stop()

	for {
		select {
		case <-c.watchdogStop:
			return
		case <-ticker.C:
			c.reportOverdue()
		}
	}
}

func (c *Coordinator) reportOverdue() {
	now := time.Now()

	c.mu.Lock()
	type overdue struct {
		key        string
		age        time.Duration
		foreground bool
	}
	var report []overdue
	for _, p := range c.pending {
		if age := now.Sub(p.submittedAt); age >= c.watchdogThreshold {
			report = append(report, overdue{key: p.key.String(), age: age, foreground: p.foreground})
		}
	}
	c.mu.Unlock()

	for _, o := range report {
		c.logger.Warn("backend submission overdue",
			"key", o.key,
			"age", o.age,
			"foreground", o.foreground,
		)
	}
}
