package coordinator

import (
	"context"
	"sync"

	"go.trai.ch/reel/internal/core/domain"
	"go.trai.ch/reel/internal/core/ports"
)

// Handle is one consumer's view of a frame request. Each Handle receives the
// request's terminal result exactly once; a Handle is owned by a single
// logical consumer and its methods must not be called concurrently with each
// other, except Detach which is always safe.
type Handle struct {
	key   domain.FrameKey
	coord *Coordinator

	// ch carries the terminal result. Buffered so completion never blocks on
	// a slow consumer; closed after the single send.
	ch chan ports.RenderResult

	detachOnce  sync.Once
	releaseOnce sync.Once

	mu       sync.Mutex
	resolved bool
	res      ports.RenderResult
	// pinned records that a cache pin was taken on this consumer's behalf.
	// Set under the coordinator's lock in the same critical section as the
	// pin itself, so a consumer that detaches afterwards (which also takes
	// that lock) is guaranteed to observe it in Release.
	pinned bool
}

func newHandle(key domain.FrameKey, coord *Coordinator) *Handle {
	return &Handle{
		key:   key,
		coord: coord,
		ch:    make(chan ports.RenderResult, 1),
	}
}

// resolvedHandle builds a handle that already carries its terminal result,
// for the synchronous cache-hit fast path.
func resolvedHandle(key domain.FrameKey, coord *Coordinator, res ports.RenderResult) *Handle {
	h := newHandle(key, coord)
	h.deliver(res)
	return h
}

// deliver publishes the terminal result. Called at most once per handle.
func (h *Handle) deliver(res ports.RenderResult) {
	h.ch <- res
	close(h.ch)
}

// markPinned records pin ownership. Must be called in the same coordinator
// critical section that takes the pin, before the result is delivered.
func (h *Handle) markPinned() {
	h.mu.Lock()
	h.pinned = true
	h.mu.Unlock()
}

// Key returns the frame key this handle is interested in.
func (h *Handle) Key() domain.FrameKey {
	return h.key
}

// Await blocks until the request resolves or ctx is done. On resolution the
// result is memoized, so repeated calls return the same value. A context
// cancellation does not detach the handle; callers that lose interest must
// call Detach themselves.
func (h *Handle) Await(ctx context.Context) ports.RenderResult {
	h.mu.Lock()
	if h.resolved {
		defer h.mu.Unlock()
		return h.res
	}
	h.mu.Unlock()

	select {
	case res := <-h.ch:
		h.mu.Lock()
		h.res = res
		h.resolved = true
		h.mu.Unlock()
		return res
	case <-ctx.Done():
		return ports.RenderResult{Err: ctx.Err()}
	}
}

// TryResult returns the terminal result without blocking. ok is false while
// the request is still pending.
func (h *Handle) TryResult() (ports.RenderResult, bool) {
	h.mu.Lock()
	if h.resolved {
		defer h.mu.Unlock()
		return h.res, true
	}
	h.mu.Unlock()

	select {
	case res := <-h.ch:
		h.mu.Lock()
		h.res = res
		h.resolved = true
		h.mu.Unlock()
		return res, true
	default:
		return ports.RenderResult{}, false
	}
}

// Detach withdraws this consumer's interest (soft-cancel). The backend
// submission, if any, stays outstanding and its result is still cached on
// arrival; only the delivery to this handle is dropped. Detach is idempotent,
// non-blocking, and a no-op after the result has been delivered.
func (h *Handle) Detach() {
	h.detachOnce.Do(func() {
		h.coord.detach(h)
	})
}

// Release returns the pin taken on this consumer's behalf when the frame was
// delivered. Call it once the frame is no longer being displayed. Release on
// a handle that never received a frame is a no-op.
//
// Release keys off pin ownership recorded under the coordinator's lock, not
// off having read the result: a consumer that detaches while the completion's
// delivery loop is still running may Release before its buffered result
// arrives, and the pin must be returned in that window too.
func (h *Handle) Release() {
	h.releaseOnce.Do(func() {
		h.mu.Lock()
		pinned := h.pinned
		h.mu.Unlock()
		if pinned {
			h.coord.cache.Unpin(h.key)
		}
	})
}
