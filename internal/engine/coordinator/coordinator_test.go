package coordinator_test

import (
	"context"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/reel/internal/core/domain"
	"go.trai.ch/reel/internal/core/ports"
	"go.trai.ch/reel/internal/core/ports/mocks"
	"go.trai.ch/reel/internal/engine/cache"
	"go.trai.ch/reel/internal/engine/coordinator"
	"go.uber.org/mock/gomock"
)

const outputLength = 100

func key(output, frame int) domain.FrameKey {
	return domain.FrameKey{Output: output, Frame: frame}
}

func testFrame(k domain.FrameKey) *domain.Frame {
	return domain.NewFrame(k, [][]byte{{0xAB}}, map[string]string{"source": "test"})
}

// setupCoordinator builds a coordinator over a mocked single-output backend
// and a generously sized cache.
func setupCoordinator(t *testing.T, ctrl *gomock.Controller, watchdog time.Duration) (*coordinator.Coordinator, *mocks.MockBackend, *mocks.MockLogger) {
	t.Helper()

	backend := mocks.NewMockBackend(ctrl)
	backend.EXPECT().OutputCount().Return(1).AnyTimes()
	backend.EXPECT().OutputLength(0).Return(outputLength, nil).AnyTimes()

	logger := mocks.NewMockLogger(ctrl)

	frameCache, err := cache.New(1 << 20)
	require.NoError(t, err)

	coord, err := coordinator.New(backend, frameCache, logger, watchdog)
	require.NoError(t, err)
	t.Cleanup(coord.Close)
	return coord, backend, logger
}

// expectSubmit arms one Submit expectation and returns the channel the test
// resolves it through.
func expectSubmit(backend *mocks.MockBackend, k domain.FrameKey) chan ports.RenderResult {
	ch := make(chan ports.RenderResult, 1)
	backend.EXPECT().Submit(gomock.Any(), k, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ domain.FrameKey, _ ports.Priority) <-chan ports.RenderResult {
			return ch
		},
	)
	return ch
}

func TestNew_NoOutputs(t *testing.T) {
	ctrl := gomock.NewController(t)
	backend := mocks.NewMockBackend(ctrl)
	backend.EXPECT().OutputCount().Return(0)

	frameCache, err := cache.New(1 << 20)
	require.NoError(t, err)

	_, err = coordinator.New(backend, frameCache, mocks.NewMockLogger(ctrl), 0)
	require.ErrorIs(t, err, domain.ErrNoOutputs)
}

func TestRequest_InvalidKeyRejectedSynchronously(t *testing.T) {
	ctrl := gomock.NewController(t)
	coord, _, _ := setupCoordinator(t, ctrl, 0)

	tests := []struct {
		name string
		key  domain.FrameKey
	}{
		{name: "negative frame", key: key(0, -1)},
		{name: "frame past end", key: key(0, outputLength)},
		{name: "unknown output", key: key(1, 0)},
		{name: "negative output", key: key(-1, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// No Submit expectation is armed: an invalid key reaching the
			// backend fails the mock controller.
			_, err := coord.Request(t.Context(), tt.key, ports.PriorityForeground)
			require.ErrorIs(t, err, domain.ErrInvalidKey)
		})
	}
}

func TestRequest_SingleFlight(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctrl := gomock.NewController(t)
		coord, backend, _ := setupCoordinator(t, ctrl, 0)

		k := key(0, 5)
		resolve := expectSubmit(backend, k)

		// Two concurrent requests before resolution: exactly one submission.
		h1, err := coord.Request(t.Context(), k, ports.PriorityBackground)
		require.NoError(t, err)
		h2, err := coord.Request(t.Context(), k, ports.PriorityForeground)
		require.NoError(t, err)

		_, ok := h1.TryResult()
		assert.False(t, ok, "request must stay pending until the backend resolves")

		want := testFrame(k)
		resolve <- ports.RenderResult{Frame: want}
		close(resolve)
		synctest.Wait()

		res1 := h1.Await(t.Context())
		res2 := h2.Await(t.Context())
		require.NoError(t, res1.Err)
		require.NoError(t, res2.Err)
		assert.Same(t, want, res1.Frame)
		assert.Same(t, want, res2.Frame, "both consumers receive the identical resolved value")

		stats := coord.Stats()
		assert.Equal(t, uint64(1), stats.Submissions)
		assert.Equal(t, uint64(1), stats.Coalesced)
		assert.Equal(t, 0, stats.PendingCount)

		h1.Release()
		h2.Release()
	})
}

func TestRequest_HitShortCircuits(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctrl := gomock.NewController(t)
		coord, backend, _ := setupCoordinator(t, ctrl, 0)

		k := key(0, 7)
		resolve := expectSubmit(backend, k)

		h, err := coord.Request(t.Context(), k, ports.PriorityForeground)
		require.NoError(t, err)
		resolve <- ports.RenderResult{Frame: testFrame(k)}
		close(resolve)
		synctest.Wait()
		h.Await(t.Context())
		h.Release()

		// Cached now. No further Submit expectation is armed.
		h2, err := coord.Request(t.Context(), k, ports.PriorityForeground)
		require.NoError(t, err)
		res, ok := h2.TryResult()
		require.True(t, ok, "cache hit must resolve synchronously")
		require.NoError(t, res.Err)
		h2.Release()

		assert.Equal(t, uint64(1), coord.Stats().Hits)
	})
}

func TestRequest_FailureDeliveredAndNotCached(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctrl := gomock.NewController(t)
		coord, backend, _ := setupCoordinator(t, ctrl, 0)

		k := key(0, 3)
		resolve := expectSubmit(backend, k)

		h1, err := coord.Request(t.Context(), k, ports.PriorityForeground)
		require.NoError(t, err)
		h2, err := coord.Request(t.Context(), k, ports.PriorityBackground)
		require.NoError(t, err)

		resolve <- ports.RenderResult{Err: assert.AnError}
		close(resolve)
		synctest.Wait()

		for _, h := range []*coordinator.Handle{h1, h2} {
			res := h.Await(t.Context())
			require.Error(t, res.Err)
			assert.ErrorIs(t, res.Err, domain.ErrBackendFailure)
			assert.Nil(t, res.Frame)
		}

		// The failure is not cached: the next request resubmits.
		retry := expectSubmit(backend, k)
		h3, err := coord.Request(t.Context(), k, ports.PriorityForeground)
		require.NoError(t, err)
		retry <- ports.RenderResult{Frame: testFrame(k)}
		close(retry)
		synctest.Wait()

		res := h3.Await(t.Context())
		require.NoError(t, res.Err)
		h3.Release()
		assert.Equal(t, uint64(2), coord.Stats().Submissions)
	})
}

func TestHandle_DetachKeepsResultCached(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctrl := gomock.NewController(t)
		coord, backend, _ := setupCoordinator(t, ctrl, 0)

		k := key(0, 42)
		resolve := expectSubmit(backend, k)

		h, err := coord.Request(t.Context(), k, ports.PriorityBackground)
		require.NoError(t, err)
		h.Detach()
		h.Detach() // idempotent

		resolve <- ports.RenderResult{Frame: testFrame(k)}
		close(resolve)
		synctest.Wait()

		_, ok := h.TryResult()
		assert.False(t, ok, "detached consumer receives nothing")

		// Wasted computation is accepted, wasted caching is not: the result
		// landed in the cache and the re-request is a hit.
		h2, err := coord.Request(t.Context(), k, ports.PriorityForeground)
		require.NoError(t, err)
		res, ok := h2.TryResult()
		require.True(t, ok)
		require.NoError(t, res.Err)
		h2.Release()
		assert.Equal(t, uint64(1), coord.Stats().Submissions)
	})
}

func TestCoordinator_ReloadDropsStaleCompletions(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctrl := gomock.NewController(t)
		coord, backend, _ := setupCoordinator(t, ctrl, 0)

		k := key(0, 10)
		stale := expectSubmit(backend, k)

		h, err := coord.Request(t.Context(), k, ports.PriorityForeground)
		require.NoError(t, err)

		require.NoError(t, coord.Reload())
		assert.Equal(t, 0, coord.Stats().PendingCount)

		// The waiting consumer is resolved with a reload error instead of
		// hanging on a request that can no longer be satisfied.
		res, ok := h.TryResult()
		require.True(t, ok)
		assert.ErrorIs(t, res.Err, domain.ErrGraphReloaded)

		// The pre-reload submission resolves late; its frame belongs to the
		// old graph and must not be cached.
		stale <- ports.RenderResult{Frame: testFrame(k)}
		close(stale)
		synctest.Wait()
		assert.Equal(t, 0, coord.CacheStats().EntryCount)

		// A fresh request goes back to the backend.
		fresh := expectSubmit(backend, k)
		h2, err := coord.Request(t.Context(), k, ports.PriorityForeground)
		require.NoError(t, err)
		fresh <- ports.RenderResult{Frame: testFrame(k)}
		close(fresh)
		synctest.Wait()
		require.NoError(t, h2.Await(t.Context()).Err)
		h2.Release()
	})
}

func TestCoordinator_DeliveredFramesArePinnedPerConsumer(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctrl := gomock.NewController(t)

		backend := mocks.NewMockBackend(ctrl)
		backend.EXPECT().OutputCount().Return(1).AnyTimes()
		backend.EXPECT().OutputLength(0).Return(outputLength, nil).AnyTimes()

		// Tiny cache: a single unpinned frame of this size gets evicted by
		// any follow-up insertion.
		frameCache, err := cache.New(300)
		require.NoError(t, err)
		coord, err := coordinator.New(backend, frameCache, mocks.NewMockLogger(ctrl), 0)
		require.NoError(t, err)
		defer coord.Close()

		k := key(0, 0)
		resolve := expectSubmit(backend, k)
		h1, err := coord.Request(t.Context(), k, ports.PriorityForeground)
		require.NoError(t, err)
		h2, err := coord.Request(t.Context(), k, ports.PriorityForeground)
		require.NoError(t, err)

		resolve <- ports.RenderResult{Frame: testFrame(k)}
		close(resolve)
		synctest.Wait()
		require.NoError(t, h1.Await(t.Context()).Err)
		require.NoError(t, h2.Await(t.Context()).Err)

		// Capacity pressure from another insertion must not evict the
		// doubly pinned frame.
		other := expectSubmit(backend, key(0, 1))
		h3, err := coord.Request(t.Context(), key(0, 1), ports.PriorityBackground)
		require.NoError(t, err)
		other <- ports.RenderResult{Frame: testFrame(key(0, 1))}
		close(other)
		synctest.Wait()
		require.NoError(t, h3.Await(t.Context()).Err)
		h3.Release()

		_, stillThere := frameCache.Get(k)
		assert.True(t, stillThere, "pinned frame survives capacity pressure")

		// One release keeps it pinned, the second makes it evictable.
		h1.Release()
		h1.Release() // idempotent
		h2.Release()
		assert.Equal(t, 0, frameCache.Stats().PinnedCount)
	})
}

// A consumer that loses interest mid-flight follows Detach then Release. If
// the backend resolution is racing it, the per-consumer pin may already have
// been taken before the consumer's result was delivered; Release must return
// that pin in every interleaving. Runs many iterations without the fake
// clock so the release genuinely races the delivery loop.
func TestCoordinator_ReleaseRacingDeliveryReturnsPin(t *testing.T) {
	ctrl := gomock.NewController(t)
	coord, backend, _ := setupCoordinator(t, ctrl, 0)

	for i := range 300 {
		k := key(0, i%outputLength)
		resolve := expectSubmit(backend, k)

		h1, err := coord.Request(context.Background(), k, ports.PriorityForeground)
		require.NoError(t, err)
		h2, err := coord.Request(context.Background(), k, ports.PriorityBackground)
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			h2.Detach()
			h2.Release()
		}()

		resolve <- ports.RenderResult{Frame: testFrame(k)}
		close(resolve)

		require.NoError(t, h1.Await(context.Background()).Err)
		h1.Release()
		wg.Wait()

		require.Zero(t, coord.CacheStats().PinnedCount, "iteration %d leaked a pin", i)
		require.NoError(t, coord.Reload())
	}
}

func TestCoordinator_WatchdogLogsOverdueRequests(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctrl := gomock.NewController(t)

		backend := mocks.NewMockBackend(ctrl)
		backend.EXPECT().OutputCount().Return(1).AnyTimes()
		backend.EXPECT().OutputLength(0).Return(outputLength, nil).AnyTimes()

		logger := mocks.NewMockLogger(ctrl)
		warned := make(chan struct{}, 1)
		logger.EXPECT().Warn("backend submission overdue", gomock.Any()).Do(
			func(string, ...any) {
				select {
				case warned <- struct{}{}:
				default:
				}
			},
		).MinTimes(1)

		frameCache, err := cache.New(1 << 20)
		require.NoError(t, err)
		coord, err := coordinator.New(backend, frameCache, logger, 10*time.Millisecond)
		require.NoError(t, err)

		k := key(0, 1)
		resolve := expectSubmit(backend, k)
		h, err := coord.Request(t.Context(), k, ports.PriorityForeground)
		require.NoError(t, err)

		time.Sleep(25 * time.Millisecond)
		synctest.Wait()
		<-warned

		// The watchdog only reports: the request is still pending and still
		// resolves normally.
		assert.Equal(t, 1, coord.Stats().PendingCount)
		resolve <- ports.RenderResult{Frame: testFrame(k)}
		close(resolve)
		synctest.Wait()
		require.NoError(t, h.Await(t.Context()).Err)
		h.Release()
		coord.Close()
	})
}
