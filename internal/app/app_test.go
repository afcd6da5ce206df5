package app_test

import (
	"context"
	"testing"
	"testing/synctest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/reel/internal/adapters/telemetry"
	"go.trai.ch/reel/internal/app"
	"go.trai.ch/reel/internal/core/domain"
	"go.trai.ch/reel/internal/core/ports"
	"go.trai.ch/reel/internal/core/ports/mocks"
	"go.trai.ch/reel/internal/engine/cache"
	"go.trai.ch/reel/internal/engine/coordinator"
	"go.uber.org/mock/gomock"
)

func setupApp(t *testing.T, ctrl *gomock.Controller, settings *domain.Settings, lengths ...int) (*app.App, *mocks.MockWatcher, *instantBackend) {
	t.Helper()
	return setupAppWithTelemetry(t, ctrl, settings, telemetry.NewNoop(), lengths...)
}

func setupAppWithTelemetry(t *testing.T, ctrl *gomock.Controller, settings *domain.Settings, tel ports.Telemetry, lengths ...int) (*app.App, *mocks.MockWatcher, *instantBackend) {
	t.Helper()

	fake := &instantBackend{}
	backend := mocks.NewMockBackend(ctrl)
	backend.EXPECT().OutputCount().Return(len(lengths)).AnyTimes()
	for i, n := range lengths {
		backend.EXPECT().OutputLength(i).Return(n, nil).AnyTimes()
	}
	backend.EXPECT().Submit(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, k domain.FrameKey, _ ports.Priority) <-chan ports.RenderResult {
			return fake.submit(k)
		},
	).AnyTimes()

	frameCache, err := cache.New(settings.CacheCapacityBytes)
	require.NoError(t, err)
	coord, err := coordinator.New(backend, frameCache, quietLogger(), 0)
	require.NoError(t, err)

	session := app.NewSession(coord, settings, quietLogger(), nil)
	watcher := mocks.NewMockWatcher(ctrl)
	a := app.New(session, coord, settings, quietLogger(), tel, watcher)
	t.Cleanup(func() { _ = a.Close() })
	return a, watcher, fake
}

func TestApp_BenchRendersAllOutputs(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctrl := gomock.NewController(t)
		a, _, _ := setupApp(t, ctrl, testSettings(), 10, 5)

		results, err := a.Bench(t.Context())
		require.NoError(t, err)
		require.Len(t, results, 2)

		assert.Equal(t, 0, results[0].Output)
		assert.Equal(t, 10, results[0].Frames)
		assert.Equal(t, 1, results[1].Output)
		assert.Equal(t, 5, results[1].Frames)
		assert.NotZero(t, results[0].Digest)
	})
}

func TestApp_BenchDigestIsStable(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctrl := gomock.NewController(t)
		a, _, _ := setupApp(t, ctrl, testSettings(), 10)

		first, err := a.Bench(t.Context())
		require.NoError(t, err)
		second, err := a.Bench(t.Context())
		require.NoError(t, err)

		// The second run is served from cache; identical pixels, identical
		// digest.
		assert.Equal(t, first[0].Digest, second[0].Digest)
	})
}

func TestApp_BenchMarksFullyCachedOutput(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctrl := gomock.NewController(t)
		tel := mocks.NewMockTelemetry(ctrl)
		first := mocks.NewMockVertex(ctrl)
		second := mocks.NewMockVertex(ctrl)

		runs := 0
		tel.EXPECT().Record(gomock.Any(), gomock.Any()).DoAndReturn(
			func(ctx context.Context, _ string) (context.Context, ports.Vertex) {
				runs++
				v := ports.Vertex(first)
				if runs == 2 {
					v = second
				}
				return ports.ContextWithVertex(ctx, v), v
			},
		).Times(2)
		tel.EXPECT().Close().Return(nil)

		// Progress lines travel through the context installed by Record.
		first.EXPECT().Log("100/150 frames")
		first.EXPECT().Complete(nil)
		second.EXPECT().Log("100/150 frames")
		second.EXPECT().Complete(nil)
		// Only the second run is served entirely from cache.
		second.EXPECT().Cached()

		a, _, _ := setupAppWithTelemetry(t, ctrl, testSettings(), tel, 150)

		_, err := a.Bench(t.Context())
		require.NoError(t, err)
		_, err = a.Bench(t.Context())
		require.NoError(t, err)
	})
}

func TestApp_BenchHonorsFrameCap(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctrl := gomock.NewController(t)
		settings := testSettings()
		settings.BenchFrames = 3
		a, _, fake := setupApp(t, ctrl, settings, 10)

		results, err := a.Bench(t.Context())
		require.NoError(t, err)
		assert.Equal(t, 3, results[0].Frames)

		for _, k := range fake.submissions() {
			assert.Less(t, k.Frame, 3, "frames beyond the cap must not be rendered")
		}
	})
}

func TestApp_BenchLeavesNoPins(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctrl := gomock.NewController(t)
		a, _, _ := setupApp(t, ctrl, testSettings(), 10)

		_, err := a.Bench(t.Context())
		require.NoError(t, err)
		synctest.Wait()
		assert.Equal(t, 0, a.Session().CacheStats().PinnedCount)
	})
}

func TestApp_PreviewPlaysToEnd(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctrl := gomock.NewController(t)
		a, _, _ := setupApp(t, ctrl, testSettings(), 5)

		require.NoError(t, a.Preview(t.Context(), 0, ""))

		stats := a.Session().PlaybackStats()
		assert.Equal(t, uint64(4), stats.DisplayedFrames)
		assert.Zero(t, a.Session().CoordinatorStats().PendingCount)
	})
}

func TestApp_PreviewRejectsUnknownOutput(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctrl := gomock.NewController(t)
		a, _, _ := setupApp(t, ctrl, testSettings(), 5)

		err := a.Preview(t.Context(), 7, "")
		assert.ErrorIs(t, err, domain.ErrInvalidKey)
	})
}

func TestApp_PreviewWatchesScript(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctrl := gomock.NewController(t)
		a, watcher, _ := setupApp(t, ctrl, testSettings(), 5)

		watcher.EXPECT().Start(gomock.Any(), "clip.vpy", gomock.Any()).Return(nil)
		watcher.EXPECT().Stop().Return(nil)

		require.NoError(t, a.Preview(t.Context(), 0, "clip.vpy"))
	})
}

func TestApp_PreviewCancelPausesPlayback(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctrl := gomock.NewController(t)
		// A long clip so the preview is still playing when we cancel.
		a, _, _ := setupApp(t, ctrl, testSettings(), 10_000)

		ctx, cancel := context.WithCancel(t.Context())
		errCh := make(chan error, 1)
		go func() {
			errCh <- a.Preview(ctx, 0, "")
		}()

		synctest.Wait()
		cancel()
		err := <-errCh
		assert.ErrorIs(t, err, context.Canceled)
	})
}
