package app

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.trai.ch/reel/internal/core/domain"
	"go.trai.ch/reel/internal/core/ports"
	"go.trai.ch/reel/internal/engine/coordinator"
	"go.trai.ch/reel/internal/engine/playback"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

// pollInterval is how often headless preview checks whether playback is
// still running.
const pollInterval = 50 * time.Millisecond

// App implements the CLI-facing operations: headless preview runs and
// throughput benchmarks.
type App struct {
	session   *Session
	coord     *coordinator.Coordinator
	settings  *domain.Settings
	logger    ports.Logger
	telemetry ports.Telemetry
	watcher   ports.Watcher
}

// New creates a new App instance.
func New(session *Session, coord *coordinator.Coordinator, settings *domain.Settings, logger ports.Logger, telemetry ports.Telemetry, watcher ports.Watcher) *App {
	return &App{
		session:   session,
		coord:     coord,
		settings:  settings,
		logger:    logger,
		telemetry: telemetry,
		watcher:   watcher,
	}
}

// Session returns the interactive session owned by the app.
func (a *App) Session() *Session {
	return a.session
}

// Preview plays output start to finish without a UI, logging playback health
// at the end. If script is non-empty it is watched for changes; a change
// reloads the session and playback restarts from the reloaded position.
func (a *App) Preview(ctx context.Context, output int, script string) error {
	length := a.coord.OutputLength(output)
	if length <= 0 {
		return zerr.With(domain.ErrInvalidKey, "output", output)
	}

	if script != "" {
		err := a.watcher.Start(ctx, script, func() {
			if err := a.session.Reload(context.Background()); err != nil {
				a.logger.Error(err)
				return
			}
			a.session.Play(context.Background())
		})
		if err != nil {
			return zerr.Wrap(err, "watching script")
		}
		defer func() {
			if err := a.watcher.Stop(); err != nil {
				a.logger.Warn("stopping script watcher", "error", err)
			}
		}()
	}

	if _, err := a.session.DisplayFrame(ctx, output, 0); err != nil {
		return zerr.Wrap(err, "displaying first frame")
	}
	a.session.Play(ctx)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for a.session.State() == playback.StatePlaying {
		select {
		case <-ctx.Done():
			a.session.Pause()
			return ctx.Err()
		case <-ticker.C:
		}
	}

	stats := a.session.PlaybackStats()
	cstats := a.session.CoordinatorStats()
	a.logger.Info("preview finished",
		"output", output,
		"frames", stats.DisplayedFrames,
		"stalls", stats.Stalls,
		"fps", fmt.Sprintf("%.2f", stats.MeasuredFPS),
		"cacheHits", cstats.Hits,
		"submissions", cstats.Submissions,
	)
	return nil
}

// BenchResult is the outcome of benchmarking a single output.
type BenchResult struct {
	Output  int
	Frames  int
	Elapsed time.Duration
	FPS     float64

	// Digest folds every frame checksum in order; two runs over the same
	// graph must produce the same digest.
	Digest uint64
}

// Bench renders every output front to back as fast as the backend allows
// and reports per-output throughput. Outputs render concurrently, frames
// within an output sequentially so the digest is order-stable. The frame
// count per output is capped by the bench.frames setting when it is set.
func (a *App) Bench(ctx context.Context) ([]BenchResult, error) {
	outputs := a.coord.OutputCount()
	results := make([]BenchResult, outputs)

	eg, ctx := errgroup.WithContext(ctx)
	for output := range outputs {
		eg.Go(func() error {
			res, err := a.benchOutput(ctx, output)
			if err != nil {
				return err
			}
			results[output] = res
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (a *App) benchOutput(ctx context.Context, output int) (BenchResult, error) {
	length := a.coord.OutputLength(output)
	if a.settings.BenchFrames > 0 && a.settings.BenchFrames < length {
		length = a.settings.BenchFrames
	}

	ctx, vertex := a.telemetry.Record(ctx, fmt.Sprintf("bench output %d (%d frames)", output, length))

	digest := xxhash.New()
	var buf [8]byte
	cachedFrames := 0
	start := time.Now()
	for frame := range length {
		key := domain.FrameKey{Output: output, Frame: frame}
		if a.coord.Cached(key) {
			cachedFrames++
		}
		handle, err := a.coord.Request(ctx, key, ports.PriorityForeground)
		if err != nil {
			vertex.Complete(err)
			return BenchResult{}, zerr.With(zerr.Wrap(err, "bench request"), "key", key.String())
		}
		res := handle.Await(ctx)
		if res.Err != nil {
			handle.Detach()
			handle.Release()
			vertex.Complete(res.Err)
			return BenchResult{}, zerr.With(zerr.Wrap(res.Err, "bench render"), "key", key.String())
		}
		binary.LittleEndian.PutUint64(buf[:], res.Frame.Checksum())
		_, _ = digest.Write(buf[:])
		handle.Release()

		logProgress(ctx, frame, length)
	}
	elapsed := time.Since(start)

	result := BenchResult{
		Output:  output,
		Frames:  length,
		Elapsed: elapsed,
		Digest:  digest.Sum64(),
	}
	if elapsed > 0 {
		result.FPS = float64(length) / elapsed.Seconds()
	}
	if length > 0 && cachedFrames == length {
		vertex.Cached()
	}
	vertex.Complete(nil)

	a.logger.Info("bench output done",
		"output", output,
		"frames", length,
		"elapsed", elapsed,
		"fps", fmt.Sprintf("%.2f", result.FPS),
	)
	return result, nil
}

// Close releases everything the app owns.
func (a *App) Close() error {
	a.session.Close()
	if err := a.telemetry.Close(); err != nil {
		return zerr.Wrap(err, "closing telemetry")
	}
	return nil
}

// logProgress emits a periodic progress line on the vertex carried by ctx.
func logProgress(ctx context.Context, frame, length int) {
	if frame == 0 || frame%100 != 0 {
		return
	}
	if vertex := ports.VertexFromContext(ctx); vertex != nil {
		vertex.Log(fmt.Sprintf("%d/%d frames", frame, length))
	}
}
