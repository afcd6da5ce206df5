// Package playback implements the playback clock that advances the playhead
// at a target frame rate.
package playback

import (
	"context"
	"sync"
	"time"

	"go.trai.ch/reel/internal/core/domain"
	"go.trai.ch/reel/internal/core/ports"
	"go.trai.ch/reel/internal/engine/coordinator"
	"go.trai.ch/reel/internal/engine/prefetch"
)

// State is the clock's lifecycle state.
type State int

const (
	StateStopped State = iota
	StatePaused
	StatePlaying
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "stopped"
	}
}

// fpsDecay is the weight kept from the previous measured-FPS average on each
// new sample.
const fpsDecay = 0.9

// Clock drives sequential display of frames through the coordinator. Every
// tick issues a foreground request for the next frame; a cache hit displays
// immediately and the following tick is scheduled one nominal interval after
// the display, so on-time frames accumulate no drift. A miss stalls the
// display (never skips frames) until the backend resolves, and the interval
// base resets from that moment.
type Clock struct {
	coord      *coordinator.Coordinator
	prefetcher *prefetch.Scheduler
	logger     ports.Logger
	onFrame    func(*domain.Frame)

	mu         sync.Mutex
	fps        float64
	state      State
	output     int
	frame      int
	current    *coordinator.Handle
	playCancel context.CancelFunc
	playDone   chan struct{}

	displayed   uint64
	stalls      uint64
	measuredFPS float64
	lastDisplay time.Time
}

// New creates a stopped clock positioned at frame 0 of output 0. onFrame is
// invoked on the clock's goroutine for every displayed frame; it must be
// quick and must not call back into the clock.
func New(coord *coordinator.Coordinator, prefetcher *prefetch.Scheduler, logger ports.Logger, fps float64, onFrame func(*domain.Frame)) *Clock {
	return &Clock{
		coord:      coord,
		prefetcher: prefetcher,
		logger:     logger,
		onFrame:    onFrame,
		fps:        fps,
	}
}

// State returns the current lifecycle state.
func (c *Clock) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Position returns the key of the current (displayed or sought) frame.
func (c *Clock) Position() domain.FrameKey {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.FrameKey{Output: c.output, Frame: c.frame}
}

// SetRate changes the target frame rate. Takes effect from the next tick.
func (c *Clock) SetRate(fps float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if fps > 0 {
		c.fps = fps
	}
}

// Play starts advancing from the current position. Playing is a no-op; a
// playhead already at the final frame transitions straight to Stopped.
func (c *Clock) Play(ctx context.Context) {
	c.mu.Lock()
	if c.state == StatePlaying {
		c.mu.Unlock()
		return
	}
	if c.frame >= c.coord.OutputLength(c.output)-1 {
		c.state = StateStopped
		c.mu.Unlock()
		return
	}
	playCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.state = StatePlaying
	c.playCancel = cancel
	c.playDone = done
	c.displayed = 0
	c.stalls = 0
	c.measuredFPS = 0
	c.lastDisplay = time.Time{}
	c.mu.Unlock()

	go c.playLoop(playCtx, done)
}

// Pause transitions Playing to Paused, withdrawing interest in the in-flight
// foreground request. It blocks until the play goroutine has exited and is a
// no-op in any other state.
func (c *Clock) Pause() {
	c.interrupt(StatePaused, false)
}

// Stop transitions any state to Stopped and releases the display pin of the
// last shown frame.
func (c *Clock) Stop() {
	c.interrupt(StateStopped, true)
}

func (c *Clock) interrupt(to State, always bool) {
	c.mu.Lock()
	if c.state != StatePlaying && !always {
		c.mu.Unlock()
		return
	}
	c.state = to
	cancel := c.playCancel
	done := c.playDone
	c.playCancel = nil
	c.playDone = nil
	if to == StateStopped && c.current != nil {
		c.current.Release()
		c.current = nil
	}
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Seek repositions the playhead. Seeking during playback pauses first, which
// soft-cancels the in-flight request's interest. Seek does not itself request
// the frame; that is the session's foreground display path.
func (c *Clock) Seek(output, frame int) {
	c.Pause()
	c.mu.Lock()
	c.output = output
	c.frame = frame
	c.mu.Unlock()
}

// Stats returns a snapshot of playback health for the current or most recent
// play run.
func (c *Clock) Stats() domain.PlaybackStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.PlaybackStats{
		DisplayedFrames: c.displayed,
		Stalls:          c.stalls,
		MeasuredFPS:     c.measuredFPS,
	}
}

func (c *Clock) playLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		c.mu.Lock()
		output := c.output
		frame := c.frame + 1
		interval := time.Duration(float64(time.Second) / c.fps)
		c.mu.Unlock()

		if frame >= c.coord.OutputLength(output) {
			c.finish(StateStopped)
			return
		}
		key := domain.FrameKey{Output: output, Frame: frame}

		handle, err := c.coord.Request(ctx, key, ports.PriorityForeground)
		if err != nil {
			c.logger.Error(err)
			c.finish(StatePaused)
			return
		}
		c.prefetcher.Retarget(ctx, key, prefetch.DirectionForward, prefetch.ModePlay)

		res, ok := handle.TryResult()
		if !ok {
			// Miss: logical time keeps running but the displayed frame stays
			// put until this one resolves. Correctness over cadence.
			c.mu.Lock()
			c.stalls++
			c.mu.Unlock()
			res = handle.Await(ctx)
			if ctx.Err() != nil {
				// Withdraw interest; if the result slipped in just before
				// the cancel, Release returns the delivery pin.
				handle.Detach()
				handle.Release()
				return
			}
		}
		if res.Err != nil {
			c.logger.Error(res.Err)
			c.finish(StatePaused)
			return
		}

		c.display(key, handle, res.Frame)

		if frame == c.coord.OutputLength(output)-1 {
			c.finish(StateStopped)
			return
		}

		// Next tick one nominal interval after the successful display, so a
		// stalled frame resets the cadence base instead of rushing to catch
		// up.
		c.mu.Lock()
		deadline := c.lastDisplay.Add(interval)
		c.mu.Unlock()

		timer := time.NewTimer(time.Until(deadline))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

// finish records a state transition initiated by the play loop itself. A
// concurrent Pause/Stop wins: their state stands.
func (c *Clock) finish(to State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StatePlaying {
		c.state = to
		c.playCancel = nil
		c.playDone = nil
	}
}

// display swaps the display pin to the new frame and updates cadence
// accounting.
func (c *Clock) display(key domain.FrameKey, handle *coordinator.Handle, frame *domain.Frame) {
	now := time.Now()

	c.mu.Lock()
	// A concurrent Stop or Pause already won: installing the frame now would
	// resurrect a display pin on a clock that no longer shows it.
	if c.state != StatePlaying {
		c.mu.Unlock()
		handle.Release()
		return
	}
	if c.current != nil {
		c.current.Release()
	}
	c.current = handle
	c.frame = key.Frame
	c.displayed++
	if !c.lastDisplay.IsZero() {
		if dt := now.Sub(c.lastDisplay).Seconds(); dt > 0 {
			inst := 1 / dt
			if c.measuredFPS == 0 {
				c.measuredFPS = inst
			} else {
				c.measuredFPS = c.measuredFPS*fpsDecay + inst*(1-fpsDecay)
			}
		}
	}
	c.lastDisplay = now
	cb := c.onFrame
	c.mu.Unlock()

	if cb != nil {
		cb(frame)
	}
}
