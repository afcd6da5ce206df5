// Package app implements the application layer for reel.
package app

import (
	"context"
	"sync"

	"go.trai.ch/reel/internal/core/domain"
	"go.trai.ch/reel/internal/core/ports"
	"go.trai.ch/reel/internal/engine/coordinator"
	"go.trai.ch/reel/internal/engine/playback"
	"go.trai.ch/reel/internal/engine/prefetch"
	"go.trai.ch/zerr"
)

// Session is the interactive preview surface. It owns the playback clock and
// prefetch scheduler, tracks the frame currently on display, and translates
// user-level operations (show this frame, play, seek, reload) into
// coordinator requests.
type Session struct {
	settings   *domain.Settings
	logger     ports.Logger
	coord      *coordinator.Coordinator
	prefetcher *prefetch.Scheduler
	clock      *playback.Clock

	mu      sync.Mutex
	current *coordinator.Handle
	last    domain.FrameKey
	hasLast bool
	closed  bool
}

// NewSession assembles a session around an already constructed coordinator.
// onFrame is invoked for every frame shown during playback; nil is allowed.
func NewSession(coord *coordinator.Coordinator, settings *domain.Settings, logger ports.Logger, onFrame func(*domain.Frame)) *Session {
	prefetcher := prefetch.New(coord, settings.PlayWindow, settings.ScrubRadius)
	return &Session{
		settings:   settings,
		logger:     logger,
		coord:      coord,
		prefetcher: prefetcher,
		clock:      playback.New(coord, prefetcher, logger, settings.PlaybackFPS, onFrame),
	}
}

// DisplayFrame shows a single frame: it issues a foreground request, waits
// for the pixels, and retargets prefetch around the new position in scrub
// mode. The returned frame stays pinned until the next DisplayFrame, Reload
// or Close.
func (s *Session) DisplayFrame(ctx context.Context, output, frame int) (*domain.Frame, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, domain.ErrSessionClosed
	}
	s.mu.Unlock()

	key := domain.FrameKey{Output: output, Frame: frame}
	handle, err := s.coord.Request(ctx, key, ports.PriorityForeground)
	if err != nil {
		return nil, err
	}

	s.prefetcher.Retarget(ctx, key, prefetch.DirectionNone, prefetch.ModeScrub)

	res := handle.Await(ctx)
	if res.Err != nil {
		// Covers both a delivered backend error and a context cancellation;
		// in the latter case Detach withdraws interest and Release returns
		// the delivery pin if the result raced the cancel.
		handle.Detach()
		handle.Release()
		return nil, res.Err
	}

	s.mu.Lock()
	prev := s.current
	s.current = handle
	s.last = key
	s.hasLast = true
	s.mu.Unlock()
	if prev != nil {
		prev.Release()
	}

	s.clock.Seek(output, frame)
	return res.Frame, nil
}

// SeekBy displays the frame n positions away from the current one, clamped
// to the output's bounds. Negative n steps backward.
func (s *Session) SeekBy(ctx context.Context, n int) (*domain.Frame, error) {
	pos := s.clock.Position()
	length := s.coord.OutputLength(pos.Output)
	if length <= 0 {
		return nil, zerr.With(domain.ErrInvalidKey, "output", pos.Output)
	}
	target := min(max(pos.Frame+n, 0), length-1)
	return s.DisplayFrame(ctx, pos.Output, target)
}

// SwitchOutput displays the current frame number on another output, clamped
// to that output's length. Mirrors flipping between video nodes at the same
// timestamp.
func (s *Session) SwitchOutput(ctx context.Context, output int) (*domain.Frame, error) {
	pos := s.clock.Position()
	length := s.coord.OutputLength(output)
	if length <= 0 {
		return nil, zerr.With(domain.ErrInvalidKey, "output", output)
	}
	return s.DisplayFrame(ctx, output, min(pos.Frame, length-1))
}

// Play starts playback from the current position.
func (s *Session) Play(ctx context.Context) {
	s.clock.Play(ctx)
}

// Pause pauses playback, keeping the in-flight frame computing in the
// background.
func (s *Session) Pause() {
	s.clock.Pause()
}

// Stop stops playback and releases the display pin.
func (s *Session) Stop() {
	s.clock.Stop()
	s.mu.Lock()
	prev := s.current
	s.current = nil
	s.mu.Unlock()
	if prev != nil {
		prev.Release()
	}
}

// TogglePlay starts playback if stopped or paused, pauses it otherwise.
func (s *Session) TogglePlay(ctx context.Context) {
	if s.clock.State() == playback.StatePlaying {
		s.clock.Pause()
		return
	}
	s.clock.Play(ctx)
}

// SetRate changes the playback frame rate.
func (s *Session) SetRate(fps float64) {
	s.clock.SetRate(fps)
}

// Position returns the current playhead key.
func (s *Session) Position() domain.FrameKey {
	return s.clock.Position()
}

// State returns the playback state.
func (s *Session) State() playback.State {
	return s.clock.State()
}

// Reload rebuilds the session after the underlying script changed: playback
// stops, all cached and pending frames are discarded, and the previously
// displayed position is rendered again against the new graph.
func (s *Session) Reload(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrSessionClosed
	}
	last, hasLast := s.last, s.hasLast
	s.mu.Unlock()

	s.Stop()
	s.prefetcher.Reset()
	if err := s.coord.Reload(); err != nil {
		return zerr.Wrap(err, "reloading rendering graph")
	}
	s.logger.Info("session reloaded", "outputs", s.coord.OutputCount())

	if !hasLast {
		return nil
	}

	// The old position may be out of range on the new graph.
	length := s.coord.OutputLength(last.Output)
	if last.Output >= s.coord.OutputCount() || length <= 0 {
		last = domain.FrameKey{}
		length = s.coord.OutputLength(0)
		if length <= 0 {
			return nil
		}
	}
	if _, err := s.DisplayFrame(ctx, last.Output, min(last.Frame, length-1)); err != nil {
		return zerr.Wrap(err, "redisplaying frame after reload")
	}
	return nil
}

// CacheStats returns a snapshot of frame cache occupancy.
func (s *Session) CacheStats() domain.CacheStats {
	return s.coord.CacheStats()
}

// PlaybackStats returns playback health counters.
func (s *Session) PlaybackStats() domain.PlaybackStats {
	return s.clock.Stats()
}

// CoordinatorStats returns request counters.
func (s *Session) CoordinatorStats() domain.CoordinatorStats {
	return s.coord.Stats()
}

// Close stops playback, withdraws all prefetch interest and shuts the
// coordinator down. The session is unusable afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.Stop()
	s.prefetcher.Reset()
	s.coord.Close()
}
