// Package prefetch computes and maintains the window of frames requested
// ahead of the playhead.
package prefetch

import (
	"context"
	"sync"

	"go.trai.ch/reel/internal/core/domain"
	"go.trai.ch/reel/internal/core/ports"
	"go.trai.ch/reel/internal/engine/coordinator"
)

// Mode describes what the user is currently doing with the playhead.
type Mode int

const (
	// ModeIdle means the playhead is parked. No new prefetch is issued;
	// whatever is already pending stays pending and lands in the cache.
	ModeIdle Mode = iota
	// ModeScrub means the user is dragging the playhead. Scrubbing is bursty
	// and often reverses, so the window is a narrow symmetric band around
	// recent destinations.
	ModeScrub
	// ModePlay means sequential playback. The window extends ahead of the
	// playhead in the playback direction.
	ModePlay
)

// Direction is the playback direction.
type Direction int

const (
	DirectionNone Direction = iota
	DirectionForward
	DirectionBackward
)

// maxScrubDests is how many recent scrub destinations keep a window alive.
const maxScrubDests = 3

// entry is one background request owned by the scheduler. The cancel context
// unblocks the release goroutine when the scheduler detaches.
type entry struct {
	handle *coordinator.Handle
	cancel context.CancelFunc
}

// Scheduler owns the set of in-flight background requests and diffs it
// against the desired window on every playhead change.
type Scheduler struct {
	coord       *coordinator.Coordinator
	playWindow  int
	scrubRadius int

	mu     sync.Mutex
	active map[domain.FrameKey]*entry
	// recent scrub destinations, most recent last, all on the same output.
	recent []domain.FrameKey
	// last playhead output seen, for window reset on output switch.
	lastOutput int
	hasLast    bool
}

// New creates a scheduler issuing requests through coord with the given play
// window size and scrub radius.
func New(coord *coordinator.Coordinator, playWindow, scrubRadius int) *Scheduler {
	return &Scheduler{
		coord:       coord,
		playWindow:  playWindow,
		scrubRadius: scrubRadius,
		active:      make(map[domain.FrameKey]*entry),
	}
}

// Retarget recomputes the desired prefetch window for the new playhead and
// reconciles in-flight requests against it: frames that left the window are
// soft-cancelled, frames that entered it are requested at background priority
// unless already cached. Prefetch never blocks the caller.
func (s *Scheduler) Retarget(ctx context.Context, playhead domain.FrameKey, dir Direction, mode Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Output switch throws away window history from the previous output.
	if s.hasLast && s.lastOutput != playhead.Output {
		s.recent = s.recent[:0]
		s.detachAllLocked()
	}
	s.lastOutput = playhead.Output
	s.hasLast = true

	if mode == ModeIdle {
		return
	}
	if mode == ModeScrub {
		s.recent = append(s.recent, playhead)
		if len(s.recent) > maxScrubDests {
			s.recent = s.recent[len(s.recent)-maxScrubDests:]
		}
	}

	desired := s.desiredWindow(playhead, dir, mode)

	inWindow := make(map[domain.FrameKey]struct{}, len(desired))
	for _, k := range desired {
		inWindow[k] = struct{}{}
	}

	// Leavers: detach interest, keep the computation running (its result is
	// cached on arrival either way).
	for k, e := range s.active {
		if _, ok := inWindow[k]; !ok {
			e.handle.Detach()
			e.cancel()
			delete(s.active, k)
		}
	}

	// Joiners, nearest to the playhead first.
	for _, k := range desired {
		if _, ok := s.active[k]; ok {
			continue
		}
		if s.coord.Cached(k) {
			continue
		}
		s.issueLocked(ctx, k)
	}
}

// issueLocked starts one background request and a goroutine that returns its
// pin the moment the frame lands. The entry's cancel unblocks that goroutine
// if the scheduler loses interest first.
func (s *Scheduler) issueLocked(ctx context.Context, k domain.FrameKey) {
	h, err := s.coord.Request(ctx, k, ports.PriorityBackground)
	if err != nil {
		// Out-of-range keys are clamped before this point; anything else
		// (e.g. closed session) just means no prefetch.
		return
	}
	reqCtx, cancel := context.WithCancel(ctx)
	s.active[k] = &entry{handle: h, cancel: cancel}

	go func() {
		h.Await(reqCtx)
		// Prefetched frames live in the cache unpinned until someone
		// actually displays them. Release also covers the race where the
		// result landed just as interest was cancelled: the pin taken on
		// delivery is returned either way.
		h.Release()
		s.mu.Lock()
		if e, ok := s.active[k]; ok && e.handle == h {
			delete(s.active, k)
		}
		s.mu.Unlock()
	}()
}

// desiredWindow computes the ordered list of keys to prefetch. Windows clamp
// to the output's valid frame range; at clip edges the window truncates
// rather than erroring.
func (s *Scheduler) desiredWindow(playhead domain.FrameKey, dir Direction, mode Mode) []domain.FrameKey {
	length := s.coord.OutputLength(playhead.Output)
	if length == 0 {
		return nil
	}

	switch mode {
	case ModePlay:
		step := 1
		if dir == DirectionBackward {
			step = -1
		}
		keys := make([]domain.FrameKey, 0, s.playWindow)
		for i := 1; i <= s.playWindow; i++ {
			frame := playhead.Frame + i*step
			if frame < 0 || frame >= length {
				break
			}
			keys = append(keys, domain.FrameKey{Output: playhead.Output, Frame: frame})
		}
		return keys

	case ModeScrub:
		seen := make(map[domain.FrameKey]struct{})
		var keys []domain.FrameKey
		// Most recent destination first so its neighborhood wins the issue
		// order.
		for i := len(s.recent) - 1; i >= 0; i-- {
			dest := s.recent[i]
			for offset := 0; offset <= s.scrubRadius; offset++ {
				for _, frame := range []int{dest.Frame + offset, dest.Frame - offset} {
					if frame < 0 || frame >= length {
						continue
					}
					k := domain.FrameKey{Output: playhead.Output, Frame: frame}
					if _, ok := seen[k]; ok {
						continue
					}
					seen[k] = struct{}{}
					keys = append(keys, k)
				}
			}
		}
		return keys

	default:
		return nil
	}
}

// Reset detaches every in-flight background request and clears scrub history.
// Used on reload and when a session closes.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent = s.recent[:0]
	s.detachAllLocked()
}

func (s *Scheduler) detachAllLocked() {
	for k, e := range s.active {
		e.handle.Detach()
		e.cancel()
		delete(s.active, k)
	}
}

// ActiveCount reports the number of in-flight background requests.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}
