// Package synth implements a deterministic synthetic rendering backend.
//
// It stands in for a real script-driven renderer: frames are computed
// asynchronously with configurable latency and failure injection, and the
// pixel payload of any (output, frame) pair is a pure function of its key, so
// benchmark runs and tests are reproducible.
package synth

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.trai.ch/reel/internal/core/domain"
	"go.trai.ch/reel/internal/core/ports"
	"go.trai.ch/zerr"
)

// Options configures the synthetic graph.
type Options struct {
	// Outputs holds the frame count of each output.
	Outputs []int

	// FrameBytes is the plane payload size per frame.
	FrameBytes int

	// Latency is the base computation time per frame.
	Latency time.Duration

	// Jitter adds a key-derived, deterministic amount in [0, Jitter) on top
	// of Latency.
	Jitter time.Duration

	// FailEvery makes every Nth frame of every output fail. Zero disables
	// failure injection.
	FailEvery int
}

// DefaultOptions returns a small two-output graph with mild latency.
func DefaultOptions() Options {
	return Options{
		Outputs:    []int{1000, 1000},
		FrameBytes: 64 << 10,
		Latency:    5 * time.Millisecond,
		Jitter:     5 * time.Millisecond,
	}
}

// Backend implements ports.Backend over a synthetic graph.
type Backend struct {
	opts Options
}

// New creates a synthetic backend.
func New(opts Options) *Backend {
	if opts.FrameBytes <= 0 {
		opts.FrameBytes = 64 << 10
	}
	return &Backend{opts: opts}
}

// OutputCount implements ports.Backend.
func (b *Backend) OutputCount() int {
	return len(b.opts.Outputs)
}

// OutputLength implements ports.Backend.
func (b *Backend) OutputLength(output int) (int, error) {
	if output < 0 || output >= len(b.opts.Outputs) {
		return 0, zerr.With(domain.ErrInvalidKey, "output", output)
	}
	return b.opts.Outputs[output], nil
}

// Submit implements ports.Backend. The computation runs on its own goroutine
// and always completes, whether or not anyone still wants the result.
func (b *Backend) Submit(_ context.Context, key domain.FrameKey, _ ports.Priority) <-chan ports.RenderResult {
	ch := make(chan ports.RenderResult, 1)
	go func() {
		defer close(ch)

		if d := b.computeTime(key); d > 0 {
			time.Sleep(d)
		}

		if b.opts.FailEvery > 0 && key.Frame%b.opts.FailEvery == b.opts.FailEvery-1 {
			ch <- ports.RenderResult{Err: zerr.With(zerr.New("injected render failure"), "key", key.String())}
			return
		}
		ch <- ports.RenderResult{Frame: b.render(key)}
	}()
	return ch
}

// computeTime derives a deterministic per-key latency.
func (b *Backend) computeTime(key domain.FrameKey) time.Duration {
	d := b.opts.Latency
	if b.opts.Jitter > 0 {
		d += time.Duration(keySeed(key) % uint64(b.opts.Jitter))
	}
	return d
}

// render produces the frame payload: a plane whose bytes are a keyed xxhash
// stream, identical for every render of the same key.
func (b *Backend) render(key domain.FrameKey) *domain.Frame {
	plane := make([]byte, b.opts.FrameBytes)
	seed := keySeed(key)
	var block [8]byte
	for i := 0; i < len(plane); i += 8 {
		binary.LittleEndian.PutUint64(block[:], seed)
		copy(plane[i:], block[:])
		seed = xxhash.Sum64(block[:])
	}
	return domain.NewFrame(key, [][]byte{plane}, map[string]string{
		"renderer": "synth",
		"key":      key.String(),
	})
}

// keySeed hashes a frame key into the seed for its payload and latency.
func keySeed(key domain.FrameKey) uint64 {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], uint64(key.Output))
	binary.LittleEndian.PutUint64(buf[8:], uint64(key.Frame))
	return xxhash.Sum64(buf[:])
}
