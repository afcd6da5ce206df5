// Package domain contains the core types of the preview engine.
package domain

import (
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// FrameKey identifies exactly one cacheable frame: a frame number within a
// numbered output of the rendering graph. Keys are immutable values and are
// never reused for different frame content within a graph generation.
type FrameKey struct {
	Output int
	Frame  int
}

// Valid reports whether both components are non-negative. Range checks against
// a concrete graph are the coordinator's job; Valid only rejects keys that can
// never be legal.
func (k FrameKey) Valid() bool {
	return k.Output >= 0 && k.Frame >= 0
}

// Less orders keys by (Output, Frame). The total order makes eviction
// tie-breaking deterministic.
func (k FrameKey) Less(other FrameKey) bool {
	if k.Output != other.Output {
		return k.Output < other.Output
	}
	return k.Frame < other.Frame
}

// String returns the key in "output:frame" form.
func (k FrameKey) String() string {
	return fmt.Sprintf("%d:%d", k.Output, k.Frame)
}

// frameOverhead approximates the fixed per-frame bookkeeping cost charged to
// the cache on top of plane data.
const frameOverhead = 256

// Frame is an opaque decoded frame as produced by the rendering backend:
// plane data plus a metadata map. Frames are immutable once constructed;
// consumers that need to mutate pixel data must copy first.
type Frame struct {
	Key      FrameKey
	Planes   [][]byte
	Metadata map[string]string

	checksumOnce sync.Once
	checksum     uint64
}

// NewFrame constructs a frame for the given key. The planes and metadata are
// taken over by the frame and must not be written to afterwards.
func NewFrame(key FrameKey, planes [][]byte, metadata map[string]string) *Frame {
	return &Frame{
		Key:      key,
		Planes:   planes,
		Metadata: metadata,
	}
}

// SizeBytes returns the approximate memory footprint used for cache
// accounting: the sum of plane lengths plus a fixed overhead.
func (f *Frame) SizeBytes() int64 {
	size := int64(frameOverhead)
	for _, p := range f.Planes {
		size += int64(len(p))
	}
	return size
}

// Checksum returns an xxhash digest over the plane data. It is computed
// lazily on first use and memoized; frames are immutable so the digest never
// changes. Used for diagnostics and benchmark verification, not for cache
// identity.
func (f *Frame) Checksum() uint64 {
	f.checksumOnce.Do(func() {
		d := xxhash.New()
		for _, p := range f.Planes {
			_, _ = d.Write(p)
		}
		f.checksum = d.Sum64()
	})
	return f.checksum
}
