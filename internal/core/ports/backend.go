// Package ports defines the core interfaces of the preview engine.
package ports

import (
	"context"

	"go.trai.ch/reel/internal/core/domain"
)

// Priority is a numeric urgency hint forwarded to the backend with each
// submission. Higher values are more urgent. The coordinator itself issues
// submissions in request order; the hint only matters to backends that
// consult it.
type Priority int

const (
	// PriorityBackground marks speculative prefetch work.
	PriorityBackground Priority = 0
	// PriorityForeground marks frames the user is looking at or about to
	// look at.
	PriorityForeground Priority = 100
)

// RenderResult carries the terminal outcome of one backend submission:
// exactly one of Frame or Err is set.
type RenderResult struct {
	Frame *domain.Frame
	Err   error
}

// Backend is the rendering engine boundary. Submissions are asynchronous and
// may complete on any goroutine, in any order, including after every consumer
// has lost interest. True cancellation is not guaranteed; callers must accept
// fire-and-forget completions.
//
//go:generate mockgen -source=backend.go -destination=mocks/mock_backend.go -package=mocks
type Backend interface {
	// Submit requests computation of one frame. The returned channel yields
	// exactly one RenderResult and is then closed. The context bounds the
	// submission handshake, not the computation.
	Submit(ctx context.Context, key domain.FrameKey, hint Priority) <-chan RenderResult

	// OutputCount returns the number of outputs in the loaded graph.
	OutputCount() int

	// OutputLength returns the frame count of one output.
	OutputLength(output int) (int, error)
}
