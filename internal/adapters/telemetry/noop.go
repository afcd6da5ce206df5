package telemetry

import (
	"context"

	"go.trai.ch/reel/internal/core/ports"
)

// Noop is a telemetry implementation that records nothing. Used when a
// command runs without progress reporting.
type Noop struct{}

// NewNoop creates a no-op telemetry recorder.
func NewNoop() ports.Telemetry {
	return Noop{}
}

// Record returns ctx unchanged and a vertex that discards everything.
func (Noop) Record(ctx context.Context, _ string) (context.Context, ports.Vertex) {
	return ctx, noopVertex{}
}

// Close is a no-op.
func (Noop) Close() error { return nil }

type noopVertex struct{}

func (noopVertex) Log(string)     {}
func (noopVertex) Complete(error) {}
func (noopVertex) Cached()        {}
