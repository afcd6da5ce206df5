package synth

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/reel/internal/core/ports"
)

// NodeID is the unique identifier for the synthetic backend Graft node.
const NodeID graft.ID = "adapter.synth"

func init() {
	graft.Register(graft.Node[ports.Backend]{
		ID:        NodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.Backend, error) {
			return New(DefaultOptions()), nil
		},
	})
}
