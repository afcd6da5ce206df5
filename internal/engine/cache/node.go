package cache

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/reel/internal/adapters/config" //nolint:depguard // Wired in engine wiring
	"go.trai.ch/reel/internal/core/domain"
)

// NodeID is the unique identifier for the frame cache Graft node.
const NodeID graft.ID = "engine.cache"

func init() {
	graft.Register(graft.Node[*Cache]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			config.NodeID,
		},
		Run: func(ctx context.Context) (*Cache, error) {
			settings, err := graft.Dep[*domain.Settings](ctx)
			if err != nil {
				return nil, err
			}
			return New(settings.CacheCapacityBytes)
		},
	})
}
