package coordinator

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/reel/internal/adapters/config" //nolint:depguard // Wired in engine wiring
	"go.trai.ch/reel/internal/adapters/logger" //nolint:depguard // Wired in engine wiring
	"go.trai.ch/reel/internal/adapters/synth"  //nolint:depguard // Wired in engine wiring
	"go.trai.ch/reel/internal/core/domain"
	"go.trai.ch/reel/internal/core/ports"
	"go.trai.ch/reel/internal/engine/cache"
)

// NodeID is the unique identifier for the coordinator Graft node.
const NodeID graft.ID = "engine.coordinator"

func init() {
	graft.Register(graft.Node[*Coordinator]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			synth.NodeID,
			cache.NodeID,
			logger.NodeID,
			config.NodeID,
		},
		Run: func(ctx context.Context) (*Coordinator, error) {
			backend, err := graft.Dep[ports.Backend](ctx)
			if err != nil {
				return nil, err
			}

			frameCache, err := graft.Dep[*cache.Cache](ctx)
			if err != nil {
				return nil, err
			}

			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}

			settings, err := graft.Dep[*domain.Settings](ctx)
			if err != nil {
				return nil, err
			}

			return New(backend, frameCache, log, settings.WatchdogThreshold)
		},
	})
}
