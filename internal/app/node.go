package app

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/reel/internal/adapters/config"
	"go.trai.ch/reel/internal/adapters/logger"
	"go.trai.ch/reel/internal/adapters/telemetry"
	"go.trai.ch/reel/internal/adapters/watcher"
	"go.trai.ch/reel/internal/core/domain"
	"go.trai.ch/reel/internal/core/ports"
	"go.trai.ch/reel/internal/engine/coordinator"
)

const (
	// SessionNodeID is the unique identifier for the session Graft node.
	SessionNodeID graft.ID = "app.session"
	// AppNodeID is the unique identifier for the main App Graft node.
	AppNodeID graft.ID = "app.main"
	// ComponentsNodeID is the unique identifier for the components Graft node.
	ComponentsNodeID graft.ID = "app.components"
)

// Components contains the initialized application components needed by the
// CLI layer.
type Components struct {
	App      *App
	Session  *Session
	Logger   ports.Logger
	Settings *domain.Settings
}

func init() {
	graft.Register(graft.Node[*Session]{
		ID:        SessionNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			coordinator.NodeID,
			config.NodeID,
			logger.NodeID,
		},
		Run: func(ctx context.Context) (*Session, error) {
			coord, err := graft.Dep[*coordinator.Coordinator](ctx)
			if err != nil {
				return nil, err
			}
			settings, err := graft.Dep[*domain.Settings](ctx)
			if err != nil {
				return nil, err
			}
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			return NewSession(coord, settings, log, nil), nil
		},
	})

	graft.Register(graft.Node[*App]{
		ID:        AppNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			SessionNodeID,
			coordinator.NodeID,
			config.NodeID,
			logger.NodeID,
			telemetry.NodeID,
			watcher.NodeID,
		},
		Run: func(ctx context.Context) (*App, error) {
			session, err := graft.Dep[*Session](ctx)
			if err != nil {
				return nil, err
			}
			coord, err := graft.Dep[*coordinator.Coordinator](ctx)
			if err != nil {
				return nil, err
			}
			settings, err := graft.Dep[*domain.Settings](ctx)
			if err != nil {
				return nil, err
			}
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			tel, err := graft.Dep[ports.Telemetry](ctx)
			if err != nil {
				return nil, err
			}
			w, err := graft.Dep[ports.Watcher](ctx)
			if err != nil {
				return nil, err
			}
			return New(session, coord, settings, log, tel, w), nil
		},
	})

	graft.Register(graft.Node[*Components]{
		ID:        ComponentsNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			AppNodeID,
			SessionNodeID,
			logger.NodeID,
			config.NodeID,
		},
		Run: func(ctx context.Context) (*Components, error) {
			a, err := graft.Dep[*App](ctx)
			if err != nil {
				return nil, err
			}
			session, err := graft.Dep[*Session](ctx)
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
			return &Components{
				App:      a,
				Session:  session,
				Logger:   log,
				Settings: settings,
			}, nil
		},
	})
}
