// Package wiring registers all Graft nodes for the application.
package wiring

import (
	// Register adapter nodes.
	_ "go.trai.ch/reel/internal/adapters/config"
	_ "go.trai.ch/reel/internal/adapters/logger"
	_ "go.trai.ch/reel/internal/adapters/synth"
	_ "go.trai.ch/reel/internal/adapters/telemetry"
	_ "go.trai.ch/reel/internal/adapters/watcher"
	// Register app and engine nodes.
	_ "go.trai.ch/reel/internal/app"
	_ "go.trai.ch/reel/internal/engine/cache"
	_ "go.trai.ch/reel/internal/engine/coordinator"
)
