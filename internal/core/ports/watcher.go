package ports

import "context"

// Watcher observes the loaded script for changes and reports them as reload
// signals. Implementations coalesce bursts of filesystem events; one signal
// may cover several rapid writes.
//
//go:generate mockgen -source=watcher.go -destination=mocks/mock_watcher.go -package=mocks
type Watcher interface {
	// Start begins watching the given script path. The callback runs on the
	// watcher's goroutine after each debounced change burst.
	Start(ctx context.Context, path string, onChange func()) error

	// Stop stops the watcher and releases all resources.
	Stop() error
}
