package domain

import "time"

// Settings holds the tunable knobs of the preview engine. Values come from
// the optional reel.yaml settings file; zero fields are filled with defaults.
type Settings struct {
	// CacheCapacityBytes bounds the frame cache.
	CacheCapacityBytes int64

	// PlayWindow is the number of frames prefetched ahead of the playhead
	// while playing.
	PlayWindow int

	// ScrubRadius is the symmetric prefetch radius around recent scrub
	// destinations.
	ScrubRadius int

	// PlaybackFPS is the default playback rate.
	PlaybackFPS float64

	// WatchdogThreshold is how long a backend submission may stay pending
	// before the coordinator logs it as overdue. Zero disables the watchdog.
	// Overdue requests are only reported, never abandoned.
	WatchdogThreshold time.Duration

	// BenchFrames caps the number of frames rendered per output by the bench
	// command. Zero means the whole output.
	BenchFrames int
}

// DefaultSettings returns the settings used when no configuration file is
// present.
func DefaultSettings() *Settings {
	return &Settings{
		CacheCapacityBytes: 512 << 20,
		PlayWindow:         24,
		ScrubRadius:        4,
		PlaybackFPS:        24,
		WatchdogThreshold:  30 * time.Second,
	}
}
