package config

// Reelfile represents the structure of the reel.yaml settings file. Every
// section and field is optional; absent values fall back to defaults.
type Reelfile struct {
	Cache    CacheDTO    `yaml:"cache"`
	Prefetch PrefetchDTO `yaml:"prefetch"`
	Playback PlaybackDTO `yaml:"playback"`
	Watchdog WatchdogDTO `yaml:"watchdog"`
	Bench    BenchDTO    `yaml:"bench"`
}

// CacheDTO configures the frame cache.
type CacheDTO struct {
	CapacityMB int64 `yaml:"capacityMB"`
}

// PrefetchDTO configures the prefetch windows.
type PrefetchDTO struct {
	PlayWindow  int `yaml:"playWindow"`
	ScrubRadius int `yaml:"scrubRadius"`
}

// PlaybackDTO configures playback defaults.
type PlaybackDTO struct {
	FPS float64 `yaml:"fps"`
}

// WatchdogDTO configures overdue-request reporting.
type WatchdogDTO struct {
	Threshold string `yaml:"threshold"`
}

// BenchDTO configures the bench command.
type BenchDTO struct {
	Frames int `yaml:"frames"`
}
