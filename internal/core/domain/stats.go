package domain

// CacheStats is a point-in-time snapshot of cache occupancy.
type CacheStats struct {
	// EntryCount is the number of resident frames.
	EntryCount int

	// BytesUsed is the total accounted size of resident frames.
	BytesUsed int64

	// Capacity is the configured byte limit. BytesUsed may exceed Capacity
	// only while every resident entry is pinned.
	Capacity int64

	// PinnedCount is the number of entries with a non-zero pin count.
	PinnedCount int
}

// PlaybackStats is a point-in-time snapshot of playback health.
type PlaybackStats struct {
	// DisplayedFrames counts frames actually shown since the last Play.
	DisplayedFrames uint64

	// Stalls counts ticks that had to wait on an uncached frame.
	Stalls uint64

	// MeasuredFPS is an exponentially decaying average of the achieved
	// display rate. Zero until at least two frames have been displayed.
	MeasuredFPS float64
}

// CoordinatorStats is a point-in-time snapshot of request routing.
type CoordinatorStats struct {
	// PendingCount is the number of in-flight backend submissions.
	PendingCount int

	// Submissions counts backend submissions since construction.
	Submissions uint64

	// Hits counts requests satisfied synchronously from the cache.
	Hits uint64

	// Coalesced counts requests attached to an already-pending submission.
	Coalesced uint64
}
