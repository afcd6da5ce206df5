// Package config provides the settings loader for reel.
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.trai.ch/reel/internal/core/domain"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

// Filename is the settings file looked up in the working directory.
const Filename = "reel.yaml"

// LoadDir reads reel.yaml from the given directory. A missing file is not an
// error; defaults apply.
func LoadDir(cwd string) (*domain.Settings, error) {
	path := filepath.Join(cwd, Filename)
	settings, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.DefaultSettings(), nil
	}
	return settings, err
}

// Load reads a settings file from the given path.
func Load(path string) (*domain.Settings, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is provided by user
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return nil, zerr.Wrap(err, "failed to read settings file")
	}

	var file Reelfile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, zerr.Wrap(err, "failed to parse settings file")
	}

	return resolve(&file)
}

// resolve maps the DTO onto domain settings, filling defaults and rejecting
// values the engine cannot run with.
func resolve(file *Reelfile) (*domain.Settings, error) {
	settings := domain.DefaultSettings()

	if file.Cache.CapacityMB != 0 {
		if file.Cache.CapacityMB < 0 {
			return nil, zerr.With(domain.ErrCapacityConfig, "capacityMB", file.Cache.CapacityMB)
		}
		settings.CacheCapacityBytes = file.Cache.CapacityMB << 20
	}
	if file.Prefetch.PlayWindow != 0 {
		if file.Prefetch.PlayWindow < 0 {
			return nil, zerr.With(zerr.New("playWindow must be positive"), "playWindow", file.Prefetch.PlayWindow)
		}
		settings.PlayWindow = file.Prefetch.PlayWindow
	}
	if file.Prefetch.ScrubRadius != 0 {
		if file.Prefetch.ScrubRadius < 0 {
			return nil, zerr.With(zerr.New("scrubRadius must be positive"), "scrubRadius", file.Prefetch.ScrubRadius)
		}
		settings.ScrubRadius = file.Prefetch.ScrubRadius
	}
	if file.Playback.FPS != 0 {
		if file.Playback.FPS < 0 {
			return nil, zerr.With(zerr.New("fps must be positive"), "fps", file.Playback.FPS)
		}
		settings.PlaybackFPS = file.Playback.FPS
	}
	if file.Watchdog.Threshold != "" {
		threshold, err := time.ParseDuration(file.Watchdog.Threshold)
		if err != nil {
			return nil, zerr.Wrap(err, "failed to parse watchdog threshold")
		}
		if threshold < 0 {
			return nil, zerr.With(zerr.New("watchdog threshold must not be negative"), "threshold", file.Watchdog.Threshold)
		}
		settings.WatchdogThreshold = threshold
	}
	if file.Bench.Frames != 0 {
		if file.Bench.Frames < 0 {
			return nil, zerr.With(zerr.New("bench frames must be positive"), "frames", file.Bench.Frames)
		}
		settings.BenchFrames = file.Bench.Frames
	}

	return settings, nil
}
