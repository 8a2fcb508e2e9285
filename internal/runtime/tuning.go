// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package runtime

import (
	_ "embed"
	"fmt"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed tuning.yaml
var defaultTuningYAML []byte

// yamlTuning is the on-disk shape of tuning.yaml; durations are plain
// seconds since yaml.v3 has no native time.Duration support.
type yamlTuning struct {
	IntervalSeconds     float64 `yaml:"interval_seconds"`
	LowWatermark        float64 `yaml:"low_watermark"`
	HighWatermark       float64 `yaml:"high_watermark"`
	MinCapacity         int64   `yaml:"min_capacity"`
	MaxCapacity         int64   `yaml:"max_capacity"`
	DefaultMaxExpansion int     `yaml:"default_max_expansion"`
}

var (
	tuningMu           sync.RWMutex
	tuningLoaded       bool
	cachedCacheTuning  CacheTuning
	cachedMaxExpansion int
	tuningLoadErr      error
)

// GetCacheTuning returns the base-condition cache's adaptive-resize
// tuning, loaded once from the embedded tuning.yaml and cached for
// subsequent calls. Falls back to DefaultCacheTuning if tuning.yaml
// fails to parse, since a malformed tunables file must never prevent
// the engine from starting.
func GetCacheTuning() CacheTuning {
	tuningMu.RLock()
	if tuningLoaded {
		t, err := cachedCacheTuning, tuningLoadErr
		tuningMu.RUnlock()
		if err != nil {
			return DefaultCacheTuning()
		}
		return t
	}
	tuningMu.RUnlock()

	tuningMu.Lock()
	defer tuningMu.Unlock()
	if !tuningLoaded {
		cachedCacheTuning, cachedMaxExpansion, tuningLoadErr = loadTuning(defaultTuningYAML)
		tuningLoaded = true
	}
	if tuningLoadErr != nil {
		return DefaultCacheTuning()
	}
	return cachedCacheTuning
}

// GetDefaultMaxExpansion returns the compiler's default per-rule
// expansion ceiling from the same tunables file, so operators can raise
// or lower it without a code change.
func GetDefaultMaxExpansion() int {
	GetCacheTuning()
	tuningMu.RLock()
	defer tuningMu.RUnlock()
	if tuningLoadErr != nil || cachedMaxExpansion == 0 {
		return 1 << 20
	}
	return cachedMaxExpansion
}

// ResetTuning clears the cached tuning so a test can reload with
// different bytes via loadTuning directly.
func ResetTuning() {
	tuningMu.Lock()
	defer tuningMu.Unlock()
	tuningLoaded = false
	cachedCacheTuning = CacheTuning{}
	cachedMaxExpansion = 0
	tuningLoadErr = nil
}

func loadTuning(data []byte) (CacheTuning, int, error) {
	var y yamlTuning
	if err := yaml.Unmarshal(data, &y); err != nil {
		return CacheTuning{}, 0, fmt.Errorf("runtime: parsing tuning.yaml: %w", err)
	}

	t := DefaultCacheTuning()
	if y.IntervalSeconds > 0 {
		t.Interval = time.Duration(y.IntervalSeconds * float64(time.Second))
	}
	if y.LowWatermark > 0 {
		t.LowWatermark = y.LowWatermark
	}
	if y.HighWatermark > 0 {
		t.HighWatermark = y.HighWatermark
	}
	if y.MinCapacity > 0 {
		t.MinCapacity = y.MinCapacity
	}
	if y.MaxCapacity > 0 {
		t.MaxCapacity = y.MaxCapacity
	}
	if t.MinCapacity > t.MaxCapacity {
		return CacheTuning{}, 0, fmt.Errorf("runtime: tuning.yaml: min_capacity > max_capacity")
	}

	maxExpansion := y.DefaultMaxExpansion
	if maxExpansion <= 0 {
		maxExpansion = 1 << 20
	}
	return t, maxExpansion, nil
}
