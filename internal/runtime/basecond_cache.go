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
	"context"
	"log/slog"
	goruntime "runtime"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	roaring "github.com/RoaringBitmap/roaring/v2"
	"github.com/dgraph-io/ristretto/v2"

	"github.com/heliosrules/helios/internal/model"
	"github.com/heliosrules/helios/internal/predicate"
	"github.com/heliosrules/helios/internal/telemetry"
)

// CacheTuning holds the base-condition cache's adaptive-resize
// watermarks. Defaults are also exposed via internal/runtime/tuning.yaml
// for operators who want to override them without a code change.
type CacheTuning struct {
	Interval      time.Duration
	LowWatermark  float64
	HighWatermark float64
	MinCapacity   int64
	MaxCapacity   int64
}

// DefaultCacheTuning returns the stock tuning: a 30s adjustment
// interval, grow below 70% hit rate, shrink above 95%.
func DefaultCacheTuning() CacheTuning {
	return CacheTuning{
		Interval:      30 * time.Second,
		LowWatermark:  0.70,
		HighWatermark: 0.95,
		MinCapacity:   1 << 10,
		MaxCapacity:   1 << 20,
	}
}

// BaseConditionCache memoizes the base-condition pre-filter's output
// bitmap by a fingerprint of the static predicate set and the event
// attribute values that actually feed it. Get is lock-free
// (ristretto's read path); Put is a short critical section internal to
// ristretto. Resize swaps the whole inner cache behind an atomic
// pointer so no reader ever observes a torn map.
type BaseConditionCache struct {
	inner atomic.Pointer[ristretto.Cache[string, *roaring.Bitmap]]
	cap   atomic.Int64

	tuning CacheTuning
	logger *slog.Logger

	hits   atomic.Int64
	misses atomic.Int64

	cancel context.CancelFunc
	done   chan struct{}
}

// NewBaseConditionCache creates a cache with the given tuning and an
// initial capacity of tuning.MinCapacity*8 (a modest working-set guess);
// the adaptive loop grows or shrinks it from there.
func NewBaseConditionCache(tuning CacheTuning, logger *slog.Logger) (*BaseConditionCache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &BaseConditionCache{tuning: tuning, logger: logger}
	initial := tuning.MinCapacity * 8
	if initial > tuning.MaxCapacity {
		initial = tuning.MaxCapacity
	}
	if err := c.resizeTo(initial); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *BaseConditionCache) resizeTo(capacity int64) error {
	cache, err := ristretto.NewCache(&ristretto.Config[string, *roaring.Bitmap]{
		NumCounters: capacity * 10,
		MaxCost:     capacity,
		BufferItems: 64,
	})
	if err != nil {
		return err
	}
	c.inner.Store(cache)
	c.cap.Store(capacity)
	c.hits.Store(0)
	c.misses.Store(0)
	return nil
}

// Get returns the cached candidate bitmap for key, if present.
func (c *BaseConditionCache) Get(key string) (*roaring.Bitmap, bool) {
	bm, ok := c.inner.Load().Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	telemetry.RecordCacheLookup(ok)
	return bm, ok
}

// Put stores bitmap under key. Concurrent misses on the same key may
// each compute and store independently; the last writer wins. Base-set
// evaluation is cheap enough that compute-once coordination would cost
// more latency than the duplicate work it saves.
func (c *BaseConditionCache) Put(key string, bitmap *roaring.Bitmap) {
	c.inner.Load().SetWithTTL(key, bitmap, 1, 10*time.Minute)
}

// InvalidateAll drops every cached entry. Called on model replacement:
// a cached bitmap holds combination ids, which are only meaningful
// relative to the model that assigned them.
func (c *BaseConditionCache) InvalidateAll() {
	c.inner.Load().Clear()
}

// HitRate returns the observed hit rate since the cache (or its last
// resize) was created.
func (c *BaseConditionCache) HitRate() float64 {
	hits, misses := c.hits.Load(), c.misses.Load()
	total := hits + misses
	if total == 0 {
		return 1
	}
	return float64(hits) / float64(total)
}

// StartTuning launches the background watermark-driven resize loop,
// stopped by Close. Safe to call at most once per cache.
func (c *BaseConditionCache) StartTuning() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.tuneLoop(ctx)
}

// Close stops the tuning loop, if running, and releases the cache.
func (c *BaseConditionCache) Close() {
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}
	c.inner.Load().Close()
}

func (c *BaseConditionCache) tuneLoop(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.tuning.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tuneOnce()
		}
	}
}

func (c *BaseConditionCache) tuneOnce() {
	rate := c.HitRate()
	cap := c.cap.Load()
	lowMemoryPressure := !highMemoryPressure()

	switch {
	case rate < c.tuning.LowWatermark && lowMemoryPressure:
		next := cap * 2
		if next > c.tuning.MaxCapacity {
			next = c.tuning.MaxCapacity
		}
		if next != cap {
			if err := c.resizeTo(next); err != nil {
				c.logger.Warn("base condition cache resize failed", slog.String("direction", "grow"), slog.Any("error", err))
				return
			}
			c.logger.Info("base condition cache grown", slog.Int64("capacity", next), slog.Float64("hit_rate", rate))
		}
	case rate > c.tuning.HighWatermark && !lowMemoryPressure:
		next := cap / 2
		if next < c.tuning.MinCapacity {
			next = c.tuning.MinCapacity
		}
		if next != cap {
			if err := c.resizeTo(next); err != nil {
				c.logger.Warn("base condition cache resize failed", slog.String("direction", "shrink"), slog.Any("error", err))
				return
			}
			c.logger.Info("base condition cache shrunk", slog.Int64("capacity", next), slog.Float64("hit_rate", rate))
		}
	}
}

// highMemoryPressure is a coarse process-memory signal: true once the
// Go heap has grown past 75% of the runtime's next GC target. Memory
// pressure is an input to the resize decision, not a precisely
// specified algorithm, so this stays intentionally simple.
func highMemoryPressure() bool {
	var stats goruntime.MemStats
	goruntime.ReadMemStats(&stats)
	if stats.NextGC == 0 {
		return false
	}
	return float64(stats.HeapAlloc) > 0.75*float64(stats.NextGC)
}

// Fingerprint builds the base-condition cache key for one event: the
// model's epoch, then the sorted field ids m.BaseConditionFields
// reference, each paired with the event's normalized value for that
// field (or a sentinel if absent). Semantically equivalent events
// (same values on exactly the touched fields) always produce the same
// key; two different models never share one.
func Fingerprint(m *model.EngineModel, encoded *EncodedEvent) string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(m.Epoch, 10))
	b.WriteByte('#')
	for i, fid := range m.BaseConditionFields {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(strconv.Itoa(int(fid)))
		b.WriteByte(':')
		v, ok := encoded.Lookup(fid)
		if !ok {
			b.WriteString("\x00MISSING")
			continue
		}
		writeValueFingerprint(&b, v)
	}
	return b.String()
}

func writeValueFingerprint(b *strings.Builder, v predicate.Value) {
	switch v.Kind {
	case predicate.KindString:
		b.WriteString(v.Str)
	case predicate.KindNumber:
		b.WriteString(strconv.FormatFloat(v.Num, 'g', -1, 64))
	case predicate.KindBool:
		b.WriteString(strconv.FormatBool(v.Bool))
	default:
		b.WriteString("\x00NULL")
	}
}

// Prefilter narrows the candidate set before the counter pass: starting
// from "all combinations eligible", clear each BaseConditionSet's
// covered combinations when any of its static predicates fails against
// encoded.
// The result is cached under Fingerprint(m, encoded) so a repeated
// event (or a distinct event touching the same base-condition fields
// with the same values) hits the cache.
func Prefilter(m *model.EngineModel, encoded *EncodedEvent, cache *BaseConditionCache) *roaring.Bitmap {
	if len(m.BaseConditionSets) == 0 {
		return nil
	}

	key := Fingerprint(m, encoded)
	if cache != nil {
		if bm, ok := cache.Get(key); ok {
			return bm
		}
	}

	eligible := roaring.New()
	eligible.AddRange(0, uint64(m.CombinationCount()))

	for _, set := range m.BaseConditionSets {
		if !staticSetHolds(m, set.PredicateIDs, encoded) {
			eligible.AndNot(set.Combinations)
		}
	}

	if cache != nil {
		cache.Put(key, eligible)
	}
	return eligible
}

func staticSetHolds(m *model.EngineModel, ids []predicate.ID, encoded *EncodedEvent) bool {
	for _, pid := range ids {
		p := m.Preds.Get(pid)
		v, ok := encoded.Lookup(p.FieldID)
		if !ok {
			return false
		}
		if !predicate.Evaluate(p, v, m.Values) {
			return false
		}
	}
	return true
}
