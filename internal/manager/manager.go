// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package manager implements lock-free model publication: a Manager
// holds the one live EngineModel a running Evaluator reads, and swaps
// it for a freshly compiled one without ever blocking a reader.
package manager

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/heliosrules/helios/internal/model"
	"github.com/heliosrules/helios/internal/runtime"
)

// Manager owns the single live *model.EngineModel a running engine
// evaluates against. GetModel is lock-free (an atomic pointer load);
// Install serializes writers with a mutex but never blocks a concurrent
// GetModel call.
type Manager struct {
	current atomic.Pointer[model.EngineModel]
	cache   *runtime.BaseConditionCache

	installMu sync.Mutex
	logger    *slog.Logger
}

// New creates a Manager publishing m as the initial model. cache may be
// nil to run without the base-condition pre-filter cache; when non-nil,
// every Install invalidates it, since a stale cache entry keyed by a
// predicate-set fingerprint could otherwise answer with combination ids
// that belong to the retired model.
func New(m *model.EngineModel, cache *runtime.BaseConditionCache, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	mgr := &Manager{cache: cache, logger: logger}
	mgr.current.Store(m)
	return mgr
}

// GetModel returns the currently published model. Safe for concurrent
// use by any number of goroutines and never blocks on a concurrent
// Install.
func (mgr *Manager) GetModel() *model.EngineModel {
	return mgr.current.Load()
}

// Install atomically publishes next as the new live model and
// invalidates the base-condition cache. It is safe to call concurrently
// with itself; installs are serialized so two racing Installs cannot
// interleave their cache invalidation with the other's publish, but
// GetModel callers are never made to wait on that serialization.
//
// next must be non-nil and fully built — callers are expected to have
// already run the compiler to completion and checked its error before
// calling Install, so a compile failure leaves the prior model intact;
// a nil model is rejected rather than silently adopted.
func (mgr *Manager) Install(next *model.EngineModel) error {
	if next == nil {
		return fmt.Errorf("manager: cannot install a nil model")
	}

	mgr.installMu.Lock()
	defer mgr.installMu.Unlock()

	mgr.current.Store(next)
	if mgr.cache != nil {
		mgr.cache.InvalidateAll()
	}
	mgr.logger.Info("engine model installed",
		slog.Int("combinations", next.CombinationCount()),
		slog.Int("predicates", next.PredicateCount()))
	return nil
}

// Close releases the base-condition cache, stopping its adaptive-resize
// tuning loop if one was started. Safe to call once a Manager is no
// longer being installed into or read from.
func (mgr *Manager) Close() {
	if mgr.cache != nil {
		mgr.cache.Close()
	}
}
