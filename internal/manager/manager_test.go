// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package manager

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heliosrules/helios/internal/model"
	"github.com/heliosrules/helios/internal/runtime"
)

func TestNewPublishesInitialModel(t *testing.T) {
	m1 := model.New()
	mgr := New(m1, nil, nil)
	assert.Same(t, m1, mgr.GetModel())
}

func TestInstallReplacesModel(t *testing.T) {
	m1 := model.New()
	m2 := model.New()
	mgr := New(m1, nil, nil)

	require.NoError(t, mgr.Install(m2))
	assert.Same(t, m2, mgr.GetModel())
}

func TestInstallRejectsNilModel(t *testing.T) {
	mgr := New(model.New(), nil, nil)
	err := mgr.Install(nil)
	assert.Error(t, err)
}

func TestInstallInvalidatesCache(t *testing.T) {
	cache, err := runtime.NewBaseConditionCache(runtime.DefaultCacheTuning(), nil)
	require.NoError(t, err)
	cache.Put("some-key", nil)

	mgr := New(model.New(), cache, nil)
	require.NoError(t, mgr.Install(model.New()))

	_, ok := cache.Get("some-key")
	assert.False(t, ok, "Install must invalidate the base-condition cache")
}

func TestGetModelNeverBlocksDuringInstall(t *testing.T) {
	mgr := New(model.New(), nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = mgr.GetModel()
		}()
		go func() {
			defer wg.Done()
			_ = mgr.Install(model.New())
		}()
	}
	wg.Wait()
	assert.NotNil(t, mgr.GetModel())
}
