// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package model

import (
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/assert"

	"github.com/heliosrules/helios/internal/predicate"
)

func TestNewModelEmpty(t *testing.T) {
	m := New()
	assert.Equal(t, 0, m.CombinationCount())
	assert.NotNil(t, m.InvertedIndex)
	assert.NotNil(t, m.FieldToPredicates)
	assert.NotNil(t, m.FieldMinWeight)
	assert.Empty(t, m.BaseConditionSets)
}

func TestInvertedIndexBitmapMembership(t *testing.T) {
	m := New()
	bm := roaring.New()
	bm.Add(0)
	bm.Add(2)
	m.InvertedIndex[predicate.ID(5)] = bm

	assert.True(t, m.InvertedIndex[predicate.ID(5)].Contains(0))
	assert.True(t, m.InvertedIndex[predicate.ID(5)].Contains(2))
	assert.False(t, m.InvertedIndex[predicate.ID(5)].Contains(1))
}
