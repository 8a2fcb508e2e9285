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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heliosrules/helios/internal/dictionary"
	"github.com/heliosrules/helios/internal/predicate"
)

func testEncoder(t *testing.T) *Encoder {
	t.Helper()
	enc, err := NewEncoder(1 << 10)
	require.NoError(t, err)
	t.Cleanup(enc.Close)
	return enc
}

func TestEncodeFlattensNestedAttributes(t *testing.T) {
	fields := dictionary.NewFieldDictionary()
	userCountry := fields.EncodeField("user.address.country")

	enc := testEncoder(t)
	var dst EncodedEvent
	enc.Encode(Event{
		EventID: "e",
		Attributes: map[string]any{
			"user": map[string]any{
				"address": map[string]any{"country": "us"},
			},
		},
	}, fields, &dst)

	v, ok := dst.Lookup(userCountry)
	require.True(t, ok)
	assert.Equal(t, "US", v.Str)
	assert.Equal(t, "us", v.Original)
}

func TestEncodeDropsUnknownKeys(t *testing.T) {
	fields := dictionary.NewFieldDictionary()
	known := fields.EncodeField("status")

	enc := testEncoder(t)
	var dst EncodedEvent
	enc.Encode(Event{
		EventID:    "e",
		Attributes: map[string]any{"status": "ok", "never_ruled_on": "x"},
	}, fields, &dst)

	assert.Len(t, dst.FieldIDs, 1)
	_, ok := dst.Lookup(known)
	assert.True(t, ok)
	// The unknown key must not have been inserted into the dictionary.
	assert.Equal(t, 1, fields.Len())
}

func TestEncodeScalarKinds(t *testing.T) {
	fields := dictionary.NewFieldDictionary()
	num := fields.EncodeField("amount")
	flag := fields.EncodeField("flag")
	null := fields.EncodeField("maybe")

	enc := testEncoder(t)
	var dst EncodedEvent
	enc.Encode(Event{
		EventID:    "e",
		Attributes: map[string]any{"amount": 42.0, "flag": true, "maybe": nil},
	}, fields, &dst)

	v, _ := dst.Lookup(num)
	assert.Equal(t, predicate.KindNumber, v.Kind)
	assert.Equal(t, 42.0, v.Num)

	v, _ = dst.Lookup(flag)
	assert.Equal(t, predicate.KindBool, v.Kind)
	assert.True(t, v.Bool)

	v, _ = dst.Lookup(null)
	assert.Equal(t, predicate.KindNull, v.Kind)
}

func TestEncodeReusesBuffers(t *testing.T) {
	fields := dictionary.NewFieldDictionary()
	fields.EncodeField("a")
	fields.EncodeField("b")

	enc := testEncoder(t)
	var dst EncodedEvent
	enc.Encode(Event{EventID: "e1", Attributes: map[string]any{"a": "x", "b": "y"}}, fields, &dst)
	require.Len(t, dst.FieldIDs, 2)

	enc.Encode(Event{EventID: "e2", Attributes: map[string]any{"a": "z"}}, fields, &dst)
	assert.Len(t, dst.FieldIDs, 1, "a second Encode must fully replace the first's view")
	assert.Equal(t, "e2", dst.EventID)
}

func TestEncodeNormalizationCacheIsTransparent(t *testing.T) {
	fields := dictionary.NewFieldDictionary()
	status := fields.EncodeField("status")

	enc := testEncoder(t)
	var dst EncodedEvent
	for i := 0; i < 3; i++ {
		enc.Encode(Event{EventID: "e", Attributes: map[string]any{"status": "active"}}, fields, &dst)
		v, ok := dst.Lookup(status)
		require.True(t, ok, "pass %d", i)
		assert.Equal(t, "ACTIVE", v.Str, "pass %d", i)
		assert.Equal(t, "active", v.Original, "pass %d", i)
	}
}
