// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dictionary implements bidirectional string<->integer interning
// for rule field names and attribute values.
//
// A Dictionary is append-only: ids are assigned in insertion order and
// never reused. It is single-threaded during compilation and read-only
// (race-free) once the owning EngineModel has been published.
package dictionary

import (
	"strings"
	"sync"
)

// ID is a dense, non-negative identifier assigned to an interned string.
// NONE is returned by lookups that fail to resolve a string.
type ID int32

// NONE is the sentinel returned by GetID when a string is not present.
const NONE ID = -1

// Dictionary is a bidirectional string<->ID mapping.
//
// Thread Safety:
//
//	During compilation a Dictionary is used single-threaded by the
//	compiler goroutine. After the owning EngineModel is published,
//	callers must treat it as read-only; Encode must not be called
//	concurrently with other Encode calls once the model is shared,
//	but GetID and Decode are safe for unsynchronized concurrent reads
//	because the backing slice/map are never mutated post-freeze.
//	A mutex guards the (rare, compile-time-only) insert path so that
//	Dictionary is also safe to use from tests that build it
//	concurrently.
type Dictionary struct {
	mu      sync.RWMutex
	byID    []string
	byValue map[string]ID
	frozen  bool
}

// New creates an empty Dictionary.
func New() *Dictionary {
	return &Dictionary{
		byValue: make(map[string]ID),
	}
}

// Canonicalize normalizes a raw field name into its dictionary key form:
// upper-cased ASCII, '-' replaced with '_'. It is field-name specific;
// ValueDictionary keys are canonicalized separately (upper-case only,
// see CanonicalizeValue) — attribute values are free-form data, so dash
// folding applies only to identifiers.
func Canonicalize(s string) string {
	s = strings.ToUpper(s)
	s = strings.ReplaceAll(s, "-", "_")
	return s
}

// Encode returns the id for the already-canonicalized key, inserting it
// if absent. Encode is the only mutating operation and must not be called
// once the dictionary has been shared across goroutines without external
// synchronization beyond the Dictionary's own mutex (which only protects
// the map/slice, not the higher-level "compile finished" invariant).
func (d *Dictionary) Encode(key string) ID {
	d.mu.RLock()
	if id, ok := d.byValue[key]; ok {
		d.mu.RUnlock()
		return id
	}
	d.mu.RUnlock()

	d.mu.Lock()
	defer d.mu.Unlock()
	if id, ok := d.byValue[key]; ok {
		return id
	}
	id := ID(len(d.byID))
	d.byID = append(d.byID, key)
	d.byValue[key] = id
	return id
}

// GetID returns the id for the already-canonicalized key without
// inserting. Returns NONE if key has never been encoded.
func (d *Dictionary) GetID(key string) ID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if id, ok := d.byValue[key]; ok {
		return id
	}
	return NONE
}

// Decode returns the canonical string for id. Panics if id is out of
// range, which indicates a caller bug (an id not produced by this
// Dictionary) rather than a recoverable condition.
func (d *Dictionary) Decode(id ID) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if id < 0 || int(id) >= len(d.byID) {
		panic("dictionary: Decode called with unknown id")
	}
	return d.byID[id]
}

// Len returns the number of distinct interned strings.
func (d *Dictionary) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byID)
}

// Freeze marks the dictionary read-only. It is advisory: Encode remains
// callable (so tests can still exercise failure paths) but compiled
// models should not call Encode on a frozen dictionary in production use.
func (d *Dictionary) Freeze() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frozen = true
}

// Frozen reports whether Freeze has been called.
func (d *Dictionary) Frozen() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.frozen
}

// CanonicalizeField canonicalizes a full, already '.'-joined attribute
// path (e.g. "user.billing-address" -> "USER.BILLING_ADDRESS"). Each
// path segment is canonicalized independently so that a literal '.'
// inside a segment (which cannot occur from JSON keys in practice) does
// not collide with the path separator.
func CanonicalizeField(path string) string {
	if !strings.Contains(path, ".") {
		return Canonicalize(path)
	}
	parts := strings.Split(path, ".")
	for i, p := range parts {
		parts[i] = Canonicalize(p)
	}
	return strings.Join(parts, ".")
}
