// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dictionary

import "strings"

// CanonicalizeValue normalizes a raw attribute value string for value-
// dictionary interning: upper-case only. Unlike field names, '-' is
// left untouched, since values are free-form data, not identifiers.
func CanonicalizeValue(s string) string {
	return strings.ToUpper(s)
}

// FieldDictionary interns attribute field names (nested paths already
// joined with '.' by the caller). Kept as a distinct type from
// ValueDictionary so the compiler and evaluator can never accidentally
// cross-encode a field id as a value id or vice versa.
type FieldDictionary struct {
	*Dictionary
}

// NewFieldDictionary creates an empty FieldDictionary.
func NewFieldDictionary() *FieldDictionary {
	return &FieldDictionary{Dictionary: New()}
}

// EncodeField interns a full, dot-joined field path.
func (f *FieldDictionary) EncodeField(path string) ID {
	return f.Dictionary.Encode(CanonicalizeField(path))
}

// LookupField is a pure lookup (never inserts), used by the event encoder
// which must drop unknown keys rather than grow the dictionary at
// runtime.
func (f *FieldDictionary) LookupField(path string) ID {
	return f.Dictionary.GetID(CanonicalizeField(path))
}

// ValueDictionary interns attribute values used in EQUAL_TO /
// (post-expansion) IS_ANY_OF predicates.
type ValueDictionary struct {
	*Dictionary
}

// NewValueDictionary creates an empty ValueDictionary.
func NewValueDictionary() *ValueDictionary {
	return &ValueDictionary{Dictionary: New()}
}

// EncodeValue interns an already-normalized (upper-cased) attribute
// value. Callers that hold a raw value should normalize it with
// CanonicalizeValue first (or via predicate.StringValue, which does the
// same transform) so lookups at evaluation time agree with ids assigned
// at compile time.
func (v *ValueDictionary) EncodeValue(normalized string) ID {
	return v.Dictionary.Encode(normalized)
}

// LookupValue is a pure lookup (never inserts) over an already-normalized
// value string.
func (v *ValueDictionary) LookupValue(normalized string) ID {
	return v.Dictionary.GetID(normalized)
}
