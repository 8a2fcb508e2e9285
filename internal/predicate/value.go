// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package predicate

import "github.com/heliosrules/helios/internal/dictionary"

// Kind tags the dynamic type carried by a Value.
type Kind uint8

const (
	KindMissing Kind = iota // attribute absent from the event entirely
	KindNull                // attribute present but JSON null
	KindString
	KindNumber
	KindBool
)

// Value is the normalized, in-memory representation of one event
// attribute, as produced by the event encoder or by rule-operand
// parsing in the schema package. It carries both the normalized
// (upper-cased) and original string forms because EQUAL_TO compares
// against the normalized value dictionary while CONTAINS/REGEX compare
// against the original, pre-normalization text.
type Value struct {
	Kind Kind

	// Str is the upper-cased, normalized string form. Populated only
	// when Kind == KindString.
	Str string

	// Original is the pre-normalization string form. Populated only
	// when Kind == KindString.
	Original string

	Num  float64
	Bool bool
}

// MissingValue is the shared representation of an absent attribute.
var MissingValue = Value{Kind: KindMissing}

// NullValue is the shared representation of a JSON null attribute.
var NullValue = Value{Kind: KindNull}

// StringValue builds a Value from raw text, normalizing it with the
// exact transform the value dictionary interns under ('-' is NOT
// translated to '_' for values, only for field names) — any divergence
// between the two would make an event value miss its own rule operand.
func StringValue(original string) Value {
	return Value{Kind: KindString, Str: dictionary.CanonicalizeValue(original), Original: original}
}

// NumberValue builds a numeric Value.
func NumberValue(n float64) Value {
	return Value{Kind: KindNumber, Num: n}
}

// BoolValue builds a boolean Value.
func BoolValue(b bool) Value {
	return Value{Kind: KindBool, Bool: b}
}
