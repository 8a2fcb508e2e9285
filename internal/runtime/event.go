// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package runtime implements the per-event hot path: flattening and
// dictionary-encoding an Event, the base-condition pre-filter and its
// cache, the counter-matching evaluator, priority selection, and the
// reusable per-goroutine scratch pool.
package runtime

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/heliosrules/helios/internal/dictionary"
	"github.com/heliosrules/helios/internal/predicate"
)

// Event is the raw input to Evaluate: a bag of possibly-nested
// attributes. Attributes may hold string, float64 (or int/int64), bool,
// nil, or a nested map[string]any value; any other dynamic type is
// encoded as a missing value rather than rejected — Evaluate never raises for a value it
// merely doesn't recognize, the corresponding predicates just stay
// false.
type Event struct {
	EventID    string
	EventType  string
	Attributes map[string]any
}

// EncodedEvent is the flattened, dictionary-encoded projection of an
// Event used by the evaluator. It is produced by Encoder.Encode and
// owned by whichever EvaluationContext requested it; FieldIDs/Values
// slices are reused across calls to avoid per-event allocation.
type EncodedEvent struct {
	EventID string

	// FieldIDs and Values are parallel, one entry per recognized
	// attribute (an attribute whose canonicalized key exists in the
	// field dictionary — lookup only, never insert).
	FieldIDs []dictionary.ID
	Values   []predicate.Value
}

// reset clears e for reuse without releasing the backing arrays.
func (e *EncodedEvent) reset() {
	e.EventID = ""
	e.FieldIDs = e.FieldIDs[:0]
	e.Values = e.Values[:0]
}

// Lookup returns the encoded value for fieldID, or (Value{}, false) if
// the event carried no such attribute.
func (e *EncodedEvent) Lookup(fieldID dictionary.ID) (predicate.Value, bool) {
	for i, id := range e.FieldIDs {
		if id == fieldID {
			return e.Values[i], true
		}
	}
	return predicate.Value{}, false
}

// Encoder flattens and dictionary-encodes events. It holds the bounded,
// process-wide string normalization cache (upper-case once per distinct
// string), backed by a ristretto TinyLFU cache rather than an unbounded
// map so a high-cardinality attribute cannot grow it without limit.
//
// The field dictionary to resolve keys against is passed per Encode
// call, not stored on the Encoder: the dictionary belongs to a compiled
// model and models are hot-swapped, while the normalization cache is
// model-independent and lives for the process. Keeping the two apart
// means a model swap can never pair an event encoded against one
// model's dictionary with another model's arrays.
type Encoder struct {
	upper *ristretto.Cache[string, string]
}

// NewEncoder creates an Encoder bounded to approximately
// maxDistinctStrings distinct normalized strings (ristretto admits by
// estimated frequency, so this is a target, not a hard cap).
func NewEncoder(maxDistinctStrings int64) (*Encoder, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters: maxDistinctStrings * 10,
		MaxCost:     maxDistinctStrings,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Encoder{upper: cache}, nil
}

// Close releases the encoder's normalization cache.
func (enc *Encoder) Close() {
	enc.upper.Close()
}

// Encode flattens ev.Attributes with '.'-joined canonical keys into
// dst, reusing dst's backing arrays. Keys not present in fields are
// dropped; dst.Values[i].Original always carries the pre-normalization
// string so substring and regex predicates see the event's original
// text.
func (enc *Encoder) Encode(ev Event, fields *dictionary.FieldDictionary, dst *EncodedEvent) {
	dst.reset()
	dst.EventID = ev.EventID
	enc.flatten(ev.Attributes, "", fields, dst)
}

func (enc *Encoder) flatten(m map[string]any, prefix string, fields *dictionary.FieldDictionary, dst *EncodedEvent) {
	for k, v := range m {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			enc.flatten(val, path, fields, dst)
		case nil:
			appendValue(path, predicate.NullValue, fields, dst)
		default:
			appendValue(path, enc.scalarValue(val), fields, dst)
		}
	}
}

func (enc *Encoder) scalarValue(v any) predicate.Value {
	switch val := v.(type) {
	case string:
		return enc.normalizedStringValue(val)
	case float64:
		return predicate.NumberValue(val)
	case int:
		return predicate.NumberValue(float64(val))
	case int64:
		return predicate.NumberValue(float64(val))
	case bool:
		return predicate.BoolValue(val)
	default:
		return predicate.MissingValue
	}
}

// normalizedStringValue upper-cases s via the bounded cache, falling
// back to computing it directly on a cache miss. Ristretto's Set is
// advisory — it may decline to admit an entry, which only affects hit
// rate, never the returned value.
func (enc *Encoder) normalizedStringValue(s string) predicate.Value {
	if cached, ok := enc.upper.Get(s); ok {
		return predicate.Value{Kind: predicate.KindString, Str: cached, Original: s}
	}
	v := predicate.StringValue(s)
	enc.upper.SetWithTTL(s, v.Str, 1, 30*time.Minute)
	return v
}

func appendValue(path string, v predicate.Value, fields *dictionary.FieldDictionary, dst *EncodedEvent) {
	id := fields.LookupField(path)
	if id == dictionary.NONE {
		return
	}
	dst.FieldIDs = append(dst.FieldIDs, id)
	dst.Values = append(dst.Values, v)
}
