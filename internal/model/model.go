// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package model defines EngineModel, the single immutable artifact a
// compile produces and the evaluator consumes. Once built, an
// EngineModel is never mutated; hot-reload publishes a brand new
// one rather than patching the old in place, so a reader holding a
// pointer to a model never observes a torn read.
package model

import (
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/heliosrules/helios/internal/dictionary"
	"github.com/heliosrules/helios/internal/predicate"
)

// CombinationID indexes the per-combination slices below
// (Combinations and RequiredCount). It is
// dense and starts at 0, assigned in the order the compiler finished
// deduplicating combinations across all rules.
type CombinationID int32

// Combination is one fully expanded, deduplicated conjunction of
// predicates produced by the combination expander: the AND of
// every predicate id in PredicateIDs must hold for the combination to
// fire, at which point every rule in RuleCodes is considered matched.
//
// Several source rules can canonicalize to the same predicate set (for
// example, two rules describing the same conditions with different
// descriptions); the compiler merges them into a single Combination carrying
// every contributing rule code, priority, and description rather than
// creating duplicate combinations that would double-count in the
// counter-matching step.
type Combination struct {
	PredicateIDs []predicate.ID
	RuleCodes    []string
	Priorities   []int
	Descriptions []string
}

// EngineModel is the full compiled artifact: dictionaries, the
// predicate registry, the inverted index, and the dense
// combination/rule arrays the evaluator walks on the hot path.
//
// Fields are exported so the compiler package (which lives in a
// sibling package and therefore cannot reach unexported fields) can
// assemble a model directly; external callers only ever see it through
// the read-only accessor methods below once published by
// internal/manager.
type EngineModel struct {
	// Epoch is unique per compiled model within the process. The
	// base-condition cache folds it into every key, so an entry written
	// by an in-flight evaluation against a retired model (racing the
	// install-time invalidation) can never answer a query against its
	// replacement.
	Epoch int64

	Fields *dictionary.FieldDictionary
	Values *dictionary.ValueDictionary
	Preds  *predicate.Registry

	// Combinations is the dense per-combination table, indexed by
	// CombinationID. It holds one Combination struct per combination;
	// only RequiredCount below is kept as a separate parallel array.
	Combinations []Combination

	// RequiredCount[c] is len(Combinations[c].PredicateIDs), cached
	// separately so the match-detection loop never touches the slice
	// header of PredicateIDs just to learn its length.
	RequiredCount []int32

	// InvertedIndex maps a predicate id to the set of combination ids
	// that include it in their conjunction. A roaring.Bitmap is
	// used instead of a []CombinationID slice so that very frequent,
	// low-selectivity predicates (e.g. a boolean EQUAL_TO true) don't
	// balloon memory, and so per-event union/prefilter steps can use
	// roaring's native OR/AND-NOT operators instead of hand-rolled set
	// algebra.
	InvertedIndex map[predicate.ID]*roaring.Bitmap

	// FieldToPredicates maps a field id to every predicate id that
	// reads that field, sorted ascending by weight so the evaluator
	// probes the rarest predicates first.
	FieldToPredicates map[dictionary.ID][]predicate.ID

	// FieldMinWeight caches, per field, the lowest Weight among that
	// field's predicates; the evaluator orders an event's fields by it
	// so the field most likely to disqualify candidates is probed
	// first.
	FieldMinWeight map[dictionary.ID]float64

	// BaseConditionSets groups combinations by the exact set of static
	// (EQUAL_TO, non-volatile-field) predicates they share; the
	// runtime pre-filter walks this list once per evaluation to narrow
	// the "all combinations eligible" bitmap before the counter pass.
	BaseConditionSets []BaseConditionSet

	// BaseConditionFields is the sorted, deduplicated set of field ids
	// referenced by any BaseConditionSet's predicates — exactly the
	// fields the pre-filter cache's fingerprint generator reads off an
	// encoded event. Fields outside this set never affect the
	// pre-filter's answer, so they stay out of the cache key.
	BaseConditionFields []dictionary.ID

	// SelectionStrategy records the strategy this model was compiled
	// with; the evaluator reads it once per Evaluate call
	// rather than threading it through every call site.
	SelectionStrategy SelectionStrategy

	// FieldContainsMatchers holds one Aho-Corasick automaton per field
	// that carries two or more CONTAINS predicates, keyed by field id.
	// A field with zero or one CONTAINS predicate has no entry; the
	// evaluator falls back to predicate.Evaluate's direct substring scan
	// for those.
	FieldContainsMatchers map[dictionary.ID]*ContainsMatcher
}

// BaseConditionSet is one group of combinations that all share the
// exact same set of static predicate ids. PredicateIDs is sorted
// ascending, matching the canonical combination order so the cache
// fingerprint generator (internal/runtime) can reuse the same
// formatting helper.
type BaseConditionSet struct {
	PredicateIDs   []predicate.ID
	Combinations   *roaring.Bitmap
	AvgSelectivity float64
}

// SelectionStrategy controls how MatchResult is assembled from the set
// of combinations whose counters reached their required count.
type SelectionStrategy uint8

const (
	// AllMatches returns every satisfied combination's contributing
	// rules, unordered beyond the stable ascending CombinationID walk.
	AllMatches SelectionStrategy = iota
	// HighestPriority returns only the rules with the numerically
	// highest Priority among the satisfied combinations, breaking ties
	// by ascending CombinationID.
	HighestPriority
)

// New creates an empty EngineModel shell; the compiler's model builder
// populates every field before the model is considered complete and
// eligible for publication via internal/manager. The dictionaries and
// registry start non-nil so an empty model (zero rules compiled) is
// still fully usable.
func New() *EngineModel {
	return &EngineModel{
		Epoch:                 buildSeq.Add(1),
		Fields:                dictionary.NewFieldDictionary(),
		Values:                dictionary.NewValueDictionary(),
		Preds:                 predicate.NewRegistry(),
		InvertedIndex:         make(map[predicate.ID]*roaring.Bitmap),
		FieldToPredicates:     make(map[dictionary.ID][]predicate.ID),
		FieldMinWeight:        make(map[dictionary.ID]float64),
		FieldContainsMatchers: make(map[dictionary.ID]*ContainsMatcher),
	}
}

var buildSeq atomic.Int64

// CombinationCount returns the number of distinct expanded combinations
// in the model.
func (m *EngineModel) CombinationCount() int {
	return len(m.Combinations)
}

// PredicateCount returns the number of distinct interned predicates.
func (m *EngineModel) PredicateCount() int {
	return m.Preds.Len()
}
