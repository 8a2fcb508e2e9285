// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package compiler

import (
	"context"
	"log/slog"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"

	"github.com/heliosrules/helios/internal/dictionary"
	"github.com/heliosrules/helios/internal/model"
	"github.com/heliosrules/helios/internal/predicate"
)

// containsMatcherBuildConcurrency is the number of parallel Aho-Corasick
// automaton builds. Automaton construction is pure CPU over one field's
// literal set; a small bound keeps a pathological rule set (thousands of
// CONTAINS-heavy fields) from spawning a goroutine per field.
const containsMatcherBuildConcurrency = 4

// buildModel assembles the immutable EngineModel from the
// predicates/dictionaries accumulated in bc and the combinations
// accumulated in cb.
func buildModel(ctx context.Context, bc *buildContext, cb *combinationBuilder, opts *Options) *model.EngineModel {
	m := model.New()
	m.Fields = bc.fields
	m.Values = bc.values
	m.Preds = bc.preds
	m.SelectionStrategy = opts.SelectionStrategy

	m.Combinations = cb.combos
	m.RequiredCount = make([]int32, len(cb.combos))
	for i, c := range cb.combos {
		m.RequiredCount[i] = int32(len(c.PredicateIDs))
	}

	// Inverted index: one pass over every combination's predicate ids,
	// each bucket finalized as a roaring bitmap. A combination appears
	// under a predicate id iff that predicate is in its conjunction.
	for i, c := range cb.combos {
		cid := uint32(i)
		for _, pid := range c.PredicateIDs {
			bm, ok := m.InvertedIndex[pid]
			if !ok {
				bm = roaring.New()
				m.InvertedIndex[pid] = bm
			}
			bm.Add(cid)
		}
	}

	buildFieldIndex(m, bc)
	m.BaseConditionSets = buildBaseConditionSets(m, bc, opts)
	m.BaseConditionFields = buildBaseConditionFields(m, bc)
	buildContainsMatchers(ctx, m, bc)

	// The dictionaries are shared read-only from here on; the evaluator
	// only ever looks up, never inserts.
	m.Fields.Freeze()
	m.Values.Freeze()

	return m
}

// buildContainsMatchers batches every field's CONTAINS predicates into a
// single ContainsMatcher once that field carries two or more of them,
// replacing N substring scans with one automaton pass at evaluate time.
// A field with fewer than two CONTAINS predicates is left for the
// per-predicate substring scan, since building an automaton for a
// single literal buys nothing.
//
// Per-field automaton builds are independent of each other and of the
// rest of the model, so they fan out through an errgroup; the model map
// is written only after Wait, from the collecting goroutine.
func buildContainsMatchers(ctx context.Context, m *model.EngineModel, bc *buildContext) {
	byField := make(map[dictionary.ID]map[string]predicate.ID)
	for id, p := range bc.preds.All() {
		if p.Op != predicate.Contains {
			continue
		}
		literals, ok := byField[p.FieldID]
		if !ok {
			literals = make(map[string]predicate.ID)
			byField[p.FieldID] = literals
		}
		literals[p.Operand.Raw] = predicate.ID(id)
	}

	type result struct {
		fieldID dictionary.ID
		matcher *model.ContainsMatcher
	}

	resultCh := make(chan result, len(byField))
	g, _ := errgroup.WithContext(ctx)

	// Semaphore to limit concurrency.
	sem := make(chan struct{}, containsMatcherBuildConcurrency)

	for fieldID, literals := range byField {
		if len(literals) < 2 {
			continue
		}
		fid, lits := fieldID, literals // capture
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			matcher, err := model.NewContainsMatcher(lits)
			if err != nil {
				slog.Warn("contains matcher build failed, falling back to per-predicate scan",
					slog.String("field", fieldName(bc, fid)), slog.Any("error", err))
				// Individual failure is not fatal: the evaluator falls
				// back to per-predicate substring scans for this field.
				return nil
			}
			resultCh <- result{fieldID: fid, matcher: matcher}
			return nil
		})
	}

	// The goroutines above never return an error; Wait is only the
	// barrier before draining the channel.
	_ = g.Wait()
	close(resultCh)

	for r := range resultCh {
		m.FieldContainsMatchers[r.fieldID] = r.matcher
	}
}

// buildBaseConditionFields collects the sorted, deduplicated field ids
// referenced by any BaseConditionSet's predicates.
func buildBaseConditionFields(m *model.EngineModel, bc *buildContext) []dictionary.ID {
	seen := make(map[dictionary.ID]bool)
	var fields []dictionary.ID
	for _, set := range m.BaseConditionSets {
		for _, pid := range set.PredicateIDs {
			fid := bc.preds.Get(pid).FieldID
			if !seen[fid] {
				seen[fid] = true
				fields = append(fields, fid)
			}
		}
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i] < fields[j] })
	return fields
}

// buildFieldIndex populates field_to_predicates (sorted ascending by
// weight) and field_min_weight from the final predicate registry.
func buildFieldIndex(m *model.EngineModel, bc *buildContext) {
	for id, p := range bc.preds.All() {
		pid := predicate.ID(id)
		m.FieldToPredicates[p.FieldID] = append(m.FieldToPredicates[p.FieldID], pid)
	}
	for fieldID, ids := range m.FieldToPredicates {
		sort.Slice(ids, func(i, j int) bool {
			return bc.preds.Get(ids[i]).Weight < bc.preds.Get(ids[j]).Weight
		})
		m.FieldToPredicates[fieldID] = ids

		min := bc.preds.Get(ids[0]).Weight
		for _, pid := range ids[1:] {
			if w := bc.preds.Get(pid).Weight; w < min {
				min = w
			}
		}
		m.FieldMinWeight[fieldID] = min
	}
}

// buildBaseConditionSets groups combinations for the pre-filter: for
// every combination, extract its static EQUAL_TO predicates on
// non-volatile fields, then group combinations sharing the exact same
// such subset into one BaseConditionSet.
func buildBaseConditionSets(m *model.EngineModel, bc *buildContext, opts *Options) []model.BaseConditionSet {
	groups := make(map[string]*model.BaseConditionSet)
	order := make([]string, 0)

	for i, c := range m.Combinations {
		static := staticEqualTo(c.PredicateIDs, bc, opts)
		if len(static) == 0 {
			continue
		}
		key := combinationKey(static)
		g, ok := groups[key]
		if !ok {
			g = &model.BaseConditionSet{PredicateIDs: static, Combinations: roaring.New()}
			groups[key] = g
			order = append(order, key)
		}
		g.Combinations.Add(uint32(i))
	}

	sets := make([]model.BaseConditionSet, 0, len(order))
	for _, key := range order {
		g := groups[key]
		var sum float64
		for _, pid := range g.PredicateIDs {
			sum += bc.preds.Get(pid).Weight
		}
		g.AvgSelectivity = sum / float64(len(g.PredicateIDs))
		sets = append(sets, *g)
	}
	return sets
}

// staticEqualTo returns the subset of ids that are EQUAL_TO predicates
// on a field not listed as volatile, sorted ascending.
func staticEqualTo(ids []predicate.ID, bc *buildContext, opts *Options) []predicate.ID {
	var out []predicate.ID
	for _, pid := range ids {
		p := bc.preds.Get(pid)
		if p.Op != predicate.EqualTo {
			continue
		}
		if opts.VolatileFields[fieldName(bc, p.FieldID)] {
			continue
		}
		out = append(out, pid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func fieldName(bc *buildContext, fieldID dictionary.ID) string {
	return bc.fields.Decode(fieldID)
}
