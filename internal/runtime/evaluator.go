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
	"context"
	"sort"
	"time"

	roaring "github.com/RoaringBitmap/roaring/v2"

	"github.com/heliosrules/helios/internal/model"
	"github.com/heliosrules/helios/internal/predicate"
	"github.com/heliosrules/helios/internal/telemetry"
)

// MatchResult is the evaluator's output for one event.
type MatchResult struct {
	EventID             string
	MatchedRules        []MatchedRule
	EvaluationTimeNanos int64
	PredicatesEvaluated int
	RulesMatched        int
}

// Evaluator runs counter-based conjunctive matching against one
// immutable EngineModel: a combination matches when every one of its
// predicates held, which the evaluator detects by tallying per-
// combination hit counters through the inverted index and comparing
// each against the combination's required count. It never mutates the
// model and is safe to call concurrently from any number of goroutines,
// each with its own EvaluationContext.
type Evaluator struct {
	model   *model.EngineModel
	encoder *Encoder
	cache   *BaseConditionCache
}

// NewEvaluator creates an Evaluator bound to m. cache may be nil to
// disable the base-condition pre-filter entirely.
func NewEvaluator(m *model.EngineModel, encoder *Encoder, cache *BaseConditionCache) *Evaluator {
	return &Evaluator{model: m, encoder: encoder, cache: cache}
}

// Evaluate runs the full encode / pre-filter / predicates / counters /
// detect / select pipeline for one event using ctx as scratch space.
// ctx must have been obtained from a pool sized for the same model
// (EvaluationContextPool.Get(m)). evalCtx carries the span telemetry
// attaches itself to; pass context.Background() when tracing is not in
// use.
func (e *Evaluator) Evaluate(evalCtx context.Context, ev Event, ctx *EvaluationContext) MatchResult {
	started := nowNanos()
	startedWall := time.Now()
	evalCtx, span := telemetry.StartEvaluateSpan(evalCtx, ev.EventID)
	defer span.End()

	_, encSpan := telemetry.StartSubSpan(evalCtx, true, "encode")
	e.encoder.Encode(ev, e.model.Fields, &ctx.encoded)
	encSpan.End()

	var candidates *roaring.Bitmap
	if e.cache != nil {
		_, pfSpan := telemetry.StartSubSpan(evalCtx, true, "prefilter")
		candidates = Prefilter(e.model, &ctx.encoded, e.cache)
		pfSpan.End()
		if candidates != nil && candidates.IsEmpty() {
			result := MatchResult{EventID: ev.EventID, EvaluationTimeNanos: nowNanos() - started}
			telemetry.RecordEvaluate(false, time.Since(startedWall).Seconds(), 0, 0, 0)
			return result
		}
	}

	_, predSpan := telemetry.StartSubSpan(evalCtx, true, "predicates")
	e.evaluatePredicates(ctx, candidates)
	predSpan.End()

	_, cntSpan := telemetry.StartSubSpan(evalCtx, true, "counters")
	e.tallyCounters(ctx, candidates)
	cntSpan.End()

	_, detSpan := telemetry.StartSubSpan(evalCtx, true, "detect")
	matches := e.detectMatches(ctx)
	detSpan.End()

	_, selSpan := telemetry.StartSubSpan(evalCtx, true, "select")
	matches = applySelection(e.model.SelectionStrategy, matches)
	selSpan.End()

	telemetry.RecordEvaluate(len(matches) > 0, time.Since(startedWall).Seconds(),
		ctx.PredicatesEvaluated, len(ctx.touched), len(matches))

	return MatchResult{
		EventID:             ev.EventID,
		MatchedRules:        matches,
		EvaluationTimeNanos: nowNanos() - started,
		PredicatesEvaluated: ctx.PredicatesEvaluated,
		RulesMatched:        len(matches),
	}
}

// evaluatePredicates visits the event's recognized fields in ascending
// field-min-weight order (rarest predicates first) and evaluates each
// field's weight-sorted predicate list, restricting to the candidate
// bitmap's eligible predicate set when a pre-filter ran.
func (e *Evaluator) evaluatePredicates(ctx *EvaluationContext, candidates *roaring.Bitmap) {
	fieldOrder := indices(len(ctx.encoded.FieldIDs))
	sort.Slice(fieldOrder, func(i, j int) bool {
		return e.model.FieldMinWeight[ctx.encoded.FieldIDs[fieldOrder[i]]] <
			e.model.FieldMinWeight[ctx.encoded.FieldIDs[fieldOrder[j]]]
	})

	var eligible map[predicate.ID]bool
	if candidates != nil {
		eligible = e.eligiblePredicateSet(candidates)
	}

	for _, idx := range fieldOrder {
		fieldID := ctx.encoded.FieldIDs[idx]
		value := ctx.encoded.Values[idx]
		matcher, batched := e.model.FieldContainsMatchers[fieldID]

		if batched && value.Kind == predicate.KindString {
			ctx.PredicatesEvaluated += matcher.Len()
			for _, pid := range matcher.MatchAll(value.Original) {
				if eligible != nil && !eligible[pid] {
					continue
				}
				ctx.truePredicates = append(ctx.truePredicates, pid)
			}
		}

		for _, pid := range e.model.FieldToPredicates[fieldID] {
			p := e.model.Preds.Get(pid)
			if batched && p.Op == predicate.Contains {
				// Already resolved above via the field's Aho-Corasick
				// automaton.
				continue
			}
			if eligible != nil && !eligible[pid] {
				continue
			}
			ctx.PredicatesEvaluated++
			if predicate.Evaluate(p, value, e.model.Values) {
				ctx.truePredicates = append(ctx.truePredicates, pid)
			}
		}
	}
}

// eligiblePredicateSet derives, from a candidate combination bitmap,
// the union of predicate ids any surviving combination could still
// need, so evaluatePredicates can skip predicates that cannot
// contribute to any candidate.
//
// This is recomputed per call rather than memoized by bitmap content:
// a content-keyed cache would grow with the number of distinct
// candidate bitmaps a live event stream produces, while the per-event
// cost here is linear in the number of surviving combinations, which
// the base-condition pre-filter has already bounded.
func (e *Evaluator) eligiblePredicateSet(candidates *roaring.Bitmap) map[predicate.ID]bool {
	set := make(map[predicate.ID]bool)
	it := candidates.Iterator()
	for it.HasNext() {
		cid := it.Next()
		for _, pid := range e.model.Combinations[cid].PredicateIDs {
			set[pid] = true
		}
	}
	return set
}

// tallyCounters walks each true predicate's inverted-index bitmap
// (restricted to candidates, if any) and increments that combination's
// counter. The index lists each combination at most once per predicate,
// so no combination is double-counted.
func (e *Evaluator) tallyCounters(ctx *EvaluationContext, candidates *roaring.Bitmap) {
	for _, pid := range ctx.truePredicates {
		bm, ok := e.model.InvertedIndex[pid]
		if !ok {
			continue
		}

		it := bm.Iterator()
		if candidates != nil {
			bm = roaring.And(bm, candidates)
			it = bm.Iterator()
		}
		for it.HasNext() {
			cid := model.CombinationID(it.Next())
			if ctx.counters[cid] == 0 {
				ctx.touched = append(ctx.touched, cid)
			}
			ctx.counters[cid]++
		}
	}
}

// detectMatches walks touched combinations in ascending combination-id
// order — the stable tie-break order the whole pipeline guarantees —
// and emits every contributing rule of each fully-satisfied one.
func (e *Evaluator) detectMatches(ctx *EvaluationContext) []MatchedRule {
	sort.Slice(ctx.touched, func(i, j int) bool { return ctx.touched[i] < ctx.touched[j] })

	var matches []MatchedRule
	for _, cid := range ctx.touched {
		if ctx.counters[cid] != e.model.RequiredCount[cid] {
			continue
		}
		c := e.model.Combinations[cid]
		for i := range c.RuleCodes {
			matches = append(matches, MatchedRule{
				CombinationID: cid,
				RuleCode:      c.RuleCodes[i],
				Priority:      c.Priorities[i],
				Description:   c.Descriptions[i],
			})
		}
	}
	return matches
}

func indices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
