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
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heliosrules/helios/internal/compiler"
	"github.com/heliosrules/helios/internal/model"
	"github.com/heliosrules/helios/internal/schema"
)

func rule(code string, priority int, conds ...schema.ConditionInput) schema.RuleInput {
	return schema.RuleInput{RuleCode: code, Priority: priority, Conditions: conds}
}

func cond(field, op string, value any) schema.ConditionInput {
	return schema.ConditionInput{Field: field, Operator: op, Value: value}
}

func mustCompile(t *testing.T, raw []schema.RuleInput, opts ...compiler.Option) *model.EngineModel {
	t.Helper()
	m, _, err := compiler.Compile(context.Background(), raw, opts...)
	require.NoError(t, err)
	return m
}

func newEvaluator(t *testing.T, m *model.EngineModel) (*Evaluator, *EvaluationContextPool) {
	t.Helper()
	enc, err := NewEncoder(1 << 16)
	require.NoError(t, err)
	t.Cleanup(enc.Close)
	return NewEvaluator(m, enc, nil), NewEvaluationContextPool()
}

// TestEvaluateSimpleEquality: a single EQUAL_TO rule matches an event
// carrying the same value and misses one that doesn't.
func TestEvaluateSimpleEquality(t *testing.T) {
	m := mustCompile(t, []schema.RuleInput{
		rule("R1", 0, cond("country", "EQUAL_TO", "US")),
	})
	ev, pool := newEvaluator(t, m)

	ctx := pool.Get(m)
	defer ctx.Release()
	res := ev.Evaluate(context.Background(), Event{EventID: "e1", Attributes: map[string]any{"country": "US"}}, ctx)
	require.Len(t, res.MatchedRules, 1)
	assert.Equal(t, "R1", res.MatchedRules[0].RuleCode)

	ctx2 := pool.Get(m)
	defer ctx2.Release()
	res2 := ev.Evaluate(context.Background(), Event{EventID: "e2", Attributes: map[string]any{"country": "CA"}}, ctx2)
	assert.Empty(t, res2.MatchedRules)
}

// TestEvaluateEqualityIsCaseInsensitive: values are normalized to upper
// case on both sides, so a lowercase event value matches an uppercase
// rule operand.
func TestEvaluateEqualityIsCaseInsensitive(t *testing.T) {
	m := mustCompile(t, []schema.RuleInput{
		rule("A", 0, cond("status", "EQUAL_TO", "ACTIVE")),
	})
	ev, pool := newEvaluator(t, m)

	ctx := pool.Get(m)
	defer ctx.Release()
	res := ev.Evaluate(context.Background(), Event{EventID: "e", Attributes: map[string]any{"status": "active"}}, ctx)
	require.Len(t, res.MatchedRules, 1)
	assert.Equal(t, "A", res.MatchedRules[0].RuleCode)
}

// TestEvaluateHighestPrioritySelection: two rules both match the same
// event; HighestPriority keeps only the higher-priority one.
func TestEvaluateHighestPrioritySelection(t *testing.T) {
	m := mustCompile(t, []schema.RuleInput{
		rule("LOW", 10, cond("amount", "GREATER_THAN", 100.0)),
		rule("HIGH", 200, cond("amount", "GREATER_THAN", 5000.0), cond("currency", "EQUAL_TO", "USD")),
	}, compiler.WithSelectionStrategy(model.HighestPriority))
	ev, pool := newEvaluator(t, m)

	ctx := pool.Get(m)
	defer ctx.Release()
	res := ev.Evaluate(context.Background(), Event{
		EventID:    "e1",
		Attributes: map[string]any{"amount": 6000.0, "currency": "USD"},
	}, ctx)

	require.Len(t, res.MatchedRules, 1)
	assert.Equal(t, "HIGH", res.MatchedRules[0].RuleCode)
	assert.Equal(t, 200, res.MatchedRules[0].Priority)
}

// TestEvaluateIsAnyOfMatchesEachValue checks that an IS_ANY_OF-expanded
// rule matches on every listed value and nothing else.
func TestEvaluateIsAnyOfMatchesEachValue(t *testing.T) {
	m := mustCompile(t, []schema.RuleInput{
		rule("R1", 0, cond("country", "IS_ANY_OF", []any{"US", "CA"})),
	})
	ev, pool := newEvaluator(t, m)

	for _, country := range []string{"US", "CA"} {
		ctx := pool.Get(m)
		res := ev.Evaluate(context.Background(), Event{EventID: "e", Attributes: map[string]any{"country": country}}, ctx)
		require.Len(t, res.MatchedRules, 1, "country=%s", country)
		ctx.Release()
	}

	ctx := pool.Get(m)
	defer ctx.Release()
	res := ev.Evaluate(context.Background(), Event{EventID: "e", Attributes: map[string]any{"country": "UK"}}, ctx)
	assert.Empty(t, res.MatchedRules)
}

// TestEvaluateSharedCombinationReportsAllRules: two rules whose
// IS_ANY_OF lists overlap share the overlapping combination, so an
// event hitting the shared value reports both rule codes.
func TestEvaluateSharedCombinationReportsAllRules(t *testing.T) {
	m := mustCompile(t, []schema.RuleInput{
		rule("X", 0, cond("country", "IS_ANY_OF", []any{"US", "CA"})),
		rule("Y", 0, cond("country", "IS_ANY_OF", []any{"CA", "UK"})),
	})
	ev, pool := newEvaluator(t, m)

	ctx := pool.Get(m)
	res := ev.Evaluate(context.Background(), Event{EventID: "e", Attributes: map[string]any{"country": "CA"}}, ctx)
	var codes []string
	for _, mr := range res.MatchedRules {
		codes = append(codes, mr.RuleCode)
	}
	assert.ElementsMatch(t, []string{"X", "Y"}, codes)
	ctx.Release()

	ctx = pool.Get(m)
	defer ctx.Release()
	res = ev.Evaluate(context.Background(), Event{EventID: "e", Attributes: map[string]any{"country": "US"}}, ctx)
	require.Len(t, res.MatchedRules, 1)
	assert.Equal(t, "X", res.MatchedRules[0].RuleCode)
}

// TestEvaluateNumericBetweenRange covers BETWEEN's inclusive bounds.
func TestEvaluateNumericBetweenRange(t *testing.T) {
	m := mustCompile(t, []schema.RuleInput{
		rule("R1", 0, cond("age", "BETWEEN", []any{18.0, 65.0})),
	})
	ev, pool := newEvaluator(t, m)

	for _, tc := range []struct {
		age     float64
		matches bool
	}{
		{17, false}, {18, true}, {40, true}, {65, true}, {66, false},
	} {
		ctx := pool.Get(m)
		res := ev.Evaluate(context.Background(), Event{EventID: "e", Attributes: map[string]any{"age": tc.age}}, ctx)
		if tc.matches {
			assert.Len(t, res.MatchedRules, 1, "age=%v", tc.age)
		} else {
			assert.Empty(t, res.MatchedRules, "age=%v", tc.age)
		}
		ctx.Release()
	}
}

// TestEvaluateMatchRequiresEveryPredicate: a combination only matches
// when every one of its predicates is true, not merely some.
func TestEvaluateMatchRequiresEveryPredicate(t *testing.T) {
	m := mustCompile(t, []schema.RuleInput{
		rule("R1", 0,
			cond("country", "EQUAL_TO", "US"),
			cond("amount", "GREATER_THAN", 100.0)),
	})
	ev, pool := newEvaluator(t, m)

	ctx := pool.Get(m)
	defer ctx.Release()
	res := ev.Evaluate(context.Background(), Event{
		EventID:    "e",
		Attributes: map[string]any{"country": "US", "amount": 50.0},
	}, ctx)
	assert.Empty(t, res.MatchedRules, "only one of two predicates holds")
}

// TestEvaluateNestedAttributesFlatten: nested attribute maps join with
// '.' and canonicalize the same way rule field paths do.
func TestEvaluateNestedAttributesFlatten(t *testing.T) {
	m := mustCompile(t, []schema.RuleInput{
		rule("R1", 0, cond("user.billing-address.country", "EQUAL_TO", "US")),
	})
	ev, pool := newEvaluator(t, m)

	ctx := pool.Get(m)
	defer ctx.Release()
	res := ev.Evaluate(context.Background(), Event{
		EventID: "e",
		Attributes: map[string]any{
			"user": map[string]any{
				"billing-address": map[string]any{"country": "US"},
			},
		},
	}, ctx)
	require.Len(t, res.MatchedRules, 1)
}

// TestEvaluateContextResetIsIdempotent verifies a released, reused
// EvaluationContext starts fresh for an unrelated event: the O(touched)
// reset must never leak counter state across calls.
func TestEvaluateContextResetIsIdempotent(t *testing.T) {
	m := mustCompile(t, []schema.RuleInput{
		rule("R1", 0, cond("country", "EQUAL_TO", "US")),
	})
	ev, pool := newEvaluator(t, m)

	ctx := pool.Get(m)
	_ = ev.Evaluate(context.Background(), Event{EventID: "e1", Attributes: map[string]any{"country": "US"}}, ctx)
	ctx.Release()

	ctx2 := pool.Get(m)
	defer ctx2.Release()
	res := ev.Evaluate(context.Background(), Event{EventID: "e2", Attributes: map[string]any{"country": "CA"}}, ctx2)
	assert.Empty(t, res.MatchedRules, "prior evaluation's match must not leak into a fresh context")
}

// TestEvaluateContainsMultiplePredicatesBatches exercises the
// Aho-Corasick batching path: a field with three CONTAINS predicates
// should still only report the ones whose literal actually occurs.
func TestEvaluateContainsMultiplePredicatesBatches(t *testing.T) {
	m := mustCompile(t, []schema.RuleInput{
		rule("FOO", 0, cond("message", "CONTAINS", "foo")),
		rule("BAR", 0, cond("message", "CONTAINS", "bar")),
		rule("BAZ", 0, cond("message", "CONTAINS", "baz")),
	})
	ev, pool := newEvaluator(t, m)

	ctx := pool.Get(m)
	defer ctx.Release()
	res := ev.Evaluate(context.Background(), Event{
		EventID:    "e",
		Attributes: map[string]any{"message": "a foo and a bar walked in"},
	}, ctx)

	var codes []string
	for _, mr := range res.MatchedRules {
		codes = append(codes, mr.RuleCode)
	}
	assert.ElementsMatch(t, []string{"FOO", "BAR"}, codes)
}

// TestEvaluateContainsOverlappingLiterals: one literal a prefix of
// another, both occurring at the same offset, must both be reported.
func TestEvaluateContainsOverlappingLiterals(t *testing.T) {
	m := mustCompile(t, []schema.RuleInput{
		rule("SHORT", 0, cond("message", "CONTAINS", "ab")),
		rule("LONG", 0, cond("message", "CONTAINS", "abcd")),
	})
	ev, pool := newEvaluator(t, m)

	ctx := pool.Get(m)
	defer ctx.Release()
	res := ev.Evaluate(context.Background(), Event{
		EventID:    "e",
		Attributes: map[string]any{"message": "xx abcd yy"},
	}, ctx)

	var codes []string
	for _, mr := range res.MatchedRules {
		codes = append(codes, mr.RuleCode)
	}
	assert.ElementsMatch(t, []string{"SHORT", "LONG"}, codes)
}

// TestEvaluateBaseConditionCacheSemanticsPreserving verifies that
// repeated identical events produce identical results whether or not the
// base-condition pre-filter cache is warm, and that invalidating the
// cache (as a model install does) does not change any answer.
func TestEvaluateBaseConditionCacheSemanticsPreserving(t *testing.T) {
	m := mustCompile(t, []schema.RuleInput{
		rule("R1", 0, cond("status", "EQUAL_TO", "active"), cond("amount", "GREATER_THAN", 10.0)),
	})

	cache, err := NewBaseConditionCache(DefaultCacheTuning(), nil)
	require.NoError(t, err)
	defer cache.Close()

	enc, err := NewEncoder(1 << 16)
	require.NoError(t, err)
	defer enc.Close()

	ev := NewEvaluator(m, enc, cache)
	pool := NewEvaluationContextPool()

	event := Event{EventID: "e", Attributes: map[string]any{"status": "active", "amount": 20.0}}

	for i := 0; i < 3; i++ {
		ctx := pool.Get(m)
		res := ev.Evaluate(context.Background(), event, ctx)
		require.Len(t, res.MatchedRules, 1, "iteration %d", i)
		ctx.Release()
	}

	cache.InvalidateAll()
	ctx := pool.Get(m)
	defer ctx.Release()
	res := ev.Evaluate(context.Background(), event, ctx)
	require.Len(t, res.MatchedRules, 1, "result must be unchanged after cache invalidation")
}

// TestEvaluateWithAndWithoutPrefilterAgree: the pre-filter is purely an
// optimization, so enabling it must never change the match set.
func TestEvaluateWithAndWithoutPrefilterAgree(t *testing.T) {
	raw := []schema.RuleInput{
		rule("A", 0, cond("status", "EQUAL_TO", "active"), cond("amount", "GREATER_THAN", 10.0)),
		rule("B", 0, cond("status", "EQUAL_TO", "inactive"), cond("amount", "GREATER_THAN", 10.0)),
		rule("C", 0, cond("amount", "LESS_THAN", 100.0)),
	}
	m := mustCompile(t, raw)

	enc, err := NewEncoder(1 << 16)
	require.NoError(t, err)
	defer enc.Close()

	cache, err := NewBaseConditionCache(DefaultCacheTuning(), nil)
	require.NoError(t, err)
	defer cache.Close()

	plain := NewEvaluator(m, enc, nil)
	filtered := NewEvaluator(m, enc, cache)
	pool := NewEvaluationContextPool()

	events := []Event{
		{EventID: "e1", Attributes: map[string]any{"status": "active", "amount": 20.0}},
		{EventID: "e2", Attributes: map[string]any{"status": "inactive", "amount": 20.0}},
		{EventID: "e3", Attributes: map[string]any{"status": "unknown", "amount": 20.0}},
		{EventID: "e4", Attributes: map[string]any{"amount": 200.0}},
	}
	for _, event := range events {
		ctx := pool.Get(m)
		want := plain.Evaluate(context.Background(), event, ctx)
		ctx.Release()

		ctx = pool.Get(m)
		got := filtered.Evaluate(context.Background(), event, ctx)
		ctx.Release()

		assert.Equal(t, want.MatchedRules, got.MatchedRules, "event %s", event.EventID)
	}
}

func benchmarkModel(b *testing.B, rules int) *model.EngineModel {
	b.Helper()
	raw := make([]schema.RuleInput, 0, rules)
	for i := 0; i < rules; i++ {
		raw = append(raw,
			rule(fmt.Sprintf("R%d", i), i%10,
				cond("status", "EQUAL_TO", "ACTIVE"),
				cond("country", "IS_ANY_OF", []any{"US", "CA", "UK"}),
				cond("amount", "GREATER_THAN", float64(i%100))))
	}
	m, _, err := compiler.Compile(context.Background(), raw)
	if err != nil {
		b.Fatal(err)
	}
	return m
}

func BenchmarkEvaluate(b *testing.B) {
	for _, rules := range []int{100, 1000} {
		b.Run(fmt.Sprintf("rules=%d", rules), func(b *testing.B) {
			m := benchmarkModel(b, rules)
			enc, err := NewEncoder(1 << 16)
			if err != nil {
				b.Fatal(err)
			}
			defer enc.Close()

			ev := NewEvaluator(m, enc, nil)
			pool := NewEvaluationContextPool()
			event := Event{EventID: "bench", Attributes: map[string]any{
				"status": "ACTIVE", "country": "US", "amount": 55.0,
			}}

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				ctx := pool.Get(m)
				_ = ev.Evaluate(context.Background(), event, ctx)
				ctx.Release()
			}
		})
	}
}

func BenchmarkEvaluateParallel(b *testing.B) {
	m := benchmarkModel(b, 1000)
	enc, err := NewEncoder(1 << 16)
	if err != nil {
		b.Fatal(err)
	}
	defer enc.Close()

	ev := NewEvaluator(m, enc, nil)
	pool := NewEvaluationContextPool()
	event := Event{EventID: "bench", Attributes: map[string]any{
		"status": "ACTIVE", "country": "CA", "amount": 42.0,
	}}

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			ctx := pool.Get(m)
			_ = ev.Evaluate(context.Background(), event, ctx)
			ctx.Release()
		}
	})
}
