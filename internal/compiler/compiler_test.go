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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heliosrules/helios/internal/schema"
)

func rule(code string, priority int, conds ...schema.ConditionInput) schema.RuleInput {
	return schema.RuleInput{RuleCode: code, Priority: priority, Conditions: conds}
}

func cond(field, op string, value any) schema.ConditionInput {
	return schema.ConditionInput{Field: field, Operator: op, Value: value}
}

// TestCompileEmptyRuleList covers the "empty rule list" boundary
// behavior: zero combinations, no error.
func TestCompileEmptyRuleList(t *testing.T) {
	m, stats, err := Compile(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, m.CombinationCount())
	assert.Equal(t, 0, stats.TotalRules)
}

// TestCompileIsAnyOfOverlapDedup: two rules whose IS_ANY_OF lists
// overlap on one value dedup to 3 combinations total.
func TestCompileIsAnyOfOverlapDedup(t *testing.T) {
	raw := []schema.RuleInput{
		rule("X", 0, cond("country", "IS_ANY_OF", []any{"US", "CA"})),
		rule("Y", 0, cond("country", "IS_ANY_OF", []any{"CA", "UK"})),
	}
	m, stats, err := Compile(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, 3, m.CombinationCount())
	assert.Equal(t, 4, stats.TotalExpanded)
	assert.Equal(t, 3, stats.UniqueCombinations)
}

// TestCompileCrossRuleDedup: two rules with identical conditions
// produce 4 expanded combinations, 2 unique, a 50% dedup rate, and
// both rule codes on each surviving combination.
func TestCompileCrossRuleDedup(t *testing.T) {
	conds := func() []schema.ConditionInput {
		return []schema.ConditionInput{
			cond("tier", "EQUAL_TO", "GOLD"),
			cond("region", "IS_ANY_OF", []any{"US", "CA"}),
		}
	}
	raw := []schema.RuleInput{
		rule("A", 0, conds()...),
		rule("B", 0, conds()...),
	}
	m, stats, err := Compile(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalExpanded)
	assert.Equal(t, 2, stats.UniqueCombinations)
	assert.InDelta(t, 0.5, stats.DedupRate, 0.0001)
	assert.Equal(t, 2, m.CombinationCount())

	for _, c := range m.Combinations {
		assert.ElementsMatch(t, []string{"A", "B"}, c.RuleCodes)
	}
}

// TestCompileExpansionLimitExceeded verifies an over-ceiling IS_ANY_OF
// product is rejected, not silently capped.
func TestCompileExpansionLimitExceeded(t *testing.T) {
	values := make([]any, 10)
	for i := range values {
		values[i] = string(rune('a' + i))
	}
	raw := []schema.RuleInput{
		rule("BIG", 0, cond("x", "IS_ANY_OF", values)),
	}
	_, _, err := Compile(context.Background(), raw, WithMaxExpansion(5))
	require.Error(t, err)

	var list *schema.ErrorList
	require.ErrorAs(t, err, &list)
	assert.Equal(t, schema.ExpansionLimitExceeded, list.Errors[0].Kind)
}

// TestCompileInvalidRuleSurfacesSchemaError checks that a schema-level
// validation failure (handled entirely inside schema.Validate) still
// propagates through Compile unmodified.
func TestCompileInvalidRuleSurfacesSchemaError(t *testing.T) {
	raw := []schema.RuleInput{rule("", 0, cond("a", "EQUAL_TO", "x"))}
	_, _, err := Compile(context.Background(), raw)
	require.Error(t, err)
}

// TestCompileSingleValueIsAnyOfMatchesEqualTo verifies the boundary
// behavior that a single-value IS_ANY_OF strength-reduces and yields
// the same single combination as the equivalent EQUAL_TO.
func TestCompileSingleValueIsAnyOfMatchesEqualTo(t *testing.T) {
	anyOf, _, err := Compile(context.Background(), []schema.RuleInput{
		rule("A", 0, cond("country", "IS_ANY_OF", []any{"US"})),
	})
	require.NoError(t, err)

	eq, _, err := Compile(context.Background(), []schema.RuleInput{
		rule("A", 0, cond("country", "EQUAL_TO", "US")),
	})
	require.NoError(t, err)

	require.Equal(t, 1, anyOf.CombinationCount())
	require.Equal(t, 1, eq.CombinationCount())
	assert.Equal(t, eq.Combinations[0].PredicateIDs, anyOf.Combinations[0].PredicateIDs)
}

// TestCompileDuplicateConditionCollapses: a repeated condition (or an
// IS_ANY_OF variant colliding with an identical EQUAL_TO) must collapse
// to one predicate per combination, or the combination's required count
// could never be reached.
func TestCompileDuplicateConditionCollapses(t *testing.T) {
	raw := []schema.RuleInput{
		rule("A", 0,
			cond("country", "EQUAL_TO", "US"),
			cond("country", "IS_ANY_OF", []any{"US", "CA"})),
	}
	m, _, err := Compile(context.Background(), raw)
	require.NoError(t, err)

	// The US variant collapses with the static EQUAL_TO; the CA variant
	// keeps both predicates and can never match both at once, but it
	// compiles (cross-condition knowledge is not the expander's business).
	require.Equal(t, 2, m.CombinationCount())
	for i, c := range m.Combinations {
		assert.EqualValues(t, len(c.PredicateIDs), m.RequiredCount[i])
		for j := 1; j < len(c.PredicateIDs); j++ {
			assert.NotEqual(t, c.PredicateIDs[j-1], c.PredicateIDs[j], "combination %d has a duplicate predicate", i)
		}
	}
}

// TestCompileBuildsInvertedIndex checks that every predicate in a
// combination lists that combination in its inverted-index bucket.
func TestCompileBuildsInvertedIndex(t *testing.T) {
	raw := []schema.RuleInput{
		rule("A", 0, cond("amount", "BETWEEN", []any{18.0, 65.0})),
	}
	m, _, err := Compile(context.Background(), raw)
	require.NoError(t, err)
	require.Equal(t, 1, m.CombinationCount())

	pid := m.Combinations[0].PredicateIDs[0]
	bm, ok := m.InvertedIndex[pid]
	require.True(t, ok)
	assert.True(t, bm.Contains(0))
}

// TestCompileFieldToPredicatesSortedByWeight checks that per-field
// predicate lists are ordered ascending by weight, as the evaluator
// relies on for its field-probing order.
func TestCompileFieldToPredicatesSortedByWeight(t *testing.T) {
	raw := []schema.RuleInput{
		rule("RANGE", 0, cond("amount", "GREATER_THAN", 10.0)),
		rule("SUBSTR", 0, cond("amount", "CONTAINS", "abc")),
	}
	m, _, err := Compile(context.Background(), raw)
	require.NoError(t, err)

	for _, preds := range m.FieldToPredicates {
		for i := 1; i < len(preds); i++ {
			assert.LessOrEqual(t, m.Preds.Get(preds[i-1]).Weight, m.Preds.Get(preds[i]).Weight)
		}
	}
}

// TestCompileBaseConditionSetsGroupSharedEqualTo: three rules sharing
// status=ACTIVE with distinct numeric thresholds should be grouped
// under one BaseConditionSet covering all three combinations.
func TestCompileBaseConditionSetsGroupSharedEqualTo(t *testing.T) {
	raw := []schema.RuleInput{
		rule("R1", 0, cond("status", "EQUAL_TO", "active"), cond("amount", "GREATER_THAN", 10.0)),
		rule("R2", 0, cond("status", "EQUAL_TO", "active"), cond("amount", "GREATER_THAN", 20.0)),
		rule("R3", 0, cond("status", "EQUAL_TO", "active"), cond("amount", "GREATER_THAN", 30.0)),
	}
	m, _, err := Compile(context.Background(), raw)
	require.NoError(t, err)
	require.Len(t, m.BaseConditionSets, 1)
	assert.Equal(t, uint64(3), m.BaseConditionSets[0].Combinations.GetCardinality())
}

// TestCompileVolatileFieldExcludedFromBaseConditionSets ensures a field
// marked volatile never contributes a base-condition group.
func TestCompileVolatileFieldExcludedFromBaseConditionSets(t *testing.T) {
	raw := []schema.RuleInput{
		rule("R1", 0, cond("request_id", "EQUAL_TO", "abc")),
	}
	m, _, err := Compile(context.Background(), raw, WithVolatileFields("request_id"))
	require.NoError(t, err)
	assert.Empty(t, m.BaseConditionSets)
}
