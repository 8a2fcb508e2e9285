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
	"sort"
	"strconv"
	"strings"

	"github.com/heliosrules/helios/internal/model"
	"github.com/heliosrules/helios/internal/predicate"
	"github.com/heliosrules/helios/internal/schema"
)

// combinationBuilder accumulates combinations across every rule in one
// Compile call, deduplicating by canonical predicate-id sequence: two
// rules whose conditions project to the same sorted id list share one
// combination.
type combinationBuilder struct {
	byKey  map[string]model.CombinationID
	combos []model.Combination

	// expandedTotal counts every combination produced before
	// deduplication, for CompileStats.DedupRate.
	expandedTotal int
}

func newCombinationBuilder() *combinationBuilder {
	return &combinationBuilder{byKey: make(map[string]model.CombinationID)}
}

// register canonicalizes ids (sorted ascending, duplicates dropped; the
// resulting sequence is the dedup key) and either merges rule into an
// existing combination or creates a new one. Dropping duplicates
// matters for correctness, not just size: the inverted index lists a
// combination once per distinct predicate, so a duplicated id would
// leave the combination's counter permanently short of its required
// count.
func (cb *combinationBuilder) register(ids []predicate.ID, rule schema.Rule) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	ids = dedupSorted(ids)
	cb.expandedTotal++

	key := combinationKey(ids)
	if id, ok := cb.byKey[key]; ok {
		c := &cb.combos[id]
		c.RuleCodes = append(c.RuleCodes, rule.RuleCode)
		c.Priorities = append(c.Priorities, rule.Priority)
		c.Descriptions = append(c.Descriptions, rule.Description)
		return
	}

	id := model.CombinationID(len(cb.combos))
	cb.byKey[key] = id
	cb.combos = append(cb.combos, model.Combination{
		PredicateIDs: ids,
		RuleCodes:    []string{rule.RuleCode},
		Priorities:   []int{rule.Priority},
		Descriptions: []string{rule.Description},
	})
}

func dedupSorted(ids []predicate.ID) []predicate.ID {
	out := ids[:0]
	for i, id := range ids {
		if i == 0 || id != ids[i-1] {
			out = append(out, id)
		}
	}
	return out
}

func combinationKey(ids []predicate.ID) string {
	var b strings.Builder
	for i, id := range ids {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(int(id)))
	}
	return b.String()
}

// expandRule partitions rule's conditions into static (everything but
// multi-valued IS_ANY_OF) and expandable (one EQUAL_TO variant list per
// IS_ANY_OF), then emits the Cartesian product of the expandable lists
// crossed with the static set into cb. ruleIndex is used only for
// error reporting.
func expandRule(bc *buildContext, cb *combinationBuilder, rule schema.Rule, ruleIndex int, maxExpansion int) error {
	var staticIDs []predicate.ID
	var expandable [][]predicate.ID

	for _, c := range rule.Conditions {
		if c.Op != predicate.IsAnyOf {
			id, err := bc.internCondition(c)
			if err != nil {
				return &schema.CompileError{
					Kind:           schema.InvalidSchema,
					RuleCode:       rule.RuleCode,
					RuleIndex:      ruleIndex,
					ConditionIndex: -1,
					Message:        err.Error(),
				}
			}
			staticIDs = append(staticIDs, id)
			continue
		}

		fieldID := bc.fields.EncodeField(c.Field)
		variants := make([]predicate.ID, len(c.AnyOf))
		for i, s := range c.AnyOf {
			variants[i] = bc.internScalarEqualTo(fieldID, s)
		}
		expandable = append(expandable, variants)
	}

	total := 1
	for _, list := range expandable {
		total *= len(list)
		if total > maxExpansion {
			return &schema.CompileError{
				Kind:           schema.ExpansionLimitExceeded,
				RuleCode:       rule.RuleCode,
				RuleIndex:      ruleIndex,
				ConditionIndex: -1,
				Message:        "rule expansion exceeds the configured ceiling of " + strconv.Itoa(maxExpansion) + " combinations",
			}
		}
	}

	if len(expandable) == 0 {
		ids := append([]predicate.ID(nil), staticIDs...)
		cb.register(ids, rule)
		return nil
	}

	indices := make([]int, len(expandable))
	for {
		ids := make([]predicate.ID, 0, len(staticIDs)+len(expandable))
		ids = append(ids, staticIDs...)
		for i, idx := range indices {
			ids = append(ids, expandable[i][idx])
		}
		cb.register(ids, rule)

		pos := len(indices) - 1
		for pos >= 0 {
			indices[pos]++
			if indices[pos] < len(expandable[pos]) {
				break
			}
			indices[pos] = 0
			pos--
		}
		if pos < 0 {
			break
		}
	}
	return nil
}
