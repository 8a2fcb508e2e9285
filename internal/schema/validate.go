// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package schema

import (
	"fmt"

	"github.com/heliosrules/helios/internal/dictionary"
	"github.com/heliosrules/helios/internal/predicate"
)

// Validate normalizes and validates raw rule input, returning the full
// accumulated ErrorList (not just the first failure) when anything is
// wrong. It never returns a partial Rule slice alongside a non-nil error.
func Validate(raw []RuleInput) ([]Rule, error) {
	errs := &ErrorList{}
	seenCodes := make(map[string]int)
	rules := make([]Rule, 0, len(raw))

	for i, ri := range raw {
		enabled := enabledOrDefault(ri.Enabled)

		if ri.RuleCode == "" {
			errs.Add(newError(InvalidSchema, i, ri.RuleCode, -1, "rule_code must not be empty"))
			continue
		}
		if enabled {
			if prev, ok := seenCodes[ri.RuleCode]; ok {
				errs.Add(newError(DuplicateRuleCode, i, ri.RuleCode, -1, "duplicate rule_code, already used by rule[%d]", prev))
				continue
			}
			seenCodes[ri.RuleCode] = i
		}

		if len(ri.Conditions) == 0 {
			errs.Add(newError(InvalidSchema, i, ri.RuleCode, -1, "rule has no conditions"))
			continue
		}

		conds, ok := validateConditions(ri, i, errs)
		if !ok {
			continue
		}
		if len(conds) == 0 {
			errs.Add(newError(InvalidSchema, i, ri.RuleCode, -1, "rule has no enabled conditions"))
			continue
		}

		if !detectContradictions(conds, i, ri.RuleCode, errs) {
			continue
		}

		rules = append(rules, Rule{
			RuleCode:    ri.RuleCode,
			Priority:    ri.Priority,
			Description: ri.Description,
			Enabled:     enabled,
			Conditions:  conds,
		})
	}

	if err := errs.AsError(); err != nil {
		return nil, err
	}
	return rules, nil
}

// validateConditions normalizes every enabled condition of ri, reporting
// every failure it finds. The second return value is false when the rule
// should be dropped entirely (a structural failure occurred).
func validateConditions(ri RuleInput, ruleIndex int, errs *ErrorList) ([]Condition, bool) {
	ok := true
	out := make([]Condition, 0, len(ri.Conditions))

	for ci, c := range ri.Conditions {
		if !enabledOrDefault(c.Enabled) {
			continue
		}
		if c.Field == "" {
			errs.Add(newError(InvalidSchema, ruleIndex, ri.RuleCode, ci, "field must not be empty"))
			ok = false
			continue
		}
		if c.Operator == "" {
			errs.Add(newError(InvalidSchema, ruleIndex, ri.RuleCode, ci, "operator must not be empty"))
			ok = false
			continue
		}

		op, known := predicate.ParseOperator(c.Operator)
		if !known {
			errs.Add(newError(UnknownOperator, ruleIndex, ri.RuleCode, ci, "unknown operator %q", c.Operator))
			ok = false
			continue
		}
		if c.Value == nil {
			errs.Add(newError(InvalidSchema, ruleIndex, ri.RuleCode, ci, "value must not be null/absent"))
			ok = false
			continue
		}

		cond, err := normalizeCondition(c.Field, op, c.Value)
		if err != nil {
			errs.Add(newError(TypeMismatch, ruleIndex, ri.RuleCode, ci, "%s", err.Error()))
			ok = false
			continue
		}
		out = append(out, cond)
	}

	if !ok {
		return nil, false
	}
	return out, true
}

// normalizeCondition converts a decoded JSON value into the operator's
// expected Scalar/threshold/range/list shape.
func normalizeCondition(field string, op predicate.Operator, value any) (Condition, error) {
	cond := Condition{Field: field, Op: op}

	switch op {
	case predicate.EqualTo:
		s, err := scalarOf(value)
		if err != nil {
			return cond, err
		}
		cond.Eq = s

	case predicate.GreaterThan, predicate.LessThan:
		n, ok := numberOf(value)
		if !ok {
			return cond, fmt.Errorf("%s requires a numeric value", op)
		}
		cond.Threshold = n

	case predicate.Between:
		pair, ok := value.([]any)
		if !ok || len(pair) != 2 {
			return cond, fmt.Errorf("BETWEEN requires a two-element array")
		}
		lo, okLo := numberOf(pair[0])
		hi, okHi := numberOf(pair[1])
		if !okLo || !okHi {
			return cond, fmt.Errorf("BETWEEN requires numeric bounds")
		}
		if lo > hi {
			return cond, fmt.Errorf("BETWEEN lower bound %v exceeds upper bound %v", lo, hi)
		}
		cond.Low, cond.High = lo, hi

	case predicate.Contains, predicate.Regex:
		s, ok := value.(string)
		if !ok {
			return cond, fmt.Errorf("%s requires a string value", op)
		}
		cond.Text = s

	case predicate.IsAnyOf:
		list, ok := value.([]any)
		if !ok || len(list) == 0 {
			return cond, fmt.Errorf("IS_ANY_OF requires a non-empty array")
		}
		values := make([]Scalar, 0, len(list))
		for _, v := range list {
			s, err := scalarOf(v)
			if err != nil {
				return cond, err
			}
			values = append(values, s)
		}
		if len(values) == 1 {
			// Single-valued IS_ANY_OF strength-reduces to EQUAL_TO:
			// fewer combinations to expand, identical semantics.
			cond.Op = predicate.EqualTo
			cond.Eq = values[0]
		} else {
			cond.AnyOf = values
		}

	default:
		return cond, fmt.Errorf("operator %s is not supported in conditions", op)
	}

	return cond, nil
}

func scalarOf(value any) (Scalar, error) {
	switch v := value.(type) {
	case string:
		return Scalar{Kind: ScalarString, Str: v}, nil
	case bool:
		return Scalar{Kind: ScalarBool, Bool: v}, nil
	case float64:
		return Scalar{Kind: ScalarNumber, Num: v}, nil
	default:
		return Scalar{}, fmt.Errorf("unsupported value type %T", value)
	}
}

func numberOf(value any) (float64, bool) {
	n, ok := value.(float64)
	return n, ok
}

// detectContradictions catches the four decidable intra-rule
// contradiction forms — two distinct EQUAL_TO on one field, an
// impossible GREATER_THAN/LESS_THAN pair, disjoint IS_ANY_OF lists on
// one field, an inverted BETWEEN — and rejects the rule with a compile
// error rather than silently compiling a predicate set that can never
// match. The first three are reported here as Contradiction; an inverted
// BETWEEN is already rejected at normalization as TypeMismatch. CONTAINS/REGEX
// contradictions are undecidable in general and compile as written. It
// returns false (and has already appended to errs) when a contradiction
// was found.
//
// "Same field" means the canonical field identity the compiler interns
// under, not the raw spelling: "Status" and "status" (or "user-id" and
// "user_id") land on one FieldID at compile time, so they must collide
// here too or a dead two-EQUAL_TO combination slips through.
func detectContradictions(conds []Condition, ruleIndex int, ruleCode string, errs *ErrorList) bool {
	ok := true

	eqByField := make(map[string]Scalar)
	gtByField := make(map[string]float64)
	ltByField := make(map[string]float64)
	anyOfByField := make(map[string][]Scalar)

	for _, c := range conds {
		field := dictionary.CanonicalizeField(c.Field)
		switch c.Op {
		case predicate.EqualTo:
			if prev, seen := eqByField[field]; seen && !scalarEqual(prev, c.Eq) {
				errs.Add(newError(Contradiction, ruleIndex, ruleCode, -1,
					"field %q has two distinct EQUAL_TO conditions, can never match", field))
				ok = false
			}
			eqByField[field] = c.Eq

		case predicate.GreaterThan:
			if prev, seen := gtByField[field]; !seen || c.Threshold > prev {
				gtByField[field] = c.Threshold
			}

		case predicate.LessThan:
			if prev, seen := ltByField[field]; !seen || c.Threshold < prev {
				ltByField[field] = c.Threshold
			}

		case predicate.IsAnyOf:
			if prev, seen := anyOfByField[field]; seen {
				if !scalarSetsIntersect(prev, c.AnyOf) {
					errs.Add(newError(Contradiction, ruleIndex, ruleCode, -1,
						"field %q has two IS_ANY_OF conditions with no common value", field))
					ok = false
				}
			}
			anyOfByField[field] = c.AnyOf
		}
	}

	for field, gt := range gtByField {
		if lt, seen := ltByField[field]; seen && lt <= gt {
			errs.Add(newError(Contradiction, ruleIndex, ruleCode, -1,
				"field %q requires > %v and < %v, no value satisfies both", field, gt, lt))
			ok = false
		}
	}

	return ok
}

func scalarEqual(a, b Scalar) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case ScalarString:
		return dictionary.CanonicalizeValue(a.Str) == dictionary.CanonicalizeValue(b.Str)
	case ScalarNumber:
		return a.Num == b.Num
	case ScalarBool:
		return a.Bool == b.Bool
	default:
		return false
	}
}

func scalarSetsIntersect(a, b []Scalar) bool {
	for _, x := range a {
		for _, y := range b {
			if scalarEqual(x, y) {
				return true
			}
		}
	}
	return false
}
