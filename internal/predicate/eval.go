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

import (
	"strings"

	"github.com/heliosrules/helios/internal/dictionary"
)

// Evaluate applies pred against v: a missing or null attribute is
// always false, numeric comparisons are strict and false for
// non-numeric values, and substring/regex operators read the original
// (pre-normalization) string. It dispatches on a tagged enum rather
// than an interface so the hot loop can branch-predict on Op.
//
// valueDict is used only by EqualTo when the predicate's operand is a
// dictionary value id: the attribute's normalized string is looked up
// (never inserted) and compared id-to-id. valueDict may be nil for
// predicates that never reach that branch (numeric/bool EqualTo, or any
// other operator).
func Evaluate(pred Predicate, v Value, valueDict *dictionary.ValueDictionary) bool {
	if v.Kind == KindMissing || v.Kind == KindNull {
		return false
	}

	switch pred.Op {
	case EqualTo:
		return evalEqualTo(pred, v, valueDict)
	case GreaterThan:
		n, ok := numericOf(v)
		return ok && n > pred.Operand.Number
	case LessThan:
		n, ok := numericOf(v)
		return ok && n < pred.Operand.Number
	case Between:
		n, ok := numericOf(v)
		return ok && n >= pred.Operand.Number && n <= pred.Operand.NumberHi
	case Contains:
		if v.Kind != KindString {
			return false
		}
		return containsSubstring(v.Original, pred.Operand.Raw)
	case Regex:
		if v.Kind != KindString {
			return false
		}
		if pred.Operand.Compiled == nil {
			return false
		}
		loc := pred.Operand.Compiled.FindStringIndex(v.Original)
		return loc != nil && loc[0] == 0 && loc[1] == len(v.Original)
	default:
		// IsAnyOf and Unknown never reach the evaluator: IsAnyOf is
		// expanded at compile time and Unknown is rejected by the
		// schema validator. Treat as non-match rather than panic,
		// since evaluation must never raise.
		return false
	}
}

func evalEqualTo(pred Predicate, v Value, valueDict *dictionary.ValueDictionary) bool {
	switch {
	case pred.Operand.HasValueID:
		if v.Kind != KindString || valueDict == nil {
			return false
		}
		id := valueDict.LookupValue(v.Str)
		return id != dictionary.NONE && id == pred.Operand.ValueID
	case pred.Operand.IsNumeric:
		n, ok := numericOf(v)
		return ok && n == pred.Operand.Number
	case pred.Operand.HasBool:
		return v.Kind == KindBool && v.Bool == pred.Operand.Bool
	default:
		// A string EqualTo operand that was never interned (e.g. built
		// directly in a test without going through the compiler) falls
		// back to a direct string comparison against the normalized form.
		return v.Kind == KindString && v.Str == CanonicalValueString(pred.Operand.Raw)
	}
}

func numericOf(v Value) (float64, bool) {
	if v.Kind != KindNumber {
		return 0, false
	}
	return v.Num, true
}

// containsSubstring reports whether needle occurs in haystack. A single
// CONTAINS predicate is evaluated with strings.Contains; when a field
// carries several CONTAINS predicates the model's per-field evaluator
// batches them through an Aho-Corasick automaton instead (see
// internal/model/contains_matcher.go) and never calls this function
// per-predicate in that case.
func containsSubstring(haystack, needle string) bool {
	return strings.Contains(haystack, needle)
}

// CanonicalValueString upper-cases a raw value the same way the value
// dictionary does, exported for the rare fallback path in evalEqualTo and
// for tests constructing predicates by hand.
func CanonicalValueString(raw string) string {
	return dictionary.CanonicalizeValue(raw)
}
