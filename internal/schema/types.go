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

import "github.com/heliosrules/helios/internal/predicate"

// RuleInput is the wire shape of one logical rule, decoded directly
// from the rule-source JSON. Unknown top-level fields are ignored (Go's
// default struct-tag decode behavior); unknown keys *inside* a
// condition are rejected by decodeConditions — a misspelled condition
// key silently changes matching semantics, so it fails loudly.
type RuleInput struct {
	RuleCode    string           `json:"rule_code"`
	Priority    int              `json:"priority"`
	Description string           `json:"description"`
	Enabled     *bool            `json:"enabled"`
	Conditions  []ConditionInput `json:"conditions"`
}

// ConditionInput is the wire shape of one condition.
type ConditionInput struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
	Enabled  *bool  `json:"enabled"`
}

// enabledOrDefault resolves an optional bool pointer: absent means
// enabled.
func enabledOrDefault(b *bool) bool {
	return b == nil || *b
}

// ScalarKind tags the dynamic type of a Scalar.
type ScalarKind uint8

const (
	ScalarString ScalarKind = iota
	ScalarNumber
	ScalarBool
)

// Scalar is a single decoded, operator-independent value: a string,
// number, or bool drawn from the rule JSON's "value" field.
type Scalar struct {
	Kind ScalarKind
	Str  string
	Num  float64
	Bool bool
}

// Condition is one validated, schema-normalized condition. Exactly one
// of the operator-specific fields below is populated, selected by Op.
type Condition struct {
	Field string
	Op    predicate.Operator

	// Eq is populated for EqualTo; a single-valued IS_ANY_OF is
	// strength-reduced to EqualTo during validation and lands here too.
	Eq Scalar

	// Threshold is populated for GreaterThan/LessThan.
	Threshold float64

	// Low/High are populated for Between (Low <= High, enforced at
	// validation time).
	Low, High float64

	// Text is populated for Contains/Regex (the raw pattern string).
	Text string

	// AnyOf is populated for IsAnyOf with two or more values; it is the
	// only field the combination expander reads to build the Cartesian
	// product.
	AnyOf []Scalar
}

// Rule is one validated logical rule, ready for the combination
// expander. Disabled conditions have already been dropped from
// Conditions; RuleInput.Enabled maps 1:1 to Rule.Enabled so the caller
// can still filter whole rules out before compiling if desired (Compile
// itself also skips !Enabled rules).
type Rule struct {
	RuleCode    string
	Priority    int
	Description string
	Enabled     bool
	Conditions  []Condition
}
