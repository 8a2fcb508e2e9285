// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package predicate implements the typed operator/operand model that
// backs one atomic condition on one attribute.
package predicate

import "strings"

// Operator is a tagged enum over the supported condition operators. It
// is intentionally a small integer rather than an interface so the hot
// evaluation loop (internal/runtime) can switch on it and
// branch-predict instead of paying a virtual dispatch per predicate.
type Operator uint8

const (
	// Unknown is the zero value; a Predicate should never carry it past
	// validation.
	Unknown Operator = iota
	EqualTo
	IsAnyOf // compile-time only; expanded away before registration.
	GreaterThan
	LessThan
	Between
	Contains
	Regex
)

var operatorNames = map[Operator]string{
	Unknown:     "UNKNOWN",
	EqualTo:     "EQUAL_TO",
	IsAnyOf:     "IS_ANY_OF",
	GreaterThan: "GREATER_THAN",
	LessThan:    "LESS_THAN",
	Between:     "BETWEEN",
	Contains:    "CONTAINS",
	Regex:       "REGEX",
}

var namesToOperator = func() map[string]Operator {
	m := make(map[string]Operator, len(operatorNames))
	for op, name := range operatorNames {
		m[name] = op
	}
	return m
}()

// String implements fmt.Stringer.
func (o Operator) String() string {
	if name, ok := operatorNames[o]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseOperator resolves a case-insensitive operator name. ok is false for
// any name not in the supported set, including "OR" (top-level
// disjunction is rejected at the schema layer, not here).
func ParseOperator(name string) (op Operator, ok bool) {
	op, ok = namesToOperator[strings.ToUpper(strings.TrimSpace(name))]
	return op, ok && op != Unknown
}

// IsRuntimeOperator reports whether values of this operator can appear
// in a compiled Predicate. IsAnyOf never survives compilation (the
// expander strength-reduces or Cartesian-expands it into EqualTo);
// Unknown never survives validation.
func (o Operator) IsRuntimeOperator() bool {
	switch o {
	case EqualTo, GreaterThan, LessThan, Between, Contains, Regex:
		return true
	default:
		return false
	}
}
