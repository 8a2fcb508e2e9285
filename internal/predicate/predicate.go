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
	"fmt"
	"regexp"

	"github.com/heliosrules/helios/internal/dictionary"
)

// ID is a dense predicate identifier assigned by a Registry.
type ID int32

// Operand carries the operator-dependent payload of a Predicate. Only the
// fields relevant to Operator are populated; callers switch on Operator
// before reading.
type Operand struct {
	// ValueID is populated for EqualTo: the dictionary id of the operand
	// string, when the operand was a string. HasValueID is false when the
	// operand was numeric/bool, in which case Number/Bool carry it.
	ValueID    dictionary.ID
	HasValueID bool

	// Number is the threshold for GreaterThan/LessThan, and the lower
	// bound for Between.
	Number float64
	// NumberHi is the upper bound for Between.
	NumberHi float64

	// Bool carries a boolean EqualTo operand.
	Bool    bool
	HasBool bool

	// IsNumeric/HasBool record which scalar form EqualTo is comparing
	// against, for non-string operands.
	IsNumeric bool

	// Raw is the original (pre-normalization) string operand for Contains
	// and the pattern source for Regex. It is also kept for EqualTo
	// string operands so the registry's structural-equality key can be
	// computed without a dictionary round-trip.
	Raw string

	// Compiled is the compiled pattern for Regex. Two Predicates with the
	// same Raw pattern always share one compiled *regexp.Regexp once
	// interned by the Registry.
	Compiled *regexp.Regexp
}

// Predicate is the immutable tuple (field, operator, operand, weight)
// backing one atomic condition. Equality of two Predicates for interning purposes is
// structural over (FieldID, Op, Operand) and is implemented by Key(),
// not by Go's == on the struct (Operand embeds a *regexp.Regexp and is
// otherwise unwieldy to compare directly).
type Predicate struct {
	FieldID dictionary.ID
	Op      Operator
	Operand Operand

	// Weight is the selectivity estimate in (0,1]; lower means rarer and
	// is evaluated earlier. Populated by the selectivity profiler
	// after all predicates for a compile are known. Zero until then.
	Weight float64
}

// Key returns a stable string uniquely identifying the predicate's
// (field, operator, operand) for structural-equality interning. Weight is
// excluded by design: it is computed after interning and must not affect
// identity.
func (p Predicate) Key() string {
	switch p.Op {
	case EqualTo:
		if p.Operand.HasValueID {
			return fmt.Sprintf("%d|EQ|V:%d", p.FieldID, p.Operand.ValueID)
		}
		if p.Operand.IsNumeric {
			return fmt.Sprintf("%d|EQ|N:%v", p.FieldID, p.Operand.Number)
		}
		if p.Operand.HasBool {
			return fmt.Sprintf("%d|EQ|B:%v", p.FieldID, p.Operand.Bool)
		}
		return fmt.Sprintf("%d|EQ|S:%s", p.FieldID, p.Operand.Raw)
	case GreaterThan:
		return fmt.Sprintf("%d|GT|%v", p.FieldID, p.Operand.Number)
	case LessThan:
		return fmt.Sprintf("%d|LT|%v", p.FieldID, p.Operand.Number)
	case Between:
		return fmt.Sprintf("%d|BW|%v|%v", p.FieldID, p.Operand.Number, p.Operand.NumberHi)
	case Contains:
		return fmt.Sprintf("%d|CT|%s", p.FieldID, p.Operand.Raw)
	case Regex:
		return fmt.Sprintf("%d|RX|%s", p.FieldID, p.Operand.Raw)
	default:
		return fmt.Sprintf("%d|?%d|%s", p.FieldID, p.Op, p.Operand.Raw)
	}
}

// DefaultSelectivity returns the fixed heuristic constant for operators
// whose selectivity is not derived from corpus frequency: numeric
// ranges match roughly a third of events, substring/regex predicates
// roughly a tenth. EqualTo returns 0 because its selectivity always
// comes from observed value frequency in the profiler; callers must not
// use this value for EqualTo.
func (op Operator) DefaultSelectivity() float64 {
	switch op {
	case GreaterThan, LessThan, Between:
		return 0.3
	case Contains, Regex:
		return 0.1
	default:
		return 0
	}
}
