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
	"fmt"
	"regexp"

	"github.com/heliosrules/helios/internal/dictionary"
	"github.com/heliosrules/helios/internal/predicate"
	"github.com/heliosrules/helios/internal/schema"
)

// buildContext carries the dictionaries and registry shared by every
// rule compiled in one Compile call.
type buildContext struct {
	fields *dictionary.FieldDictionary
	values *dictionary.ValueDictionary
	preds  *predicate.Registry

	// eqRefCount counts how many times each EQUAL_TO predicate id was
	// referenced while expanding the enabled-rule corpus (once per
	// occurrence, not just once per distinct predicate); the
	// selectivity profiler turns this into a per-field frequency.
	eqRefCount map[predicate.ID]int
}

func newBuildContext() *buildContext {
	return &buildContext{
		fields:     dictionary.NewFieldDictionary(),
		values:     dictionary.NewValueDictionary(),
		preds:      predicate.NewRegistry(),
		eqRefCount: make(map[predicate.ID]int),
	}
}

// internScalarEqualTo interns the EQUAL_TO predicate for fieldID/scalar,
// dispatching on the scalar's dynamic type: strings go through the
// value dictionary, numbers and bools are compared directly.
func (bc *buildContext) internScalarEqualTo(fieldID dictionary.ID, s schema.Scalar) predicate.ID {
	p := predicate.Predicate{FieldID: fieldID, Op: predicate.EqualTo}
	switch s.Kind {
	case schema.ScalarString:
		normalized := dictionary.CanonicalizeValue(s.Str)
		p.Operand = predicate.Operand{
			HasValueID: true,
			ValueID:    bc.values.EncodeValue(normalized),
			Raw:        s.Str,
		}
	case schema.ScalarNumber:
		p.Operand = predicate.Operand{IsNumeric: true, Number: s.Num}
	case schema.ScalarBool:
		p.Operand = predicate.Operand{HasBool: true, Bool: s.Bool}
	}
	id := bc.preds.Intern(p)
	bc.eqRefCount[id]++
	return id
}

// internCondition interns the predicate for one static (non-IsAnyOf)
// condition. It is never called with Op == IsAnyOf; the expander
// resolves every IS_ANY_OF condition into a list of EQUAL_TO variants
// before interning.
func (bc *buildContext) internCondition(c schema.Condition) (predicate.ID, error) {
	fieldID := bc.fields.EncodeField(c.Field)

	switch c.Op {
	case predicate.EqualTo:
		return bc.internScalarEqualTo(fieldID, c.Eq), nil

	case predicate.GreaterThan, predicate.LessThan:
		p := predicate.Predicate{
			FieldID: fieldID,
			Op:      c.Op,
			Operand: predicate.Operand{Number: c.Threshold},
			Weight:  c.Op.DefaultSelectivity(),
		}
		return bc.preds.Intern(p), nil

	case predicate.Between:
		p := predicate.Predicate{
			FieldID: fieldID,
			Op:      predicate.Between,
			Operand: predicate.Operand{Number: c.Low, NumberHi: c.High},
			Weight:  predicate.Between.DefaultSelectivity(),
		}
		return bc.preds.Intern(p), nil

	case predicate.Contains:
		p := predicate.Predicate{
			FieldID: fieldID,
			Op:      predicate.Contains,
			Operand: predicate.Operand{Raw: c.Text},
			Weight:  predicate.Contains.DefaultSelectivity(),
		}
		return bc.preds.Intern(p), nil

	case predicate.Regex:
		if _, err := regexp.Compile(c.Text); err != nil {
			return 0, fmt.Errorf("invalid regex %q: %w", c.Text, err)
		}
		re := regexp.MustCompile("^(?:" + c.Text + ")$")
		p := predicate.Predicate{
			FieldID: fieldID,
			Op:      predicate.Regex,
			Operand: predicate.Operand{Raw: c.Text, Compiled: re},
			Weight:  predicate.Regex.DefaultSelectivity(),
		}
		return bc.preds.Intern(p), nil

	default:
		return 0, fmt.Errorf("condition on field %q has unsupported operator %s at compile time", c.Field, c.Op)
	}
}
