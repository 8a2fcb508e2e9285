// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package compiler turns validated schema.Rule values into an immutable
// model.EngineModel: selectivity profiling, Cartesian expansion and
// cross-rule deduplication, and the final SoA/inverted-index build.
package compiler

import (
	"github.com/heliosrules/helios/internal/dictionary"
	"github.com/heliosrules/helios/internal/model"
)

// defaultMaxExpansion is the per-rule Cartesian-product ceiling.
// Exceeding it fails the compile with ExpansionLimitExceeded rather
// than silently capping the rule: a capped rule matches fewer events
// than its author wrote, and nothing would ever surface that.
const defaultMaxExpansion = 1 << 20

// Options holds every tunable the compiler reads; Option functions
// mutate it, mirroring index.SymbolIndexOption/WithMaxSymbols.
type Options struct {
	MaxExpansion      int
	VolatileFields    map[string]bool
	SelectionStrategy model.SelectionStrategy
}

// Option configures a single Compile call.
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		MaxExpansion:      defaultMaxExpansion,
		VolatileFields:    make(map[string]bool),
		SelectionStrategy: model.AllMatches,
	}
}

// WithMaxExpansion overrides the per-rule expansion ceiling.
func WithMaxExpansion(n int) Option {
	return func(o *Options) { o.MaxExpansion = n }
}

// WithVolatileFields marks field names (already in source form; they
// are canonicalized internally) as high-churn, excluding their EQUAL_TO
// predicates from base-condition grouping — e.g. request ids or
// timestamps that almost never repeat across events, where a base set
// would only ever see one hit and isn't worth pre-filtering on.
func WithVolatileFields(fields ...string) Option {
	return func(o *Options) {
		for _, f := range fields {
			o.VolatileFields[dictionary.CanonicalizeField(f)] = true
		}
	}
}

// WithSelectionStrategy sets the strategy recorded on the built model;
// the evaluator reads it back from the model at evaluate time.
func WithSelectionStrategy(s model.SelectionStrategy) Option {
	return func(o *Options) { o.SelectionStrategy = s }
}
