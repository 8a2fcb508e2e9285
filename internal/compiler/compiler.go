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
	"errors"
	"time"

	"github.com/heliosrules/helios/internal/model"
	"github.com/heliosrules/helios/internal/schema"
	"github.com/heliosrules/helios/internal/telemetry"
)

// CompileStats summarizes one Compile call: total and enabled logical
// rules, how many combinations were produced before and after
// cross-rule deduplication, and the resulting dedup rate.
type CompileStats struct {
	TotalRules         int
	EnabledRules       int
	TotalExpanded      int
	UniqueCombinations int
	DedupRate          float64
}

// Compile validates raw, expands and deduplicates every enabled rule's
// conditions into combinations, profiles predicate selectivity, and
// assembles the resulting immutable EngineModel.
//
// On any validation or expansion failure, Compile returns every
// accumulated error via *schema.ErrorList; there is no partial-success
// result.
func Compile(ctx context.Context, raw []schema.RuleInput, opts ...Option) (*model.EngineModel, CompileStats, error) {
	started := time.Now()
	ctx, span := telemetry.StartCompileSpan(ctx, len(raw))

	m, stats, err := compile(ctx, raw, opts...)
	telemetry.RecordCompile(err == nil, time.Since(started).Seconds(), stats.UniqueCombinations, stats.DedupRate)
	telemetry.EndWithError(span, err)
	return m, stats, err
}

func compile(ctx context.Context, raw []schema.RuleInput, opts ...Option) (*model.EngineModel, CompileStats, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	rules, err := schema.Validate(raw)
	if err != nil {
		return nil, CompileStats{}, err
	}

	bc := newBuildContext()
	cb := newCombinationBuilder()
	errs := &schema.ErrorList{}

	enabledCount := 0
	for i, rule := range rules {
		if !rule.Enabled {
			continue
		}
		enabledCount++
		if err := expandRule(bc, cb, rule, i, o.MaxExpansion); err != nil {
			var ce *schema.CompileError
			if errors.As(err, &ce) {
				errs.Add(ce)
			} else {
				errs.Add(&schema.CompileError{Kind: schema.InvalidSchema, RuleCode: rule.RuleCode, RuleIndex: i, ConditionIndex: -1, Message: err.Error()})
			}
		}
	}
	if err := errs.AsError(); err != nil {
		return nil, CompileStats{}, err
	}

	profileSelectivity(bc)
	m := buildModel(ctx, bc, cb, o)

	stats := CompileStats{
		TotalRules:         len(rules),
		EnabledRules:       enabledCount,
		TotalExpanded:      cb.expandedTotal,
		UniqueCombinations: len(cb.combos),
	}
	if stats.TotalExpanded > 0 {
		stats.DedupRate = 1 - float64(stats.UniqueCombinations)/float64(stats.TotalExpanded)
	}

	return m, stats, nil
}
