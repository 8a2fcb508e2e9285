// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package helios is the public façade over the rule-matching engine:
// compile a declarative rule set into an immutable model, evaluate
// events against it at sub-millisecond latency, and hot-swap the model
// without restarting any in-flight evaluator.
//
// Everything below this package's surface (internal/dictionary,
// internal/predicate, internal/schema, internal/compiler, internal/model,
// internal/runtime, internal/manager, internal/telemetry) is an
// implementation detail; callers only ever import "helios" itself.
package helios

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/goccy/go-json"

	"github.com/heliosrules/helios/internal/compiler"
	"github.com/heliosrules/helios/internal/manager"
	"github.com/heliosrules/helios/internal/model"
	"github.com/heliosrules/helios/internal/runtime"
	"github.com/heliosrules/helios/internal/schema"
)

// Re-exported wire and result types, so a caller never needs to import
// an internal/ package directly.
type (
	RuleInput      = schema.RuleInput
	ConditionInput = schema.ConditionInput
	Event          = runtime.Event
	MatchResult    = runtime.MatchResult
	MatchedRule    = runtime.MatchedRule
	CompileStats   = compiler.CompileStats

	// SelectionStrategy controls the post-match filter: keep every
	// matched rule, or only those tied for the highest priority.
	SelectionStrategy = model.SelectionStrategy

	// CompileError is the typed failure returned by Compile/Reload; use
	// errors.As to recover one from the *schema.ErrorList Compile
	// returns (a compile can accumulate more than one).
	CompileError = schema.CompileError
)

// Selection strategies.
const (
	AllMatches      = model.AllMatches
	HighestPriority = model.HighestPriority
)

// defaultMaxDistinctStrings bounds the event encoder's string
// normalization cache; see WithMaxDistinctStrings to override.
const defaultMaxDistinctStrings = 1 << 16

// Option configures a Compile (or Reload) call: both compiler tunables
// (forwarded to internal/compiler) and engine-level concerns the
// compiler package itself has no business knowing about.
type Option func(*engineOptions)

type engineOptions struct {
	compiler           []compiler.Option
	logger             *slog.Logger
	maxDistinctStrings int64
}

func defaultEngineOptions() *engineOptions {
	return &engineOptions{maxDistinctStrings: defaultMaxDistinctStrings}
}

// compilerOpts prepends the tuning.yaml-sourced expansion ceiling ahead
// of any caller-supplied compiler.Option, so an explicit
// WithMaxExpansion still wins (options apply in order, last write wins)
// while a caller who never mentions it gets the tunable default instead
// of internal/compiler's own hardcoded fallback.
func compilerOpts(o *engineOptions) []compiler.Option {
	out := make([]compiler.Option, 0, len(o.compiler)+1)
	out = append(out, compiler.WithMaxExpansion(runtime.GetDefaultMaxExpansion()))
	out = append(out, o.compiler...)
	return out
}

// WithMaxExpansion overrides the per-rule Cartesian-expansion ceiling;
// see internal/compiler.WithMaxExpansion.
func WithMaxExpansion(n int) Option {
	return func(o *engineOptions) { o.compiler = append(o.compiler, compiler.WithMaxExpansion(n)) }
}

// WithVolatileFields marks fields as high-churn, excluding them from
// base-condition grouping; see internal/compiler.WithVolatileFields.
func WithVolatileFields(fields ...string) Option {
	return func(o *engineOptions) {
		o.compiler = append(o.compiler, compiler.WithVolatileFields(fields...))
	}
}

// WithSelectionStrategy sets the compiled model's selection strategy.
// Defaults to AllMatches.
func WithSelectionStrategy(s SelectionStrategy) Option {
	return func(o *engineOptions) { o.compiler = append(o.compiler, compiler.WithSelectionStrategy(s)) }
}

// WithLogger threads a structured logger into the model manager and
// base-condition cache, defaulting to slog.Default() when unset.
func WithLogger(l *slog.Logger) Option {
	return func(o *engineOptions) { o.logger = l }
}

// WithMaxDistinctStrings bounds the event encoder's normalization cache.
// Defaults to 65536 distinct strings.
func WithMaxDistinctStrings(n int64) Option {
	return func(o *engineOptions) { o.maxDistinctStrings = n }
}

// Engine is the single entry point a caller holds: compile once, then
// call Evaluate concurrently from any number of goroutines and Reload
// whenever a fresh rule set needs to replace the live one.
type Engine struct {
	mgr     *manager.Manager
	cache   *runtime.BaseConditionCache
	pool    *runtime.EvaluationContextPool
	encoder *runtime.Encoder
	stats   atomic.Pointer[CompileStats]
	opts    *engineOptions
}

// Compile validates and compiles rules into a fresh Engine. On any
// compile failure, no Engine is returned — there is no partial-success
// path.
func Compile(rules []RuleInput, opts ...Option) (*Engine, error) {
	o := defaultEngineOptions()
	for _, opt := range opts {
		opt(o)
	}

	m, stats, err := compiler.Compile(context.Background(), rules, compilerOpts(o)...)
	if err != nil {
		return nil, err
	}

	encoder, err := runtime.NewEncoder(o.maxDistinctStrings)
	if err != nil {
		return nil, fmt.Errorf("helios: building event encoder: %w", err)
	}

	cache, err := runtime.NewBaseConditionCache(runtime.GetCacheTuning(), o.logger)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("helios: building base-condition cache: %w", err)
	}
	cache.StartTuning()

	e := &Engine{
		mgr:     manager.New(m, cache, o.logger),
		cache:   cache,
		pool:    runtime.NewEvaluationContextPool(),
		encoder: encoder,
		opts:    o,
	}
	e.stats.Store(&stats)
	return e, nil
}

// ParseRules decodes a rule-source JSON document into RuleInput values
// ready for Compile. Syntax errors surface as a MalformedJson
// CompileError, not a raw json.SyntaxError.
func ParseRules(data []byte) ([]RuleInput, error) {
	return schema.DecodeRules(data)
}

// eventWire is the event-input JSON shape; Event itself carries no json
// tags since internal/runtime has no JSON dependency of its own.
type eventWire struct {
	EventID    string         `json:"event_id"`
	EventType  string         `json:"event_type"`
	Attributes map[string]any `json:"attributes"`
}

// ParseEvent decodes a single event-input JSON document into an Event
// ready for Evaluate.
func ParseEvent(data []byte) (Event, error) {
	var w eventWire
	if err := json.Unmarshal(data, &w); err != nil {
		return Event{}, fmt.Errorf("helios: parsing event: %w", err)
	}
	return Event{EventID: w.EventID, EventType: w.EventType, Attributes: w.Attributes}, nil
}

// matchedRuleWire and matchResultWire are the output JSON shape.
type matchedRuleWire struct {
	CombinationID int32  `json:"combination_id"`
	RuleCode      string `json:"rule_code"`
	Priority      int    `json:"priority"`
	Description   string `json:"description"`
}

type matchResultWire struct {
	EventID             string            `json:"event_id"`
	MatchedRules        []matchedRuleWire `json:"matched_rules"`
	EvaluationTimeNanos int64             `json:"evaluation_time_nanos"`
	PredicatesEvaluated int               `json:"predicates_evaluated"`
	RulesMatched        int               `json:"rules_matched"`
}

// MarshalMatchResult renders r in the engine's output JSON shape, for
// callers that forward results over a wire rather than consuming the
// struct directly.
func MarshalMatchResult(r MatchResult) ([]byte, error) {
	w := matchResultWire{
		EventID:             r.EventID,
		MatchedRules:        make([]matchedRuleWire, len(r.MatchedRules)),
		EvaluationTimeNanos: r.EvaluationTimeNanos,
		PredicatesEvaluated: r.PredicatesEvaluated,
		RulesMatched:        r.RulesMatched,
	}
	for i, m := range r.MatchedRules {
		w.MatchedRules[i] = matchedRuleWire{
			CombinationID: int32(m.CombinationID),
			RuleCode:      m.RuleCode,
			Priority:      m.Priority,
			Description:   m.Description,
		}
	}
	return json.Marshal(w)
}

// Evaluate runs ev through the currently published model, checking out
// a scratch EvaluationContext for the duration of the call and
// releasing it back to the pool before returning. Safe to call
// concurrently from any number of goroutines.
func (e *Engine) Evaluate(ctx context.Context, ev Event) MatchResult {
	m := e.mgr.GetModel()
	evaluator := runtime.NewEvaluator(m, e.encoder, e.cache)

	ectx := e.pool.Get(m)
	defer ectx.Release()

	return evaluator.Evaluate(ctx, ev, ectx)
}

// Reload compiles rules into a new model and atomically publishes it.
// The options the Engine was compiled with carry over; opts apply on
// top of them for this reload only. On failure, the previously
// installed model is left intact and untouched; in-flight Evaluate
// calls against the old model always complete correctly regardless of
// outcome.
func (e *Engine) Reload(rules []RuleInput, opts ...Option) (CompileStats, error) {
	o := &engineOptions{
		compiler:           append([]compiler.Option(nil), e.opts.compiler...),
		logger:             e.opts.logger,
		maxDistinctStrings: e.opts.maxDistinctStrings,
	}
	for _, opt := range opts {
		opt(o)
	}

	m, stats, err := compiler.Compile(context.Background(), rules, compilerOpts(o)...)
	if err != nil {
		return CompileStats{}, err
	}

	if err := e.mgr.Install(m); err != nil {
		return CompileStats{}, err
	}
	e.stats.Store(&stats)
	return stats, nil
}

// Stats returns the CompileStats of whichever model is currently live
// (the most recent successful Compile or Reload).
func (e *Engine) Stats() CompileStats {
	return *e.stats.Load()
}

// Close stops the base-condition cache's adaptive-resize loop and
// releases the event encoder's normalization cache. An Engine must not
// be used after Close.
func (e *Engine) Close() {
	e.mgr.Close()
	e.encoder.Close()
}
