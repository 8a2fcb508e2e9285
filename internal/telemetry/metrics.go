// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry provides Prometheus metrics and OpenTelemetry
// tracing taps around the compile and evaluate pipelines. It never
// changes compile/evaluate outcomes — every call here is a side-effecting
// observation, never a branch the engine's matching result depends on.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// compilationsTotal counts Compile invocations by outcome (ok, error).
	compilationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "helios",
		Subsystem: "compiler",
		Name:      "compilations_total",
		Help:      "Total rule-set compilations by outcome",
	}, []string{"outcome"})

	// compileDurationSeconds measures end-to-end Compile latency.
	compileDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "helios",
		Subsystem: "compiler",
		Name:      "compile_duration_seconds",
		Help:      "Time spent compiling a rule set into an EngineModel",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
	})

	// combinationsTotal records the deduplicated combination count of the
	// most recently compiled model.
	combinationsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "helios",
		Subsystem: "compiler",
		Name:      "combinations_total",
		Help:      "Deduplicated combination count of the live model",
	})

	// dedupRate records the most recent compile's dedup rate, a gauge
	// since it describes the current model rather than accumulating
	// across compiles.
	dedupRate = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "helios",
		Subsystem: "compiler",
		Name:      "dedup_rate",
		Help:      "Fraction of expanded combinations removed by deduplication",
	})

	// evaluationsTotal counts Evaluate calls by whether any rule matched.
	evaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "helios",
		Subsystem: "evaluator",
		Name:      "evaluations_total",
		Help:      "Total event evaluations by match outcome",
	}, []string{"outcome"})

	// evaluateDurationSeconds measures per-event Evaluate latency.
	evaluateDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "helios",
		Subsystem: "evaluator",
		Name:      "evaluate_duration_seconds",
		Help:      "Time spent evaluating one event against the live model",
		Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 18),
	})

	// predicatesEvaluated tracks how many predicates a single Evaluate
	// call visited, the cost signal the pre-filter exists to bound.
	predicatesEvaluated = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "helios",
		Subsystem: "evaluator",
		Name:      "predicates_evaluated",
		Help:      "Predicates visited per Evaluate call",
		Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
	})

	// combinationsTouched tracks how many combinations had their counter
	// incremented at least once during a single Evaluate call.
	combinationsTouched = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "helios",
		Subsystem: "evaluator",
		Name:      "combinations_touched",
		Help:      "Combinations with a non-zero counter per Evaluate call",
		Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
	})

	// rulesMatched tracks the final matched-rule count after selection,
	// per Evaluate call.
	rulesMatched = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "helios",
		Subsystem: "evaluator",
		Name:      "rules_matched",
		Help:      "Matched rules returned per Evaluate call, after selection",
		Buckets:   []float64{0, 1, 2, 5, 10, 25, 50},
	})

	// baseConditionCacheTotal counts base-condition pre-filter cache
	// lookups by result (hit, miss).
	baseConditionCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "helios",
		Subsystem: "basecond_cache",
		Name:      "lookups_total",
		Help:      "Base-condition pre-filter cache lookups by result",
	}, []string{"result"})
)

// RecordCompile records one Compile call's outcome, duration, and (on
// success) the resulting model's combination count and dedup rate.
func RecordCompile(ok bool, durationSeconds float64, combinations int, dedup float64) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	compilationsTotal.WithLabelValues(outcome).Inc()
	compileDurationSeconds.Observe(durationSeconds)
	if ok {
		combinationsTotal.Set(float64(combinations))
		dedupRate.Set(dedup)
	}
}

// RecordEvaluate records one Evaluate call's cost signals and outcome.
func RecordEvaluate(matched bool, durationSeconds float64, predicatesSeen, combinationsSeen, rules int) {
	outcome := "no_match"
	if matched {
		outcome = "match"
	}
	evaluationsTotal.WithLabelValues(outcome).Inc()
	evaluateDurationSeconds.Observe(durationSeconds)
	predicatesEvaluated.Observe(float64(predicatesSeen))
	combinationsTouched.Observe(float64(combinationsSeen))
	rulesMatched.Observe(float64(rules))
}

// RecordCacheLookup records one base-condition pre-filter cache lookup.
func RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	baseConditionCacheTotal.WithLabelValues(result).Inc()
}
