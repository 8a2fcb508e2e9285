// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	compileTracer  = otel.Tracer("helios.compiler")
	evaluateTracer = otel.Tracer("helios.evaluator")
)

// StartCompileSpan opens a span around one Compile call, tagged with the
// raw rule count submitted.
func StartCompileSpan(ctx context.Context, ruleCount int) (context.Context, trace.Span) {
	return compileTracer.Start(ctx, "Compile",
		trace.WithAttributes(attribute.Int("helios.rule_count", ruleCount)))
}

// StartEvaluateSpan opens a span around one Evaluate call, tagged with
// the event id being evaluated.
func StartEvaluateSpan(ctx context.Context, eventID string) (context.Context, trace.Span) {
	return evaluateTracer.Start(ctx, "Evaluate",
		trace.WithAttributes(attribute.String("helios.event_id", eventID)))
}

// StartSubSpan opens a named child span for one evaluate/compile
// sub-step (encode, prefilter, predicates, counters, detect, select) under the
// tracer matching its phase.
func StartSubSpan(ctx context.Context, evaluatePhase bool, name string) (context.Context, trace.Span) {
	if evaluatePhase {
		return evaluateTracer.Start(ctx, name)
	}
	return compileTracer.Start(ctx, name)
}

// EndWithError records err on span (if non-nil) and ends it. Safe to
// call with a nil err, in which case the span is simply ended with an Ok
// status.
func EndWithError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
