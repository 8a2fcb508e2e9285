// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package runtime

import (
	"sync"

	"github.com/heliosrules/helios/internal/model"
	"github.com/heliosrules/helios/internal/predicate"
)

// EvaluationContext is per-goroutine scratch state: a counters array
// sized to the model, and growable touched/true-predicate sets.
// reset() clears only what was touched, not the full counters array, so
// the counters and the touched/true-predicate slices are reused across
// Evaluate calls. Other per-call scratch (the field visiting order, the
// eligible-predicate set and bitmap intersections of the pre-filter) is
// still allocated on every Evaluate call.
//
// An EvaluationContext is never shared between goroutines; checkout is
// explicit (Pool.Get/ctx.Release) rather than a hidden thread-local, so
// ownership is visible at every call site.
type EvaluationContext struct {
	pool *EvaluationContextPool

	counters []int32
	touched  []model.CombinationID

	truePredicates []predicate.ID
	encoded        EncodedEvent

	PredicatesEvaluated int
	CombinationsTouched int
}

// reset clears counters for exactly the slots touched by the previous
// evaluation (O(touched), not O(combinations)) and empties the other
// scratch slices without releasing their backing arrays.
func (c *EvaluationContext) reset(n int) {
	for _, cid := range c.touched {
		if int(cid) < len(c.counters) {
			c.counters[cid] = 0
		}
	}
	c.touched = c.touched[:0]
	c.truePredicates = c.truePredicates[:0]
	c.PredicatesEvaluated = 0
	c.CombinationsTouched = 0

	if len(c.counters) < n {
		c.counters = make([]int32, n)
	}
}

// Release returns ctx to the pool it was checked out from. Calling
// Release on a context obtained any other way is a no-op.
func (c *EvaluationContext) Release() {
	if c.pool == nil {
		return
	}
	c.pool.put(c)
}

// EvaluationContextPool hands out per-goroutine EvaluationContexts,
// resizing each one's counters array to fit whatever model it is about
// to be used against.
type EvaluationContextPool struct {
	pool sync.Pool
}

// NewEvaluationContextPool creates an empty pool.
func NewEvaluationContextPool() *EvaluationContextPool {
	p := &EvaluationContextPool{}
	p.pool.New = func() any { return &EvaluationContext{} }
	return p
}

// Get checks out a context sized for m, creating one if the pool is
// empty. The returned context must be released with ctx.Release() once
// the caller's Evaluate call returns.
func (p *EvaluationContextPool) Get(m *model.EngineModel) *EvaluationContext {
	ctx := p.pool.Get().(*EvaluationContext)
	ctx.pool = p
	ctx.reset(m.CombinationCount())
	return ctx
}

func (p *EvaluationContextPool) put(ctx *EvaluationContext) {
	p.pool.Put(ctx)
}
