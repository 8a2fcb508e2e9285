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

// Registry interns Predicates by structural equality (field + operator +
// operand) and assigns each distinct one a dense ID, in first-seen order.
// It is built single-threaded by the compiler and is immutable once the
// EngineModel that owns it is published.
type Registry struct {
	byKey map[string]ID
	byID  []Predicate
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byKey: make(map[string]ID)}
}

// Intern returns the ID for p, registering it if no structurally-equal
// predicate has been seen before. The Weight on a freshly registered
// predicate is taken from p; interning an already-known predicate does
// not overwrite its stored Weight (the first writer wins — weights are
// finalized once by the selectivity profiler before any evaluation, so
// callers must Intern all predicates before consulting Weight via Get).
func (r *Registry) Intern(p Predicate) ID {
	if !p.Op.IsRuntimeOperator() {
		// Only the compiler calls Intern, after validation and IS_ANY_OF
		// expansion; anything else here is a bug, not bad user input.
		panic("predicate: interning non-runtime operator " + p.Op.String())
	}
	key := p.Key()
	if id, ok := r.byKey[key]; ok {
		return id
	}
	id := ID(len(r.byID))
	r.byKey[key] = id
	r.byID = append(r.byID, p)
	return id
}

// Get returns the predicate registered under id.
func (r *Registry) Get(id ID) Predicate {
	return r.byID[id]
}

// SetWeight updates the Weight field of an already-interned predicate.
// Used by the selectivity profiler after all predicates for a
// compile are known.
func (r *Registry) SetWeight(id ID, weight float64) {
	r.byID[id].Weight = weight
}

// Len returns the number of distinct interned predicates.
func (r *Registry) Len() int {
	return len(r.byID)
}

// All returns the full dense predicate table, indexed by ID. The
// returned slice must not be mutated by callers outside this package;
// it is exposed for the model builder to copy into the immutable
// EngineModel.
func (r *Registry) All() []Predicate {
	return r.byID
}
