// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package model

import (
	"strings"

	"github.com/coregx/ahocorasick"

	"github.com/heliosrules/helios/internal/predicate"
)

// ContainsMatcher batches every CONTAINS predicate on one field into a
// single Aho-Corasick automaton, replacing N separate substring scans
// with one pass over the haystack. The model builder constructs one
// per field once that field carries two or more CONTAINS predicates; a
// lone CONTAINS predicate is cheaper to leave as a direct
// strings.Contains call (internal/predicate.Evaluate), so fields with
// fewer than two are never given a matcher.
type ContainsMatcher struct {
	automaton *ahocorasick.Automaton
	// predicateByText maps a literal's exact text (the predicate's raw
	// operand) to the predicate id that owns it. Two predicates on the
	// same field can never share identical raw text — the predicate
	// registry interns structurally-equal predicates to the same id —
	// so this map is never ambiguous.
	predicateByText map[string]predicate.ID
}

// NewContainsMatcher builds a matcher for the given (text -> predicate
// id) literals. It returns an error only if the underlying automaton
// fails to build, which the builder treats as falling back to per-
// predicate evaluation for that field rather than failing the compile.
func NewContainsMatcher(literals map[string]predicate.ID) (*ContainsMatcher, error) {
	builder := ahocorasick.NewBuilder()
	for text := range literals {
		builder.AddPattern([]byte(text))
	}
	automaton, err := builder.Build()
	if err != nil {
		return nil, err
	}

	byText := make(map[string]predicate.ID, len(literals))
	for text, id := range literals {
		byText[text] = id
	}
	return &ContainsMatcher{automaton: automaton, predicateByText: byText}, nil
}

// Len returns the number of predicates this matcher batches, used only
// for PredicatesEvaluated accounting.
func (m *ContainsMatcher) Len() int {
	return len(m.predicateByText)
}

// MatchAll returns every predicate id whose literal occurs anywhere in
// haystack, each appearing at most once even if its literal recurs
// several times — the counter-matching evaluator increments a
// combination's counter once per true predicate, so a duplicate id here
// would let a repeated substring overcount past a combination's
// required_count.
func (m *ContainsMatcher) MatchAll(haystack string) []predicate.ID {
	if len(m.predicateByText) == 0 {
		return nil
	}

	hb := []byte(haystack)
	seen := make(map[predicate.ID]bool, len(m.predicateByText))
	var out []predicate.ID

	at := 0
	for at <= len(hb) {
		match := m.automaton.Find(hb, at)
		if match == nil {
			break
		}
		// Find reports one match per position; other literals can start
		// at the same offset (one literal a prefix of another), so check
		// every not-yet-seen literal against the match's start before
		// moving on.
		rest := haystack[match.Start:]
		for text, pid := range m.predicateByText {
			if !seen[pid] && strings.HasPrefix(rest, text) {
				seen[pid] = true
				out = append(out, pid)
			}
		}
		if len(out) == len(m.predicateByText) {
			break
		}
		// Advance past the match's start (not its end) so an
		// overlapping literal starting one byte later is still found,
		// e.g. "ab" and "bc" both occurring in "abc".
		at = match.Start + 1
	}
	return out
}
