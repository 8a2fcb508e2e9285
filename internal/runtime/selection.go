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

import "github.com/heliosrules/helios/internal/model"

// MatchedRule is one (combination, rule) pairing returned in a
// MatchResult.
type MatchedRule struct {
	CombinationID model.CombinationID
	RuleCode      string
	Priority      int
	Description   string
}

// applySelection applies the model's selection strategy: AllMatches
// passes matches through unchanged (already in ascending
// combination-id order, since that is the order detectMatches builds
// them in); HighestPriority keeps only the matches whose priority
// equals the observed maximum, preserving their relative order. A
// stable filter over the input, never an in-place mutation.
func applySelection(strategy model.SelectionStrategy, matches []MatchedRule) []MatchedRule {
	if strategy != model.HighestPriority || len(matches) == 0 {
		return matches
	}

	max := matches[0].Priority
	for _, m := range matches[1:] {
		if m.Priority > max {
			max = m.Priority
		}
	}

	out := matches[:0:0]
	for _, m := range matches {
		if m.Priority == max {
			out = append(out, m)
		}
	}
	return out
}
