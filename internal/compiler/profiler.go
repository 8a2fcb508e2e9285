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

import "github.com/heliosrules/helios/internal/dictionary"

// profileSelectivity finalizes predicate weights: range/string
// predicates keep the fixed heuristic constant they were interned with
// (Operator.DefaultSelectivity); EQUAL_TO predicates instead get an
// observed-frequency estimate relative to every other EQUAL_TO
// predicate on the same field, so a rarely-referenced value is treated
// as rarer (lower selectivity, evaluated earlier) than a value repeated
// across many enabled rules.
//
// These weights are ordering hints only — match results never depend
// on their accuracy — so a single linear pass with no special-casing
// of ties is sufficient.
func profileSelectivity(bc *buildContext) {
	fieldTotal := make(map[predicateFieldKey]int)
	for id, count := range bc.eqRefCount {
		p := bc.preds.Get(id)
		fieldTotal[predicateFieldKey(p.FieldID)] += count
	}

	for id, count := range bc.eqRefCount {
		p := bc.preds.Get(id)
		total := fieldTotal[predicateFieldKey(p.FieldID)]
		if total == 0 {
			continue
		}
		bc.preds.SetWeight(id, float64(count)/float64(total))
	}
}

// predicateFieldKey is just dictionary.ID but named locally to keep the
// frequency map's intent obvious at the call site above.
type predicateFieldKey = dictionary.ID
