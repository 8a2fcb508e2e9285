// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package schema

import (
	"fmt"

	"github.com/goccy/go-json"
)

// conditionAllowedKeys is the closed set of keys a condition object may
// carry, unlike the top-level rule object, whose unknown keys are
// silently ignored (Go's default struct-tag decode behavior is enough
// for that).
var conditionAllowedKeys = map[string]bool{
	"field": true, "operator": true, "value": true, "enabled": true,
}

// rawRuleInput mirrors RuleInput but keeps each condition as a raw JSON
// message so decodeConditions can inspect its keys before the strict
// ConditionInput decode runs.
type rawRuleInput struct {
	RuleCode    string            `json:"rule_code"`
	Priority    int               `json:"priority"`
	Description string            `json:"description"`
	Enabled     *bool             `json:"enabled"`
	Conditions  []json.RawMessage `json:"conditions"`
}

// DecodeRules parses a rule-source JSON document into raw RuleInput
// values. It uses goccy/go-json rather than encoding/json for
// decode throughput, since rule sources can run to tens of thousands of
// rules in the batch-compile path.
//
// A malformed document yields a single-element ErrorList carrying a
// MalformedJSON CompileError rather than the raw json error, so callers
// never need a type switch to tell a syntax failure from a validation
// failure.
func DecodeRules(data []byte) ([]RuleInput, error) {
	var raw []rawRuleInput
	if err := json.Unmarshal(data, &raw); err != nil {
		list := &ErrorList{}
		list.Add(newError(MalformedJSON, -1, "", -1, "%s", err.Error()))
		return nil, list
	}

	rules := make([]RuleInput, len(raw))
	list := &ErrorList{}
	for i, r := range raw {
		conds, err := decodeConditions(r.Conditions)
		if err != nil {
			list.Add(newError(MalformedJSON, i, r.RuleCode, -1, "%s", err.Error()))
			continue
		}
		rules[i] = RuleInput{
			RuleCode:    r.RuleCode,
			Priority:    r.Priority,
			Description: r.Description,
			Enabled:     r.Enabled,
			Conditions:  conds,
		}
	}
	if err := list.AsError(); err != nil {
		return nil, err
	}
	return rules, nil
}

// decodeConditions strictly decodes each raw condition object, rejecting
// any key outside conditionAllowedKeys before handing it to the ordinary
// struct decode.
func decodeConditions(raw []json.RawMessage) ([]ConditionInput, error) {
	out := make([]ConditionInput, len(raw))
	for i, msg := range raw {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(msg, &fields); err != nil {
			return nil, fmt.Errorf("condition[%d]: %w", i, err)
		}
		for key := range fields {
			if !conditionAllowedKeys[key] {
				return nil, fmt.Errorf("condition[%d]: unknown key %q", i, key)
			}
		}

		var c ConditionInput
		if err := json.Unmarshal(msg, &c); err != nil {
			return nil, fmt.Errorf("condition[%d]: %w", i, err)
		}
		out[i] = c
	}
	return out, nil
}
