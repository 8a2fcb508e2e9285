// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/heliosrules/helios"
)

func newEvalCommand() *cobra.Command {
	var eventsPath string
	var synthetic int

	cmd := &cobra.Command{
		Use:   "eval <rules.json>",
		Short: "Compile a rule file and fire events at it, printing each MatchResult",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}
			rules, err := helios.ParseRules(data)
			if err != nil {
				printCompileErrors(err)
				return err
			}

			engine, err := helios.Compile(rules)
			if err != nil {
				printCompileErrors(err)
				return err
			}
			defer engine.Close()

			events, err := loadEvents(eventsPath, synthetic)
			if err != nil {
				return err
			}

			ctx := context.Background()
			for _, ev := range events {
				result := engine.Evaluate(ctx, ev)
				printMatchResult(result)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&eventsPath, "events", "", "path to a JSON array of events (event_id/event_type/attributes objects)")
	cmd.Flags().IntVar(&synthetic, "synthetic", 0,
		"fire this many synthetic events (random status/country/amount attributes from built-in sample values) instead of --events")
	return cmd
}

// loadEvents reads events from path when given, or fabricates n
// synthetic ones by sampling random attribute bags — useful for a quick
// smoke test of a rule file without hand-writing an events fixture.
func loadEvents(path string, synthetic int) ([]helios.Event, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		events := make([]helios.Event, len(raw))
		for i, msg := range raw {
			ev, err := helios.ParseEvent(msg)
			if err != nil {
				return nil, fmt.Errorf("event[%d]: %w", i, err)
			}
			events[i] = ev
		}
		return events, nil
	}

	if synthetic <= 0 {
		return nil, fmt.Errorf("specify either --events or --synthetic")
	}
	return syntheticEvents(synthetic), nil
}

var sampleStatuses = []string{"ACTIVE", "INACTIVE", "PENDING", "SUSPENDED"}
var sampleCountries = []string{"US", "CA", "UK", "FR", "DE", "JP"}

// syntheticEvents fabricates n events with a handful of commonly-rule'd
// attribute names and randomized values, each carrying a fresh uuid as
// its event_id.
func syntheticEvents(n int) []helios.Event {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	out := make([]helios.Event, n)
	for i := range out {
		out[i] = helios.Event{
			EventID:   uuid.NewString(),
			EventType: "synthetic.bench",
			Attributes: map[string]any{
				"status":   sampleStatuses[rng.Intn(len(sampleStatuses))],
				"country":  sampleCountries[rng.Intn(len(sampleCountries))],
				"amount":   float64(rng.Intn(10000)),
				"currency": "USD",
			},
		}
	}
	return out
}

func printMatchResult(r helios.MatchResult) {
	if r.RulesMatched == 0 {
		fmt.Printf("%s %s %s\n", dimStyle.Render(r.EventID), warnStyle.Render("no match"),
			dimStyle.Render(fmt.Sprintf("(%dns, %d predicates)", r.EvaluationTimeNanos, r.PredicatesEvaluated)))
		return
	}

	fmt.Printf("%s %s\n", dimStyle.Render(r.EventID), okStyle.Render(fmt.Sprintf("%d match(es)", r.RulesMatched)))
	for _, m := range r.MatchedRules {
		fmt.Printf("    %-20s priority=%-6d combination=%d  %s\n", m.RuleCode, m.Priority, m.CombinationID, m.Description)
	}
}
