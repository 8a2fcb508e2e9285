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
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/heliosrules/helios"
	"github.com/heliosrules/helios/internal/schema"
)

func newCompileCommand() *cobra.Command {
	var maxExpansion int

	cmd := &cobra.Command{
		Use:   "compile <rules.json>",
		Short: "Compile a rule file and print the resulting model's stats",
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

			var opts []helios.Option
			if maxExpansion > 0 {
				opts = append(opts, helios.WithMaxExpansion(maxExpansion))
			}

			engine, err := helios.Compile(rules, opts...)
			if err != nil {
				printCompileErrors(err)
				return err
			}
			defer engine.Close()

			stats := engine.Stats()
			fmt.Println(headingStyle.Render("Compile succeeded"))
			fmt.Printf("  total rules:         %d\n", stats.TotalRules)
			fmt.Printf("  enabled rules:       %d\n", stats.EnabledRules)
			fmt.Printf("  total expanded:      %d\n", stats.TotalExpanded)
			fmt.Printf("  unique combinations: %d\n", stats.UniqueCombinations)
			fmt.Printf("  dedup rate:          %.1f%%\n", stats.DedupRate*100)
			return nil
		},
	}

	cmd.Flags().IntVar(&maxExpansion, "max-expansion", 0,
		"override the per-rule Cartesian-expansion ceiling (0 = use the tunables default)")
	return cmd
}

// printCompileErrors renders every accumulated *schema.CompileError on
// its own line, prefixed by its Kind, rather than dumping the wrapped
// ErrorList's single multi-line Error() string.
func printCompileErrors(err error) {
	fmt.Fprintln(os.Stderr, errStyle.Render("Compile failed:"))

	var list *schema.ErrorList
	if errors.As(err, &list) {
		for _, ce := range list.Errors {
			fmt.Fprintf(os.Stderr, "  %s %s\n", dimStyle.Render("["+string(ce.Kind)+"]"), ce.Error())
		}
		return
	}
	fmt.Fprintf(os.Stderr, "  %v\n", err)
}
