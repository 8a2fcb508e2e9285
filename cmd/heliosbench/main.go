// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// heliosbench is a developer diagnostic binary around the helios
// library: a debug/dump tool, not a served product surface. It never
// belongs on a request path; its job is to let a rule author compile a
// rule file, fire sample events at it, and watch a model hot-reload,
// all without writing a line of Go.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func main() {
	var traceOut bool
	var provider *sdktrace.TracerProvider

	root := &cobra.Command{
		Use:   "heliosbench",
		Short: "Compile, evaluate, and watch Helios rule sets from the command line",
		Long: "heliosbench is a diagnostic CLI around the helios rule-matching engine.\n" +
			"It is not part of the engine's public API surface; it exists so a rule\n" +
			"author can exercise compile/evaluate/hot-reload without writing Go.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !traceOut {
				return nil
			}
			exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
			if err != nil {
				return fmt.Errorf("starting stdout trace exporter: %w", err)
			}
			provider = sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
			otel.SetTracerProvider(provider)
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if provider == nil {
				return nil
			}
			return provider.Shutdown(context.Background())
		},
	}
	root.PersistentFlags().BoolVar(&traceOut, "trace", false,
		"print compile/evaluate trace spans to stdout")

	root.AddCommand(newCompileCommand())
	root.AddCommand(newEvalCommand())
	root.AddCommand(newWatchCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
