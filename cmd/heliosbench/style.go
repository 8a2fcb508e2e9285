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
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// colorOutput is false when stdout is not a terminal (piped to a file,
// grepped, or running in CI), in which case every style below degrades
// to plain text rather than emitting ANSI escapes a log aggregator would
// have to strip.
var colorOutput = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())

var (
	headingStyle = maybeStyle(lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")))
	okStyle      = maybeStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("10")))
	warnStyle    = maybeStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("11")))
	errStyle     = maybeStyle(lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9")))
	dimStyle     = maybeStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("8")))
)

// maybeStyle strips all rendering rules from s when colorOutput is
// false, so Render just returns its input unchanged.
func maybeStyle(s lipgloss.Style) lipgloss.Style {
	if colorOutput {
		return s
	}
	return lipgloss.NewStyle()
}
