// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package schema parses and validates rule-source JSON into a
// normalized, still-uncompiled Rule list, and defines the compile-error
// taxonomy shared by the rest of the compiler pipeline.
package schema

import "fmt"

// ErrorKind is the closed taxonomy of compile failures.
type ErrorKind string

const (
	InvalidSchema          ErrorKind = "InvalidSchema"
	DuplicateRuleCode      ErrorKind = "DuplicateRuleCode"
	UnknownOperator        ErrorKind = "UnknownOperator"
	TypeMismatch           ErrorKind = "TypeMismatch"
	MalformedJSON          ErrorKind = "MalformedJson"
	ExpansionLimitExceeded ErrorKind = "ExpansionLimitExceeded"
	Contradiction          ErrorKind = "Contradiction"
)

// CompileError is the typed result surfaced by Compile on failure.
// The compiler accumulates errors for the whole input rather than
// failing on the first; there is no partial-success compilation.
// RuleCode and ConditionIndex identify the offending rule/condition
// where applicable; ConditionIndex is -1 when the error is not
// condition-specific.
type CompileError struct {
	Kind           ErrorKind
	RuleCode       string
	RuleIndex      int
	ConditionIndex int
	Message        string
}

func newError(kind ErrorKind, ruleIndex int, ruleCode string, conditionIndex int, format string, args ...any) *CompileError {
	return &CompileError{
		Kind:           kind,
		RuleCode:       ruleCode,
		RuleIndex:      ruleIndex,
		ConditionIndex: conditionIndex,
		Message:        fmt.Sprintf(format, args...),
	}
}

// Error implements the error interface.
func (e *CompileError) Error() string {
	if e.ConditionIndex >= 0 {
		return fmt.Sprintf("%s: rule[%d] %q condition[%d]: %s", e.Kind, e.RuleIndex, e.RuleCode, e.ConditionIndex, e.Message)
	}
	if e.RuleCode != "" || e.RuleIndex >= 0 {
		return fmt.Sprintf("%s: rule[%d] %q: %s", e.Kind, e.RuleIndex, e.RuleCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// ErrorList collects every CompileError accumulated across a single
// Compile call; whole-input accumulation matches the original system
// and is more useful to a rule author than fail-fast on the first error.
type ErrorList struct {
	Errors []*CompileError
}

// Error implements the error interface, joining all accumulated errors.
func (l *ErrorList) Error() string {
	if len(l.Errors) == 1 {
		return l.Errors[0].Error()
	}
	msg := fmt.Sprintf("%d compile errors:", len(l.Errors))
	for _, e := range l.Errors {
		msg += "\n  - " + e.Error()
	}
	return msg
}

// Add appends a compile error, letting callers outside this package
// (the compiler's expansion stage) accumulate into the same ErrorList
// that Validate uses.
func (l *ErrorList) Add(e *CompileError) {
	l.Errors = append(l.Errors, e)
}

// Unwrap exposes the accumulated errors to errors.Is/errors.As, so a
// caller can recover an individual *CompileError from the list without
// reaching into the Errors slice.
func (l *ErrorList) Unwrap() []error {
	errs := make([]error, len(l.Errors))
	for i, e := range l.Errors {
		errs[i] = e
	}
	return errs
}

// AsError returns l as an error, or nil if no errors were ever added.
func (l *ErrorList) AsError() error {
	if len(l.Errors) == 0 {
		return nil
	}
	return l
}
