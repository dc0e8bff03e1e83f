// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package mlerrors defines the error kinds reported when building, compiling and computing graphs.
//
// Errors carry a Kind, and each Kind belongs to one Class: construction errors are reported
// while adding operands to a builder or calling Build, compilation errors while planning
// for a device, and runtime errors during Compute.
//
// Errors are created with github.com/pkg/errors, so they carry a stack trace that is printed
// with "%+v".
package mlerrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind of error.
type Kind int

const (
	// Unknown is the Kind of errors not created by this package.
	Unknown Kind = iota

	// ShapeMismatch is returned when the dimensions of operands are incompatible for an operation.
	ShapeMismatch

	// TypeMismatch is returned when the data types of operands are incompatible for an operation,
	// or a buffer has the wrong data type.
	TypeMismatch

	// UnknownOperand is returned when an operand is nil, belongs to another builder, or a name
	// is not declared by the graph.
	UnknownOperand

	// EmptyGraph is returned when Build is called with no outputs.
	EmptyGraph

	// DuplicateName is returned when an input name is declared twice in the same builder.
	DuplicateName

	// UnsupportedOperation is returned when the selected device has no kernel for an operation
	// or a data type.
	UnsupportedOperation

	// DeviceUnavailable is returned when the requested device cannot be used, or the context
	// was already finalized.
	DeviceUnavailable

	// MissingInput is returned when Compute is not given a buffer for a declared input.
	MissingInput

	// SizeMismatch is returned when a buffer size doesn't match its operand shape.
	SizeMismatch

	// DeviceExecutionFailure is returned when the device fails while executing a graph.
	DeviceExecutionFailure
)

// Class groups error kinds by the phase in which they are reported.
type Class int

const (
	// UnknownClass of errors not created by this package.
	UnknownClass Class = iota
	ConstructionError
	CompilationError
	RuntimeError
)

var kindNames = [...]string{
	Unknown:                "Unknown",
	ShapeMismatch:          "ShapeMismatch",
	TypeMismatch:           "TypeMismatch",
	UnknownOperand:         "UnknownOperand",
	EmptyGraph:             "EmptyGraph",
	DuplicateName:          "DuplicateName",
	UnsupportedOperation:   "UnsupportedOperation",
	DeviceUnavailable:      "DeviceUnavailable",
	MissingInput:           "MissingInput",
	SizeMismatch:           "SizeMismatch",
	DeviceExecutionFailure: "DeviceExecutionFailure",
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Class returns the class of the error kind.
func (k Kind) Class() Class {
	switch k {
	case ShapeMismatch, TypeMismatch, UnknownOperand, EmptyGraph, DuplicateName:
		return ConstructionError
	case UnsupportedOperation, DeviceUnavailable:
		return CompilationError
	case MissingInput, SizeMismatch, DeviceExecutionFailure:
		return RuntimeError
	default:
		return UnknownClass
	}
}

// String implements fmt.Stringer.
func (c Class) String() string {
	switch c {
	case ConstructionError:
		return "ConstructionError"
	case CompilationError:
		return "CompilationError"
	case RuntimeError:
		return "RuntimeError"
	default:
		return "UnknownClass"
	}
}

// Error is an error with a Kind. The underlying cause holds the message and the stack trace.
type Error struct {
	Kind  Kind
	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.cause.Error())
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.cause }

// Cause implements github.com/pkg/errors causer interface.
func (e *Error) Cause() error { return e.cause }

// Format implements fmt.Formatter: "%+v" includes the stack trace.
func (e *Error) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') {
		_, _ = fmt.Fprintf(s, "%s: %+v", e.Kind, e.cause)
		return
	}
	_, _ = fmt.Fprint(s, e.Error())
}

// Errorf creates a new error of the given kind, with a stack trace.
func Errorf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, cause: errors.Errorf(format, args...)}
}

// Wrapf wraps err with a kind and a message. If err is nil it returns nil.
//
// If err already has a Kind, the new kind takes precedence.
func Wrapf(kind Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	var cause error
	if _, hasStack := err.(interface{ StackTrace() errors.StackTrace }); hasStack {
		cause = errors.WithMessagef(err, format, args...)
	} else {
		cause = errors.Wrapf(err, format, args...)
	}
	return &Error{Kind: kind, cause: cause}
}

// KindOf returns the kind of the outermost *Error in err's chain, or Unknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Is returns whether err has the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// ClassOf returns the class of err's kind.
func ClassOf(err error) Class {
	return KindOf(err).Class()
}
