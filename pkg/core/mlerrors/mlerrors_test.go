// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package mlerrors

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindClass(t *testing.T) {
	for _, kind := range []Kind{ShapeMismatch, TypeMismatch, UnknownOperand, EmptyGraph, DuplicateName} {
		assert.Equal(t, ConstructionError, kind.Class(), "kind %s", kind)
	}
	for _, kind := range []Kind{UnsupportedOperation, DeviceUnavailable} {
		assert.Equal(t, CompilationError, kind.Class(), "kind %s", kind)
	}
	for _, kind := range []Kind{MissingInput, SizeMismatch, DeviceExecutionFailure} {
		assert.Equal(t, RuntimeError, kind.Class(), "kind %s", kind)
	}
	assert.Equal(t, UnknownClass, Unknown.Class())
	assert.Equal(t, "Kind(99)", Kind(99).String())
}

func TestErrorf(t *testing.T) {
	err := Errorf(ShapeMismatch, "shapes %v and %v", []int{3}, []int{4})
	require.Error(t, err)
	assert.Equal(t, "ShapeMismatch: shapes [3] and [4]", err.Error())
	assert.True(t, Is(err, ShapeMismatch))
	assert.False(t, Is(err, TypeMismatch))
	assert.Equal(t, ConstructionError, ClassOf(err))

	// Stack trace is printed with %+v.
	withStack := fmt.Sprintf("%+v", err)
	assert.True(t, strings.Contains(withStack, "TestErrorf"), "missing stack trace in %q", withStack)
}

func TestWrapf(t *testing.T) {
	require.NoError(t, Wrapf(DeviceExecutionFailure, nil, "nothing"))

	err := Wrapf(DeviceExecutionFailure, io.ErrUnexpectedEOF, "reading output %q", "c")
	assert.Equal(t, DeviceExecutionFailure, KindOf(err))
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.Contains(t, err.Error(), `reading output "c"`)

	// Re-wrapping replaces the kind.
	err = Wrapf(UnsupportedOperation, Errorf(TypeMismatch, "int8"), "compiling")
	assert.Equal(t, UnsupportedOperation, KindOf(err))

	// Wrapping with pkg/errors keeps the kind visible.
	err = errors.WithMessage(Errorf(MissingInput, "input %q", "a"), "Compute")
	assert.Equal(t, MissingInput, KindOf(err))
	assert.Equal(t, Unknown, KindOf(io.EOF))
}
