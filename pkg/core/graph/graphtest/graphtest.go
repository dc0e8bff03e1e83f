// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package graphtest holds test utilities for packages that build and compute graphs: building
// inputs and constants, and comparing results within a tolerance.
//
// The functions fail the test (with require) instead of returning errors.
package graphtest

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/webnn/backends"
	"github.com/gomlx/webnn/pkg/core/graph"
	"github.com/gomlx/webnn/pkg/core/mlerrors"
	"github.com/gomlx/webnn/pkg/core/tensors/numpy"
	"github.com/gomlx/webnn/pkg/support/xslices"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats/scalar"
)

// DefaultTolerance is the absolute and relative tolerance used by CheckValue.
const DefaultTolerance = 1e-4

// SizeOfShape returns the number of elements of a tensor with the given dimensions.
func SizeOfShape(dimensions ...int) int {
	return xslices.Product(dimensions)
}

// CheckValue returns whether actual and expected have the same length and every value is within
// DefaultTolerance (absolute or relative) of the expected one.
func CheckValue(actual, expected []float32) bool {
	return CheckValueWithTolerance(actual, expected, DefaultTolerance)
}

// CheckValueWithTolerance is like CheckValue, with the given tolerance.
func CheckValueWithTolerance(actual, expected []float32, tolerance float64) bool {
	if len(actual) != len(expected) {
		return false
	}
	for ii, want := range expected {
		if !scalar.EqualWithinAbsOrRel(float64(actual[ii]), float64(want), tolerance, tolerance) {
			return false
		}
	}
	return true
}

// RequireValues fails the test if actual is not within DefaultTolerance of expected, reporting the
// first mismatch.
func RequireValues(t *testing.T, actual, expected []float32) {
	t.Helper()
	require.Len(t, actual, len(expected))
	for ii, want := range expected {
		require.InDeltaf(t, want, actual[ii], DefaultTolerance*max(1, float64(abs(want))),
			"value #%d differs: got %g, wanted %g", ii, actual[ii], want)
	}
}

func abs(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}

// NewContext creates a context for the device preference, and finalizes it at the end of the test.
// It skips the test if there is no such device available.
func NewContext(t *testing.T, preference backends.DevicePreference) *graph.Context {
	t.Helper()
	ctx, err := graph.NewContext(graph.ContextOptions{DevicePreference: preference})
	if mlerrors.Is(err, mlerrors.DeviceUnavailable) {
		t.Skipf("device %s not available: %v", preference, err)
	}
	require.NoError(t, err)
	t.Cleanup(ctx.Finalize)
	return ctx
}

// ForEachDevice runs fn as a sub-test for each device preference: CPU, GPU and default.
// Devices not available are skipped.
func ForEachDevice(t *testing.T, fn func(t *testing.T, ctx *graph.Context)) {
	for _, preference := range []backends.DevicePreference{backends.PreferCPU, backends.PreferGPU, backends.PreferDefault} {
		t.Run(preference.String(), func(t *testing.T) {
			fn(t, NewContext(t, preference))
		})
	}
}

// BuildInput adds a float32 input to the builder.
func BuildInput(t *testing.T, builder *graph.Builder, name string, dimensions ...int) *graph.Operand {
	t.Helper()
	op, err := builder.Input(name, dtypes.Float32, dimensions...)
	require.NoErrorf(t, err, "failed to add input %q", name)
	return op
}

// BuildConstant adds a float32 constant to the builder.
func BuildConstant(t *testing.T, builder *graph.Builder, dimensions []int, flat []float32) *graph.Operand {
	t.Helper()
	op, err := builder.ConstantFromFlat(flat, dimensions...)
	require.NoErrorf(t, err, "failed to add constant of dimensions %v", dimensions)
	return op
}

// BuildConstantFromNpy adds a constant with the contents of a .npy file.
func BuildConstantFromNpy(t *testing.T, builder *graph.Builder, filePath string) *graph.Operand {
	t.Helper()
	array, err := numpy.FromNpyFile(filePath)
	require.NoError(t, err)
	op, err := builder.Constant(array.Shape, array.Data)
	require.NoErrorf(t, err, "failed to add constant from %q", filePath)
	return op
}

// Build the graph with the given named outputs, and finalize it at the end of the test.
func Build(t *testing.T, builder *graph.Builder, outputs map[string]*graph.Operand) *graph.Graph {
	t.Helper()
	g, err := builder.Build(outputs)
	require.NoError(t, err, "failed to build graph")
	t.Cleanup(g.Finalize)
	return g
}

// Compute the graph, failing the test on error.
func Compute(t *testing.T, g *graph.Graph, inputs graph.Inputs, outputs graph.Outputs) {
	t.Helper()
	require.NoError(t, g.Compute(inputs, outputs), "failed to compute graph")
}

// ComputeSingle computes a graph with one float32 output, allocated with the output shape, and
// returns it.
func ComputeSingle(t *testing.T, g *graph.Graph, inputs graph.Inputs) []float32 {
	t.Helper()
	names := g.OutputNames()
	require.Lenf(t, names, 1, "graph has %d outputs", len(names))
	shape, _ := g.OutputShape(names[0])
	require.Equalf(t, dtypes.Float32, shape.DType, "output %q", names[0])
	output := make([]float32, shape.Size())
	Compute(t, g, inputs, graph.Outputs{names[0]: output})
	return output
}
