// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"math"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/webnn/backends"
	"github.com/gomlx/webnn/pkg/core/mlerrors"
	"github.com/gomlx/webnn/pkg/core/planner"
	"github.com/gomlx/webnn/pkg/core/shapes"
	"github.com/gomlx/webnn/pkg/core/tensors"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

// backend used by the tests: parallelism 2 with tiny kernels still exercises the workers through
// the larger tests.
var backend = must.M1(newBackend("parallelism=2"))

// sketch builds the planner nodes of a test program.
type sketch struct {
	nodes []planner.Node
}

func (s *sketch) input(name string, dtype dtypes.DType, dims ...int) int {
	s.nodes = append(s.nodes, planner.Node{Kind: backends.ValueInput, Name: name, Shape: shapes.Make(dtype, dims...)})
	return len(s.nodes) - 1
}

func (s *sketch) constant(flat any, dims ...int) int {
	data, _ := must.M2(tensors.BytesOf(flat))
	s.nodes = append(s.nodes, planner.Node{Kind: backends.ValueConstant, Shape: shapes.Make(tensors.DTypeOf(flat), dims...), Data: data})
	return len(s.nodes) - 1
}

func (s *sketch) op(op backends.OpType, shape shapes.Shape, attrs any, inputs ...int) int {
	s.nodes = append(s.nodes, planner.Node{Kind: backends.ValueComputed, Op: op, Shape: shape, Attrs: attrs, Inputs: inputs})
	return len(s.nodes) - 1
}

// compile the program with the given node indices as outputs, named "out0", "out1", ...
func (s *sketch) compile(t *testing.T, outputs ...int) backends.Executable {
	named := make([]planner.NamedOutput, len(outputs))
	for ii, node := range outputs {
		named[ii] = planner.NamedOutput{Name: "out" + string(rune('0'+ii)), Node: node}
	}
	program, err := planner.Plan(t.Name(), s.nodes, named, Capabilities)
	require.NoError(t, err)
	exec, err := backend.Compile(program)
	require.NoError(t, err)
	return exec
}

// compute executes the program with a single output, written to outFlat.
func (s *sketch) compute(t *testing.T, output int, outFlat any, inputs ...any) {
	exec := s.compile(t, output)
	defer exec.Finalize()
	inputBytes := make([][]byte, len(inputs))
	for ii, input := range inputs {
		inputBytes[ii], _ = must.M2(tensors.BytesOf(input))
	}
	outBytes, _ := must.M2(tensors.BytesOf(outFlat))
	require.NoError(t, exec.Execute(inputBytes, [][]byte{outBytes}))
}

func f32(dims ...int) shapes.Shape { return shapes.Make(dtypes.Float32, dims...) }

func TestBinary(t *testing.T) {
	t.Run("broadcast", func(t *testing.T) {
		s := &sketch{}
		x := s.input("x", dtypes.Float32, 2, 3)
		y := s.constant([]float32{10, 20, 30}, 3)
		sum := s.op(backends.OpTypeAdd, f32(2, 3), nil, x, y)
		got := make([]float32, 6)
		s.compute(t, sum, got, []float32{1, 2, 3, 4, 5, 6})
		assert.Equal(t, []float32{11, 22, 33, 14, 25, 36}, got)
	})
	t.Run("both-sides", func(t *testing.T) {
		s := &sketch{}
		x := s.input("x", dtypes.Float32, 2, 1)
		y := s.input("y", dtypes.Float32, 1, 3)
		sub := s.op(backends.OpTypeSub, f32(2, 3), nil, x, y)
		got := make([]float32, 6)
		s.compute(t, sub, got, []float32{10, 20}, []float32{1, 2, 3})
		assert.Equal(t, []float32{9, 8, 7, 19, 18, 17}, got)
	})
	t.Run("scalar-int", func(t *testing.T) {
		s := &sketch{}
		x := s.input("x", dtypes.Int32, 4)
		two := s.constant([]int32{2})
		pow := s.op(backends.OpTypePow, shapes.Make(dtypes.Int32, 4), nil, x, two)
		maxOp := s.op(backends.OpTypeMax, shapes.Make(dtypes.Int32, 4), nil, pow, two)
		got := make([]int32, 4)
		s.compute(t, maxOp, got, []int32{-3, 0, 1, 5})
		assert.Equal(t, []int32{9, 2, 2, 25}, got)
	})
	t.Run("large", func(t *testing.T) {
		// Large enough to be split across workers.
		const n = 100_000
		s := &sketch{}
		x := s.input("x", dtypes.Float64, n)
		mul := s.op(backends.OpTypeMul, shapes.Make(dtypes.Float64, n), nil, x, x)
		input, got := make([]float64, n), make([]float64, n)
		for ii := range input {
			input[ii] = float64(ii)
		}
		s.compute(t, mul, got, input)
		for ii := range got {
			require.Equal(t, float64(ii*ii), got[ii])
		}
	})
}

func TestUnary(t *testing.T) {
	s := &sketch{}
	x := s.input("x", dtypes.Float32, 4)
	relu := s.op(backends.OpTypeRelu, f32(4), nil, x)
	leaky := s.op(backends.OpTypeLeakyRelu, f32(4), &backends.LeakyReluAttrs{Alpha: 0.5}, x)
	clamp := s.op(backends.OpTypeClamp, f32(4), &backends.ClampAttrs{Min: -1, Max: 1}, x)
	sigmoid := s.op(backends.OpTypeSigmoid, f32(4), nil, x)
	input := []float32{-2, -0.5, 0, 3}

	got := make([]float32, 4)
	s.compute(t, relu, got, input)
	assert.Equal(t, []float32{0, 0, 0, 3}, got)
	s.compute(t, leaky, got, input)
	assert.Equal(t, []float32{-1, -0.25, 0, 3}, got)
	s.compute(t, clamp, got, input)
	assert.Equal(t, []float32{-1, -0.5, 0, 1}, got)
	s.compute(t, sigmoid, got, input)
	assert.InDeltaSlice(t, []float32{0.11920292, 0.37754067, 0.5, 0.95257413}, got, 1e-6)

	s = &sketch{}
	xi := s.input("x", dtypes.Int8, 3)
	abs := s.op(backends.OpTypeAbs, shapes.Make(dtypes.Int8, 3), nil, xi)
	neg := s.op(backends.OpTypeNeg, shapes.Make(dtypes.Int8, 3), nil, abs)
	gotInt := make([]int8, 3)
	s.compute(t, neg, gotInt, []int8{-7, 0, 7})
	assert.Equal(t, []int8{-7, 0, -7}, gotInt)
}

func TestLayout(t *testing.T) {
	t.Run("transpose-2d", func(t *testing.T) {
		s := &sketch{}
		x := s.input("x", dtypes.Float32, 2, 3)
		tr := s.op(backends.OpTypeTranspose, f32(3, 2), &backends.TransposeAttrs{Permutation: []int{1, 0}}, x)
		got := make([]float32, 6)
		s.compute(t, tr, got, []float32{1, 2, 3, 4, 5, 6})
		assert.Equal(t, []float32{1, 4, 2, 5, 3, 6}, got)
	})
	t.Run("transpose-3d", func(t *testing.T) {
		s := &sketch{}
		x := s.input("x", dtypes.Int64, 2, 3, 4)
		tr := s.op(backends.OpTypeTranspose, shapes.Make(dtypes.Int64, 4, 2, 3),
			&backends.TransposeAttrs{Permutation: []int{2, 0, 1}}, x)
		input, got := make([]int64, 24), make([]int64, 24)
		for ii := range input {
			input[ii] = int64(ii)
		}
		s.compute(t, tr, got, input)
		for i := range 2 {
			for j := range 3 {
				for k := range 4 {
					require.Equal(t, input[i*12+j*4+k], got[k*6+i*3+j], "index (%d, %d, %d)", i, j, k)
				}
			}
		}
	})
	t.Run("concat-reshape", func(t *testing.T) {
		s := &sketch{}
		a := s.input("a", dtypes.Uint8, 2, 1)
		b := s.constant([]uint8{3, 4, 5, 6}, 2, 2)
		concat := s.op(backends.OpTypeConcat, shapes.Make(dtypes.Uint8, 2, 3), &backends.ConcatAttrs{Axis: 1}, a, b)
		reshape := s.op(backends.OpTypeReshape, shapes.Make(dtypes.Uint8, 6), nil, concat)
		got := make([]uint8, 6)
		s.compute(t, reshape, got, []uint8{1, 2})
		assert.Equal(t, []uint8{1, 3, 4, 2, 5, 6}, got)
	})
}

func TestMatMul(t *testing.T) {
	lhs := []float32{1, 2, 3, 4, 5, 6, 1, 0, 0, 0, 1, 0}
	rhs := []float32{1, 2, 3, 4, 5, 6}
	want := []float32{22, 28, 49, 64, 1, 2, 3, 4}

	s := &sketch{}
	a := s.input("a", dtypes.Float32, 2, 2, 3)
	b := s.input("b", dtypes.Float32, 3, 2)
	mm := s.op(backends.OpTypeMatMul, f32(2, 2, 2), nil, a, b)
	got := make([]float32, 8)
	s.compute(t, mm, got, lhs, rhs)
	assert.Equal(t, want, got)

	// Same with integers, which don't go through BLAS.
	s = &sketch{}
	a = s.input("a", dtypes.Int32, 2, 2, 3)
	b = s.input("b", dtypes.Int32, 3, 2)
	mm = s.op(backends.OpTypeMatMul, shapes.Make(dtypes.Int32, 2, 2, 2), nil, a, b)
	gotInt := make([]int32, 8)
	toInt := func(x []float32) []int32 {
		out := make([]int32, len(x))
		for ii, v := range x {
			out[ii] = int32(v)
		}
		return out
	}
	s.compute(t, mm, gotInt, toInt(lhs), toInt(rhs))
	assert.Equal(t, toInt(want), gotInt)
}

func TestGemm(t *testing.T) {
	s := &sketch{}
	a := s.input("a", dtypes.Float64, 3, 2)
	b := s.input("b", dtypes.Float64, 3, 2)
	c := s.constant([]float64{10, 20}, 2)
	attrs := &backends.GemmAttrs{Alpha: 2, Beta: 1, ATranspose: true}
	gemm := s.op(backends.OpTypeGemm, shapes.Make(dtypes.Float64, 2, 2), attrs, a, b, c)
	got := make([]float64, 4)
	s.compute(t, gemm, got, []float64{1, 4, 2, 5, 3, 6}, []float64{1, 2, 3, 4, 5, 6})
	assert.Equal(t, []float64{54, 76, 108, 148}, got)
}

func TestConv2d(t *testing.T) {
	image := []float32{1, 2, 3, 4, 5, 6, 7, 8, 9}
	ones := []float32{1, 1, 1, 1}
	for _, layouts := range []struct {
		input  backends.InputLayout
		filter backends.FilterLayout
	}{
		{backends.LayoutNCHW, backends.FilterOIHW},
		{backends.LayoutNHWC, backends.FilterHWIO},
		{backends.LayoutNHWC, backends.FilterOHWI},
	} {
		attrs := &backends.Conv2dAttrs{Strides: [2]int{1, 1}, Dilations: [2]int{1, 1}, Groups: 1,
			InputLayout: layouts.input, FilterLayout: layouts.filter}
		s := &sketch{}
		x := s.input("x", dtypes.Float32, 1, 1, 3, 3) // With a single channel, all layouts share the same bytes.
		s.nodes[x].Shape = f32(1, 3, 3, 1)
		if layouts.input == backends.LayoutNCHW {
			s.nodes[x].Shape = f32(1, 1, 3, 3)
		}
		w := s.constant(ones, 2, 2, 1, 1)
		if layouts.filter == backends.FilterOIHW {
			s.nodes[w].Shape = f32(1, 1, 2, 2)
		} else if layouts.filter == backends.FilterOHWI {
			s.nodes[w].Shape = f32(1, 2, 2, 1)
		}
		bias := s.constant([]float32{1}, 1)
		outShape := s.nodes[x].Shape.WithDimensions(1, 2, 2, 1)
		if layouts.input == backends.LayoutNCHW {
			outShape = f32(1, 1, 2, 2)
		}
		conv := s.op(backends.OpTypeConv2d, outShape, attrs, x, w, bias)
		got := make([]float32, 4)
		s.compute(t, conv, got, image)
		assert.Equal(t, []float32{13, 17, 25, 29}, got, "layouts %s/%s", layouts.input, layouts.filter)
	}

	t.Run("padding-strides", func(t *testing.T) {
		attrs := &backends.Conv2dAttrs{Padding: backends.Padding2D{1, 1, 1, 1}, Strides: [2]int{2, 2},
			Dilations: [2]int{1, 1}, Groups: 1}
		s := &sketch{}
		x := s.input("x", dtypes.Float32, 1, 1, 3, 3)
		w := s.constant(ones, 1, 1, 2, 2)
		conv := s.op(backends.OpTypeConv2d, f32(1, 1, 2, 2), attrs, x, w)
		got := make([]float32, 4)
		s.compute(t, conv, got, image)
		assert.Equal(t, []float32{1, 5, 11, 28}, got)
	})

	t.Run("depthwise", func(t *testing.T) {
		attrs := &backends.Conv2dAttrs{Strides: [2]int{1, 1}, Dilations: [2]int{1, 1}, Groups: 2}
		s := &sketch{}
		x := s.input("x", dtypes.Float32, 1, 2, 2, 2)
		w := s.constant([]float32{1, 1, 1, 1, 1, 1, 1, 1}, 2, 1, 2, 2)
		conv := s.op(backends.OpTypeConv2d, f32(1, 2, 1, 1), attrs, x, w)
		got := make([]float32, 2)
		s.compute(t, conv, got, []float32{1, 1, 1, 1, 2, 2, 2, 2})
		assert.Equal(t, []float32{4, 8}, got)
	})
}

func TestPool2d(t *testing.T) {
	t.Run("average", func(t *testing.T) {
		attrs := &backends.Pool2dAttrs{WindowDimensions: [2]int{2, 2}, Padding: backends.Padding2D{0, 1, 0, 1},
			Strides: [2]int{1, 1}, Dilations: [2]int{1, 1}}
		s := &sketch{}
		x := s.input("x", dtypes.Float32, 1, 1, 2, 2)
		pool := s.op(backends.OpTypeAveragePool2d, f32(1, 1, 2, 2), attrs, x)
		got := make([]float32, 4)
		s.compute(t, pool, got, []float32{1, 2, 3, 4})
		assert.Equal(t, []float32{2.5, 3, 3.5, 4}, got)
	})
	t.Run("global-max", func(t *testing.T) {
		attrs := &backends.Pool2dAttrs{Strides: [2]int{1, 1}, Dilations: [2]int{1, 1}}
		s := &sketch{}
		x := s.input("x", dtypes.Float32, 1, 2, 2, 2)
		pool := s.op(backends.OpTypeMaxPool2d, f32(1, 2, 1, 1), attrs, x)
		got := make([]float32, 2)
		s.compute(t, pool, got, []float32{1, 5, 3, 2, -1, -5, -3, -2})
		assert.Equal(t, []float32{5, -1}, got)
	})
}

func TestReduceAndSoftmax(t *testing.T) {
	input := []float32{1, 2, 3, 4, 5, 6}
	s := &sketch{}
	x := s.input("x", dtypes.Float32, 2, 3)
	sum := s.op(backends.OpTypeReduceSum, f32(2, 1), &backends.ReduceAttrs{Axes: []int{1}, KeepDimensions: true}, x)
	mean := s.op(backends.OpTypeReduceMean, f32(3), &backends.ReduceAttrs{Axes: []int{0}}, x)
	maxAll := s.op(backends.OpTypeReduceMax, f32(), &backends.ReduceAttrs{Axes: []int{0, 1}}, x)
	softmax := s.op(backends.OpTypeSoftmax, f32(2, 3), nil, x)

	got := make([]float32, 2)
	s.compute(t, sum, got, input)
	assert.Equal(t, []float32{6, 15}, got)
	got = make([]float32, 3)
	s.compute(t, mean, got, input)
	assert.Equal(t, []float32{2.5, 3.5, 4.5}, got)
	got = make([]float32, 1)
	s.compute(t, maxAll, got, input)
	assert.Equal(t, []float32{6}, got)
	got = make([]float32, 6)
	s.compute(t, softmax, got, input)
	want := []float32{0.09003057, 0.24472847, 0.66524096}
	assert.InDeltaSlice(t, append(want, want...), got, 1e-6)

	s = &sketch{}
	xi := s.input("x", dtypes.Int32, 3)
	maxInt := s.op(backends.OpTypeReduceMax, shapes.Make(dtypes.Int32), &backends.ReduceAttrs{Axes: []int{0}}, xi)
	gotInt := make([]int32, 1)
	s.compute(t, maxInt, gotInt, []int32{-7, -3, -5})
	assert.Equal(t, int32(-3), gotInt[0])
}

func TestFloat16(t *testing.T) {
	s := &sketch{}
	f16 := func(dims ...int) shapes.Shape { return shapes.Make(dtypes.Float16, dims...) }
	x := s.input("x", dtypes.Float16, 2)
	y := s.constant([]float16.Float16{float16.Fromfloat32(0.25), float16.Fromfloat32(1)}, 2)
	sum := s.op(backends.OpTypeAdd, f16(2), nil, x, y)
	sqrt := s.op(backends.OpTypeSqrt, f16(2), nil, sum)
	reshape := s.op(backends.OpTypeReshape, f16(1, 2), nil, sqrt)
	got := make([]float16.Float16, 2)
	s.compute(t, reshape, got, []float16.Float16{float16.Fromfloat32(2), float16.Fromfloat32(3)})
	assert.InDelta(t, 1.5, got[0].Float32(), 1e-3)
	assert.InDelta(t, 2, got[1].Float32(), 1e-3)
}

func TestExecuteOutputs(t *testing.T) {
	s := &sketch{}
	x := s.input("x", dtypes.Float32, 3)
	neg := s.op(backends.OpTypeNeg, f32(3), nil, x)
	exp := s.op(backends.OpTypeExp, f32(3), nil, neg)
	exec := s.compile(t, exp, neg, exp, x)
	defer exec.Finalize()

	input := []float32{0, 1, 2}
	inBytes, _ := must.M2(tensors.BytesOf(input))
	exp0, exp2, identity := make([]float32, 3), make([]float32, 3), make([]float32, 3)

	// Output 1 (neg) is not requested, output 0 and 2 are the same value.
	outputs := [][]byte{
		must.M1(bytesOf(exp0)), nil, must.M1(bytesOf(exp2)), must.M1(bytesOf(identity)),
	}
	require.NoError(t, exec.Execute([][]byte{inBytes}, outputs))
	want := []float32{1, float32(math.Exp(-1)), float32(math.Exp(-2))}
	assert.InDeltaSlice(t, want, exp0, 1e-6)
	assert.InDeltaSlice(t, want, exp2, 1e-6)
	assert.Equal(t, input, identity)

	// Unaligned output buffer: results are copied.
	raw := make([]byte, 13)
	outputs = [][]byte{raw[1:], nil, nil, nil}
	require.NoError(t, exec.Execute([][]byte{inBytes}, outputs))
	aligned := tensors.CopyBytes(raw[1:])
	assert.InDeltaSlice(t, want, tensors.View[float32](aligned), 1e-6)

	// Wrong sizes.
	err := exec.Execute([][]byte{inBytes[:4]}, [][]byte{nil, nil, nil, nil})
	require.True(t, mlerrors.Is(err, mlerrors.SizeMismatch), "got %v", err)
	err = exec.Execute(nil, [][]byte{nil, nil, nil, nil})
	require.True(t, mlerrors.Is(err, mlerrors.MissingInput), "got %v", err)
}

func bytesOf(flat any) ([]byte, error) {
	data, _, err := tensors.BytesOf(flat)
	return data, err
}

func TestExecutionFailure(t *testing.T) {
	s := &sketch{}
	x := s.input("x", dtypes.Int32, 2)
	zero := s.constant([]int32{0})
	div := s.op(backends.OpTypeDiv, shapes.Make(dtypes.Int32, 2), nil, x, zero)
	exec := s.compile(t, div)
	inBytes := must.M1(bytesOf([]int32{1, 2}))
	err := exec.Execute([][]byte{inBytes}, [][]byte{make([]byte, 8)})
	require.Error(t, err)
	assert.True(t, mlerrors.Is(err, mlerrors.DeviceExecutionFailure), "got %v", err)
	assert.Equal(t, mlerrors.RuntimeError, mlerrors.ClassOf(err))

	exec.Finalize()
	err = exec.Execute([][]byte{inBytes}, [][]byte{nil})
	assert.True(t, mlerrors.Is(err, mlerrors.DeviceExecutionFailure), "got %v", err)
}

func TestConstantsCopiedAtCompile(t *testing.T) {
	s := &sketch{}
	x := s.input("x", dtypes.Float32, 2)
	bias := []float32{10, 20}
	sum := s.op(backends.OpTypeAdd, f32(2), nil, x, s.constant(bias, 2))
	exec := s.compile(t, sum)
	defer exec.Finalize()

	// The program shares the constant bytes, the executable does not.
	bias[0], bias[1] = -1, -1
	got := make([]float32, 2)
	require.NoError(t, exec.Execute([][]byte{must.M1(bytesOf([]float32{1, 2}))}, [][]byte{must.M1(bytesOf(got))}))
	assert.Equal(t, []float32{11, 22}, got)
}

func TestIntegerPow(t *testing.T) {
	s := &sketch{}
	x := s.input("x", dtypes.Int32, 3)
	exponent := s.input("exponent", dtypes.Int32, 3)
	pow := s.op(backends.OpTypePow, shapes.Make(dtypes.Int32, 3), nil, x, exponent)
	exec := s.compile(t, pow)
	defer exec.Finalize()

	base := must.M1(bytesOf([]int32{2, -3, 7}))
	output := make([]int32, 3)
	require.NoError(t, exec.Execute([][]byte{base, must.M1(bytesOf([]int32{10, 3, 0}))}, [][]byte{must.M1(bytesOf(output))}))
	assert.Equal(t, []int32{1024, -27, 1}, output)

	err := exec.Execute([][]byte{base, must.M1(bytesOf([]int32{1, -1, 2}))}, [][]byte{make([]byte, 12)})
	require.Error(t, err)
	assert.True(t, mlerrors.Is(err, mlerrors.DeviceExecutionFailure), "got %v", err)
	assert.ErrorContains(t, err, "negative integer exponent")
}

func TestConfig(t *testing.T) {
	b, err := newBackend("parallelism=0")
	require.NoError(t, err)
	assert.False(t, b.workers.IsEnabled())
	assert.Equal(t, backends.DeviceCPU, b.DeviceType())
	assert.Contains(t, b.Description(), "parallelism=0")

	t.Setenv(NumThreadsEnv, "3")
	b, err = newBackend("")
	require.NoError(t, err)
	assert.Equal(t, 3, b.workers.MaxParallelism())

	_, err = newBackend("threads=2")
	assert.True(t, mlerrors.Is(err, mlerrors.DeviceUnavailable), "got %v", err)
	_, err = newBackend("parallelism=many")
	assert.True(t, mlerrors.Is(err, mlerrors.DeviceUnavailable), "got %v", err)

	b.Finalize()
	_, err = b.Compile(&backends.Program{})
	assert.True(t, mlerrors.Is(err, mlerrors.DeviceUnavailable), "got %v", err)
}

func TestRegistered(t *testing.T) {
	assert.Contains(t, backends.Registered(), BackendName)
	for op := backends.OpTypeInvalid + 1; op < backends.OpTypeLast; op++ {
		assert.True(t, Capabilities.Operations[op], "missing capability for %s", op)
		assert.NotNil(t, nodeExecutors[op], "missing kernel for %s", op)
	}
}
