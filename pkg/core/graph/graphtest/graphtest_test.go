// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graphtest_test

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/webnn/backends"
	_ "github.com/gomlx/webnn/backends/default"
	"github.com/gomlx/webnn/pkg/core/graph"
	. "github.com/gomlx/webnn/pkg/core/graph/graphtest"
	"github.com/gomlx/webnn/pkg/core/mlerrors"
	"github.com/gomlx/webnn/pkg/core/shapes"
	"github.com/gomlx/webnn/pkg/core/tensors"
	"github.com/gomlx/webnn/pkg/core/tensors/numpy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	addDims = []int{3, 4, 5}

	addA = []float32{
		0.08939514, -1.5887482, 0.8545348, 0.20523034, -0.41728342, 1.01752, 0.19677015, 0.5398451,
		0.56893295, 1.2511084, 2.0092728, 1.0606714, 0.4893267, 0.09536829, -2.3467007, 2.4527607,
		0.61307395, -1.0799897, -0.15071101, -0.48422927, -0.20479254, 0.32798728, -0.37435308, -1.7116562,
		1.6952512, -0.7479369, -0.09019202, 0.14343949, 1.6754607, 1.6427531, 0.9470988, 0.20872667,
		-1.9530525, -0.21783416, 0.0309498, 0.3008434, 1.1686599, 1.4920886, 0.06633294, 0.6674667,
		0.60627925, 0.04302086, -0.03482966, -0.7343786, -0.76851964, 0.9446942, -0.35489243, 0.44452578,
		0.00648887, -0.55656946, -0.735903, 0.22050636, -0.5008282, -1.3132697, 1.6642882, -0.48397836,
		0.20099205, -0.28786168, 1.3315053, -0.41619393,
	}
	addB = []float32{
		-0.5781865, -0.49248728, -0.2162451, -0.13176449, -0.52118045, 1.9125274, 0.6508799, 0.71873736,
		-2.3154447, 0.8080079, 0.3022368, 0.21394566, -0.6511544, 0.20001237, -0.08041809, 1.1127822,
		-1.521739, 0.7249548, -0.91961324, -0.83175105, -1.4569077, -0.5417681, -1.6476909, 0.1223801,
		2.220618, -0.14914903, 0.7790501, -0.18711103, -0.9941537, -1.828552, -1.36035, 0.5727087,
		2.5213664, -0.3267195, 0.8431539, 0.12337407, 1.0018097, -0.23469485, -0.4530751, 0.09238022,
		0.7888511, 0.11107288, 0.48171726, 0.34308678, -0.90550417, 0.203841, 0.02521433, -1.7966009,
		-1.4287543, 0.3222213, 1.0590587, -1.7948701, -1.7195907, -0.9120889, -0.9391962, -0.2566791,
		-0.5464537, 1.4351872, 0.5705938, -0.30327085,
	}
	addExpected = []float32{
		-0.48879138, -2.0812354, 0.6382897, 0.07346585, -0.93846387, 2.9300475, 0.84765005, 1.2585825,
		-1.7465117, 2.0591164, 2.3115096, 1.2746171, -0.16182771, 0.29538065, -2.4271188, 3.565543,
		-0.90866506, -0.3550349, -1.0703243, -1.3159803, -1.6617002, -0.21378079, -2.022044, -1.5892761,
		3.9158692, -0.8970859, 0.6888581, -0.04367155, 0.681307, -0.18579888, -0.41325122, 0.7814354,
		0.56831384, -0.54455364, 0.8741037, 0.42421746, 2.1704698, 1.2573937, -0.38674217, 0.7598469,
		1.3951304, 0.15409374, 0.4468876, -0.3912918, -1.6740239, 1.1485353, -0.32967812, -1.3520751,
		-1.4222654, -0.23434815, 0.32315564, -1.5743638, -2.220419, -2.2253585, 0.72509193, -0.74065745,
		-0.34546167, 1.1473255, 1.9020991, -0.7194648,
	}
)

// uncapturedErrors records the errors reported to the uncaptured-error callback.
type uncapturedErrors struct {
	mu       sync.Mutex
	messages []string
}

func (u *uncapturedErrors) callback(kind mlerrors.Kind, message string, userData any) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.messages = append(u.messages, kind.String()+": "+message)
}

func TestAddOnEachDevice(t *testing.T) {
	ForEachDevice(t, func(t *testing.T, ctx *graph.Context) {
		var errs uncapturedErrors
		ctx.SetUncapturedErrorCallback(errs.callback, nil)
		builder := graph.NewBuilder(ctx)
		a := BuildInput(t, builder, "a", addDims...)
		b := BuildConstant(t, builder, addDims, addB)
		c, err := builder.Add(a, b)
		require.NoError(t, err)
		g := Build(t, builder, map[string]*graph.Operand{"c": c})

		result := make([]float32, SizeOfShape(addDims...))
		Compute(t, g, graph.Inputs{"a": addA}, graph.Outputs{"c": result})
		assert.True(t, CheckValue(result, addExpected), "Add results differ from the expected values")
		RequireValues(t, result, addExpected)

		// Dispatched computations produce the same results.
		dispatched := make([]float32, len(result))
		ctx.Dispatch(g, graph.Inputs{"a": addA}, graph.Outputs{"c": dispatched})
		ctx.Wait()
		assert.Equal(t, result, dispatched)
		assert.Empty(t, errs.messages)
	})
}

func TestConstantFromNpy(t *testing.T) {
	ctx := NewContext(t, backends.PreferCPU)
	data, _, err := tensors.BytesOf(addB)
	require.NoError(t, err)
	filePath := filepath.Join(t.TempDir(), "b.npy")
	require.NoError(t, numpy.WriteNpyFile(filePath, &numpy.Array{
		Shape: shapes.Make(dtypes.Float32, addDims...),
		Data:  tensors.CopyBytes(data),
	}))

	builder := graph.NewBuilder(ctx)
	a := BuildInput(t, builder, "a", addDims...)
	b := BuildConstantFromNpy(t, builder, filePath)
	c, err := builder.Add(a, b)
	require.NoError(t, err)
	g := Build(t, builder, map[string]*graph.Operand{"c": c})
	RequireValues(t, ComputeSingle(t, g, graph.Inputs{"a": addA}), addExpected)
}

func TestCheckValue(t *testing.T) {
	assert.Equal(t, 60, SizeOfShape(addDims...))
	assert.Equal(t, 1, SizeOfShape())
	assert.True(t, CheckValue([]float32{1, 2, 1000}, []float32{1.00001, 2, 1000.05}))
	assert.False(t, CheckValue([]float32{1, 2}, []float32{1, 2.1}))
	assert.False(t, CheckValue([]float32{1, 2}, []float32{1}))
	assert.True(t, CheckValueWithTolerance([]float32{1, 2}, []float32{1, 2.1}, 0.2))
}
