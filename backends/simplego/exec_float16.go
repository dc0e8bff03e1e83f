// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/webnn/backends"
	"github.com/gomlx/webnn/pkg/core/tensors"
	"github.com/x448/float16"
)

// minFloat16Chunk is the minimum number of values converted by one worker.
const minFloat16Chunk = 1 << 15

// execAsFloat32 runs the kernel of the step on float32 copies of its Float16 inputs, and rounds the result
// back to Float16 into output.
func execAsFloat32(backend *Backend, step *backends.Step, inputs []*buffer, output *buffer) {
	converted := make([]*buffer, len(inputs))
	for ii, input := range inputs {
		if input.shape.DType != dtypes.Float16 {
			converted[ii] = input
			continue
		}
		c := &buffer{shape: input.shape.Clone()}
		c.shape.DType = dtypes.Float32
		c.data = tensors.AlignedBytes(int(c.shape.Memory()))
		float16ToFloat32(backend, tensors.View[float16.Float16](input.data), tensors.View[float32](c.data))
		converted[ii] = c
	}
	result := &buffer{shape: output.shape.Clone()}
	result.shape.DType = dtypes.Float32
	result.data = tensors.AlignedBytes(int(result.shape.Memory()))
	nodeExecutors[step.Op](backend, step, converted, result)
	float32ToFloat16(backend, tensors.View[float32](result.data), tensors.View[float16.Float16](output.data))
}

func float16ToFloat32(backend *Backend, src []float16.Float16, dst []float32) {
	backend.workers.ParallelFor(len(src), minFloat16Chunk, func(start, end int) {
		for ii := start; ii < end; ii++ {
			dst[ii] = src[ii].Float32()
		}
	})
}

func float32ToFloat16(backend *Backend, src []float32, dst []float16.Float16) {
	backend.workers.ParallelFor(len(src), minFloat16Chunk, func(start, end int) {
		for ii := start; ii < end; ii++ {
			dst[ii] = float16.Fromfloat32(src[ii])
		}
	})
}
