// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"github.com/gomlx/webnn/backends"
	"github.com/gomlx/webnn/pkg/core/shapes"
	"github.com/gomlx/webnn/pkg/core/tensors"
)

// Direct 2D convolutions and pooling: each output element is computed from its window of the input,
// skipping the positions that fall in the padding.

var (
	dispatchConv2d = NewDTypeDispatcher("Conv2d")
	dispatchPool2d = NewDTypeDispatcher("Pool2d")
)

func init() {
	nodeExecutors[backends.OpTypeConv2d] = execConv2d
	nodeExecutors[backends.OpTypeAveragePool2d] = execPool2d
	nodeExecutors[backends.OpTypeMaxPool2d] = execPool2d
}

// imageAxes holds the strides of a 4D image tensor, per logical axis.
type imageAxes struct {
	batch, channels, height, width int
}

func newImageAxes(shape shapes.Shape, layout backends.InputLayout) (dims, strides imageAxes) {
	s := shape.Strides()
	spatial := layout.SpatialAxes()
	channels := layout.ChannelsAxis()
	dims = imageAxes{shape.Dimensions[0], shape.Dimensions[channels], shape.Dimensions[spatial[0]], shape.Dimensions[spatial[1]]}
	strides = imageAxes{s[0], s[channels], s[spatial[0]], s[spatial[1]]}
	return
}

func execConv2d(backend *Backend, step *backends.Step, inputs []*buffer, output *buffer) {
	dispatchConv2d.Dispatch(output.shape.DType, backend, step.Attrs.(*backends.Conv2dAttrs), inputs, output)
}

func execConv2dGeneric[T float](params ...any) {
	backend, attrs := params[0].(*Backend), params[1].(*backends.Conv2dAttrs)
	inputs, output := params[2].([]*buffer), params[3].(*buffer)
	input, filter := inputs[0], inputs[1]
	var bias []T
	if len(inputs) > 2 {
		bias = tensors.View[T](inputs[2].data)
	}
	inFlat, filterFlat, outFlat := tensors.View[T](input.data), tensors.View[T](filter.data), tensors.View[T](output.data)

	inDims, inStrides := newImageAxes(input.shape, attrs.InputLayout)
	outDims, outStrides := newImageAxes(output.shape, attrs.InputLayout)
	fStrides := filter.shape.Strides()
	fOut, fIn, fH, fW := attrs.FilterLayout.Axes()
	kernelH, kernelW := filter.shape.Dimensions[fH], filter.shape.Dimensions[fW]
	inPerGroup := inDims.channels / attrs.Groups
	outPerGroup := outDims.channels / attrs.Groups

	numRows := outDims.batch * outDims.height
	rowWork := outDims.width * outDims.channels * inPerGroup * kernelH * kernelW
	backend.workers.ParallelFor(numRows, max(1, minElementwiseChunk/max(rowWork, 1)), func(start, end int) {
		for row := start; row < end; row++ {
			n, oh := row/outDims.height, row%outDims.height
			for ow := range outDims.width {
				for oc := range outDims.channels {
					group := oc / outPerGroup
					var sum T
					for kh := range kernelH {
						ih := oh*attrs.Strides[0] - attrs.Padding[0] + kh*attrs.Dilations[0]
						if ih < 0 || ih >= inDims.height {
							continue
						}
						for kw := range kernelW {
							iw := ow*attrs.Strides[1] - attrs.Padding[2] + kw*attrs.Dilations[1]
							if iw < 0 || iw >= inDims.width {
								continue
							}
							inBase := n*inStrides.batch + ih*inStrides.height + iw*inStrides.width
							filterBase := oc*fStrides[fOut] + kh*fStrides[fH] + kw*fStrides[fW]
							for ic := range inPerGroup {
								sum += inFlat[inBase+(group*inPerGroup+ic)*inStrides.channels] *
									filterFlat[filterBase+ic*fStrides[fIn]]
							}
						}
					}
					if bias != nil {
						sum += bias[oc]
					}
					outFlat[n*outStrides.batch+oc*outStrides.channels+oh*outStrides.height+ow*outStrides.width] = sum
				}
			}
		}
	})
}

func execPool2d(backend *Backend, step *backends.Step, inputs []*buffer, output *buffer) {
	dispatchPool2d.Dispatch(output.shape.DType, backend, step.Op, step.Attrs.(*backends.Pool2dAttrs), inputs[0], output)
}

// execPool2dGeneric computes AveragePool2d (floats only) and MaxPool2d. Padding positions are not
// counted in the average, and are ignored by the max.
func execPool2dGeneric[T numeric](params ...any) {
	backend, op, attrs := params[0].(*Backend), params[1].(backends.OpType), params[2].(*backends.Pool2dAttrs)
	input, output := params[3].(*buffer), params[4].(*buffer)
	inFlat, outFlat := tensors.View[T](input.data), tensors.View[T](output.data)
	inDims, inStrides := newImageAxes(input.shape, attrs.Layout)
	outDims, outStrides := newImageAxes(output.shape, attrs.Layout)
	window := attrs.WindowDimensions
	if window == [2]int{} {
		window = [2]int{inDims.height, inDims.width}
	}
	isMax := op == backends.OpTypeMaxPool2d

	numRows := outDims.batch * outDims.height
	rowWork := outDims.width * outDims.channels * window[0] * window[1]
	backend.workers.ParallelFor(numRows, max(1, minElementwiseChunk/max(rowWork, 1)), func(start, end int) {
		for row := start; row < end; row++ {
			n, oh := row/outDims.height, row%outDims.height
			for ow := range outDims.width {
				for c := range outDims.channels {
					var acc T
					if isMax {
						acc = lowest[T]()
					}
					var count int
					for kh := range window[0] {
						ih := oh*attrs.Strides[0] - attrs.Padding[0] + kh*attrs.Dilations[0]
						if ih < 0 || ih >= inDims.height {
							continue
						}
						for kw := range window[1] {
							iw := ow*attrs.Strides[1] - attrs.Padding[2] + kw*attrs.Dilations[1]
							if iw < 0 || iw >= inDims.width {
								continue
							}
							v := inFlat[n*inStrides.batch+c*inStrides.channels+ih*inStrides.height+iw*inStrides.width]
							if isMax {
								acc = max(acc, v)
							} else {
								acc += v
							}
							count++
						}
					}
					if !isMax && count > 0 {
						acc /= T(count)
					}
					outFlat[n*outStrides.batch+c*outStrides.channels+oh*outStrides.height+ow*outStrides.width] = acc
				}
			}
		}
	})
}
