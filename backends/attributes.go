// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import "fmt"

// ClampAttrs are the attributes of OpTypeClamp. Values outside [Min, Max] are saturated.
type ClampAttrs struct {
	Min, Max float64
}

// LeakyReluAttrs are the attributes of OpTypeLeakyRelu: negative values are multiplied by Alpha.
type LeakyReluAttrs struct {
	Alpha float64
}

// ReshapeAttrs are the attributes of OpTypeReshape. The number of elements must be preserved.
type ReshapeAttrs struct {
	Dimensions []int
}

// TransposeAttrs are the attributes of OpTypeTranspose.
// The output axis i takes the dimension of the input axis Permutation[i].
type TransposeAttrs struct {
	Permutation []int
}

// ConcatAttrs are the attributes of OpTypeConcat.
type ConcatAttrs struct {
	Axis int
}

// GemmAttrs are the attributes of OpTypeGemm, which computes `Alpha * A' * B' + Beta * C`,
// where A' and B' are the optionally transposed A and B. C is an optional third input, broadcast to the output.
type GemmAttrs struct {
	Alpha, Beta            float64
	ATranspose, BTranspose bool
}

// InputLayout of the 4D input of convolutions and pooling.
type InputLayout int

const (
	// LayoutNCHW is [batch, channels, height, width].
	LayoutNCHW InputLayout = iota

	// LayoutNHWC is [batch, height, width, channels].
	LayoutNHWC
)

// String implements fmt.Stringer.
func (l InputLayout) String() string {
	switch l {
	case LayoutNCHW:
		return "nchw"
	case LayoutNHWC:
		return "nhwc"
	}
	return fmt.Sprintf("InputLayout(%d)", int(l))
}

// ChannelsAxis returns the axis of the channels.
func (l InputLayout) ChannelsAxis() int {
	if l == LayoutNHWC {
		return 3
	}
	return 1
}

// SpatialAxes returns the axes of height and width.
func (l InputLayout) SpatialAxes() [2]int {
	if l == LayoutNHWC {
		return [2]int{1, 2}
	}
	return [2]int{2, 3}
}

// FilterLayout of the 4D filter of a convolution: O is the output channels, I the input channels (per group),
// H and W the spatial dimensions.
type FilterLayout int

const (
	FilterOIHW FilterLayout = iota
	FilterHWIO
	FilterOHWI
	FilterIHWO
)

// String implements fmt.Stringer.
func (l FilterLayout) String() string {
	switch l {
	case FilterOIHW:
		return "oihw"
	case FilterHWIO:
		return "hwio"
	case FilterOHWI:
		return "ohwi"
	case FilterIHWO:
		return "ihwo"
	}
	return fmt.Sprintf("FilterLayout(%d)", int(l))
}

// Axes returns the axes of the output channels, input channels, height and width.
func (l FilterLayout) Axes() (output, input, height, width int) {
	switch l {
	case FilterHWIO:
		return 3, 2, 0, 1
	case FilterOHWI:
		return 0, 3, 1, 2
	case FilterIHWO:
		return 3, 0, 1, 2
	default:
		return 0, 1, 2, 3
	}
}

// Padding2D is the padding in the order [beginHeight, endHeight, beginWidth, endWidth].
type Padding2D [4]int

// Conv2dAttrs are the attributes of OpTypeConv2d. The optional third input is a bias with
// one value per output channel.
type Conv2dAttrs struct {
	Padding      Padding2D
	Strides      [2]int
	Dilations    [2]int
	Groups       int
	InputLayout  InputLayout
	FilterLayout FilterLayout
}

// Pool2dAttrs are the attributes of OpTypeAveragePool2d and OpTypeMaxPool2d.
// A zero WindowDimensions means the window covers the whole spatial dimensions (global pooling).
type Pool2dAttrs struct {
	WindowDimensions [2]int
	Padding          Padding2D
	Strides          [2]int
	Dilations        [2]int
	Layout           InputLayout
}

// ReduceAttrs are the attributes of the OpTypeReduceXXX ops. Axes are sorted and unique.
type ReduceAttrs struct {
	Axes           []int
	KeepDimensions bool
}
