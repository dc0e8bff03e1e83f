// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"os"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/webnn/pkg/core/mlerrors"
	"github.com/gomlx/webnn/pkg/support/fsutil"
	"github.com/nlpodyssey/safetensors"
	"github.com/pkg/errors"
)

// safetensorsDTypes maps the safetensors data types to the supported dtypes. Others (BOOL, BF16,
// I16, U16, U64) are rejected.
var safetensorsDTypes = map[safetensors.DType]dtypes.DType{
	safetensors.U8:  dtypes.Uint8,
	safetensors.I8:  dtypes.Int8,
	safetensors.F16: dtypes.Float16,
	safetensors.I32: dtypes.Int32,
	safetensors.U32: dtypes.Uint32,
	safetensors.F32: dtypes.Float32,
	safetensors.F64: dtypes.Float64,
	safetensors.I64: dtypes.Int64,
}

// ConstantsFromSafetensors creates one constant per tensor in a safetensors encoded buffer, and
// returns them by tensor name. The data is copied, so buf can be discarded after the call.
//
// It fails with mlerrors.TypeMismatch for tensors of unsupported data types, and
// mlerrors.ShapeMismatch if buf is not a valid safetensors buffer.
func (b *Builder) ConstantsFromSafetensors(buf []byte) (map[string]*Operand, error) {
	st, err := safetensors.Deserialize(buf)
	if err != nil {
		return nil, mlerrors.Wrapf(mlerrors.ShapeMismatch, err, "invalid safetensors buffer")
	}
	constants := make(map[string]*Operand, st.Len())
	for _, named := range st.Tensors() {
		view := named.TensorView
		dtype, found := safetensorsDTypes[view.DType()]
		if !found {
			return nil, mlerrors.Errorf(mlerrors.TypeMismatch, "safetensors tensor %q has unsupported data type %s",
				named.Name, view.DType())
		}
		dims := make([]int, len(view.Shape()))
		for ii, dim := range view.Shape() {
			dims[ii] = int(dim)
		}
		shape, err := checkedShape(dtype, dims)
		if err != nil {
			return nil, errorsWithContext(err, "safetensors tensor %q", named.Name)
		}
		op, err := b.Constant(shape, view.Data())
		if err != nil {
			return nil, errorsWithContext(err, "safetensors tensor %q", named.Name)
		}
		constants[named.Name] = op
	}
	return constants, nil
}

// ConstantsFromSafetensorsFile reads the file and calls ConstantsFromSafetensors.
// A leading "~" in path is expanded to the home directory.
func (b *Builder) ConstantsFromSafetensorsFile(path string) (map[string]*Operand, error) {
	path, err := fsutil.ExpandHome(path)
	if err != nil {
		return nil, err
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading safetensors file %q", path)
	}
	return b.ConstantsFromSafetensors(buf)
}
