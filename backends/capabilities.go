// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"maps"
	"slices"

	"github.com/gomlx/gopjrt/dtypes"
)

// Capabilities holds mappings of what is supported by a backend.
type Capabilities struct {
	// Operations supported by a backend.
	// If not listed, it's assumed to be false, hence not supported.
	Operations map[OpType]bool

	// DTypes list the data types supported by a backend.
	// If not listed, it's assumed to be false, hence not supported.
	DTypes map[dtypes.DType]bool
}

// Clone makes a deep copy of the Capabilities.
func (c Capabilities) Clone() Capabilities {
	var c2 Capabilities
	c2.Operations = make(map[OpType]bool, len(c.Operations))
	maps.Copy(c2.Operations, c.Operations)
	c2.DTypes = make(map[dtypes.DType]bool, len(c.DTypes))
	maps.Copy(c2.DTypes, c.DTypes)
	return c2
}

// Supports returns whether the op is supported for the given dtype.
func (c Capabilities) Supports(op OpType, dtype dtypes.DType) bool {
	return c.Operations[op] && c.DTypes[dtype]
}

// SupportedOperations returns the sorted list of supported operations.
func (c Capabilities) SupportedOperations() []OpType {
	ops := make([]OpType, 0, len(c.Operations))
	for op, ok := range c.Operations {
		if ok {
			ops = append(ops, op)
		}
	}
	slices.Sort(ops)
	return ops
}
