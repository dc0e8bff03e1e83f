// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package xslices provide small generic helpers missing from the slices and maps packages.
package xslices

import (
	"cmp"
	"maps"
	"slices"

	"golang.org/x/exp/constraints"
)

// Map returns a new slice with fn applied to each element of in.
func Map[In, Out any](in []In, fn func(e In) Out) []Out {
	if in == nil {
		return nil
	}
	out := make([]Out, len(in))
	for ii, e := range in {
		out[ii] = fn(e)
	}
	return out
}

// Iota returns a slice of len elements, starting at start and incremented by one.
func Iota[T constraints.Integer](start T, len int) []T {
	out := make([]T, len)
	for ii := range out {
		out[ii] = start + T(ii)
	}
	return out
}

// Product of the elements of the slice. The product of an empty slice is 1.
func Product[T constraints.Integer | constraints.Float](values []T) T {
	p := T(1)
	for _, v := range values {
		p *= v
	}
	return p
}

// SortedKeys returns the keys of the map in sorted order.
func SortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	return slices.Sorted(maps.Keys(m))
}
