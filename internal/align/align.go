// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package align rounds offsets and sizes to hardware alignments.
package align

import "golang.org/x/exp/constraints"

// Up rounds v up to the next multiple of a. An alignment of zero leaves v
// unchanged.
func Up[T constraints.Unsigned](v, a T) T {
	if a == 0 {
		return v
	}
	return (v + a - 1) / a * a
}

// IsAligned reports whether v is a multiple of a.
func IsAligned[T constraints.Unsigned](v, a T) bool {
	return a == 0 || v%a == 0
}
