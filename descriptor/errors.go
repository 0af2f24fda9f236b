// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package descriptor

import (
	"errors"
	"fmt"
)

// Descriptor errors.
var (
	// ErrInvalidArgument is returned for zero-sized reservations and other
	// malformed requests.
	ErrInvalidArgument = errors.New("descriptor: invalid argument")

	// ErrUndefinedKind is returned when a heap of HeapKindUndefined is requested.
	ErrUndefinedKind = errors.New("descriptor: undefined heap kind")

	// ErrIndexOutOfRange is returned when a slot or heap index is outside
	// the allocated range.
	ErrIndexOutOfRange = errors.New("descriptor: index out of range")

	// ErrNoShaderVisibleHeap is returned when no shader-visible heap was
	// configured for a kind.
	ErrNoShaderVisibleHeap = errors.New("descriptor: no shader-visible heap")

	// ErrKindMismatch is returned when heaps or ranges of different kinds
	// are combined.
	ErrKindMismatch = errors.New("descriptor: heap kind mismatch")

	// ErrForeignRange is returned when a range is handed to a heap that
	// did not reserve it.
	ErrForeignRange = errors.New("descriptor: range belongs to another heap")

	// ErrReleased is returned by an allocator or heap after Release.
	ErrReleased = errors.New("descriptor: released")
)

// IndexError reports a slot access beyond the allocated size of a heap.
type IndexError struct {
	Kind  HeapKind
	Index uint32
	Size  uint32
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("descriptor: %s slot %d out of range (allocated %d)", e.Kind, e.Index, e.Size)
}

// Is reports ErrIndexOutOfRange equivalence.
func (e *IndexError) Is(target error) bool { return target == ErrIndexOutOfRange }
