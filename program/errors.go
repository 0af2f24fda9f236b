// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package program

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gogpu/rhi/shader"
)

var (
	// ErrConstantModification is returned when a constant argument that
	// already holds a value is set again.
	ErrConstantModification = errors.New("program: constant argument modification")

	// ErrUnboundArguments is returned when required arguments have no value.
	ErrUnboundArguments = errors.New("program: unbound arguments")

	// ErrArgumentNotFound is returned for arguments the program does not
	// declare.
	ErrArgumentNotFound = errors.New("program: argument not found")

	// ErrExceedsReservedDescriptors is returned when more views are set
	// than the argument's descriptor range holds.
	ErrExceedsReservedDescriptors = errors.New("program: views exceed reserved descriptors")

	// ErrInvalidValue is returned for values that do not fit the argument:
	// wrong value type, usage or heap kind.
	ErrInvalidValue = errors.New("program: invalid argument value")

	// ErrInvalidAccessor is returned for accessors that contradict the
	// reflected argument.
	ErrInvalidAccessor = errors.New("program: invalid accessor")

	// ErrNotInitialized is returned when bindings are applied before their
	// descriptor ranges are backed by allocated heap storage.
	ErrNotInitialized = errors.New("program: bindings not initialized")

	// ErrBindingOverlap is returned when two arguments of a group claim the
	// same binding number.
	ErrBindingOverlap = errors.New("program: overlapping bindings")

	// ErrReleased is returned for operations on released programs or
	// bindings.
	ErrReleased = errors.New("program: released")
)

// ConstantModificationError names the constant argument that was set twice.
type ConstantModificationError struct {
	Program  string
	Argument Argument
}

func (e *ConstantModificationError) Error() string {
	return fmt.Sprintf("program %q: constant argument %s can not be modified", e.Program, e.Argument)
}

// Is matches ErrConstantModification.
func (e *ConstantModificationError) Is(target error) bool { return target == ErrConstantModification }

// UnboundArgumentsError lists every required argument left without a value.
type UnboundArgumentsError struct {
	Program   string
	Arguments []Argument
}

func (e *UnboundArgumentsError) Error() string {
	names := make([]string, len(e.Arguments))
	for i, a := range e.Arguments {
		names[i] = a.String()
	}
	return fmt.Sprintf("program %q: unbound arguments: %s", e.Program, strings.Join(names, ", "))
}

// Is matches ErrUnboundArguments.
func (e *UnboundArgumentsError) Is(target error) bool { return target == ErrUnboundArguments }

// ArgumentNotFoundError names the program and the argument looked up.
type ArgumentNotFoundError struct {
	Program  string
	Argument Argument
}

func (e *ArgumentNotFoundError) Error() string {
	return fmt.Sprintf("program %q: argument %s not found", e.Program, e.Argument)
}

// Is matches ErrArgumentNotFound.
func (e *ArgumentNotFoundError) Is(target error) bool { return target == ErrArgumentNotFound }

// BindingOverlapError names two arguments whose bindings collide. First may
// be a binding array reaching into Second.
type BindingOverlapError struct {
	Program       string
	First, Second shader.Argument
}

func (e *BindingOverlapError) Error() string {
	return fmt.Sprintf("program %q: %s (count %d) overlaps %s", e.Program, e.First, e.First.Count, e.Second)
}

// Is matches ErrBindingOverlap.
func (e *BindingOverlapError) Is(target error) bool { return target == ErrBindingOverlap }
