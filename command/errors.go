// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package command

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrFenceTimeout is returned when a fence wait expires. The GPU is
	// assumed lost; callers treat it as fatal.
	ErrFenceTimeout = errors.New("command: fence wait timed out")

	// ErrCommitted is returned when recording into a committed list.
	ErrCommitted = errors.New("command: list already committed")

	// ErrBarrierInPass is returned when a resource barrier is recorded
	// while a pass is open.
	ErrBarrierInPass = errors.New("command: barrier inside a pass")

	// ErrNoPass is returned for pass commands recorded outside a pass.
	ErrNoPass = errors.New("command: no open pass")

	// ErrReleased is returned for operations on a released queue.
	ErrReleased = errors.New("command: queue released")
)

// TimeoutError reports a fence value the GPU did not reach in time.
type TimeoutError struct {
	Reason    WaitReason
	Value     uint64
	Completed uint64
	Timeout   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("command: wait for %s: submission %d not complete after %v (completed %d)",
		e.Reason, e.Value, e.Timeout, e.Completed)
}

// Is matches ErrFenceTimeout.
func (e *TimeoutError) Is(target error) bool { return target == ErrFenceTimeout }
