// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package command

import (
	"sync/atomic"
	"time"
)

// Fence marks a submission index of one queue.
type Fence struct {
	queue *Queue
	value atomic.Uint64
}

// NewFence returns an unsignaled fence of q. Waiting for it returns
// immediately until Signal is called.
func NewFence(q *Queue) *Fence { return &Fence{queue: q} }

// Queue returns the queue the fence belongs to.
func (f *Fence) Queue() *Queue { return f.queue }

// Value returns the submission index the fence waits for.
func (f *Fence) Value() uint64 { return f.value.Load() }

// Signal sets the fence to the queue's last submission and returns it.
func (f *Fence) Signal() uint64 {
	v := f.queue.LastSubmission()
	f.value.Store(v)
	return v
}

// IsCompleted reports whether the signaled submission has retired.
func (f *Fence) IsCompleted() bool { return f.queue.Completed() >= f.value.Load() }

// WaitOnCPU blocks until the signaled submission retires. A zero timeout
// selects the queue's fence timeout.
func (f *Fence) WaitOnCPU(timeout time.Duration) error {
	return f.queue.waitFor(f.value.Load(), WaitRenderComplete, timeout)
}

// WaitOnGPU makes the next submission of q wait for the fence.
func (f *Fence) WaitOnGPU(q *Queue) {
	if q == nil || q == f.queue {
		return
	}
	q.addDependency(f)
}
