// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package command records argument bindings and resource barriers into hal
// command encoders and paces their submission frame by frame.
//
// A Queue owns frame pacing: it remembers the last submission of every
// frame slot, waits for the slot it is about to reuse and then releases the
// objects the release pool deferred for that slot. Lists record into one
// hal encoder each; ParallelList fans recording out over goroutines and
// submits the children in order.
package command

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/rhi/internal/logger"
	"github.com/gogpu/rhi/resource"
	"github.com/gogpu/wgpu/hal"
	"golang.org/x/sync/semaphore"
)

// Defaults for Settings.
const (
	DefaultFrameCount   = 2
	DefaultFenceTimeout = 5 * time.Second
)

const (
	minPollInterval = 50 * time.Microsecond
	maxPollInterval = 2 * time.Millisecond
)

// WaitReason tells what a GPU wait is for.
type WaitReason uint8

const (
	// WaitRenderComplete waits for every submitted command list.
	WaitRenderComplete WaitReason = iota
	// WaitFramePresented waits for the previous frame.
	WaitFramePresented
	// WaitResourcesUploaded waits for the last upload submission.
	WaitResourcesUploaded
)

func (r WaitReason) String() string {
	switch r {
	case WaitRenderComplete:
		return "RenderComplete"
	case WaitFramePresented:
		return "FramePresented"
	case WaitResourcesUploaded:
		return "ResourcesUploaded"
	default:
		return "Unknown"
	}
}

// Settings configures a Queue.
type Settings struct {
	// FrameCount is the number of frames in flight. Zero takes the frame
	// count of the device's release pool, or DefaultFrameCount.
	FrameCount int

	// FenceTimeout bounds every fence wait. Zero selects
	// DefaultFenceTimeout.
	FenceTimeout time.Duration
}

// submission is one Submit call waiting to retire.
type submission struct {
	index    uint64
	buffers  []hal.CommandBuffer
	encoders []hal.CommandEncoder
	retained []*resource.Resource
}

// Queue submits command lists to a hal queue and paces frames.
type Queue struct {
	device  *resource.Device
	native  hal.Queue
	timeout time.Duration

	// submit serializes submissions; acquiring it honors cancellation.
	submit *semaphore.Weighted

	mu               sync.Mutex
	frames           int
	frameIndex       int
	frameNumber      uint64
	frameSubmissions []uint64
	last             uint64
	lastUpload       uint64
	completed        uint64
	pending          []submission
	deps             []*Fence
	released         bool
}

// NewQueue returns a queue submitting to native. device provides the hal
// device command encoders are created on and the release pool frames
// flush.
func NewQueue(device *resource.Device, native hal.Queue, settings Settings) (*Queue, error) {
	if device == nil || device.HAL() == nil || native == nil {
		return nil, fmt.Errorf("command: queue needs a device and a native queue")
	}
	if settings.FrameCount <= 0 {
		settings.FrameCount = DefaultFrameCount
		if pool := device.ReleasePool(); pool != nil && pool.FrameCount() > 0 {
			settings.FrameCount = pool.FrameCount()
		}
	}
	if settings.FenceTimeout <= 0 {
		settings.FenceTimeout = DefaultFenceTimeout
	}
	q := &Queue{
		device:           device,
		native:           native,
		timeout:          settings.FenceTimeout,
		submit:           semaphore.NewWeighted(1),
		frames:           settings.FrameCount,
		frameSubmissions: make([]uint64, settings.FrameCount),
	}
	logger.Get().Debug("command: queue created", "frames", q.frames, "timeout", q.timeout)
	return q, nil
}

// HAL returns the native queue.
func (q *Queue) HAL() hal.Queue { return q.native }

// Device returns the resource device.
func (q *Queue) Device() *resource.Device { return q.device }

// FrameCount returns the number of frames in flight.
func (q *Queue) FrameCount() int { return q.frames }

// FrameIndex returns the current frame slot.
func (q *Queue) FrameIndex() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.frameIndex
}

// FrameNumber returns the number of frames advanced since creation.
func (q *Queue) FrameNumber() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.frameNumber
}

// LastSubmission returns the index of the last submission.
func (q *Queue) LastSubmission() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.last
}

// Completed polls the native queue and returns the highest retired
// submission index.
func (q *Queue) Completed() uint64 { return q.poll() }

// Submit commits lists that are still recording and submits them in order.
// Fences registered with Fence.WaitOnGPU are waited for first.
func (q *Queue) Submit(ctx context.Context, lists ...*List) (uint64, error) {
	return q.submitLists(ctx, false, lists)
}

// Upload is Submit for lists that upload resource data. WaitForGPU with
// WaitResourcesUploaded waits for the last of them.
func (q *Queue) Upload(ctx context.Context, lists ...*List) (uint64, error) {
	return q.submitLists(ctx, true, lists)
}

func (q *Queue) submitLists(ctx context.Context, upload bool, lists []*List) (uint64, error) {
	if err := q.submit.Acquire(ctx, 1); err != nil {
		return 0, err
	}
	defer q.submit.Release(1)

	q.mu.Lock()
	if q.released {
		q.mu.Unlock()
		return 0, ErrReleased
	}
	deps := q.deps
	q.deps = nil
	q.mu.Unlock()

	// hal queues have no cross-queue semaphores; foreign fences are waited
	// for on the CPU.
	for _, f := range deps {
		if f.queue == q {
			continue
		}
		if err := f.WaitOnCPU(q.timeout); err != nil {
			for _, l := range lists {
				l.Discard()
			}
			return 0, err
		}
	}

	var sub submission
	for i, l := range lists {
		buf, err := l.Commit()
		if err != nil {
			q.retire(sub)
			for _, rest := range lists[i+1:] {
				rest.Discard()
			}
			return 0, err
		}
		sub.buffers = append(sub.buffers, buf)
		sub.encoders = append(sub.encoders, l.encoder)
		sub.retained = append(sub.retained, l.takeRetained()...)
	}
	if len(sub.buffers) == 0 {
		return q.LastSubmission(), nil
	}

	index, err := q.native.Submit(sub.buffers)
	if err != nil {
		q.retire(sub)
		return 0, fmt.Errorf("command: submit: %w", err)
	}
	sub.index = index

	q.mu.Lock()
	q.last = index
	if upload {
		q.lastUpload = index
	}
	q.frameSubmissions[q.frameIndex] = index
	q.pending = append(q.pending, sub)
	frame := q.frameIndex
	q.mu.Unlock()

	logger.Get().Debug("command: submitted",
		"index", index,
		"lists", len(lists),
		"retained", len(sub.retained),
		"frame", frame)
	return index, nil
}

// poll retires every submission the native queue reports complete:
// retained resources are unpinned and command buffers freed.
func (q *Queue) poll() uint64 {
	completed := q.native.PollCompleted()

	q.mu.Lock()
	if completed > q.completed {
		q.completed = completed
	}
	n := 0
	for n < len(q.pending) && q.pending[n].index <= completed {
		n++
	}
	retired := q.pending[:n:n]
	q.pending = q.pending[n:]
	q.mu.Unlock()

	for _, sub := range retired {
		q.retire(sub)
	}
	return completed
}

func (q *Queue) retire(sub submission) {
	dev := q.device.HAL()
	for _, r := range sub.retained {
		r.Unretain()
	}
	for _, buf := range sub.buffers {
		dev.FreeCommandBuffer(buf)
	}
	for _, enc := range sub.encoders {
		enc.Destroy()
	}
}

// Pending returns the number of submissions that have not retired.
func (q *Queue) Pending() int {
	q.poll()
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// waitFor blocks until submission value retires. Zero timeout selects the
// queue's fence timeout.
func (q *Queue) waitFor(value uint64, reason WaitReason, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = q.timeout
	}
	deadline := time.Now().Add(timeout)
	interval := minPollInterval
	for {
		completed := q.poll()
		if completed >= value {
			return nil
		}
		if time.Now().After(deadline) {
			err := &TimeoutError{Reason: reason, Value: value, Completed: completed, Timeout: timeout}
			logger.Get().Warn("command: fence wait expired", "reason", reason, "value", value, "completed", completed)
			return err
		}
		time.Sleep(interval)
		interval = min(interval*2, maxPollInterval)
	}
}

// WaitForGPU blocks until the work reason names has retired.
func (q *Queue) WaitForGPU(reason WaitReason) error {
	q.mu.Lock()
	var value uint64
	switch reason {
	case WaitFramePresented:
		value = q.frameSubmissions[(q.frameIndex+q.frames-1)%q.frames]
	case WaitResourcesUploaded:
		value = q.lastUpload
	default:
		value = q.last
	}
	q.mu.Unlock()
	return q.waitFor(value, reason, 0)
}

// WaitForGPUIdle blocks until the device is idle and retires every
// submission. It serves as the descriptor allocator's GPU waiter.
func (q *Queue) WaitForGPUIdle() error {
	if err := q.device.HAL().WaitIdle(); err != nil {
		return fmt.Errorf("command: wait idle: %w", err)
	}
	return q.WaitForGPU(WaitRenderComplete)
}

// AdvanceFrame moves to the next frame slot. It waits until the last
// submission that used the slot has retired, then releases the objects the
// release pool deferred for it. Objects in the pool's misc bucket are left
// for Release.
func (q *Queue) AdvanceFrame() error {
	q.mu.Lock()
	if q.released {
		q.mu.Unlock()
		return ErrReleased
	}
	next := (q.frameIndex + 1) % q.frames
	value := q.frameSubmissions[next]
	q.mu.Unlock()

	if err := q.waitFor(value, WaitFramePresented, 0); err != nil {
		return err
	}

	q.mu.Lock()
	q.frameIndex = next
	q.frameNumber++
	number := q.frameNumber
	q.mu.Unlock()

	// A single-frame pool keeps everything in its misc bucket until Release.
	released := 0
	if pool := q.device.ReleasePool(); pool != nil {
		released = pool.ReleaseFrameResources(next)
		pool.SetFrameIndex(next)
	}
	logger.Get().Debug("command: frame advanced", "frame", number, "slot", next, "released", released)
	return nil
}

// Release waits for the GPU, retires everything and destroys every object
// left in the release pool.
func (q *Queue) Release() error {
	q.mu.Lock()
	if q.released {
		q.mu.Unlock()
		return nil
	}
	q.released = true
	q.mu.Unlock()

	err := q.WaitForGPUIdle()
	if pool := q.device.ReleasePool(); pool != nil {
		pool.ReleaseAll()
	}
	return err
}

func (q *Queue) addDependency(f *Fence) {
	q.mu.Lock()
	q.deps = append(q.deps, f)
	q.mu.Unlock()
}
