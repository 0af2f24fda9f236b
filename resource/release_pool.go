// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package resource

import (
	"sync"

	"github.com/gogpu/rhi/internal/logger"
)

// Releasable is anything whose native objects the release pool destroys.
type Releasable interface {
	ReleaseNative()
}

// ReleaseFunc adapts a function to Releasable.
type ReleaseFunc func()

// ReleaseNative calls f.
func (f ReleaseFunc) ReleaseNative() { f() }

// ReleasePool defers native destruction until the GPU frame that may still
// read an object has retired.
//
// With more than one frame in flight, objects go to the bucket of the
// current frame index and are destroyed by ReleaseFrameResources for that
// index. Otherwise they go to a misc bucket released by ReleaseMisc or
// ReleaseAll.
type ReleasePool struct {
	mu         sync.Mutex
	frames     [][]Releasable
	misc       []Releasable
	frameIndex int
}

// NewReleasePool returns a pool for frameCount frames in flight.
func NewReleasePool(frameCount int) *ReleasePool {
	p := &ReleasePool{}
	if frameCount > 1 {
		p.frames = make([][]Releasable, frameCount)
	}
	return p
}

// FrameCount returns the number of per-frame buckets.
func (p *ReleasePool) FrameCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.frames)
}

// FrameIndex returns the bucket new objects go to.
func (p *ReleasePool) FrameIndex() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frameIndex
}

// SetFrameIndex selects the bucket new objects go to.
func (p *ReleasePool) SetFrameIndex(frame int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.frames) > 0 {
		frame %= len(p.frames)
	}
	p.frameIndex = frame
}

// AddResource schedules r for destruction.
func (p *ReleasePool) AddResource(r Releasable) {
	if r == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.frames) == 0 {
		p.misc = append(p.misc, r)
		return
	}
	p.frames[p.frameIndex] = append(p.frames[p.frameIndex], r)
}

// Pending returns the number of objects waiting in a frame bucket.
func (p *ReleasePool) Pending(frame int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if frame < 0 || frame >= len(p.frames) {
		return 0
	}
	return len(p.frames[frame])
}

// PendingMisc returns the number of objects waiting in the misc bucket.
func (p *ReleasePool) PendingMisc() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.misc)
}

// ReleaseFrameResources destroys exactly the objects added under frame.
// Call it once the GPU work of that frame is known to have retired.
func (p *ReleasePool) ReleaseFrameResources(frame int) int {
	p.mu.Lock()
	if frame < 0 || frame >= len(p.frames) {
		p.mu.Unlock()
		return 0
	}
	bucket := p.frames[frame]
	p.frames[frame] = nil
	p.mu.Unlock()

	release(bucket)
	if len(bucket) > 0 {
		logger.Get().Debug("resource: frame resources released", "frame", frame, "count", len(bucket))
	}
	return len(bucket)
}

// ReleaseMisc destroys the objects of the misc bucket.
func (p *ReleasePool) ReleaseMisc() int {
	p.mu.Lock()
	bucket := p.misc
	p.misc = nil
	p.mu.Unlock()

	release(bucket)
	return len(bucket)
}

// ReleaseAll destroys every pending object. Call it after the GPU is idle.
func (p *ReleasePool) ReleaseAll() int {
	p.mu.Lock()
	var all []Releasable
	for i, bucket := range p.frames {
		all = append(all, bucket...)
		p.frames[i] = nil
	}
	all = append(all, p.misc...)
	p.misc = nil
	p.mu.Unlock()

	release(all)
	return len(all)
}

// release runs outside the pool lock: releasing may schedule more objects.
func release(bucket []Releasable) {
	for _, r := range bucket {
		r.ReleaseNative()
	}
}
