// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package resource

import (
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rhi/descriptor"
	"github.com/gogpu/rhi/internal/logger"
	"github.com/gogpu/wgpu/hal"
)

// Settings describes a resource independently of its backend.
type Settings struct {
	Name     string
	Kind     Kind
	ViewKind ViewKind
	Usage    Usage

	// Size is the byte size of buffers.
	Size uint64

	// Texture extent.
	Width, Height, DepthOrLayers uint32
	MipLevels                    uint32
	Format                       gputypes.TextureFormat
}

// Resource is a buffer, texture or sampler together with its tracked GPU
// state. It exclusively owns its native object.
type Resource struct {
	id       uint64
	settings Settings
	native   Native
	device   *Device

	mu       sync.Mutex
	state    State
	owner    uint32
	views    map[ViewSettings]*viewEntry
	retains  int32
	released bool
	freed    bool
}

// viewEntry is the lazily created descriptor of one view.
type viewEntry struct {
	desc    descriptor.Descriptor
	staging descriptor.Range
	release func()
}

// ID returns the device-unique id of the resource.
func (r *Resource) ID() uint64 { return r.id }

// Name returns the debug name.
func (r *Resource) Name() string { return r.settings.Name }

// Kind returns the native object class.
func (r *Resource) Kind() Kind { return r.settings.Kind }

// ViewKind returns the native view flavour.
func (r *Resource) ViewKind() ViewKind { return r.settings.ViewKind }

// Usage returns the declared usage mask.
func (r *Resource) Usage() Usage { return r.settings.Usage }

// Size returns the byte size of a buffer, zero otherwise.
func (r *Resource) Size() uint64 { return r.settings.Size }

// Settings returns the creation settings.
func (r *Resource) Settings() Settings { return r.settings }

// Native returns the backend object.
func (r *Resource) Native() Native { return r.native }

func (r *Resource) String() string {
	if r.settings.Name != "" {
		return fmt.Sprintf("%s %q", r.settings.Kind, r.settings.Name)
	}
	return fmt.Sprintf("%s #%d", r.settings.Kind, r.id)
}

// State returns the last known GPU state.
func (r *Resource) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// SetState records a new GPU state and reports whether it changed.
func (r *Resource) SetState(s State) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == s {
		return false
	}
	r.state = s
	return true
}

// Owner returns the queue family that owns the resource.
func (r *Resource) Owner() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.owner
}

// SetOwner records a new owning queue family and reports whether it changed.
func (r *Resource) SetOwner(queue uint32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.owner == queue {
		return false
	}
	r.owner = queue
	return true
}

// Retain pins the native object for in-flight GPU work. Release does not
// hand it to the release pool until every Retain is matched by Unretain.
func (r *Resource) Retain() {
	r.mu.Lock()
	r.retains++
	r.mu.Unlock()
	if pc, ok := r.native.(pendingCounter); ok {
		pc.AddPendingRef()
	}
}

// Unretain undoes one Retain.
func (r *Resource) Unretain() {
	r.mu.Lock()
	if r.retains == 0 {
		r.mu.Unlock()
		return
	}
	r.retains--
	schedule := r.retains == 0 && r.released && !r.freed
	r.mu.Unlock()

	if pc, ok := r.native.(pendingCounter); ok {
		pc.DecPendingRef()
	}
	if schedule {
		r.schedule()
	}
}

// IsReleased reports whether Release was called.
func (r *Resource) IsReleased() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.released
}

// Release gives up the resource. Its native object is destroyed by the
// release pool once the frames that may still read it have retired.
func (r *Resource) Release() {
	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		return
	}
	r.released = true
	schedule := r.retains == 0
	r.mu.Unlock()

	if schedule {
		r.schedule()
	}
}

func (r *Resource) schedule() {
	if r.device == nil || r.device.releases == nil {
		r.ReleaseNative()
		return
	}
	r.device.releases.AddResource(r)
}

// ReleaseNative destroys the native object and every view descriptor
// created for it. It runs once; later calls do nothing.
func (r *Resource) ReleaseNative() {
	r.mu.Lock()
	if r.freed {
		r.mu.Unlock()
		return
	}
	r.freed = true
	views := r.views
	r.views = nil
	r.mu.Unlock()

	for _, e := range views {
		if !e.staging.IsEmpty() {
			if err := e.staging.Heap.ReleaseRange(e.staging); err != nil {
				logger.Get().Warn("resource: release staging descriptor", "resource", r.String(), "err", err)
			}
		}
		if e.release != nil {
			e.release()
		}
	}
	if r.native != nil {
		r.native.Destroy()
	}
	logger.Get().Debug("resource: native released", "resource", r.String(), "views", len(views))
}

// descriptor returns the descriptor of a view and its slot in the default
// heap, creating both on first use.
func (r *Resource) descriptor(v View) (descriptor.Descriptor, descriptor.Range, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.freed || r.released {
		return descriptor.Descriptor{}, descriptor.Range{}, fmt.Errorf("%w: %s", ErrReleased, r)
	}
	if e, ok := r.views[v.settings]; ok {
		return e.desc, e.staging, nil
	}

	d, release, err := r.native.Descriptor(r.id, v.settings)
	if err != nil {
		return descriptor.Descriptor{}, descriptor.Range{}, err
	}
	e := &viewEntry{desc: d, release: release}

	if r.device != nil && r.device.descriptors != nil {
		heap, err := r.device.descriptors.DefaultHeap(v.HeapKind())
		if err != nil {
			if release != nil {
				release()
			}
			return descriptor.Descriptor{}, descriptor.Range{}, err
		}
		slot, err := heap.Reserve(1)
		if err == nil {
			err = heap.SetSlot(slot.Offset, d)
		}
		if err != nil {
			if release != nil {
				release()
			}
			return descriptor.Descriptor{}, descriptor.Range{}, fmt.Errorf("resource: default descriptor for %s: %w", r, err)
		}
		e.staging = slot
	}

	if r.views == nil {
		r.views = make(map[ViewSettings]*viewEntry)
	}
	r.views[v.settings] = e
	return e.desc, e.staging, nil
}

// ViewCount returns the number of view descriptors created so far.
func (r *Resource) ViewCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}

// HALBuffer returns the native hal buffer, if the resource wraps one.
func (r *Resource) HALBuffer() (hal.Buffer, bool) {
	n, ok := r.native.(interface{ HALBuffer() hal.Buffer })
	if !ok {
		return nil, false
	}
	return n.HALBuffer(), true
}

// HALTexture returns the native hal texture, if the resource wraps one.
func (r *Resource) HALTexture() (hal.Texture, bool) {
	n, ok := r.native.(interface{ HALTexture() hal.Texture })
	if !ok {
		return nil, false
	}
	return n.HALTexture(), true
}
