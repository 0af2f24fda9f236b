// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package descriptor

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/gogpu/rhi/internal/logger"
)

// HeapSettings describes a heap to create.
type HeapSettings struct {
	Kind          HeapKind
	Size          uint32
	ShaderVisible bool
}

// Range is a contiguous run of slots reserved in one heap.
type Range struct {
	Heap   *Heap
	Offset uint32
	Count  uint32
}

// IsEmpty reports whether the range covers no slots.
func (r Range) IsEmpty() bool { return r.Heap == nil || r.Count == 0 }

// End returns the index one past the last slot of the range.
func (r Range) End() uint32 { return r.Offset + r.Count }

// Kind returns the kind of the heap the range was reserved in.
func (r Range) Kind() HeapKind {
	if r.Heap == nil {
		return HeapKindUndefined
	}
	return r.Heap.Kind()
}

// Sub returns the part of r starting at offset with count slots.
func (r Range) Sub(offset, count uint32) (Range, error) {
	if offset > r.Count || count > r.Count-offset {
		return Range{}, fmt.Errorf("%w: sub-range %d+%d exceeds range of %d", ErrIndexOutOfRange, offset, count, r.Count)
	}
	return Range{Heap: r.Heap, Offset: r.Offset + offset, Count: count}, nil
}

// IsAllocated reports whether every slot of r is backed by storage.
func (r Range) IsAllocated() bool {
	return r.Heap != nil && r.End() <= r.Heap.AllocatedSize()
}

func (r Range) String() string {
	return fmt.Sprintf("%s[%d:%d]", r.Kind(), r.Offset, r.End())
}

// storage is one generation of heap backing store.
type storage struct {
	slots      []Descriptor
	generation uint64
}

// Heap is a table of descriptor slots of one kind.
//
// Slot reads and writes are lock-free against the current backing store.
// Reserve, ReleaseRange and Allocate take the heap lock; Allocate must only
// run when no in-flight command list reads the heap.
type Heap struct {
	settings HeapSettings

	store atomic.Pointer[storage]

	mu           sync.Mutex
	deferred     bool
	deferredSize uint32
	reservedSize uint32
	free         []Range
	released     bool
}

// NewHeap creates a heap with settings.Size slots allocated up front.
// When deferred is set, growth requested by Reserve waits for Allocate.
func NewHeap(settings HeapSettings, deferred bool) (*Heap, error) {
	if !settings.Kind.IsDefined() {
		return nil, fmt.Errorf("%w: %d", ErrUndefinedKind, settings.Kind)
	}
	h := &Heap{
		settings:     settings,
		deferred:     deferred,
		deferredSize: settings.Size,
	}
	h.store.Store(&storage{slots: make([]Descriptor, settings.Size)})
	return h, nil
}

// Kind returns the descriptor kind.
func (h *Heap) Kind() HeapKind { return h.settings.Kind }

// IsShaderVisible reports whether shaders read from the heap.
func (h *Heap) IsShaderVisible() bool { return h.settings.ShaderVisible }

// AllocatedSize returns the number of slots backed by storage.
func (h *Heap) AllocatedSize() uint32 { return uint32(len(h.store.Load().slots)) }

// DeferredSize returns the requested capacity, allocated or not.
func (h *Heap) DeferredSize() uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.deferredSize
}

// ReservedSize returns the high-water mark of reserved slots.
func (h *Heap) ReservedSize() uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reservedSize
}

// Generation counts backing store replacements.
func (h *Heap) Generation() uint64 { return h.store.Load().generation }

// HasPendingAllocation reports whether Reserve recorded growth that
// Allocate has not realized yet.
func (h *Heap) HasPendingAllocation() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.deferredSize > uint32(len(h.store.Load().slots))
}

// IsDeferred reports whether growth waits for Allocate.
func (h *Heap) IsDeferred() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.deferred
}

// SetDeferredAllocation switches growth between immediate and deferred.
// Pending growth is not realized by switching.
func (h *Heap) SetDeferredAllocation(deferred bool) {
	h.mu.Lock()
	h.deferred = deferred
	h.mu.Unlock()
}

// Reserve reserves count contiguous slots. Released ranges are reused
// first; otherwise the heap grows, immediately or at the next Allocate.
func (h *Heap) Reserve(count uint32) (Range, error) {
	if count == 0 {
		return Range{}, fmt.Errorf("%w: zero-sized %s reservation", ErrInvalidArgument, h.settings.Kind)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return Range{}, ErrReleased
	}

	if r, ok := h.takeFreeLocked(count); ok {
		return r, nil
	}

	r := Range{Heap: h, Offset: h.reservedSize, Count: count}
	h.reservedSize += count
	if h.reservedSize > h.deferredSize {
		h.deferredSize = h.reservedSize
	}
	if !h.deferred {
		h.allocateLocked()
	}

	logger.Get().Debug("descriptor: range reserved",
		"kind", h.settings.Kind,
		"range", r.String(),
		"allocated", h.AllocatedSize(),
		"deferred", h.deferredSize)
	return r, nil
}

// takeFreeLocked serves a reservation from the first released range that
// fits, splitting it when it is larger than needed.
func (h *Heap) takeFreeLocked(count uint32) (Range, bool) {
	for i, fr := range h.free {
		if fr.Count < count {
			continue
		}
		r := Range{Heap: h, Offset: fr.Offset, Count: count}
		if fr.Count == count {
			h.free = append(h.free[:i], h.free[i+1:]...)
		} else {
			h.free[i] = Range{Heap: h, Offset: fr.Offset + count, Count: fr.Count - count}
		}
		return r, true
	}
	return Range{}, false
}

// ReleaseRange clears the slots of r and makes them available to Reserve.
// Adjacent released ranges are merged.
func (h *Heap) ReleaseRange(r Range) error {
	if r.IsEmpty() {
		return nil
	}
	if r.Heap != h {
		return ErrForeignRange
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if r.End() > h.reservedSize {
		return &IndexError{Kind: h.settings.Kind, Index: r.End() - 1, Size: h.reservedSize}
	}

	slots := h.store.Load().slots
	for i := r.Offset; i < r.End() && i < uint32(len(slots)); i++ {
		slots[i] = Descriptor{}
	}

	h.free = append(h.free, r)
	sort.Slice(h.free, func(i, j int) bool { return h.free[i].Offset < h.free[j].Offset })
	merged := h.free[:1]
	for _, fr := range h.free[1:] {
		last := &merged[len(merged)-1]
		if last.End() == fr.Offset {
			last.Count += fr.Count
			continue
		}
		merged = append(merged, fr)
	}
	h.free = merged
	return nil
}

// FreeCount returns the number of released slots waiting for reuse.
func (h *Heap) FreeCount() uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	var n uint32
	for _, fr := range h.free {
		n += fr.Count
	}
	return n
}

// Allocate realizes pending growth. Every slot below the previous
// allocated size keeps its contents. It reports whether the backing store
// was replaced.
func (h *Heap) Allocate() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.allocateLocked()
}

func (h *Heap) allocateLocked() bool {
	old := h.store.Load()
	if h.deferredSize <= uint32(len(old.slots)) {
		return false
	}

	slots := make([]Descriptor, h.deferredSize)
	copy(slots, old.slots)
	h.store.Store(&storage{slots: slots, generation: old.generation + 1})

	logger.Get().Debug("descriptor: heap allocated",
		"kind", h.settings.Kind,
		"shaderVisible", h.settings.ShaderVisible,
		"from", len(old.slots),
		"to", len(slots),
		"generation", old.generation+1)
	return true
}

// Slot returns the descriptor stored at index.
func (h *Heap) Slot(index uint32) (Descriptor, error) {
	slots := h.store.Load().slots
	if index >= uint32(len(slots)) {
		return Descriptor{}, &IndexError{Kind: h.settings.Kind, Index: index, Size: uint32(len(slots))}
	}
	return slots[index], nil
}

// GPUSlot resolves index to its shader-visible handle in the current
// generation.
func (h *Heap) GPUSlot(index uint32) (GPUHandle, error) {
	st := h.store.Load()
	if index >= uint32(len(st.slots)) {
		return GPUHandle{}, &IndexError{Kind: h.settings.Kind, Index: index, Size: uint32(len(st.slots))}
	}
	return GPUHandle{
		Kind:       h.settings.Kind,
		Generation: st.generation,
		Index:      index,
		Native:     st.slots[index].NativeHandle(),
	}, nil
}

// SetSlot writes d at index.
func (h *Heap) SetSlot(index uint32, d Descriptor) error {
	slots := h.store.Load().slots
	if index >= uint32(len(slots)) {
		return &IndexError{Kind: h.settings.Kind, Index: index, Size: uint32(len(slots))}
	}
	slots[index] = d
	return nil
}

// CopyFrom copies the descriptor at srcIndex of src into dstIndex of h.
func (h *Heap) CopyFrom(dstIndex uint32, src *Heap, srcIndex uint32) error {
	if src.Kind() != h.Kind() {
		return fmt.Errorf("%w: copy %s into %s", ErrKindMismatch, src.Kind(), h.Kind())
	}
	d, err := src.Slot(srcIndex)
	if err != nil {
		return err
	}
	return h.SetSlot(dstIndex, d)
}

// release drops the backing store. Only the allocator calls it.
func (h *Heap) release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.released = true
	h.free = nil
	h.store.Store(&storage{generation: h.store.Load().generation + 1})
}
