// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package descriptor

import (
	"fmt"
	"sync"

	"github.com/gogpu/rhi/internal/logger"
)

// KindSettings sizes the heaps of one kind.
type KindSettings struct {
	// DefaultSize is the initial size of the non-shader-visible heap that
	// receives resource descriptors as they are created.
	DefaultSize uint32

	// ShaderVisibleSize is the initial size of the shader-visible heap
	// arguments are bound from. Ignored for kinds shaders never read.
	ShaderVisibleSize uint32
}

// Settings configures an Allocator.
type Settings struct {
	ShaderResources KindSettings
	Samplers        KindSettings
	RenderTargets   KindSettings
	DepthStencil    KindSettings

	// DeferredAllocation defers heap growth until CompleteInitialization.
	DeferredAllocation bool
}

// Default heap sizes.
const (
	DefaultShaderResourcesSize = 256
	DefaultSamplersSize        = 32
	DefaultRenderTargetsSize   = 64
	DefaultDepthStencilSize    = 16
)

// DefaultSettings returns conservative starting sizes with deferred
// allocation enabled.
func DefaultSettings() Settings {
	return Settings{
		ShaderResources:    KindSettings{DefaultSize: DefaultShaderResourcesSize, ShaderVisibleSize: DefaultShaderResourcesSize},
		Samplers:           KindSettings{DefaultSize: DefaultSamplersSize, ShaderVisibleSize: DefaultSamplersSize},
		RenderTargets:      KindSettings{DefaultSize: DefaultRenderTargetsSize},
		DepthStencil:       KindSettings{DefaultSize: DefaultDepthStencilSize},
		DeferredAllocation: true,
	}
}

// For returns the sizes configured for kind.
func (s Settings) For(kind HeapKind) KindSettings {
	switch kind {
	case HeapKindShaderResources:
		return s.ShaderResources
	case HeapKindSamplers:
		return s.Samplers
	case HeapKindRenderTargets:
		return s.RenderTargets
	case HeapKindDepthStencil:
		return s.DepthStencil
	default:
		return KindSettings{}
	}
}

// GPUWaiter blocks until every command list submitted so far has retired.
type GPUWaiter interface {
	WaitForGPUIdle() error
}

// GPUWaiterFunc adapts a function to GPUWaiter.
type GPUWaiterFunc func() error

// WaitForGPUIdle calls f.
func (f GPUWaiterFunc) WaitForGPUIdle() error { return f() }

// HeapStats is a snapshot of one heap.
type HeapStats struct {
	Kind          HeapKind
	Index         int
	ShaderVisible bool
	Allocated     uint32
	Deferred      uint32
	Reserved      uint32
	Free          uint32
	Generation    uint64
}

// Allocator owns the descriptor heaps of a context.
//
// Heap creation, Allocate and Release run on the owning context's
// goroutine. Recording goroutines only reserve ranges and read slots.
type Allocator struct {
	mu            sync.RWMutex
	heaps         [heapKindCount][]*Heap
	shaderVisible [heapKindCount]*Heap
	staging       [heapKindCount]*Heap
	deferred      bool
	released      bool
}

// NewAllocator returns an empty allocator. Call Initialize before use.
func NewAllocator() *Allocator {
	return &Allocator{}
}

// Initialize creates one non-shader-visible heap for every kind and one
// shader-visible heap for every kind shaders read.
func (a *Allocator) Initialize(settings Settings) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.deferred = settings.DeferredAllocation
	a.released = false
	for _, kind := range HeapKinds {
		a.heaps[kind] = nil
		ks := settings.For(kind)
		staging, err := a.createLocked(HeapSettings{Kind: kind, Size: ks.DefaultSize})
		if err != nil {
			return err
		}
		a.staging[kind] = staging
		if !kind.IsShaderVisible() {
			continue
		}
		visible, err := a.createLocked(HeapSettings{Kind: kind, Size: ks.ShaderVisibleSize, ShaderVisible: true})
		if err != nil {
			return err
		}
		a.shaderVisible[kind] = visible
	}

	logger.Get().Debug("descriptor: allocator initialized", "deferred", a.deferred)
	return nil
}

// CreateDescriptorHeap adds a heap and returns its index among the heaps
// of the same kind.
func (a *Allocator) CreateDescriptorHeap(settings HeapSettings) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	h, err := a.createLocked(settings)
	if err != nil {
		return -1, err
	}
	if settings.ShaderVisible && a.shaderVisible[settings.Kind] == nil {
		a.shaderVisible[settings.Kind] = h
	}
	return len(a.heaps[settings.Kind]) - 1, nil
}

func (a *Allocator) createLocked(settings HeapSettings) (*Heap, error) {
	if a.released {
		return nil, ErrReleased
	}
	if !settings.Kind.IsDefined() {
		return nil, fmt.Errorf("%w: cannot create heap", ErrUndefinedKind)
	}
	// CPU-only heaps have no GPU readers, so their growth is never deferred.
	h, err := NewHeap(settings, a.deferred && settings.ShaderVisible)
	if err != nil {
		return nil, err
	}
	a.heaps[settings.Kind] = append(a.heaps[settings.Kind], h)
	return h, nil
}

// DescriptorHeap returns heap index of kind.
func (a *Allocator) DescriptorHeap(kind HeapKind, index int) (*Heap, error) {
	if !kind.IsDefined() {
		return nil, ErrUndefinedKind
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if index < 0 || index >= len(a.heaps[kind]) {
		return nil, fmt.Errorf("%w: %s heap %d of %d", ErrIndexOutOfRange, kind, index, len(a.heaps[kind]))
	}
	return a.heaps[kind][index], nil
}

// HeapCount returns the number of heaps of kind.
func (a *Allocator) HeapCount(kind HeapKind) int {
	if !kind.IsDefined() {
		return 0
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.heaps[kind])
}

// DefaultShaderVisibleHeap returns the heap arguments of kind bind from.
func (a *Allocator) DefaultShaderVisibleHeap(kind HeapKind) (*Heap, error) {
	if !kind.IsDefined() {
		return nil, ErrUndefinedKind
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	h := a.shaderVisible[kind]
	if h == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoShaderVisibleHeap, kind)
	}
	return h, nil
}

// DefaultHeap returns the non-shader-visible heap that receives resource
// descriptors of kind on creation.
func (a *Allocator) DefaultHeap(kind HeapKind) (*Heap, error) {
	if !kind.IsDefined() {
		return nil, ErrUndefinedKind
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	h := a.staging[kind]
	if h == nil {
		return nil, fmt.Errorf("%w: no default %s heap, allocator not initialized", ErrInvalidArgument, kind)
	}
	return h, nil
}

// SetDeferredHeapAllocation changes how later reservations grow the
// shader-visible heaps. Growth already recorded is left pending.
func (a *Allocator) SetDeferredHeapAllocation(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deferred = enabled
	for _, kind := range HeapKinds {
		for _, h := range a.heaps[kind] {
			if h.IsShaderVisible() {
				h.SetDeferredAllocation(enabled)
			}
		}
	}
}

// IsDeferredHeapAllocation reports the current growth mode.
func (a *Allocator) IsDeferredHeapAllocation() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.deferred
}

// HasPendingAllocations reports whether any heap waits for Allocate.
func (a *Allocator) HasPendingAllocations() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, kind := range HeapKinds {
		for _, h := range a.heaps[kind] {
			if h.HasPendingAllocation() {
				return true
			}
		}
	}
	return false
}

// CompleteInitialization waits for the GPU through w, realizes all pending
// heap growth and leaves deferred allocation enabled. It blocks until the
// wait returns.
func (a *Allocator) CompleteInitialization(w GPUWaiter) error {
	if w == nil {
		return fmt.Errorf("%w: nil GPU waiter", ErrInvalidArgument)
	}
	if !a.HasPendingAllocations() {
		a.SetDeferredHeapAllocation(true)
		return nil
	}
	if err := w.WaitForGPUIdle(); err != nil {
		return fmt.Errorf("descriptor: wait for GPU before heap allocation: %w", err)
	}

	a.mu.Lock()
	grown := 0
	for _, kind := range HeapKinds {
		for _, h := range a.heaps[kind] {
			if h.Allocate() {
				grown++
			}
		}
	}
	a.mu.Unlock()

	a.SetDeferredHeapAllocation(true)
	logger.Get().Debug("descriptor: deferred heaps allocated", "heaps", grown)
	return nil
}

// Stats returns a snapshot of every heap.
func (a *Allocator) Stats() []HeapStats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var stats []HeapStats
	for _, kind := range HeapKinds {
		for i, h := range a.heaps[kind] {
			stats = append(stats, HeapStats{
				Kind:          kind,
				Index:         i,
				ShaderVisible: h.IsShaderVisible(),
				Allocated:     h.AllocatedSize(),
				Deferred:      h.DeferredSize(),
				Reserved:      h.ReservedSize(),
				Free:          h.FreeCount(),
				Generation:    h.Generation(),
			})
		}
	}
	return stats
}

// Release tears down every heap.
func (a *Allocator) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, kind := range HeapKinds {
		for _, h := range a.heaps[kind] {
			h.release()
		}
		a.heaps[kind] = nil
		a.shaderVisible[kind] = nil
		a.staging[kind] = nil
	}
	a.released = true
}
