// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package descriptor

import (
	"errors"
	"testing"
)

func newAllocator(t *testing.T, settings Settings) *Allocator {
	t.Helper()
	a := NewAllocator()
	if err := a.Initialize(settings); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	t.Cleanup(a.Release)
	return a
}

func TestInitializeHeapLayout(t *testing.T) {
	a := newAllocator(t, DefaultSettings())

	tests := []struct {
		kind          HeapKind
		count         int
		shaderVisible bool
	}{
		{HeapKindShaderResources, 2, true},
		{HeapKindSamplers, 2, true},
		{HeapKindRenderTargets, 1, false},
		{HeapKindDepthStencil, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			if got := a.HeapCount(tt.kind); got != tt.count {
				t.Errorf("HeapCount(%s) = %d, want %d", tt.kind, got, tt.count)
			}
			_, err := a.DefaultShaderVisibleHeap(tt.kind)
			if tt.shaderVisible && err != nil {
				t.Errorf("DefaultShaderVisibleHeap(%s) error = %v", tt.kind, err)
			}
			if !tt.shaderVisible && !errors.Is(err, ErrNoShaderVisibleHeap) {
				t.Errorf("DefaultShaderVisibleHeap(%s) error = %v, want ErrNoShaderVisibleHeap", tt.kind, err)
			}
			staging, err := a.DefaultHeap(tt.kind)
			if err != nil {
				t.Fatalf("DefaultHeap(%s) failed: %v", tt.kind, err)
			}
			if staging.IsShaderVisible() {
				t.Errorf("DefaultHeap(%s) is shader-visible", tt.kind)
			}
		})
	}
}

func TestCreateDescriptorHeap(t *testing.T) {
	a := newAllocator(t, DefaultSettings())

	idx, err := a.CreateDescriptorHeap(HeapSettings{Kind: HeapKindShaderResources, Size: 8})
	if err != nil {
		t.Fatalf("CreateDescriptorHeap failed: %v", err)
	}
	if idx != 2 {
		t.Errorf("heap index = %d, want 2", idx)
	}
	h, err := a.DescriptorHeap(HeapKindShaderResources, idx)
	if err != nil {
		t.Fatalf("DescriptorHeap failed: %v", err)
	}
	if h.AllocatedSize() != 8 {
		t.Errorf("AllocatedSize() = %d, want 8", h.AllocatedSize())
	}

	if _, err := a.CreateDescriptorHeap(HeapSettings{Kind: HeapKindUndefined}); !errors.Is(err, ErrUndefinedKind) {
		t.Errorf("CreateDescriptorHeap(Undefined) error = %v, want ErrUndefinedKind", err)
	}
	if _, err := a.DescriptorHeap(HeapKindShaderResources, 3); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("DescriptorHeap(out of range) error = %v, want ErrIndexOutOfRange", err)
	}
	if _, err := a.DescriptorHeap(HeapKindUndefined, 0); !errors.Is(err, ErrUndefinedKind) {
		t.Errorf("DescriptorHeap(Undefined) error = %v, want ErrUndefinedKind", err)
	}
}

type countingWaiter struct {
	calls int
	err   error
}

func (w *countingWaiter) WaitForGPUIdle() error {
	w.calls++
	return w.err
}

func TestCompleteInitialization(t *testing.T) {
	settings := DefaultSettings()
	settings.ShaderResources = KindSettings{DefaultSize: 4, ShaderVisibleSize: 0}
	a := newAllocator(t, settings)

	h, err := a.DefaultShaderVisibleHeap(HeapKindShaderResources)
	if err != nil {
		t.Fatalf("DefaultShaderVisibleHeap failed: %v", err)
	}
	r, err := h.Reserve(3)
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if h.AllocatedSize() != 0 {
		t.Fatalf("AllocatedSize() = %d before CompleteInitialization, want 0", h.AllocatedSize())
	}
	if !a.HasPendingAllocations() {
		t.Fatal("HasPendingAllocations() = false, want true")
	}

	w := &countingWaiter{}
	if err := a.CompleteInitialization(w); err != nil {
		t.Fatalf("CompleteInitialization failed: %v", err)
	}
	if w.calls != 1 {
		t.Errorf("GPU waits = %d, want 1", w.calls)
	}
	if !r.IsAllocated() {
		t.Error("reserved range not allocated after CompleteInitialization")
	}
	if !a.IsDeferredHeapAllocation() {
		t.Error("deferred allocation should stay enabled after CompleteInitialization")
	}

	// Nothing pending: no wait.
	if err := a.CompleteInitialization(w); err != nil {
		t.Fatalf("second CompleteInitialization failed: %v", err)
	}
	if w.calls != 1 {
		t.Errorf("GPU waits = %d after idle CompleteInitialization, want 1", w.calls)
	}
}

func TestCompleteInitializationWaitError(t *testing.T) {
	settings := DefaultSettings()
	settings.Samplers.ShaderVisibleSize = 0
	a := newAllocator(t, settings)

	h, _ := a.DefaultShaderVisibleHeap(HeapKindSamplers)
	if _, err := h.Reserve(1); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}

	boom := errors.New("device lost")
	err := a.CompleteInitialization(&countingWaiter{err: boom})
	if !errors.Is(err, boom) {
		t.Errorf("CompleteInitialization error = %v, want %v", err, boom)
	}
	if h.AllocatedSize() != 0 {
		t.Error("heap must not grow when the GPU wait fails")
	}
}

func TestSetDeferredHeapAllocation(t *testing.T) {
	settings := DefaultSettings()
	settings.ShaderResources.ShaderVisibleSize = 0
	a := newAllocator(t, settings)
	h, _ := a.DefaultShaderVisibleHeap(HeapKindShaderResources)

	if _, err := h.Reserve(2); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	a.SetDeferredHeapAllocation(false)
	if h.AllocatedSize() != 0 {
		t.Error("switching the flag must not realize pending growth")
	}

	if _, err := h.Reserve(1); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if got := h.AllocatedSize(); got != 3 {
		t.Errorf("AllocatedSize() = %d after immediate reserve, want 3", got)
	}
}

func TestStagingHeapsNeverDefer(t *testing.T) {
	settings := DefaultSettings()
	settings.ShaderResources.DefaultSize = 0
	a := newAllocator(t, settings)

	staging, _ := a.DefaultHeap(HeapKindShaderResources)
	r, err := staging.Reserve(1)
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if !r.IsAllocated() {
		t.Error("staging heap reservation should be allocated immediately")
	}
}

func TestReleaseAllocator(t *testing.T) {
	a := NewAllocator()
	if err := a.Initialize(DefaultSettings()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	h, _ := a.DefaultShaderVisibleHeap(HeapKindShaderResources)
	a.Release()

	if got := a.HeapCount(HeapKindShaderResources); got != 0 {
		t.Errorf("HeapCount() after Release = %d, want 0", got)
	}
	if _, err := h.Reserve(1); !errors.Is(err, ErrReleased) {
		t.Errorf("Reserve after Release error = %v, want ErrReleased", err)
	}
	if _, err := a.CreateDescriptorHeap(HeapSettings{Kind: HeapKindSamplers}); !errors.Is(err, ErrReleased) {
		t.Errorf("CreateDescriptorHeap after Release error = %v, want ErrReleased", err)
	}
}

func TestStats(t *testing.T) {
	a := newAllocator(t, DefaultSettings())
	stats := a.Stats()
	if len(stats) != 6 {
		t.Fatalf("len(Stats()) = %d, want 6", len(stats))
	}
	if stats[0].Kind != HeapKindShaderResources || stats[0].ShaderVisible {
		t.Errorf("Stats()[0] = %+v, want staging ShaderResources", stats[0])
	}
	if stats[1].Allocated != DefaultShaderResourcesSize {
		t.Errorf("Stats()[1].Allocated = %d, want %d", stats[1].Allocated, DefaultShaderResourcesSize)
	}
}
