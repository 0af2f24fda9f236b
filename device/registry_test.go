// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package device

import (
	"errors"
	"slices"
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

// failingBackend fails to create instances.
type failingBackend struct{ variant gputypes.Backend }

func (b failingBackend) Variant() gputypes.Backend { return b.variant }
func (b failingBackend) CreateInstance(*hal.InstanceDescriptor) (hal.Instance, error) {
	return nil, errors.New("driver missing")
}

func TestBackendName(t *testing.T) {
	tests := []struct {
		variant gputypes.Backend
		want    string
	}{
		{gputypes.BackendEmpty, BackendNoop},
		{gputypes.BackendVulkan, BackendVulkan},
		{gputypes.BackendMetal, BackendMetal},
		{gputypes.BackendDX12, BackendDX12},
		{gputypes.BackendGL, BackendGL},
	}
	for _, tt := range tests {
		if got := BackendName(tt.variant); got != tt.want {
			t.Errorf("BackendName(%v) = %q, want %q", tt.variant, got, tt.want)
		}
	}
}

func TestHALRegistryHasNoop(t *testing.T) {
	r := NewHALRegistry()
	if !r.Has(BackendNoop) {
		t.Fatalf("noop backend missing, have %v", r.Names())
	}
}

func TestOpenByPriority(t *testing.T) {
	r := NewRegistry()
	r.Register(BackendNoop, noop.API{})
	r.Register(BackendVulkan, failingBackend{gputypes.BackendVulkan})

	if got := r.BestName(); got != BackendVulkan {
		t.Fatalf("BestName() = %q, want vulkan", got)
	}
	if _, err := r.Open(""); err == nil {
		t.Fatal("Open of failing backend succeeded")
	}
	if r.Opened() != 0 {
		t.Errorf("Opened() = %d after failure, want 0", r.Opened())
	}

	r.Unregister(BackendVulkan)
	d, err := r.Open("")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if d.Name() != BackendNoop || d.Backend() != gputypes.BackendEmpty {
		t.Errorf("opened %s (%v), want noop", d.Name(), d.Backend())
	}
	if d.HAL() == nil || d.Queue() == nil {
		t.Fatal("device or queue is nil")
	}
	if d.Info().Name != "Noop Adapter" {
		t.Errorf("Info().Name = %q", d.Info().Name)
	}
	if d.AdapterInfo().Type != gpucontext.AdapterTypeUnknown {
		t.Errorf("AdapterInfo().Type = %v, want Unknown", d.AdapterInfo().Type)
	}
	if d.Limits().MinUniformBufferOffsetAlignment == 0 {
		t.Error("Limits() not populated")
	}
}

func TestOpenUnknown(t *testing.T) {
	r := NewRegistry(BackendNoop)
	r.Register(BackendNoop, noop.API{})
	if _, err := r.Open("metal"); !errors.Is(err, ErrNoBackend) {
		t.Errorf("Open(metal) error = %v, want ErrNoBackend", err)
	}
	if got := r.Names(); !slices.Equal(got, []string{BackendNoop}) {
		t.Errorf("Names() = %v", got)
	}
}

func TestRelease(t *testing.T) {
	r := NewRegistry()
	r.Register(BackendNoop, noop.API{})

	a, err := r.Open(BackendNoop)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := r.Open(BackendNoop); err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if r.Opened() != 1 {
		t.Errorf("Opened() = %d after Close, want 1", r.Opened())
	}

	if err := r.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if r.Opened() != 0 {
		t.Errorf("Opened() = %d after Release, want 0", r.Opened())
	}
	if _, err := r.Open(BackendNoop); !errors.Is(err, ErrReleased) {
		t.Errorf("Open after Release error = %v, want ErrReleased", err)
	}
	// Closing again is harmless.
	if err := a.Close(); err != nil {
		t.Errorf("repeated Close error = %v", err)
	}
}

func TestAdapterType(t *testing.T) {
	tests := []struct {
		in   gputypes.DeviceType
		want gpucontext.AdapterType
	}{
		{gputypes.DeviceTypeDiscreteGPU, gpucontext.AdapterTypeDiscrete},
		{gputypes.DeviceTypeIntegratedGPU, gpucontext.AdapterTypeIntegrated},
		{gputypes.DeviceTypeCPU, gpucontext.AdapterTypeSoftware},
		{gputypes.DeviceTypeVirtualGPU, gpucontext.AdapterTypeUnknown},
	}
	for _, tt := range tests {
		if got := adapterType(tt.in); got != tt.want {
			t.Errorf("adapterType(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
