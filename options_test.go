// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"testing"
	"time"

	"github.com/gogpu/rhi/command"
	"github.com/gogpu/rhi/descriptor"
	"github.com/gogpu/rhi/device"
	"github.com/gogpu/rhi/shader"
)

func TestDefaultOptions(t *testing.T) {
	o := defaultOptions()
	if o.frameCount != command.DefaultFrameCount {
		t.Errorf("frameCount = %d, want %d", o.frameCount, command.DefaultFrameCount)
	}
	if o.shaderCacheSize != shader.DefaultCacheSize {
		t.Errorf("shaderCacheSize = %d, want %d", o.shaderCacheSize, shader.DefaultCacheSize)
	}
	if o.fenceTimeout != command.DefaultFenceTimeout {
		t.Errorf("fenceTimeout = %v, want %v", o.fenceTimeout, command.DefaultFenceTimeout)
	}
	if !o.descriptors.DeferredAllocation {
		t.Error("descriptor heaps should defer growth by default")
	}
	if o.registry != nil || o.backend != "" {
		t.Errorf("registry/backend = %v/%q, want unset", o.registry, o.backend)
	}
}

func TestContextOptions(t *testing.T) {
	reg := device.NewRegistry()
	settings := descriptor.DefaultSettings()
	settings.Samplers.DefaultSize = 4

	o := defaultOptions()
	for _, opt := range []ContextOption{
		WithFrameCount(3),
		WithDescriptorSettings(settings),
		WithShaderCacheSize(8),
		WithFenceTimeout(time.Second),
		WithRegistry(reg),
		WithBackend(device.BackendVulkan),
	} {
		opt(&o)
	}
	if o.frameCount != 3 || o.shaderCacheSize != 8 || o.fenceTimeout != time.Second {
		t.Errorf("options = %+v", o)
	}
	if o.descriptors.Samplers.DefaultSize != 4 {
		t.Errorf("sampler heap size = %d, want 4", o.descriptors.Samplers.DefaultSize)
	}
	if o.registry != reg || o.backend != device.BackendVulkan {
		t.Errorf("registry/backend not applied")
	}
}

func TestOptionsIgnoreInvalid(t *testing.T) {
	o := defaultOptions()
	WithFrameCount(0)(&o)
	WithFenceTimeout(-time.Second)(&o)
	if o.frameCount != command.DefaultFrameCount || o.fenceTimeout != command.DefaultFenceTimeout {
		t.Errorf("invalid values applied: frames %d, timeout %v", o.frameCount, o.fenceTimeout)
	}
}
