// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"time"

	"github.com/gogpu/rhi/command"
	"github.com/gogpu/rhi/descriptor"
	"github.com/gogpu/rhi/device"
	"github.com/gogpu/rhi/shader"
)

// ContextOption configures a Context during creation.
//
// Example:
//
//	ctx, err := rhi.NewContext(
//	    rhi.WithBackend(device.BackendVulkan),
//	    rhi.WithFrameCount(3),
//	)
type ContextOption func(*contextOptions)

// contextOptions holds optional configuration for Context creation.
type contextOptions struct {
	frameCount      int
	descriptors     descriptor.Settings
	shaderCacheSize int
	fenceTimeout    time.Duration
	registry        *device.Registry
	backend         string
}

// defaultOptions returns the default context options.
func defaultOptions() contextOptions {
	return contextOptions{
		frameCount:      command.DefaultFrameCount,
		descriptors:     descriptor.DefaultSettings(),
		shaderCacheSize: shader.DefaultCacheSize,
		fenceTimeout:    command.DefaultFenceTimeout,
	}
}

// WithFrameCount sets the number of frames in flight. Objects released
// during a frame are destroyed once that frame slot comes around again.
// A count of 1 keeps a single release bucket flushed every frame.
func WithFrameCount(n int) ContextOption {
	return func(o *contextOptions) {
		if n > 0 {
			o.frameCount = n
		}
	}
}

// WithDescriptorSettings sets the descriptor heap sizes and whether heap
// growth is deferred until CompleteInitialization.
func WithDescriptorSettings(s descriptor.Settings) ContextOption {
	return func(o *contextOptions) {
		o.descriptors = s
	}
}

// WithShaderCacheSize bounds the number of reflected shader sources kept.
func WithShaderCacheSize(n int) ContextOption {
	return func(o *contextOptions) {
		o.shaderCacheSize = n
	}
}

// WithFenceTimeout bounds every wait for the GPU. An expired wait is
// returned as a *command.TimeoutError.
func WithFenceTimeout(d time.Duration) ContextOption {
	return func(o *contextOptions) {
		if d > 0 {
			o.fenceTimeout = d
		}
	}
}

// WithRegistry opens the device from r instead of a registry of every hal
// backend linked into the binary. The caller keeps ownership of r.
func WithRegistry(r *device.Registry) ContextOption {
	return func(o *contextOptions) {
		o.registry = r
	}
}

// WithBackend selects a backend by registry name, for example
// device.BackendVulkan. The default is the registry's preferred backend.
func WithBackend(name string) ContextOption {
	return func(o *contextOptions) {
		o.backend = name
	}
}
