// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package rhi binds shader arguments to GPU resources on top of the
// gogpu/wgpu hal layer.
//
// # Overview
//
// A shader program declares arguments: textures, samplers, buffers and
// small inline constants. rhi resolves those arguments by reflection,
// stores their descriptors in growable descriptor heaps, tracks the GPU
// state of every bound resource and records the barriers and bind groups a
// draw or dispatch needs.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/rhi"
//	    "github.com/gogpu/rhi/program"
//	    "github.com/gogpu/rhi/resource"
//	    _ "github.com/gogpu/wgpu/hal/allbackends"
//	)
//
//	ctx, err := rhi.NewContext()
//	if err != nil {
//	    return err
//	}
//	defer ctx.Release()
//
//	p, err := ctx.NewProgram("blit", wgslSource)
//	tex, err := ctx.Resources().NewTexture(resource.TextureSettings{...})
//	b, err := ctx.NewProgramBindings(p, program.Views("src", resource.MustView(tex, resource.ViewSettings{})))
//
//	ctx.BeginFrame()
//	list, err := ctx.Queue().NewList("frame")
//	list.SetProgramBindings(b, program.ApplyDefault)
//	ctx.Present(context.Background(), list)
//
// # Architecture
//
// The library is organized into:
//   - descriptor: descriptor heaps, ranges and the heap allocator
//   - resource: buffers, textures, samplers, views and the release pool
//   - barrier: resource state transition sets
//   - shader: WGSL reflection through naga and a reflection cache
//   - program: programs, argument bindings and bindings application
//   - command: command lists, parallel recording, fences and frame pacing
//   - device: backend registry and device opening
//
// # Deferred heap growth
//
// With descriptor.Settings.DeferredAllocation, reserving more descriptor
// slots than a heap holds does not reallocate it while the GPU may read
// it. Bindings created meanwhile stay Reserved. Context.CompleteInitialization
// waits for the GPU, grows the heaps and completes those bindings.
//
// # Logging
//
// rhi is silent by default. See SetLogger.
package rhi
