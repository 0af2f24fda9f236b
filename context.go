// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/rhi/command"
	"github.com/gogpu/rhi/descriptor"
	"github.com/gogpu/rhi/device"
	"github.com/gogpu/rhi/internal/logger"
	"github.com/gogpu/rhi/program"
	"github.com/gogpu/rhi/resource"
	"github.com/gogpu/rhi/shader"
)

// ErrReleased is returned by Context methods after Release.
var ErrReleased = errors.New("rhi: context released")

// Context ties one device to the descriptor allocator, release pool,
// queue and shader cache its programs share.
//
// Bindings created while heaps defer their growth stay Reserved; the
// context remembers them and completes them in CompleteInitialization.
type Context struct {
	registry     *device.Registry
	ownsRegistry bool
	device       *device.Device

	descriptors *descriptor.Allocator
	releases    *resource.ReleasePool
	resources   *resource.Device
	queue       *command.Queue
	shaders     *shader.Cache

	mu       sync.Mutex
	pending  []*program.Bindings
	programs []*program.Program
	released bool
}

// NewContext opens a device and builds the objects around it.
func NewContext(opts ...ContextOption) (*Context, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	c := &Context{registry: o.registry}
	if c.registry == nil {
		c.registry = device.NewHALRegistry()
		c.ownsRegistry = true
	}

	dev, err := c.registry.Open(o.backend)
	if err != nil {
		c.releaseRegistry()
		return nil, fmt.Errorf("rhi: open device: %w", err)
	}
	c.device = dev

	c.descriptors = descriptor.NewAllocator()
	if err := c.descriptors.Initialize(o.descriptors); err != nil {
		c.closeDevice()
		return nil, fmt.Errorf("rhi: descriptor heaps: %w", err)
	}
	c.releases = resource.NewReleasePool(o.frameCount)
	c.resources = resource.NewDevice(dev.HAL(), c.descriptors, c.releases)

	c.queue, err = command.NewQueue(c.resources, dev.Queue(), command.Settings{
		FrameCount:   o.frameCount,
		FenceTimeout: o.fenceTimeout,
	})
	if err != nil {
		c.descriptors.Release()
		c.closeDevice()
		return nil, err
	}
	if c.shaders, err = shader.NewCache(o.shaderCacheSize); err != nil {
		c.descriptors.Release()
		c.closeDevice()
		return nil, err
	}

	logger.Get().Info("rhi: context created",
		"backend", dev.Name(),
		"adapter", dev.Info().Name,
		"frames", c.queue.FrameCount(),
		"deferred", o.descriptors.DeferredAllocation)
	return c, nil
}

// Device returns the opened device.
func (c *Context) Device() *device.Device { return c.device }

// AdapterInfo describes the adapter in gpucontext terms.
func (c *Context) AdapterInfo() gpucontext.AdapterInfo { return c.device.AdapterInfo() }

// Resources returns the factory for buffers, textures and samplers.
func (c *Context) Resources() *resource.Device { return c.resources }

// Descriptors returns the descriptor allocator.
func (c *Context) Descriptors() *descriptor.Allocator { return c.descriptors }

// ReleasePool returns the frame-scoped release pool.
func (c *Context) ReleasePool() *resource.ReleasePool { return c.releases }

// Queue returns the command queue.
func (c *Context) Queue() *command.Queue { return c.queue }

// Shaders returns the reflection cache.
func (c *Context) Shaders() *shader.Cache { return c.shaders }

// FrameIndex returns the current frame slot.
func (c *Context) FrameIndex() int { return c.queue.FrameIndex() }

// FrameNumber returns the number of frames presented. Bindings are
// created for it, and FrameConstant arguments accept one value per frame
// number.
func (c *Context) FrameNumber() int { return int(c.queue.FrameNumber()) }

func (c *Context) isReleased() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released
}

// NewProgram reflects WGSL source and creates a program from it.
// Reflection results are cached by source, so programs sharing a shader
// reflect it once. The context releases the program on Release.
func (c *Context) NewProgram(name, source string, accessors ...program.Accessor) (*program.Program, error) {
	if c.isReleased() {
		return nil, ErrReleased
	}
	m, err := c.shaders.Reflect(name, source)
	if err != nil {
		return nil, err
	}
	p, err := program.New(c.resources, c.device.Queue(), program.Settings{
		Name:             name,
		Shaders:          []*shader.Module{m},
		Accessors:        accessors,
		UniformAlignment: c.device.Limits().MinUniformBufferOffsetAlignment,
	})
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.programs = append(c.programs, p)
	c.mu.Unlock()
	return p, nil
}

// NewProgramBindings creates bindings of p for the current frame.
func (c *Context) NewProgramBindings(p *program.Program, values ...program.Value) (*program.Bindings, error) {
	if c.isReleased() {
		return nil, ErrReleased
	}
	b, err := program.Create(p, values, c.FrameNumber())
	if err != nil {
		return nil, err
	}
	c.track(b)
	return b, nil
}

// CopyProgramBindings creates bindings holding src's values with values
// replacing some of them.
func (c *Context) CopyProgramBindings(src *program.Bindings, values ...program.Value) (*program.Bindings, error) {
	if c.isReleased() {
		return nil, ErrReleased
	}
	b, err := program.CreateCopy(src, values, c.FrameNumber())
	if err != nil {
		return nil, err
	}
	c.track(b)
	return b, nil
}

func (c *Context) track(b *program.Bindings) {
	if b.State() != program.StateReserved {
		return
	}
	c.mu.Lock()
	c.pending = append(c.pending, b)
	c.mu.Unlock()
}

// PendingBindings returns the number of bindings waiting for
// CompleteInitialization.
func (c *Context) PendingBindings() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// CompleteInitialization waits for the GPU to go idle, allocates every
// deferred descriptor heap and completes the bindings that were waiting
// for them. Bindings released meanwhile are skipped.
func (c *Context) CompleteInitialization() error {
	if c.isReleased() {
		return ErrReleased
	}
	if err := c.descriptors.CompleteInitialization(c.queue); err != nil {
		return err
	}

	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	var errs []error
	completed := 0
	for _, b := range pending {
		if b.State() != program.StateReserved {
			continue
		}
		if err := b.CompleteInitialization(); err != nil {
			errs = append(errs, err)
			continue
		}
		completed++
	}
	logger.Get().Debug("rhi: initialization completed", "bindings", completed, "failed", len(errs))
	return errors.Join(errs...)
}

// BeginFrame completes pending initialization if any heap waits for
// growth and returns the frame slot to record into.
func (c *Context) BeginFrame() (int, error) {
	if c.isReleased() {
		return 0, ErrReleased
	}
	if c.descriptors.HasPendingAllocations() || c.PendingBindings() > 0 {
		if err := c.CompleteInitialization(); err != nil {
			return 0, err
		}
	}
	return c.queue.FrameIndex(), nil
}

// Present submits lists and moves to the next frame slot. Moving on waits
// until the slot's previous frame has retired and destroys what was
// released during it.
func (c *Context) Present(ctx context.Context, lists ...*command.List) (uint64, error) {
	if c.isReleased() {
		return 0, ErrReleased
	}
	index, err := c.queue.Submit(ctx, lists...)
	if err != nil {
		return 0, err
	}
	if err := c.queue.AdvanceFrame(); err != nil {
		return index, err
	}
	return index, nil
}

// Release waits for the GPU, destroys the programs created through the
// context and everything left in the release pool, then closes the
// device. Bindings and resources must be released by their owners first.
func (c *Context) Release() error {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return nil
	}
	c.released = true
	programs := slices.Clone(c.programs)
	c.programs = nil
	c.pending = nil
	c.mu.Unlock()

	var errs []error
	errs = append(errs, c.queue.Release())
	for _, p := range programs {
		p.Release()
	}
	c.releases.ReleaseAll()
	c.descriptors.Release()
	c.shaders.Purge()
	errs = append(errs, c.device.Close())
	if c.ownsRegistry {
		errs = append(errs, c.registry.Release())
	}
	logger.Get().Info("rhi: context released", "backend", c.device.Name())
	return errors.Join(errs...)
}

func (c *Context) closeDevice() {
	if err := c.device.Close(); err != nil {
		logger.Get().Warn("rhi: close device", "err", err)
	}
	c.releaseRegistry()
}

func (c *Context) releaseRegistry() {
	if !c.ownsRegistry {
		return
	}
	if err := c.registry.Release(); err != nil {
		logger.Get().Warn("rhi: release registry", "err", err)
	}
}
