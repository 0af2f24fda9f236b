// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package resource

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rhi/descriptor"
	"github.com/gogpu/wgpu/hal"
)

// Address is a direct GPU address: a native buffer handle plus a byte
// offset into it.
type Address struct {
	Handle uintptr
	Offset uint64
}

// Native is the backend half of a Resource. Implementations wrap one native
// object and are selected when the resource is created.
type Native interface {
	// Handle returns the raw native handle.
	Handle() uintptr

	// GPUAddress returns the address of offset bytes into the resource.
	GPUAddress(offset uint64) Address

	// Descriptor creates the descriptor for a view. release, when not nil,
	// destroys native objects created for the view.
	Descriptor(resourceID uint64, settings ViewSettings) (d descriptor.Descriptor, release func(), err error)

	// Destroy releases the native object.
	Destroy()
}

// pendingCounter is implemented by natives whose backend defers
// destruction while GPU work referencing them is in flight.
type pendingCounter interface {
	AddPendingRef()
	DecPendingRef()
}

// halBuffer is the Native of buffers created through a hal.Device.
type halBuffer struct {
	device hal.Device
	buffer hal.Buffer
}

func (b *halBuffer) Handle() uintptr { return b.buffer.NativeHandle() }

func (b *halBuffer) GPUAddress(offset uint64) Address {
	return Address{Handle: b.buffer.NativeHandle(), Offset: offset}
}

func (b *halBuffer) Descriptor(id uint64, s ViewSettings) (descriptor.Descriptor, func(), error) {
	return descriptor.Descriptor{
		Type:     descriptor.TypeBuffer,
		Resource: id,
		Buffer:   b.buffer,
		Offset:   s.Offset,
		Size:     s.Size,
	}, nil, nil
}

func (b *halBuffer) Destroy() { b.device.DestroyBuffer(b.buffer) }

// halTexture is the Native of textures created through a hal.Device.
type halTexture struct {
	device  hal.Device
	texture hal.Texture
	format  gputypes.TextureFormat
	label   string
}

func (t *halTexture) Handle() uintptr { return t.texture.NativeHandle() }

func (t *halTexture) GPUAddress(offset uint64) Address {
	return Address{Handle: t.texture.NativeHandle(), Offset: offset}
}

func (t *halTexture) Descriptor(id uint64, s ViewSettings) (descriptor.Descriptor, func(), error) {
	aspect := gputypes.TextureAspectAll
	if t.format.IsDepthStencil() && s.Usage&UsageRenderTarget == 0 {
		aspect = gputypes.TextureAspectDepthOnly
	}
	view, err := t.device.CreateTextureView(t.texture, &hal.TextureViewDescriptor{
		Label:           t.label,
		Dimension:       s.Dimension,
		Aspect:          aspect,
		BaseMipLevel:    s.Subresources.BaseMip,
		MipLevelCount:   s.Subresources.MipCount,
		BaseArrayLayer:  s.Subresources.BaseLayer,
		ArrayLayerCount: s.Subresources.LayerCount,
	})
	if err != nil {
		return descriptor.Descriptor{}, nil, fmt.Errorf("resource: create texture view: %w", err)
	}
	release := func() { t.device.DestroyTextureView(view) }
	return descriptor.Descriptor{
		Type:        descriptor.TypeTexture,
		Resource:    id,
		TextureView: view,
	}, release, nil
}

func (t *halTexture) Destroy() { t.device.DestroyTexture(t.texture) }

func (t *halTexture) AddPendingRef() { t.texture.AddPendingRef() }
func (t *halTexture) DecPendingRef() { t.texture.DecPendingRef() }

// halSampler is the Native of samplers created through a hal.Device.
type halSampler struct {
	device  hal.Device
	sampler hal.Sampler
}

func (s *halSampler) Handle() uintptr { return s.sampler.NativeHandle() }

func (s *halSampler) GPUAddress(uint64) Address { return Address{Handle: s.sampler.NativeHandle()} }

func (s *halSampler) Descriptor(id uint64, _ ViewSettings) (descriptor.Descriptor, func(), error) {
	return descriptor.Descriptor{
		Type:     descriptor.TypeSampler,
		Resource: id,
		Sampler:  s.sampler,
	}, nil, nil
}

func (s *halSampler) Destroy() { s.device.DestroySampler(s.sampler) }

// HALBuffer returns the wrapped buffer.
func (b *halBuffer) HALBuffer() hal.Buffer { return b.buffer }

// HALTexture returns the wrapped texture.
func (t *halTexture) HALTexture() hal.Texture { return t.texture }

// HALSampler returns the wrapped sampler.
func (s *halSampler) HALSampler() hal.Sampler { return s.sampler }
