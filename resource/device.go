// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package resource

import (
	"fmt"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rhi/descriptor"
	"github.com/gogpu/rhi/internal/align"
	"github.com/gogpu/rhi/internal/logger"
	"github.com/gogpu/wgpu/hal"
)

// bufferAlignment is the size granularity of native buffers.
const bufferAlignment = 4

// BufferSettings describes a buffer to create.
type BufferSettings struct {
	Name     string
	Size     uint64
	ViewKind ViewKind
	// Usage defaults to ShaderRead.
	Usage Usage
}

// TextureSettings describes a texture to create.
type TextureSettings struct {
	Name          string
	Width, Height uint32
	// DepthOrLayers defaults to 1.
	DepthOrLayers uint32
	// MipLevels defaults to 1.
	MipLevels   uint32
	SampleCount uint32
	Dimension   gputypes.TextureDimension
	Format      gputypes.TextureFormat
	ViewKind    ViewKind
	// Usage defaults to ShaderRead.
	Usage Usage
}

// SamplerSettings describes a sampler to create.
type SamplerSettings struct {
	Name          string
	AddressMode   gputypes.AddressMode
	MagFilter     gputypes.FilterMode
	MinFilter     gputypes.FilterMode
	MipmapFilter  gputypes.FilterMode
	LodMinClamp   float32
	LodMaxClamp   float32
	Compare       gputypes.CompareFunction
	MaxAnisotropy uint16
}

// DefaultSamplerSettings returns a linear clamp-to-edge sampler.
func DefaultSamplerSettings() SamplerSettings {
	return SamplerSettings{
		AddressMode:   gputypes.AddressModeClampToEdge,
		MagFilter:     gputypes.FilterModeLinear,
		MinFilter:     gputypes.FilterModeLinear,
		MipmapFilter:  gputypes.FilterModeNearest,
		LodMaxClamp:   32,
		MaxAnisotropy: 1,
	}
}

// Device creates resources on a hal.Device and hands them the descriptor
// allocator and release pool they share.
type Device struct {
	native      hal.Device
	descriptors *descriptor.Allocator
	releases    *ReleasePool
	nextID      atomic.Uint64
}

// NewDevice returns a resource factory. descriptors and releases may be nil,
// in which case views get no default descriptor slot and released
// resources are destroyed immediately.
func NewDevice(native hal.Device, descriptors *descriptor.Allocator, releases *ReleasePool) *Device {
	return &Device{native: native, descriptors: descriptors, releases: releases}
}

// HAL returns the native device.
func (d *Device) HAL() hal.Device { return d.native }

// Descriptors returns the descriptor allocator.
func (d *Device) Descriptors() *descriptor.Allocator { return d.descriptors }

// ReleasePool returns the release pool.
func (d *Device) ReleasePool() *ReleasePool { return d.releases }

// NewResource wraps an already created native object.
func (d *Device) NewResource(settings Settings, native Native) (*Resource, error) {
	if native == nil {
		return nil, fmt.Errorf("%w: nil native for %q", ErrInvalidSettings, settings.Name)
	}
	if settings.Kind == KindTexture {
		if settings.MipLevels == 0 {
			settings.MipLevels = 1
		}
		if settings.DepthOrLayers == 0 {
			settings.DepthOrLayers = 1
		}
	}
	r := &Resource{
		id:       d.nextID.Add(1),
		settings: settings,
		native:   native,
		device:   d,
	}
	logger.Get().Debug("resource: created", "resource", r.String(), "usage", settings.Usage)
	return r, nil
}

// NewBuffer creates a buffer.
func (d *Device) NewBuffer(s BufferSettings) (*Resource, error) {
	if s.Size == 0 {
		return nil, fmt.Errorf("%w: buffer %q has zero size", ErrInvalidSettings, s.Name)
	}
	if k := s.ViewKind.resourceKind(); k != 0 && k != KindBuffer {
		return nil, fmt.Errorf("%w: %s view kind on buffer %q", ErrInvalidSettings, s.ViewKind, s.Name)
	}
	if s.Usage == UsageNone {
		s.Usage = UsageShaderRead
	}
	buf, err := d.native.CreateBuffer(&hal.BufferDescriptor{
		Label: s.Name,
		Size:  align.Up(s.Size, bufferAlignment),
		Usage: bufferUsage(s.ViewKind, s.Usage),
	})
	if err != nil {
		return nil, fmt.Errorf("resource: create buffer %q: %w", s.Name, err)
	}
	return d.NewResource(Settings{
		Name:     s.Name,
		Kind:     KindBuffer,
		ViewKind: s.ViewKind,
		Usage:    s.Usage,
		Size:     s.Size,
	}, &halBuffer{device: d.native, buffer: buf})
}

// NewTexture creates a texture.
func (d *Device) NewTexture(s TextureSettings) (*Resource, error) {
	if s.Width == 0 || s.Height == 0 {
		return nil, fmt.Errorf("%w: texture %q has zero extent", ErrInvalidSettings, s.Name)
	}
	if s.Format == gputypes.TextureFormatUndefined {
		return nil, fmt.Errorf("%w: texture %q has undefined format", ErrInvalidSettings, s.Name)
	}
	if k := s.ViewKind.resourceKind(); k != 0 && k != KindTexture {
		return nil, fmt.Errorf("%w: %s view kind on texture %q", ErrInvalidSettings, s.ViewKind, s.Name)
	}
	if s.DepthOrLayers == 0 {
		s.DepthOrLayers = 1
	}
	if s.MipLevels == 0 {
		s.MipLevels = 1
	}
	if s.SampleCount == 0 {
		s.SampleCount = 1
	}
	if s.Dimension == gputypes.TextureDimensionUndefined {
		s.Dimension = gputypes.TextureDimension2D
	}
	if s.Usage == UsageNone {
		s.Usage = UsageShaderRead
	}
	if s.ViewKind == ViewKindRenderTarget || s.ViewKind == ViewKindDepthStencil {
		s.Usage |= UsageRenderTarget
	}

	tex, err := d.native.CreateTexture(&hal.TextureDescriptor{
		Label:         s.Name,
		Size:          hal.Extent3D{Width: s.Width, Height: s.Height, DepthOrArrayLayers: s.DepthOrLayers},
		MipLevelCount: s.MipLevels,
		SampleCount:   s.SampleCount,
		Dimension:     s.Dimension,
		Format:        s.Format,
		Usage:         textureUsage(s.ViewKind, s.Usage),
	})
	if err != nil {
		return nil, fmt.Errorf("resource: create texture %q: %w", s.Name, err)
	}
	return d.NewResource(Settings{
		Name:          s.Name,
		Kind:          KindTexture,
		ViewKind:      s.ViewKind,
		Usage:         s.Usage,
		Width:         s.Width,
		Height:        s.Height,
		DepthOrLayers: s.DepthOrLayers,
		MipLevels:     s.MipLevels,
		Format:        s.Format,
	}, &halTexture{device: d.native, texture: tex, format: s.Format, label: s.Name})
}

// NewSampler creates a sampler.
func (d *Device) NewSampler(s SamplerSettings) (*Resource, error) {
	if s.AddressMode == gputypes.AddressModeUndefined {
		s.AddressMode = gputypes.AddressModeClampToEdge
	}
	if s.MaxAnisotropy == 0 {
		s.MaxAnisotropy = 1
	}
	smp, err := d.native.CreateSampler(&hal.SamplerDescriptor{
		Label:        s.Name,
		AddressModeU: s.AddressMode,
		AddressModeV: s.AddressMode,
		AddressModeW: s.AddressMode,
		MagFilter:    s.MagFilter,
		MinFilter:    s.MinFilter,
		MipmapFilter: s.MipmapFilter,
		LodMinClamp:  s.LodMinClamp,
		LodMaxClamp:  s.LodMaxClamp,
		Compare:      s.Compare,
		Anisotropy:   s.MaxAnisotropy,
	})
	if err != nil {
		return nil, fmt.Errorf("resource: create sampler %q: %w", s.Name, err)
	}
	return d.NewResource(Settings{
		Name:     s.Name,
		Kind:     KindSampler,
		ViewKind: ViewKindSampler,
		Usage:    UsageShaderRead,
	}, &halSampler{device: d.native, sampler: smp})
}
