// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package descriptor

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Type tells which native object a Descriptor points at.
type Type uint8

const (
	TypeNone Type = iota
	TypeBuffer
	TypeTexture
	TypeSampler
)

func (t Type) String() string {
	switch t {
	case TypeBuffer:
		return "Buffer"
	case TypeTexture:
		return "Texture"
	case TypeSampler:
		return "Sampler"
	default:
		return "None"
	}
}

// Descriptor is the content of one heap slot. It references native objects
// owned by a resource and never owns them.
type Descriptor struct {
	Type Type

	// Resource is the id of the resource the descriptor was created for.
	Resource uint64

	Buffer hal.Buffer
	Offset uint64
	Size   uint64

	TextureView hal.TextureView
	Sampler     hal.Sampler
}

// IsEmpty reports whether the slot holds nothing.
func (d Descriptor) IsEmpty() bool { return d.Type == TypeNone }

// NativeHandle returns the raw handle of the referenced native object.
func (d Descriptor) NativeHandle() uintptr {
	switch d.Type {
	case TypeBuffer:
		if d.Buffer != nil {
			return d.Buffer.NativeHandle()
		}
	case TypeTexture:
		if d.TextureView != nil {
			return d.TextureView.NativeHandle()
		}
	case TypeSampler:
		if d.Sampler != nil {
			return d.Sampler.NativeHandle()
		}
	}
	return 0
}

// BindingResource converts the descriptor into a bind group entry resource.
// It returns nil for empty slots.
func (d Descriptor) BindingResource() gputypes.BindingResource {
	switch d.Type {
	case TypeBuffer:
		return gputypes.BufferBinding{Buffer: d.NativeHandle(), Offset: d.Offset, Size: d.Size}
	case TypeTexture:
		return gputypes.TextureViewBinding{TextureView: d.NativeHandle()}
	case TypeSampler:
		return gputypes.SamplerBinding{Sampler: d.NativeHandle()}
	default:
		return nil
	}
}

// GPUHandle is the shader-visible address of a slot. It is only valid for
// the heap generation it was resolved in.
type GPUHandle struct {
	Kind       HeapKind
	Generation uint64
	Index      uint32
	Native     uintptr
}
