// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package resource

import (
	"strings"

	"github.com/gogpu/gputypes"
)

// Usage is a bit mask of the ways a resource may be accessed.
type Usage uint8

const (
	UsageShaderRead Usage = 1 << iota
	UsageShaderWrite
	UsageRenderTarget
	UsageReadBack
	UsageAddressable

	UsageNone Usage = 0
)

// Contains reports whether u includes every bit of other.
func (u Usage) Contains(other Usage) bool { return u&other == other }

func (u Usage) String() string {
	if u == UsageNone {
		return "None"
	}
	var parts []string
	for _, f := range []struct {
		bit  Usage
		name string
	}{
		{UsageShaderRead, "ShaderRead"},
		{UsageShaderWrite, "ShaderWrite"},
		{UsageRenderTarget, "RenderTarget"},
		{UsageReadBack, "ReadBack"},
		{UsageAddressable, "Addressable"},
	} {
		if u&f.bit != 0 {
			parts = append(parts, f.name)
		}
	}
	return strings.Join(parts, "|")
}

// Kind is the class of native object behind a resource.
type Kind uint8

const (
	KindBuffer Kind = iota + 1
	KindTexture
	KindSampler
)

func (k Kind) String() string {
	switch k {
	case KindBuffer:
		return "Buffer"
	case KindTexture:
		return "Texture"
	case KindSampler:
		return "Sampler"
	default:
		return "Unknown"
	}
}

// ViewKind tags the native view flavour of a resource. Binding logic
// switches on it instead of on per-flavour resource types.
type ViewKind uint8

const (
	ViewKindShaderResource ViewKind = iota
	ViewKindVertex
	ViewKindIndex
	ViewKindConstant
	ViewKindReadBack
	ViewKindRenderTarget
	ViewKindDepthStencil
	ViewKindSampler
)

func (k ViewKind) String() string {
	switch k {
	case ViewKindShaderResource:
		return "ShaderResource"
	case ViewKindVertex:
		return "Vertex"
	case ViewKindIndex:
		return "Index"
	case ViewKindConstant:
		return "Constant"
	case ViewKindReadBack:
		return "ReadBack"
	case ViewKindRenderTarget:
		return "RenderTarget"
	case ViewKindDepthStencil:
		return "DepthStencil"
	case ViewKindSampler:
		return "Sampler"
	default:
		return "Unknown"
	}
}

// resourceKind returns the resource class a view kind can be created on.
func (k ViewKind) resourceKind() Kind {
	switch k {
	case ViewKindVertex, ViewKindIndex, ViewKindConstant, ViewKindReadBack:
		return KindBuffer
	case ViewKindRenderTarget, ViewKindDepthStencil:
		return KindTexture
	case ViewKindSampler:
		return KindSampler
	default:
		return 0
	}
}

// bufferUsage maps a buffer flavour and usage mask to native buffer usage.
func bufferUsage(k ViewKind, u Usage) gputypes.BufferUsage {
	usage := gputypes.BufferUsageCopyDst
	switch k {
	case ViewKindVertex:
		usage |= gputypes.BufferUsageVertex
	case ViewKindIndex:
		usage |= gputypes.BufferUsageIndex
	case ViewKindConstant:
		usage |= gputypes.BufferUsageUniform
	case ViewKindReadBack:
		// Mappable buffers may only be copy destinations.
		return gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst
	}
	if u&(UsageShaderWrite|UsageAddressable) != 0 || (k == ViewKindShaderResource && u&UsageShaderRead != 0) {
		usage |= gputypes.BufferUsageStorage
	}
	if u&UsageReadBack != 0 {
		usage |= gputypes.BufferUsageCopySrc
	}
	return usage
}

// textureUsage maps a usage mask to native texture usage.
func textureUsage(k ViewKind, u Usage) gputypes.TextureUsage {
	usage := gputypes.TextureUsageCopyDst
	if u&UsageShaderRead != 0 {
		usage |= gputypes.TextureUsageTextureBinding
	}
	if u&UsageShaderWrite != 0 {
		usage |= gputypes.TextureUsageStorageBinding
	}
	if u&UsageRenderTarget != 0 || k == ViewKindRenderTarget || k == ViewKindDepthStencil {
		usage |= gputypes.TextureUsageRenderAttachment
	}
	if u&UsageReadBack != 0 {
		usage |= gputypes.TextureUsageCopySrc
	}
	return usage
}
