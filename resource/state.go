// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package resource

import "github.com/gogpu/gputypes"

// State is the GPU usage state a resource is in.
type State uint8

const (
	StateUndefined State = iota
	StateCommon
	StateVertexBuffer
	StateIndexBuffer
	StateConstantBuffer
	StateShaderResource
	StateUnorderedAccess
	StateRenderTarget
	StateDepthWrite
	StateDepthRead
	StateCopyDest
	StateCopySource
	StateIndirectArgument
	StateReadBack
	StatePresent
)

var stateNames = [...]string{
	StateUndefined:        "Undefined",
	StateCommon:           "Common",
	StateVertexBuffer:     "VertexBuffer",
	StateIndexBuffer:      "IndexBuffer",
	StateConstantBuffer:   "ConstantBuffer",
	StateShaderResource:   "ShaderResource",
	StateUnorderedAccess:  "UnorderedAccess",
	StateRenderTarget:     "RenderTarget",
	StateDepthWrite:       "DepthWrite",
	StateDepthRead:        "DepthRead",
	StateCopyDest:         "CopyDest",
	StateCopySource:       "CopySource",
	StateIndirectArgument: "IndirectArgument",
	StateReadBack:         "ReadBack",
	StatePresent:          "Present",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "Unknown"
}

// TextureUsage maps the state to the native texture usage used as the
// barrier vocabulary. States without a texture meaning map to zero.
func (s State) TextureUsage() gputypes.TextureUsage {
	switch s {
	case StateShaderResource:
		return gputypes.TextureUsageTextureBinding
	case StateUnorderedAccess:
		return gputypes.TextureUsageStorageBinding
	case StateRenderTarget, StateDepthWrite, StateDepthRead:
		return gputypes.TextureUsageRenderAttachment
	case StateCopyDest:
		return gputypes.TextureUsageCopyDst
	case StateCopySource, StateReadBack:
		return gputypes.TextureUsageCopySrc
	default:
		return gputypes.TextureUsageNone
	}
}

// BufferUsage maps the state to native buffer usage.
func (s State) BufferUsage() gputypes.BufferUsage {
	switch s {
	case StateVertexBuffer:
		return gputypes.BufferUsageVertex
	case StateIndexBuffer:
		return gputypes.BufferUsageIndex
	case StateConstantBuffer:
		return gputypes.BufferUsageUniform
	case StateShaderResource, StateUnorderedAccess:
		return gputypes.BufferUsageStorage
	case StateCopyDest:
		return gputypes.BufferUsageCopyDst
	case StateCopySource:
		return gputypes.BufferUsageCopySrc
	case StateIndirectArgument:
		return gputypes.BufferUsageIndirect
	case StateReadBack:
		return gputypes.BufferUsageMapRead
	default:
		return 0
	}
}

// RequiredState returns the state a resource must be in for a shader to
// access it through a view of the given usage.
func RequiredState(r *Resource, usage Usage) State {
	switch {
	case r == nil:
		return StateUndefined
	case usage.Contains(UsageShaderWrite):
		return StateUnorderedAccess
	case r.Kind() == KindBuffer && r.ViewKind() == ViewKindConstant:
		return StateConstantBuffer
	case r.Kind() == KindBuffer && r.ViewKind() == ViewKindVertex:
		return StateVertexBuffer
	case r.Kind() == KindBuffer && r.ViewKind() == ViewKindIndex:
		return StateIndexBuffer
	case usage.Contains(UsageRenderTarget):
		if r.ViewKind() == ViewKindDepthStencil {
			return StateDepthWrite
		}
		return StateRenderTarget
	default:
		return StateShaderResource
	}
}
