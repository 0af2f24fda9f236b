// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package descriptor

// HeapKind is the kind of descriptors a heap stores.
type HeapKind uint8

const (
	HeapKindUndefined HeapKind = iota
	HeapKindShaderResources
	HeapKindSamplers
	HeapKindRenderTargets
	HeapKindDepthStencil

	heapKindCount
)

// HeapKinds lists every defined kind in declaration order.
var HeapKinds = [...]HeapKind{
	HeapKindShaderResources,
	HeapKindSamplers,
	HeapKindRenderTargets,
	HeapKindDepthStencil,
}

func (k HeapKind) String() string {
	switch k {
	case HeapKindShaderResources:
		return "ShaderResources"
	case HeapKindSamplers:
		return "Samplers"
	case HeapKindRenderTargets:
		return "RenderTargets"
	case HeapKindDepthStencil:
		return "DepthStencil"
	default:
		return "Undefined"
	}
}

// IsDefined reports whether k names a real heap kind.
func (k HeapKind) IsDefined() bool { return k > HeapKindUndefined && k < heapKindCount }

// IsShaderVisible reports whether descriptors of this kind are read by
// shaders and therefore need a shader-visible heap. Render target and
// depth-stencil descriptors are only consumed by pass setup.
func (k HeapKind) IsShaderVisible() bool {
	return k == HeapKindShaderResources || k == HeapKindSamplers
}
