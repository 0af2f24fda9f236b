// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package resource

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rhi/descriptor"
)

// SubresourceRange selects mip levels and array layers of a texture.
// Zero counts mean all remaining levels or layers.
type SubresourceRange struct {
	BaseMip    uint32
	MipCount   uint32
	BaseLayer  uint32
	LayerCount uint32
}

// ViewSettings describes how a view reads its resource.
type ViewSettings struct {
	Subresources SubresourceRange

	// Offset and Size select a byte range of a buffer. Size zero means the
	// rest of the buffer.
	Offset uint64
	Size   uint64

	// Usage is the access class of the view. Zero selects ShaderRead.
	Usage Usage

	// Dimension overrides the texture view dimension.
	Dimension gputypes.TextureViewDimension
}

// View is a resource plus the part and usage of it a shader accesses.
// It does not own the resource.
type View struct {
	resource *Resource
	settings ViewSettings
}

// NewView validates settings against r and returns the view.
func NewView(r *Resource, settings ViewSettings) (View, error) {
	if r == nil {
		return View{}, ErrNilResource
	}
	if settings.Usage == UsageNone {
		settings.Usage = UsageShaderRead
	}
	if !r.Usage().Contains(settings.Usage) {
		return View{}, fmt.Errorf("%w: %s view of %s with usage %s", ErrUsageMismatch, settings.Usage, r, r.Usage())
	}

	switch r.Kind() {
	case KindBuffer:
		if settings.Offset > r.Size() {
			return View{}, fmt.Errorf("%w: offset %d of %s (%d bytes)", ErrViewOutOfBounds, settings.Offset, r, r.Size())
		}
		if settings.Size == 0 {
			settings.Size = r.Size() - settings.Offset
		}
		if settings.Size > r.Size()-settings.Offset {
			return View{}, fmt.Errorf("%w: %d bytes at offset %d of %s (%d bytes)",
				ErrViewOutOfBounds, settings.Size, settings.Offset, r, r.Size())
		}
	case KindTexture:
		s := r.Settings()
		sub := settings.Subresources
		if sub.BaseMip+sub.MipCount > s.MipLevels || sub.BaseMip >= s.MipLevels {
			return View{}, fmt.Errorf("%w: mips %d+%d of %s (%d levels)", ErrViewOutOfBounds, sub.BaseMip, sub.MipCount, r, s.MipLevels)
		}
		if sub.BaseLayer+sub.LayerCount > s.DepthOrLayers || sub.BaseLayer >= s.DepthOrLayers {
			return View{}, fmt.Errorf("%w: layers %d+%d of %s (%d layers)", ErrViewOutOfBounds, sub.BaseLayer, sub.LayerCount, r, s.DepthOrLayers)
		}
	}
	return View{resource: r, settings: settings}, nil
}

// MustView is NewView for settings known to be valid. It panics on error.
func MustView(r *Resource, settings ViewSettings) View {
	v, err := NewView(r, settings)
	if err != nil {
		panic(err)
	}
	return v
}

// Resource returns the viewed resource.
func (v View) Resource() *Resource { return v.resource }

// Settings returns the view settings after defaults were applied.
func (v View) Settings() ViewSettings { return v.settings }

// Usage returns the access class of the view.
func (v View) Usage() Usage { return v.settings.Usage }

// IsValid reports whether the view references a resource.
func (v View) IsValid() bool { return v.resource != nil }

// Equal reports whether both views read the same part of the same
// resource the same way.
func (v View) Equal(o View) bool { return v.resource == o.resource && v.settings == o.settings }

// HeapKind returns the descriptor heap kind the view's descriptor lives in.
func (v View) HeapKind() descriptor.HeapKind {
	if v.resource == nil {
		return descriptor.HeapKindUndefined
	}
	switch {
	case v.resource.Kind() == KindSampler:
		return descriptor.HeapKindSamplers
	case v.settings.Usage.Contains(UsageRenderTarget) && v.resource.Settings().Format.IsDepthStencil():
		return descriptor.HeapKindDepthStencil
	case v.settings.Usage.Contains(UsageRenderTarget):
		return descriptor.HeapKindRenderTargets
	default:
		return descriptor.HeapKindShaderResources
	}
}

// Descriptor returns the view's descriptor, creating it on first use.
func (v View) Descriptor() (descriptor.Descriptor, error) {
	if v.resource == nil {
		return descriptor.Descriptor{}, ErrNilResource
	}
	d, _, err := v.resource.descriptor(v)
	return d, err
}

// DefaultSlot returns the non-shader-visible slot holding the view's
// descriptor, creating it on first use. The range is empty when the
// resource has no descriptor allocator.
func (v View) DefaultSlot() (descriptor.Range, error) {
	if v.resource == nil {
		return descriptor.Range{}, ErrNilResource
	}
	_, slot, err := v.resource.descriptor(v)
	return slot, err
}

// GPUAddress returns the direct address of the view's first byte.
func (v View) GPUAddress() Address {
	if v.resource == nil || v.resource.native == nil {
		return Address{}
	}
	return v.resource.native.GPUAddress(v.settings.Offset)
}

// RequiredState returns the state the resource must be in for the view to
// be accessed.
func (v View) RequiredState() State { return RequiredState(v.resource, v.settings.Usage) }

func (v View) String() string {
	if v.resource == nil {
		return "View(nil)"
	}
	return fmt.Sprintf("View(%s, %s)", v.resource, v.settings.Usage)
}

// Resources returns the distinct resources referenced by views.
func Resources(views []View) []*Resource {
	seen := make(map[*Resource]struct{}, len(views))
	out := make([]*Resource, 0, len(views))
	for _, v := range views {
		if v.resource == nil {
			continue
		}
		if _, ok := seen[v.resource]; ok {
			continue
		}
		seen[v.resource] = struct{}{}
		out = append(out, v.resource)
	}
	return out
}
