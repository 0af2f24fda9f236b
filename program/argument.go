// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package program

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rhi/descriptor"
	"github.com/gogpu/rhi/resource"
	"github.com/gogpu/rhi/shader"
)

// Argument identifies a shader argument by name, optionally narrowed to
// the stages that must see it. A zero Stage matches any stage.
type Argument struct {
	Stage gputypes.ShaderStage
	Name  string
}

// Arg returns the argument called name in any stage.
func Arg(name string) Argument { return Argument{Name: name} }

func (a Argument) String() string {
	if a.Stage == gputypes.ShaderStageNone {
		return a.Name
	}
	return fmt.Sprintf("%s:%s", a.Stage, a.Name)
}

// matches reports whether a identifies the reflected argument info.
func (a Argument) matches(info shader.Argument) bool {
	if a.Name != info.Name {
		return false
	}
	return a.Stage == gputypes.ShaderStageNone || info.Stages&a.Stage != 0
}

// Access is the mutability class of an argument.
type Access uint8

const (
	// AccessMutable arguments may change between applies.
	AccessMutable Access = iota
	// AccessConstant arguments are set once for the lifetime of the bindings.
	AccessConstant
	// AccessFrameConstant arguments are set at most once per frame.
	AccessFrameConstant
)

func (a Access) String() string {
	switch a {
	case AccessConstant:
		return "Constant"
	case AccessFrameConstant:
		return "FrameConstant"
	default:
		return "Mutable"
	}
}

// IsConstant reports whether the argument lives in the constant partition.
func (a Access) IsConstant() bool { return a != AccessMutable }

// ValueType is how an argument's value reaches the shader.
type ValueType uint8

const (
	// ValueResourceView binds views through a descriptor table.
	ValueResourceView ValueType = iota
	// ValueBufferAddress binds a buffer view by direct address.
	ValueBufferAddress
	// ValueRootConstantBuffer binds bytes stored in the bindings' constant
	// buffer.
	ValueRootConstantBuffer
	// ValueRootConstantValue binds a small inline value. It is stored like
	// ValueRootConstantBuffer.
	ValueRootConstantValue
)

func (v ValueType) String() string {
	switch v {
	case ValueBufferAddress:
		return "BufferAddress"
	case ValueRootConstantBuffer:
		return "RootConstantBuffer"
	case ValueRootConstantValue:
		return "RootConstantValue"
	default:
		return "ResourceView"
	}
}

// IsRootConstant reports whether values are bytes rather than views.
func (v ValueType) IsRootConstant() bool {
	return v == ValueRootConstantBuffer || v == ValueRootConstantValue
}

// maxRootConstantValue is the largest inline root constant in bytes.
const maxRootConstantValue = 16

// Accessor tells how a program accesses one argument.
type Accessor struct {
	Argument  Argument
	Access    Access
	ValueType ValueType

	// Optional arguments may stay unbound.
	Optional bool

	// ViewKind selects the heap of render-target and depth-stencil
	// arguments. Other view kinds are taken from reflection.
	ViewKind resource.ViewKind
}

// ArgumentInfo is the resolved description of one program argument.
type ArgumentInfo struct {
	// Argument carries the stages that reference the argument.
	Argument Argument
	Accessor Accessor
	Shader   shader.Argument

	// HeapKind is the heap holding the argument's descriptors. It is
	// Undefined for arguments bound without descriptors.
	HeapKind descriptor.HeapKind

	// DescriptorCount is the number of descriptor slots reserved for the
	// argument.
	DescriptorCount uint32

	// ConstantOffset is the byte offset of root constants in the bindings'
	// constant buffer.
	ConstantOffset uint32
}

// UsesDescriptors reports whether the argument is bound through a
// descriptor table.
func (i *ArgumentInfo) UsesDescriptors() bool {
	return i.Accessor.ValueType == ValueResourceView && i.DescriptorCount > 0
}

// requiredUsage is the view usage the shader access needs.
func (i *ArgumentInfo) requiredUsage() resource.Usage {
	switch {
	case i.HeapKind == descriptor.HeapKindRenderTargets || i.HeapKind == descriptor.HeapKindDepthStencil:
		return resource.UsageRenderTarget
	case i.Shader.Kind.IsWritable():
		return resource.UsageShaderWrite
	default:
		return resource.UsageShaderRead
	}
}

// resolve checks acc against the reflected argument and fills the derived
// fields.
func resolve(program string, sa shader.Argument, acc Accessor) (*ArgumentInfo, error) {
	info := &ArgumentInfo{
		Argument: Argument{Stage: sa.Stages, Name: sa.Name},
		Accessor: acc,
		Shader:   sa,
	}

	if sa.Kind == shader.KindPushConstant {
		return nil, fmt.Errorf("%w: %q: argument %s is a push-constant block", ErrInvalidAccessor, program, sa.Name)
	}

	switch acc.ValueType {
	case ValueResourceView:
		info.DescriptorCount = sa.Count
		switch {
		case sa.Kind.IsSampler():
			info.HeapKind = descriptor.HeapKindSamplers
		case acc.ViewKind == resource.ViewKindRenderTarget:
			info.HeapKind = descriptor.HeapKindRenderTargets
		case acc.ViewKind == resource.ViewKindDepthStencil:
			info.HeapKind = descriptor.HeapKindDepthStencil
		default:
			info.HeapKind = descriptor.HeapKindShaderResources
		}
	case ValueBufferAddress:
		switch sa.Kind {
		case shader.KindUniformBuffer, shader.KindStorageBuffer, shader.KindReadOnlyStorageBuffer:
		default:
			return nil, fmt.Errorf("%w: %q: %s of kind %s can not be bound by address", ErrInvalidAccessor, program, sa.Name, sa.Kind)
		}
		if sa.Count != 1 {
			return nil, fmt.Errorf("%w: %q: binding array %s can not be bound by address", ErrInvalidAccessor, program, sa.Name)
		}
	case ValueRootConstantBuffer, ValueRootConstantValue:
		if sa.Kind != shader.KindUniformBuffer || sa.Count != 1 {
			return nil, fmt.Errorf("%w: %q: root constant %s must be a single uniform buffer", ErrInvalidAccessor, program, sa.Name)
		}
		if acc.ValueType == ValueRootConstantValue && sa.Size > maxRootConstantValue {
			return nil, fmt.Errorf("%w: %q: root constant value %s is %d bytes, limit %d",
				ErrInvalidAccessor, program, sa.Name, sa.Size, maxRootConstantValue)
		}
	default:
		return nil, fmt.Errorf("%w: %q: unknown value type %d", ErrInvalidAccessor, program, acc.ValueType)
	}
	return info, nil
}
