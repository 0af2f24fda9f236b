// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package shader reflects WGSL programs into the argument metadata that
// program bindings are built from.
//
// Reflection parses and lowers the source with naga and turns every global
// variable carrying a @group/@binding attribute, and every push-constant
// block, into an Argument. Each argument records the stages that reference
// it, the resource class, its bind count and the register assignment the
// HLSL and MSL backends would give it.
package shader

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/naga/hlsl"
	"github.com/gogpu/naga/ir"
	"github.com/gogpu/naga/msl"
	"github.com/gogpu/rhi/internal/logger"
)

var (
	// ErrEmptySource is returned when reflecting an empty program.
	ErrEmptySource = errors.New("shader: empty source")

	// ErrNoEntryPoint is returned for programs without vertex, fragment or
	// compute entry points.
	ErrNoEntryPoint = errors.New("shader: no entry point")

	// ErrUnsupportedBinding is returned for globals whose type cannot be
	// bound through a descriptor.
	ErrUnsupportedBinding = errors.New("shader: unsupported binding")

	// ErrBindingOutOfRange is returned when an argument's group or slots do
	// not fit the native register model.
	ErrBindingOutOfRange = errors.New("shader: binding out of range")
)

// Kind is the resource class of an argument.
type Kind uint8

const (
	KindUniformBuffer Kind = iota
	KindStorageBuffer
	KindReadOnlyStorageBuffer
	KindTexture
	KindStorageTexture
	KindSampler
	KindComparisonSampler
	KindPushConstant
)

func (k Kind) String() string {
	switch k {
	case KindUniformBuffer:
		return "UniformBuffer"
	case KindStorageBuffer:
		return "StorageBuffer"
	case KindReadOnlyStorageBuffer:
		return "ReadOnlyStorageBuffer"
	case KindTexture:
		return "Texture"
	case KindStorageTexture:
		return "StorageTexture"
	case KindSampler:
		return "Sampler"
	case KindComparisonSampler:
		return "ComparisonSampler"
	case KindPushConstant:
		return "PushConstant"
	default:
		return "Unknown"
	}
}

// IsSampler reports whether arguments of kind k live in sampler heaps.
func (k Kind) IsSampler() bool { return k == KindSampler || k == KindComparisonSampler }

// IsWritable reports whether shaders may write through arguments of kind k.
func (k Kind) IsWritable() bool { return k == KindStorageBuffer || k == KindStorageTexture }

// EntryPoint is one stage entry of a module.
type EntryPoint struct {
	Name  string
	Stage gputypes.ShaderStage
}

// Argument is one reflected shader argument.
type Argument struct {
	Name string

	// Stages are the entry point stages that reference the argument.
	Stages gputypes.ShaderStages

	Kind    Kind
	Group   uint32
	Binding uint32

	// Count is the number of descriptors bound: the element count of a
	// binding array, 1 otherwise.
	Count uint32

	// Size is the byte size of buffer and push-constant arguments.
	Size uint32

	// Texture layout.
	ViewDimension gputypes.TextureViewDimension
	SampleType    gputypes.TextureSampleType
	Multisampled  bool

	HLSLRegister hlsl.RegisterType
	HLSL         hlsl.BindTarget
	MSL          msl.BindTarget
}

func (a Argument) String() string {
	if a.Kind == KindPushConstant {
		return fmt.Sprintf("%s (%s)", a.Name, a.Kind)
	}
	return fmt.Sprintf("%s (%s @group(%d) @binding(%d))", a.Name, a.Kind, a.Group, a.Binding)
}

// LayoutEntry returns the bind group layout entry of element index of the
// argument. Binding arrays occupy consecutive bindings.
func (a Argument) LayoutEntry(index uint32) gputypes.BindGroupLayoutEntry {
	e := gputypes.BindGroupLayoutEntry{Binding: a.Binding + index, Visibility: a.Stages}
	switch a.Kind {
	case KindUniformBuffer:
		e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform, MinBindingSize: uint64(a.Size)}
	case KindStorageBuffer:
		e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}
	case KindReadOnlyStorageBuffer:
		e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}
	case KindTexture:
		e.Texture = &gputypes.TextureBindingLayout{
			SampleType:    a.SampleType,
			ViewDimension: a.ViewDimension,
			Multisampled:  a.Multisampled,
		}
	case KindStorageTexture:
		e.StorageTexture = &gputypes.StorageTextureBindingLayout{
			Access:        gputypes.StorageTextureAccessReadWrite,
			ViewDimension: a.ViewDimension,
		}
	case KindSampler:
		e.Sampler = &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering}
	case KindComparisonSampler:
		e.Sampler = &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeComparison}
	}
	return e
}

// Module is the reflection of one WGSL program.
type Module struct {
	Label       string
	Source      string
	EntryPoints []EntryPoint
	Arguments   []Argument

	// Stages is the union of the entry point stages.
	Stages gputypes.ShaderStages

	byName map[string]int
}

// Argument returns the argument called name.
func (m *Module) Argument(name string) (Argument, bool) {
	i, ok := m.byName[name]
	if !ok {
		return Argument{}, false
	}
	return m.Arguments[i], true
}

// EntryPoint returns the first entry point of stage.
func (m *Module) EntryPoint(stage gputypes.ShaderStage) (EntryPoint, bool) {
	for _, ep := range m.EntryPoints {
		if ep.Stage == stage {
			return ep, true
		}
	}
	return EntryPoint{}, false
}

// Groups returns the distinct bind groups used by the module in ascending
// order.
func (m *Module) Groups() []uint32 {
	seen := make(map[uint32]struct{})
	var groups []uint32
	for _, a := range m.Arguments {
		if a.Kind == KindPushConstant {
			continue
		}
		if _, ok := seen[a.Group]; ok {
			continue
		}
		seen[a.Group] = struct{}{}
		groups = append(groups, a.Group)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i] < groups[j] })
	return groups
}

// NewModule builds a module from reflection data produced elsewhere, such
// as an offline reflection pass. Arguments are ordered by (group, binding)
// and given register assignments.
func NewModule(label string, entryPoints []EntryPoint, args []Argument) (*Module, error) {
	m := &Module{
		Label:       label,
		EntryPoints: append([]EntryPoint(nil), entryPoints...),
		Arguments:   append([]Argument(nil), args...),
		byName:      make(map[string]int, len(args)),
	}
	for _, ep := range m.EntryPoints {
		m.Stages |= ep.Stage
	}
	for i := range m.Arguments {
		if m.Arguments[i].Count == 0 {
			m.Arguments[i].Count = 1
		}
	}
	sort.SliceStable(m.Arguments, func(i, j int) bool {
		a, b := m.Arguments[i], m.Arguments[j]
		if (a.Kind == KindPushConstant) != (b.Kind == KindPushConstant) {
			return b.Kind == KindPushConstant
		}
		if a.Group != b.Group {
			return a.Group < b.Group
		}
		return a.Binding < b.Binding
	})
	for i, a := range m.Arguments {
		m.byName[a.Name] = i
	}
	if err := assignRegisters(m.Arguments); err != nil {
		return nil, fmt.Errorf("shader: %s: %w", label, err)
	}
	return m, nil
}

// Reflect parses source and returns its argument metadata.
func Reflect(label, source string) (*Module, error) {
	if source == "" {
		return nil, ErrEmptySource
	}
	ast, err := naga.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("shader: %s: %w", label, err)
	}
	module, err := naga.LowerWithSource(ast, source)
	if err != nil {
		return nil, fmt.Errorf("shader: %s: %w", label, err)
	}
	m, err := reflectModule(label, module)
	if err != nil {
		return nil, err
	}
	m.Source = source

	logger.Get().Debug("shader: reflected",
		"label", label,
		"entryPoints", len(m.EntryPoints),
		"arguments", len(m.Arguments))
	return m, nil
}

func reflectModule(label string, module *ir.Module) (*Module, error) {
	m := &Module{Label: label}

	usage := make([]gputypes.ShaderStages, len(module.GlobalVariables))
	for _, ep := range module.EntryPoints {
		stage := stageOf(ep.Stage)
		if stage == gputypes.ShaderStageNone {
			continue
		}
		m.EntryPoints = append(m.EntryPoints, EntryPoint{Name: ep.Name, Stage: stage})
		m.Stages |= stage
		markGlobals(usage, &ep.Function, stage)
	}
	if len(m.EntryPoints) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoEntryPoint, label)
	}
	// Globals reached through helper functions are visible to every stage.
	for i := range module.Functions {
		markGlobals(usage, &module.Functions[i], m.Stages)
	}

	for i, gv := range module.GlobalVariables {
		stages := usage[i]
		if stages == gputypes.ShaderStageNone {
			stages = m.Stages
		}
		arg, ok, err := reflectGlobal(module, gv, stages)
		if err != nil {
			return nil, fmt.Errorf("shader: %s: %w", label, err)
		}
		if ok {
			m.Arguments = append(m.Arguments, arg)
		}
	}

	return NewModule(label, m.EntryPoints, m.Arguments)
}

func markGlobals(usage []gputypes.ShaderStages, fn *ir.Function, stages gputypes.ShaderStages) {
	for _, expr := range fn.Expressions {
		if gv, ok := expr.Kind.(ir.ExprGlobalVariable); ok && int(gv.Variable) < len(usage) {
			usage[gv.Variable] |= stages
		}
	}
}

func stageOf(s ir.ShaderStage) gputypes.ShaderStage {
	switch s {
	case ir.StageVertex:
		return gputypes.ShaderStageVertex
	case ir.StageFragment:
		return gputypes.ShaderStageFragment
	case ir.StageCompute:
		return gputypes.ShaderStageCompute
	default:
		return gputypes.ShaderStageNone
	}
}

// reflectGlobal converts one global variable. ok is false for globals that
// are not shader arguments, such as private and workgroup variables.
func reflectGlobal(module *ir.Module, gv ir.GlobalVariable, stages gputypes.ShaderStages) (Argument, bool, error) {
	arg := Argument{Name: gv.Name, Stages: stages, Count: 1}

	switch gv.Space {
	case ir.SpacePushConstant, ir.SpaceImmediate:
		arg.Kind = KindPushConstant
		arg.Size = ir.TypeSize(module, gv.Type)
		return arg, true, nil
	case ir.SpaceUniform, ir.SpaceStorage, ir.SpaceHandle:
	default:
		return Argument{}, false, nil
	}
	if gv.Binding == nil {
		return Argument{}, false, nil
	}
	arg.Group = gv.Binding.Group
	arg.Binding = gv.Binding.Binding

	inner := typeInner(module, gv.Type)
	if ba, ok := inner.(ir.BindingArrayType); ok {
		if ba.Size == nil {
			return Argument{}, false, fmt.Errorf("%w: %s is an unbounded binding array", ErrUnsupportedBinding, gv.Name)
		}
		arg.Count = *ba.Size
		inner = typeInner(module, ba.Base)
	}

	switch gv.Space {
	case ir.SpaceUniform:
		arg.Kind = KindUniformBuffer
		arg.Size = ir.TypeSize(module, gv.Type)
		return arg, true, nil
	case ir.SpaceStorage:
		arg.Kind = KindStorageBuffer
		if gv.Access == ir.StorageRead {
			arg.Kind = KindReadOnlyStorageBuffer
		}
		arg.Size = ir.TypeSize(module, gv.Type)
		return arg, true, nil
	}

	switch t := inner.(type) {
	case ir.SamplerType:
		arg.Kind = KindSampler
		if t.Comparison {
			arg.Kind = KindComparisonSampler
		}
	case ir.ImageType:
		arg.Kind = KindTexture
		if t.Class == ir.ImageClassStorage {
			arg.Kind = KindStorageTexture
		}
		arg.ViewDimension = viewDimension(t)
		arg.SampleType = sampleType(t)
		arg.Multisampled = t.Multisampled
	default:
		return Argument{}, false, fmt.Errorf("%w: %s has type %T", ErrUnsupportedBinding, gv.Name, inner)
	}
	return arg, true, nil
}

func typeInner(module *ir.Module, h ir.TypeHandle) ir.TypeInner {
	if int(h) >= len(module.Types) {
		return nil
	}
	return module.Types[h].Inner
}

func viewDimension(t ir.ImageType) gputypes.TextureViewDimension {
	switch t.Dim {
	case ir.Dim1D:
		return gputypes.TextureViewDimension1D
	case ir.Dim3D:
		return gputypes.TextureViewDimension3D
	case ir.DimCube:
		if t.Arrayed {
			return gputypes.TextureViewDimensionCubeArray
		}
		return gputypes.TextureViewDimensionCube
	default:
		if t.Arrayed {
			return gputypes.TextureViewDimension2DArray
		}
		return gputypes.TextureViewDimension2D
	}
}

func sampleType(t ir.ImageType) gputypes.TextureSampleType {
	switch t.Class {
	case ir.ImageClassDepth:
		return gputypes.TextureSampleTypeDepth
	case ir.ImageClassStorage:
		return gputypes.TextureSampleTypeUndefined
	}
	switch t.SampledKind {
	case ir.ScalarSint:
		return gputypes.TextureSampleTypeSint
	case ir.ScalarUint:
		return gputypes.TextureSampleTypeUint
	default:
		return gputypes.TextureSampleTypeFloat
	}
}

// maxSpace is the last HLSL register space usable by bind groups; the
// space after it holds root constants.
const maxSpace = math.MaxUint8 - 1

// assignRegisters gives every argument its HLSL register (space = group,
// registers counted per register class within a space) and its MSL slot
// (counted per slot class across the module). args must be sorted by
// (group, binding).
func assignRegisters(args []Argument) error {
	type hlslKey struct {
		space uint32
		class hlsl.RegisterType
	}
	hlslNext := make(map[hlslKey]uint32)
	var mslBuffer, mslTexture, mslSampler uint32

	// next hands out count consecutive MSL slots from counter.
	next := func(a *Argument, counter *uint32, count uint32) (uint8, error) {
		slot := *counter
		if count > math.MaxUint8+1-slot {
			return 0, fmt.Errorf("%w: %s needs MSL slots %d..%d", ErrBindingOutOfRange, a, slot, slot+count-1)
		}
		*counter += count
		return uint8(slot), nil
	}

	for i := range args {
		a := &args[i]
		a.HLSLRegister = registerType(a.Kind)

		if a.Kind == KindPushConstant {
			// Root constants sit past every descriptor space.
			slot, err := next(a, &mslBuffer, 1)
			if err != nil {
				return err
			}
			a.HLSL = hlsl.BindTarget{Space: maxSpace + 1}
			a.MSL = msl.BindTarget{Buffer: &slot}
			continue
		}

		if a.Group > maxSpace {
			return fmt.Errorf("%w: %s: group above %d", ErrBindingOutOfRange, a, maxSpace)
		}
		k := hlslKey{space: a.Group, class: a.HLSLRegister}
		a.HLSL = hlsl.BindTarget{Space: uint8(a.Group), Register: hlslNext[k]}
		if a.Count > 1 {
			a.HLSL = a.HLSL.WithArraySize(a.Count)
		}
		hlslNext[k] += a.Count

		switch {
		case a.Kind.IsSampler():
			slot, err := next(a, &mslSampler, a.Count)
			if err != nil {
				return err
			}
			a.MSL = msl.BindTarget{Sampler: &msl.BindSamplerTarget{Slot: slot}}
		case a.Kind == KindTexture || a.Kind == KindStorageTexture:
			slot, err := next(a, &mslTexture, a.Count)
			if err != nil {
				return err
			}
			a.MSL = msl.BindTarget{Texture: &slot}
		default:
			slot, err := next(a, &mslBuffer, a.Count)
			if err != nil {
				return err
			}
			a.MSL = msl.BindTarget{Buffer: &slot}
		}
	}
	return nil
}

func registerType(k Kind) hlsl.RegisterType {
	switch k {
	case KindUniformBuffer, KindPushConstant:
		return hlsl.RegisterTypeB
	case KindStorageBuffer, KindStorageTexture:
		return hlsl.RegisterTypeU
	case KindSampler, KindComparisonSampler:
		return hlsl.RegisterTypeS
	default:
		return hlsl.RegisterTypeT
	}
}
