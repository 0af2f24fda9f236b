// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package program maps shader arguments onto descriptor heap storage and
// binds them to command lists.
//
// A Program is built once from reflected shader modules plus accessors that
// classify every argument as Constant, FrameConstant or Mutable. Bindings
// are created per draw configuration: they reserve one descriptor range per
// (heap kind, constant or mutable) partition, copy view descriptors from
// their staging slots into those ranges, and set the resulting bind groups
// on a CommandList in barrier, constant, mutable order.
//
// Bindings created while the descriptor allocator defers heap growth stay
// in the Reserved state until CompleteInitialization runs after the heaps
// are allocated.
package program

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rhi/internal/align"
	"github.com/gogpu/rhi/internal/logger"
	"github.com/gogpu/rhi/resource"
	"github.com/gogpu/rhi/shader"
	"github.com/gogpu/wgpu/hal"
)

// Settings describes a program.
type Settings struct {
	Name    string
	Shaders []*shader.Module

	// Accessors classify arguments. Arguments without an accessor are
	// Mutable resource views.
	Accessors []Accessor

	// UniformAlignment is the offset alignment of root constants in the
	// bindings' constant buffer. Zero selects the default limit.
	UniformAlignment uint32
}

var programIndex atomic.Uint64

// Program is an immutable set of shader arguments together with the native
// layouts that bind them.
type Program struct {
	id     uint64
	name   string
	device *resource.Device
	queue  hal.Queue

	arguments []*ArgumentInfo
	groups    []uint32
	layouts   map[uint32]hal.BindGroupLayout

	pipelineLayout   hal.PipelineLayout
	constantsSize    uint32
	uniformAlignment uint32

	mu       sync.Mutex
	released bool
}

// New creates a program on device. queue uploads root constants and may be
// nil for programs without them.
func New(device *resource.Device, queue hal.Queue, settings Settings) (*Program, error) {
	if device == nil || device.HAL() == nil {
		return nil, fmt.Errorf("%w: %q: no device", ErrInvalidAccessor, settings.Name)
	}
	p := &Program{
		id:               programIndex.Add(1),
		name:             settings.Name,
		device:           device,
		queue:            queue,
		layouts:          make(map[uint32]hal.BindGroupLayout),
		uniformAlignment: settings.UniformAlignment,
	}
	if p.uniformAlignment == 0 {
		p.uniformAlignment = gputypes.DefaultLimits().MinUniformBufferOffsetAlignment
	}

	merged, err := mergeArguments(settings.Name, settings.Shaders)
	if err != nil {
		return nil, err
	}

	accessors := make(map[string]Accessor, len(settings.Accessors))
	for _, acc := range settings.Accessors {
		found := false
		for _, sa := range merged {
			if acc.Argument.matches(sa) {
				found = true
				break
			}
		}
		if !found {
			return nil, &ArgumentNotFoundError{Program: settings.Name, Argument: acc.Argument}
		}
		accessors[acc.Argument.Name] = acc
	}

	for _, sa := range merged {
		acc, ok := accessors[sa.Name]
		if !ok {
			acc = Accessor{Argument: Argument{Name: sa.Name}}
		}
		info, err := resolve(settings.Name, sa, acc)
		if err != nil {
			return nil, err
		}
		if info.Accessor.ValueType.IsRootConstant() {
			info.ConstantOffset = p.constantsSize
			p.constantsSize += align.Up(max(sa.Size, 4), p.uniformAlignment)
		}
		p.arguments = append(p.arguments, info)
	}

	if err := p.createLayouts(); err != nil {
		p.destroyLayouts()
		return nil, err
	}

	logger.Get().Debug("program: created",
		"program", p.name,
		"arguments", len(p.arguments),
		"groups", len(p.groups),
		"constants", p.constantsSize)
	return p, nil
}

// mergeArguments joins the arguments of every module. Arguments declared in
// several modules must agree on binding and kind; their stages are merged.
func mergeArguments(program string, modules []*shader.Module) ([]shader.Argument, error) {
	var merged []shader.Argument
	index := make(map[string]int)
	for _, m := range modules {
		if m == nil {
			continue
		}
		for _, a := range m.Arguments {
			i, ok := index[a.Name]
			if !ok {
				index[a.Name] = len(merged)
				merged = append(merged, a)
				continue
			}
			prev := &merged[i]
			if prev.Group != a.Group || prev.Binding != a.Binding || prev.Kind != a.Kind || prev.Count != a.Count {
				return nil, fmt.Errorf("%w: %q: %s declared as %s and %s", ErrInvalidAccessor, program, a.Name, prev, a)
			}
			prev.Stages |= a.Stages
		}
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Group != merged[j].Group {
			return merged[i].Group < merged[j].Group
		}
		return merged[i].Binding < merged[j].Binding
	})

	// Binding arrays take one layout entry per element, so an array must
	// end before the next binding of its group.
	for i := 1; i < len(merged); i++ {
		prev, cur := merged[i-1], merged[i]
		if prev.Kind == shader.KindPushConstant || cur.Kind == shader.KindPushConstant || prev.Group != cur.Group {
			continue
		}
		if cur.Binding-prev.Binding < max(prev.Count, 1) {
			return nil, &BindingOverlapError{Program: program, First: prev, Second: cur}
		}
	}
	return merged, nil
}

func (p *Program) createLayouts() error {
	dev := p.device.HAL()
	entries := make(map[uint32][]gputypes.BindGroupLayoutEntry)
	var maxGroup uint32
	for _, info := range p.arguments {
		g := info.Shader.Group
		if _, ok := entries[g]; !ok {
			p.groups = append(p.groups, g)
		}
		for i := uint32(0); i < info.Shader.Count; i++ {
			entries[g] = append(entries[g], info.Shader.LayoutEntry(i))
		}
		maxGroup = max(maxGroup, g)
	}
	sort.Slice(p.groups, func(i, j int) bool { return p.groups[i] < p.groups[j] })

	if len(p.groups) == 0 {
		layout, err := dev.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{Label: p.name})
		if err != nil {
			return fmt.Errorf("program: %q: create pipeline layout: %w", p.name, err)
		}
		p.pipelineLayout = layout
		return nil
	}

	// Pipeline layouts index bind group layouts by group number, so gaps
	// get empty layouts.
	ordered := make([]hal.BindGroupLayout, maxGroup+1)
	for g := uint32(0); g <= maxGroup; g++ {
		layout, err := dev.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
			Label:   fmt.Sprintf("%s/group%d", p.name, g),
			Entries: entries[g],
		})
		if err != nil {
			return fmt.Errorf("program: %q: create bind group layout %d: %w", p.name, g, err)
		}
		p.layouts[g] = layout
		ordered[g] = layout
	}

	layout, err := dev.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            p.name,
		BindGroupLayouts: ordered,
	})
	if err != nil {
		return fmt.Errorf("program: %q: create pipeline layout: %w", p.name, err)
	}
	p.pipelineLayout = layout
	return nil
}

func (p *Program) destroyLayouts() {
	dev := p.device.HAL()
	if p.pipelineLayout != nil {
		dev.DestroyPipelineLayout(p.pipelineLayout)
		p.pipelineLayout = nil
	}
	for g, l := range p.layouts {
		dev.DestroyBindGroupLayout(l)
		delete(p.layouts, g)
	}
}

// ID returns the process-unique program id.
func (p *Program) ID() uint64 { return p.id }

// Name returns the debug name.
func (p *Program) Name() string { return p.name }

// Device returns the resource device the program was created on.
func (p *Program) Device() *resource.Device { return p.device }

// Arguments returns the argument descriptions ordered by (group, binding).
func (p *Program) Arguments() []ArgumentInfo {
	out := make([]ArgumentInfo, len(p.arguments))
	for i, a := range p.arguments {
		out[i] = *a
	}
	return out
}

// Argument returns the description of arg.
func (p *Program) Argument(arg Argument) (ArgumentInfo, error) {
	i, err := p.argumentIndex(arg)
	if err != nil {
		return ArgumentInfo{}, err
	}
	return *p.arguments[i], nil
}

func (p *Program) argumentIndex(arg Argument) (int, error) {
	for i, info := range p.arguments {
		if arg.matches(info.Shader) {
			return i, nil
		}
	}
	return -1, &ArgumentNotFoundError{Program: p.name, Argument: arg}
}

// Groups returns the bind group numbers used by the program.
func (p *Program) Groups() []uint32 { return append([]uint32(nil), p.groups...) }

// BindGroupLayout returns the native layout of group.
func (p *Program) BindGroupLayout(group uint32) (hal.BindGroupLayout, bool) {
	l, ok := p.layouts[group]
	return l, ok
}

// PipelineLayout returns the native pipeline layout.
func (p *Program) PipelineLayout() hal.PipelineLayout { return p.pipelineLayout }

// ConstantsSize returns the byte size of the constant buffer each bindings
// object allocates for root constants.
func (p *Program) ConstantsSize() uint32 { return p.constantsSize }

// Release destroys the native layouts. Bindings created from the program
// must be released first.
func (p *Program) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return
	}
	p.released = true
	p.destroyLayouts()
}

func (p *Program) String() string { return fmt.Sprintf("Program(%s)", p.name) }
