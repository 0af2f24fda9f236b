// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package program

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rhi/barrier"
	"github.com/gogpu/rhi/descriptor"
	"github.com/gogpu/rhi/internal/logger"
	"github.com/gogpu/rhi/resource"
	"github.com/gogpu/wgpu/hal"
)

// ApplyFlags select what Apply does.
type ApplyFlags uint8

const (
	// ApplyConstantOnce skips constant groups when the same bindings were
	// the last applied to the command list.
	ApplyConstantOnce ApplyFlags = 1 << iota
	// ApplyChangesOnly skips mutable groups the command list already has.
	ApplyChangesOnly
	// ApplyStateBarriers transitions every bound resource into the state
	// its view requires before binding.
	ApplyStateBarriers
	// ApplyRetainResources pins bound resources until the command list's
	// work retires.
	ApplyRetainResources

	ApplyDefault = ApplyConstantOnce | ApplyChangesOnly | ApplyStateBarriers
)

func (f ApplyFlags) String() string {
	if f == 0 {
		return "None"
	}
	var parts []string
	for _, x := range []struct {
		flag ApplyFlags
		name string
	}{
		{ApplyConstantOnce, "ConstantOnce"},
		{ApplyChangesOnly, "ChangesOnly"},
		{ApplyStateBarriers, "StateBarriers"},
		{ApplyRetainResources, "RetainResources"},
	} {
		if f&x.flag != 0 {
			parts = append(parts, x.name)
		}
	}
	return strings.Join(parts, "|")
}

// BoundGroup identifies a bind group set on a command list. Bindings and
// Version name the bindings object and the build of its group; the layout
// and the entries decide whether two groups bind the same values.
type BoundGroup struct {
	Bindings uint64
	Group    uint32
	Version  uint64

	layout  hal.BindGroupLayout
	entries []boundEntry
}

// boundEntry is what one bind group entry reads. generation is the heap
// generation the descriptor was read in, zero for entries outside heaps.
type boundEntry struct {
	binding    uint32
	desc       descriptor.Descriptor
	generation uint64
}

// SameValues reports whether g binds the same layout and entries as o, no
// matter which bindings object built either.
func (g BoundGroup) SameValues(o BoundGroup) bool {
	return g.Group == o.Group && g.layout == o.layout && slices.Equal(g.entries, o.entries)
}

// CommandList is what Apply records into.
type CommandList interface {
	barrier.Encoder

	// BindGroup sets group at index. key identifies its contents.
	BindGroup(index uint32, group hal.BindGroup, key BoundGroup)

	// BoundGroup returns the key of the group set at index.
	BoundGroup(index uint32) (BoundGroup, bool)

	// AppliedBindings returns the index of the last applied bindings.
	AppliedBindings() uint64
	SetAppliedBindings(index uint64)

	// RetainResources pins resources until the list's work retires.
	RetainResources(resources ...*resource.Resource)
}

// ApplyStats reports what one Apply did.
type ApplyStats struct {
	Barriers       int
	ConstantGroups int
	MutableGroups  int
	Skipped        int
}

// Apply records the bindings into cl: state barriers first, then constant
// groups, then mutable groups. Reserved bindings whose heaps have since
// been allocated complete their initialization here.
func (b *Bindings) Apply(cl CommandList, flags ApplyFlags) (ApplyStats, error) {
	var stats ApplyStats
	if cl == nil {
		return stats, fmt.Errorf("%w: nil command list", ErrInvalidValue)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateReleased:
		return stats, fmt.Errorf("%w: bindings %d", ErrReleased, b.index)
	case StateReserved:
		if err := b.completeLocked(); err != nil {
			return stats, err
		}
	case StateCreated:
		return stats, fmt.Errorf("%w: bindings %d have no descriptor ranges", ErrNotInitialized, b.index)
	}

	// Pull-style refresh after heap growth.
	if b.heapsMoved() {
		b.updateRootParameterBindings()
	}
	if err := b.uploadConstants(); err != nil {
		return stats, err
	}

	if flags&ApplyStateBarriers != 0 {
		stats.Barriers = b.transitions().ApplyTransitions(cl)
	}
	if flags&ApplyRetainResources != 0 {
		if res := b.Resources(); len(res) > 0 {
			cl.RetainResources(res...)
		}
	}

	sameBindings := cl.AppliedBindings() == b.index
	for _, constant := range []bool{true, false} {
		for _, gs := range b.groups {
			if gs.constant != constant {
				continue
			}
			if err := b.refreshGroup(gs); err != nil {
				return stats, err
			}
			key := BoundGroup{
				Bindings: b.index,
				Group:    gs.group,
				Version:  gs.version,
				layout:   b.program.layouts[gs.group],
				entries:  gs.entries,
			}
			switch {
			case constant && flags&ApplyConstantOnce != 0 && sameBindings:
				stats.Skipped++
				continue
			case !constant && flags&ApplyChangesOnly != 0:
				if bound, ok := cl.BoundGroup(gs.group); ok && bound.SameValues(key) {
					stats.Skipped++
					continue
				}
			}
			cl.BindGroup(gs.group, gs.bindGroup, key)
			if constant {
				stats.ConstantGroups++
			} else {
				stats.MutableGroups++
			}
		}
	}

	for _, ab := range b.args {
		ab.applied = true
	}
	b.constantsBound = b.constants != nil
	cl.SetAppliedBindings(b.index)
	return stats, nil
}

// transitions collects the state transitions the bound views need.
func (b *Bindings) transitions() *barrier.Set {
	set := barrier.New()
	for _, ab := range b.args {
		for _, v := range ab.views {
			r := v.Resource()
			if after := v.RequiredState(); r.State() != after {
				set.AddStateTransition(r, r.State(), after)
			}
		}
	}
	return set
}

func (b *Bindings) heapsMoved() bool {
	for _, gs := range b.groups {
		for heap, gen := range gs.generation {
			if heap.Generation() != gen {
				return true
			}
		}
	}
	return false
}

// uploadConstants writes changed root constants. Once the constant buffer
// has been bound, draws recorded since may still read it, so new values go
// to a fresh buffer and the old one retires through the release pool.
func (b *Bindings) uploadConstants() error {
	if !b.constantsDirty || b.constants == nil {
		return nil
	}
	queue := b.program.queue
	if queue == nil {
		return fmt.Errorf("%w: %q has root constants but no queue", ErrInvalidValue, b.program.name)
	}
	if b.constantsBound {
		if err := b.rotateConstantBuffer(); err != nil {
			return err
		}
	}
	for _, ab := range b.args {
		if !ab.ValueType().IsRootConstant() || len(ab.bytes) == 0 {
			continue
		}
		if err := queue.WriteBuffer(b.constants, uint64(ab.info.ConstantOffset), ab.bytes); err != nil {
			return fmt.Errorf("program: %q: upload root constant %s: %w", b.program.name, ab.info.Argument, err)
		}
	}
	b.constantsDirty = false
	return nil
}

// refreshGroup rebuilds the native bind group of gs when an argument of it
// changed or a heap it reads was reallocated.
func (b *Bindings) refreshGroup(gs *groupState) error {
	if !gs.dirty && gs.bindGroup != nil {
		return nil
	}
	layout, ok := b.program.layouts[gs.group]
	if !ok {
		return fmt.Errorf("%w: %q has no layout for group %d", ErrInvalidValue, b.program.name, gs.group)
	}

	var (
		entries    []gputypes.BindGroupEntry
		bound      []boundEntry
		unbound    []Argument
		generation = make(map[*descriptor.Heap]uint64)
	)
	add := func(binding uint32, d descriptor.Descriptor, gen uint64, res gputypes.BindingResource) {
		entries = append(entries, gputypes.BindGroupEntry{Binding: binding, Resource: res})
		bound = append(bound, boundEntry{binding: binding, desc: d, generation: gen})
	}
	for _, i := range gs.args {
		ab := b.args[i]
		info := ab.info
		switch {
		case info.UsesDescriptors():
			heap := ab.rng.Heap
			gen := heap.Generation()
			generation[heap] = gen
			for j := uint32(0); j < ab.rng.Count; j++ {
				d, err := heap.Slot(ab.rng.Offset + j)
				if err != nil {
					return err
				}
				if d.IsEmpty() {
					unbound = append(unbound, info.Argument)
					break
				}
				add(info.Shader.Binding+j, d, gen, d.BindingResource())
			}
		case info.Accessor.ValueType == ValueBufferAddress:
			if len(ab.views) != 1 {
				unbound = append(unbound, info.Argument)
				continue
			}
			v := ab.views[0]
			addr := v.GPUAddress()
			size := v.Settings().Size
			d := descriptor.Descriptor{Type: descriptor.TypeBuffer, Resource: v.Resource().ID(), Offset: addr.Offset, Size: size}
			add(info.Shader.Binding, d, 0, gputypes.BufferBinding{Buffer: addr.Handle, Offset: addr.Offset, Size: size})
		case info.Accessor.ValueType.IsRootConstant():
			offset, size := uint64(info.ConstantOffset), uint64(max(info.Shader.Size, 4))
			d := descriptor.Descriptor{Type: descriptor.TypeBuffer, Buffer: b.constants, Offset: offset, Size: size}
			add(info.Shader.Binding, d, 0, gputypes.BufferBinding{Buffer: b.constants.NativeHandle(), Offset: offset, Size: size})
		}
	}
	// A bind group must provide every entry of its layout.
	if len(unbound) > 0 {
		return &UnboundArgumentsError{Program: b.program.name, Arguments: unbound}
	}

	dev := b.program.device
	bg, err := dev.HAL().CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   fmt.Sprintf("%s/group%d#%d", b.program.name, gs.group, b.index),
		Layout:  layout,
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("program: %q: create bind group %d: %w", b.program.name, gs.group, err)
	}

	if old := gs.bindGroup; old != nil {
		release := resource.ReleaseFunc(func() { dev.HAL().DestroyBindGroup(old) })
		if pool := dev.ReleasePool(); pool != nil {
			pool.AddResource(release)
		} else {
			release.ReleaseNative()
		}
	}
	gs.bindGroup = bg
	gs.entries = bound
	gs.version++
	gs.dirty = false
	gs.generation = generation

	logger.Get().Debug("program: bind group built",
		"program", b.program.name,
		"bindings", b.index,
		"group", gs.group,
		"version", gs.version,
		"entries", len(entries))
	return nil
}
