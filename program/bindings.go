// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package program

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga/hlsl"
	"github.com/gogpu/rhi/descriptor"
	"github.com/gogpu/rhi/internal/logger"
	"github.com/gogpu/rhi/resource"
	"github.com/gogpu/wgpu/hal"
)

// State is the lifecycle stage of a Bindings object.
type State uint8

const (
	// StateCreated bindings hold values but no descriptor ranges.
	StateCreated State = iota
	// StateReserved bindings hold ranges that wait for heap allocation.
	StateReserved
	// StateInitialized bindings have their descriptors in shader-visible
	// heaps and can be applied.
	StateInitialized
	// StateReleased bindings gave their ranges back.
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "Created"
	case StateReserved:
		return "Reserved"
	case StateInitialized:
		return "Initialized"
	default:
		return "Released"
	}
}

// Value is the initial value of one argument.
type Value struct {
	Argument Argument
	Views    []resource.View
	Bytes    []byte
}

// Views returns a view value for the argument called name.
func Views(name string, views ...resource.View) Value {
	return Value{Argument: Arg(name), Views: views}
}

// Constant returns a root constant value for the argument called name.
func Constant(name string, b []byte) Value {
	return Value{Argument: Arg(name), Bytes: b}
}

// RootParameter is the resolved native binding of one argument.
type RootParameter struct {
	Argument     Argument
	Group        uint32
	Binding      uint32
	Space        uint8
	Register     uint32
	RegisterType hlsl.RegisterType

	// Descriptor tables.
	Range descriptor.Range
	GPU   descriptor.GPUHandle

	// Buffer addresses.
	Address resource.Address

	// Root constants.
	ConstantOffset uint32
}

// partitionKey identifies one descriptor range reservation of a Bindings.
type partitionKey struct {
	kind     descriptor.HeapKind
	constant bool
}

// partition is a reserved range shared by the bindings copied from one
// another. The range goes back to its heap with the last reference.
type partition struct {
	rng  descriptor.Range
	refs atomic.Int32
}

// groupState is the native bind group of one group number.
type groupState struct {
	group      uint32
	constant   bool
	args       []int
	bindGroup  hal.BindGroup
	entries    []boundEntry
	version    uint64
	dirty      bool
	generation map[*descriptor.Heap]uint64
}

var bindingsIndex atomic.Uint64

// Bindings is the set of values of every argument of a program.
type Bindings struct {
	program *Program
	index   uint64
	frame   int

	args       []*ArgumentBinding
	partitions map[partitionKey]*partition
	groups     []*groupState

	mu         sync.Mutex
	state      State
	rootParams []RootParameter

	constants      hal.Buffer
	constantsDirty bool
	constantsBound bool
}

// Create returns bindings of p holding values. Every required argument must
// get a value; otherwise the error lists all missing ones. Descriptor
// ranges are reserved immediately. When the heaps defer their growth the
// bindings stay Reserved until CompleteInitialization.
func Create(p *Program, values []Value, frameIndex int) (*Bindings, error) {
	b, err := newBindings(p, frameIndex)
	if err != nil {
		return nil, err
	}
	for _, v := range values {
		if err := b.setValue(v); err != nil {
			return nil, err
		}
	}
	if err := b.finishConstruction(nil, nil); err != nil {
		return nil, err
	}
	return b, nil
}

// CreateCopy returns bindings of the same program as src, holding src's
// values with values replacing some of them. Constant descriptor ranges are
// shared with src unless one of their arguments is replaced.
func CreateCopy(src *Bindings, values []Value, frameIndex int) (*Bindings, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: nil source bindings", ErrInvalidValue)
	}
	if src.State() == StateReleased {
		return nil, fmt.Errorf("%w: copy of released bindings %d", ErrReleased, src.index)
	}
	b, err := newBindings(src.program, frameIndex)
	if err != nil {
		return nil, err
	}

	replaced := make(map[int]bool, len(values))
	for _, v := range values {
		i, err := b.program.argumentIndex(v.Argument)
		if err != nil {
			return nil, err
		}
		if err := b.setValue(v); err != nil {
			return nil, err
		}
		replaced[i] = true
	}
	for i, sb := range src.args {
		if replaced[i] || !sb.set {
			continue
		}
		if err := b.args[i].copyValue(sb); err != nil {
			return nil, err
		}
	}

	// A constant partition is shared when none of its arguments changed.
	shared := make(map[partitionKey]*partition)
	for key, part := range src.partitions {
		if !key.constant {
			continue
		}
		reuse := true
		for i, info := range b.program.arguments {
			if !info.UsesDescriptors() || partitionOf(info) != key {
				continue
			}
			// FrameConstant slots are rewritten every frame.
			if replaced[i] || info.Accessor.Access == AccessFrameConstant {
				reuse = false
				break
			}
		}
		if reuse {
			shared[key] = part
		}
	}
	if err := b.finishConstruction(shared, src); err != nil {
		return nil, err
	}
	return b, nil
}

func newBindings(p *Program, frame int) (*Bindings, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil program", ErrInvalidValue)
	}
	p.mu.Lock()
	released := p.released
	p.mu.Unlock()
	if released {
		return nil, fmt.Errorf("%w: %s", ErrReleased, p)
	}

	b := &Bindings{
		program:    p,
		index:      bindingsIndex.Add(1),
		frame:      frame,
		args:       make([]*ArgumentBinding, len(p.arguments)),
		partitions: make(map[partitionKey]*partition),
	}
	for i, info := range p.arguments {
		ab := newArgumentBinding(p.name, info, frame)
		ab.AddObserver(b.onArgumentChanged)
		b.args[i] = ab
	}
	b.buildGroups()
	return b, nil
}

func (b *Bindings) buildGroups() {
	byGroup := make(map[uint32]*groupState)
	for _, g := range b.program.groups {
		gs := &groupState{group: g, constant: true, dirty: true}
		byGroup[g] = gs
		b.groups = append(b.groups, gs)
	}
	for i, info := range b.program.arguments {
		gs := byGroup[info.Shader.Group]
		gs.args = append(gs.args, i)
		if !info.Accessor.Access.IsConstant() {
			gs.constant = false
		}
	}
}

func (b *Bindings) setValue(v Value) error {
	i, err := b.program.argumentIndex(v.Argument)
	if err != nil {
		return err
	}
	ab := b.args[i]
	if ab.ValueType().IsRootConstant() {
		return ab.SetRootConstant(v.Bytes)
	}
	return ab.SetResourceViews(v.Views)
}

// copyValue takes over the value of src without notifying observers of a
// change that src already went through.
func (b *ArgumentBinding) copyValue(src *ArgumentBinding) error {
	if src.ValueType().IsRootConstant() {
		return b.SetRootConstant(src.bytes)
	}
	return b.SetResourceViews(src.views)
}

// finishConstruction runs the aggregate unbound check, reserves descriptor
// ranges and completes initialization when the ranges are allocated.
func (b *Bindings) finishConstruction(shared map[partitionKey]*partition, src *Bindings) error {
	var missing []Argument
	for _, ab := range b.args {
		if !ab.set && !ab.info.Accessor.Optional {
			missing = append(missing, ab.info.Argument)
		}
	}
	if len(missing) > 0 {
		return &UnboundArgumentsError{Program: b.program.name, Arguments: missing}
	}

	if err := b.reserveDescriptorHeapRanges(shared); err != nil {
		b.Release()
		return err
	}
	if err := b.createConstantBuffer(); err != nil {
		b.Release()
		return err
	}

	if b.rangesAllocated() {
		if err := b.CompleteInitialization(); err != nil {
			b.Release()
			return err
		}
	}

	from := uint64(0)
	if src != nil {
		from = src.index
	}
	logger.Get().Debug("program: bindings created",
		"program", b.program.name,
		"bindings", b.index,
		"copyOf", from,
		"state", b.State())
	return nil
}

// ReserveDescriptorHeapRanges reserves one range per (heap kind, constant
// or mutable) partition. Shader-readable kinds reserve from the default
// shader-visible heap; target kinds from the default heap of their kind.
func (b *Bindings) ReserveDescriptorHeapRanges() error {
	return b.reserveDescriptorHeapRanges(nil)
}

func (b *Bindings) reserveDescriptorHeapRanges(shared map[partitionKey]*partition) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateCreated {
		return nil
	}

	totals := make(map[partitionKey]uint32)
	var order []partitionKey
	for _, info := range b.program.arguments {
		if !info.UsesDescriptors() {
			continue
		}
		key := partitionOf(info)
		if _, ok := totals[key]; !ok {
			order = append(order, key)
		}
		totals[key] += info.DescriptorCount
	}

	alloc := b.program.device.Descriptors()
	for _, key := range order {
		if part, ok := shared[key]; ok {
			part.refs.Add(1)
			b.partitions[key] = part
			continue
		}
		if alloc == nil {
			return fmt.Errorf("%w: %q has no descriptor allocator", descriptor.ErrInvalidArgument, b.program.name)
		}
		var (
			heap *descriptor.Heap
			err  error
		)
		if key.kind.IsShaderVisible() {
			heap, err = alloc.DefaultShaderVisibleHeap(key.kind)
		} else {
			heap, err = alloc.DefaultHeap(key.kind)
		}
		if err != nil {
			return err
		}
		rng, err := heap.Reserve(totals[key])
		if err != nil {
			return err
		}
		part := &partition{rng: rng}
		part.refs.Store(1)
		b.partitions[key] = part
	}

	offsets := make(map[partitionKey]uint32)
	for i, info := range b.program.arguments {
		if !info.UsesDescriptors() {
			continue
		}
		key := partitionOf(info)
		sub, err := b.partitions[key].rng.Sub(offsets[key], info.DescriptorCount)
		if err != nil {
			return err
		}
		offsets[key] += info.DescriptorCount
		if err := b.args[i].SetDescriptorRange(sub); err != nil {
			return err
		}
	}
	b.state = StateReserved
	return nil
}

func partitionOf(info *ArgumentInfo) partitionKey {
	return partitionKey{kind: info.HeapKind, constant: info.Accessor.Access.IsConstant()}
}

func (b *Bindings) rangesAllocated() bool {
	for _, part := range b.partitions {
		if !part.rng.IsAllocated() {
			return false
		}
	}
	return true
}

func (b *Bindings) createConstantBuffer() error {
	size := b.program.constantsSize
	if size == 0 {
		return nil
	}
	buf, err := b.program.device.HAL().CreateBuffer(&hal.BufferDescriptor{
		Label: fmt.Sprintf("%s/constants#%d", b.program.name, b.index),
		Size:  uint64(size),
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("program: %q: create constant buffer: %w", b.program.name, err)
	}
	b.constants = buf
	b.constantsDirty = true
	return nil
}

// rotateConstantBuffer replaces the constant buffer. Groups binding root
// constants are rebuilt against the new one.
func (b *Bindings) rotateConstantBuffer() error {
	old := b.constants
	if err := b.createConstantBuffer(); err != nil {
		return err
	}
	b.constantsBound = false

	dev := b.program.device
	release := resource.ReleaseFunc(func() { dev.HAL().DestroyBuffer(old) })
	if pool := dev.ReleasePool(); pool != nil {
		pool.AddResource(release)
	} else {
		release.ReleaseNative()
	}
	for _, gs := range b.groups {
		for _, i := range gs.args {
			if b.args[i].ValueType().IsRootConstant() {
				gs.dirty = true
				break
			}
		}
	}
	logger.Get().Debug("program: constant buffer rotated", "program", b.program.name, "bindings", b.index)
	return nil
}

// CompleteInitialization copies descriptors into the reserved ranges and
// resolves root parameters. The ranges must be allocated.
func (b *Bindings) CompleteInitialization() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.completeLocked()
}

func (b *Bindings) completeLocked() error {
	switch b.state {
	case StateReleased:
		return fmt.Errorf("%w: bindings %d", ErrReleased, b.index)
	case StateCreated:
		return fmt.Errorf("%w: bindings %d have no descriptor ranges", ErrNotInitialized, b.index)
	}
	if !b.rangesAllocated() {
		return fmt.Errorf("%w: bindings %d wait for heap allocation", ErrNotInitialized, b.index)
	}
	if err := b.copyDescriptorsToGPU(); err != nil {
		return err
	}
	b.updateRootParameterBindings()
	b.state = StateInitialized
	return nil
}

// CopyDescriptorsToGPU copies every bound view's descriptor into the
// shader-visible ranges.
func (b *Bindings) CopyDescriptorsToGPU() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.copyDescriptorsToGPU()
}

func (b *Bindings) copyDescriptorsToGPU() error {
	for _, ab := range b.args {
		if !ab.info.UsesDescriptors() || ab.rng.IsEmpty() {
			continue
		}
		if err := ab.copyDescriptors(); err != nil {
			return err
		}
	}
	return nil
}

// UpdateRootParameterBindings resolves every argument's native binding in
// the current heap generations and marks bind groups whose heaps moved.
func (b *Bindings) UpdateRootParameterBindings() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.updateRootParameterBindings()
}

func (b *Bindings) updateRootParameterBindings() {
	params := make([]RootParameter, 0, len(b.args))
	for _, ab := range b.args {
		info := ab.info
		rp := RootParameter{
			Argument:     info.Argument,
			Group:        info.Shader.Group,
			Binding:      info.Shader.Binding,
			Space:        info.Shader.HLSL.Space,
			Register:     info.Shader.HLSL.Register,
			RegisterType: info.Shader.HLSLRegister,
		}
		switch {
		case info.UsesDescriptors():
			rp.Range = ab.rng
			if h, err := ab.rng.Heap.GPUSlot(ab.rng.Offset); err == nil {
				rp.GPU = h
			}
		case info.Accessor.ValueType == ValueBufferAddress && len(ab.views) == 1:
			rp.Address = ab.views[0].GPUAddress()
		case info.Accessor.ValueType.IsRootConstant():
			rp.ConstantOffset = info.ConstantOffset
		}
		params = append(params, rp)
	}
	b.rootParams = params

	for _, gs := range b.groups {
		if gs.generation == nil {
			gs.dirty = true
			continue
		}
		for heap, gen := range gs.generation {
			if heap.Generation() != gen {
				gs.dirty = true
				break
			}
		}
	}
}

// RootParameters returns the resolved native bindings, one per argument.
func (b *Bindings) RootParameters() []RootParameter {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]RootParameter(nil), b.rootParams...)
}

func (b *Bindings) onArgumentChanged(ab *ArgumentBinding, _, _ []resource.View) {
	if ab.ValueType().IsRootConstant() {
		b.constantsDirty = true
		return
	}
	for _, gs := range b.groups {
		if gs.group == ab.info.Shader.Group {
			gs.dirty = true
		}
	}
}

// Program returns the program the bindings belong to.
func (b *Bindings) Program() *Program { return b.program }

// Index returns the process-unique, monotonically increasing bindings index.
func (b *Bindings) Index() uint64 { return b.index }

// FrameIndex returns the frame the bindings are used in.
func (b *Bindings) FrameIndex() int { return b.frame }

// SetFrameIndex moves the bindings to a new frame. FrameConstant arguments
// accept one new value per frame.
func (b *Bindings) SetFrameIndex(frame int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frame = frame
	for _, ab := range b.args {
		ab.setFrameIndex(frame)
	}
}

// State returns the lifecycle stage.
func (b *Bindings) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Get returns the binding of arg.
func (b *Bindings) Get(arg Argument) (*ArgumentBinding, error) {
	i, err := b.program.argumentIndex(arg)
	if err != nil {
		return nil, err
	}
	return b.args[i], nil
}

// Arguments returns every argument binding in program order.
func (b *Bindings) Arguments() []*ArgumentBinding { return append([]*ArgumentBinding(nil), b.args...) }

// DescriptorRange returns the range reserved for the (kind, constant)
// partition.
func (b *Bindings) DescriptorRange(kind descriptor.HeapKind, constant bool) (descriptor.Range, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	part, ok := b.partitions[partitionKey{kind: kind, constant: constant}]
	if !ok {
		return descriptor.Range{}, false
	}
	return part.rng, true
}

// Resources returns the distinct resources referenced by view arguments.
func (b *Bindings) Resources() []*resource.Resource {
	var views []resource.View
	for _, ab := range b.args {
		views = append(views, ab.views...)
	}
	return resource.Resources(views)
}

// Release gives back the descriptor ranges, constant buffer and bind groups
// through the release pool, so GPU work of the current frame may still
// read them.
func (b *Bindings) Release() {
	b.mu.Lock()
	if b.state == StateReleased {
		b.mu.Unlock()
		return
	}
	b.state = StateReleased
	parts := b.partitions
	b.partitions = nil
	groups := b.groups
	b.groups = nil
	constants := b.constants
	b.constants = nil
	b.mu.Unlock()

	dev := b.program.device
	var later []resource.Releasable
	for _, part := range parts {
		if part.refs.Add(-1) > 0 {
			continue
		}
		rng := part.rng
		later = append(later, resource.ReleaseFunc(func() {
			if err := rng.Heap.ReleaseRange(rng); err != nil {
				logger.Get().Warn("program: release descriptor range", "range", rng.String(), "err", err)
			}
		}))
	}
	for _, gs := range groups {
		if gs.bindGroup != nil {
			bg := gs.bindGroup
			later = append(later, resource.ReleaseFunc(func() { dev.HAL().DestroyBindGroup(bg) }))
		}
	}
	if constants != nil {
		later = append(later, resource.ReleaseFunc(func() { dev.HAL().DestroyBuffer(constants) }))
	}

	pool := dev.ReleasePool()
	for _, r := range later {
		if pool == nil {
			r.ReleaseNative()
			continue
		}
		pool.AddResource(r)
	}
}

func (b *Bindings) String() string {
	return fmt.Sprintf("Bindings(%s #%d)", b.program.name, b.index)
}
