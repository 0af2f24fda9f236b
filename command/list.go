// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package command

import (
	"fmt"

	"github.com/gogpu/rhi/barrier"
	"github.com/gogpu/rhi/internal/logger"
	"github.com/gogpu/rhi/program"
	"github.com/gogpu/rhi/resource"
	"github.com/gogpu/wgpu/hal"
)

// ListStats counts what a list recorded.
type ListStats struct {
	Barriers      int
	BindGroups    int
	SkippedGroups int
	Draws         int
	Dispatches    int
	Bindings      int
}

type passKind uint8

const (
	passNone passKind = iota
	passRender
	passCompute
)

// List records into one hal command encoder. A list is used by one
// goroutine at a time.
//
// Bind groups are pass state: groups set outside a pass are remembered and
// set when the next pass opens, and ending a pass forgets them.
type List struct {
	queue   *Queue
	name    string
	encoder hal.CommandEncoder

	pass    passKind
	render  hal.RenderPassEncoder
	compute hal.ComputePassEncoder

	bound   map[uint32]program.BoundGroup
	groups  map[uint32]hal.BindGroup
	applied uint64

	retained  []*resource.Resource
	stats     ListStats
	err       error
	committed bool
}

// NewList creates a list recording for q.
func (q *Queue) NewList(name string) (*List, error) {
	enc, err := q.device.HAL().CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: name})
	if err != nil {
		return nil, fmt.Errorf("command: create encoder %q: %w", name, err)
	}
	if err := enc.BeginEncoding(name); err != nil {
		enc.Destroy()
		return nil, fmt.Errorf("command: begin encoding %q: %w", name, err)
	}
	return &List{
		queue:   q,
		name:    name,
		encoder: enc,
		bound:   make(map[uint32]program.BoundGroup),
		groups:  make(map[uint32]hal.BindGroup),
	}, nil
}

// Name returns the debug name.
func (l *List) Name() string { return l.name }

// Stats returns what the list recorded so far.
func (l *List) Stats() ListStats { return l.stats }

// Err returns the first recording error.
func (l *List) Err() error { return l.err }

func (l *List) fail(err error) {
	if l.err == nil {
		l.err = err
		logger.Get().Warn("command: recording error", "list", l.name, "err", err)
	}
}

func (l *List) recording() bool {
	if l.committed {
		l.fail(fmt.Errorf("%w: %q", ErrCommitted, l.name))
		return false
	}
	return true
}

// TransitionBuffers records buffer barriers. Barriers must be recorded
// outside passes.
func (l *List) TransitionBuffers(barriers []hal.BufferBarrier) {
	if !l.recording() {
		return
	}
	if l.pass != passNone {
		l.fail(fmt.Errorf("%w: %d buffer barriers in %q", ErrBarrierInPass, len(barriers), l.name))
		return
	}
	l.encoder.TransitionBuffers(barriers)
	l.stats.Barriers += len(barriers)
}

// TransitionTextures records texture barriers. Barriers must be recorded
// outside passes.
func (l *List) TransitionTextures(barriers []hal.TextureBarrier) {
	if !l.recording() {
		return
	}
	if l.pass != passNone {
		l.fail(fmt.Errorf("%w: %d texture barriers in %q", ErrBarrierInPass, len(barriers), l.name))
		return
	}
	l.encoder.TransitionTextures(barriers)
	l.stats.Barriers += len(barriers)
}

// BindGroup sets group at index, now when a pass is open or when the next
// one opens.
func (l *List) BindGroup(index uint32, group hal.BindGroup, key program.BoundGroup) {
	if !l.recording() {
		return
	}
	l.bound[index] = key
	l.groups[index] = group
	l.setBindGroup(index, group)
	l.stats.BindGroups++
}

func (l *List) setBindGroup(index uint32, group hal.BindGroup) {
	switch l.pass {
	case passRender:
		l.render.SetBindGroup(index, group, nil)
	case passCompute:
		l.compute.SetBindGroup(index, group, nil)
	}
}

// BoundGroup returns the key of the group set at index.
func (l *List) BoundGroup(index uint32) (program.BoundGroup, bool) {
	k, ok := l.bound[index]
	return k, ok
}

// AppliedBindings returns the index of the last applied bindings.
func (l *List) AppliedBindings() uint64 { return l.applied }

// SetAppliedBindings records the last applied bindings.
func (l *List) SetAppliedBindings(index uint64) { l.applied = index }

// RetainResources pins resources until the list's submission retires.
func (l *List) RetainResources(resources ...*resource.Resource) {
	for _, r := range resources {
		r.Retain()
	}
	l.retained = append(l.retained, resources...)
}

func (l *List) takeRetained() []*resource.Resource {
	out := l.retained
	l.retained = nil
	return out
}

// SetProgramBindings applies bindings: barriers, then constant groups, then
// mutable groups. Call it before opening the pass that draws with them.
func (l *List) SetProgramBindings(b *program.Bindings, flags program.ApplyFlags) error {
	if !l.recording() {
		return l.err
	}
	stats, err := b.Apply(l, flags)
	if err != nil {
		return fmt.Errorf("command: %q: apply %s: %w", l.name, b, err)
	}
	l.stats.SkippedGroups += stats.Skipped
	l.stats.Bindings++
	return l.err
}

// SetResourceBarriers records the transitions of set and updates the
// tracked resource states.
func (l *List) SetResourceBarriers(set *barrier.Set) int {
	if set == nil || !l.recording() {
		return 0
	}
	return set.ApplyTransitions(l)
}

// BeginRenderPass opens a render pass and sets the bind groups recorded
// since the last pass.
func (l *List) BeginRenderPass(desc *hal.RenderPassDescriptor) error {
	if err := l.beginPass(); err != nil {
		return err
	}
	l.render = l.encoder.BeginRenderPass(desc)
	l.pass = passRender
	l.rebind()
	return nil
}

// BeginComputePass opens a compute pass and sets the bind groups recorded
// since the last pass.
func (l *List) BeginComputePass(desc *hal.ComputePassDescriptor) error {
	if err := l.beginPass(); err != nil {
		return err
	}
	l.compute = l.encoder.BeginComputePass(desc)
	l.pass = passCompute
	l.rebind()
	return nil
}

func (l *List) beginPass() error {
	if !l.recording() {
		return l.err
	}
	if l.pass != passNone {
		l.EndPass()
	}
	return nil
}

func (l *List) rebind() {
	for index, group := range l.groups {
		l.setBindGroup(index, group)
	}
}

// EndPass closes the open pass. Bind group state is forgotten.
func (l *List) EndPass() {
	switch l.pass {
	case passRender:
		l.render.End()
		l.render = nil
	case passCompute:
		l.compute.End()
		l.compute = nil
	default:
		return
	}
	l.pass = passNone
	clear(l.bound)
	clear(l.groups)
	l.applied = 0
}

// SetRenderPipeline sets the pipeline of the open render pass.
func (l *List) SetRenderPipeline(p hal.RenderPipeline) error {
	if l.pass != passRender {
		return fmt.Errorf("%w: render pipeline in %q", ErrNoPass, l.name)
	}
	l.render.SetPipeline(p)
	return nil
}

// SetComputePipeline sets the pipeline of the open compute pass.
func (l *List) SetComputePipeline(p hal.ComputePipeline) error {
	if l.pass != passCompute {
		return fmt.Errorf("%w: compute pipeline in %q", ErrNoPass, l.name)
	}
	l.compute.SetPipeline(p)
	return nil
}

// Draw records a draw in the open render pass.
func (l *List) Draw(vertexCount, instanceCount uint32) error {
	if l.pass != passRender {
		return fmt.Errorf("%w: draw in %q", ErrNoPass, l.name)
	}
	l.render.Draw(vertexCount, instanceCount, 0, 0)
	l.stats.Draws++
	return nil
}

// Dispatch records a dispatch in the open compute pass.
func (l *List) Dispatch(x, y, z uint32) error {
	if l.pass != passCompute {
		return fmt.Errorf("%w: dispatch in %q", ErrNoPass, l.name)
	}
	l.compute.Dispatch(x, y, z)
	l.stats.Dispatches++
	return nil
}

// Commit ends the open pass and the encoding. It returns the first
// recording error instead of a command buffer when one occurred.
func (l *List) Commit() (hal.CommandBuffer, error) {
	if l.committed {
		return nil, fmt.Errorf("%w: %q", ErrCommitted, l.name)
	}
	l.EndPass()
	l.committed = true
	if l.err != nil {
		l.encoder.DiscardEncoding()
		l.release()
		return nil, l.err
	}
	buf, err := l.encoder.EndEncoding()
	if err != nil {
		l.release()
		return nil, fmt.Errorf("command: end encoding %q: %w", l.name, err)
	}
	logger.Get().Debug("command: list committed",
		"list", l.name,
		"barriers", l.stats.Barriers,
		"bindGroups", l.stats.BindGroups,
		"draws", l.stats.Draws)
	return buf, nil
}

// Discard drops everything recorded and unpins retained resources.
func (l *List) Discard() {
	if l.committed {
		return
	}
	l.EndPass()
	l.committed = true
	l.encoder.DiscardEncoding()
	l.release()
}

func (l *List) release() {
	for _, r := range l.takeRetained() {
		r.Unretain()
	}
	l.encoder.Destroy()
}
