// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package program

import (
	"bytes"
	"errors"
	"testing"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rhi/descriptor"
	"github.com/gogpu/rhi/resource"
	"github.com/gogpu/rhi/shader"
	"github.com/gogpu/wgpu/hal"
)

// fakeList records what Apply does.
type fakeList struct {
	textures [][]hal.TextureBarrier
	buffers  [][]hal.BufferBarrier
	bound    map[uint32]BoundGroup
	binds    []BoundGroup
	applied  uint64
	retained []*resource.Resource
}

func newFakeList() *fakeList { return &fakeList{bound: make(map[uint32]BoundGroup)} }

func (l *fakeList) TransitionBuffers(b []hal.BufferBarrier)   { l.buffers = append(l.buffers, b) }
func (l *fakeList) TransitionTextures(b []hal.TextureBarrier) { l.textures = append(l.textures, b) }

func (l *fakeList) BindGroup(index uint32, _ hal.BindGroup, key BoundGroup) {
	l.bound[index] = key
	l.binds = append(l.binds, key)
}

func (l *fakeList) BoundGroup(index uint32) (BoundGroup, bool) {
	k, ok := l.bound[index]
	return k, ok
}

func (l *fakeList) AppliedBindings() uint64         { return l.applied }
func (l *fakeList) SetAppliedBindings(index uint64) { l.applied = index }

func (l *fakeList) RetainResources(rs ...*resource.Resource) {
	l.retained = append(l.retained, rs...)
}

func newQuadBindings(t *testing.T, env *testEnv, p *Program) *Bindings {
	t.Helper()
	b, err := Create(p, []Value{
		Views("Tex", env.texture(t, "tex")),
		Views("Samp", env.sampler(t)),
		Views("Overlay", env.texture(t, "overlay")),
	}, 0)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	t.Cleanup(b.Release)
	return b
}

func TestApplyOrder(t *testing.T) {
	env := newTestEnv(t, descriptor.DefaultSettings())
	b := newQuadBindings(t, env, quadProgram(t, env))
	cl := newFakeList()

	stats, err := b.Apply(cl, ApplyDefault)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if stats.Barriers != 2 || stats.ConstantGroups != 1 || stats.MutableGroups != 1 || stats.Skipped != 0 {
		t.Errorf("stats = %+v, want 2 barriers, 1 constant, 1 mutable", stats)
	}
	if len(cl.textures) != 1 || len(cl.textures[0]) != 2 {
		t.Fatalf("texture barrier batches = %v, want one batch of 2", len(cl.textures))
	}
	if len(cl.binds) != 2 || cl.binds[0].Group != 0 || cl.binds[1].Group != 1 {
		t.Fatalf("bind order = %+v, want group 0 then 1", cl.binds)
	}
	if cl.AppliedBindings() != b.Index() {
		t.Errorf("AppliedBindings() = %d, want %d", cl.AppliedBindings(), b.Index())
	}
	for _, ab := range b.Arguments() {
		if !ab.IsAlreadyApplied() {
			t.Errorf("%s not marked applied", ab.Argument())
		}
	}
	for _, r := range b.Resources() {
		if r.State() != resource.StateShaderResource {
			t.Errorf("%s state = %s, want ShaderResource", r, r.State())
		}
	}

	// Reapplying to the same list is free.
	stats, err = b.Apply(cl, ApplyDefault)
	if err != nil {
		t.Fatalf("second Apply failed: %v", err)
	}
	if stats.Barriers != 0 || stats.ConstantGroups != 0 || stats.MutableGroups != 0 || stats.Skipped != 2 {
		t.Errorf("second stats = %+v, want everything skipped", stats)
	}
	if len(cl.binds) != 2 {
		t.Errorf("binds = %d after reapply, want 2", len(cl.binds))
	}
}

func TestApplyWithoutFlagsRebinds(t *testing.T) {
	env := newTestEnv(t, descriptor.DefaultSettings())
	b := newQuadBindings(t, env, quadProgram(t, env))
	cl := newFakeList()

	for i := 0; i < 2; i++ {
		stats, err := b.Apply(cl, 0)
		if err != nil {
			t.Fatalf("Apply %d failed: %v", i, err)
		}
		if stats.Barriers != 0 || stats.ConstantGroups != 1 || stats.MutableGroups != 1 {
			t.Errorf("Apply %d stats = %+v, want no barriers and both groups", i, stats)
		}
	}
	if len(cl.textures) != 0 {
		t.Errorf("barriers recorded without ApplyStateBarriers")
	}
}

func TestApplyChangedMutableRebinds(t *testing.T) {
	env := newTestEnv(t, descriptor.DefaultSettings())
	b := newQuadBindings(t, env, quadProgram(t, env))
	cl := newFakeList()
	if _, err := b.Apply(cl, ApplyDefault); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	before, _ := cl.BoundGroup(1)

	overlay := mustGet(t, b, "Overlay")
	if err := overlay.SetResourceViews([]resource.View{env.texture(t, "overlay2")}); err != nil {
		t.Fatalf("SetResourceViews failed: %v", err)
	}
	if overlay.IsAlreadyApplied() {
		t.Error("new value reported as applied")
	}

	stats, err := b.Apply(cl, ApplyDefault)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if stats.Barriers != 1 || stats.MutableGroups != 1 || stats.ConstantGroups != 0 || stats.Skipped != 1 {
		t.Errorf("stats = %+v, want 1 barrier, 1 mutable rebind, constant skipped", stats)
	}
	after, _ := cl.BoundGroup(1)
	if after.Version != before.Version+1 {
		t.Errorf("group 1 version %d -> %d, want one rebuild", before.Version, after.Version)
	}
}

func TestApplyConstantOnceAcrossBindings(t *testing.T) {
	env := newTestEnv(t, descriptor.DefaultSettings())
	p := quadProgram(t, env)
	first := newQuadBindings(t, env, p)
	second, err := CreateCopy(first, []Value{Views("Overlay", env.texture(t, "other"))}, 0)
	if err != nil {
		t.Fatalf("CreateCopy failed: %v", err)
	}
	defer second.Release()

	cl := newFakeList()
	for _, step := range []struct {
		b        *Bindings
		constant int
	}{
		{first, 1},
		{second, 1},
		{first, 1},
		{first, 0},
	} {
		stats, err := step.b.Apply(cl, ApplyDefault)
		if err != nil {
			t.Fatalf("Apply failed: %v", err)
		}
		if stats.ConstantGroups != step.constant {
			t.Errorf("bindings %d: constant groups = %d, want %d", step.b.Index(), stats.ConstantGroups, step.constant)
		}
	}
}

func TestApplyRebuildsAfterHeapGrowth(t *testing.T) {
	settings := descriptor.DefaultSettings()
	settings.ShaderResources.ShaderVisibleSize = 2
	env := newTestEnv(t, settings)
	p := quadProgram(t, env)

	b := newQuadBindings(t, env, p)
	if b.State() != StateInitialized {
		t.Fatalf("State() = %s, want Initialized", b.State())
	}
	cl := newFakeList()
	if _, err := b.Apply(cl, ApplyDefault); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	before, _ := cl.BoundGroup(1)

	grown := newQuadBindings(t, env, p)
	if grown.State() != StateReserved {
		t.Fatalf("State() = %s, want Reserved", grown.State())
	}
	heap, _ := env.alloc.DefaultShaderVisibleHeap(descriptor.HeapKindShaderResources)
	gen := heap.Generation()
	if err := env.alloc.CompleteInitialization(descriptor.GPUWaiterFunc(func() error { return nil })); err != nil {
		t.Fatalf("CompleteInitialization failed: %v", err)
	}
	if heap.Generation() == gen {
		t.Fatal("heap did not grow")
	}

	stats, err := b.Apply(cl, ApplyDefault)
	if err != nil {
		t.Fatalf("Apply after growth failed: %v", err)
	}
	after, _ := cl.BoundGroup(1)
	if stats.MutableGroups != 1 || after.Version != before.Version+1 {
		t.Errorf("mutable group not rebuilt after growth: stats %+v, version %d -> %d", stats, before.Version, after.Version)
	}
	for _, rp := range b.RootParameters() {
		if rp.Range.Kind() == descriptor.HeapKindShaderResources && rp.GPU.Generation != heap.Generation() {
			t.Errorf("%s resolved in generation %d, heap at %d", rp.Argument, rp.GPU.Generation, heap.Generation())
		}
	}
}

func TestApplyRetainResources(t *testing.T) {
	env := newTestEnv(t, descriptor.DefaultSettings())
	b := newQuadBindings(t, env, quadProgram(t, env))
	cl := newFakeList()
	if _, err := b.Apply(cl, ApplyDefault|ApplyRetainResources); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if len(cl.retained) != 3 {
		t.Errorf("retained %d resources, want 3", len(cl.retained))
	}
}

func TestApplyReleased(t *testing.T) {
	env := newTestEnv(t, descriptor.DefaultSettings())
	b := newQuadBindings(t, env, quadProgram(t, env))
	b.Release()
	if _, err := b.Apply(newFakeList(), ApplyDefault); !errors.Is(err, ErrReleased) {
		t.Errorf("Apply after Release error = %v, want ErrReleased", err)
	}
	if _, err := b.Apply(nil, ApplyDefault); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("Apply(nil) error = %v, want ErrInvalidValue", err)
	}
}

func TestApplyChangesOnlyAcrossBindings(t *testing.T) {
	env := newTestEnv(t, descriptor.DefaultSettings())
	p := quadProgram(t, env)
	first := newQuadBindings(t, env, p)
	same, err := CreateCopy(first, nil, 0)
	if err != nil {
		t.Fatalf("CreateCopy failed: %v", err)
	}
	defer same.Release()
	other, err := CreateCopy(first, []Value{Views("Overlay", env.texture(t, "other"))}, 0)
	if err != nil {
		t.Fatalf("CreateCopy failed: %v", err)
	}
	defer other.Release()

	cl := newFakeList()
	tests := []struct {
		name    string
		b       *Bindings
		mutable int
		skipped int
	}{
		{"first", first, 1, 0},
		{"value-identical copy", same, 0, 1},
		{"changed overlay", other, 1, 0},
		{"back to first", first, 1, 0},
	}
	for _, tt := range tests {
		stats, err := tt.b.Apply(cl, ApplyChangesOnly)
		if err != nil {
			t.Fatalf("%s: Apply failed: %v", tt.name, err)
		}
		if stats.MutableGroups != tt.mutable || stats.Skipped != tt.skipped {
			t.Errorf("%s: stats = %+v, want %d mutable, %d skipped", tt.name, stats, tt.mutable, tt.skipped)
		}
	}
}

func TestApplyRootConstantPerApply(t *testing.T) {
	env := newTestEnv(t, descriptor.DefaultSettings())
	p := env.program(t, "tinted",
		[]shader.Argument{uniformArg("Tint", 0, 0, 16), textureArg("Tex", 0, 1)},
		Accessor{Argument: Arg("Tint"), ValueType: ValueRootConstantBuffer},
	)
	red := bytes.Repeat([]byte{0xAA}, 16)
	blue := bytes.Repeat([]byte{0xBB}, 16)
	b, err := Create(p, []Value{Constant("Tint", red), Views("Tex", env.texture(t, "tex"))}, 0)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer b.Release()

	constantBuffer := func(key BoundGroup) hal.Buffer {
		t.Helper()
		for _, e := range key.entries {
			if e.binding == 0 {
				return e.desc.Buffer
			}
		}
		t.Fatalf("group %d binds no root constant", key.Group)
		return nil
	}
	read := func(buf hal.Buffer) []byte {
		t.Helper()
		m, err := env.dev.HAL().MapBuffer(buf, 0, 16)
		if err != nil {
			t.Fatalf("MapBuffer failed: %v", err)
		}
		return append([]byte(nil), unsafe.Slice((*byte)(m.Ptr), 16)...)
	}

	cl := newFakeList()
	if _, err := b.Apply(cl, ApplyDefault); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	firstKey, _ := cl.BoundGroup(0)
	firstBuf := constantBuffer(firstKey)

	if err := mustGet(t, b, "Tint").SetRootConstant(blue); err != nil {
		t.Fatalf("SetRootConstant failed: %v", err)
	}
	stats, err := b.Apply(cl, ApplyDefault)
	if err != nil {
		t.Fatalf("second Apply failed: %v", err)
	}
	if stats.MutableGroups != 1 {
		t.Errorf("stats = %+v, want the tint group rebound", stats)
	}
	secondKey, _ := cl.BoundGroup(0)
	secondBuf := constantBuffer(secondKey)
	if secondBuf == firstBuf {
		t.Fatal("second apply wrote into the buffer the first draw reads")
	}
	if got := read(firstBuf); !bytes.Equal(got, red) {
		t.Errorf("first draw reads %x, want %x", got, red)
	}
	if got := read(secondBuf); !bytes.Equal(got, blue) {
		t.Errorf("second draw reads %x, want %x", got, blue)
	}
	if env.pool.Pending(env.pool.FrameIndex()) == 0 {
		t.Error("replaced constant buffer not handed to the release pool")
	}

	// Unchanged values keep the buffer.
	stats, err = b.Apply(cl, ApplyDefault)
	if err != nil {
		t.Fatalf("third Apply failed: %v", err)
	}
	if stats.MutableGroups != 0 || stats.Skipped != 1 {
		t.Errorf("third stats = %+v, want the group skipped", stats)
	}
	if b.constants != secondBuf {
		t.Error("constant buffer replaced without a new value")
	}
}

func TestApplyRejectsIncompleteGroups(t *testing.T) {
	env := newTestEnv(t, descriptor.DefaultSettings())
	arr := textureArg("Layers", 0, 0)
	arr.Count = 4
	output := shader.Argument{
		Name:          "Output",
		Stages:        gputypes.ShaderStageFragment,
		Kind:          shader.KindStorageTexture,
		Group:         1,
		Binding:       0,
		Count:         1,
		ViewDimension: gputypes.TextureViewDimension2D,
	}
	p := env.program(t, "incomplete", []shader.Argument{arr, output},
		Accessor{Argument: Arg("Output"), Optional: true})

	layers := make([]resource.View, 2)
	for i := range layers {
		layers[i] = env.texture(t, "layer")
	}
	b, err := Create(p, []Value{Views("Layers", layers...)}, 0)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer b.Release()

	wantUnbound := func(name string) {
		t.Helper()
		_, err := b.Apply(newFakeList(), ApplyDefault)
		var ue *UnboundArgumentsError
		if !errors.As(err, &ue) {
			t.Fatalf("Apply error = %v, want UnboundArgumentsError", err)
		}
		if len(ue.Arguments) != 1 || ue.Arguments[0].Name != name {
			t.Errorf("unbound = %v, want [%s]", ue.Arguments, name)
		}
	}

	// Two of four array slots filled.
	wantUnbound("Layers")

	// The optional storage texture has no value.
	for len(layers) < 4 {
		layers = append(layers, env.texture(t, "layer"))
	}
	if err := mustGet(t, b, "Layers").SetResourceViews(layers); err != nil {
		t.Fatalf("SetResourceViews failed: %v", err)
	}
	wantUnbound("Output")
}
