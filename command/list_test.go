// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package command

import (
	"context"
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rhi/barrier"
	"github.com/gogpu/rhi/program"
	"github.com/gogpu/rhi/resource"
	"github.com/gogpu/rhi/shader"
	"github.com/gogpu/wgpu/hal"
)

func (e *testEnv) view(t *testing.T, name string) resource.View {
	t.Helper()
	return resource.MustView(e.texture(t, name), resource.ViewSettings{})
}

// quadBindings binds a constant texture and sampler in group 0 and a
// mutable texture in group 1.
func (e *testEnv) quadBindings(t *testing.T) *program.Bindings {
	t.Helper()
	fragment := gputypes.ShaderStageFragment
	m, err := shader.NewModule("quad", []shader.EntryPoint{{Name: "fs_main", Stage: fragment}}, []shader.Argument{
		{Name: "Tex", Stages: fragment, Kind: shader.KindTexture, Group: 0, Binding: 0, Count: 1,
			ViewDimension: gputypes.TextureViewDimension2D, SampleType: gputypes.TextureSampleTypeFloat},
		{Name: "Samp", Stages: fragment, Kind: shader.KindSampler, Group: 0, Binding: 1, Count: 1},
		{Name: "Overlay", Stages: fragment, Kind: shader.KindTexture, Group: 1, Binding: 0, Count: 1,
			ViewDimension: gputypes.TextureViewDimension2D, SampleType: gputypes.TextureSampleTypeFloat},
	})
	if err != nil {
		t.Fatalf("NewModule failed: %v", err)
	}
	p, err := program.New(e.dev, e.noopQ, program.Settings{
		Name:    "quad",
		Shaders: []*shader.Module{m},
		Accessors: []program.Accessor{
			{Argument: program.Arg("Tex"), Access: program.AccessConstant},
			{Argument: program.Arg("Samp"), Access: program.AccessConstant},
		},
	})
	if err != nil {
		t.Fatalf("program.New failed: %v", err)
	}
	t.Cleanup(p.Release)

	smp, err := e.dev.NewSampler(resource.DefaultSamplerSettings())
	if err != nil {
		t.Fatalf("NewSampler failed: %v", err)
	}
	b, err := program.Create(p, []program.Value{
		program.Views("Tex", e.view(t, "tex")),
		program.Views("Samp", resource.MustView(smp, resource.ViewSettings{})),
		program.Views("Overlay", e.view(t, "overlay")),
	}, 0)
	if err != nil {
		t.Fatalf("program.Create failed: %v", err)
	}
	t.Cleanup(b.Release)
	return b
}

func TestSetProgramBindings(t *testing.T) {
	env := newTestEnv(t)
	q := env.queue(t, nil, 0)
	b := env.quadBindings(t)
	l := newList(t, q, "quad")

	if err := l.SetProgramBindings(b, program.ApplyDefault); err != nil {
		t.Fatalf("SetProgramBindings failed: %v", err)
	}
	s := l.Stats()
	if s.Barriers != 2 || s.BindGroups != 2 || s.Bindings != 1 {
		t.Errorf("stats after first apply = %+v, want 2 barriers, 2 groups", s)
	}
	if k, ok := l.BoundGroup(1); !ok || k.Bindings != b.Index() {
		t.Errorf("BoundGroup(1) = %+v, %v", k, ok)
	}

	if err := l.SetProgramBindings(b, program.ApplyDefault); err != nil {
		t.Fatalf("second SetProgramBindings failed: %v", err)
	}
	s = l.Stats()
	if s.Barriers != 2 || s.BindGroups != 2 || s.SkippedGroups != 2 {
		t.Errorf("stats after reapply = %+v, want nothing new and 2 skipped", s)
	}

	if err := l.BeginRenderPass(&hal.RenderPassDescriptor{Label: "quad"}); err != nil {
		t.Fatalf("BeginRenderPass failed: %v", err)
	}
	if err := l.Draw(4, 1); err != nil {
		t.Fatalf("Draw failed: %v", err)
	}
	if _, err := q.Submit(context.Background(), l); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if l.Stats().Draws != 1 {
		t.Errorf("Draws = %d, want 1", l.Stats().Draws)
	}
}

func TestPassForgetsBindGroups(t *testing.T) {
	env := newTestEnv(t)
	q := env.queue(t, nil, 0)
	b := env.quadBindings(t)
	l := newList(t, q, "passes")
	defer l.Discard()

	if err := l.SetProgramBindings(b, program.ApplyDefault); err != nil {
		t.Fatalf("SetProgramBindings failed: %v", err)
	}
	if err := l.BeginComputePass(&hal.ComputePassDescriptor{}); err != nil {
		t.Fatalf("BeginComputePass failed: %v", err)
	}
	if _, ok := l.BoundGroup(0); !ok {
		t.Fatal("groups set before the pass were dropped when it opened")
	}
	if err := l.Dispatch(1, 1, 1); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	l.EndPass()
	if _, ok := l.BoundGroup(0); ok {
		t.Error("BoundGroup(0) survived EndPass")
	}
	if l.AppliedBindings() != 0 {
		t.Errorf("AppliedBindings() = %d after EndPass, want 0", l.AppliedBindings())
	}

	// Nothing is known to be bound, so the next apply binds again.
	if err := l.SetProgramBindings(b, program.ApplyDefault); err != nil {
		t.Fatalf("SetProgramBindings failed: %v", err)
	}
	if got := l.Stats().BindGroups; got != 4 {
		t.Errorf("BindGroups = %d, want 4", got)
	}
}

func TestBarrierInPassIsSticky(t *testing.T) {
	env := newTestEnv(t)
	q := env.queue(t, nil, 0)
	tex := env.texture(t, "target")
	l := newList(t, q, "bad")

	if err := l.BeginRenderPass(&hal.RenderPassDescriptor{}); err != nil {
		t.Fatalf("BeginRenderPass failed: %v", err)
	}
	set := barrier.NewTransitions([]*resource.Resource{tex}, resource.StateShaderResource)
	l.SetResourceBarriers(set)
	if !errors.Is(l.Err(), ErrBarrierInPass) {
		t.Fatalf("Err() = %v, want ErrBarrierInPass", l.Err())
	}
	l.EndPass()

	if _, err := q.Submit(context.Background(), l); !errors.Is(err, ErrBarrierInPass) {
		t.Errorf("Submit error = %v, want ErrBarrierInPass", err)
	}
	if q.LastSubmission() != 0 {
		t.Errorf("LastSubmission() = %d, want nothing submitted", q.LastSubmission())
	}
}

func TestPassCommandsNeedPass(t *testing.T) {
	env := newTestEnv(t)
	q := env.queue(t, nil, 0)
	l := newList(t, q, "nopass")
	defer l.Discard()

	if err := l.Draw(3, 1); !errors.Is(err, ErrNoPass) {
		t.Errorf("Draw error = %v, want ErrNoPass", err)
	}
	if err := l.Dispatch(1, 1, 1); !errors.Is(err, ErrNoPass) {
		t.Errorf("Dispatch error = %v, want ErrNoPass", err)
	}
	if err := l.BeginRenderPass(&hal.RenderPassDescriptor{}); err != nil {
		t.Fatal(err)
	}
	if err := l.Dispatch(1, 1, 1); !errors.Is(err, ErrNoPass) {
		t.Errorf("Dispatch in render pass error = %v, want ErrNoPass", err)
	}
}

func TestCommitOnce(t *testing.T) {
	env := newTestEnv(t)
	q := env.queue(t, nil, 0)
	l := newList(t, q, "once")

	if _, err := l.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if _, err := l.Commit(); !errors.Is(err, ErrCommitted) {
		t.Errorf("second Commit error = %v, want ErrCommitted", err)
	}
	if err := l.BeginRenderPass(&hal.RenderPassDescriptor{}); !errors.Is(err, ErrCommitted) {
		t.Errorf("BeginRenderPass after Commit error = %v, want ErrCommitted", err)
	}
}

func TestDiscardUnretains(t *testing.T) {
	env := newTestEnv(t)
	q := env.queue(t, nil, 0)
	tex := env.texture(t, "scratch")
	l := newList(t, q, "discarded")

	l.RetainResources(tex)
	tex.Release()
	l.Discard()

	if env.pool.Pending(0) != 1 {
		t.Errorf("pool Pending(0) = %d after Discard, want 1", env.pool.Pending(0))
	}
	if _, err := q.Submit(context.Background(), l); !errors.Is(err, ErrCommitted) {
		t.Errorf("Submit of discarded list error = %v, want ErrCommitted", err)
	}
}
