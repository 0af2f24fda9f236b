// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package barrier

import (
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rhi/resource"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

// newTestDevice creates a resource device on the noop backend.
func newTestDevice(t *testing.T) *resource.Device {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() {
		openDev.Device.Destroy()
		instance.Destroy()
	})
	return resource.NewDevice(openDev.Device, nil, nil)
}

// recordingEncoder records the batches it receives.
type recordingEncoder struct {
	buffers  [][]hal.BufferBarrier
	textures [][]hal.TextureBarrier
}

func (e *recordingEncoder) TransitionBuffers(b []hal.BufferBarrier) {
	e.buffers = append(e.buffers, b)
}

func (e *recordingEncoder) TransitionTextures(b []hal.TextureBarrier) {
	e.textures = append(e.textures, b)
}

func newTexture(t *testing.T, d *resource.Device, name string) *resource.Resource {
	t.Helper()
	tex, err := d.NewTexture(resource.TextureSettings{
		Name:   name,
		Width:  8,
		Height: 8,
		Format: gputypes.TextureFormatRGBA8Unorm,
	})
	if err != nil {
		t.Fatalf("NewTexture failed: %v", err)
	}
	return tex
}

func TestAddStateTransitionMerges(t *testing.T) {
	d := newTestDevice(t)
	r := newTexture(t, d, "target")
	s := New()

	if got := s.AddStateTransition(r, resource.StateCommon, resource.StateRenderTarget); got != Added {
		t.Errorf("first add = %v, want Added", got)
	}
	if got := s.AddStateTransition(r, resource.StateCommon, resource.StateRenderTarget); got != Existing {
		t.Errorf("repeated add = %v, want Existing", got)
	}
	if got := s.AddStateTransition(r, resource.StateRenderTarget, resource.StateShaderResource); got != Updated {
		t.Errorf("retarget = %v, want Updated", got)
	}
	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", s.Len())
	}

	b, ok := s.Get(Key{Type: TypeStateTransition, Resource: r})
	if !ok {
		t.Fatal("Get() found nothing")
	}
	if b.State.Before != resource.StateCommon || b.State.After != resource.StateShaderResource {
		t.Errorf("merged barrier = %s, want Common -> ShaderResource", b)
	}
}

func TestOwnerAndStateAreSeparateKeys(t *testing.T) {
	d := newTestDevice(t)
	r := newTexture(t, d, "shared")
	s := New()

	s.AddStateTransition(r, resource.StateCommon, resource.StateCopyDest)
	if got := s.AddOwnerTransition(r, 0, 1); got != Added {
		t.Errorf("owner add = %v, want Added", got)
	}
	if got := s.AddOwnerTransition(r, 0, 2); got != Updated {
		t.Errorf("owner retarget = %v, want Updated", got)
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
	if !s.Has(Key{Type: TypeOwnerTransition, Resource: r}) {
		t.Error("owner transition missing")
	}
}

func TestRemoveKeepsOrder(t *testing.T) {
	d := newTestDevice(t)
	a := newTexture(t, d, "a")
	b := newTexture(t, d, "b")
	c := newTexture(t, d, "c")
	s := New()
	for _, r := range []*resource.Resource{a, b, c} {
		s.AddStateTransition(r, resource.StateCommon, resource.StateShaderResource)
	}

	if !s.RemoveStateTransition(b) {
		t.Fatal("RemoveStateTransition(b) = false")
	}
	if s.RemoveStateTransition(b) {
		t.Error("second RemoveStateTransition(b) = true")
	}

	got := s.Barriers()
	if len(got) != 2 || got[0].Resource != a || got[1].Resource != c {
		t.Fatalf("Barriers() = %v, want [a c]", got)
	}
	// Index must stay consistent after removal.
	if res := s.AddStateTransition(c, resource.StateCommon, resource.StateCopySource); res != Updated {
		t.Errorf("update after remove = %v, want Updated", res)
	}

	s.Clear()
	if !s.IsEmpty() {
		t.Error("IsEmpty() = false after Clear")
	}
}

func TestApplyTransitions(t *testing.T) {
	d := newTestDevice(t)
	tex := newTexture(t, d, "color")
	same := newTexture(t, d, "idle")
	buf, err := d.NewBuffer(resource.BufferSettings{Name: "vertices", Size: 64, ViewKind: resource.ViewKindVertex})
	if err != nil {
		t.Fatalf("NewBuffer failed: %v", err)
	}

	s := New()
	s.AddStateTransition(tex, resource.StateUndefined, resource.StateRenderTarget)
	s.AddStateTransition(tex, resource.StateRenderTarget, resource.StateShaderResource)
	s.AddStateTransition(same, resource.StateShaderResource, resource.StateShaderResource)
	s.AddStateTransition(buf, resource.StateCopyDest, resource.StateVertexBuffer)
	s.AddOwnerTransition(buf, 0, 3)

	enc := &recordingEncoder{}
	if n := s.ApplyTransitions(enc); n != 2 {
		t.Fatalf("ApplyTransitions() = %d, want 2", n)
	}

	if len(enc.textures) != 1 || len(enc.textures[0]) != 1 {
		t.Fatalf("texture batches = %v, want one batch of one", enc.textures)
	}
	tb := enc.textures[0][0]
	if tb.Usage.OldUsage != gputypes.TextureUsageNone || tb.Usage.NewUsage != gputypes.TextureUsageTextureBinding {
		t.Errorf("texture usage = %v -> %v", tb.Usage.OldUsage, tb.Usage.NewUsage)
	}
	if len(enc.buffers) != 1 || enc.buffers[0][0].Usage.NewUsage != gputypes.BufferUsageVertex {
		t.Errorf("buffer batches = %v", enc.buffers)
	}

	if tex.State() != resource.StateShaderResource {
		t.Errorf("texture state = %v, want ShaderResource", tex.State())
	}
	if buf.State() != resource.StateVertexBuffer || buf.Owner() != 3 {
		t.Errorf("buffer state/owner = %v/%d", buf.State(), buf.Owner())
	}
}

func TestNewTransitionsSkipsCurrentState(t *testing.T) {
	d := newTestDevice(t)
	a := newTexture(t, d, "a")
	b := newTexture(t, d, "b")
	b.SetState(resource.StateShaderResource)

	s := NewTransitions([]*resource.Resource{a, b}, resource.StateShaderResource)
	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", s.Len())
	}
	if !s.Has(Key{Type: TypeStateTransition, Resource: a}) {
		t.Error("transition of a missing")
	}
	s.ApplyTransitions(nil)
	if a.State() != resource.StateShaderResource {
		t.Errorf("a state = %v after apply without encoder", a.State())
	}
}

func TestAddResultString(t *testing.T) {
	if Existing.String() != "Existing" || Updated.String() != "Updated" || Added.String() != "Added" {
		t.Error("AddResult.String() mismatch")
	}
}
