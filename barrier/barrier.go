// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package barrier accumulates resource state transitions and flushes them
// to a command encoder as one native batch.
//
// A Set holds at most one barrier per (type, resource). Adding a transition
// for a resource that already has one pending extends it, so a chain
// S0→S1→S2 recorded in one batch is submitted as the single transition
// S0→S2.
package barrier

import (
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rhi/internal/logger"
	"github.com/gogpu/rhi/resource"
	"github.com/gogpu/wgpu/hal"
)

// Type distinguishes state transitions from queue ownership transfers.
type Type uint8

const (
	TypeStateTransition Type = iota
	TypeOwnerTransition
)

func (t Type) String() string {
	if t == TypeOwnerTransition {
		return "OwnerTransition"
	}
	return "StateTransition"
}

// Key identifies a barrier within a Set.
type Key struct {
	Type     Type
	Resource *resource.Resource
}

// StateChange is a transition between two resource states.
type StateChange struct {
	Before resource.State
	After  resource.State
}

// OwnerChange is a transfer between two queue families.
type OwnerChange struct {
	Before uint32
	After  uint32
}

// Barrier is one pending transition.
type Barrier struct {
	Type     Type
	Resource *resource.Resource
	State    StateChange
	Owner    OwnerChange
}

// Key returns the identity of b within a Set.
func (b Barrier) Key() Key { return Key{Type: b.Type, Resource: b.Resource} }

// IsNoop reports whether the barrier changes nothing.
func (b Barrier) IsNoop() bool {
	if b.Type == TypeOwnerTransition {
		return b.Owner.Before == b.Owner.After
	}
	return b.State.Before == b.State.After
}

func (b Barrier) String() string {
	if b.Type == TypeOwnerTransition {
		return fmt.Sprintf("%s: queue %d -> %d", b.Resource, b.Owner.Before, b.Owner.After)
	}
	return fmt.Sprintf("%s: %s -> %s", b.Resource, b.State.Before, b.State.After)
}

// AddResult tells what adding a barrier did to a Set.
type AddResult uint8

const (
	// Existing means an identical transition was already pending.
	Existing AddResult = iota
	// Updated means a pending transition of the resource was retargeted.
	Updated
	// Added means the barrier was inserted.
	Added
)

func (r AddResult) String() string {
	switch r {
	case Existing:
		return "Existing"
	case Updated:
		return "Updated"
	default:
		return "Added"
	}
}

// Encoder receives native barrier batches. hal.CommandEncoder satisfies it.
type Encoder interface {
	TransitionBuffers(barriers []hal.BufferBarrier)
	TransitionTextures(barriers []hal.TextureBarrier)
}

// Set is a batch of pending barriers keyed by (type, resource).
type Set struct {
	mu    sync.Mutex
	index map[Key]int
	list  []Barrier
}

// New returns a set holding barriers.
func New(barriers ...Barrier) *Set {
	s := &Set{index: make(map[Key]int, len(barriers))}
	for _, b := range barriers {
		s.Add(b)
	}
	return s
}

// NewTransitions returns a set moving every resource from its current
// tracked state to after. Resources already in after are skipped.
func NewTransitions(resources []*resource.Resource, after resource.State) *Set {
	s := New()
	for _, r := range resources {
		if before := r.State(); before != after {
			s.AddStateTransition(r, before, after)
		}
	}
	return s
}

// Add inserts b or merges it into the pending barrier with the same key.
func (s *Set) Add(b Barrier) AddResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[b.Key()]
	if !ok {
		s.index[b.Key()] = len(s.list)
		s.list = append(s.list, b)
		return Added
	}

	cur := &s.list[i]
	if b.Type == TypeOwnerTransition {
		if cur.Owner.After == b.Owner.After {
			return Existing
		}
		cur.Owner.After = b.Owner.After
		return Updated
	}
	if cur.State.After == b.State.After {
		return Existing
	}
	cur.State.After = b.State.After
	return Updated
}

// AddStateTransition records that r must move from before to after.
func (s *Set) AddStateTransition(r *resource.Resource, before, after resource.State) AddResult {
	return s.Add(Barrier{
		Type:     TypeStateTransition,
		Resource: r,
		State:    StateChange{Before: before, After: after},
	})
}

// AddOwnerTransition records that r must move between queue families.
func (s *Set) AddOwnerTransition(r *resource.Resource, before, after uint32) AddResult {
	return s.Add(Barrier{
		Type:     TypeOwnerTransition,
		Resource: r,
		Owner:    OwnerChange{Before: before, After: after},
	})
}

// Remove drops the barrier with key k and reports whether it existed.
func (s *Set) Remove(k Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[k]
	if !ok {
		return false
	}
	s.list = append(s.list[:i], s.list[i+1:]...)
	delete(s.index, k)
	for j := i; j < len(s.list); j++ {
		s.index[s.list[j].Key()] = j
	}
	return true
}

// RemoveStateTransition drops the pending state transition of r.
func (s *Set) RemoveStateTransition(r *resource.Resource) bool {
	return s.Remove(Key{Type: TypeStateTransition, Resource: r})
}

// Has reports whether a barrier with key k is pending.
func (s *Set) Has(k Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index[k]
	return ok
}

// Get returns the pending barrier with key k.
func (s *Set) Get(k Key) (Barrier, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[k]
	if !ok {
		return Barrier{}, false
	}
	return s.list[i], true
}

// Len returns the number of pending barriers.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.list)
}

// IsEmpty reports whether nothing is pending.
func (s *Set) IsEmpty() bool { return s.Len() == 0 }

// Barriers returns a copy of the pending barriers in insertion order.
func (s *Set) Barriers() []Barrier {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Barrier, len(s.list))
	copy(out, s.list)
	return out
}

// Clear drops every pending barrier.
func (s *Set) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.list = s.list[:0]
	clear(s.index)
}

// ApplyTransitions submits the pending barriers to enc as one batch per
// native object class, then records each resource's new state and owner.
// It returns the number of native barriers encoded. The set is left
// intact so it can be reapplied.
func (s *Set) ApplyTransitions(enc Encoder) int {
	s.mu.Lock()
	pending := make([]Barrier, len(s.list))
	copy(pending, s.list)
	s.mu.Unlock()

	var (
		buffers  []hal.BufferBarrier
		textures []hal.TextureBarrier
	)
	for _, b := range pending {
		if b.IsNoop() || b.Type != TypeStateTransition {
			continue
		}
		if tex, ok := b.Resource.HALTexture(); ok {
			textures = append(textures, hal.TextureBarrier{
				Texture: tex,
				Range:   hal.TextureRange{Aspect: gputypes.TextureAspectAll},
				Usage: hal.TextureUsageTransition{
					OldUsage: b.State.Before.TextureUsage(),
					NewUsage: b.State.After.TextureUsage(),
				},
			})
			continue
		}
		if buf, ok := b.Resource.HALBuffer(); ok {
			buffers = append(buffers, hal.BufferBarrier{
				Buffer: buf,
				Usage: hal.BufferUsageTransition{
					OldUsage: b.State.Before.BufferUsage(),
					NewUsage: b.State.After.BufferUsage(),
				},
			})
		}
	}

	if enc != nil {
		if len(buffers) > 0 {
			enc.TransitionBuffers(buffers)
		}
		if len(textures) > 0 {
			enc.TransitionTextures(textures)
		}
	}

	for _, b := range pending {
		switch b.Type {
		case TypeStateTransition:
			b.Resource.SetState(b.State.After)
		case TypeOwnerTransition:
			b.Resource.SetOwner(b.Owner.After)
		}
	}

	if n := len(buffers) + len(textures); n > 0 {
		logger.Get().Debug("barrier: transitions applied", "buffers", len(buffers), "textures", len(textures))
	}
	return len(buffers) + len(textures)
}
