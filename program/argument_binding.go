// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package program

import (
	"fmt"

	"github.com/gogpu/rhi/descriptor"
	"github.com/gogpu/rhi/resource"
)

// Observer is notified after an argument binding changes value. old and
// updated are nil for root constants.
type Observer func(b *ArgumentBinding, old, updated []resource.View)

// ArgumentBinding holds the value of one program argument within one
// Bindings object. It is not safe for concurrent mutation.
type ArgumentBinding struct {
	info    *ArgumentInfo
	program string

	views []resource.View
	bytes []byte

	set      bool
	setFrame int
	frame    int
	applied  bool

	rng       descriptor.Range
	observers []Observer
}

func newArgumentBinding(program string, info *ArgumentInfo, frame int) *ArgumentBinding {
	return &ArgumentBinding{info: info, program: program, frame: frame}
}

// Argument returns the identity of the bound argument.
func (b *ArgumentBinding) Argument() Argument { return b.info.Argument }

// Info returns the argument description.
func (b *ArgumentBinding) Info() ArgumentInfo { return *b.info }

// Access returns the mutability class.
func (b *ArgumentBinding) Access() Access { return b.info.Accessor.Access }

// ValueType returns how the value reaches the shader.
func (b *ArgumentBinding) ValueType() ValueType { return b.info.Accessor.ValueType }

// IsSet reports whether a value was set.
func (b *ArgumentBinding) IsSet() bool { return b.set }

// Views returns the bound views.
func (b *ArgumentBinding) Views() []resource.View { return append([]resource.View(nil), b.views...) }

// RootConstant returns the bound root constant bytes.
func (b *ArgumentBinding) RootConstant() []byte { return append([]byte(nil), b.bytes...) }

// DescriptorRange returns the reserved descriptor range. It is empty for
// arguments bound without descriptors and before reservation.
func (b *ArgumentBinding) DescriptorRange() descriptor.Range { return b.rng }

// IsAlreadyApplied reports whether the current value was applied to a
// command list.
func (b *ArgumentBinding) IsAlreadyApplied() bool { return b.applied }

// DescriptorHeapKind returns the heap kind the argument's descriptors live
// in: Samplers for samplers, RenderTargets and DepthStencil for target
// writes, ShaderResources otherwise.
func (b *ArgumentBinding) DescriptorHeapKind() descriptor.HeapKind {
	if b.info.HeapKind == descriptor.HeapKindUndefined {
		return descriptor.HeapKindShaderResources
	}
	return b.info.HeapKind
}

// AddObserver registers o for value changes.
func (b *ArgumentBinding) AddObserver(o Observer) { b.observers = append(b.observers, o) }

func (b *ArgumentBinding) setFrameIndex(frame int) { b.frame = frame }

// checkMutable enforces the access class. Constant arguments accept one
// value ever, FrameConstant arguments one value per frame.
func (b *ArgumentBinding) checkMutable() error {
	if !b.set {
		return nil
	}
	switch b.info.Accessor.Access {
	case AccessConstant:
		return &ConstantModificationError{Program: b.program, Argument: b.info.Argument}
	case AccessFrameConstant:
		if b.setFrame == b.frame {
			return &ConstantModificationError{Program: b.program, Argument: b.info.Argument}
		}
	}
	return nil
}

// SetResourceViews binds views to the argument. When the argument already
// has an allocated descriptor range, the view descriptors are copied into
// it immediately.
func (b *ArgumentBinding) SetResourceViews(views []resource.View) error {
	if err := b.checkMutable(); err != nil {
		return err
	}

	switch b.info.Accessor.ValueType {
	case ValueResourceView:
		limit := b.info.DescriptorCount
		if !b.rng.IsEmpty() {
			limit = b.rng.Count
		}
		if uint32(len(views)) > limit {
			return fmt.Errorf("%w: %s of %q got %d views, %d reserved",
				ErrExceedsReservedDescriptors, b.info.Argument, b.program, len(views), limit)
		}
	case ValueBufferAddress:
		if len(views) != 1 || !views[0].IsValid() || views[0].Resource().Kind() != resource.KindBuffer {
			return fmt.Errorf("%w: %s of %q takes exactly one buffer view", ErrInvalidValue, b.info.Argument, b.program)
		}
	default:
		return fmt.Errorf("%w: %s of %q is a %s", ErrInvalidValue, b.info.Argument, b.program, b.info.Accessor.ValueType)
	}

	want := b.info.requiredUsage()
	for i, v := range views {
		if !v.IsValid() {
			return fmt.Errorf("%w: %s of %q: view %d is empty", ErrInvalidValue, b.info.Argument, b.program, i)
		}
		if !v.Usage().Contains(want) {
			return fmt.Errorf("%w: %s of %q: view %d has usage %s, need %s",
				ErrInvalidValue, b.info.Argument, b.program, i, v.Usage(), want)
		}
		if b.info.Accessor.ValueType == ValueResourceView && v.HeapKind() != b.DescriptorHeapKind() {
			return fmt.Errorf("%w: %s of %q: view %d belongs in %s, argument in %s",
				descriptor.ErrKindMismatch, b.info.Argument, b.program, i, v.HeapKind(), b.DescriptorHeapKind())
		}
	}

	// Descriptors are resolved before anything changes, so a failed set
	// leaves the previous value in place.
	if b.rng.IsAllocated() {
		ds, err := b.resolveDescriptors(views)
		if err != nil {
			return err
		}
		if err := b.writeDescriptors(ds); err != nil {
			return err
		}
	}

	old := b.views
	b.views = append([]resource.View(nil), views...)
	b.set = true
	b.setFrame = b.frame
	b.applied = false
	for _, o := range b.observers {
		o(b, old, b.views)
	}
	return nil
}

// SetRootConstant binds bytes to a root constant argument.
func (b *ArgumentBinding) SetRootConstant(value []byte) error {
	if err := b.checkMutable(); err != nil {
		return err
	}
	if !b.info.Accessor.ValueType.IsRootConstant() {
		return fmt.Errorf("%w: %s of %q is a %s", ErrInvalidValue, b.info.Argument, b.program, b.info.Accessor.ValueType)
	}
	if size := b.info.Shader.Size; size > 0 && uint32(len(value)) > size {
		return fmt.Errorf("%w: %s of %q: %d bytes, argument holds %d", ErrInvalidValue, b.info.Argument, b.program, len(value), size)
	}

	b.bytes = append([]byte(nil), value...)
	b.set = true
	b.setFrame = b.frame
	b.applied = false
	for _, o := range b.observers {
		o(b, nil, nil)
	}
	return nil
}

// SetDescriptorRange assigns the argument its slots. The range must be of
// the argument's heap kind and hold every descriptor the argument needs.
func (b *ArgumentBinding) SetDescriptorRange(r descriptor.Range) error {
	if r.Kind() != b.DescriptorHeapKind() {
		return fmt.Errorf("%w: %s of %q: range of %s, argument in %s",
			descriptor.ErrKindMismatch, b.info.Argument, b.program, r.Kind(), b.DescriptorHeapKind())
	}
	if r.Count < b.info.DescriptorCount {
		return fmt.Errorf("%w: %s of %q: range holds %d of %d descriptors",
			ErrExceedsReservedDescriptors, b.info.Argument, b.program, r.Count, b.info.DescriptorCount)
	}
	b.rng = r
	return nil
}

// copyDescriptors writes every bound view's descriptor into the argument's
// range. Slots past the last view are cleared.
func (b *ArgumentBinding) copyDescriptors() error {
	if b.rng.IsEmpty() {
		return nil
	}
	ds, err := b.resolveDescriptors(b.views)
	if err != nil {
		return err
	}
	return b.writeDescriptors(ds)
}

// resolveDescriptors returns the descriptor of every view, read from the
// view's staging slot when it has one.
func (b *ArgumentBinding) resolveDescriptors(views []resource.View) ([]descriptor.Descriptor, error) {
	ds := make([]descriptor.Descriptor, len(views))
	for i, v := range views {
		src, err := v.DefaultSlot()
		if err != nil {
			return nil, fmt.Errorf("program: %s of %q: %w", b.info.Argument, b.program, err)
		}
		if !src.IsEmpty() && src.Heap != b.rng.Heap {
			if src.Kind() != b.rng.Kind() {
				err = fmt.Errorf("%w: copy %s into %s", descriptor.ErrKindMismatch, src.Kind(), b.rng.Kind())
			} else {
				ds[i], err = src.Heap.Slot(src.Offset)
			}
		} else {
			ds[i], err = v.Descriptor()
		}
		if err != nil {
			return nil, fmt.Errorf("program: %s of %q: copy descriptor %d: %w", b.info.Argument, b.program, i, err)
		}
	}
	return ds, nil
}

// writeDescriptors fills the argument's range with ds and clears the rest.
func (b *ArgumentBinding) writeDescriptors(ds []descriptor.Descriptor) error {
	for i := uint32(0); i < b.rng.Count; i++ {
		var d descriptor.Descriptor
		if int(i) < len(ds) {
			d = ds[i]
		}
		if err := b.rng.Heap.SetSlot(b.rng.Offset+i, d); err != nil {
			return fmt.Errorf("program: %s of %q: write descriptor %d: %w", b.info.Argument, b.program, i, err)
		}
	}
	return nil
}
