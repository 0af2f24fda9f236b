// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package descriptor manages descriptor heaps: growable tables of
// descriptor slots of one kind, addressed by stable integer index.
//
// A Heap grows in two steps. Reserve records the requested capacity and
// returns a Range; Allocate realizes it, copying every existing slot into
// the new backing store and bumping the heap generation. Consumers that
// cache anything derived from slot contents compare Generation on their
// next access and rebuild when it moved.
//
// The Allocator owns every heap, designates one shader-visible heap per
// kind and batches deferred growth until CompleteInitialization, which
// waits for the GPU to go idle before any backing store is replaced.
package descriptor
