// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package resource provides GPU resources, their views and the frame-scoped
// release pool that keeps native objects alive while the GPU reads them.
//
// A Resource is one concrete type for buffers, textures and samplers. What
// differs per backend lives behind the Native interface, chosen when the
// resource is created. The resource exclusively owns its native object;
// Views and argument bindings only reference it.
//
// Resource descriptors are created lazily per view and written into the
// non-shader-visible heap of their kind. Binding copies them from there
// into shader-visible ranges.
package resource
