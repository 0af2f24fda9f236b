// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package resource

import "errors"

// Resource errors.
var (
	// ErrInvalidSettings is returned for malformed creation settings.
	ErrInvalidSettings = errors.New("resource: invalid settings")

	// ErrUsageMismatch is returned when a view asks for a usage its resource
	// was not created with.
	ErrUsageMismatch = errors.New("resource: view usage not supported by resource")

	// ErrViewOutOfBounds is returned when a view exceeds the extent of its
	// resource.
	ErrViewOutOfBounds = errors.New("resource: view exceeds resource extent")

	// ErrReleased is returned when a released resource is used.
	ErrReleased = errors.New("resource: released")

	// ErrNilResource is returned when a view is built on a nil resource.
	ErrNilResource = errors.New("resource: nil resource")
)
