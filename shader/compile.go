// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package shader

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

// SPIRV compiles the module source to SPIR-V words.
func (m *Module) SPIRV() ([]uint32, error) {
	spirvBytes, err := naga.Compile(m.Source)
	if err != nil {
		return nil, fmt.Errorf("shader: compile %s: %w", m.Label, err)
	}

	// SPIR-V is little-endian 32-bit words.
	code := make([]uint32, len(spirvBytes)/4)
	for i := range code {
		code[i] = binary.LittleEndian.Uint32(spirvBytes[i*4:])
	}
	return code, nil
}

// CreateHALModule creates a native shader module. Backends that consume
// WGSL directly get the source; others get SPIR-V.
func (m *Module) CreateHALModule(device hal.Device, spirv bool) (hal.ShaderModule, error) {
	src := hal.ShaderSource{WGSL: m.Source}
	if spirv {
		code, err := m.SPIRV()
		if err != nil {
			return nil, err
		}
		src = hal.ShaderSource{SPIRV: code}
	}
	sm, err := device.CreateShaderModule(&hal.ShaderModuleDescriptor{Label: m.Label, Source: src})
	if err != nil {
		return nil, fmt.Errorf("shader: create module %s: %w", m.Label, err)
	}
	return sm, nil
}
