// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package device

import (
	"fmt"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/rhi/internal/logger"
	"github.com/gogpu/wgpu/hal"
)

// Device is an opened hal device together with its queue and the
// instance it came from.
type Device struct {
	name     string
	registry *Registry
	backend  hal.Backend
	instance hal.Instance
	info     gputypes.AdapterInfo
	limits   gputypes.Limits
	native   hal.Device
	queue    hal.Queue

	once sync.Once
	err  error
}

// Name returns the registry name of the backend.
func (d *Device) Name() string { return d.name }

// Backend returns the hal backend variant.
func (d *Device) Backend() gputypes.Backend { return d.backend.Variant() }

// Info returns the adapter description.
func (d *Device) Info() gputypes.AdapterInfo { return d.info }

// Limits returns the adapter limits.
func (d *Device) Limits() gputypes.Limits { return d.limits }

// HAL returns the native device.
func (d *Device) HAL() hal.Device { return d.native }

// Queue returns the native queue.
func (d *Device) Queue() hal.Queue { return d.queue }

// AdapterInfo describes the adapter in gpucontext terms.
func (d *Device) AdapterInfo() gpucontext.AdapterInfo {
	return gpucontext.AdapterInfo{Name: d.info.Name, Type: adapterType(d.info.DeviceType)}
}

func adapterType(t gputypes.DeviceType) gpucontext.AdapterType {
	switch t {
	case gputypes.DeviceTypeDiscreteGPU:
		return gpucontext.AdapterTypeDiscrete
	case gputypes.DeviceTypeIntegratedGPU:
		return gpucontext.AdapterTypeIntegrated
	case gputypes.DeviceTypeCPU:
		return gpucontext.AdapterTypeSoftware
	default:
		return gpucontext.AdapterTypeUnknown
	}
}

func (d *Device) String() string {
	return fmt.Sprintf("%s device %q", d.name, d.info.Name)
}

// Close waits for the device to go idle and destroys it. Later calls
// return the first result.
func (d *Device) Close() error {
	d.registry.forget(d)
	return d.close()
}

func (d *Device) close() error {
	d.once.Do(func() {
		if err := d.native.WaitIdle(); err != nil {
			d.err = fmt.Errorf("device: wait idle on %s: %w", d, err)
			logger.Get().Warn("device: close", "device", d.String(), "err", err)
		}
		d.native.Destroy()
		d.instance.Destroy()
		logger.Get().Info("device: closed", "backend", d.name)
	})
	return d.err
}
