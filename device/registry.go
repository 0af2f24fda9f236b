// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package device opens hal devices by backend name.
//
// A Registry maps backend names to hal backends and picks the preferred
// one by priority. It is an ordinary value passed to whoever opens
// devices, so tests and applications can register exactly the backends
// they want.
//
//	reg := device.NewHALRegistry()
//	dev, err := reg.Open("") // highest-priority backend
//	if err != nil {
//	    return err
//	}
//	defer reg.Release()
package device

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/rhi/internal/logger"
	"github.com/gogpu/wgpu/hal"
)

// Backend names.
const (
	BackendDX12   = "dx12"
	BackendMetal  = "metal"
	BackendVulkan = "vulkan"
	BackendGL     = "gl"
	BackendNoop   = "noop"
)

// DefaultPriority is the backend order Open uses when no name is given.
var DefaultPriority = []string{BackendDX12, BackendMetal, BackendVulkan, BackendGL, BackendNoop}

var (
	// ErrNoBackend is returned when no backend is registered under a name.
	ErrNoBackend = errors.New("device: backend not registered")

	// ErrNoAdapter is returned when a backend exposes no adapter.
	ErrNoAdapter = errors.New("device: no adapter found")

	// ErrReleased is returned by Open after Release.
	ErrReleased = errors.New("device: registry released")
)

// Registry opens devices of registered backends and closes them on
// Release.
type Registry struct {
	backends *gpucontext.Registry[hal.Backend]

	mu       sync.Mutex
	open     []*Device
	released bool
}

// NewRegistry returns an empty registry. priority orders backends for
// Open(""); it defaults to DefaultPriority.
func NewRegistry(priority ...string) *Registry {
	if len(priority) == 0 {
		priority = DefaultPriority
	}
	return &Registry{
		backends: gpucontext.NewRegistry[hal.Backend](gpucontext.WithPriority(priority...)),
	}
}

// NewHALRegistry returns a registry holding every backend registered with
// hal, usually by importing hal/allbackends or a single backend package.
func NewHALRegistry(priority ...string) *Registry {
	r := NewRegistry(priority...)
	for _, variant := range hal.AvailableBackends() {
		if b, ok := hal.GetBackend(variant); ok {
			r.Register(BackendName(variant), b)
		}
	}
	return r
}

// BackendName returns the registry name of a hal backend variant.
func BackendName(variant gputypes.Backend) string {
	if variant == gputypes.BackendEmpty {
		return BackendNoop
	}
	return strings.ToLower(variant.String())
}

// Register adds b under name, replacing any previous backend of that name.
func (r *Registry) Register(name string, b hal.Backend) {
	r.backends.Register(name, func() hal.Backend { return b })
}

// Unregister removes the backend registered under name.
func (r *Registry) Unregister(name string) { r.backends.Unregister(name) }

// Has reports whether a backend is registered under name.
func (r *Registry) Has(name string) bool { return r.backends.Has(name) }

// Names returns the registered backend names, sorted.
func (r *Registry) Names() []string {
	names := r.backends.Available()
	slices.Sort(names)
	return names
}

// BestName returns the highest-priority registered backend name.
func (r *Registry) BestName() string { return r.backends.BestName() }

// Open creates an instance of the named backend and opens a device on its
// first hardware adapter. An empty name selects BestName.
func (r *Registry) Open(name string) (*Device, error) {
	r.mu.Lock()
	released := r.released
	r.mu.Unlock()
	if released {
		return nil, ErrReleased
	}

	if name == "" {
		name = r.BestName()
	}
	if !r.backends.Has(name) {
		return nil, fmt.Errorf("%w: %q (have %v)", ErrNoBackend, name, r.Names())
	}
	backend := r.backends.Get(name)

	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("device: create %s instance: %w", name, err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("%w: %s", ErrNoAdapter, name)
	}
	selected := selectAdapter(adapters)

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("device: open %s adapter %q: %w", name, selected.Info.Name, err)
	}

	d := &Device{
		name:     name,
		registry: r,
		backend:  backend,
		instance: instance,
		info:     selected.Info,
		limits:   selected.Capabilities.Limits,
		native:   openDev.Device,
		queue:    openDev.Queue,
	}
	r.mu.Lock()
	r.open = append(r.open, d)
	r.mu.Unlock()

	logger.Get().Info("device: opened", "backend", name, "adapter", d.info.Name, "type", d.info.DeviceType)
	return d, nil
}

// selectAdapter prefers hardware adapters over software ones.
func selectAdapter(adapters []hal.ExposedAdapter) *hal.ExposedAdapter {
	for i := range adapters {
		switch adapters[i].Info.DeviceType {
		case gputypes.DeviceTypeDiscreteGPU, gputypes.DeviceTypeIntegratedGPU:
			return &adapters[i]
		}
	}
	return &adapters[0]
}

// Opened returns the number of devices opened and not yet closed.
func (r *Registry) Opened() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.open)
}

func (r *Registry) forget(d *Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.open = slices.DeleteFunc(r.open, func(o *Device) bool { return o == d })
}

// Release closes every device still open. Open fails afterwards.
func (r *Registry) Release() error {
	r.mu.Lock()
	r.released = true
	open := r.open
	r.open = nil
	r.mu.Unlock()

	var errs []error
	for _, d := range open {
		errs = append(errs, d.close())
	}
	return errors.Join(errs...)
}
