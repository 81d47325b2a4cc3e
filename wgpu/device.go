// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"context"
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/platform"
)

// device is the HAL device a driver renders on.
type device struct {
	instance hal.Instance // nil when adopted
	device   hal.Device
	queue    hal.Queue
	limits   gputypes.Limits
	format   gputypes.TextureFormat
	adapter  string

	// external is set for devices adopted from a shared context. They are
	// owned by the host and never destroyed here.
	external bool
}

// release destroys a device the platform created.
func (d *device) release() {
	if d.external {
		return
	}
	if d.device != nil {
		d.device.Destroy()
		d.device = nil
	}
	if d.instance != nil {
		d.instance.Destroy()
		d.instance = nil
	}
}

// halProvider is implemented by shared contexts that expose HAL objects,
// such as the gogpu application context.
type halProvider interface {
	HalDevice() any
	HalQueue() any
}

func adoptShared(shared platform.SharedContext) (*device, error) {
	hp, ok := shared.(halProvider)
	if !ok {
		return nil, fmt.Errorf("%w: %T does not expose HAL types", platform.ErrIncompatibleContext, shared)
	}
	dev, ok := hp.HalDevice().(hal.Device)
	if !ok || dev == nil {
		return nil, fmt.Errorf("%w: HalDevice is not a hal.Device", platform.ErrIncompatibleContext)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is not a hal.Queue", platform.ErrIncompatibleContext)
	}

	d := &device{
		device:   dev,
		queue:    queue,
		limits:   gputypes.DefaultLimits(),
		format:   platform.DefaultColorFormat,
		adapter:  "shared",
		external: true,
	}
	if dp, ok := shared.(gpucontext.DeviceProvider); ok {
		if f := dp.SurfaceFormat(); f != gputypes.TextureFormatUndefined {
			d.format = f
		}
	}
	platform.Logger().Debug("wgpu: adopted shared device", "format", d.format)
	return d, nil
}

// openDevice creates an instance and opens a device, giving up after
// cfg.CreationTimeout. A device that opens after the deadline is released.
func (p *Platform) openDevice(cfg platform.DriverConfig) (*device, error) {
	timeout := cfg.CreationTimeout
	api := p.api
	if api == nil {
		backend, ok := hal.GetBackend(gputypes.BackendVulkan)
		if !ok {
			return nil, fmt.Errorf("%w: vulkan backend not registered", platform.ErrBackendNotAvailable)
		}
		api = backend
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	type result struct {
		dev *device
		err error
	}
	done := make(chan result, 1)
	go func() {
		dev, err := p.open(api, instanceFlags(cfg))
		done <- result{dev, err}
	}()

	select {
	case r := <-done:
		return r.dev, r.err
	case <-ctx.Done():
		go func() {
			if r := <-done; r.err == nil {
				platform.Logger().Warn("wgpu: releasing device opened after timeout", "adapter", r.dev.adapter)
				r.dev.release()
			}
		}()
		return nil, fmt.Errorf("%w after %v", platform.ErrCreationTimeout, timeout)
	}
}

// instanceFlags maps DriverConfig.Validation to the HAL debug and
// validation layers.
func instanceFlags(cfg platform.DriverConfig) gputypes.InstanceFlags {
	if cfg.Validation {
		return gputypes.InstanceFlagsDebug | gputypes.InstanceFlagsValidation
	}
	return gputypes.InstanceFlagsNone
}

func (p *Platform) open(api InstanceCreator, flags gputypes.InstanceFlags) (*device, error) {
	instance, err := api.CreateInstance(&hal.InstanceDescriptor{Flags: flags})
	if err != nil {
		return nil, fmt.Errorf("%w: create instance: %w", platform.ErrBackendNotAvailable, err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, platform.ErrNoDevice
	}
	selected := p.selectAdapter(adapters)

	limits := gputypes.DefaultLimits()
	openDev, err := selected.Adapter.Open(gputypes.Features(0), limits)
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("%w: open %s: %w", platform.ErrNoDevice, selected.Info.Name, err)
	}

	platform.Logger().Info("wgpu: device opened", "adapter", selected.Info.Name)
	return &device{
		instance: instance,
		device:   openDev.Device,
		queue:    openDev.Queue,
		limits:   limits,
		format:   platform.DefaultColorFormat,
		adapter:  selected.Info.Name,
	}, nil
}

// selectAdapter returns the first adapter of the preferred type, else the
// first discrete or integrated GPU, else the first adapter.
func (p *Platform) selectAdapter(adapters []hal.ExposedAdapter) *hal.ExposedAdapter {
	if p.hasPreference {
		for i := range adapters {
			if adapters[i].Info.DeviceType == p.preference {
				return &adapters[i]
			}
		}
	}
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			return &adapters[i]
		}
	}
	return &adapters[0]
}
