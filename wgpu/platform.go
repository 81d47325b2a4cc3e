// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/platform"
	"github.com/gogpu/platform/internal/osinfo"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

func init() {
	platform.Register(platform.BackendWGPU, func() platform.Platform { return NewPlatform() })
}

// InstanceCreator creates HAL instances. hal.GetBackend results and
// hal/noop.API satisfy it.
type InstanceCreator interface {
	CreateInstance(desc *hal.InstanceDescriptor) (hal.Instance, error)
}

// Option configures a Platform.
type Option func(*Platform)

// WithAPI sets the HAL API used when no shared context is given.
// The default is the registered Vulkan backend.
func WithAPI(api InstanceCreator) Option {
	return func(p *Platform) { p.api = api }
}

// WithAdapterPreference selects the adapter type to prefer. Without it
// discrete and integrated GPUs are preferred over other adapters.
func WithAdapterPreference(t gputypes.DeviceType) Option {
	return func(p *Platform) {
		p.preference = t
		p.hasPreference = true
	}
}

// Platform is the hardware platform.Platform.
type Platform struct {
	once          platform.Once
	api           InstanceCreator
	preference    gputypes.DeviceType
	hasPreference bool
}

var _ platform.Platform = (*Platform)(nil)

// NewPlatform returns a fresh platform.
func NewPlatform(opts ...Option) *Platform {
	p := &Platform{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns platform.BackendWGPU.
func (p *Platform) Name() string { return platform.BackendWGPU }

// OSVersion returns the host OS release encoded as
// major*10000 + minor*100 + patch, or 0 when it cannot be determined.
// Minor and patch saturate at 99. Windows 11 reports major 11.
func (p *Platform) OSVersion() int { return osinfo.Version() }

// CreateDriver creates the driver, adopting shared when it is non-nil.
// Failures are returned as *platform.CreationError.
func (p *Platform) CreateDriver(shared platform.SharedContext, cfg platform.DriverConfig) (platform.Driver, error) {
	if err := p.once.Begin(); err != nil {
		return nil, platform.NewCreationError(platform.BackendWGPU, err)
	}
	d, err := p.createDriver(shared, cfg)
	p.once.Finish(err)
	if err != nil {
		platform.Logger().Warn("wgpu: driver creation failed", "err", err)
		return nil, platform.NewCreationError(platform.BackendWGPU, err)
	}
	return d, nil
}

func (p *Platform) createDriver(shared platform.SharedContext, cfg platform.DriverConfig) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.WithDefaults()
	if cfg.StereoscopicType == platform.StereoscopicMultiview {
		return nil, unsupported("stereoscopic_type %s", cfg.StereoscopicType)
	}

	var (
		dev *device
		err error
	)
	if shared != nil {
		dev, err = adoptShared(shared)
	} else {
		dev, err = p.openDevice(cfg)
	}
	if err != nil {
		return nil, err
	}
	return newDriver(p, dev, cfg), nil
}

// State returns the single-shot factory state.
func (p *Platform) State() platform.State { return p.once.State() }

// Close releases the platform. It fails with platform.ErrDriverAlive until
// the driver has been destroyed.
func (p *Platform) Close() error {
	_, err := p.once.Close()
	return err
}
