// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package noop

import (
	"github.com/gogpu/platform"
)

func init() {
	platform.Register(platform.BackendNoop, func() platform.Platform { return NewPlatform() })
}

// Platform is the headless platform.Platform.
type Platform struct {
	once platform.Once
}

var _ platform.Platform = (*Platform)(nil)

// NewPlatform returns a fresh headless platform.
func NewPlatform() *Platform {
	return &Platform{}
}

// Name returns platform.BackendNoop.
func (p *Platform) Name() string { return platform.BackendNoop }

// OSVersion always returns 0: there is no host graphics stack to version.
func (p *Platform) OSVersion() int { return 0 }

// CreateDriver returns a headless driver. shared is ignored and cfg is
// used with defaults filled in. It fails only when called a second time.
func (p *Platform) CreateDriver(shared platform.SharedContext, cfg platform.DriverConfig) (platform.Driver, error) {
	if err := p.once.Begin(); err != nil {
		return nil, platform.NewCreationError(platform.BackendNoop, err)
	}
	d := newDriver(p, cfg.WithDefaults())
	p.once.Finish(nil)

	platform.Logger().Info("noop: driver created",
		"driver", d.id, "shared", shared != nil)
	return d, nil
}

// State returns the single-shot factory state.
func (p *Platform) State() platform.State { return p.once.State() }

// Close releases the platform. It fails with platform.ErrDriverAlive until
// the driver has been destroyed.
func (p *Platform) Close() error {
	_, err := p.once.Close()
	return err
}
