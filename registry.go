// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package platform

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// Backend name constants.
const (
	// BackendWGPU is the hardware backend built on gogpu/wgpu.
	BackendWGPU = "wgpu"
	// BackendNoop is the headless backend that performs no GPU work.
	BackendNoop = "noop"
)

// Factory creates a fresh Platform instance.
type Factory func() Platform

var (
	registryMu sync.RWMutex
	factories  = make(map[string]Factory)
	// Priority order for Default and Open (first available wins).
	backendPriority = []string{BackendWGPU, BackendNoop}
)

// Register registers a platform factory under name.
// Backend packages call it from init:
//
//	import _ "github.com/gogpu/platform/noop"
//
// Registering an existing name replaces the previous factory.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	factories[name] = f
}

// Unregister removes a factory. This is useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(factories, name)
}

// Available returns the registered backend names, sorted.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// IsRegistered reports whether a backend with the given name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := factories[name]
	return ok
}

// New returns a fresh Platform of the named backend.
func New(name string) (Platform, error) {
	registryMu.RLock()
	f, ok := factories[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBackendNotAvailable, name)
	}
	p := f()
	if p == nil {
		return nil, fmt.Errorf("%w: %q", ErrBackendNotAvailable, name)
	}
	return p, nil
}

// Default returns a fresh Platform of the highest-priority registered
// backend, or nil if none is registered.
func Default() Platform {
	for _, name := range candidates(nil) {
		if p, err := New(name); err == nil {
			return p
		}
	}
	return nil
}

// candidates returns names when given, else the priority list followed by
// the remaining registered backends.
func candidates(names []string) []string {
	if len(names) > 0 {
		return names
	}
	out := make([]string, 0, len(backendPriority))
	for _, name := range backendPriority {
		if IsRegistered(name) {
			out = append(out, name)
		}
	}
	for _, name := range Available() {
		if !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	return out
}

// Open creates a platform and its driver, trying the named backends in
// order (or every registered backend by priority when names is empty).
//
// Each attempt uses a fresh Platform; a platform whose CreateDriver failed
// is closed and never reused. When every attempt fails the returned error
// joins the *CreationError of each attempt, and the engine must not render.
// Listing BackendNoop last gives the headless fallback:
//
//	p, d, err := platform.Open(nil, cfg, platform.BackendWGPU, platform.BackendNoop)
func Open(shared SharedContext, cfg DriverConfig, names ...string) (Platform, Driver, error) {
	names = candidates(names)
	if len(names) == 0 {
		return nil, nil, ErrBackendNotAvailable
	}

	var errs []error
	for _, name := range names {
		p, err := New(name)
		if err != nil {
			errs = append(errs, NewCreationError(name, err))
			continue
		}
		d, err := p.CreateDriver(shared, cfg)
		if err != nil {
			Logger().Warn("platform: backend unavailable", "backend", name, "err", err)
			errs = append(errs, err)
			if cerr := p.Close(); cerr != nil {
				Logger().Warn("platform: close failed platform", "backend", name, "err", cerr)
			}
			continue
		}
		Logger().Info("platform: driver created", "backend", name, "driver", d.ID())
		return p, d, nil
	}
	return nil, nil, errors.Join(errs...)
}
