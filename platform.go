// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package platform

import (
	"fmt"
	"sync"
)

// SharedContext is an opaque, caller-owned graphics context handle passed
// through CreateDriver. nil asks the backend to create its own device.
// Neither the Platform nor the Driver ever frees it; the caller must keep it
// valid until the driver is destroyed.
type SharedContext = any

// Platform creates the Driver of one rendering session and answers host
// environment queries.
//
// CreateDriver is single-shot: after the first call, successful or not,
// further calls fail. To retry, create a new Platform. CreateDriver must not
// be called concurrently on the same Platform.
type Platform interface {
	// Name returns the backend name, e.g. "noop" or "wgpu".
	Name() string

	// OSVersion returns a version number for the host OS, or 0 when the
	// notion does not apply. It has no side effects and returns the same
	// value on every call.
	OSVersion() int

	// CreateDriver creates the driver. On failure it returns a
	// *CreationError and no driver. Ownership of the driver moves to the
	// caller.
	CreateDriver(shared SharedContext, cfg DriverConfig) (Driver, error)

	// State returns the single-shot factory state.
	State() State

	// Close releases the platform. It fails with ErrDriverAlive while the
	// created driver has not been destroyed.
	Close() error
}

// State is the single-shot factory state of a Platform.
type State uint8

const (
	StateUninitialized State = iota
	// StateCreating is held while CreateDriver runs.
	StateCreating
	StateDriverCreated
	StateCreationFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateCreating:
		return "creating"
	case StateDriverCreated:
		return "driver-created"
	case StateCreationFailed:
		return "creation-failed"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Once is the single-shot guard backends embed to implement CreateDriver
// and Close. It also tracks whether the created driver is alive, which is
// the only back reference a Platform keeps to its driver.
//
// The zero value is ready to use.
type Once struct {
	mu          sync.Mutex
	state       State
	driverAlive bool
	closed      bool
}

// Begin moves the guard from StateUninitialized to StateCreating.
// Any other state yields the matching error.
func (o *Once) Begin() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrPlatformClosed
	}
	switch o.state {
	case StateUninitialized:
		o.state = StateCreating
		return nil
	case StateCreating:
		return ErrCreationInProgress
	case StateDriverCreated:
		return ErrDriverAlreadyCreated
	default:
		return ErrCreationFailed
	}
}

// Finish ends a creation started with Begin. A nil err records a live
// driver.
func (o *Once) Finish(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		o.state = StateCreationFailed
		return
	}
	o.state = StateDriverCreated
	o.driverAlive = true
}

// DriverReleased records that the created driver has been destroyed.
// Drivers call it from Destroy.
func (o *Once) DriverReleased() {
	o.mu.Lock()
	o.driverAlive = false
	o.mu.Unlock()
}

// State returns the current state.
func (o *Once) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Close marks the guard closed. It reports false and ErrDriverAlive while
// the driver is alive, and false with a nil error when already closed, so
// callers release platform resources exactly once.
func (o *Once) Close() (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.driverAlive {
		return false, ErrDriverAlive
	}
	if o.closed {
		return false, nil
	}
	o.closed = true
	return true, nil
}
