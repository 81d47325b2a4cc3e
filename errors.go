// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package platform

import (
	"errors"
	"fmt"
)

// Creation errors. A failed CreateDriver always returns a *CreationError
// wrapping one of these.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not
	// registered or its graphics API cannot be loaded on this host.
	ErrBackendNotAvailable = errors.New("platform: backend not available")

	// ErrNoDevice means that no suitable GPU adapter could be found.
	ErrNoDevice = errors.New("platform: no suitable device found")

	// ErrIncompatibleContext means the shared context cannot be used by the
	// backend's graphics API.
	ErrIncompatibleContext = errors.New("platform: incompatible shared context")

	// ErrUnsupportedConfig means the backend cannot honor a requested
	// DriverConfig option and has no documented fallback for it.
	ErrUnsupportedConfig = errors.New("platform: unsupported driver config")

	// ErrCreationTimeout means device creation did not finish within
	// DriverConfig.CreationTimeout.
	ErrCreationTimeout = errors.New("platform: driver creation timed out")

	// ErrDriverAlreadyCreated is returned by a second CreateDriver call on a
	// platform that already produced a driver.
	ErrDriverAlreadyCreated = errors.New("platform: driver already created")

	// ErrCreationFailed is returned by CreateDriver on a platform whose
	// earlier creation attempt failed. Platforms are single-shot.
	ErrCreationFailed = errors.New("platform: earlier driver creation failed")

	// ErrCreationInProgress is returned when CreateDriver is re-entered
	// while another call on the same platform is still running.
	ErrCreationInProgress = errors.New("platform: driver creation in progress")

	// ErrPlatformClosed is returned by operations on a closed platform.
	ErrPlatformClosed = errors.New("platform: platform closed")

	// ErrDriverAlive is returned by Platform.Close while the driver it
	// created has not been destroyed yet.
	ErrDriverAlive = errors.New("platform: driver still alive")
)

// Configuration errors.
var (
	// ErrInvalidConfig is returned by DriverConfig.Validate.
	ErrInvalidConfig = errors.New("platform: invalid driver config")

	// ErrUnknownConfigOption is returned by LoadDriverConfig for keys that
	// do not name a DriverConfig field.
	ErrUnknownConfigOption = errors.New("platform: unknown driver config option")
)

// Command errors. Driver methods return a *CommandError wrapping one of these.
var (
	// ErrInvalidHandle means the handle is null or was never created by
	// this driver.
	ErrInvalidHandle = errors.New("platform: invalid handle")

	// ErrWrongHandleKind means the handle names a resource of another kind.
	ErrWrongHandleKind = errors.New("platform: wrong handle kind")

	// ErrHandleDestroyed means the handle was already destroyed. Unless
	// DriverConfig.DisableHandleUseAfterFreeCheck is set this is fatal.
	ErrHandleDestroyed = errors.New("platform: handle already destroyed")

	// ErrBudgetExceeded means the command would exceed a DriverConfig budget.
	ErrBudgetExceeded = errors.New("platform: resource budget exceeded")

	// ErrInvalidCommand means the command is not valid in the current
	// driver state, e.g. Draw outside of a render pass.
	ErrInvalidCommand = errors.New("platform: invalid command")

	// ErrWaitTimeout means the device did not complete submitted work
	// within DriverConfig.CreationTimeout.
	ErrWaitTimeout = errors.New("platform: wait for device timed out")

	// ErrDriverTerminated is returned for every command issued after a
	// fatal error. The engine must destroy the driver.
	ErrDriverTerminated = errors.New("platform: driver terminated after fatal error")

	// ErrDriverDestroyed is returned for every command issued after Destroy.
	ErrDriverDestroyed = errors.New("platform: driver destroyed")
)

// CreationError reports a failed CreateDriver call. No driver is returned
// together with a CreationError.
type CreationError struct {
	Backend string
	Err     error
}

func (e *CreationError) Error() string {
	return fmt.Sprintf("platform: create %s driver: %v", e.Backend, e.Err)
}

func (e *CreationError) Unwrap() error { return e.Err }

// NewCreationError wraps err for backend. It returns err unchanged when it
// already is a *CreationError.
func NewCreationError(backend string, err error) error {
	var ce *CreationError
	if errors.As(err, &ce) {
		return err
	}
	return &CreationError{Backend: backend, Err: err}
}

// CommandError reports a failed Driver command.
// Fatal is set when the driver has been terminated by this error; all
// subsequent commands fail with ErrDriverTerminated.
type CommandError struct {
	Op     string
	Handle Handle
	Err    error
	Fatal  bool
}

func (e *CommandError) Error() string {
	s := "platform: " + e.Op
	if e.Handle != NullHandle {
		s += fmt.Sprintf(" (handle %d)", e.Handle)
	}
	s += ": " + e.Err.Error()
	if e.Fatal {
		s += " [fatal]"
	}
	return s
}

func (e *CommandError) Unwrap() error { return e.Err }

// IsFatal reports whether err is a *CommandError that terminated its driver.
func IsFatal(err error) bool {
	var ce *CommandError
	return errors.As(err, &ce) && ce.Fatal
}
