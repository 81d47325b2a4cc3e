// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package handle

import (
	"errors"
	"sync/atomic"

	"github.com/gogpu/platform"
)

// Guard holds the command-level state of a driver: destroyed and fatal
// flags and the command counter. It turns raw errors into
// *platform.CommandError values with the fatal policy applied.
type Guard struct {
	checkUseAfterFree bool
	destroyed         atomic.Bool
	fatal             atomic.Bool
	commands          atomic.Uint64
}

// NewGuard creates a guard. When the config disables the use-after-free
// check, ErrHandleDestroyed is reported as recoverable.
func NewGuard(cfg platform.DriverConfig) *Guard {
	return &Guard{checkUseAfterFree: !cfg.DisableHandleUseAfterFreeCheck}
}

// Enter admits a command. It fails once the driver is destroyed or
// terminated.
func (g *Guard) Enter(op string) error {
	if g.destroyed.Load() {
		return &platform.CommandError{Op: op, Err: platform.ErrDriverDestroyed}
	}
	if g.fatal.Load() {
		return &platform.CommandError{Op: op, Err: platform.ErrDriverTerminated}
	}
	g.commands.Add(1)
	return nil
}

// Fail wraps err for op. A destroyed-handle error terminates the driver
// when the use-after-free check is enabled.
func (g *Guard) Fail(op string, h platform.Handle, err error) error {
	ce := &platform.CommandError{Op: op, Handle: h, Err: err}
	if g.checkUseAfterFree && errors.Is(err, platform.ErrHandleDestroyed) {
		g.fatal.Store(true)
		ce.Fatal = true
	}
	return ce
}

// MarkDestroyed flips the destroyed flag. It reports false when the driver
// was already destroyed.
func (g *Guard) MarkDestroyed() bool {
	return g.destroyed.CompareAndSwap(false, true)
}

// Fill copies the flags and the command counter into s.
func (g *Guard) Fill(s *platform.Stats) {
	s.Commands = g.commands.Load()
	s.Fatal = g.fatal.Load()
	s.Destroyed = g.destroyed.Load()
}
