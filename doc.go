// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package platform is the seam between a rendering engine and the graphics
// backend it runs on.
//
// # Overview
//
// A [Platform] answers host environment queries and creates, exactly once,
// the [Driver] that executes the engine's command stream. The engine picks
// a backend by name, hands it a [DriverConfig] and an optional
// [SharedContext], and owns the returned driver until it calls
// [Driver.Destroy].
//
// Two backends are provided:
//   - wgpu: hardware rendering on a gogpu/wgpu HAL device
//   - noop: accepts every command and does no GPU work, for headless runs
//     and tests
//
// Backends register themselves from init, so importing one is enough:
//
//	import (
//		"github.com/gogpu/platform"
//		_ "github.com/gogpu/platform/noop"
//		_ "github.com/gogpu/platform/wgpu"
//	)
//
//	p, d, err := platform.Open(nil, platform.DefaultDriverConfig(),
//		platform.BackendWGPU, platform.BackendNoop)
//	if err != nil {
//		return err // no backend could create a driver; do not render
//	}
//	defer p.Close()
//	defer d.Destroy()
//
// # Single-shot creation
//
// CreateDriver succeeds at most once per Platform. A failed attempt leaves
// the platform in [StateCreationFailed]; retrying means creating a new
// platform, which [Open] does for every backend it tries.
//
// # Configuration
//
// [DriverConfig] is a plain value. Zero fields select defaults, and
// [LoadDriverConfig] reads it from TOML. Backends that cannot honor an
// option either degrade it as documented in their package or fail with
// [ErrUnsupportedConfig].
//
// # Errors
//
// Creation failures are [*CreationError] values, command failures are
// [*CommandError] values. Both wrap the sentinel errors of this package.
// Using a destroyed handle terminates the driver unless
// DriverConfig.DisableHandleUseAfterFreeCheck is set.
//
// # Logging
//
// Nothing is logged by default. Use [SetLogger] to route the structured
// log records of this package and every backend to a [log/slog] handler.
package platform
