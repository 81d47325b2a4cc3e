// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package wgpu provides the hardware platform backend built on the
// gogpu/wgpu HAL.
//
// Without a shared context the platform creates its own Vulkan instance and
// device. A shared context must expose the host's HAL objects:
//
//	type halProvider interface {
//		HalDevice() any // hal.Device
//		HalQueue() any  // hal.Queue
//	}
//
// The driver then renders on the host's device and never destroys it. When
// the context also implements gpucontext.DeviceProvider, its surface format
// becomes the default target format of programs.
//
// Config handling:
//   - StereoscopicMultiview fails creation with platform.ErrUnsupportedConfig.
//   - StereoscopicInstanced multiplies the instance count of every draw by
//     the eye count.
//   - StagingBufferSize above the device's MaxBufferSize is lowered to the
//     device limit with a warning; Config reports the lowered value.
//   - Validation adds alignment and usage checks to commands.
//   - DebugLabels passes descriptor labels on to HAL objects.
//
// Programs are WGSL, compiled to SPIR-V with naga. The stages of a program
// compile in parallel unless DisableParallelShaderCompile is set.
//
// Importing the package registers it as platform.BackendWGPU.
package wgpu
