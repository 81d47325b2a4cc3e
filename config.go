// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package platform

import (
	"fmt"
	"math"
	"time"
)

// Default DriverConfig values. A zero field in DriverConfig selects the
// matching default.
const (
	// DefaultHandleArenaSize is the default maximum number of live handles.
	DefaultHandleArenaSize = 16384

	// DefaultMemoryBudgetMB is the default byte budget for buffers and
	// textures (256 MB).
	DefaultMemoryBudgetMB = 256

	// MinMemoryBudgetMB is the smallest accepted memory budget (16 MB).
	MinMemoryBudgetMB = 16

	// MaxMemoryBudgetMB is the largest budget whose byte count fits a uint64.
	MaxMemoryBudgetMB = math.MaxUint64 >> 20

	// DefaultStagingBufferSize is the default upload/readback staging size.
	DefaultStagingBufferSize = 1 << 20

	// DefaultStereoscopicEyeCount is the default eye count for stereo rendering.
	DefaultStereoscopicEyeCount = 2

	// MaxStereoscopicEyeCount is the largest accepted eye count.
	MaxStereoscopicEyeCount = 4

	// DefaultCreationTimeout bounds blocking inside CreateDriver and fence
	// waits inside Finish.
	DefaultCreationTimeout = 5 * time.Second
)

// StereoscopicType selects how stereo views are rendered.
type StereoscopicType uint8

const (
	// StereoscopicNone disables stereo rendering.
	StereoscopicNone StereoscopicType = iota
	// StereoscopicInstanced renders eyes through instancing.
	StereoscopicInstanced
	// StereoscopicMultiview renders eyes through multiview extensions.
	StereoscopicMultiview
)

func (t StereoscopicType) String() string {
	switch t {
	case StereoscopicNone:
		return "none"
	case StereoscopicInstanced:
		return "instanced"
	case StereoscopicMultiview:
		return "multiview"
	default:
		return fmt.Sprintf("StereoscopicType(%d)", uint8(t))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t StereoscopicType) MarshalText() ([]byte, error) {
	if t > StereoscopicMultiview {
		return nil, fmt.Errorf("%w: stereoscopic type %d", ErrInvalidConfig, uint8(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *StereoscopicType) UnmarshalText(b []byte) error {
	switch string(b) {
	case "none", "":
		*t = StereoscopicNone
	case "instanced":
		*t = StereoscopicInstanced
	case "multiview":
		*t = StereoscopicMultiview
	default:
		return fmt.Errorf("%w: stereoscopic type %q", ErrInvalidConfig, b)
	}
	return nil
}

// DriverConfig describes the capabilities and limits requested from the
// driver a Platform creates. It is a plain value: CreateDriver receives a
// copy and nothing in this module mutates it afterwards.
//
// Zero values select documented defaults (see WithDefaults), so
// DriverConfig{} is a valid configuration.
type DriverConfig struct {
	// HandleArenaSize is the maximum number of live handles.
	HandleArenaSize uint32 `toml:"handle_arena_size"`

	// MemoryBudgetMB is the byte budget for buffers and textures, in MB.
	MemoryBudgetMB int `toml:"memory_budget_mb"`

	// Per-kind budgets. Zero means limited only by HandleArenaSize.
	MaxBuffers  int `toml:"max_buffers"`
	MaxTextures int `toml:"max_textures"`
	MaxSamplers int `toml:"max_samplers"`
	MaxPrograms int `toml:"max_programs"`

	// StagingBufferSize is the size of upload/readback staging buffers.
	StagingBufferSize uint64 `toml:"staging_buffer_size"`

	// Validation enables backend validation and extra command checks.
	Validation bool `toml:"validation"`

	// DebugLabels attaches descriptor labels to backend objects.
	DebugLabels bool `toml:"debug_labels"`

	// DisableParallelShaderCompile compiles program stages one at a time.
	DisableParallelShaderCompile bool `toml:"disable_parallel_shader_compile"`

	// DisableHandleUseAfterFreeCheck downgrades use of a destroyed handle
	// from a fatal error to a recoverable one.
	DisableHandleUseAfterFreeCheck bool `toml:"disable_handle_use_after_free_check"`

	StereoscopicType     StereoscopicType `toml:"stereoscopic_type"`
	StereoscopicEyeCount uint8            `toml:"stereoscopic_eye_count"`

	// CreationTimeout bounds CreateDriver and fence waits.
	// LoadDriverConfig reads it as a duration string such as "2s".
	CreationTimeout time.Duration `toml:"-"`
}

// DefaultDriverConfig returns a DriverConfig with every default filled in.
func DefaultDriverConfig() DriverConfig {
	return DriverConfig{}.WithDefaults()
}

// WithDefaults returns a copy of c with zero fields replaced by defaults.
func (c DriverConfig) WithDefaults() DriverConfig {
	if c.HandleArenaSize == 0 {
		c.HandleArenaSize = DefaultHandleArenaSize
	}
	if c.MemoryBudgetMB == 0 {
		c.MemoryBudgetMB = DefaultMemoryBudgetMB
	}
	if c.StagingBufferSize == 0 {
		c.StagingBufferSize = DefaultStagingBufferSize
	}
	if c.StereoscopicEyeCount == 0 {
		c.StereoscopicEyeCount = DefaultStereoscopicEyeCount
	}
	if c.CreationTimeout == 0 {
		c.CreationTimeout = DefaultCreationTimeout
	}
	return c
}

// Validate reports the first field of c that holds an out-of-range value.
// Zero fields are valid; they select defaults.
func (c DriverConfig) Validate() error {
	switch {
	case c.MemoryBudgetMB < 0 || (c.MemoryBudgetMB > 0 && c.MemoryBudgetMB < MinMemoryBudgetMB):
		return fmt.Errorf("%w: memory_budget_mb %d below minimum %d", ErrInvalidConfig, c.MemoryBudgetMB, MinMemoryBudgetMB)
	case uint64(c.MemoryBudgetMB) > MaxMemoryBudgetMB:
		return fmt.Errorf("%w: memory_budget_mb %d above maximum %d", ErrInvalidConfig, c.MemoryBudgetMB, uint64(MaxMemoryBudgetMB))
	case c.MaxBuffers < 0:
		return fmt.Errorf("%w: max_buffers %d", ErrInvalidConfig, c.MaxBuffers)
	case c.MaxTextures < 0:
		return fmt.Errorf("%w: max_textures %d", ErrInvalidConfig, c.MaxTextures)
	case c.MaxSamplers < 0:
		return fmt.Errorf("%w: max_samplers %d", ErrInvalidConfig, c.MaxSamplers)
	case c.MaxPrograms < 0:
		return fmt.Errorf("%w: max_programs %d", ErrInvalidConfig, c.MaxPrograms)
	case c.StereoscopicType > StereoscopicMultiview:
		return fmt.Errorf("%w: stereoscopic_type %d", ErrInvalidConfig, uint8(c.StereoscopicType))
	case c.StereoscopicEyeCount > MaxStereoscopicEyeCount:
		return fmt.Errorf("%w: stereoscopic_eye_count %d above %d", ErrInvalidConfig, c.StereoscopicEyeCount, MaxStereoscopicEyeCount)
	case c.CreationTimeout < 0:
		return fmt.Errorf("%w: creation_timeout %v", ErrInvalidConfig, c.CreationTimeout)
	}
	return nil
}

// MemoryBudgetBytes returns the memory budget in bytes, applying the
// default. Budgets above MaxMemoryBudgetMB saturate.
func (c DriverConfig) MemoryBudgetBytes() uint64 {
	mb := c.MemoryBudgetMB
	if mb <= 0 {
		mb = DefaultMemoryBudgetMB
	}
	if uint64(mb) > MaxMemoryBudgetMB {
		return math.MaxUint64
	}
	return uint64(mb) << 20
}

// ConfigOption modifies a DriverConfig copy.
//
// Example:
//
//	cfg := platform.DefaultDriverConfig().With(
//		platform.WithValidation(true),
//		platform.WithMemoryBudget(512),
//	)
type ConfigOption func(*DriverConfig)

// With returns a copy of c with opts applied in order.
func (c DriverConfig) With(opts ...ConfigOption) DriverConfig {
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithValidation toggles backend validation.
func WithValidation(on bool) ConfigOption {
	return func(c *DriverConfig) { c.Validation = on }
}

// WithDebugLabels toggles debug labels on backend objects.
func WithDebugLabels(on bool) ConfigOption {
	return func(c *DriverConfig) { c.DebugLabels = on }
}

// WithMemoryBudget sets the memory budget in MB.
func WithMemoryBudget(mb int) ConfigOption {
	return func(c *DriverConfig) { c.MemoryBudgetMB = mb }
}

// WithHandleArenaSize sets the maximum number of live handles.
func WithHandleArenaSize(n uint32) ConfigOption {
	return func(c *DriverConfig) { c.HandleArenaSize = n }
}

// WithResourceBudget sets the per-kind handle budgets.
func WithResourceBudget(buffers, textures, samplers, programs int) ConfigOption {
	return func(c *DriverConfig) {
		c.MaxBuffers = buffers
		c.MaxTextures = textures
		c.MaxSamplers = samplers
		c.MaxPrograms = programs
	}
}

// WithStagingBufferSize sets the staging buffer size in bytes.
func WithStagingBufferSize(n uint64) ConfigOption {
	return func(c *DriverConfig) { c.StagingBufferSize = n }
}

// WithParallelShaderCompile toggles parallel compilation of program stages.
func WithParallelShaderCompile(on bool) ConfigOption {
	return func(c *DriverConfig) { c.DisableParallelShaderCompile = !on }
}

// WithUseAfterFreeCheck toggles fatal handling of destroyed handles.
func WithUseAfterFreeCheck(on bool) ConfigOption {
	return func(c *DriverConfig) { c.DisableHandleUseAfterFreeCheck = !on }
}

// WithStereoscopic sets the stereo mode and eye count.
func WithStereoscopic(t StereoscopicType, eyes uint8) ConfigOption {
	return func(c *DriverConfig) {
		c.StereoscopicType = t
		c.StereoscopicEyeCount = eyes
	}
}

// WithCreationTimeout bounds CreateDriver and fence waits.
func WithCreationTimeout(d time.Duration) ConfigOption {
	return func(c *DriverConfig) { c.CreationTimeout = d }
}
