// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package platform

import (
	"fmt"
	"image/draw"

	"github.com/gogpu/gputypes"
	"github.com/google/uuid"
)

// Handle identifies a resource created by a Driver.
// Handles are unique across resource kinds within one driver and are issued
// in increasing order. The zero Handle is never issued.
type Handle uint32

// NullHandle is the zero handle.
const NullHandle Handle = 0

// IsNull reports whether h is the zero handle.
func (h Handle) IsNull() bool { return h == NullHandle }

// Typed handles. Passing a handle of one kind where another is expected is
// reported as ErrWrongHandleKind.
type (
	BufferHandle  Handle
	TextureHandle Handle
	SamplerHandle Handle
	ProgramHandle Handle
)

// ResourceKind names a kind of driver resource.
type ResourceKind uint8

const (
	KindBuffer ResourceKind = iota
	KindTexture
	KindSampler
	KindProgram

	// NumResourceKinds is the number of resource kinds.
	NumResourceKinds = 4
)

// ResourceKinds lists every ResourceKind.
var ResourceKinds = [...]ResourceKind{KindBuffer, KindTexture, KindSampler, KindProgram}

func (k ResourceKind) String() string {
	switch k {
	case KindBuffer:
		return "buffer"
	case KindTexture:
		return "texture"
	case KindSampler:
		return "sampler"
	case KindProgram:
		return "program"
	default:
		return fmt.Sprintf("ResourceKind(%d)", uint8(k))
	}
}

// BufferDesc describes a buffer.
type BufferDesc struct {
	Label string
	Size  uint64
	Usage gputypes.BufferUsage
}

// TextureDesc describes a 2D texture.
type TextureDesc struct {
	Label     string
	Width     uint32
	Height    uint32
	MipLevels uint32 // 0 is treated as 1
	Format    gputypes.TextureFormat
	Usage     gputypes.TextureUsage
}

// SamplerDesc describes a sampler.
type SamplerDesc struct {
	Label       string
	MinFilter   gputypes.FilterMode
	MagFilter   gputypes.FilterMode
	AddressMode gputypes.AddressMode
}

// DefaultColorFormat is the render target format programs are built for
// when neither the ProgramDesc nor the shared context names one.
const DefaultColorFormat = gputypes.TextureFormatRGBA8Unorm

// Entry points used when a Stage leaves EntryPoint empty.
const (
	DefaultVertexEntry   = "vs_main"
	DefaultFragmentEntry = "fs_main"
	DefaultComputeEntry  = "cs_main"
)

// Stage is one WGSL shader stage of a program.
type Stage struct {
	Source     string
	EntryPoint string
}

// Entry returns the entry point, or def when none is set.
func (s Stage) Entry(def string) string {
	if s.EntryPoint == "" {
		return def
	}
	return s.EntryPoint
}

// IsZero reports whether the stage is absent.
func (s Stage) IsZero() bool { return s.Source == "" }

// ProgramDesc describes a program. A render program sets Vertex and
// Fragment; a compute program sets Compute only.
//
// A render program only draws into targets of TargetFormat. The zero
// format selects the driver's default colour format.
type ProgramDesc struct {
	Label         string
	Vertex        Stage
	Fragment      Stage
	Compute       Stage
	VertexBuffers []gputypes.VertexBufferLayout
	TargetFormat  gputypes.TextureFormat
}

// IsCompute reports whether the program is a compute program.
func (d *ProgramDesc) IsCompute() bool { return !d.Compute.IsZero() }

// CheckProgramDesc reports a *ProgramDesc that names no valid stage
// combination: a compute stage alone, or a vertex stage with an optional
// fragment stage. The error wraps ErrInvalidCommand.
func CheckProgramDesc(d *ProgramDesc) error {
	switch {
	case d == nil:
		return fmt.Errorf("%w: nil program descriptor", ErrInvalidCommand)
	case d.IsCompute() && (!d.Vertex.IsZero() || !d.Fragment.IsZero()):
		return fmt.Errorf("%w: program mixes compute and render stages", ErrInvalidCommand)
	case !d.IsCompute() && d.Vertex.IsZero():
		return fmt.Errorf("%w: program has no vertex or compute stage", ErrInvalidCommand)
	}
	return nil
}

// RenderPassParams configures BeginRenderPass.
type RenderPassParams struct {
	Clear      bool
	ClearColor gputypes.Color
}

// DrawCall is one non-indexed draw inside a render pass.
type DrawCall struct {
	Program       ProgramHandle
	VertexBuffer  BufferHandle // optional
	VertexCount   uint32
	InstanceCount uint32 // 0 is treated as 1
	FirstVertex   uint32
}

// KindStats holds per-kind resource counters.
type KindStats struct {
	Created   uint64
	Destroyed uint64
	Live      int
}

// Stats is driver instrumentation used by tests and leak checks.
type Stats struct {
	Kinds     [NumResourceKinds]KindStats
	LiveBytes uint64
	Commands  uint64
	Frames    uint64
	Fatal     bool
	Destroyed bool
}

// Kind returns the counters of one resource kind.
func (s Stats) Kind(k ResourceKind) KindStats { return s.Kinds[k] }

// Live returns the number of live handles of every kind.
func (s Stats) Live() int {
	n := 0
	for _, k := range s.Kinds {
		n += k.Live
	}
	return n
}

// Driver executes the command stream of one rendering session.
//
// A Driver is created by Platform.CreateDriver and owned by the caller
// from then on. Commands must be issued from one goroutine at a time; the
// driver executes them in issue order, so the effects of a command are never
// observable before those of an earlier command.
//
// Every create command returns a handle that stays valid until the
// matching destroy command. Destroying a handle twice, or using a destroyed
// handle, is reported as a *CommandError wrapping ErrHandleDestroyed and
// terminates the driver unless DriverConfig.DisableHandleUseAfterFreeCheck
// is set. Recoverable errors leave the driver usable.
//
// Destroy releases every resource the driver still holds and drains all
// pending work before returning.
type Driver interface {
	// Backend returns the name of the backend that created the driver.
	Backend() string

	// ID returns a session id, used to correlate log records.
	ID() uuid.UUID

	// Config returns the effective configuration: the requested one with
	// defaults filled in and any documented degradation applied.
	Config() DriverConfig

	// Limits returns the device limits. They are immutable for the
	// lifetime of the driver.
	Limits() gputypes.Limits

	BeginFrame(frameID uint64) error
	EndFrame(frameID uint64) error

	CreateBuffer(desc *BufferDesc) (BufferHandle, error)
	UpdateBuffer(h BufferHandle, offset uint64, data []byte) error
	DestroyBuffer(h BufferHandle) error

	CreateTexture(desc *TextureDesc) (TextureHandle, error)
	UpdateTexture(h TextureHandle, data []byte) error
	DestroyTexture(h TextureHandle) error

	CreateSampler(desc *SamplerDesc) (SamplerHandle, error)
	DestroySampler(h SamplerHandle) error

	CreateProgram(desc *ProgramDesc) (ProgramHandle, error)
	DestroyProgram(h ProgramHandle) error

	// BeginRenderPass starts a render pass targeting a texture created with
	// gputypes.TextureUsageRenderAttachment. Passes do not nest.
	BeginRenderPass(target TextureHandle, params RenderPassParams) error
	Draw(call DrawCall) error
	EndRenderPass() error

	// Dispatch runs a compute program outside of any render pass.
	Dispatch(program ProgramHandle, x, y, z uint32) error

	// ReadPixels copies the texture into dst, scaling when the bounds of
	// dst differ from the texture size. It waits for prior commands.
	ReadPixels(src TextureHandle, dst draw.Image) error

	// Flush hands pending commands to the device without waiting.
	Flush() error

	// Finish blocks until every previously issued command has completed.
	Finish() error

	// Stats returns resource and command counters.
	Stats() Stats

	// Destroy releases every resource of the driver. Calling Destroy
	// again returns ErrDriverDestroyed.
	Destroy() error
}
