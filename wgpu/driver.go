// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/google/uuid"

	"github.com/gogpu/platform"
	"github.com/gogpu/platform/internal/handle"
	"github.com/gogpu/platform/internal/parallel"
	"github.com/gogpu/platform/internal/pixels"
)

// maxFramesInFlight is the number of submissions EndFrame leaves running
// before it waits for the oldest one.
const maxFramesInFlight = 2

// Bounds of the back-off between queue polls while waiting.
const (
	pollMinDelay = 50 * time.Microsecond
	pollMaxDelay = 2 * time.Millisecond
)

type buffer struct {
	raw   hal.Buffer
	size  uint64
	usage gputypes.BufferUsage
}

type texture struct {
	raw    hal.Texture
	view   hal.TextureView // render attachments only
	width  uint32
	height uint32
	format gputypes.TextureFormat
	usage  gputypes.TextureUsage
}

type sampler struct {
	raw hal.Sampler
}

type program struct {
	modules []hal.ShaderModule
	layout  hal.PipelineLayout
	render  hal.RenderPipeline
	compute hal.ComputePipeline
	format  gputypes.TextureFormat
}

// submission is a command buffer handed to the queue with the index the
// queue assigned it.
type submission struct {
	cmd   hal.CommandBuffer
	index uint64
}

// grave is a destroyed resource waiting for submission index to complete.
// pending is set while the resource may be referenced by the unsubmitted
// encoder.
type grave struct {
	index   uint64
	pending bool
	value   any
}

// Driver is the hardware platform.Driver.
//
// Commands are recorded into one pending command encoder and submitted by
// Flush, Finish, EndFrame and ReadPixels. Queue writes from UpdateBuffer and
// UpdateTexture submit the pending encoder first so they stay in issue
// order. Destroyed resources are freed once no submitted work can still
// reference them.
type Driver struct {
	id       uuid.UUID
	platform *Platform
	dev      *device
	cfg      platform.DriverConfig
	table    *handle.Table
	guard    *handle.Guard
	pool     *parallel.Pool // nil when stages compile serially

	mu         sync.Mutex
	encoder    hal.CommandEncoder
	pass       hal.RenderPassEncoder
	passTarget *texture
	passH      platform.Handle
	inflight   []submission
	submitted  uint64 // queue index of the last submission
	completed  uint64 // highest queue index seen completed
	graveyard  []grave
	staging    hal.Buffer
	inFrame    bool
	frame      uint64
	frames     uint64
}

var _ platform.Driver = (*Driver)(nil)

func newDriver(p *Platform, dev *device, cfg platform.DriverConfig) *Driver {
	if limit := dev.limits.MaxBufferSize; limit > 0 && cfg.StagingBufferSize > limit {
		platform.Logger().Warn("wgpu: staging buffer size lowered to device limit",
			"requested", cfg.StagingBufferSize, "limit", limit)
		cfg.StagingBufferSize = limit
	}
	d := &Driver{
		id:       uuid.New(),
		platform: p,
		dev:      dev,
		cfg:      cfg,
		table:    handle.NewTable(handle.LimitsFrom(cfg)),
		guard:    handle.NewGuard(cfg),
	}
	if !cfg.DisableParallelShaderCompile {
		d.pool = parallel.NewPool(2)
	}
	platform.Logger().Info("wgpu: driver created",
		"driver", d.id, "adapter", dev.adapter, "shared", dev.external)
	return d
}

func unsupported(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{platform.ErrUnsupportedConfig}, args...)...)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{platform.ErrInvalidCommand}, args...)...)
}

func (d *Driver) label(s string) string {
	if d.cfg.DebugLabels {
		return s
	}
	return ""
}

// Backend returns platform.BackendWGPU.
func (d *Driver) Backend() string { return platform.BackendWGPU }

// ID returns the session id.
func (d *Driver) ID() uuid.UUID { return d.id }

// Config returns the effective config.
func (d *Driver) Config() platform.DriverConfig { return d.cfg }

// Limits returns the limits the device was opened with.
func (d *Driver) Limits() gputypes.Limits { return d.dev.limits }

// BeginFrame opens frame frameID. Frames do not nest.
func (d *Driver) BeginFrame(frameID uint64) error {
	const op = "BeginFrame"
	if err := d.guard.Enter(op); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.inFrame {
		return d.guard.Fail(op, platform.NullHandle, invalid("frame %d still open", d.frame))
	}
	d.inFrame = true
	d.frame = frameID
	return nil
}

// EndFrame closes frame frameID and submits its commands. It waits while
// more than maxFramesInFlight frames are still executing.
func (d *Driver) EndFrame(frameID uint64) error {
	const op = "EndFrame"
	if err := d.guard.Enter(op); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	switch {
	case !d.inFrame:
		return d.guard.Fail(op, platform.NullHandle, invalid("no open frame"))
	case d.frame != frameID:
		return d.guard.Fail(op, platform.NullHandle, invalid("frame %d open, %d ended", d.frame, frameID))
	case d.pass != nil:
		return d.guard.Fail(op, platform.NullHandle, invalid("render pass still open"))
	}
	if err := d.submitLocked(); err != nil {
		return d.guard.Fail(op, platform.NullHandle, err)
	}
	if err := d.waitLocked(maxFramesInFlight); err != nil {
		return d.guard.Fail(op, platform.NullHandle, err)
	}
	d.inFrame = false
	d.frames++
	return nil
}

// CreateBuffer creates a buffer. CopyDst usage is added so UpdateBuffer
// always works.
func (d *Driver) CreateBuffer(desc *platform.BufferDesc) (platform.BufferHandle, error) {
	const op = "CreateBuffer"
	if err := d.guard.Enter(op); err != nil {
		return 0, err
	}
	if desc == nil || desc.Size == 0 {
		return 0, d.guard.Fail(op, platform.NullHandle, invalid("empty buffer"))
	}
	if desc.Size > d.dev.limits.MaxBufferSize {
		return 0, d.guard.Fail(op, platform.NullHandle, invalid("size %d above device limit %d", desc.Size, d.dev.limits.MaxBufferSize))
	}
	if err := d.table.Check(platform.KindBuffer, desc.Size); err != nil {
		return 0, d.guard.Fail(op, platform.NullHandle, err)
	}

	usage := desc.Usage | gputypes.BufferUsageCopyDst
	raw, err := d.dev.device.CreateBuffer(&hal.BufferDescriptor{
		Label: d.label(desc.Label),
		Size:  desc.Size,
		Usage: usage,
	})
	if err != nil {
		return 0, d.guard.Fail(op, platform.NullHandle, fmt.Errorf("create buffer: %w", err))
	}
	h, err := d.table.Alloc(platform.KindBuffer, desc.Size, &buffer{raw: raw, size: desc.Size, usage: desc.Usage})
	if err != nil {
		d.dev.device.DestroyBuffer(raw)
		return 0, d.guard.Fail(op, platform.NullHandle, err)
	}
	platform.Logger().Debug("wgpu: buffer created", "handle", h, "size", desc.Size)
	return platform.BufferHandle(h), nil
}

// UpdateBuffer writes data at offset through the queue.
func (d *Driver) UpdateBuffer(h platform.BufferHandle, offset uint64, data []byte) error {
	const op = "UpdateBuffer"
	if err := d.guard.Enter(op); err != nil {
		return err
	}
	e, err := d.table.Get(platform.Handle(h), platform.KindBuffer)
	if err != nil {
		return d.guard.Fail(op, platform.Handle(h), err)
	}
	b := e.Value.(*buffer)
	end := offset + uint64(len(data))
	if end > b.size {
		return d.guard.Fail(op, platform.Handle(h), invalid("write [%d,%d) past buffer size %d", offset, end, b.size))
	}
	if d.cfg.Validation && (offset%4 != 0 || len(data)%4 != 0) {
		return d.guard.Fail(op, platform.Handle(h), invalid("write [%d,%d) not 4-byte aligned", offset, end))
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pass != nil {
		return d.guard.Fail(op, platform.Handle(h), invalid("update inside a render pass"))
	}
	if err := d.submitLocked(); err != nil {
		return d.guard.Fail(op, platform.Handle(h), err)
	}
	if len(data) > 0 {
		if err := d.dev.queue.WriteBuffer(b.raw, offset, data); err != nil {
			return d.guard.Fail(op, platform.Handle(h), fmt.Errorf("write buffer: %w", err))
		}
	}
	return nil
}

// DestroyBuffer destroys a buffer.
func (d *Driver) DestroyBuffer(h platform.BufferHandle) error {
	return d.destroy("DestroyBuffer", platform.Handle(h), platform.KindBuffer)
}

// CreateTexture creates a 2D texture.
func (d *Driver) CreateTexture(desc *platform.TextureDesc) (platform.TextureHandle, error) {
	const op = "CreateTexture"
	if err := d.guard.Enter(op); err != nil {
		return 0, err
	}
	if desc == nil || desc.Width == 0 || desc.Height == 0 {
		return 0, d.guard.Fail(op, platform.NullHandle, invalid("empty texture"))
	}
	if maxDim := d.dev.limits.MaxTextureDimension2D; desc.Width > maxDim || desc.Height > maxDim {
		return 0, d.guard.Fail(op, platform.NullHandle, invalid("%dx%d above device limit %d", desc.Width, desc.Height, maxDim))
	}
	bpp := uint64(pixels.BytesPerPixel(desc.Format))
	if bpp == 0 {
		bpp = 4
	}
	size := uint64(desc.Width) * uint64(desc.Height) * bpp
	if err := d.table.Check(platform.KindTexture, size); err != nil {
		return 0, d.guard.Fail(op, platform.NullHandle, err)
	}

	tex := &texture{
		width:  desc.Width,
		height: desc.Height,
		format: desc.Format,
		usage:  desc.Usage,
	}
	raw, err := d.dev.device.CreateTexture(&hal.TextureDescriptor{
		Label: d.label(desc.Label),
		Size: hal.Extent3D{
			Width:              desc.Width,
			Height:             desc.Height,
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: max(desc.MipLevels, 1),
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        desc.Format,
		Usage:         desc.Usage | gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		return 0, d.guard.Fail(op, platform.NullHandle, fmt.Errorf("create texture: %w", err))
	}
	tex.raw = raw
	if desc.Usage&gputypes.TextureUsageRenderAttachment != 0 {
		view, err := d.dev.device.CreateTextureView(raw, &hal.TextureViewDescriptor{
			Label:         d.label(desc.Label),
			Format:        desc.Format,
			Dimension:     gputypes.TextureViewDimension2D,
			Aspect:        gputypes.TextureAspectAll,
			MipLevelCount: 1,
		})
		if err != nil {
			d.dev.device.DestroyTexture(raw)
			return 0, d.guard.Fail(op, platform.NullHandle, fmt.Errorf("create texture view: %w", err))
		}
		tex.view = view
	}

	h, err := d.table.Alloc(platform.KindTexture, size, tex)
	if err != nil {
		d.free(tex)
		return 0, d.guard.Fail(op, platform.NullHandle, err)
	}
	platform.Logger().Debug("wgpu: texture created", "handle", h, "width", desc.Width, "height", desc.Height)
	return platform.TextureHandle(h), nil
}

// UpdateTexture replaces the base level of a texture. data holds tightly
// packed rows.
func (d *Driver) UpdateTexture(h platform.TextureHandle, data []byte) error {
	const op = "UpdateTexture"
	if err := d.guard.Enter(op); err != nil {
		return err
	}
	e, err := d.table.Get(platform.Handle(h), platform.KindTexture)
	if err != nil {
		return d.guard.Fail(op, platform.Handle(h), err)
	}
	tex := e.Value.(*texture)
	bpp := pixels.BytesPerPixel(tex.format)
	if bpp == 0 {
		return d.guard.Fail(op, platform.Handle(h), invalid("no uploads for format %v", tex.format))
	}
	if uint64(len(data)) != e.Size {
		return d.guard.Fail(op, platform.Handle(h), invalid("%d bytes for a %d-byte texture", len(data), e.Size))
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pass != nil {
		return d.guard.Fail(op, platform.Handle(h), invalid("update inside a render pass"))
	}
	if err := d.submitLocked(); err != nil {
		return d.guard.Fail(op, platform.Handle(h), err)
	}
	err = d.dev.queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: tex.raw, MipLevel: 0, Aspect: gputypes.TextureAspectAll},
		data,
		&hal.ImageDataLayout{
			Offset:       0,
			BytesPerRow:  tex.width * bpp,
			RowsPerImage: tex.height,
		},
		&hal.Extent3D{Width: tex.width, Height: tex.height, DepthOrArrayLayers: 1},
	)
	if err != nil {
		return d.guard.Fail(op, platform.Handle(h), fmt.Errorf("write texture: %w", err))
	}
	return nil
}

// DestroyTexture destroys a texture. The target of the open render pass
// cannot be destroyed.
func (d *Driver) DestroyTexture(h platform.TextureHandle) error {
	d.mu.Lock()
	target := d.pass != nil && d.passH == platform.Handle(h)
	d.mu.Unlock()
	if target {
		if err := d.guard.Enter("DestroyTexture"); err != nil {
			return err
		}
		return d.guard.Fail("DestroyTexture", platform.Handle(h), invalid("texture is the open render pass target"))
	}
	return d.destroy("DestroyTexture", platform.Handle(h), platform.KindTexture)
}

// CreateSampler creates a sampler. The address mode applies to all axes
// and defaults to clamp-to-edge.
func (d *Driver) CreateSampler(desc *platform.SamplerDesc) (platform.SamplerHandle, error) {
	const op = "CreateSampler"
	if err := d.guard.Enter(op); err != nil {
		return 0, err
	}
	if desc == nil {
		return 0, d.guard.Fail(op, platform.NullHandle, invalid("nil sampler descriptor"))
	}
	if err := d.table.Check(platform.KindSampler, 0); err != nil {
		return 0, d.guard.Fail(op, platform.NullHandle, err)
	}
	addr := desc.AddressMode
	if addr == 0 {
		addr = gputypes.AddressModeClampToEdge
	}
	raw, err := d.dev.device.CreateSampler(&hal.SamplerDescriptor{
		Label:        d.label(desc.Label),
		AddressModeU: addr,
		AddressModeV: addr,
		AddressModeW: addr,
		MagFilter:    desc.MagFilter,
		MinFilter:    desc.MinFilter,
		MipmapFilter: desc.MinFilter,
	})
	if err != nil {
		return 0, d.guard.Fail(op, platform.NullHandle, fmt.Errorf("create sampler: %w", err))
	}
	s := &sampler{raw: raw}
	h, err := d.table.Alloc(platform.KindSampler, 0, s)
	if err != nil {
		d.free(s)
		return 0, d.guard.Fail(op, platform.NullHandle, err)
	}
	return platform.SamplerHandle(h), nil
}

// DestroySampler destroys a sampler.
func (d *Driver) DestroySampler(h platform.SamplerHandle) error {
	return d.destroy("DestroySampler", platform.Handle(h), platform.KindSampler)
}

// CreateProgram compiles and links a program.
func (d *Driver) CreateProgram(desc *platform.ProgramDesc) (platform.ProgramHandle, error) {
	const op = "CreateProgram"
	if err := d.guard.Enter(op); err != nil {
		return 0, err
	}
	if err := platform.CheckProgramDesc(desc); err != nil {
		return 0, d.guard.Fail(op, platform.NullHandle, err)
	}
	if err := d.table.Check(platform.KindProgram, 0); err != nil {
		return 0, d.guard.Fail(op, platform.NullHandle, err)
	}
	prog, err := d.buildProgram(desc)
	if err != nil {
		return 0, d.guard.Fail(op, platform.NullHandle, err)
	}
	h, err := d.table.Alloc(platform.KindProgram, 0, prog)
	if err != nil {
		d.free(prog)
		return 0, d.guard.Fail(op, platform.NullHandle, err)
	}
	platform.Logger().Debug("wgpu: program created", "handle", h, "compute", desc.IsCompute())
	return platform.ProgramHandle(h), nil
}

// DestroyProgram destroys a program.
func (d *Driver) DestroyProgram(h platform.ProgramHandle) error {
	return d.destroy("DestroyProgram", platform.Handle(h), platform.KindProgram)
}

func (d *Driver) destroy(op string, h platform.Handle, kind platform.ResourceKind) error {
	if err := d.guard.Enter(op); err != nil {
		return err
	}
	e, err := d.table.Release(h, kind)
	if err != nil {
		return d.guard.Fail(op, h, err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.encoder != nil || len(d.inflight) > 0 {
		d.graveyard = append(d.graveyard, grave{
			index:   d.submitted,
			pending: d.encoder != nil,
			value:   e.Value,
		})
		return nil
	}
	d.free(e.Value)
	return nil
}

// free destroys the HAL objects behind a resource.
func (d *Driver) free(v any) {
	dev := d.dev.device
	switch r := v.(type) {
	case *buffer:
		dev.DestroyBuffer(r.raw)
	case *texture:
		if r.view != nil {
			dev.DestroyTextureView(r.view)
		}
		if r.raw != nil {
			dev.DestroyTexture(r.raw)
		}
	case *sampler:
		dev.DestroySampler(r.raw)
	case *program:
		if r.render != nil {
			dev.DestroyRenderPipeline(r.render)
		}
		if r.compute != nil {
			dev.DestroyComputePipeline(r.compute)
		}
		if r.layout != nil {
			dev.DestroyPipelineLayout(r.layout)
		}
		for _, m := range r.modules {
			dev.DestroyShaderModule(m)
		}
	}
}

// BeginRenderPass opens a render pass on target.
func (d *Driver) BeginRenderPass(target platform.TextureHandle, params platform.RenderPassParams) error {
	const op = "BeginRenderPass"
	if err := d.guard.Enter(op); err != nil {
		return err
	}
	e, err := d.table.Get(platform.Handle(target), platform.KindTexture)
	if err != nil {
		return d.guard.Fail(op, platform.Handle(target), err)
	}
	tex := e.Value.(*texture)
	if tex.view == nil {
		return d.guard.Fail(op, platform.Handle(target), invalid("texture lacks render attachment usage"))
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pass != nil {
		return d.guard.Fail(op, platform.Handle(target), invalid("render pass already open"))
	}
	if err := d.ensureEncoderLocked(); err != nil {
		return d.guard.Fail(op, platform.Handle(target), err)
	}
	load := gputypes.LoadOpLoad
	if params.Clear {
		load = gputypes.LoadOpClear
	}
	d.pass = d.encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: d.label("platform_render_pass"),
		ColorAttachments: []hal.RenderPassColorAttachment{
			{
				View:       tex.view,
				LoadOp:     load,
				StoreOp:    gputypes.StoreOpStore,
				ClearValue: params.ClearColor,
			},
		},
	})
	d.passTarget = tex
	d.passH = platform.Handle(target)
	return nil
}

// Draw records a non-indexed draw into the open render pass.
func (d *Driver) Draw(call platform.DrawCall) error {
	const op = "Draw"
	if err := d.guard.Enter(op); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pass == nil {
		return d.guard.Fail(op, platform.Handle(call.Program), invalid("draw outside a render pass"))
	}
	e, err := d.table.Get(platform.Handle(call.Program), platform.KindProgram)
	if err != nil {
		return d.guard.Fail(op, platform.Handle(call.Program), err)
	}
	prog := e.Value.(*program)
	if prog.render == nil {
		return d.guard.Fail(op, platform.Handle(call.Program), invalid("draw with a compute program"))
	}
	if prog.format != d.passTarget.format {
		return d.guard.Fail(op, platform.Handle(call.Program), invalid("program targets %v, pass target is %v", prog.format, d.passTarget.format))
	}
	var vb *buffer
	if !platform.Handle(call.VertexBuffer).IsNull() {
		be, err := d.table.Get(platform.Handle(call.VertexBuffer), platform.KindBuffer)
		if err != nil {
			return d.guard.Fail(op, platform.Handle(call.VertexBuffer), err)
		}
		vb = be.Value.(*buffer)
		if d.cfg.Validation && vb.usage&gputypes.BufferUsageVertex == 0 {
			return d.guard.Fail(op, platform.Handle(call.VertexBuffer), invalid("buffer lacks vertex usage"))
		}
	}

	instances := max(call.InstanceCount, 1)
	if d.cfg.StereoscopicType == platform.StereoscopicInstanced {
		instances *= uint32(d.cfg.StereoscopicEyeCount)
	}
	d.pass.SetPipeline(prog.render)
	if vb != nil {
		d.pass.SetVertexBuffer(0, vb.raw, 0)
	}
	d.pass.Draw(call.VertexCount, instances, call.FirstVertex, 0)
	return nil
}

// EndRenderPass closes the open render pass.
func (d *Driver) EndRenderPass() error {
	const op = "EndRenderPass"
	if err := d.guard.Enter(op); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pass == nil {
		return d.guard.Fail(op, platform.NullHandle, invalid("no open render pass"))
	}
	d.pass.End()
	d.pass = nil
	d.passTarget = nil
	d.passH = platform.NullHandle
	return nil
}

// Dispatch records a compute dispatch.
func (d *Driver) Dispatch(prog platform.ProgramHandle, x, y, z uint32) error {
	const op = "Dispatch"
	if err := d.guard.Enter(op); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pass != nil {
		return d.guard.Fail(op, platform.Handle(prog), invalid("dispatch inside a render pass"))
	}
	e, err := d.table.Get(platform.Handle(prog), platform.KindProgram)
	if err != nil {
		return d.guard.Fail(op, platform.Handle(prog), err)
	}
	p := e.Value.(*program)
	if p.compute == nil {
		return d.guard.Fail(op, platform.Handle(prog), invalid("dispatch with a render program"))
	}
	if x == 0 || y == 0 || z == 0 {
		return d.guard.Fail(op, platform.Handle(prog), invalid("empty workgroup count %dx%dx%d", x, y, z))
	}
	if err := d.ensureEncoderLocked(); err != nil {
		return d.guard.Fail(op, platform.Handle(prog), err)
	}
	pass := d.encoder.BeginComputePass(&hal.ComputePassDescriptor{
		Label: d.label("platform_compute_pass"),
	})
	pass.SetPipeline(p.compute)
	pass.Dispatch(x, y, z)
	pass.End()
	return nil
}

// Flush submits pending commands without waiting.
func (d *Driver) Flush() error {
	const op = "Flush"
	if err := d.guard.Enter(op); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pass != nil {
		return d.guard.Fail(op, platform.NullHandle, invalid("flush inside a render pass"))
	}
	if err := d.submitLocked(); err != nil {
		return d.guard.Fail(op, platform.NullHandle, err)
	}
	return nil
}

// Finish submits pending commands and waits for all submitted work.
// Each wait is bounded by DriverConfig.CreationTimeout.
func (d *Driver) Finish() error {
	const op = "Finish"
	if err := d.guard.Enter(op); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pass != nil {
		return d.guard.Fail(op, platform.NullHandle, invalid("finish inside a render pass"))
	}
	if err := d.submitLocked(); err != nil {
		return d.guard.Fail(op, platform.NullHandle, err)
	}
	if err := d.waitLocked(0); err != nil {
		return d.guard.Fail(op, platform.NullHandle, err)
	}
	return nil
}

func (d *Driver) ensureEncoderLocked() error {
	if d.encoder != nil {
		return nil
	}
	enc, err := d.dev.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: d.label("platform_commands"),
	})
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	if err := enc.BeginEncoding(d.label("platform_commands")); err != nil {
		return fmt.Errorf("begin encoding: %w", err)
	}
	d.encoder = enc
	return nil
}

// submitLocked ends the pending encoder and submits it. Submissions the
// queue reports complete are retired on the way.
func (d *Driver) submitLocked() error {
	if d.encoder == nil {
		return nil
	}
	enc := d.encoder
	d.encoder = nil
	cmd, err := enc.EndEncoding()
	if err != nil {
		enc.DiscardEncoding()
		d.settleLocked(d.submitted)
		return fmt.Errorf("end encoding: %w", err)
	}
	index, err := d.dev.queue.Submit([]hal.CommandBuffer{cmd})
	if err != nil {
		d.dev.device.FreeCommandBuffer(cmd)
		d.settleLocked(d.submitted)
		return fmt.Errorf("submit: %w", err)
	}
	d.submitted = index
	d.inflight = append(d.inflight, submission{cmd: cmd, index: index})
	d.settleLocked(index)
	d.retireLocked()
	return nil
}

// settleLocked assigns index to resources destroyed while the encoder was
// open.
func (d *Driver) settleLocked(index uint64) {
	for i := range d.graveyard {
		if d.graveyard[i].pending {
			d.graveyard[i].index = index
			d.graveyard[i].pending = false
		}
	}
}

// retireLocked frees the command buffers of completed submissions and
// the resources that were waiting for them.
func (d *Driver) retireLocked() {
	d.completed = max(d.completed, d.dev.queue.PollCompleted())
	n := 0
	for n < len(d.inflight) && d.inflight[n].index <= d.completed {
		d.dev.device.FreeCommandBuffer(d.inflight[n].cmd)
		d.inflight[n] = submission{}
		n++
	}
	d.inflight = d.inflight[n:]

	n = 0
	for _, g := range d.graveyard {
		if !g.pending && g.index <= d.completed {
			d.free(g.value)
			continue
		}
		d.graveyard[n] = g
		n++
	}
	clear(d.graveyard[n:])
	d.graveyard = d.graveyard[:n]
}

// waitLocked waits until at most keep submissions are in flight. The wait
// is bounded by DriverConfig.CreationTimeout.
func (d *Driver) waitLocked(keep int) error {
	d.retireLocked()
	if len(d.inflight) <= keep {
		return nil
	}
	target := d.inflight[len(d.inflight)-keep-1].index
	deadline := time.Now().Add(d.cfg.CreationTimeout)
	delay := pollMinDelay
	for d.dev.queue.PollCompleted() < target {
		if time.Now().After(deadline) {
			return fmt.Errorf("%w after %v", platform.ErrWaitTimeout, d.cfg.CreationTimeout)
		}
		time.Sleep(delay)
		delay = min(delay*2, pollMaxDelay)
	}
	d.retireLocked()
	return nil
}

// Stats returns resource and command counters.
func (d *Driver) Stats() platform.Stats {
	var s platform.Stats
	d.table.Fill(&s)
	d.guard.Fill(&s)
	d.mu.Lock()
	s.Frames = d.frames
	d.mu.Unlock()
	return s
}

// Destroy submits and waits for pending work, frees every resource and
// releases the device unless it was adopted from a shared context.
func (d *Driver) Destroy() error {
	if !d.guard.MarkDestroyed() {
		return &platform.CommandError{Op: "Destroy", Err: platform.ErrDriverDestroyed}
	}
	log := platform.Logger()

	d.mu.Lock()
	if d.pass != nil {
		d.pass.End()
		d.pass = nil
		d.passTarget = nil
	}
	if err := d.submitLocked(); err != nil {
		log.Warn("wgpu: submit on destroy", "driver", d.id, "err", err)
	}
	idle := true
	if err := d.waitLocked(0); err != nil {
		log.Warn("wgpu: wait on destroy", "driver", d.id, "err", err)
		if err := d.dev.device.WaitIdle(); err != nil {
			idle = false
			log.Warn("wgpu: device not idle, leaking in-flight work and resources",
				"driver", d.id, "inflight", len(d.inflight), "err", err)
		}
	}

	released := d.table.Drain()
	if idle {
		for _, s := range d.inflight {
			d.dev.device.FreeCommandBuffer(s.cmd)
		}
		for _, g := range d.graveyard {
			d.free(g.value)
		}
		for _, e := range released {
			d.free(e.Value)
		}
		if d.staging != nil {
			d.dev.device.DestroyBuffer(d.staging)
		}
	}
	d.inflight = nil
	d.graveyard = nil
	d.staging = nil
	d.mu.Unlock()

	if d.pool != nil {
		d.pool.Close()
	}
	if idle {
		d.dev.release()
	}
	d.platform.once.DriverReleased()

	log.Info("wgpu: driver destroyed", "driver", d.id, "released", len(released), "idle", idle)
	return nil
}
