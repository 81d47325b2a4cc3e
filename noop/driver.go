// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package noop

import (
	"fmt"
	"image/draw"
	"slices"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/google/uuid"

	"github.com/gogpu/platform"
	"github.com/gogpu/platform/internal/handle"
	"github.com/gogpu/platform/internal/pixels"
)

// Command is one accepted driver command.
type Command struct {
	// Seq numbers accepted commands from 1 in issue order.
	Seq uint64
	// Op is the name of the Driver method, e.g. "CreateBuffer".
	Op string
	// Handle is the resource the command created or used, if any.
	Handle platform.Handle
	// Frame is the frame open when the command was issued, or 0.
	Frame uint64
}

type buffer struct {
	size uint64
}

type texture struct {
	width, height uint32
	format        gputypes.TextureFormat
	usage         gputypes.TextureUsage
	clear         gputypes.Color
}

type program struct {
	compute bool
	format  gputypes.TextureFormat
}

// Driver is the headless platform.Driver.
//
// The zero value is not usable; drivers come from Platform.CreateDriver.
type Driver struct {
	id       uuid.UUID
	platform *Platform
	cfg      platform.DriverConfig
	limits   gputypes.Limits
	table    *handle.Table
	guard    *handle.Guard

	mu       sync.Mutex
	commands []Command
	frame    uint64
	frames   uint64
	inFrame  bool
	pass     *texture
	passH    platform.Handle
}

var _ platform.Driver = (*Driver)(nil)

func newDriver(p *Platform, cfg platform.DriverConfig) *Driver {
	return &Driver{
		id:       uuid.New(),
		platform: p,
		cfg:      cfg,
		limits:   gputypes.DefaultLimits(),
		table:    handle.NewTable(handle.LimitsFrom(cfg)),
		guard:    handle.NewGuard(cfg),
	}
}

// Backend returns platform.BackendNoop.
func (d *Driver) Backend() string { return platform.BackendNoop }

// ID returns the session id.
func (d *Driver) ID() uuid.UUID { return d.id }

// Config returns the config with defaults filled in.
func (d *Driver) Config() platform.DriverConfig { return d.cfg }

// Limits returns gputypes.DefaultLimits.
func (d *Driver) Limits() gputypes.Limits { return d.limits }

// Commands returns a copy of the accepted commands in issue order.
func (d *Driver) Commands() []Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.commands)
}

func (d *Driver) passOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pass != nil
}

func (d *Driver) record(op string, h platform.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var frame uint64
	if d.inFrame {
		frame = d.frame
	}
	d.commands = append(d.commands, Command{
		Seq:    uint64(len(d.commands)) + 1,
		Op:     op,
		Handle: h,
		Frame:  frame,
	})
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{platform.ErrInvalidCommand}, args...)...)
}

// BeginFrame opens frame frameID. Frames do not nest.
func (d *Driver) BeginFrame(frameID uint64) error {
	const op = "BeginFrame"
	if err := d.guard.Enter(op); err != nil {
		return err
	}
	d.mu.Lock()
	if d.inFrame {
		d.mu.Unlock()
		return d.guard.Fail(op, platform.NullHandle, invalid("frame %d still open", d.frame))
	}
	d.inFrame = true
	d.frame = frameID
	d.mu.Unlock()
	d.record(op, platform.NullHandle)
	return nil
}

// EndFrame closes frame frameID.
func (d *Driver) EndFrame(frameID uint64) error {
	const op = "EndFrame"
	if err := d.guard.Enter(op); err != nil {
		return err
	}
	d.mu.Lock()
	switch {
	case !d.inFrame:
		d.mu.Unlock()
		return d.guard.Fail(op, platform.NullHandle, invalid("no open frame"))
	case d.frame != frameID:
		d.mu.Unlock()
		return d.guard.Fail(op, platform.NullHandle, invalid("frame %d open, %d ended", d.frame, frameID))
	case d.pass != nil:
		d.mu.Unlock()
		return d.guard.Fail(op, platform.NullHandle, invalid("render pass still open"))
	}
	d.mu.Unlock()
	d.record(op, platform.NullHandle)
	d.mu.Lock()
	d.inFrame = false
	d.frames++
	d.mu.Unlock()
	return nil
}

// CreateBuffer allocates a buffer handle.
func (d *Driver) CreateBuffer(desc *platform.BufferDesc) (platform.BufferHandle, error) {
	const op = "CreateBuffer"
	if err := d.guard.Enter(op); err != nil {
		return 0, err
	}
	if desc == nil || desc.Size == 0 {
		return 0, d.guard.Fail(op, platform.NullHandle, invalid("empty buffer"))
	}
	if desc.Size > d.limits.MaxBufferSize {
		return 0, d.guard.Fail(op, platform.NullHandle, invalid("size %d above device limit %d", desc.Size, d.limits.MaxBufferSize))
	}
	h, err := d.table.Alloc(platform.KindBuffer, desc.Size, &buffer{size: desc.Size})
	if err != nil {
		return 0, d.guard.Fail(op, platform.NullHandle, err)
	}
	d.record(op, h)
	return platform.BufferHandle(h), nil
}

// UpdateBuffer checks the write range; no data is stored.
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
	if offset+uint64(len(data)) > b.size {
		return d.guard.Fail(op, platform.Handle(h), invalid("write [%d,%d) past buffer size %d", offset, offset+uint64(len(data)), b.size))
	}
	if d.passOpen() {
		return d.guard.Fail(op, platform.Handle(h), invalid("update inside a render pass"))
	}
	d.record(op, platform.Handle(h))
	return nil
}

// DestroyBuffer releases a buffer handle.
func (d *Driver) DestroyBuffer(h platform.BufferHandle) error {
	return d.destroy("DestroyBuffer", platform.Handle(h), platform.KindBuffer)
}

// CreateTexture allocates a texture handle. Its contents read back as
// transparent black until a render pass clears it.
func (d *Driver) CreateTexture(desc *platform.TextureDesc) (platform.TextureHandle, error) {
	const op = "CreateTexture"
	if err := d.guard.Enter(op); err != nil {
		return 0, err
	}
	if desc == nil || desc.Width == 0 || desc.Height == 0 {
		return 0, d.guard.Fail(op, platform.NullHandle, invalid("empty texture"))
	}
	if maxDim := d.limits.MaxTextureDimension2D; desc.Width > maxDim || desc.Height > maxDim {
		return 0, d.guard.Fail(op, platform.NullHandle, invalid("%dx%d above device limit %d", desc.Width, desc.Height, maxDim))
	}
	bpp := uint64(pixels.BytesPerPixel(desc.Format))
	if bpp == 0 {
		bpp = 4
	}
	size := uint64(desc.Width) * uint64(desc.Height) * bpp
	h, err := d.table.Alloc(platform.KindTexture, size, &texture{
		width:  desc.Width,
		height: desc.Height,
		format: desc.Format,
		usage:  desc.Usage,
	})
	if err != nil {
		return 0, d.guard.Fail(op, platform.NullHandle, err)
	}
	d.record(op, h)
	return platform.TextureHandle(h), nil
}

// UpdateTexture checks that data covers the base level; no data is stored.
func (d *Driver) UpdateTexture(h platform.TextureHandle, data []byte) error {
	const op = "UpdateTexture"
	if err := d.guard.Enter(op); err != nil {
		return err
	}
	e, err := d.table.Get(platform.Handle(h), platform.KindTexture)
	if err != nil {
		return d.guard.Fail(op, platform.Handle(h), err)
	}
	if tex := e.Value.(*texture); pixels.BytesPerPixel(tex.format) == 0 {
		return d.guard.Fail(op, platform.Handle(h), invalid("no uploads for format %v", tex.format))
	}
	if uint64(len(data)) != e.Size {
		return d.guard.Fail(op, platform.Handle(h), invalid("%d bytes for a %d-byte texture", len(data), e.Size))
	}
	if d.passOpen() {
		return d.guard.Fail(op, platform.Handle(h), invalid("update inside a render pass"))
	}
	d.record(op, platform.Handle(h))
	return nil
}

// DestroyTexture releases a texture handle.
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

// CreateSampler allocates a sampler handle.
func (d *Driver) CreateSampler(desc *platform.SamplerDesc) (platform.SamplerHandle, error) {
	const op = "CreateSampler"
	if err := d.guard.Enter(op); err != nil {
		return 0, err
	}
	if desc == nil {
		return 0, d.guard.Fail(op, platform.NullHandle, invalid("nil sampler descriptor"))
	}
	h, err := d.table.Alloc(platform.KindSampler, 0, nil)
	if err != nil {
		return 0, d.guard.Fail(op, platform.NullHandle, err)
	}
	d.record(op, h)
	return platform.SamplerHandle(h), nil
}

// DestroySampler releases a sampler handle.
func (d *Driver) DestroySampler(h platform.SamplerHandle) error {
	return d.destroy("DestroySampler", platform.Handle(h), platform.KindSampler)
}

// CreateProgram allocates a program handle. Stages are checked for
// presence only; nothing is compiled.
func (d *Driver) CreateProgram(desc *platform.ProgramDesc) (platform.ProgramHandle, error) {
	const op = "CreateProgram"
	if err := d.guard.Enter(op); err != nil {
		return 0, err
	}
	if err := platform.CheckProgramDesc(desc); err != nil {
		return 0, d.guard.Fail(op, platform.NullHandle, err)
	}
	format := desc.TargetFormat
	if format == gputypes.TextureFormatUndefined {
		format = platform.DefaultColorFormat
	}
	h, err := d.table.Alloc(platform.KindProgram, 0, &program{compute: desc.IsCompute(), format: format})
	if err != nil {
		return 0, d.guard.Fail(op, platform.NullHandle, err)
	}
	d.record(op, h)
	return platform.ProgramHandle(h), nil
}

// DestroyProgram releases a program handle.
func (d *Driver) DestroyProgram(h platform.ProgramHandle) error {
	return d.destroy("DestroyProgram", platform.Handle(h), platform.KindProgram)
}

func (d *Driver) destroy(op string, h platform.Handle, kind platform.ResourceKind) error {
	if err := d.guard.Enter(op); err != nil {
		return err
	}
	if _, err := d.table.Release(h, kind); err != nil {
		return d.guard.Fail(op, h, err)
	}
	d.record(op, h)
	return nil
}

// BeginRenderPass opens a render pass on target. With params.Clear set the
// clear colour becomes the texture's read-back value.
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
	if tex.usage&gputypes.TextureUsageRenderAttachment == 0 {
		return d.guard.Fail(op, platform.Handle(target), invalid("texture lacks render attachment usage"))
	}

	d.mu.Lock()
	if d.pass != nil {
		d.mu.Unlock()
		return d.guard.Fail(op, platform.Handle(target), invalid("render pass already open"))
	}
	d.pass = tex
	d.passH = platform.Handle(target)
	if params.Clear {
		tex.clear = params.ClearColor
	}
	d.mu.Unlock()
	d.record(op, platform.Handle(target))
	return nil
}

// Draw records a draw inside the open render pass.
func (d *Driver) Draw(call platform.DrawCall) error {
	const op = "Draw"
	if err := d.guard.Enter(op); err != nil {
		return err
	}
	d.mu.Lock()
	target := d.pass
	d.mu.Unlock()
	if target == nil {
		return d.guard.Fail(op, platform.Handle(call.Program), invalid("draw outside a render pass"))
	}
	e, err := d.table.Get(platform.Handle(call.Program), platform.KindProgram)
	if err != nil {
		return d.guard.Fail(op, platform.Handle(call.Program), err)
	}
	prog := e.Value.(*program)
	if prog.compute {
		return d.guard.Fail(op, platform.Handle(call.Program), invalid("draw with a compute program"))
	}
	if prog.format != target.format {
		return d.guard.Fail(op, platform.Handle(call.Program), invalid("program targets %v, pass target is %v", prog.format, target.format))
	}
	if !platform.Handle(call.VertexBuffer).IsNull() {
		if _, err := d.table.Get(platform.Handle(call.VertexBuffer), platform.KindBuffer); err != nil {
			return d.guard.Fail(op, platform.Handle(call.VertexBuffer), err)
		}
	}
	d.record(op, platform.Handle(call.Program))
	return nil
}

// EndRenderPass closes the open render pass.
func (d *Driver) EndRenderPass() error {
	const op = "EndRenderPass"
	if err := d.guard.Enter(op); err != nil {
		return err
	}
	d.mu.Lock()
	if d.pass == nil {
		d.mu.Unlock()
		return d.guard.Fail(op, platform.NullHandle, invalid("no open render pass"))
	}
	h := d.passH
	d.pass = nil
	d.passH = platform.NullHandle
	d.mu.Unlock()
	d.record(op, h)
	return nil
}

// Dispatch records a compute dispatch.
func (d *Driver) Dispatch(prog platform.ProgramHandle, x, y, z uint32) error {
	const op = "Dispatch"
	if err := d.guard.Enter(op); err != nil {
		return err
	}
	d.mu.Lock()
	open := d.pass != nil
	d.mu.Unlock()
	if open {
		return d.guard.Fail(op, platform.Handle(prog), invalid("dispatch inside a render pass"))
	}
	e, err := d.table.Get(platform.Handle(prog), platform.KindProgram)
	if err != nil {
		return d.guard.Fail(op, platform.Handle(prog), err)
	}
	if !e.Value.(*program).compute {
		return d.guard.Fail(op, platform.Handle(prog), invalid("dispatch with a render program"))
	}
	if x == 0 || y == 0 || z == 0 {
		return d.guard.Fail(op, platform.Handle(prog), invalid("empty workgroup count %dx%dx%d", x, y, z))
	}
	d.record(op, platform.Handle(prog))
	return nil
}

// ReadPixels fills dst with the last clear colour of src, or transparent
// black when src was never cleared.
func (d *Driver) ReadPixels(src platform.TextureHandle, dst draw.Image) error {
	const op = "ReadPixels"
	if err := d.guard.Enter(op); err != nil {
		return err
	}
	if dst == nil {
		return d.guard.Fail(op, platform.Handle(src), invalid("nil destination image"))
	}
	e, err := d.table.Get(platform.Handle(src), platform.KindTexture)
	if err != nil {
		return d.guard.Fail(op, platform.Handle(src), err)
	}
	tex := e.Value.(*texture)
	if tex.usage&gputypes.TextureUsageCopySrc == 0 {
		return d.guard.Fail(op, platform.Handle(src), invalid("texture lacks copy source usage"))
	}
	if pixels.BytesPerPixel(tex.format) == 0 {
		return d.guard.Fail(op, platform.Handle(src), invalid("no read back for format %v", tex.format))
	}

	d.mu.Lock()
	open := d.pass != nil
	c := tex.clear
	d.mu.Unlock()
	if open {
		return d.guard.Fail(op, platform.Handle(src), invalid("read back inside a render pass"))
	}
	if !dst.Bounds().Empty() {
		pixels.Blit(dst, pixels.Solid(int(tex.width), int(tex.height), c))
	}
	d.record(op, platform.Handle(src))
	return nil
}

// Flush records a flush.
func (d *Driver) Flush() error {
	if err := d.guard.Enter("Flush"); err != nil {
		return err
	}
	if d.passOpen() {
		return d.guard.Fail("Flush", platform.NullHandle, invalid("flush inside a render pass"))
	}
	d.record("Flush", platform.NullHandle)
	return nil
}

// Finish records a finish. There is never pending work.
func (d *Driver) Finish() error {
	if err := d.guard.Enter("Finish"); err != nil {
		return err
	}
	if d.passOpen() {
		return d.guard.Fail("Finish", platform.NullHandle, invalid("finish inside a render pass"))
	}
	d.record("Finish", platform.NullHandle)
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

// Destroy releases every live handle and detaches from the platform.
func (d *Driver) Destroy() error {
	if !d.guard.MarkDestroyed() {
		return &platform.CommandError{Op: "Destroy", Err: platform.ErrDriverDestroyed}
	}
	released := d.table.Drain()
	d.mu.Lock()
	d.pass = nil
	d.inFrame = false
	d.mu.Unlock()
	d.platform.once.DriverReleased()

	platform.Logger().Info("noop: driver destroyed",
		"driver", d.id, "released", len(released))
	return nil
}
