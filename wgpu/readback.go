// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"fmt"
	"image/draw"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/platform"
	"github.com/gogpu/platform/internal/pixels"
)

// copyPitchAlignment is the row pitch alignment of texture-to-buffer copies.
const copyPitchAlignment = 256

// ReadPixels copies src into dst through the staging buffer, a band of
// rows at a time, waiting for all prior commands first.
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
	bpp := pixels.BytesPerPixel(tex.format)
	if bpp == 0 {
		return d.guard.Fail(op, platform.Handle(src), invalid("no read back for format %v", tex.format))
	}

	bytesPerRow := tex.width * bpp
	alignedBytesPerRow := (bytesPerRow + copyPitchAlignment - 1) &^ (copyPitchAlignment - 1)
	bandRows := uint32(min(d.cfg.StagingBufferSize/uint64(alignedBytesPerRow), uint64(tex.height)))
	if bandRows == 0 {
		return d.guard.Fail(op, platform.Handle(src), fmt.Errorf("%w: staging buffer of %d bytes holds no %d-byte row",
			platform.ErrBudgetExceeded, d.cfg.StagingBufferSize, alignedBytesPerRow))
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pass != nil {
		return d.guard.Fail(op, platform.Handle(src), invalid("read back inside a render pass"))
	}
	if err := d.ensureStagingLocked(); err != nil {
		return d.guard.Fail(op, platform.Handle(src), err)
	}

	data := make([]byte, uint64(alignedBytesPerRow)*uint64(tex.height))
	for y := uint32(0); y < tex.height; y += bandRows {
		rows := min(bandRows, tex.height-y)
		band := data[uint64(y)*uint64(alignedBytesPerRow) : uint64(y+rows)*uint64(alignedBytesPerRow)]
		if err := d.readBandLocked(tex, y, rows, alignedBytesPerRow, band); err != nil {
			return d.guard.Fail(op, platform.Handle(src), err)
		}
	}

	img, err := pixels.FromRows(data, int(tex.width), int(tex.height), alignedBytesPerRow, tex.format)
	if err != nil {
		return d.guard.Fail(op, platform.Handle(src), fmt.Errorf("%w: %w", platform.ErrInvalidCommand, err))
	}
	if !dst.Bounds().Empty() {
		pixels.Blit(dst, img)
	}
	return nil
}

func (d *Driver) ensureStagingLocked() error {
	if d.staging != nil {
		return nil
	}
	buf, err := d.dev.device.CreateBuffer(&hal.BufferDescriptor{
		Label: d.label("platform_staging"),
		Size:  d.cfg.StagingBufferSize,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create staging buffer: %w", err)
	}
	d.staging = buf
	return nil
}

// readBandLocked copies rows [y, y+rows) of tex into out, submitting
// everything pending before the copy and waiting for it.
func (d *Driver) readBandLocked(tex *texture, y, rows, bytesPerRow uint32, out []byte) error {
	if err := d.ensureEncoderLocked(); err != nil {
		return err
	}
	renderable := tex.usage&gputypes.TextureUsageRenderAttachment != 0
	if renderable {
		d.encoder.TransitionTextures([]hal.TextureBarrier{{
			Texture: tex.raw,
			Usage: hal.TextureUsageTransition{
				OldUsage: gputypes.TextureUsageRenderAttachment,
				NewUsage: gputypes.TextureUsageCopySrc,
			},
		}})
	}
	d.encoder.CopyTextureToBuffer(tex.raw, d.staging, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{Offset: 0, BytesPerRow: bytesPerRow, RowsPerImage: rows},
		TextureBase: hal.ImageCopyTexture{
			Texture:  tex.raw,
			MipLevel: 0,
			Origin:   hal.Origin3D{X: 0, Y: y, Z: 0},
			Aspect:   gputypes.TextureAspectAll,
		},
		Size: hal.Extent3D{Width: tex.width, Height: rows, DepthOrArrayLayers: 1},
	}})
	if renderable {
		d.encoder.TransitionTextures([]hal.TextureBarrier{{
			Texture: tex.raw,
			Usage: hal.TextureUsageTransition{
				OldUsage: gputypes.TextureUsageCopySrc,
				NewUsage: gputypes.TextureUsageRenderAttachment,
			},
		}})
	}

	if err := d.submitLocked(); err != nil {
		return err
	}
	if err := d.waitLocked(0); err != nil {
		return err
	}
	return d.copyStagingLocked(out)
}

// copyStagingLocked copies the start of the staging buffer into out.
func (d *Driver) copyStagingLocked(out []byte) error {
	m, err := d.dev.device.MapBuffer(d.staging, 0, uint64(len(out)))
	if err != nil {
		return fmt.Errorf("map staging buffer: %w", err)
	}
	copy(out, unsafe.Slice((*byte)(m.Ptr), len(out)))
	if err := d.dev.device.UnmapBuffer(d.staging); err != nil {
		return fmt.Errorf("unmap staging buffer: %w", err)
	}
	return nil
}
