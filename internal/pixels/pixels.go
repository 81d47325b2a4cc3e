// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package pixels converts texture readback data into caller images.
package pixels

import (
	"errors"
	"image"
	"image/color"

	"golang.org/x/image/draw"

	"github.com/gogpu/gputypes"
)

// ErrUnsupportedFormat is returned for texture formats without a readback
// conversion.
var ErrUnsupportedFormat = errors.New("pixels: unsupported texture format")

// BytesPerPixel returns the texel size of the formats drivers read back,
// or 0 for anything else.
func BytesPerPixel(f gputypes.TextureFormat) uint32 {
	switch f {
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8UnormSrgb,
		gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatBGRA8UnormSrgb:
		return 4
	default:
		return 0
	}
}

// Solid returns a w×h image filled with c.
func Solid(w, h int, c gputypes.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(toRGBA(c)), image.Point{}, draw.Src)
	return img
}

func toRGBA(c gputypes.Color) color.RGBA {
	return color.RGBA{R: unit(float64(c.R)), G: unit(float64(c.G)), B: unit(float64(c.B)), A: unit(float64(c.A))}
}

func unit(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 255
	default:
		return uint8(v*255 + 0.5)
	}
}

// FromRows builds an RGBA image from tightly packed or padded rows of a
// texture in format f. BGRA formats are swizzled.
func FromRows(data []byte, w, h int, bytesPerRow uint32, f gputypes.TextureFormat) (*image.RGBA, error) {
	if BytesPerPixel(f) != 4 {
		return nil, ErrUnsupportedFormat
	}
	bgra := f == gputypes.TextureFormatBGRA8Unorm || f == gputypes.TextureFormatBGRA8UnormSrgb
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		src := data[y*int(bytesPerRow) : y*int(bytesPerRow)+w*4]
		dst := img.Pix[y*img.Stride : y*img.Stride+w*4]
		copy(dst, src)
		if bgra {
			for i := 0; i < len(dst); i += 4 {
				dst[i], dst[i+2] = dst[i+2], dst[i]
			}
		}
	}
	return img, nil
}

// Blit writes src into dst. When the sizes differ src is scaled with
// nearest-neighbour sampling.
func Blit(dst draw.Image, src *image.RGBA) {
	db := dst.Bounds()
	if db.Size() == src.Bounds().Size() {
		draw.Draw(dst, db, src, src.Bounds().Min, draw.Src)
		return
	}
	draw.NearestNeighbor.Scale(dst, db, src, src.Bounds(), draw.Src, nil)
}
