// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package noop_test

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/platform"
	"github.com/gogpu/platform/noop"
)

const wgslVS = "@vertex fn vs_main() -> @builtin(position) vec4<f32> { return vec4<f32>(); }"

func newDriver(t *testing.T, cfg platform.DriverConfig) *noop.Driver {
	t.Helper()
	p := noop.NewPlatform()
	d, err := p.CreateDriver(nil, cfg)
	if err != nil {
		t.Fatalf("CreateDriver() error = %v", err)
	}
	t.Cleanup(func() { _ = d.Destroy() })
	return d.(*noop.Driver)
}

func targetDesc(w, h uint32) *platform.TextureDesc {
	return &platform.TextureDesc{
		Width:  w,
		Height: h,
		Format: gputypes.TextureFormatRGBA8Unorm,
		Usage:  gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc,
	}
}

func TestSmoke(t *testing.T) {
	p := noop.NewPlatform()
	if v := p.OSVersion(); v != 0 {
		t.Fatalf("OSVersion() = %d, want 0", v)
	}
	d, err := p.CreateDriver(nil, platform.DriverConfig{})
	if err != nil {
		t.Fatalf("CreateDriver() error = %v", err)
	}
	if d == nil {
		t.Fatal("CreateDriver() returned nil driver")
	}
	if d.Backend() != platform.BackendNoop {
		t.Errorf("Backend() = %q", d.Backend())
	}
	if err := d.Destroy(); err != nil {
		t.Fatalf("Destroy() error = %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestOSVersionStable(t *testing.T) {
	p := noop.NewPlatform()
	for range 3 {
		if v := p.OSVersion(); v != 0 {
			t.Fatalf("OSVersion() = %d, want 0", v)
		}
	}
}

func TestCreateDriverSingleShot(t *testing.T) {
	p := noop.NewPlatform()
	d, err := p.CreateDriver(nil, platform.DriverConfig{})
	if err != nil {
		t.Fatalf("CreateDriver() error = %v", err)
	}
	defer d.Destroy()
	if p.State() != platform.StateDriverCreated {
		t.Errorf("State() = %v, want %v", p.State(), platform.StateDriverCreated)
	}

	d2, err := p.CreateDriver(nil, platform.DriverConfig{})
	if d2 != nil {
		t.Error("second CreateDriver() returned a driver")
	}
	var ce *platform.CreationError
	if !errors.As(err, &ce) {
		t.Fatalf("second CreateDriver() error = %v, want *CreationError", err)
	}
	if ce.Backend != platform.BackendNoop || !errors.Is(err, platform.ErrDriverAlreadyCreated) {
		t.Errorf("second CreateDriver() error = %v", err)
	}
}

func TestCreateDriverTotal(t *testing.T) {
	tests := []struct {
		name   string
		shared platform.SharedContext
		cfg    platform.DriverConfig
	}{
		{"zero", nil, platform.DriverConfig{}},
		{"defaults", nil, platform.DefaultDriverConfig()},
		{"shared ignored", struct{}{}, platform.DriverConfig{}},
		{"multiview", nil, platform.DriverConfig{StereoscopicType: platform.StereoscopicMultiview}},
		{"out of range", nil, platform.DriverConfig{MemoryBudgetMB: -5, MaxBuffers: -1, StereoscopicEyeCount: 200}},
		{"tiny budgets", nil, platform.DefaultDriverConfig().With(
			platform.WithHandleArenaSize(1),
			platform.WithResourceBudget(1, 1, 1, 1),
		)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := noop.NewPlatform()
			d, err := p.CreateDriver(tt.shared, tt.cfg)
			if err != nil || d == nil {
				t.Fatalf("CreateDriver() = %v, %v", d, err)
			}
			if err := d.Destroy(); err != nil {
				t.Errorf("Destroy() error = %v", err)
			}
		})
	}
}

func TestConfigDefaultsFilled(t *testing.T) {
	d := newDriver(t, platform.DriverConfig{Validation: true})
	cfg := d.Config()
	if !cfg.Validation {
		t.Error("Validation lost")
	}
	if cfg.HandleArenaSize != platform.DefaultHandleArenaSize {
		t.Errorf("HandleArenaSize = %d", cfg.HandleArenaSize)
	}
	if cfg.CreationTimeout != platform.DefaultCreationTimeout {
		t.Errorf("CreationTimeout = %v", cfg.CreationTimeout)
	}
}

func TestDistinctHandles(t *testing.T) {
	d := newDriver(t, platform.DriverConfig{})

	const n = 50
	seen := make(map[platform.Handle]bool)
	add := func(h platform.Handle, err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("create error = %v", err)
		}
		if seen[h] {
			t.Fatalf("handle %d issued twice", h)
		}
		seen[h] = true
	}
	for i := range n {
		switch i % 4 {
		case 0:
			h, err := d.CreateBuffer(&platform.BufferDesc{Size: 64})
			add(platform.Handle(h), err)
		case 1:
			h, err := d.CreateTexture(targetDesc(4, 4))
			add(platform.Handle(h), err)
		case 2:
			h, err := d.CreateSampler(&platform.SamplerDesc{})
			add(platform.Handle(h), err)
		case 3:
			h, err := d.CreateProgram(&platform.ProgramDesc{Vertex: platform.Stage{Source: wgslVS, EntryPoint: "vs_main"}})
			add(platform.Handle(h), err)
		}
	}
	if len(seen) != n {
		t.Errorf("got %d distinct handles, want %d", len(seen), n)
	}
	if got := d.Stats().Live(); got != n {
		t.Errorf("Stats().Live() = %d, want %d", got, n)
	}
}

func TestDestroyTwice(t *testing.T) {
	d := newDriver(t, platform.DriverConfig{})
	h, err := d.CreateBuffer(&platform.BufferDesc{Size: 16})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.DestroyBuffer(h); err != nil {
		t.Fatalf("first DestroyBuffer() error = %v", err)
	}

	err = d.DestroyBuffer(h)
	var ce *platform.CommandError
	if !errors.As(err, &ce) {
		t.Fatalf("second DestroyBuffer() error = %v, want *CommandError", err)
	}
	if !errors.Is(err, platform.ErrHandleDestroyed) || !ce.Fatal {
		t.Errorf("second DestroyBuffer() error = %v, want fatal ErrHandleDestroyed", err)
	}
	if ce.Handle != platform.Handle(h) {
		t.Errorf("CommandError.Handle = %d, want %d", ce.Handle, h)
	}

	if _, err := d.CreateBuffer(&platform.BufferDesc{Size: 16}); !errors.Is(err, platform.ErrDriverTerminated) {
		t.Errorf("command after fatal error = %v, want ErrDriverTerminated", err)
	}
	if !d.Stats().Fatal {
		t.Error("Stats().Fatal = false")
	}
	if err := d.Destroy(); err != nil {
		t.Errorf("Destroy() of terminated driver error = %v", err)
	}
}

func TestDestroyTwiceUseAfterFreeCheckDisabled(t *testing.T) {
	d := newDriver(t, platform.DefaultDriverConfig().With(platform.WithUseAfterFreeCheck(false)))
	h, _ := d.CreateSampler(&platform.SamplerDesc{})
	if err := d.DestroySampler(h); err != nil {
		t.Fatal(err)
	}
	err := d.DestroySampler(h)
	if !errors.Is(err, platform.ErrHandleDestroyed) || platform.IsFatal(err) {
		t.Errorf("second DestroySampler() error = %v, want recoverable ErrHandleDestroyed", err)
	}
	if _, err := d.CreateSampler(&platform.SamplerDesc{}); err != nil {
		t.Errorf("driver unusable after recoverable error: %v", err)
	}
}

func TestRecoverableCommandErrors(t *testing.T) {
	d := newDriver(t, platform.DefaultDriverConfig().With(platform.WithResourceBudget(0, 0, 1, 0)))
	buf, _ := d.CreateBuffer(&platform.BufferDesc{Size: 8})
	tex, _ := d.CreateTexture(&platform.TextureDesc{Width: 2, Height: 2, Format: gputypes.TextureFormatRGBA8Unorm})
	prog, _ := d.CreateProgram(&platform.ProgramDesc{Vertex: platform.Stage{Source: wgslVS}})
	if _, err := d.CreateSampler(&platform.SamplerDesc{}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		run  func() error
		want error
	}{
		{"null handle", func() error { return d.DestroyBuffer(0) }, platform.ErrInvalidHandle},
		{"never created", func() error { return d.DestroyTexture(9999) }, platform.ErrInvalidHandle},
		{"wrong kind", func() error { return d.DestroyTexture(platform.TextureHandle(buf)) }, platform.ErrWrongHandleKind},
		{"sampler budget", func() error { _, err := d.CreateSampler(&platform.SamplerDesc{}); return err }, platform.ErrBudgetExceeded},
		{"draw outside pass", func() error { return d.Draw(platform.DrawCall{Program: prog, VertexCount: 3}) }, platform.ErrInvalidCommand},
		{"end without begin", d.EndRenderPass, platform.ErrInvalidCommand},
		{"pass on plain texture", func() error { return d.BeginRenderPass(tex, platform.RenderPassParams{}) }, platform.ErrInvalidCommand},
		{"dispatch render program", func() error { return d.Dispatch(prog, 1, 1, 1) }, platform.ErrInvalidCommand},
		{"buffer overflow", func() error { return d.UpdateBuffer(buf, 4, make([]byte, 8)) }, platform.ErrInvalidCommand},
		{"texture size", func() error { return d.UpdateTexture(tex, make([]byte, 3)) }, platform.ErrInvalidCommand},
		{"empty program", func() error { _, err := d.CreateProgram(&platform.ProgramDesc{}); return err }, platform.ErrInvalidCommand},
		{"end frame without begin", func() error { return d.EndFrame(1) }, platform.ErrInvalidCommand},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
			if platform.IsFatal(err) {
				t.Errorf("error %v is fatal", err)
			}
		})
	}

	if _, err := d.CreateBuffer(&platform.BufferDesc{Size: 8}); err != nil {
		t.Errorf("driver unusable after recoverable errors: %v", err)
	}
}

func TestCommandOrder(t *testing.T) {
	d := newDriver(t, platform.DriverConfig{})

	if err := d.BeginFrame(7); err != nil {
		t.Fatal(err)
	}
	tex, _ := d.CreateTexture(targetDesc(2, 2))
	prog, _ := d.CreateProgram(&platform.ProgramDesc{Vertex: platform.Stage{Source: wgslVS}})
	steps := []func() error{
		func() error { return d.BeginRenderPass(tex, platform.RenderPassParams{Clear: true}) },
		func() error { return d.Draw(platform.DrawCall{Program: prog, VertexCount: 3}) },
		d.EndRenderPass,
		func() error { return d.EndFrame(7) },
		d.Flush,
		d.Finish,
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d error = %v", i, err)
		}
	}

	want := []string{
		"BeginFrame", "CreateTexture", "CreateProgram", "BeginRenderPass",
		"Draw", "EndRenderPass", "EndFrame", "Flush", "Finish",
	}
	cmds := d.Commands()
	if len(cmds) != len(want) {
		t.Fatalf("recorded %d commands, want %d", len(cmds), len(want))
	}
	for i, c := range cmds {
		if c.Op != want[i] {
			t.Errorf("command %d = %s, want %s", i, c.Op, want[i])
		}
		if c.Seq != uint64(i+1) {
			t.Errorf("command %d Seq = %d", i, c.Seq)
		}
	}
	if cmds[4].Handle != platform.Handle(prog) {
		t.Errorf("Draw handle = %d, want %d", cmds[4].Handle, prog)
	}
	if cmds[6].Frame != 7 || cmds[7].Frame != 0 {
		t.Errorf("frames = %d, %d", cmds[6].Frame, cmds[7].Frame)
	}
	if s := d.Stats(); s.Frames != 1 {
		t.Errorf("Stats().Frames = %d, want 1", s.Frames)
	}
}

func TestReadPixelsSeesLatestClear(t *testing.T) {
	d := newDriver(t, platform.DriverConfig{})
	tex, _ := d.CreateTexture(targetDesc(4, 4))

	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	if err := d.ReadPixels(tex, img); err != nil {
		t.Fatal(err)
	}
	if got := img.RGBAAt(1, 1); got != (color.RGBA{}) {
		t.Errorf("fresh texture pixel = %v, want transparent", got)
	}

	for _, c := range []gputypes.Color{{R: 1, A: 1}, {G: 1, A: 1}} {
		if err := d.BeginRenderPass(tex, platform.RenderPassParams{Clear: true, ClearColor: c}); err != nil {
			t.Fatal(err)
		}
		if err := d.EndRenderPass(); err != nil {
			t.Fatal(err)
		}
	}

	// Scaled destination.
	dst := image.NewRGBA(image.Rect(0, 0, 9, 3))
	if err := d.ReadPixels(tex, dst); err != nil {
		t.Fatal(err)
	}
	if got := dst.RGBAAt(8, 2); got != (color.RGBA{G: 255, A: 255}) {
		t.Errorf("pixel = %v, want the second clear colour", got)
	}
}

func TestDestroyReleasesEverything(t *testing.T) {
	p := noop.NewPlatform()
	drv, err := p.CreateDriver(nil, platform.DriverConfig{})
	if err != nil {
		t.Fatal(err)
	}
	const n = 20
	for range n {
		if _, err := drv.CreateBuffer(&platform.BufferDesc{Size: 128}); err != nil {
			t.Fatal(err)
		}
		if _, err := drv.CreateTexture(targetDesc(8, 8)); err != nil {
			t.Fatal(err)
		}
	}
	if err := p.Close(); !errors.Is(err, platform.ErrDriverAlive) {
		t.Errorf("Close() with live driver = %v, want ErrDriverAlive", err)
	}

	if err := drv.Destroy(); err != nil {
		t.Fatalf("Destroy() error = %v", err)
	}
	s := drv.Stats()
	if s.Live() != 0 || s.LiveBytes != 0 {
		t.Errorf("leaked after Destroy: live=%d bytes=%d", s.Live(), s.LiveBytes)
	}
	for _, k := range platform.ResourceKinds {
		ks := s.Kind(k)
		if ks.Created != ks.Destroyed {
			t.Errorf("%s: created %d, destroyed %d", k, ks.Created, ks.Destroyed)
		}
	}
	if !s.Destroyed {
		t.Error("Stats().Destroyed = false")
	}

	if err := drv.Destroy(); !errors.Is(err, platform.ErrDriverDestroyed) {
		t.Errorf("second Destroy() = %v, want ErrDriverDestroyed", err)
	}
	if err := drv.Flush(); !errors.Is(err, platform.ErrDriverDestroyed) {
		t.Errorf("Flush() after Destroy = %v, want ErrDriverDestroyed", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestRegistered(t *testing.T) {
	p, err := platform.New(platform.BackendNoop)
	if err != nil {
		t.Fatalf("New(noop) error = %v", err)
	}
	if p.Name() != platform.BackendNoop {
		t.Errorf("Name() = %q", p.Name())
	}
}

func TestCommandsRejectedInsidePass(t *testing.T) {
	d := newDriver(t, platform.DriverConfig{})
	tex, _ := d.CreateTexture(targetDesc(2, 2))
	buf, _ := d.CreateBuffer(&platform.BufferDesc{Size: 16})
	if err := d.BeginRenderPass(tex, platform.RenderPassParams{}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		run  func() error
	}{
		{"nested pass", func() error { return d.BeginRenderPass(tex, platform.RenderPassParams{}) }},
		{"update buffer", func() error { return d.UpdateBuffer(buf, 0, make([]byte, 4)) }},
		{"update texture", func() error { return d.UpdateTexture(tex, make([]byte, 16)) }},
		{"destroy target", func() error { return d.DestroyTexture(tex) }},
		{"read pixels", func() error { return d.ReadPixels(tex, image.NewRGBA(image.Rect(0, 0, 2, 2))) }},
		{"flush", d.Flush},
		{"finish", d.Finish},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); !errors.Is(err, platform.ErrInvalidCommand) {
				t.Errorf("error = %v, want ErrInvalidCommand", err)
			}
		})
	}

	if err := d.EndRenderPass(); err != nil {
		t.Fatal(err)
	}
	if err := d.UpdateTexture(tex, make([]byte, 16)); err != nil {
		t.Errorf("UpdateTexture() after pass error = %v", err)
	}
}

func TestUnsupportedFormat(t *testing.T) {
	d := newDriver(t, platform.DriverConfig{})
	tex, err := d.CreateTexture(&platform.TextureDesc{
		Width:  2,
		Height: 2,
		Format: gputypes.TextureFormatR8Unorm,
		Usage:  gputypes.TextureUsageCopySrc,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.UpdateTexture(tex, make([]byte, 16)); !errors.Is(err, platform.ErrInvalidCommand) {
		t.Errorf("UpdateTexture() error = %v, want ErrInvalidCommand", err)
	}
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	err = d.ReadPixels(tex, img)
	if !errors.Is(err, platform.ErrInvalidCommand) || platform.IsFatal(err) {
		t.Errorf("ReadPixels() error = %v, want recoverable ErrInvalidCommand", err)
	}
}
