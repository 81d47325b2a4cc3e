// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/platform"
	"github.com/gogpu/platform/internal/cache"
)

// spirvCacheSize bounds the process-wide cache of compiled shaders.
const spirvCacheSize = 128

// spirvCache maps the SHA-256 of WGSL source to its SPIR-V. Drivers share
// it; cached words are never modified.
var spirvCache = cache.New[[sha256.Size]byte, []uint32](spirvCacheSize)

// compileWGSL compiles WGSL source to SPIR-V words.
func compileWGSL(src string) ([]uint32, error) {
	key := sha256.Sum256([]byte(src))
	if words, ok := spirvCache.Get(key); ok {
		return words, nil
	}
	spirvBytes, err := naga.Compile(src)
	if err != nil {
		return nil, err
	}
	if len(spirvBytes)%4 != 0 {
		return nil, fmt.Errorf("SPIR-V length %d not a multiple of 4", len(spirvBytes))
	}
	// SPIR-V is little-endian 32-bit words.
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(spirvBytes[i*4:])
	}
	spirvCache.Set(key, words)
	return words, nil
}

// compileSources compiles each distinct source once, on the worker pool
// when there is more than one.
func (d *Driver) compileSources(sources []string) ([][]uint32, error) {
	out := make([][]uint32, len(sources))
	jobs := make([]func() error, len(sources))
	for i, src := range sources {
		jobs[i] = func() error {
			words, err := compileWGSL(src)
			if err != nil {
				return fmt.Errorf("compile shader %d: %w", i, err)
			}
			out[i] = words
			return nil
		}
	}

	if d.pool != nil && len(jobs) > 1 {
		if err := d.pool.Run(jobs); err != nil {
			return nil, err
		}
		return out, nil
	}
	for _, job := range jobs {
		if err := job(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// buildProgram compiles desc and creates its pipeline. On error every
// object created so far is destroyed.
func (d *Driver) buildProgram(desc *platform.ProgramDesc) (*program, error) {
	var sources []string
	index := make(map[string]int)
	for _, st := range []platform.Stage{desc.Vertex, desc.Fragment, desc.Compute} {
		if st.IsZero() {
			continue
		}
		if _, ok := index[st.Source]; !ok {
			index[st.Source] = len(sources)
			sources = append(sources, st.Source)
		}
	}

	words, err := d.compileSources(sources)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", platform.ErrInvalidCommand, err)
	}

	prog := &program{format: desc.TargetFormat}
	if prog.format == gputypes.TextureFormatUndefined {
		prog.format = d.dev.format
	}
	for i, w := range words {
		module, err := d.dev.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
			Label:  d.label(fmt.Sprintf("%s_shader_%d", desc.Label, i)),
			Source: hal.ShaderSource{SPIRV: w},
		})
		if err != nil {
			d.free(prog)
			return nil, fmt.Errorf("create shader module: %w", err)
		}
		prog.modules = append(prog.modules, module)
	}
	moduleOf := func(st platform.Stage) hal.ShaderModule { return prog.modules[index[st.Source]] }

	layout, err := d.dev.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label: d.label(desc.Label + "_layout"),
	})
	if err != nil {
		d.free(prog)
		return nil, fmt.Errorf("create pipeline layout: %w", err)
	}
	prog.layout = layout

	if desc.IsCompute() {
		pipeline, err := d.dev.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
			Label:  d.label(desc.Label),
			Layout: layout,
			Compute: hal.ComputeState{
				Module:     moduleOf(desc.Compute),
				EntryPoint: desc.Compute.Entry(platform.DefaultComputeEntry),
			},
		})
		if err != nil {
			d.free(prog)
			return nil, fmt.Errorf("create compute pipeline: %w", err)
		}
		prog.compute = pipeline
		return prog, nil
	}

	var fragment *hal.FragmentState
	if !desc.Fragment.IsZero() {
		fragment = &hal.FragmentState{
			Module:     moduleOf(desc.Fragment),
			EntryPoint: desc.Fragment.Entry(platform.DefaultFragmentEntry),
			Targets: []gputypes.ColorTargetState{
				{
					Format:    prog.format,
					WriteMask: gputypes.ColorWriteMaskAll,
				},
			},
		}
	}
	pipeline, err := d.dev.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  d.label(desc.Label),
		Layout: layout,
		Vertex: hal.VertexState{
			Module:     moduleOf(desc.Vertex),
			EntryPoint: desc.Vertex.Entry(platform.DefaultVertexEntry),
			Buffers:    desc.VertexBuffers,
		},
		Fragment: fragment,
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		d.free(prog)
		return nil, fmt.Errorf("create render pipeline: %w", err)
	}
	prog.render = pipeline
	return prog, nil
}
