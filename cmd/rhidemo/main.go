// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Command rhidemo binds a texture, a sampler and a uniform to a WGSL
// program, applies the bindings for a few frames and prints heap and
// barrier statistics.
package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math"
	"os"
	"text/tabwriter"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/command"
	"github.com/gogpu/rhi/descriptor"
	"github.com/gogpu/rhi/device"
	"github.com/gogpu/rhi/program"
	"github.com/gogpu/rhi/resource"
	"github.com/gogpu/wgpu/hal"
	_ "github.com/gogpu/wgpu/hal/allbackends"
	"github.com/gogpu/wgpu/hal/noop"
)

const blitSource = `
@group(0) @binding(0) var src: texture_2d<f32>;
@group(0) @binding(1) var samp: sampler;
@group(1) @binding(0) var<uniform> tint: vec4<f32>;

@vertex
fn vs_main(@builtin(vertex_index) idx: u32) -> @builtin(position) vec4<f32> {
    let uv = vec2<f32>(f32((idx << 1u) & 2u), f32(idx & 2u));
    return vec4<f32>(uv * 2.0 - 1.0, 0.0, 1.0);
}

@fragment
fn fs_main(@builtin(position) pos: vec4<f32>) -> @location(0) vec4<f32> {
    return textureSample(src, samp, pos.xy) * tint;
}
`

func main() {
	var (
		backend  = flag.String("backend", device.BackendNoop, "hal backend; empty selects the preferred one")
		frames   = flag.Int("frames", 3, "frames to record")
		inFlight = flag.Int("inflight", command.DefaultFrameCount, "frames in flight")
		tiles    = flag.Int("tiles", 4, "command lists recorded in parallel per frame")
		heapSize = flag.Uint("heap", 0, "initial shader-visible shader-resource heap size")
		verbose  = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	if *verbose {
		rhi.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	reg := device.NewHALRegistry()
	// allbackends registers the software rasterizer as the empty backend.
	reg.Register(device.BackendNoop, noop.API{})
	defer reg.Release()

	settings := descriptor.DefaultSettings()
	settings.ShaderResources.ShaderVisibleSize = uint32(*heapSize)

	if err := run(reg, *backend, settings, *frames, *inFlight, *tiles); err != nil {
		log.Fatalf("rhidemo: %v", err)
	}
}

func run(reg *device.Registry, backend string, settings descriptor.Settings, frames, inFlight, tiles int) error {
	ctx, err := rhi.NewContext(
		rhi.WithRegistry(reg),
		rhi.WithBackend(backend),
		rhi.WithDescriptorSettings(settings),
		rhi.WithFrameCount(inFlight),
		rhi.WithFenceTimeout(2*time.Second),
	)
	if err != nil {
		return err
	}
	defer ctx.Release()
	fmt.Printf("backend %s, adapter %q (%s)\n", ctx.Device().Name(), ctx.AdapterInfo().Name, ctx.AdapterInfo().Type)

	p, err := ctx.NewProgram("blit", blitSource,
		program.Accessor{Argument: program.Arg("samp"), Access: program.AccessConstant},
		program.Accessor{Argument: program.Arg("tint"), Access: program.AccessFrameConstant, ValueType: program.ValueRootConstantBuffer},
	)
	if err != nil {
		return err
	}

	pipeline, err := newPipeline(ctx, p)
	if err != nil {
		return err
	}
	defer ctx.Device().HAL().DestroyRenderPipeline(pipeline)

	smp, err := ctx.Resources().NewSampler(resource.DefaultSamplerSettings())
	if err != nil {
		return err
	}
	defer smp.Release()

	bindings := make([]*program.Bindings, tiles)
	for i := range tiles {
		tex, err := ctx.Resources().NewTexture(resource.TextureSettings{
			Name:   fmt.Sprintf("tile%d", i),
			Width:  64,
			Height: 64,
			Format: gputypes.TextureFormatRGBA8Unorm,
		})
		if err != nil {
			return err
		}
		defer tex.Release()

		values := []program.Value{
			program.Views("src", resource.MustView(tex, resource.ViewSettings{})),
			program.Constant("tint", tint(0, i)),
		}
		var b *program.Bindings
		if i == 0 {
			b, err = ctx.NewProgramBindings(p, append(values, program.Views("samp", resource.MustView(smp, resource.ViewSettings{})))...)
		} else {
			b, err = ctx.CopyProgramBindings(bindings[0], values...)
		}
		if err != nil {
			return err
		}
		defer b.Release()
		bindings[i] = b
	}
	fmt.Printf("bindings created, %d waiting for heap growth\n", ctx.PendingBindings())

	for f := range frames {
		frame, err := ctx.BeginFrame()
		if err != nil {
			return err
		}
		pl, err := ctx.Queue().NewParallelList(fmt.Sprintf("frame%d", f), tiles)
		if err != nil {
			return err
		}
		err = pl.Record(context.Background(), func(_ context.Context, i int, l *command.List) error {
			b := bindings[i]
			b.SetFrameIndex(f)
			if f > 0 {
				tintArg, err := b.Get(program.Arg("tint"))
				if err != nil {
					return err
				}
				if err := tintArg.SetRootConstant(tint(f, i)); err != nil {
					return err
				}
			}
			if err := l.SetProgramBindings(b, program.ApplyDefault|program.ApplyRetainResources); err != nil {
				return err
			}
			if err := l.BeginRenderPass(&hal.RenderPassDescriptor{Label: l.Name()}); err != nil {
				return err
			}
			if err := l.SetRenderPipeline(pipeline); err != nil {
				return err
			}
			return l.Draw(3, 1)
		})
		if err != nil {
			pl.Discard()
			return err
		}
		stats := pl.Stats()
		if _, err := pl.Submit(context.Background()); err != nil {
			return err
		}
		if err := ctx.Queue().AdvanceFrame(); err != nil {
			return err
		}
		fmt.Printf("frame %d (slot %d): %d barriers, %d bind groups, %d skipped, %d draws\n",
			f, frame, stats.Barriers, stats.BindGroups, stats.SkippedGroups, stats.Draws)
	}

	printHeaps(ctx.Descriptors().Stats())
	hits, misses := ctx.Shaders().Stats()
	fmt.Printf("shader cache: %d hits, %d misses\n", hits, misses)
	return nil
}

// newPipeline builds the blit pipeline over the program's layout. Vulkan
// takes SPIR-V, every other backend WGSL.
func newPipeline(ctx *rhi.Context, p *program.Program) (hal.RenderPipeline, error) {
	m, err := ctx.Shaders().Reflect("blit", blitSource)
	if err != nil {
		return nil, err
	}
	dev := ctx.Device().HAL()
	sm, err := m.CreateHALModule(dev, ctx.Device().Backend() == gputypes.BackendVulkan)
	if err != nil {
		return nil, err
	}
	defer dev.DestroyShaderModule(sm)

	pipeline, err := dev.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:       "blit",
		Layout:      p.PipelineLayout(),
		Vertex:      hal.VertexState{Module: sm, EntryPoint: "vs_main"},
		Primitive:   gputypes.PrimitiveState{Topology: gputypes.PrimitiveTopologyTriangleList},
		Multisample: gputypes.DefaultMultisampleState(),
		Fragment: &hal.FragmentState{
			Module:     sm,
			EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{{
				Format:    gputypes.TextureFormatRGBA8Unorm,
				WriteMask: gputypes.ColorWriteMaskAll,
			}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create pipeline: %w", err)
	}
	return pipeline, nil
}

// tint returns a per-frame, per-tile vec4 as little-endian bytes.
func tint(frame, tile int) []byte {
	v := [4]float32{
		float32(tile+1) / 8,
		float32(frame%4) / 4,
		0.5,
		1,
	}
	out := make([]byte, 16)
	for i, c := range v {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(c))
	}
	return out
}

func printHeaps(stats []descriptor.HeapStats) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "heap\tvisible\tallocated\treserved\tfree\tgeneration")
	for _, s := range stats {
		fmt.Fprintf(w, "%s[%d]\t%t\t%d\t%d\t%d\t%d\n", s.Kind, s.Index, s.ShaderVisible, s.Allocated, s.Reserved, s.Free, s.Generation)
	}
	w.Flush()
}
