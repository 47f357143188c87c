//go:build gpu

package gpu

import (
	"fmt"
	"math"
	"time"

	"github.com/openfluke/webgpu/wgpu"
)

// ErrInvalidSizeForGPU is returned when Transform is called with frames of a
// length other than FixedFFTSize.
var ErrInvalidSizeForGPU = fmt.Errorf("gpu: transform size must equal FixedFFTSize")

// fftShaderSrc is a single radix-2 Cooley-Tukey butterfly stage over one
// batch of FixedFFTSize-length frames, stacked contiguously in re/im. The
// shader itself never permutes; the host bit-reverses each frame into
// re/im before the first dispatch (flattenPermuted), matching
// algorithms/fft.Kernel's permute-then-butterfly order so both paths agree.
// The host dispatches this same shader once per stage (log2(FixedFFTSize)
// dispatches per request) rather than running a single monolithic kernel.
const fftShaderSrc = `
@group(0) @binding(0) var<storage, read_write> re : array<f32>;
@group(0) @binding(1) var<storage, read_write> im : array<f32>;
@group(0) @binding(2) var<storage, read> twCos : array<f32>;
@group(0) @binding(3) var<storage, read> twSin : array<f32>;

struct Params {
	n: u32,
	half: u32,
	stride: u32,
	frameCount: u32,
}
@group(0) @binding(4) var<uniform> params : Params;

@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
	let globalIdx = gid.x;
	let butterfliesPerFrame = params.n / 2u;
	if (globalIdx >= butterfliesPerFrame * params.frameCount) { return; }

	let frame = globalIdx / butterfliesPerFrame;
	let local = globalIdx % butterfliesPerFrame;

	let group = local / params.half;
	let j = local % params.half;

	let base = frame * params.n + group * (params.half * 2u);
	let ti = base + j;
	let tj = ti + params.half;

	let twIdx = j * params.stride;
	let wr = twCos[twIdx];
	let wi = twSin[twIdx];

	let trRe = re[tj] * wr - im[tj] * wi;
	let trIm = re[tj] * wi + im[tj] * wr;

	re[tj] = re[ti] - trRe;
	im[tj] = im[ti] - trIm;
	re[ti] = re[ti] + trRe;
	im[ti] = im[ti] + trIm;
}
`

// ctx mirrors openfluke/loom's process-wide *Context singleton (gpu/context.go),
// acquired lazily through Init and released through Release.
type ctx struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	pipeline *wgpu.ComputePipeline
}

var device *ctx

// Init acquires the process-wide WebGPU device and compiles the FFT
// butterfly pipeline. Safe to call more than once; subsequent calls are
// no-ops once a device is held.
func Init() error {
	if device != nil {
		return nil
	}

	inst := wgpu.CreateInstance(nil)
	if inst == nil {
		return fmt.Errorf("gpu: CreateInstance failed: %w", ErrNoGPU)
	}

	adapter, err := inst.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil || adapter == nil {
		inst.Release()
		return fmt.Errorf("gpu: RequestAdapter failed: %w", ErrNoGPU)
	}

	dev, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{})
	if err != nil || dev == nil {
		adapter.Release()
		inst.Release()
		return fmt.Errorf("gpu: RequestDevice failed: %w", ErrNoGPU)
	}

	shader, err := dev.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "SpectroFFTButterfly",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: fftShaderSrc},
	})
	if err != nil {
		dev.Release()
		adapter.Release()
		inst.Release()
		return fmt.Errorf("gpu: shader compile failed: %w", err)
	}

	pipeline, err := dev.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:   "SpectroFFTButterflyPipeline",
		Compute: wgpu.ProgrammableStageDescriptor{Module: shader, EntryPoint: "main"},
	})
	if err != nil {
		dev.Release()
		adapter.Release()
		inst.Release()
		return fmt.Errorf("gpu: pipeline creation failed: %w", err)
	}

	device = &ctx{
		instance: inst,
		adapter:  adapter,
		device:   dev,
		queue:    dev.GetQueue(),
		pipeline: pipeline,
	}

	Default = &wgpuBackend{ctx: device}
	return nil
}

// Release frees the process-wide GPU device, called from spectro.Engine.Teardown.
func Release() {
	if device == nil {
		return
	}
	device.device.Release()
	device.adapter.Release()
	device.instance.Release()
	device = nil
	Default = noopBackend{}
}

// wgpuBackend dispatches one FFT request per call to Transform, batching all
// frames into a single buffer upload and a sequence of butterfly-stage
// dispatches, following openfluke/loom's InitGPU + single-dispatch-per-op
// shape (nn/gpu.go, gpu/parallel.go).
type wgpuBackend struct {
	ctx *ctx
}

func (b *wgpuBackend) Transform(re, im [][]float64) error {
	if len(re) == 0 {
		return nil
	}

	n := len(re[0])
	if n != FixedFFTSize {
		return fmt.Errorf("gpu: fixed fft size is %d, got %d: %w", FixedFFTSize, n, ErrInvalidSizeForGPU)
	}

	frameCount := len(re)

	bitRev := bitReverseTable(n)
	reFlat := flattenPermuted(re, bitRev)
	imFlat := flattenPermuted(im, bitRev)

	twCos, twSin := twiddles(n)

	reBuf, err := b.ctx.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label: "re", Contents: wgpu.ToBytes(reFlat),
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc,
	})
	if err != nil {
		return fmt.Errorf("gpu: create re buffer: %w", err)
	}
	defer reBuf.Destroy()

	imBuf, err := b.ctx.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label: "im", Contents: wgpu.ToBytes(imFlat),
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc,
	})
	if err != nil {
		return fmt.Errorf("gpu: create im buffer: %w", err)
	}
	defer imBuf.Destroy()

	cosBuf, err := b.ctx.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label: "twCos", Contents: wgpu.ToBytes(twCos), Usage: wgpu.BufferUsageStorage,
	})
	if err != nil {
		return fmt.Errorf("gpu: create twiddle-cos buffer: %w", err)
	}
	defer cosBuf.Destroy()

	sinBuf, err := b.ctx.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label: "twSin", Contents: wgpu.ToBytes(twSin), Usage: wgpu.BufferUsageStorage,
	})
	if err != nil {
		return fmt.Errorf("gpu: create twiddle-sin buffer: %w", err)
	}
	defer sinBuf.Destroy()

	for size := 2; size <= n; size <<= 1 {
		half := size / 2
		stride := n / size

		params := []uint32{uint32(n), uint32(half), uint32(stride), uint32(frameCount)}
		paramsBuf, err := b.ctx.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
			Label: "params", Contents: wgpu.ToBytes(params), Usage: wgpu.BufferUsageUniform,
		})
		if err != nil {
			return fmt.Errorf("gpu: create params buffer: %w", err)
		}

		bindGroup, err := b.ctx.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Layout: b.ctx.pipeline.GetBindGroupLayout(0),
			Entries: []wgpu.BindGroupEntry{
				{Binding: 0, Buffer: reBuf, Size: reBuf.GetSize()},
				{Binding: 1, Buffer: imBuf, Size: imBuf.GetSize()},
				{Binding: 2, Buffer: cosBuf, Size: cosBuf.GetSize()},
				{Binding: 3, Buffer: sinBuf, Size: sinBuf.GetSize()},
				{Binding: 4, Buffer: paramsBuf, Size: paramsBuf.GetSize()},
			},
		})
		if err != nil {
			paramsBuf.Destroy()
			return fmt.Errorf("gpu: create bind group: %w", err)
		}

		encoder, err := b.ctx.device.CreateCommandEncoder(nil)
		if err != nil {
			paramsBuf.Destroy()
			return fmt.Errorf("gpu: create command encoder: %w", err)
		}

		pass := encoder.BeginComputePass(nil)
		pass.SetPipeline(b.ctx.pipeline)
		pass.SetBindGroup(0, bindGroup, nil)

		butterflies := (n / 2) * frameCount
		workgroups := (butterflies + 63) / 64
		pass.DispatchWorkgroups(uint32(workgroups), 1, 1)
		pass.End()

		cmd, err := encoder.Finish(nil)
		if err != nil {
			paramsBuf.Destroy()
			return fmt.Errorf("gpu: finish command: %w", err)
		}
		b.ctx.queue.Submit(cmd)
		paramsBuf.Destroy()
	}

	result, err := readback(b.ctx, reBuf, imBuf, len(reFlat))
	if err != nil {
		return err
	}

	unflatten(result.re, re)
	unflatten(result.im, im)

	return nil
}

type readbackResult struct {
	re, im []float32
}

func readback(c *ctx, reBuf, imBuf *wgpu.Buffer, count int) (*readbackResult, error) {
	reOut, err := readBuffer(c, reBuf, count)
	if err != nil {
		return nil, fmt.Errorf("gpu: readback re: %w", err)
	}
	imOut, err := readBuffer(c, imBuf, count)
	if err != nil {
		return nil, fmt.Errorf("gpu: readback im: %w", err)
	}
	return &readbackResult{re: reOut, im: imOut}, nil
}

// readBuffer mirrors openfluke/loom's gpu.ReadBuffer: copy to a staging
// buffer, map it read-only, poll until done, copy out the bytes.
func readBuffer(c *ctx, buf *wgpu.Buffer, count int) ([]float32, error) {
	sizeBytes := uint64(count * 4)

	staging, err := c.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "readback-staging",
		Size:  sizeBytes,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, err
	}
	defer staging.Destroy()

	encoder, err := c.device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, err
	}
	encoder.CopyBufferToBuffer(buf, 0, staging, 0, sizeBytes)
	cmd, err := encoder.Finish(nil)
	if err != nil {
		return nil, err
	}
	c.queue.Submit(cmd)

	done := make(chan struct{})
	var mapErr error
	err = staging.MapAsync(wgpu.MapModeRead, 0, sizeBytes, func(status wgpu.BufferMapAsyncStatus) {
		if status != wgpu.BufferMapAsyncStatusSuccess {
			mapErr = fmt.Errorf("map failed: %v", status)
		}
		close(done)
	})
	if err != nil {
		return nil, err
	}

	timeout := time.After(2 * time.Second)
loop:
	for {
		c.device.Poll(false, nil)
		select {
		case <-done:
			break loop
		case <-timeout:
			return nil, fmt.Errorf("gpu: readback timed out")
		}
	}
	if mapErr != nil {
		return nil, mapErr
	}

	data := staging.GetMappedRange(0, uint(sizeBytes))
	out := wgpu.FromBytes[float32](data)
	result := make([]float32, count)
	copy(result, out)
	staging.Unmap()

	return result, nil
}

// flattenPermuted flattens frames into one contiguous buffer, reordering each
// frame's samples through bitRev so the GPU's in-place butterfly stages (which
// never permute, unlike fft.Kernel.Transform) operate on bit-reversed input
// exactly as the CPU path does.
func flattenPermuted(frames [][]float64, bitRev []int) []float32 {
	if len(frames) == 0 {
		return nil
	}
	n := len(frames[0])
	out := make([]float32, len(frames)*n)
	for i, f := range frames {
		for j := range f {
			out[i*n+j] = float32(f[bitRev[j]])
		}
	}
	return out
}

// bitReverseTable returns, for each index i in [0, n), the index whose
// bit pattern (over log2(n) bits) is i's reversed, matching
// algorithms/fft.Kernel's buildBitReverse so GPU and CPU transforms of the
// same input produce identical output.
func bitReverseTable(n int) []int {
	bits := 0
	for (1 << bits) < n {
		bits++
	}

	table := make([]int, n)
	for i := range n {
		rev := 0
		v := i
		for b := 0; b < bits; b++ {
			rev = (rev << 1) | (v & 1)
			v >>= 1
		}
		table[i] = rev
	}
	return table
}

func unflatten(flat []float32, frames [][]float64) {
	if len(frames) == 0 {
		return
	}
	n := len(frames[0])
	for i := range frames {
		for j := range frames[i] {
			frames[i][j] = float64(flat[i*n+j])
		}
	}
}

func twiddles(n int) (cosT, sinT []float32) {
	half := n / 2
	cosT = make([]float32, half)
	sinT = make([]float32, half)
	for k := range half {
		theta := -2 * math.Pi * float64(k) / float64(n)
		cosT[k] = float32(math.Cos(theta))
		sinT[k] = float32(math.Sin(theta))
	}
	return
}
