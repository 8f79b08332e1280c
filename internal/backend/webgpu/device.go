//go:build windows

package webgpu

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/born-ml/convcore/internal/backend/accel"
	"github.com/born-ml/convcore/internal/tensor"
)

const storageUsage = wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst

// Device executes accel programs with WGSL compute shaders. Both buffer and
// image programs run on storage buffers; the image flag in the uniform block
// selects the RGBA-packed indexing.
type Device struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	name     string

	shaders   map[string]*wgpu.ShaderModule
	pipelines map[string]*wgpu.ComputePipeline
	// weights keeps uploaded weight tensors resident across runs.
	weights map[*tensor.Tensor]*wgpu.Buffer
	mu      sync.RWMutex
}

// New creates a WebGPU device on the high-performance adapter.
// Returns an error if WebGPU is not available or initialization fails.
func New() (dev *Device, err error) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			dev = nil
			err = fmt.Errorf("webgpu: native library not available: %v", r)
		}
	}()

	instance := wgpu.CreateInstance(nil)
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request adapter: %w", err)
	}
	info := adapter.GetInfo()

	device, err := adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request device: %w", err)
	}
	queue := device.GetQueue()
	if queue == nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to get queue")
	}

	return &Device{
		instance:  instance,
		adapter:   adapter,
		device:    device,
		queue:     queue,
		name:      fmt.Sprintf("webgpu (%s %s)", info.Name, info.VendorName),
		shaders:   make(map[string]*wgpu.ShaderModule),
		pipelines: make(map[string]*wgpu.ComputePipeline),
		weights:   make(map[*tensor.Tensor]*wgpu.Buffer),
	}, nil
}

// Name returns the adapter description.
func (d *Device) Name() string { return d.name }

// Run uploads the operands, dispatches the program and reads the output
// back into prog.Output.
func (d *Device) Run(ctx context.Context, prog *accel.Program) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name, code := shaderFor(prog.Kind)
	pipeline := d.getOrCreatePipeline(name, d.compileShader(name, code))

	input := d.createBuffer(prog.Input.Data(), storageUsage)
	defer input.Release()

	weights, owned := d.weightBuffer(prog.Filter)
	if owned {
		defer weights.Release()
	}

	// Bindings cannot be empty; the shader ignores bias when has_bias is 0.
	biasBytes := make([]byte, 16)
	if prog.Bias != nil {
		biasBytes = prog.Bias.Data()
	}
	bias := d.createBuffer(biasBytes, storageUsage)
	defer bias.Release()

	outBytes := prog.Output.Data()
	//nolint:gosec // G115: byte sizes are non-negative
	outSize := uint64(len(outBytes))
	output := d.device.CreateBuffer(&wgpu.BufferDescriptor{Usage: storageUsage, Size: outSize})
	defer output.Release()

	uniform := d.createUniformBuffer(encodeParams(prog))
	defer uniform.Release()

	entries := []wgpu.BindGroupEntry{
		wgpu.BufferBindingEntry(0, input, 0, uint64(len(prog.Input.Data()))),
		wgpu.BufferBindingEntry(1, weights, 0, uint64(len(prog.Filter.Data()))),
		wgpu.BufferBindingEntry(2, bias, 0, uint64(len(biasBytes))),
		wgpu.BufferBindingEntry(3, output, 0, outSize),
		wgpu.BufferBindingEntry(4, uniform, 0, paramsSize),
	}
	if prog.Kind == accel.WinogradProgram {
		mats := float32Bytes(winogradMatrices(prog.BlockSize))
		matrices := d.createBuffer(mats, storageUsage)
		defer matrices.Release()
		entries = append(entries, wgpu.BufferBindingEntry(5, matrices, 0, uint64(len(mats))))
	}

	bindGroup := d.device.CreateBindGroupSimple(pipeline.GetBindGroupLayout(0), entries)
	defer bindGroup.Release()

	encoder := d.device.CreateCommandEncoder(nil)
	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.DispatchWorkgroups(workgroups(prog))
	pass.End()
	d.queue.Submit(encoder.Finish(nil))

	return d.readBuffer(output, outBytes)
}

// weightBuffer returns the device copy of filter. Weight tensors are
// uploaded once and kept; owned reports whether the caller must release it.
func (d *Device) weightBuffer(filter *tensor.Tensor) (buf *wgpu.Buffer, owned bool) {
	if !filter.IsWeight() {
		return d.createBuffer(filter.Data(), storageUsage), true
	}
	d.mu.RLock()
	buf, ok := d.weights[filter]
	d.mu.RUnlock()
	if ok {
		return buf, false
	}
	buf = d.createBuffer(filter.Data(), storageUsage)
	d.mu.Lock()
	d.weights[filter] = buf
	d.mu.Unlock()
	return buf, false
}

// Release frees every GPU object owned by the device.
func (d *Device) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, b := range d.weights {
		b.Release()
	}
	d.weights = nil
	for _, p := range d.pipelines {
		p.Release()
	}
	d.pipelines = nil
	for _, s := range d.shaders {
		s.Release()
	}
	d.shaders = nil

	if d.queue != nil {
		d.queue.Release()
		d.queue = nil
	}
	if d.device != nil {
		d.device.Release()
		d.device = nil
	}
	if d.adapter != nil {
		d.adapter.Release()
		d.adapter = nil
	}
	if d.instance != nil {
		d.instance.Release()
		d.instance = nil
	}
}
