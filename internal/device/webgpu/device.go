//go:build windows

package webgpu

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-webgpu/webgpu/wgpu"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/born-ml/computegraph/internal/device"
	"github.com/born-ml/computegraph/internal/kernel"
)

// maxGroupsPerAxis is the WebGPU baseline maxComputeWorkgroupsPerDimension.
const maxGroupsPerAxis = 65535

// ErrForeignBuffer is returned when a dispatch binds a buffer of another device.
var ErrForeignBuffer = errors.New("webgpu: buffer belongs to another device")

// Device runs dispatches on a WebGPU adapter.
type Device struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	adapterName string
	log         *logrus.Entry

	// Shader and pipeline cache, keyed by kernel name.
	shaders   map[string]*wgpu.ShaderModule
	pipelines map[string]*wgpu.ComputePipeline
	mu        sync.RWMutex

	pool *bufferPool
}

// New opens the default high-performance adapter.
// Returns an error if WebGPU is not available or initialization fails.
func New(log *logrus.Logger) (dev *Device, err error) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			dev = nil
			err = fmt.Errorf("webgpu: native library not available: %v", r)
		}
	}()
	if log == nil {
		log = logrus.StandardLogger()
	}

	instance := wgpu.CreateInstance(nil)
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		instance.Release()
		return nil, errors.Wrap(err, "webgpu: request adapter")
	}
	gpu, err := adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, errors.Wrap(err, "webgpu: request device")
	}
	queue := gpu.GetQueue()
	if queue == nil {
		gpu.Release()
		adapter.Release()
		instance.Release()
		return nil, errors.New("webgpu: failed to get queue")
	}

	name := "webgpu"
	if info := adapter.GetInfo(); info.Name != "" {
		name = fmt.Sprintf("webgpu (%s)", info.Name)
	}
	d := &Device{
		instance:    instance,
		adapter:     adapter,
		device:      gpu,
		queue:       queue,
		adapterName: name,
		log:         log.WithField("component", "webgpu"),
		shaders:     make(map[string]*wgpu.ShaderModule),
		pipelines:   make(map[string]*wgpu.ComputePipeline),
	}
	d.pool = newBufferPool(gpu)
	d.log.WithField("adapter", name).Info("device opened")
	return d, nil
}

// IsAvailable checks if WebGPU is available on this system.
func IsAvailable() (available bool) {
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()
	instance := wgpu.CreateInstance(nil)
	defer instance.Release()

	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		return false
	}
	adapter.Release()
	return true
}

// Name implements device.Device.
func (d *Device) Name() string {
	return d.adapterName
}

// Limits implements device.Device. Every conformant adapter supports at
// least the WebGPU baseline limits.
func (d *Device) Limits() device.Limits {
	return device.DefaultLimits()
}

// Allocate implements device.Device.
func (d *Device) Allocate(size int) (device.Buffer, error) {
	if size < 0 {
		return nil, errors.Errorf("webgpu: invalid buffer size %d", size)
	}
	// Zero-sized bindings are invalid; keep at least one word.
	n := uint64((size + 3) &^ 3)
	if n == 0 {
		n = 4
	}
	buf := d.pool.acquire(n, storageUsage)
	// Pooled buffers may hold stale data.
	if err := d.writeBuffer(buf, make([]byte, n)); err != nil {
		d.pool.release(buf, n, storageUsage)
		return nil, err
	}
	return &Buffer{dev: d, buf: buf, size: n}, nil
}

// Dispatch implements device.Device. The compute pass is submitted and
// completes before any later readback.
func (d *Device) Dispatch(ctx context.Context, disp *device.Dispatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k := disp.Kernel
	if k == nil {
		return errors.New("webgpu: dispatch without kernel")
	}

	// The shader fixes its workgroup size; groups are counted against it.
	local := device.Ext(k.LocalSize[0], k.LocalSize[1], k.LocalSize[2])
	groups := disp.Global.Groups(local)
	if groups.X > maxGroupsPerAxis || groups.Y > maxGroupsPerAxis || groups.Z > maxGroupsPerAxis {
		return errors.Errorf("webgpu: %s: %s workgroups exceed %d per axis", k.Name, groups, maxGroupsPerAxis)
	}
	if groups.Volume() == 0 {
		return nil
	}

	pipeline := d.pipeline(k)
	entries := make([]wgpu.BindGroupEntry, 0, len(disp.Bindings)+len(disp.Params)+1)
	for i, b := range disp.Bindings {
		buf, ok := b.Buffer.(*Buffer)
		if !ok || buf.dev != d {
			return errors.Wrapf(ErrForeignBuffer, "%s: binding %d", k.Name, i)
		}
		if buf.released {
			return errors.Errorf("webgpu: %s: binding %d was released", k.Name, i)
		}
		entries = append(entries, wgpu.BufferBindingEntry(uint32(len(entries)), buf.buf, 0, buf.size))
	}

	var uniforms []*wgpu.Buffer
	defer func() {
		for _, u := range uniforms {
			u.Release()
		}
	}()
	blocks := disp.Params
	if k.SpecConstants > 0 {
		blocks = append(append([][]byte(nil), blocks...), device.EncodeSpecConstants(disp.SpecConstants))
	}
	for _, p := range blocks {
		u, size := d.createUniformBuffer(p)
		uniforms = append(uniforms, u)
		entries = append(entries, wgpu.BufferBindingEntry(uint32(len(entries)), u, 0, size))
	}

	bindGroupLayout := pipeline.GetBindGroupLayout(0)
	bindGroup := d.device.CreateBindGroupSimple(bindGroupLayout, entries)
	defer bindGroup.Release()

	encoder := d.device.CreateCommandEncoder(nil)
	computePass := encoder.BeginComputePass(nil)
	computePass.SetPipeline(pipeline)
	computePass.SetBindGroup(0, bindGroup, nil)
	computePass.DispatchWorkgroups(groups.X, groups.Y, groups.Z)
	computePass.End()
	d.queue.Submit(encoder.Finish(nil))

	d.log.WithFields(logrus.Fields{
		"kernel": k.Name,
		"global": disp.Global.String(),
		"groups": groups.String(),
	}).Debug("dispatch submitted")
	return nil
}

// pipeline returns the cached compute pipeline of k, compiling it on first use.
func (d *Device) pipeline(k *kernel.Info) *wgpu.ComputePipeline {
	d.mu.RLock()
	if p, ok := d.pipelines[k.Name]; ok {
		d.mu.RUnlock()
		return p
	}
	d.mu.RUnlock()

	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.pipelines[k.Name]; ok {
		return p
	}
	shader := d.device.CreateShaderModuleWGSL(k.Source)
	d.shaders[k.Name] = shader
	// Auto layout (nil layout).
	p := d.device.CreateComputePipelineSimple(nil, shader, "main")
	d.pipelines[k.Name] = p
	return p
}

// Release releases all WebGPU resources.
func (d *Device) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pool != nil {
		d.pool.clear()
		d.pool = nil
	}
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
