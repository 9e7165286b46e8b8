//go:build windows

package webgpu

import (
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"
	"github.com/pkg/errors"
)

const storageUsage = wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst

// Buffer is a storage buffer on a Device.
type Buffer struct {
	dev      *Device
	buf      *wgpu.Buffer
	size     uint64
	released bool
}

// Size implements device.Buffer.
func (b *Buffer) Size() int {
	return int(b.size)
}

// Write implements device.Buffer.
func (b *Buffer) Write(data []byte) error {
	if b.released {
		return errors.New("webgpu: write to released buffer")
	}
	if uint64(len(data)) > b.size {
		return errors.Errorf("webgpu: write of %d bytes into %d-byte buffer", len(data), b.size)
	}
	if len(data) == 0 {
		return nil
	}
	return b.dev.writeBuffer(b.buf, data)
}

// Read implements device.Buffer. Pending dispatches complete first since the
// copy is queued behind them.
func (b *Buffer) Read(n int) ([]byte, error) {
	if b.released {
		return nil, errors.New("webgpu: read from released buffer")
	}
	if n < 0 || uint64(n) > b.size {
		return nil, errors.Errorf("webgpu: read of %d bytes from %d-byte buffer", n, b.size)
	}
	if n == 0 {
		return []byte{}, nil
	}
	// Copies must be 4-byte aligned.
	aligned := uint64((n + 3) &^ 3)
	data, err := b.dev.readBuffer(b.buf, aligned)
	if err != nil {
		return nil, err
	}
	return data[:n], nil
}

// Release implements device.Buffer. The GPU buffer goes back to the pool.
func (b *Buffer) Release() {
	if b.released {
		return
	}
	b.released = true
	if b.dev.pool != nil {
		b.dev.pool.release(b.buf, b.size, storageUsage)
	} else {
		b.buf.Release()
	}
}

// writeBuffer uploads data through a mapped copy-source buffer.
func (d *Device) writeBuffer(dst *wgpu.Buffer, data []byte) error {
	size := uint64((len(data) + 3) &^ 3)
	upload := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageCopySrc | wgpu.BufferUsageMapWrite,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	if upload == nil {
		return errors.New("webgpu: create upload buffer")
	}
	defer upload.Release()

	mappedPtr := upload.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	copy(unsafe.Slice((*byte)(mappedPtr), size), data)
	upload.Unmap()

	encoder := d.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(upload, 0, dst, 0, size)
	d.queue.Submit(encoder.Finish(nil))
	return nil
}

// readBuffer reads data back from a GPU buffer to CPU memory.
// Uses a staging buffer since storage buffers can't be mapped directly.
func (d *Device) readBuffer(src *wgpu.Buffer, size uint64) ([]byte, error) {
	staging := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer staging.Release()

	encoder := d.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(src, 0, staging, 0, size)
	d.queue.Submit(encoder.Finish(nil))

	if err := staging.MapAsync(d.device, wgpu.MapModeRead, 0, size); err != nil {
		return nil, errors.Wrap(err, "webgpu: map staging buffer")
	}
	mappedPtr := staging.GetMappedRange(0, size)
	out := make([]byte, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	copy(out, unsafe.Slice((*byte)(mappedPtr), size))
	staging.Unmap()
	return out, nil
}

// createUniformBuffer creates a uniform buffer rounded up to 16 bytes.
func (d *Device) createUniformBuffer(data []byte) (*wgpu.Buffer, uint64) {
	size := (uint64(len(data)) + 15) &^ 15
	if size == 0 {
		size = 16
	}
	buffer := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	mappedPtr := buffer.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	copy(unsafe.Slice((*byte)(mappedPtr), size), data)
	buffer.Unmap()
	return buffer, size
}
