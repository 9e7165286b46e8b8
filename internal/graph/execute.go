package graph

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/born-ml/computegraph/internal/device"
)

// Prepare allocates a device buffer for every value and uploads constant
// data. It is called once, after all operators have been added.
func (g *ComputeGraph) Prepare(_ context.Context, dev device.Device) error {
	if g.dev != nil {
		return ErrAlreadyPrepared
	}
	if err := checkLimits(g.cfg.Limits, dev.Limits()); err != nil {
		return errors.Wrapf(err, "device %s", dev.Name())
	}

	for i, v := range g.values {
		buf, err := dev.Allocate(v.byteCapacity())
		if err != nil {
			g.releaseBuffers()
			return errors.Wrapf(err, "allocate value %d (%s)", i, v.kind)
		}
		v.buffer = buf
		if v.kind == kindConstant {
			if err := buf.Write(v.data); err != nil {
				g.releaseBuffers()
				return errors.Wrapf(err, "upload constant %d", i)
			}
		}
	}
	g.dev = dev
	g.log.WithFields(logrus.Fields{
		"device":  dev.Name(),
		"values":  len(g.values),
		"prepack": len(g.prepackNodes),
		"execute": len(g.executeNodes),
	}).Info("graph prepared")
	return nil
}

func checkLimits(want, have device.Limits) error {
	if have.MaxInvocationsPerWorkgroup > 0 && want.MaxInvocationsPerWorkgroup > have.MaxInvocationsPerWorkgroup {
		return errors.Wrapf(ErrIncompatibleDevice, "max invocations %d > %d",
			want.MaxInvocationsPerWorkgroup, have.MaxInvocationsPerWorkgroup)
	}
	for i := 0; i < 3; i++ {
		w, h := want.MaxWorkgroupSize.At(i), have.MaxWorkgroupSize.At(i)
		if h > 0 && w > h {
			return errors.Wrapf(ErrIncompatibleDevice, "max workgroup size axis %d: %d > %d", i, w, h)
		}
	}
	return nil
}

// byteCapacity is the size of the device buffer backing v.
func (v *value) byteCapacity() int {
	var n int
	switch {
	case v.kind == kindConstant:
		n = len(v.data)
	case v.kind == kindStaging:
		n = v.capacity * v.dtype.Size()
	case v.dtype.IsPacked():
		n = v.capacity // one byte per lane, four lanes per texel
	default:
		n = v.capacity * v.dtype.DeviceSize()
	}
	return (n + 3) &^ 3
}

// byteSize is the size of the current logical contents of v.
func (v *value) byteSize() int {
	switch {
	case v.kind == kindConstant:
		return len(v.data)
	case v.kind == kindStaging:
		return v.shape.NumElements() * v.dtype.Size()
	case v.dtype.IsPacked():
		return v.layout.Packing().PaddedNumel(v.shape)
	default:
		return v.shape.NumElements() * v.dtype.DeviceSize()
	}
}

// Prepack drains the prepack queue. It runs once; constant buffers are
// released afterwards.
func (g *ComputeGraph) Prepack(ctx context.Context) error {
	if g.dev == nil {
		return ErrNotPrepared
	}
	if g.prepacked {
		return ErrAlreadyPrepacked
	}
	for i, n := range g.prepackNodes {
		d, err := n.Encode(g)
		if err != nil {
			return errors.Wrapf(err, "prepack node %d (%s)", i, n.Kernel().Name)
		}
		if err := g.dev.Dispatch(ctx, d); err != nil {
			return errors.Wrapf(err, "prepack node %d (%s)", i, n.Kernel().Name)
		}
	}
	g.prepacked = true

	for _, v := range g.values {
		if v.kind == kindConstant && v.buffer != nil {
			v.buffer.Release()
			v.buffer = nil
		}
	}
	g.log.WithField("nodes", len(g.prepackNodes)).Debug("prepack queue drained")
	return nil
}

// Execute runs one iteration of the execute queue. The prepack queue is
// drained first if that has not happened yet.
//
// For every node the resize policy runs first, then the workgroup extents are
// computed from the resized metadata, then the dispatch is submitted.
func (g *ComputeGraph) Execute(ctx context.Context) error {
	if g.dev == nil {
		return ErrNotPrepared
	}
	if !g.prepacked {
		if err := g.Prepack(ctx); err != nil {
			return err
		}
	}
	for i, n := range g.executeNodes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r, ok := n.(Resizer); ok {
			if err := r.TriggerResize(g); err != nil {
				return errors.Wrapf(err, "iteration %d: execute node %d (%s): resize",
					g.iterations, i, n.Kernel().Name)
			}
		}
		d, err := n.Encode(g)
		if err != nil {
			return errors.Wrapf(err, "iteration %d: execute node %d (%s)", g.iterations, i, n.Kernel().Name)
		}
		if err := g.dev.Dispatch(ctx, d); err != nil {
			return errors.Wrapf(err, "iteration %d: execute node %d (%s)", g.iterations, i, n.Kernel().Name)
		}
	}
	g.iterations++
	return nil
}

// WriteValue copies host bytes into the device buffer of a tensor or staging
// value.
func (g *ComputeGraph) WriteValue(ref ValueRef, data []byte) error {
	if err := g.CheckRef(ref); err != nil {
		return err
	}
	v := g.values[ref]
	if v.kind == kindConstant {
		return errors.Errorf("write value %d: constants are immutable", ref)
	}
	if v.buffer == nil {
		return errors.Wrapf(ErrNotPrepared, "write value %d", ref)
	}
	return errors.Wrapf(v.buffer.Write(data), "write value %d", ref)
}

// ReadValue returns the bytes of a value's current logical contents. Packed
// tensors return their padded texels.
func (g *ComputeGraph) ReadValue(ref ValueRef) ([]byte, error) {
	if err := g.CheckRef(ref); err != nil {
		return nil, err
	}
	v := g.values[ref]
	if v.buffer == nil {
		return nil, errors.Wrapf(ErrNotPrepared, "read value %d", ref)
	}
	data, err := v.buffer.Read(v.byteSize())
	if err != nil {
		return nil, errors.Wrapf(err, "read value %d", ref)
	}
	return data, nil
}

// Release frees every device buffer. The graph cannot run afterwards.
func (g *ComputeGraph) Release() {
	g.releaseBuffers()
	g.dev = nil
}

func (g *ComputeGraph) releaseBuffers() {
	for _, v := range g.values {
		if v.buffer != nil {
			v.buffer.Release()
			v.buffer = nil
		}
	}
}
