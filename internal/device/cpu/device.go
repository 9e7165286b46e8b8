// Package cpu implements a software compute device.
//
// The device runs the built-in kernels as Go functions, one call per global
// invocation, with workgroups spread over goroutines. It is the reference
// execution engine for graphs and the device used by tests.
package cpu

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/born-ml/computegraph/internal/device"
	"github.com/born-ml/computegraph/internal/parallel"
)

// Device errors.
var (
	// ErrUnsupportedKernel is returned when a dispatch names a kernel with no
	// software implementation.
	ErrUnsupportedKernel = errors.New("cpu: kernel has no software implementation")

	// ErrForeignBuffer is returned when a dispatch binds a buffer allocated by
	// another device.
	ErrForeignBuffer = errors.New("cpu: buffer was not allocated by this device")

	// ErrReleasedBuffer is returned when a released buffer is used.
	ErrReleasedBuffer = errors.New("cpu: buffer has been released")

	// ErrOutOfBounds is returned when a kernel addresses past a buffer end.
	ErrOutOfBounds = errors.New("cpu: buffer access out of bounds")

	// ErrInvalidDispatch is returned for malformed dispatch descriptors.
	ErrInvalidDispatch = errors.New("cpu: invalid dispatch")
)

// Device is a software compute device.
type Device struct {
	parallel parallel.Config
	limits   device.Limits
	kernels  map[string]Kernel
	log      *logrus.Entry

	// Dispatches run one at a time, in submission order.
	mu sync.Mutex

	dispatches uint64
}

// Option configures a Device.
type Option func(*Device)

// WithParallel sets the workgroup parallelism.
func WithParallel(cfg parallel.Config) Option {
	return func(d *Device) { d.parallel = cfg }
}

// WithLimits overrides the reported device limits.
func WithLimits(l device.Limits) Option {
	return func(d *Device) { d.limits = l }
}

// WithLogger sets the logger.
func WithLogger(l *logrus.Logger) Option {
	return func(d *Device) { d.log = l.WithField("component", "cpu-device") }
}

// WithKernel registers an additional software kernel.
func WithKernel(name string, k Kernel) Option {
	return func(d *Device) { d.kernels[name] = k }
}

// New creates a software device with the built-in kernels.
func New(opts ...Option) *Device {
	d := &Device{
		parallel: parallel.DefaultConfig(),
		limits:   device.DefaultLimits(),
		kernels:  builtinKernels(),
		log:      logrus.WithField("component", "cpu-device"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name returns the device name.
func (d *Device) Name() string {
	return "cpu"
}

// Limits returns the device limits.
func (d *Device) Limits() device.Limits {
	return d.limits
}

// Dispatches returns the number of dispatches executed so far.
func (d *Device) Dispatches() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dispatches
}

// Allocate returns a zeroed buffer. Sizes are rounded up to 4 bytes since
// kernels address buffers in 32-bit words.
func (d *Device) Allocate(size int) (device.Buffer, error) {
	if size < 0 {
		return nil, errors.Errorf("cpu: negative buffer size %d", size)
	}
	return &Buffer{data: make([]byte, (size+3)&^3)}, nil
}

// Dispatch runs every invocation of dispatch, workgroup by workgroup.
func (d *Device) Dispatch(ctx context.Context, dispatch *device.Dispatch) error {
	if err := d.validate(dispatch); err != nil {
		return err
	}
	k, ok := d.kernels[dispatch.Kernel.Name]
	if !ok {
		return errors.Wrapf(ErrUnsupportedKernel, "kernel %q", dispatch.Kernel.Name)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	invoke, err := k(dispatch)
	if err != nil {
		return errors.Wrapf(err, "kernel %q", dispatch.Kernel.Name)
	}

	global, local := dispatch.Global, dispatch.Local
	groups := global.Groups(local)
	numGroups := int(groups.Volume())

	d.log.WithFields(logrus.Fields{
		"kernel": dispatch.Kernel.Name,
		"global": global.String(),
		"local":  local.String(),
		"groups": numGroups,
	}).Debug("dispatch")

	err = parallel.ForErr(ctx, numGroups, func(_ context.Context, g int) error {
		gx := uint32(g) % groups.X
		gy := uint32(g) / groups.X % groups.Y
		gz := uint32(g) / (groups.X * groups.Y)
		for lz := uint32(0); lz < local.Z; lz++ {
			z := gz*local.Z + lz
			if z >= global.Z {
				break
			}
			for ly := uint32(0); ly < local.Y; ly++ {
				y := gy*local.Y + ly
				if y >= global.Y {
					break
				}
				for lx := uint32(0); lx < local.X; lx++ {
					x := gx*local.X + lx
					if x >= global.X {
						break
					}
					if err := invoke(x, y, z); err != nil {
						return err
					}
				}
			}
		}
		return nil
	}, d.parallel)
	if err != nil {
		return errors.Wrapf(err, "kernel %q", dispatch.Kernel.Name)
	}
	d.dispatches++
	return nil
}

func (d *Device) validate(dispatch *device.Dispatch) error {
	if dispatch == nil || dispatch.Kernel == nil {
		return errors.Wrap(ErrInvalidDispatch, "missing kernel")
	}
	local := dispatch.Local
	if local.X == 0 || local.Y == 0 || local.Z == 0 {
		return errors.Wrapf(ErrInvalidDispatch, "local extent %s has a zero axis", local)
	}
	if limit := d.limits.MaxInvocationsPerWorkgroup; limit > 0 && local.Volume() > uint64(limit) {
		return errors.Wrapf(ErrInvalidDispatch, "local extent %s exceeds %d invocations", local, limit)
	}
	if n := dispatch.Kernel.Bindings; n > 0 && len(dispatch.Bindings) != n {
		return errors.Wrapf(ErrInvalidDispatch, "kernel %q binds %d buffers, got %d",
			dispatch.Kernel.Name, n, len(dispatch.Bindings))
	}
	if n := dispatch.Kernel.Params; n > 0 && len(dispatch.Params) != n {
		return errors.Wrapf(ErrInvalidDispatch, "kernel %q takes %d param buffers, got %d",
			dispatch.Kernel.Name, n, len(dispatch.Params))
	}
	if n := dispatch.Kernel.SpecConstants; n > 0 && len(dispatch.SpecConstants) < n {
		return errors.Wrapf(ErrInvalidDispatch, "kernel %q reads %d spec constants, got %d",
			dispatch.Kernel.Name, n, len(dispatch.SpecConstants))
	}
	for i, b := range dispatch.Bindings {
		buf, ok := b.Buffer.(*Buffer)
		if !ok {
			return errors.Wrapf(ErrForeignBuffer, "binding %d", i)
		}
		if buf.released {
			return errors.Wrapf(ErrReleasedBuffer, "binding %d", i)
		}
	}
	return nil
}
