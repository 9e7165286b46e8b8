// Package trace records the dispatches a device receives and stores them as
// msgpack streams.
package trace

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack"

	"github.com/born-ml/computegraph/internal/device"
)

// Binding is a recorded buffer binding.
type Binding struct {
	Value  int    `msgpack:"value"`
	Access string `msgpack:"access"`
}

// Record is one dispatch as seen by the device.
type Record struct {
	Seq           int       `msgpack:"seq"`
	Device        string    `msgpack:"device"`
	Kernel        string    `msgpack:"kernel"`
	Global        [3]uint32 `msgpack:"global"`
	Local         [3]uint32 `msgpack:"local"`
	Bindings      []Binding `msgpack:"bindings"`
	Params        [][]byte  `msgpack:"params"`
	SpecConstants []uint32  `msgpack:"spec_constants"`
	Err           string    `msgpack:"err,omitempty"`
}

// Groups returns the number of workgroups the dispatch launched.
func (r Record) Groups() device.Extent {
	global := device.Ext(r.Global[0], r.Global[1], r.Global[2])
	return global.Groups(device.Ext(r.Local[0], r.Local[1], r.Local[2]))
}

func extent(e device.Extent) [3]uint32 {
	return [3]uint32{e.X, e.Y, e.Z}
}

// Recorder wraps a device and records every dispatch passed to it.
type Recorder struct {
	device.Device

	mu      sync.Mutex
	records []Record
}

// NewRecorder wraps dev.
func NewRecorder(dev device.Device) *Recorder {
	return &Recorder{Device: dev}
}

// Dispatch records d and forwards it to the wrapped device.
func (r *Recorder) Dispatch(ctx context.Context, d *device.Dispatch) error {
	rec := Record{
		Device: r.Device.Name(),
		Global: extent(d.Global),
		Local:  extent(d.Local),
	}
	if d.Kernel != nil {
		rec.Kernel = d.Kernel.Name
	}
	for _, b := range d.Bindings {
		rec.Bindings = append(rec.Bindings, Binding{Value: b.Value, Access: b.Access.String()})
	}
	for _, p := range d.Params {
		rec.Params = append(rec.Params, append([]byte(nil), p...))
	}
	for _, s := range d.SpecConstants {
		rec.SpecConstants = append(rec.SpecConstants, s.Value)
	}

	err := r.Device.Dispatch(ctx, d)
	if err != nil {
		rec.Err = err.Error()
	}

	r.mu.Lock()
	rec.Seq = len(r.records)
	r.records = append(r.records, rec)
	r.mu.Unlock()
	return err
}

// Records returns a copy of the records so far.
func (r *Recorder) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Record(nil), r.records...)
}

// Reset drops all records.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.records = nil
	r.mu.Unlock()
}

// Encode writes records to w as a msgpack array.
func Encode(w io.Writer, records []Record) error {
	enc := msgpack.NewEncoder(w)
	if err := enc.EncodeArrayLen(len(records)); err != nil {
		return errors.Wrap(err, "encode trace")
	}
	for i := range records {
		if err := enc.Encode(&records[i]); err != nil {
			return errors.Wrapf(err, "encode record %d", i)
		}
	}
	return nil
}

// Decode reads records written by Encode.
func Decode(r io.Reader) ([]Record, error) {
	dec := msgpack.NewDecoder(r)
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return nil, errors.Wrap(err, "decode trace")
	}
	if n < 0 {
		return nil, nil
	}
	records := make([]Record, n)
	for i := range records {
		if err := dec.Decode(&records[i]); err != nil {
			return nil, errors.Wrapf(err, "decode record %d", i)
		}
	}
	return records, nil
}

// Save writes the recorder's records to path.
func (r *Recorder) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create trace file")
	}
	if err := Encode(f, r.Records()); err != nil {
		f.Close()
		return err
	}
	return errors.Wrap(f.Close(), "close trace file")
}

// Load reads a trace file written by Save.
func Load(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open trace file")
	}
	defer f.Close()
	return Decode(f)
}
