package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"

	"github.com/born-ml/computegraph/internal/device/cpu"
	"github.com/born-ml/computegraph/internal/graph"
	"github.com/born-ml/computegraph/internal/kernel"
	"github.com/born-ml/computegraph/internal/ops"
	"github.com/born-ml/computegraph/internal/tensor"
	"github.com/born-ml/computegraph/internal/trace"
)

func (e *environment) listKernels(noTable bool) error {
	reg := kernel.Default()
	names := reg.Names()
	if noTable {
		for _, name := range names {
			fmt.Fprintln(e.out, name)
		}
		return nil
	}

	table := tablewriter.NewWriter(e.out)
	table.SetHeader([]string{"Kernel", "Bindings", "Params", "Spec", "Workgroup"})
	table.SetCaption(true, fmt.Sprintf("%d Kernels", len(names)))
	table.SetBorder(false)
	for _, name := range names {
		info, err := reg.Lookup(name)
		if err != nil {
			return err
		}
		table.Append([]string{
			name,
			strconv.Itoa(info.Bindings),
			strconv.Itoa(info.Params),
			strconv.Itoa(info.SpecConstants),
			fmt.Sprintf("%dx%dx%d", info.LocalSize[0], info.LocalSize[1], info.LocalSize[2]),
		})
	}
	table.Render()
	return nil
}

func (e *environment) compile(dir string, names []string) error {
	modules, err := kernel.Default().CompileAll(names...)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "create output dir")
	}
	for _, name := range moduleNames(modules) {
		words := modules[name]
		var buf bytes.Buffer
		if err := binary.Write(&buf, binary.LittleEndian, words); err != nil {
			return errors.Wrapf(err, "encode %s", name)
		}
		path := filepath.Join(dir, name+".spv")
		if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
			return errors.Wrapf(err, "write %s", path)
		}
		e.log.WithField("kernel", name).WithField("words", len(words)).Info("compiled")
		fmt.Fprintln(e.out, path)
	}
	return nil
}

// moduleNames returns the kernel names of modules in sorted order.
func moduleNames(modules map[string][]uint32) []string {
	names := make([]string, 0, len(modules))
	for name := range modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// parseShape parses a comma separated shape such as "2,3,5".
func parseShape(s string) (tensor.Shape, error) {
	parts := strings.Split(s, ",")
	shape := make(tensor.Shape, 0, len(parts))
	for _, p := range parts {
		d, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, errors.Wrapf(err, "invalid shape %q", s)
		}
		shape = append(shape, d)
	}
	if err := shape.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid shape %q", s)
	}
	return shape, nil
}

// newGraph creates a graph and a traced CPU device from the loaded config.
func (e *environment) newGraph() (*graph.ComputeGraph, *trace.Recorder) {
	g := graph.New(e.cfg, kernel.Default(), graph.WithLogger(e.log))
	dev := cpu.New(
		cpu.WithParallel(e.cfg.Parallel),
		cpu.WithLimits(e.cfg.Limits),
		cpu.WithLogger(e.log),
	)
	return g, trace.NewRecorder(dev)
}

func (e *environment) finish(rec *trace.Recorder, tracePath string) error {
	table := tablewriter.NewWriter(e.out)
	table.SetHeader([]string{"#", "Kernel", "Global", "Local", "Groups"})
	table.SetBorder(false)
	for _, r := range rec.Records() {
		table.Append([]string{
			strconv.Itoa(r.Seq),
			r.Kernel,
			fmt.Sprint(r.Global),
			fmt.Sprint(r.Local),
			r.Groups().String(),
		})
	}
	table.Render()

	if tracePath == "" {
		return nil
	}
	if err := rec.Save(tracePath); err != nil {
		return err
	}
	e.log.WithField("path", tracePath).Info("trace written")
	return nil
}

func (e *environment) runRoundTrip(shapeArg, layoutArg, tracePath string) error {
	shape, err := parseShape(shapeArg)
	if err != nil {
		return err
	}
	layout, err := tensor.ParseMemoryLayout(layoutArg)
	if err != nil {
		return err
	}
	if !layout.IsPacked() {
		return errors.Errorf("layout %s is not an int8x4 layout", layout)
	}

	g, rec := e.newGraph()
	numel := shape.NumElements()
	packed, err := g.AddTensor(shape, tensor.Int8x4, tensor.Buffer, layout)
	if err != nil {
		return err
	}
	in, err := g.AddStaging(tensor.Int8, numel)
	if err != nil {
		return err
	}
	out, err := g.AddStaging(tensor.Int8, numel)
	if err != nil {
		return err
	}
	registry := ops.NewRegistry()
	if err := registry.Apply(g, ops.StagingToInt8x4Buffer, in, packed); err != nil {
		return err
	}
	if err := registry.Apply(g, ops.Int8x4BufferToStaging, packed, out); err != nil {
		return err
	}

	ctx := context.Background()
	if err := g.Prepare(ctx, rec); err != nil {
		return err
	}
	defer g.Release()

	data := make([]byte, numel)
	for i := range data {
		data[i] = byte(i*7 + 1)
	}
	if err := g.WriteValue(in, data); err != nil {
		return err
	}
	if err := g.Execute(ctx); err != nil {
		return err
	}
	got, err := g.ReadValue(out)
	if err != nil {
		return err
	}

	match := bytes.Equal(data, got)
	fmt.Fprintf(e.out, "shape %v layout %s: %d elements, %d padded, match=%t\n",
		shape, layout, numel, g.PaddedNumelOf(packed), match)
	if err := e.finish(rec, tracePath); err != nil {
		return err
	}
	if !match {
		return errors.New("round trip mismatch")
	}
	return nil
}

type whereArgs struct {
	self, other, cond string
	dtype             string
	trace             string
}

func (e *environment) runWhere(args whereArgs) error {
	var dtype tensor.DataType
	switch args.dtype {
	case "float", "float32":
		dtype = tensor.Float32
	case "int32":
		dtype = tensor.Int32
	default:
		return errors.Errorf("unsupported dtype %q", args.dtype)
	}
	var shapes [3]tensor.Shape
	for i, s := range []string{args.self, args.other, args.cond} {
		shape, err := parseShape(s)
		if err != nil {
			return err
		}
		shapes[i] = shape
	}
	selfShape, otherShape, condShape := shapes[0], shapes[1], shapes[2]

	storage, err := e.cfg.StorageType()
	if err != nil {
		return err
	}
	g, rec := e.newGraph()
	self, err := g.AddTensor(selfShape, dtype, storage, tensor.Contiguous)
	if err != nil {
		return err
	}
	other, err := g.AddTensor(otherShape, dtype, storage, tensor.Contiguous)
	if err != nil {
		return err
	}
	cond, err := g.AddTensor(condShape, tensor.Bool, storage, tensor.Contiguous)
	if err != nil {
		return err
	}
	// The output starts as a scalar and takes the shape of self when run.
	out, err := g.AddTensorWithCapacity(tensor.Shape{1}, selfShape, dtype, storage, tensor.Contiguous)
	if err != nil {
		return err
	}
	if err := ops.NewRegistry().Apply(g, ops.WhereSelf, cond, self, other, out); err != nil {
		return err
	}

	ctx := context.Background()
	if err := g.Prepare(ctx, rec); err != nil {
		return err
	}
	defer g.Release()

	if err := g.WriteValue(self, encodeValues(dtype, selfShape.NumElements(), 1)); err != nil {
		return err
	}
	if err := g.WriteValue(other, encodeValues(dtype, otherShape.NumElements(), -1)); err != nil {
		return err
	}
	condData := make([]byte, 4*condShape.NumElements())
	for i := 0; i < condShape.NumElements(); i += 2 {
		binary.LittleEndian.PutUint32(condData[4*i:], 1)
	}
	if err := g.WriteValue(cond, condData); err != nil {
		return err
	}
	if err := g.Execute(ctx); err != nil {
		return err
	}

	raw, err := g.ReadValue(out)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "out shape %v: %s\n", g.SizesOf(out), formatValues(dtype, raw))
	return e.finish(rec, args.trace)
}

// encodeValues returns sign*(i+1) for i in [0, n) as 32-bit words of dtype.
func encodeValues(dtype tensor.DataType, n, sign int) []byte {
	buf := make([]byte, 4*n)
	for i := 0; i < n; i++ {
		v := sign * (i + 1)
		word := uint32(int32(v))
		if dtype == tensor.Float32 {
			word = math.Float32bits(float32(v))
		}
		binary.LittleEndian.PutUint32(buf[4*i:], word)
	}
	return buf
}

func formatValues(dtype tensor.DataType, raw []byte) string {
	vals := make([]string, 0, len(raw)/4)
	for i := 0; i+4 <= len(raw); i += 4 {
		word := binary.LittleEndian.Uint32(raw[i:])
		if dtype == tensor.Float32 {
			vals = append(vals, strconv.FormatFloat(float64(math.Float32frombits(word)), 'g', -1, 32))
		} else {
			vals = append(vals, strconv.Itoa(int(int32(word))))
		}
	}
	return "[" + strings.Join(vals, " ") + "]"
}
