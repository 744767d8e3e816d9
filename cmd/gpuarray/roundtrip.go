package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fxnlabs/gpuarray/internal/array"
	"github.com/fxnlabs/gpuarray/internal/gpu"
	"github.com/fxnlabs/gpuarray/internal/registry"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func roundTripCommand() *cli.Command {
	return &cli.Command{
		Name:  "roundtrip",
		Usage: "Allocate an array, copy it to the device and back, and verify it",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "type",
				Value: "float32",
				Usage: "Element type `LABEL`, e.g. float64 or int16",
			},
			&cli.StringFlag{
				Name:  "shape",
				Value: "4,3",
				Usage: "Comma separated extents, e.g. 4,3",
			},
		},
		Action: func(c *cli.Context) error {
			shape, err := parseShape(c.String("shape"))
			if err != nil {
				return err
			}
			return withModule(c, func(_ *gpu.Manager, m *registry.Module) error {
				class, ok := m.ClassFor(c.String("type"))
				if !ok {
					return fmt.Errorf("unknown element type %q (see 'gpuarray types')", c.String("type"))
				}
				return roundTrip(c.App.Writer, class, shape, appLogger(c))
			})
		},
	}
}

// parseShape turns "4,3" into [4 3].
func parseShape(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("shape must have at least one dimension")
	}
	parts := strings.Split(s, ",")
	shape := make([]int, len(parts))
	for i, p := range parts {
		dim, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid dimension %q: %w", p, err)
		}
		shape[i] = dim
	}
	return shape, nil
}

// roundTrip fills an array with a byte pattern, sends it to the device,
// clears the host copy, reads it back and checks nothing changed.
func roundTrip(w io.Writer, class *registry.Class, shape []int, log *zap.Logger) error {
	a, err := class.NewWithShape(shape)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("close failed", zap.Error(err))
		}
	}()
	fmt.Fprintf(w, "%s size=%d strides=%v nbytes=%d\n", a, a.Size(), a.Strides(), a.Nbytes())

	host := hostBytes(a)
	fillPattern(a)
	want := toFloat64s(host)

	steps := []struct {
		name string
		run  func() array.Result
	}{
		{"allocate", a.Allocate},
		{"to_device", a.ToDevice},
		{"clear_host", func() array.Result {
			clear(host)
			return array.Result{Outcome: array.Performed, Status: gpu.StatusSuccess}
		}},
		{"to_host", a.ToHost},
	}
	for _, step := range steps {
		res := step.run()
		fmt.Fprintf(w, "  %-10s %-9s %s\n", step.name, res.Outcome, res.Status)
		if !res.OK() {
			return fmt.Errorf("%s failed: %s", step.name, res.Status)
		}
	}

	got := toFloat64s(host)
	if !floats.Equal(want, got) {
		return fmt.Errorf("round trip mismatch: checksum %v, got %v", floats.Sum(want), floats.Sum(got))
	}
	fmt.Fprintf(w, "verified %d bytes (checksum %v)\n", len(host), floats.Sum(got))

	if m := asMatrix(a); m != nil {
		fmt.Fprintf(w, "%v\n", mat.Formatted(m, mat.Squeeze()))
	}
	return nil
}

// hostBytes views an array's host memory as raw bytes.
func hostBytes(a registry.Array) []byte {
	return array.ElementsAt[uint8](a.BufferInfo().Ptr, a.Nbytes())
}

// fillPattern writes element indices into floating point arrays and a
// repeating byte pattern into everything else. Booleans only get 0 and 1.
func fillPattern(a registry.Array) {
	if t, ok := registry.As[float64](a); ok {
		for i := range t.HostData() {
			t.HostData()[i] = float64(i)
		}
		return
	}
	if t, ok := registry.As[float32](a); ok {
		for i := range t.HostData() {
			t.HostData()[i] = float32(i)
		}
		return
	}
	b := hostBytes(a)
	for i := range b {
		if a.Format() == "?" {
			b[i] = byte(i % 2)
		} else {
			b[i] = byte(i*7 + 1)
		}
	}
}

func toFloat64s(b []byte) []float64 {
	out := make([]float64, len(b))
	for i, v := range b {
		out[i] = float64(v)
	}
	return out
}

// asMatrix returns a rank 2 floating point array as a gonum matrix.
func asMatrix(a registry.Array) mat.Matrix {
	shape := a.Shape()
	if len(shape) != 2 || a.Size() == 0 {
		return nil
	}
	var data []float64
	if t, ok := registry.As[float64](a); ok {
		data = append(data, t.HostData()...)
	} else if t, ok := registry.As[float32](a); ok {
		data = make([]float64, t.Size())
		for i, v := range t.HostData() {
			data[i] = float64(v)
		}
	} else {
		return nil
	}
	return mat.NewDense(shape[0], shape[1], data)
}
