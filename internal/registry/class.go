package registry

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/fxnlabs/gpuarray/internal/array"
	"github.com/fxnlabs/gpuarray/internal/gpu"
)

var errDevicePointer = errors.New("cannot wrap a device pointer: host memory required")

// Class is one registered element type, exposed as DeviceArray_<label>.
type Class struct {
	name     string
	label    string
	format   string
	itemSize int

	newWithShape func(shape []int) (Array, error)
	wrapAt       func(ptr unsafe.Pointer, shape []int) (Array, error)
}

func newClass[T array.Element](rt gpu.Runtime, opts []array.Option) *Class {
	label := array.Label[T]()
	return &Class{
		name:     "DeviceArray_" + label,
		label:    label,
		format:   array.Format[T](),
		itemSize: array.ItemSize[T](),
		newWithShape: func(shape []int) (Array, error) {
			a, err := array.NewWithShape[T](rt, shape, opts...)
			if err != nil {
				return nil, err
			}
			return typed[T]{a}, nil
		},
		wrapAt: func(ptr unsafe.Pointer, shape []int) (Array, error) {
			n, err := array.NumElements[T](shape)
			if err != nil {
				return nil, err
			}
			if ptr == nil && n > 0 {
				return nil, fmt.Errorf("nil pointer for %d elements", n)
			}
			a, err := array.WrapWithShape(rt, array.ElementsAt[T](ptr, n), shape, opts...)
			if err != nil {
				return nil, err
			}
			return typed[T]{a}, nil
		},
	}
}

// Name returns the exposed class name, e.g. DeviceArray_float32.
func (c *Class) Name() string { return c.name }

// Label returns the element type name.
func (c *Class) Label() string { return c.label }

// Format returns the buffer format tag.
func (c *Class) Format() string { return c.format }

// ItemSize returns the element size in bytes.
func (c *Class) ItemSize() int { return c.itemSize }

// New creates a one-dimensional array of n elements in owned host memory.
func (c *Class) New(n int) (Array, error) {
	return c.newWithShape([]int{n})
}

// NewWithShape creates an array of the given shape in owned host memory.
func (c *Class) NewWithShape(shape []int) (Array, error) {
	return c.newWithShape(shape)
}

// FromPointer wraps caller-owned host memory addressed by ptr.
// Device pointers and pointers to another element type are rejected.
func (c *Class) FromPointer(ptr Pointer, shape []int) (Array, error) {
	if !ptr.OnHost() {
		return nil, errDevicePointer
	}
	if ptr.Label() != c.label {
		return nil, fmt.Errorf("%s pointer cannot back %s", ptr.Label(), c.name)
	}
	return c.wrapAt(ptr.host, shape)
}

// FromBuffer wraps the memory described by buf, which stays owned by
// whoever exported it. The buffer must hold this class's element type in
// C-contiguous order.
func (c *Class) FromBuffer(buf Buffer) (Array, error) {
	if buf.Format != c.format || buf.ItemSize != c.itemSize {
		return nil, fmt.Errorf("buffer format %q (itemsize %d) does not match %s format %q",
			buf.Format, buf.ItemSize, c.name, c.format)
	}
	if buf.NDim != len(buf.Shape) {
		return nil, fmt.Errorf("buffer ndim %d does not match shape %v", buf.NDim, buf.Shape)
	}
	if !array.IsCContiguous(buf.Shape, buf.Strides, buf.ItemSize) {
		return nil, fmt.Errorf("buffer with shape %v and strides %v is not C-contiguous",
			buf.Shape, buf.Strides)
	}
	return c.wrapAt(buf.Ptr, buf.Shape)
}

func (c *Class) String() string {
	return fmt.Sprintf("%s(format=%q, itemsize=%d)", c.name, c.format, c.itemSize)
}
