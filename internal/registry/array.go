package registry

import (
	"github.com/fxnlabs/gpuarray/internal/array"
	"github.com/fxnlabs/gpuarray/internal/gpu"
)

// Buffer is the descriptor exchanged with foreign array libraries.
type Buffer = array.BufferInfo

// Array is a DeviceArray of any registered element type.
type Array interface {
	Allocate() array.Result
	ToDevice() array.Result
	ToHost() array.Result
	HostData() Pointer
	DeviceData() Pointer
	Allocated() bool
	LastStatus() gpu.Status
	Size() int
	NDim() int
	Shape() []int
	Strides() []int
	Nbytes() int
	ItemSize() int
	Format() string
	Label() string
	BufferInfo() Buffer
	Move() Array
	Close() error
	String() string
}

// typed adapts *array.DeviceArray[T] to Array.
type typed[T array.Element] struct {
	*array.DeviceArray[T]
}

func (a typed[T]) HostData() Pointer {
	return HostPointer(a.DeviceArray.HostData())
}

func (a typed[T]) DeviceData() Pointer {
	return devicePointer[T](a.DeviceArray.DeviceData())
}

func (a typed[T]) Move() Array {
	return typed[T]{a.DeviceArray.Move()}
}

// As returns the typed array behind a, if its element type is T.
func As[T array.Element](a Array) (*array.DeviceArray[T], bool) {
	t, ok := a.(typed[T])
	if !ok {
		return nil, false
	}
	return t.DeviceArray, true
}
