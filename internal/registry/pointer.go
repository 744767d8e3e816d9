package registry

import (
	"fmt"
	"unsafe"

	"github.com/fxnlabs/gpuarray/internal/array"
	"github.com/fxnlabs/gpuarray/internal/gpu"
)

// Pointer is an opaque, typed address returned by HostData and DeviceData.
// It remembers which side of the bus it points into so a device address is
// never mistaken for host memory.
type Pointer struct {
	host   unsafe.Pointer
	device gpu.DevicePtr
	label  string
	onHost bool
}

// HostPointer returns a pointer to the first element of data.
func HostPointer[T array.Element](data []T) Pointer {
	return Pointer{
		host:   unsafe.Pointer(unsafe.SliceData(data)),
		label:  array.Label[T](),
		onHost: true,
	}
}

func devicePointer[T array.Element](ptr gpu.DevicePtr) Pointer {
	return Pointer{device: ptr, label: array.Label[T]()}
}

// OnHost reports whether the address is host memory.
func (p Pointer) OnHost() bool { return p.onHost }

// Label is the element type the pointer addresses.
func (p Pointer) Label() string { return p.label }

// Addr returns the numeric address.
func (p Pointer) Addr() uintptr {
	if p.onHost {
		return uintptr(p.host)
	}
	return uintptr(p.device)
}

// IsNil reports whether the pointer is null.
func (p Pointer) IsNil() bool { return p.Addr() == 0 }

func (p Pointer) String() string {
	side := "device"
	if p.onHost {
		side = "host"
	}
	return fmt.Sprintf("%s*%s(0x%x)", p.label, side, p.Addr())
}
