package gpu

import "fmt"

// Status is the result code returned by a runtime call.
// The numeric values follow the CUDA runtime's cudaError_t so that codes
// reported by the CUDA runtime can be surfaced unchanged.
type Status int

// Status codes reported by runtimes. Host and CUDA runtimes share them.
const (
	StatusSuccess Status = 0

	// Argument and allocation failures.
	StatusInvalidValue        Status = 1
	StatusMemoryAllocation    Status = 2
	StatusInitializationError Status = 3

	// Pointer and copy failures.
	StatusInvalidDevicePointer   Status = 17
	StatusInvalidMemcpyDirection Status = 21

	// Driver and device availability.
	StatusInsufficientDriver Status = 35
	StatusNoDevice           Status = 100
	StatusNotReady           Status = 600

	StatusUnknown Status = 999
)

// String converts a status code to a human-readable message
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "Success"
	case StatusInvalidValue:
		return "Invalid value"
	case StatusMemoryAllocation:
		return "Memory allocation failed"
	case StatusInitializationError:
		return "Initialization error"
	case StatusInvalidDevicePointer:
		return "Invalid device pointer"
	case StatusInvalidMemcpyDirection:
		return "Invalid memcpy direction"
	case StatusInsufficientDriver:
		return "Insufficient driver"
	case StatusNoDevice:
		return "No device"
	case StatusNotReady:
		return "Not ready"
	case StatusUnknown:
		return "Unknown error"
	default:
		return fmt.Sprintf("Unknown error (%d)", int(s))
	}
}

// OK reports whether the status is StatusSuccess.
func (s Status) OK() bool {
	return s == StatusSuccess
}

// Err returns nil for StatusSuccess and a *StatusError otherwise.
// Nothing in this module calls Err implicitly; statuses are recorded and
// surfaced, and it is up to the caller to turn one into an error.
func (s Status) Err() error {
	if s == StatusSuccess {
		return nil
	}
	return &StatusError{Status: s}
}

// StatusError wraps a non-success Status as an error.
type StatusError struct {
	Status Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gpu runtime status %d: %s", int(e.Status), e.Status)
}

// DevicePtr is an address in device memory.
// It is only meaningful to further runtime calls and must never be
// dereferenced on the host. The zero value is the null device pointer.
type DevicePtr uintptr

// IsNil reports whether p is the null device pointer.
func (p DevicePtr) IsNil() bool {
	return p == 0
}

func (p DevicePtr) String() string {
	return fmt.Sprintf("0x%x", uintptr(p))
}

// MemcpyKind is the direction of a host/device copy.
type MemcpyKind int

const (
	HostToDevice MemcpyKind = iota + 1
	DeviceToHost
)

func (k MemcpyKind) String() string {
	switch k {
	case HostToDevice:
		return "host_to_device"
	case DeviceToHost:
		return "device_to_host"
	default:
		return "unknown"
	}
}
