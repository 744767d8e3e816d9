package gpu

// DeviceInfo contains information about the device a runtime drives
type DeviceInfo struct {
	Name              string `json:"name"`
	TotalMemory       int64  `json:"totalMemory"`     // in bytes
	AvailableMemory   int64  `json:"availableMemory"` // in bytes
	ComputeCapability string `json:"computeCapability"`
	DriverVersion     string `json:"driverVersion"`
	RuntimeVersion    string `json:"runtimeVersion,omitempty"`
}

// Runtime defines the interface to a GPU compute runtime.
// This interface allows for multiple runtime implementations (CUDA, a
// host-memory simulation, ...) behind one memory model: allocate, free and
// copy between host and device.
//
// Implementation notes:
// - Memory operations never return Go errors; they report a Status that the
//   caller records and inspects.
// - Runtimes must be safe for concurrent use, since one runtime is shared by
//   every array allocated on it.
// - Automatic fallback to the host runtime is handled by the Manager, not
//   the runtime.
type Runtime interface {
	// Name returns a short identifier for the runtime ("cuda", "host").
	Name() string

	// Malloc reserves size bytes of device memory.
	// The returned pointer is only valid when the status is StatusSuccess.
	Malloc(size int) (DevicePtr, Status)

	// Free releases a device allocation obtained from Malloc.
	Free(ptr DevicePtr) Status

	// Memcpy copies len(host) bytes between host and device.
	// HostToDevice reads from host and writes to device;
	// DeviceToHost reads from device and writes into host.
	Memcpy(host []byte, device DevicePtr, kind MemcpyKind) Status

	// MemInfo reports free and total device memory in bytes.
	MemInfo() (free, total int64, status Status)

	// GetDeviceInfo returns information about the device
	// This information is used for:
	// - Reporting capabilities from the CLI
	// - Debugging and troubleshooting
	GetDeviceInfo() DeviceInfo

	// IsAvailable checks if the runtime is available for use
	// This should perform a quick check without heavy initialization
	IsAvailable() bool

	// Initialize prepares the runtime for use
	// Should be called once before first use
	Initialize() error

	// Cleanup releases any resources held by the runtime
	// Must be called when the runtime is no longer needed
	Cleanup() error
}
