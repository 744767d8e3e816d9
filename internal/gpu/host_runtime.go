package gpu

import (
	"fmt"
	"runtime"
	"sync"

	"go.uber.org/zap"
)

const (
	// hostPtrBase is the first address handed out by the host runtime.
	// It is far from any real Go heap address so a simulated device pointer
	// is never mistaken for host memory.
	hostPtrBase = DevicePtr(0x7d0000000000)
	// hostPtrAlign matches the 256-byte alignment cudaMalloc guarantees.
	hostPtrAlign = 256
)

// HostRuntimeStats counts the calls served by a HostRuntime.
type HostRuntimeStats struct {
	Mallocs         int
	Frees           int
	Memcpys         int
	LiveAllocations int
	LiveBytes       int64
}

// HostRuntime implements Runtime by simulating device memory on the Go heap.
// It is the fallback when no GPU is present and the runtime used by tests.
type HostRuntime struct {
	logger      *zap.Logger
	mu          sync.Mutex
	initialized bool
	capacity    int64
	next        DevicePtr
	allocations map[DevicePtr][]byte
	stats       HostRuntimeStats
}

// NewHostRuntime creates a new host runtime instance.
// capacity bounds the simulated device memory in bytes; zero means unlimited.
func NewHostRuntime(logger *zap.Logger, capacity int64) *HostRuntime {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HostRuntime{
		logger:      logger,
		capacity:    capacity,
		next:        hostPtrBase,
		allocations: make(map[DevicePtr][]byte),
	}
}

// Name returns the runtime identifier
func (h *HostRuntime) Name() string {
	return "host"
}

// Initialize prepares the host runtime for use
func (h *HostRuntime) Initialize() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.initialized {
		return nil
	}
	h.initialized = true
	h.logger.Info("Host runtime initialized", zap.Int64("capacity_bytes", h.capacity))
	return nil
}

// Cleanup releases every live simulated allocation
func (h *HostRuntime) Cleanup() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n := len(h.allocations); n > 0 {
		h.logger.Warn("Releasing leaked device allocations", zap.Int("count", n), zap.Int64("bytes", h.stats.LiveBytes))
	}
	h.allocations = make(map[DevicePtr][]byte)
	h.stats.LiveAllocations = 0
	h.stats.LiveBytes = 0
	h.initialized = false
	return nil
}

// IsAvailable checks if the runtime is available (always true for host)
func (h *HostRuntime) IsAvailable() bool {
	return true
}

// GetDeviceInfo returns device information for the simulated device
func (h *HostRuntime) GetDeviceInfo() DeviceInfo {
	free, total, _ := h.MemInfo()
	return DeviceInfo{
		Name:              fmt.Sprintf("Host (%s)", runtime.GOARCH),
		TotalMemory:       total,
		AvailableMemory:   free,
		ComputeCapability: "N/A",
		DriverVersion:     runtime.Version(),
	}
}

// Malloc reserves size bytes of simulated device memory
func (h *HostRuntime) Malloc(size int) (DevicePtr, Status) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stats.Mallocs++

	if !h.initialized {
		return 0, StatusInitializationError
	}
	if size < 0 {
		return 0, StatusInvalidValue
	}
	if size == 0 {
		// cudaMalloc(0) succeeds and yields the null pointer
		return 0, StatusSuccess
	}
	if h.capacity > 0 && h.stats.LiveBytes+int64(size) > h.capacity {
		return 0, StatusMemoryAllocation
	}

	ptr := h.next
	h.next += DevicePtr((size + hostPtrAlign - 1) / hostPtrAlign * hostPtrAlign)
	h.allocations[ptr] = make([]byte, size)
	h.stats.LiveAllocations++
	h.stats.LiveBytes += int64(size)
	return ptr, StatusSuccess
}

// Free releases a simulated allocation
func (h *HostRuntime) Free(ptr DevicePtr) Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stats.Frees++

	if !h.initialized {
		return StatusInitializationError
	}
	if ptr.IsNil() {
		return StatusSuccess
	}
	buf, ok := h.allocations[ptr]
	if !ok {
		return StatusInvalidDevicePointer
	}
	delete(h.allocations, ptr)
	h.stats.LiveAllocations--
	h.stats.LiveBytes -= int64(len(buf))
	return StatusSuccess
}

// Memcpy copies between a host slice and a simulated allocation
func (h *HostRuntime) Memcpy(host []byte, device DevicePtr, kind MemcpyKind) Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stats.Memcpys++

	if !h.initialized {
		return StatusInitializationError
	}
	if kind != HostToDevice && kind != DeviceToHost {
		return StatusInvalidMemcpyDirection
	}
	if len(host) == 0 {
		return StatusSuccess
	}
	buf, ok := h.allocations[device]
	if !ok {
		return StatusInvalidDevicePointer
	}
	if len(host) > len(buf) {
		return StatusInvalidValue
	}

	if kind == HostToDevice {
		copy(buf, host)
	} else {
		copy(host, buf)
	}
	return StatusSuccess
}

// MemInfo reports free and total simulated memory.
// An unlimited host runtime reports a total of 0.
func (h *HostRuntime) MemInfo() (free, total int64, status Status) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.capacity == 0 {
		return 0, 0, StatusSuccess
	}
	return h.capacity - h.stats.LiveBytes, h.capacity, StatusSuccess
}

// Stats returns a snapshot of the call counters
func (h *HostRuntime) Stats() HostRuntimeStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

// Peek returns a copy of the bytes held by a simulated allocation.
// It exists for tests and debugging; real device memory cannot be read this way.
func (h *HostRuntime) Peek(ptr DevicePtr) ([]byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	buf, ok := h.allocations[ptr]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(buf))
	copy(out, buf)
	return out, true
}

// Poke overwrites the start of a simulated allocation, standing in for a
// device-side kernel writing to memory.
func (h *HostRuntime) Poke(ptr DevicePtr, data []byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	buf, ok := h.allocations[ptr]
	if !ok || len(data) > len(buf) {
		return false
	}
	copy(buf, data)
	return true
}
