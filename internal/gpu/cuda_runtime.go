//go:build cuda
// +build cuda

package gpu

/*
#cgo CFLAGS: -I/usr/local/cuda/include -I/opt/cuda/include
#cgo LDFLAGS: -L/usr/local/cuda/lib64 -L/opt/cuda/lib64 -lcudart

#include <cuda_runtime.h>
#include <stdlib.h>
*/
import "C"
import (
	"fmt"
	"sync"
	"unsafe"

	"go.uber.org/zap"
)

// CUDARuntime implements Runtime using the NVIDIA CUDA runtime
type CUDARuntime struct {
	logger      *zap.Logger
	deviceID    int
	mu          sync.Mutex
	initialized bool
	deviceInfo  DeviceInfo
	available   bool
}

// NewCUDARuntime creates a new CUDA runtime instance bound to deviceID
func NewCUDARuntime(logger *zap.Logger, deviceID int) *CUDARuntime {
	if logger == nil {
		logger = zap.NewNop()
	}
	rt := &CUDARuntime{
		logger:   logger,
		deviceID: deviceID,
	}

	// Check if CUDA is available
	if err := rt.checkDevice(); err != nil {
		logger.Warn("CUDA device not available", zap.Error(err))
		rt.available = false
	} else {
		rt.available = true
	}

	return rt
}

// Name returns the runtime identifier
func (c *CUDARuntime) Name() string {
	return "cuda"
}

// Initialize selects the device and reads its properties
func (c *CUDARuntime) Initialize() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.available {
		return fmt.Errorf("CUDA device not available")
	}
	if c.initialized {
		return nil
	}

	c.logger.Debug("Initializing CUDA runtime", zap.Int("device", c.deviceID))

	if st := Status(C.cudaSetDevice(C.int(c.deviceID))); !st.OK() {
		return fmt.Errorf("failed to set CUDA device %d: %w", c.deviceID, st.Err())
	}

	var props C.struct_cudaDeviceProp
	if st := Status(C.cudaGetDeviceProperties(&props, C.int(c.deviceID))); !st.OK() {
		return fmt.Errorf("failed to get device properties: %w", st.Err())
	}

	var free, total C.size_t
	if st := Status(C.cudaMemGetInfo(&free, &total)); !st.OK() {
		return fmt.Errorf("failed to get memory info: %w", st.Err())
	}

	var driverVersion, runtimeVersion C.int
	C.cudaDriverGetVersion(&driverVersion)
	C.cudaRuntimeGetVersion(&runtimeVersion)

	c.deviceInfo = DeviceInfo{
		Name:              C.GoString(&props.name[0]),
		TotalMemory:       int64(total),
		AvailableMemory:   int64(free),
		ComputeCapability: fmt.Sprintf("%d.%d", int(props.major), int(props.minor)),
		DriverVersion:     formatCUDAVersion(int(driverVersion)),
		RuntimeVersion:    formatCUDAVersion(int(runtimeVersion)),
	}

	c.initialized = true
	c.logger.Info("CUDA runtime initialized",
		zap.String("device", c.deviceInfo.Name),
		zap.String("compute_capability", c.deviceInfo.ComputeCapability),
		zap.Float64("total_memory_gb", float64(c.deviceInfo.TotalMemory)/(1<<30)))

	return nil
}

// Malloc reserves device memory with cudaMalloc
func (c *CUDARuntime) Malloc(size int) (DevicePtr, Status) {
	if size < 0 {
		return 0, StatusInvalidValue
	}
	var ptr unsafe.Pointer
	st := Status(C.cudaMalloc(&ptr, C.size_t(size)))
	if !st.OK() {
		return 0, st
	}
	return DevicePtr(uintptr(ptr)), st
}

// Free releases device memory with cudaFree
func (c *CUDARuntime) Free(ptr DevicePtr) Status {
	return Status(C.cudaFree(devicePointer(ptr)))
}

// Memcpy copies between host and device memory with cudaMemcpy
func (c *CUDARuntime) Memcpy(host []byte, device DevicePtr, kind MemcpyKind) Status {
	if len(host) == 0 {
		return StatusSuccess
	}
	hostPtr := unsafe.Pointer(&host[0])
	n := C.size_t(len(host))

	switch kind {
	case HostToDevice:
		return Status(C.cudaMemcpy(devicePointer(device), hostPtr, n, C.cudaMemcpyHostToDevice))
	case DeviceToHost:
		return Status(C.cudaMemcpy(hostPtr, devicePointer(device), n, C.cudaMemcpyDeviceToHost))
	default:
		return StatusInvalidMemcpyDirection
	}
}

// MemInfo reports free and total device memory
func (c *CUDARuntime) MemInfo() (int64, int64, Status) {
	var free, total C.size_t
	st := Status(C.cudaMemGetInfo(&free, &total))
	return int64(free), int64(total), st
}

// GetDeviceInfo returns information about the CUDA device
func (c *CUDARuntime) GetDeviceInfo() DeviceInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deviceInfo
}

// IsAvailable checks if CUDA is available
func (c *CUDARuntime) IsAvailable() bool {
	return c.available
}

// Cleanup resets the device, releasing every allocation made on it
func (c *CUDARuntime) Cleanup() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return nil
	}

	c.logger.Debug("Cleaning up CUDA runtime")

	if st := Status(C.cudaDeviceReset()); !st.OK() {
		return fmt.Errorf("failed to reset CUDA device: %w", st.Err())
	}

	c.initialized = false
	return nil
}

// checkDevice verifies that the requested CUDA device exists
func (c *CUDARuntime) checkDevice() error {
	var count C.int
	if st := Status(C.cudaGetDeviceCount(&count)); !st.OK() {
		return fmt.Errorf("CUDA device check failed: %w", st.Err())
	}
	if c.deviceID < 0 || c.deviceID >= int(count) {
		return fmt.Errorf("CUDA device %d not found (%d present)", c.deviceID, int(count))
	}
	return nil
}

// devicePointer converts a device address back to the void* cudart expects.
//
//nolint:govet // device addresses are never Go pointers
func devicePointer(ptr DevicePtr) unsafe.Pointer {
	return unsafe.Pointer(uintptr(ptr))
}

// formatCUDAVersion renders 12040 as "12.4"
func formatCUDAVersion(v int) string {
	if v == 0 {
		return "Unknown"
	}
	return fmt.Sprintf("%d.%d", v/1000, (v%1000)/10)
}
