//go:build !cuda
// +build !cuda

package gpu

import "go.uber.org/zap"

// CUDARuntime is a stub type when CUDA is not compiled in
type CUDARuntime struct {
	logger *zap.Logger
}

// NewCUDARuntime returns a runtime that always reports itself unavailable
func NewCUDARuntime(logger *zap.Logger, deviceID int) *CUDARuntime {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CUDARuntime{logger: logger}
}

// Stub implementations to satisfy the Runtime interface
func (c *CUDARuntime) Name() string { return "cuda" }

func (c *CUDARuntime) Malloc(size int) (DevicePtr, Status) {
	return 0, StatusInsufficientDriver
}

func (c *CUDARuntime) Free(ptr DevicePtr) Status {
	return StatusInsufficientDriver
}

func (c *CUDARuntime) Memcpy(host []byte, device DevicePtr, kind MemcpyKind) Status {
	return StatusInsufficientDriver
}

func (c *CUDARuntime) MemInfo() (int64, int64, Status) {
	return 0, 0, StatusInsufficientDriver
}

func (c *CUDARuntime) GetDeviceInfo() DeviceInfo {
	return DeviceInfo{Name: "CUDA not available"}
}

func (c *CUDARuntime) IsAvailable() bool {
	return false
}

func (c *CUDARuntime) Initialize() error {
	return errCUDAUnavailable
}

func (c *CUDARuntime) Cleanup() error {
	return nil
}
