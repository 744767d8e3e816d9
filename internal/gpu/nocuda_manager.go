//go:build !cuda
// +build !cuda

package gpu

// tryCreateCUDARuntime attempts to create a CUDA runtime when cuda build tag is NOT present
func (m *Manager) tryCreateCUDARuntime() Runtime {
	return nil
}
