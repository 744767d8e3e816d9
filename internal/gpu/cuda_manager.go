//go:build cuda
// +build cuda

package gpu

// tryCreateCUDARuntime attempts to create a CUDA runtime when cuda build tag is present
func (m *Manager) tryCreateCUDARuntime() Runtime {
	return NewCUDARuntime(m.logger.Named("runtime"), m.cfg.Device)
}
