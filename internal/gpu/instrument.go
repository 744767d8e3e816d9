package gpu

import (
	"strconv"
	"sync"
	"time"

	"github.com/fxnlabs/gpuarray/internal/metrics"
	"go.uber.org/zap"
)

// instrumentedRuntime records metrics for every memory call and logs
// non-success statuses. Statuses are passed through unchanged.
type instrumentedRuntime struct {
	Runtime
	logger *zap.Logger

	mu    sync.Mutex
	sizes map[DevicePtr]int
}

// Instrument wraps rt so that Malloc, Free and Memcpy are observed by the
// metrics package.
func Instrument(rt Runtime, logger *zap.Logger) Runtime {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &instrumentedRuntime{
		Runtime: rt,
		logger:  logger.Named("runtime"),
		sizes:   make(map[DevicePtr]int),
	}
}

// Unwrap returns the runtime being instrumented.
func (r *instrumentedRuntime) Unwrap() Runtime {
	return r.Runtime
}

func (r *instrumentedRuntime) Malloc(size int) (DevicePtr, Status) {
	start := time.Now()
	ptr, st := r.Runtime.Malloc(size)
	r.observe("malloc", st, start)
	if st.OK() {
		r.mu.Lock()
		r.sizes[ptr] = size
		r.mu.Unlock()
		metrics.DeviceBytesAllocated.Add(float64(size))
	} else {
		r.logger.Warn("malloc failed", zap.Int("bytes", size), zap.Stringer("status", st))
	}
	return ptr, st
}

func (r *instrumentedRuntime) Free(ptr DevicePtr) Status {
	start := time.Now()
	st := r.Runtime.Free(ptr)
	r.observe("free", st, start)
	if st.OK() {
		r.mu.Lock()
		size, ok := r.sizes[ptr]
		delete(r.sizes, ptr)
		r.mu.Unlock()
		if ok {
			metrics.DeviceBytesAllocated.Sub(float64(size))
		}
	} else {
		r.logger.Warn("free failed", zap.Stringer("ptr", ptr), zap.Stringer("status", st))
	}
	return st
}

func (r *instrumentedRuntime) Memcpy(host []byte, device DevicePtr, kind MemcpyKind) Status {
	start := time.Now()
	st := r.Runtime.Memcpy(host, device, kind)
	r.observe("memcpy", st, start)
	if st.OK() {
		metrics.TransferBytes.WithLabelValues(kind.String()).Add(float64(len(host)))
	} else {
		r.logger.Warn("memcpy failed",
			zap.Stringer("direction", kind),
			zap.Int("bytes", len(host)),
			zap.Stringer("status", st))
	}
	return st
}

func (r *instrumentedRuntime) observe(op string, st Status, start time.Time) {
	name := r.Runtime.Name()
	metrics.RuntimeCallDuration.WithLabelValues(name, op).Observe(time.Since(start).Seconds())
	metrics.RuntimeCalls.WithLabelValues(name, op, strconv.Itoa(int(st))).Inc()
}

// Cleanup releases the wrapped runtime and forgets its live allocations.
func (r *instrumentedRuntime) Cleanup() error {
	if err := r.Runtime.Cleanup(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for ptr, size := range r.sizes {
		metrics.DeviceBytesAllocated.Sub(float64(size))
		delete(r.sizes, ptr)
	}
	return nil
}
