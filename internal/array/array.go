// Package array implements DeviceArray, a typed, shape-aware buffer that
// owns at most one host allocation and at most one device allocation for
// the same logical data.
//
// Transfers between the two are explicit and caller-driven. Runtime status
// codes are recorded and surfaced through LastStatus, never raised, and an
// operation whose precondition is not met is skipped rather than failed.
// A DeviceArray is not safe for concurrent use.
package array

import (
	"errors"
	"fmt"

	"github.com/fxnlabs/gpuarray/internal/gpu"
	"github.com/fxnlabs/gpuarray/internal/metrics"
	"go.uber.org/zap"
)

var errNilRuntime = errors.New("runtime must not be nil")

// noCopy makes go vet's copylocks check reject copies of a DeviceArray.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// deviceHandle is an owned device allocation. Device memory is never
// borrowed: the only way to get one is Allocate.
type deviceHandle struct {
	ptr  gpu.DevicePtr
	live bool
}

type options struct {
	alloc  HostAllocator
	logger *zap.Logger
}

// Option configures a DeviceArray at construction.
type Option func(*options)

// WithHostAllocator sets the allocator for owned host memory.
func WithHostAllocator(alloc HostAllocator) Option {
	return func(o *options) {
		o.alloc = alloc
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// DeviceArray is a move-only buffer of T with a host side and an optional
// device side. Always use it through a pointer.
type DeviceArray[T Element] struct {
	noCopy noCopy

	rt     gpu.Runtime
	alloc  HostAllocator
	logger *zap.Logger

	size    int
	shape   []int
	strides []int

	host   hostHandle[T]
	device deviceHandle
	status gpu.Status
	closed bool
	moved  bool
}

// New creates a one-dimensional array of n elements in owned host memory.
func New[T Element](rt gpu.Runtime, n int, opts ...Option) (*DeviceArray[T], error) {
	return NewWithShape[T](rt, []int{n}, opts...)
}

// NewWithShape creates an array of the given shape in owned host memory.
func NewWithShape[T Element](rt gpu.Runtime, shape []int, opts ...Option) (*DeviceArray[T], error) {
	a, err := newArray[T](rt, shape, opts)
	if err != nil {
		return nil, err
	}
	a.host = ownedHost[T](a.alloc, a.size)
	a.logger.Debug("array created", zap.Ints("shape", a.shape), zap.Stringer("host", Owned))
	return a, nil
}

// Wrap creates a one-dimensional array over the first n elements of data.
// The memory stays the caller's: Close never releases it.
func Wrap[T Element](rt gpu.Runtime, data []T, n int, opts ...Option) (*DeviceArray[T], error) {
	if n < 0 || n > len(data) {
		return nil, fmt.Errorf("count %d out of range for %d elements", n, len(data))
	}
	return WrapWithShape(rt, data[:n], []int{n}, opts...)
}

// WrapWithShape creates an array of the given shape over data, which must
// hold at least as many elements as the shape describes.
// The memory stays the caller's: Close never releases it.
func WrapWithShape[T Element](rt gpu.Runtime, data []T, shape []int, opts ...Option) (*DeviceArray[T], error) {
	a, err := newArray[T](rt, shape, opts)
	if err != nil {
		return nil, err
	}
	if len(data) < a.size {
		return nil, fmt.Errorf("shape %v needs %d elements, got %d", shape, a.size, len(data))
	}
	a.host = borrowedHost(data[:a.size:a.size])
	a.logger.Debug("array created", zap.Ints("shape", a.shape), zap.Stringer("host", Borrowed))
	return a, nil
}

func newArray[T Element](rt gpu.Runtime, shape []int, opts []Option) (*DeviceArray[T], error) {
	if rt == nil {
		return nil, errNilRuntime
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.alloc == nil {
		o.alloc = NewGoAllocator()
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	itemSize := ItemSize[T]()
	size, err := checkShape(shape, itemSize)
	if err != nil {
		return nil, err
	}
	shapeCopy := append([]int(nil), shape...)

	metrics.LiveArrays.Inc()
	return &DeviceArray[T]{
		rt:      rt,
		alloc:   o.alloc,
		logger:  o.logger,
		size:    size,
		shape:   shapeCopy,
		strides: rowMajorStrides(shapeCopy, itemSize),
		status:  gpu.StatusSuccess,
	}, nil
}

// Allocate requests Size()*sizeof(T) bytes of device memory.
// It does not copy data. Calling it on an allocated, closed or moved-from
// array is skipped. The runtime's status is recorded; the array only counts as
// allocated when the runtime reports success.
func (a *DeviceArray[T]) Allocate() Result {
	if a.closed || a.moved || a.device.live {
		return a.skip("allocate")
	}

	ptr, st := a.rt.Malloc(a.Nbytes())
	a.status = st
	if st.OK() {
		a.device = deviceHandle{ptr: ptr, live: true}
	}
	a.logger.Debug("allocate",
		zap.Int("bytes", a.Nbytes()),
		zap.Stringer("ptr", ptr),
		zap.Stringer("status", st))
	return Result{Outcome: Performed, Status: st}
}

// ToDevice copies the host contents into the device allocation.
// It is skipped when no device allocation exists.
func (a *DeviceArray[T]) ToDevice() Result {
	return a.transfer("to_device", gpu.HostToDevice)
}

// ToHost copies the device contents back into host memory.
// It is skipped when no device allocation exists.
func (a *DeviceArray[T]) ToHost() Result {
	return a.transfer("to_host", gpu.DeviceToHost)
}

func (a *DeviceArray[T]) transfer(op string, kind gpu.MemcpyKind) Result {
	if !a.device.live {
		return a.skip(op)
	}
	st := a.rt.Memcpy(asBytes(a.host.data), a.device.ptr, kind)
	a.status = st
	a.logger.Debug(op, zap.Int("bytes", a.Nbytes()), zap.Stringer("status", st))
	return Result{Outcome: Performed, Status: st}
}

func (a *DeviceArray[T]) skip(op string) Result {
	metrics.SkippedOperations.WithLabelValues(op).Inc()
	a.logger.Debug("operation skipped",
		zap.String("op", op),
		zap.Bool("allocated", a.device.live),
		zap.Bool("closed", a.closed),
		zap.Bool("moved", a.moved))
	return Result{Outcome: Skipped, Status: a.status}
}

// Move transfers both allocations, the shape and the last status to a new
// array. The receiver is left owning nothing: it has no shape and a size of
// 0, reports Allocated() false, its HostData is nil and every later
// Allocate, ToDevice or ToHost is skipped. Its Close releases nothing.
func (a *DeviceArray[T]) Move() *DeviceArray[T] {
	moved := &DeviceArray[T]{
		rt:      a.rt,
		alloc:   a.alloc,
		logger:  a.logger,
		size:    a.size,
		shape:   a.shape,
		strides: a.strides,
		host:    a.host.take(),
		device:  a.device,
		status:  a.status,
		closed:  a.closed,
		moved:   a.moved,
	}
	a.device = deviceHandle{}
	a.size, a.shape, a.strides = 0, nil, nil
	a.moved = true
	if !moved.closed {
		metrics.LiveArrays.Inc()
	}
	return moved
}

// Close releases owned host memory and frees the device allocation if one
// exists. It is idempotent. A failed device free is recorded in LastStatus
// and also returned as a *gpu.StatusError.
func (a *DeviceArray[T]) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	metrics.LiveArrays.Dec()

	a.host.release(a.alloc)

	if !a.device.live {
		return nil
	}
	st := a.rt.Free(a.device.ptr)
	a.status = st
	a.device = deviceHandle{}
	a.logger.Debug("device memory freed", zap.Stringer("status", st))
	if err := st.Err(); err != nil {
		return fmt.Errorf("free device memory: %w", err)
	}
	return nil
}

// HostData returns the host elements. Writes through the slice change the
// array's host contents.
func (a *DeviceArray[T]) HostData() []T { return a.host.data }

// DeviceData returns the device address, or the null pointer when nothing
// is allocated. It must not be dereferenced on the host.
func (a *DeviceArray[T]) DeviceData() gpu.DevicePtr { return a.device.ptr }

// Allocated reports whether a device allocation currently exists.
func (a *DeviceArray[T]) Allocated() bool { return a.device.live }

// HostOwned reports whether Close will release the host memory.
func (a *DeviceArray[T]) HostOwned() bool { return a.host.ownership == Owned }

// Closed reports whether Close has been called.
func (a *DeviceArray[T]) Closed() bool { return a.closed }

// LastStatus returns the status of the most recent runtime call made by
// this array. It is StatusSuccess before any call.
func (a *DeviceArray[T]) LastStatus() gpu.Status { return a.status }

// Runtime returns the runtime the array allocates on.
func (a *DeviceArray[T]) Runtime() gpu.Runtime { return a.rt }

// Size returns the total element count.
func (a *DeviceArray[T]) Size() int { return a.size }

// NDim returns the number of dimensions.
func (a *DeviceArray[T]) NDim() int { return len(a.shape) }

// Shape returns a copy of the per-dimension extents.
func (a *DeviceArray[T]) Shape() []int { return append([]int(nil), a.shape...) }

// Strides returns a copy of the row-major byte strides.
func (a *DeviceArray[T]) Strides() []int { return append([]int(nil), a.strides...) }

// Nbytes returns Size() * ItemSize().
func (a *DeviceArray[T]) Nbytes() int { return a.size * ItemSize[T]() }

// ItemSize returns sizeof(T).
func (a *DeviceArray[T]) ItemSize() int { return ItemSize[T]() }

// Format returns the buffer format character for T.
func (a *DeviceArray[T]) Format() string { return Format[T]() }

// Label returns the element type name.
func (a *DeviceArray[T]) Label() string { return Label[T]() }

func (a *DeviceArray[T]) String() string {
	return fmt.Sprintf("DeviceArray_%s(shape=%v, host=%s, allocated=%t)",
		Label[T](), a.shape, a.host.ownership, a.device.live)
}
