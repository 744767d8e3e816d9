package array

import (
	"testing"

	"github.com/fxnlabs/gpuarray/internal/gpu"
	"github.com/fxnlabs/gpuarray/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// countingAllocator records every Allocate and Free it serves.
type countingAllocator struct {
	inner     *GoAllocator
	allocated int
	freed     int
	freedLens []int
}

func (c *countingAllocator) Allocate(size int) []byte {
	c.allocated++
	return c.inner.Allocate(size)
}

func (c *countingAllocator) Free(b []byte) {
	c.freed++
	c.freedLens = append(c.freedLens, len(b))
}

func newCountingAllocator() *countingAllocator {
	return &countingAllocator{inner: NewGoAllocator()}
}

func newRuntime(t *testing.T, capacity int64) *gpu.HostRuntime {
	t.Helper()
	rt := gpu.NewHostRuntime(zap.NewNop(), capacity)
	require.NoError(t, rt.Initialize())
	t.Cleanup(func() { _ = rt.Cleanup() })
	return rt
}

func TestNewWithShape_SizeAndStrides(t *testing.T) {
	rt := newRuntime(t, 0)

	testCases := []struct {
		name    string
		shape   []int
		size    int
		strides []int
	}{
		{name: "vector", shape: []int{5}, size: 5, strides: []int{4}},
		{name: "matrix 4x3", shape: []int{4, 3}, size: 12, strides: []int{12, 4}},
		{name: "rank 3", shape: []int{2, 3, 4}, size: 24, strides: []int{48, 16, 4}},
		{name: "unit dims", shape: []int{1, 1, 7}, size: 7, strides: []int{28, 28, 4}},
		{name: "zero extent", shape: []int{3, 0, 2}, size: 0, strides: []int{0, 8, 4}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			a, err := NewWithShape[float32](rt, tc.shape)
			require.NoError(t, err)
			defer a.Close()

			assert.Equal(t, tc.size, a.Size())
			assert.Equal(t, tc.shape, a.Shape())
			assert.Equal(t, tc.strides, a.Strides())
			assert.Equal(t, len(tc.shape), a.NDim())
			assert.Len(t, a.HostData(), tc.size)
			assert.True(t, a.HostOwned())
			assert.False(t, a.Allocated())
			assert.True(t, a.DeviceData().IsNil())
			assert.Equal(t, gpu.StatusSuccess, a.LastStatus())
		})
	}
}

func TestStrides_FollowElementSize(t *testing.T) {
	rt := newRuntime(t, 0)
	shape := []int{2, 3, 5}

	check := func(t *testing.T, strides []int, itemSize int) {
		require.Len(t, strides, len(shape))
		assert.Equal(t, itemSize, strides[len(strides)-1])
		for i := 0; i < len(shape)-1; i++ {
			assert.Equal(t, strides[i+1]*shape[i+1], strides[i])
		}
	}

	a8, err := NewWithShape[int8](rt, shape)
	require.NoError(t, err)
	check(t, a8.Strides(), 1)

	a64, err := NewWithShape[float64](rt, shape)
	require.NoError(t, err)
	check(t, a64.Strides(), 8)

	c128, err := NewWithShape[complex128](rt, shape)
	require.NoError(t, err)
	check(t, c128.Strides(), 16)
}

func TestNew_ByCount(t *testing.T) {
	rt := newRuntime(t, 0)

	a, err := New[int32](rt, 10)
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, 10, a.Size())
	assert.Equal(t, []int{10}, a.Shape())
	assert.Equal(t, []int{4}, a.Strides())
	assert.Equal(t, 40, a.Nbytes())
	assert.Equal(t, "i", a.Format())
	assert.Equal(t, "int32", a.Label())
}

func TestConstructors_RejectInvalidArguments(t *testing.T) {
	rt := newRuntime(t, 0)

	t.Run("nil runtime", func(t *testing.T) {
		_, err := New[float32](nil, 3)
		assert.Error(t, err)
	})

	t.Run("negative count", func(t *testing.T) {
		_, err := New[float32](rt, -1)
		assert.Error(t, err)
	})

	t.Run("empty shape", func(t *testing.T) {
		_, err := NewWithShape[float32](rt, nil)
		assert.ErrorIs(t, err, errEmptyShape)
	})

	t.Run("negative extent", func(t *testing.T) {
		_, err := NewWithShape[float32](rt, []int{2, -3})
		assert.EqualError(t, err, "invalid dimension at index 1: -3 (must be >= 0)")
	})

	t.Run("wrap count beyond slice", func(t *testing.T) {
		_, err := Wrap(rt, make([]float64, 4), 5)
		assert.Error(t, err)
	})

	t.Run("wrap shape beyond slice", func(t *testing.T) {
		_, err := WrapWithShape(rt, make([]float64, 5), []int{2, 3})
		assert.EqualError(t, err, "shape [2 3] needs 6 elements, got 5")
	})
}

func TestConstructor_CopiesShape(t *testing.T) {
	rt := newRuntime(t, 0)
	shape := []int{4, 3}

	a, err := NewWithShape[float32](rt, shape)
	require.NoError(t, err)
	shape[0] = 100
	assert.Equal(t, []int{4, 3}, a.Shape())

	got := a.Shape()
	got[1] = 100
	assert.Equal(t, []int{4, 3}, a.Shape())
}

func TestAllocate_Idempotent(t *testing.T) {
	rt := newRuntime(t, 0)

	a, err := NewWithShape[float32](rt, []int{4, 3})
	require.NoError(t, err)
	defer a.Close()

	first := a.Allocate()
	assert.Equal(t, Performed, first.Outcome)
	assert.True(t, first.OK())
	require.True(t, a.Allocated())
	ptr := a.DeviceData()
	assert.False(t, ptr.IsNil())

	second := a.Allocate()
	assert.True(t, second.Skipped())
	assert.Equal(t, ptr, a.DeviceData())
	assert.Equal(t, 1, rt.Stats().Mallocs)
	assert.Equal(t, 1, rt.Stats().LiveAllocations)
	assert.Equal(t, int64(48), rt.Stats().LiveBytes)
}

func TestTransfers_SkippedBeforeAllocate(t *testing.T) {
	rt := newRuntime(t, 0)

	data := []float32{1, 2, 3, 4}
	a, err := Wrap(rt, data, len(data))
	require.NoError(t, err)
	defer a.Close()

	res := a.ToDevice()
	assert.True(t, res.Skipped())
	assert.Equal(t, gpu.StatusSuccess, res.Status)

	res = a.ToHost()
	assert.True(t, res.Skipped())

	assert.Equal(t, []float32{1, 2, 3, 4}, a.HostData())
	assert.Equal(t, 0, rt.Stats().Memcpys)
	assert.Equal(t, gpu.StatusSuccess, a.LastStatus())
}

func TestTransfers_SkipKeepsFailedStatus(t *testing.T) {
	rt := newRuntime(t, 16)

	a, err := New[float64](rt, 4) // 32 bytes, over capacity
	require.NoError(t, err)
	defer a.Close()

	res := a.Allocate()
	assert.Equal(t, Performed, res.Outcome)
	assert.Equal(t, gpu.StatusMemoryAllocation, res.Status)
	assert.False(t, a.Allocated())
	assert.Equal(t, gpu.StatusMemoryAllocation, a.LastStatus())

	res = a.ToDevice()
	assert.True(t, res.Skipped())
	assert.Equal(t, gpu.StatusMemoryAllocation, res.Status)
	assert.Equal(t, gpu.StatusMemoryAllocation, a.LastStatus())
}

func TestRoundTrip_PreservesPattern(t *testing.T) {
	rt := newRuntime(t, 0)

	a, err := NewWithShape[float64](rt, []int{3, 5})
	require.NoError(t, err)
	defer a.Close()

	pattern := make([]float64, a.Size())
	for i := range pattern {
		pattern[i] = float64(i)*0.5 - 3
	}
	copy(a.HostData(), pattern)

	require.True(t, a.Allocate().OK())
	require.True(t, a.ToDevice().OK())

	for i := range a.HostData() {
		a.HostData()[i] = 0
	}
	require.True(t, a.ToHost().OK())

	assert.Equal(t, pattern, a.HostData())
	assert.Equal(t, gpu.StatusSuccess, a.LastStatus())
}

func TestToHost_SeesDeviceWrites(t *testing.T) {
	rt := newRuntime(t, 0)

	a, err := New[uint16](rt, 3)
	require.NoError(t, err)
	defer a.Close()

	require.True(t, a.Allocate().OK())
	require.True(t, rt.Poke(a.DeviceData(), []byte{1, 0, 2, 0, 3, 0}))
	require.True(t, a.ToHost().OK())

	assert.Equal(t, []uint16{1, 2, 3}, a.HostData())
}

func TestToDevice_WritesHostBytes(t *testing.T) {
	rt := newRuntime(t, 0)

	a, err := New[int8](rt, 4)
	require.NoError(t, err)
	defer a.Close()

	copy(a.HostData(), []int8{-1, 2, -3, 4})
	require.True(t, a.Allocate().OK())
	require.True(t, a.ToDevice().OK())

	got, ok := rt.Peek(a.DeviceData())
	require.True(t, ok)
	assert.Equal(t, []byte{0xff, 2, 0xfd, 4}, got)
}

func TestWrap_SharesCallerMemory(t *testing.T) {
	rt := newRuntime(t, 0)

	data := []int64{10, 20, 30, 40, 50, 60}
	a, err := WrapWithShape(rt, data, []int{2, 3})
	require.NoError(t, err)
	defer a.Close()

	assert.False(t, a.HostOwned())
	assert.Equal(t, []int{24, 8}, a.Strides())

	a.HostData()[0] = 99
	assert.Equal(t, int64(99), data[0])
}

func TestWrap_NeverFreesCallerMemory(t *testing.T) {
	rt := newRuntime(t, 0)
	alloc := newCountingAllocator()

	data := make([]float32, 8)
	a, err := Wrap(rt, data, 6, WithHostAllocator(alloc))
	require.NoError(t, err)
	assert.Equal(t, 6, a.Size())

	require.NoError(t, a.Close())
	assert.Equal(t, 0, alloc.allocated)
	assert.Equal(t, 0, alloc.freed)

	b, err := WrapWithShape(rt, data, []int{2, 4}, WithHostAllocator(alloc))
	require.NoError(t, err)
	require.NoError(t, b.Close())
	assert.Equal(t, 0, alloc.freed)
}

func TestClose_ReleasesOwnedMemoryOnce(t *testing.T) {
	rt := newRuntime(t, 0)
	alloc := newCountingAllocator()

	a, err := NewWithShape[float32](rt, []int{4, 3}, WithHostAllocator(alloc))
	require.NoError(t, err)
	assert.Equal(t, 1, alloc.allocated)

	require.True(t, a.Allocate().OK())
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	assert.Equal(t, 1, alloc.freed)
	assert.Equal(t, []int{48}, alloc.freedLens)
	assert.Equal(t, 1, rt.Stats().Frees)
	assert.Equal(t, 0, rt.Stats().LiveAllocations)
	assert.True(t, a.Closed())
	assert.False(t, a.Allocated())
}

func TestClose_WithoutDeviceAllocation(t *testing.T) {
	rt := newRuntime(t, 0)

	a, err := New[float32](rt, 4)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	assert.Equal(t, 0, rt.Stats().Frees)
	assert.True(t, a.Allocate().Skipped())
	assert.Equal(t, 0, rt.Stats().Mallocs)
}

func TestClose_ReportsFailedFree(t *testing.T) {
	rt := newRuntime(t, 0)

	a, err := New[float32](rt, 4)
	require.NoError(t, err)
	require.True(t, a.Allocate().OK())

	// freeing behind the array's back makes its own free fail
	require.Equal(t, gpu.StatusSuccess, rt.Free(a.DeviceData()))

	err = a.Close()
	var statusErr *gpu.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, gpu.StatusInvalidDevicePointer, statusErr.Status)
	assert.Equal(t, gpu.StatusInvalidDevicePointer, a.LastStatus())
}

func TestMove_TransfersOwnership(t *testing.T) {
	rt := newRuntime(t, 0)
	alloc := newCountingAllocator()

	a, err := NewWithShape[float32](rt, []int{2, 2}, WithHostAllocator(alloc))
	require.NoError(t, err)
	copy(a.HostData(), []float32{1, 2, 3, 4})
	require.True(t, a.Allocate().OK())
	ptr := a.DeviceData()
	host := a.HostData()

	b := a.Move()

	assert.Equal(t, ptr, b.DeviceData())
	assert.True(t, b.Allocated())
	assert.True(t, b.HostOwned())
	assert.Equal(t, []int{2, 2}, b.Shape())
	assert.Same(t, &host[0], &b.HostData()[0])

	assert.False(t, a.Allocated())
	assert.False(t, a.HostOwned())
	assert.Nil(t, a.HostData())
	assert.True(t, a.DeviceData().IsNil())

	// destroying the source releases nothing
	require.NoError(t, a.Close())
	assert.Equal(t, 0, alloc.freed)
	assert.Equal(t, 0, rt.Stats().Frees)

	// the destination still works and releases everything exactly once
	require.True(t, b.ToDevice().OK())
	require.NoError(t, b.Close())
	assert.Equal(t, 1, alloc.freed)
	assert.Equal(t, 1, rt.Stats().Frees)
	assert.Equal(t, 0, rt.Stats().LiveAllocations)
}

func TestMove_SourceOperationsAreSkipped(t *testing.T) {
	rt := newRuntime(t, 0)

	a, err := New[float64](rt, 3)
	require.NoError(t, err)
	require.True(t, a.Allocate().OK())
	b := a.Move()
	defer b.Close()

	assert.True(t, a.ToDevice().Skipped())
	assert.True(t, a.ToHost().Skipped())

	res := a.Allocate()
	assert.True(t, res.Skipped())
	assert.False(t, a.Allocated())
	assert.Equal(t, 1, rt.Stats().Mallocs)
	assert.Equal(t, 1, rt.Stats().LiveAllocations)

	// the source no longer describes any memory
	assert.Equal(t, 0, a.Size())
	assert.Equal(t, 0, a.NDim())
	assert.Equal(t, 0, a.Nbytes())
	info := a.BufferInfo()
	assert.Nil(t, info.Ptr)
	assert.Equal(t, 0, info.NDim)
	assert.Equal(t, 0, info.Len())

	// moving an emptied array again yields another emptied array
	c := a.Move()
	assert.True(t, c.Allocate().Skipped())
	assert.Equal(t, 1, rt.Stats().Mallocs)
	require.NoError(t, c.Close())

	live := testutil.ToFloat64(metrics.LiveArrays)
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
	assert.Equal(t, live-1, testutil.ToFloat64(metrics.LiveArrays))
	assert.Equal(t, 0, rt.Stats().Frees)
}

func TestLastStatus_RecordsRuntimeFailures(t *testing.T) {
	rt := gpu.NewHostRuntime(zap.NewNop(), 0) // never initialized

	a, err := New[float32](rt, 4)
	require.NoError(t, err)
	defer a.Close()

	res := a.Allocate()
	assert.Equal(t, Performed, res.Outcome)
	assert.False(t, res.OK())
	assert.Equal(t, gpu.StatusInitializationError, a.LastStatus())
	assert.False(t, a.Allocated())
}

func TestZeroSizedArray(t *testing.T) {
	rt := newRuntime(t, 0)

	a, err := New[float32](rt, 0)
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, 0, a.Size())
	assert.NotNil(t, a.HostData())
	assert.True(t, a.Allocate().OK())
	assert.True(t, a.Allocated())
	assert.True(t, a.ToDevice().OK())
	assert.True(t, a.ToHost().OK())
}

func TestString(t *testing.T) {
	rt := newRuntime(t, 0)

	a, err := NewWithShape[float32](rt, []int{4, 3})
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, "DeviceArray_float32(shape=[4 3], host=owned, allocated=false)", a.String())
}
