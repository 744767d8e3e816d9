package array

import "unsafe"

// BufferInfo describes host memory in the form generic buffer-exchange
// protocols expect: base pointer, item size, format, rank, extents and byte
// strides.
type BufferInfo struct {
	Ptr      unsafe.Pointer
	ItemSize int
	Format   string
	NDim     int
	Shape    []int
	Strides  []int

	// owner keeps the memory behind Ptr reachable for as long as the
	// description is.
	owner any
}

// Len returns the number of elements described.
func (b BufferInfo) Len() int {
	if len(b.Shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range b.Shape {
		n *= d
	}
	return n
}

// BufferInfo describes the array's host memory.
func (a *DeviceArray[T]) BufferInfo() BufferInfo {
	return BufferInfo{
		Ptr:      unsafe.Pointer(unsafe.SliceData(a.host.data)),
		ItemSize: ItemSize[T](),
		Format:   Format[T](),
		NDim:     len(a.shape),
		Shape:    a.Shape(),
		Strides:  a.Strides(),
		owner:    a.host.data,
	}
}

// DescribeSlice describes data as a buffer of the given shape, the way a
// foreign array library would expose its memory.
func DescribeSlice[T Element](data []T, shape []int) BufferInfo {
	return BufferInfo{
		Ptr:      unsafe.Pointer(unsafe.SliceData(data)),
		ItemSize: ItemSize[T](),
		Format:   Format[T](),
		NDim:     len(shape),
		Shape:    append([]int(nil), shape...),
		Strides:  rowMajorStrides(shape, ItemSize[T]()),
		owner:    data,
	}
}

// ElementsAt reinterprets the memory at ptr as n elements of T.
// The caller guarantees ptr addresses at least n live, aligned elements.
func ElementsAt[T Element](ptr unsafe.Pointer, n int) []T {
	if ptr == nil || n == 0 {
		return []T{}
	}
	return unsafe.Slice((*T)(ptr), n)
}
