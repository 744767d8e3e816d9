package array

import "unsafe"

const alignment = 64

// HostAllocator provides the host memory behind arrays that own it.
// Allocate must return at least size bytes aligned to 64 bytes.
// Free is called exactly once for every buffer an array owned.
type HostAllocator interface {
	Allocate(size int) []byte
	Free(b []byte)
}

// GoAllocator allocates host memory on the Go heap.
type GoAllocator struct{}

// NewGoAllocator returns the default host allocator.
func NewGoAllocator() *GoAllocator { return &GoAllocator{} }

// Allocate returns a 64-byte aligned buffer of size bytes.
func (a *GoAllocator) Allocate(size int) []byte {
	buf := make([]byte, size+alignment) // padding for 64-byte alignment
	addr := int(uintptr(unsafe.Pointer(unsafe.SliceData(buf))))
	next := roundUpToMultipleOf64(addr)
	if addr != next {
		shift := next - addr
		return buf[shift : size+shift : size+shift]
	}
	return buf[:size:size]
}

// Free is a no-op; the garbage collector reclaims the buffer.
func (a *GoAllocator) Free(b []byte) {}

func roundUpToMultipleOf64(v int) int {
	return (v + (alignment - 1)) &^ (alignment - 1)
}

// Ownership records whether an array is responsible for releasing memory.
type Ownership int

const (
	// Borrowed memory belongs to the caller and is never released by the array.
	Borrowed Ownership = iota
	// Owned memory was allocated by the array and is released on Close.
	Owned
)

func (o Ownership) String() string {
	if o == Owned {
		return "owned"
	}
	return "borrowed"
}

// hostHandle is an ownership-tagged reference to host memory.
// raw is only set for owned memory and is what gets handed back to the
// allocator.
type hostHandle[T Element] struct {
	data      []T
	raw       []byte
	ownership Ownership
}

func ownedHost[T Element](alloc HostAllocator, n int) hostHandle[T] {
	raw := alloc.Allocate(n * ItemSize[T]())
	return hostHandle[T]{data: fromBytes[T](raw, n), raw: raw, ownership: Owned}
}

func borrowedHost[T Element](data []T) hostHandle[T] {
	return hostHandle[T]{data: data, ownership: Borrowed}
}

// release hands owned memory back to alloc. Borrowed memory is only dropped.
func (h *hostHandle[T]) release(alloc HostAllocator) {
	if h.ownership == Owned && h.raw != nil {
		alloc.Free(h.raw)
	}
	*h = hostHandle[T]{}
}

// take moves the handle out, leaving h empty.
func (h *hostHandle[T]) take() hostHandle[T] {
	moved := *h
	*h = hostHandle[T]{}
	return moved
}
