package array

import "unsafe"

// Element is the set of element types a DeviceArray can hold.
// Every member is pointer-free and has a fixed size, so host memory can be
// reinterpreted as bytes for transfers.
type Element interface {
	bool |
		int8 | uint8 | int16 | uint16 | int32 | uint32 | int64 | uint64 |
		float32 | float64 | complex64 | complex128
}

// ItemSize returns sizeof(T) in bytes.
func ItemSize[T Element]() int {
	var zero T
	return int(unsafe.Sizeof(zero))
}

// Format returns the struct-module style format character for T, as used by
// buffer-exchange protocols.
func Format[T Element]() string {
	var zero T
	switch any(zero).(type) {
	case bool:
		return "?"
	case int8:
		return "b"
	case uint8:
		return "B"
	case int16:
		return "h"
	case uint16:
		return "H"
	case int32:
		return "i"
	case uint32:
		return "I"
	case int64:
		return "q"
	case uint64:
		return "Q"
	case float32:
		return "f"
	case float64:
		return "d"
	case complex64:
		return "Zf"
	case complex128:
		return "Zd"
	}
	panic("unreachable")
}

// Label returns the Go name of T, used to name registered classes.
func Label[T Element]() string {
	var zero T
	switch any(zero).(type) {
	case bool:
		return "bool"
	case int8:
		return "int8"
	case uint8:
		return "uint8"
	case int16:
		return "int16"
	case uint16:
		return "uint16"
	case int32:
		return "int32"
	case uint32:
		return "uint32"
	case int64:
		return "int64"
	case uint64:
		return "uint64"
	case float32:
		return "float32"
	case float64:
		return "float64"
	case complex64:
		return "complex64"
	case complex128:
		return "complex128"
	}
	panic("unreachable")
}

// asBytes reinterprets data as its underlying bytes without copying.
func asBytes[T Element](data []T) []byte {
	if len(data) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(data))), len(data)*ItemSize[T]())
}

// fromBytes reinterprets raw as n elements of T without copying.
// raw must be at least n*sizeof(T) bytes and suitably aligned for T.
func fromBytes[T Element](raw []byte, n int) []T {
	if n == 0 {
		return []T{}
	}
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(raw))), n)
}
