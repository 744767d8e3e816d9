package array

import (
	"errors"
	"fmt"
	"math"
)

var errEmptyShape = errors.New("shape must have at least one dimension")

// checkShape validates shape and returns its element count.
// Every extent must be non-negative and the total byte size must fit in an int.
func checkShape(shape []int, itemSize int) (int, error) {
	if len(shape) == 0 {
		return 0, errEmptyShape
	}
	size := 1
	for i, dim := range shape {
		if dim < 0 {
			return 0, fmt.Errorf("invalid dimension at index %d: %d (must be >= 0)", i, dim)
		}
		if dim != 0 && size > math.MaxInt/itemSize/dim {
			return 0, fmt.Errorf("shape %v overflows the addressable size", shape)
		}
		size *= dim
	}
	return size, nil
}

// rowMajorStrides computes C-order byte strides:
// strides[last] = itemSize and strides[i] = strides[i+1] * shape[i+1].
func rowMajorStrides(shape []int, itemSize int) []int {
	strides := make([]int, len(shape))
	stride := itemSize
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}

// IsCContiguous reports whether strides describe a dense row-major layout
// of shape with the given item size.
func IsCContiguous(shape, strides []int, itemSize int) bool {
	if len(shape) != len(strides) {
		return false
	}
	expected := rowMajorStrides(shape, itemSize)
	for i := range shape {
		// the stride of a dimension of extent 1 never affects addressing
		if shape[i] > 1 && strides[i] != expected[i] {
			return false
		}
	}
	return true
}

// NumElements returns the element count of shape for element type T,
// rejecting negative extents and shapes whose byte size overflows.
func NumElements[T Element](shape []int) (int, error) {
	return checkShape(shape, ItemSize[T]())
}
