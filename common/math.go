package common

import (
	"unsafe"
)

// Epsilon is the length tolerance used by constraint and normalization code.
// Distances below this are treated as zero to avoid dividing by near-zero lengths.
const Epsilon = 1e-6

// Lerp linearly interpolates between a and b by t.
// t is not clamped; t=0 returns a, t=1 returns b.
//
// Parameters:
//   - a: start value
//   - b: end value
//   - t: interpolation factor
//
// Returns:
//   - float32: the interpolated value
func Lerp(a, b, t float32) float32 {
	return a + (b-a)*t
}

// Clamp constrains v to the inclusive range [lo, hi].
//
// Parameters:
//   - v: value to constrain
//   - lo: lower bound
//   - hi: upper bound
//
// Returns:
//   - float32: the constrained value
func Clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Clamp01 constrains v to [0, 1].
//
// Parameters:
//   - v: value to constrain
//
// Returns:
//   - float32: the constrained value
func Clamp01(v float32) float32 {
	return Clamp(v, 0, 1)
}

// SliceToBytes converts any slice to a byte slice for GPU buffer uploads.
// Uses unsafe pointer operations to create a view into the original data.
// WARNING: The returned slice shares memory with the input - do not modify.
//
// Parameters:
//   - data: source slice of any type
//
// Returns:
//   - []byte: byte slice view of the input data, or nil if input is empty
func SliceToBytes[T any](data []T) []byte {
	if len(data) == 0 {
		return nil
	}
	var zero T
	size := unsafe.Sizeof(zero)
	totalBytes := int(size) * len(data)
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), totalBytes)
}

// StructToBytes reinterprets a pointer to a struct as a raw byte slice using unsafe.
// The returned slice has length equal to the struct's size in memory.
//
// Parameters:
//   - v: pointer to the struct to reinterpret
//
// Returns:
//   - []byte: byte slice view of the struct's memory
func StructToBytes[T any](v *T) []byte {
	size := unsafe.Sizeof(*v)
	return unsafe.Slice((*byte)(unsafe.Pointer(v)), int(size))
}
