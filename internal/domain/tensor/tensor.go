// Package tensor provides a small dense multi-dimensional float64 array used
// for disaggregation matrices. Data is stored flat in row-major order.
package tensor

import "fmt"

// Dense is a dense N-dimensional array.
type Dense struct {
	dims []int
	data []float64
}

// New allocates a zero-filled tensor with the given dimensions.
func New(dims ...int) *Dense {
	n := 1
	for _, d := range dims {
		if d <= 0 {
			panic(fmt.Sprintf("tensor: non-positive dimension %d", d))
		}
		n *= d
	}
	return &Dense{dims: append([]int(nil), dims...), data: make([]float64, n)}
}

// FromData wraps an existing flat slice. The slice length must match the
// product of the dimensions.
func FromData(data []float64, dims ...int) *Dense {
	n := 1
	for _, d := range dims {
		n *= d
	}
	if len(data) != n {
		panic(fmt.Sprintf("tensor: data length %d does not match dims %v", len(data), dims))
	}
	return &Dense{dims: append([]int(nil), dims...), data: data}
}

// Dims returns the dimensions.
func (t *Dense) Dims() []int { return t.dims }

// Rank returns the number of dimensions.
func (t *Dense) Rank() int { return len(t.dims) }

// Len returns the total element count.
func (t *Dense) Len() int { return len(t.data) }

// Data returns the flat backing slice.
func (t *Dense) Data() []float64 { return t.data }

// At returns the element at the given multi-index.
func (t *Dense) At(idx ...int) float64 { return t.data[t.offset(idx)] }

// Set stores v at the given multi-index.
func (t *Dense) Set(v float64, idx ...int) { t.data[t.offset(idx)] = v }

// Any reports whether the tensor holds any nonzero element.
func (t *Dense) Any() bool {
	for _, v := range t.data {
		if v != 0 {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (t *Dense) Clone() *Dense {
	data := make([]float64, len(t.data))
	copy(data, t.data)
	return &Dense{dims: append([]int(nil), t.dims...), data: data}
}

// SameShape reports whether o has identical dimensions.
func (t *Dense) SameShape(o *Dense) bool {
	if len(t.dims) != len(o.dims) {
		return false
	}
	for i, d := range t.dims {
		if o.dims[i] != d {
			return false
		}
	}
	return true
}

func (t *Dense) offset(idx []int) int {
	if len(idx) != len(t.dims) {
		panic(fmt.Sprintf("tensor: index rank %d does not match tensor rank %d",
			len(idx), len(t.dims)))
	}
	off := 0
	for i, j := range idx {
		if j < 0 || j >= t.dims[i] {
			panic(fmt.Sprintf("tensor: index %d out of range for dimension %d (size %d)",
				j, i, t.dims[i]))
		}
		off = off*t.dims[i] + j
	}
	return off
}

// Fix returns a copy of the tensor with the given axis fixed at idx,
// reducing the rank by one.
func (t *Dense) Fix(axis, idx int) *Dense {
	if axis < 0 || axis >= len(t.dims) {
		panic(fmt.Sprintf("tensor: axis %d out of range for rank %d", axis, len(t.dims)))
	}
	if idx < 0 || idx >= t.dims[axis] {
		panic(fmt.Sprintf("tensor: index %d out of range for axis %d (size %d)",
			idx, axis, t.dims[axis]))
	}
	outDims := make([]int, 0, len(t.dims)-1)
	outDims = append(outDims, t.dims[:axis]...)
	outDims = append(outDims, t.dims[axis+1:]...)
	if len(outDims) == 0 {
		return FromData([]float64{t.data[idx]}, 1)
	}
	out := New(outDims...)
	strides := t.Strides()
	srcIdx := make([]int, len(t.dims))
	srcIdx[axis] = idx
	for i := range out.data {
		// decompose i over outDims into srcIdx, skipping the fixed axis
		rem := i
		for d := len(outDims) - 1; d >= 0; d-- {
			sd := d
			if d >= axis {
				sd = d + 1
			}
			srcIdx[sd] = rem % outDims[d]
			rem /= outDims[d]
		}
		off := 0
		for d, j := range srcIdx {
			off += j * strides[d]
		}
		out.data[i] = t.data[off]
	}
	return out
}

// Strides returns the row-major stride of each dimension.
func (t *Dense) Strides() []int {
	strides := make([]int, len(t.dims))
	s := 1
	for i := len(t.dims) - 1; i >= 0; i-- {
		strides[i] = s
		s *= t.dims[i]
	}
	return strides
}
