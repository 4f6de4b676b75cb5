// Package prob implements the independent-events probability combination rule
// and the probability-mass-function projections of disaggregation matrices.
package prob

import (
	"fmt"

	"github.com/kailas-cloud/disagg/internal/domain/tensor"
)

// CombineValues aggregates probabilities with 1 - (1-p1)...(1-pn).
func CombineValues(ps ...float64) float64 {
	acc := 1.0
	for _, p := range ps {
		acc *= 1 - p
	}
	return 1 - acc
}

// Combine merges two probability tensors element-wise with the independence
// rule. A nil input acts as the identity (all-zero probabilities). The
// operation is commutative and associative up to floating-point rounding.
func Combine(a, b *tensor.Dense) *tensor.Dense {
	if a == nil {
		return b.Clone()
	}
	if b == nil {
		return a.Clone()
	}
	if !a.SameShape(b) {
		panic(fmt.Sprintf("prob: shape mismatch %v vs %v", a.Dims(), b.Dims()))
	}
	out := a.Clone()
	od, bd := out.Data(), b.Data()
	for i := range od {
		od[i] = 1 - (1-od[i])*(1-bd[i])
	}
	return out
}

// Aggregate returns the implied aggregate exceedance probability of a PMF:
// 1 - prod(1-p) over all cells.
func Aggregate(t *tensor.Dense) float64 {
	acc := 1.0
	for _, v := range t.Data() {
		acc *= 1 - v
	}
	return 1 - acc
}

// Project marginalizes a probability tensor onto the kept axes, combining
// the dropped axes with the independence rule. The output dimensions follow
// the order of keep, which may permute axes.
func Project(t *tensor.Dense, keep ...int) *tensor.Dense {
	dims := t.Dims()
	outDims := make([]int, len(keep))
	for i, ax := range keep {
		outDims[i] = dims[ax]
	}
	out := tensor.New(outDims...)
	prodNE := out.Data() // running product of (1-p) per output cell
	for i := range prodNE {
		prodNE[i] = 1
	}

	strides := t.Strides()
	idx := make([]int, len(dims))
	for off, v := range t.Data() {
		rem := off
		for d := range dims {
			idx[d] = rem / strides[d]
			rem %= strides[d]
		}
		outOff := 0
		for i, ax := range keep {
			outOff = outOff*outDims[i] + idx[ax]
		}
		prodNE[outOff] *= 1 - v
	}
	for i := range prodNE {
		prodNE[i] = 1 - prodNE[i]
	}
	return out
}

// MeanLastAxis averages the tensor over its last axis with the given
// weights. The weights must already sum to 1.
func MeanLastAxis(t *tensor.Dense, weights []float64) *tensor.Dense {
	dims := t.Dims()
	z := dims[len(dims)-1]
	if z != len(weights) {
		panic(fmt.Sprintf("prob: %d weights for last axis of size %d", len(weights), z))
	}
	out := tensor.New(dims[:len(dims)-1]...)
	od, td := out.Data(), t.Data()
	for i := range od {
		var acc float64
		for j := 0; j < z; j++ {
			acc += td[i*z+j] * weights[j]
		}
		od[i] = acc
	}
	return out
}

// pmfSpec names the axes a PMF keeps. TRT-keeping PMFs project the raw 6-D
// (T, Ma, D, Lo, La, E) matrix; all others first collapse the TRT axis into
// a 5-D (Ma, D, Lo, La, E) aggregate.
type pmfSpec struct {
	keepTRT bool
	axes    []int
}

var pmfMap = map[string]pmfSpec{
	"Mag":          {axes: []int{0}},
	"Dist":         {axes: []int{1}},
	"Mag_Dist":     {axes: []int{0, 1}},
	"Mag_Dist_Eps": {axes: []int{0, 1, 4}},
	"Lon_Lat":      {axes: []int{2, 3}},
	"Mag_Lon_Lat":  {axes: []int{0, 2, 3}},
	"TRT":          {keepTRT: true, axes: []int{0}},
	"Lon_Lat_TRT":  {keepTRT: true, axes: []int{3, 4, 0}},
}

// PMFNames lists the supported PMF outputs in persistence order.
var PMFNames = []string{
	"Mag", "Dist", "Mag_Dist", "Mag_Dist_Eps",
	"Lon_Lat", "Mag_Lon_Lat", "TRT", "Lon_Lat_TRT",
}

// CollapseTRT combines the TRT axis of a 6-D (T, Ma, D, Lo, La, E) matrix
// into a 5-D aggregate.
func CollapseTRT(mat6 *tensor.Dense) *tensor.Dense {
	return Project(mat6, 1, 2, 3, 4, 5)
}

// ExtractPMF projects the named PMF out of the 6-D matrix and its
// TRT-collapsed 5-D aggregate.
func ExtractPMF(name string, mat6, agg5 *tensor.Dense) (*tensor.Dense, error) {
	spec, ok := pmfMap[name]
	if !ok {
		return nil, fmt.Errorf("unknown PMF %q", name)
	}
	if spec.keepTRT {
		return Project(mat6, spec.axes...), nil
	}
	return Project(agg5, spec.axes...), nil
}
