// Package selection chooses, per site, which realizations to disaggregate:
// either an explicit index list or the Z realizations whose hazard curve is
// closest to the weighted mean curve.
package selection

import (
	"context"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/kailas-cloud/disagg/internal/domain"
)

// minCurveValue is the threshold below which curve values are ignored by the
// RMSEP distance, matching the classical post-processing convention.
const minCurveValue = 0.01

// Service selects the realizations to disaggregate.
type Service struct {
	curves CurveReader
	logger *zap.Logger
}

// New creates a realization selector.
func New(curves CurveReader, logger *zap.Logger) *Service {
	return &Service{curves: curves, logger: logger}
}

// Select returns the N x Z matrix of realization indices. When rlzIndex is
// non-empty, every site gets the same explicit indices; otherwise the
// numRlzs realizations closest to the weighted mean curve are picked per
// site.
func (s *Service) Select(
	ctx context.Context,
	sites *domain.SiteCollection,
	il domain.IMTLevels,
	weights []float64,
	rlzIndex []int,
	numRlzs int,
) ([][]int, error) {
	n := sites.Len()
	r := len(weights)

	if len(rlzIndex) > 0 {
		z := len(rlzIndex)
		if z > r {
			return nil, fmt.Errorf("%w: Z=%d > R=%d", domain.ErrBadRlzCount, z, r)
		}
		rlzs := make([][]int, n)
		for i := range rlzs {
			rlzs[i] = append([]int(nil), rlzIndex...)
		}
		return rlzs, nil
	}

	z := numRlzs
	if z <= 0 {
		z = 1
	}
	if z > r {
		return nil, fmt.Errorf("%w: Z=%d > R=%d", domain.ErrBadRlzCount, z, r)
	}

	rlzs := make([][]int, n)
	for i := range rlzs {
		rlzs[i] = make([]int, z)
	}
	if r == 1 {
		return rlzs, nil
	}

	for i, site := range sites.Sites() {
		flat := make([][]float64, r)
		for rz := 0; rz < r; rz++ {
			curve, err := s.curves.Curve(ctx, site.ID, rz)
			if err != nil {
				return nil, fmt.Errorf("site %d rlz %d: %w", site.ID, rz, err)
			}
			flat[rz] = flatten(curve, il)
		}
		mean := weightedMean(flat, weights)
		copy(rlzs[i], closestToRef(flat, mean)[:z])
	}
	s.logger.Debug("selected realizations closest to the mean curve",
		zap.Int("Z", z), zap.Int("R", r))
	return rlzs, nil
}

// flatten concatenates the curve values across all IMTs in run order.
// A missing curve flattens to zeros.
func flatten(curve *domain.HazardCurve, il domain.IMTLevels) []float64 {
	var out []float64
	for _, imt := range il.IMTs() {
		lvls := il.Levels(imt)
		if curve == nil {
			out = append(out, make([]float64, len(lvls))...)
			continue
		}
		poes := curve.PoEs[imt]
		if len(poes) != len(lvls) {
			poes = make([]float64, len(lvls))
		}
		out = append(out, poes...)
	}
	return out
}

func weightedMean(curves [][]float64, weights []float64) []float64 {
	var wsum float64
	for _, w := range weights {
		wsum += w
	}
	mean := make([]float64, len(curves[0]))
	for rz, c := range curves {
		w := weights[rz] / wsum
		for i, v := range c {
			mean[i] += w * v
		}
	}
	return mean
}

// rmsep is the root mean square error percentage between a reference curve
// and another curve; only reference values above minCurveValue count.
func rmsep(ref, arr []float64) float64 {
	var sum float64
	var n int
	for i, rv := range ref {
		if rv > minCurveValue {
			d := 1 - arr[i]/rv
			sum += d * d
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(n))
}

// closestToRef ranks realization indices by RMSEP distance to the reference
// curve, closest first. Ties break on the lower index for determinism.
func closestToRef(curves [][]float64, ref []float64) []int {
	idx := make([]int, len(curves))
	dist := make([]float64, len(curves))
	for i, c := range curves {
		idx[i] = i
		dist[i] = rmsep(ref, c)
	}
	sort.SliceStable(idx, func(a, b int) bool { return dist[idx[a]] < dist[idx[b]] })
	return idx
}
