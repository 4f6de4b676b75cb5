// Package compute implements the per-task disaggregation engine: for a batch
// of ruptures sharing one (source group, magnitude bin) it folds the
// probability-of-exceedance contributions into a 6-D matrix per site over
// (distance, lon, lat, epsilon, poe, realization).
package compute

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/kailas-cloud/disagg/internal/domain"
	"github.com/kailas-cloud/disagg/internal/domain/bins"
	"github.com/kailas-cloud/disagg/internal/domain/tensor"
)

// Task is one unit of parallel work: a rupture index block sharing one
// (source group, magnitude bin), disaggregated for one IMT. All calculation
// parameters travel with the task; nothing is read from process-wide state.
type Task struct {
	Idxs []int // rupture row indices

	TRTI int // tectonic-region-type index
	Magi int // magnitude bin index
	IMTI int // IMT index
	IMT  string

	IML   *tensor.Dense    // (N, P, Z) target intensities for this IMT
	Rlzs  [][]int          // N x Z selected realization ids
	GSIMs map[string][]int // ground-motion model -> realization ids

	Edges             *bins.Edges
	TruncationLevel   float64
	MaximumDistance   float64 // km
	InvestigationTime float64 // years, Poisson temporal model
}

// Result is the partial output of one task: per site, the 6-D matrix of
// exceedance contributions over (dist, lon, lat, eps, poe, rlz). Sites whose
// matrix is entirely zero are omitted.
type Result struct {
	TRTI   int
	Magi   int
	IMTI   int
	BySite map[int32]*tensor.Dense
}

// Service runs disaggregation tasks.
type Service struct {
	open   OpenTable
	gsims  map[string]Evaluator
	logger *zap.Logger
}

// New creates the per-task disaggregator. gsims maps ground-motion model
// names to their evaluators.
func New(open OpenTable, gsims map[string]Evaluator, logger *zap.Logger) *Service {
	return &Service{open: open, gsims: gsims, logger: logger}
}

// Run executes one task. It reopens the rupture table read-only, filters the
// ruptures per site by maximum distance, and folds the per-rupture
// probability-of-no-exceedance values into the site matrices. A task is a
// pure function of its inputs; it mutates no shared state.
func (s *Service) Run(ctx context.Context, t Task, sites *domain.SiteCollection) (*Result, error) {
	reader, err := s.open()
	if err != nil {
		return nil, fmt.Errorf("reopen rupture table: %w", err)
	}
	cols, err := reader.Read(t.Idxs)
	if err != nil {
		return nil, fmt.Errorf("read ruptures: %w", err)
	}
	rups, err := domain.RupturesFromColumns(cols)
	if err != nil {
		return nil, fmt.Errorf("build rupture records: %w", err)
	}

	dims := t.IML.Dims()
	nPoes, nRlzs := dims[1], dims[2]
	epsBins := len(t.Edges.Eps) - 1

	res := &Result{TRTI: t.TRTI, Magi: t.Magi, IMTI: t.IMTI,
		BySite: make(map[int32]*tensor.Dense)}

	for si, site := range sites.Sites() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// consider only the ruptures close to the site
		ctxs := make([]domain.RuptureContext, 0, len(rups))
		for _, rup := range rups {
			if rup.Rrup[si] <= t.MaximumDistance {
				ctxs = append(ctxs, rup.ContextForSite(si, site))
			}
		}
		if len(ctxs) == 0 {
			continue
		}

		mat6 := tensor.New(
			len(t.Edges.Dist)-1,
			len(t.Edges.Lon[site.ID])-1,
			len(t.Edges.Lat[site.ID])-1,
			epsBins, nPoes, nRlzs,
		)

		for gsim, rlzIDs := range t.GSIMs {
			zs := zsForGSIM(t.Rlzs[si], rlzIDs)
			if len(zs) == 0 {
				continue
			}
			eval, ok := s.gsims[gsim]
			if !ok {
				return nil, fmt.Errorf("no evaluator for ground-motion model %q", gsim)
			}
			mean, std, err := eval.MeanStd(ctxs, t.IMT)
			if err != nil {
				return nil, fmt.Errorf("evaluate %s: %w", gsim, err)
			}
			if err := s.foldSite(mat6, ctxs, mean, std, zs, si, site.ID, t); err != nil {
				return nil, err
			}
		}

		if mat6.Any() {
			res.BySite[site.ID] = mat6
		}
	}
	s.logger.Debug("disaggregation task done",
		zap.Int("ruptures", len(rups)),
		zap.Int("trti", t.TRTI),
		zap.Int("magi", t.Magi),
		zap.String("imt", t.IMT),
		zap.Int("sites_with_contributions", len(res.BySite)),
	)
	return res, nil
}

// foldSite accumulates the epsilon-binned exceedance contributions of every
// rupture context into the site matrix.
func (s *Service) foldSite(
	mat6 *tensor.Dense,
	ctxs []domain.RuptureContext,
	mean, std []float64,
	zs []int,
	si int, sid int32,
	t Task,
) error {
	if len(mean) != len(ctxs) || len(std) != len(ctxs) {
		return fmt.Errorf("evaluator returned %d/%d values for %d contexts",
			len(mean), len(std), len(ctxs))
	}
	distEdges := t.Edges.Dist
	lonEdges := t.Edges.Lon[sid]
	latEdges := t.Edges.Lat[sid]
	epsBins := len(t.Edges.Eps) - 1

	dims := t.IML.Dims()
	nPoes := dims[1]

	for u, rc := range ctxs {
		di := bins.IndexOf(distEdges, rc.Rrup)
		lo := bins.IndexOf(lonEdges, rc.Lon)
		la := bins.IndexOf(latEdges, rc.Lat)

		for pi := 0; pi < nPoes; pi++ {
			for _, zi := range zs {
				iml := t.IML.At(si, pi, zi)
				if math.IsNaN(iml) {
					continue // missing curve: skip, never treat as zero
				}
				lvl := (math.Log(iml) - mean[u]) / std[u]
				for ei := 0; ei < epsBins; ei++ {
					poe := epsBandPoE(lvl, t.Edges.Eps[ei], t.Edges.Eps[ei+1], t.TruncationLevel)
					if poe == 0 {
						continue
					}
					// Poisson temporal occurrence model
					pne := math.Exp(-rc.OccurrenceRate * t.InvestigationTime * poe)
					prev := mat6.At(di, lo, la, ei, pi, zi)
					mat6.Set(1-(1-prev)*pne, di, lo, la, ei, pi, zi)
				}
			}
		}
	}
	return nil
}

// zsForGSIM returns the z positions whose realization the model applies to.
func zsForGSIM(siteRlzs []int, rlzIDs []int) []int {
	var zs []int
	for z, rlz := range siteRlzs {
		for _, id := range rlzIDs {
			if rlz == id {
				zs = append(zs, z)
				break
			}
		}
	}
	return zs
}

// epsBandPoE returns the probability mass of the truncated standard normal
// above lvl and inside the epsilon band [lo, hi].
func epsBandPoE(lvl, lo, hi, trunc float64) float64 {
	from := math.Max(lvl, lo)
	if from >= hi {
		return 0
	}
	p := truncNormSF(from, trunc) - truncNormSF(hi, trunc)
	if p < 0 {
		return 0
	}
	return p
}

// truncNormSF is the survival function of the standard normal truncated to
// [-trunc, trunc].
func truncNormSF(x, trunc float64) float64 {
	if x <= -trunc {
		return 1
	}
	if x >= trunc {
		return 0
	}
	phi := func(v float64) float64 { return 0.5 * (1 + math.Erf(v/math.Sqrt2)) }
	denom := phi(trunc) - phi(-trunc)
	return (phi(trunc) - phi(x)) / denom
}
