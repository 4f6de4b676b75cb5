// Package extract assembles the accumulated contribution matrices into the
// full 8-D output, projects the configured probability-mass-functions per
// (site, imt, poe, realization-or-mean), and persists them with provenance.
package extract

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/kailas-cloud/disagg/internal/domain"
	"github.com/kailas-cloud/disagg/internal/domain/bins"
	"github.com/kailas-cloud/disagg/internal/domain/prob"
	"github.com/kailas-cloud/disagg/internal/domain/tensor"
	"github.com/kailas-cloud/disagg/internal/repository/results"
	"github.com/kailas-cloud/disagg/internal/usecase/aggregate"
)

// poeAggTolerance is the maximum accepted relative deviation between the
// configured poe and the aggregate probability recomputed from the matrix.
const poeAggTolerance = 0.10

// Input carries everything the extraction consumes after the task farm
// finishes.
type Input struct {
	Acc     *aggregate.Accumulator
	Edges   *bins.Edges
	Sites   *domain.SiteCollection
	IMTs    []string
	IML     map[string]*tensor.Dense // imt -> (N, P, Z), NaN for missing
	OKSites map[int32]bool
	Rlzs    [][]int   // N x Z selected realization ids
	Weights []float64 // per realization id, full set
	PoEs    []float64 // configured poes, empty in fixed-intensity mode
	Outputs []string  // PMF names to extract
}

// Service extracts and persists the final disaggregation outputs.
type Service struct {
	repo   Writer
	logger *zap.Logger
}

// New creates the extractor.
func New(repo Writer, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Run extracts the configured PMFs for every (site, imt, poe, realization)
// plus a weighted-mean realization when more than one was selected. All-zero
// PMFs are skipped. Returns the number of PMFs persisted.
func (s *Service) Run(ctx context.Context, in Input) (int, error) {
	saved := 0
	for imti, imt := range in.IMTs {
		for si, site := range in.Sites.Sites() {
			if !in.OKSites[site.ID] {
				continue
			}
			cells := in.Acc.Get(aggregate.Key{IMTI: imti, SiteID: site.ID})
			if len(cells) == 0 {
				continue
			}
			n, err := s.extractSite(ctx, in, imti, imt, si, site, cells)
			if err != nil {
				return saved, err
			}
			saved += n
		}
	}
	s.logger.Info("disaggregation outputs persisted", zap.Int("pmfs", saved))
	return saved, nil
}

func (s *Service) extractSite(
	ctx context.Context, in Input,
	imti int, imt string, si int, site domain.Site,
	cells map[aggregate.Cell]*tensor.Dense,
) (int, error) {
	mat8, err := assemble8D(in.Edges, site.ID, cells)
	if err != nil {
		return 0, err
	}
	dims := mat8.Dims()
	nPoes, nRlzs := dims[6], dims[7]

	ws := siteWeights(in.Weights, in.Rlzs[si])

	saved := 0
	for pi := 0; pi < nPoes; pi++ {
		mat7 := mat8.Fix(6, pi) // (T, Ma, D, Lo, La, E, Z)

		for zi := 0; zi < nRlzs; zi++ {
			rlz := domain.IndexedRlz(in.Rlzs[si][zi])
			mat6 := mat7.Fix(6, zi)
			iml := in.IML[imt].At(si, pi, zi)
			n, err := s.savePMFs(ctx, in, rlz, imt, site, pi, iml, mat6)
			if err != nil {
				return saved, err
			}
			saved += n
		}

		if nRlzs > 1 {
			mat6 := prob.MeanLastAxis(mat7, ws)
			iml := meanIML(in.IML[imt], si, pi, ws)
			n, err := s.savePMFs(ctx, in, domain.MeanRlz(), imt, site, pi, iml, mat6)
			if err != nil {
				return saved, err
			}
			saved += n
		}
	}
	return saved, nil
}

// savePMFs persists every requested PMF of one 6-D (T, Ma, D, Lo, La, E)
// matrix, checking the recomputed aggregate probability against the target.
func (s *Service) savePMFs(
	ctx context.Context, in Input,
	rlz domain.RlzRef, imt string, site domain.Site, pi int,
	iml float64, mat6 *tensor.Dense,
) (int, error) {
	if !mat6.Any() {
		return 0, nil
	}

	poeAgg := prob.Aggregate(mat6)
	rec := results.PMFRecord{
		Location:  [2]float64{site.Lon, site.Lat},
		MagEdges:  in.Edges.Mag,
		DistEdges: in.Edges.Dist,
		LonEdges:  in.Edges.Lon[site.ID],
		LatEdges:  in.Edges.Lat[site.ID],
		EpsEdges:  in.Edges.Eps,
		TRTs:      in.Edges.TRTs,
		PoEAgg:    poeAgg,
	}
	if !math.IsNaN(iml) {
		rec.IML = &iml
	}
	if len(in.PoEs) > 0 {
		poe := in.PoEs[pi]
		rec.PoE = &poe
		if dev := math.Abs(poeAgg-poe) / poe; dev > poeAggTolerance {
			s.logger.Warn("aggregate probability deviates from the target poe",
				zap.Int32("site", site.ID),
				zap.String("imt", imt),
				zap.String("rlz", rlz.String()),
				zap.Float64("expected", poe),
				zap.Float64("actual", poeAgg),
			)
		}
	}

	agg5 := prob.CollapseTRT(mat6)
	saved := 0
	for _, name := range in.Outputs {
		pmf, err := prob.ExtractPMF(name, mat6, agg5)
		if err != nil {
			return saved, err
		}
		if !pmf.Any() {
			continue
		}
		if err := s.repo.SavePMF(ctx, rlz, imt, site.ID, pi, name, pmf, rec); err != nil {
			return saved, fmt.Errorf("persist %s: %w", name, err)
		}
		saved++
	}
	return saved, nil
}

// assemble8D lays the sparse (trt, mag-bin) cells into the dense 8-D matrix
// (T, Ma, D, Lo, La, E, P, Z). Cells no task contributed to stay zero.
func assemble8D(edges *bins.Edges, sid int32, cells map[aggregate.Cell]*tensor.Dense) (*tensor.Dense, error) {
	var cellDims []int
	for _, m := range cells {
		cellDims = m.Dims()
		break
	}
	nTRT := len(edges.TRTs)
	nMag := len(edges.Mag) - 1

	dims := append([]int{nTRT, nMag}, cellDims...)
	mat8 := tensor.New(dims...)
	cellLen := 1
	for _, d := range cellDims {
		cellLen *= d
	}

	data := mat8.Data()
	for cell, m := range cells {
		if m.Len() != cellLen {
			return nil, fmt.Errorf("site %d: cell (%d,%d) has %d elements, want %d",
				sid, cell.TRTI, cell.Magi, m.Len(), cellLen)
		}
		if cell.TRTI < 0 || cell.TRTI >= nTRT || cell.Magi < 0 || cell.Magi >= nMag {
			return nil, fmt.Errorf("site %d: cell (%d,%d) outside (%d,%d)",
				sid, cell.TRTI, cell.Magi, nTRT, nMag)
		}
		off := (cell.TRTI*nMag + cell.Magi) * cellLen
		copy(data[off:off+cellLen], m.Data())
	}
	return mat8, nil
}

// siteWeights renormalizes the weights of the selected realizations to sum
// to one. A zero total falls back to uniform weights.
func siteWeights(weights []float64, rlzs []int) []float64 {
	ws := make([]float64, len(rlzs))
	var sum float64
	for z, r := range rlzs {
		ws[z] = weights[r]
		sum += weights[r]
	}
	if sum == 0 {
		for z := range ws {
			ws[z] = 1 / float64(len(ws))
		}
		return ws
	}
	for z := range ws {
		ws[z] /= sum
	}
	return ws
}

// meanIML averages the intensity levels across realizations, ignoring the
// realizations whose curve was missing.
func meanIML(iml *tensor.Dense, si, pi int, ws []float64) float64 {
	var sum, wsum float64
	for zi, w := range ws {
		v := iml.At(si, pi, zi)
		if math.IsNaN(v) {
			continue
		}
		sum += w * v
		wsum += w
	}
	if wsum == 0 {
		return math.NaN()
	}
	return sum / wsum
}
