// Package intensity resolves the target intensity levels to disaggregate at:
// for each (site, realization, poe, IMT) it inverts the hazard curve by
// linear interpolation, or uses a fixed configured intensity.
package intensity

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/kailas-cloud/disagg/internal/domain"
	"github.com/kailas-cloud/disagg/internal/domain/tensor"
)

// Result holds the resolved intensities and the sites that can actually be
// disaggregated at the requested poes.
type Result struct {
	// ByIMT maps each IMT to an (N, P, Z) tensor of target intensities.
	// NaN marks a missing value (curve absent or site excluded).
	ByIMT map[string]*tensor.Dense
	// OKSites are the sites whose curves reach every requested poe.
	OKSites map[int32]bool
}

// Service resolves disaggregation intensities.
type Service struct {
	curves CurveReader
	logger *zap.Logger
}

// New creates an intensity resolver.
func New(curves CurveReader, logger *zap.Logger) *Service {
	return &Service{curves: curves, logger: logger}
}

// Resolve computes the (N, P, Z) intensity tensor per IMT. With no poes
// configured, the fixed intensities are used directly (P=1) and every site
// is ok. Otherwise each curve is inverted at the requested poes, sites whose
// model cannot reach a requested poe are warned about and excluded, and the
// run fails with ErrNoDisaggregation when no site survives.
func (s *Service) Resolve(
	ctx context.Context,
	sites *domain.SiteCollection,
	il domain.IMTLevels,
	rlzs [][]int,
	poes []float64,
	fixedIML map[string]float64,
) (*Result, error) {
	n := sites.Len()
	z := len(rlzs[0])

	if len(poes) == 0 {
		res := &Result{ByIMT: make(map[string]*tensor.Dense), OKSites: make(map[int32]bool)}
		for _, imt := range il.IMTs() {
			t := tensor.New(n, 1, z)
			d := t.Data()
			for i := range d {
				d[i] = fixedIML[imt]
			}
			res.ByIMT[imt] = t
		}
		for _, site := range sites.Sites() {
			res.OKSites[site.ID] = true
		}
		return res, nil
	}

	res := &Result{ByIMT: make(map[string]*tensor.Dense), OKSites: make(map[int32]bool)}
	for _, imt := range il.IMTs() {
		t := tensor.New(n, len(poes), z)
		fill(t.Data(), math.NaN())
		res.ByIMT[imt] = t
	}

	for si, site := range sites.Sites() {
		allMissing := true
		bad := false
		for zi, rlz := range rlzs[si] {
			curve, err := s.curves.Curve(ctx, site.ID, rlz)
			if err != nil {
				return nil, fmt.Errorf("site %d rlz %d: %w", site.ID, rlz, err)
			}
			if curve == nil {
				continue
			}
			allMissing = false
			for _, imt := range il.IMTs() {
				maxPoE := curve.Max(imt)
				for pi, poe := range poes {
					if poe > maxPoE {
						// the sources are too small to produce an effect at
						// this poe: exclude the site, keep the run going
						s.logger.Warn("disaggregation poe is too big for this site",
							zap.Int32("site", site.ID),
							zap.Float64("poe", poe),
							zap.Float64("max_poe", maxPoE),
							zap.Int("rlz", rlz),
							zap.String("imt", imt),
						)
						bad = true
						continue
					}
					iml := interpolate(poe, curve.PoEs[imt], il.Levels(imt))
					res.ByIMT[imt].Set(iml, si, pi, zi)
				}
			}
		}
		if allMissing || !bad {
			res.OKSites[site.ID] = true
		}
	}

	if len(res.OKSites) == 0 {
		return nil, fmt.Errorf("%w: no site reaches the requested poes", domain.ErrNoDisaggregation)
	}
	if len(res.OKSites) < n {
		s.logger.Warn("doing the disaggregation on a subset of the sites",
			zap.Int("ok_sites", len(res.OKSites)), zap.Int("total", n))
	}
	return res, nil
}

// interpolate inverts a hazard curve at the target poe. The curve PoEs
// decrease with the level, so both axes are reversed before the standard
// piecewise-linear interpolation; targets outside the range clamp to the
// nearest level.
func interpolate(poe float64, poes, levels []float64) float64 {
	n := len(poes)
	if n == 0 {
		return math.NaN()
	}
	xs := make([]float64, n) // increasing poes
	ys := make([]float64, n)
	for i := 0; i < n; i++ {
		xs[i] = poes[n-1-i]
		ys[i] = levels[n-1-i]
	}
	if poe <= xs[0] {
		return ys[0]
	}
	if poe >= xs[n-1] {
		return ys[n-1]
	}
	for i := 1; i < n; i++ {
		if poe <= xs[i] {
			frac := (poe - xs[i-1]) / (xs[i] - xs[i-1])
			return ys[i-1] + frac*(ys[i]-ys[i-1])
		}
	}
	return ys[n-1]
}

func fill(d []float64, v float64) {
	for i := range d {
		d[i] = v
	}
}
