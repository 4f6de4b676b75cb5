package compute

import (
	"github.com/kailas-cloud/disagg/internal/domain"
)

// memTable implements RuptureReader over in-memory rupture rows.
type memTable struct {
	rups []domain.Rupture
}

func (m *memTable) Read(idxs []int) (domain.ColumnSet, error) {
	cols := domain.ColumnSet{
		Scalar: map[string][]float64{
			domain.ColMag: nil, domain.ColRake: nil,
			domain.ColOccurrence: nil, domain.ColGroupID: nil,
		},
		BySite: map[string][][]float64{
			domain.ColRrup: nil, domain.ColClosestLon: nil, domain.ColClosestLat: nil,
		},
	}
	for _, i := range idxs {
		r := m.rups[i]
		cols.Scalar[domain.ColMag] = append(cols.Scalar[domain.ColMag], r.Mag)
		cols.Scalar[domain.ColRake] = append(cols.Scalar[domain.ColRake], r.Rake)
		cols.Scalar[domain.ColOccurrence] = append(cols.Scalar[domain.ColOccurrence], r.OccurrenceRate)
		cols.Scalar[domain.ColGroupID] = append(cols.Scalar[domain.ColGroupID], float64(r.GroupID))
		cols.BySite[domain.ColRrup] = append(cols.BySite[domain.ColRrup], r.Rrup)
		cols.BySite[domain.ColClosestLon] = append(cols.BySite[domain.ColClosestLon], r.ClosestLon)
		cols.BySite[domain.ColClosestLat] = append(cols.BySite[domain.ColClosestLat], r.ClosestLat)
	}
	return cols, nil
}

// fakeEvaluator implements Evaluator with a constant ln-mean and ln-stddev.
type fakeEvaluator struct {
	mean float64
	std  float64
}

func (f *fakeEvaluator) MeanStd(ctxs []domain.RuptureContext, _ string) ([]float64, []float64, error) {
	mean := make([]float64, len(ctxs))
	std := make([]float64, len(ctxs))
	for i := range ctxs {
		mean[i] = f.mean
		std[i] = f.std
	}
	return mean, std, nil
}
