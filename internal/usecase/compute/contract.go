package compute

import (
	"github.com/kailas-cloud/disagg/internal/domain"
)

// Evaluator is the ground-motion evaluation collaborator: it returns the
// natural-log mean and standard deviation of the ground motion predicted by
// one model for each rupture context and an IMT.
type Evaluator interface {
	MeanStd(ctxs []domain.RuptureContext, imt string) (mean, std []float64, err error)
}

// RuptureReader reads rupture column data by row index list.
type RuptureReader interface {
	Read(idxs []int) (domain.ColumnSet, error)
}

// OpenTable opens a fresh read-only rupture table handle. Every task opens
// its own handle so concurrent tasks never share file state.
type OpenTable func() (RuptureReader, error)
