package calc

import (
	"context"

	"github.com/kailas-cloud/disagg/internal/domain"
	"github.com/kailas-cloud/disagg/internal/domain/bins"
	"github.com/kailas-cloud/disagg/internal/repository/results"
	"github.com/kailas-cloud/disagg/internal/usecase/compute"
	"github.com/kailas-cloud/disagg/internal/usecase/extract"
	"github.com/kailas-cloud/disagg/internal/usecase/intensity"
)

// HazardReader reads the precomputed hazard inputs.
type HazardReader interface {
	Weights(ctx context.Context) ([]float64, error)
	TRTByGroup(ctx context.Context) ([]string, error)
	GSIMsByGroup(ctx context.Context) ([]map[string][]int, error)
	SourceMags(ctx context.Context) (map[string][]float64, error)
	AtomicGroups(ctx context.Context) ([]bool, error)
	GroupCurve(ctx context.Context, sid int32, rlz, grp int) (*domain.HazardCurve, error)
}

// ResultsWriter persists the run outputs that the orchestrator owns.
type ResultsWriter interface {
	SaveBinEdges(ctx context.Context, e *bins.Edges) error
	SaveBestRlzs(ctx context.Context, rlzs [][]int) error
	SaveBySrc(ctx context.Context, label, imt string, sid int32, rec results.BySrcRecord) error
}

// Selector picks the realizations to disaggregate.
type Selector interface {
	Select(ctx context.Context, sites *domain.SiteCollection, il domain.IMTLevels,
		weights []float64, rlzIndex []int, numRlzs int) ([][]int, error)
}

// Resolver computes the target intensity levels.
type Resolver interface {
	Resolve(ctx context.Context, sites *domain.SiteCollection, il domain.IMTLevels,
		rlzs [][]int, poes []float64, fixedIML map[string]float64) (*intensity.Result, error)
}

// Computer runs one disaggregation task.
type Computer interface {
	Run(ctx context.Context, t compute.Task, sites *domain.SiteCollection) (*compute.Result, error)
}

// Extractor projects and persists the final PMFs.
type Extractor interface {
	Run(ctx context.Context, in extract.Input) (int, error)
}

// RuptureTable exposes the rupture table columns the orchestrator needs to
// partition the work.
type RuptureTable interface {
	NumRuptures() int
	GroupMag() (grpIDs []int32, mags []float64, err error)
}
