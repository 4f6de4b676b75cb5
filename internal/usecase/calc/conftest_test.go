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

type fakeHazard struct {
	weights    []float64
	trtByGrp   []string
	gsimsByGrp []map[string][]int
	sourceMags map[string][]float64
	atomic     []bool
	groupCurve func(sid int32, rlz, grp int) *domain.HazardCurve
}

func (f *fakeHazard) Weights(context.Context) ([]float64, error)    { return f.weights, nil }
func (f *fakeHazard) TRTByGroup(context.Context) ([]string, error)  { return f.trtByGrp, nil }
func (f *fakeHazard) AtomicGroups(context.Context) ([]bool, error)  { return f.atomic, nil }
func (f *fakeHazard) GSIMsByGroup(context.Context) ([]map[string][]int, error) {
	return f.gsimsByGrp, nil
}
func (f *fakeHazard) SourceMags(context.Context) (map[string][]float64, error) {
	return f.sourceMags, nil
}
func (f *fakeHazard) GroupCurve(_ context.Context, sid int32, rlz, grp int) (*domain.HazardCurve, error) {
	if f.groupCurve == nil {
		return nil, nil
	}
	return f.groupCurve(sid, rlz, grp), nil
}

type fakeResults struct {
	edges *bins.Edges
	rlzs  [][]int
	bySrc map[string]results.BySrcRecord
}

func (f *fakeResults) SaveBinEdges(_ context.Context, e *bins.Edges) error {
	f.edges = e
	return nil
}

func (f *fakeResults) SaveBestRlzs(_ context.Context, rlzs [][]int) error {
	f.rlzs = rlzs
	return nil
}

func (f *fakeResults) SaveBySrc(_ context.Context, label, imt string, sid int32, rec results.BySrcRecord) error {
	if f.bySrc == nil {
		f.bySrc = make(map[string]results.BySrcRecord)
	}
	f.bySrc[label+"/"+imt] = rec
	return nil
}

type fakeTable struct {
	grpIDs []int32
	mags   []float64
}

func (f *fakeTable) NumRuptures() int { return len(f.mags) }
func (f *fakeTable) GroupMag() ([]int32, []float64, error) {
	return f.grpIDs, f.mags, nil
}

type fakeSelector struct {
	rlzs [][]int
}

func (f *fakeSelector) Select(_ context.Context, _ *domain.SiteCollection, _ domain.IMTLevels,
	_ []float64, _ []int, _ int) ([][]int, error) {
	return f.rlzs, nil
}

type fakeResolver struct {
	res *intensity.Result
}

func (f *fakeResolver) Resolve(_ context.Context, _ *domain.SiteCollection, _ domain.IMTLevels,
	_ [][]int, _ []float64, _ map[string]float64) (*intensity.Result, error) {
	return f.res, nil
}

type fakeComputer struct {
	runFn func(t compute.Task) (*compute.Result, error)
	tasks []compute.Task
}

func (f *fakeComputer) Run(_ context.Context, t compute.Task, _ *domain.SiteCollection) (*compute.Result, error) {
	f.tasks = append(f.tasks, t)
	if f.runFn == nil {
		return &compute.Result{TRTI: t.TRTI, Magi: t.Magi, IMTI: t.IMTI}, nil
	}
	return f.runFn(t)
}

type fakeExtractor struct {
	in  *extract.Input
	err error
}

func (f *fakeExtractor) Run(_ context.Context, in extract.Input) (int, error) {
	f.in = &in
	return 0, f.err
}
