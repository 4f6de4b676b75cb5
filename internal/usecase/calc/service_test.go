package calc

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/disagg/internal/config"
	"github.com/kailas-cloud/disagg/internal/domain"
	"github.com/kailas-cloud/disagg/internal/domain/bins"
	"github.com/kailas-cloud/disagg/internal/domain/tensor"
	"github.com/kailas-cloud/disagg/internal/usecase/compute"
	"github.com/kailas-cloud/disagg/internal/usecase/intensity"
)

func testEdges(t *testing.T, sc *domain.SiteCollection) *bins.Edges {
	t.Helper()
	edges, err := bins.Build(bins.Config{
		MagBinWidth:     0.5,
		DistBinWidth:    50,
		CoordBinWidth:   1.0,
		NumEpsilonBins:  2,
		TruncationLevel: 3,
		MaximumDistance: 100,
	}, sc, map[string][]float64{"Active Shallow Crust": {5.0, 6.0}})
	if err != nil {
		t.Fatalf("Build edges: %v", err)
	}
	return edges
}

func testCalcConfig() config.CalculationConfig {
	return config.CalculationConfig{
		MagBinWidth:       0.5,
		DistBinWidth:      50,
		CoordBinWidth:     1.0,
		NumEpsilonBins:    2,
		TruncationLevel:   3,
		MaximumDistance:   100,
		InvestigationTime: 50,
		IMTLevels:         map[string][]float64{"PGA": {0.01, 0.1, 1.0}},
		PoEs:              []float64{0.1},
		RlzIndex:          []int{0},
		ConcurrentTasks:   1,
		MaxDataTransfer:   1 << 40,
	}
}

func testDeps(t *testing.T) (*domain.SiteCollection, *fakeHazard, *fakeResolver) {
	t.Helper()
	sc, err := domain.NewSiteCollection([]domain.Site{{ID: 0, Lon: 10, Lat: 45}}, 0)
	if err != nil {
		t.Fatalf("NewSiteCollection: %v", err)
	}
	hz := &fakeHazard{
		weights:    []float64{1},
		trtByGrp:   []string{"Active Shallow Crust"},
		gsimsByGrp: []map[string][]int{{"FakeGMM": {0}}},
		sourceMags: map[string][]float64{"Active Shallow Crust": {5.0, 6.0}},
	}
	iml := tensor.New(1, 1, 1)
	iml.Data()[0] = 0.1
	rv := &fakeResolver{res: &intensity.Result{
		ByIMT:   map[string]*tensor.Dense{"PGA": iml},
		OKSites: map[int32]bool{0: true},
	}}
	return sc, hz, rv
}

func TestRun_HappyPath(t *testing.T) {
	sc, hz, rv := testDeps(t)
	res := &fakeResults{}
	comp := &fakeComputer{}
	ext := &fakeExtractor{}
	svc := New(testCalcConfig(), hz, res,
		&fakeTable{grpIDs: []int32{0, 0, 0}, mags: []float64{5.1, 5.2, 5.7}},
		&fakeSelector{rlzs: [][]int{{0}}}, rv, comp, ext, zap.NewNop())

	if err := svc.Run(context.Background(), sc); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.edges == nil {
		t.Error("bin edges were not persisted")
	}
	if res.rlzs == nil {
		t.Error("best_rlzs was not persisted")
	}
	// two (group, mag-bin) partitions x one IMT
	if len(comp.tasks) != 2 {
		t.Fatalf("ran %d tasks, want 2", len(comp.tasks))
	}
	magis := map[int]bool{}
	for _, task := range comp.tasks {
		magis[task.Magi] = true
		if task.IMT != "PGA" || task.TRTI != 0 {
			t.Errorf("task has IMT=%q TRTI=%d", task.IMT, task.TRTI)
		}
	}
	if !magis[0] || !magis[1] {
		t.Errorf("tasks cover mag bins %v, want bins 0 and 1", magis)
	}
	if ext.in == nil {
		t.Fatal("extraction did not run")
	}
	if ext.in.Acc == nil || len(ext.in.Outputs) == 0 {
		t.Error("extraction input is incomplete")
	}
}

func TestRun_AtomicGroupRejected(t *testing.T) {
	sc, hz, rv := testDeps(t)
	hz.atomic = []bool{true}
	svc := New(testCalcConfig(), hz, &fakeResults{},
		&fakeTable{grpIDs: []int32{0}, mags: []float64{5.1}},
		&fakeSelector{rlzs: [][]int{{0}}}, rv, &fakeComputer{}, &fakeExtractor{}, zap.NewNop())

	err := svc.Run(context.Background(), sc)
	if !errors.Is(err, domain.ErrAtomicGroup) {
		t.Fatalf("got %v, want ErrAtomicGroup", err)
	}
}

func TestRun_DataTransferCeiling(t *testing.T) {
	sc, hz, rv := testDeps(t)
	cfg := testCalcConfig()
	cfg.MaxDataTransfer = 1 // nothing fits
	comp := &fakeComputer{}
	svc := New(cfg, hz, &fakeResults{},
		&fakeTable{grpIDs: []int32{0}, mags: []float64{5.1}},
		&fakeSelector{rlzs: [][]int{{0}}}, rv, comp, &fakeExtractor{}, zap.NewNop())

	err := svc.Run(context.Background(), sc)
	if !errors.Is(err, domain.ErrDataTransfer) {
		t.Fatalf("got %v, want ErrDataTransfer", err)
	}
	if len(comp.tasks) != 0 {
		t.Error("tasks were submitted despite the transfer ceiling")
	}
}

func TestRun_TaskErrorCancelsRun(t *testing.T) {
	sc, hz, rv := testDeps(t)
	boom := errors.New("boom")
	comp := &fakeComputer{runFn: func(_ compute.Task) (*compute.Result, error) {
		return nil, boom
	}}
	ext := &fakeExtractor{}
	svc := New(testCalcConfig(), hz, &fakeResults{},
		&fakeTable{grpIDs: []int32{0}, mags: []float64{5.1}},
		&fakeSelector{rlzs: [][]int{{0}}}, rv, comp, ext, zap.NewNop())

	err := svc.Run(context.Background(), sc)
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want the task error", err)
	}
	if ext.in != nil {
		t.Error("extraction ran after a task failure")
	}
}

func TestRun_DisaggBySrc(t *testing.T) {
	sc, hz, rv := testDeps(t)
	hz.groupCurve = func(sid int32, rlz, grp int) *domain.HazardCurve {
		return &domain.HazardCurve{PoEs: map[string][]float64{
			"PGA": {0.3, 0.1, 0.01},
		}}
	}
	cfg := testCalcConfig()
	cfg.DisaggBySrc = true
	res := &fakeResults{}
	svc := New(cfg, hz, res,
		&fakeTable{grpIDs: []int32{0}, mags: []float64{5.1}},
		&fakeSelector{rlzs: [][]int{{0}}}, rv, &fakeComputer{}, &fakeExtractor{}, zap.NewNop())

	if err := svc.Run(context.Background(), sc); err != nil {
		t.Fatalf("Run: %v", err)
	}

	rec, ok := res.bySrc["poe-0.1/PGA"]
	if !ok {
		t.Fatalf("no by-source record, got %v", res.bySrc)
	}
	if len(rec.Data) != 1 || rec.Data[0] != 0.1 {
		t.Errorf("by-source data = %v, want [0.1] (iml 0.1 sits on a curve level)", rec.Data)
	}
	if rec.PoEAgg != 0.1 {
		t.Errorf("poe_agg = %v, want 0.1", rec.PoEAgg)
	}
}

func TestBlockSplit(t *testing.T) {
	blocks := blockSplit([]int{1, 2, 3, 4, 5}, 2)
	if len(blocks) != 3 {
		t.Fatalf("got %d blocks, want 3", len(blocks))
	}
	if len(blocks[2]) != 1 || blocks[2][0] != 5 {
		t.Errorf("last block = %v, want [5]", blocks[2])
	}

	if got := blockSplit(nil, 10); got != nil {
		t.Errorf("empty input split to %v", got)
	}
}

func TestInterp(t *testing.T) {
	xs := []float64{1, 2, 3}
	ys := []float64{10, 20, 40}

	if got := interp(2.5, xs, ys); got != 30 {
		t.Errorf("interp(2.5) = %v, want 30", got)
	}
	if got := interp(0, xs, ys); got != 10 {
		t.Errorf("interp below range = %v, want the first y", got)
	}
	if got := interp(9, xs, ys); got != 40 {
		t.Errorf("interp above range = %v, want the last y", got)
	}
}

func TestOutputsSize(t *testing.T) {
	sc, _, _ := testDeps(t)
	edges := testEdges(t, sc)
	// Mag: 8 bytes x 2 mag bins; TRT: 8 x 1
	got := outputsSize(edges, sc, 1, 1, 1, []string{"Mag", "TRT"})
	want := int64(8*2 + 8*1)
	if got != want {
		t.Errorf("outputsSize = %d, want %d", got, want)
	}
}
