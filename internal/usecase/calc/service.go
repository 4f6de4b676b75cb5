// Package calc orchestrates a full disaggregation run: bin edges,
// realization selection, intensity resolution, the parallel task farm, the
// final extraction and the experimental by-source side output.
package calc

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/disagg/internal/config"
	"github.com/kailas-cloud/disagg/internal/domain"
	"github.com/kailas-cloud/disagg/internal/domain/bins"
	"github.com/kailas-cloud/disagg/internal/domain/prob"
	"github.com/kailas-cloud/disagg/internal/metrics"
	"github.com/kailas-cloud/disagg/internal/repository/results"
	"github.com/kailas-cloud/disagg/internal/usecase/aggregate"
	"github.com/kailas-cloud/disagg/internal/usecase/compute"
	"github.com/kailas-cloud/disagg/internal/usecase/extract"
	"github.com/kailas-cloud/disagg/internal/usecase/intensity"
)

// Service runs the disaggregation calculation end to end.
type Service struct {
	cfg       config.CalculationConfig
	hazard    HazardReader
	results   ResultsWriter
	table     RuptureTable
	selector  Selector
	resolver  Resolver
	computer  Computer
	extractor Extractor
	logger    *zap.Logger
}

// New wires the orchestrator.
func New(
	cfg config.CalculationConfig,
	hazard HazardReader,
	res ResultsWriter,
	table RuptureTable,
	selector Selector,
	resolver Resolver,
	computer Computer,
	extractor Extractor,
	logger *zap.Logger,
) *Service {
	return &Service{
		cfg: cfg, hazard: hazard, results: res, table: table,
		selector: selector, resolver: resolver,
		computer: computer, extractor: extractor, logger: logger,
	}
}

// Run executes the whole calculation for the given sites. Any task error
// cancels the run; nothing is partially persisted past the failure point.
func (s *Service) Run(ctx context.Context, sites *domain.SiteCollection) error {
	weights, err := s.hazard.Weights(ctx)
	if err != nil {
		return err
	}
	trtByGrp, err := s.hazard.TRTByGroup(ctx)
	if err != nil {
		return err
	}
	gsimsByGrp, err := s.hazard.GSIMsByGroup(ctx)
	if err != nil {
		return err
	}
	atomic, err := s.hazard.AtomicGroups(ctx)
	if err != nil {
		return err
	}
	for g, a := range atomic {
		if a {
			return fmt.Errorf("%w: group %d", domain.ErrAtomicGroup, g)
		}
	}
	sourceMags, err := s.hazard.SourceMags(ctx)
	if err != nil {
		return err
	}

	il, err := s.imtLevels()
	if err != nil {
		return err
	}

	edges, err := bins.Build(bins.Config{
		MagBinWidth:     s.cfg.MagBinWidth,
		DistBinWidth:    s.cfg.DistBinWidth,
		CoordBinWidth:   s.cfg.CoordBinWidth,
		NumEpsilonBins:  s.cfg.NumEpsilonBins,
		TruncationLevel: s.cfg.TruncationLevel,
		MaximumDistance: s.cfg.MaximumDistance,
	}, sites, sourceMags)
	if err != nil {
		return err
	}
	if err := s.results.SaveBinEdges(ctx, edges); err != nil {
		return err
	}

	rlzs, err := s.selector.Select(ctx, sites, il, weights,
		s.cfg.RlzIndex, s.cfg.NumRlzsDisagg)
	if err != nil {
		return err
	}
	if err := s.results.SaveBestRlzs(ctx, rlzs); err != nil {
		return err
	}

	ires, err := s.resolver.Resolve(ctx, sites, il, rlzs, s.cfg.PoEs, s.cfg.IMLDisagg)
	if err != nil {
		return err
	}

	if s.cfg.DisaggBySrc {
		if err := s.buildDisaggBySrc(ctx, sites, il, rlzs, ires, len(trtByGrp)); err != nil {
			return err
		}
	}

	outputs := s.cfg.DisaggOutputs
	if len(outputs) == 0 {
		outputs = prob.PMFNames
	}
	nPoes := len(s.cfg.PoEs)
	if nPoes == 0 {
		nPoes = 1
	}
	z := len(rlzs[0])
	s.logger.Info("estimated total output size",
		zap.Int64("bytes", outputsSize(edges, sites, len(il.IMTs()), nPoes, z, outputs)))

	tasks, err := s.buildTasks(edges, trtByGrp, gsimsByGrp, il, ires, rlzs)
	if err != nil {
		return err
	}
	if est, limit := transferEstimate(edges, sites, nPoes, z, len(tasks)),
		s.cfg.MaxDataTransfer; est > limit {
		return domain.NewDataTransfer(est, limit)
	}

	acc, err := s.runTasks(ctx, tasks, sites)
	if err != nil {
		return err
	}

	saved, err := s.extractor.Run(ctx, extract.Input{
		Acc:     acc,
		Edges:   edges,
		Sites:   sites,
		IMTs:    il.IMTs(),
		IML:     ires.ByIMT,
		OKSites: ires.OKSites,
		Rlzs:    rlzs,
		Weights: weights,
		PoEs:    s.cfg.PoEs,
		Outputs: outputs,
	})
	if err != nil {
		return err
	}
	metrics.PMFsSaved.Add(float64(saved))
	return nil
}

// imtLevels builds the IMT ordering. In fixed-intensity runs without
// configured curve levels, each IMT gets its single target level so the
// downstream code has a uniform view.
func (s *Service) imtLevels() (domain.IMTLevels, error) {
	if len(s.cfg.IMTLevels) > 0 {
		return domain.NewIMTLevels(sortedKeys(s.cfg.IMTLevels), s.cfg.IMTLevels)
	}
	levels := make(map[string][]float64, len(s.cfg.IMLDisagg))
	for imt, v := range s.cfg.IMLDisagg {
		levels[imt] = []float64{v}
	}
	return domain.NewIMTLevels(sortedKeys(levels), levels)
}

// buildTasks partitions the rupture table by (source group, magnitude bin)
// and splits each partition into blocks, one task per block and IMT. The
// block size scales with the number of IMTs so the task count stays
// IMT-independent.
func (s *Service) buildTasks(
	edges *bins.Edges,
	trtByGrp []string,
	gsimsByGrp []map[string][]int,
	il domain.IMTLevels,
	ires *intensity.Result,
	rlzs [][]int,
) ([]compute.Task, error) {
	grpIDs, mags, err := s.table.GroupMag()
	if err != nil {
		return nil, err
	}

	type gm struct {
		grp  int32
		magi int
	}
	indices := make(map[gm][]int)
	for i, mag := range mags {
		magi := bins.IndexOf(edges.Mag, mag)
		k := gm{grp: grpIDs[i], magi: magi}
		indices[k] = append(indices[k], i)
	}
	keys := make([]gm, 0, len(indices))
	for k := range indices {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].grp != keys[j].grp {
			return keys[i].grp < keys[j].grp
		}
		return keys[i].magi < keys[j].magi
	})

	u := s.table.NumRuptures()
	m := len(il.IMTs())
	blocksize := int(math.Ceil(float64(u) / float64(s.cfg.ConcurrentTasks) * float64(m)))
	s.logger.Info("partitioned the rupture table",
		zap.Int("ruptures", u),
		zap.Int("blocksize", blocksize),
		zap.Int("partitions", len(keys)),
	)

	var tasks []compute.Task
	for _, k := range keys {
		grp := int(k.grp)
		if grp < 0 || grp >= len(trtByGrp) {
			return nil, fmt.Errorf("rupture group %d has no tectonic-region-type", grp)
		}
		trti := edges.TRTIndex(trtByGrp[grp])
		if trti < 0 {
			return nil, fmt.Errorf("tectonic-region-type %q has no bin", trtByGrp[grp])
		}
		for _, idxs := range blockSplit(indices[k], blocksize) {
			for imti, imt := range il.IMTs() {
				tasks = append(tasks, compute.Task{
					Idxs:              idxs,
					TRTI:              trti,
					Magi:              k.magi,
					IMTI:              imti,
					IMT:               imt,
					IML:               ires.ByIMT[imt],
					Rlzs:              rlzs,
					GSIMs:             gsimsByGrp[grp],
					Edges:             edges,
					TruncationLevel:   s.cfg.TruncationLevel,
					MaximumDistance:   s.cfg.MaximumDistance,
					InvestigationTime: s.cfg.InvestigationTime,
				})
			}
		}
	}
	return tasks, nil
}

// runTasks fans the tasks out on a worker pool and folds the results in a
// single reducer goroutine. The first task error cancels the pool.
func (s *Service) runTasks(
	ctx context.Context, tasks []compute.Task, sites *domain.SiteCollection,
) (*aggregate.Accumulator, error) {
	g, gctx := errgroup.WithContext(ctx)
	taskCh := make(chan compute.Task)
	resCh := make(chan *compute.Result, s.cfg.ConcurrentTasks)

	accCh := make(chan *aggregate.Accumulator, 1)
	go func() {
		acc, n := aggregate.Reduce(ctx, resCh, s.logger)
		metrics.MatricesMerged.Add(float64(n))
		accCh <- acc
	}()

	g.Go(func() error {
		defer close(taskCh)
		for _, t := range tasks {
			select {
			case taskCh <- t:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})
	for i := 0; i < s.cfg.ConcurrentTasks; i++ {
		g.Go(func() error {
			for t := range taskCh {
				start := time.Now()
				res, err := s.computer.Run(gctx, t, sites)
				metrics.TaskDuration.Observe(time.Since(start).Seconds())
				if err != nil {
					metrics.TasksTotal.WithLabelValues("error").Inc()
					return err
				}
				metrics.TasksTotal.WithLabelValues("ok").Inc()
				metrics.RupturesProcessed.Add(float64(len(t.Idxs)))
				select {
				case resCh <- res:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}

	err := g.Wait()
	close(resCh)
	acc := <-accCh
	if err != nil {
		return nil, err
	}
	return acc, nil
}

// buildDisaggBySrc persists, per (site, imt, target), the exceedance
// probability contributed by each source group, interpolated from the
// per-group hazard curves of the first selected realization.
func (s *Service) buildDisaggBySrc(
	ctx context.Context,
	sites *domain.SiteCollection,
	il domain.IMTLevels,
	rlzs [][]int,
	ires *intensity.Result,
	numGroups int,
) error {
	s.logger.Warn("disaggregation by source is experimental")
	nPoes := len(s.cfg.PoEs)
	if nPoes == 0 {
		nPoes = 1
	}
	for si, site := range sites.Sites() {
		rlz := rlzs[si][0]
		// poes[imt][poe][group]
		poes := make(map[string][][]float64)
		for _, imt := range il.IMTs() {
			poes[imt] = make([][]float64, nPoes)
			for p := range poes[imt] {
				poes[imt][p] = make([]float64, numGroups)
			}
		}
		for g := 0; g < numGroups; g++ {
			curve, err := s.hazard.GroupCurve(ctx, site.ID, rlz, g)
			if err != nil {
				return err
			}
			if curve == nil {
				continue
			}
			for _, imt := range il.IMTs() {
				xs := il.Levels(imt)
				ys := curve.PoEs[imt]
				if len(ys) != len(xs) {
					continue
				}
				for p := 0; p < nPoes; p++ {
					iml := ires.ByIMT[imt].At(si, p, 0)
					if math.IsNaN(iml) {
						continue
					}
					poes[imt][p][g] = interp(iml, xs, ys)
				}
			}
		}
		for _, imt := range il.IMTs() {
			for p := 0; p < nPoes; p++ {
				if !anyNonzero(poes[imt][p]) {
					continue
				}
				poeAgg := prob.CombineValues(poes[imt][p]...)
				label := fmt.Sprintf("iml-%v", s.cfg.IMLDisagg[imt])
				if len(s.cfg.PoEs) > 0 {
					poe := s.cfg.PoEs[p]
					label = fmt.Sprintf("poe-%v", poe)
					if math.Abs(1-poeAgg/poe) > 0.1 {
						s.logger.Warn("by-source aggregate deviates from the target poe",
							zap.Int32("site", site.ID),
							zap.String("imt", imt),
							zap.Float64("expected", poe),
							zap.Float64("actual", poeAgg),
						)
					}
				}
				rec := results.BySrcRecord{Data: poes[imt][p], PoEAgg: poeAgg}
				if err := s.results.SaveBySrc(ctx, label, imt, site.ID, rec); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// blockSplit cuts idxs into consecutive blocks of at most blocksize entries.
func blockSplit(idxs []int, blocksize int) [][]int {
	if blocksize < 1 {
		blocksize = 1
	}
	var blocks [][]int
	for len(idxs) > blocksize {
		blocks = append(blocks, idxs[:blocksize])
		idxs = idxs[blocksize:]
	}
	if len(idxs) > 0 {
		blocks = append(blocks, idxs)
	}
	return blocks
}

// transferEstimate returns the bytes the workers would send back: one
// float64 per matrix cell per site and task.
func transferEstimate(edges *bins.Edges, sites *domain.SiteCollection, p, z, tasks int) int64 {
	sid := sites.IDs()[0]
	cells := int64(len(edges.Dist)-1) *
		int64(len(edges.Lon[sid])-1) *
		int64(len(edges.Lat[sid])-1) *
		int64(len(edges.Eps)-1) *
		int64(sites.Len()) * int64(p) * int64(z)
	return 8 * cells * int64(tasks)
}

// outputsSize estimates the persisted bytes of the requested PMFs.
func outputsSize(edges *bins.Edges, sites *domain.SiteCollection, m, p, z int, outputs []string) int64 {
	sid := sites.IDs()[0]
	dim := map[string]int64{
		"trt":  int64(len(edges.TRTs)),
		"mag":  int64(len(edges.Mag) - 1),
		"dist": int64(len(edges.Dist) - 1),
		"lon":  int64(len(edges.Lon[sid]) - 1),
		"lat":  int64(len(edges.Lat[sid]) - 1),
		"eps":  int64(len(edges.Eps) - 1),
	}
	var tot int64
	for _, out := range outputs {
		size := int64(8)
		for _, part := range strings.Split(strings.ToLower(out), "_") {
			size *= dim[part]
		}
		tot += size
	}
	return tot * int64(sites.Len()) * int64(m) * int64(p) * int64(z)
}

// interp linearly interpolates y at x over the (xs, ys) polyline, clamping
// outside the range.
func interp(x float64, xs, ys []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	if x <= xs[0] {
		return ys[0]
	}
	if x >= xs[len(xs)-1] {
		return ys[len(ys)-1]
	}
	i := sort.SearchFloat64s(xs, x)
	x0, x1 := xs[i-1], xs[i]
	y0, y1 := ys[i-1], ys[i]
	if x1 == x0 {
		return y0
	}
	return y0 + (y1-y0)*(x-x0)/(x1-x0)
}

func anyNonzero(vs []float64) bool {
	for _, v := range vs {
		if v != 0 {
			return true
		}
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
