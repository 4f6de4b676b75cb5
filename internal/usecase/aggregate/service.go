// Package aggregate folds partial task results into the run accumulator.
// A single reducer goroutine owns the accumulator, so the fold needs no
// locking and is deterministic up to floating-point rounding regardless of
// the order in which tasks complete.
package aggregate

import (
	"context"

	"go.uber.org/zap"

	"github.com/kailas-cloud/disagg/internal/domain/prob"
	"github.com/kailas-cloud/disagg/internal/domain/tensor"
	"github.com/kailas-cloud/disagg/internal/usecase/compute"
)

// Key addresses one accumulator slot: the IMT index and the site.
type Key struct {
	IMTI   int
	SiteID int32
}

// Cell addresses one sub-matrix within a slot: the tectonic-region-type
// index and the magnitude bin.
type Cell struct {
	TRTI int
	Magi int
}

// Accumulator holds the merged 6-D contribution matrices of all tasks,
// keyed by (imt, site) then (trt, mag-bin). Cells never touched by any task
// stay absent, which readers treat as all-zero.
type Accumulator struct {
	mats map[Key]map[Cell]*tensor.Dense
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{mats: make(map[Key]map[Cell]*tensor.Dense)}
}

// Add merges one task result into the accumulator with the independence
// rule 1 - (1-a)(1-b). An absent cell acts as all-zero, so the first
// contribution is stored as-is.
func (a *Accumulator) Add(res *compute.Result) {
	cell := Cell{TRTI: res.TRTI, Magi: res.Magi}
	for sid, mat := range res.BySite {
		k := Key{IMTI: res.IMTI, SiteID: sid}
		slot := a.mats[k]
		if slot == nil {
			slot = make(map[Cell]*tensor.Dense)
			a.mats[k] = slot
		}
		slot[cell] = prob.Combine(slot[cell], mat)
	}
}

// Get returns the merged cells for one (imt, site) slot. The returned map
// may be nil when no task contributed to the slot.
func (a *Accumulator) Get(k Key) map[Cell]*tensor.Dense {
	return a.mats[k]
}

// Keys returns every populated (imt, site) slot.
func (a *Accumulator) Keys() []Key {
	keys := make([]Key, 0, len(a.mats))
	for k := range a.mats {
		keys = append(keys, k)
	}
	return keys
}

// Reduce consumes task results until the channel closes or the context is
// cancelled, returning the accumulator and the number of results folded.
func Reduce(ctx context.Context, in <-chan *compute.Result, logger *zap.Logger) (*Accumulator, int) {
	acc := NewAccumulator()
	n := 0
	for {
		select {
		case <-ctx.Done():
			return acc, n
		case res, ok := <-in:
			if !ok {
				logger.Debug("reduction complete", zap.Int("results", n))
				return acc, n
			}
			acc.Add(res)
			n++
		}
	}
}
