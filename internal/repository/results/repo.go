// Package results persists the disaggregation outputs: bin edges, the
// extracted PMFs with their provenance, and the experimental by-source
// arrays.
package results

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kailas-cloud/disagg/internal/db"
	"github.com/kailas-cloud/disagg/internal/domain"
	"github.com/kailas-cloud/disagg/internal/domain/bins"
	"github.com/kailas-cloud/disagg/internal/domain/tensor"
)

// PMFRecord is one persisted probability-mass-function with full provenance.
type PMFRecord struct {
	Dims []int     `json:"dims"`
	Data []float64 `json:"data"`

	SiteID   int32      `json:"site_id"`
	Rlz      string     `json:"rlz"` // "rlz-<n>" or "mean"
	IMT      string     `json:"imt"`
	PoE      *float64   `json:"poe,omitempty"`
	IML      *float64   `json:"iml,omitempty"`
	Location [2]float64 `json:"location"` // lon, lat

	MagEdges  []float64 `json:"mag_bin_edges"`
	DistEdges []float64 `json:"dist_bin_edges"`
	LonEdges  []float64 `json:"lon_bin_edges"`
	LatEdges  []float64 `json:"lat_bin_edges"`
	EpsEdges  []float64 `json:"eps_bin_edges"`
	TRTs      []string  `json:"trt_bin_edges"`

	// PoEAgg is the aggregate exceedance probability recomputed from the PMF.
	PoEAgg float64 `json:"poe_agg"`
}

// BySrcRecord is one experimental by-source output array.
type BySrcRecord struct {
	Data   []float64 `json:"data"`
	PoEAgg float64   `json:"poe_agg"`
}

// Repo writes disaggregation outputs to a datastore.
type Repo struct {
	store db.KVStore
}

// New creates a results repository.
func New(store db.KVStore) *Repo {
	return &Repo{store: store}
}

// SaveBinEdges persists the bin edges under disagg-bins/.
func (r *Repo) SaveBinEdges(ctx context.Context, e *bins.Edges) error {
	if err := r.setJSON(ctx, "disagg-bins/mags", e.Mag); err != nil {
		return err
	}
	if err := r.setJSON(ctx, "disagg-bins/dists", e.Dist); err != nil {
		return err
	}
	for sid, lons := range e.Lon {
		if err := r.setJSON(ctx, fmt.Sprintf("disagg-bins/lons/sid-%d", sid), lons); err != nil {
			return err
		}
	}
	for sid, lats := range e.Lat {
		if err := r.setJSON(ctx, fmt.Sprintf("disagg-bins/lats/sid-%d", sid), lats); err != nil {
			return err
		}
	}
	return r.setJSON(ctx, "disagg-bins/eps", e.Eps)
}

// SaveBestRlzs persists the N x Z matrix of selected realization indices.
func (r *Repo) SaveBestRlzs(ctx context.Context, rlzs [][]int) error {
	return r.setJSON(ctx, "best_rlzs", rlzs)
}

// PMFKey builds the output key for one PMF:
// disagg/<rlz-or-empty><imt>-sid-<n>-poe-<k>/<name>.
func PMFKey(rlz domain.RlzRef, imt string, sid int32, poeIdx int, name string) string {
	return fmt.Sprintf("disagg/%s%s-sid-%d-poe-%d/%s", rlz.Label(), imt, sid, poeIdx, name)
}

// SavePMF persists one PMF tensor with its provenance.
func (r *Repo) SavePMF(
	ctx context.Context,
	rlz domain.RlzRef, imt string, sid int32, poeIdx int, name string,
	pmf *tensor.Dense, rec PMFRecord,
) error {
	rec.Dims = pmf.Dims()
	rec.Data = pmf.Data()
	rec.SiteID = sid
	rec.Rlz = rlz.String()
	rec.IMT = imt
	return r.setJSON(ctx, PMFKey(rlz, imt, sid, poeIdx, name), rec)
}

// SaveBySrc persists one by-source array under
// disagg_by_src/<label>-<imt>-sid-<n>.
func (r *Repo) SaveBySrc(
	ctx context.Context, label, imt string, sid int32, rec BySrcRecord,
) error {
	key := fmt.Sprintf("disagg_by_src/%s-%s-sid-%d", label, imt, sid)
	return r.setJSON(ctx, key, rec)
}

func (r *Repo) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := r.store.Set(ctx, key, data); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}
