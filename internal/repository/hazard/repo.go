// Package hazard reads the precomputed hazard model inputs from the
// datastore: realization weights, hazard curves and source-group mappings.
package hazard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kailas-cloud/disagg/internal/db"
	"github.com/kailas-cloud/disagg/internal/domain"
)

// Datastore keys for the hazard inputs.
const (
	keyWeights    = "weights"
	keyTRTByGrp   = "grp/trt"
	keyGSIMsByGrp = "grp/gsims"
	keySourceMags = "source_mags"
	keyAtomicGrps = "grp/atomic"
	keySiteCol    = "sitecol"
)

// Repo reads hazard inputs from a datastore.
type Repo struct {
	store db.KVStore
}

// New creates a hazard input repository.
func New(store db.KVStore) *Repo {
	return &Repo{store: store}
}

// Sites returns the site collection of the precomputed hazard model.
func (r *Repo) Sites(ctx context.Context, maxSitesDisagg int) (*domain.SiteCollection, error) {
	var raw []struct {
		ID  int32   `json:"id"`
		Lon float64 `json:"lon"`
		Lat float64 `json:"lat"`
	}
	if err := r.getJSON(ctx, keySiteCol, &raw); err != nil {
		return nil, err
	}
	sites := make([]domain.Site, len(raw))
	for i, s := range raw {
		sites[i] = domain.Site{ID: s.ID, Lon: s.Lon, Lat: s.Lat}
	}
	return domain.NewSiteCollection(sites, maxSitesDisagg)
}

// Weights returns the weight of each realization, indexed by realization id.
func (r *Repo) Weights(ctx context.Context) ([]float64, error) {
	var ws []float64
	if err := r.getJSON(ctx, keyWeights, &ws); err != nil {
		return nil, err
	}
	if len(ws) == 0 {
		return nil, fmt.Errorf("no realization weights in datastore")
	}
	return ws, nil
}

// TRTByGroup returns the tectonic-region-type of each source group, indexed
// by group id.
func (r *Repo) TRTByGroup(ctx context.Context) ([]string, error) {
	var trts []string
	if err := r.getJSON(ctx, keyTRTByGrp, &trts); err != nil {
		return nil, err
	}
	return trts, nil
}

// GSIMsByGroup returns, per source group, the mapping from ground-motion
// model name to the realization ids it applies to.
func (r *Repo) GSIMsByGroup(ctx context.Context) ([]map[string][]int, error) {
	var out []map[string][]int
	if err := r.getJSON(ctx, keyGSIMsByGrp, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SourceMags returns the magnitudes observed per tectonic-region-type in the
// source model.
func (r *Repo) SourceMags(ctx context.Context) (map[string][]float64, error) {
	var mags map[string][]float64
	if err := r.getJSON(ctx, keySourceMags, &mags); err != nil {
		return nil, err
	}
	return mags, nil
}

// AtomicGroups returns, per source group, whether the group is atomic.
// An absent key means no group is.
func (r *Repo) AtomicGroups(ctx context.Context) ([]bool, error) {
	data, err := r.store.Get(ctx, keyAtomicGrps)
	if errors.Is(err, db.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", keyAtomicGrps, err)
	}
	var atomic []bool
	if err := json.Unmarshal(data, &atomic); err != nil {
		return nil, fmt.Errorf("decode %s: %w", keyAtomicGrps, err)
	}
	return atomic, nil
}

// Curve returns the hazard curve for (site, realization), or nil when the
// datastore holds no curve for that pair.
func (r *Repo) Curve(ctx context.Context, sid int32, rlz int) (*domain.HazardCurve, error) {
	key := fmt.Sprintf("hcurves/sid-%d/rlz-%d", sid, rlz)
	data, err := r.store.Get(ctx, key)
	if errors.Is(err, db.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	var poes map[string][]float64
	if err := json.Unmarshal(data, &poes); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &domain.HazardCurve{PoEs: poes}, nil
}

// GroupCurve returns the per-source-group hazard curve for
// (site, realization, group), or nil when absent. Used by the experimental
// disaggregation-by-source output.
func (r *Repo) GroupCurve(ctx context.Context, sid int32, rlz, grp int) (*domain.HazardCurve, error) {
	key := fmt.Sprintf("hcurves-by-grp/sid-%d/rlz-%d/grp-%d", sid, rlz, grp)
	data, err := r.store.Get(ctx, key)
	if errors.Is(err, db.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	var poes map[string][]float64
	if err := json.Unmarshal(data, &poes); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &domain.HazardCurve{PoEs: poes}, nil
}

func (r *Repo) getJSON(ctx context.Context, key string, v any) error {
	data, err := r.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}
