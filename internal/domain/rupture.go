package domain

import (
	"fmt"
	"sort"
)

// Rupture column names as stored in the rupture table. Scalar columns hold
// one value per rupture, site columns one value per (rupture, site).
const (
	ColMag        = "mag"
	ColRake       = "rake"
	ColOccurrence = "occurrence_rate"
	ColGroupID    = "grp_id"
	ColRrup       = "rrup"
	ColClosestLon = "clon"
	ColClosestLat = "clat"
)

var (
	scalarColumns = []string{ColMag, ColRake, ColOccurrence, ColGroupID}
	siteColumns   = []string{ColRrup, ColClosestLon, ColClosestLat}
)

// ColumnSet is the raw column data for a batch of rupture rows.
type ColumnSet struct {
	Scalar map[string][]float64   // column -> one value per rupture
	BySite map[string][][]float64 // column -> per rupture, one value per site
}

// Rupture is a typed per-rupture record. Site-indexed slices are ordered by
// site ordinal in the site collection, not by site ID.
type Rupture struct {
	Mag            float64
	Rake           float64
	OccurrenceRate float64
	GroupID        int32
	Rrup           []float64
	ClosestLon     []float64
	ClosestLat     []float64
}

// RupturesFromColumns builds typed rupture records from raw column data.
// The column sets must match the expected schema exactly: a missing column
// or an extra column is an error.
func RupturesFromColumns(cols ColumnSet) ([]Rupture, error) {
	if err := checkColumns(keys(cols.Scalar), scalarColumns); err != nil {
		return nil, err
	}
	if err := checkColumns(keysBySite(cols.BySite), siteColumns); err != nil {
		return nil, err
	}

	n := len(cols.Scalar[ColMag])
	for name, col := range cols.Scalar {
		if len(col) != n {
			return nil, fmt.Errorf("column %q has %d rows, want %d", name, len(col), n)
		}
	}
	for name, col := range cols.BySite {
		if len(col) != n {
			return nil, fmt.Errorf("column %q has %d rows, want %d", name, len(col), n)
		}
	}

	rups := make([]Rupture, n)
	for i := range rups {
		rups[i] = Rupture{
			Mag:            cols.Scalar[ColMag][i],
			Rake:           cols.Scalar[ColRake][i],
			OccurrenceRate: cols.Scalar[ColOccurrence][i],
			GroupID:        int32(cols.Scalar[ColGroupID][i]),
			Rrup:           cols.BySite[ColRrup][i],
			ClosestLon:     cols.BySite[ColClosestLon][i],
			ClosestLat:     cols.BySite[ColClosestLat][i],
		}
	}
	return rups, nil
}

// RuptureContext is the per-site view of a rupture passed to ground-motion
// evaluation. Investigation time is carried explicitly by the task, never as
// process-wide state.
type RuptureContext struct {
	Mag            float64
	Rake           float64
	OccurrenceRate float64
	Rrup           float64
	Lon            float64 // closest-point longitude
	Lat            float64 // closest-point latitude
	Site           Site
}

// ContextForSite builds the evaluation context of a rupture at one site.
func (r Rupture) ContextForSite(ordinal int, site Site) RuptureContext {
	return RuptureContext{
		Mag:            r.Mag,
		Rake:           r.Rake,
		OccurrenceRate: r.OccurrenceRate,
		Rrup:           r.Rrup[ordinal],
		Lon:            r.ClosestLon[ordinal],
		Lat:            r.ClosestLat[ordinal],
		Site:           site,
	}
}

func checkColumns(got, want []string) error {
	wanted := make(map[string]bool, len(want))
	for _, w := range want {
		wanted[w] = true
	}
	seen := make(map[string]bool, len(got))
	for _, g := range got {
		if !wanted[g] {
			return fmt.Errorf("%w: %q", ErrUnknownColumn, g)
		}
		seen[g] = true
	}
	for _, w := range want {
		if !seen[w] {
			return fmt.Errorf("%w: %q", ErrMissingColumn, w)
		}
	}
	return nil
}

func keys(m map[string][]float64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func keysBySite(m map[string][][]float64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
