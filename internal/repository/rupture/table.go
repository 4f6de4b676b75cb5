// Package rupture reads the columnar rupture table of a precomputed hazard
// model. The table is a parquet file; every task opens its own read-only
// handle, so concurrent reads need no coordination.
package rupture

import (
	"fmt"
	"os"
	"sort"

	"github.com/parquet-go/parquet-go"

	"github.com/kailas-cloud/disagg/internal/domain"
)

// Row is one rupture record in the parquet table. Site-indexed columns hold
// one value per site, ordered by site ordinal.
type Row struct {
	Mag            float64   `parquet:"mag"`
	Rake           float64   `parquet:"rake"`
	OccurrenceRate float64   `parquet:"occurrence_rate"`
	GrpID          int32     `parquet:"grp_id"`
	Rrup           []float64 `parquet:"rrup,list"`
	Clon           []float64 `parquet:"clon,list"`
	Clat           []float64 `parquet:"clat,list"`
}

// Table is a handle to the rupture parquet file. Opening is cheap; rows are
// read on demand.
type Table struct {
	path string
	rows int
}

// Open validates the table file and counts its rows.
func Open(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rupture table: %w", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat rupture table: %w", err)
	}
	pf, err := parquet.OpenFile(f, st.Size())
	if err != nil {
		return nil, fmt.Errorf("parse rupture table %s: %w", path, err)
	}
	return &Table{path: path, rows: int(pf.NumRows())}, nil
}

// NumRuptures returns the total rupture count U.
func (t *Table) NumRuptures() int { return t.rows }

// ReadAll streams every row of the table.
func (t *Table) ReadAll() ([]Row, error) {
	rows, err := parquet.ReadFile[Row](t.path)
	if err != nil {
		return nil, fmt.Errorf("read rupture table %s: %w", t.path, err)
	}
	return rows, nil
}

// Read returns the column data for the given row indices as a raw column
// mapping, ready for domain validation. Indices may arrive in any order.
func (t *Table) Read(idxs []int) (domain.ColumnSet, error) {
	want := make(map[int]bool, len(idxs))
	for _, i := range idxs {
		if i < 0 || i >= t.rows {
			return domain.ColumnSet{}, fmt.Errorf(
				"rupture index %d out of range [0, %d)", i, t.rows)
		}
		want[i] = true
	}

	all, err := t.ReadAll()
	if err != nil {
		return domain.ColumnSet{}, err
	}

	sorted := append([]int(nil), idxs...)
	sort.Ints(sorted)

	cols := domain.ColumnSet{
		Scalar: map[string][]float64{
			domain.ColMag:        make([]float64, 0, len(sorted)),
			domain.ColRake:       make([]float64, 0, len(sorted)),
			domain.ColOccurrence: make([]float64, 0, len(sorted)),
			domain.ColGroupID:    make([]float64, 0, len(sorted)),
		},
		BySite: map[string][][]float64{
			domain.ColRrup:       make([][]float64, 0, len(sorted)),
			domain.ColClosestLon: make([][]float64, 0, len(sorted)),
			domain.ColClosestLat: make([][]float64, 0, len(sorted)),
		},
	}
	for _, i := range sorted {
		r := all[i]
		cols.Scalar[domain.ColMag] = append(cols.Scalar[domain.ColMag], r.Mag)
		cols.Scalar[domain.ColRake] = append(cols.Scalar[domain.ColRake], r.Rake)
		cols.Scalar[domain.ColOccurrence] = append(cols.Scalar[domain.ColOccurrence], r.OccurrenceRate)
		cols.Scalar[domain.ColGroupID] = append(cols.Scalar[domain.ColGroupID], float64(r.GrpID))
		cols.BySite[domain.ColRrup] = append(cols.BySite[domain.ColRrup], r.Rrup)
		cols.BySite[domain.ColClosestLon] = append(cols.BySite[domain.ColClosestLon], r.Clon)
		cols.BySite[domain.ColClosestLat] = append(cols.BySite[domain.ColClosestLat], r.Clat)
	}
	return cols, nil
}

// GroupMag returns the grp_id and mag columns for the whole table, used to
// partition rupture indices into (group, magnitude-bin) batches.
func (t *Table) GroupMag() (grpIDs []int32, mags []float64, err error) {
	all, err := t.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	grpIDs = make([]int32, len(all))
	mags = make([]float64, len(all))
	for i, r := range all {
		grpIDs[i] = r.GrpID
		mags[i] = r.Mag
	}
	return grpIDs, mags, nil
}

// Write creates a rupture table at path. Used by import tooling and tests.
func Write(path string, rows []Row) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create rupture table: %w", err)
	}
	w := parquet.NewGenericWriter[Row](f)
	if _, err := w.Write(rows); err != nil {
		f.Close()
		return fmt.Errorf("write rupture rows: %w", err)
	}
	if err := w.Close(); err != nil {
		f.Close()
		return fmt.Errorf("close rupture writer: %w", err)
	}
	return f.Close()
}
