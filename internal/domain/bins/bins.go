// Package bins builds the discretization edges for hazard disaggregation and
// assigns raw values to bins. Edges are fixed for the whole run.
package bins

import (
	"fmt"
	"math"
	"sort"

	"github.com/kailas-cloud/disagg/internal/domain"
)

// MaxMatrixElements is the hard ceiling on the 6-D output matrix size.
const MaxMatrixElements = 1_000_000

// kmPerDegree is the mean length of one degree of latitude.
const kmPerDegree = 111.2

// Config holds the binning parameters of the run.
type Config struct {
	MagBinWidth     float64
	DistBinWidth    float64
	CoordBinWidth   float64
	NumEpsilonBins  int
	TruncationLevel float64
	MaximumDistance float64 // km
}

// Edges holds the five edge arrays plus the ordered tectonic-region-types.
// Mag, Dist and Eps edges are global; Lon and Lat edges are per site.
type Edges struct {
	Mag  []float64
	Dist []float64
	Eps  []float64
	Lon  map[int32][]float64
	Lat  map[int32][]float64
	TRTs []string
}

// Shape maps each output dimension to its bin count, plus the run-wide
// counts: N sites, M intensity-measure-types, P poes, Z realizations.
type Shape struct {
	TRT  int
	Mag  int
	Dist int
	Lon  int
	Lat  int
	Eps  int
	N    int
	M    int
	P    int
	Z    int
}

// Matrix6 returns the element count of the 6-D (T, Ma, D, Lo, La, E) matrix.
func (s Shape) Matrix6() int {
	return s.TRT * s.Mag * s.Dist * s.Lon * s.Lat * s.Eps
}

// Build computes the bin edges from the configuration, the site collection
// and the magnitudes observed per tectonic-region-type in the source model.
// It fails fast when the resulting 6-D matrix would exceed MaxMatrixElements.
func Build(cfg Config, sites *domain.SiteCollection, magsByTRT map[string][]float64) (*Edges, error) {
	if len(magsByTRT) == 0 {
		return nil, fmt.Errorf("no source magnitudes: cannot build magnitude bins")
	}

	trts := make([]string, 0, len(magsByTRT))
	minMag, maxMag := math.Inf(1), math.Inf(-1)
	for trt, mags := range magsByTRT {
		trts = append(trts, trt)
		for _, m := range mags {
			minMag = math.Min(minMag, m)
			maxMag = math.Max(maxMag, m)
		}
	}
	sort.Strings(trts)

	e := &Edges{
		Mag:  stepEdges(minMag, maxMag, cfg.MagBinWidth),
		Dist: stepEdges(0, cfg.MaximumDistance, cfg.DistBinWidth),
		Eps:  linspace(-cfg.TruncationLevel, cfg.TruncationLevel, cfg.NumEpsilonBins),
		Lon:  make(map[int32][]float64, sites.Len()),
		Lat:  make(map[int32][]float64, sites.Len()),
		TRTs: trts,
	}

	// Coordinate bin counts must be identical across sites so that every
	// partial matrix has the same shape: take the widest site.
	nLon, nLat := 0, 0
	for _, s := range sites.Sites() {
		dLat, dLon := coordDeltas(s.Lat, cfg.MaximumDistance)
		nLat = max(nLat, binCount(2*dLat, cfg.CoordBinWidth))
		nLon = max(nLon, binCount(2*dLon, cfg.CoordBinWidth))
	}
	for _, s := range sites.Sites() {
		dLat, dLon := coordDeltas(s.Lat, cfg.MaximumDistance)
		e.Lon[s.ID] = linspace(s.Lon-dLon, s.Lon+dLon, nLon)
		e.Lat[s.ID] = linspace(s.Lat-dLat, s.Lat+dLat, nLat)
	}

	shp := e.Shape(sites.Len(), 1, 1, 1)
	if size := shp.Matrix6(); size > MaxMatrixElements {
		return nil, domain.NewMatrixTooLarge(size)
	}
	return e, nil
}

// Shape returns the bin counts together with the run-wide counts.
func (e *Edges) Shape(n, m, p, z int) Shape {
	shp := Shape{
		TRT:  len(e.TRTs),
		Mag:  len(e.Mag) - 1,
		Dist: len(e.Dist) - 1,
		Eps:  len(e.Eps) - 1,
		N:    n,
		M:    m,
		P:    p,
		Z:    z,
	}
	for _, lon := range e.Lon {
		shp.Lon = len(lon) - 1
		break
	}
	for _, lat := range e.Lat {
		shp.Lat = len(lat) - 1
		break
	}
	return shp
}

// IndexOf returns the bin index of v for strictly increasing edges, clamped
// to [0, len(edges)-2]. A value equal to the last edge falls in the last bin.
func IndexOf(edges []float64, v float64) int {
	i := sort.SearchFloat64s(edges, v)
	if i < len(edges) && edges[i] == v {
		if i == len(edges)-1 {
			return i - 1
		}
		return i
	}
	i--
	if i < 0 {
		i = 0
	}
	if i > len(edges)-2 {
		i = len(edges) - 2
	}
	return i
}

// TRTIndex returns the position of the tectonic-region-type in the run order.
func (e *Edges) TRTIndex(trt string) int {
	for i, t := range e.TRTs {
		if t == trt {
			return i
		}
	}
	return -1
}

// stepEdges returns edges aligned to multiples of width covering [lo, hi].
func stepEdges(lo, hi, width float64) []float64 {
	first := math.Floor(lo / width)
	last := math.Ceil(hi / width)
	if last == first {
		last++
	}
	n := int(last - first)
	out := make([]float64, n+1)
	for i := range out {
		out[i] = (first + float64(i)) * width
	}
	return out
}

// linspace returns nbins+1 evenly spaced edges over [lo, hi].
func linspace(lo, hi float64, nbins int) []float64 {
	out := make([]float64, nbins+1)
	step := (hi - lo) / float64(nbins)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	out[nbins] = hi
	return out
}

// coordDeltas converts the maximum distance into degree offsets at the
// given latitude.
func coordDeltas(lat, maxDistKM float64) (dLat, dLon float64) {
	dLat = maxDistKM / kmPerDegree
	cos := math.Cos(lat * math.Pi / 180)
	if cos < 1e-3 {
		cos = 1e-3
	}
	dLon = math.Min(dLat/cos, 180)
	return dLat, dLon
}

func binCount(extent, width float64) int {
	n := int(math.Ceil(extent / width))
	if n < 1 {
		n = 1
	}
	return n
}
