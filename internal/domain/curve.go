package domain

import "fmt"

// IMTLevels holds the ordered intensity-measure-types of the run and the
// intensity levels each hazard curve is sampled at.
type IMTLevels struct {
	imts   []string
	levels map[string][]float64
}

// NewIMTLevels builds the IMT/levels mapping preserving IMT order.
func NewIMTLevels(imts []string, levels map[string][]float64) (IMTLevels, error) {
	for _, imt := range imts {
		lvls, ok := levels[imt]
		if !ok {
			return IMTLevels{}, fmt.Errorf("no intensity levels for IMT %q", imt)
		}
		for i := 1; i < len(lvls); i++ {
			if lvls[i] <= lvls[i-1] {
				return IMTLevels{}, fmt.Errorf(
					"intensity levels for IMT %q are not strictly increasing", imt)
			}
		}
	}
	return IMTLevels{imts: imts, levels: levels}, nil
}

// IMTs returns the ordered intensity-measure-type names.
func (il IMTLevels) IMTs() []string { return il.imts }

// Levels returns the intensity levels for the given IMT.
func (il IMTLevels) Levels(imt string) []float64 { return il.levels[imt] }

// Index returns the position of the IMT in the run ordering.
func (il IMTLevels) Index(imt string) int {
	for i, name := range il.imts {
		if name == imt {
			return i
		}
	}
	return -1
}

// HazardCurve holds, per IMT, the probability of exceedance at each intensity
// level. PoEs decrease monotonically with the level. A nil *HazardCurve means
// the curve is missing for that (site, realization).
type HazardCurve struct {
	PoEs map[string][]float64
}

// Max returns the maximum probability of exceedance the curve reaches for
// the given IMT.
func (c *HazardCurve) Max(imt string) float64 {
	var mx float64
	for _, p := range c.PoEs[imt] {
		if p > mx {
			mx = p
		}
	}
	return mx
}
