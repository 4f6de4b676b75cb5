// Package gsim provides a configurable log-linear ground-motion model. Real
// ground-motion prediction equations live in external libraries; this model
// covers runs where a simple magnitude/distance attenuation form is enough,
// and serves as the reference implementation of the evaluator contract.
package gsim

import (
	"fmt"
	"math"

	"github.com/kailas-cloud/disagg/internal/domain"
)

// Params are the coefficients of the attenuation form
// ln(iml) = C0 + C1*(M - 6) + C2*ln(rrup + C3), with constant ln-stddev.
type Params struct {
	C0    float64 `yaml:"c0"`
	C1    float64 `yaml:"c1"`
	C2    float64 `yaml:"c2"`
	C3    float64 `yaml:"c3"`
	Sigma float64 `yaml:"sigma"`
}

// Parametric evaluates the log-linear attenuation model.
type Parametric struct {
	params map[string]Params // per IMT
}

// New creates a parametric model with per-IMT coefficients.
func New(params map[string]Params) (*Parametric, error) {
	for imt, p := range params {
		if p.Sigma <= 0 {
			return nil, fmt.Errorf("gsim: sigma for IMT %q must be positive, got %v",
				imt, p.Sigma)
		}
	}
	return &Parametric{params: params}, nil
}

// MeanStd returns the ln-mean and ln-stddev of the predicted ground motion
// for every rupture context.
func (g *Parametric) MeanStd(ctxs []domain.RuptureContext, imt string) ([]float64, []float64, error) {
	p, ok := g.params[imt]
	if !ok {
		return nil, nil, fmt.Errorf("gsim: no coefficients for IMT %q", imt)
	}
	mean := make([]float64, len(ctxs))
	std := make([]float64, len(ctxs))
	for i, rc := range ctxs {
		mean[i] = p.C0 + p.C1*(rc.Mag-6) + p.C2*math.Log(rc.Rrup+p.C3)
		std[i] = p.Sigma
	}
	return mean, std, nil
}
