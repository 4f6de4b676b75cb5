package selection

import (
	"context"

	"github.com/kailas-cloud/disagg/internal/domain"
)

// mockCurves implements CurveReader for tests.
type mockCurves struct {
	curveFn func(ctx context.Context, sid int32, rlz int) (*domain.HazardCurve, error)
}

func (m *mockCurves) Curve(ctx context.Context, sid int32, rlz int) (*domain.HazardCurve, error) {
	if m.curveFn != nil {
		return m.curveFn(ctx, sid, rlz)
	}
	return nil, nil
}
