package intensity

import (
	"context"

	"github.com/kailas-cloud/disagg/internal/domain"
)

// CurveReader reads hazard curves from the datastore.
type CurveReader interface {
	// Curve returns the hazard curve for (site, realization), nil when absent.
	Curve(ctx context.Context, sid int32, rlz int) (*domain.HazardCurve, error)
}
