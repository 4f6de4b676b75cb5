package extract

import (
	"context"

	"github.com/kailas-cloud/disagg/internal/domain"
	"github.com/kailas-cloud/disagg/internal/domain/tensor"
	"github.com/kailas-cloud/disagg/internal/repository/results"
)

// Writer persists extracted PMFs.
type Writer interface {
	SavePMF(ctx context.Context,
		rlz domain.RlzRef, imt string, sid int32, poeIdx int, name string,
		pmf *tensor.Dense, rec results.PMFRecord) error
}
