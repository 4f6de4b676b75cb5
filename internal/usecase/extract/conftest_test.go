package extract

import (
	"context"

	"github.com/kailas-cloud/disagg/internal/domain"
	"github.com/kailas-cloud/disagg/internal/domain/tensor"
	"github.com/kailas-cloud/disagg/internal/repository/results"
)

type savedPMF struct {
	Rlz    domain.RlzRef
	IMT    string
	SiteID int32
	PoeIdx int
	Name   string
	PMF    *tensor.Dense
	Rec    results.PMFRecord
}

// memWriter implements Writer in memory.
type memWriter struct {
	saved []savedPMF
	err   error
}

func (w *memWriter) SavePMF(_ context.Context,
	rlz domain.RlzRef, imt string, sid int32, poeIdx int, name string,
	pmf *tensor.Dense, rec results.PMFRecord,
) error {
	if w.err != nil {
		return w.err
	}
	w.saved = append(w.saved, savedPMF{
		Rlz: rlz, IMT: imt, SiteID: sid, PoeIdx: poeIdx,
		Name: name, PMF: pmf, Rec: rec,
	})
	return nil
}
