package domain

import "fmt"

// RlzRef references either a concrete logic-tree realization or the weighted
// mean pseudo-realization. The zero value is the mean.
type RlzRef struct {
	indexed bool
	id      int
}

// IndexedRlz references realization id.
func IndexedRlz(id int) RlzRef { return RlzRef{indexed: true, id: id} }

// MeanRlz references the weighted mean across the selected realizations.
func MeanRlz() RlzRef { return RlzRef{} }

// IsMean reports whether the reference is the mean pseudo-realization.
func (r RlzRef) IsMean() bool { return !r.indexed }

// ID returns the realization index. Panics for the mean reference.
func (r RlzRef) ID() int {
	if !r.indexed {
		panic("ID called on mean realization reference")
	}
	return r.id
}

// Label is the persistence prefix: "rlz-<id>-" for an indexed realization,
// empty for the mean.
func (r RlzRef) Label() string {
	if !r.indexed {
		return ""
	}
	return fmt.Sprintf("rlz-%d-", r.id)
}

func (r RlzRef) String() string {
	if !r.indexed {
		return "mean"
	}
	return fmt.Sprintf("rlz-%d", r.id)
}
