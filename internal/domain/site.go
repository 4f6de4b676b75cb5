package domain

import "fmt"

// MaxSites is the hard limit on the number of disaggregation sites.
// Site IDs are stored as int16-compatible values downstream.
const MaxSites = 32768

// Site is a point of interest for hazard disaggregation.
type Site struct {
	ID  int32
	Lon float64
	Lat float64
}

// SiteCollection is a fixed, ordered set of sites. Immutable after creation.
type SiteCollection struct {
	sites []Site
}

// NewSiteCollection validates the site count against the hard limit and the
// configured maximum and builds the collection. When no site carries an
// explicit ID, positional IDs are assigned; a collection with any non-zero
// ID keeps every ID as given, including explicit zeros.
func NewSiteCollection(sites []Site, maxSitesDisagg int) (*SiteCollection, error) {
	n := len(sites)
	if n >= MaxSites {
		return nil, fmt.Errorf("%w: you can disaggregate at max %d sites, got %d",
			ErrTooManySites, MaxSites, n)
	}
	if maxSitesDisagg > 0 && n > maxSitesDisagg {
		return nil, fmt.Errorf(
			"%w: the number of sites to disaggregate is %d, but max_sites_disagg=%d",
			ErrTooManySites, n, maxSitesDisagg)
	}
	out := make([]Site, n)
	copy(out, sites)
	allZero := true
	for i := range out {
		if out[i].ID != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		for i := range out {
			out[i].ID = int32(i)
		}
	}
	return &SiteCollection{sites: out}, nil
}

// Len returns the number of sites N.
func (sc *SiteCollection) Len() int { return len(sc.sites) }

// Sites returns the ordered sites.
func (sc *SiteCollection) Sites() []Site { return sc.sites }

// IDs returns the ordered site IDs.
func (sc *SiteCollection) IDs() []int32 {
	ids := make([]int32, len(sc.sites))
	for i, s := range sc.sites {
		ids[i] = s.ID
	}
	return ids
}

// ByID returns the site with the given ID.
func (sc *SiteCollection) ByID(sid int32) (Site, bool) {
	for _, s := range sc.sites {
		if s.ID == sid {
			return s, true
		}
	}
	return Site{}, false
}
