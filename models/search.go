package models

import (
	"math"

	"github.com/paulmach/orb"
)

// ViewportBounds is the geographic rectangle currently visible on the map.
// When West > East the rectangle crosses the antimeridian.
type ViewportBounds struct {
	South float64 `json:"south"`
	North float64 `json:"north"`
	West  float64 `json:"west"`
	East  float64 `json:"east"`
}

// Contains reports whether p lies inside the bounds, edges included.
func (b ViewportBounds) Contains(p orb.Point) bool {
	lat, lng := p.Lat(), p.Lon()
	if lat < b.South || lat > b.North {
		return false
	}
	if b.West <= b.East {
		return lng >= b.West && lng <= b.East
	}
	return lng >= b.West || lng <= b.East
}

// FilterSettings are the sidebar controls. Heatmap, Clustering and Radius
// are carried through untouched; only PriceRange takes part in filtering.
type FilterSettings struct {
	PriceRange [2]float64 `json:"priceRange"`
	Heatmap    bool       `json:"heatmap"`
	Clustering bool       `json:"clustering"`
	Radius     float64    `json:"radius"`
}

// Sanitize returns a copy with a non-negative, ordered price range.
func (s FilterSettings) Sanitize() FilterSettings {
	lo, hi := s.PriceRange[0], s.PriceRange[1]
	if lo < 0 || math.IsNaN(lo) {
		lo = 0
	}
	if hi < 0 || math.IsNaN(hi) {
		hi = 0
	}
	if lo > hi {
		lo, hi = hi, lo
	}
	s.PriceRange = [2]float64{lo, hi}
	return s
}

// PriceBand is a min/max pair.
type PriceBand struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// MapStatistics summarises a filtered collection. All fields are zero and
// PopularAreas is empty when TotalCount is 0.
type MapStatistics struct {
	TotalCount   int       `json:"totalCount"`
	AveragePrice float64   `json:"averagePrice"`
	PriceRange   PriceBand `json:"priceRange"`
	PopularAreas []string  `json:"popularAreas"`
}

// SelectionState tracks the selected property; empty SelectedID means none.
type SelectionState struct {
	SelectedID string `json:"selectedId"`
}

// PopupVisible is derived from the selection.
func (s SelectionState) PopupVisible() bool { return s.SelectedID != "" }

// Phase of the search session.
type Phase string

const (
	PhaseUninitialized Phase = "uninitialized"
	PhaseReady         Phase = "ready"
)

// Snapshot is the derived state handed to consumers after each committed pass.
type Snapshot struct {
	SessionID string               `json:"sessionId"`
	Seq       uint64               `json:"seq"`
	Phase     Phase                `json:"phase"`
	Bounds    *ViewportBounds      `json:"bounds"`
	Settings  FilterSettings       `json:"settings"`
	Filtered  []NormalizedProperty `json:"filtered"`
	Stats     MapStatistics        `json:"stats"`
	Selection SelectionState       `json:"selection"`
}
