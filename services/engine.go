package services

import (
	"github.com/paulmach/orb"
)

// MarkerHandle is the engine's token for one rendered marker.
type MarkerHandle string

// MapEngine is the map rendering engine as seen from the search subsystem.
// Viewport changes and marker clicks flow the other way, into
// Controller.OnViewportChange and Controller.OnMarkerClick.
//
// ShowPopup replaces any popup that is already open; the engine never shows
// two at once. Abandoned handles are never collected by the engine, so every
// handle returned by AddMarker must eventually be passed to RemoveMarker.
type MapEngine interface {
	AddMarker(id string, pos orb.Point) (MarkerHandle, error)
	RemoveMarker(h MarkerHandle) error
	FitBounds(b orb.Bound) error
	FlyTo(pos orb.Point) error
	ShowPopup(id string) error
	HidePopup() error

	// SetClustering and SetHeatmap toggle display layers. How markers are
	// clustered is up to the engine.
	SetClustering(enabled bool) error
	SetHeatmap(enabled bool) error
}
