package services

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"

	"property-map-search/models"
	"property-map-search/utils"
)

// fakeEngine records every call the subsystem makes on the map.
type fakeEngine struct {
	calls   []string
	nextID  int
	live    map[MarkerHandle]string
	popup   string
	popups  int
	fits    []orb.Bound
	flights []orb.Point

	clustering []bool
	heatmap    []bool

	failAdd    map[string]bool
	failRemove bool
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{live: make(map[MarkerHandle]string), failAdd: make(map[string]bool)}
}

func (f *fakeEngine) AddMarker(id string, pos orb.Point) (MarkerHandle, error) {
	f.calls = append(f.calls, "add:"+id)
	if f.failAdd[id] {
		return "", errors.New("engine refused marker")
	}
	f.nextID++
	h := MarkerHandle(fmt.Sprintf("m-%d", f.nextID))
	f.live[h] = id
	return h, nil
}

func (f *fakeEngine) RemoveMarker(h MarkerHandle) error {
	f.calls = append(f.calls, "remove:"+f.live[h])
	if f.failRemove {
		return errors.New("engine refused removal")
	}
	if _, ok := f.live[h]; !ok {
		return errors.New("unknown marker")
	}
	delete(f.live, h)
	return nil
}

func (f *fakeEngine) FitBounds(b orb.Bound) error {
	f.calls = append(f.calls, "fit")
	f.fits = append(f.fits, b)
	return nil
}

func (f *fakeEngine) FlyTo(pos orb.Point) error {
	f.calls = append(f.calls, "fly")
	f.flights = append(f.flights, pos)
	return nil
}

func (f *fakeEngine) ShowPopup(id string) error {
	f.calls = append(f.calls, "popup:"+id)
	f.popup = id
	f.popups++
	return nil
}

func (f *fakeEngine) HidePopup() error {
	f.calls = append(f.calls, "hide")
	f.popup = ""
	return nil
}

func (f *fakeEngine) SetClustering(enabled bool) error {
	f.clustering = append(f.clustering, enabled)
	return nil
}

func (f *fakeEngine) SetHeatmap(enabled bool) error {
	f.heatmap = append(f.heatmap, enabled)
	return nil
}

// liveIDs returns the property ids that currently have a marker.
func (f *fakeEngine) liveIDs() map[string]bool {
	ids := make(map[string]bool, len(f.live))
	for _, id := range f.live {
		ids[id] = true
	}
	return ids
}

func (f *fakeEngine) resetCalls() {
	f.calls = nil
}

func testLogger() *utils.Logger { return utils.NewDiscardLogger() }

// prop builds a normalized property at lat/lng.
func prop(id string, price, lat, lng float64, area string) models.NormalizedProperty {
	return models.NormalizedProperty{
		PropertyRecord: models.PropertyRecord{ID: id, City: area},
		Price:          price,
		Position:       orb.Point{lng, lat},
		AreaKey:        area,
	}
}

func ids(props []models.NormalizedProperty) []string {
	out := make([]string, 0, len(props))
	for _, p := range props {
		out = append(out, p.ID)
	}
	return out
}

// lagosRecords is the three-property scenario: two in Lagos, one in NYC.
func lagosRecords() []models.PropertyRecord {
	return []models.PropertyRecord{
		{ID: "1", RawPrice: "₦45,000,000", Coordinates: &models.Coordinates{Lat: 6.43, Lng: 3.42}, City: "Lagos"},
		{ID: "2", RawPrice: "2.5 million", Coordinates: &models.Coordinates{Lat: 6.47, Lng: 3.59}, City: "Lagos"},
		{ID: "3", RawPrice: 999999999999, Coordinates: &models.Coordinates{Lat: 40.7, Lng: -74.0}, City: "NYC"},
	}
}

var lagosBounds = models.ViewportBounds{South: 6.3, North: 6.7, West: 3.0, East: 3.8}
