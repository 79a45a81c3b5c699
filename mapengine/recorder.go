// Package mapengine holds the map rendering engines the search subsystem can
// drive: a headless-Chrome Leaflet page and an in-memory recorder.
package mapengine

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/paulmach/orb"

	"property-map-search/services"
	"property-map-search/utils"
)

// ErrUnknownMarker is returned when a handle is not live on the map.
var ErrUnknownMarker = errors.New("mapengine: unknown marker handle")

// Recorder is a MapEngine that keeps the map state in memory and logs every
// call. It backs headless runs and tests.
type Recorder struct {
	mu     sync.Mutex
	logger *utils.Logger

	nextID     int
	live       map[services.MarkerHandle]string
	popup      string
	clustering bool
	heatmap    bool
	fits       []orb.Bound
	flights    []orb.Point
	calls      []string
}

// NewRecorder creates an empty Recorder. logger may be nil.
func NewRecorder(logger *utils.Logger) *Recorder {
	return &Recorder{
		logger: logger,
		live:   make(map[services.MarkerHandle]string),
	}
}

func (r *Recorder) AddMarker(id string, pos orb.Point) (services.MarkerHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	h := services.MarkerHandle(fmt.Sprintf("marker-%d", r.nextID))
	r.live[h] = id
	r.record("add %s at (%.5f, %.5f)", id, pos.Lat(), pos.Lon())
	return h, nil
}

func (r *Recorder) RemoveMarker(h services.MarkerHandle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.live[h]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMarker, h)
	}
	delete(r.live, h)
	r.record("remove %s", id)
	return nil
}

func (r *Recorder) FitBounds(b orb.Bound) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.fits = append(r.fits, b)
	r.record("fit [%.5f,%.5f]-[%.5f,%.5f]", b.Min.Lat(), b.Min.Lon(), b.Max.Lat(), b.Max.Lon())
	return nil
}

func (r *Recorder) FlyTo(pos orb.Point) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.flights = append(r.flights, pos)
	r.record("fly to (%.5f, %.5f)", pos.Lat(), pos.Lon())
	return nil
}

func (r *Recorder) ShowPopup(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.popup = id
	r.record("popup %s", id)
	return nil
}

func (r *Recorder) HidePopup() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.popup = ""
	r.record("hide popup")
	return nil
}

func (r *Recorder) SetClustering(enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clustering = enabled
	r.record("clustering %t", enabled)
	return nil
}

func (r *Recorder) SetHeatmap(enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.heatmap = enabled
	r.record("heatmap %t", enabled)
	return nil
}

// LiveIDs returns the property ids of all markers on the map, sorted.
func (r *Recorder) LiveIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.live))
	for _, id := range r.live {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Popup returns the id whose popup is open, or "".
func (r *Recorder) Popup() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.popup
}

// Layers reports the clustering and heatmap toggles.
func (r *Recorder) Layers() (clustering, heatmap bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clustering, r.heatmap
}

// LastFit returns the most recent fit box.
func (r *Recorder) LastFit() (orb.Bound, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.fits) == 0 {
		return orb.Bound{}, false
	}
	return r.fits[len(r.fits)-1], true
}

// Calls returns a copy of the call log.
func (r *Recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// record must be called with mu held.
func (r *Recorder) record(format string, args ...interface{}) {
	line := fmt.Sprintf(format, args...)
	r.calls = append(r.calls, line)
	if r.logger != nil {
		r.logger.Debug("[map] %s", line)
	}
}
