package services

import (
	"github.com/paulmach/orb"

	"property-map-search/models"
	"property-map-search/utils"
)

// MarkerManager keeps exactly one rendered marker per property in the
// current filtered collection and owns the selection.
type MarkerManager struct {
	engine MapEngine
	logger *utils.Logger

	order     []string // ids of the current filtered collection, in order
	positions map[string]orb.Point
	markers   map[string]MarkerHandle
	rendered  map[string]orb.Point // position each marker was created at
	selection models.SelectionState

	// pending holds handles whose removal failed; they are retried first on
	// every reconcile, and their id gets no new marker until they are gone.
	pending map[MarkerHandle]string

	overlaysApplied bool
	clustering      bool
	heatmap         bool
}

// NewMarkerManager creates a MarkerManager with nothing rendered.
func NewMarkerManager(engine MapEngine, logger *utils.Logger) *MarkerManager {
	return &MarkerManager{
		engine:    engine,
		logger:    logger,
		positions: make(map[string]orb.Point),
		markers:   make(map[string]MarkerHandle),
		rendered:  make(map[string]orb.Point),
		pending:   make(map[MarkerHandle]string),
	}
}

// Reconcile brings the rendered markers in line with filtered. All stale
// markers are removed before any new marker is added; markers whose id and
// position are unchanged are left alone. It reports whether the rendered set
// changed.
func (m *MarkerManager) Reconcile(filtered []models.NormalizedProperty) bool {
	next := make(map[string]orb.Point, len(filtered))
	order := make([]string, 0, len(filtered))
	for _, p := range filtered {
		next[p.ID] = p.Position
		order = append(order, p.ID)
	}

	changed := m.retryPending()

	for _, id := range m.renderedOrder() {
		pos, keep := next[id]
		if keep && pos.Equal(m.rendered[id]) {
			continue
		}
		m.remove(id, m.markers[id])
		delete(m.markers, id)
		delete(m.rendered, id)
		changed = true
	}

	blocked := make(map[string]bool, len(m.pending))
	for _, id := range m.pending {
		blocked[id] = true
	}

	sel := m.selection.SelectedID
	for _, id := range order {
		if _, ok := m.markers[id]; ok || blocked[id] {
			continue
		}
		h, err := m.engine.AddMarker(id, next[id])
		changed = true
		if err != nil {
			m.logger.Warn("[markers] Failed to add marker for %s: %v", id, err)
			continue
		}
		m.markers[id] = h
		m.rendered[id] = next[id]

		// the popup belonged to the marker that was just replaced
		if id == sel {
			if err := m.engine.ShowPopup(id); err != nil {
				m.logger.Warn("[markers] Failed to reopen popup for %s: %v", id, err)
			}
		}
	}

	m.order = order
	m.positions = next

	if sel != "" {
		if _, ok := next[sel]; !ok {
			m.logger.Debug("[markers] Selected property %s left the result set", sel)
			m.clearSelection()
		}
	}

	if changed && len(filtered) > 0 {
		if err := m.engine.FitBounds(boundOf(filtered)); err != nil {
			m.logger.Warn("[markers] Failed to fit bounds: %v", err)
		}
	}

	return changed
}

// remove takes a marker off the map, parking its handle in pending when the
// engine refuses.
func (m *MarkerManager) remove(id string, h MarkerHandle) {
	if err := m.engine.RemoveMarker(h); err != nil {
		m.logger.Warn("[markers] Failed to remove marker for %s, will retry: %v", id, err)
		m.pending[h] = id
	}
}

// retryPending removes parked handles again. It reports whether any went.
func (m *MarkerManager) retryPending() bool {
	removed := false
	for h, id := range m.pending {
		if err := m.engine.RemoveMarker(h); err != nil {
			m.logger.Warn("[markers] Marker for %s still not removed: %v", id, err)
			continue
		}
		delete(m.pending, h)
		removed = true
	}
	return removed
}

// Select makes id the selected property, opens its popup and flies the map
// to it. It returns false and changes nothing when id is not in the current
// filtered collection.
func (m *MarkerManager) Select(id string) bool {
	pos, ok := m.positions[id]
	if !ok {
		m.logger.Debug("[markers] Ignoring selection of %s: not in current results", id)
		return false
	}

	if m.selection.SelectedID != id {
		m.selection.SelectedID = id
		if err := m.engine.ShowPopup(id); err != nil {
			m.logger.Warn("[markers] Failed to show popup for %s: %v", id, err)
		}
	}
	if err := m.engine.FlyTo(pos); err != nil {
		m.logger.Warn("[markers] Failed to fly to %s: %v", id, err)
	}
	return true
}

// Deselect closes the popup. It returns false when nothing was selected.
func (m *MarkerManager) Deselect() bool {
	if m.selection.SelectedID == "" {
		return false
	}
	m.clearSelection()
	return true
}

// ApplyOverlays forwards the clustering and heatmap toggles to the engine
// when they differ from what was last applied.
func (m *MarkerManager) ApplyOverlays(s models.FilterSettings) {
	if !m.overlaysApplied || s.Clustering != m.clustering {
		if err := m.engine.SetClustering(s.Clustering); err != nil {
			m.logger.Warn("[markers] Failed to toggle clustering: %v", err)
		}
	}
	if !m.overlaysApplied || s.Heatmap != m.heatmap {
		if err := m.engine.SetHeatmap(s.Heatmap); err != nil {
			m.logger.Warn("[markers] Failed to toggle heatmap: %v", err)
		}
	}
	m.overlaysApplied = true
	m.clustering = s.Clustering
	m.heatmap = s.Heatmap
}

// Selection returns the current selection.
func (m *MarkerManager) Selection() models.SelectionState {
	return m.selection
}

// RenderedIDs returns the ids that currently have a marker, in result order.
func (m *MarkerManager) RenderedIDs() []string {
	return m.renderedOrder()
}

func (m *MarkerManager) renderedOrder() []string {
	ids := make([]string, 0, len(m.markers))
	for _, id := range m.order {
		if _, ok := m.markers[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func (m *MarkerManager) clearSelection() {
	m.selection = models.SelectionState{}
	if err := m.engine.HidePopup(); err != nil {
		m.logger.Warn("[markers] Failed to hide popup: %v", err)
	}
}

// boundOf returns the smallest box holding every position.
func boundOf(props []models.NormalizedProperty) orb.Bound {
	points := make(orb.MultiPoint, 0, len(props))
	for _, p := range props {
		points = append(points, p.Position)
	}
	return points.Bound()
}
