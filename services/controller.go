package services

import (
	"math"
	"slices"

	"property-map-search/models"
	"property-map-search/utils"
)

// Listener receives the derived state after every committed pass and after
// every selection change.
type Listener func(models.Snapshot)

// Controller sequences normalization, filtering, aggregation and marker
// reconciliation for one search session. It owns the viewport bounds, the
// filter settings and (through its MarkerManager) the selection.
//
// A Controller is not safe for concurrent use; it expects events one at a
// time. Dispatcher provides a concurrent front for it.
type Controller struct {
	sessionID  string
	logger     *utils.Logger
	normalizer *Normalizer
	markers    *MarkerManager
	defaults   models.FilterSettings

	phase      models.Phase
	properties []models.NormalizedProperty
	bounds     *models.ViewportBounds
	settings   models.FilterSettings

	// The committed* fields, filtered and stats all come from the same
	// pass, so a snapshot never pairs one event's inputs with another's
	// results.
	issuedSeq         uint64
	committedSeq      uint64
	committedPhase    models.Phase
	committedBounds   *models.ViewportBounds
	committedSettings models.FilterSettings
	filtered          []models.NormalizedProperty
	stats             models.MapStatistics

	listeners []Listener
}

// pass is the input of one recompute, captured when its event arrived.
type pass struct {
	seq        uint64
	phase      models.Phase
	properties []models.NormalizedProperty
	bounds     *models.ViewportBounds
	settings   models.FilterSettings
}

// passResult is what a pass produced; it is committed only if no later pass
// has been committed first.
type passResult struct {
	pass
	filtered []models.NormalizedProperty
	stats    models.MapStatistics
}

// NewController creates a session in the Uninitialized phase with the given
// default filter settings.
func NewController(sessionID string, normalizer *Normalizer, engine MapEngine, defaults models.FilterSettings, logger *utils.Logger) *Controller {
	defaults = defaults.Sanitize()
	return &Controller{
		sessionID:  sessionID,
		logger:     logger,
		normalizer: normalizer,
		markers:    NewMarkerManager(engine, logger),
		defaults:   defaults,
		phase:      models.PhaseUninitialized,
		settings:   defaults,

		committedPhase:    models.PhaseUninitialized,
		committedSettings: defaults,
		filtered:          []models.NormalizedProperty{},
		stats:             Aggregate(nil),
	}
}

// Subscribe registers a consumer of derived state.
func (c *Controller) Subscribe(l Listener) {
	c.listeners = append(c.listeners, l)
}

// SetProperties replaces the candidate property set with a new snapshot
// from the data source.
func (c *Controller) SetProperties(records []models.PropertyRecord) {
	c.setNormalized(c.normalizer.Normalize(records))
	c.recompute()
}

// OnViewportChange applies new bounds from the map engine. Bounds with a
// NaN edge are ignored.
func (c *Controller) OnViewportChange(b models.ViewportBounds) {
	if c.setViewport(b) {
		c.recompute()
	}
}

// OnFilterSettingsChange applies new sidebar settings.
func (c *Controller) OnFilterSettingsChange(s models.FilterSettings) {
	c.setSettings(s)
	c.recompute()
}

// OnReset restores the default settings and drops the viewport so every
// property is considered again.
func (c *Controller) OnReset() {
	c.reset()
	c.recompute()
}

// OnPropertySelect selects a property from the sidebar list. It reports
// whether the id was selectable.
func (c *Controller) OnPropertySelect(id string) bool {
	if !c.markers.Select(id) {
		return false
	}
	c.emit()
	return true
}

// OnMarkerClick selects the property whose marker was clicked.
func (c *Controller) OnMarkerClick(id string) bool {
	return c.OnPropertySelect(id)
}

// Deselect clears the selection and closes the popup.
func (c *Controller) Deselect() bool {
	if !c.markers.Deselect() {
		return false
	}
	c.emit()
	return true
}

// CurrentFilteredCollection returns the last committed filtered collection.
func (c *Controller) CurrentFilteredCollection() []models.NormalizedProperty {
	return slices.Clone(c.filtered)
}

// CurrentStatistics returns the last committed statistics.
func (c *Controller) CurrentStatistics() models.MapStatistics {
	stats := c.stats
	stats.PopularAreas = slices.Clone(c.stats.PopularAreas)
	return stats
}

// Phase reports whether a viewport has been established yet.
func (c *Controller) Phase() models.Phase {
	return c.phase
}

// Selection returns the current selection.
func (c *Controller) Selection() models.SelectionState {
	return c.markers.Selection()
}

// RenderedMarkerIDs returns the ids that currently have a marker on the map.
func (c *Controller) RenderedMarkerIDs() []string {
	return c.markers.RenderedIDs()
}

// Snapshot returns the derived state of the last committed pass together
// with the inputs that pass was computed from.
func (c *Controller) Snapshot() models.Snapshot {
	var bounds *models.ViewportBounds
	if c.committedBounds != nil {
		b := *c.committedBounds
		bounds = &b
	}
	return models.Snapshot{
		SessionID: c.sessionID,
		Seq:       c.committedSeq,
		Phase:     c.committedPhase,
		Bounds:    bounds,
		Settings:  c.committedSettings,
		Filtered:  c.CurrentFilteredCollection(),
		Stats:     c.CurrentStatistics(),
		Selection: c.markers.Selection(),
	}
}

func (c *Controller) setNormalized(props []models.NormalizedProperty) {
	c.properties = props
}

func (c *Controller) setViewport(b models.ViewportBounds) bool {
	if math.IsNaN(b.South) || math.IsNaN(b.North) || math.IsNaN(b.West) || math.IsNaN(b.East) {
		c.logger.Warn("[controller] Ignoring viewport with NaN edge: %+v", b)
		return false
	}
	if b.South > b.North {
		b.South, b.North = b.North, b.South
	}
	c.bounds = &b
	if c.phase == models.PhaseUninitialized {
		c.logger.Debug("[controller] Viewport established, session ready")
		c.phase = models.PhaseReady
	}
	return true
}

func (c *Controller) setSettings(s models.FilterSettings) {
	clean := s.Sanitize()
	if clean.PriceRange != s.PriceRange {
		c.logger.Warn("[controller] Adjusted price range %v to %v", s.PriceRange, clean.PriceRange)
	}
	c.settings = clean
}

func (c *Controller) reset() {
	c.settings = c.defaults
	c.bounds = nil
}

// begin captures the current inputs under a fresh sequence number.
func (c *Controller) begin() pass {
	c.issuedSeq++
	p := pass{
		seq:        c.issuedSeq,
		phase:      c.phase,
		properties: c.properties,
		settings:   c.settings,
	}
	if c.bounds != nil {
		b := *c.bounds
		p.bounds = &b
	}
	return p
}

// computePass runs the pure part of a recompute. It touches no Controller
// state and may run on any goroutine.
func computePass(p pass) passResult {
	filtered := Filter(p.properties, p.bounds, p.settings.PriceRange)
	return passResult{
		pass:     p,
		filtered: filtered,
		stats:    Aggregate(filtered),
	}
}

// commit publishes r unless a pass from a later event was committed first.
func (c *Controller) commit(r passResult) bool {
	if r.seq <= c.committedSeq {
		c.logger.Debug("[controller] Discarding stale pass %d (committed %d)", r.seq, c.committedSeq)
		return false
	}
	c.committedSeq = r.seq
	c.committedPhase = r.phase
	c.committedBounds = r.bounds
	c.committedSettings = r.settings
	c.filtered = r.filtered
	c.stats = r.stats

	c.markers.ApplyOverlays(r.settings)
	c.markers.Reconcile(r.filtered)

	c.logger.Debug("[controller] Pass %d committed: %d properties in view", r.seq, r.stats.TotalCount)
	c.emit()
	return true
}

func (c *Controller) recompute() {
	c.commit(computePass(c.begin()))
}

func (c *Controller) emit() {
	if len(c.listeners) == 0 {
		return
	}
	snap := c.Snapshot()
	for _, l := range c.listeners {
		l(snap)
	}
}
