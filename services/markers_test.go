package services

import (
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/paulmach/orb"

	"property-map-search/models"
)

func sameSet(a []string, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for _, id := range a {
		if !b[id] {
			return false
		}
	}
	return true
}

func TestReconcileRemovesBeforeAdding(t *testing.T) {
	eng := newFakeEngine()
	m := NewMarkerManager(eng, testLogger())

	m.Reconcile([]models.NormalizedProperty{prop("a", 1, 1, 1, ""), prop("b", 1, 2, 2, ""), prop("c", 1, 3, 3, "")})
	eng.resetCalls()

	m.Reconcile([]models.NormalizedProperty{prop("b", 1, 2, 2, ""), prop("d", 1, 4, 4, ""), prop("e", 1, 5, 5, "")})

	var mutations []string
	for _, c := range eng.calls {
		if strings.HasPrefix(c, "add:") || strings.HasPrefix(c, "remove:") {
			mutations = append(mutations, c)
		}
	}
	want := []string{"remove:a", "remove:c", "add:d", "add:e"}
	if !reflect.DeepEqual(mutations, want) {
		t.Errorf("engine mutations: got %v, want %v", mutations, want)
	}
}

func TestReconcileKeepsSurvivingMarkers(t *testing.T) {
	eng := newFakeEngine()
	m := NewMarkerManager(eng, testLogger())

	m.Reconcile([]models.NormalizedProperty{prop("a", 1, 1, 1, ""), prop("b", 1, 2, 2, "")})
	handleB := m.markers["b"]

	m.Reconcile([]models.NormalizedProperty{prop("b", 1, 2, 2, ""), prop("c", 1, 3, 3, "")})
	if m.markers["b"] != handleB {
		t.Errorf("marker for b recreated: handle %s → %s", handleB, m.markers["b"])
	}
	if !sameSet(m.RenderedIDs(), eng.liveIDs()) {
		t.Errorf("rendered %v does not match engine %v", m.RenderedIDs(), eng.liveIDs())
	}
	if got := m.RenderedIDs(); !reflect.DeepEqual(got, []string{"b", "c"}) {
		t.Errorf("RenderedIDs: got %v, want [b c]", got)
	}
}

func TestReconcileRecreatesMovedMarker(t *testing.T) {
	eng := newFakeEngine()
	m := NewMarkerManager(eng, testLogger())

	m.Reconcile([]models.NormalizedProperty{prop("a", 1, 1, 1, "")})
	eng.resetCalls()
	m.Reconcile([]models.NormalizedProperty{prop("a", 1, 9, 9, "")})

	want := []string{"remove:a", "add:a", "fit"}
	if !reflect.DeepEqual(eng.calls, want) {
		t.Errorf("calls: got %v, want %v", eng.calls, want)
	}
	if len(eng.live) != 1 {
		t.Errorf("live markers: got %d, want 1", len(eng.live))
	}
}

func TestReconcileMatchesFilteredSetAcrossChanges(t *testing.T) {
	eng := newFakeEngine()
	m := NewMarkerManager(eng, testLogger())

	steps := [][]string{{"a", "b"}, {"b", "c", "d"}, {}, {"d"}, {"a", "b", "c", "d", "e"}, {"e", "a"}}
	for i, step := range steps {
		var filtered []models.NormalizedProperty
		for _, id := range step {
			filtered = append(filtered, prop(id, 1, 0, float64(id[0]), ""))
		}
		m.Reconcile(filtered)

		got := m.RenderedIDs()
		sort.Strings(got)
		want := append([]string(nil), step...)
		sort.Strings(want)
		if len(want) == 0 {
			want = []string{}
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("step %d: rendered %v, want %v", i, got, want)
		}
		if !sameSet(m.RenderedIDs(), eng.liveIDs()) {
			t.Errorf("step %d: engine holds %v, manager %v", i, eng.liveIDs(), m.RenderedIDs())
		}
	}
}

func TestReconcileFitsBounds(t *testing.T) {
	eng := newFakeEngine()
	m := NewMarkerManager(eng, testLogger())

	m.Reconcile([]models.NormalizedProperty{prop("a", 1, 6.43, 3.42, ""), prop("b", 1, 6.47, 3.59, "")})
	if len(eng.fits) != 1 {
		t.Fatalf("fits: got %d, want 1", len(eng.fits))
	}
	want := orb.Bound{Min: orb.Point{3.42, 6.43}, Max: orb.Point{3.59, 6.47}}
	if !eng.fits[0].Equal(want) {
		t.Errorf("fit box: got %v, want %v", eng.fits[0], want)
	}

	m.Reconcile([]models.NormalizedProperty{prop("a", 1, 6.43, 3.42, ""), prop("b", 1, 6.47, 3.59, "")})
	if len(eng.fits) != 1 {
		t.Errorf("unchanged set refitted: %d fits", len(eng.fits))
	}

	m.Reconcile(nil)
	if len(eng.fits) != 1 {
		t.Errorf("empty set triggered a fit: %d fits", len(eng.fits))
	}
	if len(eng.live) != 0 {
		t.Errorf("live markers after empty reconcile: %d", len(eng.live))
	}
}

func TestReconcileRetriesFailedAdd(t *testing.T) {
	eng := newFakeEngine()
	eng.failAdd["a"] = true
	m := NewMarkerManager(eng, testLogger())

	m.Reconcile([]models.NormalizedProperty{prop("a", 1, 1, 1, "")})
	if len(m.RenderedIDs()) != 0 {
		t.Fatalf("failed marker counted as rendered")
	}

	eng.failAdd["a"] = false
	m.Reconcile([]models.NormalizedProperty{prop("a", 1, 1, 1, "")})
	if got := m.RenderedIDs(); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("RenderedIDs after retry: got %v, want [a]", got)
	}
}

func TestReconcileRetriesFailedRemove(t *testing.T) {
	eng := newFakeEngine()
	m := NewMarkerManager(eng, testLogger())

	m.Reconcile([]models.NormalizedProperty{prop("a", 1, 1, 1, ""), prop("b", 1, 2, 2, "")})

	// a leaves and b moves while the engine refuses removals
	eng.failRemove = true
	eng.resetCalls()
	m.Reconcile([]models.NormalizedProperty{prop("b", 1, 5, 5, "")})
	if len(eng.live) != 2 {
		t.Fatalf("live markers while removals fail: got %d, want 2", len(eng.live))
	}
	for _, c := range eng.calls {
		if c == "add:b" {
			t.Fatal("second marker created for b while its old one is still on the map")
		}
	}
	if got := m.RenderedIDs(); len(got) != 0 {
		t.Errorf("RenderedIDs: got %v, want none until the old handles are gone", got)
	}

	eng.failRemove = false
	m.Reconcile([]models.NormalizedProperty{prop("b", 1, 5, 5, "")})
	if got := eng.liveIDs(); len(got) != 1 || !got["b"] {
		t.Errorf("engine live after recovery: got %v, want only b", got)
	}
	if got := m.RenderedIDs(); !reflect.DeepEqual(got, []string{"b"}) {
		t.Errorf("RenderedIDs after recovery: got %v, want [b]", got)
	}

	m.Reconcile(nil)
	if len(eng.live) != 0 {
		t.Errorf("markers leaked: %v", eng.live)
	}
}

func TestReconcileReopensPopupOfMovedSelection(t *testing.T) {
	eng := newFakeEngine()
	m := NewMarkerManager(eng, testLogger())

	m.Reconcile([]models.NormalizedProperty{prop("a", 1, 1, 1, ""), prop("b", 1, 2, 2, "")})
	m.Select("a")
	eng.resetCalls()

	m.Reconcile([]models.NormalizedProperty{prop("a", 1, 7, 7, ""), prop("b", 1, 2, 2, "")})

	want := []string{"remove:a", "add:a", "popup:a", "fit"}
	if !reflect.DeepEqual(eng.calls, want) {
		t.Errorf("calls: got %v, want %v", eng.calls, want)
	}
	if m.Selection().SelectedID != "a" || eng.popup != "a" {
		t.Errorf("selection %q, engine popup %q; want a, a", m.Selection().SelectedID, eng.popup)
	}
}

func TestSelectionLifecycle(t *testing.T) {
	eng := newFakeEngine()
	m := NewMarkerManager(eng, testLogger())
	m.Reconcile([]models.NormalizedProperty{prop("a", 1, 1, 1, ""), prop("b", 1, 2, 2, "")})

	if m.Select("zzz") {
		t.Error("Select of unknown id returned true")
	}
	if m.Selection().PopupVisible() {
		t.Error("popup visible after rejected selection")
	}

	if !m.Select("a") {
		t.Fatal("Select(a) returned false")
	}
	if eng.popup != "a" || len(eng.flights) != 1 || !eng.flights[0].Equal(orb.Point{1, 1}) {
		t.Errorf("after Select(a): popup %q, flights %v", eng.popup, eng.flights)
	}

	m.Select("b")
	if got := m.Selection().SelectedID; got != "b" {
		t.Errorf("SelectedID: got %q, want b", got)
	}
	if eng.popup != "b" {
		t.Errorf("engine popup: got %q, want b", eng.popup)
	}

	// b leaves the result set
	m.Reconcile([]models.NormalizedProperty{prop("a", 1, 1, 1, "")})
	if m.Selection().PopupVisible() {
		t.Error("selection survived removal of the selected property")
	}
	if eng.popup != "" {
		t.Errorf("engine popup still open: %q", eng.popup)
	}

	m.Select("a")
	if !m.Deselect() {
		t.Error("Deselect returned false with a selection")
	}
	if m.Deselect() {
		t.Error("Deselect returned true with nothing selected")
	}
	if eng.popup != "" {
		t.Errorf("popup open after Deselect: %q", eng.popup)
	}
}

func TestApplyOverlaysOnlyOnChange(t *testing.T) {
	eng := newFakeEngine()
	m := NewMarkerManager(eng, testLogger())

	m.ApplyOverlays(models.FilterSettings{Clustering: true})
	m.ApplyOverlays(models.FilterSettings{Clustering: true})
	m.ApplyOverlays(models.FilterSettings{Clustering: true, Heatmap: true})

	if !reflect.DeepEqual(eng.clustering, []bool{true}) {
		t.Errorf("clustering toggles: got %v, want [true]", eng.clustering)
	}
	if !reflect.DeepEqual(eng.heatmap, []bool{false, true}) {
		t.Errorf("heatmap toggles: got %v, want [false true]", eng.heatmap)
	}
}
