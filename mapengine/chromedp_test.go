package mapengine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/paulmach/orb"

	"property-map-search/models"
	"property-map-search/services"
	"property-map-search/utils"
)

var _ services.MapEngine = (*ChromeMap)(nil)

func TestScriptBuilders(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{
			"add marker",
			addMarkerJS("p-1", orb.Point{3.3792, 6.5244}),
			`String(window.searchMap.addMarker("p-1", 6.5244, 3.3792))`,
		},
		{
			"quotes escaped",
			callJS("showPopup", `a"b</script>`),
			`(window.searchMap.showPopup("a\"b\u003c/script\u003e"), null)`,
		},
		{
			"fit bounds",
			fitBoundsJS(orb.Bound{Min: orb.Point{3.0, 6.3}, Max: orb.Point{3.8, 6.7}}),
			`(window.searchMap.fitBounds(6.3, 3, 6.7, 3.8), null)`,
		},
		{"no args", callJS("hidePopup"), `(window.searchMap.hidePopup(), null)`},
		{"bool", callJS("setHeatmap", true), `(window.searchMap.setHeatmap(true), null)`},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %s; want %s", tt.name, tt.got, tt.want)
		}
	}
}

type fakeSink struct {
	calls    []string
	clickErr error
}

func (s *fakeSink) OnViewportChange(_ context.Context, b models.ViewportBounds) (models.Snapshot, error) {
	s.calls = append(s.calls, "viewport")
	return models.Snapshot{Bounds: &b}, nil
}

func (s *fakeSink) OnMarkerClick(_ context.Context, id string) (models.Snapshot, bool, error) {
	s.calls = append(s.calls, "click:"+id)
	return models.Snapshot{}, id != "gone", s.clickErr
}

func TestForwardEventsOrder(t *testing.T) {
	sink := &fakeSink{}
	bounds := func() (models.ViewportBounds, error) {
		return models.ViewportBounds{South: 6.3, North: 6.7, West: 3.0, East: 3.8}, nil
	}

	forwardEvents(context.Background(), pageEvents{Clicks: []string{"a", "gone"}, Moved: true},
		bounds, sink, utils.NewDiscardLogger())

	if got := strings.Join(sink.calls, ","); got != "viewport,click:a,click:gone" {
		t.Errorf("calls: got %q", got)
	}
}

func TestForwardEventsSkipsViewportOnReadError(t *testing.T) {
	sink := &fakeSink{clickErr: errors.New("stopped")}
	bounds := func() (models.ViewportBounds, error) {
		return models.ViewportBounds{}, errors.New("tab crashed")
	}

	forwardEvents(context.Background(), pageEvents{Clicks: []string{"a"}, Moved: true},
		bounds, sink, utils.NewDiscardLogger())

	if got := strings.Join(sink.calls, ","); got != "click:a" {
		t.Errorf("calls: got %q, want only the click", got)
	}
}

func TestForwardEventsIdle(t *testing.T) {
	sink := &fakeSink{}
	called := false
	bounds := func() (models.ViewportBounds, error) {
		called = true
		return models.ViewportBounds{}, nil
	}

	forwardEvents(context.Background(), pageEvents{}, bounds, sink, utils.NewDiscardLogger())

	if called || len(sink.calls) != 0 {
		t.Errorf("idle batch should do nothing; readBounds=%v calls=%v", called, sink.calls)
	}
}
