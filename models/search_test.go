package models

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
)

func TestViewportBoundsContains(t *testing.T) {
	lagos := ViewportBounds{South: 6.3, North: 6.7, West: 3.0, East: 3.8}
	pacific := ViewportBounds{South: -20, North: 20, West: 170, East: -170}

	tests := []struct {
		name string
		b    ViewportBounds
		p    orb.Point
		want bool
	}{
		{"inside", lagos, orb.Point{3.4, 6.5}, true},
		{"south-west corner", lagos, orb.Point{3.0, 6.3}, true},
		{"north-east corner", lagos, orb.Point{3.8, 6.7}, true},
		{"north of box", lagos, orb.Point{3.4, 6.71}, false},
		{"east of box", lagos, orb.Point{3.81, 6.5}, false},
		{"wrap east side", pacific, orb.Point{175, 0}, true},
		{"wrap west side", pacific, orb.Point{-175, 0}, true},
		{"wrap gap", pacific, orb.Point{0, 0}, false},
	}

	for _, tt := range tests {
		if got := tt.b.Contains(tt.p); got != tt.want {
			t.Errorf("%s: Contains(%v) = %v; want %v", tt.name, tt.p, got, tt.want)
		}
	}
}

func TestFilterSettingsSanitize(t *testing.T) {
	tests := []struct {
		in, want [2]float64
	}{
		{[2]float64{100, 900}, [2]float64{100, 900}},
		{[2]float64{900, 100}, [2]float64{100, 900}},
		{[2]float64{-5, 10}, [2]float64{0, 10}},
		{[2]float64{math.NaN(), 10}, [2]float64{0, 10}},
		{[2]float64{5, -1}, [2]float64{0, 5}},
	}

	for _, tt := range tests {
		s := FilterSettings{PriceRange: tt.in, Clustering: true, Radius: 4}.Sanitize()
		if s.PriceRange != tt.want {
			t.Errorf("Sanitize(%v) = %v; want %v", tt.in, s.PriceRange, tt.want)
		}
		if !s.Clustering || s.Radius != 4 {
			t.Errorf("Sanitize(%v) changed pass-through fields: %+v", tt.in, s)
		}
	}
}

func TestSelectionPopupVisible(t *testing.T) {
	if (SelectionState{}).PopupVisible() {
		t.Error("idle selection should not show a popup")
	}
	if !(SelectionState{SelectedID: "a"}).PopupVisible() {
		t.Error("selected property should show a popup")
	}
}
