package config

import (
	"testing"

	"property-map-search/models"
)

func TestLoadReadsEnv(t *testing.T) {
	t.Setenv("PROPERTY_SOURCE", "Postgres")
	t.Setenv("DEFAULT_PRICE_MAX", "5000000")
	t.Setenv("DEFAULT_CLUSTERING", "false")
	t.Setenv("MAX_CONCURRENCY", "not-a-number")

	cfg := Load()

	if cfg.PropertySource != "postgres" {
		t.Errorf("PropertySource: got %q, want %q", cfg.PropertySource, "postgres")
	}
	if cfg.DefaultPriceMax != 5000000 {
		t.Errorf("DefaultPriceMax: got %v, want 5000000", cfg.DefaultPriceMax)
	}
	if cfg.DefaultClustering {
		t.Error("DefaultClustering: got true, want false")
	}
	if cfg.MaxConcurrency != 2 {
		t.Errorf("MaxConcurrency: got %d, want fallback 2", cfg.MaxConcurrency)
	}
}

func TestDefaultFilterSettingsSanitizes(t *testing.T) {
	cfg := &Config{DefaultPriceMin: 900, DefaultPriceMax: 100, DefaultRadius: 3, DefaultClustering: true}

	got := cfg.DefaultFilterSettings()
	want := models.FilterSettings{PriceRange: [2]float64{100, 900}, Clustering: true, Radius: 3}
	if got != want {
		t.Errorf("DefaultFilterSettings() = %+v; want %+v", got, want)
	}
}

func TestViewport(t *testing.T) {
	tests := []struct {
		raw    string
		want   models.ViewportBounds
		wantOK bool
	}{
		{"6.3,6.7,3.0,3.8", models.ViewportBounds{South: 6.3, North: 6.7, West: 3.0, East: 3.8}, true},
		{" 6.3 , 6.7 , 3.0 , 3.8 ", models.ViewportBounds{South: 6.3, North: 6.7, West: 3.0, East: 3.8}, true},
		{"", models.ViewportBounds{}, false},
		{"1,2,3", models.ViewportBounds{}, false},
		{"a,2,3,4", models.ViewportBounds{}, false},
		{"7,6,3,4", models.ViewportBounds{}, false},
	}

	for _, tt := range tests {
		cfg := &Config{InitialViewport: tt.raw}
		got, ok := cfg.Viewport()
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("Viewport(%q) = %+v, %v; want %+v, %v", tt.raw, got, ok, tt.want, tt.wantOK)
		}
	}
}
