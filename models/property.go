package models

import (
	"github.com/paulmach/orb"
)

// Coordinates is a raw latitude/longitude pair as supplied by the data source.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// PropertyRecord holds a listing exactly as the property source returned it.
// RawPrice may be a number or a free-text string ("₦45,000,000", "2.5 million").
type PropertyRecord struct {
	ID          string       `json:"id"`
	RawPrice    any          `json:"rawPrice"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
	City        string       `json:"city,omitempty"`
	Address     string       `json:"address,omitempty"`

	Title     string `json:"title,omitempty"`
	ImageURL  string `json:"image,omitempty"`
	Bedrooms  int    `json:"bedrooms,omitempty"`
	Bathrooms int    `json:"bathrooms,omitempty"`
}

// NormalizedProperty is a PropertyRecord with a canonical price and a
// position that is always placeable on the map.
type NormalizedProperty struct {
	PropertyRecord

	Price    float64   `json:"price"`
	Position orb.Point `json:"position"`
	AreaKey  string    `json:"areaKey,omitempty"`
}

// Lat returns the latitude of the map position.
func (p NormalizedProperty) Lat() float64 { return p.Position.Lat() }

// Lng returns the longitude of the map position.
func (p NormalizedProperty) Lng() float64 { return p.Position.Lon() }
