package models

import (
	"encoding/json"

	"poimap/pkg/geo"
)

// Location is a WGS84 coordinate pair as the places service encodes it.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// String renders the location as "lat,lng", the form the nearby search expects.
func (l Location) String() string {
	return geo.FormatLatLng(l.Lat, l.Lng)
}

type Geometry struct {
	Location Location `json:"location"`
	// Viewport is kept as raw JSON and passed through untouched.
	Viewport json.RawMessage `json:"viewport,omitempty"`
}

// Place is one point of interest returned by a nearby search.
type Place struct {
	Geometry Geometry `json:"geometry"`
	Name     string   `json:"name"`
	Icon     string   `json:"icon"`
}
