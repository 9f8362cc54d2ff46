package models

import "time"

// GeoPoint is a WGS84 coordinate.
type GeoPoint struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
}

// BoundingBox is a latitude/longitude rectangle. Edges are exclusive.
type BoundingBox struct {
	MinLat float64 `json:"minLat"`
	MaxLat float64 `json:"maxLat"`
	MinLon float64 `json:"minLon"`
	MaxLon float64 `json:"maxLon"`
}

// DefaultBoundingBox covers the Stoner Mesa fire area north-east of Dolores, CO.
var DefaultBoundingBox = BoundingBox{MinLat: 37.2, MaxLat: 38.1, MinLon: -108.7, MaxLon: -108.0}

// Contains reports whether the point lies strictly inside the box.
func (b BoundingBox) Contains(lat, lon float64) bool {
	return lat > b.MinLat && lat < b.MaxLat && lon > b.MinLon && lon < b.MaxLon
}

// FireDetection is a single satellite hotspot. Only Latitude and Longitude are guaranteed.
type FireDetection struct {
	Latitude   float64    `json:"latitude"`
	Longitude  float64    `json:"longitude"`
	DetectedAt *time.Time `json:"detectedAt,omitempty"`
	Confidence string     `json:"confidence,omitempty"`
	Brightness float64    `json:"brightness,omitempty"`
	FRP        float64    `json:"frp,omitempty"`
}
