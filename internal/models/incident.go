package models

import "time"

// Link is a titled external resource.
type Link struct {
	Title string `json:"title" yaml:"title"`
	URL   string `json:"url" yaml:"url"`
}

// Incident holds the static facts about the watched fire.
type Incident struct {
	Name            string   `json:"name"`
	Center          GeoPoint `json:"center"`
	WatchedLocation GeoPoint `json:"watchedLocation"`
	AcresBurned     int      `json:"acresBurned"`
	ContainmentPct  int      `json:"containmentPct"`
	Evacuations     []string `json:"evacuations"`
	Resources       []Link   `json:"resources"`
}

// Snapshot is one assembled view of every data source.
type Snapshot struct {
	Incident   Incident                  `json:"incident"`
	Detections Result[[]FireDetection]   `json:"detections"`
	Wind       Result[WindReading]       `json:"wind"`
	AirQuality Result[AirQualityReading] `json:"airQuality"`
	UpdatedAt  time.Time                 `json:"updatedAt"`
}
