package models

// WindReading is the nearest-term wind at the watched point as reported by the forecast.
// Speed keeps the upstream unit text (e.g. "17 mph", "10 to 15 mph").
type WindReading struct {
	Speed     string `json:"speed"`
	Direction string `json:"direction"`
}

// AirQualityReading holds an AQI value.
type AirQualityReading struct {
	Index int `json:"index"`
}

// FallbackWind is served when the forecast cannot be obtained.
var FallbackWind = WindReading{Speed: "17 mph", Direction: "ESE"}

// DefaultAirQuality is the placeholder AQI until a real source is wired.
var DefaultAirQuality = AirQualityReading{Index: 102}
