package validation

import (
	"errors"
	"math"
	"testing"

	"github.com/kjstillabower/firewatch-service/internal/models"
)

func TestValidateGeoPoint(t *testing.T) {
	tests := []struct {
		name    string
		p       models.GeoPoint
		wantErr error
	}{
		{"dolores", models.GeoPoint{Latitude: 37.5444, Longitude: -108.4878}, nil},
		{"poles and antimeridian", models.GeoPoint{Latitude: 90, Longitude: -180}, nil},
		{"latitude too high", models.GeoPoint{Latitude: 91, Longitude: 0}, ErrLatitudeRange},
		{"latitude NaN", models.GeoPoint{Latitude: math.NaN(), Longitude: 0}, ErrLatitudeRange},
		{"longitude too low", models.GeoPoint{Latitude: 0, Longitude: -180.5}, ErrLongitudeRange},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateGeoPoint(tc.p)
			if tc.wantErr == nil && err != nil {
				t.Fatalf("ValidateGeoPoint() error = %v, want nil", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Errorf("ValidateGeoPoint() error = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestValidateBoundingBox(t *testing.T) {
	if err := ValidateBoundingBox(models.DefaultBoundingBox); err != nil {
		t.Fatalf("default box: %v", err)
	}

	tests := []struct {
		name    string
		box     models.BoundingBox
		wantErr error
	}{
		{"inverted latitude", models.BoundingBox{MinLat: 38.1, MaxLat: 37.2, MinLon: -108.7, MaxLon: -108.0}, ErrBoundingBoxEmpty},
		{"zero width", models.BoundingBox{MinLat: 37.2, MaxLat: 38.1, MinLon: -108.0, MaxLon: -108.0}, ErrBoundingBoxEmpty},
		{"latitude out of range", models.BoundingBox{MinLat: -95, MaxLat: 38.1, MinLon: -108.7, MaxLon: -108.0}, ErrLatitudeRange},
		{"longitude out of range", models.BoundingBox{MinLat: 37.2, MaxLat: 38.1, MinLon: -108.7, MaxLon: 200}, ErrLongitudeRange},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := ValidateBoundingBox(tc.box); !errors.Is(err, tc.wantErr) {
				t.Errorf("ValidateBoundingBox() error = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func validIncident() models.Incident {
	return models.Incident{
		Name:            "Stoner Mesa Fire",
		Center:          models.GeoPoint{Latitude: 37.65, Longitude: -108.3},
		WatchedLocation: models.GeoPoint{Latitude: 37.5444, Longitude: -108.4878},
		AcresBurned:     350,
		ContainmentPct:  0,
		Resources:       []models.Link{{Title: "InciWeb", URL: "https://inciweb.wildfire.gov/"}},
	}
}

func TestValidateIncident(t *testing.T) {
	if err := ValidateIncident(validIncident()); err != nil {
		t.Fatalf("ValidateIncident() error = %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(*models.Incident)
		wantErr error
	}{
		{"bad center", func(i *models.Incident) { i.Center.Latitude = 120 }, ErrLatitudeRange},
		{"bad watched location", func(i *models.Incident) { i.WatchedLocation.Longitude = -181 }, ErrLongitudeRange},
		{"negative acres", func(i *models.Incident) { i.AcresBurned = -1 }, ErrNegative},
		{"containment over 100", func(i *models.Incident) { i.ContainmentPct = 101 }, ErrPercentRange},
		{"relative link", func(i *models.Incident) { i.Resources[0].URL = "/inciweb" }, ErrInvalidURL},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			inc := validIncident()
			tc.mutate(&inc)
			if err := ValidateIncident(inc); !errors.Is(err, tc.wantErr) {
				t.Errorf("ValidateIncident() error = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestValidateLinkURL(t *testing.T) {
	valid := []string{"https://forecast.weather.gov/", "http://example.com/path?q=1"}
	for _, u := range valid {
		if err := ValidateLinkURL(u); err != nil {
			t.Errorf("ValidateLinkURL(%q) error = %v", u, err)
		}
	}
	invalid := []string{"", "ftp://example.com", "https://", "://bad"}
	for _, u := range invalid {
		if err := ValidateLinkURL(u); !errors.Is(err, ErrInvalidURL) {
			t.Errorf("ValidateLinkURL(%q) error = %v, want ErrInvalidURL", u, err)
		}
	}
}
