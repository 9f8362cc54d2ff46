package validation

import (
	"errors"
	"fmt"
	"math"
	"net/url"

	"github.com/kjstillabower/firewatch-service/internal/models"
)

// ErrLatitudeRange is returned when a latitude is outside [-90, 90] or not a number.
var ErrLatitudeRange = errors.New("latitude out of range")

// ErrLongitudeRange is returned when a longitude is outside [-180, 180] or not a number.
var ErrLongitudeRange = errors.New("longitude out of range")

// ErrBoundingBoxEmpty is returned when a bounding box has no interior.
var ErrBoundingBoxEmpty = errors.New("bounding box is empty")

// ErrPercentRange is returned when a percentage is outside [0, 100].
var ErrPercentRange = errors.New("percentage out of range")

// ErrNegative is returned for counts that must not be negative.
var ErrNegative = errors.New("value must not be negative")

// ErrInvalidURL is returned when a link is not an absolute http(s) URL.
var ErrInvalidURL = errors.New("invalid URL")

// ValidateGeoPoint checks that p is a real coordinate.
func ValidateGeoPoint(p models.GeoPoint) error {
	if err := validateLatitude(p.Latitude); err != nil {
		return err
	}
	return validateLongitude(p.Longitude)
}

// ValidateBoundingBox checks that every edge is a real coordinate and that min < max on both axes.
// Boxes crossing the antimeridian are not supported.
func ValidateBoundingBox(b models.BoundingBox) error {
	for _, lat := range []float64{b.MinLat, b.MaxLat} {
		if err := validateLatitude(lat); err != nil {
			return err
		}
	}
	for _, lon := range []float64{b.MinLon, b.MaxLon} {
		if err := validateLongitude(lon); err != nil {
			return err
		}
	}
	if b.MinLat >= b.MaxLat {
		return fmt.Errorf("%w: min_lat %.4f >= max_lat %.4f", ErrBoundingBoxEmpty, b.MinLat, b.MaxLat)
	}
	if b.MinLon >= b.MaxLon {
		return fmt.Errorf("%w: min_lon %.4f >= max_lon %.4f", ErrBoundingBoxEmpty, b.MinLon, b.MaxLon)
	}
	return nil
}

// ValidateIncident checks the static incident facts: coordinates, acreage, containment and links.
func ValidateIncident(inc models.Incident) error {
	if err := ValidateGeoPoint(inc.Center); err != nil {
		return fmt.Errorf("incident center: %w", err)
	}
	if err := ValidateGeoPoint(inc.WatchedLocation); err != nil {
		return fmt.Errorf("watched location: %w", err)
	}
	if inc.AcresBurned < 0 {
		return fmt.Errorf("acres burned: %w", ErrNegative)
	}
	if inc.ContainmentPct < 0 || inc.ContainmentPct > 100 {
		return fmt.Errorf("containment %d: %w", inc.ContainmentPct, ErrPercentRange)
	}
	for _, l := range inc.Resources {
		if err := ValidateLinkURL(l.URL); err != nil {
			return fmt.Errorf("resource %q: %w", l.Title, err)
		}
	}
	return nil
}

// ValidateLinkURL checks that raw is an absolute http or https URL with a host.
func ValidateLinkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	return nil
}

func validateLatitude(v float64) error {
	if math.IsNaN(v) || v < -90 || v > 90 {
		return fmt.Errorf("%w: %v", ErrLatitudeRange, v)
	}
	return nil
}

func validateLongitude(v float64) error {
	if math.IsNaN(v) || v < -180 || v > 180 {
		return fmt.Errorf("%w: %v", ErrLongitudeRange, v)
	}
	return nil
}
