package client

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kjstillabower/firewatch-service/internal/models"
)

const firmsSource = "firms"

// DetectionClient retrieves raw fire detections for the configured region.
type DetectionClient interface {
	FetchDetections(ctx context.Context) ([]models.FireDetection, error)
}

// FirmsConfig configures the NASA FIRMS country CSV endpoint.
type FirmsConfig struct {
	BaseURL   string
	MapKey    string
	Source    string // sensor product, e.g. VIIRS_SNPP_NRT
	Country   string // ISO3 country code
	DayRange  int
	Timeout   time.Duration
	UserAgent string
}

// FirmsClient reads the FIRMS country CSV feed.
type FirmsClient struct {
	upstream
	baseURL  string
	mapKey   string
	source   string
	country  string
	dayRange int
}

// NewFirmsClient returns a FirmsClient. An empty MapKey is accepted; every fetch then fails with
// ErrInvalidAPIKey without touching the network.
func NewFirmsClient(cfg FirmsConfig) (*FirmsClient, error) {
	if _, err := url.Parse(cfg.BaseURL); err != nil || cfg.BaseURL == "" {
		return nil, fmt.Errorf("invalid FIRMS base URL %q", cfg.BaseURL)
	}
	if cfg.Source == "" || cfg.Country == "" {
		return nil, errors.New("FIRMS source and country are required")
	}
	if cfg.DayRange <= 0 {
		cfg.DayRange = 1
	}
	return &FirmsClient{
		upstream: newUpstream(cfg.Timeout, cfg.UserAgent),
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		mapKey:   cfg.MapKey,
		source:   cfg.Source,
		country:  cfg.Country,
		dayRange: cfg.DayRange,
	}, nil
}

// FetchDetections downloads the country feed and returns every row with usable coordinates.
func (c *FirmsClient) FetchDetections(ctx context.Context) ([]models.FireDetection, error) {
	if c.mapKey == "" {
		return nil, fmt.Errorf("%w: FIRMS map key not configured", ErrInvalidAPIKey)
	}
	body, err := c.get(ctx, firmsSource, c.endpoint(), "text/csv")
	if err != nil {
		return nil, fmt.Errorf("firms: %w", err)
	}
	detections, err := ParseDetectionsCSV(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("firms: %w", err)
	}
	return detections, nil
}

func (c *FirmsClient) endpoint() string {
	return fmt.Sprintf("%s/api/country/csv/%s/%s/%s/%d",
		c.baseURL, url.PathEscape(c.mapKey), url.PathEscape(c.source), url.PathEscape(c.country), c.dayRange)
}

// ParseDetectionsCSV reads a FIRMS CSV document. The header must name latitude and longitude
// columns; acq_date, acq_time, confidence, bright_ti4/brightness and frp are read when present.
// Rows whose coordinates are missing or malformed are skipped.
func ParseDetectionsCSV(r io.Reader) ([]models.FireDetection, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty CSV", ErrSchema)
		}
		return nil, fmt.Errorf("parse CSV header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	latIdx, okLat := cols["latitude"]
	lonIdx, okLon := cols["longitude"]
	if !okLat || !okLon {
		return nil, fmt.Errorf("%w: CSV header lacks latitude/longitude", ErrSchema)
	}

	field := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	detections := make([]models.FireDetection, 0)
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				continue
			}
			return nil, fmt.Errorf("parse CSV row: %w", err)
		}
		if latIdx >= len(row) || lonIdx >= len(row) {
			continue
		}
		lat, okLat := parseCoord(row[latIdx])
		lon, okLon := parseCoord(row[lonIdx])
		if !okLat || !okLon {
			continue
		}

		d := models.FireDetection{
			Latitude:   lat,
			Longitude:  lon,
			DetectedAt: parseAcquired(field(row, "acq_date"), field(row, "acq_time")),
			Confidence: field(row, "confidence"),
		}
		if v := field(row, "bright_ti4"); v != "" {
			d.Brightness, _ = strconv.ParseFloat(v, 64)
		} else if v := field(row, "brightness"); v != "" {
			d.Brightness, _ = strconv.ParseFloat(v, 64)
		}
		if v := field(row, "frp"); v != "" {
			d.FRP, _ = strconv.ParseFloat(v, 64)
		}
		detections = append(detections, d)
	}
	return detections, nil
}

func parseCoord(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// parseAcquired combines FIRMS acq_date (YYYY-MM-DD) and acq_time (HHMM, leading zeros often
// dropped) into a UTC time. Returns nil when either part is unusable.
func parseAcquired(date, hhmm string) *time.Time {
	if date == "" {
		return nil
	}
	if hhmm == "" {
		hhmm = "0000"
	}
	if len(hhmm) < 4 {
		hhmm = strings.Repeat("0", 4-len(hhmm)) + hhmm
	}
	t, err := time.ParseInLocation("2006-01-02 1504", date+" "+hhmm, time.UTC)
	if err != nil {
		return nil
	}
	return &t
}
