package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kjstillabower/firewatch-service/internal/models"
)

const (
	nwsPointsSource   = "nws_points"
	nwsForecastSource = "nws_forecast"
	geoJSON           = "application/geo+json"
)

// ForecastClient performs the two-step api.weather.gov lookup.
type ForecastClient interface {
	ResolveForecastURL(ctx context.Context, point models.GeoPoint) (string, error)
	CurrentWind(ctx context.Context, forecastURL string) (models.WindReading, error)
}

// NWSClient talks to the National Weather Service API.
type NWSClient struct {
	upstream
	baseURL string
}

// NewNWSClient returns an NWSClient. The NWS asks every caller to send an identifying User-Agent.
func NewNWSClient(baseURL string, timeout time.Duration, userAgent string) (*NWSClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("NWS base URL is required")
	}
	return &NWSClient{
		upstream: newUpstream(timeout, userAgent),
		baseURL:  strings.TrimRight(baseURL, "/"),
	}, nil
}

type pointsResponse struct {
	Properties struct {
		Forecast       string `json:"forecast"`
		ForecastHourly string `json:"forecastHourly"`
	} `json:"properties"`
}

type forecastResponse struct {
	Properties struct {
		Periods []struct {
			StartTime     string `json:"startTime"`
			WindSpeed     string `json:"windSpeed"`
			WindDirection string `json:"windDirection"`
		} `json:"periods"`
	} `json:"properties"`
}

// ResolveForecastURL maps a coordinate to its hourly forecast resource, falling back to the
// period forecast when the grid has no hourly product.
func (c *NWSClient) ResolveForecastURL(ctx context.Context, point models.GeoPoint) (string, error) {
	// The API redirects requests with more than four decimal places.
	u := fmt.Sprintf("%s/points/%.4f,%.4f", c.baseURL, point.Latitude, point.Longitude)
	body, err := c.get(ctx, nwsPointsSource, u, geoJSON)
	if err != nil {
		return "", fmt.Errorf("nws points: %w", err)
	}
	var resp pointsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("nws points: parse response: %w", err)
	}
	if resp.Properties.ForecastHourly != "" {
		return resp.Properties.ForecastHourly, nil
	}
	if resp.Properties.Forecast != "" {
		return resp.Properties.Forecast, nil
	}
	return "", fmt.Errorf("nws points: %w: no forecast reference", ErrSchema)
}

// CurrentWind reads the first (nearest-term) period of the forecast at forecastURL.
func (c *NWSClient) CurrentWind(ctx context.Context, forecastURL string) (models.WindReading, error) {
	body, err := c.get(ctx, nwsForecastSource, forecastURL, geoJSON)
	if err != nil {
		return models.WindReading{}, fmt.Errorf("nws forecast: %w", err)
	}
	var resp forecastResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.WindReading{}, fmt.Errorf("nws forecast: parse response: %w", err)
	}
	if len(resp.Properties.Periods) == 0 {
		return models.WindReading{}, fmt.Errorf("nws forecast: %w: no periods", ErrSchema)
	}
	first := resp.Properties.Periods[0]
	if first.WindSpeed == "" || first.WindDirection == "" {
		return models.WindReading{}, fmt.Errorf("nws forecast: %w: wind fields missing", ErrSchema)
	}
	return models.WindReading{Speed: first.WindSpeed, Direction: first.WindDirection}, nil
}
