package service

import (
	"context"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/kjstillabower/firewatch-service/internal/client"
	"github.com/kjstillabower/firewatch-service/internal/models"
	"github.com/kjstillabower/firewatch-service/internal/observability"
)

// Source names used for metrics, health checks and cache keys.
const (
	SourceDetections = "detections"
	SourceWind       = "wind"
	SourceAirQuality = "air_quality"
)

// DetectionSource yields fire detections for the watched area.
type DetectionSource interface {
	Fetch(ctx context.Context) models.Result[[]models.FireDetection]
}

// WindSource yields the current wind at the watched location.
type WindSource interface {
	Fetch(ctx context.Context) models.Result[models.WindReading]
}

// AirQualitySource yields the air quality index at the watched location.
type AirQualitySource interface {
	Fetch(ctx context.Context) models.Result[models.AirQualityReading]
}

// FireDetectionFetcher pulls satellite detections and keeps those inside the bounding box.
// It never fails: any upstream problem yields a degraded, empty detection set.
type FireDetectionFetcher struct {
	client client.DetectionClient
	box    models.BoundingBox
	clock  clockwork.Clock
	logger *zap.Logger
}

// NewFireDetectionFetcher creates a FireDetectionFetcher. A nil clock uses wall time.
func NewFireDetectionFetcher(c client.DetectionClient, box models.BoundingBox, clock clockwork.Clock, logger *zap.Logger) *FireDetectionFetcher {
	return &FireDetectionFetcher{client: c, box: box, clock: orRealClock(clock), logger: orNop(logger)}
}

// Fetch implements DetectionSource.
func (f *FireDetectionFetcher) Fetch(ctx context.Context) models.Result[[]models.FireDetection] {
	now := f.clock.Now().UTC()
	all, err := f.client.FetchDetections(ctx)
	if err != nil {
		reason := degrade(ctx, f.logger, SourceDetections, err)
		return models.Degraded([]models.FireDetection{}, reason, now)
	}
	inBox := FilterDetections(all, f.box)
	observability.RecordFetch(SourceDetections, true, "")
	observability.DetectionsInBox.Set(float64(len(inBox)))
	observability.LoggerFromContext(ctx, f.logger).Debug("detections fetched",
		zap.Int("total", len(all)),
		zap.Int("in_box", len(inBox)))
	return models.Ok(inBox, now)
}

// FilterDetections returns the detections strictly inside box, in input order. The result is
// never nil.
func FilterDetections(detections []models.FireDetection, box models.BoundingBox) []models.FireDetection {
	out := make([]models.FireDetection, 0, len(detections))
	for _, d := range detections {
		if box.Contains(d.Latitude, d.Longitude) {
			out = append(out, d)
		}
	}
	return out
}

// WeatherFetcher resolves the forecast for a point and reads the current wind from it.
// Failure at either step yields models.FallbackWind, degraded.
type WeatherFetcher struct {
	client client.ForecastClient
	point  models.GeoPoint
	clock  clockwork.Clock
	logger *zap.Logger
}

// NewWeatherFetcher creates a WeatherFetcher for point. A nil clock uses wall time.
func NewWeatherFetcher(c client.ForecastClient, point models.GeoPoint, clock clockwork.Clock, logger *zap.Logger) *WeatherFetcher {
	return &WeatherFetcher{client: c, point: point, clock: orRealClock(clock), logger: orNop(logger)}
}

// Fetch implements WindSource.
func (f *WeatherFetcher) Fetch(ctx context.Context) models.Result[models.WindReading] {
	now := f.clock.Now().UTC()
	forecastURL, err := f.client.ResolveForecastURL(ctx, f.point)
	if err != nil {
		reason := degrade(ctx, f.logger, SourceWind, err)
		return models.Degraded(models.FallbackWind, reason, now)
	}
	wind, err := f.client.CurrentWind(ctx, forecastURL)
	if err != nil {
		reason := degrade(ctx, f.logger, SourceWind, err)
		return models.Degraded(models.FallbackWind, reason, now)
	}
	observability.RecordFetch(SourceWind, true, "")
	return models.Ok(wind, now)
}

// AirQualityFetcher reports a fixed index until a live air quality feed is wired in.
type AirQualityFetcher struct {
	reading models.AirQualityReading
	clock   clockwork.Clock
}

// NewAirQualityFetcher creates an AirQualityFetcher returning models.DefaultAirQuality.
func NewAirQualityFetcher(clock clockwork.Clock) *AirQualityFetcher {
	return &AirQualityFetcher{reading: models.DefaultAirQuality, clock: orRealClock(clock)}
}

// Fetch implements AirQualitySource.
func (f *AirQualityFetcher) Fetch(ctx context.Context) models.Result[models.AirQualityReading] {
	observability.RecordFetch(SourceAirQuality, true, "")
	return models.Ok(f.reading, f.clock.Now().UTC())
}

// degrade logs and counts a failed fetch and returns its reason label.
func degrade(ctx context.Context, fallback *zap.Logger, source string, err error) string {
	reason := string(client.CategorizeError(err))
	observability.RecordFetch(source, false, reason)
	observability.LoggerFromContext(ctx, fallback).Warn("fetch degraded, using fallback",
		zap.String("source", source),
		zap.String("reason", reason),
		zap.Error(err))
	return reason
}

func orRealClock(c clockwork.Clock) clockwork.Clock {
	if c == nil {
		return clockwork.NewRealClock()
	}
	return c
}

func orNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
