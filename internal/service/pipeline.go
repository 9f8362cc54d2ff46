package service

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kjstillabower/firewatch-service/internal/cache"
	"github.com/kjstillabower/firewatch-service/internal/models"
)

// OutcomeRecorder receives the outcome of every live fetch. *traffic.Tracker implements it.
type OutcomeRecorder interface {
	Record(source string, ok bool)
}

// Sources bundles the three data sources a Pipeline reads.
type Sources struct {
	Detections DetectionSource
	Wind       WindSource
	AirQuality AirQualitySource
}

// TTLs holds how long each source's result is reused before it is fetched again.
type TTLs struct {
	Detections time.Duration
	Wind       time.Duration
	AirQuality time.Duration
}

// PipelineConfig configures a Pipeline.
type PipelineConfig struct {
	TTLs     TTLs
	Incident models.Incident
	// Concurrent runs the three fetches of a refresh in parallel instead of one after another.
	Concurrent bool
	// DegradedTTL and StaleTTL are passed to each RefreshCache.
	DegradedTTL time.Duration
	StaleTTL    time.Duration
	Clock       clockwork.Clock
	Logger      *zap.Logger
	Recorder    OutcomeRecorder
}

// Pipeline reads every source through its own RefreshCache and assembles a Snapshot.
type Pipeline struct {
	sources    Sources
	ttls       TTLs
	incident   models.Incident
	concurrent bool
	recorder   OutcomeRecorder
	logger     *zap.Logger

	detections *cache.RefreshCache[[]models.FireDetection]
	wind       *cache.RefreshCache[models.WindReading]
	airQuality *cache.RefreshCache[models.AirQualityReading]
}

// NewPipeline creates a Pipeline whose caches share store.
func NewPipeline(store cache.Store, sources Sources, cfg PipelineConfig) *Pipeline {
	logger := orNop(cfg.Logger)
	opts := cache.Options{
		Clock:       cfg.Clock,
		DegradedTTL: cfg.DegradedTTL,
		StaleTTL:    cfg.StaleTTL,
		Logger:      logger,
	}
	return &Pipeline{
		sources:    sources,
		ttls:       cfg.TTLs,
		incident:   cfg.Incident,
		concurrent: cfg.Concurrent,
		recorder:   cfg.Recorder,
		logger:     logger,
		detections: cache.NewRefreshCache[[]models.FireDetection](store, opts),
		wind:       cache.NewRefreshCache[models.WindReading](store, opts),
		airQuality: cache.NewRefreshCache[models.AirQualityReading](store, opts),
	}
}

// Detections returns the cached detection result, fetching when it has expired.
func (p *Pipeline) Detections(ctx context.Context) models.Result[[]models.FireDetection] {
	return p.detections.GetOrFetch(ctx, SourceDetections, p.ttls.Detections,
		func(ctx context.Context) models.Result[[]models.FireDetection] {
			r := p.sources.Detections.Fetch(ctx)
			p.record(SourceDetections, r.IsOK())
			return r
		})
}

// Wind returns the cached wind result, fetching when it has expired.
func (p *Pipeline) Wind(ctx context.Context) models.Result[models.WindReading] {
	return p.wind.GetOrFetch(ctx, SourceWind, p.ttls.Wind,
		func(ctx context.Context) models.Result[models.WindReading] {
			r := p.sources.Wind.Fetch(ctx)
			p.record(SourceWind, r.IsOK())
			return r
		})
}

// AirQuality returns the cached air quality result, fetching when it has expired.
func (p *Pipeline) AirQuality(ctx context.Context) models.Result[models.AirQualityReading] {
	return p.airQuality.GetOrFetch(ctx, SourceAirQuality, p.ttls.AirQuality,
		func(ctx context.Context) models.Result[models.AirQualityReading] {
			r := p.sources.AirQuality.Fetch(ctx)
			p.record(SourceAirQuality, r.IsOK())
			return r
		})
}

// Incident returns the static incident facts.
func (p *Pipeline) Incident() models.Incident {
	return p.incident
}

// Refresh reads all three sources and returns the assembled snapshot. Sources whose cached
// result is still valid are not fetched. A failing source never affects the others.
func (p *Pipeline) Refresh(ctx context.Context) models.Snapshot {
	snap := models.Snapshot{Incident: p.incident}
	if p.concurrent {
		// Fetches never return errors; the group only joins them.
		var g errgroup.Group
		g.Go(func() error { snap.Detections = p.Detections(ctx); return nil })
		g.Go(func() error { snap.Wind = p.Wind(ctx); return nil })
		g.Go(func() error { snap.AirQuality = p.AirQuality(ctx); return nil })
		_ = g.Wait()
	} else {
		snap.Detections = p.Detections(ctx)
		snap.Wind = p.Wind(ctx)
		snap.AirQuality = p.AirQuality(ctx)
	}
	snap.UpdatedAt = latest(snap.Detections.FetchedAt, snap.Wind.FetchedAt, snap.AirQuality.FetchedAt)
	return snap
}

func (p *Pipeline) record(source string, ok bool) {
	if p.recorder != nil {
		p.recorder.Record(source, ok)
	}
}

// latest returns the most recent of ts, so an unchanged snapshot keeps its timestamp.
func latest(ts ...time.Time) time.Time {
	var out time.Time
	for _, t := range ts {
		if t.After(out) {
			out = t
		}
	}
	return out
}
