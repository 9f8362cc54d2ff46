package main

import (
	"fmt"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/kjstillabower/firewatch-service/internal/cache"
	"github.com/kjstillabower/firewatch-service/internal/circuitbreaker"
	"github.com/kjstillabower/firewatch-service/internal/client"
	"github.com/kjstillabower/firewatch-service/internal/config"
	"github.com/kjstillabower/firewatch-service/internal/observability"
	"github.com/kjstillabower/firewatch-service/internal/service"
	"github.com/kjstillabower/firewatch-service/internal/traffic"
)

// app is the wired object graph shared by serve and snapshot.
type app struct {
	logger    *zap.Logger
	pipeline  *service.Pipeline
	tracker   *traffic.Tracker
	warmer    *cache.Warmer
	memcached *cache.MemcachedStore
}

func newApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	clock := clockwork.NewRealClock()

	firms, err := client.NewFirmsClient(client.FirmsConfig{
		BaseURL:   cfg.FirmsURL,
		MapKey:    cfg.FirmsMapKey,
		Source:    cfg.FirmsSource,
		Country:   cfg.FirmsCountry,
		DayRange:  cfg.FirmsDayRange,
		Timeout:   cfg.FirmsTimeout,
		UserAgent: cfg.NWSUserAgent,
	})
	if err != nil {
		return nil, fmt.Errorf("firms client: %w", err)
	}
	firms.SetCircuitBreaker(newBreaker(cfg, "firms"))
	if cfg.FirmsMapKey == "" {
		logger.Warn("FIRMS map key not configured; detections will use fallback")
	}

	nws, err := client.NewNWSClient(cfg.NWSURL, cfg.NWSTimeout, cfg.NWSUserAgent)
	if err != nil {
		return nil, fmt.Errorf("nws client: %w", err)
	}
	nws.SetCircuitBreaker(newBreaker(cfg, "nws"))

	a := &app{logger: logger}
	var store cache.Store
	switch cfg.CacheBackend {
	case "memcached":
		a.memcached = cache.NewMemcachedStore(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err := a.memcached.Ping(); err != nil {
			logger.Warn("memcached not reachable at startup; reads will miss until it is", zap.String("addrs", cfg.MemcachedAddrs), zap.Error(err))
		}
		store = a.memcached
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		store = cache.NewInMemoryStore(clock)
		logger.Info("cache backend: in_memory")
	}

	a.tracker = traffic.NewTracker(clock, cfg.HealthWindow)
	a.pipeline = service.NewPipeline(store, service.Sources{
		Detections: service.NewFireDetectionFetcher(firms, cfg.BoundingBox, clock, logger),
		Wind:       service.NewWeatherFetcher(nws, cfg.Incident.WatchedLocation, clock, logger),
		AirQuality: service.NewAirQualityFetcher(clock),
	}, service.PipelineConfig{
		TTLs: service.TTLs{
			Detections: cfg.DetectionsTTL,
			Wind:       cfg.WindTTL,
			AirQuality: cfg.AirQualityTTL,
		},
		Incident:    cfg.Incident,
		Concurrent:  cfg.PipelineConcurrent,
		DegradedTTL: cfg.DegradedTTL,
		StaleTTL:    cfg.StaleTTL,
		Clock:       clock,
		Logger:      logger,
		Recorder:    a.tracker,
	})
	a.warmer = cache.NewWarmer(a.pipeline, logger, cfg.RefreshTimeout)
	return a, nil
}

func newBreaker(cfg *config.Config, component string) *circuitbreaker.CircuitBreaker {
	observability.CircuitBreakerState.WithLabelValues(component).Set(0)
	return circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: cfg.BreakerFailureThreshold,
		SuccessThreshold: cfg.BreakerSuccessThreshold,
		Timeout:          cfg.BreakerTimeout,
		Component:        component,
		OnStateChange: func(from, to circuitbreaker.State) {
			observability.CircuitBreakerTransitionsTotal.WithLabelValues(component, from.String(), to.String()).Inc()
			observability.CircuitBreakerState.WithLabelValues(component).Set(observability.CircuitBreakerStateValue(to.String()))
		},
	})
}

func (a *app) close() {
	if a.memcached != nil {
		if err := a.memcached.Close(); err != nil {
			a.logger.Error("memcached close", zap.Error(err))
		}
	}
}
