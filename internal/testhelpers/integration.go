//go:build integration
// +build integration

package testhelpers

import (
	"os"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap/zaptest"

	"github.com/kjstillabower/firewatch-service/internal/cache"
	"github.com/kjstillabower/firewatch-service/internal/client"
	"github.com/kjstillabower/firewatch-service/internal/config"
	"github.com/kjstillabower/firewatch-service/internal/models"
	"github.com/kjstillabower/firewatch-service/internal/service"
	"github.com/kjstillabower/firewatch-service/internal/traffic"
)

// IntegrationTestConfig holds configuration for tests against the live FIRMS and NWS APIs.
type IntegrationTestConfig struct {
	FirmsMapKey   string
	FirmsURL      string
	NWSURL        string
	UserAgent     string
	CacheBackend  string // "in_memory" or "memcached"
	MemcachedAddr string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips test if FIRMS_MAP_KEY is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	mapKey := os.Getenv("FIRMS_MAP_KEY")
	if mapKey == "" {
		t.Skip("FIRMS_MAP_KEY not set, skipping integration test")
	}

	firmsURL := os.Getenv("FIRMS_URL")
	if firmsURL == "" {
		firmsURL = "https://firms.modaps.eosdis.nasa.gov"
	}
	nwsURL := os.Getenv("NWS_URL")
	if nwsURL == "" {
		nwsURL = "https://api.weather.gov"
	}
	userAgent := os.Getenv("NWS_USER_AGENT")
	if userAgent == "" {
		userAgent = "firewatch-service integration tests"
	}
	memcachedAddr := os.Getenv("MEMCACHED_ADDRS")
	if memcachedAddr == "" {
		memcachedAddr = "localhost:11211"
	}

	return IntegrationTestConfig{
		FirmsMapKey:   mapKey,
		FirmsURL:      firmsURL,
		NWSURL:        nwsURL,
		UserAgent:     userAgent,
		CacheBackend:  os.Getenv("INTEGRATION_CACHE_BACKEND"),
		MemcachedAddr: memcachedAddr,
	}
}

// SetupIntegrationPipeline wires a Pipeline over the live upstreams for the default watch area.
// Returns the pipeline, the outcome tracker and a cleanup function.
func SetupIntegrationPipeline(t *testing.T, cfg IntegrationTestConfig) (*service.Pipeline, *traffic.Tracker, func()) {
	logger := zaptest.NewLogger(t)
	clock := clockwork.NewRealClock()

	firms, err := client.NewFirmsClient(client.FirmsConfig{
		BaseURL:   cfg.FirmsURL,
		MapKey:    cfg.FirmsMapKey,
		Source:    "VIIRS_SNPP_NRT",
		Country:   "USA",
		DayRange:  1,
		Timeout:   30 * time.Second,
		UserAgent: cfg.UserAgent,
	})
	if err != nil {
		t.Fatalf("NewFirmsClient() error = %v", err)
	}
	nws, err := client.NewNWSClient(cfg.NWSURL, 10*time.Second, cfg.UserAgent)
	if err != nil {
		t.Fatalf("NewNWSClient() error = %v", err)
	}

	var store cache.Store
	cleanup := func() {}
	if cfg.CacheBackend == "memcached" {
		mc := cache.NewMemcachedStore(cfg.MemcachedAddr, 500*time.Millisecond, 2)
		if err := mc.Ping(); err == nil {
			store = mc
			cleanup = func() { _ = mc.Close() }
			t.Logf("Using Memcached cache at %s", cfg.MemcachedAddr)
		} else {
			t.Logf("Memcached not available (%v), using in-memory cache", err)
			_ = mc.Close()
		}
	}
	if store == nil {
		store = cache.NewInMemoryStore(clock)
	}

	incident := config.DefaultIncident()
	tracker := traffic.NewTracker(clock, time.Hour)
	pipeline := service.NewPipeline(store, service.Sources{
		Detections: service.NewFireDetectionFetcher(firms, models.DefaultBoundingBox, clock, logger),
		Wind:       service.NewWeatherFetcher(nws, incident.WatchedLocation, clock, logger),
		AirQuality: service.NewAirQualityFetcher(clock),
	}, service.PipelineConfig{
		TTLs:     service.TTLs{Detections: 15 * time.Minute, Wind: 15 * time.Minute, AirQuality: 30 * time.Minute},
		Incident: incident,
		Clock:    clock,
		Logger:   logger,
		Recorder: tracker,
	})
	return pipeline, tracker, cleanup
}
