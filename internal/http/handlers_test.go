package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/firewatch-service/internal/lifecycle"
	"github.com/kjstillabower/firewatch-service/internal/models"
	"github.com/kjstillabower/firewatch-service/internal/traffic"
)

var fetchedAt = time.Date(2024, 8, 20, 15, 0, 0, 0, time.UTC)

type fakeData struct {
	snap     models.Snapshot
	refresh  atomic.Int32
	deadline atomic.Bool
}

func (f *fakeData) Refresh(ctx context.Context) models.Snapshot {
	f.refresh.Add(1)
	if _, ok := ctx.Deadline(); ok {
		f.deadline.Store(true)
	}
	return f.snap
}

func (f *fakeData) Detections(ctx context.Context) models.Result[[]models.FireDetection] {
	return f.snap.Detections
}

func (f *fakeData) Wind(ctx context.Context) models.Result[models.WindReading] {
	return f.snap.Wind
}

func (f *fakeData) AirQuality(ctx context.Context) models.Result[models.AirQualityReading] {
	return f.snap.AirQuality
}

func newFakeData() *fakeData {
	return &fakeData{snap: models.Snapshot{
		Incident: models.Incident{Name: "Stoner Mesa Fire", AcresBurned: 350},
		Detections: models.Ok([]models.FireDetection{
			{Latitude: 37.65, Longitude: -108.3},
			{Latitude: 37.70, Longitude: -108.25},
		}, fetchedAt),
		Wind:       models.Degraded(models.FallbackWind, "timeout", fetchedAt),
		AirQuality: models.Ok(models.DefaultAirQuality, fetchedAt),
		UpdatedAt:  fetchedAt,
	}}
}

func withReady(t *testing.T) {
	t.Helper()
	lifecycle.SetReady(true)
	lifecycle.SetShuttingDown(false)
	t.Cleanup(func() {
		lifecycle.SetReady(false)
		lifecycle.SetShuttingDown(false)
	})
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

// TestHandler_GetDashboard verifies that the dashboard returns the full snapshot as JSON.
func TestHandler_GetDashboard(t *testing.T) {
	data := newFakeData()
	h := NewHandler(data, nil, nil)

	w := httptest.NewRecorder()
	h.GetDashboard(w, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var got models.Snapshot
	decode(t, w, &got)
	if len(got.Detections.Value) != 2 || got.Incident.AcresBurned != 350 {
		t.Errorf("snapshot = %+v", got)
	}
	if got.Wind.Status != models.StatusDegraded || got.Wind.Reason != "timeout" || got.Wind.Value != models.FallbackWind {
		t.Errorf("wind = %+v, want degraded fallback", got.Wind)
	}
	if data.refresh.Load() != 1 {
		t.Errorf("Refresh calls = %d, want 1", data.refresh.Load())
	}
}

// TestHandler_SourceRoutes verifies the individual result endpoints.
func TestHandler_SourceRoutes(t *testing.T) {
	h := NewHandler(newFakeData(), nil, nil)

	w := httptest.NewRecorder()
	h.GetDetections(w, httptest.NewRequest(http.MethodGet, "/detections", nil))
	var det models.Result[[]models.FireDetection]
	decode(t, w, &det)
	if !det.IsOK() || len(det.Value) != 2 {
		t.Errorf("detections = %+v", det)
	}

	w = httptest.NewRecorder()
	h.GetWind(w, httptest.NewRequest(http.MethodGet, "/wind", nil))
	var wind models.Result[models.WindReading]
	decode(t, w, &wind)
	if wind.Value.Speed != "17 mph" || wind.Value.Direction != "ESE" {
		t.Errorf("wind = %+v", wind)
	}

	w = httptest.NewRecorder()
	h.GetAirQuality(w, httptest.NewRequest(http.MethodGet, "/air-quality", nil))
	var aq models.Result[models.AirQualityReading]
	decode(t, w, &aq)
	if aq.Value.Index != 102 {
		t.Errorf("air quality = %+v", aq)
	}
}

func getHealth(t *testing.T, h *Handler) (int, map[string]interface{}) {
	t.Helper()
	w := httptest.NewRecorder()
	h.GetHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	var body map[string]interface{}
	decode(t, w, &body)
	return w.Code, body
}

// TestHandler_GetHealth_Healthy verifies 200 with per-source checks when ratios are low.
func TestHandler_GetHealth_Healthy(t *testing.T) {
	withReady(t)
	tracker := traffic.NewTracker(clockwork.NewFakeClock(), 0)
	tracker.Record("detections", true)
	tracker.Record("wind", true)
	h := NewHandler(newFakeData(), &HealthConfig{
		Rates: tracker, Sources: []string{"detections", "wind", "air_quality"},
		Window: time.Hour, DegradedPct: 50,
		LastRefresh: func() time.Time { return fetchedAt },
	}, nil)

	code, body := getHealth(t, h)
	if code != http.StatusOK || body["status"] != "healthy" {
		t.Fatalf("health = %d %v, want 200 healthy", code, body["status"])
	}
	checks := body["checks"].(map[string]interface{})
	if checks["detections"] != "healthy" || checks["wind"] != "healthy" || checks["air_quality"] != "healthy" {
		t.Errorf("checks = %v", checks)
	}
	if body["lastRefresh"] != "2024-08-20T15:00:00Z" {
		t.Errorf("lastRefresh = %v", body["lastRefresh"])
	}
}

// TestHandler_GetHealth_Degraded verifies 503 degraded once a source's fallback share meets the threshold.
func TestHandler_GetHealth_Degraded(t *testing.T) {
	withReady(t)
	tracker := traffic.NewTracker(clockwork.NewFakeClock(), 0)
	tracker.Record("wind", false)
	tracker.Record("wind", false)
	tracker.Record("wind", true)
	tracker.Record("detections", true)
	core, logs := observer.New(zap.InfoLevel)
	h := NewHandler(newFakeData(), &HealthConfig{
		Rates: tracker, Sources: []string{"detections", "wind"}, Window: time.Hour, DegradedPct: 50,
	}, zap.New(core))

	code, body := getHealth(t, h)
	if code != http.StatusServiceUnavailable || body["status"] != "degraded" {
		t.Fatalf("health = %d %v, want 503 degraded", code, body["status"])
	}
	checks := body["checks"].(map[string]interface{})
	if checks["wind"] != "degraded" || checks["detections"] != "healthy" {
		t.Errorf("checks = %v", checks)
	}

	tracker.Reset()
	code, body = getHealth(t, h)
	if code != http.StatusOK || body["status"] != "healthy" {
		t.Errorf("after reset health = %d %v, want 200 healthy", code, body["status"])
	}
	if logs.FilterMessage("health status transition").Len() != 1 {
		t.Errorf("expected one transition log, got %d", logs.FilterMessage("health status transition").Len())
	}
}

// TestHandler_GetHealth_ShuttingDown verifies that the shutdown flag wins over every other check.
func TestHandler_GetHealth_ShuttingDown(t *testing.T) {
	withReady(t)
	lifecycle.SetShuttingDown(true)
	h := NewHandler(newFakeData(), nil, nil)

	code, body := getHealth(t, h)
	if code != http.StatusServiceUnavailable || body["status"] != "shutting-down" {
		t.Errorf("health = %d %v, want 503 shutting-down", code, body["status"])
	}
}

// TestHandler_GetHealth_Starting verifies 503 starting until the first refresh completes.
func TestHandler_GetHealth_Starting(t *testing.T) {
	lifecycle.SetReady(false)
	h := NewHandler(newFakeData(), nil, nil)

	code, body := getHealth(t, h)
	if code != http.StatusServiceUnavailable || body["status"] != "starting" {
		t.Errorf("health = %d %v, want 503 starting", code, body["status"])
	}
}

// TestHandler_GetHealth_CachePing verifies the cache check reflects backend reachability.
func TestHandler_GetHealth_CachePing(t *testing.T) {
	withReady(t)
	h := NewHandler(newFakeData(), &HealthConfig{CachePing: func() error { return errors.New("dial tcp: refused") }}, nil)

	_, body := getHealth(t, h)
	checks := body["checks"].(map[string]interface{})
	if checks["cache"] != "unhealthy" {
		t.Errorf("cache check = %v, want unhealthy", checks["cache"])
	}
}
