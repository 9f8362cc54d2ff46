//go:build integration
// +build integration

package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/kjstillabower/firewatch-service/internal/models"
	"github.com/kjstillabower/firewatch-service/internal/service"
	"github.com/kjstillabower/firewatch-service/internal/testhelpers"
)

// TestIntegration_LiveRefresh runs one refresh against the live FIRMS and NWS APIs.
// Detections may legitimately be empty; the checks cover shape and caching.
func TestIntegration_LiveRefresh(t *testing.T) {
	cfg := testhelpers.GetIntegrationConfig(t)
	pipeline, tracker, cleanup := testhelpers.SetupIntegrationPipeline(t, cfg)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	snap := pipeline.Refresh(ctx)
	if snap.Detections.Status != models.StatusOK {
		t.Errorf("detections degraded: %s", snap.Detections.Reason)
	}
	if snap.Wind.Status != models.StatusOK {
		t.Logf("wind degraded (%s); NWS may be unavailable", snap.Wind.Reason)
	}
	for _, d := range snap.Detections.Value {
		if !models.DefaultBoundingBox.Contains(d.Latitude, d.Longitude) {
			t.Errorf("detection %+v outside watch area", d)
		}
	}

	again := pipeline.Refresh(ctx)
	if !again.UpdatedAt.Equal(snap.UpdatedAt) {
		t.Errorf("second refresh UpdatedAt = %v, want cached %v", again.UpdatedAt, snap.UpdatedAt)
	}
	if _, total := tracker.DegradedRate(service.SourceDetections, time.Hour); total != 1 {
		t.Errorf("live detection fetches = %d, want 1", total)
	}
}
