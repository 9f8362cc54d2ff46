package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/firewatch-service/internal/degraded"
	"github.com/kjstillabower/firewatch-service/internal/lifecycle"
	"github.com/kjstillabower/firewatch-service/internal/models"
	"github.com/kjstillabower/firewatch-service/internal/observability"
)

// DataSource is the read side of the refresh pipeline. *service.Pipeline implements it.
type DataSource interface {
	Refresh(ctx context.Context) models.Snapshot
	Detections(ctx context.Context) models.Result[[]models.FireDetection]
	Wind(ctx context.Context) models.Result[models.WindReading]
	AirQuality(ctx context.Context) models.Result[models.AirQualityReading]
}

// HealthConfig holds the inputs for the health handler.
type HealthConfig struct {
	// Rates and Sources feed the per-source degraded evaluation.
	Rates       degraded.RateSource
	Sources     []string
	Window      time.Duration
	DegradedPct int
	// CachePing, when set, is called to check cache reachability. Used when backend is memcached.
	CachePing func() error
	// LastRefresh, when set, reports when the scheduler last ran.
	LastRefresh func() time.Time
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	data             DataSource
	healthConfig     *HealthConfig
	logger           *zap.Logger
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(data DataSource, healthConfig *HealthConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		data:         data,
		healthConfig: healthConfig,
		logger:       logger,
	}
}

// GetDashboard handles GET /dashboard.
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.data.Refresh(r.Context()))
}

// GetDetections handles GET /detections.
func (h *Handler) GetDetections(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.data.Detections(r.Context()))
}

// GetWind handles GET /wind.
func (h *Handler) GetWind(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.data.Wind(r.Context()))
}

// GetAirQuality handles GET /air-quality.
func (h *Handler) GetAirQuality(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.data.AirQuality(r.Context()))
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
	report     degraded.Report
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := make(map[string]string)
	for _, s := range result.report.Sources {
		if s.IsDegraded {
			checks[s.Source] = "degraded"
		} else {
			checks[s.Source] = "healthy"
		}
	}
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if h.healthConfig.CachePing() == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
		}
	}
	resp := map[string]interface{}{
		"status":    result.status,
		"service":   "firewatch-service",
		"version":   "dev",
		"checks":    checks,
		"sources":   result.report.Sources,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.healthConfig != nil && h.healthConfig.LastRefresh != nil {
		if last := h.healthConfig.LastRefresh(); !last.IsZero() {
			resp["lastRefresh"] = last.UTC().Format(time.RFC3339)
		}
	}
	writeJSON(w, result.statusCode, resp)
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > starting > degraded > healthy.
func (h *Handler) computeHealthStatus() healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{status: "shutting-down", statusCode: http.StatusServiceUnavailable, reason: "signal"}
	}
	if !lifecycle.IsReady() {
		return healthResult{status: "starting", statusCode: http.StatusServiceUnavailable, reason: "initial_refresh"}
	}
	if h.healthConfig == nil || h.healthConfig.Rates == nil {
		return healthResult{status: "healthy", statusCode: http.StatusOK}
	}
	report := degraded.Evaluate(h.healthConfig.Rates, h.healthConfig.Sources, h.healthConfig.Window, h.healthConfig.DegradedPct)
	if report.IsDegraded {
		return healthResult{status: "degraded", statusCode: http.StatusServiceUnavailable, reason: "degraded_ratio_breach", report: report}
	}
	return healthResult{status: "healthy", statusCode: http.StatusOK, report: report}
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationID(r.Context()),
		},
	})
}
