package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/firewatch-service/internal/observability"
)

// RouterConfig configures NewRouter.
type RouterConfig struct {
	Logger         *zap.Logger
	RequestTimeout time.Duration
	// Limiter guards the data routes; nil disables rate limiting.
	Limiter *rate.Limiter
}

// NewRouter wires the handler's routes and middleware.
// /health and /metrics bypass the rate limiter and request timeout.
func NewRouter(h *Handler, cfg RouterConfig) *mux.Router {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	data := router.NewRoute().Subrouter()
	data.Use(RateLimitMiddleware(cfg.Limiter))
	if cfg.RequestTimeout > 0 {
		data.Use(TimeoutMiddleware(cfg.RequestTimeout))
	}
	data.HandleFunc("/dashboard", h.GetDashboard).Methods(http.MethodGet)
	data.HandleFunc("/detections", h.GetDetections).Methods(http.MethodGet)
	data.HandleFunc("/wind", h.GetWind).Methods(http.MethodGet)
	data.HandleFunc("/air-quality", h.GetAirQuality).Methods(http.MethodGet)
	return router
}
