package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestNewRouter_Routes(t *testing.T) {
	withReady(t)
	data := newFakeData()
	router := NewRouter(NewHandler(data, nil, nil), RouterConfig{RequestTimeout: time.Second})

	for _, path := range []string{"/dashboard", "/detections", "/wind", "/air-quality", "/health"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, w.Code)
		}
		if w.Header().Get("X-Correlation-ID") == "" {
			t.Errorf("GET %s missing X-Correlation-ID", path)
		}
	}
	if !data.deadline.Load() {
		t.Error("dashboard request context had no deadline")
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("GET /nope = %d, want 404", w.Code)
	}
}

func TestNewRouter_Metrics(t *testing.T) {
	router := NewRouter(NewHandler(newFakeData(), nil, nil), RouterConfig{})
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/wind", nil))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET /metrics = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "httpRequestsTotal") {
		t.Error("metrics output missing httpRequestsTotal")
	}
}

func TestNewRouter_HealthBypassesRateLimit(t *testing.T) {
	withReady(t)
	limiter := rate.NewLimiter(rate.Limit(0.001), 1)
	router := NewRouter(NewHandler(newFakeData(), nil, nil), RouterConfig{Limiter: limiter})

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Errorf("dashboard codes = %v, want [200 429]", codes)
	}

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		if w.Code != http.StatusOK {
			t.Errorf("health %d = %d, want 200", i, w.Code)
		}
	}
}
