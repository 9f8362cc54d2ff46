package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const viirsCSV = `latitude,longitude,bright_ti4,scan,track,acq_date,acq_time,satellite,instrument,confidence,version,bright_ti5,frp,daynight
37.6512,-108.3021,335.2,0.39,0.36,2024-08-20,915,N,VIIRS,n,2.0NRT,290.1,4.8,D
37.7001,-108.2500,341.0,0.40,0.37,2024-08-20,0915,N,VIIRS,h,2.0NRT,291.4,9.1,D
,-108.2,300.0,0.4,0.4,2024-08-20,0915,N,VIIRS,l,2.0NRT,280.0,1.0,D
abc,-108.2,300.0,0.4,0.4,2024-08-20,0915,N,VIIRS,l,2.0NRT,280.0,1.0,D
34.1000,-118.2000,320.0,0.4,0.4,2024-08-20,2130,N,VIIRS,n,2.0NRT,285.0,3.3,N
`

func TestParseDetectionsCSV_SkipsMalformedRows(t *testing.T) {
	got, err := ParseDetectionsCSV(strings.NewReader(viirsCSV))
	if err != nil {
		t.Fatalf("ParseDetectionsCSV() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3 (rows with bad coordinates dropped)", len(got))
	}
	first := got[0]
	if first.Latitude != 37.6512 || first.Longitude != -108.3021 {
		t.Errorf("first = %+v, want 37.6512,-108.3021", first)
	}
	if first.Confidence != "n" || first.Brightness != 335.2 || first.FRP != 4.8 {
		t.Errorf("first optional fields = %+v", first)
	}
	want := time.Date(2024, 8, 20, 9, 15, 0, 0, time.UTC)
	if first.DetectedAt == nil || !first.DetectedAt.Equal(want) {
		t.Errorf("DetectedAt = %v, want %v", first.DetectedAt, want)
	}
}

func TestParseDetectionsCSV_MinimalColumns(t *testing.T) {
	got, err := ParseDetectionsCSV(strings.NewReader("LATITUDE , Longitude\n37.5,-108.5\n"))
	if err != nil {
		t.Fatalf("ParseDetectionsCSV() error = %v", err)
	}
	if len(got) != 1 || got[0].DetectedAt != nil || got[0].Confidence != "" {
		t.Errorf("got %+v, want one bare detection", got)
	}
}

func TestParseDetectionsCSV_SchemaErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"invalid key text", "Invalid MAP_KEY.\n"},
		{"no longitude", "latitude,frp\n37.5,1.0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDetectionsCSV(strings.NewReader(tt.in))
			if !errors.Is(err, ErrSchema) {
				t.Errorf("ParseDetectionsCSV() error = %v, want ErrSchema", err)
			}
		})
	}
}

func TestParseAcquired(t *testing.T) {
	if got := parseAcquired("", "0915"); got != nil {
		t.Errorf("parseAcquired(empty date) = %v, want nil", got)
	}
	if got := parseAcquired("2024-08-20", "5"); got == nil || got.Minute() != 5 || got.Hour() != 0 {
		t.Errorf("parseAcquired(short time) = %v, want 00:05", got)
	}
	if got := parseAcquired("20/08/2024", "0915"); got != nil {
		t.Errorf("parseAcquired(bad date) = %v, want nil", got)
	}
}

func TestFirmsClient_FetchDetections_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/country/csv/test-key/VIIRS_SNPP_NRT/USA/1" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("User-Agent") == "" {
			t.Error("expected User-Agent header")
		}
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte(viirsCSV))
	}))
	defer server.Close()

	c, err := NewFirmsClient(FirmsConfig{
		BaseURL: server.URL, MapKey: "test-key", Source: "VIIRS_SNPP_NRT", Country: "USA", DayRange: 1, Timeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewFirmsClient() error = %v", err)
	}
	got, err := c.FetchDetections(context.Background())
	if err != nil {
		t.Fatalf("FetchDetections() error = %v", err)
	}
	if len(got) != 3 {
		t.Errorf("len = %d, want 3", len(got))
	}
}

func TestFirmsClient_FetchDetections_OversizedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(viirsCSV))
	}))
	defer server.Close()

	c, err := NewFirmsClient(FirmsConfig{
		BaseURL: server.URL, MapKey: "test-key", Source: "VIIRS_SNPP_NRT", Country: "USA", Timeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewFirmsClient() error = %v", err)
	}

	c.maxBody = int64(len(viirsCSV))
	if _, err := c.FetchDetections(context.Background()); err != nil {
		t.Fatalf("body at the cap: FetchDetections() error = %v", err)
	}

	// One byte over the cap is rejected even though the cut lands on the trailing newline.
	c.maxBody = int64(len(viirsCSV)) - 1
	got, err := c.FetchDetections(context.Background())
	if !errors.Is(err, ErrSchema) {
		t.Fatalf("body over the cap: error = %v, want ErrSchema", err)
	}
	if got != nil {
		t.Errorf("got %d detections from a truncated body, want none", len(got))
	}
}

func TestFirmsClient_FetchDetections_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"forbidden", http.StatusForbidden, ErrInvalidAPIKey},
		{"rate limited", http.StatusTooManyRequests, ErrRateLimited},
		{"server error", http.StatusBadGateway, ErrUpstreamFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			c, _ := NewFirmsClient(FirmsConfig{BaseURL: server.URL, MapKey: "k", Source: "S", Country: "USA", Timeout: time.Second})
			_, err := c.FetchDetections(context.Background())
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("FetchDetections() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestFirmsClient_MissingMapKey_NoNetwork(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { calls++ }))
	defer server.Close()

	c, err := NewFirmsClient(FirmsConfig{BaseURL: server.URL, Source: "S", Country: "USA", Timeout: time.Second})
	if err != nil {
		t.Fatalf("NewFirmsClient() error = %v", err)
	}
	_, err = c.FetchDetections(context.Background())
	if !errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("error = %v, want ErrInvalidAPIKey", err)
	}
	if calls != 0 {
		t.Errorf("server called %d times, want 0", calls)
	}
}

func TestNewFirmsClient_Validation(t *testing.T) {
	if _, err := NewFirmsClient(FirmsConfig{Source: "S", Country: "USA"}); err == nil {
		t.Error("expected error for empty base URL")
	}
	if _, err := NewFirmsClient(FirmsConfig{BaseURL: "https://firms.example", Country: "USA"}); err == nil {
		t.Error("expected error for empty source")
	}
}
