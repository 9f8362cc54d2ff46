package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/firewatch-service/internal/models"
	"github.com/kjstillabower/firewatch-service/internal/validation"
)

// Config holds service configuration loaded from .env, YAML and env.
type Config struct {
	ServerPort      string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	FirmsURL      string
	FirmsMapKey   string
	FirmsSource   string
	FirmsCountry  string
	FirmsDayRange int
	FirmsTimeout  time.Duration

	NWSURL       string
	NWSTimeout   time.Duration
	NWSUserAgent string

	BoundingBox models.BoundingBox
	Incident    models.Incident

	CacheBackend          string // "in_memory" or "memcached"
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int
	DetectionsTTL         time.Duration
	WindTTL               time.Duration
	AirQualityTTL         time.Duration
	DegradedTTL           time.Duration
	StaleTTL              time.Duration

	RefreshInterval    time.Duration
	RefreshTimeout     time.Duration
	PipelineConcurrent bool

	BreakerFailureThreshold int
	BreakerSuccessThreshold int
	BreakerTimeout          time.Duration

	RateLimitRPS   int
	RateLimitBurst int

	HealthWindow      time.Duration
	HealthDegradedPct int
}

type fileConfig struct {
	Server struct {
		Port           string `yaml:"port"`
		RequestTimeout string `yaml:"request_timeout"`
	} `yaml:"server"`

	Firms struct {
		URL      string `yaml:"url"`
		Source   string `yaml:"source"`
		Country  string `yaml:"country"`
		DayRange int    `yaml:"day_range"`
		Timeout  string `yaml:"timeout"`
	} `yaml:"firms"`

	NWS struct {
		URL       string `yaml:"url"`
		Timeout   string `yaml:"timeout"`
		UserAgent string `yaml:"user_agent"`
	} `yaml:"nws"`

	Watch struct {
		Location    *models.GeoPoint `yaml:"location"`
		BoundingBox *struct {
			MinLat float64 `yaml:"min_lat"`
			MaxLat float64 `yaml:"max_lat"`
			MinLon float64 `yaml:"min_lon"`
			MaxLon float64 `yaml:"max_lon"`
		} `yaml:"bounding_box"`
	} `yaml:"watch"`

	Incident struct {
		Name           string           `yaml:"name"`
		Center         *models.GeoPoint `yaml:"center"`
		AcresBurned    *int             `yaml:"acres_burned"`
		ContainmentPct *int             `yaml:"containment_pct"`
		Evacuations    []string         `yaml:"evacuations"`
		Resources      []models.Link    `yaml:"resources"`
	} `yaml:"incident"`

	Cache struct {
		Backend     string `yaml:"backend"`
		DegradedTTL string `yaml:"degraded_ttl"`
		StaleTTL    string `yaml:"stale_ttl"`
		TTL         struct {
			Detections string `yaml:"detections"`
			Wind       string `yaml:"wind"`
			AirQuality string `yaml:"air_quality"`
		} `yaml:"ttl"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Refresh struct {
		Interval string `yaml:"interval"`
		Timeout  string `yaml:"timeout"`
	} `yaml:"refresh"`

	Pipeline struct {
		Concurrent bool `yaml:"concurrent"`
	} `yaml:"pipeline"`

	Reliability struct {
		BreakerFailureThreshold int    `yaml:"breaker_failure_threshold"`
		BreakerSuccessThreshold int    `yaml:"breaker_success_threshold"`
		BreakerTimeout          string `yaml:"breaker_timeout"`
		RateLimitRPS            int    `yaml:"rate_limit_rps"`
		RateLimitBurst          int    `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`

	Health struct {
		Window      string `yaml:"window"`
		DegradedPct int    `yaml:"degraded_pct"`
	} `yaml:"health"`
}

type secretsFile struct {
	FirmsMapKey string `yaml:"firms_map_key"`
}

// DefaultIncident describes the Stoner Mesa fire near Dolores, CO.
func DefaultIncident() models.Incident {
	return models.Incident{
		Name:            "Stoner Mesa Fire",
		Center:          models.GeoPoint{Latitude: 37.65, Longitude: -108.3},
		WatchedLocation: models.GeoPoint{Latitude: 37.5444, Longitude: -108.4878},
		AcresBurned:     350,
		ContainmentPct:  0,
		Evacuations: []string{
			"Mavreeso Campground",
			"Taylor Mesa Road",
			"Stoner Mesa Road",
			"Forest Service Roads 686, 545",
			"West Fork Dolores River",
		},
		Resources: []models.Link{
			{Title: "The Journal Fire Updates", URL: "https://www.the-journal.com/articles/evacuations-ordered-as-stoner-mesa-fire-grows-northeast-of-dolores/"},
			{Title: "Durango Herald Coverage", URL: "https://www.durangoherald.com/articles/evacuations-ordered-as-stoner-mesa-fire-grows-northeast-of-dolores/"},
			{Title: "Colorado Wildfire Dashboard", URL: "https://www.colorado.gov/pacific/dfpc/fire-information"},
			{Title: "NOAA Smoke Forecast", URL: "https://www.weather.gov"},
			{Title: "InciWeb", URL: "https://inciweb.nwcg.gov/"},
		},
	}
}

// Load reads .env (if present), then config/{ENV_NAME}.yaml (default dev) and config/secrets.yaml
// relative to the working directory. Call from project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	if err := godotenv.Load(filepath.Join(cwd, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return LoadDir(filepath.Join(cwd, "config"))
}

// LoadDir reads {dir}/{ENV_NAME}.yaml and {dir}/secrets.yaml and applies env overrides.
// The FIRMS map key comes from FIRMS_MAP_KEY or secrets.yaml firms_map_key and may be empty;
// detections then degrade with invalid_api_key.
func LoadDir(dir string) (*Config, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	configPath := filepath.Join(dir, env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}
	cfg.ServerPort = firstNonEmpty(os.Getenv("PORT"), fc.Server.Port, "8080")
	cfg.RequestTimeout = parseDuration(fc.Server.RequestTimeout, 10*time.Second)
	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	cfg.FirmsMapKey = strings.TrimSpace(os.Getenv("FIRMS_MAP_KEY"))
	if cfg.FirmsMapKey == "" {
		key, err := readSecrets(filepath.Join(dir, "secrets.yaml"))
		if err != nil {
			return nil, err
		}
		cfg.FirmsMapKey = key
	}
	cfg.FirmsURL = firstNonEmpty(fc.Firms.URL, "https://firms.modaps.eosdis.nasa.gov")
	cfg.FirmsSource = firstNonEmpty(fc.Firms.Source, "VIIRS_SNPP_NRT")
	cfg.FirmsCountry = firstNonEmpty(fc.Firms.Country, "USA")
	cfg.FirmsDayRange = fc.Firms.DayRange
	if cfg.FirmsDayRange <= 0 {
		cfg.FirmsDayRange = 1
	}
	cfg.FirmsTimeout = parseDurationOrZero(fc.Firms.Timeout, 15*time.Second)

	cfg.NWSURL = firstNonEmpty(fc.NWS.URL, "https://api.weather.gov")
	cfg.NWSTimeout = parseDurationOrZero(fc.NWS.Timeout, 5*time.Second)
	cfg.NWSUserAgent = firstNonEmpty(os.Getenv("NWS_USER_AGENT"), fc.NWS.UserAgent)

	cfg.BoundingBox = models.DefaultBoundingBox
	if bb := fc.Watch.BoundingBox; bb != nil {
		cfg.BoundingBox = models.BoundingBox{MinLat: bb.MinLat, MaxLat: bb.MaxLat, MinLon: bb.MinLon, MaxLon: bb.MaxLon}
	}
	cfg.Incident = mergeIncident(DefaultIncident(), fc)

	cfg.CacheBackend = strings.ToLower(firstNonEmpty(os.Getenv("CACHE_BACKEND"), fc.Cache.Backend, "in_memory"))
	cfg.MemcachedAddrs = firstNonEmpty(os.Getenv("MEMCACHED_ADDRS"), fc.Cache.Memcached.Addrs, "localhost:11211")
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}
	cfg.DetectionsTTL = parseDuration(fc.Cache.TTL.Detections, 15*time.Minute)
	cfg.WindTTL = parseDuration(fc.Cache.TTL.Wind, 15*time.Minute)
	cfg.AirQualityTTL = parseDuration(fc.Cache.TTL.AirQuality, 30*time.Minute)
	cfg.DegradedTTL = parseDurationOrZero(fc.Cache.DegradedTTL, 2*time.Minute)
	cfg.StaleTTL = parseDurationOrZero(fc.Cache.StaleTTL, 0)

	cfg.RefreshInterval = parseDuration(firstNonEmpty(os.Getenv("REFRESH_INTERVAL"), fc.Refresh.Interval), 30*time.Minute)
	cfg.RefreshTimeout = parseDuration(fc.Refresh.Timeout, 60*time.Second)
	cfg.PipelineConcurrent = fc.Pipeline.Concurrent
	if v := os.Getenv("PIPELINE_CONCURRENT"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("PIPELINE_CONCURRENT: %w", err)
		}
		cfg.PipelineConcurrent = b
	}

	cfg.BreakerFailureThreshold = positiveOr(fc.Reliability.BreakerFailureThreshold, 5)
	cfg.BreakerSuccessThreshold = positiveOr(fc.Reliability.BreakerSuccessThreshold, 2)
	cfg.BreakerTimeout = parseDuration(fc.Reliability.BreakerTimeout, 5*time.Minute)
	cfg.RateLimitRPS = positiveOr(fc.Reliability.RateLimitRPS, 20)
	cfg.RateLimitBurst = positiveOr(fc.Reliability.RateLimitBurst, 40)

	cfg.HealthWindow = parseDuration(fc.Health.Window, 2*time.Hour)
	cfg.HealthDegradedPct = positiveOr(fc.Health.DegradedPct, 50)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readSecrets(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read secrets file: %w", err)
	}
	var sec secretsFile
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return "", fmt.Errorf("parse secrets file: %w", err)
	}
	return strings.TrimSpace(sec.FirmsMapKey), nil
}

// mergeIncident overlays the incident and watch sections of fc onto base.
func mergeIncident(base models.Incident, fc fileConfig) models.Incident {
	if fc.Incident.Name != "" {
		base.Name = fc.Incident.Name
	}
	if fc.Incident.Center != nil {
		base.Center = *fc.Incident.Center
	}
	if fc.Watch.Location != nil {
		base.WatchedLocation = *fc.Watch.Location
	}
	if fc.Incident.AcresBurned != nil {
		base.AcresBurned = *fc.Incident.AcresBurned
	}
	if fc.Incident.ContainmentPct != nil {
		base.ContainmentPct = *fc.Incident.ContainmentPct
	}
	if fc.Incident.Evacuations != nil {
		base.Evacuations = fc.Incident.Evacuations
	}
	if fc.Incident.Resources != nil {
		base.Resources = fc.Incident.Resources
	}
	return base
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func positiveOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// validate performs post-load validation of configuration values.
// Ensures upstream timeouts are positive, RequestTimeout exceeds them, the watched area is
// well-formed and CacheBackend is a valid value. Auto-adjusts RequestTimeout if needed.
func validate(cfg *Config) error {
	if cfg.FirmsTimeout <= 0 {
		return fmt.Errorf("firms.timeout must be positive")
	}
	if cfg.NWSTimeout <= 0 {
		return fmt.Errorf("nws.timeout must be positive")
	}
	// The wind lookup is two sequential calls; a sequential pipeline adds the detection fetch.
	upstream := max(cfg.FirmsTimeout, 2*cfg.NWSTimeout)
	if !cfg.PipelineConcurrent {
		upstream = cfg.FirmsTimeout + 2*cfg.NWSTimeout
	}
	if cfg.RequestTimeout <= upstream {
		cfg.RequestTimeout = upstream + time.Second
	}
	if err := validation.ValidateBoundingBox(cfg.BoundingBox); err != nil {
		return fmt.Errorf("watch.bounding_box: %w", err)
	}
	if err := validation.ValidateIncident(cfg.Incident); err != nil {
		return fmt.Errorf("incident: %w", err)
	}
	if cfg.DegradedTTL < 0 || cfg.StaleTTL < 0 {
		return fmt.Errorf("cache.degraded_ttl and cache.stale_ttl must not be negative")
	}
	if cfg.HealthDegradedPct > 100 {
		return fmt.Errorf("health.degraded_pct must be at most 100, got %d", cfg.HealthDegradedPct)
	}
	switch cfg.CacheBackend {
	case "in_memory", "memcached":
		// valid
	default:
		return fmt.Errorf("cache.backend must be in_memory or memcached, got %q", cfg.CacheBackend)
	}
	return nil
}
