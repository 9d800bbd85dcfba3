package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	HTTPAddr    string
	MetricsAddr string

	// CountryCode selects the monitored country for every upstream source.
	CountryCode string

	RedisURL string

	OONIBaseURL  string
	IODABaseURL  string
	RadarBaseURL string
	AtlasBaseURL string

	RadarAPIToken string

	SourceTimeout   time.Duration
	RefreshInterval time.Duration
	CacheTTL        time.Duration

	TelemetryEndpoint string
}

func Load() Config {
	cfg := Config{
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		MetricsAddr:       getenv("METRICS_ADDR", ":9092"),
		CountryCode:       getenv("COUNTRY_CODE", "IR"),
		RedisURL:          getenv("REDIS_URL", ""),
		OONIBaseURL:       getenv("OONI_BASE_URL", "https://api.ooni.io/api/v1"),
		IODABaseURL:       getenv("IODA_BASE_URL", "https://api.ioda.inetintel.cc.gatech.edu/v2"),
		RadarBaseURL:      getenv("RADAR_BASE_URL", "https://api.cloudflare.com/client/v4/radar"),
		AtlasBaseURL:      getenv("ATLAS_BASE_URL", "https://atlas.ripe.net/api/v2"),
		RadarAPIToken:     getenv("CF_API_TOKEN", ""),
		SourceTimeout:     getenvDuration("SOURCE_TIMEOUT", 10*time.Second),
		RefreshInterval:   getenvDuration("REFRESH_INTERVAL", 5*time.Minute),
		CacheTTL:          getenvDuration("CACHE_TTL", 5*time.Minute),
		TelemetryEndpoint: getenv("TELEMETRY_ENDPOINT", ""),
	}
	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return def
}
