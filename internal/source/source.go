// Package source holds the clients for the upstream measurement providers:
// OONI (network-interference probes), IODA (outage events and signals),
// Cloudflare Radar (traffic anomalies) and RIPE Atlas (probe health).
//
// Every fetch returns (data, error). A nil error with an empty slice means
// the provider genuinely had no measurements; an error means the provider was
// unreachable or returned garbage. The aggregation engine relies on that
// distinction, so clients must not swallow transport failures into empty
// results.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/SepehrMohammady/IranBlackout/internal/logging"
)

// TimeWindow bounds a fetch to [From, Until].
type TimeWindow struct {
	From  time.Time
	Until time.Time
}

// LastDays returns a window covering the given number of days up to now.
func LastDays(now time.Time, days int) TimeWindow {
	return TimeWindow{From: now.AddDate(0, 0, -days), Until: now}
}

// Measurement is one OONI test result reduced to the fields we consume.
type Measurement struct {
	ASN        int
	TestName   string
	Anomaly    bool
	Confirmed  bool
	Failure    bool
	MeasuredAt time.Time
}

// ASNAggregate is an OONI anomaly count bucketed by probe ASN.
type ASNAggregate struct {
	ASN              int
	AnomalyCount     int
	MeasurementCount int
}

// DailyAggregate is an OONI anomaly count bucketed by day.
type DailyAggregate struct {
	Day              time.Time
	AnomalyCount     int
	MeasurementCount int
}

// OutageEvent is an IODA outage event scored 0-100.
type OutageEvent struct {
	ID         string
	EntityType string
	EntityCode string
	EntityName string
	Start      int64
	End        int64
	Score      float64
	Datasource string
}

// OutageAlert is an IODA alert, finer grained than an event. TrendingUp marks
// a signal recovering toward baseline.
type OutageAlert struct {
	ID         string
	EntityType string
	EntityCode string
	EntityName string
	Time       int64
	Score      float64
	TrendingUp bool
}

// SignalPoint is one sample of an IODA raw signal time series.
type SignalPoint struct {
	Timestamp int64
	Value     float64
}

// TrafficSample is one Cloudflare Radar traffic observation as a percentage
// delta versus baseline.
type TrafficSample struct {
	Timestamp   time.Time
	DeltaPct    float64
	CountryCode string
}

// ProbeHealth summarizes RIPE Atlas probe connectivity for a country.
type ProbeHealth struct {
	Connected    int
	Disconnected int
}

// Score converts probe health to a 0-100 figure, or -1 when no probes
// reported at all.
func (p ProbeHealth) Score() float64 {
	total := p.Connected + p.Disconnected
	if total == 0 {
		return -1
	}
	return float64(p.Connected) / float64(total) * 100
}

// newHTTPClient builds the shared retrying HTTP client. Retries are kept low:
// a slow provider must fail fast so it cannot stall a whole refresh cycle.
func newHTTPClient(timeout time.Duration) *http.Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = nil
	rc.HTTPClient.Timeout = timeout
	return rc.StandardClient()
}

type statusError struct {
	code int
	url  string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.code, e.url)
}

func getJSON(ctx context.Context, client *http.Client, log *logging.Logger, url string, headers map[string]string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", url, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &statusError{code: resp.StatusCode, url: url}
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		if log != nil {
			log.Warn("malformed provider response", "url", url, "error", err.Error())
		}
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

// flexInt decodes JSON values that providers emit inconsistently as numbers
// or strings (OONI reports probe_asn both as 44244 and "AS44244").
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		*f = flexInt(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		*f = 0
		return nil
	}
	if len(s) > 2 && (s[:2] == "AS" || s[:2] == "as") {
		s = s[2:]
	}
	var parsed int
	if _, err := fmt.Sscanf(s, "%d", &parsed); err == nil {
		*f = flexInt(parsed)
	}
	return nil
}
