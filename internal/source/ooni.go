package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/SepehrMohammady/IranBlackout/internal/logging"
)

// OONIClient reads the Open Observatory of Network Interference API. OONI is
// the anomaly-ratio source: per-ASN and per-day counts of anomalous or
// confirmed-blocked measurements.
type OONIClient struct {
	baseURL string
	http    *http.Client
	log     *logging.Logger
	timeout time.Duration
}

func NewOONIClient(baseURL string, timeout time.Duration, log *logging.Logger) *OONIClient {
	return &OONIClient{
		baseURL: baseURL,
		http:    newHTTPClient(timeout),
		log:     log.WithSource("ooni"),
		timeout: timeout,
	}
}

type ooniMeasurement struct {
	ProbeASN  flexInt `json:"probe_asn"`
	TestName  string  `json:"test_name"`
	Anomaly   bool    `json:"anomaly"`
	Confirmed bool    `json:"confirmed"`
	Failure   bool    `json:"failure"`
	StartTime string  `json:"measurement_start_time"`
}

type ooniListResponse struct {
	Results []ooniMeasurement `json:"results"`
}

// FetchMeasurements lists raw measurements for the country in the window.
func (c *OONIClient) FetchMeasurements(ctx context.Context, country string, window TimeWindow, limit int) ([]Measurement, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	q := url.Values{}
	q.Set("probe_cc", country)
	q.Set("since", window.From.UTC().Format("2006-01-02"))
	q.Set("until", window.Until.UTC().Format("2006-01-02"))
	q.Set("limit", strconv.Itoa(limit))

	var resp ooniListResponse
	if err := getJSON(ctx, c.http, c.log, c.baseURL+"/measurements?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}

	out := make([]Measurement, 0, len(resp.Results))
	for _, m := range resp.Results {
		ts, _ := time.Parse("2006-01-02T15:04:05", m.StartTime)
		out = append(out, Measurement{
			ASN:        int(m.ProbeASN),
			TestName:   m.TestName,
			Anomaly:    m.Anomaly,
			Confirmed:  m.Confirmed,
			Failure:    m.Failure,
			MeasuredAt: ts,
		})
	}
	return out, nil
}

type ooniAggRow struct {
	ProbeASN         flexInt `json:"probe_asn"`
	StartDay         string  `json:"measurement_start_day"`
	AnomalyCount     int     `json:"anomaly_count"`
	MeasurementCount int     `json:"measurement_count"`
}

type ooniAggResponse struct {
	Result []ooniAggRow `json:"result"`
}

// FetchASNAggregates returns anomaly counts bucketed by probe ASN.
func (c *OONIClient) FetchASNAggregates(ctx context.Context, country string, window TimeWindow) ([]ASNAggregate, error) {
	rows, err := c.fetchAggregation(ctx, country, window, "probe_asn")
	if err != nil {
		return nil, err
	}
	out := make([]ASNAggregate, 0, len(rows))
	for _, r := range rows {
		if r.ProbeASN == 0 {
			continue
		}
		out = append(out, ASNAggregate{
			ASN:              int(r.ProbeASN),
			AnomalyCount:     r.AnomalyCount,
			MeasurementCount: r.MeasurementCount,
		})
	}
	return out, nil
}

// FetchDailyAggregates returns anomaly counts bucketed by day, used for the
// connectivity timeline.
func (c *OONIClient) FetchDailyAggregates(ctx context.Context, country string, window TimeWindow) ([]DailyAggregate, error) {
	rows, err := c.fetchAggregation(ctx, country, window, "measurement_start_day")
	if err != nil {
		return nil, err
	}
	out := make([]DailyAggregate, 0, len(rows))
	for _, r := range rows {
		day, err := time.Parse("2006-01-02", r.StartDay)
		if err != nil {
			continue
		}
		out = append(out, DailyAggregate{
			Day:              day,
			AnomalyCount:     r.AnomalyCount,
			MeasurementCount: r.MeasurementCount,
		})
	}
	return out, nil
}

func (c *OONIClient) fetchAggregation(ctx context.Context, country string, window TimeWindow, axis string) ([]ooniAggRow, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	q := url.Values{}
	q.Set("probe_cc", country)
	q.Set("since", window.From.UTC().Format("2006-01-02"))
	q.Set("until", window.Until.UTC().Format("2006-01-02"))
	q.Set("axis_x", axis)

	var resp ooniAggResponse
	if err := getJSON(ctx, c.http, c.log, c.baseURL+"/aggregation?"+q.Encode(), nil, &resp); err != nil {
		return nil, fmt.Errorf("ooni aggregation by %s: %w", axis, err)
	}
	return resp.Result, nil
}
