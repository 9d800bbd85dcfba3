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

// IODAClient reads Georgia Tech's Internet Outage Detection and Analysis API.
// IODA contributes score-based outage events, the classified alert feed, and
// raw signal time series.
type IODAClient struct {
	baseURL string
	http    *http.Client
	log     *logging.Logger
	timeout time.Duration
}

func NewIODAClient(baseURL string, timeout time.Duration, log *logging.Logger) *IODAClient {
	return &IODAClient{
		baseURL: baseURL,
		http:    newHTTPClient(timeout),
		log:     log.WithSource("ioda"),
		timeout: timeout,
	}
}

type iodaEntity struct {
	Type string `json:"type"`
	Code string `json:"code"`
	Name string `json:"name"`
}

type iodaEvent struct {
	ID         string     `json:"id"`
	Entity     iodaEntity `json:"entity"`
	Start      int64      `json:"start"`
	End        int64      `json:"end"`
	Score      float64    `json:"score"`
	Datasource string     `json:"datasource"`
}

type iodaEventsResponse struct {
	Data []iodaEvent `json:"data"`
}

// FetchOutageEvents lists scored outage events for an entity in the window.
func (c *IODAClient) FetchOutageEvents(ctx context.Context, entityType, entityCode string, window TimeWindow, limit int) ([]OutageEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var resp iodaEventsResponse
	u := c.baseURL + "/outages/events?" + c.entityQuery(entityType, entityCode, window, limit)
	if err := getJSON(ctx, c.http, c.log, u, nil, &resp); err != nil {
		return nil, fmt.Errorf("ioda events: %w", err)
	}

	out := make([]OutageEvent, 0, len(resp.Data))
	for _, e := range resp.Data {
		id := e.ID
		if id == "" {
			id = fmt.Sprintf("%s-%d", e.Entity.Code, e.Start)
		}
		out = append(out, OutageEvent{
			ID:         id,
			EntityType: e.Entity.Type,
			EntityCode: e.Entity.Code,
			EntityName: e.Entity.Name,
			Start:      e.Start,
			End:        e.End,
			Score:      e.Score,
			Datasource: e.Datasource,
		})
	}
	return out, nil
}

type iodaAlert struct {
	ID        string     `json:"id"`
	Entity    iodaEntity `json:"entity"`
	Time      int64      `json:"time"`
	Score     float64    `json:"score"`
	Direction string     `json:"direction"`
}

type iodaAlertsResponse struct {
	Data []iodaAlert `json:"data"`
}

// FetchAlerts lists alert records, finer grained than outage events. A
// missing provider id is synthesized from entity and time so downstream
// deduplication still works.
func (c *IODAClient) FetchAlerts(ctx context.Context, entityType, entityCode string, window TimeWindow, limit int) ([]OutageAlert, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var resp iodaAlertsResponse
	u := c.baseURL + "/outages/alerts?" + c.entityQuery(entityType, entityCode, window, limit)
	if err := getJSON(ctx, c.http, c.log, u, nil, &resp); err != nil {
		return nil, fmt.Errorf("ioda alerts: %w", err)
	}

	out := make([]OutageAlert, 0, len(resp.Data))
	for _, a := range resp.Data {
		id := a.ID
		if id == "" {
			id = fmt.Sprintf("%s-%s-%d", a.Entity.Type, a.Entity.Code, a.Time)
		}
		out = append(out, OutageAlert{
			ID:         id,
			EntityType: a.Entity.Type,
			EntityCode: a.Entity.Code,
			EntityName: a.Entity.Name,
			Time:       a.Time,
			Score:      a.Score,
			TrendingUp: a.Direction == "up",
		})
	}
	return out, nil
}

type iodaSignalsResponse struct {
	Data map[string]struct {
		Values [][2]float64 `json:"values"`
	} `json:"data"`
}

// FetchSignal returns the raw signal time series for an entity from one
// datasource (bgp, ping-slash24 or merit-nt).
func (c *IODAClient) FetchSignal(ctx context.Context, entityType, entityCode string, window TimeWindow, datasource string, maxPoints int) ([]SignalPoint, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	q := url.Values{}
	q.Set("from", strconv.FormatInt(window.From.Unix(), 10))
	q.Set("until", strconv.FormatInt(window.Until.Unix(), 10))
	q.Set("datasource", datasource)
	q.Set("maxPoints", strconv.Itoa(maxPoints))
	u := fmt.Sprintf("%s/signals/raw/%s/%s?%s", c.baseURL, entityType, entityCode, q.Encode())

	var resp iodaSignalsResponse
	if err := getJSON(ctx, c.http, c.log, u, nil, &resp); err != nil {
		return nil, fmt.Errorf("ioda signals: %w", err)
	}

	series := resp.Data[datasource]
	out := make([]SignalPoint, 0, len(series.Values))
	for _, v := range series.Values {
		out = append(out, SignalPoint{Timestamp: int64(v[0]), Value: v[1]})
	}
	return out, nil
}

func (c *IODAClient) entityQuery(entityType, entityCode string, window TimeWindow, limit int) string {
	q := url.Values{}
	q.Set("entityType", entityType)
	q.Set("entityCode", entityCode)
	q.Set("from", strconv.FormatInt(window.From.Unix(), 10))
	q.Set("until", strconv.FormatInt(window.Until.Unix(), 10))
	q.Set("limit", strconv.Itoa(limit))
	return q.Encode()
}
