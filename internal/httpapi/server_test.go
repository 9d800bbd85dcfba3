package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/SepehrMohammady/IranBlackout/internal/aggregate"
	"github.com/SepehrMohammady/IranBlackout/internal/alertfeed"
	"github.com/SepehrMohammady/IranBlackout/internal/logging"
	"github.com/SepehrMohammady/IranBlackout/internal/source"
	"github.com/SepehrMohammady/IranBlackout/internal/status"
)

type fakeAggregator struct {
	result   aggregate.Result
	timeline aggregate.Timeline
	probeErr error
	days     int
}

func (f *fakeAggregator) Dashboard(context.Context) aggregate.Result { return f.result }

func (f *fakeAggregator) Refresh(context.Context) (aggregate.Result, error) { return f.result, nil }

func (f *fakeAggregator) FetchTimeline(_ context.Context, days int) aggregate.Timeline {
	f.days = days
	return f.timeline
}

func (f *fakeAggregator) ProbeHealth(context.Context) (aggregate.ProbeReport, error) {
	if f.probeErr != nil {
		return aggregate.ProbeReport{}, f.probeErr
	}
	return aggregate.ProbeReport{Connected: 100, Disconnected: 20, Total: 120, Score: 83.3}, nil
}

type fakeFeed struct {
	alerts  []alertfeed.Alert
	readIDs []string
}

func (f *fakeFeed) List(context.Context, source.TimeWindow, int) ([]alertfeed.Alert, error) {
	return f.alerts, nil
}

func (f *fakeFeed) MarkRead(_ context.Context, id string) error {
	for _, a := range f.alerts {
		if a.ID == id {
			f.readIDs = append(f.readIDs, id)
			return nil
		}
	}
	return alertfeed.ErrNotFound
}

func (f *fakeFeed) MarkAllRead(context.Context) {}
func (f *fakeFeed) ClearAll(context.Context)    { f.alerts = nil }
func (f *fakeFeed) UnreadCount(context.Context) int {
	n := 0
	for _, a := range f.alerts {
		if !a.Read {
			n++
		}
	}
	return n
}

type fakeSink struct {
	reports int
	last    status.Status
}

func (f *fakeSink) ReportConnectivity(_ context.Context, s status.Status, _, _ string, _ int) {
	f.reports++
	f.last = s
}

func newTestServer(agg *fakeAggregator, feed *fakeFeed, sink *fakeSink) *Server {
	return NewServer(logging.New("test"), agg, feed, sink, nil)
}

func TestDashboardEndpoint(t *testing.T) {
	agg := &fakeAggregator{result: aggregate.Result{Overall: status.Limited, GeneratedAt: time.Unix(1700000000, 0)}}
	srv := newTestServer(agg, &fakeFeed{}, &fakeSink{})

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/dashboard", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var got aggregate.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Overall != status.Limited {
		t.Errorf("overall = %v", got.Overall)
	}
}

func TestTimelineDaysValidation(t *testing.T) {
	agg := &fakeAggregator{timeline: aggregate.Timeline{Days: 14}}
	srv := newTestServer(agg, &fakeFeed{}, &fakeSink{})

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/timeline?days=14", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if agg.days != 14 {
		t.Errorf("days passed through = %d", agg.days)
	}

	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/timeline?days=zero", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad days parameter returned %d", rec.Code)
	}
}

func TestProbesUnavailable(t *testing.T) {
	agg := &fakeAggregator{probeErr: context.DeadlineExceeded}
	srv := newTestServer(agg, &fakeFeed{}, &fakeSink{})

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/probes", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestMarkReadNotFound(t *testing.T) {
	feed := &fakeFeed{alerts: []alertfeed.Alert{{ID: "a1"}}}
	srv := newTestServer(&fakeAggregator{}, feed, &fakeSink{})

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/alerts/a1/read", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("mark read returned %d", rec.Code)
	}
	if len(feed.readIDs) != 1 || feed.readIDs[0] != "a1" {
		t.Fatalf("read ids: %v", feed.readIDs)
	}

	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/alerts/missing/read", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown alert returned %d", rec.Code)
	}
}

func TestUnreadCountEndpoint(t *testing.T) {
	feed := &fakeFeed{alerts: []alertfeed.Alert{{ID: "a"}, {ID: "b", Read: true}}}
	srv := newTestServer(&fakeAggregator{}, feed, &fakeSink{})

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/alerts/unread-count", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var got map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["unread"] != 1 {
		t.Errorf("unread = %d", got["unread"])
	}
}

func TestTelemetryAccepted(t *testing.T) {
	sink := &fakeSink{}
	srv := newTestServer(&fakeAggregator{}, &fakeFeed{}, sink)

	body := `{"status":"offline","isp_id":"mci","city":"Tehran","latency_ms":450}`
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/telemetry", strings.NewReader(body)))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if sink.reports != 1 || sink.last != status.Offline {
		t.Errorf("sink: %+v", sink)
	}
}

func TestTelemetryRejectsBadPayloads(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"bad status", `{"status":"great"}`},
		{"negative latency", `{"status":"online","latency_ms":-1}`},
		{"unknown field", `{"status":"online","latitude":35.7}`},
		{"trailing garbage", `{"status":"online"}{"status":"online"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sink := &fakeSink{}
			srv := newTestServer(&fakeAggregator{}, &fakeFeed{}, sink)

			rec := httptest.NewRecorder()
			srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/telemetry", strings.NewReader(tc.body)))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status %d, want 400", rec.Code)
			}
			if sink.reports != 0 {
				t.Error("rejected payload must not reach the sink")
			}
		})
	}
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(&fakeAggregator{}, &fakeFeed{}, &fakeSink{})

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s returned %d", path, rec.Code)
		}
	}
}
