package telemetry

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/SepehrMohammady/IranBlackout/internal/cache"
	"github.com/SepehrMohammady/IranBlackout/internal/logging"
	"github.com/SepehrMohammady/IranBlackout/internal/status"
)

type fakeGate struct{ enabled bool }

func (f fakeGate) TelemetryEnabled(context.Context) bool { return f.enabled }

func TestDisabledGateIsHard(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	store := cache.NewMemoryStore()
	r := New(fakeGate{enabled: false}, store, srv.URL, time.Second, logging.New("test"))

	r.ReportConnectivity(context.Background(), status.Offline, "mci", "Tehran", 300)

	if calls.Load() != 0 {
		t.Error("disabled telemetry must not hit the network")
	}
	if got := r.LocalReports(context.Background()); len(got) != 0 {
		t.Errorf("disabled telemetry must not store reports, got %d", len(got))
	}
}

func TestReportStoredAndSent(t *testing.T) {
	var received atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received.Store(body)
	}))
	defer srv.Close()

	store := cache.NewMemoryStore()
	r := New(fakeGate{enabled: true}, store, srv.URL, time.Second, logging.New("test"))

	r.ReportConnectivity(context.Background(), status.Limited, "irancell", "Isfahan", 800)

	reports := r.LocalReports(context.Background())
	if len(reports) != 1 {
		t.Fatalf("got %d local reports", len(reports))
	}
	if reports[0].Status != status.Limited || reports[0].ISPID != "irancell" {
		t.Errorf("stored report: %+v", reports[0])
	}

	raw, _ := received.Load().([]byte)
	if raw == nil {
		t.Fatal("endpoint never received the report")
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("payload not json: %v", err)
	}
	if payload["client_id"] == "" {
		t.Error("payload missing client id")
	}
	if _, ok := payload["latitude"]; ok {
		t.Error("payload must never carry coordinates")
	}
}

func TestSendFailureIsSwallowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	store := cache.NewMemoryStore()
	r := New(fakeGate{enabled: true}, store, srv.URL, time.Second, logging.New("test"))

	r.ReportConnectivity(context.Background(), status.Online, "", "", 0)

	if got := r.LocalReports(context.Background()); len(got) != 1 {
		t.Fatalf("local record must survive send failure, got %d", len(got))
	}
}

func TestLocalBufferBounded(t *testing.T) {
	store := cache.NewMemoryStore()
	r := New(fakeGate{enabled: true}, store, "", time.Second, logging.New("test"))
	ctx := context.Background()

	base := time.Unix(1700000000, 0)
	for i := 0; i < maxLocalReports+10; i++ {
		i := i
		r.now = func() time.Time { return base.Add(time.Duration(i) * time.Second) }
		r.ReportConnectivity(ctx, status.Online, "", "", 0)
	}

	reports := r.LocalReports(ctx)
	if len(reports) != maxLocalReports {
		t.Fatalf("got %d reports, want %d", len(reports), maxLocalReports)
	}
	if !reports[0].Timestamp.After(base.UTC().Add(5 * time.Second)) {
		t.Error("oldest reports should have been dropped first")
	}

	r.ClearLocal(ctx)
	if got := r.LocalReports(ctx); len(got) != 0 {
		t.Errorf("clear left %d reports", len(got))
	}
}

func TestClientIDStable(t *testing.T) {
	store := cache.NewMemoryStore()
	r := New(fakeGate{enabled: true}, store, "", time.Second, logging.New("test"))
	ctx := context.Background()

	first := r.clientID(ctx)
	second := r.clientID(ctx)
	if first == "" || first != second {
		t.Fatalf("client id not stable: %q vs %q", first, second)
	}

	other := New(fakeGate{enabled: true}, store, "", time.Second, logging.New("test"))
	if got := other.clientID(ctx); got != first {
		t.Errorf("client id not persisted across reporters: %q vs %q", got, first)
	}
}
