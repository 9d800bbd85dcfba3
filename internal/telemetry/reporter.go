// Package telemetry emits anonymous crowdsourced connectivity reports.
//
// Privacy invariants, enforced here rather than in the client UI: reporting
// is gated on an explicit user setting before any work happens, the only
// identifier is a locally generated random id, and location is a coarse
// city-level label. The report type has no field for coordinates and must
// never grow one.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/SepehrMohammady/IranBlackout/internal/cache"
	"github.com/SepehrMohammady/IranBlackout/internal/logging"
	"github.com/SepehrMohammady/IranBlackout/internal/status"
)

const (
	keyClientID = "telemetry:client_id"
	keyReports  = "telemetry:reports"

	// maxLocalReports bounds the local ring buffer; oldest entries drop
	// first.
	maxLocalReports = 100
)

// Report is one anonymous connectivity observation.
type Report struct {
	Timestamp time.Time     `json:"timestamp"`
	Status    status.Status `json:"status"`
	ISPID     string        `json:"isp_id,omitempty"`
	City      string        `json:"city,omitempty"`
	LatencyMs int           `json:"latency_ms,omitempty"`
}

// Gate answers whether the user has telemetry enabled.
type Gate interface {
	TelemetryEnabled(ctx context.Context) bool
}

// Reporter stores reports locally and forwards them best-effort to the
// crowdsourcing endpoint. The local record is the durable copy; remote
// delivery is fire-and-forget.
type Reporter struct {
	gate     Gate
	store    cache.Store
	endpoint string
	http     *http.Client
	log      *logging.Logger
	now      func() time.Time
}

func New(gate Gate, store cache.Store, endpoint string, timeout time.Duration, log *logging.Logger) *Reporter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Reporter{
		gate:     gate,
		store:    store,
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
		log:      log,
		now:      time.Now,
	}
}

// ReportConnectivity records one observation. A disabled telemetry setting is
// a hard gate: nothing is stored and no network call is attempted.
func (r *Reporter) ReportConnectivity(ctx context.Context, s status.Status, ispID, city string, latencyMs int) {
	if !r.gate.TelemetryEnabled(ctx) {
		return
	}

	report := Report{
		Timestamp: r.now().UTC(),
		Status:    s,
		ISPID:     ispID,
		City:      city,
		LatencyMs: latencyMs,
	}

	r.append(ctx, report)

	if r.endpoint == "" {
		return
	}
	if err := r.send(ctx, report); err != nil {
		r.log.Warn("telemetry send failed", "error", err.Error())
	}
}

// LocalReports returns the locally retained reports, oldest first.
func (r *Reporter) LocalReports(ctx context.Context) []Report {
	return r.load(ctx)
}

// ClearLocal drops every locally retained report.
func (r *Reporter) ClearLocal(ctx context.Context) {
	if err := r.store.Delete(ctx, keyReports); err != nil {
		r.log.Warn("telemetry clear failed", "error", err.Error())
	}
}

func (r *Reporter) append(ctx context.Context, report Report) {
	reports := r.load(ctx)
	reports = append(reports, report)
	if len(reports) > maxLocalReports {
		reports = reports[len(reports)-maxLocalReports:]
	}
	raw, err := json.Marshal(reports)
	if err != nil {
		r.log.Warn("telemetry marshal failed", "error", err.Error())
		return
	}
	if err := r.store.Set(ctx, keyReports, raw); err != nil {
		r.log.Warn("telemetry store failed", "error", err.Error())
	}
}

func (r *Reporter) load(ctx context.Context) []Report {
	raw, ok, err := r.store.Get(ctx, keyReports)
	if err != nil || !ok {
		return nil
	}
	var reports []Report
	if err := json.Unmarshal(raw, &reports); err != nil {
		return nil
	}
	return reports
}

func (r *Reporter) send(ctx context.Context, report Report) error {
	payload := struct {
		ClientID string `json:"client_id"`
		Report
	}{ClientID: r.clientID(ctx), Report: report}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &sendError{code: resp.StatusCode}
	}
	return nil
}

// clientID returns the stable anonymous identifier, generating and persisting
// one on first use.
func (r *Reporter) clientID(ctx context.Context) string {
	raw, ok, err := r.store.Get(ctx, keyClientID)
	if err == nil && ok && len(raw) > 0 {
		return string(raw)
	}
	id := uuid.NewString()
	if err := r.store.Set(ctx, keyClientID, []byte(id)); err != nil {
		r.log.Warn("client id persist failed", "error", err.Error())
	}
	return id
}

type sendError struct {
	code int
}

func (e *sendError) Error() string {
	return "telemetry endpoint returned status " + strconv.Itoa(e.code)
}
