package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/SepehrMohammady/IranBlackout/internal/aggregate"
	"github.com/SepehrMohammady/IranBlackout/internal/alertfeed"
	"github.com/SepehrMohammady/IranBlackout/internal/logging"
	"github.com/SepehrMohammady/IranBlackout/internal/source"
	"github.com/SepehrMohammady/IranBlackout/internal/status"
)

const maxRequestBodyBytes int64 = 1 << 20 // 1 MiB

// Aggregator is the read side of the aggregation engine.
type Aggregator interface {
	Dashboard(ctx context.Context) aggregate.Result
	Refresh(ctx context.Context) (aggregate.Result, error)
	FetchTimeline(ctx context.Context, days int) aggregate.Timeline
	ProbeHealth(ctx context.Context) (aggregate.ProbeReport, error)
}

// AlertFeed is the notification list surface.
type AlertFeed interface {
	List(ctx context.Context, window source.TimeWindow, limit int) ([]alertfeed.Alert, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context)
	ClearAll(ctx context.Context)
	UnreadCount(ctx context.Context) int
}

// TelemetrySink accepts crowdsourced connectivity reports.
type TelemetrySink interface {
	ReportConnectivity(ctx context.Context, s status.Status, ispID, city string, latencyMs int)
}

type Server struct {
	log       *logging.Logger
	agg       Aggregator
	alerts    AlertFeed
	telemetry TelemetrySink
	ready     func(context.Context) error
	r         chi.Router
	now       func() time.Time
}

func NewServer(log *logging.Logger, agg Aggregator, alerts AlertFeed, telemetry TelemetrySink, ready func(context.Context) error) *Server {
	s := &Server{log: log, agg: agg, alerts: alerts, telemetry: telemetry, ready: ready, r: chi.NewRouter(), now: time.Now}
	s.routes()
	return s
}

func (s *Server) Router() http.Handler { return s.r }

func (s *Server) routes() {
	s.r.Use(middleware.RequestID)
	s.r.Use(s.loggingMiddleware)
	s.r.Get("/healthz", s.handleHealth)
	s.r.Get("/readyz", s.handleReady)
	s.r.Route("/v1", func(r chi.Router) {
		r.Get("/dashboard", s.handleDashboard)
		r.Post("/dashboard/refresh", s.handleRefresh)
		r.Get("/regions", s.handleRegions)
		r.Get("/isps", s.handleISPs)
		r.Get("/timeline", s.handleTimeline)
		r.Get("/probes", s.handleProbes)

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", s.handleListAlerts)
			r.Get("/unread-count", s.handleUnreadCount)
			r.Post("/read-all", s.handleMarkAllRead)
			r.Post("/{alertID}/read", s.handleMarkRead)
			r.Delete("/", s.handleClearAlerts)
		})

		r.Post("/telemetry", s.handleTelemetry)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := middleware.GetReqID(r.Context())
		logger := s.log.WithRequestID(reqID)
		ctx := logging.ContextWithLogger(r.Context(), logger)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready == nil {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.ready(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, "not ready", map[string]string{"error": err.Error()})
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleDashboard never fails: the engine falls back to cached and then
// synthetic data so the client always has something to render.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.agg.Dashboard(r.Context()))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	res, err := s.agg.Refresh(r.Context())
	if err != nil {
		logging.FromContext(r.Context(), s.log).Warn("manual refresh degraded", "error", err.Error())
		writeJSON(w, http.StatusOK, s.agg.Dashboard(r.Context()))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRegions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.agg.Dashboard(r.Context()).Regions)
}

func (s *Server) handleISPs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.agg.Dashboard(r.Context()).ISPs)
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	days := 7
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid days parameter", nil)
			return
		}
		days = parsed
	}
	writeJSON(w, http.StatusOK, s.agg.FetchTimeline(r.Context(), days))
}

func (s *Server) handleProbes(w http.ResponseWriter, r *http.Request) {
	report, err := s.agg.ProbeHealth(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "probe data unavailable", nil)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	days := 1
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid days parameter", nil)
			return
		}
		days = parsed
	}
	limit := alertfeed.Capacity
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit parameter", nil)
			return
		}
		limit = parsed
	}

	alerts, err := s.alerts.List(r.Context(), source.LastDays(s.now(), days), limit)
	if err != nil {
		logging.FromContext(r.Context(), s.log).Error("alert list failed", "error", err.Error())
		writeError(w, http.StatusInternalServerError, "failed to list alerts", nil)
		return
	}
	if alerts == nil {
		alerts = []alertfeed.Alert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"unread": s.alerts.UnreadCount(r.Context())})
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "alertID"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing alert id", nil)
		return
	}
	if err := s.alerts.MarkRead(r.Context(), id); err != nil {
		if errors.Is(err, alertfeed.ErrNotFound) {
			writeError(w, http.StatusNotFound, "alert not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to mark alert read", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	s.alerts.MarkAllRead(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearAlerts(w http.ResponseWriter, r *http.Request) {
	s.alerts.ClearAll(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

type telemetryRequest struct {
	Status    string `json:"status"`
	ISPID     string `json:"isp_id"`
	City      string `json:"city"`
	LatencyMs int    `json:"latency_ms"`
}

// Validate rejects bad statuses. Unknown fields (including any attempt to
// post coordinates) are already rejected by the strict JSON decoder.
func (t telemetryRequest) Validate() map[string]string {
	switch status.Status(t.Status) {
	case status.Online, status.Limited, status.Offline, status.Unknown:
	default:
		return map[string]string{"status": "must be one of online, limited, offline, unknown"}
	}
	if t.LatencyMs < 0 {
		return map[string]string{"latency_ms": "cannot be negative"}
	}
	return nil
}

func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	var req telemetryRequest
	if err := decodeJSON(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes), &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if errs := req.Validate(); errs != nil {
		writeError(w, http.StatusBadRequest, "invalid payload", errs)
		return
	}
	s.telemetry.ReportConnectivity(r.Context(), status.Status(req.Status), req.ISPID, req.City, req.LatencyMs)
	w.WriteHeader(http.StatusAccepted)
}

func decodeJSON(body io.ReadCloser, dst any) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("body must contain a single JSON object")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, statusCode int, message string, details map[string]string) {
	writeJSON(w, statusCode, errorResponse{Error: message, Details: details})
}

type errorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
}
