// Package httpapi exposes the read side of the monitoring core over HTTP:
// the status-change feed, daily uptime rows and a few admin operations.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimecore/internal/config"
	"github.com/hamed0406/uptimecore/internal/domain"
	"github.com/hamed0406/uptimecore/internal/events"
	"github.com/hamed0406/uptimecore/internal/httpapi/middleware"
	"github.com/hamed0406/uptimecore/internal/metrics"
	"github.com/hamed0406/uptimecore/internal/repo"
	"github.com/hamed0406/uptimecore/internal/stats"
)

// Store is the slice of repo.Store the API reads and writes.
type Store interface {
	ListMonitors(ctx context.Context) ([]domain.Monitor, error)
	GetMonitor(ctx context.Context, id domain.MonitorID) (*domain.Monitor, error)
	UpsertMonitor(ctx context.Context, m *domain.Monitor) error
	GetDaily(ctx context.Context, id domain.MonitorID, date string) (*domain.UptimeDaily, error)
	ListIncidents(ctx context.Context, id domain.MonitorID) ([]domain.Incident, error)
}

// Aggregator runs daily rollups on demand.
type Aggregator interface {
	RunDaily(ctx context.Context, date string, ids []domain.MonitorID) (stats.Report, error)
}

type Options struct {
	AllowedOrigins []string
	Keys           middleware.Keys
	PublicRPM      int
	PublicBurst    int
	AdminRPM       int
	AdminBurst     int
	// MinIntervalMinutes is the floor applied to monitors created over the API.
	MinIntervalMinutes int
}

type Server struct {
	Logger  *zap.Logger
	Store   Store
	Hub     *events.Hub
	Aggr    Aggregator
	Metrics *metrics.Metrics
	Gather  prometheus.Gatherer
	opt     Options
	now     func() time.Time
}

func NewServer(l *zap.Logger, st Store, hub *events.Hub, aggr Aggregator, m *metrics.Metrics, g prometheus.Gatherer, opt Options) *Server {
	if m == nil {
		m = metrics.Nop()
	}
	if g == nil {
		g = prometheus.NewRegistry()
	}
	return &Server{Logger: l, Store: st, Hub: hub, Aggr: aggr, Metrics: m, Gather: g, opt: opt, now: time.Now}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(s.instrument)
	if len(s.opt.AllowedOrigins) == 0 {
		r.Use(cors.AllowAll().Handler)
	} else {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.opt.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type", "X-API-Key"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.Gather, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAny(s.opt.Keys))
			r.Use(middleware.RateLimit(s.opt.PublicRPM, s.opt.PublicBurst))

			r.Get("/status-changes", s.handleStatusChanges)
			r.Get("/status-changes/stream", s.Hub.ServeHTTP)
			r.Get("/monitors", s.handleListMonitors)
			r.Get("/monitors/{id}/uptime/{date}", s.handleDailyUptime)
			r.Get("/monitors/{id}/incidents", s.handleIncidents)
		})
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin(s.opt.Keys))
			r.Use(middleware.RateLimit(s.opt.AdminRPM, s.opt.AdminBurst))

			r.Post("/monitors", s.handleUpsertMonitor)
			r.Post("/aggregations/daily", s.handleRunDaily)
		})
	})
	return r
}

// instrument counts requests by route pattern so ids in paths do not blow up
// label cardinality.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.Metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func monitorID(r *http.Request) (domain.MonitorID, bool) {
	n, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return domain.MonitorID(n), true
}

func (s *Server) handleStatusChanges(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, 500)
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": s.Hub.Recent(limit)})
}

// handleListMonitors returns every monitor to admin callers and only public
// monitors to everyone else.
func (s *Server) handleListMonitors(w http.ResponseWriter, r *http.Request) {
	ms, err := s.Store.ListMonitors(r.Context())
	if err != nil {
		s.Logger.Error("list_monitors_failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list error")
		return
	}
	if !middleware.IsAdmin(r.Context()) {
		ms = slices.DeleteFunc(ms, func(m domain.Monitor) bool { return !m.Public() })
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": ms})
}

// visibleMonitor resolves the {id} path parameter and writes the error
// response itself when the caller may not see that monitor. Private monitors
// look unknown to non-admin callers.
func (s *Server) visibleMonitor(w http.ResponseWriter, r *http.Request) (domain.MonitorID, bool) {
	id, ok := monitorID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid monitor id")
		return 0, false
	}
	m, err := s.Store.GetMonitor(r.Context(), id)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		writeError(w, http.StatusNotFound, "unknown monitor")
		return 0, false
	case err != nil:
		s.Logger.Error("get_monitor_failed", zap.Int64("monitor_id", int64(id)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "read error")
		return 0, false
	case !m.Public() && !middleware.IsAdmin(r.Context()):
		writeError(w, http.StatusNotFound, "unknown monitor")
		return 0, false
	}
	return id, true
}

func (s *Server) handleDailyUptime(w http.ResponseWriter, r *http.Request) {
	if _, ok := monitorID(r); !ok {
		writeError(w, http.StatusBadRequest, "invalid monitor id")
		return
	}
	date := chi.URLParam(r, "date")
	if _, err := stats.ParseDate(date); err != nil {
		writeError(w, http.StatusBadRequest, "invalid date")
		return
	}
	id, ok := s.visibleMonitor(w, r)
	if !ok {
		return
	}
	d, err := s.Store.GetDaily(r.Context(), id, date)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		writeError(w, http.StatusNotFound, "no uptime for that day")
		return
	case err != nil:
		s.Logger.Error("get_daily_failed", zap.Int64("monitor_id", int64(id)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "read error")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleIncidents(w http.ResponseWriter, r *http.Request) {
	id, ok := s.visibleMonitor(w, r)
	if !ok {
		return
	}
	incs, err := s.Store.ListIncidents(r.Context(), id)
	if err != nil {
		s.Logger.Error("list_incidents_failed", zap.Int64("monitor_id", int64(id)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "read error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": incs})
}

type monitorPayload struct {
	Name            string `json:"name"`
	URL             string `json:"url"`
	IntervalMinutes int    `json:"interval_minutes"`
	Public          bool   `json:"public"`
	Certificate     bool   `json:"certificate"`
	Favicon         string `json:"favicon"`
}

func (s *Server) handleUpsertMonitor(w http.ResponseWriter, r *http.Request) {
	var p monitorPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || p.URL == "" {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	if !isValidHTTPURL(p.URL) {
		writeError(w, http.StatusBadRequest, "url must be http(s) with a host")
		return
	}
	m := monitorFromPayload(p, s.opt.MinIntervalMinutes, s.now().UTC())
	if err := s.Store.UpsertMonitor(r.Context(), &m); err != nil {
		s.Logger.Error("upsert_monitor_failed", zap.String("url", m.URL), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not save")
		return
	}
	s.Logger.Info("monitor_saved", zap.Int64("monitor_id", int64(m.ID)), zap.String("url", m.URL))
	writeJSON(w, http.StatusOK, m)
}

func monitorFromPayload(p monitorPayload, floor int, now time.Time) domain.Monitor {
	url := normalizeHTTPURL(p.URL)
	name := p.Name
	if name == "" {
		name = extractHost(url)
	}
	return config.MonitorSeed{
		Name:            name,
		URL:             url,
		IntervalMinutes: p.IntervalMinutes,
		Public:          p.Public,
		Certificate:     p.Certificate,
		Favicon:         p.Favicon,
	}.Monitor(floor, now)
}

type dailyRequest struct {
	Date       string  `json:"date"`
	MonitorIDs []int64 `json:"monitor_ids"`
}

type dailyResponse struct {
	Date      string   `json:"date"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

func (s *Server) handleRunDaily(w http.ResponseWriter, r *http.Request) {
	var req dailyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	if req.Date == "" {
		req.Date = s.now().UTC().AddDate(0, 0, -1).Format(domain.DateLayout)
	}
	if _, err := stats.ParseDate(req.Date); err != nil {
		writeError(w, http.StatusBadRequest, "invalid date")
		return
	}
	ids := make([]domain.MonitorID, 0, len(req.MonitorIDs))
	for _, id := range req.MonitorIDs {
		ids = append(ids, domain.MonitorID(id))
	}

	rep, err := s.Aggr.RunDaily(r.Context(), req.Date, ids)
	out := dailyResponse{Date: rep.Date, Succeeded: rep.Succeeded, Failed: rep.Failed}
	for _, id := range rep.FailedIDs {
		out.Errors = append(out.Errors, fmt.Sprintf("monitor %d: aggregation failed", id))
	}
	if err != nil {
		s.Logger.Warn("daily_aggregation_partial", zap.String("date", req.Date), zap.Error(err))
		if len(out.Errors) == 0 {
			out.Errors = []string{"aggregation did not complete"}
		}
	}
	writeJSON(w, http.StatusOK, out)
}
