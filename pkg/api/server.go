package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/rmax-ai/topolord/pkg/cache"
	"github.com/rmax-ai/topolord/pkg/dot"
	"github.com/rmax-ai/topolord/pkg/hierarchy"
	"github.com/rmax-ai/topolord/pkg/index"
	"github.com/rmax-ai/topolord/pkg/navigator"
	"github.com/rmax-ai/topolord/pkg/reports"
	"github.com/rmax-ai/topolord/pkg/store"
)

// Context keys
type contextKey string

const traceIDKey contextKey = "trace_id"

// ViewService is what the API needs from the navigator. *navigator.Loader
// implements it.
type ViewService interface {
	navigator.ViewSource
	SiteView(ctx context.Context, siteID, rackID string) (*navigator.View, error)
	Validate(ctx context.Context) ([]index.Issue, []index.Skipped, error)
}

// Server encapsulates the HTTP API server
type Server struct {
	views   ViewService
	cache   cache.Cache
	reports reports.Source
	server  *http.Server
}

// NewServer creates a new API server instance. c may be nil, in which case
// cache invalidation is a no-op.
func NewServer(views ViewService, c cache.Cache, addr string) *Server {
	if c == nil {
		c = cache.Noop{}
	}
	s := &Server{views: views, cache: c}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/health", handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/v1/views/sites", s.handleSitesView)
	mux.HandleFunc("/v1/views/equipment", s.handleEquipmentView)
	mux.HandleFunc("/v1/views/rack", s.handleRackView)
	mux.HandleFunc("/v1/views/server", s.handleServerView)
	mux.HandleFunc("/v1/resolve", s.handleResolve)
	mux.HandleFunc("/v1/resolve-node", s.handleResolveNode)
	mux.HandleFunc("/v1/validate", s.handleValidate)
	mux.HandleFunc("/v1/cache/invalidate", s.handleInvalidate)
	mux.HandleFunc("/v1/reports", s.handleReports)

	// Middleware: Logging, Panic Recovery, Security Headers
	handler := withLogging(withRecovery(withSecureHeaders(mux)))

	if addr == "" {
		addr = ":8091"
	}

	s.server = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	return s
}

// SetReportSource enables GET /v1/reports. Without a source the endpoint
// answers 501.
func (s *Server) SetReportSource(src reports.Source) {
	s.reports = src
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start runs the HTTP server (blocking)
func (s *Server) Start() error {
	log.WithField("addr", s.server.Addr).Info("server_starting")
	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop(ctx context.Context) error {
	log.Info("server_stopping")
	return s.server.Shutdown(ctx)
}

// writeError maps navigator and store errors onto status codes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, navigator.ErrInvalidLevel):
		http.Error(w, `{"error":"invalid_request"}`, http.StatusBadRequest)
	case errors.Is(err, navigator.ErrNotFound), errors.Is(err, store.ErrNotFound):
		http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
	case errors.Is(err, context.Canceled):
		// client went away
	default:
		log.WithFields(log.Fields{
			"trace_id": getTraceID(r.Context()),
			"path":     r.URL.Path,
		}).WithError(err).Error("data_unavailable")
		w.Header().Set("Retry-After", "1")
		http.Error(w, `{"error":"data_unavailable"}`, http.StatusServiceUnavailable)
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithField("trace_id", getTraceID(r.Context())).WithError(err).Error("failed_to_encode_response")
	}
}

// writeView returns the view as JSON, or only its DOT text with ?format=dot.
func writeView(w http.ResponseWriter, r *http.Request, v *navigator.View, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	if r.URL.Query().Get("format") == "dot" {
		w.Header().Set("Content-Type", "text/vnd.graphviz; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(v.Graph.Text))
		return
	}
	writeJSON(w, r, v)
}

func requireGET(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		http.Error(w, `{"error":"method_not_allowed"}`, http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func requiredParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		http.Error(w, fmt.Sprintf(`{"error":"missing_%s"}`, name), http.StatusBadRequest)
		return "", false
	}
	return v, true
}

// handleSitesView renders every site across all topology documents.
func (s *Server) handleSitesView(w http.ResponseWriter, r *http.Request) {
	if !requireGET(w, r) {
		return
	}
	v, err := s.views.View(r.Context(), hierarchy.LevelAll, "")
	writeView(w, r, v, err)
}

// handleEquipmentView renders one site's racks, optionally a single rack,
// or the rack holding equipment_id.
func (s *Server) handleEquipmentView(w http.ResponseWriter, r *http.Request) {
	if !requireGET(w, r) {
		return
	}
	q := r.URL.Query()
	if equipmentID := strings.TrimSpace(q.Get("equipment_id")); equipmentID != "" {
		v, err := s.views.View(r.Context(), hierarchy.LevelEquipment, equipmentID)
		writeView(w, r, v, err)
		return
	}
	siteID, rackID := strings.TrimSpace(q.Get("site_id")), strings.TrimSpace(q.Get("rack_id"))
	if siteID == "" && rackID == "" {
		http.Error(w, `{"error":"missing_site_id"}`, http.StatusBadRequest)
		return
	}
	v, err := s.views.SiteView(r.Context(), siteID, rackID)
	writeView(w, r, v, err)
}

func (s *Server) handleRackView(w http.ResponseWriter, r *http.Request) {
	if !requireGET(w, r) {
		return
	}
	rackID, ok := requiredParam(w, r, "rack_id")
	if !ok {
		return
	}
	v, err := s.views.View(r.Context(), hierarchy.LevelRacks, rackID)
	writeView(w, r, v, err)
}

func (s *Server) handleServerView(w http.ResponseWriter, r *http.Request) {
	if !requireGET(w, r) {
		return
	}
	serverID, ok := requiredParam(w, r, "server_id")
	if !ok {
		return
	}
	v, err := s.views.View(r.Context(), hierarchy.LevelServerDetails, serverID)
	writeView(w, r, v, err)
}

// handleResolve returns the ancestor trail of a server, equipment, rack or
// site. The first parameter present wins, deepest level first.
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	if !requireGET(w, r) {
		return
	}
	q := r.URL.Query()
	var level hierarchy.Level
	var id string
	for _, p := range []struct {
		param string
		level hierarchy.Level
	}{
		{"server_id", hierarchy.LevelServerDetails},
		{"equipment_id", hierarchy.LevelEquipment},
		{"rack_id", hierarchy.LevelRacks},
		{"site_id", hierarchy.LevelSites},
	} {
		if v := strings.TrimSpace(q.Get(p.param)); v != "" {
			level, id = p.level, v
			break
		}
	}
	if id == "" {
		http.Error(w, `{"error":"missing_id"}`, http.StatusBadRequest)
		return
	}

	entries, err := s.views.Ancestors(r.Context(), level, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []hierarchy.Entry{}
	}
	writeJSON(w, r, ResolveResponse{Level: level, ID: id, Ancestors: entries})
}

// handleResolveNode matches a clicked node title against the graph of the
// view identified by level and id, and reports where the click leads.
func (s *Server) handleResolveNode(w http.ResponseWriter, r *http.Request) {
	if !requireGET(w, r) {
		return
	}
	title, ok := requiredParam(w, r, "title")
	if !ok {
		return
	}
	q := r.URL.Query()
	level := hierarchy.LevelAll
	if raw := q.Get("level"); raw != "" {
		var err error
		if level, err = hierarchy.ParseLevel(raw); err != nil {
			http.Error(w, `{"error":"invalid_level"}`, http.StatusBadRequest)
			return
		}
	}

	v, err := s.views.View(r.Context(), level, q.Get("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	m, ok := dot.ResolveNodeID(title, v.Graph.Mappings)
	if !ok {
		http.Error(w, `{"error":"node_not_found"}`, http.StatusNotFound)
		return
	}
	targetLevel, targetID := navigator.Target(m)
	writeJSON(w, r, ResolveNodeResponse{Mapping: m, TargetLevel: targetLevel, TargetID: targetID})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	if !requireGET(w, r) {
		return
	}
	issues, skipped, err := s.views.Validate(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if skipped == nil {
		skipped = []index.Skipped{}
	}
	writeJSON(w, r, ValidateResponse{Issues: issues, Skipped: skipped})
}

// handleInvalidate drops one cache key, or everything for an empty key.
func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, `{"error":"method_not_allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	var req InvalidateRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid_json_body"}`, http.StatusBadRequest)
			return
		}
	}

	key := strings.TrimSpace(req.Key)
	if key == "" {
		s.cache.InvalidateAll(r.Context())
	} else {
		s.cache.Invalidate(r.Context(), key)
	}
	log.WithFields(log.Fields{
		"trace_id": getTraceID(r.Context()),
		"key":      key,
	}).Info("cache_invalidated")

	writeJSON(w, r, map[string]string{"status": "invalidated", "key": key})
}

// handleHealth returns simple status
func handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// Middleware: Panic Recovery
func withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.WithFields(log.Fields{
					"error": fmt.Sprint(err),
					"path":  r.URL.Path,
				}).Error("panic_recovered")
				http.Error(w, `{"error":"internal_server_error"}`, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Middleware: Request Logging
func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		traceID := r.Header.Get("X-Trace-ID")
		if traceID == "" {
			traceID = generateTraceID()
		}

		ctx := context.WithValue(r.Context(), traceIDKey, traceID)
		r = r.WithContext(ctx)

		// Wrap writer to capture status code
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		w.Header().Set("X-Trace-ID", traceID)

		next.ServeHTTP(ww, r)

		log.WithFields(log.Fields{
			"trace_id":    traceID,
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.status,
			"duration_ms": time.Since(start).Milliseconds(),
		}).Info("http_request")
	})
}

func generateTraceID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

func getTraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return ""
}

// statusWriter captures HTTP status code
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Middleware: Secure Headers
func withSecureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; img-src 'self' data:;")
		w.Header().Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("X-XSS-Protection", "1; mode=block")

		next.ServeHTTP(w, r)
	})
}

// handleReports generates and streams reports.
func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, `{"error":"method_not_allowed"}`, http.StatusMethodNotAllowed)
		return
	}
	if s.reports == nil {
		http.Error(w, `{"error":"reports_unavailable"}`, http.StatusNotImplemented)
		return
	}

	q := r.URL.Query()
	reportType := reports.ReportType(q.Get("type"))
	if reportType == "" {
		http.Error(w, `{"error":"missing_type"}`, http.StatusBadRequest)
		return
	}
	format := reports.ReportFormat(q.Get("format"))
	if format == "" {
		format = reports.ReportFormatCSV
	}
	if format != reports.ReportFormatCSV && format != reports.ReportFormatJSON {
		http.Error(w, `{"error":"invalid_format"}`, http.StatusBadRequest)
		return
	}

	gen, err := reports.NewReportGenerator(reportType, s.reports)
	if err != nil {
		http.Error(w, `{"error":"invalid_report_type"}`, http.StatusBadRequest)
		return
	}
	body, err := gen.Generate(r.Context(), format)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if format == reports.ReportFormatJSON {
		w.Header().Set("Content-Type", "application/json")
	} else {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", string(reportType)+".csv"))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		log.WithField("trace_id", getTraceID(r.Context())).WithError(err).Error("failed_to_stream_report")
	}
}
