// Package api serves the monitor's HTTP surface: buffered snapshots, charts,
// ingest counters, stored sessions and Prometheus metrics.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/banshee-data/csi.monitor/internal/csi"
	"github.com/banshee-data/csi.monitor/internal/csi/pipeline"
	"github.com/banshee-data/csi.monitor/internal/db"
	"github.com/banshee-data/csi.monitor/internal/render"
	"github.com/banshee-data/csi.monitor/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

const (
	defaultSessionLimit = 20
	defaultRecordLimit  = 100
	maxRecordLimit      = 10000
)

// Source is one transport's pipeline together with the latest snapshot it
// handed to its renderer. Latest may be nil.
type Source struct {
	Pipeline *pipeline.Pipeline
	Latest   *render.Latest
}

type Server struct {
	sources    map[string]Source
	db         *db.DB
	gatherer   prometheus.Gatherer
	assetsHost string
}

// ServerConfig configures a Server. DB and Gatherer are optional; the
// matching routes answer 404 without them.
type ServerConfig struct {
	Sources    []Source
	DB         *db.DB
	Gatherer   prometheus.Gatherer
	AssetsHost string
}

func NewServer(cfg ServerConfig) *Server {
	s := &Server{
		sources:    make(map[string]Source, len(cfg.Sources)),
		db:         cfg.DB,
		gatherer:   cfg.Gatherer,
		assetsHost: cfg.AssetsHost,
	}
	for _, src := range cfg.Sources {
		s.sources[src.Pipeline.Transport()] = src
	}
	return s
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/version", s.showVersion)
	mux.HandleFunc("/api/transports", s.listTransports)
	mux.HandleFunc("/api/sessions", s.listSessions)
	mux.HandleFunc("/api/sessions/{id}/records", s.listSessionRecords)
	mux.HandleFunc("/csi/{transport}/snapshot", s.showSnapshot)
	mux.HandleFunc("/csi/{transport}/stats", s.showSubcarrierStats)
	mux.HandleFunc("/csi/{transport}/ingest", s.showIngestStats)
	mux.HandleFunc("/csi/{transport}/surface", s.showSurface)
	mux.HandleFunc("/csi/{transport}/heatmap.png", s.showHeatmap)
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: failed to write response: %v", err)
	}
}

// source resolves the {transport} path value, writing a 404 when it is
// unknown.
func (s *Server) source(w http.ResponseWriter, r *http.Request) (Source, bool) {
	transport := r.PathValue("transport")
	src, ok := s.sources[transport]
	if !ok {
		s.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("Unknown transport %q", transport))
		return Source{}, false
	}
	return src, true
}

// records returns the snapshot the renderer last received, falling back to
// a fresh copy of the pipeline buffer.
func (src Source) records() ([]csi.Record, time.Time) {
	if src.Latest != nil {
		if recs, updated := src.Latest.Snapshot(); len(recs) > 0 {
			return recs, updated
		}
	}
	return src.Pipeline.Snapshot(), time.Time{}
}

func parseLimit(r *http.Request, def int) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, errors.New("Invalid 'limit' parameter")
	}
	if n > maxRecordLimit {
		n = maxRecordLimit
	}
	return n, nil
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.writeJSON(w, map[string]string{
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"build_time": version.BuildTime,
	})
}

type transportInfo struct {
	Transport      string                 `json:"transport"`
	TargetTag      uint64                 `json:"target_tag"`
	ExpectedLength int                    `json:"expected_length"`
	Buffered       int                    `json:"buffered"`
	Stats          pipeline.StatsSnapshot `json:"stats"`
}

func (s *Server) listTransports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	names := make([]string, 0, len(s.sources))
	for name := range s.sources {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]transportInfo, 0, len(names))
	for _, name := range names {
		p := s.sources[name].Pipeline
		out = append(out, transportInfo{
			Transport:      name,
			TargetTag:      p.TargetTag(),
			ExpectedLength: p.ExpectedLength(),
			Buffered:       len(p.Snapshot()),
			Stats:          p.Stats().Totals(),
		})
	}
	s.writeJSON(w, out)
}

type snapshotResponse struct {
	Transport      string       `json:"transport"`
	TargetTag      uint64       `json:"target_tag"`
	ExpectedLength int          `json:"expected_length"`
	Updated        *time.Time   `json:"updated,omitempty"`
	Records        []csi.Record `json:"records"`
}

func (s *Server) showSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	src, ok := s.source(w, r)
	if !ok {
		return
	}
	limit, err := parseLimit(r, 0)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	recs, updated := src.records()
	if limit > 0 && len(recs) > limit {
		recs = recs[len(recs)-limit:]
	}
	if recs == nil {
		recs = []csi.Record{}
	}
	resp := snapshotResponse{
		Transport:      src.Pipeline.Transport(),
		TargetTag:      src.Pipeline.TargetTag(),
		ExpectedLength: src.Pipeline.ExpectedLength(),
		Records:        recs,
	}
	if !updated.IsZero() {
		resp.Updated = &updated
	}
	s.writeJSON(w, resp)
}

func (s *Server) showSubcarrierStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	src, ok := s.source(w, r)
	if !ok {
		return
	}
	recs, _ := src.records()
	stats, err := render.SubcarrierStats(recs)
	if errors.Is(err, render.ErrNoRecords) {
		s.writeJSONError(w, http.StatusNotFound, "No records buffered")
		return
	}
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to compute stats: %v", err))
		return
	}
	s.writeJSON(w, stats)
}

func (s *Server) showIngestStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	src, ok := s.source(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, src.Pipeline.Stats().Totals())
}

func (s *Server) showSurface(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	src, ok := s.source(w, r)
	if !ok {
		return
	}
	recs, updated := src.records()
	if len(recs) == 0 {
		s.writeJSONError(w, http.StatusNotFound, "No records buffered")
		return
	}
	subtitle := fmt.Sprintf("%s, %d frames", src.Pipeline.Transport(), len(recs))
	if !updated.IsZero() {
		subtitle += ", updated " + updated.Format(time.RFC3339)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := render.WriteSurfaceHTML(w, recs, render.SurfaceOptions{
		Tag:        src.Pipeline.TargetTag(),
		Subtitle:   subtitle,
		AssetsHost: s.assetsHost,
	})
	if err != nil {
		log.Printf("api: surface render failed: %v", err)
	}
}

func (s *Server) showHeatmap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	src, ok := s.source(w, r)
	if !ok {
		return
	}
	recs, _ := src.records()
	if len(recs) == 0 {
		s.writeJSONError(w, http.StatusNotFound, "No records buffered")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if err := render.WriteHeatmapPNG(w, recs, render.HeatmapOptions{Tag: src.Pipeline.TargetTag()}); err != nil {
		log.Printf("api: heatmap render failed: %v", err)
	}
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusNotFound, "Database not configured")
		return
	}
	limit, err := parseLimit(r, defaultSessionLimit)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	sessions, err := s.db.Sessions(r.Context(), limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve sessions: %v", err))
		return
	}
	if sessions == nil {
		sessions = []db.Session{}
	}
	s.writeJSON(w, sessions)
}

func (s *Server) listSessionRecords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusNotFound, "Database not configured")
		return
	}
	limit, err := parseLimit(r, defaultRecordLimit)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	recs, err := s.db.RecentCSI(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve records: %v", err))
		return
	}
	if recs == nil {
		recs = []csi.Record{}
	}
	s.writeJSON(w, recs)
}
