// Package api serves the aggregator's read-only JSON view of the parking
// spaces and captured stills.
package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/banshee-data/parking.report/internal/db"
	"github.com/banshee-data/parking.report/internal/httputil"
	"github.com/banshee-data/parking.report/internal/security"
	"github.com/banshee-data/parking.report/internal/timeutil"
	"github.com/banshee-data/parking.report/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

const (
	defaultCaptureLimit = 50
	maxCaptureLimit     = 500
)

// Store is the read side of the aggregator database.
type Store interface {
	Space(ctx context.Context, id int) (db.SpaceState, error)
	Spaces(ctx context.Context) ([]db.SpaceState, error)
	RecentCaptures(ctx context.Context, limit int) ([]db.CaptureRecord, error)
	Capture(ctx context.Context, id string) (db.CaptureRecord, error)
}

// ClientCounter reports the number of connected sensors.
type ClientCounter interface {
	ClientsConnected() int
}

type Server struct {
	// ImagesDir is where received stills are stored. Empty disables the
	// image route.
	ImagesDir string

	store     Store
	clients   ClientCounter
	clock     timeutil.Clock
	startedAt time.Time
}

// NewServer creates the API server. clients may be nil.
func NewServer(store Store, clients ClientCounter, clock timeutil.Clock) *Server {
	return &Server{
		store:     store,
		clients:   clients,
		clock:     clock,
		startedAt: clock.Now(),
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
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

// Attach registers the API routes on mux.
func (s *Server) Attach(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", s.health)
	mux.HandleFunc("GET /api/spaces", s.listSpaces)
	mux.HandleFunc("GET /api/spaces/{id}", s.showSpace)
	mux.HandleFunc("GET /api/captures", s.listCaptures)
	mux.HandleFunc("GET /api/captures/{id}/image", s.captureImage)
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	s.Attach(mux)
	return mux
}

type healthResponse struct {
	Status           string  `json:"status"`
	Version          string  `json:"version"`
	ClientsConnected int     `json:"clients_connected"`
	UptimeSeconds    float64 `json:"uptime_seconds"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:        "ok",
		Version:       version.Version,
		UptimeSeconds: s.clock.Since(s.startedAt).Seconds(),
	}
	if s.clients != nil {
		resp.ClientsConnected = s.clients.ClientsConnected()
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) listSpaces(w http.ResponseWriter, r *http.Request) {
	spaces, err := s.store.Spaces(r.Context())
	if err != nil {
		log.Printf("failed to list spaces: %v", err)
		httputil.InternalServerError(w, "failed to list spaces")
		return
	}
	httputil.WriteJSONOK(w, spaces)
}

func (s *Server) showSpace(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		httputil.BadRequest(w, "invalid space id")
		return
	}
	space, err := s.store.Space(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		httputil.NotFound(w, "space not found")
		return
	}
	if err != nil {
		log.Printf("failed to load space %d: %v", id, err)
		httputil.InternalServerError(w, "failed to load space")
		return
	}
	httputil.WriteJSONOK(w, space)
}

func (s *Server) listCaptures(w http.ResponseWriter, r *http.Request) {
	limit, err := httputil.QueryInt(r, "limit", defaultCaptureLimit, maxCaptureLimit)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	captures, err := s.store.RecentCaptures(r.Context(), limit)
	if err != nil {
		log.Printf("failed to list captures: %v", err)
		httputil.InternalServerError(w, "failed to list captures")
		return
	}
	httputil.WriteJSONOK(w, captures)
}

func (s *Server) captureImage(w http.ResponseWriter, r *http.Request) {
	if s.ImagesDir == "" {
		httputil.NotFound(w, "images are not served")
		return
	}
	c, err := s.store.Capture(r.Context(), r.PathValue("id"))
	if errors.Is(err, db.ErrNotFound) {
		httputil.NotFound(w, "capture not found")
		return
	}
	if err != nil {
		log.Printf("failed to load capture: %v", err)
		httputil.InternalServerError(w, "failed to load capture")
		return
	}
	path := filepath.Join(s.ImagesDir, c.Filename)
	if err := security.ValidatePathWithinDirectory(path, s.ImagesDir); err != nil {
		log.Printf("refusing capture %s: %v", c.ID, err)
		httputil.NotFound(w, "capture not found")
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	http.ServeFile(w, r, path)
}
