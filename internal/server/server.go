// Package server provides the HTTP surface for watching face events: a
// health check, the current detection snapshot, a detection toggle, an MJPEG
// preview, a WebSocket event stream, the event journal and metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/facewatch/internal/capture"
	"github.com/ayusman/facewatch/internal/events"
	"github.com/ayusman/facewatch/internal/journal"
	"github.com/ayusman/facewatch/internal/metrics"
	"github.com/ayusman/facewatch/internal/tracker"
)

// Detection is the part of the application the server reads and toggles.
type Detection interface {
	Snapshot() tracker.Snapshot
	IsEnabled() bool
	SetEnabled(enabled bool)
}

// FrameSource hands out per-client frame mailboxes.
type FrameSource interface {
	Subscribe(name string) *capture.Mailbox
	Unsubscribe(name string)
}

// EventSource lets clients follow published events.
type EventSource interface {
	SubscribeAll(handler events.Handler) func()
}

// Journal serves recent events.
type Journal interface {
	Recent(limit int) ([]journal.Entry, error)
	Counts() (map[events.Kind]int, error)
}

// Config holds the server configuration. Routes whose dependency is nil are
// not registered.
type Config struct {
	StaticDir string
	Detection Detection
	Frames    FrameSource
	Events    EventSource
	Journal   Journal
	Metrics   *metrics.Metrics
	Logger    logrus.FieldLogger
}

// Server represents the HTTP server for the facewatch application.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
	log    logrus.FieldLogger
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	log := config.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
		log:    log.WithField("component", "server"),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.Detection != nil {
		s.mux.HandleFunc("/api/snapshot", s.handleSnapshot)
		s.mux.HandleFunc("/api/detection", s.handleDetection)
	}

	if s.config.Frames != nil {
		s.mux.Handle("/api/stream", NewStreamHandler(s.config.Frames, s.config.Metrics, s.log))
	}

	if s.config.Events != nil {
		s.mux.Handle("/api/events", NewEventsHandler(s.config.Events, s.config.Metrics, s.log))
	}

	if s.config.Journal != nil {
		s.mux.HandleFunc("/api/journal", s.handleJournal)
	}

	if s.config.Metrics != nil {
		s.mux.Handle("/metrics", s.config.Metrics.Handler())
	}

	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Debug("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}
	if s.config.Detection != nil {
		response["detection"] = s.config.Detection.IsEnabled()
	}

	writeJSON(w, http.StatusOK, response)
}

// handleSnapshot handles GET requests to /api/snapshot.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, s.config.Detection.Snapshot())
}

type detectionState struct {
	Enabled *bool `json:"enabled"`
}

// handleDetection reports (GET) or sets (POST) whether detection runs.
func (s *Server) handleDetection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		var req detectionState
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if req.Enabled == nil {
			writeError(w, http.StatusBadRequest, "enabled is required")
			return
		}
		s.config.Detection.SetEnabled(*req.Enabled)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	enabled := s.config.Detection.IsEnabled()
	writeJSON(w, http.StatusOK, detectionState{Enabled: &enabled})
}

// handleJournal handles GET requests to /api/journal.
func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := s.config.Journal.Recent(limit)
	if err != nil {
		s.log.WithError(err).Error("failed to read journal")
		writeError(w, http.StatusInternalServerError, "failed to read journal")
		return
	}
	counts, err := s.config.Journal.Counts()
	if err != nil {
		s.log.WithError(err).Error("failed to count journal")
		writeError(w, http.StatusInternalServerError, "failed to read journal")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"counts":  counts,
	})
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		// Request contexts end with ctx so streaming handlers return on shutdown.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		srv.Close()
	}

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
