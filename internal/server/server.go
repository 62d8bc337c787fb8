package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"linkscout/internal/history"
	"linkscout/internal/logging"
	"linkscout/internal/model"
	"linkscout/internal/scan"
)

// Config holds the server's own settings; collaborators are injected.
type Config struct {
	// ListenAddr is the HTTP listen address for the API server.
	ListenAddr string
}

// HistoryView is the slice of the history store the API reads through.
type HistoryView interface {
	Snapshot(ctx context.Context, identity model.Identity) ([]model.ScanRecord, error)
	Remove(ctx context.Context, identity model.Identity, id string) error
	Subscribe(identity model.Identity) (<-chan []model.ScanRecord, func())
}

// SessionView reports the current session identity and exposes the
// authentication-state stream so handlers can wait for sign-in.
type SessionView interface {
	Identity() (model.Identity, bool)
	Subscribe() (<-chan model.Identity, func())
}

// FactSource serves the unrelated fun fact string.
type FactSource interface {
	FunFact(ctx context.Context) string
}

// Server is the HTTP + WebSocket API surface for linkscout.
type Server struct {
	cfg        Config
	router     chi.Router
	upgrader   websocket.Upgrader
	logger     logging.Logger
	controller *scan.Controller
	history    HistoryView
	session    SessionView
	facts      FactSource
}

// NewServer wires the API around already-constructed components.
func NewServer(cfg Config, logger logging.Logger, controller *scan.Controller, hist HistoryView, session SessionView, facts FactSource) *Server {
	r := chi.NewRouter()
	s := &Server{
		cfg:        cfg,
		router:     r,
		logger:     logger.With(logging.Field{Key: "component", Value: "server"}),
		controller: controller,
		history:    hist,
		session:    session,
		facts:      facts,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// TODO: tighten for production
				return true
			},
		},
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	r.Use(s.corsMiddleware)

	// CORS preflight
	r.Options("/scans", s.optionsHandler("GET, POST"))
	r.Options("/scans/state", s.optionsHandler("GET"))
	r.Options("/scans/{recordID}", s.optionsHandler("DELETE"))
	r.Options("/session", s.optionsHandler("GET"))
	r.Options("/funfact", s.optionsHandler("GET"))

	r.Get("/healthz", s.handleHealth)
	r.Get("/session", s.handleGetSession)

	// Scans
	r.Post("/scans", s.handleSubmitScan)
	r.Get("/scans", s.handleListScans)
	r.Get("/scans/state", s.handleScanState)
	r.Delete("/scans/{recordID}", s.handleDeleteScan)

	// Fun fact (page dressing, unrelated to the scan workflow)
	r.Get("/funfact", s.handleFunFact)

	// WebSocket live history view
	r.Get("/ws/scans", s.handleScansWS)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		next.ServeHTTP(w, r)
	})
}

func (s *Server) optionsHandler(methods string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Methods", methods)
		w.WriteHeader(http.StatusNoContent)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fields := []logging.Field{
		{Key: "method", Value: r.Method},
		{Key: "path", Value: r.URL.Path},
	}

	if r.Body != nil && (r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch) {
		if bodyBytes, err := io.ReadAll(r.Body); err == nil {
			fields = append(fields, logging.Field{Key: "body", Value: string(bodyBytes)})
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}
	}

	s.logger.Info("http_request", fields...)

	s.router.ServeHTTP(w, r)
}

// HTTPServer creates an *http.Server ready to ListenAndServe.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // allow streaming
	}
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// --- HTTP handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	identity := "absent"
	if _, ok := s.session.Identity(); ok {
		identity = "present"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "identity": identity})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := s.session.Identity()
	if !ok {
		writeJSON(w, http.StatusAccepted, map[string]any{"identity": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"identity": string(id)})
}

func (s *Server) handleSubmitScan(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if body.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	if _, ok := s.session.Identity(); !ok {
		writeError(w, http.StatusServiceUnavailable, "no session identity yet")
		return
	}

	record, err := s.controller.Submit(r.Context(), body.URL)
	if err != nil {
		if errors.Is(err, scan.ErrScanInFlight) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.logger.Warn("scan submission failed", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusBadGateway, scan.GenericFailureMessage)
		return
	}
	if record == nil {
		// Guarded no-op: the identity vanished between checks.
		writeError(w, http.StatusServiceUnavailable, "no session identity yet")
		return
	}

	s.logger.Info("scan submitted",
		logging.Field{Key: "id", Value: record.ID},
		logging.Field{Key: "status", Value: string(record.Status)})
	writeJSON(w, http.StatusCreated, record)
}

func (s *Server) handleListScans(w http.ResponseWriter, r *http.Request) {
	id, ok := s.session.Identity()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no session identity yet")
		return
	}

	records, err := s.history.Snapshot(r.Context(), id)
	if err != nil {
		s.logger.Warn("listing scans", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	model.SortRecords(records)
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleScanState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.State())
}

func (s *Server) handleDeleteScan(w http.ResponseWriter, r *http.Request) {
	recordID := chi.URLParam(r, "recordID")

	id, ok := s.session.Identity()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no session identity yet")
		return
	}

	if err := s.history.Remove(r.Context(), id, recordID); err != nil {
		if errors.Is(err, history.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, "scan record not found")
			return
		}
		s.logger.Warn("deleting scan record", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.logger.Info("deleted scan record", logging.Field{Key: "id", Value: recordID})
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleFunFact(w http.ResponseWriter, r *http.Request) {
	fact := s.facts.FunFact(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"fact": fact})
}

// WebSockets

// handleScansWS streams the full, sorted history set on connect and after
// every store mutation until the client disconnects. A client that connects
// before sign-in completes is held open and attached once an identity exists.
func (s *Server) handleScansWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrading to websocket", logging.Field{Key: "error", Value: err.Error()})
		return
	}
	defer conn.Close()

	// Reader loop only exists to notice the client going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	id, ok := s.session.Identity()
	if !ok {
		// Sign-in has not completed yet. Hold the connection on the
		// authentication stream and attach once an identity exists.
		auth, cancelAuth := s.session.Subscribe()
		for !ok {
			select {
			case got := <-auth:
				if got != "" {
					id, ok = got, true
				}
			case <-done:
				cancelAuth()
				return
			}
		}
		cancelAuth()
	}

	updates, cancel := s.history.Subscribe(id)
	defer cancel()

	// Initial snapshot so the client is never waiting on a first change.
	records, err := s.history.Snapshot(r.Context(), id)
	if err != nil {
		s.logger.Warn("live view snapshot", logging.Field{Key: "error", Value: err.Error()})
		_ = conn.WriteJSON(map[string]string{"error": "history unavailable"})
		return
	}
	model.SortRecords(records)
	if err := conn.WriteJSON(records); err != nil {
		return
	}

	for {
		select {
		case recs := <-updates:
			model.SortRecords(recs)
			if err := conn.WriteJSON(recs); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
