// Package admin serves the browser dashboard and HTTP control surface for a
// running reactor engine.
package admin

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"reactor-sim/internal/logging"
	"reactor-sim/internal/metrics"
	"reactor-sim/internal/reactor"
)

// Engine is the part of reactor.Engine the admin server drives.
type Engine interface {
	Submit(ctx context.Context, input string) error
	Snapshot(ctx context.Context) (reactor.Snapshot, error)
}

const maxInjectBytes = 64 << 10

//go:embed templates/index.html
var content embed.FS

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Server is the admin HTTP surface: the dashboard page, JSON state and
// telemetry endpoints, injection intake, websocket push and /metrics.
type Server struct {
	engine  Engine
	hub     *Hub
	metrics *metrics.Prometheus
	tpl     *template.Template
	router  *mux.Router
}

// NewServer wires routes for engine. hub and m may be nil; without a hub
// /ws is not served, without m /metrics exposes the default registry.
func NewServer(engine Engine, hub *Hub, m *metrics.Prometheus) *Server {
	tpl := template.Must(template.New("index.html").ParseFS(content, "templates/index.html"))
	s := &Server{engine: engine, hub: hub, metrics: m, tpl: tpl, router: mux.NewRouter()}
	if m != nil && hub != nil {
		m.TrackClients(hub.Clients)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.handle("/", s.handleIndex, http.MethodGet)
	s.handle("/state", s.handleState, http.MethodGet)
	s.handle("/telemetry", s.handleTelemetry, http.MethodGet)
	s.handle("/logs", s.handleLogs, http.MethodGet)
	s.handle("/inject", s.handleInject, http.MethodPost)
	if s.hub != nil {
		s.router.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)
	}
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	} else {
		s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}
}

func (s *Server) handle(path string, h http.HandlerFunc, method string) {
	var handler http.Handler = h
	if s.metrics != nil {
		handler = s.metrics.Instrument(path, h)
	}
	s.router.Handle(path, handler).Methods(method)
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logging.FromContext(ctx).Info("admin server listening", "addr", addr)
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if s.hub != nil {
			s.hub.Close()
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap, err := s.engine.Snapshot(r.Context())
	if err != nil {
		engineError(w, err)
		return
	}
	data := struct {
		Snapshot reactor.Snapshot
		Live     bool
	}{snap, s.hub != nil}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tpl.Execute(w, data); err != nil {
		logging.FromContext(r.Context()).Error("render dashboard", "err", err)
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	snap, err := s.engine.Snapshot(r.Context())
	if err != nil {
		engineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	snap, err := s.engine.Snapshot(r.Context())
	if err != nil {
		engineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap.Telemetry)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	snap, err := s.engine.Snapshot(r.Context())
	if err != nil {
		engineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap.Logs)
}

type injectRequest struct {
	Input *string `json:"input"`
}

var errMissingInput = errors.New("input field is required")

func (s *Server) handleInject(w http.ResponseWriter, r *http.Request) {
	input, err := readInput(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	// blank input is forwarded; the engine drops it without a log entry
	if err := s.engine.Submit(r.Context(), input); err != nil {
		engineError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true})
}

func readInput(w http.ResponseWriter, r *http.Request) (string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxInjectBytes)
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return "", errors.New("unreadable body")
		}
		var req injectRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return "", errors.New("invalid JSON body")
		}
		if req.Input == nil {
			return "", errMissingInput
		}
		return *req.Input, nil
	}
	if err := r.ParseForm(); err != nil {
		return "", errors.New("unreadable form body")
	}
	if _, ok := r.PostForm["input"]; !ok {
		return "", errMissingInput
	}
	return r.PostForm.Get("input"), nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context())
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	c := s.hub.register(conn)
	if c == nil {
		conn.Close()
		return
	}
	logger.Debug("websocket client connected", "remote", r.RemoteAddr, "clients", s.hub.Clients())
	if snap, err := s.engine.Snapshot(r.Context()); err == nil {
		if msg, err := encodeMessage("snapshot", snap); err == nil {
			s.hub.enqueue(c, msg)
		}
	}
	go c.writePump()
	c.readPump()
}

func engineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, reactor.ErrStopped):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
