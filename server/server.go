package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/viant/tasker/model/task"
	"github.com/viant/tasker/pipeline"
	"github.com/viant/tasker/policy"
	"github.com/viant/tasker/progress"
	"github.com/viant/tasker/service/stream"
)

const (
	// DefaultAddr is the default listen address.
	DefaultAddr = "127.0.0.1:8787"

	// MaxRequestBodySize bounds submission bodies (1MB).
	MaxRequestBodySize = 1 * 1024 * 1024

	// Version is the server version.
	Version = "0.1.0"
)

// Orchestrator is the task surface served by a namespace
type Orchestrator interface {
	Submit(ctx context.Context, kind string, payload task.Payload, work pipeline.Work) (*task.Record, error)
	Get(id string) (*task.Record, bool)
	List(status *task.Status) []*task.Record
	Cancel(ctx context.Context, id string) bool
	Tracker() *progress.Progress
}

// Namespace mounts one orchestrator under Prefix; Noun names a single record
// in responses ("task" gives "task_id" and "task not found").
type Namespace struct {
	Prefix       string
	Noun         string
	Orchestrator Orchestrator
	Pipelines    *pipeline.Registry
}

// Config represents HTTP server settings
type Config struct {
	Addr           string
	RateLimit      float64
	Burst          int
	StreamInterval time.Duration
}

// Server is the HTTP API server
type Server struct {
	config     Config
	router     *http.ServeMux
	server     *http.Server
	namespaces []*Namespace
}

// New creates a server for the supplied namespaces
func New(config Config, namespaces ...*Namespace) (*Server, error) {
	if config.Addr == "" {
		config.Addr = DefaultAddr
	}
	if config.StreamInterval <= 0 {
		config.StreamInterval = stream.DefaultInterval
	}
	s := &Server{config: config, router: http.NewServeMux()}
	seen := map[string]bool{}
	for _, ns := range namespaces {
		if ns == nil || ns.Orchestrator == nil {
			return nil, fmt.Errorf("namespace orchestrator is required")
		}
		prefix := strings.Trim(ns.Prefix, "/")
		if prefix == "" || ns.Noun == "" {
			return nil, fmt.Errorf("namespace prefix and noun are required")
		}
		if seen[prefix] {
			return nil, fmt.Errorf("duplicate namespace prefix: %v", prefix)
		}
		seen[prefix] = true
		ns.Prefix = prefix
		s.namespaces = append(s.namespaces, ns)
		s.setupRoutes(ns)
	}
	s.router.HandleFunc("GET /health", s.handleHealth)
	return s, nil
}

func (s *Server) setupRoutes(ns *Namespace) {
	p := "/" + ns.Prefix
	s.router.HandleFunc("GET "+p, s.handleList(ns))
	s.router.HandleFunc("GET "+p+"/{id}", s.handleGet(ns))
	s.router.HandleFunc("GET "+p+"/{id}/logs", s.handleLogs(ns))
	s.router.HandleFunc("GET "+p+"/{id}/stream", s.handleStream(ns))
	s.router.HandleFunc("POST "+p+"/{id}/cancel", s.handleCancel(ns))
	s.router.HandleFunc("POST "+p+"/{kind}", s.handleSubmit(ns))
}

// Handler returns the router wrapped with the middleware chain.
func (s *Server) Handler() http.Handler {
	middlewares := []func(http.Handler) http.Handler{
		RecoveryMiddleware(),
		LoggingMiddleware(log.Default()),
		TracingMiddleware(),
	}
	if s.config.RateLimit > 0 {
		middlewares = append(middlewares, RateLimitMiddleware(NewRateLimiter(s.config.RateLimit, s.config.Burst)))
	}
	return Chain(middlewares...)(s.router)
}

func (s *Server) handleList(ns *Namespace) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var filter *task.Status
		if query := r.URL.Query(); query.Has("status") {
			status, err := task.ParseStatus(query.Get("status"))
			if err != nil {
				s.writeDetail(w, http.StatusBadRequest, err.Error())
				return
			}
			filter = &status
		}
		s.writeJSON(w, http.StatusOK, map[string]interface{}{ns.Prefix: ns.Orchestrator.List(filter)})
	}
}

func (s *Server) handleGet(ns *Namespace) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		record, ok := ns.Orchestrator.Get(r.PathValue("id"))
		if !ok {
			s.writeDetail(w, http.StatusNotFound, ns.Noun+" not found")
			return
		}
		s.writeJSON(w, http.StatusOK, record)
	}
}

func (s *Server) handleLogs(ns *Namespace) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		record, ok := ns.Orchestrator.Get(id)
		if !ok {
			s.writeDetail(w, http.StatusNotFound, ns.Noun+" not found")
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]interface{}{ns.Noun + "_id": id, "logs": record.Logs})
	}
}

func (s *Server) handleCancel(ns *Namespace) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if !ns.Orchestrator.Cancel(r.Context(), id) {
			s.writeDetail(w, http.StatusNotFound, ns.Noun+" not found")
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]interface{}{ns.Noun + "_id": id, "canceled": true})
	}
}

func (s *Server) handleStream(ns *Namespace) http.HandlerFunc {
	streamer := stream.New(ns.Orchestrator, stream.WithInterval(s.config.StreamInterval), stream.WithNotFoundMessage(ns.Noun+" not found"))
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			s.writeDetail(w, http.StatusInternalServerError, "streaming unsupported")
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		err := streamer.Stream(r.Context(), r.PathValue("id"), func(frame stream.Frame) error {
			data, err := json.Marshal(frame)
			if err != nil {
				return err
			}
			if _, err = fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return err
			}
			flusher.Flush()
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("STREAM_FAILED | ns=%s id=%s err=%v", ns.Prefix, r.PathValue("id"), err)
		}
	}
}

func (s *Server) handleSubmit(ns *Namespace) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind := r.PathValue("kind")
		work, ok := ns.Pipelines.Lookup(kind)
		if !ok {
			s.writeDetail(w, http.StatusNotFound, "pipeline "+kind+" not found")
			return
		}
		request := task.Payload{}
		body := http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
		if err := json.NewDecoder(body).Decode(&request); err != nil && !errors.Is(err, io.EOF) {
			s.writeDetail(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		if request == nil {
			request = task.Payload{}
		}
		record, err := ns.Orchestrator.Submit(r.Context(), kind, request, work)
		switch {
		case errors.Is(err, policy.ErrDenied):
			s.writeDetail(w, http.StatusForbidden, err.Error())
			return
		case err != nil && record == nil:
			s.writeDetail(w, http.StatusBadRequest, err.Error())
			return
		case err != nil:
			s.writeJSON(w, http.StatusServiceUnavailable, record)
			return
		}
		s.writeJSON(w, http.StatusOK, record)
	}
}

// HealthResponse reports server status and per-namespace counters
type HealthResponse struct {
	Status     string                       `json:"status"`
	Version    string                       `json:"version"`
	Namespaces map[string]progress.Counters `json:"namespaces"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthResponse{Status: "ok", Version: Version, Namespaces: map[string]progress.Counters{}}
	for _, ns := range s.namespaces {
		health.Namespaces[ns.Prefix] = ns.Orchestrator.Tracker().Snapshot()
	}
	s.writeJSON(w, http.StatusOK, health)
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:        s.config.Addr,
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
	log.Printf("SERVER_START | addr=%s version=%s", s.config.Addr, Version)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	log.Printf("SERVER_SHUTDOWN | starting graceful shutdown")
	return s.server.Shutdown(ctx)
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("RESPONSE_ENCODE_FAILED | err=%v", err)
	}
}

// writeDetail writes a {"detail": message} error response.
func (s *Server) writeDetail(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"detail": message})
}
