// Package queryapi is the read-side HTTP surface: recent executions,
// per-stage document listings, cascade run detail, and the live log SSE
// endpoint. Trimmed to GET-only read routes since this domain has no
// submit-a-pipeline equivalent — writes go through the CLI, not this
// server.
package queryapi

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/mdforge/mdforge/internal/cascade"
	"github.com/mdforge/mdforge/internal/logstream"
	"github.com/mdforge/mdforge/internal/obslog"
	"github.com/mdforge/mdforge/internal/storage"
)

// Config holds server configuration.
type Config struct {
	Addr string
}

// Server exposes read-only views over the Document, Execution Record, and
// Cascade Run stores, plus live log streaming.
type Server struct {
	cfg     Config
	docs    storage.DocumentStore
	execs   storage.ExecutionRecordStore
	runs    storage.CascadeRunStore
	cascade *cascade.Engine
	streams *logstream.Manager
	log     *obslog.Logger

	httpSrv *http.Server
	cancel  context.CancelFunc
}

// New builds the Server and wires its routes.
func New(cfg Config, docs storage.DocumentStore, execs storage.ExecutionRecordStore, runs storage.CascadeRunStore, cascadeEngine *cascade.Engine, streams *logstream.Manager, log *obslog.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg: cfg, docs: docs, execs: execs, runs: runs, cascade: cascadeEngine, streams: streams,
		log:    log.With("component", "queryapi"),
		cancel: cancel,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /executions", s.handleListExecutions)
	mux.HandleFunc("GET /executions/{id}", s.handleGetExecution)
	mux.HandleFunc("GET /executions/{id}/log", s.handleExecutionLog)
	mux.HandleFunc("GET /documents/{stage}", s.handleListAtStage)
	mux.HandleFunc("GET /documents/by-id/{id}", s.handleGetDocument)
	mux.HandleFunc("GET /cascades/{id}", s.handleGetCascadeRun)
	mux.HandleFunc("GET /cascades", s.handleListCascadeRuns)
	mux.HandleFunc("GET /prime", s.handlePrime)

	s.httpSrv = &http.Server{
		Handler:      localOnly(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE endpoints require no write deadline
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	return s
}

// ListenAndServe starts the server and blocks until it is shut down.
func (s *Server) ListenAndServe() error {
	s.log.Info("listening", "addr", s.cfg.Addr)
	s.httpSrv.Addr = s.cfg.Addr
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	defer s.cancel()
	return s.httpSrv.Shutdown(ctx)
}

// localOnly rejects requests whose Origin is neither empty nor a loopback
// host — this is a read-only query surface meant for a local UI, not a
// public API.
func localOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			u, err := url.Parse(origin)
			if err != nil {
				writeError(w, http.StatusForbidden, "invalid Origin header")
				return
			}
			host := u.Hostname()
			if host != "localhost" && host != "127.0.0.1" && host != "::1" {
				writeError(w, http.StatusForbidden, "cross-origin request blocked")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
