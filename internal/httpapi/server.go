// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package httpapi serves the JSON auth protocol over HTTP.
package httpapi

import (
	"context"
	stdtls "crypto/tls"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/dispatch"
)

// maxBodyBytes caps request bodies at 1 MiB.
const maxBodyBytes = 1 << 20

// Dispatcher routes decoded envelopes. *dispatch.Dispatcher satisfies
// it.
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) dispatch.Response
}

// Server serves POST /api/auth.
type Server struct {
	addr       string
	dispatcher Dispatcher
	tlsConfig  *stdtls.Config
	metrics    *Metrics
	logger     *slog.Logger
	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// Options configures optional server behavior.
type Options struct {
	// TLSConfig enables HTTPS when non-nil.
	TLSConfig *stdtls.Config

	// Metrics is optional; nil disables the request histogram.
	Metrics *Metrics

	// Logger is optional; nil discards.
	Logger *slog.Logger
}

// NewServer creates the API server.
func NewServer(addr string, dispatcher Dispatcher, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		addr:       addr,
		dispatcher: dispatcher,
		tlsConfig:  opts.TLSConfig,
		metrics:    opts.Metrics,
		logger:     logger,
	}
}

// Start begins serving. It returns an error channel that receives any
// serve error after startup; the channel closes on graceful shutdown.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("api server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.addr).Wrap(err)
	}
	if s.tlsConfig != nil {
		listener = stdtls.NewListener(listener, s.tlsConfig)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.Handle("/api/auth", s.instrument(http.HandlerFunc(s.handleAuth)))

	httpSrv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("api server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("api server started",
		"addr", listener.Addr().String(),
		"tls", s.tlsConfig != nil,
	)
	return errCh, nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown_api_server").Wrap(err)
		}
	}

	s.logger.Info("api server stopped")
	return nil
}

// Addr returns the listen address, or empty when not running.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// handleAuth decodes one envelope and dispatches it. Protocol-level
// refusals are HTTP 200 with result false; only transport violations
// get non-200 statuses.
func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if ct := r.Header.Get("Content-Type"); !isJSONContentType(ct) {
		writeError(w, http.StatusUnsupportedMediaType, "content type must be application/json")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req dispatch.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	resp := s.dispatcher.Dispatch(r.Context(), req)

	s.logger.Debug("request dispatched",
		"type", req.Type,
		"result", resp.Result,
	)
	writeJSON(w, http.StatusOK, resp)
}

// instrument wraps a handler with request logging and the duration
// histogram.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		if s.metrics != nil {
			s.metrics.RequestDuration.WithLabelValues(r.Method, statusClass(rec.status)).
				Observe(elapsed.Seconds())
		}
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", elapsed.Milliseconds(),
		)
	})
}

// statusRecorder captures the written status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// statusClass buckets a status code as "2xx", "4xx", etc.
func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// isJSONContentType accepts application/json with optional parameters.
func isJSONContentType(ct string) bool {
	mediaType := strings.TrimSpace(strings.Split(ct, ";")[0])
	return strings.EqualFold(mediaType, "application/json")
}

// errorBody is the JSON shape of transport-level errors.
type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
