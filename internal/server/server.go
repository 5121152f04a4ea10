package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ca-srg/searchagent/internal/metrics"
	"github.com/ca-srg/searchagent/internal/types"
	"github.com/ca-srg/searchagent/internal/websearch"
)

const (
	providerHeader  = "X-Search-Provider"
	ndjsonMediaType = "application/x-ndjson"
	maxRequestBytes = 1 << 20
)

var serverTracer = otel.Tracer("searchagent/server")

type agentService interface {
	ProcessPrompt(ctx context.Context, prompt, providerOverride string) *types.AgentResponse
	ProcessPromptSearchOnly(ctx context.Context, prompt, providerOverride string) *types.SearchResultsResponse
	ProcessPromptStream(ctx context.Context, prompt, providerOverride string) <-chan types.Event
}

type searchRequest struct {
	Prompt string `json:"prompt"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// Server exposes the search agent over HTTP.
type Server struct {
	agent            agentService
	auth             *BearerAuth
	config           *types.Config
	recordInvocation func(metrics.Mode)
	logger           *log.Logger
}

// New creates the HTTP front end. Authentication is disabled in debug mode.
func New(cfg *types.Config, agent agentService) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if agent == nil {
		return nil, fmt.Errorf("agent service cannot be nil")
	}

	logger := log.New(log.Default().Writer(), "server/http ", log.LstdFlags)
	auth := NewBearerAuth(cfg.APIKey, cfg.JWTSecret, logger)
	if cfg.Debug {
		auth = NewBearerAuth("", "", logger)
	}

	return &Server{
		agent:            agent,
		auth:             auth,
		config:           cfg,
		recordInvocation: metrics.RecordInvocation,
		logger:           logger,
	}, nil
}

// Router builds the route tree mounted under the configured API prefix.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Route(apiPrefix(s.config.APIPrefix), func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Group(func(r chi.Router) {
			r.Use(s.auth.Middleware)
			r.Post("/search", s.handleSearch)
			r.Post("/search/stream", s.handleSearchStream)
			r.Post("/search/results", s.handleSearchResults)
		})
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	addr := net.JoinHostPort(s.config.ServerHost, strconv.Itoa(s.config.ServerPort))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.config.ServerReadTimeout,
		WriteTimeout:      s.config.ServerWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("Server: listening addr=%s prefix=%s auth=%t", addr, apiPrefix(s.config.APIPrefix), s.auth.Enabled())
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ServerShutdownTimeout)
	defer cancel()
	s.logger.Printf("Server: shutting down timeout=%s", s.config.ServerShutdownTimeout)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSONStatus(w, map[string]string{"status": "ok"}, http.StatusOK)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeSearchRequest(w, r)
	if !ok {
		return
	}
	ctx, span := s.startSpan(r, "server.search", metrics.ModeBatch)
	defer span.End()

	s.recordInvocation(metrics.ModeBatch)
	resp := s.agent.ProcessPrompt(ctx, req.Prompt, providerOverride(r))
	writeJSONStatus(w, resp, http.StatusOK)
}

func (s *Server) handleSearchResults(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeSearchRequest(w, r)
	if !ok {
		return
	}
	ctx, span := s.startSpan(r, "server.search_results", metrics.ModeSearchOnly)
	defer span.End()

	s.recordInvocation(metrics.ModeSearchOnly)
	resp := s.agent.ProcessPromptSearchOnly(ctx, req.Prompt, providerOverride(r))
	writeJSONStatus(w, resp, http.StatusOK)
}

func (s *Server) handleSearchStream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeSearchRequest(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	ctx, span := s.startSpan(r, "server.search_stream", metrics.ModeStream)
	defer span.End()

	s.recordInvocation(metrics.ModeStream)
	events := s.agent.ProcessPromptStream(ctx, req.Prompt, providerOverride(r))

	w.Header().Set("Content-Type", ndjsonMediaType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sent := writeEventStream(w, flusher, events)
	span.SetAttributes(attribute.Int("server.events_sent", sent))
}

func (s *Server) decodeSearchRequest(w http.ResponseWriter, r *http.Request) (searchRequest, bool) {
	var req searchRequest
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	if err := decoder.Decode(&req); err != nil {
		writeJSONStatus(w, errorResponse{Detail: "invalid request body"}, http.StatusBadRequest)
		return req, false
	}
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" {
		writeJSONStatus(w, errorResponse{Detail: "prompt is required"}, http.StatusBadRequest)
		return req, false
	}
	return req, true
}

func (s *Server) startSpan(r *http.Request, name string, mode metrics.Mode) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("server.mode", string(mode)),
		attribute.String("server.request_id", middleware.GetReqID(r.Context())),
	}
	if subject, ok := SubjectFromContext(r.Context()); ok {
		attrs = append(attrs, attribute.String("server.subject", subject))
	}
	return serverTracer.Start(r.Context(), name, trace.WithAttributes(attrs...))
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Printf("Server: %s %s status=%d duration=%s", r.Method, r.URL.Path, ww.Status(), time.Since(start).Truncate(time.Millisecond))
	})
}

// providerOverride returns the lowercased header value when it names a
// known provider, otherwise "".
func providerOverride(r *http.Request) string {
	name, ok := websearch.ParseProvider(r.Header.Get(providerHeader))
	if !ok {
		return ""
	}
	return string(name)
}

func apiPrefix(prefix string) string {
	prefix = "/" + strings.Trim(strings.TrimSpace(prefix), "/")
	return prefix
}

func writeJSONStatus(w http.ResponseWriter, value any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(value)
}
