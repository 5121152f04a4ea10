package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ca-srg/searchagent/internal/types"
)

const (
	implementationName    = "searchagent-mcp-server"
	implementationVersion = "1.0.0"
)

// ServerWrapper hosts the search agent tools on an MCP SDK server.
type ServerWrapper struct {
	sdkServer  *mcp.Server
	httpServer *http.Server

	configAdapter *ConfigAdapter
	sdkConfig     *SDKServerConfig
	tools         []ToolEntry

	logger       *log.Logger
	shutdownChan chan struct{}
	wg           sync.WaitGroup
	mutex        sync.RWMutex
	isRunning    bool
}

// NewServerWrapper creates the MCP server and registers the agent tools.
func NewServerWrapper(config *types.Config, agent agentService) (*ServerWrapper, error) {
	if config == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	if agent == nil {
		return nil, fmt.Errorf("agent service cannot be nil")
	}

	configAdapter := NewConfigAdapter(config)
	sdkConfig, err := configAdapter.ToSDKConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to convert configuration: %w", err)
	}

	wrapper := &ServerWrapper{
		configAdapter: configAdapter,
		sdkConfig:     sdkConfig,
		logger:        log.New(log.Default().Writer(), "mcpserver/server ", log.LstdFlags),
		shutdownChan:  make(chan struct{}),
	}

	wrapper.sdkServer = mcp.NewServer(&mcp.Implementation{
		Name:    implementationName,
		Version: implementationVersion,
	}, nil)

	for _, entry := range NewWebSearchHandler(agent).Tools() {
		wrapper.RegisterTool(entry)
	}

	wrapper.logger.Printf("ServerWrapper: initialized tools=%d address=%s", len(wrapper.tools), configAdapter.GetServerAddress())
	return wrapper, nil
}

// RegisterTool adds a tool to the SDK server.
func (sw *ServerWrapper) RegisterTool(entry ToolEntry) {
	sw.mutex.Lock()
	defer sw.mutex.Unlock()

	sw.sdkServer.AddTool(entry.Tool, entry.Handler)
	sw.tools = append(sw.tools, entry)
	sw.logger.Printf("ServerWrapper: registered tool=%s", entry.Tool.Name)
}

// Handler returns the HTTP handler tree: streamable HTTP on /, streamable
// or SSE on /mcp, and /health.
func (sw *ServerWrapper) Handler() http.Handler {
	getServer := func(*http.Request) *mcp.Server { return sw.sdkServer }

	mux := http.NewServeMux()
	mux.Handle("/", mcp.NewStreamableHTTPHandler(getServer, nil))
	mux.Handle("/mcp", NewDualTransportHandler(getServer))
	mux.HandleFunc("/health", sw.handleHealthCheck)

	return sw.loggingMiddleware(mux)
}

// Start begins serving in the background.
func (sw *ServerWrapper) Start() error {
	sw.mutex.Lock()
	defer sw.mutex.Unlock()

	if sw.isRunning {
		return fmt.Errorf("server is already running")
	}

	listener, err := net.Listen("tcp", sw.configAdapter.GetServerAddress())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", sw.configAdapter.GetServerAddress(), err)
	}

	sw.httpServer = &http.Server{
		Handler:        sw.Handler(),
		ReadTimeout:    sw.sdkConfig.ReadTimeout,
		WriteTimeout:   sw.sdkConfig.WriteTimeout,
		IdleTimeout:    sw.sdkConfig.IdleTimeout,
		MaxHeaderBytes: sw.sdkConfig.MaxHeaderBytes,
	}

	sw.wg.Add(1)
	go func() {
		defer sw.wg.Done()
		if err := sw.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sw.logger.Printf("ServerWrapper: http server error: %v", err)
		}
	}()

	sw.isRunning = true
	sw.logger.Printf("ServerWrapper: listening address=%s", listener.Addr())
	return nil
}

// Stop shuts the HTTP server down gracefully, forcing close on timeout.
func (sw *ServerWrapper) Stop() error {
	sw.mutex.Lock()
	defer sw.mutex.Unlock()

	if !sw.isRunning {
		return fmt.Errorf("server is not running")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), sw.sdkConfig.ShutdownTimeout)
	defer cancel()
	if err := sw.httpServer.Shutdown(shutdownCtx); err != nil {
		sw.logger.Printf("ServerWrapper: graceful shutdown failed: %v, forcing close", err)
		if err := sw.httpServer.Close(); err != nil {
			sw.logger.Printf("ServerWrapper: failed to close http server: %v", err)
		}
	}

	close(sw.shutdownChan)
	sw.wg.Wait()
	sw.isRunning = false
	sw.logger.Printf("ServerWrapper: stopped")
	return nil
}

// IsRunning reports whether Start has been called without Stop.
func (sw *ServerWrapper) IsRunning() bool {
	sw.mutex.RLock()
	defer sw.mutex.RUnlock()
	return sw.isRunning
}

// WaitForShutdown blocks until Stop completes.
func (sw *ServerWrapper) WaitForShutdown() {
	<-sw.shutdownChan
}

// GetSDKServer returns the underlying SDK server instance.
func (sw *ServerWrapper) GetSDKServer() *mcp.Server {
	return sw.sdkServer
}

// ToolNames lists the registered tools in registration order.
func (sw *ServerWrapper) ToolNames() []string {
	sw.mutex.RLock()
	defer sw.mutex.RUnlock()

	names := make([]string, 0, len(sw.tools))
	for _, entry := range sw.tools {
		names = append(names, entry.Tool.Name)
	}
	return names
}

// GetServerAddress returns the configured listen address.
func (sw *ServerWrapper) GetServerAddress() string {
	return sw.configAdapter.GetServerAddress()
}

func (sw *ServerWrapper) handleHealthCheck(w http.ResponseWriter, _ *http.Request) {
	status := map[string]any{
		"status":           "ok",
		"server":           implementationName,
		"version":          implementationVersion,
		"running":          sw.IsRunning(),
		"tools":            sw.ToolNames(),
		"default_provider": sw.sdkConfig.DefaultProvider,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(status); err != nil {
		sw.logger.Printf("ServerWrapper: failed to write health response: %v", err)
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int64
}

func newLoggingResponseWriter(w http.ResponseWriter) *loggingResponseWriter {
	return &loggingResponseWriter{ResponseWriter: w, status: http.StatusOK}
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += int64(n)
	return n, err
}

// Flush keeps streaming transports working through the wrapper.
func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (lrw *loggingResponseWriter) Unwrap() http.ResponseWriter {
	return lrw.ResponseWriter
}

func (sw *ServerWrapper) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := extractClientIP(r)
		lrw := newLoggingResponseWriter(w)
		next.ServeHTTP(lrw, r.WithContext(withClientIP(r.Context(), clientIP)))

		sw.logger.Printf(
			"Request: %s %s status=%d bytes=%d duration=%s client_ip=%s user_agent=%q",
			r.Method,
			r.URL.Path,
			lrw.status,
			lrw.size,
			time.Since(start),
			clientIP,
			r.Header.Get("User-Agent"),
		)
	})
}

func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if candidate := strings.TrimSpace(strings.Split(xff, ",")[0]); candidate != "" {
			return candidate
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
