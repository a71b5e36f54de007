// Package http serves pith's local HTTP API: health, session lifecycle,
// and the streaming /chat SSE bridge. Unauthenticated by design — the
// server binds to loopback and is not meant to be exposed.
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	. "github.com/pith-agent/pith/internal/logging"
)

// ChatBridge receives the runtime's streaming chat callbacks; handleChat's
// sseBridge implementation turns each call into an SSE frame.
type ChatBridge interface {
	OnText(delta string)
	OnToolCall(name string, args json.RawMessage)
	OnToolResult(name string, success bool)
	OnSecretRequest(requestID, name string)
}

// ChatRunner is the subset of the runtime the HTTP layer drives.
type ChatRunner interface {
	NewSession(ctx context.Context) (string, error)
	CompactSession(ctx context.Context, sessionID string, keep int) (string, error)
	SessionInfo(ctx context.Context, sessionID string) (map[string]any, error)
	Chat(ctx context.Context, sessionID, channel, message string, bridge ChatBridge) (string, error)
	ProvideSecret(requestID, value string) error
}

// Server is pith's local HTTP+SSE API server.
type Server struct {
	runner ChatRunner
	server *http.Server
	wg     sync.WaitGroup
}

// NewServer builds the server and wires its routes. It does not start
// listening until Start is called.
func NewServer(listen string, runner ChatRunner) *Server {
	s := &Server{runner: runner}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/session/new", s.handleSessionNew)
	mux.HandleFunc("/session/compact", s.handleSessionCompact)
	mux.HandleFunc("/session/info", s.handleSessionInfo)
	mux.HandleFunc("/chat", s.handleChat)
	mux.HandleFunc("/secret/provide", s.handleSecretProvide)

	s.server = &http.Server{
		Addr:         listen,
		Handler:      s.logRequest(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // unbounded: /chat holds the connection open for SSE
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Start begins serving in the background.
func (s *Server) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		L_info("http: server starting", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			L_error("http: server error", "error", err)
		}
	}()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		L_error("http: shutdown error", "error", err)
		return err
	}
	s.wg.Wait()
	L_info("http: server stopped")
	return nil
}

func (s *Server) logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(lw, r)
		L_trace("http: request", "method", r.Method, "path", r.URL.Path, "status", lw.statusCode, "duration", time.Since(start))
	})
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lw *loggingResponseWriter) WriteHeader(code int) {
	lw.statusCode = code
	lw.ResponseWriter.WriteHeader(code)
}

func (lw *loggingResponseWriter) Flush() {
	if f, ok := lw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
