package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	. "github.com/pith-agent/pith/internal/logging"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSessionNew(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sessionID, err := s.runner.NewSession(r.Context())
	if err != nil {
		L_error("http: session/new failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"session_id": sessionID})
}

func (s *Server) handleSessionCompact(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		SessionID string `json:"session_id"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	msg, err := s.runner.CompactSession(r.Context(), req.SessionID, 50)
	if err != nil {
		L_error("http: session/compact failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": msg})
}

func (s *Server) handleSessionInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sessionID := r.URL.Query().Get("session_id")
	info, err := s.runner.SessionInfo(r.Context(), sessionID)
	if err != nil {
		L_error("http: session/info failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleSecretProvide(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		RequestID string `json:"request_id"`
		Value     string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if err := s.runner.ProvideSecret(req.RequestID, req.Value); err != nil {
		L_warn("http: secret/provide failed", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// sseFrame is one `event: <name>\ndata: <json>\n\n` frame.
type sseFrame struct {
	event string
	data  any
}

// sseBridge implements runtime.ChatBridge by pushing frames onto a bounded
// channel that handleChat drains and writes to the response.
type sseBridge struct {
	frames chan sseFrame
}

func newSSEBridge() *sseBridge {
	return &sseBridge{frames: make(chan sseFrame, 64)}
}

func (b *sseBridge) emit(event string, data any) {
	select {
	case b.frames <- sseFrame{event: event, data: data}:
	default:
		L_warn("http: SSE buffer full, dropping frame", "event", event)
	}
}

func (b *sseBridge) OnText(delta string) {
	b.emit("text", map[string]string{"delta": delta})
}

func (b *sseBridge) OnToolCall(name string, args json.RawMessage) {
	b.emit("tool", map[string]any{"name": name, "args": args})
}

func (b *sseBridge) OnToolResult(name string, success bool) {
	b.emit("tool_result", map[string]any{"name": name, "success": success})
}

func (b *sseBridge) OnSecretRequest(requestID, name string) {
	b.emit("secret_request", map[string]string{"request_id": requestID, "name": name})
}

func (b *sseBridge) close() {
	close(b.frames)
}

// handleChat drives Runtime.Chat and bridges its streaming callbacks to
// Server-Sent Events frames through a bounded in-process queue. End of
// stream is signaled by the bridge channel closing.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Message   string `json:"message"`
		SessionID string `json:"session_id"`
		Channel   string `json:"channel"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		http.Error(w, "invalid request: message is required", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	bridge := newSSEBridge()
	var finalText string
	var chatErr error

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go func() {
		defer bridge.close()
		finalText, chatErr = s.runner.Chat(ctx, req.SessionID, req.Channel, req.Message, bridge)
	}()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			L_trace("http: chat stream client disconnected")
			cancel()
			return

		case frame, ok := <-bridge.frames:
			if !ok {
				// bridge.close() only runs after Chat has returned and set
				// finalText/chatErr, so this is the sole authoritative end
				// of stream: every buffered frame has been drained above.
				if chatErr != nil {
					writeSSE(w, "error", map[string]string{"message": chatErr.Error()})
				} else {
					writeSSE(w, "done", map[string]string{"text": finalText})
				}
				flusher.Flush()
				return
			}
			writeSSE(w, frame.event, frame.data)
			flusher.Flush()

		case <-ticker.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		L_error("http: failed to marshal SSE frame", "event", event, "error", err)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
