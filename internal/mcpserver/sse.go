package mcpserver

import (
	"io"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/tmaxmax/go-sse"

	"github.com/vitalink/vitalink/internal/logging"
)

// SSEServer serves the protocol over a push stream: clients GET the events
// endpoint, learn their session-scoped submission URL from the first
// "endpoint" event, POST requests there, and receive responses as "message"
// events on the stream.
type SSEServer struct {
	server *Server

	mu       sync.Mutex
	sessions map[string]chan []byte
}

// NewSSE wraps a server for push-stream serving.
func NewSSE(server *Server) *SSEServer {
	return &SSEServer{
		server:   server,
		sessions: make(map[string]chan []byte),
	}
}

// Routes mounts the events and message endpoints on a fresh mux.
func (s *SSEServer) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", s.handleEvents)
	mux.HandleFunc("/message", s.handleMessage)
	return mux
}

// handleEvents upgrades the connection, announces the paired submission URL,
// and forwards responses until the client goes away.
func (s *SSEServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	sess, err := sse.Upgrade(w, r)
	if err != nil {
		http.Error(w, "upgrade failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	id := uuid.NewString()
	responses := make(chan []byte, 8)

	s.mu.Lock()
	s.sessions[id] = responses
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.sessions, id)
		s.mu.Unlock()
	}()

	// The submission URL is relative; clients resolve it against the
	// events URL they connected to.
	endpoint := sse.Message{Type: sse.Type("endpoint")}
	endpoint.AppendData("/message?sessionId=" + id)
	if err := sess.Send(&endpoint); err != nil {
		return
	}
	if err := sess.Flush(); err != nil {
		return
	}

	logging.LogEvent("sse session %s connected", id)
	for {
		select {
		case <-r.Context().Done():
			logging.LogEvent("sse session %s disconnected", id)
			return
		case payload := <-responses:
			msg := sse.Message{Type: sse.Type("message")}
			msg.AppendData(string(payload))
			if err := sess.Send(&msg); err != nil {
				return
			}
			if err := sess.Flush(); err != nil {
				return
			}
		}
	}
}

// handleMessage accepts one JSON-RPC request for an open session. The
// response, if any, goes back over that session's event stream, not this
// HTTP exchange.
func (s *SSEServer) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("sessionId")
	s.mu.Lock()
	responses, known := s.sessions[id]
	s.mu.Unlock()
	if !known {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if out := s.server.HandleRaw(r.Context(), body); out != nil {
		responses <- out
	}
	w.WriteHeader(http.StatusAccepted)
}
