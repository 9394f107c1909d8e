package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hugo-lorenzo-mato/bsqa/internal/events"
)

// streamedTypes are forwarded to SSE clients.
var streamedTypes = []string{
	events.TypeConfigChanged,
	events.TypeConfigCleared,
	events.TypeJiraSessionChanged,
	events.TypeDirtyChanged,
}

// handleSSE streams settings events so every open page learns when the
// stored settings change. With ?session=<id> the stream is tailored to that
// page: its own writes are left out (it already has them) and only its own
// dirty-state changes are included.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	if s.eventBus == nil {
		respondError(w, http.StatusServiceUnavailable, "event bus not available")
		return
	}

	ctx := r.Context()
	sessionID := r.URL.Query().Get("session")
	eventCh := s.eventBus.Subscribe(streamedTypes...)
	defer s.eventBus.Unsubscribe(eventCh)

	s.logger.Info("SSE client connected", "remote_addr", r.RemoteAddr, "session_id", sessionID)

	s.sendSSEEvent(w, flusher, "", "connected", map[string]string{
		"status": "connected",
		"marker": s.settings.ChangeMarker(ctx),
	})

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("SSE client disconnected", "remote_addr", r.RemoteAddr)
			return

		case <-heartbeat.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()

		case event, ok := <-eventCh:
			if !ok {
				s.logger.Info("EventBus closed, ending SSE stream")
				return
			}
			if !forSession(event, sessionID) {
				continue
			}
			s.sendSSEEvent(w, flusher, event.EventID(), event.EventType(), event)
		}
	}
}

// forSession reports whether event belongs on the stream of sessionID.
func forSession(event events.Event, sessionID string) bool {
	if sessionID == "" {
		return true
	}
	if event.EventType() == events.TypeDirtyChanged {
		return event.SessionID() == sessionID
	}
	return event.SessionID() != sessionID
}

// sendSSEEvent writes an event to the SSE stream.
func (s *Server) sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, id, eventType string, data interface{}) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("failed to marshal SSE data", "error", err)
		return
	}

	if id != "" {
		fmt.Fprintf(w, "id: %s\n", id)
	}
	fmt.Fprintf(w, "event: %s\n", eventType)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()
}
