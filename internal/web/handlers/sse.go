package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/kozaktomas/attendance/internal/attendance"
	"github.com/kozaktomas/attendance/internal/constants"
)

func isTerminalEvent(ev attendance.Event) bool {
	return ev.Type == attendance.EventComplete || ev.Type == attendance.EventError
}

// setupSSEConnection sets the event-stream headers. On failure it writes an error
// response and returns false.
func setupSSEConnection(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	return flusher, true
}

// streamSSEEvents sends the current job snapshot as a "status" event, then forwards
// broadcaster events until a run completes or fails, the client disconnects, or the
// broadcaster closes. The listener is registered before the snapshot is taken, and a
// snapshot that is already complete or error ends the stream.
func streamSSEEvents(w http.ResponseWriter, r *http.Request, b *EventBroadcaster, snapshot func() attendance.Snapshot, heartbeat time.Duration) {
	flusher, ok := setupSSEConnection(w)
	if !ok {
		return
	}

	eventCh := b.AddListener()
	defer b.RemoveListener(eventCh)

	initial := snapshot()
	sendSSEEvent(w, flusher, attendance.EventStatus, initial)
	if initial.Status == attendance.StatusComplete || initial.Status == attendance.StatusError {
		return
	}

	if heartbeat <= 0 {
		heartbeat = constants.SSEHeartbeatInterval
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			_, _ = io.WriteString(w, ": keep-alive\n\n")
			flusher.Flush()
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			sendSSEEvent(w, flusher, event.Type, event)
			if isTerminalEvent(event) {
				return
			}
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) {
	jsonData, _ := json.Marshal(data)
	_, _ = io.WriteString(w, "event: "+eventType+"\n")
	_, _ = io.WriteString(w, "data: ")
	_, _ = io.Copy(w, bytes.NewReader(jsonData))
	_, _ = io.WriteString(w, "\n\n")
	flusher.Flush()
}
