package ticket_api

import (
	"fmt"
	"net/http"
	"time"
)

const keepAliveInterval = 25 * time.Second

// StreamTicketChanges pushes a payload-less tickets_changed event whenever
// the ticket table changes; clients re-fetch the list.
func (h *Handler) StreamTicketChanges(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	// the server's write timeout would cut long-lived streams
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	setupSSEHeaders(w)

	changed := make(chan struct{}, 1)
	sub := h.Changes.Subscribe(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer sub.Unsubscribe()

	fmt.Fprint(w, "event: connected\ndata: {\"status\":\"connected\"}\n\n")
	flusher.Flush()
	h.Logger.Debug("SSE", "Dashboard client connected")

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-changed:
			fmt.Fprint(w, "event: tickets_changed\ndata: {}\n\n")
			flusher.Flush()
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case <-ctx.Done():
			h.Logger.Debug("SSE", "Dashboard client disconnected")
			return
		}
	}
}

func setupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
