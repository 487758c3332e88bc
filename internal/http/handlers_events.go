package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"pennylogs/internal/core"
	applog "pennylogs/internal/log"
)

// handleEvents streams the user's expense list as server-sent events. The
// first event carries the current list; every write produces another.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request, user core.User) {
	ctx := r.Context()
	logger := applog.FromContext(ctx)

	rc := http.NewResponseController(w)
	snapshots, unsubscribe, err := s.b.Store.Subscribe(ctx, user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer unsubscribe()

	// The stream is long-lived; lift the server's write timeout.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		logger.WarnContext(ctx, "Failed to clear write deadline", "error", err)
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		logger.ErrorContext(ctx, "Streaming unsupported", "error", err)
		return
	}

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	logger.InfoContext(ctx, "Event stream opened")
	defer logger.InfoContext(ctx, "Event stream closed")

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			data, err := json.Marshal(snap)
			if err != nil {
				logger.ErrorContext(ctx, "Failed to encode snapshot", "error", err)
				return
			}
			if _, err := fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", data); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
