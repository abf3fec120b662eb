package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"mototumen.org/internal/authz"
	"mototumen.org/internal/events"
	"mototumen.org/internal/moderation"
)

const keepAliveInterval = 25 * time.Second

// Stream pushes moderation events as Server-Sent Events. The queue is shared
// by moderators, so only ceo may subscribe.
func (a *API) Stream(w http.ResponseWriter, r *http.Request) {
	if a.hub == nil {
		writeError(w, r, http.StatusServiceUnavailable, "streaming disabled")
		return
	}
	p := principal(r)
	if p.RoleID() != authz.RoleCEO {
		handleServiceError(w, r, &authz.AuthorizationError{
			Actor:  p.RoleID(),
			Action: "subscribe",
			Target: "moderation events",
			Reason: moderation.ReasonCEOOnly,
		}, nil)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ch := a.hub.Subscribe(ctx)
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	// Send an initial comment to establish the stream
	_, _ = w.Write([]byte(": stream started\n\n"))
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = w.Write([]byte(": keep-alive\n\n"))
			flusher.Flush()
		case evt, ok := <-ch:
			if !ok {
				return
			}
			writeEvent(w, evt)
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, evt events.Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return
	}
	_, _ = w.Write([]byte("event: " + evt.Kind + "\n"))
	_, _ = w.Write([]byte("data: "))
	_, _ = w.Write(payload)
	_, _ = w.Write([]byte("\n\n"))
}
