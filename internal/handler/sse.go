package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// sseKeepAlive is how often a comment line is written to hold idle
// connections open through proxies
const sseKeepAlive = 25 * time.Second

// HandleSSE streams a game's fan-out events over Server-Sent Events, for
// clients that cannot hold a WebSocket
func (h *Handler) HandleSSE(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	events, cancel := h.hub.SubscribeStream(gameID)
	defer cancel()

	h.logger.Debug("sse stream opened", "game_id", gameID)

	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.logger.Debug("sse stream closed", "game_id", gameID)
			return

		case data, ok := <-events:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()

		case <-keepAlive.C:
			fmt.Fprintf(w, ": keep-alive\n\n")
			flusher.Flush()
		}
	}
}
