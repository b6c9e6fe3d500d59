package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Events handles GET /runs/{id}/events, streaming run progress as
// server-sent events until the run finishes or the client disconnects.
func (h *RunHandler) Events(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")

	progress := h.svc.GetProgress(runID)
	if progress == nil {
		// Not active anymore: report the terminal state and end the stream.
		run, err := h.svc.GetRun(r.Context(), runID)
		if err != nil {
			respondDomainError(w, err)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			respondError(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}
		setSSEHeaders(w)
		writeSSE(w, map[string]any{
			"type":       "status",
			"run_id":     run.ID,
			"status":     run.Status,
			"best_score": run.BestScore,
		})
		flusher.Flush()
		return
	}
	defer h.svc.UnsubscribeProgress(runID, progress)

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	setSSEHeaders(w)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, open := <-progress:
			if !open {
				return
			}
			writeSSE(w, event)
			flusher.Flush()
		}
	}
}

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
}

func writeSSE(w http.ResponseWriter, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}
