package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/longregen/promptc/internal/domain"
)

func respondJSON(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("json encode error", "error", err)
	}
}

func respondError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, map[string]string{"error": message}, status)
}

// respondDomainError maps domain sentinels to HTTP status codes
func respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrRunNotFound), errors.Is(err, domain.ErrProgramNotFound):
		respondError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrEmptyContent), errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrSchema):
		respondError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrAlreadyCompiled):
		respondError(w, err.Error(), http.StatusConflict)
	default:
		respondError(w, err.Error(), http.StatusInternalServerError)
	}
}

func parseIntQuery(r *http.Request, name string, defaultValue int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}
