package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"edge-redirector/internal/storage"
)

const maxHistoryLimit = 500

// History lists the most recent publishes of one service, newest first.
func (h *Handlers) History(w http.ResponseWriter, r *http.Request) {
	serviceID := mux.Vars(r)["serviceId"]

	limit := h.config.HistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "Bad request", "limit must be a positive integer")
			return
		}
		limit = n
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	records, err := h.history.List(r.Context(), serviceID, limit)
	if err != nil {
		h.logger.WithContext(r.Context()).Error("Failed to list publish history", err)
		writeError(w, http.StatusInternalServerError, "Internal error", "failed to read publish history")
		return
	}
	if records == nil {
		records = []*storage.PublishRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"serviceId": serviceID,
		"records":   records,
	})
}
