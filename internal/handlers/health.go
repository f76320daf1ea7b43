package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"
)

// HealthCheck reports the state of every registered dependency. Any failing
// dependency turns the response into a 503.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	overall := "healthy"
	components := make(map[string]string, len(names))
	for _, name := range names {
		if err := h.checks[name].Health(ctx); err != nil {
			components[name] = err.Error()
			status = http.StatusServiceUnavailable
			overall = "unhealthy"
			continue
		}
		components[name] = "ok"
	}

	writeJSON(w, status, map[string]interface{}{
		"status":     overall,
		"components": components,
		"time":       h.now().UTC().Format(time.RFC3339),
	})
}
