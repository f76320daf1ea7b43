// Package handlers implements the HTTP API of the redirect compiler.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"edge-redirector/internal/common/logging"
	"edge-redirector/internal/compiler"
	"edge-redirector/internal/config"
	"edge-redirector/internal/fastly"
	"edge-redirector/internal/storage"
)

// Publisher pushes compiled snippets to a Fastly service.
type Publisher interface {
	Publish(ctx context.Context, serviceID, key string, artifacts compiler.Artifacts) (*fastly.PublishResult, error)
}

// HealthChecker is a dependency reported by the health endpoint.
type HealthChecker interface {
	Health(ctx context.Context) error
}

type Handlers struct {
	publisher Publisher
	history   storage.HistoryStore
	config    *config.Config
	checks    map[string]HealthChecker
	now       func() time.Time
	logger    logging.Logger
}

func New(publisher Publisher, history storage.HistoryStore, cfg *config.Config) *Handlers {
	if history == nil {
		history = storage.NopHistoryStore{}
	}
	return &Handlers{
		publisher: publisher,
		history:   history,
		config:    cfg,
		checks:    map[string]HealthChecker{"history": history},
		now:       time.Now,
		logger:    logging.GetGlobalLogger().WithFields(logging.String("component", "handlers")),
	}
}

// AddHealthCheck registers a dependency for the health endpoint.
func (h *Handlers) AddHealthCheck(name string, check HealthChecker) {
	h.checks[name] = check
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, detail string) {
	writeJSON(w, status, errorBody{Msg: msg, Detail: detail})
}

func writeText(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(text))
}

// NotFound answers every unknown route.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "Bad request", "Route not found")
}
