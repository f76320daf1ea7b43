package handlers

import (
	stderrors "errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"edge-redirector/internal/common/errors"
	"edge-redirector/internal/common/logging"
	"edge-redirector/internal/compiler"
	"edge-redirector/internal/fastly"
	"edge-redirector/internal/resolver"
	"edge-redirector/internal/rules"
)

const missingKeyMessage = "`Fastly-Key` header must be specified\n"

// CompileResponse is the body of a compile-only request.
type CompileResponse struct {
	Snippets   []compiler.Snippet `json:"snippets"`
	Duplicates []string           `json:"duplicates"`
	Warnings   []compiler.Warning `json:"warnings"`
}

func newCompileResponse(res *compiler.Result) CompileResponse {
	resp := CompileResponse{
		Snippets:   res.Artifacts.Snippets(),
		Duplicates: res.Duplicates,
		Warnings:   res.Warnings,
	}
	if resp.Duplicates == nil {
		resp.Duplicates = []string{}
	}
	if resp.Warnings == nil {
		resp.Warnings = []compiler.Warning{}
	}
	return resp
}

// compile reads and compiles the request payload. On failure the response has
// already been written.
func (h *Handlers) compile(w http.ResponseWriter, r *http.Request) (*compiler.Result, bool) {
	format, body, ok := h.readRules(w, r)
	if !ok {
		return nil, false
	}

	res, err := compiler.CompilePayload(format, body)
	if err != nil {
		if rules.IsMalformedInput(err) {
			writeError(w, http.StatusBadRequest, "Bad request", err.Error())
			return nil, false
		}
		h.logger.WithContext(r.Context()).Error("Compile failed", err)
		writeError(w, http.StatusInternalServerError, "Internal error", "compile failed")
		return nil, false
	}
	return res, true
}

// Compile returns the snippets for a rule set without publishing them.
func (h *Handlers) Compile(w http.ResponseWriter, r *http.Request) {
	res, ok := h.compile(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newCompileResponse(res))
}

// Publish compiles a rule set and pushes it to the Fastly service in the path.
// The response body is the compile report.
func (h *Handlers) Publish(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(r.Header.Get(fastly.KeyHeader))
	if key == "" {
		writeText(w, http.StatusUnauthorized, missingKeyMessage)
		return
	}

	serviceID := mux.Vars(r)["serviceId"]
	ctx := logging.ContextWith(r.Context(), logging.ServiceIDKey, serviceID)
	logger := h.logger.WithContext(ctx)

	res, ok := h.compile(w, r)
	if !ok {
		return
	}

	result, err := h.publisher.Publish(ctx, serviceID, key, res.Artifacts)
	if err != nil {
		h.writePublishError(w, err)
		return
	}

	logger.Info("Rules published",
		logging.Int("version", result.Version),
		logging.Int("duplicates", len(res.Duplicates)),
		logging.Int("warnings", len(res.Warnings)),
	)

	writeText(w, http.StatusOK, res.Report())
}

func (h *Handlers) writePublishError(w http.ResponseWriter, err error) {
	var pubErr *fastly.PublishError
	if !stderrors.As(err, &pubErr) {
		writeError(w, http.StatusInternalServerError, "Internal error", err.Error())
		return
	}

	status := http.StatusBadGateway
	if pubErr.Step == fastly.StepLock && errors.IsType(err, errors.ErrTypeTimeout) {
		status = http.StatusConflict
	}
	writeJSON(w, status, struct {
		errorBody
		Step    string `json:"step"`
		Version int    `json:"version,omitempty"`
	}{
		errorBody: errorBody{Msg: "Publish failed", Detail: err.Error()},
		Step:      pubErr.Step,
		Version:   pubErr.Version,
	})
}

// Resolve compiles a rule set and reports what the edge would do for one URL.
// The url query parameter is required; cookie and at (unix seconds) are optional.
func (h *Handlers) Resolve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("url") == "" {
		writeError(w, http.StatusBadRequest, "Bad request", "url query parameter is required")
		return
	}

	now := h.now()
	if at := q.Get("at"); at != "" {
		sec, err := strconv.ParseInt(at, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Bad request", "at must be a unix timestamp")
			return
		}
		now = time.Unix(sec, 0)
	}

	req, err := resolver.NewRequest(q.Get("url"), now)
	if err == nil {
		req, err = req.WithCookieHeader(q.Get("cookie"))
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "Bad request", err.Error())
		return
	}

	res, ok := h.compile(w, r)
	if !ok {
		return
	}

	rv, err := resolver.New(res)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Unprocessable rules", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, rv.Resolve(req))
}
