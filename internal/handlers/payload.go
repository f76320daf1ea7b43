package handlers

import (
	stderrors "errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"edge-redirector/internal/rules"
)

var errPayloadTooLarge = stderrors.New("payload too large")

// payloadFormat picks the rules format from the format query parameter, falling
// back to the Content-Type header.
func payloadFormat(r *http.Request) (string, error) {
	if f := strings.TrimSpace(r.URL.Query().Get("format")); f != "" {
		return strings.ToLower(f), nil
	}

	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return "", fmt.Errorf("format query parameter or Content-Type header is required")
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return "", fmt.Errorf("invalid Content-Type %q", ct)
	}

	switch mediaType {
	case "application/json":
		return rules.FormatJSON, nil
	case "text/csv", "application/csv":
		return rules.FormatCSV, nil
	default:
		return "", fmt.Errorf("unsupported Content-Type %q", mediaType)
	}
}

func (h *Handlers) readPayload(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	limit := h.config.MaxPayloadBytes
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var maxErr *http.MaxBytesError
		if stderrors.As(err, &maxErr) {
			return nil, errPayloadTooLarge
		}
		return nil, err
	}
	return body, nil
}

// readRules reads and parses the request body, writing the error response itself
// when it fails.
func (h *Handlers) readRules(w http.ResponseWriter, r *http.Request) (string, []byte, bool) {
	format, err := payloadFormat(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Bad request", err.Error())
		return "", nil, false
	}

	body, err := h.readPayload(w, r)
	if err != nil {
		if stderrors.Is(err, errPayloadTooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Payload too large",
				fmt.Sprintf("rules payload exceeds %d bytes", h.config.MaxPayloadBytes))
			return "", nil, false
		}
		writeError(w, http.StatusBadRequest, "Bad request", "failed to read request body")
		return "", nil, false
	}

	return format, body, true
}
