package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/watchwell/screener/internal/auditlog"
	"github.com/watchwell/screener/internal/index"
)

// Problem represents an RFC 7807 Problem Details response.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
}

// problemTypes maps HTTP status codes to RFC 7807 type URIs and titles.
var problemTypes = map[int]struct {
	typeURI string
	title   string
}{
	http.StatusBadRequest: {
		typeURI: "https://watchwell.dev/errors/bad-request",
		title:   "Bad Request",
	},
	http.StatusForbidden: {
		typeURI: "https://watchwell.dev/errors/forbidden",
		title:   "Forbidden",
	},
	http.StatusNotFound: {
		typeURI: "https://watchwell.dev/errors/not-found",
		title:   "Not Found",
	},
	http.StatusConflict: {
		typeURI: "https://watchwell.dev/errors/conflict",
		title:   "Conflict",
	},
	http.StatusUnprocessableEntity: {
		typeURI: "https://watchwell.dev/errors/validation-error",
		title:   "Validation Error",
	},
}

// WriteProblem writes an RFC 7807 Problem Details response for 4xx statuses.
// Server-side failures carry only a generic error body.
func WriteProblem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	if status >= http.StatusInternalServerError {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(map[string]string{"status": "error"}); err != nil {
			slog.Error("failed to encode error response", "error", err)
		}
		return
	}

	pt, ok := problemTypes[status]
	if !ok {
		pt = struct {
			typeURI string
			title   string
		}{
			typeURI: "https://watchwell.dev/errors/unknown",
			title:   http.StatusText(status),
		}
	}

	p := Problem{
		Type:     pt.typeURI,
		Title:    pt.title,
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(p); err != nil {
		slog.Error("failed to encode problem response", "error", err)
	}
}

// MapError converts domain errors to Problem Details responses. Internal
// error details are never exposed to the client.
func MapError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, index.ErrNotFound):
		WriteProblem(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, index.ErrInvalid):
		WriteProblem(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, index.ErrIndexNotReady):
		WriteProblem(w, r, http.StatusServiceUnavailable, "Index not ready")
	case errors.Is(err, auditlog.ErrLockHeld):
		WriteProblem(w, r, http.StatusConflict, "An update is already running")
	default:
		slog.Error("request failed", "path", r.URL.Path, "error", err)
		WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
	}
}
