package web

// errors.go maps run errors to JSON responses.
//
// The technical error is logged with the request id; the client gets a
// status code, a stable error code and a suggested action.

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/JonMunkholm/fileimport/internal/core"
	"github.com/JonMunkholm/fileimport/internal/importer"
	"github.com/JonMunkholm/fileimport/internal/jobdef"
	"github.com/JonMunkholm/fileimport/internal/logging"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// classify returns the status, code and action for err.
func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, jobdef.ErrUnknownJob):
		return http.StatusNotFound, "job.unknown", "List the jobs with GET /api/jobs."
	case errors.Is(err, jobdef.ErrDirOutsideJob):
		return http.StatusBadRequest, "run.dir.outside", "Pass a directory below the job's directory."
	case errors.Is(err, importer.ErrTooManyRuns):
		return http.StatusServiceUnavailable, "run.busy", "Retry once a running job has finished."
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "run.cancelled", "Retry the run."
	case core.IsConfigError(err):
		return http.StatusUnprocessableEntity, core.ErrorCode(err), "Fix the job definition and restart."
	}
	if code := core.ErrorCode(err); code != "" {
		return http.StatusInternalServerError, code, ""
	}
	return http.StatusInternalServerError, "internal", ""
}

// respondError logs err and writes it as a JSON error response.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, action := classify(err)

	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", code,
	)

	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "The run could not be started."
	}
	writeJSON(w, status, ErrorResponse{
		Error:   msg,
		Message: msg,
		Action:  action,
		Code:    code,
	})
}
