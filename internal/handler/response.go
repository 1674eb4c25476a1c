package handler

// RESPONSE HELPERS:
// These functions standardise how we send JSON responses and errors.
//
//   writeJSON(w, http.StatusOK, data)
//   writeError(w, err)
//
// CONSISTENT ERROR FORMAT:
// Every error response from the API has the same shape:
//   {"error": "not_found", "message": "project not found with id abc123"}
//
// Validation errors add the offending field, and an unreadable stored GitHub
// token adds "reauthenticate": true so the frontend can send the user back
// through the GitHub login.

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/sakif/opensource-hub/internal/apperror"
	"github.com/sakif/opensource-hub/internal/service"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error          string `json:"error"`
	Message        string `json:"message"`
	Field          string `json:"field,omitempty"`
	Reauthenticate bool   `json:"reauthenticate,omitempty"`
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// Headers and status must be set BEFORE the body is written. Once Encode
// writes, later header changes are silently ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// errorStatus maps an error kind to its HTTP status and machine-readable
// error code. This is the only place kinds become statuses.
func errorStatus(err error, appErr *apperror.AppError) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrRejected):
		return http.StatusBadRequest, appErr.Code
	case errors.Is(err, apperror.ErrUpstream):
		return http.StatusBadRequest, "upstream_error"
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, apperror.ErrCorruptedCredential):
		return http.StatusInternalServerError, "corrupted_credential"
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeError maps a domain error to the appropriate HTTP status and sends it.
//
// errors.As walks the wrap chain, so a service returning
// fmt.Errorf("listing projects: %w", apperror.NotFound(...)) still maps to 404.
//
// Unknown errors become a generic 500. NEVER expose internal error details:
// the raw message might contain SQL or file paths.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		logger.Error("unhandled error", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred",
		})
		return
	}

	status, code := errorStatus(err, appErr)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", slog.String("kind", code), slog.String("error", err.Error()))
	}

	writeJSON(w, status, ErrorResponse{
		Error:          code,
		Message:        appErr.Message,
		Field:          appErr.Field,
		Reauthenticate: errors.Is(err, apperror.ErrCorruptedCredential),
	})
}

// decodeJSON reads a JSON body into dst. Unknown fields are rejected so a
// misspelt key is a 400 rather than a silent no-op.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperror.ValidationFailed("body", fmt.Sprintf("invalid JSON body: %v", err))
	}
	return nil
}

// pageQuery reads ?page and ?limit. Absent values are left zero for the
// service defaults.
func pageQuery(r *http.Request) (service.PageQuery, error) {
	var q service.PageQuery
	var err error
	if q.Page, err = intParam(r, "page"); err != nil {
		return q, err
	}
	if q.Limit, err = intParam(r, "limit"); err != nil {
		return q, err
	}
	return q, nil
}

func intParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, apperror.ValidationFailed(name, name+" must be a positive integer")
	}
	return n, nil
}

// idList parses a comma-separated list of numeric ids such as "1,11,2".
func idList(raw, field string) ([]int64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, apperror.ValidationFailed(field, field+" must be a comma-separated list of ids")
		}
		ids = append(ids, id)
	}
	return ids, nil
}
