package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/aretw0/redline/pkg/domain"
)

// Error codes carried in ErrorResponse.Code.
const (
	CodeBadRequest      = "bad_request"
	CodeUnauthenticated = "unauthenticated"
	CodeNotFound        = "not_found"
	CodeConflict        = "conflict"
	CodeValidation      = "validation"
	CodeInternal        = "internal"
)

// conflictErrors are validation errors that describe a state clash rather
// than a malformed request, so they map to 409.
var conflictErrors = []error{
	domain.ErrWorkflowActive,
	domain.ErrWorkflowSuperseded,
	domain.ErrConflictResolved,
	domain.ErrContention,
	domain.ErrDocumentExists,
}

// statusFor maps an engine error to an HTTP status and code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized, CodeUnauthenticated
	case domain.IsNotFound(err):
		return http.StatusNotFound, CodeNotFound
	}
	for _, target := range conflictErrors {
		if errors.Is(err, target) {
			return http.StatusConflict, CodeConflict
		}
	}
	if domain.IsValidation(err) || errors.Is(err, domain.ErrStaleAnchor) {
		return http.StatusUnprocessableEntity, CodeValidation
	}
	return http.StatusInternalServerError, CodeInternal
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = "internal error"
	} else {
		s.logger.Debug("Request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, ErrorResponse{Error: msg, Code: code})
}

func (s *Server) badRequest(w http.ResponseWriter, r *http.Request, msg string, err error) {
	s.logger.Warn("Invalid request", "method", r.Method, "path", r.URL.Path, "error", err)
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: msg, Code: CodeBadRequest})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Response encode failed", "error", err)
	}
}
