package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/WilsonWong800686/yys-autommation/internal/fleet"
	"github.com/WilsonWong800686/yys-autommation/internal/framestore"
	"github.com/WilsonWong800686/yys-autommation/internal/history"
)

// Error codes carried in error bodies.
const (
	ErrCodeBadRequest  = "bad_request"
	ErrCodeNotFound    = "not_found"
	ErrCodeUnavailable = "unavailable"
	ErrCodeInternal    = "internal_error"
)

// errorBody is the envelope of every error response:
//
//	{"error": {"code": "not_found", "message": "session not found"}}
type errorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failed request.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// domainErrors maps package sentinel errors to HTTP responses. The first
// match wins.
var domainErrors = []struct {
	target  error
	status  int
	code    string
	message string
}{
	{fleet.ErrInvalidCommand, http.StatusBadRequest, ErrCodeBadRequest, ""},
	{fleet.ErrQueueFull, http.StatusServiceUnavailable, ErrCodeUnavailable, "command queue full, retry shortly"},
	{history.ErrSessionNotFound, http.StatusNotFound, ErrCodeNotFound, "session not found"},
	{framestore.ErrNotFound, http.StatusNotFound, ErrCodeNotFound, "no frame captured yet"},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // client may have gone away
		json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: ErrorDetail{Code: code, Message: message}})
}

// writeDomainError answers with the response mapped to err. Unmapped
// errors are logged and become a 500 with the fallback message.
func (s *Server) writeDomainError(w http.ResponseWriter, err error, fallback string) {
	for _, de := range domainErrors {
		if errors.Is(err, de.target) {
			msg := de.message
			if msg == "" {
				msg = err.Error()
			}
			writeError(w, de.status, de.code, msg)
			return
		}
	}
	s.logger.Error(fallback, "error", err)
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, fallback)
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeUnavailable(w http.ResponseWriter, message string) {
	writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}
