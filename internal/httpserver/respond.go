package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/preflight/governor/internal/apperr"
)

// Respond writes a JSON response with the given status code.
func Respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

// ErrorBody is the error envelope shape used across the API surface:
// {code, message, details}.
type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// RespondError writes a JSON error response using the generic
// {code, message} shape, for call sites that haven't been routed
// through apperr yet.
func RespondError(w http.ResponseWriter, status int, code string, message string) {
	Respond(w, status, ErrorBody{Code: code, Message: message})
}

// RespondAppErr writes err using its own Kind-derived status code and
// the standard error envelope, including structured details when set.
func RespondAppErr(w http.ResponseWriter, err *apperr.Error) {
	Respond(w, err.StatusCode(), ErrorBody{
		Code:    err.Code,
		Message: err.Message,
		Details: err.Details,
	})
}
