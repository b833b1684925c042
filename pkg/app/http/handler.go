// Package http holds the HTTP plumbing shared by the bridge API: error
// returning handlers, JSON responses and server lifecycle.
package http

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/chainsafe/rwa-bridge/pkg/app/errors"
)

// HandlerFunc is an http handler that reports failures by returning them
type HandlerFunc func(http.ResponseWriter, *http.Request) error

// ErrorResponse is the body of every failed API call
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// HandleError adapts h to http.HandlerFunc, writing returned errors with
// WriteError:
//
//	r.Post("/bridges/{id}/pause", apphttp.HandleError(h.pause))
func HandleError(h HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			WriteError(w, err)
		}
	}
}

// WriteError writes err as an ErrorResponse. Service errors keep their
// status and message; anything else is a 500 with a generic message.
func WriteError(w http.ResponseWriter, err error) {
	var svcErr *apperrors.ServiceError
	if !errors.As(err, &svcErr) {
		WriteJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error: "Unexpected Service Error",
			Code:  http.StatusInternalServerError,
		})
		return
	}
	WriteJSON(w, svcErr.StatusCode(), ErrorResponse{Error: svcErr.Message, Code: svcErr.StatusCode()})
}

// WriteJSON writes v with the given status
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
