// Package http provides the JSON API server and handlers.
//
// Every response uses the same envelope: {"success": bool, "data": ...} on
// success, {"success": false, "error": "..."} on failure. Domain errors map
// to HTTP statuses at this boundary and nowhere else.
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"tandem/internal/core"
)

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ResponseBuilder assembles one JSON response. Handlers chain Status/Data/
// Err and finish with Write.
type ResponseBuilder struct {
	statusCode int
	message    string
	data       any
	err        error
	headers    map[string]string
}

// NewResponse creates a builder with default 200 status.
func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

// Message sets a human-readable confirmation alongside the payload.
func (b *ResponseBuilder) Message(msg string) *ResponseBuilder {
	b.message = msg
	return b
}

// Data sets the success payload.
func (b *ResponseBuilder) Data(data any) *ResponseBuilder {
	b.data = data
	return b
}

// Err marks the response failed. The status code is derived from the error
// unless Status was called explicitly.
func (b *ResponseBuilder) Err(err error) *ResponseBuilder {
	b.err = err
	return b
}

// Header sets an additional response header.
func (b *ResponseBuilder) Header(key, value string) *ResponseBuilder {
	b.headers[key] = value
	return b
}

// Write renders the envelope onto w.
func (b *ResponseBuilder) Write(w http.ResponseWriter, r *http.Request) {
	for key, value := range b.headers {
		w.Header().Set(key, value)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	env := envelope{Success: b.err == nil, Message: b.message, Data: b.data}
	status := b.statusCode
	if b.err != nil {
		env.Error = b.err.Error()
		if status == http.StatusOK {
			status = statusFor(b.err)
		}
		if status >= http.StatusInternalServerError {
			// Internal detail stays in the log, not on the wire.
			env.Error = "internal error"
			slog.ErrorContext(r.Context(), "Request failed",
				"method", r.Method, "path", r.URL.Path, "error", b.err)
		}
	}

	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		slog.ErrorContext(r.Context(), "Failed to encode response", "error", err)
	}
}

// statusFor maps domain sentinel errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeData(w http.ResponseWriter, r *http.Request, data any) {
	NewResponse().Data(data).Write(w, r)
}

func writeCreated(w http.ResponseWriter, r *http.Request, data any) {
	NewResponse().Status(http.StatusCreated).Data(data).Write(w, r)
}

func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	NewResponse().Err(err).Write(w, r)
}
