// Package http exposes the ledger engine as a JSON API.
//
// This file implements the builder used by every handler to write JSON
// responses and maps engine errors onto status codes.

package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"ledger/internal/core"
	"ledger/internal/log"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Bytes encodes the body. A nil body encodes to nothing.
func (b *JSONResponseBuilder) Bytes() ([]byte, error) {
	if b.body == nil {
		return nil, nil
	}
	return json.Marshal(b.body)
}

// Write sends the built response.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	body, err := b.Bytes()
	if err != nil {
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if body != nil {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(b.statusCode)
	if body != nil {
		_, _ = w.Write(body)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// ErrorResponse creates an error response carrying message.
func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(statusCode).Body(errorBody{Error: message})
}

// statusFor maps the engine's error families onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs err and writes its mapped response. Internal details
// of unexpected errors are not sent to the client.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	logger := log.FromContext(r.Context())

	resp := ErrorResponse(status, err.Error())
	switch status {
	case http.StatusServiceUnavailable:
		logger.WarnContext(r.Context(), "Storage unavailable", log.FieldOperation, op, log.FieldError, err)
		resp = ErrorResponse(status, "storage temporarily unavailable").Header("Retry-After", "1")
	case http.StatusInternalServerError:
		log.NewStructuredLogger(logger).LogError(r.Context(), "Request failed", err, op, nil)
		resp = ErrorResponse(status, "internal error")
	default:
		logger.DebugContext(r.Context(), "Request rejected", log.FieldOperation, op, log.FieldError, err)
	}
	resp.Write(w)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	NewJSONResponse().Status(status).Body(v).Write(w)
}
