// Package http exposes the ledger services as a JSON API.
//
// This file builds the uniform Result envelope every endpoint returns:
// {"success":true,"data":...} or {"success":false,"error":"..."}.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"fintrix/internal/core"
	applog "fintrix/internal/log"
)

const msgRetry = "The operation could not be completed, please try again"

// Result is the response envelope.
type Result struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ResponseBuilder provides a fluent API for writing a Result.
type ResponseBuilder struct {
	statusCode int
	headers    map[string]string
	result     Result
}

// NewResponse creates a successful 200 response.
func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
		result:     Result{Success: true},
	}
}

// Status sets the HTTP status code for the response.
func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

// Data sets the success payload.
func (b *ResponseBuilder) Data(data any) *ResponseBuilder {
	b.result.Data = data
	return b
}

// Fail turns the response into a failure carrying message.
func (b *ResponseBuilder) Fail(message string) *ResponseBuilder {
	b.result = Result{Success: false, Error: message}
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	if err := json.NewEncoder(w).Encode(b.result); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// OK writes data with 200.
func OK(w http.ResponseWriter, data any) {
	NewResponse().Data(data).Write(w)
}

// Created writes data with 201.
func Created(w http.ResponseWriter, data any) {
	NewResponse().Status(http.StatusCreated).Data(data).Write(w)
}

// ErrorResponse creates a failed response with the given status.
func ErrorResponse(statusCode int, message string) *ResponseBuilder {
	return NewResponse().Status(statusCode).Fail(message)
}

// BadRequestError creates a 400 response for bodies that cannot be decoded.
func BadRequestError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

// UnauthorizedError creates a 401 response.
func UnauthorizedError() *ResponseBuilder {
	return ErrorResponse(http.StatusUnauthorized, "Unauthorized")
}

// MethodNotAllowedError creates a 405 response.
func MethodNotAllowedError(allowedMethods string) *ResponseBuilder {
	return ErrorResponse(http.StatusMethodNotAllowed, "Method not allowed").Header("Allow", allowedMethods)
}

// FromError maps a service error onto a response. Validation messages are
// shown to the caller; storage failures are logged and reported as a
// retryable 503 without internals.
func FromError(ctx context.Context, err error) *ResponseBuilder {
	var ve *core.ValidationError
	switch {
	case errors.As(err, &ve):
		return ErrorResponse(http.StatusUnprocessableEntity, ve.Error())
	case errors.Is(err, core.ErrValidation):
		return ErrorResponse(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, core.ErrUnauthorized):
		return UnauthorizedError()
	case errors.Is(err, core.ErrNotFound):
		return ErrorResponse(http.StatusNotFound, "Not found")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrorResponse(http.StatusServiceUnavailable, msgRetry)
	case errors.Is(err, core.ErrConsistency):
		applog.LogFailure(ctx, "Ledger operation failed", err, applog.ComponentLedger, applog.ErrorTypeConsistency)
		return ErrorResponse(http.StatusServiceUnavailable, msgRetry)
	default:
		applog.LogFailure(ctx, "Unhandled error", err, applog.ComponentHTTP, applog.ErrorTypeInternal)
		return ErrorResponse(http.StatusInternalServerError, "Internal error")
	}
}

// WriteError maps err and writes it.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	FromError(r.Context(), err).Write(w)
}
