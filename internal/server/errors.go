package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ivlev/democlip/internal/effects"
	"github.com/ivlev/democlip/internal/model"
)

// Code is the machine-readable error class of an API response.
type Code string

const (
	CodeBadRequest       Code = "BAD_REQUEST"
	CodeInvalidOperation Code = "INVALID_OPERATION"
	CodeNotFound         Code = "NOT_FOUND"
	CodeConflict         Code = "CONFLICT"
	CodeUnavailable      Code = "UNAVAILABLE"
	CodeInternal         Code = "INTERNAL"
)

// APIError is the JSON body of every failed request.
type APIError struct {
	Code      Code   `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

func (e *APIError) Error() string { return string(e.Code) + ": " + e.Message }

func newError(code Code, message string) *APIError {
	return &APIError{Code: code, Message: message}
}

func statusFor(code Code) int {
	switch code {
	case CodeBadRequest, CodeInvalidOperation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// classify maps domain errors onto API errors. Unknown errors are internal.
func classify(err error) *APIError {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, model.ErrRunNotFound), errors.Is(err, model.ErrVersionNotFound):
		return newError(CodeNotFound, err.Error())
	case errors.Is(err, model.ErrInvalidOperation), errors.Is(err, effects.ErrEmptyKeepRange):
		return newError(CodeInvalidOperation, err.Error())
	case errors.Is(err, model.ErrRunExists),
		errors.Is(err, model.ErrVersionConflict),
		errors.Is(err, model.ErrTerminal),
		errors.Is(err, model.ErrInvalidTransition):
		return newError(CodeConflict, err.Error())
	}
	return newError(CodeInternal, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
