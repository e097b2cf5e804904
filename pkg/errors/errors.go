package errors

import (
	stderrors "errors"
	"net/http"

	"directstock/internal/domain"
)

// Stable error codes returned to clients
const (
	CodeValidation          = "validation_error"
	CodeNotFound            = "not_found"
	CodeInsufficientStock   = "insufficient_stock"
	CodeSerialStateConflict = "serial_state_conflict"
	CodeInvalidState        = "invalid_state"
	CodeRecountRequired     = "recount_required"
	CodeConflict            = "conflict"
	CodeUnauthorized        = "unauthorized"
	CodeInternal            = "internal_error"
)

// StandardError represents a standardized error response
type StandardError struct {
	Code    string         `json:"code"`              // Stable error code (e.g., "insufficient_stock")
	Message string         `json:"message"`           // Human-readable error message
	Details map[string]any `json:"details,omitempty"` // Offending ids, quantities, serials
}

// Error implements the error interface
func (e *StandardError) Error() string {
	return e.Message
}

// HTTPStatus returns the appropriate HTTP status code for the error
func (e *StandardError) HTTPStatus() int {
	switch e.Code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInsufficientStock, CodeSerialStateConflict, CodeInvalidState, CodeRecountRequired, CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// NewStandardError creates a new StandardError
func NewStandardError(code, message string, details map[string]any) *StandardError {
	return &StandardError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// Common error constructors
func NewValidationError(message, field string) *StandardError {
	return NewStandardError(CodeValidation, message, map[string]any{"field": field})
}

func NewInvalidRequest(message string, err error) *StandardError {
	var details map[string]any
	if err != nil {
		details = map[string]any{"reason": err.Error()}
	}
	return NewStandardError(CodeValidation, message, details)
}

func NewUnauthorized(message string) *StandardError {
	return NewStandardError(CodeUnauthorized, message, nil)
}

func NewInternalError(message string) *StandardError {
	return NewStandardError(CodeInternal, message, nil)
}

var kindCodes = map[domain.ErrorKind]string{
	domain.KindValidation:        CodeValidation,
	domain.KindNotFound:          CodeNotFound,
	domain.KindInsufficientStock: CodeInsufficientStock,
	domain.KindSerialConflict:    CodeSerialStateConflict,
	domain.KindInvalidState:      CodeInvalidState,
	domain.KindRecountRequired:   CodeRecountRequired,
	domain.KindConflict:          CodeConflict,
}

// FromError classifies err into a StandardError. Infrastructure failures become an
// opaque internal error; their text never reaches the client.
func FromError(err error) *StandardError {
	var std *StandardError
	if stderrors.As(err, &std) {
		return std
	}
	var de *domain.DomainError
	if stderrors.As(err, &de) {
		if code, ok := kindCodes[de.Kind]; ok {
			return NewStandardError(code, de.Message, de.Details)
		}
	}
	return NewInternalError("internal server error")
}
