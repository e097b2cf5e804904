package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrorKind classifies a domain error for the transport layer
type ErrorKind string

const (
	KindValidation        ErrorKind = "validation"
	KindNotFound          ErrorKind = "not_found"
	KindInsufficientStock ErrorKind = "insufficient_stock"
	KindSerialConflict    ErrorKind = "serial_conflict"
	KindInvalidState      ErrorKind = "invalid_state"
	KindRecountRequired   ErrorKind = "recount_required"
	KindConflict          ErrorKind = "conflict"
)

// DomainError represents a domain-level error
type DomainError struct {
	Kind    ErrorKind
	Message string
	Details map[string]any
}

func (e *DomainError) Error() string {
	return e.Message
}

// Is matches any DomainError of the same kind, so errors.Is(err, ErrInsufficientStock) works
// for every insufficient-stock error regardless of its details.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Details == nil
}

// Domain errors
var (
	ErrValidation        = &DomainError{Kind: KindValidation, Message: "validation failed"}
	ErrNotFound          = &DomainError{Kind: KindNotFound, Message: "resource not found"}
	ErrInsufficientStock = &DomainError{Kind: KindInsufficientStock, Message: "insufficient stock available"}
	ErrSerialConflict    = &DomainError{Kind: KindSerialConflict, Message: "serial number state conflict"}
	ErrInvalidState      = &DomainError{Kind: KindInvalidState, Message: "invalid document state"}
	ErrRecountRequired   = &DomainError{Kind: KindRecountRequired, Message: "recount required"}
	ErrConflict          = &DomainError{Kind: KindConflict, Message: "conflict"}
)

// KindOf returns the kind of a domain error, or "" for anything else.
func KindOf(err error) ErrorKind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

func NewValidationError(message string, details map[string]any) *DomainError {
	return &DomainError{Kind: KindValidation, Message: message, Details: details}
}

func NewFieldError(field, message string) *DomainError {
	return NewValidationError(message, map[string]any{"field": field})
}

func NewNotFound(entity, id string) *DomainError {
	return &DomainError{
		Kind:    KindNotFound,
		Message: fmt.Sprintf("%s not found", entity),
		Details: map[string]any{"entity": entity, "id": id},
	}
}

func NewInsufficientStock(productID, binID string, available, requested decimal.Decimal) *DomainError {
	return &DomainError{
		Kind:    KindInsufficientStock,
		Message: "insufficient stock available",
		Details: map[string]any{
			"product_id": productID,
			"bin_id":     binID,
			"available":  available.String(),
			"requested":  requested.String(),
		},
	}
}

func NewInsufficientLotStock(productID, binID, batchNumber string, available, requested decimal.Decimal) *DomainError {
	err := NewInsufficientStock(productID, binID, available, requested)
	err.Message = "insufficient batch stock available"
	if batchNumber != "" {
		err.Details["batch_number"] = batchNumber
	}
	return err
}

func NewSerialConflict(serialNumber, reason string, details map[string]any) *DomainError {
	d := map[string]any{"serial_number": serialNumber, "reason": reason}
	for k, v := range details {
		d[k] = v
	}
	return &DomainError{
		Kind:    KindSerialConflict,
		Message: fmt.Sprintf("serial number %s: %s", serialNumber, reason),
		Details: d,
	}
}

func NewInvalidState(entity, id string, status DocumentStatus, action string) *DomainError {
	return &DomainError{
		Kind:    KindInvalidState,
		Message: fmt.Sprintf("cannot %s %s in status %s", action, entity, status),
		Details: map[string]any{"entity": entity, "id": id, "status": string(status), "action": action},
	}
}

func NewRecountRequired(sessionID string, itemIDs []string) *DomainError {
	return &DomainError{
		Kind:    KindRecountRequired,
		Message: "inventory count has items awaiting recount",
		Details: map[string]any{"session_id": sessionID, "item_ids": itemIDs},
	}
}

func NewConflict(message string, details map[string]any) *DomainError {
	return &DomainError{Kind: KindConflict, Message: message, Details: details}
}

func NewUncountedItems(sessionID string, itemIDs []string) *DomainError {
	return &DomainError{
		Kind:    KindInvalidState,
		Message: "inventory count has uncounted items",
		Details: map[string]any{"session_id": sessionID, "item_ids": itemIDs},
	}
}
