package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies domain failures independently of the aggregate that raised them.
type ErrorKind string

const (
	// KindValidation marks empty or malformed input.
	KindValidation ErrorKind = "validation"
	// KindInsufficientStock marks a request exceeding available stock.
	KindInsufficientStock ErrorKind = "insufficient_stock"
	// KindInvalidStatusTransition marks a transition missing from an aggregate's table.
	KindInvalidStatusTransition ErrorKind = "invalid_status_transition"
	// KindNotFound marks a missing product, cart line, cart or order.
	KindNotFound ErrorKind = "not_found"
)

// ErrorCode refines an ErrorKind.
type ErrorCode string

const (
	CodeEmptyValue            ErrorCode = "empty_value"
	CodeInvalidValue          ErrorCode = "invalid_value"
	CodeInvalidPrice          ErrorCode = "invalid_price"
	CodeInvalidTaxRate        ErrorCode = "invalid_tax_rate"
	CodeInvalidStock          ErrorCode = "invalid_stock"
	CodeInvalidQuantity       ErrorCode = "invalid_quantity"
	CodeInvalidOrderStatus    ErrorCode = "invalid_order_status"
	CodeInvalidPaymentStatus  ErrorCode = "invalid_payment_status"
	CodeInvalidShipmentStatus ErrorCode = "invalid_shipment_status"
)

// Error is the single error type returned by entity constructors and mutators.
type Error struct {
	Kind    ErrorKind
	Code    ErrorCode
	Field   string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	label := string(e.Kind)
	if e.Code != "" {
		label = string(e.Code)
	}
	msg := e.Message
	if msg == "" {
		msg = label
	}
	if e.Field != "" {
		msg = fmt.Sprintf("%s: %s", e.Field, msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %v", msg, label, e.Err)
	}
	return fmt.Sprintf("%s (%s)", msg, label)
}

// Unwrap exposes the wrapped cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches on kind, and on code when the target carries one.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	var t *Error
	if !errors.As(target, &t) || t == nil {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

var (
	ErrValidation              = &Error{Kind: KindValidation}
	ErrEmptyValue              = &Error{Kind: KindValidation, Code: CodeEmptyValue}
	ErrInvalidValue            = &Error{Kind: KindValidation, Code: CodeInvalidValue}
	ErrInvalidPrice            = &Error{Kind: KindValidation, Code: CodeInvalidPrice}
	ErrInvalidTaxRate          = &Error{Kind: KindValidation, Code: CodeInvalidTaxRate}
	ErrInvalidStock            = &Error{Kind: KindValidation, Code: CodeInvalidStock}
	ErrInvalidQuantity         = &Error{Kind: KindValidation, Code: CodeInvalidQuantity}
	ErrInsufficientStock       = &Error{Kind: KindInsufficientStock}
	ErrInvalidStatusTransition = &Error{Kind: KindInvalidStatusTransition}
	ErrInvalidOrderStatus      = &Error{Kind: KindInvalidStatusTransition, Code: CodeInvalidOrderStatus}
	ErrInvalidPaymentStatus    = &Error{Kind: KindInvalidStatusTransition, Code: CodeInvalidPaymentStatus}
	ErrInvalidShipmentStatus   = &Error{Kind: KindInvalidStatusTransition, Code: CodeInvalidShipmentStatus}
	ErrNotFound                = &Error{Kind: KindNotFound}
)

func validationError(code ErrorCode, field, message string) *Error {
	return &Error{Kind: KindValidation, Code: code, Field: field, Message: message}
}

func transitionError(code ErrorCode, from, to string) *Error {
	return &Error{
		Kind:    KindInvalidStatusTransition,
		Code:    code,
		Field:   "status",
		Message: fmt.Sprintf("cannot transition from %q to %q", from, to),
	}
}

// NewInsufficientStockError reports that productID cannot supply requested units.
func NewInsufficientStockError(productID string, requested, available int) *Error {
	return &Error{
		Kind:    KindInsufficientStock,
		Field:   productID,
		Message: fmt.Sprintf("requested %d but only %d in stock", requested, available),
	}
}

// NewNotFoundError reports a missing entity of the given kind.
func NewNotFoundError(entity, id string) *Error {
	return &Error{
		Kind:    KindNotFound,
		Field:   entity,
		Message: fmt.Sprintf("%s %q not found", entity, id),
	}
}
