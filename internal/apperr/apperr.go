// Package apperr defines the error taxonomy shared by every operation:
// a stable machine-readable kind and code, a human-readable message, and
// optional details the caller can use to self-correct.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation and HTTP mapping.
type Kind string

const (
	KindValidation  Kind = "validation_error"
	KindNotFound    Kind = "not_found"
	KindConflict    Kind = "state_conflict"
	KindUnavailable Kind = "unavailable"
	KindInternal    Kind = "internal"
)

// Stable error codes.
const (
	CodeEmptyCart              = "EMPTY_CART"
	CodeItemNotFound           = "ITEM_NOT_FOUND"
	CodeOrderNotFound          = "ORDER_NOT_FOUND"
	CodePaymentNotFound        = "PAYMENT_NOT_FOUND"
	CodeInsufficientStock      = "INSUFFICIENT_STOCK"
	CodeInvalidShippingAddress = "INVALID_SHIPPING_ADDRESS"
	CodeInvalidPaymentMethod   = "INVALID_PAYMENT_METHOD"
	CodeInvalidPaymentStatus   = "INVALID_PAYMENT_STATUS"
	CodeInvalidState           = "INVALID_STATE"
	CodeInvalidTransition      = "INVALID_TRANSITION"
	CodeRefundExceedsPayment   = "REFUND_EXCEEDS_PAYMENT"
	CodeCheckoutInProgress     = "CHECKOUT_IN_PROGRESS"
	CodeStorageUnavailable     = "STORAGE_UNAVAILABLE"
	CodeInternal               = "INTERNAL"
)

// Error is the structured error returned by services.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]interface{}
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetails attaches caller-facing detail fields.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	e.Details = details
	return e
}

func newError(kind Kind, code, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

func Validation(code, format string, args ...interface{}) *Error {
	return newError(KindValidation, code, format, args...)
}

func NotFound(code, format string, args ...interface{}) *Error {
	return newError(KindNotFound, code, format, args...)
}

func Conflict(code, format string, args ...interface{}) *Error {
	return newError(KindConflict, code, format, args...)
}

func Unavailable(err error, format string, args ...interface{}) *Error {
	e := newError(KindUnavailable, CodeStorageUnavailable, format, args...)
	e.Err = err
	return e
}

func Internal(err error, format string, args ...interface{}) *Error {
	e := newError(KindInternal, CodeInternal, format, args...)
	e.Err = err
	return e
}

// KindOf extracts the kind of err, defaulting to KindInternal for errors that
// did not originate in this taxonomy.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// As unwraps err into an *Error, or wraps it as Internal.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err, "unexpected error")
}
