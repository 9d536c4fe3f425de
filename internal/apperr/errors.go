// Package apperr holds the typed rejections returned by the order lifecycle.
// Every rejection carries a stable Kind that callers (and the HTTP layer)
// switch on, plus a human readable message.
package apperr

import "errors"

// Kind is the stable identifier of a rejection.
type Kind string

const (
	KindUnauthenticated         Kind = "unauthenticated"
	KindForbidden               Kind = "forbidden"
	KindNotFound                Kind = "not_found"
	KindInvalidOrderInput       Kind = "invalid_order_input"
	KindInvalidRequest          Kind = "invalid_request"
	KindAlreadyPlaced           Kind = "already_placed"
	KindAlreadyCancelled        Kind = "already_cancelled"
	KindPaymentMethodRequired   Kind = "payment_method_required"
	KindPaymentMethodNotFound   Kind = "payment_method_not_found"
	KindPaymentMethodIneligible Kind = "payment_method_ineligible"
)

// Error is a typed rejection.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Message
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrForbidden)
// holds regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// New returns a rejection of kind with msg.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Sentinels for errors.Is comparisons.
var (
	ErrUnauthenticated         = New(KindUnauthenticated, "authentication required")
	ErrForbidden               = New(KindForbidden, "forbidden")
	ErrNotFound                = New(KindNotFound, "not found")
	ErrInvalidOrderInput       = New(KindInvalidOrderInput, "invalid order input")
	ErrInvalidRequest          = New(KindInvalidRequest, "invalid request")
	ErrAlreadyPlaced           = New(KindAlreadyPlaced, "order already placed")
	ErrAlreadyCancelled        = New(KindAlreadyCancelled, "order already cancelled")
	ErrPaymentMethodRequired   = New(KindPaymentMethodRequired, "payment method id is required")
	ErrPaymentMethodNotFound   = New(KindPaymentMethodNotFound, "payment method not found")
	ErrPaymentMethodIneligible = New(KindPaymentMethodIneligible, "payment method not eligible for this order")
)

// KindOf returns the kind of the first *Error in err's chain, or "" when
// err is not a typed rejection.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
