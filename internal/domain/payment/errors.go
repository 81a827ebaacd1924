package payment

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Sentinel errors for the payment failure taxonomy. Typed errors below carry
// detail and match their sentinel through errors.Is.
var (
	ErrMissingPaymentField        = errors.New("missing payment information")
	ErrSignatureMismatch          = errors.New("payment verification failed")
	ErrAmountMismatch             = errors.New("payment amount mismatch")
	ErrGatewayOrderCreationFailed = errors.New("failed to create gateway order")
	ErrOrderPersistenceFailed     = errors.New("order persistence failed")
)

// Request errors outside the taxonomy.
var (
	ErrInvalidAmount          = errors.New("amount must be a positive number of minor units")
	ErrPaymentAlreadyRecorded = errors.New("payment already recorded for another user")
)

// Wire codes. They are stable and shared by the server and client library.
const (
	CodeMissingPaymentField        = "missing_payment_field"
	CodeSignatureMismatch          = "signature_mismatch"
	CodeAmountMismatch             = "amount_mismatch"
	CodeGatewayOrderCreationFailed = "gateway_order_creation_failed"
	CodeOrderPersistenceFailed     = "order_persistence_failed"
)

var wireCodes = []struct {
	code string
	err  error
}{
	{CodeMissingPaymentField, ErrMissingPaymentField},
	{CodeSignatureMismatch, ErrSignatureMismatch},
	{CodeAmountMismatch, ErrAmountMismatch},
	{CodeGatewayOrderCreationFailed, ErrGatewayOrderCreationFailed},
	{CodeOrderPersistenceFailed, ErrOrderPersistenceFailed},
}

// Code returns the wire code of the taxonomy kind err belongs to, or "" if err
// is not a payment error.
func Code(err error) string {
	for _, c := range wireCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return ""
}

// FromCode returns the sentinel for a wire code, or nil for unknown codes.
func FromCode(code string) error {
	for _, c := range wireCodes {
		if c.code == code {
			return c.err
		}
	}
	return nil
}

// MissingFieldError names the required field that was absent.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing payment information: %s", e.Field)
}

func (e *MissingFieldError) Is(target error) bool {
	return target == ErrMissingPaymentField
}

// InvalidFieldError reports a payment field that is present but malformed.
type InvalidFieldError struct {
	Field  string
	Reason string
}

func (e *InvalidFieldError) Error() string {
	return fmt.Sprintf("invalid payment information: %s %s", e.Field, e.Reason)
}

func (e *InvalidFieldError) Is(target error) bool {
	return target == ErrMissingPaymentField
}

// AmountMismatchError reports the server-computed and client-claimed totals.
type AmountMismatchError struct {
	Computed decimal.Decimal
	Claimed  decimal.Decimal
}

func (e *AmountMismatchError) Error() string {
	return fmt.Sprintf("payment amount mismatch: computed %s, claimed %s",
		e.Computed.StringFixed(2), e.Claimed.StringFixed(2))
}

func (e *AmountMismatchError) Is(target error) bool {
	return target == ErrAmountMismatch
}

// GatewayError is returned when the payment gateway refuses or fails to create
// an order. Description holds the gateway's own error description when one was
// returned.
type GatewayError struct {
	StatusCode  int
	Description string
	Err         error
}

func (e *GatewayError) Error() string {
	switch {
	case e.Description != "":
		return fmt.Sprintf("failed to create gateway order: %s", e.Description)
	case e.Err != nil:
		return fmt.Sprintf("failed to create gateway order: %v", e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("failed to create gateway order: status %d", e.StatusCode)
	default:
		return ErrGatewayOrderCreationFailed.Error()
	}
}

func (e *GatewayError) Is(target error) bool {
	return target == ErrGatewayOrderCreationFailed
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// PersistenceError wraps a storage failure that happened after the payment was
// verified. The gateway may have captured the money, so the identifiers are
// kept for manual reconciliation.
type PersistenceError struct {
	GatewayOrderID string
	PaymentID      string
	Err            error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("order persistence failed for payment %s: %v", e.PaymentID, e.Err)
}

func (e *PersistenceError) Is(target error) bool {
	return target == ErrOrderPersistenceFailed
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
