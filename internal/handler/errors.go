package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/artisan-checkout/internal/domain/auth"
	"github.com/xenking/artisan-checkout/internal/domain/order"
	"github.com/xenking/artisan-checkout/internal/domain/payment"
	"github.com/xenking/artisan-checkout/pkg/httpmiddleware"
)

// Codes for failures outside the payment taxonomy.
const (
	CodeInvalidRequest         = "invalid_request"
	CodeInvalidAmount          = "invalid_amount"
	CodeUnauthorized           = "unauthorized"
	CodeForbidden              = "forbidden"
	CodeNotFound               = "not_found"
	CodeIllegalTransition      = "illegal_transition"
	CodeStatusChanged          = "status_changed"
	CodePaymentAlreadyRecorded = "payment_already_recorded"
	CodeInternal               = "internal"
)

var (
	errInvalidRequest = errors.New("invalid request")
	errForbidden      = errors.New("userId does not match the session")
)

type requestError struct {
	err error
}

func (e *requestError) Error() string { return "invalid request: " + e.err.Error() }

func (e *requestError) Is(target error) bool { return target == errInvalidRequest }

func (e *requestError) Unwrap() error { return e.err }

func badRequest(err error) error {
	return &requestError{err: err}
}

// Persistence failures carry payment identifiers the client must not see.
const persistenceMessage = "payment received but the order could not be recorded, please contact support"

type errorMapping struct {
	target error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{errInvalidRequest, http.StatusBadRequest, CodeInvalidRequest},
	{payment.ErrMissingPaymentField, http.StatusBadRequest, payment.CodeMissingPaymentField},
	{payment.ErrInvalidAmount, http.StatusBadRequest, CodeInvalidAmount},
	{payment.ErrSignatureMismatch, http.StatusUnauthorized, payment.CodeSignatureMismatch},
	{payment.ErrAmountMismatch, http.StatusBadRequest, payment.CodeAmountMismatch},
	{payment.ErrGatewayOrderCreationFailed, http.StatusBadGateway, payment.CodeGatewayOrderCreationFailed},
	{payment.ErrOrderPersistenceFailed, http.StatusInternalServerError, payment.CodeOrderPersistenceFailed},
	{payment.ErrPaymentAlreadyRecorded, http.StatusConflict, CodePaymentAlreadyRecorded},
	{auth.ErrUnauthenticated, http.StatusUnauthorized, CodeUnauthorized},
	{errForbidden, http.StatusForbidden, CodeForbidden},
	{order.ErrNotFound, http.StatusNotFound, CodeNotFound},
	{order.ErrIllegalTransition, http.StatusConflict, CodeIllegalTransition},
	{order.ErrStatusChanged, http.StatusConflict, CodeStatusChanged},
}

// statusOf returns the HTTP status and wire code for err.
func statusOf(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, CodeInternal
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusOf(err)
	msg := err.Error()
	switch code {
	case payment.CodeOrderPersistenceFailed:
		msg = persistenceMessage
	case CodeInternal:
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		msg = "internal server error"
	}
	httpmiddleware.WriteError(w, status, code, msg)
}
