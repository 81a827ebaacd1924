package checkout

import (
	"context"
	"fmt"
)

// WidgetOptions seed the embedded checkout UI with a gateway order.
type WidgetOptions struct {
	// Key is the gateway's public key id.
	Key string
	// Amount is in minor currency units.
	Amount      int64
	OrderID     string
	Currency    string
	Name        string
	Description string
}

// WidgetStatus is the result reported by the checkout UI.
type WidgetStatus string

const (
	WidgetSuccess   WidgetStatus = "success"
	WidgetFailed    WidgetStatus = "failed"
	WidgetCancelled WidgetStatus = "cancelled"
)

// WidgetEvent is the single message the checkout UI sends back. PaymentID,
// OrderID and Signature are set on success, ErrorDescription on failure.
type WidgetEvent struct {
	Status           WidgetStatus
	PaymentID        string
	OrderID          string
	Signature        string
	ErrorDescription string
}

// Widget presents the embedded checkout UI. Present blocks until the UI
// reports exactly one event or ctx is done. The event is a claim, not proof of
// payment.
type Widget interface {
	Present(ctx context.Context, opts WidgetOptions) (WidgetEvent, error)
}

// PaymentFailedError carries the gateway's description of a payment the user
// could not complete.
type PaymentFailedError struct {
	Description string
}

func (e *PaymentFailedError) Error() string {
	if e.Description == "" {
		return "payment failed"
	}
	return fmt.Sprintf("payment failed: %s", e.Description)
}
