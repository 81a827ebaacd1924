package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Sentinel errors for order validation and lookup.
var (
	ErrEmptyItems        = errors.New("items required")
	ErrInvalidQuantity   = errors.New("quantity must be greater than 0")
	ErrNotFound          = errors.New("order not found")
	ErrIllegalTransition = errors.New("illegal order status transition")
	ErrStatusChanged     = errors.New("order status changed concurrently")
	ErrDuplicatePayment  = errors.New("payment already recorded")
)

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

func (e *InvalidQuantityError) Is(target error) bool {
	return target == ErrInvalidQuantity
}

// TransitionError reports a rejected status change.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("order cannot move from %s to %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrIllegalTransition
}

// OrphanedOrderError means item insertion failed and the compensating delete
// of the order row failed too, so an order without items may remain.
type OrphanedOrderError struct {
	OrderID       string
	Err           error
	CompensateErr error
}

func (e *OrphanedOrderError) Error() string {
	return fmt.Sprintf("order %s left without items: %v (compensation: %v)", e.OrderID, e.Err, e.CompensateErr)
}

func (e *OrphanedOrderError) Unwrap() []error {
	return []error{e.Err, e.CompensateErr}
}
