package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an Order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether no further transition is allowed out of s.
func (s Status) IsTerminal() bool {
	return s == StatusPaid || s == StatusCancelled
}

// CanTransitionTo reports whether moving from s to next is allowed.
// Only pending orders move: to paid on verification, to cancelled on request.
func (s Status) CanTransitionTo(next Status) bool {
	if s != StatusPending {
		return false
	}
	return next == StatusPaid || next == StatusCancelled
}

func (s Status) String() string {
	return string(s)
}

// Order is one completed purchase attempt.
type Order struct {
	ID          string
	UserID      string
	TotalAmount decimal.Decimal
	Status      Status
	Gateway     GatewayRef
	Items       []Item
	CreatedAt   time.Time
}

// GatewayRef holds the payment gateway identifiers recorded for audit.
type GatewayRef struct {
	OrderID   string
	PaymentID string
	Signature string
}

// Item is one purchased line. UnitPrice is the price the client paid at
// verification time, never re-read from the live product record.
type Item struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal

	// Product is filled on reads from the joined catalog row.
	Product *ProductInfo
}

// ProductInfo is the catalog view of a purchased product.
type ProductInfo struct {
	Name     string
	ImageURL string
}

// LineTotal returns quantity × unit price.
func (i Item) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// ItemsTotal returns the sum of line totals across all items.
func (o *Order) ItemsTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range o.Items {
		sum = sum.Add(it.LineTotal())
	}
	return sum
}

// Writer is the write side of an order store. Each call is an independent
// write; stores that can group writes also implement Transactor.
type Writer interface {
	InsertOrder(ctx context.Context, o *Order) error
	InsertItems(ctx context.Context, orderID string, items []Item) error
	DeleteOrder(ctx context.Context, orderID string) error
}

// Transactor is implemented by stores that expose a real multi-statement
// transaction. fn's writes are committed together or not at all.
type Transactor interface {
	InTx(ctx context.Context, fn func(w Writer) error) error
}

// Reader is the read side of an order store. Lookups return ErrNotFound when
// the order does not exist.
type Reader interface {
	GetByID(ctx context.Context, id string) (*Order, error)
	FindByPaymentID(ctx context.Context, paymentID string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
}

// StatusUpdater changes the status of an order and returns the updated row.
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, id string, from, to Status) (*Order, error)
}

// Repository is the complete order store.
type Repository interface {
	Writer
	Reader
	StatusUpdater
}
