package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreateRequest holds a verified purchase ready to be recorded.
type CreateRequest struct {
	UserID      string
	TotalAmount decimal.Decimal
	Gateway     GatewayRef
	Items       []Item
}

// Persister records an order together with its items. Callers observe either
// the order with all of its items or no order at all.
type Persister struct {
	w   Writer
	now func() time.Time
}

// NewPersister creates a Persister writing to w. When w implements Transactor
// both inserts run in one transaction; otherwise a failed item insert is
// compensated by deleting the order row.
func NewPersister(w Writer) *Persister {
	return &Persister{w: w, now: time.Now}
}

// CreateOrder inserts the order with status paid, then its items.
func (p *Persister) CreateOrder(ctx context.Context, req CreateRequest) (*Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	for _, it := range req.Items {
		if it.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: it.ProductID}
		}
	}

	o := &Order{
		ID:          uuid.New().String(),
		UserID:      req.UserID,
		TotalAmount: req.TotalAmount,
		Status:      StatusPaid,
		Gateway:     req.Gateway,
		Items:       req.Items,
		CreatedAt:   p.now().UTC(),
	}

	if tx, ok := p.w.(Transactor); ok {
		if err := tx.InTx(ctx, func(w Writer) error {
			return insert(ctx, w, o)
		}); err != nil {
			return nil, err
		}
		return o, nil
	}

	if err := p.w.InsertOrder(ctx, o); err != nil {
		return nil, errors.Wrap(err, "insert order")
	}
	if err := p.w.InsertItems(ctx, o.ID, o.Items); err != nil {
		// Compensate even if the request context is already done.
		if delErr := p.w.DeleteOrder(context.WithoutCancel(ctx), o.ID); delErr != nil {
			zctx.From(ctx).Error("Compensating order delete failed",
				zap.String("order_id", o.ID),
				zap.Error(delErr),
			)
			return nil, &OrphanedOrderError{OrderID: o.ID, Err: err, CompensateErr: delErr}
		}
		zctx.From(ctx).Warn("Order rolled back after item insert failure",
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
		return nil, errors.Wrap(err, "insert order items")
	}
	return o, nil
}

func insert(ctx context.Context, w Writer, o *Order) error {
	if err := w.InsertOrder(ctx, o); err != nil {
		return errors.Wrap(err, "insert order")
	}
	if err := w.InsertItems(ctx, o.ID, o.Items); err != nil {
		return errors.Wrap(err, "insert order items")
	}
	return nil
}
