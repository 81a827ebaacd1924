package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Service exposes order reads and the cancel operation to authenticated users.
type Service struct {
	orders Repository
	events Publisher
	now    func() time.Time
}

// NewService creates an order Service. A nil publisher drops events.
func NewService(orders Repository, events Publisher) *Service {
	if events == nil {
		events = NopPublisher{}
	}
	return &Service{
		orders: orders,
		events: events,
		now:    time.Now,
	}
}

// Get returns the order with its items. Orders owned by other users are
// reported as ErrNotFound.
func (s *Service) Get(ctx context.Context, userID, id string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrNotFound
	}
	return o, nil
}

// List returns the user's orders, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]Order, error) {
	orders, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

// Cancel moves a pending order to cancelled. Cancelling an already cancelled
// order returns it unchanged; any other status is rejected with a
// *TransitionError.
func (s *Service) Cancel(ctx context.Context, userID, id string) (*Order, error) {
	o, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if o.Status == StatusCancelled {
		return o, nil
	}
	if !o.Status.CanTransitionTo(StatusCancelled) {
		return nil, &TransitionError{From: o.Status, To: StatusCancelled}
	}

	updated, err := s.orders.UpdateStatus(ctx, id, o.Status, StatusCancelled)
	if err != nil {
		return nil, errors.Wrap(err, "update order status")
	}

	if err := s.events.Publish(ctx, Event{Type: EventCancelled, Order: updated, OccurredAt: s.now()}); err != nil {
		zctx.From(ctx).Warn("Publish order event failed",
			zap.String("event", string(EventCancelled)),
			zap.String("order_id", updated.ID),
			zap.Error(err),
		)
	}
	return updated, nil
}
