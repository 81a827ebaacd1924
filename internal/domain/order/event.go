package order

import (
	"context"
	"time"
)

// EventType names an order lifecycle event.
type EventType string

const (
	EventPaid      EventType = "order.paid"
	EventCancelled EventType = "order.cancelled"
)

// Event is published after an order change has been stored.
type Event struct {
	Type       EventType
	Order      *Order
	OccurredAt time.Time
}

// Publisher delivers order events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
