package payment

import "context"

// GatewayOrder is the gateway's reservation for an upcoming payment. Amount is
// in minor currency units.
type GatewayOrder struct {
	ID       string
	Amount   int64
	Currency string
}

// Gateway creates orders with the payment provider using server-held
// credentials. Errors should be *GatewayError.
type Gateway interface {
	CreateOrder(ctx context.Context, amountMinor int64, description string) (*GatewayOrder, error)
}

// OrderCache remembers gateway orders by client idempotency key so a repeated
// checkout request reuses the reservation instead of creating another one.
// Get returns nil, nil on a miss.
type OrderCache interface {
	Get(ctx context.Context, userID, key string) (*GatewayOrder, error)
	Put(ctx context.Context, userID, key string, o *GatewayOrder) error
}

// OrderLedger records the gateway orders this server created so verification
// can hold the claimed total to the amount the customer was asked to pay.
// Lookup returns nil, nil for unknown or expired ids.
type OrderLedger interface {
	Record(ctx context.Context, o *GatewayOrder) error
	Lookup(ctx context.Context, gatewayOrderID string) (*GatewayOrder, error)
}
