// Package redis stores gateway orders in Redis, by idempotency key and by
// gateway order id.
package redis

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/artisan-checkout/internal/domain/payment"
)

var (
	_ payment.OrderCache  = (*IdempotencyCache)(nil)
	_ payment.OrderLedger = (*IdempotencyCache)(nil)
)

// LedgerTTL bounds how long a created gateway order can be matched against a
// verification.
const LedgerTTL = 24 * time.Hour

// IdempotencyCache implements payment.OrderCache on Redis with a fixed TTL,
// and payment.OrderLedger with LedgerTTL.
type IdempotencyCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewIdempotencyCache creates a cache whose entries expire after ttl. A
// non-positive ttl defaults to 15 minutes.
func NewIdempotencyCache(client redis.UniversalClient, ttl time.Duration) *IdempotencyCache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &IdempotencyCache{client: client, ttl: ttl}
}

// Get returns the cached gateway order, or nil, nil on a miss.
func (c *IdempotencyCache) Get(ctx context.Context, userID, key string) (*payment.GatewayOrder, error) {
	data, err := c.client.Get(ctx, cacheKey(userID, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "redis get")
	}

	o, err := decodeOrder(data)
	if err != nil {
		return nil, errors.Wrap(err, "decode cached order")
	}
	return o, nil
}

// Put stores o under the user's idempotency key.
func (c *IdempotencyCache) Put(ctx context.Context, userID, key string, o *payment.GatewayOrder) error {
	if err := c.client.Set(ctx, cacheKey(userID, key), encodeOrder(o), c.ttl).Err(); err != nil {
		return errors.Wrap(err, "redis set")
	}
	return nil
}

// Record stores o under its gateway order id.
func (c *IdempotencyCache) Record(ctx context.Context, o *payment.GatewayOrder) error {
	if err := c.client.Set(ctx, ledgerKey(o.ID), encodeOrder(o), LedgerTTL).Err(); err != nil {
		return errors.Wrap(err, "redis set")
	}
	return nil
}

// Lookup returns the recorded gateway order, or nil, nil if there is none.
func (c *IdempotencyCache) Lookup(ctx context.Context, gatewayOrderID string) (*payment.GatewayOrder, error) {
	data, err := c.client.Get(ctx, ledgerKey(gatewayOrderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "redis get")
	}

	o, err := decodeOrder(data)
	if err != nil {
		return nil, errors.Wrap(err, "decode recorded order")
	}
	return o, nil
}

// Ping checks the Redis connection.
func (c *IdempotencyCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func cacheKey(userID, key string) string {
	return "idempotency:gateway-order:" + userID + ":" + key
}

func ledgerKey(gatewayOrderID string) string {
	return "ledger:gateway-order:" + gatewayOrderID
}

func encodeOrder(o *payment.GatewayOrder) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("amount")
	e.Int64(o.Amount)
	e.FieldStart("currency")
	e.Str(o.Currency)
	e.ObjEnd()
	return e.Bytes()
}

func decodeOrder(data []byte) (*payment.GatewayOrder, error) {
	var o payment.GatewayOrder
	if err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			o.ID, err = d.Str()
		case "amount":
			o.Amount, err = d.Int64()
		case "currency":
			o.Currency, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		return nil, err
	}
	if o.ID == "" {
		return nil, errors.New("cached order has no id")
	}
	return &o, nil
}
