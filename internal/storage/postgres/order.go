package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/artisan-checkout/internal/domain/order"
)

const (
	insertOrderSQL = `INSERT INTO orders
	(id, user_id, total_amount, status, razorpay_order_id, razorpay_payment_id, razorpay_signature, created_at)
	VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8)`

	insertItemSQL = `INSERT INTO order_items
	(order_id, product_id, quantity, price_at_purchase, total_price)
	VALUES ($1, $2, $3, $4, $5)`

	deleteOrderSQL = `DELETE FROM orders WHERE id = $1`

	selectOrderSQL = `SELECT id, user_id, total_amount, status, razorpay_order_id,
	COALESCE(razorpay_payment_id, ''), razorpay_signature, created_at FROM orders`

	selectItemsSQL = `SELECT oi.order_id, oi.product_id, oi.quantity, oi.price_at_purchase, p.name, p.image_url
	FROM order_items oi JOIN products p ON p.id = oi.product_id
	WHERE oi.order_id = ANY($1) ORDER BY oi.id`

	updateStatusSQL = `UPDATE orders SET status = $3 WHERE id = $1 AND status = $2`

	paymentIDConstraint = "orders_razorpay_payment_id_key"
)

var (
	_ order.Repository = (*OrderRepository)(nil)
	_ order.Transactor = (*OrderRepository)(nil)
)

// OrderRepository implements order.Repository backed by PostgreSQL. Order and
// item inserts made through InTx share one transaction.
type OrderRepository struct {
	writer
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{writer: writer{db: pool}, pool: pool}
}

// InTx runs fn inside a transaction, committing only when fn returns nil.
func (r *OrderRepository) InTx(ctx context.Context, fn func(w order.Writer) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(writer{db: tx})
	})
}

type writer struct {
	db dbtx
}

func (w writer) InsertOrder(ctx context.Context, o *order.Order) error {
	_, err := w.db.Exec(ctx, insertOrderSQL,
		o.ID, o.UserID, o.TotalAmount, string(o.Status),
		o.Gateway.OrderID, o.Gateway.PaymentID, o.Gateway.Signature, o.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, paymentIDConstraint) {
			return order.ErrDuplicatePayment
		}
		return errors.Wrapf(err, "insert order %q", o.ID)
	}
	return nil
}

func (w writer) InsertItems(ctx context.Context, orderID string, items []order.Item) error {
	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(insertItemSQL, orderID, it.ProductID, it.Quantity, it.UnitPrice, it.LineTotal())
	}
	if err := w.db.SendBatch(ctx, batch).Close(); err != nil {
		return errors.Wrapf(err, "insert items for order %q", orderID)
	}
	return nil
}

func (w writer) DeleteOrder(ctx context.Context, orderID string) error {
	if _, err := w.db.Exec(ctx, deleteOrderSQL, orderID); err != nil {
		return errors.Wrapf(err, "delete order %q", orderID)
	}
	return nil
}

// GetByID returns the order with its items, or order.ErrNotFound.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	return r.getOne(ctx, selectOrderSQL+` WHERE id = $1`, id)
}

// FindByPaymentID returns the order recorded for a gateway payment, or
// order.ErrNotFound.
func (r *OrderRepository) FindByPaymentID(ctx context.Context, paymentID string) (*order.Order, error) {
	return r.getOne(ctx, selectOrderSQL+` WHERE razorpay_payment_id = $1`, paymentID)
}

// ListByUser returns the user's orders with their items, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, selectOrderSQL+` WHERE user_id = $1 ORDER BY created_at DESC, id`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, errors.Wrap(err, "scan orders")
	}
	if err := r.loadItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// UpdateStatus moves the order from one status to another. It returns
// order.ErrStatusChanged when the stored status is no longer from.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from, to order.Status) (*order.Order, error) {
	tag, err := r.pool.Exec(ctx, updateStatusSQL, id, string(from), string(to))
	if err != nil {
		return nil, errors.Wrapf(err, "update order %q", id)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, order.ErrStatusChanged
	}
	return r.GetByID(ctx, id)
}

func (r *OrderRepository) getOne(ctx context.Context, sql string, arg any) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrap(err, "scan order")
	}
	orders := []order.Order{o}
	if err := r.loadItems(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func (r *OrderRepository) loadItems(ctx context.Context, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, len(orders))
	index := make(map[string]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}

	rows, err := r.pool.Query(ctx, selectItemsSQL, ids)
	if err != nil {
		return errors.Wrap(err, "list order items")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID string
			it      order.Item
			info    order.ProductInfo
		)
		if err := rows.Scan(&orderID, &it.ProductID, &it.Quantity, &it.UnitPrice, &info.Name, &info.ImageURL); err != nil {
			return errors.Wrap(err, "scan order item")
		}
		it.Product = &info
		i := index[orderID]
		orders[i].Items = append(orders[i].Items, it)
	}
	return rows.Err()
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := row.Scan(&o.ID, &o.UserID, &o.TotalAmount, &status,
		&o.Gateway.OrderID, &o.Gateway.PaymentID, &o.Gateway.Signature, &o.CreatedAt)
	o.Status = order.Status(status)
	o.CreatedAt = o.CreatedAt.UTC()
	return o, err
}
