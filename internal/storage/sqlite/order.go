package sqlite

import (
	"context"

	"github.com/go-faster/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/xenking/artisan-checkout/internal/domain/order"
)

var _ order.Repository = (*OrderStore)(nil)

// OrderStore implements order.Repository. It deliberately does not implement
// order.Transactor: every write is independent.
type OrderStore struct {
	db *gorm.DB
}

// NewOrderStore returns an OrderStore using db.
func NewOrderStore(db *gorm.DB) *OrderStore {
	return &OrderStore{db: db}
}

func (s *OrderStore) InsertOrder(ctx context.Context, o *order.Order) error {
	row := orderRow{
		ID:                o.ID,
		UserID:            o.UserID,
		TotalAmount:       o.TotalAmount,
		Status:            string(o.Status),
		RazorpayOrderID:   o.Gateway.OrderID,
		RazorpaySignature: o.Gateway.Signature,
		CreatedAt:         o.CreatedAt,
	}
	if o.Gateway.PaymentID != "" {
		row.RazorpayPaymentID = &o.Gateway.PaymentID
	}

	err := s.db.WithContext(ctx).Omit(clause.Associations).Create(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return order.ErrDuplicatePayment
		}
		return errors.Wrapf(err, "insert order %q", o.ID)
	}
	return nil
}

func (s *OrderStore) InsertItems(ctx context.Context, orderID string, items []order.Item) error {
	rows := make([]orderItemRow, len(items))
	for i, it := range items {
		rows[i] = orderItemRow{
			OrderID:         orderID,
			ProductID:       it.ProductID,
			Quantity:        it.Quantity,
			PriceAtPurchase: it.UnitPrice,
			TotalPrice:      it.LineTotal(),
		}
	}
	// One statement per row: a rejected line leaves earlier rows behind.
	for i := range rows {
		if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(&rows[i]).Error; err != nil {
			return errors.Wrapf(err, "insert item %q for order %q", rows[i].ProductID, orderID)
		}
	}
	return nil
}

func (s *OrderStore) DeleteOrder(ctx context.Context, orderID string) error {
	if err := s.db.WithContext(ctx).Delete(&orderItemRow{}, "order_id = ?", orderID).Error; err != nil {
		return errors.Wrapf(err, "delete items of order %q", orderID)
	}
	if err := s.db.WithContext(ctx).Delete(&orderRow{}, "id = ?", orderID).Error; err != nil {
		return errors.Wrapf(err, "delete order %q", orderID)
	}
	return nil
}

// GetByID returns the order with its items, or order.ErrNotFound.
func (s *OrderStore) GetByID(ctx context.Context, id string) (*order.Order, error) {
	return s.first(ctx, "id = ?", id)
}

// FindByPaymentID returns the order recorded for a gateway payment, or
// order.ErrNotFound.
func (s *OrderStore) FindByPaymentID(ctx context.Context, paymentID string) (*order.Order, error) {
	return s.first(ctx, "razorpay_payment_id = ?", paymentID)
}

// ListByUser returns the user's orders with their items, newest first.
func (s *OrderStore) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	var rows []orderRow
	err := s.withItems(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	orders := make([]order.Order, len(rows))
	for i := range rows {
		orders[i] = toOrder(&rows[i])
	}
	return orders, nil
}

// UpdateStatus moves the order from one status to another. It returns
// order.ErrStatusChanged when the stored status is no longer from.
func (s *OrderStore) UpdateStatus(ctx context.Context, id string, from, to order.Status) (*order.Order, error) {
	res := s.db.WithContext(ctx).Model(&orderRow{}).
		Where("id = ? AND status = ?", id, string(from)).
		Update("status", string(to))
	if res.Error != nil {
		return nil, errors.Wrapf(res.Error, "update order %q", id)
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, order.ErrStatusChanged
	}
	return s.GetByID(ctx, id)
}

func (s *OrderStore) withItems(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Items.Product")
}

func (s *OrderStore) first(ctx context.Context, query string, arg any) (*order.Order, error) {
	var row orderRow
	if err := s.withItems(ctx).Where(query, arg).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrap(err, "get order")
	}
	o := toOrder(&row)
	return &o, nil
}

func toOrder(row *orderRow) order.Order {
	o := order.Order{
		ID:          row.ID,
		UserID:      row.UserID,
		TotalAmount: row.TotalAmount,
		Status:      order.Status(row.Status),
		Gateway: order.GatewayRef{
			OrderID:   row.RazorpayOrderID,
			Signature: row.RazorpaySignature,
		},
		CreatedAt: row.CreatedAt.UTC(),
	}
	if row.RazorpayPaymentID != nil {
		o.Gateway.PaymentID = *row.RazorpayPaymentID
	}
	for _, it := range row.Items {
		o.Items = append(o.Items, order.Item{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.PriceAtPurchase,
			Product:   &order.ProductInfo{Name: it.Product.Name, ImageURL: it.Product.ImageURL},
		})
	}
	return o
}
