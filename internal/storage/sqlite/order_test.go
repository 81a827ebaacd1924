package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/xenking/artisan-checkout/internal/domain/order"
	"github.com/xenking/artisan-checkout/internal/domain/product"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })

	products := NewProductStore(db)
	for _, p := range []product.Product{
		{ID: "p1", Name: "Clay Vase", Price: decimal.RequireFromString("100.00")},
		{ID: "p2", Name: "Woven Basket", Price: decimal.RequireFromString("300.00")},
	} {
		require.NoError(t, products.Upsert(context.Background(), p))
	}
	return db
}

func newPaidOrder(paymentID string) order.CreateRequest {
	return order.CreateRequest{
		UserID:      "user-1",
		TotalAmount: decimal.RequireFromString("550.00"),
		Gateway:     order.GatewayRef{OrderID: "order_" + paymentID, PaymentID: paymentID, Signature: "sig"},
		Items: []order.Item{
			{ProductID: "p1", Quantity: 2, UnitPrice: decimal.RequireFromString("100.00")},
			{ProductID: "p2", Quantity: 1, UnitPrice: decimal.RequireFromString("300.00")},
		},
	}
}

func count(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}

func TestOrderStore_CreateAndRead(t *testing.T) {
	db := setupTestDB(t)
	store := NewOrderStore(db)
	ctx := context.Background()

	created, err := order.NewPersister(store).CreateOrder(ctx, newPaidOrder("pay_1"))
	require.NoError(t, err)

	got, err := store.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, got.Status)
	assert.True(t, got.TotalAmount.Equal(decimal.RequireFromString("550.00")))
	assert.Equal(t, "order_pay_1", got.Gateway.OrderID)
	assert.Equal(t, "pay_1", got.Gateway.PaymentID)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "p1", got.Items[0].ProductID)
	assert.True(t, got.Items[0].UnitPrice.Equal(decimal.RequireFromString("100")))
	require.NotNil(t, got.Items[1].Product)
	assert.Equal(t, "Woven Basket", got.Items[1].Product.Name)

	byPayment, err := store.FindByPaymentID(ctx, "pay_1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byPayment.ID)
}

func TestOrderStore_CompensatesFailedItems(t *testing.T) {
	db := setupTestDB(t)
	store := NewOrderStore(db)
	ctx := context.Background()

	req := newPaidOrder("pay_1")
	req.Items = append(req.Items, order.Item{
		ProductID: "missing-product",
		Quantity:  1,
		UnitPrice: decimal.RequireFromString("10.00"),
	})
	_, err := order.NewPersister(store).CreateOrder(ctx, req)
	require.Error(t, err)

	assert.Zero(t, count(t, db, &orderRow{}), "order row must be deleted")
	assert.Zero(t, count(t, db, &orderItemRow{}), "partial items must be deleted")
}

func TestOrderStore_DuplicatePayment(t *testing.T) {
	db := setupTestDB(t)
	store := NewOrderStore(db)
	persister := order.NewPersister(store)
	ctx := context.Background()

	_, err := persister.CreateOrder(ctx, newPaidOrder("pay_1"))
	require.NoError(t, err)

	_, err = persister.CreateOrder(ctx, newPaidOrder("pay_1"))
	require.ErrorIs(t, err, order.ErrDuplicatePayment)
	assert.Equal(t, int64(1), count(t, db, &orderRow{}))
}

func TestOrderStore_PendingOrdersHaveNoPayment(t *testing.T) {
	db := setupTestDB(t)
	store := NewOrderStore(db)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.NoError(t, store.InsertOrder(ctx, &order.Order{
			ID:          uuid.NewString(),
			UserID:      "user-1",
			TotalAmount: decimal.RequireFromString("10"),
			Status:      order.StatusPending,
			CreatedAt:   time.Now().UTC(),
		}))
	}
	assert.Equal(t, int64(2), count(t, db, &orderRow{}))
}

func TestOrderStore_ListNewestFirst(t *testing.T) {
	db := setupTestDB(t)
	store := NewOrderStore(db)
	persister := order.NewPersister(store)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		o, err := persister.CreateOrder(ctx, newPaidOrder(uuid.NewString()))
		require.NoError(t, err)
		ids = append(ids, o.ID)
		time.Sleep(5 * time.Millisecond)
	}
	other := newPaidOrder(uuid.NewString())
	other.UserID = "user-2"
	_, err := persister.CreateOrder(ctx, other)
	require.NoError(t, err)

	orders, err := store.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, orders, 3)
	assert.Equal(t, ids[2], orders[0].ID)
	assert.Equal(t, ids[1], orders[1].ID)
	assert.Equal(t, ids[0], orders[2].ID)
	for _, o := range orders {
		assert.Len(t, o.Items, 2)
	}
}

func TestOrderStore_UpdateStatus(t *testing.T) {
	db := setupTestDB(t)
	store := NewOrderStore(db)
	ctx := context.Background()

	o := &order.Order{
		ID:          uuid.NewString(),
		UserID:      "user-1",
		TotalAmount: decimal.RequireFromString("10"),
		Status:      order.StatusPending,
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, store.InsertOrder(ctx, o))

	updated, err := store.UpdateStatus(ctx, o.ID, order.StatusPending, order.StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, updated.Status)

	_, err = store.UpdateStatus(ctx, o.ID, order.StatusPending, order.StatusCancelled)
	require.ErrorIs(t, err, order.ErrStatusChanged)

	_, err = store.UpdateStatus(ctx, "missing", order.StatusPending, order.StatusCancelled)
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestOrderStore_NotFound(t *testing.T) {
	store := NewOrderStore(setupTestDB(t))

	_, err := store.GetByID(context.Background(), "missing")
	require.ErrorIs(t, err, order.ErrNotFound)
	_, err = store.FindByPaymentID(context.Background(), "missing")
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestProductStore_Upsert(t *testing.T) {
	store := NewProductStore(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, product.Product{
		ID: "p1", Name: "Glazed Vase", Price: decimal.RequireFromString("120.50"), SellerID: "seller-1",
	}))

	p, err := store.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Glazed Vase", p.Name)
	assert.True(t, p.Price.Equal(decimal.RequireFromString("120.50")))

	_, err = store.GetByID(ctx, "missing")
	require.ErrorIs(t, err, product.ErrNotFound)
}
