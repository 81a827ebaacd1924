package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/artisan-checkout/internal/domain/auth"
	"github.com/xenking/artisan-checkout/internal/domain/order"
	"github.com/xenking/artisan-checkout/internal/domain/payment"
	"github.com/xenking/artisan-checkout/internal/domain/product"
	"github.com/xenking/artisan-checkout/internal/storage/sqlite"
)

const testSecret = "key-secret"

// --- Mock implementations ---

type fakeGateway struct {
	mu     sync.Mutex
	calls  []int64
	err    error
	nextID int
}

func (g *fakeGateway) CreateOrder(_ context.Context, amount int64, _ string) (*payment.GatewayOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, amount)
	if g.err != nil {
		return nil, g.err
	}
	g.nextID++
	return &payment.GatewayOrder{
		ID:       fmt.Sprintf("order_test%d", g.nextID),
		Amount:   amount,
		Currency: "INR",
	}, nil
}

// --- Helpers ---

type env struct {
	mux     *http.ServeMux
	gateway *fakeGateway
	store   *sqlite.OrderStore
	tokens  *auth.Tokens
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "handler.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close(db) })

	products := sqlite.NewProductStore(db)
	for _, p := range []product.Product{
		{ID: "p1", Name: "Clay Vase", Price: decimal.RequireFromString("100.00"), ImageURL: "vase.png"},
		{ID: "p2", Name: "Woven Basket", Price: decimal.RequireFromString("300.00")},
	} {
		require.NoError(t, products.Upsert(context.Background(), p))
	}

	store := sqlite.NewOrderStore(db)
	gw := &fakeGateway{}
	payments, err := payment.NewService(payment.Config{
		Secret:      testSecret,
		ShippingFee: decimal.RequireFromString("50.00"),
	}, gw, store)
	require.NoError(t, err)

	tokens, err := auth.NewTokens("jwt-secret", "artisan", time.Hour)
	require.NoError(t, err)

	mux := http.NewServeMux()
	New(payments, order.NewService(store, nil), NewSecurity(tokens)).Register(mux)
	return &env{mux: mux, gateway: gw, store: store, tokens: tokens}
}

func (e *env) token(t *testing.T, userID string) string {
	t.Helper()
	raw, err := e.tokens.Issue(userID)
	require.NoError(t, err)
	return raw
}

func (e *env) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

func verifyBody(gatewayOrderID, paymentID string) map[string]any {
	return map[string]any{
		"razorpay_order_id":   gatewayOrderID,
		"razorpay_payment_id": paymentID,
		"razorpay_signature":  payment.Sign(gatewayOrderID, paymentID, testSecret),
		"items": []map[string]any{
			{"id": "p1", "quantity": 2, "price": 100},
			{"id": "p2", "quantity": 1, "price": "300.00"},
		},
		"totalAmount": 550,
	}
}

func (e *env) countOrders(t *testing.T, userID string) int {
	t.Helper()
	orders, err := e.store.ListByUser(context.Background(), userID)
	require.NoError(t, err)
	return len(orders)
}

func (e *env) insertPending(t *testing.T, userID string) string {
	t.Helper()
	ctx := context.Background()
	o := &order.Order{
		ID:          "pending-1",
		UserID:      userID,
		TotalAmount: decimal.RequireFromString("150.00"),
		Status:      order.StatusPending,
		Gateway:     order.GatewayRef{OrderID: "order_pending"},
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, e.store.InsertOrder(ctx, o))
	require.NoError(t, e.store.InsertItems(ctx, o.ID, []order.Item{
		{ProductID: "p1", Quantity: 1, UnitPrice: decimal.RequireFromString("100.00")},
	}))
	return o.ID
}

// --- Tests ---

func TestCreateGatewayOrder_Success(t *testing.T) {
	e := newEnv(t)

	status, body := e.do(t, http.MethodPost, "/create-gateway-order", e.token(t, "user-1"),
		map[string]any{"amount": 55000, "description": "Artisan order"})

	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "order_test1", body["id"])
	assert.EqualValues(t, 55000, body["amount"])
	assert.Equal(t, "INR", body["currency"])
	assert.Equal(t, []int64{55000}, e.gateway.calls)
}

func TestCreateGatewayOrder_Unauthenticated(t *testing.T) {
	e := newEnv(t)

	for _, token := range []string{"", "not-a-jwt"} {
		status, body := e.do(t, http.MethodPost, "/create-gateway-order", token, map[string]any{"amount": 100})
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, CodeUnauthorized, body["code"])
	}
	assert.Empty(t, e.gateway.calls)
}

func TestCreateGatewayOrder_InvalidAmount(t *testing.T) {
	e := newEnv(t)
	token := e.token(t, "user-1")

	status, body := e.do(t, http.MethodPost, "/create-gateway-order", token, map[string]any{"amount": 0})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, CodeInvalidAmount, body["code"])

	status, body = e.do(t, http.MethodPost, "/create-gateway-order", token, map[string]any{"amount": 550.5})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, CodeInvalidRequest, body["code"])

	assert.Empty(t, e.gateway.calls)
}

func TestCreateGatewayOrder_MalformedBody(t *testing.T) {
	e := newEnv(t)

	status, body := e.do(t, http.MethodPost, "/create-gateway-order", e.token(t, "user-1"), `{"amount":`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, CodeInvalidRequest, body["code"])
}

func TestCreateGatewayOrder_GatewayFailure(t *testing.T) {
	e := newEnv(t)
	e.gateway.err = &payment.GatewayError{StatusCode: 400, Description: "Order amount less than minimum"}

	status, body := e.do(t, http.MethodPost, "/create-gateway-order", e.token(t, "user-1"),
		map[string]any{"amount": 10})

	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, payment.CodeGatewayOrderCreationFailed, body["code"])
	assert.Contains(t, body["error"], "Order amount less than minimum")
}

func TestVerifyPayment_Success(t *testing.T) {
	e := newEnv(t)

	status, body := e.do(t, http.MethodPost, "/verify-payment", e.token(t, "user-1"),
		verifyBody("order_abc", "pay_abc"))

	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, true, body["success"])
	id, _ := body["orderId"].(string)
	require.NotEmpty(t, id)

	stored, err := e.store.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, stored.Status)
	assert.Equal(t, "user-1", stored.UserID)
	assert.True(t, decimal.RequireFromString("550").Equal(stored.TotalAmount))
	assert.True(t, decimal.RequireFromString("500").Equal(stored.ItemsTotal()))
}

func TestVerifyPayment_Replay(t *testing.T) {
	e := newEnv(t)
	token := e.token(t, "user-1")

	_, first := e.do(t, http.MethodPost, "/verify-payment", token, verifyBody("order_abc", "pay_abc"))
	status, second := e.do(t, http.MethodPost, "/verify-payment", token, verifyBody("order_abc", "pay_abc"))

	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, first["orderId"], second["orderId"])
	assert.Equal(t, true, second["replayed"])
	assert.Equal(t, 1, e.countOrders(t, "user-1"))

	status, body := e.do(t, http.MethodPost, "/verify-payment", e.token(t, "user-2"), verifyBody("order_abc", "pay_abc"))
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, CodePaymentAlreadyRecorded, body["code"])
}

func TestVerifyPayment_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(b map[string]any)
		status int
		code   string
	}{
		{
			name:   "missing payment id",
			mutate: func(b map[string]any) { delete(b, "razorpay_payment_id") },
			status: http.StatusBadRequest,
			code:   payment.CodeMissingPaymentField,
		},
		{
			name:   "missing items",
			mutate: func(b map[string]any) { b["items"] = []any{} },
			status: http.StatusBadRequest,
			code:   payment.CodeMissingPaymentField,
		},
		{
			name:   "tampered signature",
			mutate: func(b map[string]any) { b["razorpay_signature"] = payment.Sign("order_abc", "pay_other", testSecret) },
			status: http.StatusUnauthorized,
			code:   payment.CodeSignatureMismatch,
		},
		{
			name:   "amount mismatch",
			mutate: func(b map[string]any) { b["totalAmount"] = 500 },
			status: http.StatusBadRequest,
			code:   payment.CodeAmountMismatch,
		},
		{
			name:   "non numeric price",
			mutate: func(b map[string]any) { b["items"] = []map[string]any{{"id": "p1", "quantity": 1, "price": "abc"}} },
			status: http.StatusBadRequest,
			code:   CodeInvalidRequest,
		},
		{
			name:   "other user in body",
			mutate: func(b map[string]any) { b["userId"] = "user-2" },
			status: http.StatusForbidden,
			code:   CodeForbidden,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			b := verifyBody("order_abc", "pay_abc")
			tt.mutate(b)

			status, body := e.do(t, http.MethodPost, "/verify-payment", e.token(t, "user-1"), b)

			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, body["code"])
			assert.Zero(t, e.countOrders(t, "user-1"))
		})
	}
}

func TestVerifyPayment_MatchingBodyUser(t *testing.T) {
	e := newEnv(t)
	b := verifyBody("order_abc", "pay_abc")
	b["userId"] = "user-1"

	status, _ := e.do(t, http.MethodPost, "/verify-payment", e.token(t, "user-1"), b)
	assert.Equal(t, http.StatusOK, status)
}

func TestVerifyPayment_PersistenceFailure(t *testing.T) {
	e := newEnv(t)
	b := verifyBody("order_abc", "pay_abc")
	// Unknown product: the item insert violates the foreign key.
	b["items"] = []map[string]any{
		{"id": "p1", "quantity": 2, "price": 100},
		{"id": "missing", "quantity": 1, "price": 300},
	}

	status, body := e.do(t, http.MethodPost, "/verify-payment", e.token(t, "user-1"), b)

	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, payment.CodeOrderPersistenceFailed, body["code"])
	assert.Equal(t, persistenceMessage, body["error"])
	assert.Zero(t, e.countOrders(t, "user-1"))
}

func TestCancelOrder(t *testing.T) {
	e := newEnv(t)
	token := e.token(t, "user-1")
	id := e.insertPending(t, "user-1")

	status, body := e.do(t, http.MethodPost, "/cancel-order", e.token(t, "user-2"), map[string]any{"orderId": id})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, CodeNotFound, body["code"])

	status, body = e.do(t, http.MethodPost, "/cancel-order", token, map[string]any{"order_id": id})
	require.Equal(t, http.StatusOK, status)
	o, _ := body["order"].(map[string]any)
	assert.Equal(t, "cancelled", o["status"])

	status, body = e.do(t, http.MethodPost, "/cancel-order", token, map[string]any{"orderId": id})
	require.Equal(t, http.StatusOK, status)
	o, _ = body["order"].(map[string]any)
	assert.Equal(t, "cancelled", o["status"])
}

func TestCancelOrder_PaidRejected(t *testing.T) {
	e := newEnv(t)
	token := e.token(t, "user-1")
	_, verified := e.do(t, http.MethodPost, "/verify-payment", token, verifyBody("order_abc", "pay_abc"))

	status, body := e.do(t, http.MethodPost, "/cancel-order", token, map[string]any{"orderId": verified["orderId"]})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, CodeIllegalTransition, body["code"])

	status, body = e.do(t, http.MethodPost, "/cancel-order", token, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, CodeInvalidRequest, body["code"])
}

func TestOrders_ListAndGet(t *testing.T) {
	e := newEnv(t)
	token := e.token(t, "user-1")
	_, verified := e.do(t, http.MethodPost, "/verify-payment", token, verifyBody("order_abc", "pay_abc"))
	id := verified["orderId"].(string)

	status, body := e.do(t, http.MethodGet, "/orders", token, nil)
	require.Equal(t, http.StatusOK, status)
	orders, _ := body["orders"].([]any)
	require.Len(t, orders, 1)

	status, body = e.do(t, http.MethodGet, "/orders/"+id, token, nil)
	require.Equal(t, http.StatusOK, status)
	o := body["order"].(map[string]any)
	assert.Equal(t, id, o["id"])
	assert.Equal(t, "550.00", o["total_amount"])
	assert.Equal(t, "pay_abc", o["razorpay_payment_id"])

	items := o["order_items"].([]any)
	require.Len(t, items, 2)
	first := items[0].(map[string]any)
	assert.Equal(t, "p1", first["product_id"])
	assert.Equal(t, "200.00", first["total_price"])
	assert.Equal(t, "Clay Vase", first["products"].(map[string]any)["name"])

	status, _ = e.do(t, http.MethodGet, "/orders/"+id, e.token(t, "user-2"), nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, body = e.do(t, http.MethodGet, "/orders", e.token(t, "user-2"), nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, body["orders"])
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{&payment.MissingFieldError{Field: "x"}, http.StatusBadRequest, payment.CodeMissingPaymentField},
		{errors.Wrap(payment.ErrSignatureMismatch, "verify"), http.StatusUnauthorized, payment.CodeSignatureMismatch},
		{&payment.PersistenceError{Err: errors.New("db down")}, http.StatusInternalServerError, payment.CodeOrderPersistenceFailed},
		{&order.TransitionError{From: order.StatusPaid, To: order.StatusCancelled}, http.StatusConflict, CodeIllegalTransition},
		{errors.Wrap(order.ErrStatusChanged, "update"), http.StatusConflict, CodeStatusChanged},
		{errors.New("boom"), http.StatusInternalServerError, CodeInternal},
	}
	for _, tt := range tests {
		status, code := statusOf(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
		assert.Equal(t, tt.code, code, tt.err.Error())
	}
}
