package handler

import (
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeVerifyRequest(t *testing.T) {
	req, err := decodeVerifyRequest([]byte(`{
		"razorpay_payment_id": "pay_1",
		"razorpay_order_id": "order_1",
		"razorpay_signature": "sig",
		"userId": "user-1",
		"items": [
			{"id": "p1", "quantity": 2, "price": "100.00"},
			{"productId": "p2", "quantity": 1, "price": 300}
		],
		"totalAmount": "550.00",
		"extra": {"ignored": true}
	}`))
	require.NoError(t, err)

	assert.Equal(t, "pay_1", req.PaymentID)
	assert.Equal(t, "order_1", req.GatewayOrderID)
	assert.Equal(t, "sig", req.Signature)
	assert.Equal(t, "user-1", req.UserID)
	assert.True(t, decimal.RequireFromString("550").Equal(req.TotalAmount), req.TotalAmount.String())

	require.Len(t, req.Items, 2)
	assert.Equal(t, "p1", req.Items[0].ProductID)
	assert.Equal(t, 2, req.Items[0].Quantity)
	assert.True(t, decimal.RequireFromString("100").Equal(req.Items[0].UnitPrice))
	assert.Equal(t, "p2", req.Items[1].ProductID)
	assert.Equal(t, 1, req.Items[1].Quantity)
	assert.True(t, decimal.RequireFromString("300").Equal(req.Items[1].UnitPrice))
}

func TestDecodeVerifyRequest_TotalOnly(t *testing.T) {
	req, err := decodeVerifyRequest([]byte(`{"totalAmount": 550.5}`))
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("550.5").Equal(req.TotalAmount))
	assert.Empty(t, req.Items)
}

func TestDecodeVerifyRequest_Nulls(t *testing.T) {
	req, err := decodeVerifyRequest([]byte(`{"razorpay_payment_id": null, "items": null, "totalAmount": null}`))
	require.NoError(t, err)
	assert.Empty(t, req.PaymentID)
	assert.Nil(t, req.Items)
	assert.True(t, req.TotalAmount.IsZero())
}

func TestDecodeVerifyRequest_Invalid(t *testing.T) {
	for _, tt := range []struct {
		name   string
		body   string
		errMsg string
	}{
		{name: "not an object", body: `[]`},
		{name: "bad total", body: `{"totalAmount": "lots"}`, errMsg: "totalAmount"},
		{name: "bool total", body: `{"totalAmount": true}`, errMsg: "totalAmount"},
		{name: "string quantity", body: `{"items": [{"id": "p1", "quantity": "two"}]}`, errMsg: "quantity"},
		{name: "bad price", body: `{"items": [{"id": "p1", "price": "cheap"}]}`, errMsg: "price"},
		{name: "second item", body: `{"items": [{"id": "p1"}, {"id": "p2", "price": {}}]}`, errMsg: "items[1]"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeVerifyRequest([]byte(tt.body))
			require.Error(t, err)
			assert.True(t, errors.Is(err, errInvalidRequest))
			if tt.errMsg != "" {
				assert.Contains(t, err.Error(), tt.errMsg)
			}
		})
	}
}

func TestDecodeGatewayOrderRequest(t *testing.T) {
	req, err := decodeGatewayOrderRequest([]byte(`{"amount": 55000, "description": "Order"}`))
	require.NoError(t, err)
	assert.Equal(t, int64(55000), req.Amount)
	assert.Equal(t, "Order", req.Description)

	_, err = decodeGatewayOrderRequest([]byte(`{"amount": "55000"}`))
	require.ErrorIs(t, err, errInvalidRequest)
}

func TestDecodeCancelRequest(t *testing.T) {
	id, err := decodeCancelRequest([]byte(`{"orderId": "ord-1"}`))
	require.NoError(t, err)
	assert.Equal(t, "ord-1", id)

	id, err = decodeCancelRequest([]byte(`{"order_id": "ord-2"}`))
	require.NoError(t, err)
	assert.Equal(t, "ord-2", id)

	_, err = decodeCancelRequest([]byte(`{}`))
	require.ErrorIs(t, err, errInvalidRequest)
}
