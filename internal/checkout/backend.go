package checkout

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/artisan-checkout/internal/cart"
	"github.com/xenking/artisan-checkout/internal/domain/payment"
)

// DefaultCallTimeout bounds each backend call.
const DefaultCallTimeout = 30 * time.Second

const maxResponseSize = 1 << 20

// GatewayOrderRequest asks the backend to reserve Amount minor units.
type GatewayOrderRequest struct {
	Amount         int64
	Description    string
	IdempotencyKey string
}

// VerifyRequest carries the checkout UI's success event and the purchased
// lines. TotalAmount includes shipping.
type VerifyRequest struct {
	PaymentID      string
	GatewayOrderID string
	Signature      string
	Items          []cart.Item
	TotalAmount    decimal.Decimal
}

// Backend is the payment server as seen by the client.
type Backend interface {
	CreateGatewayOrder(ctx context.Context, token string, req GatewayOrderRequest) (*payment.GatewayOrder, error)
	VerifyPayment(ctx context.Context, token string, req VerifyRequest) (orderID string, err error)
}

// APIError is a non-2xx backend response. It unwraps to the payment sentinel
// named by Code, if any, so errors.Is(err, payment.ErrSignatureMismatch) works
// on the client.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Code == "" {
		return fmt.Sprintf("backend: %d: %s", e.StatusCode, msg)
	}
	return fmt.Sprintf("backend: %d %s: %s", e.StatusCode, e.Code, msg)
}

func (e *APIError) Unwrap() error {
	return payment.FromCode(e.Code)
}

// HTTPOption configures an HTTPBackend.
type HTTPOption func(*HTTPBackend)

// WithHTTPClient replaces the instrumented default client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(b *HTTPBackend) { b.client = c }
}

// WithCallTimeout overrides DefaultCallTimeout.
func WithCallTimeout(d time.Duration) HTTPOption {
	return func(b *HTTPBackend) {
		if d > 0 {
			b.timeout = d
		}
	}
}

var _ Backend = (*HTTPBackend)(nil)

// HTTPBackend calls the payment server endpoints with a bearer session token.
type HTTPBackend struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
}

// NewHTTPBackend creates a backend client for the server at baseURL. Requests
// are traced with tp.
func NewHTTPBackend(baseURL string, tp trace.TracerProvider, opts ...HTTPOption) *HTTPBackend {
	b := &HTTPBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport, otelhttp.WithTracerProvider(tp)),
		},
		timeout: DefaultCallTimeout,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// CreateGatewayOrder calls POST /create-gateway-order.
func (b *HTTPBackend) CreateGatewayOrder(ctx context.Context, token string, req GatewayOrderRequest) (*payment.GatewayOrder, error) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("amount")
	e.Int64(req.Amount)
	e.FieldStart("description")
	e.Str(req.Description)
	e.ObjEnd()

	var headers http.Header
	if req.IdempotencyKey != "" {
		headers = http.Header{"Idempotency-Key": []string{req.IdempotencyKey}}
	}
	body, err := b.post(ctx, "/create-gateway-order", token, e.Bytes(), headers)
	if err != nil {
		return nil, err
	}

	var o payment.GatewayOrder
	if err := jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
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
		return nil, errors.Wrap(err, "decode gateway order")
	}
	if o.ID == "" {
		return nil, errors.New("gateway order response has no id")
	}
	return &o, nil
}

// VerifyPayment calls POST /verify-payment and returns the stored order id.
func (b *HTTPBackend) VerifyPayment(ctx context.Context, token string, req VerifyRequest) (string, error) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("razorpay_payment_id")
	e.Str(req.PaymentID)
	e.FieldStart("razorpay_order_id")
	e.Str(req.GatewayOrderID)
	e.FieldStart("razorpay_signature")
	e.Str(req.Signature)
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range req.Items {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(it.ID)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.FieldStart("price")
		e.Str(it.Price.String())
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("totalAmount")
	e.Str(req.TotalAmount.String())
	e.ObjEnd()

	body, err := b.post(ctx, "/verify-payment", token, e.Bytes(), nil)
	if err != nil {
		return "", err
	}

	var (
		success bool
		orderID string
	)
	if err := jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "success":
			success, err = d.Bool()
		case "orderId":
			orderID, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		return "", errors.Wrap(err, "decode verification")
	}
	if !success || orderID == "" {
		return "", errors.New("verification response is not a success")
	}
	return orderID, nil
}

func (b *HTTPBackend) post(ctx context.Context, path, token string, body []byte, headers http.Header) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	for k, v := range headers {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "post %s", path)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, errors.Wrapf(err, "read %s response", path)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeAPIError(resp.StatusCode, data)
	}
	return data, nil
}

// decodeAPIError reads {"error": msg, "code": code}; any other body leaves
// both empty.
func decodeAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}
	_ = jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "error":
			if d.Next() != jx.String {
				return d.Skip()
			}
			v, err := d.Str()
			apiErr.Message = v
			return err
		case "code":
			if d.Next() != jx.String {
				return d.Skip()
			}
			v, err := d.Str()
			apiErr.Code = v
			return err
		default:
			return d.Skip()
		}
	})
	return apiErr
}
