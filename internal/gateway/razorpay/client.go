// Package razorpay creates orders through the Razorpay Orders API.
package razorpay

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/artisan-checkout/internal/domain/payment"
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://api.razorpay.com/v1"

// Config holds the credentials and transport settings of a Client.
type Config struct {
	BaseURL   string
	KeyID     string
	KeySecret string
	Currency  string
	Timeout   time.Duration
}

var _ payment.Gateway = (*Client)(nil)

// Client implements payment.Gateway. Orders are created with automatic
// capture.
type Client struct {
	baseURL   string
	keyID     string
	keySecret string
	currency  string
	http      *http.Client
}

// New creates a Client. tp may be nil.
func New(cfg Config, tp trace.TracerProvider) (*Client, error) {
	if cfg.KeyID == "" || cfg.KeySecret == "" {
		return nil, errors.New("razorpay key id and secret are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	var opts []otelhttp.Option
	if tp != nil {
		opts = append(opts, otelhttp.WithTracerProvider(tp))
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		keyID:     cfg.KeyID,
		keySecret: cfg.KeySecret,
		currency:  cfg.Currency,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport, opts...),
		},
	}, nil
}

// CreateOrder reserves amountMinor minor units with the gateway.
func (c *Client) CreateOrder(ctx context.Context, amountMinor int64, description string) (*payment.GatewayOrder, error) {
	receipt, err := newReceipt()
	if err != nil {
		return nil, &payment.GatewayError{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/orders",
		bytes.NewReader(c.encodeOrder(amountMinor, receipt, description)))
	if err != nil {
		return nil, &payment.GatewayError{Err: errors.Wrap(err, "build request")}
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &payment.GatewayError{Err: errors.Wrap(err, "send request")}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &payment.GatewayError{StatusCode: resp.StatusCode, Err: errors.Wrap(err, "read response")}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &payment.GatewayError{
			StatusCode:  resp.StatusCode,
			Description: decodeErrorDescription(body),
		}
	}

	o, err := decodeOrder(body)
	if err != nil {
		return nil, &payment.GatewayError{StatusCode: resp.StatusCode, Err: errors.Wrap(err, "decode order")}
	}
	return o, nil
}

func (c *Client) encodeOrder(amount int64, receipt, description string) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("amount")
	e.Int64(amount)
	e.FieldStart("currency")
	e.Str(c.currency)
	e.FieldStart("receipt")
	e.Str(receipt)
	e.FieldStart("payment_capture")
	e.Int(1)
	e.FieldStart("notes")
	e.ObjStart()
	e.FieldStart("description")
	e.Str(description)
	e.ObjEnd()
	e.ObjEnd()
	return e.Bytes()
}

func decodeOrder(body []byte) (*payment.GatewayOrder, error) {
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
		return nil, err
	}
	if o.ID == "" {
		return nil, errors.New("response has no order id")
	}
	return &o, nil
}

// decodeErrorDescription extracts error.description from a gateway error
// body, returning "" when the body has another shape.
func decodeErrorDescription(body []byte) string {
	var desc string
	_ = jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		if key != "error" {
			return d.Skip()
		}
		if d.Next() != jx.Object {
			return d.Skip()
		}
		return d.Obj(func(d *jx.Decoder, key string) error {
			if key != "description" || d.Next() != jx.String {
				return d.Skip()
			}
			var err error
			desc, err = d.Str()
			return err
		})
	})
	return desc
}

func newReceipt() (string, error) {
	var b [6]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", errors.Wrap(err, "generate receipt")
	}
	return "rcpt_" + hex.EncodeToString(b[:]), nil
}
