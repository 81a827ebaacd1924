package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/artisan-checkout/internal/domain/order"
	"github.com/xenking/artisan-checkout/internal/domain/payment"
)

const maxBodySize = 1 << 20

type gatewayOrderRequest struct {
	Amount      int64
	Description string
}

func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		return nil, badRequest(errors.Wrap(err, "read body"))
	}
	if len(body) > maxBodySize {
		return nil, badRequest(errors.New("request body too large"))
	}
	if len(body) == 0 {
		return nil, badRequest(errors.New("request body required"))
	}
	return body, nil
}

func decodeGatewayOrderRequest(b []byte) (gatewayOrderRequest, error) {
	var req gatewayOrderRequest
	err := jx.DecodeBytes(b).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "amount":
			v, err := d.Int64()
			if err != nil {
				return errors.Wrap(err, "amount must be an integer number of minor units")
			}
			req.Amount = v
			return nil
		case "description":
			v, err := optString(d)
			req.Description = v
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return req, badRequest(err)
	}
	return req, nil
}

func decodeVerifyRequest(b []byte) (payment.VerifyRequest, error) {
	var req payment.VerifyRequest
	err := jx.DecodeBytes(b).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "razorpay_payment_id":
			req.PaymentID, err = optString(d)
		case "razorpay_order_id":
			req.GatewayOrderID, err = optString(d)
		case "razorpay_signature":
			req.Signature, err = optString(d)
		case "userId":
			req.UserID, err = optString(d)
		case "totalAmount":
			req.TotalAmount, err = decodeDecimal(d)
			if err != nil {
				err = errors.Wrap(err, "totalAmount")
			}
		case "items":
			req.Items, err = decodeItems(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return req, badRequest(err)
	}
	return req, nil
}

func decodeItems(d *jx.Decoder) ([]order.Item, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	var items []order.Item
	err := d.Arr(func(d *jx.Decoder) error {
		var it order.Item
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "id", "productId", "product_id":
				it.ProductID, err = optString(d)
			case "quantity":
				it.Quantity, err = d.Int()
				if err != nil {
					err = errors.Wrap(err, "quantity")
				}
			case "price":
				it.UnitPrice, err = decodeDecimal(d)
				if err != nil {
					err = errors.Wrap(err, "price")
				}
			default:
				err = d.Skip()
			}
			return err
		}); err != nil {
			return errors.Wrapf(err, "items[%d]", len(items))
		}
		items = append(items, it)
		return nil
	})
	return items, err
}

func decodeCancelRequest(b []byte) (string, error) {
	var id string
	err := jx.DecodeBytes(b).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "orderId", "order_id":
			v, err := optString(d)
			if v != "" {
				id = v
			}
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return "", badRequest(err)
	}
	if id == "" {
		return "", badRequest(errors.New("orderId is required"))
	}
	return id, nil
}

// optString reads a string, treating null as empty.
func optString(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

// decodeDecimal accepts a JSON number or a numeric string.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(n.String())
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	case jx.Null:
		return decimal.Zero, d.Null()
	default:
		return decimal.Zero, errors.New("expected a number")
	}
}

func encodeGatewayOrder(o *payment.GatewayOrder) []byte {
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

func encodeVerifyResult(res *payment.VerifyResult) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("success")
	e.Bool(true)
	e.FieldStart("orderId")
	e.Str(res.OrderID)
	if res.Replayed {
		e.FieldStart("replayed")
		e.Bool(true)
	}
	e.ObjEnd()
	return e.Bytes()
}

func encodeOrderEnvelope(field string, o *order.Order) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart(field)
	encodeOrder(&e, o)
	e.ObjEnd()
	return e.Bytes()
}

func encodeOrderList(orders []order.Order) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("orders")
	e.ArrStart()
	for i := range orders {
		encodeOrder(&e, &orders[i])
	}
	e.ArrEnd()
	e.ObjEnd()
	return e.Bytes()
}

// Amounts are written as fixed two-decimal strings.
func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("user_id")
	e.Str(o.UserID)
	e.FieldStart("total_amount")
	e.Str(o.TotalAmount.StringFixed(2))
	e.FieldStart("status")
	e.Str(o.Status.String())
	e.FieldStart("razorpay_order_id")
	optStr(e, o.Gateway.OrderID)
	e.FieldStart("razorpay_payment_id")
	optStr(e, o.Gateway.PaymentID)
	e.FieldStart("created_at")
	e.Str(o.CreatedAt.UTC().Format(time.RFC3339Nano))

	e.FieldStart("order_items")
	e.ArrStart()
	for _, it := range o.Items {
		e.ObjStart()
		e.FieldStart("product_id")
		e.Str(it.ProductID)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.FieldStart("price_at_purchase")
		e.Str(it.UnitPrice.StringFixed(2))
		e.FieldStart("total_price")
		e.Str(it.LineTotal().StringFixed(2))
		if it.Product != nil {
			e.FieldStart("products")
			e.ObjStart()
			e.FieldStart("name")
			e.Str(it.Product.Name)
			e.FieldStart("image_url")
			e.Str(it.Product.ImageURL)
			e.ObjEnd()
		}
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
}

func optStr(e *jx.Encoder, s string) {
	if s == "" {
		e.Null()
		return
	}
	e.Str(s)
}
