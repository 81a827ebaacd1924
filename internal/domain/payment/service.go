package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/artisan-checkout/internal/domain/order"
)

const instrumentationName = "github.com/xenking/artisan-checkout/internal/domain/payment"

// Config holds the pricing and signing parameters of the Service.
type Config struct {
	// Secret is the gateway key secret used to verify payment signatures.
	Secret string
	// ShippingFee is the flat surcharge included in every claimed total.
	ShippingFee decimal.Decimal
	// Tolerance is the allowed difference between computed and claimed totals.
	// Zero means DefaultTolerance.
	Tolerance decimal.Decimal
}

// Option configures a Service.
type Option func(*Service)

// WithCache enables idempotent gateway order creation.
func WithCache(c OrderCache) Option {
	return func(s *Service) { s.cache = c }
}

// WithLedger makes verification compare the claimed total with the amount of
// the gateway order it was signed for.
func WithLedger(l OrderLedger) Option {
	return func(s *Service) { s.ledger = l }
}

// WithPublisher sets the destination of order.paid events.
func WithPublisher(p order.Publisher) Option {
	return func(s *Service) { s.events = p }
}

// WithTracerProvider sets the tracer provider used for spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer(instrumentationName) }
}

// WithMeterProvider sets the meter provider used for counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meter = mp.Meter(instrumentationName) }
}

// Service creates gateway orders and turns verified payments into stored
// orders.
type Service struct {
	cfg       Config
	gateway   Gateway
	orders    order.Reader
	persister *order.Persister
	cache     OrderCache
	ledger    OrderLedger
	events    order.Publisher
	tracer    trace.Tracer
	meter     metric.Meter
	now       func() time.Time

	verifications metric.Int64Counter
	gatewayOrders metric.Int64Counter
}

// NewService creates a payment Service. Orders are written through repo; when
// repo implements order.Transactor the order and its items share a
// transaction.
func NewService(cfg Config, gw Gateway, repo order.Repository, opts ...Option) (*Service, error) {
	if cfg.Secret == "" {
		return nil, errors.New("gateway secret is required")
	}
	if cfg.Tolerance.IsZero() {
		cfg.Tolerance = DefaultTolerance
	}
	s := &Service{
		cfg:       cfg,
		gateway:   gw,
		orders:    repo,
		persister: order.NewPersister(repo),
		events:    order.NopPublisher{},
		tracer:    tracenoop.NewTracerProvider().Tracer(instrumentationName),
		meter:     metricnoop.NewMeterProvider().Meter(instrumentationName),
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}

	var err error
	if s.verifications, err = s.meter.Int64Counter("payment.verifications",
		metric.WithDescription("Payment verification attempts by outcome"),
	); err != nil {
		return nil, errors.Wrap(err, "create verifications counter")
	}
	if s.gatewayOrders, err = s.meter.Int64Counter("payment.gateway_orders",
		metric.WithDescription("Gateway order creation attempts by outcome"),
	); err != nil {
		return nil, errors.Wrap(err, "create gateway orders counter")
	}
	return s, nil
}

// ShippingFee returns the flat shipping surcharge.
func (s *Service) ShippingFee() decimal.Decimal {
	return s.cfg.ShippingFee
}

// GatewayOrderRequest asks for a gateway reservation of Amount minor units.
type GatewayOrderRequest struct {
	UserID         string
	Amount         int64
	Description    string
	IdempotencyKey string
}

// CreateGatewayOrder reserves a payment with the gateway. With a cache and an
// idempotency key, repeating a request for the same amount returns the
// original gateway order.
func (s *Service) CreateGatewayOrder(ctx context.Context, req GatewayOrderRequest) (_ *GatewayOrder, rerr error) {
	ctx, span := s.tracer.Start(ctx, "payment.CreateGatewayOrder",
		trace.WithAttributes(attribute.Int64("payment.amount", req.Amount)),
	)
	defer func() {
		s.gatewayOrders.Add(ctx, 1, metric.WithAttributes(outcome(rerr)))
		endSpan(span, rerr)
	}()

	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	lg := zctx.From(ctx)
	cacheable := s.cache != nil && req.IdempotencyKey != ""
	if cacheable {
		cached, err := s.cache.Get(ctx, req.UserID, req.IdempotencyKey)
		switch {
		case err != nil:
			lg.Warn("Idempotency lookup failed", zap.Error(err))
		case cached != nil && cached.Amount == req.Amount:
			lg.Debug("Reusing gateway order", zap.String("gateway_order_id", cached.ID))
			return cached, nil
		}
	}

	gwOrder, err := s.gateway.CreateOrder(ctx, req.Amount, req.Description)
	if err != nil {
		var gwErr *GatewayError
		if !errors.As(err, &gwErr) {
			err = &GatewayError{Err: err}
		}
		lg.Error("Gateway order creation failed",
			zap.Int64("amount", req.Amount),
			zap.Error(err),
		)
		return nil, err
	}

	if cacheable {
		if err := s.cache.Put(ctx, req.UserID, req.IdempotencyKey, gwOrder); err != nil {
			lg.Warn("Idempotency store failed", zap.Error(err))
		}
	}
	if s.ledger != nil {
		if err := s.ledger.Record(ctx, gwOrder); err != nil {
			lg.Warn("Gateway order ledger write failed", zap.String("gateway_order_id", gwOrder.ID), zap.Error(err))
		}
	}
	lg.Info("Gateway order created",
		zap.String("gateway_order_id", gwOrder.ID),
		zap.Int64("amount", gwOrder.Amount),
	)
	return gwOrder, nil
}

// VerifyRequest is the client's proof of payment plus the purchased lines.
type VerifyRequest struct {
	UserID         string
	PaymentID      string
	GatewayOrderID string
	Signature      string
	Items          []order.Item
	TotalAmount    decimal.Decimal
}

// VerifyResult identifies the stored order. Replayed is set when the payment
// had already been recorded by an earlier call.
type VerifyResult struct {
	OrderID  string
	Replayed bool
}

// Verify authenticates the payment signature, reconciles the claimed total
// against the line items, and records the order with status paid. Each check
// short-circuits, so nothing is written unless all of them pass.
func (s *Service) Verify(ctx context.Context, req VerifyRequest) (_ *VerifyResult, rerr error) {
	ctx, span := s.tracer.Start(ctx, "payment.Verify",
		trace.WithAttributes(
			attribute.String("payment.gateway_order_id", req.GatewayOrderID),
			attribute.Int("payment.items", len(req.Items)),
		),
	)
	defer func() {
		s.verifications.Add(ctx, 1, metric.WithAttributes(outcome(rerr)))
		endSpan(span, rerr)
	}()

	lg := zctx.From(ctx).With(
		zap.String("gateway_order_id", req.GatewayOrderID),
		zap.String("payment_id", req.PaymentID),
	)

	if err := validate(req); err != nil {
		return nil, err
	}

	if !Verify(req.GatewayOrderID, req.PaymentID, req.Signature, s.cfg.Secret) {
		lg.Warn("Payment signature mismatch", zap.String("user_id", req.UserID))
		return nil, ErrSignatureMismatch
	}

	lines := make([]Line, len(req.Items))
	for i, it := range req.Items {
		lines[i] = Line{Price: it.UnitPrice, Quantity: it.Quantity}
	}
	if !Reconcile(lines, req.TotalAmount.Sub(s.cfg.ShippingFee), s.cfg.Tolerance) {
		computed := Subtotal(lines).Add(s.cfg.ShippingFee)
		lg.Warn("Payment amount mismatch",
			zap.String("computed", computed.StringFixed(2)),
			zap.String("claimed", req.TotalAmount.StringFixed(2)),
		)
		return nil, &AmountMismatchError{Computed: computed, Claimed: req.TotalAmount}
	}
	if err := s.checkCharged(ctx, lg, req); err != nil {
		return nil, err
	}

	if res, err := s.replay(ctx, lg, req); res != nil || err != nil {
		return res, err
	}

	o, err := s.persister.CreateOrder(ctx, order.CreateRequest{
		UserID:      req.UserID,
		TotalAmount: req.TotalAmount,
		Gateway: order.GatewayRef{
			OrderID:   req.GatewayOrderID,
			PaymentID: req.PaymentID,
			Signature: req.Signature,
		},
		Items: req.Items,
	})
	if errors.Is(err, order.ErrDuplicatePayment) {
		// A concurrent verification of the same payment won the insert.
		if res, replayErr := s.replay(ctx, lg, req); res != nil || replayErr != nil {
			return res, replayErr
		}
	}
	if err != nil {
		return nil, s.persistenceFailed(lg, req, err)
	}

	lg.Info("Payment verified", zap.String("order_id", o.ID), zap.String("user_id", o.UserID))
	if err := s.events.Publish(ctx, order.Event{Type: order.EventPaid, Order: o, OccurredAt: s.now()}); err != nil {
		lg.Warn("Publish order event failed",
			zap.String("event", string(order.EventPaid)),
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
	}
	return &VerifyResult{OrderID: o.ID}, nil
}

// checkCharged compares the claimed total with the recorded gateway order. A
// missing ledger entry or a ledger failure skips the check: the signature and
// line reconciliation have already passed.
func (s *Service) checkCharged(ctx context.Context, lg *zap.Logger, req VerifyRequest) error {
	if s.ledger == nil {
		return nil
	}
	gwOrder, err := s.ledger.Lookup(ctx, req.GatewayOrderID)
	switch {
	case err != nil:
		lg.Warn("Gateway order ledger lookup failed", zap.Error(err))
		return nil
	case gwOrder == nil:
		lg.Debug("Gateway order not in ledger")
		return nil
	}
	charged := FromMinorUnits(gwOrder.Amount)
	if charged.Sub(req.TotalAmount).Abs().GreaterThan(s.cfg.Tolerance) {
		lg.Warn("Claimed total differs from gateway order amount",
			zap.String("charged", charged.StringFixed(2)),
			zap.String("claimed", req.TotalAmount.StringFixed(2)),
		)
		return &AmountMismatchError{Computed: charged, Claimed: req.TotalAmount}
	}
	return nil
}

// replay returns the order already recorded for the payment, or nil, nil
// when there is none.
func (s *Service) replay(ctx context.Context, lg *zap.Logger, req VerifyRequest) (*VerifyResult, error) {
	existing, err := s.orders.FindByPaymentID(ctx, req.PaymentID)
	switch {
	case errors.Is(err, order.ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, s.persistenceFailed(lg, req, errors.Wrap(err, "lookup payment"))
	case existing.UserID != req.UserID:
		lg.Warn("Payment replayed by another user", zap.String("user_id", req.UserID))
		return nil, ErrPaymentAlreadyRecorded
	}
	lg.Info("Payment already recorded", zap.String("order_id", existing.ID))
	return &VerifyResult{OrderID: existing.ID, Replayed: true}, nil
}

// persistenceFailed logs with full identifiers: the gateway may already hold
// the customer's money.
func (s *Service) persistenceFailed(lg *zap.Logger, req VerifyRequest, err error) error {
	lg.Error("Order persistence failed after verified payment",
		zap.String("user_id", req.UserID),
		zap.String("signature", req.Signature),
		zap.String("total_amount", req.TotalAmount.StringFixed(2)),
		zap.Error(err),
	)
	return &PersistenceError{GatewayOrderID: req.GatewayOrderID, PaymentID: req.PaymentID, Err: err}
}

func validate(req VerifyRequest) error {
	switch {
	case req.PaymentID == "":
		return &MissingFieldError{Field: "razorpay_payment_id"}
	case req.GatewayOrderID == "":
		return &MissingFieldError{Field: "razorpay_order_id"}
	case req.Signature == "":
		return &MissingFieldError{Field: "razorpay_signature"}
	case req.UserID == "":
		return &MissingFieldError{Field: "userId"}
	case len(req.Items) == 0:
		return &MissingFieldError{Field: "items"}
	}
	for i, it := range req.Items {
		field := fmt.Sprintf("items[%d]", i)
		switch {
		case it.ProductID == "":
			return &MissingFieldError{Field: field + ".productId"}
		case it.Quantity <= 0:
			return &InvalidFieldError{Field: field + ".quantity", Reason: "must be greater than 0"}
		case it.UnitPrice.IsNegative():
			return &InvalidFieldError{Field: field + ".price", Reason: "must not be negative"}
		}
	}
	if !req.TotalAmount.IsPositive() {
		return &InvalidFieldError{Field: "totalAmount", Reason: "must be positive"}
	}
	return nil
}

func outcome(err error) attribute.KeyValue {
	if err == nil {
		return attribute.String("outcome", "ok")
	}
	if c := Code(err); c != "" {
		return attribute.String("outcome", c)
	}
	return attribute.String("outcome", "rejected")
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
