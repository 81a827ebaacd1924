// Package checkout drives a payment from the client side: it reserves a
// gateway order, presents the checkout UI, and asks the server to verify the
// result. Only a successful server verification completes a checkout.
package checkout

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/artisan-checkout/internal/cart"
	"github.com/xenking/artisan-checkout/internal/domain/payment"
)

// Errors returned before an attempt starts. They leave the state unchanged.
var (
	ErrCheckoutInProgress = errors.New("checkout already in progress")
	ErrEmptyCart          = errors.New("cart is empty")
	ErrNoSession          = errors.New("no session")
	ErrOrderMismatch      = errors.New("checkout UI reported a different gateway order")
)

// SessionSource provides the bearer token of the signed-in user.
type SessionSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a SessionSource returning a fixed token.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	if t == "" {
		return "", ErrNoSession
	}
	return string(t), nil
}

// Config holds the storefront details shown in the checkout UI.
type Config struct {
	// Key is the gateway's public key id.
	Key         string
	Currency    string
	Name        string
	Description string
	ShippingFee decimal.Decimal
}

// Outcome is the result of one Checkout call.
type Outcome struct {
	State          State
	OrderID        string
	GatewayOrderID string
	Err            error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithObserver registers fn to receive every state change. fn runs on the
// checkout goroutine and must not call back into the Orchestrator.
func WithObserver(fn func(Transition)) Option {
	return func(o *Orchestrator) { o.observer = fn }
}

// Orchestrator runs checkout attempts one at a time.
type Orchestrator struct {
	cfg      Config
	backend  Backend
	widget   Widget
	sessions SessionSource
	cart     *cart.Service
	observer func(Transition)
	now      func() time.Time

	inFlight atomic.Bool

	mu    sync.Mutex
	state State
}

// New creates an Orchestrator in the Idle state.
func New(cfg Config, backend Backend, widget Widget, sessions SessionSource, c *cart.Service, opts ...Option) *Orchestrator {
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	o := &Orchestrator{
		cfg:      cfg,
		backend:  backend,
		widget:   widget,
		sessions: sessions,
		cart:     c,
		observer: func(Transition) {},
		now:      time.Now,
		state:    Idle,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Checkout runs one attempt to completion. A second call while one is running
// fails with ErrCheckoutInProgress without any network call. Every retry
// creates a new gateway order.
func (o *Orchestrator) Checkout(ctx context.Context) Outcome {
	if !o.inFlight.CompareAndSwap(false, true) {
		return Outcome{State: o.State(), Err: ErrCheckoutInProgress}
	}
	defer o.inFlight.Store(false)

	if s := o.State(); s.IsTerminal() {
		o.move(s, Idle)
	}

	snap := o.cart.Snapshot()
	if snap.IsEmpty() {
		return Outcome{State: Idle, Err: ErrEmptyCart}
	}
	token, err := o.sessions.Token(ctx)
	if err != nil {
		return Outcome{State: Idle, Err: noSession(err)}
	}
	lg := zctx.From(ctx)

	total := snap.Total(o.cfg.ShippingFee)
	o.move(Idle, CreatingGatewayOrder)
	gwOrder, err := o.backend.CreateGatewayOrder(ctx, token, GatewayOrderRequest{
		Amount:         payment.ToMinorUnits(total),
		Description:    o.cfg.Description,
		IdempotencyKey: uuid.NewString(),
	})
	if err != nil {
		lg.Warn("Gateway order creation failed", zap.Error(err))
		o.move(CreatingGatewayOrder, Idle)
		return Outcome{State: Idle, Err: err}
	}

	o.move(CreatingGatewayOrder, AwaitingUserPayment)
	ev, err := o.widget.Present(ctx, WidgetOptions{
		Key:         o.cfg.Key,
		Amount:      gwOrder.Amount,
		OrderID:     gwOrder.ID,
		Currency:    gwOrder.Currency,
		Name:        o.cfg.Name,
		Description: o.cfg.Description,
	})
	if err != nil {
		return o.finish(AwaitingUserPayment, Failed, gwOrder.ID, errors.Wrap(err, "checkout UI"))
	}

	switch ev.Status {
	case WidgetCancelled:
		return o.finish(AwaitingUserPayment, Cancelled, gwOrder.ID, nil)
	case WidgetFailed:
		return o.finish(AwaitingUserPayment, Failed, gwOrder.ID, &PaymentFailedError{Description: ev.ErrorDescription})
	case WidgetSuccess:
	default:
		return o.finish(AwaitingUserPayment, Failed, gwOrder.ID, errors.Errorf("unknown checkout UI status %q", ev.Status))
	}
	if ev.OrderID != "" && ev.OrderID != gwOrder.ID {
		return o.finish(AwaitingUserPayment, Failed, gwOrder.ID, ErrOrderMismatch)
	}

	o.move(AwaitingUserPayment, VerifyingPayment)
	orderID, err := o.backend.VerifyPayment(ctx, token, VerifyRequest{
		PaymentID:      ev.PaymentID,
		GatewayOrderID: gwOrder.ID,
		Signature:      ev.Signature,
		Items:          snap.Items(),
		TotalAmount:    total,
	})
	if err != nil {
		lg.Warn("Payment verification failed",
			zap.String("gateway_order_id", gwOrder.ID),
			zap.String("payment_id", ev.PaymentID),
			zap.Error(err),
		)
		return o.finish(VerifyingPayment, Failed, gwOrder.ID, err)
	}

	o.cart.Clear()
	out := o.finish(VerifyingPayment, Completed, gwOrder.ID, nil)
	out.OrderID = orderID
	return out
}

// SessionError reports a failure to obtain a session token. It matches
// ErrNoSession and unwraps to the underlying cause.
type SessionError struct {
	Err error
}

func (e *SessionError) Error() string {
	return ErrNoSession.Error() + ": " + e.Err.Error()
}

func (e *SessionError) Unwrap() error { return e.Err }

func (e *SessionError) Is(target error) bool { return target == ErrNoSession }

func noSession(err error) error {
	if errors.Is(err, ErrNoSession) {
		return err
	}
	return &SessionError{Err: err}
}

func (o *Orchestrator) finish(from, to State, gatewayOrderID string, err error) Outcome {
	o.move(from, to)
	return Outcome{State: to, GatewayOrderID: gatewayOrderID, Err: err}
}

// move performs a transition from the table. Callers only request listed
// moves, so a violation is a bug.
func (o *Orchestrator) move(from, to State) {
	o.mu.Lock()
	if o.state != from || !CanTransition(from, to) {
		cur := o.state
		o.mu.Unlock()
		panic(&TransitionError{From: cur, To: to})
	}
	o.state = to
	o.mu.Unlock()

	o.observer(Transition{From: from, To: to, At: o.now()})
}
