package handler

import (
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/artisan-checkout/internal/domain/auth"
	"github.com/xenking/artisan-checkout/internal/domain/order"
	"github.com/xenking/artisan-checkout/internal/domain/payment"
)

// HeaderIdempotencyKey lets clients repeat a gateway order request safely.
const HeaderIdempotencyKey = "Idempotency-Key"

const defaultDescription = "Artisan marketplace order"

// Handler serves the checkout endpoints. Every route requires a bearer
// session.
type Handler struct {
	payments *payment.Service
	orders   *order.Service
	security *Security
}

// New creates a Handler.
func New(payments *payment.Service, orders *order.Service, security *Security) *Handler {
	return &Handler{
		payments: payments,
		orders:   orders,
		security: security,
	}
}

// Register mounts the endpoints on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("POST /create-gateway-order", h.security.Require(http.HandlerFunc(h.CreateGatewayOrder)))
	mux.Handle("POST /verify-payment", h.security.Require(http.HandlerFunc(h.VerifyPayment)))
	mux.Handle("POST /cancel-order", h.security.Require(http.HandlerFunc(h.CancelOrder)))
	mux.Handle("GET /orders", h.security.Require(http.HandlerFunc(h.ListOrders)))
	mux.Handle("GET /orders/{id}", h.security.Require(http.HandlerFunc(h.GetOrder)))
}

// CreateGatewayOrder reserves a gateway order for the amount in minor units.
func (h *Handler) CreateGatewayOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, _ := auth.FromContext(ctx)

	body, err := readBody(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, err := decodeGatewayOrderRequest(body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if req.Description == "" {
		req.Description = defaultDescription
	}

	gwOrder, err := h.payments.CreateGatewayOrder(ctx, payment.GatewayOrderRequest{
		UserID:         sess.UserID,
		Amount:         req.Amount,
		Description:    req.Description,
		IdempotencyKey: r.Header.Get(HeaderIdempotencyKey),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, encodeGatewayOrder(gwOrder))
}

// VerifyPayment checks the gateway callback and records the paid order.
func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, _ := auth.FromContext(ctx)

	body, err := readBody(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, err := decodeVerifyRequest(body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if req.UserID != "" && req.UserID != sess.UserID {
		zctx.From(ctx).Warn("Verify user mismatch",
			zap.String("session_user_id", sess.UserID),
			zap.String("body_user_id", req.UserID),
		)
		writeError(w, r, errForbidden)
		return
	}
	req.UserID = sess.UserID

	res, err := h.payments.Verify(ctx, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, encodeVerifyResult(res))
}

// CancelOrder moves one of the caller's pending orders to cancelled.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, _ := auth.FromContext(ctx)

	body, err := readBody(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := decodeCancelRequest(body)
	if err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.orders.Cancel(ctx, sess.UserID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, encodeOrderEnvelope("order", o))
}

// ListOrders returns the caller's orders, newest first.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, _ := auth.FromContext(ctx)

	orders, err := h.orders.List(ctx, sess.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, encodeOrderList(orders))
}

// GetOrder returns one of the caller's orders with its items.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, _ := auth.FromContext(ctx)

	o, err := h.orders.Get(ctx, sess.UserID, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, encodeOrderEnvelope("order", o))
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
