package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// Sign computes the gateway signature for a payment: the hex encoded
// HMAC-SHA256 of "{gatewayOrderID}|{paymentID}" keyed by secret.
func Sign(gatewayOrderID, paymentID, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(gatewayOrderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether claimedSignature is the gateway signature for the
// given order and payment. Callers must reject empty inputs with
// ErrMissingPaymentField before calling Verify.
func Verify(gatewayOrderID, paymentID, claimedSignature, secret string) bool {
	expected := Sign(gatewayOrderID, paymentID, secret)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(claimedSignature)) == 1
}
