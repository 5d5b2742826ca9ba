package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// The gateway signs a successful checkout as HMAC-SHA256(secret, orderID|paymentID)
// and signs webhook deliveries as HMAC-SHA256(webhookSecret, rawBody). Both
// comparisons are constant time; a client-asserted "payment succeeded" flag is
// never trusted without one of these checks.

func computeHMAC(secret string, message []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}

// CheckoutSignaturePayload builds the message the gateway signs for the
// synchronous client callback.
func CheckoutSignaturePayload(orderID, paymentID string) []byte {
	return []byte(orderID + "|" + paymentID)
}

func (c *restClient) VerifyCheckoutSignature(orderID, paymentID, signature string) bool {
	expected := computeHMAC(c.checkoutSecret, CheckoutSignaturePayload(orderID, paymentID))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (c *restClient) VerifyWebhookSignature(body []byte, signature string) bool {
	expected := computeHMAC(c.webhookSecret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// SignCheckout computes the checkout signature with the given secret. Exported
// for test doubles and for tools that replay gateway callbacks.
func SignCheckout(secret, orderID, paymentID string) string {
	return computeHMAC(secret, CheckoutSignaturePayload(orderID, paymentID))
}

// SignWebhook computes the webhook body signature with the given secret.
func SignWebhook(secret string, body []byte) string {
	return computeHMAC(secret, body)
}
