package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"

	"payment-service/internal/domain"
)

// Order is the gateway's representation of a checkout intent.
type Order struct {
	ID       string            `json:"id"`
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Status   string            `json:"status"`
	Notes    map[string]string `json:"notes"`
}

// Refund is the gateway's record of a (possibly partial) refund.
type Refund struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
}

// Client talks to the external payment provider. Verification helpers live in
// signature.go and are pure computations over server-held secrets.
type Client interface {
	CreateOrder(ctx context.Context, amount int64, currency, receipt string, notes map[string]string) (*Order, error)
	FetchOrder(ctx context.Context, orderID string) (*Order, error)
	Refund(ctx context.Context, paymentID string, amount int64, notes map[string]string) (*Refund, error)
	VerifyCheckoutSignature(orderID, paymentID, signature string) bool
	VerifyWebhookSignature(body []byte, signature string) bool
}

type restClient struct {
	http           *resty.Client
	checkoutSecret string
	webhookSecret  string
}

// NewClient builds a gateway client authenticated with the merchant key pair.
// keySecret doubles as the checkout-callback signing secret; webhookSecret is
// the separate secret the gateway signs webhook bodies with.
func NewClient(baseURL, keyID, keySecret, webhookSecret string, timeout time.Duration) Client {
	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetBasicAuth(keyID, keySecret).
		SetHeader("Content-Type", "application/json")

	return &restClient{
		http:           http,
		checkoutSecret: keySecret,
		webhookSecret:  webhookSecret,
	}
}

type gatewayErrorBody struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

func (c *restClient) CreateOrder(ctx context.Context, amount int64, currency, receipt string, notes map[string]string) (*Order, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"amount":   amount,
			"currency": currency,
			"receipt":  receipt,
			"notes":    notes,
		}).
		Post("/v1/orders")
	if err != nil {
		return nil, wrapTransportErr("create order", err)
	}
	if err := checkStatus("create order", resp); err != nil {
		return nil, err
	}

	var order Order
	if err := json.Unmarshal(resp.Body(), &order); err != nil {
		return nil, fmt.Errorf("failed to parse gateway order response: %w", err)
	}
	log.WithFields(log.Fields{
		"gateway_order_id": order.ID,
		"amount":           order.Amount,
	}).Info("Gateway order created")
	return &order, nil
}

func (c *restClient) FetchOrder(ctx context.Context, orderID string) (*Order, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Get("/v1/orders/" + orderID)
	if err != nil {
		return nil, wrapTransportErr("fetch order", err)
	}
	if err := checkStatus("fetch order", resp); err != nil {
		return nil, err
	}

	var order Order
	if err := json.Unmarshal(resp.Body(), &order); err != nil {
		return nil, fmt.Errorf("failed to parse gateway order response: %w", err)
	}
	return &order, nil
}

func (c *restClient) Refund(ctx context.Context, paymentID string, amount int64, notes map[string]string) (*Refund, error) {
	body := map[string]interface{}{"notes": notes}
	if amount > 0 {
		body["amount"] = amount
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post("/v1/payments/" + paymentID + "/refund")
	if err != nil {
		return nil, wrapTransportErr("refund", err)
	}
	if err := checkStatus("refund", resp); err != nil {
		return nil, err
	}

	var refund Refund
	if err := json.Unmarshal(resp.Body(), &refund); err != nil {
		return nil, fmt.Errorf("failed to parse gateway refund response: %w", err)
	}
	log.WithFields(log.Fields{
		"refund_id":          refund.ID,
		"gateway_payment_id": paymentID,
		"amount":             refund.Amount,
	}).Info("Gateway refund accepted")
	return &refund, nil
}

// wrapTransportErr classifies network-level failures. A timed-out call has an
// unknown outcome and must surface as ErrGatewayUnavailable, never as an
// application rejection.
func wrapTransportErr(op string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%s timed out: %w", op, domain.ErrGatewayUnavailable)
	}
	return fmt.Errorf("%s: %w: %v", op, domain.ErrGatewayUnavailable, err)
}

func checkStatus(op string, resp *resty.Response) error {
	code := resp.StatusCode()
	if code >= 200 && code < 300 {
		return nil
	}
	if code >= 500 || code == 429 {
		return fmt.Errorf("%s: %w: gateway returned %d", op, domain.ErrGatewayUnavailable, code)
	}

	var gwErr gatewayErrorBody
	if err := json.Unmarshal(resp.Body(), &gwErr); err == nil && gwErr.Error.Code != "" {
		return fmt.Errorf("%s rejected by gateway: %s (%s)", op, gwErr.Error.Description, gwErr.Error.Code)
	}
	return fmt.Errorf("%s rejected by gateway with status %d", op, code)
}
