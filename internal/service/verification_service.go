package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"payment-service/internal/domain"
	"payment-service/internal/gateway"
	"payment-service/internal/producer"
	"payment-service/internal/sender"
	"payment-service/internal/validator"
)

// Provisioner creates or reuses a durable identity for a guest purchase.
type Provisioner interface {
	Provision(ctx context.Context, details domain.GuestDetails) (domain.User, error)
}

type verificationService struct {
	purchases      PurchaseRepository
	grants         GrantRepository
	catalog        Catalog
	gateway        gateway.Client
	provisioner    Provisioner
	events         producer.EventProducer
	emails         sender.EmailSender
	purchasesTopic string
}

func NewVerificationService(
	purchases PurchaseRepository,
	grants GrantRepository,
	catalog Catalog,
	gw gateway.Client,
	provisioner Provisioner,
	events producer.EventProducer,
	emails sender.EmailSender,
	purchasesTopic string,
) *verificationService {
	return &verificationService{
		purchases:      purchases,
		grants:         grants,
		catalog:        catalog,
		gateway:        gw,
		provisioner:    provisioner,
		events:         events,
		emails:         emails,
		purchasesTopic: purchasesTopic,
	}
}

// VerifyCheckout handles the synchronous client callback fired right after
// the buyer approves payment in the gateway UI. The webhook channel may be
// racing this call for the same order; both funnel into confirm.
func (s *verificationService) VerifyCheckout(ctx context.Context, gatewayOrderID, paymentID, signature string) error {
	if err := validator.ValidateOrderRef(gatewayOrderID); err != nil {
		return err
	}
	if err := validator.ValidatePaymentRef(paymentID); err != nil {
		return err
	}

	if !s.gateway.VerifyCheckoutSignature(gatewayOrderID, paymentID, signature) {
		log.WithFields(log.Fields{
			"gateway_order_id":   gatewayOrderID,
			"gateway_payment_id": paymentID,
			"channel":            "checkout",
			"security_event":     true,
		}).Warn("Payment claim failed signature verification")

		if _, err := s.purchases.MarkFailed(ctx, gatewayOrderID); err != nil {
			log.WithError(err).WithField("gateway_order_id", gatewayOrderID).
				Error("Failed to record failed verification")
		}
		return domain.ErrInvalidSignature
	}

	return s.confirm(ctx, gatewayOrderID, paymentID, signature, "checkout")
}

// webhookEnvelope is the gateway's server-to-server delivery format.
type webhookEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		OrderID   string `json:"order_id"`
		PaymentID string `json:"payment_id"`
	} `json:"payload"`
}

// HandleWebhook handles the asynchronous gateway delivery. The raw body is
// authenticated by the webhook secret before any of it is believed; a forged
// body is rejected without touching any order, since an attacker controls the
// order id inside it. Redeliveries of an already-completed order are success
// no-ops.
func (s *verificationService) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	if !s.gateway.VerifyWebhookSignature(body, signature) {
		log.WithFields(log.Fields{
			"channel":        "webhook",
			"security_event": true,
		}).Warn("Webhook delivery failed signature verification")
		return domain.ErrInvalidSignature
	}

	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return &domain.ValidationError{Field: "body", Reason: "malformed webhook payload"}
	}
	if env.Event != "payment.captured" {
		log.WithField("event", env.Event).Debug("Ignoring webhook event")
		return nil
	}
	if err := validator.ValidateOrderRef(env.Payload.OrderID); err != nil {
		return err
	}
	if err := validator.ValidatePaymentRef(env.Payload.PaymentID); err != nil {
		return err
	}

	return s.confirm(ctx, env.Payload.OrderID, env.Payload.PaymentID, signature, "webhook")
}

// confirm performs the state-guarded completion shared by both channels. The
// conditional update is the arbiter: side effects run only when THIS call
// actually moved the row to completed. The loser of the race observes an
// already-completed order and returns success without side effects.
func (s *verificationService) confirm(ctx context.Context, gatewayOrderID, paymentID, signature, channel string) error {
	purchase, err := s.purchases.GetByGatewayOrderID(ctx, gatewayOrderID)
	if err != nil {
		return err
	}

	won, err := s.purchases.MarkCompleted(ctx, gatewayOrderID, paymentID, signature)
	if err != nil {
		return fmt.Errorf("failed to complete purchase: %w", err)
	}
	if !won {
		current, err := s.purchases.GetByGatewayOrderID(ctx, gatewayOrderID)
		if err != nil {
			return err
		}
		switch current.Status {
		case domain.StatusCompleted, domain.StatusRefundPending, domain.StatusRefunded:
			// The other channel already completed this order.
			log.WithFields(log.Fields{
				"gateway_order_id": gatewayOrderID,
				"channel":          channel,
			}).Info("Purchase already completed, verification is a no-op")
			return nil
		default:
			return fmt.Errorf("purchase %s in unexpected state %s: %w",
				gatewayOrderID, current.Status, domain.ErrStateConflict)
		}
	}

	s.runCompletionSideEffects(ctx, purchase, paymentID, channel)
	return nil
}

// runCompletionSideEffects fires exactly once per purchase, on the channel
// that won the conditional update. Failures here never roll back the payment:
// money has moved, so problems are logged for reconciliation instead.
func (s *verificationService) runCompletionSideEffects(ctx context.Context, purchase domain.PurchaseOrder, paymentID, channel string) {
	logCtx := log.WithFields(log.Fields{
		"purchase_id":      purchase.ID,
		"gateway_order_id": purchase.GatewayOrderID,
		"channel":          channel,
	})

	buyerID := purchase.BuyerID.String
	if purchase.Guest {
		user, err := s.provisionGuest(ctx, purchase)
		if err != nil {
			logCtx.WithError(err).WithField("reconciliation", true).
				Error("Guest account provisioning failed after successful payment, manual identity linkage required")
		} else {
			buyerID = user.ID
		}
	}

	if buyerID != "" {
		created, err := s.grants.Create(ctx, buyerID, purchase.ItemID, purchase.ID)
		if err != nil {
			logCtx.WithError(err).WithField("reconciliation", true).
				Error("Failed to create access grant after successful payment")
		} else if !created {
			logCtx.Debug("Active access grant already exists for buyer and item")
		}
	} else {
		logCtx.WithField("reconciliation", true).
			Error("Completed purchase has no buyer identity, access grant not created")
	}

	if err := s.catalog.IncrementSales(ctx, purchase.ItemID); err != nil {
		logCtx.WithError(err).Error("Failed to increment sales count")
	}

	event := domain.PurchaseEvent{
		TransactionID: purchase.ID,
		UserID:        buyerID,
		UserEmail:     purchase.BuyerEmail,
		AmountMinor:   purchase.Amount,
		Currency:      purchase.Currency,
		ProductID:     fmt.Sprintf("%d", purchase.ItemID),
		Provider:      "gateway",
	}
	if err := s.events.Publish(ctx, s.purchasesTopic, purchase.ID, event); err != nil {
		logCtx.WithError(err).Error("Failed to publish purchase event")
	}

	s.sendReceipt(ctx, purchase, logCtx)
}

// provisionGuest recovers the guest details from the gateway order notes and
// creates (or reuses) the identity, then binds it to the purchase row.
func (s *verificationService) provisionGuest(ctx context.Context, purchase domain.PurchaseOrder) (domain.User, error) {
	order, err := s.gateway.FetchOrder(ctx, purchase.GatewayOrderID)
	if err != nil {
		return domain.User{}, fmt.Errorf("failed to fetch gateway order notes: %w", err)
	}

	details := domain.GuestDetails{
		Name:     order.Notes[noteGuestName],
		Email:    order.Notes[noteGuestEmail],
		Phone:    order.Notes[noteGuestPhone],
		Password: order.Notes[noteGuestCredHsh],
	}
	if details.Email == "" {
		// Notes can be missing if the order was created by an older client.
		details.Email = purchase.BuyerEmail
		details.Name = purchase.BuyerEmail
	}

	user, err := s.provisioner.Provision(ctx, details)
	if err != nil {
		return domain.User{}, err
	}

	if err := s.purchases.BindBuyer(ctx, purchase.ID, user.ID); err != nil {
		return domain.User{}, fmt.Errorf("failed to bind provisioned user: %w", err)
	}
	return user, nil
}

// sendReceipt delivers the confirmation email, retrying with backoff the way
// unreliable SMTP relays require. Best effort only.
func (s *verificationService) sendReceipt(ctx context.Context, purchase domain.PurchaseOrder, logCtx *log.Entry) {
	title := fmt.Sprintf("magazine #%d", purchase.ItemID)
	if item, err := s.catalog.GetItem(ctx, purchase.ItemID); err == nil {
		title = item.Title
	}
	subject, body := sender.PurchaseReceipt(title, purchase.ID, purchase.Amount, purchase.Currency)

	delay := time.Second
	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		if err = s.emails.SendEmail(ctx, purchase.BuyerEmail, subject, body); err == nil {
			return
		}
		if attempt < 3 {
			logCtx.WithError(err).WithField("attempt", attempt).Warn("Failed to send receipt email, retrying...")
			time.Sleep(delay)
			delay *= 2
		}
	}
	logCtx.WithError(err).Error("Failed to send receipt email")
}
