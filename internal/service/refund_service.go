package service

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"payment-service/internal/domain"
	"payment-service/internal/gateway"
	"payment-service/internal/producer"
	"payment-service/internal/sender"
)

type RefundResult struct {
	RefundID       string
	RefundedAmount int64
}

type refundService struct {
	purchases    PurchaseRepository
	grants       GrantRepository
	catalog      Catalog
	gateway      gateway.Client
	events       producer.EventProducer
	emails       sender.EmailSender
	refundsTopic string
}

func NewRefundService(
	purchases PurchaseRepository,
	grants GrantRepository,
	catalog Catalog,
	gw gateway.Client,
	events producer.EventProducer,
	emails sender.EmailSender,
	refundsTopic string,
) *refundService {
	return &refundService{
		purchases:    purchases,
		grants:       grants,
		catalog:      catalog,
		gateway:      gw,
		events:       events,
		emails:       emails,
		refundsTopic: refundsTopic,
	}
}

// Refund refunds a completed purchase, fully when amount is 0. The purchase
// is claimed with a completed -> refund_pending transition before the remote
// call, so a concurrent second refund attempt loses the claim and gets a
// state conflict instead of refunding twice. refunded is committed only after
// the gateway confirms the remote refund; there is no assume-success path.
func (s *refundService) Refund(ctx context.Context, purchaseID string, amount int64, reason string) (*RefundResult, error) {
	purchase, err := s.purchases.GetByID(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	if purchase.Status != domain.StatusCompleted {
		return nil, fmt.Errorf("purchase %s is %s, only completed purchases can be refunded: %w",
			purchaseID, purchase.Status, domain.ErrStateConflict)
	}
	if !purchase.GatewayPaymentID.Valid || purchase.GatewayPaymentID.String == "" {
		return nil, fmt.Errorf("purchase %s has no gateway payment id: %w", purchaseID, domain.ErrStateConflict)
	}

	if amount == 0 {
		amount = purchase.Amount
	}
	if amount < 0 || amount > purchase.Amount {
		return nil, &domain.ValidationError{
			Field:  "amount",
			Reason: fmt.Sprintf("refund amount %d outside (0, %d]", amount, purchase.Amount),
		}
	}

	claimed, err := s.purchases.BeginRefund(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		// Another refund attempt won the transition in between.
		return nil, fmt.Errorf("purchase %s is already being refunded: %w", purchaseID, domain.ErrStateConflict)
	}

	logCtx := log.WithFields(log.Fields{
		"purchase_id":        purchaseID,
		"gateway_payment_id": purchase.GatewayPaymentID.String,
		"amount":             amount,
	})

	refund, err := s.gateway.Refund(ctx, purchase.GatewayPaymentID.String, amount,
		map[string]string{"reason": reason})
	if err != nil {
		// Remote refund did not happen, release the claim.
		if _, cErr := s.purchases.CancelRefund(ctx, purchaseID); cErr != nil {
			logCtx.WithError(cErr).WithField("reconciliation", true).
				Error("Failed to release refund claim after gateway failure, purchase stuck in refund_pending")
		}
		return nil, err
	}

	// From here on the money has moved. Any local failure is a
	// reconciliation case, never reported as plain failure nor as success.
	if _, err := s.purchases.FinishRefund(ctx, purchaseID); err != nil {
		recErr := &domain.ReconciliationError{Op: "refund", Ref: refund.ID, Err: err}
		logCtx.WithError(err).WithField("reconciliation", true).
			Error("Gateway refund succeeded but local state write failed")
		return nil, recErr
	}

	if err := s.grants.DeactivateByPurchase(ctx, purchaseID); err != nil {
		recErr := &domain.ReconciliationError{Op: "refund grant revocation", Ref: refund.ID, Err: err}
		logCtx.WithError(err).WithField("reconciliation", true).
			Error("Refund recorded but access grant is still active")
		return nil, recErr
	}

	logCtx.WithField("refund_id", refund.ID).Info("Purchase refunded, access revoked")

	event := domain.RefundEvent{
		TransactionID:  purchase.ID,
		UserEmail:      purchase.BuyerEmail,
		RefundID:       refund.ID,
		RefundedAmount: amount,
		Reason:         reason,
	}
	if err := s.events.Publish(ctx, s.refundsTopic, purchase.ID, event); err != nil {
		logCtx.WithError(err).Error("Failed to publish refund event")
	}

	title := fmt.Sprintf("magazine #%d", purchase.ItemID)
	if item, iErr := s.catalog.GetItem(ctx, purchase.ItemID); iErr == nil {
		title = item.Title
	}
	subject, body := sender.RefundNotice(title, refund.ID, amount, purchase.Currency)
	if err := s.emails.SendEmail(ctx, purchase.BuyerEmail, subject, body); err != nil {
		logCtx.WithError(err).Error("Failed to send refund notice email")
	}

	return &RefundResult{RefundID: refund.ID, RefundedAmount: amount}, nil
}
