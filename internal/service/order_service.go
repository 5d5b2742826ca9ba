package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"payment-service/internal/domain"
	"payment-service/internal/gateway"
	"payment-service/internal/validator"
)

// Gateway order notes keys used to carry guest provisioning data across the
// payment hop. Nothing about the guest is persisted locally until payment
// succeeds, so an abandoned checkout leaves no orphan account.
const (
	noteGuest        = "guest"
	noteItemID       = "item_id"
	noteGuestName    = "guest_name"
	noteGuestEmail   = "guest_email"
	noteGuestPhone   = "guest_phone"
	noteGuestCredHsh = "guest_password_hash"
)

type InitiateOrderRequest struct {
	ItemID     int64
	Amount     int64 // buyer-claimed, minor units
	BuyerEmail string
	BuyerID    string // empty for guest checkout
	Guest      *domain.GuestDetails
}

type InitiateOrderResult struct {
	GatewayOrderID string
	Amount         int64
	Currency       string
}

type orderService struct {
	catalog   Catalog
	purchases PurchaseRepository
	gateway   gateway.Client
}

func NewOrderService(catalog Catalog, purchases PurchaseRepository, gw gateway.Client) *orderService {
	return &orderService{catalog: catalog, purchases: purchases, gateway: gw}
}

// InitiateOrder validates the purchase request against the catalog, creates
// the remote gateway order and records the pending ledger row. The claimed
// amount must exactly equal the catalog price; a mismatch is rejected with a
// diagnostic, never silently corrected.
func (s *orderService) InitiateOrder(ctx context.Context, req InitiateOrderRequest) (*InitiateOrderResult, error) {
	if err := validator.ValidateAmount(req.Amount); err != nil {
		return nil, err
	}
	if err := validator.ValidateEmail(req.BuyerEmail); err != nil {
		return nil, err
	}
	if req.Guest != nil {
		if err := validator.ValidateGuestDetails(*req.Guest); err != nil {
			return nil, err
		}
	}

	item, err := s.catalog.GetItem(ctx, req.ItemID)
	if err != nil {
		return nil, err
	}
	if item.Free() {
		return nil, &domain.ValidationError{Field: "itemId", Reason: "item is free, nothing to purchase"}
	}
	if req.Amount != item.Price {
		return nil, &domain.ValidationError{
			Field:  "amount",
			Reason: fmt.Sprintf("claimed amount %d does not match catalog price %d", req.Amount, item.Price),
		}
	}

	purchaseID := uuid.NewString()
	notes := map[string]string{noteItemID: strconv.FormatInt(req.ItemID, 10)}
	if req.Guest != nil {
		notes[noteGuest] = "true"
		notes[noteGuestName] = req.Guest.Name
		notes[noteGuestEmail] = req.Guest.Email
		notes[noteGuestPhone] = req.Guest.Phone
		if req.Guest.Password != "" {
			hash, err := bcrypt.GenerateFromPassword([]byte(req.Guest.Password), bcrypt.DefaultCost)
			if err != nil {
				return nil, fmt.Errorf("failed to hash guest credential: %w", err)
			}
			notes[noteGuestCredHsh] = string(hash)
		}
	}

	order, err := s.gateway.CreateOrder(ctx, item.Price, item.Currency, purchaseID, notes)
	if err != nil {
		return nil, err
	}

	purchase := domain.PurchaseOrder{
		ID:             purchaseID,
		GatewayOrderID: order.ID,
		BuyerEmail:     req.BuyerEmail,
		ItemID:         req.ItemID,
		Amount:         item.Price,
		Currency:       item.Currency,
		Status:         domain.StatusPending,
		Guest:          req.Guest != nil,
	}
	if req.BuyerID != "" {
		purchase.BuyerID = nullString(req.BuyerID)
	}

	// If this insert fails after the remote order succeeded, the orphaned
	// gateway order is harmless: verification against an unknown order id is
	// a no-op failure.
	if err := s.purchases.Create(ctx, purchase); err != nil {
		log.WithError(err).WithField("gateway_order_id", order.ID).
			Error("Gateway order created but local purchase row insert failed")
		return nil, err
	}

	log.WithFields(log.Fields{
		"purchase_id":      purchaseID,
		"gateway_order_id": order.ID,
		"item_id":          req.ItemID,
		"amount":           item.Price,
		"guest":            req.Guest != nil,
	}).Info("Purchase order initiated")

	return &InitiateOrderResult{
		GatewayOrderID: order.ID,
		Amount:         item.Price,
		Currency:       item.Currency,
	}, nil
}
