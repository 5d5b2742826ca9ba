package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"payment-service/internal/domain"
	"payment-service/internal/service"
)

// Service interfaces as seen by the HTTP layer.

type OrderService interface {
	InitiateOrder(ctx context.Context, req service.InitiateOrderRequest) (*service.InitiateOrderResult, error)
}

type VerificationService interface {
	VerifyCheckout(ctx context.Context, gatewayOrderID, paymentID, signature string) error
	HandleWebhook(ctx context.Context, body []byte, signature string) error
}

type RefundService interface {
	Refund(ctx context.Context, purchaseID string, amount int64, reason string) (*service.RefundResult, error)
}

type AccessService interface {
	Check(ctx context.Context, buyerID string, itemID int64) (service.AccessDecision, error)
}

// Server is the payment HTTP API exposed to the surrounding CMS application.
type Server struct {
	orders       OrderService
	verification VerificationService
	refunds      RefundService
	access       AccessService
	keyID        string
	router       *gin.Engine
}

func NewServer(orders OrderService, verification VerificationService, refunds RefundService, access AccessService, keyID string) *Server {
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		orders:       orders,
		verification: verification,
		refunds:      refunds,
		access:       access,
		keyID:        keyID,
		router:       router,
	}

	router.GET("/healthz", s.handleHealth)
	router.POST("/orders", s.handleCreateOrder)
	router.POST("/orders/verify", s.handleVerifyOrder)
	router.POST("/webhooks/payment", s.handlePaymentWebhook)
	router.POST("/purchases/:id/refund", s.handleRefund)
	router.GET("/access", s.handleAccess)

	return s
}

// Handler exposes the router for tests and for http.Server wiring.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type createOrderRequest struct {
	ItemID     int64                `json:"itemId"`
	Amount     int64                `json:"claimedAmount"`
	BuyerEmail string               `json:"buyerEmail"`
	BuyerID    string               `json:"buyerId"`
	Guest      *domain.GuestDetails `json:"guestDetails"`
}

func (s *Server) handleCreateOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "malformed request body"})
		return
	}

	result, err := s.orders.InitiateOrder(c.Request.Context(), service.InitiateOrderRequest{
		ItemID:     req.ItemID,
		Amount:     req.Amount,
		BuyerEmail: req.BuyerEmail,
		BuyerID:    req.BuyerID,
		Guest:      req.Guest,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"gatewayOrderId": result.GatewayOrderID,
		"amount":         result.Amount,
		"currency":       result.Currency,
		"keyId":          s.keyID,
	})
}

type verifyOrderRequest struct {
	GatewayOrderID   string `json:"gatewayOrderId"`
	GatewayPaymentID string `json:"gatewayPaymentId"`
	Signature        string `json:"signature"`
}

func (s *Server) handleVerifyOrder(c *gin.Context) {
	var req verifyOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "malformed request body"})
		return
	}

	err := s.verification.VerifyCheckout(c.Request.Context(), req.GatewayOrderID, req.GatewayPaymentID, req.Signature)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "ok": true})
}

func (s *Server) handlePaymentWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "unreadable body"})
		return
	}

	signature := c.GetHeader("X-Webhook-Signature")
	err = s.verification.HandleWebhook(c.Request.Context(), body, signature)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidSignature) {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid_signature"})
			return
		}
		var vErr *domain.ValidationError
		if errors.As(err, &vErr) {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": vErr.Error()})
			return
		}
		// Internal trouble: tell the gateway to redeliver later.
		log.WithError(err).Error("Webhook processing failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal error"})
		return
	}

	// 200 regardless of idempotency outcome, so the gateway stops retrying
	// deliveries that were already applied by the other channel.
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type refundRequest struct {
	Reason string `json:"reason"`
	Amount int64  `json:"amount"`
}

func (s *Server) handleRefund(c *gin.Context) {
	purchaseID := c.Param("id")

	var req refundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "malformed request body"})
		return
	}

	result, err := s.refunds.Refund(c.Request.Context(), purchaseID, req.Amount, req.Reason)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"refundId":       result.RefundID,
		"refundedAmount": result.RefundedAmount,
	})
}

func (s *Server) handleAccess(c *gin.Context) {
	itemID, err := strconv.ParseInt(c.Query("item"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "item query parameter required"})
		return
	}
	buyerID := c.Query("buyer")

	decision, err := s.access.Check(c.Request.Context(), buyerID, itemID)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"hasAccess":       decision.HasAccess,
		"requiresPayment": decision.RequiresPayment,
	})
}

// writeError maps the domain error taxonomy onto HTTP statuses.
func (s *Server) writeError(c *gin.Context, err error) {
	var vErr *domain.ValidationError
	var recErr *domain.ReconciliationError

	switch {
	case errors.As(err, &vErr):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": vErr.Error()})
	case errors.Is(err, domain.ErrInvalidSignature):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid_signature"})
	case errors.Is(err, domain.ErrItemNotFound), errors.Is(err, domain.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": err.Error()})
	case errors.Is(err, domain.ErrStateConflict):
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": err.Error()})
	case errors.Is(err, domain.ErrGatewayUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": "payment gateway unavailable, try again"})
	case errors.As(err, &recErr):
		// The buyer's money already moved correctly; operators see the
		// reconciliation log, the caller sees an accepted-but-degraded reply.
		log.WithError(err).WithField("reconciliation", true).Error("Reconciliation required")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "operation requires manual reconciliation"})
	default:
		log.WithError(err).Error("Unhandled error")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal error"})
	}
}
